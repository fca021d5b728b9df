package bgapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/skobkin/myolink/internal/dispatch"
)

const (
	defaultPollInterval = 300 * time.Millisecond
	readBufferSize      = 256
)

var ErrClosed = errors.New("bgapi: link is closed")

// Port is the byte channel a Link runs over. go.bug.st/serial ports satisfy
// it.
type Port interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
}

// EventHandler receives event packets. Errors are logged, not propagated.
type EventHandler = dispatch.Handler[Packet]

// Link owns a port and correlates commands with responses while dispatching
// events to registered handlers.
//
// A Link is not safe for concurrent use: SendCommand, WaitEvent and
// ReceivePacket share the same read cursor and must be serialised by the
// caller. Handler registration alone may happen from any goroutine.
type Link struct {
	port     Port
	logger   *slog.Logger
	decoder  FrameDecoder
	handlers dispatch.Registry[Packet]

	readBuf     []byte
	pending     []byte
	readTimeout time.Duration
	poll        time.Duration
	closed      bool
}

type LinkOption func(*Link)

// WithPollInterval sets the longest single blocking read. Context
// cancellation is observed between reads.
func WithPollInterval(d time.Duration) LinkOption {
	return func(l *Link) {
		if d > 0 {
			l.poll = d
		}
	}
}

func NewLink(port Port, logger *slog.Logger, opts ...LinkOption) *Link {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Link{
		port:    port,
		logger:  logger.With("component", "bgapi"),
		readBuf: make([]byte, readBufferSize),
		poll:    defaultPollInterval,
	}
	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Close closes the underlying port. It must not race with an in-flight read.
func (l *Link) Close() error {
	if l.closed {
		return nil
	}
	l.closed = true
	l.pending = nil
	l.decoder.Reset()

	return l.port.Close()
}

func (l *Link) AddHandler(h EventHandler) dispatch.ID {
	return l.handlers.Add(h)
}

func (l *Link) RemoveHandler(id dispatch.ID) bool {
	return l.handlers.Remove(id)
}

// DispatchEvent hands p to every registered handler in registration order.
func (l *Link) DispatchEvent(p Packet) {
	if err := l.handlers.Dispatch(p); err != nil {
		l.logger.Warn("event handler failed", "packet", p.String(), "error", err)
	}
}

// ReceivePacket returns the next complete packet. A non-positive timeout
// waits until a packet arrives or ctx is done. When the timeout passes
// first, ok is false and err is nil. Event packets are dispatched before
// being returned.
func (l *Link) ReceivePacket(ctx context.Context, timeout time.Duration) (p Packet, ok bool, err error) {
	if l.closed {
		return Packet{}, false, ErrClosed
	}

	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	for {
		for len(l.pending) > 0 {
			c := l.pending[0]
			l.pending = l.pending[1:]
			if pkt, done := l.decoder.Feed(c); done {
				if pkt.Kind.IsEvent() {
					l.DispatchEvent(pkt)
				}
				return pkt, true, nil
			}
		}

		if err := ctx.Err(); err != nil {
			return Packet{}, false, err
		}

		wait := l.poll
		if !deadline.IsZero() {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return Packet{}, false, nil
			}
			wait = min(wait, remaining)
		}

		if err := l.fill(wait); err != nil {
			return Packet{}, false, err
		}
	}
}

// ReceivePackets collects every packet that arrives within window. It stops
// only when the window elapses.
func (l *Link) ReceivePackets(ctx context.Context, window time.Duration) ([]Packet, error) {
	var out []Packet
	deadline := time.Now().Add(window)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return out, nil
		}
		p, ok, err := l.ReceivePacket(ctx, remaining)
		if err != nil {
			return out, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, p)
	}
}

// Send writes a command frame without waiting for the response.
func (l *Link) Send(ctx context.Context, class, command uint8, payload []byte) error {
	if l.closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	frame, err := EncodeCommand(class, command, payload)
	if err != nil {
		return err
	}
	if err := writeFull(l.port, frame); err != nil {
		return fmt.Errorf("write command %d/%d: %w", class, command, err)
	}
	l.logger.Debug("command sent", "class", class, "command", command, "len", len(payload))

	return nil
}

// SendCommand writes a command and waits for its response. Events arriving
// in the meantime are dispatched to handlers. If the dongle never answers the
// call blocks until ctx is done.
func (l *Link) SendCommand(ctx context.Context, class, command uint8, payload []byte) (Packet, error) {
	if err := l.Send(ctx, class, command, payload); err != nil {
		return Packet{}, err
	}

	for {
		p, _, err := l.ReceivePacket(ctx, 0)
		if err != nil {
			return Packet{}, fmt.Errorf("await response %d/%d: %w", class, command, err)
		}
		if !p.Kind.IsEvent() {
			return p, nil
		}
	}
}

// WaitEvent receives packets until an event with the given class/command
// shows up. Other events keep flowing to the registered handlers.
func (l *Link) WaitEvent(ctx context.Context, class, command uint8) (Packet, error) {
	return l.WaitEventFunc(ctx, class, command, nil)
}

// WaitEventFunc is WaitEvent with an extra filter on the event. A nil match
// accepts any event of class/command. Rejected events are still dispatched.
func (l *Link) WaitEventFunc(ctx context.Context, class, command uint8, match func(Packet) bool) (Packet, error) {
	var (
		got     Packet
		matched bool
	)
	id := l.handlers.Add(func(p Packet) error {
		if !matched && p.Is(class, command) && (match == nil || match(p)) {
			got = p
			matched = true
		}
		return nil
	})
	defer l.handlers.Remove(id)

	for !matched {
		if _, _, err := l.ReceivePacket(ctx, 0); err != nil {
			return Packet{}, fmt.Errorf("await event %d/%d: %w", class, command, err)
		}
	}

	return got, nil
}

func (l *Link) fill(wait time.Duration) error {
	if wait != l.readTimeout {
		if err := l.port.SetReadTimeout(wait); err != nil {
			return fmt.Errorf("set read timeout: %w", err)
		}
		l.readTimeout = wait
	}

	n, err := l.port.Read(l.readBuf)
	if n > 0 {
		l.pending = l.readBuf[:n]
	}
	if err != nil {
		return fmt.Errorf("read port: %w", err)
	}

	return nil
}

func writeFull(w io.Writer, buf []byte) error {
	written := 0
	for written < len(buf) {
		n, err := w.Write(buf[written:])
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		written += n
	}

	return nil
}
