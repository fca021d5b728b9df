// Package bgapitest provides an in-memory dongle port for protocol tests.
package bgapitest

import (
	"errors"
	"sync"
	"time"

	"github.com/skobkin/myolink/internal/bgapi"
)

var ErrPortClosed = errors.New("bgapitest: port closed")

// Responder answers one decoded command with zero or more raw frames that
// become readable from the port.
type Responder func(cmd bgapi.Packet) [][]byte

// Port is a fake serial port. Reads drain queued bytes, at most Chunk bytes
// per call when Chunk is positive; an empty queue behaves like a read timeout.
type Port struct {
	mu        sync.Mutex
	rx        []byte
	respond   Responder
	decoder   bgapi.FrameDecoder
	commands  []bgapi.Packet
	timeouts  []time.Duration
	readErr   error
	writeErr  error
	closed    bool
	writeOK   int

	Chunk int
}

func NewPort() *Port {
	return &Port{}
}

// Respond installs r as the handler for every command written to the port.
func (p *Port) Respond(r Responder) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.respond = r
}

// Feed queues raw bytes for reading.
func (p *Port) Feed(frames ...[]byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, f := range frames {
		p.rx = append(p.rx, f...)
	}
}

func (p *Port) FailReads(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.readErr = err
}

func (p *Port) FailWrites(err error) {
	p.FailWritesAfter(0, err)
}

// FailWritesAfter accepts n more writes, then fails every write with err.
func (p *Port) FailWritesAfter(n int, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writeErr = err
	p.writeOK = n
}

// Commands returns every command frame written so far.
func (p *Port) Commands() []bgapi.Packet {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]bgapi.Packet, len(p.commands))
	copy(out, p.commands)
	return out
}

func (p *Port) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *Port) Read(buf []byte) (int, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return 0, ErrPortClosed
	}
	if p.readErr != nil {
		err := p.readErr
		p.mu.Unlock()
		return 0, err
	}
	if len(p.rx) == 0 {
		wait := time.Millisecond
		if n := len(p.timeouts); n > 0 && p.timeouts[n-1] < wait {
			wait = p.timeouts[n-1]
		}
		p.mu.Unlock()
		time.Sleep(wait)
		return 0, nil
	}

	limit := len(buf)
	if p.Chunk > 0 && p.Chunk < limit {
		limit = p.Chunk
	}
	n := copy(buf[:limit], p.rx)
	p.rx = p.rx[n:]
	p.mu.Unlock()

	return n, nil
}

func (p *Port) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, ErrPortClosed
	}
	if p.writeErr != nil {
		if p.writeOK == 0 {
			return 0, p.writeErr
		}
		p.writeOK--
	}

	for _, cmd := range p.decoder.Write(b) {
		p.commands = append(p.commands, cmd)
		if p.respond == nil {
			continue
		}
		for _, f := range p.respond(cmd) {
			p.rx = append(p.rx, f...)
		}
	}

	return len(b), nil
}

func (p *Port) SetReadTimeout(t time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.timeouts = append(p.timeouts, t)
	return nil
}

func (p *Port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// Frame builds a raw frame of the given kind. The length byte carries the
// payload length.
func Frame(kind bgapi.Kind, class, command uint8, payload ...byte) []byte {
	out := make([]byte, 0, 4+len(payload))
	// #nosec G115 -- test frames stay below 256 bytes.
	out = append(out, byte(kind), byte(len(payload)), class, command)
	return append(out, payload...)
}

func Response(class, command uint8, payload ...byte) []byte {
	return Frame(bgapi.KindResponse, class, command, payload...)
}

func Event(class, command uint8, payload ...byte) []byte {
	return Frame(bgapi.KindEvent, class, command, payload...)
}
