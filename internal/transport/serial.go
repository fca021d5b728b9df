package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"go.bug.st/serial"
)

const (
	DefaultSerialBaud        = 9600
	defaultSerialReadTimeout = 300 * time.Millisecond
)

var ErrNotConnected = errors.New("transport is not connected")

type portOpener func(name string, mode *serial.Mode) (serial.Port, error)

// SerialTransport owns the dongle's serial port.
type SerialTransport struct {
	portName string
	baudRate int
	open     portOpener

	mu      sync.Mutex
	port    serial.Port
	writeMu sync.Mutex
}

func NewSerialTransport(portName string, baudRate int) *SerialTransport {
	return &SerialTransport{
		portName: portName,
		baudRate: baudRate,
		open:     serial.Open,
	}
}

func (t *SerialTransport) Name() string {
	return "serial"
}

func (t *SerialTransport) StatusTarget() string {
	return t.PortName()
}

func (t *SerialTransport) PortName() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.portName
}

func (t *SerialTransport) BaudRate() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.baudRate
}

func (t *SerialTransport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.port != nil
}

func (t *SerialTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.port != nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if t.portName == "" {
		return errors.New("serial port is empty")
	}
	if t.baudRate <= 0 {
		return fmt.Errorf("invalid serial baud rate: %d", t.baudRate)
	}

	logger := transportLogger(t.Name(), "port", t.portName)
	port, err := t.open(t.portName, &serial.Mode{BaudRate: t.baudRate})
	if err != nil {
		return fmt.Errorf("open serial port %q: %w", t.portName, err)
	}
	if err := port.SetReadTimeout(defaultSerialReadTimeout); err != nil {
		_ = port.Close()
		return fmt.Errorf("set serial read timeout: %w", err)
	}
	// Stale bytes from a previous session would only confuse the framer.
	if err := port.ResetInputBuffer(); err != nil {
		logger.Warn("reset serial input buffer", "error", err)
	}
	if err := port.SetDTR(true); err != nil {
		logger.Debug("set DTR", "error", err)
	}
	t.port = port
	logger.Info("serial port opened", "baud", t.baudRate)

	return nil
}

func (t *SerialTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.port == nil {
		return nil
	}
	err := t.port.Close()
	t.port = nil
	transportLogger(t.Name(), "port", t.portName).Info("serial port closed")
	return err
}

func (t *SerialTransport) Read(buf []byte) (int, error) {
	port, err := t.currentPort()
	if err != nil {
		return 0, err
	}

	return port.Read(buf)
}

func (t *SerialTransport) Write(buf []byte) (int, error) {
	port, err := t.currentPort()
	if err != nil {
		return 0, err
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if err := writeFull(port, buf); err != nil {
		return 0, fmt.Errorf("write serial: %w", err)
	}
	return len(buf), nil
}

// SetReadTimeout bounds a single Read. A timed out Read returns 0, nil.
func (t *SerialTransport) SetReadTimeout(d time.Duration) error {
	port, err := t.currentPort()
	if err != nil {
		return err
	}

	return port.SetReadTimeout(d)
}

func (t *SerialTransport) currentPort() (serial.Port, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.port == nil {
		return nil, ErrNotConnected
	}
	return t.port, nil
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

func transportLogger(name string, attrs ...any) *slog.Logger {
	return slog.With(append([]any{"component", "transport", "transport", name}, attrs...)...)
}
