package transport

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// fakeSerialPort overrides the serial.Port methods the transport uses. The
// embedded interface is nil; any other call panics.
type fakeSerialPort struct {
	serial.Port

	rx          *bytes.Buffer
	tx          bytes.Buffer
	readTimeout time.Duration
	dtr         bool
	resets      int
	closed      bool
	writeChunk  int
}

func (p *fakeSerialPort) Read(b []byte) (int, error) {
	if p.rx == nil || p.rx.Len() == 0 {
		return 0, nil
	}
	return p.rx.Read(b)
}

func (p *fakeSerialPort) Write(b []byte) (int, error) {
	if p.writeChunk > 0 && len(b) > p.writeChunk {
		b = b[:p.writeChunk]
	}
	return p.tx.Write(b)
}

func (p *fakeSerialPort) SetReadTimeout(t time.Duration) error {
	p.readTimeout = t
	return nil
}

func (p *fakeSerialPort) ResetInputBuffer() error {
	p.resets++
	return nil
}

func (p *fakeSerialPort) SetDTR(dtr bool) error {
	p.dtr = dtr
	return nil
}

func (p *fakeSerialPort) Close() error {
	p.closed = true
	return nil
}

func newFakeTransport(fake *fakeSerialPort) (*SerialTransport, *serial.Mode) {
	var gotMode serial.Mode
	tr := NewSerialTransport("/dev/ttyACM0", DefaultSerialBaud)
	tr.open = func(name string, mode *serial.Mode) (serial.Port, error) {
		gotMode = *mode
		return fake, nil
	}
	return tr, &gotMode
}

func TestSerialTransportConnectConfiguresPort(t *testing.T) {
	fake := &fakeSerialPort{}
	tr, mode := newFakeTransport(fake)

	require.NoError(t, tr.Connect(context.Background()))
	assert.True(t, tr.Connected())
	assert.Equal(t, DefaultSerialBaud, mode.BaudRate)
	assert.Equal(t, defaultSerialReadTimeout, fake.readTimeout)
	assert.Equal(t, 1, fake.resets)
	assert.True(t, fake.dtr)
	assert.Equal(t, "/dev/ttyACM0", tr.StatusTarget())

	// Connecting twice keeps the open port.
	require.NoError(t, tr.Connect(context.Background()))
	assert.Equal(t, 1, fake.resets)
}

func TestSerialTransportReadWriteAndTimeout(t *testing.T) {
	fake := &fakeSerialPort{rx: bytes.NewBuffer([]byte{0x80, 0x00}), writeChunk: 2}
	tr, _ := newFakeTransport(fake)
	require.NoError(t, tr.Connect(context.Background()))

	n, err := tr.Write([]byte{0x00, 0x00, 0x06, 0x04})
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, []byte{0x00, 0x00, 0x06, 0x04}, fake.tx.Bytes())

	buf := make([]byte, 8)
	n, err = tr.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x80, 0x00}, buf[:n])

	require.NoError(t, tr.SetReadTimeout(50*time.Millisecond))
	assert.Equal(t, 50*time.Millisecond, fake.readTimeout)
}

func TestSerialTransportRequiresConnection(t *testing.T) {
	tr := NewSerialTransport("/dev/ttyACM0", DefaultSerialBaud)

	_, err := tr.Read(make([]byte, 1))
	assert.ErrorIs(t, err, ErrNotConnected)
	_, err = tr.Write([]byte{0})
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.ErrorIs(t, tr.SetReadTimeout(time.Second), ErrNotConnected)
	assert.NoError(t, tr.Close())
}

func TestSerialTransportCloseReleasesPort(t *testing.T) {
	fake := &fakeSerialPort{}
	tr, _ := newFakeTransport(fake)
	require.NoError(t, tr.Connect(context.Background()))

	require.NoError(t, tr.Close())
	assert.True(t, fake.closed)
	assert.False(t, tr.Connected())
}

func TestSerialTransportConnectValidation(t *testing.T) {
	assert.Error(t, NewSerialTransport("", DefaultSerialBaud).Connect(context.Background()))
	assert.Error(t, NewSerialTransport("/dev/ttyACM0", 0).Connect(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, NewSerialTransport("/dev/ttyACM0", DefaultSerialBaud).Connect(ctx), context.Canceled)
}

func TestSerialTransportOpenFailure(t *testing.T) {
	denied := errors.New("permission denied")
	tr := NewSerialTransport("/dev/ttyACM0", DefaultSerialBaud)
	tr.open = func(string, *serial.Mode) (serial.Port, error) { return nil, denied }

	err := tr.Connect(context.Background())
	assert.ErrorIs(t, err, denied)
	assert.False(t, tr.Connected())
}

func TestMatchDongle(t *testing.T) {
	ports := []*enumerator.PortDetails{
		{Name: "/dev/ttyS0"},
		{Name: "/dev/ttyUSB0", IsUSB: true, VID: "0403", PID: "6001"},
		nil,
		{Name: "/dev/ttyACM0", IsUSB: true, VID: "2458", PID: "1"},
	}

	name, err := matchDongle(ports, DefaultDongleVID, DefaultDonglePID)
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyACM0", name)

	_, err = matchDongle(ports[:2], DefaultDongleVID, DefaultDonglePID)
	assert.ErrorIs(t, err, ErrDongleNotFound)
}

func TestSameUSBID(t *testing.T) {
	assert.True(t, sameUSBID("0001", "1"))
	assert.True(t, sameUSBID("0x2458", "2458"))
	assert.True(t, sameUSBID("ABCD", "abcd"))
	assert.False(t, sameUSBID("2458", "2459"))
}
