// Package bgapi speaks the binary command protocol of BLED112-style USB BLE
// dongles: framing, command/response correlation and event dispatch.
package bgapi

import (
	"errors"
	"fmt"
	"strings"
)

// Kind is the leading byte of a frame.
type Kind byte

const (
	KindResponse         Kind = 0x00
	KindEvent            Kind = 0x80
	KindResponseExtended Kind = 0x08
	KindEventExtended    Kind = 0x88
)

const (
	headerLen     = 4
	maxPayloadLen = 0xFF
)

var ErrPayloadTooLarge = errors.New("bgapi: payload too large")

func (k Kind) valid() bool {
	switch k {
	case KindResponse, KindEvent, KindResponseExtended, KindEventExtended:
		return true
	default:
		return false
	}
}

// IsEvent reports whether the frame is an unsolicited event rather than a
// command response.
func (k Kind) IsEvent() bool {
	return k&0x80 != 0
}

// Packet is one decoded frame. Payload is owned by the packet.
type Packet struct {
	Kind    Kind
	Class   uint8
	Command uint8
	Payload []byte
}

// Is reports whether the packet carries the given class/command pair.
func (p Packet) Is(class, command uint8) bool {
	return p.Class == class && p.Command == command
}

func (p Packet) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Packet(%02X, %02X, %02X, [", byte(p.Kind), p.Class, p.Command)
	for i, c := range p.Payload {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%02X", c)
	}
	b.WriteString("])")

	return b.String()
}

// EncodeCommand builds a request frame: [0x00][len][class][command][payload].
func EncodeCommand(class, command uint8, payload []byte) ([]byte, error) {
	if len(payload) > maxPayloadLen {
		return nil, fmt.Errorf("%w: %d", ErrPayloadTooLarge, len(payload))
	}

	frame := make([]byte, headerLen+len(payload))
	frame[0] = byte(KindResponse)
	// #nosec G115 -- length is bounded by maxPayloadLen above.
	frame[1] = byte(len(payload))
	frame[2] = class
	frame[3] = command
	copy(frame[headerLen:], payload)

	return frame, nil
}
