package bgapi

// FrameDecoder rebuilds packets from a byte stream that may arrive in
// arbitrary chunks. The zero value is ready to use.
type FrameDecoder struct {
	buf    []byte
	target int
}

// Feed consumes one byte and returns a packet once a frame is complete.
// Bytes that cannot start a frame are dropped so the decoder resyncs after
// line noise.
func (d *FrameDecoder) Feed(c byte) (Packet, bool) {
	switch len(d.buf) {
	case 0:
		if !Kind(c).valid() {
			return Packet{}, false
		}
		d.buf = append(d.buf, c)
		return Packet{}, false
	case 1:
		d.buf = append(d.buf, c)
		d.target = headerLen + int(d.buf[0]&0x07) + int(c)
		return Packet{}, false
	default:
		d.buf = append(d.buf, c)
	}

	if len(d.buf) < d.target {
		return Packet{}, false
	}

	payload := make([]byte, len(d.buf)-headerLen)
	copy(payload, d.buf[headerLen:])
	p := Packet{
		Kind:    Kind(d.buf[0]),
		Class:   d.buf[2],
		Command: d.buf[3],
		Payload: payload,
	}
	d.Reset()

	return p, true
}

// Write feeds a chunk and returns every packet it completed, in order.
func (d *FrameDecoder) Write(chunk []byte) []Packet {
	var out []Packet
	for _, c := range chunk {
		if p, ok := d.Feed(c); ok {
			out = append(out, p)
		}
	}

	return out
}

// Buffered returns the number of bytes held for an incomplete frame.
func (d *FrameDecoder) Buffered() int {
	return len(d.buf)
}

func (d *FrameDecoder) Reset() {
	d.buf = d.buf[:0]
	d.target = 0
}
