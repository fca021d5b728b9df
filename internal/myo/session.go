// Package myo implements the Myo armband session on top of a BGAPI dongle
// link: discovery, connection, firmware-specific negotiation and decoding of
// streamed notifications into typed events.
package myo

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/skobkin/myolink/internal/bgapi"
	"github.com/skobkin/myolink/internal/dispatch"
)

// State is the handshake phase of a session.
type State string

const (
	StateIdle        State = "idle"
	StateScanning    State = "scanning"
	StateConnecting  State = "connecting"
	StateNegotiating State = "negotiating"
	StateStreaming   State = "streaming"
)

const staleHandles = 3

var (
	ErrHandshake    = errors.New("myo: handshake failed")
	ErrNotConnected = errors.New("myo: not connected")
)

// serviceSignature is the tail of a Myo advertisement: the control service
// UUID as it appears in scan responses.
var serviceSignature = []byte{
	0x06, 0x42, 0x48, 0x12, 0x4A, 0x7F, 0x2C, 0x48,
	0x47, 0xB9, 0xDE, 0x04, 0xA9, 0x01, 0x00, 0x06, 0xD5,
}

// Session drives one band through one dongle link. Like the link it wraps it
// is not safe for concurrent use: Connect, Run, Disconnect and the attribute
// helpers must be called from one goroutine at a time.
type Session struct {
	link   *bgapi.Link
	logger *slog.Logger
	params StreamParams

	state      State
	handle     uint8
	connected  bool
	address    bgapi.Address
	firmware   FirmwareVersion
	negotiator Negotiator
	streamID   dispatch.ID

	muscle   dispatch.Registry[MuscleSample]
	inertial dispatch.Registry[InertialSample]
	pose     dispatch.Registry[PoseEvent]
	limb     dispatch.Registry[LimbEvent]
	problems dispatch.Registry[*DecodeError]

	problemLog rate.Sometimes
}

func NewSession(link *bgapi.Link, params StreamParams, logger *slog.Logger) (*Session, error) {
	if link == nil {
		return nil, errors.New("link is required")
	}
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("stream params: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Session{
		link:       link,
		logger:     logger.With("component", "myo"),
		params:     params,
		state:      StateIdle,
		problemLog: rate.Sometimes{First: 3, Interval: 5 * time.Second},
	}, nil
}

func (s *Session) State() State { return s.state }

// Handle returns the dongle connection handle while a link is up.
func (s *Session) Handle() (uint8, bool) { return s.handle, s.connected }

func (s *Session) Address() bgapi.Address { return s.address }

func (s *Session) Firmware() FirmwareVersion { return s.firmware }

// Negotiation returns the name of the strategy chosen for the current
// connection, or an empty string before negotiation.
func (s *Session) Negotiation() string {
	if s.negotiator == nil {
		return ""
	}
	return s.negotiator.Name()
}

func (s *Session) OnMuscle(h dispatch.Handler[MuscleSample]) dispatch.ID { return s.muscle.Add(h) }

func (s *Session) OnInertial(h dispatch.Handler[InertialSample]) dispatch.ID {
	return s.inertial.Add(h)
}

func (s *Session) OnPose(h dispatch.Handler[PoseEvent]) dispatch.ID { return s.pose.Add(h) }

func (s *Session) OnLimb(h dispatch.Handler[LimbEvent]) dispatch.ID { return s.limb.Add(h) }

// OnDecodeError subscribes to notifications that were dropped because they
// could not be decoded.
func (s *Session) OnDecodeError(h dispatch.Handler[*DecodeError]) dispatch.ID {
	return s.problems.Add(h)
}

func (s *Session) RemoveMuscle(id dispatch.ID) bool      { return s.muscle.Remove(id) }
func (s *Session) RemoveInertial(id dispatch.ID) bool    { return s.inertial.Remove(id) }
func (s *Session) RemovePose(id dispatch.ID) bool        { return s.pose.Remove(id) }
func (s *Session) RemoveLimb(id dispatch.ID) bool        { return s.limb.Remove(id) }
func (s *Session) RemoveDecodeError(id dispatch.ID) bool { return s.problems.Remove(id) }

// Connect scans for a band, connects to it and enables streaming. The
// handshake has no internal timeout; bound it with ctx. When it fails after
// the link came up the handle stays set so Disconnect can release it.
func (s *Session) Connect(ctx context.Context) error {
	if s.connected {
		return fmt.Errorf("already connected to %s", s.address)
	}

	s.setState(StateScanning)
	addr, err := s.scan(ctx)
	if err != nil {
		s.setState(StateIdle)
		return fmt.Errorf("%w: scan: %w", ErrHandshake, err)
	}
	s.address = addr

	s.setState(StateConnecting)
	if err := s.connect(ctx, addr); err != nil {
		if !s.connected {
			s.setState(StateIdle)
		}
		return fmt.Errorf("%w: connect: %w", ErrHandshake, err)
	}

	s.setState(StateNegotiating)
	if err := s.negotiate(ctx); err != nil {
		return fmt.Errorf("%w: negotiate: %w", ErrHandshake, err)
	}

	s.streamID = s.link.AddHandler(s.handleData)
	s.setState(StateStreaming)

	return nil
}

func (s *Session) scan(ctx context.Context) (bgapi.Address, error) {
	if _, err := s.link.EndScan(ctx); err != nil {
		return bgapi.Address{}, fmt.Errorf("end previous scan: %w", err)
	}
	// Release links a previous run may have left open. The dongle's result
	// code is ignored; a failed write or read is not.
	for h := uint8(0); h < staleHandles; h++ {
		resp, err := s.link.Disconnect(ctx, h)
		if err != nil {
			return bgapi.Address{}, fmt.Errorf("disconnect stale handle %d: %w", h, err)
		}
		s.logger.Debug("stale handle released", "handle", h, "response", resp.String())
	}

	s.logger.Info("scanning")
	if _, err := s.link.Discover(ctx); err != nil {
		return bgapi.Address{}, fmt.Errorf("start discovery: %w", err)
	}

	var addr bgapi.Address
	for {
		p, _, err := s.link.ReceivePacket(ctx, 0)
		if err != nil {
			return bgapi.Address{}, err
		}
		if !p.Kind.IsEvent() || !p.Is(bgapi.ClassGAP, bgapi.EvtGAPScanResponse) {
			continue
		}
		s.logger.Debug("scan response", "packet", p.String())
		if len(p.Payload) >= 8 && bytes.HasSuffix(p.Payload, serviceSignature) {
			copy(addr[:], p.Payload[2:8])
			break
		}
	}

	if _, err := s.link.EndScan(ctx); err != nil {
		return bgapi.Address{}, fmt.Errorf("end discovery: %w", err)
	}
	s.logger.Info("band found", "address", addr.String())

	return addr, nil
}

func (s *Session) connect(ctx context.Context, addr bgapi.Address) error {
	resp, err := s.link.ConnectDirect(ctx, addr)
	if err != nil {
		return err
	}
	if len(resp.Payload) < 3 {
		return fmt.Errorf("%w: connect response has %d bytes", ErrPayloadLength, len(resp.Payload))
	}
	if result := binary.LittleEndian.Uint16(resp.Payload[0:2]); result != 0 {
		return fmt.Errorf("connect rejected by dongle: result 0x%04X", result)
	}

	s.handle = resp.Payload[len(resp.Payload)-1]
	s.connected = true

	if _, err := s.link.WaitEvent(ctx, bgapi.ClassConnection, bgapi.EvtConnectionStatus); err != nil {
		return fmt.Errorf("await connection status: %w", err)
	}
	s.logger.Info("connected", "address", addr.String(), "handle", s.handle)

	return nil
}

func (s *Session) negotiate(ctx context.Context) error {
	fw, ok, err := s.ReadAttribute(ctx, AttrFirmwareVersion)
	if err != nil {
		return fmt.Errorf("read firmware version: %w", err)
	}
	if !ok {
		return ErrNotConnected
	}
	version, err := parseFirmwareVersion(fw.Value)
	if err != nil {
		return err
	}
	s.firmware = version

	s.negotiator = selectNegotiator(version, s.params, s.logger)
	s.logger.Info("firmware", "version", version.String(), "negotiation", s.negotiator.Name())

	return s.negotiator.Negotiate(ctx, s)
}

// Disconnect releases the current connection. It is a no-op without one.
// The handle is cleared even when the command fails.
func (s *Session) Disconnect(ctx context.Context) error {
	if !s.connected {
		s.setState(StateIdle)
		return nil
	}

	handle := s.handle
	s.connected = false
	s.handle = 0
	s.negotiator = nil
	if s.streamID != 0 {
		s.link.RemoveHandler(s.streamID)
		s.streamID = 0
	}
	s.setState(StateIdle)

	if _, err := s.link.Disconnect(ctx, handle); err != nil {
		return fmt.Errorf("disconnect handle %d: %w", handle, err)
	}
	s.logger.Info("disconnected", "handle", handle)

	return nil
}

// Run pumps the link once: it waits up to timeout for a single packet and
// dispatches it. Callers own the loop.
func (s *Session) Run(ctx context.Context, timeout time.Duration) error {
	_, _, err := s.link.ReceivePacket(ctx, timeout)
	return err
}

// ReadAttribute reads attr on the connected band. Without a connection it
// does nothing and ok is false.
func (s *Session) ReadAttribute(ctx context.Context, attr uint16) (AttributeValue, bool, error) {
	if !s.connected {
		return AttributeValue{}, false, nil
	}

	p, err := s.link.ReadAttribute(ctx, s.handle, attr)
	if err != nil {
		return AttributeValue{}, false, err
	}
	v, err := parseAttributeValue(p.Payload)
	if err != nil {
		return AttributeValue{}, false, err
	}

	return v, true, nil
}

// WriteAttribute writes attr on the connected band. Without a connection it
// does nothing and ok is false.
func (s *Session) WriteAttribute(ctx context.Context, attr uint16, value []byte) (bool, error) {
	if !s.connected {
		return false, nil
	}
	if _, err := s.link.WriteAttribute(ctx, s.handle, attr, value); err != nil {
		return false, err
	}

	return true, nil
}

// StartRaw re-sends the raw streaming sequence of 1.x firmware.
func (s *Session) StartRaw(ctx context.Context) error {
	if err := s.requireModern("raw streaming"); err != nil {
		return err
	}

	return startRaw(ctx, s)
}

// StartCollection sends the notification writes that open a data
// collection on 1.x firmware.
func (s *Session) StartCollection(ctx context.Context) error {
	if err := s.requireModern("data collection"); err != nil {
		return err
	}

	return applyWrites(ctx, s, collectionStart)
}

// EndCollection sends the writes that close a collection opened by
// StartCollection.
func (s *Session) EndCollection(ctx context.Context) error {
	if err := s.requireModern("data collection"); err != nil {
		return err
	}

	return applyWrites(ctx, s, collectionEnd)
}

// Vibrate buzzes the band for a short (1), medium (2) or long (3) pulse.
// Only 1.x firmware understands the command.
func (s *Session) Vibrate(ctx context.Context, length int) error {
	if length < 1 || length > 3 {
		return fmt.Errorf("vibration length must be 1..3: %d", length)
	}
	if err := s.requireModern("vibration"); err != nil {
		return err
	}

	// #nosec G115 -- length is checked above.
	_, err := s.WriteAttribute(ctx, AttrCommand, []byte{0x03, 0x01, byte(length)})
	return err
}

func (s *Session) requireModern(feature string) error {
	if !s.connected {
		return ErrNotConnected
	}
	if s.firmware.Legacy() {
		return fmt.Errorf("%s is not supported by firmware %s", feature, s.firmware)
	}

	return nil
}

func (s *Session) handleData(p bgapi.Packet) error {
	if !p.Is(bgapi.ClassAttrClient, bgapi.EvtAttrAttributeValue) {
		return nil
	}

	av, err := parseAttributeValue(p.Payload)
	if err != nil {
		s.reportProblem(&DecodeError{Kind: DecodeMalformed, Payload: p.Payload, Err: err})
		return nil
	}

	switch av.Attr {
	case AttrEMGData:
		sample, err := DecodeMuscleSample(av.Value)
		if err != nil {
			s.reportProblem(&DecodeError{Attr: av.Attr, Kind: DecodeMalformed, Payload: av.Value, Err: err})
			return nil
		}
		s.logHandlerErr("muscle", s.muscle.Dispatch(sample))
	case AttrIMUData:
		sample, err := DecodeInertialSample(av.Value)
		if err != nil {
			s.reportProblem(&DecodeError{Attr: av.Attr, Kind: DecodeMalformed, Payload: av.Value, Err: err})
			return nil
		}
		s.logHandlerErr("inertial", s.inertial.Dispatch(sample))
	case AttrClassifierData:
		ev, err := DecodeClassifier(av.Value)
		if err != nil {
			s.reportProblem(&DecodeError{Attr: av.Attr, Kind: DecodeMalformed, Payload: av.Value, Err: err})
			return nil
		}
		if ev.Limb != nil {
			s.logHandlerErr("limb", s.limb.Dispatch(*ev.Limb))
		}
		if ev.Pose != nil {
			s.logHandlerErr("pose", s.pose.Dispatch(*ev.Pose))
		}
	default:
		s.reportProblem(&DecodeError{Attr: av.Attr, Kind: DecodeUnknownAttribute, Payload: av.Value, Err: ErrUnknownAttribute})
	}

	return nil
}

func (s *Session) reportProblem(e *DecodeError) {
	s.problemLog.Do(func() {
		s.logger.Debug("notification dropped", "attr", e.Attr, "kind", e.Kind, "error", e.Err)
	})
	s.logHandlerErr("decode_error", s.problems.Dispatch(e))
}

func (s *Session) logHandlerErr(kind string, err error) {
	if err != nil {
		s.logger.Warn("event handler failed", "event", kind, "error", err)
	}
}

func (s *Session) setState(st State) {
	if s.state == st {
		return
	}
	s.logger.Debug("state change", "from", s.state, "to", st)
	s.state = st
}
