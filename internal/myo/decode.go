package myo

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Attribute handles exposed by the band.
const (
	AttrDeviceName      uint16 = 0x03
	AttrFirmwareVersion uint16 = 0x17
	AttrCommand         uint16 = 0x19
	AttrIMUData         uint16 = 0x1c
	AttrIMUNotify       uint16 = 0x1d
	AttrClassifierData  uint16 = 0x23
	AttrClassifierCCC   uint16 = 0x24
	AttrEMGNotify       uint16 = 0x28
	AttrEMGData         uint16 = 0x27
)

const (
	muscleSampleLen   = 17
	inertialSampleLen = 20
	classifierLen     = 3

	// Attribute value events: [conn u8][attr u16][type u8][len u8][data...].
	attrValueHeaderLen = 5
)

const (
	classifierOnArm  uint8 = 1
	classifierOffArm uint8 = 2
	classifierPose   uint8 = 3
)

var (
	ErrPayloadLength    = errors.New("myo: unexpected payload length")
	ErrUnknownAttribute = errors.New("myo: unknown attribute")
	ErrInvalidValue     = errors.New("myo: invalid enum value")
)

// DecodeErrorKind classifies a recoverable notification problem.
type DecodeErrorKind string

const (
	DecodeMalformed        DecodeErrorKind = "malformed"
	DecodeUnknownAttribute DecodeErrorKind = "unknown_attribute"
)

// DecodeError describes a notification that was dropped. These are expected
// in normal operation and never stop the stream.
type DecodeError struct {
	Attr    uint16
	Kind    DecodeErrorKind
	Payload []byte
	Err     error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("attribute 0x%02X: %s: %v", e.Attr, e.Kind, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// AttributeValue is the parsed header of an attribute value event.
type AttributeValue struct {
	Conn  uint8
	Attr  uint16
	Type  uint8
	Value []byte
}

func parseAttributeValue(payload []byte) (AttributeValue, error) {
	if len(payload) < attrValueHeaderLen {
		return AttributeValue{}, fmt.Errorf("%w: attribute value header wants %d bytes, got %d", ErrPayloadLength, attrValueHeaderLen, len(payload))
	}

	return AttributeValue{
		Conn:  payload[0],
		Attr:  binary.LittleEndian.Uint16(payload[1:3]),
		Type:  payload[3],
		Value: payload[attrValueHeaderLen:],
	}, nil
}

// DecodeMuscleSample parses 8 little-endian u16 readings and a motion byte.
func DecodeMuscleSample(b []byte) (MuscleSample, error) {
	if len(b) != muscleSampleLen {
		return MuscleSample{}, fmt.Errorf("%w: emg wants %d bytes, got %d", ErrPayloadLength, muscleSampleLen, len(b))
	}

	var s MuscleSample
	for i := range s.EMG {
		s.EMG[i] = binary.LittleEndian.Uint16(b[i*2:])
	}
	s.Moving = b[16]

	return s, nil
}

// DecodeInertialSample parses 10 little-endian i16 values split into
// quaternion, accelerometer and gyroscope, in that order.
func DecodeInertialSample(b []byte) (InertialSample, error) {
	if len(b) != inertialSampleLen {
		return InertialSample{}, fmt.Errorf("%w: imu wants %d bytes, got %d", ErrPayloadLength, inertialSampleLen, len(b))
	}

	var vals [10]int16
	for i := range vals {
		// #nosec G115 -- reinterpreting the wire value as signed.
		vals[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}

	var s InertialSample
	copy(s.Quaternion[:], vals[0:4])
	copy(s.Accel[:], vals[4:7])
	copy(s.Gyro[:], vals[7:10])

	return s, nil
}

// ClassifierEvent is either a limb or a pose notification. Exactly one of
// the pointers is set on success; both are nil for subtypes the band sends
// but this package does not model.
type ClassifierEvent struct {
	Limb *LimbEvent
	Pose *PoseEvent
}

// DecodeClassifier parses the 3-byte {subtype, value, extra} record.
func DecodeClassifier(b []byte) (ClassifierEvent, error) {
	if len(b) != classifierLen {
		return ClassifierEvent{}, fmt.Errorf("%w: classifier wants %d bytes, got %d", ErrPayloadLength, classifierLen, len(b))
	}

	subtype, value, extra := b[0], b[1], b[2]
	switch subtype {
	case classifierOnArm:
		arm, xdir := Arm(value), XDirection(extra)
		if !arm.valid() || !xdir.valid() {
			return ClassifierEvent{}, fmt.Errorf("%w: arm %d xdirection %d", ErrInvalidValue, value, extra)
		}
		return ClassifierEvent{Limb: &LimbEvent{Arm: arm, XDirection: xdir}}, nil
	case classifierOffArm:
		return ClassifierEvent{Limb: &LimbEvent{Arm: ArmUnknown, XDirection: XDirectionUnknown}}, nil
	case classifierPose:
		pose := Pose(value)
		if !pose.valid() {
			return ClassifierEvent{}, fmt.Errorf("%w: pose %d", ErrInvalidValue, value)
		}
		return ClassifierEvent{Pose: &PoseEvent{Pose: pose}}, nil
	default:
		return ClassifierEvent{}, nil
	}
}
