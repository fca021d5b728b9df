package myo

import "fmt"

// Arm is the limb the band reports being worn on.
type Arm uint8

const (
	ArmUnknown Arm = 0
	ArmRight   Arm = 1
	ArmLeft    Arm = 2
)

func (a Arm) String() string {
	switch a {
	case ArmUnknown:
		return "unknown"
	case ArmRight:
		return "right"
	case ArmLeft:
		return "left"
	default:
		return fmt.Sprintf("arm(%d)", uint8(a))
	}
}

func (a Arm) valid() bool {
	return a <= ArmLeft
}

// XDirection is the orientation of the band's x axis along the forearm.
type XDirection uint8

const (
	XDirectionUnknown     XDirection = 0
	XDirectionTowardWrist XDirection = 1
	XDirectionTowardElbow XDirection = 2
)

func (x XDirection) String() string {
	switch x {
	case XDirectionUnknown:
		return "unknown"
	case XDirectionTowardWrist:
		return "toward_wrist"
	case XDirectionTowardElbow:
		return "toward_elbow"
	default:
		return fmt.Sprintf("xdirection(%d)", uint8(x))
	}
}

func (x XDirection) valid() bool {
	return x <= XDirectionTowardElbow
}

// Pose is a gesture classified on the device.
type Pose uint8

const (
	PoseRest          Pose = 0
	PoseFist          Pose = 1
	PoseWaveIn        Pose = 2
	PoseWaveOut       Pose = 3
	PoseFingersSpread Pose = 4
	PoseThumbToPinky  Pose = 5
	PoseUnknown       Pose = 255
)

func (p Pose) String() string {
	switch p {
	case PoseRest:
		return "rest"
	case PoseFist:
		return "fist"
	case PoseWaveIn:
		return "wave_in"
	case PoseWaveOut:
		return "wave_out"
	case PoseFingersSpread:
		return "fingers_spread"
	case PoseThumbToPinky:
		return "thumb_to_pinky"
	case PoseUnknown:
		return "unknown"
	default:
		return fmt.Sprintf("pose(%d)", uint8(p))
	}
}

func (p Pose) valid() bool {
	return p <= PoseThumbToPinky || p == PoseUnknown
}

// MuscleSample is one EMG notification. Moving is a per-sensor motion
// bitmask reported alongside the readings.
type MuscleSample struct {
	EMG    [8]uint16
	Moving uint8
}

type InertialSample struct {
	Quaternion [4]int16
	Accel      [3]int16
	Gyro       [3]int16
}

type PoseEvent struct {
	Pose Pose
}

// LimbEvent reports the band being put on (Arm set) or taken off
// (ArmUnknown, XDirectionUnknown).
type LimbEvent struct {
	Arm        Arm
	XDirection XDirection
}

// OnArm reports whether the band is worn.
func (e LimbEvent) OnArm() bool {
	return e.Arm != ArmUnknown
}
