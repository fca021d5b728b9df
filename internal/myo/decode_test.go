package myo

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeMuscleSampleIsPure(t *testing.T) {
	want := [8]uint16{0, 1, 255, 256, 1000, 0x7FFF, 0x8000, 0xFFFF}
	payload := make([]byte, 0, 17)
	for _, v := range want {
		payload = binary.LittleEndian.AppendUint16(payload, v)
	}
	payload = append(payload, 0x5A)

	first, err := DecodeMuscleSample(payload)
	require.NoError(t, err)
	second, err := DecodeMuscleSample(payload)
	require.NoError(t, err)

	assert.Equal(t, want, first.EMG)
	assert.Equal(t, uint8(0x5A), first.Moving)
	assert.Equal(t, first, second)
}

func TestDecodeMuscleSampleRejectsWrongLength(t *testing.T) {
	_, err := DecodeMuscleSample(make([]byte, 16))
	assert.ErrorIs(t, err, ErrPayloadLength)
	_, err = DecodeMuscleSample(make([]byte, 18))
	assert.ErrorIs(t, err, ErrPayloadLength)
}

func TestDecodeInertialSampleSplitsInOrder(t *testing.T) {
	vals := []int16{1, -2, 3, -4, 100, -200, 300, -1000, 2000, -32768}
	payload := make([]byte, 0, 20)
	for _, v := range vals {
		// #nosec G115 -- test data.
		payload = binary.LittleEndian.AppendUint16(payload, uint16(v))
	}

	got, err := DecodeInertialSample(payload)
	require.NoError(t, err)

	assert.Equal(t, [4]int16{1, -2, 3, -4}, got.Quaternion)
	assert.Equal(t, [3]int16{100, -200, 300}, got.Accel)
	assert.Equal(t, [3]int16{-1000, 2000, -32768}, got.Gyro)
}

func TestDecodeInertialSampleRejectsWrongLength(t *testing.T) {
	_, err := DecodeInertialSample(make([]byte, 19))
	assert.ErrorIs(t, err, ErrPayloadLength)
}

func TestDecodeClassifierOnArm(t *testing.T) {
	got, err := DecodeClassifier([]byte{1, byte(ArmLeft), byte(XDirectionTowardElbow)})
	require.NoError(t, err)
	require.NotNil(t, got.Limb)
	assert.Nil(t, got.Pose)
	assert.Equal(t, LimbEvent{Arm: ArmLeft, XDirection: XDirectionTowardElbow}, *got.Limb)
	assert.True(t, got.Limb.OnArm())
}

func TestDecodeClassifierOffArmIgnoresOtherBytes(t *testing.T) {
	for _, tail := range [][2]byte{{0, 0}, {1, 2}, {0xFF, 0xFF}, {7, 9}} {
		got, err := DecodeClassifier([]byte{2, tail[0], tail[1]})
		require.NoError(t, err)
		require.NotNil(t, got.Limb)
		assert.Equal(t, LimbEvent{Arm: ArmUnknown, XDirection: XDirectionUnknown}, *got.Limb)
		assert.False(t, got.Limb.OnArm())
	}
}

func TestDecodeClassifierPose(t *testing.T) {
	got, err := DecodeClassifier([]byte{3, byte(PoseWaveOut), 0})
	require.NoError(t, err)
	require.NotNil(t, got.Pose)
	assert.Equal(t, PoseWaveOut, got.Pose.Pose)

	got, err = DecodeClassifier([]byte{3, 255, 0})
	require.NoError(t, err)
	assert.Equal(t, PoseUnknown, got.Pose.Pose)
}

func TestDecodeClassifierMalformed(t *testing.T) {
	_, err := DecodeClassifier([]byte{1, 9, 0})
	assert.ErrorIs(t, err, ErrInvalidValue)

	_, err = DecodeClassifier([]byte{3, 42, 0})
	assert.ErrorIs(t, err, ErrInvalidValue)

	_, err = DecodeClassifier([]byte{3, 1})
	assert.ErrorIs(t, err, ErrPayloadLength)
}

func TestDecodeClassifierUnmodelledSubtype(t *testing.T) {
	got, err := DecodeClassifier([]byte{5, 0, 0})
	require.NoError(t, err)
	assert.Nil(t, got.Limb)
	assert.Nil(t, got.Pose)
}

func TestStreamParamsRecord(t *testing.T) {
	rec := DefaultStreamParams().Record()
	assert.Equal(t, []byte{2, 9, 2, 1, 0xE8, 0x03, 100, 20, 50, 0, 0}, rec)
}

func TestStreamParamsValidate(t *testing.T) {
	require.NoError(t, DefaultStreamParams().Validate())

	bad := []StreamParams{
		{EMGRateHz: 0, EMGSmoothing: 100, IMURateHz: 50},
		{EMGRateHz: 2000, EMGSmoothing: 100, IMURateHz: 50},
		{EMGRateHz: 3, EMGSmoothing: 100, IMURateHz: 50},
		{EMGRateHz: 50, EMGSmoothing: 300, IMURateHz: 50},
		{EMGRateHz: 50, EMGSmoothing: 100, IMURateHz: 0},
	}
	for _, p := range bad {
		assert.Error(t, p.Validate(), "%+v", p)
	}
}

func TestParseFirmwareVersion(t *testing.T) {
	v, err := parseFirmwareVersion([]byte{1, 0, 5, 0, 0xB2, 0x07, 2, 0})
	require.NoError(t, err)
	assert.Equal(t, FirmwareVersion{Major: 1, Minor: 5, Patch: 1970, Hardware: 2}, v)
	assert.Equal(t, "1.5.1970.2", v.String())
	assert.False(t, v.Legacy())

	_, err = parseFirmwareVersion([]byte{1, 0})
	assert.ErrorIs(t, err, ErrPayloadLength)
}

func TestEnumStrings(t *testing.T) {
	assert.Equal(t, "left", ArmLeft.String())
	assert.Equal(t, "toward_wrist", XDirectionTowardWrist.String())
	assert.Equal(t, "fingers_spread", PoseFingersSpread.String())
	assert.Equal(t, "pose(42)", Pose(42).String())
}
