package myo

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"strings"
)

const (
	// SampleClockHz is the rate of the underlying EMG sensor. Values above
	// 1000 make the delivered frame rate drop; much lower values make the
	// EMG signal sluggish.
	SampleClockHz = 1000

	DefaultEMGRateHz    = 50
	DefaultEMGSmoothing = 100
	DefaultIMURateHz    = 50
)

// FirmwareVersion is read from the firmware attribute right after connect.
type FirmwareVersion struct {
	Major    uint16
	Minor    uint16
	Patch    uint16
	Hardware uint16
}

func (v FirmwareVersion) String() string {
	return fmt.Sprintf("%d.%d.%d.%d", v.Major, v.Minor, v.Patch, v.Hardware)
}

// Legacy reports whether the band predates the 1.x protocol.
func (v FirmwareVersion) Legacy() bool {
	return v.Major == 0
}

func parseFirmwareVersion(value []byte) (FirmwareVersion, error) {
	if len(value) != 8 {
		return FirmwareVersion{}, fmt.Errorf("%w: firmware version wants 8 bytes, got %d", ErrPayloadLength, len(value))
	}

	return FirmwareVersion{
		Major:    binary.LittleEndian.Uint16(value[0:2]),
		Minor:    binary.LittleEndian.Uint16(value[2:4]),
		Patch:    binary.LittleEndian.Uint16(value[4:6]),
		Hardware: binary.LittleEndian.Uint16(value[6:8]),
	}, nil
}

// StreamParams configure the legacy sensor parameter record. Modern
// firmware ignores them.
type StreamParams struct {
	EMGRateHz    int
	EMGSmoothing int
	IMURateHz    int
}

func DefaultStreamParams() StreamParams {
	return StreamParams{
		EMGRateHz:    DefaultEMGRateHz,
		EMGSmoothing: DefaultEMGSmoothing,
		IMURateHz:    DefaultIMURateHz,
	}
}

func (p StreamParams) Validate() error {
	if p.EMGRateHz <= 0 || p.EMGRateHz > SampleClockHz {
		return fmt.Errorf("emg rate must be within 1..%d Hz: %d", SampleClockHz, p.EMGRateHz)
	}
	if SampleClockHz/p.EMGRateHz > 0xFF {
		return fmt.Errorf("emg rate %d Hz gives divisor above 255", p.EMGRateHz)
	}
	if p.EMGSmoothing < 0 || p.EMGSmoothing > 0xFF {
		return fmt.Errorf("emg smoothing must be within 0..255: %d", p.EMGSmoothing)
	}
	if p.IMURateHz <= 0 || p.IMURateHz > 0xFF {
		return fmt.Errorf("imu rate must be within 1..255 Hz: %d", p.IMURateHz)
	}

	return nil
}

// Record packs the legacy sensor parameter record written to the command
// attribute.
func (p StreamParams) Record() []byte {
	rec := []byte{2, 9, 2, 1}
	rec = binary.LittleEndian.AppendUint16(rec, SampleClockHz)
	// #nosec G115 -- ranges are checked by Validate.
	rec = append(rec,
		byte(p.EMGSmoothing),
		byte(SampleClockHz/p.EMGRateHz),
		byte(p.IMURateHz),
		0, 0,
	)

	return rec
}

// attributeIO is the slice of Session that negotiation needs.
type attributeIO interface {
	ReadAttribute(ctx context.Context, attr uint16) (AttributeValue, bool, error)
	WriteAttribute(ctx context.Context, attr uint16, value []byte) (bool, error)
}

// Negotiator enables streaming on a freshly connected band. One is chosen
// per connection from the firmware version and kept until disconnect.
type Negotiator interface {
	Name() string
	Negotiate(ctx context.Context, attrs attributeIO) error
}

func selectNegotiator(fw FirmwareVersion, params StreamParams, logger *slog.Logger) Negotiator {
	if fw.Legacy() {
		return legacyNegotiator{params: params}
	}

	return modernNegotiator{logger: logger}
}

type attrWrite struct {
	attr  uint16
	value []byte
}

var (
	enableNotify = []byte{0x01, 0x00}
	enableIndic  = []byte{0x02, 0x00}
)

// legacyNegotiator mirrors what the vendor desktop app sends to 0.x
// firmware. Without the parameter record the band sends no data.
type legacyNegotiator struct {
	params StreamParams
}

func (legacyNegotiator) Name() string { return "legacy" }

func (n legacyNegotiator) Negotiate(ctx context.Context, attrs attributeIO) error {
	writes := []attrWrite{
		{AttrCommand, []byte{0x01, 0x02, 0x00, 0x00}},
		{0x2f, enableNotify},
		{0x2c, enableNotify},
		{0x32, enableNotify},
		{0x35, enableNotify},
		{AttrEMGNotify, enableNotify},
		{AttrIMUNotify, enableNotify},
		{AttrCommand, n.params.Record()},
	}

	return applyWrites(ctx, attrs, writes)
}

type modernNegotiator struct {
	logger *slog.Logger
}

func (modernNegotiator) Name() string { return "modern" }

func (n modernNegotiator) Negotiate(ctx context.Context, attrs attributeIO) error {
	name, ok, err := attrs.ReadAttribute(ctx, AttrDeviceName)
	if err != nil {
		return fmt.Errorf("read device name: %w", err)
	}
	if ok {
		n.logger.Info("device name", "name", strings.TrimRight(string(name.Value), "\x00"))
	}

	writes := []attrWrite{
		{AttrIMUNotify, enableNotify},
		{AttrClassifierCCC, enableIndic},
	}
	if err := applyWrites(ctx, attrs, writes); err != nil {
		return err
	}

	return startRaw(ctx, attrs)
}

// startRaw enables raw EMG together with pose notifications on 1.x firmware
// by toggling the mode flag of the set-mode command from unset to set.
func startRaw(ctx context.Context, attrs attributeIO) error {
	return applyWrites(ctx, attrs, []attrWrite{
		{AttrEMGNotify, enableNotify},
		{AttrCommand, []byte{0x01, 0x03, 0x01, 0x01, 0x00}},
		{AttrCommand, []byte{0x01, 0x03, 0x01, 0x01, 0x01}},
	})
}

// collectionStart and collectionEnd replay the notification writes the
// vendor desktop app sends to 1.x firmware around data collection. Its mode
// commands on 0x19 are not part of the replay.
var collectionStart = []attrWrite{
	{AttrEMGNotify, enableNotify},
	{AttrIMUNotify, enableNotify},
	{AttrClassifierCCC, enableIndic},
	{AttrEMGNotify, enableNotify},
	{AttrIMUNotify, enableNotify},
	{AttrIMUNotify, enableNotify},
	{AttrEMGNotify, enableNotify},
	{AttrIMUNotify, enableNotify},
}

var collectionEnd = []attrWrite{
	{AttrEMGNotify, enableNotify},
	{AttrIMUNotify, enableNotify},
	{AttrClassifierCCC, enableIndic},
	{AttrIMUNotify, enableNotify},
	{AttrClassifierCCC, enableIndic},
	{AttrEMGNotify, enableNotify},
	{AttrIMUNotify, enableNotify},
	{AttrClassifierCCC, enableIndic},
}

func applyWrites(ctx context.Context, attrs attributeIO, writes []attrWrite) error {
	for _, w := range writes {
		if _, err := attrs.WriteAttribute(ctx, w.attr, w.value); err != nil {
			return fmt.Errorf("write attribute 0x%02X: %w", w.attr, err)
		}
	}

	return nil
}
