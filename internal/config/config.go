package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/skobkin/myolink/internal/myo"
	"github.com/skobkin/myolink/internal/transport"
)

const (
	DefaultHandshakeTimeout = "30s"
	defaultLogLevel         = "info"
)

// LoggingConfig defines runtime logging behavior.
type LoggingConfig struct {
	Level     string `json:"level"`
	LogToFile bool   `json:"log_to_file"`
}

// ConnectionConfig describes how to reach the BLED112 dongle. An empty
// SerialPort means the port is detected by USB vendor/product ID.
type ConnectionConfig struct {
	SerialPort string `json:"serial_port"`
	SerialBaud int    `json:"serial_baud"`
	USBVID     string `json:"usb_vid"`
	USBPID     string `json:"usb_pid"`
}

// StreamConfig holds the sensor stream parameters sent to the band.
type StreamConfig struct {
	EMGRateHz    int `json:"emg_rate_hz"`
	EMGSmoothing int `json:"emg_smoothing"`
	IMURateHz    int `json:"imu_rate_hz"`
}

// HandshakeConfig bounds the scan/connect/negotiate sequence.
type HandshakeConfig struct {
	Timeout string `json:"timeout"`
}

// AppConfig is the root persisted application configuration.
type AppConfig struct {
	Connection ConnectionConfig `json:"connection"`
	Stream     StreamConfig     `json:"stream"`
	Handshake  HandshakeConfig  `json:"handshake"`
	Logging    LoggingConfig    `json:"logging"`
}

func Default() AppConfig {
	return AppConfig{
		Connection: ConnectionConfig{
			SerialPort: "",
			SerialBaud: transport.DefaultSerialBaud,
			USBVID:     transport.DefaultDongleVID,
			USBPID:     transport.DefaultDonglePID,
		},
		Stream: StreamConfig{
			EMGRateHz:    myo.DefaultEMGRateHz,
			EMGSmoothing: myo.DefaultEMGSmoothing,
			IMURateHz:    myo.DefaultIMURateHz,
		},
		Handshake: HandshakeConfig{
			Timeout: DefaultHandshakeTimeout,
		},
		Logging: LoggingConfig{
			Level:     defaultLogLevel,
			LogToFile: false,
		},
	}
}

func Load(path string) (AppConfig, error) {
	cfg := Default()
	cleanPath := filepath.Clean(path)
	// #nosec G304 -- path is resolved by app runtime or given on the command line.
	raw, err := os.ReadFile(cleanPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}

		return AppConfig{}, fmt.Errorf("read config: %w", err)
	}

	if err := json.Unmarshal(raw, &cfg); err != nil {
		return AppConfig{}, fmt.Errorf("decode config json: %w", err)
	}

	cfg.FillMissingDefaults()

	return cfg, nil
}

// FillMissingDefaults replaces zero values with defaults. Explicit but
// invalid values are left for Validate to report.
func (c *AppConfig) FillMissingDefaults() {
	c.Connection.SerialPort = strings.TrimSpace(c.Connection.SerialPort)
	if c.Connection.SerialBaud == 0 {
		c.Connection.SerialBaud = transport.DefaultSerialBaud
	}
	if strings.TrimSpace(c.Connection.USBVID) == "" {
		c.Connection.USBVID = transport.DefaultDongleVID
	}
	if strings.TrimSpace(c.Connection.USBPID) == "" {
		c.Connection.USBPID = transport.DefaultDonglePID
	}
	if c.Stream.EMGRateHz == 0 {
		c.Stream.EMGRateHz = myo.DefaultEMGRateHz
	}
	if c.Stream.EMGSmoothing == 0 {
		c.Stream.EMGSmoothing = myo.DefaultEMGSmoothing
	}
	if c.Stream.IMURateHz == 0 {
		c.Stream.IMURateHz = myo.DefaultIMURateHz
	}
	if strings.TrimSpace(c.Handshake.Timeout) == "" {
		c.Handshake.Timeout = DefaultHandshakeTimeout
	}
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func (c AppConfig) Validate() error {
	if c.Connection.SerialBaud <= 0 {
		return errors.New("serial baud must be positive")
	}
	if c.Connection.SerialPort == "" {
		if strings.TrimSpace(c.Connection.USBVID) == "" || strings.TrimSpace(c.Connection.USBPID) == "" {
			return errors.New("usb vid and pid are required when serial port is empty")
		}
	}
	if err := c.StreamParams().Validate(); err != nil {
		return err
	}
	if _, err := c.HandshakeTimeout(); err != nil {
		return err
	}

	return nil
}

// StreamParams converts the stream section into negotiation parameters.
func (c AppConfig) StreamParams() myo.StreamParams {
	return myo.StreamParams{
		EMGRateHz:    c.Stream.EMGRateHz,
		EMGSmoothing: c.Stream.EMGSmoothing,
		IMURateHz:    c.Stream.IMURateHz,
	}
}

// HandshakeTimeout parses the handshake timeout. Zero disables the bound.
func (c AppConfig) HandshakeTimeout() (time.Duration, error) {
	raw := strings.TrimSpace(c.Handshake.Timeout)
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("parse handshake timeout: %w", err)
	}
	if d < 0 {
		return 0, fmt.Errorf("handshake timeout must not be negative: %s", raw)
	}

	return d, nil
}

func Save(path string, cfg AppConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	raw, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, raw, 0o600); err != nil {
		return fmt.Errorf("write temp config: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp config: %w", err)
	}

	return nil
}
