package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/skobkin/myolink/internal/app"
	"github.com/skobkin/myolink/internal/bus"
	"github.com/skobkin/myolink/internal/config"
	"github.com/skobkin/myolink/internal/connectors"
	"github.com/skobkin/myolink/internal/logging"
	"github.com/skobkin/myolink/internal/myo"
	"github.com/skobkin/myolink/internal/transport"
)

const rateReportInterval = 5 * time.Second

type options struct {
	configPath       string
	port             string
	emgHz            int
	imuHz            int
	logLevel         string
	handshakeTimeout string
	listenFor        time.Duration
	vibrate          int
	version          bool
}

func main() {
	if err := run(); err != nil {
		slog.Error("run myostream", "error", err)
		os.Exit(1)
	}
}

func parseFlags(fs *flag.FlagSet, args []string) (options, error) {
	var opts options
	fs.StringVar(&opts.configPath, "config", "", "config file path (default: user config dir)")
	fs.StringVar(&opts.port, "port", "", "dongle serial port; detected by USB id when empty")
	fs.IntVar(&opts.emgHz, "emg-hz", 0, "EMG sample rate in Hz")
	fs.IntVar(&opts.imuHz, "imu-hz", 0, "IMU sample rate in Hz")
	fs.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error")
	fs.StringVar(&opts.handshakeTimeout, "handshake-timeout", "", "handshake timeout, e.g. 30s; 0 waits forever")
	fs.DurationVar(&opts.listenFor, "listen-for", 0, "stream duration, e.g. 30s; 0 streams until interrupt")
	fs.IntVar(&opts.vibrate, "vibrate", 0, "vibrate after connect: 1 short, 2 medium, 3 long")
	fs.BoolVar(&opts.version, "version", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if opts.vibrate < 0 || opts.vibrate > 3 {
		return options{}, fmt.Errorf("vibrate must be 0..3: %d", opts.vibrate)
	}

	return opts, nil
}

// applyOverrides copies command line values over the loaded config.
func applyOverrides(cfg *config.AppConfig, opts options) {
	if port := strings.TrimSpace(opts.port); port != "" {
		cfg.Connection.SerialPort = port
	}
	if opts.emgHz > 0 {
		cfg.Stream.EMGRateHz = opts.emgHz
	}
	if opts.imuHz > 0 {
		cfg.Stream.IMURateHz = opts.imuHz
	}
	if level := strings.TrimSpace(opts.logLevel); level != "" {
		cfg.Logging.Level = level
	}
	if timeout := strings.TrimSpace(opts.handshakeTimeout); timeout != "" {
		cfg.Handshake.Timeout = timeout
	}
}

func run() error {
	opts, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		return err
	}
	if opts.version {
		fmt.Println(app.Banner())
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	paths, err := app.ResolvePaths()
	if err != nil {
		return fmt.Errorf("resolve paths: %w", err)
	}
	paths = paths.WithConfigFile(opts.configPath)
	cfg, err := config.Load(paths.ConfigFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	applyOverrides(&cfg, opts)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logMgr := logging.NewManager(os.Stderr)
	if err := logMgr.Configure(cfg.Logging, paths.LogFile); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	defer func() {
		if closeErr := logMgr.Close(); closeErr != nil {
			slog.Warn("close log manager", "error", closeErr)
		}
	}()
	logger := logMgr.Logger("cli")
	logger.Info("starting", "version", app.BuildVersion(), "build_date", app.BuildDateYMD(), "config", paths.ConfigFile)

	portName := cfg.Connection.SerialPort
	if portName == "" {
		portName, err = transport.DetectDongle(cfg.Connection.USBVID, cfg.Connection.USBPID)
		if err != nil {
			return fmt.Errorf("detect dongle: %w", err)
		}
	}

	b := bus.New(logMgr.Logger("bus"), bus.DefaultCapacity)
	defer b.Close()
	watch(ctx, b, logger)

	tr := transport.NewSerialTransport(portName, cfg.Connection.SerialBaud)
	rt, err := app.NewRuntime(cfg, tr, b, slog.Default())
	if err != nil {
		return err
	}

	if err := rt.Start(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
	defer func() {
		if closeErr := rt.Close(); closeErr != nil {
			logger.Warn("close runtime", "error", closeErr)
		}
	}()

	if opts.vibrate > 0 {
		if err := rt.Session().Vibrate(ctx, opts.vibrate); err != nil {
			logger.Warn("vibrate", "error", err)
		}
	}

	runCtx := ctx
	if opts.listenFor > 0 {
		logger.Info("listen mode", "duration", opts.listenFor)
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, opts.listenFor)
		defer cancel()
	} else {
		logger.Info("streaming until interrupt")
	}

	return rt.Run(runCtx)
}

// watch logs bus traffic until ctx is done. Samples are logged at debug
// level; a periodic summary reports the observed rates at info level.
func watch(ctx context.Context, b bus.MessageBus, logger *slog.Logger) {
	statusSub := b.Subscribe(connectors.TopicConnStatus)
	sensorSub := b.Subscribe(connectors.SensorTopics...)

	go func() {
		ticker := time.NewTicker(rateReportInterval)
		defer ticker.Stop()
		var counts rateCounter

		for {
			select {
			case <-ctx.Done():
				b.Unsubscribe(statusSub)
				b.Unsubscribe(sensorSub)
				return
			case raw, ok := <-statusSub:
				if !ok {
					return
				}
				if status, ok := raw.(connectors.ConnectionStatus); ok {
					logger.Info("conn", "state", status.State, "transport", status.TransportName, "target", status.Target,
						"band", status.Band, "firmware", status.Firmware, "negotiation", status.Negotiation, "error", status.Err)
				}
			case raw, ok := <-sensorSub:
				if !ok {
					return
				}
				counts.observe(raw)
				logSensor(logger, raw)
			case <-ticker.C:
				if counts.muscle > 0 || counts.inertial > 0 {
					logger.Info("stream rates",
						"emg_hz", counts.muscle/int(rateReportInterval/time.Second),
						"imu_hz", counts.inertial/int(rateReportInterval/time.Second),
						"decode_errors", counts.problems)
				}
				counts = rateCounter{}
			}
		}
	}()
}

type rateCounter struct {
	muscle   int
	inertial int
	problems int
}

func (c *rateCounter) observe(raw any) {
	switch raw.(type) {
	case myo.MuscleSample:
		c.muscle++
	case myo.InertialSample:
		c.inertial++
	case *myo.DecodeError:
		c.problems++
	}
}

func logSensor(logger *slog.Logger, raw any) {
	switch ev := raw.(type) {
	case myo.MuscleSample:
		logger.Debug("emg", "values", ev.EMG, "moving", ev.Moving)
	case myo.InertialSample:
		logger.Debug("imu", "quat", ev.Quaternion, "accel", ev.Accel, "gyro", ev.Gyro)
	case myo.PoseEvent:
		logger.Info("pose", "pose", ev.Pose.String())
	case myo.LimbEvent:
		logger.Info("arm", "arm", ev.Arm.String(), "x_direction", ev.XDirection.String(), "on_arm", ev.OnArm())
	case *myo.DecodeError:
		logger.Debug("decode error", "attr", ev.Attr, "kind", ev.Kind, "error", ev.Err)
	}
}
