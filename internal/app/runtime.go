package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/skobkin/myolink/internal/bgapi"
	"github.com/skobkin/myolink/internal/bus"
	"github.com/skobkin/myolink/internal/config"
	"github.com/skobkin/myolink/internal/connectors"
	"github.com/skobkin/myolink/internal/dispatch"
	"github.com/skobkin/myolink/internal/myo"
	"github.com/skobkin/myolink/internal/transport"
)

const (
	runPollTimeout    = 500 * time.Millisecond
	disconnectTimeout = 2 * time.Second
)

// Runtime wires the dongle transport, the BGAPI link and the band session
// together and republishes everything the session reports on the bus.
//
// Start, Run and Close must be called from the same goroutine.
type Runtime struct {
	cfg      config.AppConfig
	tr       transport.Transport
	bus      bus.MessageBus
	base     *slog.Logger
	logger   *slog.Logger
	linkOpts []bgapi.LinkOption

	link    *bgapi.Link
	session *myo.Session
	status  connectors.ConnectionStatus
}

type RuntimeOption func(*Runtime)

func WithLinkOptions(opts ...bgapi.LinkOption) RuntimeOption {
	return func(r *Runtime) {
		r.linkOpts = append(r.linkOpts, opts...)
	}
}

func NewRuntime(cfg config.AppConfig, tr transport.Transport, b bus.MessageBus, logger *slog.Logger, opts ...RuntimeOption) (*Runtime, error) {
	if tr == nil {
		return nil, errors.New("transport is required")
	}
	if b == nil {
		return nil, errors.New("message bus is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	r := &Runtime{
		cfg:    cfg,
		tr:     tr,
		bus:    b,
		base:   logger,
		logger: logger.With("component", "app"),
		status: ConnectionStatusFromConfig(cfg.Connection),
	}
	for _, opt := range opts {
		opt(r)
	}

	return r, nil
}

// Session returns the band session after Start succeeded, nil otherwise.
func (r *Runtime) Session() *myo.Session {
	return r.session
}

// Status returns the last published connection status.
func (r *Runtime) Status() connectors.ConnectionStatus {
	return r.status
}

// Start opens the transport and runs the band handshake. The handshake is
// bounded by the configured timeout on top of ctx. On failure everything
// opened so far is released.
func (r *Runtime) Start(ctx context.Context) error {
	if r.session != nil {
		return errors.New("runtime already started")
	}

	r.publishStatus(connectors.ConnectionStateConnecting, nil)
	if err := r.tr.Connect(ctx); err != nil {
		r.publishStatus(connectors.ConnectionStateDisconnected, err)
		return fmt.Errorf("connect transport: %w", err)
	}

	link := bgapi.NewLink(r.tr, r.base, r.linkOpts...)
	session, err := myo.NewSession(link, r.cfg.StreamParams(), r.base)
	if err != nil {
		_ = link.Close()
		r.publishStatus(connectors.ConnectionStateDisconnected, err)
		return err
	}
	r.link, r.session = link, session
	r.bridge(session)

	hctx := ctx
	if timeout, _ := r.cfg.HandshakeTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		hctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if err := session.Connect(hctx); err != nil {
		if closeErr := r.shutdown(); closeErr != nil {
			r.logger.Warn("release after failed handshake", "error", closeErr)
		}
		r.publishStatus(connectors.ConnectionStateDisconnected, err)
		return err
	}
	r.publishStatus(connectors.ConnectionStateConnected, nil)

	return nil
}

// Run pumps the session until ctx is done, which is not an error, or the
// link fails.
func (r *Runtime) Run(ctx context.Context) error {
	if r.session == nil {
		return myo.ErrNotConnected
	}

	for {
		if err := r.session.Run(ctx, runPollTimeout); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			r.publishStatus(connectors.ConnectionStateDisconnected, err)
			return fmt.Errorf("stream: %w", err)
		}
	}
}

// Close disconnects the band and closes the transport. It is a no-op before
// Start.
func (r *Runtime) Close() error {
	if r.session == nil {
		return nil
	}

	err := r.shutdown()
	r.publishStatus(connectors.ConnectionStateDisconnected, nil)

	return err
}

func (r *Runtime) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), disconnectTimeout)
	defer cancel()

	var errs []error
	if err := r.session.Disconnect(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := r.link.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close link: %w", err))
	}
	r.session, r.link = nil, nil

	return errors.Join(errs...)
}

func (r *Runtime) bridge(s *myo.Session) {
	s.OnMuscle(publishTo[myo.MuscleSample](r.bus, connectors.TopicMuscle))
	s.OnInertial(publishTo[myo.InertialSample](r.bus, connectors.TopicInertial))
	s.OnPose(publishTo[myo.PoseEvent](r.bus, connectors.TopicPose))
	s.OnLimb(publishTo[myo.LimbEvent](r.bus, connectors.TopicLimb))
	s.OnDecodeError(publishTo[*myo.DecodeError](r.bus, connectors.TopicDecodeError))
}

func publishTo[E any](b bus.MessageBus, topic string) dispatch.Handler[E] {
	return func(e E) error {
		b.Publish(topic, e)
		return nil
	}
}

func (r *Runtime) publishStatus(state connectors.ConnectionState, err error) {
	st := ConnectionStatusFromConfig(r.cfg.Connection)
	st.State = state
	st.TransportName = r.tr.Name()
	if resolver, ok := r.tr.(transport.StatusTargetResolver); ok {
		if target := strings.TrimSpace(resolver.StatusTarget()); target != "" {
			st.Target = target
		}
	}
	if err != nil {
		st.Err = err.Error()
	}
	if state == connectors.ConnectionStateConnected && r.session != nil {
		st.Band = r.session.Address().String()
		st.Firmware = r.session.Firmware().String()
		st.Negotiation = r.session.Negotiation()
	}

	r.status = st
	r.logger.Info("connection status", "state", st.State, "target", st.Target, "error", st.Err)
	r.bus.Publish(connectors.TopicConnStatus, st)
}
