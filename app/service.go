package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/kilianp07/cellsim/api/sessions"
	"github.com/kilianp07/cellsim/config"
	"github.com/kilianp07/cellsim/core/curve"
	"github.com/kilianp07/cellsim/core/ecm"
	coremetrics "github.com/kilianp07/cellsim/core/metrics"
	coremon "github.com/kilianp07/cellsim/core/monitoring"
	"github.com/kilianp07/cellsim/core/session"
	"github.com/kilianp07/cellsim/infra/logger"
	"github.com/kilianp07/cellsim/infra/metrics"
	"github.com/kilianp07/cellsim/infra/monitoring"
	"github.com/kilianp07/cellsim/infra/mqtt"
	"github.com/kilianp07/cellsim/internal/eventbus"
)

// Service runs the session registry behind the HTTP API and, when a broker is
// configured, the MQTT controller.
type Service struct {
	Registry *session.Registry

	cfg     *config.Config
	bus     *eventbus.TypedBus[session.Event]
	sink    coremetrics.MetricsSink
	mon     coremon.Monitor
	api     *sessions.Server
	mqttCli *mqtt.Client
	log     *logger.ZerologLogger
}

// New creates a Service from the configuration. Every new session starts
// with the configured curve and circuit.
func New(ctx context.Context, cfg *config.Config) (*Service, error) {
	logg, err := logger.NewWithOptions("service", logger.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	if err != nil {
		return nil, err
	}
	mon, err := monitoring.NewSentryMonitor(cfg.Sentry)
	if err != nil {
		return nil, fmt.Errorf("sentry: %w", err)
	}
	sink, err := coremetrics.NewMetricsSink(cfg.Metrics.Sinks)
	if err != nil {
		return nil, fmt.Errorf("metrics sinks: %w", err)
	}
	integrator, err := ecm.NewIntegrator(cfg.Simulation)
	if err != nil {
		return nil, fmt.Errorf("simulation: %w", err)
	}
	c, err := LoadCurve(ctx, cfg.Cell)
	if err != nil {
		return nil, err
	}

	bus := eventbus.NewTyped[session.Event]()
	sessLog := logg.Component("session")
	reg := session.NewRegistry(func(id string) *session.Session {
		s := session.New(
			session.WithID(id),
			session.WithLogger(logger.ForSession(sessLog, id)),
			session.WithObserver(bus),
			session.WithIntegrator(integrator),
		)
		if err := s.SetCurve(c); err != nil {
			sessLog.Errorf("session %s: default curve: %v", id, err)
			return s
		}
		if _, err := s.Configure(cfg.Cell.ECM); err != nil {
			sessLog.Errorf("session %s: default config: %v", id, err)
		}
		return s
	})

	svc := &Service{
		Registry: reg,
		cfg:      cfg,
		bus:      bus,
		sink:     sink,
		mon:      mon,
		log:      logg,
	}
	svc.api = sessions.New(reg, cfg.Server.Addr, logg.Component("http"))
	svc.api.Handle("GET /metrics", metrics.Handler(nil))

	if cfg.MQTT.Enabled() {
		cli, err := mqtt.NewClient(cfg.MQTT)
		if err != nil {
			return nil, fmt.Errorf("mqtt client: %w", err)
		}
		svc.mqttCli = cli
	}
	return svc, nil
}

// LoadCurve fetches the samples of the configured curve source.
func LoadCurve(ctx context.Context, cfg config.CellConfig) (*curve.Curve, error) {
	src, err := cfg.CurveSource()
	if err != nil {
		return nil, fmt.Errorf("curve source: %w", err)
	}
	samples, err := src.Samples(ctx)
	if err != nil {
		return nil, fmt.Errorf("curve source %s: %w", cfg.Curve.Type, err)
	}
	return curve.New(samples)
}

// Run starts the service and blocks until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	defer s.mon.Recover()
	done := metrics.StartEventCollector(ctx, s.bus, s.sink,
		metrics.WithMonitor(s.mon),
		metrics.WithLogger(s.log.Component("metrics")),
	)
	defer func() { <-done }()

	if s.mqttCli != nil {
		ctrl := mqtt.NewController(s.mqttCli, s.Registry, s.cfg.MQTT,
			mqtt.WithControllerLogger(s.log.Component("mqtt")),
			mqtt.WithControllerMonitor(s.mon),
		)
		mqttDone, err := ctrl.Start(ctx, s.bus)
		if err != nil {
			return err
		}
		defer func() { <-mqttDone }()
	}
	if addr := s.cfg.Metrics.PrometheusAddr; addr != "" && addr != s.cfg.Server.Addr {
		go func() {
			if err := metrics.StartPromServer(ctx, addr); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}
	if err := s.api.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

// Handler exposes the HTTP API for tests and embedding.
func (s *Service) Handler() http.Handler { return s.api.Handler() }

// Close releases resources held by the service.
func (s *Service) Close() error {
	s.Registry.Close()
	s.bus.Close()
	if s.mqttCli != nil {
		s.mqttCli.Disconnect()
	}
	if c, ok := s.sink.(interface{ Close() }); ok {
		c.Close()
	}
	s.mon.Flush(2 * time.Second)
	return nil
}
