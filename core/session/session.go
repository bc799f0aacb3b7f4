package session

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/kilianp07/cellsim/core/curve"
	"github.com/kilianp07/cellsim/core/ecm"
	"github.com/kilianp07/cellsim/core/logger"
)

// Status is the lifecycle stage of a Session.
type Status int

const (
	StatusUninitialized Status = iota
	StatusCurveLoaded
	StatusConfigured
	StatusStepping
	StatusClosed
)

func (s Status) String() string {
	switch s {
	case StatusUninitialized:
		return "uninitialized"
	case StatusCurveLoaded:
		return "curve-loaded"
	case StatusConfigured:
		return "configured"
	case StatusStepping:
		return "stepping"
	case StatusClosed:
		return "closed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// MarshalText renders the status name in JSON and YAML.
func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// StepResult is returned by Step. VoltageV is the terminal voltage as
// computed; SoCPercent is clamped to [0,100].
type StepResult struct {
	VoltageV      float64    `json:"voltage_v"`
	SoCPercent    float64    `json:"soc_percent"`
	Sample        ecm.Sample `json:"sample"`
	CutoffReached bool       `json:"cutoff_reached"`
}

// Session simulates one cell. It is not safe for concurrent use; the
// Registry serialises access for servers.
type Session struct {
	id         string
	log        logger.Logger
	obs        Observer
	integrator *ecm.Integrator
	now        func() time.Time

	store      *curve.Store
	cfg        ecm.Config
	model      *ecm.Model
	initialSoC float64

	state        ecm.State
	last         *ecm.Sample
	bootstrapped bool
	steps        int
	status       Status
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.log = l
		}
	}
}

// WithObserver sets the event observer.
func WithObserver(o Observer) Option {
	return func(s *Session) {
		if o != nil {
			s.obs = o
		}
	}
}

// WithIntegrator replaces the default ZOH integrator.
func WithIntegrator(it *ecm.Integrator) Option {
	return func(s *Session) {
		if it != nil {
			s.integrator = it
		}
	}
}

// WithID sets the identifier carried by events.
func WithID(id string) Option {
	return func(s *Session) { s.id = id }
}

var defaultIntegrator = func() *ecm.Integrator {
	it, err := ecm.NewIntegrator(ecm.DefaultIntegratorOptions())
	if err != nil {
		panic(err)
	}
	return it
}()

// New returns an uninitialised session.
func New(opts ...Option) *Session {
	s := &Session{
		log:        logger.NopLogger{},
		obs:        nopObserver{},
		integrator: defaultIntegrator,
		now:        time.Now,
		store:      curve.NewStore(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Status returns the lifecycle stage.
func (s *Session) Status() Status { return s.status }

// LoadCurve validates samples and replaces the curve. A configured session
// returns to StatusCurveLoaded and must be configured again.
func (s *Session) LoadCurve(samples []curve.Sample) error {
	c, err := curve.New(samples)
	if err != nil {
		return err
	}
	return s.SetCurve(c)
}

// LoadCurveColumns is LoadCurve for parallel soc and ocv slices.
func (s *Session) LoadCurveColumns(soc, ocv []float64) error {
	c, err := curve.FromColumns(soc, ocv)
	if err != nil {
		return err
	}
	return s.SetCurve(c)
}

// LoadCurveFrom pulls samples from an external generator.
func (s *Session) LoadCurveFrom(ctx context.Context, src curve.Source) error {
	if s.status == StatusClosed {
		return ErrSessionClosed
	}
	samples, err := src.Samples(ctx)
	if err != nil {
		return fmt.Errorf("curve source: %w", err)
	}
	return s.LoadCurve(samples)
}

// SetCurve installs a shared, already validated curve.
func (s *Session) SetCurve(c *curve.Curve) error {
	if s.status == StatusClosed {
		return ErrSessionClosed
	}
	if c == nil {
		return fmt.Errorf("%w: nil curve", curve.ErrInvalidCurve)
	}
	s.store.Set(c)
	s.model = nil
	s.clearState()
	s.status = StatusCurveLoaded
	s.log.Infof("session %s: curve loaded with %d points", s.id, c.Len())
	return nil
}

// Curve returns the loaded curve.
func (s *Session) Curve() (*curve.Curve, error) {
	if s.status == StatusClosed {
		return nil, ErrSessionClosed
	}
	return s.store.Curve()
}

// Configure validates cfg against the loaded curve and starts a fresh state at
// the initial SoC, which is returned.
func (s *Session) Configure(cfg ecm.Config) (float64, error) {
	if s.status == StatusClosed {
		return 0, ErrSessionClosed
	}
	c, err := s.store.Curve()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ecm.ErrConfiguration, err)
	}
	m, err := ecm.NewModel(c, cfg)
	if err != nil {
		return 0, err
	}
	s.cfg = cfg
	s.model = m
	s.initialSoC = c.InitialSoC(cfg.UpperVoltageCutoff)
	s.clearState()
	s.status = StatusConfigured
	s.log.Infof("session %s: configured %dRC, initial soc %.4f", s.id, cfg.NumRCPairs, s.initialSoC)
	return s.initialSoC, nil
}

// Config returns the active configuration.
func (s *Session) Config() (ecm.Config, bool) {
	return s.cfg, s.model != nil
}

// InitialSoC returns the SoC fraction computed by Configure.
func (s *Session) InitialSoC() (float64, error) {
	if err := s.ready(); err != nil {
		return math.NaN(), err
	}
	return s.initialSoC, nil
}

// Step applies current (A, positive discharges) for dt seconds. The first
// step after Configure or Reset runs the integrator bootstrap first. On error
// the state is left untouched.
func (s *Session) Step(current, dt float64) (StepResult, error) {
	if err := s.ready(); err != nil {
		return StepResult{}, err
	}
	start := s.now()

	state := s.state
	if !s.bootstrapped {
		boot, err := s.integrator.Bootstrap(s.model, state, current)
		if err != nil {
			return StepResult{}, s.fail(err, current, dt)
		}
		s.adjusted(boot.Adjustment)
		state = boot.State
	}
	res, err := s.integrator.Advance(s.model, state, current, dt)
	if err != nil {
		return StepResult{}, s.fail(err, current, dt)
	}
	s.adjusted(res.Adjustment)

	s.state = res.State
	s.bootstrapped = true
	sample := res.Sample
	s.last = &sample
	s.steps++
	s.status = StatusStepping

	out := StepResult{
		VoltageV:      sample.Voltage,
		SoCPercent:    socPercent(sample.SoC),
		Sample:        sample,
		CutoffReached: sample.Voltage < s.cfg.LowerVoltageCutoff || sample.Voltage > s.cfg.UpperVoltageCutoff,
	}
	if out.CutoffReached {
		s.log.Warnf("session %s: terminal voltage %.4f V outside cutoffs [%g, %g]",
			s.id, out.VoltageV, s.cfg.LowerVoltageCutoff, s.cfg.UpperVoltageCutoff)
	}
	s.log.Debugw("step", map[string]any{
		"session": s.id,
		"current": current,
		"dt":      dt,
		"voltage": out.VoltageV,
		"soc":     out.SoCPercent,
	})
	s.obs.Publish(StepEvent{
		ID:            s.id,
		Sample:        sample,
		SoCPercent:    out.SoCPercent,
		CutoffReached: out.CutoffReached,
		Duration:      s.now().Sub(start),
		Time:          start,
	})
	return out, nil
}

// Voltage returns the last terminal voltage, NaN before the first step.
func (s *Session) Voltage() float64 {
	if s.last == nil {
		return math.NaN()
	}
	return s.last.Voltage
}

// SoCPercent returns the last state of charge in percent, clamped to
// [0,100]. NaN before the first step.
func (s *Session) SoCPercent() float64 {
	if s.last == nil {
		return math.NaN()
	}
	return socPercent(s.last.SoC)
}

// EstimatedSoCPercent infers the state of charge from the last terminal
// voltage through the OCV curve, as a voltage-based gauge would. NaN before
// the first step.
func (s *Session) EstimatedSoCPercent() float64 {
	if s.last == nil || s.model == nil {
		return math.NaN()
	}
	return socPercent(s.model.Curve().SoC(s.last.Voltage))
}

// LastSample returns the output of the last successful step.
func (s *Session) LastSample() (ecm.Sample, bool) {
	if s.last == nil {
		return ecm.Sample{}, false
	}
	return *s.last, true
}

// State returns the current ECM state.
func (s *Session) State() ecm.State { return s.state }

// Steps returns the number of successful steps since the last reset.
func (s *Session) Steps() int { return s.steps }

// Reset discards the state and returns to StatusConfigured. Curve and
// configuration are kept.
func (s *Session) Reset() error {
	if err := s.ready(); err != nil {
		return err
	}
	s.clearState()
	s.status = StatusConfigured
	s.log.Infof("session %s: reset", s.id)
	return nil
}

// Close releases the session. Further calls fail with ErrSessionClosed.
func (s *Session) Close() error {
	if s.status == StatusClosed {
		return ErrSessionClosed
	}
	s.clearState()
	s.model = nil
	s.status = StatusClosed
	s.obs.Publish(ClosedEvent{ID: s.id, Time: s.now()})
	return nil
}

// Snapshot is a read-only view of a session. Undefined readers hold NaN,
// which MarshalJSON renders as null.
type Snapshot struct {
	ID                  string
	Status              Status
	Config              *ecm.Config
	InitialSoC          float64
	State               ecm.State
	Steps               int
	Voltage             float64
	SoCPercent          float64
	EstimatedSoCPercent float64
}

func (s Snapshot) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID                  string      `json:"id"`
		Status              Status      `json:"status"`
		Config              *ecm.Config `json:"config,omitempty"`
		InitialSoC          *float64    `json:"initial_soc"`
		State               ecm.State   `json:"state"`
		Steps               int         `json:"steps"`
		Voltage             *float64    `json:"voltage"`
		SoCPercent          *float64    `json:"soc_percent"`
		EstimatedSoCPercent *float64    `json:"estimated_soc_percent"`
	}{
		ID:                  s.ID,
		Status:              s.Status,
		Config:              s.Config,
		InitialSoC:          finite(s.InitialSoC),
		State:               s.State,
		Steps:               s.Steps,
		Voltage:             finite(s.Voltage),
		SoCPercent:          finite(s.SoCPercent),
		EstimatedSoCPercent: finite(s.EstimatedSoCPercent),
	})
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// Snapshot captures the observable state.
func (s *Session) Snapshot() Snapshot {
	snap := Snapshot{
		ID:                  s.id,
		Status:              s.status,
		InitialSoC:          math.NaN(),
		State:               s.state,
		Steps:               s.steps,
		Voltage:             s.Voltage(),
		SoCPercent:          s.SoCPercent(),
		EstimatedSoCPercent: s.EstimatedSoCPercent(),
	}
	if s.model != nil {
		cfg := s.cfg
		snap.Config = &cfg
		snap.InitialSoC = s.initialSoC
	}
	return snap
}

func (s *Session) ready() error {
	switch {
	case s.status == StatusClosed:
		return ErrSessionClosed
	case s.model == nil:
		return ErrNotConfigured
	}
	return nil
}

func (s *Session) clearState() {
	s.state = ecm.InitialState(s.initialSoC)
	if s.model == nil {
		s.state = ecm.State{}
	}
	s.last = nil
	s.bootstrapped = false
	s.steps = 0
}

func (s *Session) adjusted(adj *ecm.Adjustment) {
	if adj == nil {
		return
	}
	s.log.Warnf("session %s: soc %.6f clamped to %.0f", s.id, adj.From, adj.To)
	s.obs.Publish(AdjustmentEvent{ID: s.id, Adjustment: *adj, Time: s.now()})
}

func (s *Session) fail(err error, current, dt float64) error {
	s.log.Errorf("session %s: step current=%g dt=%g: %v", s.id, current, dt, err)
	s.obs.Publish(FailureEvent{ID: s.id, Kind: KindOf(err), Err: err, Current: current, Dt: dt, Time: s.now()})
	return err
}

func socPercent(soc float64) float64 {
	return math.Max(0, math.Min(100, soc*100))
}
