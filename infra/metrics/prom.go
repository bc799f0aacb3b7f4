package metrics

import (
	"errors"

	coremetrics "github.com/kilianp07/cellsim/core/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

// PromSink exposes simulation steps as Prometheus metrics, labelled by
// session.
type PromSink struct {
	steps       *prometheus.CounterVec
	failures    *prometheus.CounterVec
	adjustments *prometheus.CounterVec
	cutoffs     *prometheus.CounterVec
	voltage     *prometheus.GaugeVec
	soc         *prometheus.GaugeVec
	duration    prometheus.Histogram
}

// NewPromSink registers the metrics on the default Prometheus registerer.
// The /metrics endpoint is served separately by StartPromServer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer. Collectors
// already registered by an earlier sink are reused.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cell_steps_total",
			Help: "Number of successful simulation steps",
		}, []string{"session"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cell_step_failures_total",
			Help: "Number of failed simulation steps by error kind",
		}, []string{"session", "kind"}),
		adjustments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cell_soc_adjustments_total",
			Help: "Number of times the state of charge was clamped into [0,1]",
		}, []string{"session"}),
		cutoffs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cell_cutoff_reached_total",
			Help: "Steps ending with the terminal voltage outside the cutoffs",
		}, []string{"session"}),
		voltage: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cell_terminal_voltage_volts",
			Help: "Terminal voltage after the last step",
		}, []string{"session"}),
		soc: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cell_soc_percent",
			Help: "State of charge after the last step",
		}, []string{"session"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cell_step_duration_seconds",
			Help:    "Wall time spent integrating one step",
			Buckets: prometheus.ExponentialBuckets(1e-6, 4, 10),
		}),
	}
	var err error
	if s.steps, err = register(reg, s.steps); err != nil {
		return nil, err
	}
	if s.failures, err = register(reg, s.failures); err != nil {
		return nil, err
	}
	if s.adjustments, err = register(reg, s.adjustments); err != nil {
		return nil, err
	}
	if s.cutoffs, err = register(reg, s.cutoffs); err != nil {
		return nil, err
	}
	if s.voltage, err = register(reg, s.voltage); err != nil {
		return nil, err
	}
	if s.soc, err = register(reg, s.soc); err != nil {
		return nil, err
	}
	if s.duration, err = register(reg, s.duration); err != nil {
		return nil, err
	}
	return s, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// RecordStep updates the step counters and gauges.
func (s *PromSink) RecordStep(rec coremetrics.StepRecord) error {
	s.steps.WithLabelValues(rec.SessionID).Inc()
	s.voltage.WithLabelValues(rec.SessionID).Set(rec.VoltageV)
	s.soc.WithLabelValues(rec.SessionID).Set(rec.SoCPercent)
	if rec.CutoffReached {
		s.cutoffs.WithLabelValues(rec.SessionID).Inc()
	}
	if rec.Duration > 0 {
		s.duration.Observe(rec.Duration.Seconds())
	}
	return nil
}

// RecordFailure increments the failure counter for the error kind.
func (s *PromSink) RecordFailure(rec coremetrics.FailureRecord) error {
	s.failures.WithLabelValues(rec.SessionID, rec.Kind).Inc()
	return nil
}

// RecordAdjustment increments the adjustment counter.
func (s *PromSink) RecordAdjustment(rec coremetrics.AdjustmentRecord) error {
	s.adjustments.WithLabelValues(rec.SessionID).Inc()
	return nil
}

// RemoveSession deletes every series labelled with the session id.
func (s *PromSink) RemoveSession(id string) error {
	labels := prometheus.Labels{"session": id}
	for _, v := range []*prometheus.CounterVec{s.steps, s.failures, s.adjustments, s.cutoffs} {
		v.DeletePartialMatch(labels)
	}
	s.voltage.DeletePartialMatch(labels)
	s.soc.DeletePartialMatch(labels)
	return nil
}
