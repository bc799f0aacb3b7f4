package metrics

import "time"

// StepRecord describes one successful simulation step.
type StepRecord struct {
	SessionID     string
	SimTime       float64
	CurrentA      float64
	VoltageV      float64
	OCVV          float64
	SoCPercent    float64
	VR1           float64
	VR2           float64
	CutoffReached bool
	Duration      time.Duration
	Time          time.Time
}

// MetricsSink records simulation steps for observability purposes.
type MetricsSink interface {
	RecordStep(rec StepRecord) error
}

// FailureRecord describes a failed step.
type FailureRecord struct {
	SessionID string
	Kind      string
	Error     string
	CurrentA  float64
	DtS       float64
	Time      time.Time
}

// FailureRecorder records failed steps.
type FailureRecorder interface {
	RecordFailure(rec FailureRecord) error
}

// AdjustmentRecord describes a SoC clamped back into range before a step.
type AdjustmentRecord struct {
	SessionID string
	From      float64
	To        float64
	Time      time.Time
}

// AdjustmentRecorder records SoC adjustments.
type AdjustmentRecorder interface {
	RecordAdjustment(rec AdjustmentRecord) error
}

// SessionRemover drops whatever a sink keeps per session once the session
// is closed.
type SessionRemover interface {
	RemoveSession(id string) error
}

// NopSink implements every recorder with no-op methods.
type NopSink struct{}

func (NopSink) RecordStep(StepRecord) error             { return nil }
func (NopSink) RecordFailure(FailureRecord) error       { return nil }
func (NopSink) RecordAdjustment(AdjustmentRecord) error { return nil }
func (NopSink) RemoveSession(string) error              { return nil }
