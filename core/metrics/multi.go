package metrics

import "errors"

// MultiSink fans records out to several sinks. Every sink is called even when
// an earlier one fails; the errors are joined.
type MultiSink struct {
	Sinks []MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordStep forwards the record to all sinks.
func (m *MultiSink) RecordStep(rec StepRecord) error {
	var errs []error
	for _, s := range m.Sinks {
		errs = append(errs, s.RecordStep(rec))
	}
	return errors.Join(errs...)
}

// RecordFailure forwards the record to sinks implementing FailureRecorder.
func (m *MultiSink) RecordFailure(rec FailureRecord) error {
	var errs []error
	for _, s := range m.Sinks {
		if r, ok := s.(FailureRecorder); ok {
			errs = append(errs, r.RecordFailure(rec))
		}
	}
	return errors.Join(errs...)
}

// RecordAdjustment forwards the record to sinks implementing
// AdjustmentRecorder.
func (m *MultiSink) RecordAdjustment(rec AdjustmentRecord) error {
	var errs []error
	for _, s := range m.Sinks {
		if r, ok := s.(AdjustmentRecorder); ok {
			errs = append(errs, r.RecordAdjustment(rec))
		}
	}
	return errors.Join(errs...)
}

// RemoveSession forwards to sinks implementing SessionRemover.
func (m *MultiSink) RemoveSession(id string) error {
	var errs []error
	for _, s := range m.Sinks {
		if r, ok := s.(SessionRemover); ok {
			errs = append(errs, r.RemoveSession(id))
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink that holds resources.
func (m *MultiSink) Close() {
	for _, s := range m.Sinks {
		if c, ok := s.(interface{ Close() }); ok {
			c.Close()
		}
	}
}
