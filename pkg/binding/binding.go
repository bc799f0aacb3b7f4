// Package binding is the flat host-facing surface of a single simulation
// session. No error or panic crosses it: failures turn into sentinel values
// (false, NaN or an {"error": ...} document) and LastError describes the
// most recent one.
package binding

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/kilianp07/cellsim/core/curve"
	"github.com/kilianp07/cellsim/core/ecm"
	corelogger "github.com/kilianp07/cellsim/core/logger"
	"github.com/kilianp07/cellsim/core/session"
)

// CurvePoints is the sample count of SampledCurveJSON.
const CurvePoints = 101

// Wrapper owns one session.
type Wrapper struct {
	s       *session.Session
	lastErr error
}

// New creates a wrapper around a fresh session.
func New(opts ...session.Option) *Wrapper {
	return &Wrapper{s: session.New(opts...)}
}

// NewWithLogger is New with a logger attached to the session.
func NewWithLogger(l corelogger.Logger) *Wrapper {
	return New(session.WithLogger(l))
}

// guard runs fn, recording its error or panic.
func (w *Wrapper) guard(fn func() error) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			w.lastErr = fmt.Errorf("internal error: %v", r)
			ok = false
		}
	}()
	w.lastErr = fn()
	return w.lastErr == nil
}

// LoadModel loads the OCV curve of a named chemistry preset. modelType is one
// of AvailableModels, "" meaning SPMe.
func (w *Wrapper) LoadModel(chemistry, modelType string) bool {
	return w.guard(func() error {
		return w.s.LoadCurveFrom(context.Background(), curve.PresetSource{Name: chemistry, Model: modelType})
	})
}

// LoadCurve loads parallel soc (fraction) and ocv (V) columns.
func (w *Wrapper) LoadCurve(soc, ocv []float64) bool {
	return w.guard(func() error { return w.s.LoadCurveColumns(soc, ocv) })
}

// LoadSimulation configures the ECM against the loaded curve.
func (w *Wrapper) LoadSimulation(cfg ecm.Config) bool {
	return w.guard(func() error {
		_, err := w.s.Configure(cfg)
		return err
	})
}

// InitialSoC returns the SoC fraction chosen by LoadSimulation, NaN when not
// configured.
func (w *Wrapper) InitialSoC() float64 {
	v := math.NaN()
	w.guard(func() error {
		soc, err := w.s.InitialSoC()
		if err == nil {
			v = soc
		}
		return err
	})
	return v
}

// StepSimulation applies current (A, positive discharges) for dt seconds and
// returns the terminal voltage and SoC percent. Both are NaN on failure.
func (w *Wrapper) StepSimulation(current, dt float64) (voltage, socPercent float64) {
	voltage, socPercent = math.NaN(), math.NaN()
	w.guard(func() error {
		res, err := w.s.Step(current, dt)
		if err != nil {
			return err
		}
		voltage, socPercent = res.VoltageV, res.SoCPercent
		return nil
	})
	return voltage, socPercent
}

// RunSimulation steps through currents, dt seconds each, and returns the
// voltage after every successful step. It stops at the first failure.
func (w *Wrapper) RunSimulation(currents []float64, dt float64) []float64 {
	out := make([]float64, 0, len(currents))
	w.guard(func() error {
		results, err := session.Run(context.Background(), w.s, session.UniformProfile(currents, dt))
		for _, r := range results {
			out = append(out, r.VoltageV)
		}
		return err
	})
	return out
}

// GetVoltage returns the last terminal voltage, NaN before the first step.
func (w *Wrapper) GetVoltage() float64 { return w.s.Voltage() }

// GetSoC returns the last integrated SoC percent, NaN before the first step.
func (w *Wrapper) GetSoC() float64 { return w.s.SoCPercent() }

// GetEstimatedSoC returns the SoC percent read back from the last voltage
// through the OCV curve, NaN before the first step.
func (w *Wrapper) GetEstimatedSoC() float64 { return w.s.EstimatedSoCPercent() }

// SampledCurveJSON returns the loaded curve on CurvePoints points, or an
// {"error": ...} document when no curve is loaded.
func (w *Wrapper) SampledCurveJSON() string {
	var body []byte
	ok := w.guard(func() error {
		c, err := w.s.Curve()
		if err != nil {
			return err
		}
		body, err = c.SampledJSON(CurvePoints)
		return err
	})
	if !ok {
		doc, _ := json.Marshal(map[string]string{"error": w.LastError()})
		return string(doc)
	}
	return string(body)
}

// ResetSimulation returns to the configured initial state.
func (w *Wrapper) ResetSimulation() bool {
	return w.guard(w.s.Reset)
}

// AvailableChemistries lists the presets accepted by LoadModel.
func (w *Wrapper) AvailableChemistries() []string { return curve.Presets() }

// AvailableModels lists the model types accepted by LoadModel.
func (w *Wrapper) AvailableModels() []string { return curve.ModelTypes() }

// LastError describes the most recent failure, "" after a success.
func (w *Wrapper) LastError() string {
	if w.lastErr == nil {
		return ""
	}
	return w.lastErr.Error()
}

// LastErrorKind classifies the most recent failure.
func (w *Wrapper) LastErrorKind() session.Kind { return session.KindOf(w.lastErr) }

// Close releases the session.
func (w *Wrapper) Close() bool { return w.guard(w.s.Close) }
