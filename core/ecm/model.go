package ecm

import (
	"fmt"

	"github.com/kilianp07/cellsim/core/curve"
	"gonum.org/v1/gonum/mat"
)

// Model is the continuous-time state-space form of the circuit:
//
//	x = [soc, v_r1, (v_r2)]
//	dx/dt = A x + B i
//	v = ocv(soc) - i*R0 - v_r1 - v_r2
//
// Positive current discharges the cell. A Model holds no simulation state and
// is reused for every step of a session.
type Model struct {
	curve *curve.Curve
	cfg   Config
	a     *mat.Dense
	b     *mat.VecDense
}

// Output is the observable part of the model at one instant.
type Output struct {
	OCV     float64 `json:"ocv"`
	Voltage float64 `json:"voltage"`
}

// NewModel builds the system matrices for cfg on top of c.
func NewModel(c *curve.Curve, cfg Config) (*Model, error) {
	if c == nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, curve.ErrNoCurve)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	n := 1 + cfg.NumRCPairs
	a := mat.NewDense(n, n, nil)
	b := mat.NewVecDense(n, nil)

	b.SetVec(0, -1/(cfg.NominalCapacityAh*3600))
	a.Set(1, 1, -1/(cfg.R1*cfg.C1))
	b.SetVec(1, 1/cfg.C1)
	if cfg.NumRCPairs == 2 {
		a.Set(2, 2, -1/(cfg.R2*cfg.C2))
		b.SetVec(2, 1/cfg.C2)
	}
	return &Model{curve: c, cfg: cfg, a: a, b: b}, nil
}

// Dim is the number of state variables.
func (m *Model) Dim() int { return 1 + m.cfg.NumRCPairs }

// Config returns the parameters the model was built with.
func (m *Model) Config() Config { return m.cfg }

// Curve returns the OCV curve the model reads.
func (m *Model) Curve() *curve.Curve { return m.curve }

// System returns copies of A and B.
func (m *Model) System() (*mat.Dense, *mat.VecDense) {
	return mat.DenseCopyOf(m.a), mat.VecDenseCopyOf(m.b)
}

// Derivatives evaluates dx/dt at s for a constant current.
func (m *Model) Derivatives(s State, current float64) State {
	x := m.vector(s)
	var dx mat.VecDense
	dx.MulVec(m.a, x)
	dx.AddScaledVec(&dx, current, m.b)
	return m.state(&dx, 0)
}

// Output evaluates the output equations at s.
func (m *Model) Output(s State, current float64) Output {
	ocv := m.curve.OCV(s.SoC)
	return Output{
		OCV:     ocv,
		Voltage: ocv - current*m.cfg.R0 - s.VR1 - s.VR2,
	}
}

func (m *Model) vector(s State) *mat.VecDense {
	x := mat.NewVecDense(m.Dim(), nil)
	x.SetVec(0, s.SoC)
	x.SetVec(1, s.VR1)
	if m.cfg.NumRCPairs == 2 {
		x.SetVec(2, s.VR2)
	}
	return x
}

func (m *Model) state(x mat.Vector, t float64) State {
	s := State{SoC: x.AtVec(0), VR1: x.AtVec(1), Time: t}
	if m.cfg.NumRCPairs == 2 {
		s.VR2 = x.AtVec(2)
	}
	return s
}
