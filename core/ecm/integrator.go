package ecm

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// Method selects how the linear state equation is advanced over a step.
type Method string

const (
	// MethodZOH discretises the system exactly under a zero-order hold on the
	// current, x' = exp(A dt) x + (integral of exp(A s) ds) B i, computed as
	// the exponential of the augmented matrix [[A B],[0 0]] dt. It is stable
	// for any dt.
	MethodZOH Method = "zoh"
	// MethodBackwardEuler is implicit Euler, first order, A-stable.
	MethodBackwardEuler Method = "backward-euler"
	// MethodTrapezoidal is Crank-Nicolson, second order, A-stable.
	MethodTrapezoidal Method = "trapezoidal"
)

// ParseMethod accepts the method names case-insensitively. An empty string
// selects MethodZOH.
func ParseMethod(s string) (Method, error) {
	switch m := Method(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return MethodZOH, nil
	case MethodZOH, MethodBackwardEuler, MethodTrapezoidal:
		return m, nil
	default:
		return "", fmt.Errorf("unknown integration method %q", s)
	}
}

// Order is the convergence order of the method; 0 means exact for the linear
// system.
func (m Method) Order() int {
	switch m {
	case MethodBackwardEuler:
		return 1
	case MethodTrapezoidal:
		return 2
	default:
		return 0
	}
}

// IntegratorOptions tune the integrator. Substep limits only apply to the
// implicit methods.
type IntegratorOptions struct {
	Method           Method  `json:"method" yaml:"method"`
	MaxSubstep       float64 `json:"max_substep_s" yaml:"max_substep_s"`
	MaxSubsteps      int     `json:"max_substeps" yaml:"max_substeps"`
	BootstrapEpsilon float64 `json:"bootstrap_epsilon_s" yaml:"bootstrap_epsilon_s"`
}

// DefaultIntegratorOptions returns ZOH with a 1 s substep bound for the
// implicit methods and a 1 microsecond bootstrap interval.
func DefaultIntegratorOptions() IntegratorOptions {
	return IntegratorOptions{
		Method:           MethodZOH,
		MaxSubstep:       1,
		MaxSubsteps:      100000,
		BootstrapEpsilon: 1e-6,
	}
}

// SetDefaults fills unset options.
func (o *IntegratorOptions) SetDefaults() {
	d := DefaultIntegratorOptions()
	if o.Method == "" {
		o.Method = d.Method
	}
	if o.MaxSubstep == 0 {
		o.MaxSubstep = d.MaxSubstep
	}
	if o.MaxSubsteps == 0 {
		o.MaxSubsteps = d.MaxSubsteps
	}
	if o.BootstrapEpsilon == 0 {
		o.BootstrapEpsilon = d.BootstrapEpsilon
	}
}

// Validate checks the options.
func (o IntegratorOptions) Validate() error {
	if _, err := ParseMethod(string(o.Method)); err != nil {
		return err
	}
	if !(o.MaxSubstep > 0) || math.IsInf(o.MaxSubstep, 0) {
		return fmt.Errorf("max_substep_s must be positive, got %g", o.MaxSubstep)
	}
	if o.MaxSubsteps < 1 {
		return fmt.Errorf("max_substeps must be at least 1, got %d", o.MaxSubsteps)
	}
	if !(o.BootstrapEpsilon > 0) || math.IsInf(o.BootstrapEpsilon, 0) {
		return fmt.Errorf("bootstrap_epsilon_s must be positive, got %g", o.BootstrapEpsilon)
	}
	return nil
}

// Sample is the output of the model at the end of a step. SoC is the raw
// solver fraction and can leave [0,1] after an over-charge or over-discharge;
// clients read the clamped percentage carried next to it.
type Sample struct {
	Time    float64 `json:"t"`
	Current float64 `json:"current"`
	OCV     float64 `json:"ocv"`
	Voltage float64 `json:"voltage"`
	SoC     float64 `json:"soc_raw"`
	VR1     float64 `json:"v_r1"`
	VR2     float64 `json:"v_r2"`
}

// Adjustment records a state of charge pulled back into [0,1] before a step.
type Adjustment struct {
	From float64 `json:"from"`
	To   float64 `json:"to"`
}

// Result is the outcome of one Advance call.
type Result struct {
	State      State
	Sample     Sample
	Adjustment *Adjustment
	Substeps   int
}

// Integrator advances a Model over a time interval at constant current.
type Integrator struct {
	opts IntegratorOptions
}

// NewIntegrator validates opts after filling defaults.
func NewIntegrator(opts IntegratorOptions) (*Integrator, error) {
	opts.SetDefaults()
	m, err := ParseMethod(string(opts.Method))
	if err != nil {
		return nil, err
	}
	opts.Method = m
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Integrator{opts: opts}, nil
}

// Options returns the effective options.
func (it *Integrator) Options() IntegratorOptions { return it.opts }

// Bootstrap advances s over the bootstrap interval with the given current. It
// is run once before the first user step of a session.
func (it *Integrator) Bootstrap(m *Model, s State, current float64) (Result, error) {
	return it.Advance(m, s, current, it.opts.BootstrapEpsilon)
}

// Advance integrates the model from s over dt seconds with a constant current.
// A SoC outside [0,1] is clamped first and reported in Result.Adjustment.
func (it *Integrator) Advance(m *Model, s State, current, dt float64) (Result, error) {
	if m == nil {
		return Result{}, fmt.Errorf("%w: nil model", ErrIntegrationFailure)
	}
	if !(dt > 0) || math.IsInf(dt, 0) {
		return Result{}, fmt.Errorf("%w: dt must be a positive finite number, got %g", ErrIntegrationFailure, dt)
	}
	if math.IsNaN(current) || math.IsInf(current, 0) {
		return Result{}, fmt.Errorf("%w: non-finite current %g", ErrIntegrationFailure, current)
	}
	if !s.finite() {
		return Result{}, fmt.Errorf("%w: non-finite state %+v", ErrIntegrationFailure, s)
	}

	var res Result
	if s.SoC < 0 || s.SoC > 1 {
		clamped := math.Max(0, math.Min(1, s.SoC))
		res.Adjustment = &Adjustment{From: s.SoC, To: clamped}
		s.SoC = clamped
	}

	x := m.vector(s)
	var (
		next *mat.VecDense
		err  error
	)
	switch it.opts.Method {
	case MethodBackwardEuler, MethodTrapezoidal:
		next, res.Substeps, err = it.implicit(m, x, current, dt)
	default:
		next, err = zoh(m, x, current, dt)
		res.Substeps = 1
	}
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrIntegrationFailure, err)
	}

	res.State = m.state(next, s.Time+dt)
	if !res.State.finite() {
		return Result{}, fmt.Errorf("%w: solver produced a non-finite state", ErrIntegrationFailure)
	}
	out := m.Output(res.State, current)
	if math.IsNaN(out.Voltage) || math.IsInf(out.Voltage, 0) {
		return Result{}, fmt.Errorf("%w: non-finite terminal voltage", ErrIntegrationFailure)
	}
	res.Sample = Sample{
		Time:    res.State.Time,
		Current: current,
		OCV:     out.OCV,
		Voltage: out.Voltage,
		SoC:     res.State.SoC,
		VR1:     res.State.VR1,
		VR2:     res.State.VR2,
	}
	return res, nil
}

// expm points to the matrix exponential. Tests override it to simulate
// solver failures.
var expm = func(dst *mat.Dense, a mat.Matrix) error {
	dst.Exp(a)
	return nil
}

func zoh(m *Model, x *mat.VecDense, current, dt float64) (*mat.VecDense, error) {
	n := m.Dim()
	aug := mat.NewDense(n+1, n+1, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			aug.Set(i, j, m.a.At(i, j)*dt)
		}
		aug.Set(i, n, m.b.AtVec(i)*dt)
	}
	var e mat.Dense
	if err := expm(&e, aug); err != nil {
		return nil, err
	}

	z := mat.NewVecDense(n+1, nil)
	for i := 0; i < n; i++ {
		z.SetVec(i, x.AtVec(i))
	}
	z.SetVec(n, current)
	var zn mat.VecDense
	zn.MulVec(&e, z)
	return mat.VecDenseCopyOf(zn.SliceVec(0, n)), nil
}

var errSingular = errors.New("implicit system is singular")

// implicit runs backward Euler or the trapezoidal rule on equal substeps. The
// iteration matrix is constant over the step so it is factorised once.
func (it *Integrator) implicit(m *Model, x *mat.VecDense, current, dt float64) (*mat.VecDense, int, error) {
	steps := int(math.Ceil(dt / it.opts.MaxSubstep))
	if steps < 1 {
		steps = 1
	}
	if steps > it.opts.MaxSubsteps {
		steps = it.opts.MaxSubsteps
	}
	h := dt / float64(steps)

	theta := 1.0
	if it.opts.Method == MethodTrapezoidal {
		theta = 0.5
	}
	n := m.Dim()

	// lhs = I - theta*h*A, rhs = I + (1-theta)*h*A
	lhs := mat.NewDense(n, n, nil)
	rhs := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			var id float64
			if i == j {
				id = 1
			}
			lhs.Set(i, j, id-theta*h*m.a.At(i, j))
			rhs.Set(i, j, id+(1-theta)*h*m.a.At(i, j))
		}
	}
	var lu mat.LU
	lu.Factorize(lhs)
	if lu.Det() == 0 {
		return nil, 0, errSingular
	}

	forcing := mat.NewVecDense(n, nil)
	forcing.ScaleVec(h*current, m.b)

	cur := mat.VecDenseCopyOf(x)
	var b mat.VecDense
	for k := 0; k < steps; k++ {
		b.MulVec(rhs, cur)
		b.AddVec(&b, forcing)
		if err := lu.SolveVecTo(cur, false, &b); err != nil {
			return nil, 0, err
		}
	}
	return cur, steps, nil
}
