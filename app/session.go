package app

import (
	"context"
	"fmt"

	"github.com/kilianp07/cellsim/config"
	"github.com/kilianp07/cellsim/core/ecm"
	"github.com/kilianp07/cellsim/core/session"
)

// NewSession builds a standalone session with the configured curve, circuit
// and integrator, ready to step.
func NewSession(ctx context.Context, cfg *config.Config, opts ...session.Option) (*session.Session, error) {
	integrator, err := ecm.NewIntegrator(cfg.Simulation)
	if err != nil {
		return nil, fmt.Errorf("simulation: %w", err)
	}
	c, err := LoadCurve(ctx, cfg.Cell)
	if err != nil {
		return nil, err
	}
	s := session.New(append([]session.Option{session.WithIntegrator(integrator)}, opts...)...)
	if err := s.SetCurve(c); err != nil {
		return nil, err
	}
	if _, err := s.Configure(cfg.Cell.ECM); err != nil {
		return nil, err
	}
	return s, nil
}
