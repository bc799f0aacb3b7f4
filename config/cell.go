package config

import (
	"fmt"
	"slices"

	"github.com/kilianp07/cellsim/core/curve"
	"github.com/kilianp07/cellsim/core/ecm"
	"github.com/kilianp07/cellsim/core/factory"
)

// CellConfig describes the simulated cell: where its OCV curve comes from and
// its equivalent circuit.
type CellConfig struct {
	Curve factory.ModuleConfig `json:"curve"`
	ECM   ecm.Config           `json:"ecm"`
}

// SetDefaults selects the chen2020 preset and the default circuit.
func (c *CellConfig) SetDefaults() {
	if c.Curve.Type == "" {
		c.Curve = factory.ModuleConfig{Type: "preset", Conf: map[string]any{"name": "chen2020"}}
	}
	c.ECM.SetDefaults()
}

// Validate checks the source type and the circuit parameters.
func (c CellConfig) Validate() error {
	if !slices.Contains(curve.SourceTypes(), c.Curve.Type) {
		return fmt.Errorf("unknown curve source %q (known: %v)", c.Curve.Type, curve.SourceTypes())
	}
	return c.ECM.Validate()
}

// CurveSource builds the configured curve source.
func (c CellConfig) CurveSource() (curve.Source, error) {
	return curve.NewSource(c.Curve)
}
