package ecm

import (
	"fmt"
	"math"
)

// Config holds the equivalent circuit parameters. Resistances are in ohm,
// capacitances in farad, capacity in ampere-hour and cutoffs in volt. R2 and
// C2 are only read when NumRCPairs is 2.
type Config struct {
	NumRCPairs         int     `json:"num_rc_pairs" yaml:"num_rc_pairs"`
	R0                 float64 `json:"r0" yaml:"r0"`
	R1                 float64 `json:"r1" yaml:"r1"`
	C1                 float64 `json:"c1" yaml:"c1"`
	R2                 float64 `json:"r2" yaml:"r2"`
	C2                 float64 `json:"c2" yaml:"c2"`
	NominalCapacityAh  float64 `json:"nominal_capacity_ah" yaml:"nominal_capacity_ah"`
	UpperVoltageCutoff float64 `json:"upper_voltage_cutoff" yaml:"upper_voltage_cutoff"`
	LowerVoltageCutoff float64 `json:"lower_voltage_cutoff" yaml:"lower_voltage_cutoff"`
}

// DefaultConfig returns a 2RC cell of 5 Ah with 4.2 V / 3.0 V cutoffs.
func DefaultConfig() Config {
	return Config{
		NumRCPairs:         2,
		R0:                 0.0015,
		R1:                 0.001,
		C1:                 2500,
		R2:                 0.0008,
		C2:                 40000,
		NominalCapacityAh:  5,
		UpperVoltageCutoff: 4.2,
		LowerVoltageCutoff: 3.0,
	}
}

// SetDefaults fills zero fields with DefaultConfig values. It is used by the
// file configuration layer; Validate never applies defaults.
func (c *Config) SetDefaults() {
	d := DefaultConfig()
	if c.NumRCPairs == 0 {
		c.NumRCPairs = d.NumRCPairs
	}
	setIfZero(&c.R0, d.R0)
	setIfZero(&c.R1, d.R1)
	setIfZero(&c.C1, d.C1)
	if c.NumRCPairs == 2 {
		setIfZero(&c.R2, d.R2)
		setIfZero(&c.C2, d.C2)
	}
	setIfZero(&c.NominalCapacityAh, d.NominalCapacityAh)
	setIfZero(&c.UpperVoltageCutoff, d.UpperVoltageCutoff)
	setIfZero(&c.LowerVoltageCutoff, d.LowerVoltageCutoff)
}

func setIfZero(v *float64, def float64) {
	if *v == 0 {
		*v = def
	}
}

// Validate checks the parameters. Every error wraps ErrConfiguration.
func (c Config) Validate() error {
	if c.NumRCPairs != 1 && c.NumRCPairs != 2 {
		return fmt.Errorf("%w: num_rc_pairs must be 1 or 2, got %d", ErrConfiguration, c.NumRCPairs)
	}
	type param struct {
		name string
		v    float64
	}
	params := []param{
		{"r0", c.R0},
		{"r1", c.R1},
		{"c1", c.C1},
		{"nominal_capacity_ah", c.NominalCapacityAh},
		{"upper_voltage_cutoff", c.UpperVoltageCutoff},
		{"lower_voltage_cutoff", c.LowerVoltageCutoff},
	}
	if c.NumRCPairs == 2 {
		params = append(params, param{"r2", c.R2}, param{"c2", c.C2})
	}
	for _, p := range params {
		if math.IsNaN(p.v) || math.IsInf(p.v, 0) || p.v <= 0 {
			return fmt.Errorf("%w: %s must be a positive number, got %g", ErrConfiguration, p.name, p.v)
		}
	}
	if c.UpperVoltageCutoff < c.LowerVoltageCutoff {
		return fmt.Errorf("%w: upper_voltage_cutoff %g below lower_voltage_cutoff %g",
			ErrConfiguration, c.UpperVoltageCutoff, c.LowerVoltageCutoff)
	}
	return nil
}

// Tau returns the time constants of the RC branches in seconds.
func (c Config) Tau() []float64 {
	if c.NumRCPairs == 2 {
		return []float64{c.R1 * c.C1, c.R2 * c.C2}
	}
	return []float64{c.R1 * c.C1}
}
