package ecm

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	one := DefaultConfig()
	one.NumRCPairs = 1
	one.R2, one.C2 = 0, 0
	assert.NoError(t, one.Validate(), "R2/C2 ignored for a single RC pair")

	tests := []struct {
		name string
		mut  func(*Config)
	}{
		{"three pairs", func(c *Config) { c.NumRCPairs = 3 }},
		{"zero r0", func(c *Config) { c.R0 = 0 }},
		{"negative c1", func(c *Config) { c.C1 = -1 }},
		{"zero r2 with two pairs", func(c *Config) { c.R2 = 0 }},
		{"nan capacity", func(c *Config) { c.NominalCapacityAh = math.NaN() }},
		{"inverted cutoffs", func(c *Config) { c.UpperVoltageCutoff, c.LowerVoltageCutoff = 3.0, 4.2 }},
		{"zero lower cutoff", func(c *Config) { c.LowerVoltageCutoff = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig()
			tt.mut(&c)
			assert.ErrorIs(t, c.Validate(), ErrConfiguration)
		})
	}
}

func TestConfig_SetDefaults(t *testing.T) {
	c := Config{NumRCPairs: 1, R0: 0.01}
	c.SetDefaults()
	assert.Equal(t, 0.01, c.R0)
	assert.Equal(t, 2500.0, c.C1)
	assert.Zero(t, c.R2)
	assert.NoError(t, c.Validate())
	assert.Equal(t, []float64{2.5}, c.Tau())
}
