package metrics

import (
	"fmt"
	"slices"

	"github.com/kilianp07/cellsim/core/factory"
)

// Config defines settings for metrics sinks.
type Config struct {
	Sinks []factory.ModuleConfig `json:"sinks" yaml:"sinks"`
	// PrometheusAddr is the listen address of the /metrics endpoint. Empty
	// disables the endpoint.
	PrometheusAddr string `json:"prometheus_addr" yaml:"prometheus_addr"`
}

// Validate checks that every sink names a registered type.
func (c Config) Validate() error {
	known := SinkTypes()
	for i, s := range c.Sinks {
		if !slices.Contains(known, s.Type) {
			return fmt.Errorf("metrics sink %d: unknown type %q", i, s.Type)
		}
	}
	return nil
}
