package curve

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/kilianp07/cellsim/core/factory"
)

// Source produces (SoC, OCV) samples from an opaque generator such as an
// electrochemical model or a lab measurement.
type Source interface {
	Samples(ctx context.Context) ([]Sample, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) ([]Sample, error)

func (f SourceFunc) Samples(ctx context.Context) ([]Sample, error) { return f(ctx) }

var sourceRegistry = factory.NewRegistry[Source]()

// RegisterSource adds a Source factory identified by name.
func RegisterSource(name string, f factory.Factory[Source]) error {
	return sourceRegistry.Register(name, f)
}

// NewSource builds a Source from its module configuration.
func NewSource(cfg factory.ModuleConfig) (Source, error) {
	return sourceRegistry.Create(cfg)
}

// SourceTypes lists the registered source types.
func SourceTypes() []string { return sourceRegistry.Names() }

// PresetFunc evaluates a named OCV model on n evenly spaced SoC points.
type PresetFunc func(n int) []Sample

var (
	presetsMu sync.RWMutex
	presets   = map[string]PresetFunc{}
)

// RegisterPreset makes an analytic curve available by name.
func RegisterPreset(name string, f PresetFunc) error {
	if f == nil {
		return fmt.Errorf("preset nil for %s", name)
	}
	presetsMu.Lock()
	defer presetsMu.Unlock()
	if _, ok := presets[name]; ok {
		return fmt.Errorf("preset already registered for %s", name)
	}
	presets[name] = f
	return nil
}

// Presets returns the registered preset names in sorted order.
func Presets() []string {
	presetsMu.RLock()
	defer presetsMu.RUnlock()
	names := make([]string, 0, len(presets))
	for n := range presets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Model types a preset can be requested for. The open-circuit curve only
// depends on the electrode potentials, so the type is checked but does not
// change the samples.
const (
	ModelSPMe = "SPMe"
	ModelDFN  = "DFN"
)

// ModelTypes lists the accepted model types, default first.
func ModelTypes() []string { return []string{ModelSPMe, ModelDFN} }

// ParseModelType normalises a model type name; "" selects ModelSPMe.
func ParseModelType(s string) (string, error) {
	if s == "" {
		return ModelSPMe, nil
	}
	for _, m := range ModelTypes() {
		if strings.EqualFold(s, m) {
			return m, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownModel, s)
}

// PresetSource evaluates a registered preset.
type PresetSource struct {
	Name   string
	Model  string
	Points int
}

func (p PresetSource) Samples(ctx context.Context) ([]Sample, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := ParseModelType(p.Model); err != nil {
		return nil, err
	}
	presetsMu.RLock()
	f, ok := presets[strings.ToLower(p.Name)]
	presetsMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPreset, p.Name)
	}
	n := p.Points
	if n <= 0 {
		n = DefaultSamplePoints
	}
	return f(n), nil
}

// TableSource returns a fixed list of samples.
type TableSource struct {
	Points []Sample
}

func (t TableSource) Samples(context.Context) ([]Sample, error) {
	out := make([]Sample, len(t.Points))
	copy(out, t.Points)
	return out, nil
}

// CSVSource reads "soc,ocv" rows. A non-numeric first row is treated as a
// header. When Percent is set the SoC column is read as a percentage.
type CSVSource struct {
	Path    string
	Percent bool
}

func (s CSVSource) Samples(ctx context.Context) ([]Sample, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("open curve csv: %w", err)
	}
	defer func() { _ = f.Close() }()
	return ReadCSV(f, s.Percent)
}

// ReadCSV parses "soc,ocv" rows from r.
func ReadCSV(r io.Reader, percent bool) ([]Sample, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 2
	cr.TrimLeadingSpace = true
	var out []Sample
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidCurve, err)
		}
		soc, errS := strconv.ParseFloat(rec[0], 64)
		ocv, errO := strconv.ParseFloat(rec[1], 64)
		if errS != nil || errO != nil {
			if line == 1 {
				continue
			}
			return nil, fmt.Errorf("%w: line %d: not a number", ErrInvalidCurve, line)
		}
		if percent {
			soc /= 100
		}
		out = append(out, Sample{SoC: soc, OCV: ocv})
	}
	return out, nil
}

func init() {
	_ = RegisterSource("table", func(conf map[string]any) (Source, error) {
		var c struct {
			Points [][]float64 `json:"points"`
			SoC    []float64   `json:"soc"`
			OCV    []float64   `json:"ocv"`
		}
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		var pts []Sample
		for i, p := range c.Points {
			if len(p) != 2 {
				return nil, fmt.Errorf("%w: point %d has %d values", ErrInvalidCurve, i, len(p))
			}
			pts = append(pts, Sample{SoC: p[0], OCV: p[1]})
		}
		if len(c.SoC) != len(c.OCV) {
			return nil, fmt.Errorf("%w: %d soc values for %d ocv values", ErrInvalidCurve, len(c.SoC), len(c.OCV))
		}
		for i := range c.SoC {
			pts = append(pts, Sample{SoC: c.SoC[i], OCV: c.OCV[i]})
		}
		return TableSource{Points: pts}, nil
	})

	_ = RegisterSource("csv", func(conf map[string]any) (Source, error) {
		var c struct {
			Path    string `json:"path"`
			Percent bool   `json:"soc_percent"`
		}
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		if c.Path == "" {
			return nil, errors.New("csv curve source: path is required")
		}
		return CSVSource{Path: c.Path, Percent: c.Percent}, nil
	})

	_ = RegisterSource("preset", func(conf map[string]any) (Source, error) {
		var c struct {
			Name   string `json:"name"`
			Model  string `json:"model"`
			Points int    `json:"points"`
		}
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		if c.Name == "" {
			return nil, errors.New("preset curve source: name is required")
		}
		if _, err := ParseModelType(c.Model); err != nil {
			return nil, err
		}
		return PresetSource{Name: c.Name, Model: c.Model, Points: c.Points}, nil
	})
}
