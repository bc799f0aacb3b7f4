package curve

import (
	"encoding/json"
	"fmt"
	"iter"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/interp"
)

// DefaultSamplePoints is the number of points produced by Sampled when the
// caller has no preference.
const DefaultSamplePoints = 101

// MaxSamplePoints bounds the number of points SampledJSON renders.
const MaxSamplePoints = 10001

// Sample is one point of an OCV/SoC table. SoC is a fraction in [0,1] and OCV
// is expressed in volts.
type Sample struct {
	SoC float64 `json:"soc"`
	OCV float64 `json:"ocv"`
}

// Curve is an immutable OCV/SoC table. It can be shared read-only between
// sessions.
type Curve struct {
	samples []Sample

	forward interp.PiecewiseLinear
	// reverse is nil when every sample has the same OCV.
	reverse *interp.PiecewiseLinear

	socMin, socMax float64
	ocvMin, ocvMax float64
}

// New validates samples and builds the interpolation tables. The input slice
// is not retained.
func New(samples []Sample) (*Curve, error) {
	if len(samples) < 2 {
		return nil, fmt.Errorf("%w: need at least 2 points, got %d", ErrInvalidCurve, len(samples))
	}
	sorted := make([]Sample, len(samples))
	copy(sorted, samples)
	for i, s := range sorted {
		if math.IsNaN(s.SoC) || math.IsInf(s.SoC, 0) || math.IsNaN(s.OCV) || math.IsInf(s.OCV, 0) {
			return nil, fmt.Errorf("%w: non-finite value at index %d", ErrInvalidCurve, i)
		}
		if s.SoC < 0 || s.SoC > 1 {
			return nil, fmt.Errorf("%w: soc %g at index %d outside [0,1]", ErrInvalidCurve, s.SoC, i)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].SoC < sorted[j].SoC })

	socs := make([]float64, len(sorted))
	ocvs := make([]float64, len(sorted))
	for i, s := range sorted {
		if i > 0 && s.SoC == sorted[i-1].SoC {
			return nil, fmt.Errorf("%w: duplicate soc %g", ErrInvalidCurve, s.SoC)
		}
		socs[i] = s.SoC
		ocvs[i] = s.OCV
	}

	c := &Curve{
		samples: sorted,
		socMin:  socs[0],
		socMax:  socs[len(socs)-1],
		ocvMin:  floats.Min(ocvs),
		ocvMax:  floats.Max(ocvs),
	}
	if err := c.forward.Fit(socs, ocvs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCurve, err)
	}
	if err := c.fitReverse(); err != nil {
		return nil, err
	}
	return c, nil
}

// FromColumns builds a curve from parallel soc and ocv slices.
func FromColumns(soc, ocv []float64) (*Curve, error) {
	if len(soc) != len(ocv) {
		return nil, fmt.Errorf("%w: %d soc values for %d ocv values", ErrInvalidCurve, len(soc), len(ocv))
	}
	samples := make([]Sample, len(soc))
	for i := range soc {
		samples[i] = Sample{SoC: soc[i], OCV: ocv[i]}
	}
	return New(samples)
}

// fitReverse builds the OCV->SoC table. Samples are stably sorted by OCV, so
// equal voltages keep their SoC order and only the first of each run is kept.
func (c *Curve) fitReverse() error {
	byOCV := make([]Sample, len(c.samples))
	copy(byOCV, c.samples)
	sort.SliceStable(byOCV, func(i, j int) bool { return byOCV[i].OCV < byOCV[j].OCV })

	xs := make([]float64, 0, len(byOCV))
	ys := make([]float64, 0, len(byOCV))
	for i, s := range byOCV {
		if i > 0 && s.OCV == byOCV[i-1].OCV {
			continue
		}
		xs = append(xs, s.OCV)
		ys = append(ys, s.SoC)
	}
	if len(xs) < 2 {
		return nil
	}
	var pl interp.PiecewiseLinear
	if err := pl.Fit(xs, ys); err != nil {
		return fmt.Errorf("%w: reverse table: %v", ErrInvalidCurve, err)
	}
	c.reverse = &pl
	return nil
}

// Samples returns a copy of the table sorted by SoC.
func (c *Curve) Samples() []Sample {
	out := make([]Sample, len(c.samples))
	copy(out, c.samples)
	return out
}

// Len returns the number of samples.
func (c *Curve) Len() int { return len(c.samples) }

// SoCRange returns the smallest and largest sampled SoC.
func (c *Curve) SoCRange() (lo, hi float64) { return c.socMin, c.socMax }

// OCVRange returns the smallest and largest sampled OCV.
func (c *Curve) OCVRange() (lo, hi float64) { return c.ocvMin, c.ocvMax }

// OCV interpolates the open-circuit voltage at soc. soc is clamped to the
// sampled range, the curve is never extrapolated.
func (c *Curve) OCV(soc float64) float64 {
	return c.forward.Predict(clamp(soc, c.socMin, c.socMax))
}

// SoC interpolates the state of charge for an open-circuit voltage. ocv is
// clamped to the sampled voltage range.
func (c *Curve) SoC(ocv float64) float64 {
	if c.reverse == nil {
		return c.samples[0].SoC
	}
	return c.reverse.Predict(clamp(ocv, c.ocvMin, c.ocvMax))
}

// InitialSoC returns the highest sampled SoC whose OCV does not exceed
// cutoff. When no sample qualifies, the sample with the OCV closest to cutoff
// is used, the lower SoC winning ties.
func (c *Curve) InitialSoC(cutoff float64) float64 {
	best := -1
	for i, s := range c.samples {
		if s.OCV <= cutoff {
			best = i
		}
	}
	if best >= 0 {
		return c.samples[best].SoC
	}
	closest := 0
	dist := math.Abs(c.samples[0].OCV - cutoff)
	for i := 1; i < len(c.samples); i++ {
		if d := math.Abs(c.samples[i].OCV - cutoff); d < dist {
			closest, dist = i, d
		}
	}
	return c.samples[closest].SoC
}

// Sampled yields n evenly spaced (SoC percent, OCV) points over [0,1].
// The sequence is lazy and can be ranged over any number of times.
func (c *Curve) Sampled(n int) iter.Seq2[float64, float64] {
	return func(yield func(float64, float64) bool) {
		if n <= 0 {
			return
		}
		if n == 1 {
			yield(0, c.OCV(0))
			return
		}
		for i := 0; i < n; i++ {
			soc := float64(i) / float64(n-1)
			if !yield(soc*100, c.OCV(soc)) {
				return
			}
		}
	}
}

// SampledJSON serialises Sampled(n) as a list of [soc_percent, ocv] pairs,
// SoC percent rounded to 2 decimals and OCV to 4. n above MaxSamplePoints is
// rejected.
func (c *Curve) SampledJSON(n int) ([]byte, error) {
	if n > MaxSamplePoints {
		return nil, fmt.Errorf("%d sample points requested, at most %d allowed", n, MaxSamplePoints)
	}
	points := make([][2]float64, 0, max(n, 0))
	for soc, ocv := range c.Sampled(n) {
		points = append(points, [2]float64{round(soc, 2), round(ocv, 4)})
	}
	return json.Marshal(points)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func round(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}
