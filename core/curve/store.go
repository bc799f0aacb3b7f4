package curve

import "iter"

// Store owns the curve of one simulation. Loading replaces the curve
// wholesale; the previous *Curve stays valid for anyone still holding it.
type Store struct {
	curve *Curve
}

// NewStore returns an empty store.
func NewStore() *Store { return &Store{} }

// Load validates samples and replaces the stored curve. On error the previous
// curve is kept.
func (s *Store) Load(samples []Sample) error {
	c, err := New(samples)
	if err != nil {
		return err
	}
	s.curve = c
	return nil
}

// LoadColumns is Load for parallel soc and ocv slices.
func (s *Store) LoadColumns(soc, ocv []float64) error {
	c, err := FromColumns(soc, ocv)
	if err != nil {
		return err
	}
	s.curve = c
	return nil
}

// Set installs an already built curve, typically one shared between stores.
func (s *Store) Set(c *Curve) {
	s.curve = c
}

// Loaded reports whether a curve is available.
func (s *Store) Loaded() bool { return s.curve != nil }

// Curve returns the current curve or ErrNoCurve.
func (s *Store) Curve() (*Curve, error) {
	if s.curve == nil {
		return nil, ErrNoCurve
	}
	return s.curve, nil
}

// InterpolateOCV returns the OCV at soc.
func (s *Store) InterpolateOCV(soc float64) (float64, error) {
	c, err := s.Curve()
	if err != nil {
		return 0, err
	}
	return c.OCV(soc), nil
}

// InterpolateSoC returns the SoC fraction matching ocv.
func (s *Store) InterpolateSoC(ocv float64) (float64, error) {
	c, err := s.Curve()
	if err != nil {
		return 0, err
	}
	return c.SoC(ocv), nil
}

// SampledCurve returns the lazy (SoC percent, OCV) sequence of the current
// curve.
func (s *Store) SampledCurve(n int) (iter.Seq2[float64, float64], error) {
	c, err := s.Curve()
	if err != nil {
		return nil, err
	}
	return c.Sampled(n), nil
}
