package ecm

import "math"

// State is the memory carried between steps: SoC as a fraction, the voltage
// across each RC branch and the elapsed simulation time in seconds. VR2 stays
// zero for single RC models. SoC is not clamped and is serialised as soc_raw.
type State struct {
	SoC  float64 `json:"soc_raw"`
	VR1  float64 `json:"v_r1"`
	VR2  float64 `json:"v_r2"`
	Time float64 `json:"t"`
}

// InitialState returns a relaxed cell at soc and t=0.
func InitialState(soc float64) State {
	return State{SoC: soc}
}

func (s State) finite() bool {
	for _, v := range []float64{s.SoC, s.VR1, s.VR2, s.Time} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
