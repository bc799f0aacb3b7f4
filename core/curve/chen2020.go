package curve

import "math"

// Chen2020 evaluates the LG M50 open-circuit potential fits of Chen et al.
// (2020) as a full-cell OCV, U_p(1-soc) - U_n(soc). Both electrodes span
// the full stoichiometry range, so the ends of the curve lie outside the
// usual 2.5 V to 4.2 V window: about 1.10 V at soc 0 and 4.59 V at soc 1.
func Chen2020(n int) []Sample {
	if n < 2 {
		n = 2
	}
	out := make([]Sample, n)
	for i := range out {
		soc := float64(i) / float64(n-1)
		out[i] = Sample{SoC: soc, OCV: nmcChen2020(1-soc) - graphiteChen2020(soc)}
	}
	return out
}

func graphiteChen2020(sto float64) float64 {
	return 1.9793*math.Exp(-39.3631*sto) +
		0.2482 -
		0.0909*math.Tanh(29.8538*(sto-0.1234)) -
		0.04478*math.Tanh(14.9159*(sto-0.2769)) -
		0.0205*math.Tanh(30.4444*(sto-0.6103))
}

func nmcChen2020(sto float64) float64 {
	return -0.8090*sto +
		4.4875 -
		0.0428*math.Tanh(18.5138*(sto-0.5542)) -
		17.7326*math.Tanh(15.7890*(sto-0.3117)) +
		17.5842*math.Tanh(15.9308*(sto-0.3120))
}

func init() {
	_ = RegisterPreset("chen2020", Chen2020)
}
