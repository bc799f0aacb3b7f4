package session

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// ProfileStep is one segment of a current profile.
type ProfileStep struct {
	CurrentA float64 `json:"current_a" yaml:"current_a"`
	DtS      float64 `json:"dt_s" yaml:"dt_s"`
}

// ConstantProfile repeats current for n steps of dt seconds.
func ConstantProfile(current, dt float64, n int) []ProfileStep {
	p := make([]ProfileStep, max(n, 0))
	for i := range p {
		p[i] = ProfileStep{CurrentA: current, DtS: dt}
	}
	return p
}

// UniformProfile turns a list of currents into steps of dt seconds.
func UniformProfile(currents []float64, dt float64) []ProfileStep {
	p := make([]ProfileStep, len(currents))
	for i, c := range currents {
		p[i] = ProfileStep{CurrentA: c, DtS: dt}
	}
	return p
}

// Run drives s through profile and returns the result of every successful
// step. It stops at the first failing step or when ctx is cancelled; the
// results gathered so far are returned with the error.
func Run(ctx context.Context, s *Session, profile []ProfileStep) ([]StepResult, error) {
	out := make([]StepResult, 0, len(profile))
	for i, p := range profile {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		res, err := s.Step(p.CurrentA, p.DtS)
		if err != nil {
			return out, fmt.Errorf("profile step %d: %w", i, err)
		}
		out = append(out, res)
	}
	return out, nil
}

// ParseProfileCSV reads "current_a,dt_s" rows. A non-numeric first row is
// skipped as a header.
func ParseProfileCSV(r io.Reader) ([]ProfileStep, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 2
	cr.TrimLeadingSpace = true
	cr.Comment = '#'
	var out []ProfileStep
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("profile csv: %w", err)
		}
		cur, errC := strconv.ParseFloat(rec[0], 64)
		dt, errD := strconv.ParseFloat(rec[1], 64)
		if errC != nil || errD != nil {
			if line == 1 {
				continue
			}
			return nil, fmt.Errorf("profile csv: line %d: not a number", line)
		}
		out = append(out, ProfileStep{CurrentA: cur, DtS: dt})
	}
}
