// Package export writes step results for people and other tools.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/kilianp07/cellsim/core/session"
)

// Format selects an output encoding.
type Format string

const (
	FormatTable Format = "table"
	FormatCSV   Format = "csv"
	FormatJSON  Format = "json"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case FormatTable, FormatCSV, FormatJSON:
		return f, nil
	case "":
		return FormatTable, nil
	}
	return "", fmt.Errorf("unknown format %q (want table, csv or json)", s)
}

var header = []string{"t_s", "current_a", "voltage_v", "ocv_v", "soc_percent", "v_r1", "v_r2", "cutoff"}

func row(r session.StepResult) []string {
	f := func(v float64, prec int) string { return strconv.FormatFloat(v, 'f', prec, 64) }
	return []string{
		f(r.Sample.Time, 3),
		f(r.Sample.Current, 4),
		f(r.VoltageV, 6),
		f(r.Sample.OCV, 6),
		f(r.SoCPercent, 4),
		f(r.Sample.VR1, 6),
		f(r.Sample.VR2, 6),
		strconv.FormatBool(r.CutoffReached),
	}
}

// Write encodes results to w in format f.
func Write(w io.Writer, f Format, results []session.StepResult) error {
	switch f {
	case FormatJSON:
		return WriteJSON(w, results)
	case FormatCSV:
		return WriteCSV(w, results)
	case FormatTable, "":
		return WriteTable(w, results)
	}
	return fmt.Errorf("unknown format %q", f)
}

// WriteJSON writes the results as a JSON array.
func WriteJSON(w io.Writer, results []session.StepResult) error {
	if results == nil {
		results = []session.StepResult{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}

// WriteCSV writes one row per step with a header.
func WriteCSV(w io.Writer, results []session.StepResult) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, r := range results {
		if err := cw.Write(row(r)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteTable writes aligned columns.
func WriteTable(w io.Writer, results []session.StepResult) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	write := func(cols []string) {
		for i, c := range cols {
			if i > 0 {
				_, _ = io.WriteString(tw, "\t")
			}
			_, _ = io.WriteString(tw, c)
		}
		_, _ = io.WriteString(tw, "\n")
	}
	write(header)
	for _, r := range results {
		write(row(r))
	}
	return tw.Flush()
}
