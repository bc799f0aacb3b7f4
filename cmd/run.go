package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kilianp07/cellsim/app"
	"github.com/kilianp07/cellsim/core/factory"
	"github.com/kilianp07/cellsim/core/session"
	"github.com/kilianp07/cellsim/pkg/export"
)

var runOpts struct {
	profile   string
	current   float64
	dt        float64
	steps     int
	format    string
	chemistry string
	method    string
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Drive one cell through a current profile and print every step",
	Long: `Drive one cell through a current profile and print every step.

The profile is either a CSV file of "current_a,dt_s" rows (--profile) or a
constant current (--current, --dt, --steps). Positive current discharges.`,
	RunE: runProfile,
}

func init() {
	f := runCmd.Flags()
	f.StringVarP(&runOpts.profile, "profile", "p", "", "CSV profile of current_a,dt_s rows")
	f.Float64Var(&runOpts.current, "current", 5, "constant current in A when no profile is given")
	f.Float64Var(&runOpts.dt, "dt", 60, "step length in s when no profile is given")
	f.IntVar(&runOpts.steps, "steps", 10, "number of steps when no profile is given")
	f.StringVarP(&runOpts.format, "format", "f", "table", "output format: table, csv or json")
	f.StringVar(&runOpts.chemistry, "chemistry", "", "use a curve preset instead of the configured curve")
	f.StringVar(&runOpts.method, "method", "", "integration method: zoh, backward-euler or trapezoidal")
	rootCmd.AddCommand(runCmd)
}

func runProfile(cmd *cobra.Command, args []string) error {
	format, err := export.ParseFormat(runOpts.format)
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if runOpts.chemistry != "" {
		cfg.Cell.Curve = factory.ModuleConfig{Type: "preset", Conf: map[string]any{"name": runOpts.chemistry}}
	}
	if runOpts.method != "" {
		cfg.Simulation.Method = ecmMethod(runOpts.method)
	}

	var profile []session.ProfileStep
	if runOpts.profile != "" {
		f, err := os.Open(runOpts.profile)
		if err != nil {
			return err
		}
		defer func() { _ = f.Close() }()
		if profile, err = session.ParseProfileCSV(f); err != nil {
			return fmt.Errorf("profile %s: %w", runOpts.profile, err)
		}
	} else {
		if runOpts.steps < 1 {
			return errors.New("--steps must be at least 1")
		}
		profile = session.ConstantProfile(runOpts.current, runOpts.dt, runOpts.steps)
	}

	ctx := background(cmd)
	s, err := app.NewSession(ctx, cfg, session.WithID("cli"))
	if err != nil {
		return err
	}
	results, runErr := session.Run(ctx, s, profile)
	if err := export.Write(cmd.OutOrStdout(), format, results); err != nil {
		return err
	}
	return runErr
}
