package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kilianp07/cellsim/app"
	"github.com/kilianp07/cellsim/core/curve"
	"github.com/kilianp07/cellsim/core/ecm"
	"github.com/kilianp07/cellsim/core/factory"
)

var curveOpts struct {
	points    int
	chemistry string
}

var curveCmd = &cobra.Command{
	Use:   "curve",
	Short: "Print the OCV curve as [soc_percent, ocv] pairs",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if curveOpts.chemistry != "" {
			cfg.Cell.Curve = factory.ModuleConfig{Type: "preset", Conf: map[string]any{"name": curveOpts.chemistry}}
		}
		c, err := app.LoadCurve(background(cmd), cfg.Cell)
		if err != nil {
			return err
		}
		body, err := c.SampledJSON(curveOpts.points)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), string(body))
		return err
	},
}

var presetsCmd = &cobra.Command{
	Use:   "presets",
	Short: "List the curve presets and source types",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if _, err := fmt.Fprintf(out, "presets: %s\n", strings.Join(curve.Presets(), ", ")); err != nil {
			return err
		}
		_, err := fmt.Fprintf(out, "sources: %s\n", strings.Join(curve.SourceTypes(), ", "))
		return err
	},
}

func init() {
	curveCmd.Flags().IntVarP(&curveOpts.points, "points", "n", 101, "number of evenly spaced SoC points")
	curveCmd.Flags().StringVar(&curveOpts.chemistry, "chemistry", "", "use a curve preset instead of the configured curve")
	rootCmd.AddCommand(curveCmd, presetsCmd)
}

func ecmMethod(name string) ecm.Method { return ecm.Method(strings.ToLower(name)) }
