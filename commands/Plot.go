package commands

import (
	"fmt"

	"github.com/samuelfneumann/goimitate/experiment"
	"github.com/samuelfneumann/goimitate/experiment/plot"
	"github.com/samuelfneumann/goimitate/experiment/trackers"
	"github.com/spf13/cobra"
)

// PlotCommand returns the command plotting saved metrics
func PlotCommand() *cobra.Command {
	var metrics, output, format string
	cmd := &cobra.Command{
		Use:   "plot",
		Short: "Plot the learning curves of a training run",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := trackers.LoadMetrics(metrics)
			if err != nil {
				return err
			}
			switch format {
			case experiment.PNG:
				return plot.PNG(m, output)
			case experiment.HTML:
				return plot.HTML(m, output)
			}
			return fmt.Errorf("plot: unknown format %q", format)
		},
	}
	cmd.Flags().StringVarP(&metrics, "metrics", "m", "results/metrics.gob",
		"Metrics file saved by train")
	cmd.Flags().StringVarP(&output, "output", "o", "curves.png",
		"File to draw the curves to")
	cmd.Flags().StringVarP(&format, "format", "f", experiment.PNG,
		"Image format, png or html")
	return cmd
}
