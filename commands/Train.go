package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/logrusorgru/aurora"
	"github.com/samuelfneumann/goimitate/experiment"
	"github.com/samuelfneumann/goimitate/experiment/checkpointer"
	"github.com/samuelfneumann/goimitate/experiment/plot"
	"github.com/samuelfneumann/goimitate/utils/progressbar"
	"github.com/spf13/cobra"
)

type trainFlags struct {
	config    string
	steps     int
	imitation string
	seed      uint64
	output    string
	verbose   bool
}

// TrainCommand returns the command training an agent as described by a
// configuration file
func TrainCommand() *cobra.Command {
	var f trainFlags
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train an agent with PPO, optionally imitating an expert",
		RunE: func(cmd *cobra.Command, args []string) error {
			return train(cmd, f)
		},
	}
	cmd.Flags().StringVarP(&f.config, "config", "c", "",
		"JSON or YAML configuration file, defaults are used if empty")
	cmd.Flags().IntVar(&f.steps, "steps", 0, "Override the number of "+
		"training steps")
	cmd.Flags().StringVarP(&f.imitation, "imitation", "i", "",
		"Override the imitation algorithm")
	cmd.Flags().Uint64Var(&f.seed, "seed", 0, "Override the seed")
	cmd.Flags().StringVarP(&f.output, "output", "o", "",
		"Override the output directory")
	cmd.Flags().BoolVarP(&f.verbose, "verbose", "v", false,
		"Log debug messages instead of displaying progress")
	return cmd
}

func train(cmd *cobra.Command, f trainFlags) error {
	c := experiment.Default()
	if f.config != "" {
		var err error
		if c, err = experiment.LoadConfig(f.config); err != nil {
			return err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("steps") {
		c.Steps = f.steps
	}
	if flags.Changed("imitation") {
		c.Imitation = f.imitation
	}
	if flags.Changed("seed") {
		c.Seed = f.seed
	}
	if flags.Changed("output") {
		c.OutputDir = f.output
	}

	logger := newLogger(cmd.ErrOrStderr(), f.verbose)
	exp, err := c.Create(logger)
	if err != nil {
		return err
	}
	defer exp.Close()

	if online, ok := exp.(*experiment.Online); ok && !f.verbose {
		bar := progressbar.NewManualProgressBar(cmd.OutOrStdout(), 40,
			c.Steps, true)
		defer bar.Close()
		online.SetProgress(bar)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	recent, err := exp.Run(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%v %.3f\n",
		aurora.Bold("Final evaluation return:"), recent)

	store, err := checkpointer.NewDirStore(c.OutputDir)
	if err != nil {
		return err
	}
	if err := exp.Save(store); err != nil {
		return err
	}
	logger.Info().Str("dir", c.OutputDir).Msg("saved results")

	online, ok := exp.(*experiment.Online)
	if !ok || c.Plot == experiment.None {
		return nil
	}
	path := filepath.Join(c.OutputDir, "curves."+c.Plot)
	if c.Plot == experiment.HTML {
		err = plot.HTML(online.Metrics(), path)
	} else {
		err = plot.PNG(online.Metrics(), path)
	}
	if err != nil {
		return err
	}
	logger.Info().Str("path", path).Msg("plotted learning curves")
	return nil
}
