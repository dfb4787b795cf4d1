// Package commands implements the goimitate command line interface
package commands

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// RootCommand returns the goimitate command with all subcommands added
func RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "goimitate",
		Short:         "Imitation learning with PPO on continuous control",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(TrainCommand())
	root.AddCommand(DemoCommand())
	root.AddCommand(PlotCommand())
	return root
}

// Execute runs the goimitate command on the process arguments
func Execute() error {
	return RootCommand().Execute()
}

// newLogger returns a console logger writing to out. Debug messages are
// only logged if verbose is set.
func newLogger(out io.Writer, verbose bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: time.Kitchen,
		NoColor:    out != os.Stderr && out != os.Stdout,
	}).Level(level).With().Timestamp().Logger()
}
