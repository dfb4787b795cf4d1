package commands

import (
	"fmt"

	"github.com/samuelfneumann/goimitate/environment/pendulum"
	"github.com/samuelfneumann/goimitate/trajectory"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/stat"
)

// DemoCommand returns the command recording expert pendulum
// demonstrations
func DemoCommand() *cobra.Command {
	var (
		episodes int
		steps    int
		seed     uint64
		output   string
	)
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Record expert pendulum demonstrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := pendulum.New(steps, seed, pendulum.Expert{})
			if err != nil {
				return err
			}
			expert, err := pendulum.Demonstrate(p, episodes)
			if err != nil {
				return err
			}
			if err := trajectory.SaveExpert(output, expert); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Saved %v transitions to %v, "+
				"mean reward %.3f\n", expert.Len(), output,
				stat.Mean(expert.Rewards, nil))
			return nil
		},
	}
	cmd.Flags().IntVarP(&episodes, "episodes", "e", 5, "Number of episodes")
	cmd.Flags().IntVar(&steps, "steps", pendulum.DefaultEpisodeSteps,
		"Steps per episode")
	cmd.Flags().Uint64Var(&seed, "seed", 1, "Seed of the start states")
	cmd.Flags().StringVarP(&output, "output", "o", "expert.gob",
		"File to save the demonstrations to")
	return cmd
}
