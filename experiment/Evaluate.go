package experiment

import (
	"fmt"

	env "github.com/samuelfneumann/goimitate/environment"
	"github.com/samuelfneumann/goimitate/policy"
	"github.com/samuelfneumann/goimitate/trajectory"
	"gonum.org/v1/gonum/mat"
)

// Evaluate runs episodes episodes of the deterministic mean-action
// policy of agent on e and returns the return of each episode. If
// record is set, the episodes are also returned, with every terminal
// flag zero except that of the last step of each episode.
func Evaluate(e env.Environment, agent *policy.ActorCritic, episodes int,
	record bool) ([]float64, []trajectory.Episode, error) {
	const op = "evaluate"
	returns := make([]float64, 0, episodes)
	var recorded []trajectory.Episode

	for i := 0; i < episodes; i++ {
		step, err := e.Reset()
		if err != nil {
			return nil, nil, fmt.Errorf("%v: %v", op, err)
		}

		var ep trajectory.Episode
		ret := 0.0
		for !step.Last() {
			state := step.State()
			action, err := agent.Greedy(state)
			if err != nil {
				return nil, nil, fmt.Errorf("%v: %v", op, err)
			}
			step, err = e.Step(mat.NewVecDense(len(action), action))
			if err != nil {
				return nil, nil, fmt.Errorf("%v: %v", op, err)
			}
			ret += step.Reward

			if record {
				ep.States = append(ep.States, state...)
				ep.Actions = append(ep.Actions, action...)
				ep.Rewards = append(ep.Rewards, step.Reward)
				ep.Terminals = append(ep.Terminals, 0)
			}
		}
		returns = append(returns, ret)

		if record && len(ep.Terminals) > 0 {
			ep.Terminals[len(ep.Terminals)-1] = 1
			recorded = append(recorded, ep)
		}
	}
	return returns, recorded, nil
}
