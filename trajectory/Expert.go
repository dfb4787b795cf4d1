package trajectory

import (
	"encoding/gob"
	"fmt"
	"os"

	"github.com/samuelfneumann/goimitate/ilerr"
)

// Expert is a dataset of expert demonstrations. It has the same row
// layout as a Batch but carries no value estimates or log
// probabilities. An Expert is read-only for the lifetime of a run.
type Expert struct {
	StateDim  int
	ActionDim int

	States    []float64
	Actions   []float64
	Rewards   []float64
	Terminals []float64
}

// Len returns the number of transitions in the dataset
func (e *Expert) Len() int {
	return len(e.Terminals)
}

// Validate checks that the dataset is non-empty, index aligned, and
// has the given state and action dimensions.
func (e *Expert) Validate(stateDim, actionDim int) error {
	const op = "validate"
	if e == nil || e.Len() == 0 {
		return ilerr.Configuration(op, "expert dataset is empty")
	}
	if e.StateDim != stateDim {
		return ilerr.Configuration(op, "expert state dimension %v does "+
			"not match environment state dimension %v", e.StateDim, stateDim)
	}
	if e.ActionDim != actionDim {
		return ilerr.Configuration(op, "expert action dimension %v does "+
			"not match environment action dimension %v", e.ActionDim,
			actionDim)
	}

	n := e.Len()
	if len(e.States) != n*e.StateDim {
		return ilerr.DimensionMismatch(op, "expert states", n*e.StateDim,
			len(e.States))
	}
	if len(e.Actions) != n*e.ActionDim {
		return ilerr.DimensionMismatch(op, "expert actions", n*e.ActionDim,
			len(e.Actions))
	}
	if len(e.Rewards) != n {
		return ilerr.DimensionMismatch(op, "expert rewards", n,
			len(e.Rewards))
	}
	return nil
}

// Episodes returns a new dataset holding only the first n complete
// episodes of e. If n <= 0 or e holds fewer than n episodes, a copy of
// all of e is returned.
func (e *Expert) Episodes(n int) *Expert {
	rows := e.Len()
	if n > 0 {
		seen := 0
		for i, term := range e.Terminals {
			if term == 1 {
				seen++
				if seen == n {
					rows = i + 1
					break
				}
			}
		}
	}

	return &Expert{
		StateDim:  e.StateDim,
		ActionDim: e.ActionDim,
		States:    append([]float64(nil), e.States[:rows*e.StateDim]...),
		Actions:   append([]float64(nil), e.Actions[:rows*e.ActionDim]...),
		Rewards:   append([]float64(nil), e.Rewards[:rows]...),
		Terminals: append([]float64(nil), e.Terminals[:rows]...),
	}
}

// Episode is a single recorded episode
type Episode struct {
	States    []float64
	Actions   []float64
	Rewards   []float64
	Terminals []float64
}

// FromEpisodes concatenates recorded episodes into a single dataset
func FromEpisodes(stateDim, actionDim int, episodes []Episode) *Expert {
	e := &Expert{StateDim: stateDim, ActionDim: actionDim}
	for _, ep := range episodes {
		e.States = append(e.States, ep.States...)
		e.Actions = append(e.Actions, ep.Actions...)
		e.Rewards = append(e.Rewards, ep.Rewards...)
		e.Terminals = append(e.Terminals, ep.Terminals...)
	}
	return e
}

// SaveExpert gob encodes the dataset to the file at path
func SaveExpert(path string, e *Expert) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("saveExpert: could not create file: %v", err)
	}
	defer file.Close()

	if err := gob.NewEncoder(file).Encode(e); err != nil {
		return fmt.Errorf("saveExpert: could not encode dataset: %v", err)
	}
	return nil
}

// LoadExpert decodes a dataset previously saved with SaveExpert
func LoadExpert(path string) (*Expert, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("loadExpert: could not open file: %v", err)
	}
	defer file.Close()

	var e Expert
	if err := gob.NewDecoder(file).Decode(&e); err != nil {
		return nil, fmt.Errorf("loadExpert: could not decode dataset: %v",
			err)
	}
	return &e, nil
}
