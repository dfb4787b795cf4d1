package trajectory

import (
	"fmt"

	"github.com/samuelfneumann/goimitate/ilerr"
)

// Batch is a flattened sequence of transitions. States and Actions are
// stored row-major, so that row i of States is
// States[i*StateDim:(i+1)*StateDim]. All fields are index aligned, and
// Terminals[i] == 1 marks the end of an episode.
//
// Batches are values: no stage modifies a Batch after construction.
// Stages that change a field, such as reward relabelling, return a new
// Batch instead.
type Batch struct {
	StateDim  int
	ActionDim int

	States      []float64
	Actions     []float64
	Rewards     []float64
	Terminals   []float64
	LogProbs    []float64
	OldLogProbs []float64
	Values      []float64
}

// Len returns the number of transitions in the batch
func (b *Batch) Len() int {
	return len(b.Rewards)
}

// State returns row i of the states
func (b *Batch) State(i int) []float64 {
	return b.States[i*b.StateDim : (i+1)*b.StateDim]
}

// Action returns row i of the actions
func (b *Batch) Action(i int) []float64 {
	return b.Actions[i*b.ActionDim : (i+1)*b.ActionDim]
}

// Validate checks that all fields of the batch are index aligned
func (b *Batch) Validate() error {
	n := b.Len()
	if n == 0 {
		return fmt.Errorf("validate: empty batch")
	}
	if len(b.States) != n*b.StateDim {
		return ilerr.DimensionMismatch("validate", "states", n*b.StateDim,
			len(b.States))
	}
	if len(b.Actions) != n*b.ActionDim {
		return ilerr.DimensionMismatch("validate", "actions", n*b.ActionDim,
			len(b.Actions))
	}

	fields := map[string][]float64{
		"terminals":           b.Terminals,
		"log probabilities":   b.LogProbs,
		"old log probability": b.OldLogProbs,
		"values":              b.Values,
	}
	for name, field := range fields {
		if len(field) != n {
			return ilerr.DimensionMismatch("validate", name, n, len(field))
		}
	}
	return nil
}

// Clone returns a deep copy of the batch
func (b *Batch) Clone() *Batch {
	return &Batch{
		StateDim:    b.StateDim,
		ActionDim:   b.ActionDim,
		States:      append([]float64(nil), b.States...),
		Actions:     append([]float64(nil), b.Actions...),
		Rewards:     append([]float64(nil), b.Rewards...),
		Terminals:   append([]float64(nil), b.Terminals...),
		LogProbs:    append([]float64(nil), b.LogProbs...),
		OldLogProbs: append([]float64(nil), b.OldLogProbs...),
		Values:      append([]float64(nil), b.Values...),
	}
}

// WithRewards returns a copy of the batch whose rewards are replaced by
// rewards
func (b *Batch) WithRewards(rewards []float64) (*Batch, error) {
	if len(rewards) != b.Len() {
		return nil, ilerr.DimensionMismatch("withRewards", "rewards",
			b.Len(), len(rewards))
	}
	batch := b.Clone()
	copy(batch.Rewards, rewards)
	return batch, nil
}

// WithValues returns a copy of the batch whose value estimates are
// replaced by values
func (b *Batch) WithValues(values []float64) (*Batch, error) {
	if len(values) != b.Len() {
		return nil, ilerr.DimensionMismatch("withValues", "values",
			b.Len(), len(values))
	}
	batch := b.Clone()
	copy(batch.Values, values)
	return batch, nil
}

// Concat concatenates batches in order into a single new Batch
func Concat(batches ...*Batch) (*Batch, error) {
	if len(batches) == 0 {
		return nil, fmt.Errorf("concat: no batches to concatenate")
	}

	stateDim, actionDim := batches[0].StateDim, batches[0].ActionDim
	out := &Batch{StateDim: stateDim, ActionDim: actionDim}
	for _, b := range batches {
		if b.StateDim != stateDim {
			return nil, ilerr.DimensionMismatch("concat", "state dimensions",
				stateDim, b.StateDim)
		}
		if b.ActionDim != actionDim {
			return nil, ilerr.DimensionMismatch("concat",
				"action dimensions", actionDim, b.ActionDim)
		}
		out.States = append(out.States, b.States...)
		out.Actions = append(out.Actions, b.Actions...)
		out.Rewards = append(out.Rewards, b.Rewards...)
		out.Terminals = append(out.Terminals, b.Terminals...)
		out.LogProbs = append(out.LogProbs, b.LogProbs...)
		out.OldLogProbs = append(out.OldLogProbs, b.OldLogProbs...)
		out.Values = append(out.Values, b.Values...)
	}
	return out, nil
}

// Augmented is a Batch extended with the return-to-go and advantage of
// each step. A new Augmented is produced for every training batch.
type Augmented struct {
	*Batch
	Returns    []float64
	Advantages []float64
}
