package trajectory

import (
	"fmt"

	"github.com/samuelfneumann/goimitate/ilerr"
)

// Transitions is the (state, action, next state) view of a batch or
// expert dataset consumed by reward estimators.
//
// When Absorbing is set, each state carries a trailing absorbing-state
// marker and Synthetic[i] reports whether row i was inserted as an
// absorbing transition rather than taken from the underlying data.
type Transitions struct {
	StateDim  int
	ActionDim int

	States     []float64
	Actions    []float64
	NextStates []float64
	Terminals  []float64
	Rewards    []float64
	LogProbs   []float64 // Only set for policy data

	Absorbing bool
	Synthetic []bool
}

// Len returns the number of rows
func (t Transitions) Len() int {
	return len(t.Terminals)
}

// State returns row i of the states
func (t Transitions) State(i int) []float64 {
	return t.States[i*t.StateDim : (i+1)*t.StateDim]
}

// NextState returns row i of the next states
func (t Transitions) NextState(i int) []float64 {
	return t.NextStates[i*t.StateDim : (i+1)*t.StateDim]
}

// Action returns row i of the actions
func (t Transitions) Action(i int) []float64 {
	return t.Actions[i*t.ActionDim : (i+1)*t.ActionDim]
}

// FromBatch returns the Transitions of b. The next state of row i is
// row i+1 of b, and the next state of the last row is next, the state
// observed after the batch was collected.
func FromBatch(b *Batch, next []float64) (Transitions, error) {
	if b.Len() == 0 {
		return Transitions{}, fmt.Errorf("fromBatch: empty batch")
	}
	if len(next) != b.StateDim {
		return Transitions{}, ilerr.DimensionMismatch("fromBatch",
			"next state", b.StateDim, len(next))
	}

	nextStates := make([]float64, 0, len(b.States))
	nextStates = append(nextStates, b.States[b.StateDim:]...)
	nextStates = append(nextStates, next...)

	return Transitions{
		StateDim:   b.StateDim,
		ActionDim:  b.ActionDim,
		States:     append([]float64(nil), b.States...),
		Actions:    append([]float64(nil), b.Actions...),
		NextStates: nextStates,
		Terminals:  append([]float64(nil), b.Terminals...),
		Rewards:    append([]float64(nil), b.Rewards...),
		LogProbs:   append([]float64(nil), b.LogProbs...),
		Synthetic:  make([]bool, b.Len()),
	}, nil
}

// FromExpert returns the Transitions of e. The next state of each row
// is the following row, except at terminal rows and the final row,
// which transition to themselves; demonstrations never continue across
// an episode boundary.
func FromExpert(e *Expert) Transitions {
	n := e.Len()
	sd := e.StateDim
	nextStates := make([]float64, 0, len(e.States))
	for i := 0; i < n; i++ {
		next := i + 1
		if next == n || e.Terminals[i] != 0 {
			next = i
		}
		nextStates = append(nextStates, e.States[next*sd:(next+1)*sd]...)
	}

	return Transitions{
		StateDim:   e.StateDim,
		ActionDim:  e.ActionDim,
		States:     append([]float64(nil), e.States...),
		Actions:    append([]float64(nil), e.Actions...),
		NextStates: nextStates,
		Terminals:  append([]float64(nil), e.Terminals...),
		Rewards:    append([]float64(nil), e.Rewards...),
		Synthetic:  make([]bool, n),
	}
}

// Real returns the entries of values that belong to rows which are
// not synthetic absorbing transitions, in order.
func (t Transitions) Real(values []float64) ([]float64, error) {
	if len(values) != t.Len() {
		return nil, ilerr.DimensionMismatch("real", "values", t.Len(),
			len(values))
	}

	out := make([]float64, 0, len(values))
	for i, v := range values {
		if t.Synthetic == nil || !t.Synthetic[i] {
			out = append(out, v)
		}
	}
	return out, nil
}

// Rows returns a new Transitions holding only the given rows of t
func (t Transitions) Rows(indices []int) Transitions {
	out := Transitions{
		StateDim:   t.StateDim,
		ActionDim:  t.ActionDim,
		States:     make([]float64, 0, len(indices)*t.StateDim),
		Actions:    make([]float64, 0, len(indices)*t.ActionDim),
		NextStates: make([]float64, 0, len(indices)*t.StateDim),
		Terminals:  make([]float64, 0, len(indices)),
		Absorbing:  t.Absorbing,
		Synthetic:  make([]bool, 0, len(indices)),
	}
	if t.Rewards != nil {
		out.Rewards = make([]float64, 0, len(indices))
	}
	if t.LogProbs != nil {
		out.LogProbs = make([]float64, 0, len(indices))
	}

	for _, i := range indices {
		out.States = append(out.States, t.State(i)...)
		out.Actions = append(out.Actions, t.Action(i)...)
		out.NextStates = append(out.NextStates, t.NextState(i)...)
		out.Terminals = append(out.Terminals, t.Terminals[i])
		out.Synthetic = append(out.Synthetic,
			t.Synthetic != nil && t.Synthetic[i])
		if t.Rewards != nil {
			out.Rewards = append(out.Rewards, t.Rewards[i])
		}
		if t.LogProbs != nil {
			out.LogProbs = append(out.LogProbs, t.LogProbs[i])
		}
	}
	return out
}

// Inputs returns the row-major estimator inputs of t: the states
// concatenated with the actions along each row, or just the states if
// stateOnly is set.
func (t Transitions) Inputs(stateOnly bool) []float64 {
	if stateOnly {
		return append([]float64(nil), t.States...)
	}

	width := t.StateDim + t.ActionDim
	inputs := make([]float64, 0, t.Len()*width)
	for i := 0; i < t.Len(); i++ {
		inputs = append(inputs, t.State(i)...)
		inputs = append(inputs, t.Action(i)...)
	}
	return inputs
}

// CheckCompatible returns a *ilerr.DimensionMismatchError if expert and
// policy cannot be used together
func CheckCompatible(op string, expert, policy Transitions) error {
	if expert.StateDim != policy.StateDim {
		return ilerr.DimensionMismatch(op, "state dimensions",
			expert.StateDim, policy.StateDim)
	}
	if expert.ActionDim != policy.ActionDim {
		return ilerr.DimensionMismatch(op, "action dimensions",
			expert.ActionDim, policy.ActionDim)
	}
	if expert.Absorbing != policy.Absorbing {
		return fmt.Errorf("%v: expert and policy data must both carry "+
			"absorbing markers or neither", op)
	}
	for _, t := range []Transitions{expert, policy} {
		n := t.Len()
		if len(t.States) != n*t.StateDim {
			return ilerr.DimensionMismatch(op, "states", n*t.StateDim,
				len(t.States))
		}
		if len(t.NextStates) != n*t.StateDim {
			return ilerr.DimensionMismatch(op, "next states", n*t.StateDim,
				len(t.NextStates))
		}
		if len(t.Actions) != n*t.ActionDim {
			return ilerr.DimensionMismatch(op, "actions", n*t.ActionDim,
				len(t.Actions))
		}
	}
	return nil
}
