package trajectory

// Absorb returns t rewritten to encode an explicit absorbing state.
//
// Every state and next state gains a trailing marker feature, 0 for
// real states. After each terminal row a synthetic transition is
// inserted: its state is the absorbing state (all zeros with marker 1),
// its action is zero, and it transitions to itself. The terminal row
// itself now transitions into the absorbing state. Terminal flags are
// cleared, since with the absorbing state made explicit no transition
// ends the bootstrap chain.
//
// Transitions which already carry the marker are returned unchanged.
func Absorb(t Transitions) Transitions {
	if t.Absorbing {
		return t
	}

	stateDim := t.StateDim + 1
	absorbing := make([]float64, stateDim)
	absorbing[stateDim-1] = 1.0
	zeroAction := make([]float64, t.ActionDim)

	n := t.Len()
	out := Transitions{
		StateDim:   stateDim,
		ActionDim:  t.ActionDim,
		States:     make([]float64, 0, n*stateDim),
		Actions:    make([]float64, 0, n*t.ActionDim),
		NextStates: make([]float64, 0, n*stateDim),
		Terminals:  make([]float64, 0, n),
		Absorbing:  true,
		Synthetic:  make([]bool, 0, n),
	}
	if t.Rewards != nil {
		out.Rewards = make([]float64, 0, n)
	}
	if t.LogProbs != nil {
		out.LogProbs = make([]float64, 0, n)
	}

	for i := 0; i < n; i++ {
		terminal := t.Terminals[i] == 1

		out.States = append(out.States, t.State(i)...)
		out.States = append(out.States, 0)
		out.Actions = append(out.Actions, t.Action(i)...)
		if terminal {
			out.NextStates = append(out.NextStates, absorbing...)
		} else {
			out.NextStates = append(out.NextStates, t.NextState(i)...)
			out.NextStates = append(out.NextStates, 0)
		}
		out.Terminals = append(out.Terminals, 0)
		out.Synthetic = append(out.Synthetic, false)
		if t.Rewards != nil {
			out.Rewards = append(out.Rewards, t.Rewards[i])
		}
		if t.LogProbs != nil {
			out.LogProbs = append(out.LogProbs, t.LogProbs[i])
		}

		if !terminal {
			continue
		}

		// Synthetic absorbing transition, looping on itself
		out.States = append(out.States, absorbing...)
		out.Actions = append(out.Actions, zeroAction...)
		out.NextStates = append(out.NextStates, absorbing...)
		out.Terminals = append(out.Terminals, 0)
		out.Synthetic = append(out.Synthetic, true)
		if t.Rewards != nil {
			out.Rewards = append(out.Rewards, 0)
		}
		if t.LogProbs != nil {
			out.LogProbs = append(out.LogProbs, 0)
		}
	}

	return out
}

// StripMarker returns the row-major states of t without the absorbing
// marker feature. If t carries no marker, a copy of its states is
// returned.
func StripMarker(t Transitions) (states []float64, stateDim int) {
	if !t.Absorbing {
		return append([]float64(nil), t.States...), t.StateDim
	}

	stateDim = t.StateDim - 1
	states = make([]float64, 0, t.Len()*stateDim)
	for i := 0; i < t.Len(); i++ {
		states = append(states, t.State(i)[:stateDim]...)
	}
	return states, stateDim
}
