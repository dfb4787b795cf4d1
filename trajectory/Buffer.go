// Package trajectory implements the data that flows between rollout
// collection, reward relabelling, advantage estimation, and policy
// updates: single transitions, the buffer that collects them, flat
// trajectory batches, and expert datasets.
package trajectory

import (
	"fmt"
)

// Transition is a single step of agent-environment interaction
type Transition struct {
	State      []float64
	Action     []float64
	Reward     float64
	Terminal   bool
	LogProb    float64 // log π(a|s) under the collecting policy
	OldLogProb float64 // log π(a|s) at update time, initially LogProb
	Value      float64
}

// Buffer stores transitions in the order they were added until it
// reaches its capacity. Stored transitions are copied and are never
// modified afterwards.
type Buffer struct {
	stateDim  int
	actionDim int
	capacity  int

	transitions []Transition
}

// NewBuffer returns a new, empty Buffer
func NewBuffer(stateDim, actionDim, capacity int) (*Buffer, error) {
	if stateDim <= 0 || actionDim <= 0 {
		return nil, fmt.Errorf("newBuffer: dimensions must be positive")
	}
	if capacity <= 0 {
		return nil, fmt.Errorf("newBuffer: capacity must be positive")
	}

	return &Buffer{
		stateDim:    stateDim,
		actionDim:   actionDim,
		capacity:    capacity,
		transitions: make([]Transition, 0, capacity),
	}, nil
}

// Add appends a copy of t to the buffer
func (b *Buffer) Add(t Transition) error {
	if b.Full() {
		return fmt.Errorf("add: cannot add new transition, buffer at " +
			"maximum capacity")
	}
	if len(t.State) != b.stateDim {
		return fmt.Errorf("add: illegal state length \n\twant(%v)\n\thave(%v)",
			b.stateDim, len(t.State))
	}
	if len(t.Action) != b.actionDim {
		return fmt.Errorf("add: illegal action length \n\twant(%v)\n\thave(%v)",
			b.actionDim, len(t.Action))
	}

	stored := t
	stored.State = append([]float64(nil), t.State...)
	stored.Action = append([]float64(nil), t.Action...)
	b.transitions = append(b.transitions, stored)

	return nil
}

// Len returns the number of transitions in the buffer
func (b *Buffer) Len() int {
	return len(b.transitions)
}

// Capacity returns the maximum number of transitions the buffer holds
func (b *Buffer) Capacity() int {
	return b.capacity
}

// Full returns whether the buffer is at capacity
func (b *Buffer) Full() bool {
	return len(b.transitions) >= b.capacity
}

// Reset removes all transitions from the buffer
func (b *Buffer) Reset() {
	b.transitions = b.transitions[:0]
}

// Flatten returns the buffered transitions as a single Batch, with
// index i of every field referring to the i-th transition added.
func (b *Buffer) Flatten() (*Batch, error) {
	n := len(b.transitions)
	if n == 0 {
		return nil, fmt.Errorf("flatten: buffer empty")
	}

	batch := &Batch{
		StateDim:    b.stateDim,
		ActionDim:   b.actionDim,
		States:      make([]float64, 0, n*b.stateDim),
		Actions:     make([]float64, 0, n*b.actionDim),
		Rewards:     make([]float64, n),
		Terminals:   make([]float64, n),
		LogProbs:    make([]float64, n),
		OldLogProbs: make([]float64, n),
		Values:      make([]float64, n),
	}

	for i, t := range b.transitions {
		batch.States = append(batch.States, t.State...)
		batch.Actions = append(batch.Actions, t.Action...)
		batch.Rewards[i] = t.Reward
		if t.Terminal {
			batch.Terminals[i] = 1.0
		}
		batch.LogProbs[i] = t.LogProb
		batch.OldLogProbs[i] = t.OldLogProb
		batch.Values[i] = t.Value
	}

	return batch, nil
}
