// Package expreplay implements a bounded replay of recent policy
// trajectory batches. Adversarial reward estimators train against the
// union of the last K batches rather than only the newest one, which
// steadies the discriminator while the policy distribution moves.
package expreplay

import (
	"github.com/samuelfneumann/goimitate/trajectory"
)

// Window is a fixed-capacity ring of trajectory batches. Once full,
// each Push evicts the oldest batch. Batches are stored by reference
// and are never modified.
type Window struct {
	batches []*trajectory.Batch

	// currentInUsePos is the slot the next Push writes to
	currentInUsePos int
	isFull          bool
}

// NewWindow returns a new empty Window holding at most capacity
// batches
func NewWindow(capacity int) (*Window, error) {
	if capacity < 1 {
		return nil, &ExpReplayError{Op: "newWindow", Err: errIllegalCapacity}
	}
	return &Window{batches: make([]*trajectory.Batch, capacity)}, nil
}

// Push adds a batch to the window, evicting the oldest batch if the
// window is at capacity
func (w *Window) Push(b *trajectory.Batch) {
	w.batches[w.currentInUsePos] = b
	w.currentInUsePos = (w.currentInUsePos + 1) % len(w.batches)
	if w.currentInUsePos == 0 {
		w.isFull = true
	}
}

// Len returns the number of batches held
func (w *Window) Len() int {
	if w.isFull {
		return len(w.batches)
	}
	return w.currentInUsePos
}

// Capacity returns the maximum number of batches held
func (w *Window) Capacity() int {
	return len(w.batches)
}

// Batches returns the held batches, oldest first
func (w *Window) Batches() []*trajectory.Batch {
	if !w.isFull {
		out := make([]*trajectory.Batch, w.currentInUsePos)
		copy(out, w.batches[:w.currentInUsePos])
		return out
	}

	out := make([]*trajectory.Batch, 0, len(w.batches))
	out = append(out, w.batches[w.currentInUsePos:]...)
	out = append(out, w.batches[:w.currentInUsePos]...)
	return out
}

// Flatten concatenates the held batches, oldest first, into a single
// batch
func (w *Window) Flatten() (*trajectory.Batch, error) {
	if w.Len() == 0 {
		return nil, &ExpReplayError{Op: "flatten", Err: errEmptyWindow}
	}
	return trajectory.Concat(w.Batches()...)
}
