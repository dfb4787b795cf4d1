// Package environment outlines the interfaces and structs needed to
// implement concrete environments
package environment

import (
	"github.com/samuelfneumann/goimitate/timestep"
	"github.com/samuelfneumann/goimitate/trajectory"
	"gonum.org/v1/gonum/mat"
)

// Starter implements a distribution of starting states and samples
// starting states for environments
type Starter interface {
	Start() mat.Vector
	Seed(seed uint64)
}

// Ender determines when an episode ends. If End returns true, it has
// set the StepType of t to timestep.Last.
type Ender interface {
	End(t *timestep.TimeStep) bool
}

// Environment implements a simulated environment with continuous
// actions, together with the expert demonstrations recorded on it.
//
// Reset must be called before the first Step and after every step whose
// StepType is timestep.Last.
type Environment interface {
	Reset() (timestep.TimeStep, error)
	Step(action *mat.VecDense) (timestep.TimeStep, error)
	Seed(seed uint64)

	// Dataset returns the expert demonstrations of the environment
	Dataset() (*trajectory.Expert, error)

	ObservationSpec() Spec
	ActionSpec() Spec
	Close() error
}
