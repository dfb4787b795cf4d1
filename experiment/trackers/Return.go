package trackers

import (
	"fmt"

	ts "github.com/samuelfneumann/goimitate/timestep"
)

// Return tracks the episodic return in an experiment. When an
// environment returns a TimeStep, this Tracker will extract the reward
// and accumulate the return for each episode. Each finished episode is
// recorded together with the total number of environment steps taken
// when it finished.
//
// Note: An episode must finish for this Tracker to record its data.
// If the last episode in an experiment does not finish, that episode's
// return is not recorded.
type Return struct {
	lastTimeStep  int
	totalSteps    int
	currentReturn float64

	steps   []int
	returns []float64
}

// NewReturn creates and returns a new *Return Tracker
func NewReturn() *Return {
	return &Return{lastTimeStep: -1}
}

// Track tracks the rewards seen on a timestep. The first step of an
// episode starts a new return.
//
// Track panics if it is called for non-sequential timesteps
func (r *Return) Track(step ts.TimeStep) {
	if step.First() {
		r.currentReturn = 0
		r.lastTimeStep = step.Number
		return
	}

	// Ensure that Track is called on sequential timesteps
	if r.lastTimeStep+1 != step.Number {
		panic(fmt.Sprintf("track: last two timesteps tracked are not "+
			"sequential: timestep %v --> timestep %v were tracked",
			r.lastTimeStep, step.Number))
	}

	r.totalSteps++
	r.currentReturn += step.Reward
	r.lastTimeStep = step.Number

	if step.Last() {
		r.steps = append(r.steps, r.totalSteps)
		r.returns = append(r.returns, r.currentReturn)
		r.currentReturn = 0.0
		r.lastTimeStep = -1
	}
}

// Steps returns the total number of environment steps at the end of
// each finished episode
func (r *Return) Steps() []int {
	return append([]int(nil), r.steps...)
}

// Returns returns the return of each finished episode
func (r *Return) Returns() []float64 {
	return append([]float64(nil), r.returns...)
}

// Current returns the return of the episode in progress
func (r *Return) Current() float64 {
	return r.currentReturn
}
