package pendulum

import (
	"fmt"
	"math"

	"github.com/samuelfneumann/goimitate/trajectory"
	"github.com/samuelfneumann/goimitate/utils/floatutils"
	"gonum.org/v1/gonum/mat"
)

// Gains of the swing-up controller
const (
	energyGain   = 5.0
	angleGain    = 10.0
	velocityGain = 2.0

	// The controller balances once cos θ exceeds catchCosine
	catchCosine = 0.9
)

// Controller returns the torque of an energy-shaping swing-up
// controller in the state with angle th and angular velocity thdot.
//
// With θ̈ = a·sin θ + b·u, the energy E = θ̇²/2 + a(cos θ - 1) is zero
// only when the pendulum is upright at rest, and dE/dt = b·u·θ̇. Far
// from the top the controller pumps energy with u ∝ -E·θ̇; close to the
// top it balances with a PD law.
func Controller(th, thdot float64) float64 {
	if math.Cos(th) > catchCosine {
		return floatutils.Clip(-(angleGain*th + velocityGain*thdot),
			-TorqueBound, TorqueBound)
	}

	a := 3 * Gravity / (2 * Length)
	energy := 0.5*thdot*thdot + a*(math.Cos(th)-1)
	if math.Abs(thdot) < 1e-3 {
		// At rest with no energy to pump, kick the pendulum
		return TorqueBound
	}
	return floatutils.Clip(-energyGain*energy*thdot, -TorqueBound,
		TorqueBound)
}

// Demonstrate records episodes episodes of the swing-up controller on p
func Demonstrate(p *Pendulum, episodes int) (*trajectory.Expert, error) {
	if episodes < 1 {
		return nil, fmt.Errorf("demonstrate: episodes must be positive, "+
			"got %v", episodes)
	}

	recorded := make([]trajectory.Episode, 0, episodes)
	for i := 0; i < episodes; i++ {
		step, err := p.Reset()
		if err != nil {
			return nil, fmt.Errorf("demonstrate: %v", err)
		}

		var ep trajectory.Episode
		for !step.Last() {
			state := step.State()
			torque := Controller(p.Angle())

			step, err = p.Step(mat.NewVecDense(1, []float64{torque}))
			if err != nil {
				return nil, fmt.Errorf("demonstrate: %v", err)
			}
			ep.States = append(ep.States, state...)
			ep.Actions = append(ep.Actions, torque)
			ep.Rewards = append(ep.Rewards, step.Reward)
			ep.Terminals = append(ep.Terminals, floatutils.Bool(step.Last()))
		}
		recorded = append(recorded, ep)
	}
	return trajectory.FromEpisodes(ObservationDims, ActionDims, recorded), nil
}
