// Package pendulum implements the continuous-action pendulum swing-up
// environment
package pendulum

import (
	"fmt"
	"math"

	"github.com/samuelfneumann/goimitate/environment"
	"github.com/samuelfneumann/goimitate/ilerr"
	"github.com/samuelfneumann/goimitate/timestep"
	"github.com/samuelfneumann/goimitate/trajectory"
	"github.com/samuelfneumann/goimitate/utils/floatutils"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r1"
)

// default physical constants
const (
	AngleBound  float64 = math.Pi // +/- Angle bounds
	SpeedBound  float64 = 8.0     // +/- Speed bounds
	TorqueBound float64 = 2.0     // +/- Torque bounds

	dt      float64 = 0.05
	Gravity float64 = 9.8
	Mass    float64 = 1.0
	Length  float64 = 1.0

	ActionDims      int = 1
	ObservationDims int = 3

	// DefaultEpisodeSteps is the episode cutoff used when none is given
	DefaultEpisodeSteps int = 200
)

// Expert describes where the expert demonstrations of a Pendulum come
// from. If Path is set, the dataset is read from the gob file at Path;
// otherwise Episodes episodes are generated with Demonstrate. If
// Episodes is positive, only the first Episodes episodes of a loaded
// dataset are kept.
type Expert struct {
	Path     string
	Episodes int
}

// Pendulum implements the classic control environment Pendulum. A
// pendulum is attached to a fixed base and the agent applies a torque at
// the base. The torque is underpowered, so that to swing the pendulum
// straight up it must first be rocked back and forth.
//
// The angle θ is measured from the upright position and normalised to
// [-π, π]; the angular velocity is clipped to [-SpeedBound,
// SpeedBound]. Observations are [cos θ, sin θ, θ̇]. Actions are
// 1-dimensional torques, clipped to [-TorqueBound, TorqueBound]. The
// reward of a step is -(θ² + 0.1θ̇² + 0.001u²), computed from the state
// in which the torque u was applied. Episodes end after a fixed number
// of steps, and the last step of an episode is reported as terminal.
//
// Pendulum implements the environment.Environment interface
type Pendulum struct {
	starter environment.Starter
	ender   environment.Ender
	expert  Expert
	seed    uint64

	gravity      float64
	mass         float64
	length       float64
	speedBounds  r1.Interval
	torqueBounds r1.Interval

	th, thdot float64
	lastStep  timestep.TimeStep
	started   bool

	dataset *trajectory.Expert
}

// New returns a new Pendulum whose episodes last episodeSteps steps
func New(episodeSteps int, seed uint64, expert Expert) (*Pendulum, error) {
	if episodeSteps <= 0 {
		return nil, ilerr.Configuration("new", "episode steps must be "+
			"positive, got %v", episodeSteps)
	}

	angle := r1.Interval{Min: -AngleBound, Max: AngleBound}
	speed := r1.Interval{Min: -1.0, Max: 1.0}

	return &Pendulum{
		starter:      environment.NewUniformStarter([]r1.Interval{angle, speed}, seed),
		ender:        environment.NewStepLimit(episodeSteps),
		expert:       expert,
		seed:         seed,
		gravity:      Gravity,
		mass:         Mass,
		length:       Length,
		speedBounds:  r1.Interval{Min: -SpeedBound, Max: SpeedBound},
		torqueBounds: r1.Interval{Min: -TorqueBound, Max: TorqueBound},
	}, nil
}

// Seed reseeds the starting state distribution
func (p *Pendulum) Seed(seed uint64) {
	p.seed = seed
	p.starter.Seed(seed)
}

// Reset starts a new episode from a starting state drawn from the
// Starter
func (p *Pendulum) Reset() (timestep.TimeStep, error) {
	start := p.starter.Start()
	p.th, p.thdot = start.AtVec(0), start.AtVec(1)
	p.started = true

	p.lastStep = timestep.New(timestep.First, 0, p.observation(), 0)
	return p.lastStep, nil
}

// Step applies the torque action to the pendulum base and returns the
// next timestep
func (p *Pendulum) Step(action *mat.VecDense) (timestep.TimeStep, error) {
	const op = "step"
	if !p.started {
		return timestep.TimeStep{}, fmt.Errorf("%v: environment must be "+
			"reset before stepping", op)
	}
	if p.lastStep.Last() {
		return timestep.TimeStep{}, fmt.Errorf("%v: episode has ended, "+
			"reset the environment", op)
	}
	if action.Len() != ActionDims {
		return timestep.TimeStep{}, ilerr.DimensionMismatch(op, "action",
			ActionDims, action.Len())
	}
	torque := action.AtVec(0)
	if !floatutils.IsFinite(torque) {
		return timestep.TimeStep{}, ilerr.NumericInstability(op, "action",
			0, torque)
	}
	torque = floatutils.ClipInterval(torque, p.torqueBounds)

	reward := -(math.Pow(p.th, 2) + 0.1*math.Pow(p.thdot, 2) +
		0.001*math.Pow(torque, 2))
	p.th, p.thdot = p.nextState(torque)

	nextStep := timestep.New(timestep.Mid, reward, p.observation(),
		p.lastStep.Number+1)
	p.ender.End(&nextStep)

	p.lastStep = nextStep
	return nextStep, nil
}

// nextState computes the angle and angular velocity after applying
// torque for one step from the current state
func (p *Pendulum) nextState(torque float64) (float64, float64) {
	thdot := p.thdot + (3*p.gravity/(2*p.length)*math.Sin(p.th)+
		3.0/(p.mass*math.Pow(p.length, 2))*torque)*dt
	thdot = floatutils.ClipInterval(thdot, p.speedBounds)

	th := normalizeAngle(p.th + thdot*dt)
	return th, thdot
}

func (p *Pendulum) observation() *mat.VecDense {
	return mat.NewVecDense(ObservationDims, []float64{
		math.Cos(p.th),
		math.Sin(p.th),
		p.thdot,
	})
}

// Angle returns the current angle θ and angular velocity θ̇
func (p *Pendulum) Angle() (float64, float64) {
	return p.th, p.thdot
}

// Dataset returns the expert demonstrations of the environment. The
// dataset is read or generated on the first call and cached.
func (p *Pendulum) Dataset() (*trajectory.Expert, error) {
	if p.dataset != nil {
		return p.dataset, nil
	}

	var (
		e   *trajectory.Expert
		err error
	)
	if p.expert.Path != "" {
		e, err = trajectory.LoadExpert(p.expert.Path)
		if err != nil {
			return nil, fmt.Errorf("dataset: %w", err)
		}
		e = e.Episodes(p.expert.Episodes)
	} else {
		// Demonstrations run on a separate copy so that the episode in
		// progress is left untouched
		demo, err := New(DefaultEpisodeSteps, p.seed+1, Expert{})
		if err != nil {
			return nil, err
		}
		if e, err = Demonstrate(demo, max(p.expert.Episodes, 1)); err != nil {
			return nil, fmt.Errorf("dataset: %w", err)
		}
	}

	if err := e.Validate(ObservationDims, ActionDims); err != nil {
		return nil, fmt.Errorf("dataset: %w", err)
	}
	p.dataset = e
	return e, nil
}

// ObservationSpec returns the observation specification of the
// environment
func (p *Pendulum) ObservationSpec() environment.Spec {
	shape := mat.NewVecDense(ObservationDims, nil)
	lowerBound := mat.NewVecDense(ObservationDims,
		[]float64{-1, -1, p.speedBounds.Min})
	upperBound := mat.NewVecDense(ObservationDims,
		[]float64{1, 1, p.speedBounds.Max})

	return environment.NewSpec(shape, environment.Observation, lowerBound,
		upperBound, environment.Continuous)
}

// ActionSpec returns the action specification of the environment
func (p *Pendulum) ActionSpec() environment.Spec {
	shape := mat.NewVecDense(ActionDims, nil)
	lowerBound := mat.NewVecDense(ActionDims, []float64{p.torqueBounds.Min})
	upperBound := mat.NewVecDense(ActionDims, []float64{p.torqueBounds.Max})

	return environment.NewSpec(shape, environment.Action, lowerBound,
		upperBound, environment.Continuous)
}

// Close is a no-op
func (p *Pendulum) Close() error { return nil }

// String converts the environment to a string representation
func (p *Pendulum) String() string {
	str := "Pendulum  |  theta: %v  |  theta dot: %v"
	return fmt.Sprintf(str, p.th, p.thdot)
}

// normalizeAngle normalizes the pendulum angle to [-π, π)
func normalizeAngle(th float64) float64 {
	th = math.Mod(th+math.Pi, 2*math.Pi)
	if th < 0 {
		th += 2 * math.Pi
	}
	return th - math.Pi
}
