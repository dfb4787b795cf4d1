// Package imitation implements reward estimators that infer a reward
// function from expert demonstrations, and behavioural cloning.
//
// Adversarial estimators (AIRL, GAIL, FAIRL, PU-GAIL) train a
// discriminator between expert and policy transitions after every
// batch of experience. GMMIL compares policy and expert data with a
// kernel and has no parameters. RED and DRIL are trained once on the
// expert data before any interaction.
package imitation

import (
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"github.com/samuelfneumann/goimitate/ilerr"
	"github.com/samuelfneumann/goimitate/policy"
	"github.com/samuelfneumann/goimitate/solver"
	"github.com/samuelfneumann/goimitate/trajectory"
	G "gorgonia.org/gorgonia"
)

// Estimator predicts a reward for each policy transition based on
// expert demonstrations
type Estimator interface {
	Kind() Kind

	// Pretrain trains the estimator on expert data before interaction
	// starts. It is a no-op for estimators that are not pretrained.
	Pretrain(expert trajectory.Transitions) error

	// Update performs one pass of training on expert and policy data.
	// It is a no-op for estimators that do not train online.
	Update(expert, policy trajectory.Transitions) error

	// PredictReward returns one reward per row of policy
	PredictReward(expert, policy trajectory.Transitions) ([]float64, error)
}

// Saver is an Estimator with parameters that can be persisted
type Saver interface {
	Save(w io.Writer) error
}

// Config configures an Estimator
type Config struct {
	Hidden     []int
	Activation string
	Init       G.InitWFn

	StateOnly bool
	Absorbing bool
	Discount  float64

	Epochs       int
	BatchSize    int
	LearningRate float64
	Solver       *solver.Solver // defaults to RMSProp(LearningRate)

	R1RegCoeff        float64
	PosClassPrior     float64 // PU-GAIL η
	NonnegativeMargin float64 // PU-GAIL β

	SelfSimilarity bool // GMMIL

	Dropout    float64 // DRIL
	Passes     int     // DRIL
	Quantile   float64 // DRIL
	LogStdInit float64 // DRIL

	Seed uint64
}

// DefaultConfig returns the default Config
func DefaultConfig() Config {
	return Config{
		Hidden:            []int{32, 32},
		Activation:        "tanh",
		Discount:          0.99,
		Epochs:            5,
		BatchSize:         128,
		LearningRate:      1e-3,
		R1RegCoeff:        1,
		PosClassPrior:     0.5,
		NonnegativeMargin: 0,
		SelfSimilarity:    true,
		Dropout:           0.1,
		Passes:            5,
		Quantile:          0.98,
		Seed:              1,
	}
}

// Validate returns a *ilerr.ConfigurationError if c cannot be used for
// an estimator of Kind k
func (c Config) Validate(k Kind) error {
	const op = "validate"
	if k == PPO || k == GMMIL {
		return nil
	}

	switch {
	case c.Epochs < 1:
		return ilerr.Configuration(op, "imitation epochs must be "+
			"positive, got %v", c.Epochs)
	case c.BatchSize < 1:
		return ilerr.Configuration(op, "imitation batch size must be "+
			"positive, got %v", c.BatchSize)
	case c.Solver == nil && c.LearningRate <= 0:
		return ilerr.Configuration(op, "imitation learning rate must be "+
			"positive, got %v", c.LearningRate)
	case c.R1RegCoeff < 0:
		return ilerr.Configuration(op, "r1 regularisation coefficient "+
			"must be non-negative, got %v", c.R1RegCoeff)
	}

	switch k {
	case AIRL:
		if c.Discount <= 0 || c.Discount > 1 {
			return ilerr.Configuration(op, "discount must be in (0, 1], "+
				"got %v", c.Discount)
		}
	case PUGAIL:
		if c.PosClassPrior <= 0 || c.PosClassPrior >= 1 {
			return ilerr.Configuration(op, "positive class prior must be "+
				"in (0, 1), got %v", c.PosClassPrior)
		}
		if c.NonnegativeMargin < 0 {
			return ilerr.Configuration(op, "non-negative margin must be "+
				"non-negative, got %v", c.NonnegativeMargin)
		}
	case DRIL:
		if c.Dropout <= 0 || c.Dropout >= 1 {
			return ilerr.Configuration(op, "dropout must be in (0, 1), "+
				"got %v", c.Dropout)
		}
		if c.Passes < 2 {
			return ilerr.Configuration(op, "uncertainty needs at least 2 "+
				"stochastic passes, got %v", c.Passes)
		}
		if c.Quantile <= 0 || c.Quantile > 1 {
			return ilerr.Configuration(op, "quantile must be in (0, 1], "+
				"got %v", c.Quantile)
		}
	}
	return nil
}

// Deps are the collaborators an Estimator may need
type Deps struct {
	StateDim  int // excluding any absorbing marker
	ActionDim int

	// Agent provides log π(a|s) for AIRL
	Agent  *policy.ActorCritic
	Logger zerolog.Logger
}

// New returns a new Estimator of Kind k
func New(k Kind, c Config, deps Deps) (Estimator, error) {
	const op = "new"
	if err := c.Validate(k); err != nil {
		return nil, err
	}
	if deps.StateDim < 1 || deps.ActionDim < 1 {
		return nil, ilerr.Configuration(op, "state and action dimensions "+
			"must be positive")
	}
	logger := deps.Logger.With().Str("estimator", k.String()).Logger()

	var (
		e   Estimator
		err error
	)
	switch k {
	case PPO:
		e = None{}
	case AIRL:
		if deps.Agent == nil {
			return nil, ilerr.Configuration(op, "AIRL requires an agent")
		}
		e, err = newAIRL(c, deps.StateDim, deps.ActionDim, deps.Agent, logger)
	case GAIL, FAIRL, PUGAIL:
		e, err = newGAIL(k, c, deps.StateDim, deps.ActionDim, logger)
	case GMMIL:
		e = newGMMIL(c, logger)
	case RED:
		e, err = newRED(c, deps.StateDim, deps.ActionDim, logger)
	case DRIL:
		e, err = newDRIL(c, deps.StateDim, deps.ActionDim, logger)
	case BC:
		return nil, ilerr.Configuration(op, "BC is not a reward estimator")
	default:
		return nil, ilerr.Configuration(op, "unknown imitation algorithm %q",
			k)
	}
	if err != nil {
		return nil, fmt.Errorf("%v: could not create %v: %w", op, k, err)
	}
	return e, nil
}

// None is the Estimator of plain PPO. It returns the environment
// rewards unchanged.
type None struct{}

// Kind implements the Estimator interface
func (None) Kind() Kind { return PPO }

// Pretrain implements the Estimator interface
func (None) Pretrain(trajectory.Transitions) error { return nil }

// Update implements the Estimator interface
func (None) Update(expert, policy trajectory.Transitions) error { return nil }

// PredictReward returns a copy of the environment rewards of policy
func (None) PredictReward(expert, policy trajectory.Transitions) ([]float64,
	error) {
	if len(policy.Rewards) != policy.Len() {
		return nil, ilerr.DimensionMismatch("predictReward", "rewards",
			policy.Len(), len(policy.Rewards))
	}
	return append([]float64(nil), policy.Rewards...), nil
}
