package imitation

import (
	"encoding/gob"
	"fmt"
	"io"
	"sort"

	"github.com/rs/zerolog"
	"github.com/samuelfneumann/goimitate/network"
	"github.com/samuelfneumann/goimitate/policy"
	"github.com/samuelfneumann/goimitate/trajectory"
	"gonum.org/v1/gonum/stat"
)

// DRILEstimator implements disagreement-regularised imitation
// learning. An ensemble of policies, represented by a single actor with dropout, is
// trained by behavioural cloning on the expert data. The uncertainty of
// a state-action pair is the variance of π(a|s) over stochastic forward
// passes. Pairs whose uncertainty is at most a quantile of the expert
// uncertainties are rewarded with 1, all others with 0.
type DRILEstimator struct {
	config Config
	logger zerolog.Logger

	train     *policy.Actor
	infer     *policy.Actor
	bc        *BehaviouralCloning
	threshold float64
	trained   bool
}

func newDRIL(c Config, stateDim, actionDim int,
	logger zerolog.Logger) (*DRILEstimator, error) {
	pc := policy.Config{
		Hidden:     c.Hidden,
		Activation: c.Activation,
		LogStdInit: c.LogStdInit,
		Init:       initOrDefault(c),
	}
	train, err := policy.NewActor(stateDim, actionDim, c.BatchSize, pc,
		c.Dropout, c.Seed)
	if err != nil {
		return nil, err
	}
	infer, err := train.CloneWithBatch(c.BatchSize)
	if err != nil {
		return nil, err
	}
	bc, err := NewBehaviouralCloning(train, c, logger)
	if err != nil {
		return nil, err
	}

	return &DRILEstimator{
		config: c,
		logger: logger,
		train:  train,
		infer:  infer,
		bc:     bc,
	}, nil
}

// Kind implements the Estimator interface
func (d *DRILEstimator) Kind() Kind { return DRIL }

// Threshold returns the uncertainty threshold set by Pretrain
func (d *DRILEstimator) Threshold() float64 { return d.threshold }

// Pretrain trains the ensemble by behavioural cloning on expert and
// sets the uncertainty threshold to the configured quantile of the
// expert uncertainties
func (d *DRILEstimator) Pretrain(expert trajectory.Transitions) error {
	const op = "pretrain"
	if err := d.bc.Train(expert); err != nil {
		return fmt.Errorf("%v: %w", op, err)
	}
	if err := d.infer.Set(d.train); err != nil {
		return fmt.Errorf("%v: %v", op, err)
	}

	states, actions := realRows(expert)
	if err := d.Calibrate(states, actions); err != nil {
		return fmt.Errorf("%v: %w", op, err)
	}
	d.logger.Info().Float64("threshold", d.threshold).
		Msg("set uncertainty threshold")
	return nil
}

// Calibrate sets the uncertainty threshold to the configured quantile
// of the uncertainties of the row-major states and actions
func (d *DRILEstimator) Calibrate(states, actions []float64) error {
	u, err := d.Uncertainty(states, actions)
	if err != nil {
		return err
	}
	if len(u) == 0 {
		return fmt.Errorf("calibrate: no data")
	}
	sort.Float64s(u)
	d.threshold = stat.Quantile(d.config.Quantile, stat.Empirical, u, nil)
	d.trained = true
	return nil
}

// Uncertainty returns the variance of π(a|s) over stochastic passes of
// the ensemble for each row of the row-major states and actions
func (d *DRILEstimator) Uncertainty(states, actions []float64) ([]float64,
	error) {
	passes := make([][]float64, d.config.Passes)
	for p := range passes {
		densities, err := d.infer.Densities(states, actions, true)
		if err != nil {
			return nil, fmt.Errorf("uncertainty: %v", err)
		}
		passes[p] = densities
	}

	rows := len(passes[0])
	u := make([]float64, rows)
	sample := make([]float64, len(passes))
	for i := range u {
		for p := range passes {
			sample[p] = passes[p][i]
		}
		u[i] = stat.Variance(sample, nil)
	}
	return u, checkRewards("uncertainty", u)
}

// Update is a no-op
func (d *DRILEstimator) Update(expert, policy trajectory.Transitions) error {
	return trajectory.CheckCompatible("update", expert, policy)
}

// PredictReward returns 1 for each row of policy whose uncertainty is
// at most the threshold, and 0 otherwise
func (d *DRILEstimator) PredictReward(expert,
	policy trajectory.Transitions) ([]float64, error) {
	const op = "predictReward"
	if err := trajectory.CheckCompatible(op, expert, policy); err != nil {
		return nil, err
	}
	if !d.trained {
		return nil, fmt.Errorf("%v: uncertainty threshold not set, "+
			"pretrain first", op)
	}

	states, _ := trajectory.StripMarker(policy)
	u, err := d.Uncertainty(states, policy.Actions)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", op, err)
	}
	rewards := make([]float64, len(u))
	for i := range u {
		if u[i] <= d.threshold {
			rewards[i] = 1
		}
	}
	return rewards, nil
}

type drilState struct {
	Weights   [][]float64
	Threshold float64
}

// Save writes the ensemble weights and the threshold to w
func (d *DRILEstimator) Save(w io.Writer) error {
	return gob.NewEncoder(w).Encode(drilState{
		Weights:   network.Values(d.train.Learnables()),
		Threshold: d.threshold,
	})
}

// Load reads an ensemble written by Save from r
func (d *DRILEstimator) Load(r io.Reader) error {
	var state drilState
	if err := gob.NewDecoder(r).Decode(&state); err != nil {
		return err
	}
	if err := network.SetValues(d.train.Learnables(), state.Weights); err != nil {
		return err
	}
	d.threshold, d.trained = state.Threshold, true
	return d.infer.Set(d.train)
}
