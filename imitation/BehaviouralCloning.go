package imitation

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/samuelfneumann/goimitate/ilerr"
	"github.com/samuelfneumann/goimitate/policy"
	"github.com/samuelfneumann/goimitate/trajectory"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat"
	G "gorgonia.org/gorgonia"
)

// BehaviouralCloning trains a Gaussian policy to maximise the log
// density of expert actions in expert states
type BehaviouralCloning struct {
	model     policy.Trainable
	epochs    int
	batch     int
	stateDim  int
	actionDim int
	rng       *rand.Rand
	trainer   *trainer
	logger    zerolog.Logger
}

// NewBehaviouralCloning returns a new BehaviouralCloning that trains
// model, whose batch size must be c.BatchSize
func NewBehaviouralCloning(model policy.Trainable, c Config,
	logger zerolog.Logger) (*BehaviouralCloning, error) {
	const op = "newBehaviouralCloning"
	if err := c.Validate(BC); err != nil {
		return nil, err
	}
	if model.BatchSize() != c.BatchSize {
		return nil, ilerr.Configuration(op, "model batch size %v does not "+
			"match imitation batch size %v", model.BatchSize(), c.BatchSize)
	}

	logPdf, err := G.Mean(model.LogPdf())
	if err != nil {
		return nil, fmt.Errorf("%v: %v", op, err)
	}
	loss, err := G.Neg(logPdf)
	if err != nil {
		return nil, fmt.Errorf("%v: %v", op, err)
	}
	t, err := newTrainer("behaviouralCloning", loss, model.PolicyLearnables(),
		c)
	if err != nil {
		return nil, fmt.Errorf("%v: %v", op, err)
	}

	return &BehaviouralCloning{
		model:     model,
		epochs:    c.Epochs,
		batch:     c.BatchSize,
		stateDim:  model.States().Shape()[1],
		actionDim: model.Actions().Shape()[1],
		rng:       rand.New(rand.NewSource(c.Seed)),
		trainer:   t,
		logger:    logger.With().Str("trainer", "behavioural cloning").Logger(),
	}, nil
}

// Train runs all configured epochs of behavioural cloning on expert.
// Absorbing markers and synthetic rows are ignored.
func (b *BehaviouralCloning) Train(expert trajectory.Transitions) error {
	states, actions := realRows(expert)
	for epoch := 0; epoch < b.epochs; epoch++ {
		loss, err := b.Epoch(states, actions)
		if err != nil {
			return fmt.Errorf("train: epoch %v: %w", epoch, err)
		}
		b.logger.Debug().Int("epoch", epoch).Float64("loss", loss).
			Msg("behavioural cloning")
	}
	return nil
}

// Epoch performs one gradient step per shuffled minibatch of the
// row-major states and actions, dropping the final partial minibatch,
// and returns the mean loss
func (b *BehaviouralCloning) Epoch(states, actions []float64) (float64,
	error) {
	rows := len(states) / b.stateDim
	if len(actions) != rows*b.actionDim {
		return 0, ilerr.DimensionMismatch("epoch", "actions",
			rows*b.actionDim, len(actions))
	}

	batches := minibatches(b.rng, rows, b.batch)
	losses := make([]float64, 0, len(batches))
	for _, batch := range batches {
		if err := b.model.Resample(); err != nil {
			return 0, err
		}
		loss, err := b.trainer.step(
			feed{b.model.States(), gather(states, b.stateDim, batch)},
			feed{b.model.Actions(), gather(actions, b.actionDim, batch)},
		)
		if err != nil {
			return 0, err
		}
		losses = append(losses, loss)
	}

	if len(losses) == 0 {
		return 0, nil
	}
	return stat.Mean(losses, nil), nil
}

// realRows returns the states, without absorbing markers, and actions
// of the rows of t that are not synthetic
func realRows(t trajectory.Transitions) (states, actions []float64) {
	if t.Absorbing {
		rows := make([]int, 0, t.Len())
		for i := 0; i < t.Len(); i++ {
			if !t.Synthetic[i] {
				rows = append(rows, i)
			}
		}
		t = t.Rows(rows)
	}
	states, _ = trajectory.StripMarker(t)
	return states, append([]float64(nil), t.Actions...)
}
