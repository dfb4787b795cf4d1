// Package experiment implements functionality for running an experiment
package experiment

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/samuelfneumann/goimitate/experiment/checkpointer"
	"github.com/samuelfneumann/goimitate/imitation"
	"github.com/samuelfneumann/goimitate/trajectory"
)

// Experiment runs a training run to completion and persists its final
// state. Run returns the mean evaluation return over the last
// evaluations, and the experiment cannot be run again afterwards.
type Experiment interface {
	Run(ctx context.Context) (float64, error)
	Save(s checkpointer.Store) error
	Close() error
}

// Type is a type of Experiment
type Type string

const (
	OnlineExp Type = "OnlineExperiment"
)

// Create returns the experiment described by the Config, creating its
// training and evaluation environments and loading the expert
// demonstrations if an imitation algorithm needs them
func (c Config) Create(logger zerolog.Logger) (Experiment, error) {
	const op = "create"
	if err := c.Validate(); err != nil {
		return nil, err
	}
	k, _ := c.Kind()

	train, err := c.Env.Create(c.Seed)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", op, err)
	}
	eval, err := c.Env.Create(c.Seed)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", op, err)
	}

	var expert *trajectory.Expert
	if k != imitation.PPO {
		if expert, err = train.Dataset(); err != nil {
			return nil, fmt.Errorf("%v: %w", op, err)
		}
		logger.Info().Int("transitions", expert.Len()).
			Msg("loaded expert demonstrations")
	}

	switch c.Type {
	case OnlineExp:
		return NewOnline(c, train, eval, expert, logger)
	}
	return nil, fmt.Errorf("%v: no such experiment type %v", op, c.Type)
}
