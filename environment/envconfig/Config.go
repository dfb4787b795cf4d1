// Package envconfig provides configuration structs for creating
// environments with default physical parameters. Environment
// configurations in this package are JSON and YAML serialisable.
package envconfig

import (
	"strings"

	env "github.com/samuelfneumann/goimitate/environment"
	"github.com/samuelfneumann/goimitate/environment/pendulum"
	"github.com/samuelfneumann/goimitate/ilerr"
)

// EnvName stores the name of environments that can be configured with
// this package
type EnvName string

// Environments available for configuration
const (
	Pendulum EnvName = "Pendulum"
)

// Config implements a specific configuration of a specific environment
// together with the source of its expert demonstrations
type Config struct {
	Environment   EnvName `json:"name" yaml:"name"`
	EpisodeCutoff int     `json:"episode_cutoff" yaml:"episode_cutoff"`

	// DatasetPath is the gob file holding expert demonstrations. If
	// empty, demonstrations are generated by the environment.
	DatasetPath    string `json:"dataset_path" yaml:"dataset_path"`
	ExpertEpisodes int    `json:"expert_episodes" yaml:"expert_episodes"`
}

// Default returns the default environment Config
func Default() Config {
	return Config{
		Environment:    Pendulum,
		EpisodeCutoff:  pendulum.DefaultEpisodeSteps,
		ExpertEpisodes: 5,
	}
}

// Validate returns a *ilerr.ConfigurationError if c cannot be used to
// create an environment
func (c Config) Validate() error {
	const op = "validate"
	if !strings.EqualFold(string(c.Environment), string(Pendulum)) {
		return ilerr.Configuration(op, "unknown environment %q",
			c.Environment)
	}
	if c.EpisodeCutoff <= 0 {
		return ilerr.Configuration(op, "episode cutoff must be positive, "+
			"got %v", c.EpisodeCutoff)
	}
	if c.ExpertEpisodes < 0 {
		return ilerr.Configuration(op, "expert episodes must be "+
			"non-negative, got %v", c.ExpertEpisodes)
	}
	return nil
}

// Create returns the environment described by the Config
func (c Config) Create(seed uint64) (env.Environment, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	p, err := pendulum.New(c.EpisodeCutoff, seed, pendulum.Expert{
		Path:     c.DatasetPath,
		Episodes: c.ExpertEpisodes,
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}
