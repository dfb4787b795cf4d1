package experiment

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/samuelfneumann/goimitate/environment/envconfig"
	"github.com/samuelfneumann/goimitate/ilerr"
	"github.com/samuelfneumann/goimitate/imitation"
	"github.com/samuelfneumann/goimitate/initwfn"
	"github.com/samuelfneumann/goimitate/policy"
	"github.com/samuelfneumann/goimitate/ppo"
	"github.com/samuelfneumann/goimitate/solver"
	"gopkg.in/yaml.v3"
)

// Plot formats
const (
	PNG  = "png"
	HTML = "html"
	None = "none"
)

// EvaluationConfig configures the periodic evaluation of the agent
type EvaluationConfig struct {
	Interval      int `json:"interval"`
	Episodes      int `json:"episodes"`
	AverageWindow int `json:"average_window"`
}

// Config represents a configuration of an experiment
type Config struct {
	Type  `json:"type"`
	Seed  uint64           `json:"seed"`
	Steps int              `json:"steps"`
	Env   envconfig.Config `json:"env"`

	// Agent
	HiddenSize   int              `json:"hidden_size"`
	Activation   string           `json:"activation"`
	LogStdInit   float64          `json:"log_std_init"`
	Init         *initwfn.InitWFn `json:"init,omitempty"`
	LearningRate float64          `json:"learning_rate"`
	AgentSolver  *solver.Solver   `json:"agent_solver,omitempty"`

	// PPO
	Discount            float64 `json:"discount"`
	TraceDecay          float64 `json:"trace_decay"`
	PPOClip             float64 `json:"ppo_clip"`
	PPOEpochs           int     `json:"ppo_epochs"`
	ValueLossCoeff      float64 `json:"value_loss_coeff"`
	EntropyLossCoeff    float64 `json:"entropy_loss_coeff"`
	MaxGradNorm         float64 `json:"max_grad_norm"`
	BatchSize           int     `json:"batch_size"`
	RecomputeAdvantages bool    `json:"recompute_advantages"`
	NormaliseAdvantages bool    `json:"normalise_advantages"`

	// Imitation
	Imitation             string         `json:"imitation"`
	StateOnly             bool           `json:"state_only"`
	Absorbing             bool           `json:"absorbing"`
	ImitationEpochs       int            `json:"imitation_epochs"`
	ImitationBatchSize    int            `json:"imitation_batch_size"`
	ImitationReplaySize   int            `json:"imitation_replay_size"`
	ImitationLearningRate float64        `json:"imitation_learning_rate"`
	EstimatorSolver       *solver.Solver `json:"estimator_solver,omitempty"`
	R1RegCoeff            float64        `json:"r1_reg_coeff"`
	PosClassPrior         float64        `json:"pos_class_prior"`
	NonnegativeMargin     float64        `json:"nonnegative_margin"`
	SelfSimilarity        bool           `json:"self_similarity"`
	Dropout               float64        `json:"dropout"`
	UncertaintyPasses     int            `json:"uncertainty_passes"`
	UncertaintyQuantile   float64        `json:"uncertainty_quantile"`

	Evaluation       EvaluationConfig `json:"evaluation"`
	SaveTrajectories bool             `json:"save_trajectories"`
	OutputDir        string           `json:"output_dir"`
	Plot             string           `json:"plot"`
}

// Default returns the default experiment configuration
func Default() Config {
	return Config{
		Type:  OnlineExp,
		Seed:  1,
		Steps: 100000,
		Env:   envconfig.Default(),

		HiddenSize:   32,
		Activation:   "tanh",
		LogStdInit:   0,
		LearningRate: 1e-3,

		Discount:         0.99,
		TraceDecay:       0.95,
		PPOClip:          0.2,
		PPOEpochs:        4,
		ValueLossCoeff:   0.5,
		EntropyLossCoeff: 0,
		MaxGradNorm:      1,
		BatchSize:        2048,

		Imitation:             string(imitation.PPO),
		ImitationEpochs:       5,
		ImitationBatchSize:    128,
		ImitationReplaySize:   4,
		ImitationLearningRate: 1e-3,
		R1RegCoeff:            1,
		PosClassPrior:         0.5,
		NonnegativeMargin:     0,
		SelfSimilarity:        true,
		Dropout:               0.1,
		UncertaintyPasses:     5,
		UncertaintyQuantile:   0.98,

		Evaluation: EvaluationConfig{
			Interval:      10000,
			Episodes:      50,
			AverageWindow: 5,
		},
		OutputDir: "results",
		Plot:      PNG,
	}
}

// LoadConfig reads a configuration file in JSON or, if its extension
// is .yaml or .yml, YAML. Options missing from the file keep their
// default values.
func LoadConfig(path string) (Config, error) {
	const op = "loadConfig"
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("%v: %v", op, err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".yaml" || ext == ".yml" {
		if data, err = yamlToJSON(data); err != nil {
			return Config{}, fmt.Errorf("%v: %v", op, err)
		}
	}

	c := Default()
	if err := json.Unmarshal(data, &c); err != nil {
		return Config{}, ilerr.Configuration(op, "could not decode %v: %v",
			path, err)
	}
	return c, nil
}

// yamlToJSON converts a YAML document to JSON so that the typed
// configurations of solvers and initialisers decode the same way from
// both formats
func yamlToJSON(data []byte) ([]byte, error) {
	var doc map[string]interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc == nil {
		doc = map[string]interface{}{}
	}
	return json.Marshal(doc)
}

// Kind returns the imitation algorithm of the experiment
func (c Config) Kind() (imitation.Kind, error) {
	if c.Imitation == "" {
		return imitation.PPO, nil
	}
	return imitation.ParseKind(c.Imitation)
}

// Validate returns a *ilerr.ConfigurationError describing the first
// invalid option of c
func (c Config) Validate() error {
	const op = "validate"

	k, err := c.Kind()
	if err != nil {
		return err
	}
	if c.Type != OnlineExp {
		return ilerr.Configuration(op, "unknown experiment type %q", c.Type)
	}
	if err := c.Env.Validate(); err != nil {
		return err
	}

	switch {
	case c.Steps < 1:
		return ilerr.Configuration(op, "steps must be positive, got %v",
			c.Steps)
	case c.HiddenSize < 1:
		return ilerr.Configuration(op, "hidden size must be positive, got %v",
			c.HiddenSize)
	case c.Discount <= 0 || c.Discount > 1:
		return ilerr.Configuration(op, "discount must be in (0, 1], got %v",
			c.Discount)
	case c.TraceDecay < 0 || c.TraceDecay > 1:
		return ilerr.Configuration(op, "trace decay must be in [0, 1], "+
			"got %v", c.TraceDecay)
	case c.PPOEpochs < 1:
		return ilerr.Configuration(op, "ppo epochs must be positive, got %v",
			c.PPOEpochs)
	case c.ImitationReplaySize < 1 && k.Adversarial():
		return ilerr.Configuration(op, "imitation replay size must be "+
			"positive, got %v", c.ImitationReplaySize)
	case c.Absorbing && (k == imitation.PPO || k == imitation.BC):
		return ilerr.Configuration(op, "absorbing states need a reward "+
			"estimator, got imitation %v", k)
	case c.Evaluation.Interval < 1:
		return ilerr.Configuration(op, "evaluation interval must be "+
			"positive, got %v", c.Evaluation.Interval)
	case c.Evaluation.Episodes < 1:
		return ilerr.Configuration(op, "evaluation episodes must be "+
			"positive, got %v", c.Evaluation.Episodes)
	case c.Evaluation.AverageWindow < 1:
		return ilerr.Configuration(op, "evaluation average window must be "+
			"positive, got %v", c.Evaluation.AverageWindow)
	case c.Plot != PNG && c.Plot != HTML && c.Plot != None:
		return ilerr.Configuration(op, "plot must be %q, %q or %q, got %q",
			PNG, HTML, None, c.Plot)
	}

	if err := c.ppoConfig().Validate(); err != nil {
		return err
	}
	return c.imitationConfig().Validate(k)
}

func (c Config) hidden() []int {
	return []int{c.HiddenSize, c.HiddenSize}
}

func (c Config) policyConfig() policy.Config {
	pc := policy.Config{
		Hidden:     c.hidden(),
		Activation: c.Activation,
		LogStdInit: c.LogStdInit,
	}
	if c.Init != nil {
		pc.Init = c.Init.InitWFn()
	}
	return pc
}

func (c Config) ppoConfig() ppo.Config {
	return ppo.Config{
		BatchSize:           c.BatchSize,
		Clip:                c.PPOClip,
		ValueCoeff:          c.ValueLossCoeff,
		EntropyCoeff:        c.EntropyLossCoeff,
		MaxGradNorm:         c.MaxGradNorm,
		NormaliseAdvantages: c.NormaliseAdvantages,
		Solver:              c.AgentSolver,
		LearningRate:        c.LearningRate,
	}
}

func (c Config) imitationConfig() imitation.Config {
	ic := imitation.DefaultConfig()
	ic.Hidden = c.hidden()
	ic.Activation = c.Activation
	if c.Init != nil {
		ic.Init = c.Init.InitWFn()
	}
	ic.StateOnly = c.StateOnly
	ic.Absorbing = c.Absorbing
	ic.Discount = c.Discount
	ic.Epochs = c.ImitationEpochs
	ic.BatchSize = c.ImitationBatchSize
	ic.LearningRate = c.ImitationLearningRate
	ic.Solver = c.EstimatorSolver
	ic.R1RegCoeff = c.R1RegCoeff
	ic.PosClassPrior = c.PosClassPrior
	ic.NonnegativeMargin = c.NonnegativeMargin
	ic.SelfSimilarity = c.SelfSimilarity
	ic.Dropout = c.Dropout
	ic.Passes = c.UncertaintyPasses
	ic.Quantile = c.UncertaintyQuantile
	ic.LogStdInit = c.LogStdInit
	ic.Seed = c.Seed
	return ic
}
