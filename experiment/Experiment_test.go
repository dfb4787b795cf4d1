package experiment

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/samuelfneumann/goimitate/buffer/gae"
	"github.com/samuelfneumann/goimitate/environment/pendulum"
	"github.com/samuelfneumann/goimitate/experiment/checkpointer"
	"github.com/samuelfneumann/goimitate/ilerr"
	"github.com/samuelfneumann/goimitate/imitation"
	"github.com/samuelfneumann/goimitate/solver"
	"gonum.org/v1/gonum/floats"
)

func smallConfig(imitationAlg string) Config {
	c := Default()
	c.Steps = 64
	c.HiddenSize = 8
	c.BatchSize = 32
	c.PPOEpochs = 2
	c.Imitation = imitationAlg
	c.ImitationBatchSize = 8
	c.ImitationEpochs = 1
	c.ImitationReplaySize = 2
	c.UncertaintyPasses = 2
	c.Env.EpisodeCutoff = 20
	c.Env.ExpertEpisodes = 1
	c.Evaluation = EvaluationConfig{Interval: 32, Episodes: 1, AverageWindow: 2}
	c.Plot = None
	return c
}

func TestDefaultValidates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Errorf("default configuration is invalid: %v", err)
	}
}

func TestValidateRejects(t *testing.T) {
	modify := map[string]func(*Config){
		"unknownImitation": func(c *Config) { c.Imitation = "SQIL" },
		"absorbingPPO":     func(c *Config) { c.Absorbing = true },
		"absorbingBC": func(c *Config) {
			c.Imitation, c.Absorbing = "BC", true
		},
		"zeroSteps":     func(c *Config) { c.Steps = 0 },
		"zeroDiscount":  func(c *Config) { c.Discount = 0 },
		"traceDecay":    func(c *Config) { c.TraceDecay = 1.5 },
		"plot":          func(c *Config) { c.Plot = "svg" },
		"interval":      func(c *Config) { c.Evaluation.Interval = 0 },
		"type":          func(c *Config) { c.Type = "Offline" },
		"environment":   func(c *Config) { c.Env.Environment = "CartPole" },
		"pugailPrior":   func(c *Config) { c.Imitation, c.PosClassPrior = "PUGAIL", 1 },
		"drilDropout":   func(c *Config) { c.Imitation, c.Dropout = "DRIL", 0 },
		"gailReplay":    func(c *Config) { c.Imitation, c.ImitationReplaySize = "GAIL", 0 },
		"ppoBatchSize":  func(c *Config) { c.BatchSize = 0 },
		"negativeR1":    func(c *Config) { c.Imitation, c.R1RegCoeff = "GAIL", -1 },
		"zeroPPOEpochs": func(c *Config) { c.PPOEpochs = 0 },
	}

	for name, f := range modify {
		c := Default()
		f(&c)
		err := c.Validate()
		var cfgErr *ilerr.ConfigurationError
		if !errors.As(err, &cfgErr) {
			t.Errorf("%v: expected configuration error, got %v", name, err)
		}
	}
}

func TestKind(t *testing.T) {
	c := Default()
	c.Imitation = ""
	if k, err := c.Kind(); err != nil || k != imitation.PPO {
		t.Errorf("empty imitation: want PPO, got %v (%v)", k, err)
	}
	c.Imitation = "gail"
	if k, err := c.Kind(); err != nil || k != imitation.GAIL {
		t.Errorf("want GAIL, got %v (%v)", k, err)
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "config.json")
	err := os.WriteFile(jsonPath, []byte(`{
		"seed": 7,
		"imitation": "GMMIL",
		"env": {"episode_cutoff": 50},
		"agent_solver": {"Type": "RMSProp", "Config": {"StepSize": 0.01}}
	}`), 0o644)
	if err != nil {
		t.Fatal(err)
	}

	yamlPath := filepath.Join(dir, "config.yaml")
	err = os.WriteFile(yamlPath, []byte(`
seed: 7
imitation: GMMIL
env:
  episode_cutoff: 50
agent_solver:
  Type: RMSProp
  Config:
    StepSize: 0.01
`), 0o644)
	if err != nil {
		t.Fatal(err)
	}

	for _, path := range []string{jsonPath, yamlPath} {
		c, err := LoadConfig(path)
		if err != nil {
			t.Fatalf("%v: %v", path, err)
		}
		if c.Seed != 7 || c.Imitation != "GMMIL" {
			t.Errorf("%v: options not decoded: seed %v imitation %v", path,
				c.Seed, c.Imitation)
		}
		if c.Env.EpisodeCutoff != 50 {
			t.Errorf("%v: episode cutoff want 50, got %v", path,
				c.Env.EpisodeCutoff)
		}
		if c.BatchSize != Default().BatchSize || c.Env.ExpertEpisodes !=
			Default().Env.ExpertEpisodes {
			t.Errorf("%v: missing options did not keep their defaults", path)
		}
		if c.AgentSolver == nil || c.AgentSolver.Type != solver.RMSProp {
			t.Errorf("%v: solver not decoded: %v", path, c.AgentSolver)
		}
		if err := c.Validate(); err != nil {
			t.Errorf("%v: %v", path, err)
		}
	}
}

func TestLoadConfigErrors(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for a missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte(`{"steps": "many"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := LoadConfig(path)
	var cfgErr *ilerr.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Errorf("expected configuration error, got %v", err)
	}
}

func runExperiment(t *testing.T, c Config) (*Online, *checkpointer.MemStore) {
	t.Helper()
	exp, err := c.Create(zerolog.Nop())
	if err != nil {
		t.Fatalf("could not create experiment: %v", err)
	}
	defer exp.Close()

	if _, err := exp.Run(context.Background()); err != nil {
		t.Fatalf("could not run experiment: %v", err)
	}
	o := exp.(*Online)
	if o.State() != Done {
		t.Errorf("want state %v, got %v", Done, o.State())
	}

	s := checkpointer.NewMemStore()
	if err := exp.Save(s); err != nil {
		t.Fatalf("could not save: %v", err)
	}
	return o, s
}

func hasBlob(s *checkpointer.MemStore, name string) bool {
	for _, n := range s.Names() {
		if n == name {
			return true
		}
	}
	return false
}

func TestOnlinePPO(t *testing.T) {
	c := smallConfig("PPO")
	c.SaveTrajectories = true
	o, s := runExperiment(t, c)

	if o.Steps() != c.Steps {
		t.Errorf("want %v steps, got %v", c.Steps, o.Steps())
	}
	for _, name := range []string{"agent", "metrics", "trajectories"} {
		if !hasBlob(s, name) {
			t.Errorf("blob %v not saved", name)
		}
	}
	if hasBlob(s, "discriminator") {
		t.Error("PPO should not save a discriminator")
	}

	m := o.Metrics()
	if len(m.TestReturns) != c.Steps/c.Evaluation.Interval {
		t.Errorf("want %v evaluations, got %v",
			c.Steps/c.Evaluation.Interval, len(m.TestReturns))
	}
	// Episodes of 20 steps end at steps 20, 40, and 60
	if len(m.TrainReturns) != 3 {
		t.Errorf("want 3 training episodes, got %v", len(m.TrainReturns))
	}

	if _, err := o.Run(context.Background()); err == nil {
		t.Error("expected error when running twice")
	}
}

func TestOnlineImitation(t *testing.T) {
	algs := []string{"AIRL", "DRIL", "FAIRL", "GAIL", "GMMIL", "PUGAIL", "RED"}
	for _, alg := range algs {
		t.Run(alg, func(t *testing.T) {
			_, s := runExperiment(t, smallConfig(alg))
			wantDisc := alg != "GMMIL"
			if hasBlob(s, "discriminator") != wantDisc {
				t.Errorf("discriminator saved: want %v", wantDisc)
			}
		})
	}
}

// Adversarial imitation trains end to end with the default R1
// gradient penalty
func TestOnlineR1(t *testing.T) {
	for _, alg := range []string{"AIRL", "GAIL"} {
		t.Run(alg, func(t *testing.T) {
			c := smallConfig(alg)
			if c.R1RegCoeff != Default().R1RegCoeff || c.R1RegCoeff <= 0 {
				t.Fatalf("r1 coefficient = %v, want the positive default",
					c.R1RegCoeff)
			}
			o, _ := runExperiment(t, c)
			if o.Steps() != c.Steps {
				t.Errorf("want %v steps, got %v", c.Steps, o.Steps())
			}
		})
	}
}

func TestRecomputeAdvantages(t *testing.T) {
	c := smallConfig("PPO")
	c.RecomputeAdvantages = true
	e, err := pendulum.New(20, 3, pendulum.Expert{})
	if err != nil {
		t.Fatal(err)
	}
	o, err := NewOnline(c, e, e, nil, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if o.last, err = e.Reset(); err != nil {
		t.Fatal(err)
	}
	for !o.buffer.Full() {
		if err := o.collect(); err != nil {
			t.Fatalf("collect: %v", err)
		}
	}
	batch, err := o.buffer.Flatten()
	if err != nil {
		t.Fatal(err)
	}

	// Before any update the critic reproduces the values stored during
	// collection
	bootstrap, err := o.agent.StateValue(o.nextState)
	if err != nil {
		t.Fatal(err)
	}
	stored, err := gae.Estimate(batch, bootstrap, c.Discount, c.TraceDecay)
	if err != nil {
		t.Fatal(err)
	}
	before, err := o.recompute(batch)
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if !floats.EqualApprox(before.Advantages, stored.Advantages, 1e-9) {
		t.Errorf("recomputed advantages %v differ from stored %v",
			before.Advantages, stored.Advantages)
	}

	if _, err := o.updater.Update(before); err != nil {
		t.Fatalf("update: %v", err)
	}
	after, err := o.recompute(batch)
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if floats.EqualApprox(before.Advantages, after.Advantages, 1e-12) {
		t.Errorf("advantages unchanged after a critic update")
	}
	if !floats.Equal(batch.Values, stored.Values) {
		t.Errorf("recompute modified the stored values")
	}
}

func TestOnlineAbsorbing(t *testing.T) {
	c := smallConfig("GAIL")
	c.Absorbing = true
	runExperiment(t, c)
}

func TestOnlineBC(t *testing.T) {
	o, _ := runExperiment(t, smallConfig("BC"))
	if o.Steps() != 0 {
		t.Errorf("behavioural cloning should not interact, took %v steps",
			o.Steps())
	}
	if len(o.Metrics().TestReturns) != 1 {
		t.Errorf("want a single evaluation, got %v",
			len(o.Metrics().TestReturns))
	}
}

func TestOnlineCancel(t *testing.T) {
	exp, err := smallConfig("PPO").Create(zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := exp.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("want context.Canceled, got %v", err)
	}
}

func TestNewOnlineNeedsExpert(t *testing.T) {
	c := smallConfig("GAIL")
	e, _ := c.Env.Create(c.Seed)
	evalEnv, _ := c.Env.Create(c.Seed)
	if _, err := NewOnline(c, e, evalEnv, nil, zerolog.Nop()); err == nil {
		t.Error("expected error without expert demonstrations")
	}
}

func TestEvaluateRecord(t *testing.T) {
	c := smallConfig("PPO")
	e, err := pendulum.New(10, 3, pendulum.Expert{})
	if err != nil {
		t.Fatal(err)
	}
	o, err := NewOnline(c, e, e, nil, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}

	returns, episodes, err := Evaluate(e, o.Agent(), 2, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(returns) != 2 || len(episodes) != 2 {
		t.Fatalf("want 2 returns and episodes, got %v and %v", len(returns),
			len(episodes))
	}
	for i, ep := range episodes {
		if len(ep.Terminals) != 10 {
			t.Fatalf("episode %v: want 10 steps, got %v", i, len(ep.Terminals))
		}
		for j, term := range ep.Terminals {
			want := 0.0
			if j == len(ep.Terminals)-1 {
				want = 1
			}
			if term != want {
				t.Errorf("episode %v step %v: want terminal %v, got %v", i,
					j, want, term)
			}
		}
		sum := 0.0
		for _, r := range ep.Rewards {
			sum += r
		}
		if sum != returns[i] {
			t.Errorf("episode %v: return %v does not match rewards %v", i,
				returns[i], sum)
		}
	}
}
