package ppo

import (
	"math"
	"testing"

	"github.com/samuelfneumann/goimitate/buffer/gae"
	"github.com/samuelfneumann/goimitate/ilerr"
	"github.com/samuelfneumann/goimitate/policy"
	"github.com/samuelfneumann/goimitate/trajectory"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
)

const batchSize = 8

func newAgent(t *testing.T) *policy.ActorCritic {
	t.Helper()
	c := policy.Config{Hidden: []int{16}, Activation: "tanh"}
	agent, err := policy.NewActorCritic(3, 1, 1, c, 1)
	if err != nil {
		t.Fatalf("newActorCritic: %v", err)
	}
	return agent
}

// rollout collects batchSize transitions from agent on random states
// and estimates their advantages
func rollout(t *testing.T, agent *policy.ActorCritic) *trajectory.Augmented {
	t.Helper()
	rng := rand.New(rand.NewSource(5))
	buf, _ := trajectory.NewBuffer(3, 1, batchSize)
	for i := 0; i < batchSize; i++ {
		state := []float64{rng.NormFloat64(), rng.NormFloat64(),
			rng.NormFloat64()}
		action, logProb, value, err := agent.Act(state)
		if err != nil {
			t.Fatalf("act: %v", err)
		}
		err = buf.Add(trajectory.Transition{
			State:      state,
			Action:     action,
			Reward:     rng.Float64(),
			Terminal:   i == batchSize/2,
			LogProb:    logProb,
			OldLogProb: logProb,
			Value:      value,
		})
		if err != nil {
			t.Fatalf("add: %v", err)
		}
	}

	batch, err := buf.Flatten()
	if err != nil {
		t.Fatalf("flatten: %v", err)
	}
	aug, err := gae.Estimate(batch, 0, 0.99, 0.95)
	if err != nil {
		t.Fatalf("estimate: %v", err)
	}
	return aug
}

func TestFirstUpdateIsUnclipped(t *testing.T) {
	agent := newAgent(t)
	u, err := New(agent, Config{
		BatchSize:           batchSize,
		Clip:                0.2,
		ValueCoeff:          0.5,
		EntropyCoeff:        0,
		MaxGradNorm:         1,
		NormaliseAdvantages: true,
		LearningRate:        1e-3,
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	aug := rollout(t, agent)
	state := aug.State(0)
	before, _ := agent.Greedy(state)

	stats, err := u.Update(aug)
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	// The ratio is one for every sample before the first step, so
	// clipping has no effect
	if math.Abs(stats.PolicyLoss-stats.UnclippedPolicyLoss) > 1e-9 {
		t.Errorf("policy loss %v != unclipped policy loss %v",
			stats.PolicyLoss, stats.UnclippedPolicyLoss)
	}

	// With normalised advantages the surrogate at ratio one is -mean(Â)
	if math.Abs(stats.PolicyLoss) > 1e-6 {
		t.Errorf("policy loss = %v, want 0", stats.PolicyLoss)
	}
	if stats.ValueLoss < 0 || stats.GradNorm <= 0 {
		t.Errorf("invalid stats: %+v", stats)
	}

	after, _ := agent.Greedy(state)
	if floats.Equal(before, after) {
		t.Errorf("agent weights did not change after update")
	}
}

func TestUpdateRejectsWrongBatchSize(t *testing.T) {
	agent := newAgent(t)
	u, err := New(agent, Config{BatchSize: batchSize + 1, Clip: 0.2,
		ValueCoeff: 0.5, LearningRate: 1e-3})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	_, err = u.Update(rollout(t, agent))
	if !ilerr.IsDimensionMismatch(err) {
		t.Errorf("update: expected dimension mismatch, got %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	bad := []Config{
		{BatchSize: 0, Clip: 0.2, LearningRate: 1},
		{BatchSize: 1, Clip: 0, LearningRate: 1},
		{BatchSize: 1, Clip: 0.2, ValueCoeff: -1, LearningRate: 1},
		{BatchSize: 1, Clip: 0.2},
	}
	for i, c := range bad {
		if err := c.Validate(); !ilerr.IsConfiguration(err) {
			t.Errorf("config %v: expected configuration error, got %v", i,
				err)
		}
	}
}
