package policy

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/floats"
)

func newTestAgent(t *testing.T, batch int) *ActorCritic {
	t.Helper()
	c := Config{Hidden: []int{8, 8}, Activation: "tanh", LogStdInit: -0.5}
	a, err := NewActorCritic(3, 2, batch, c, 42)
	if err != nil {
		t.Fatalf("newActorCritic: %v", err)
	}
	return a
}

func TestActLogProbMatchesGraph(t *testing.T) {
	agent := newTestAgent(t, 1)
	state := []float64{0.3, -0.1, 1.2}

	action, logProb, value, err := agent.Act(state)
	if err != nil {
		t.Fatalf("act: %v", err)
	}
	if len(action) != 2 {
		t.Fatalf("action length = %v, want 2", len(action))
	}

	wide, err := agent.CloneWithBatch(4)
	if err != nil {
		t.Fatalf("cloneWithBatch: %v", err)
	}
	logProbs, values, err := wide.Evaluate(state, action)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(logProbs) != 1 || len(values) != 1 {
		t.Fatalf("evaluate returned %v log probs and %v values, want 1",
			len(logProbs), len(values))
	}
	if math.Abs(logProbs[0]-logProb) > 1e-9 {
		t.Errorf("graph log prob = %v, sampled log prob = %v", logProbs[0],
			logProb)
	}
	if math.Abs(values[0]-value) > 1e-9 {
		t.Errorf("graph value = %v, act value = %v", values[0], value)
	}
}

func TestGreedyIsDeterministic(t *testing.T) {
	agent := newTestAgent(t, 1)
	state := []float64{1, 0, 0}

	first, err := agent.Greedy(state)
	if err != nil {
		t.Fatalf("greedy: %v", err)
	}
	second, _ := agent.Greedy(state)
	if !floats.Equal(first, second) {
		t.Errorf("greedy actions differ: %v != %v", first, second)
	}

	if _, err := agent.Greedy([]float64{1, 0}); err == nil {
		t.Errorf("greedy: expected error for wrong state dimension")
	}
}

func TestEvaluateChunks(t *testing.T) {
	agent := newTestAgent(t, 1)
	wide, _ := agent.CloneWithBatch(2)

	// Five rows are split into three batches of two
	states := []float64{
		1, 0, 0,
		0, 1, 0,
		0, 0, 1,
		1, 1, 0,
		0, 1, 1,
	}
	values, err := wide.Values(states)
	if err != nil {
		t.Fatalf("values: %v", err)
	}
	if len(values) != 5 {
		t.Fatalf("values length = %v, want 5", len(values))
	}
	for i := 0; i < 5; i++ {
		v, _ := agent.StateValue(states[i*3 : (i+1)*3])
		if math.Abs(v-values[i]) > 1e-9 {
			t.Errorf("value %v = %v, want %v", i, values[i], v)
		}
	}
}

func TestActorCriticGob(t *testing.T) {
	agent := newTestAgent(t, 1)
	state := []float64{0.2, 0.4, -0.6}
	want, _ := agent.Greedy(state)

	encoded, err := agent.GobEncode()
	if err != nil {
		t.Fatalf("gobEncode: %v", err)
	}

	c := Config{Hidden: []int{8, 8}, Activation: "tanh", LogStdInit: -0.5}
	decoded, _ := NewActorCritic(3, 2, 1, c, 7)
	if err := decoded.GobDecode(encoded); err != nil {
		t.Fatalf("gobDecode: %v", err)
	}
	have, _ := decoded.Greedy(state)
	if !floats.EqualApprox(want, have, 1e-12) {
		t.Errorf("greedy after gob = %v, want %v", have, want)
	}
}

func TestActorDropout(t *testing.T) {
	c := Config{Hidden: []int{16}, Activation: "relu", LogStdInit: 0}
	actor, err := NewActor(3, 1, 2, c, 0.5, 3)
	if err != nil {
		t.Fatalf("newActor: %v", err)
	}
	states := []float64{1, 2, 3, -1, 0, 1}
	actions := []float64{0.5, -0.5}

	first, err := actor.Densities(states, actions, false)
	if err != nil {
		t.Fatalf("densities: %v", err)
	}
	second, _ := actor.Densities(states, actions, false)
	if !floats.Equal(first, second) {
		t.Errorf("deterministic densities differ: %v != %v", first, second)
	}
	for _, d := range first {
		if d <= 0 {
			t.Errorf("density %v is not positive", d)
		}
	}

	if _, err := NewActor(3, 1, 2, c, 1.0, 3); err == nil {
		t.Errorf("newActor: expected error for drop probability 1")
	}
}
