package gae

import (
	"math"
	"testing"

	"github.com/samuelfneumann/goimitate/ilerr"
	"github.com/samuelfneumann/goimitate/trajectory"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

const tol = 1e-6

func batch(rewards, terminals, values []float64) *trajectory.Batch {
	n := len(rewards)
	return &trajectory.Batch{
		StateDim:    1,
		ActionDim:   1,
		States:      make([]float64, n),
		Actions:     make([]float64, n),
		Rewards:     rewards,
		Terminals:   terminals,
		LogProbs:    make([]float64, n),
		OldLogProbs: make([]float64, n),
		Values:      values,
	}
}

func TestSingleStepEpisode(t *testing.T) {
	const r, v = 2.5, 0.7
	for _, bootstrap := range []float64{0, 10, -3} {
		aug, err := Estimate(batch([]float64{r}, []float64{1},
			[]float64{v}), bootstrap, 0.99, 0.95)
		if err != nil {
			t.Fatalf("estimate: %v", err)
		}

		if math.Abs(aug.Advantages[0]-(r-v)) > tol {
			t.Errorf("bootstrap %v: advantage = %v, want %v", bootstrap,
				aug.Advantages[0], r-v)
		}
		if math.Abs(aug.Returns[0]-r) > tol {
			t.Errorf("bootstrap %v: return = %v, want %v", bootstrap,
				aug.Returns[0], r)
		}
	}
}

func TestLambdaZeroIsTDResidual(t *testing.T) {
	const gamma = 0.9
	rewards := []float64{1, -1, 0.5, 2}
	terminals := []float64{0, 1, 0, 0}
	values := []float64{0.3, 0.1, -0.2, 0.4}
	bootstrap := 0.8

	aug, err := Estimate(batch(rewards, terminals, values), bootstrap,
		gamma, 0)
	if err != nil {
		t.Fatalf("estimate: %v", err)
	}

	next := append(values[1:], bootstrap)
	for i := range rewards {
		delta := rewards[i] + gamma*(1-terminals[i])*next[i] - values[i]
		if math.Abs(aug.Advantages[i]-delta) > tol {
			t.Errorf("advantage[%v] = %v, want δ = %v", i, aug.Advantages[i],
				delta)
		}
	}
}

func TestMonteCarloLimit(t *testing.T) {
	rewards := []float64{1, 2, 3, 4, 5}
	terminals := []float64{0, 0, 1, 0, 1}
	values := []float64{0.5, -0.5, 1, 2, 0}

	aug, err := Estimate(batch(rewards, terminals, values), 100, 1, 1)
	if err != nil {
		t.Fatalf("estimate: %v", err)
	}

	returnToGo := []float64{6, 5, 3, 9, 5}
	for i := range rewards {
		want := returnToGo[i] - values[i]
		if math.Abs(aug.Advantages[i]-want) > tol {
			t.Errorf("advantage[%v] = %v, want %v", i, aug.Advantages[i],
				want)
		}
		if math.Abs(aug.Returns[i]-returnToGo[i]) > tol {
			t.Errorf("return[%v] = %v, want %v", i, aug.Returns[i],
				returnToGo[i])
		}
	}
}

func TestThreeStepScenario(t *testing.T) {
	const gamma, lambda = 0.99, 0.95
	aug, err := Estimate(batch([]float64{1, 1, 1}, []float64{0, 0, 1},
		[]float64{0, 0, 0}), 0, gamma, lambda)
	if err != nil {
		t.Fatalf("estimate: %v", err)
	}

	a2 := 1.0
	a1 := 1 + gamma*lambda*a2
	a0 := 1 + gamma*lambda*a1
	want := []float64{a0, a1, a2}

	if !floats.EqualApprox(aug.Advantages, want, tol) {
		t.Errorf("advantages = %v, want %v", aug.Advantages, want)
	}
	if !floats.EqualApprox(aug.Returns, want, tol) {
		t.Errorf("returns = %v, want %v", aug.Returns, want)
	}
	if math.Abs(a0-2.82504025) > tol {
		t.Errorf("hand computed a0 = %v, want 2.82504025", a0)
	}
}

func TestEstimateDoesNotModify(t *testing.T) {
	b := batch([]float64{1, 1}, []float64{0, 1}, []float64{0.5, 0.5})
	before := b.Clone()
	if _, err := Estimate(b, 1, 0.9, 0.9); err != nil {
		t.Fatalf("estimate: %v", err)
	}
	if !floats.Equal(b.Rewards, before.Rewards) ||
		!floats.Equal(b.Values, before.Values) {
		t.Errorf("estimate modified its input batch")
	}
}

func TestEstimateErrors(t *testing.T) {
	b := batch([]float64{1}, []float64{1}, []float64{0})
	if _, err := Estimate(b, 0, 1.5, 0.9); !ilerr.IsConfiguration(err) {
		t.Errorf("expected configuration error for ℽ > 1, got %v", err)
	}
	if _, err := Estimate(b, 0, 0.9, -0.1); !ilerr.IsConfiguration(err) {
		t.Errorf("expected configuration error for λ < 0, got %v", err)
	}

	nan := batch([]float64{math.NaN()}, []float64{1}, []float64{0})
	if _, err := Estimate(nan, 0, 0.9, 0.9); !ilerr.IsNumericInstability(err) {
		t.Errorf("expected numeric instability error, got %v", err)
	}
}

func TestNormalise(t *testing.T) {
	adv := []float64{1, 2, 3, 4}
	norm := Normalise(adv)
	if m := stat.Mean(norm, nil); math.Abs(m) > tol {
		t.Errorf("mean = %v, want 0", m)
	}
	if s := stat.StdDev(norm, nil); math.Abs(s-1) > tol {
		t.Errorf("std = %v, want 1", s)
	}
	if adv[0] != 1 {
		t.Errorf("normalise modified its input")
	}
}
