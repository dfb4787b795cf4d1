package pendulum

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/samuelfneumann/goimitate/ilerr"
	"github.com/samuelfneumann/goimitate/trajectory"
	"gonum.org/v1/gonum/mat"
)

func torque(u float64) *mat.VecDense {
	return mat.NewVecDense(1, []float64{u})
}

func TestStepDynamics(t *testing.T) {
	p, err := New(DefaultEpisodeSteps, 1, Expert{})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := p.Step(torque(0)); err == nil {
		t.Errorf("step: expected error before reset")
	}

	p.Reset()
	p.th, p.thdot = 0.5, 1.0

	step, err := p.Step(torque(3))
	if err != nil {
		t.Fatalf("step: %v", err)
	}

	// The torque is clipped to 2
	wantThdot := 1.0 + (3*Gravity/2*math.Sin(0.5)+3*2)*dt
	wantTh := 0.5 + wantThdot*dt
	wantReward := -(0.25 + 0.1 + 0.001*4)

	th, thdot := p.Angle()
	if math.Abs(th-wantTh) > 1e-12 || math.Abs(thdot-wantThdot) > 1e-12 {
		t.Errorf("state = (%v, %v), want (%v, %v)", th, thdot, wantTh,
			wantThdot)
	}
	if math.Abs(step.Reward-wantReward) > 1e-12 {
		t.Errorf("reward = %v, want %v", step.Reward, wantReward)
	}
	obs := step.Observation.RawVector().Data
	if math.Abs(obs[0]-math.Cos(wantTh)) > 1e-12 ||
		math.Abs(obs[1]-math.Sin(wantTh)) > 1e-12 || obs[2] != thdot {
		t.Errorf("observation = %v", obs)
	}
}

func TestSpeedIsClipped(t *testing.T) {
	p, _ := New(DefaultEpisodeSteps, 1, Expert{})
	p.Reset()
	p.th, p.thdot = 0, 7.9
	p.Step(torque(2))
	if _, thdot := p.Angle(); thdot != SpeedBound {
		t.Errorf("speed = %v, want %v", thdot, SpeedBound)
	}
}

func TestNormalizeAngle(t *testing.T) {
	tests := []struct{ in, want float64 }{
		{0, 0},
		{math.Pi / 2, math.Pi / 2},
		{3 * math.Pi / 2, -math.Pi / 2},
		{-3 * math.Pi / 2, math.Pi / 2},
		{5 * math.Pi, -math.Pi},
	}
	for _, test := range tests {
		if have := normalizeAngle(test.in); math.Abs(have-test.want) > 1e-9 {
			t.Errorf("normalizeAngle(%v) = %v, want %v", test.in, have,
				test.want)
		}
	}
}

func TestEpisodeCutoff(t *testing.T) {
	p, _ := New(3, 1, Expert{})
	p.Reset()
	for i := 0; i < 3; i++ {
		step, err := p.Step(torque(0))
		if err != nil {
			t.Fatalf("step %v: %v", i, err)
		}
		if step.Last() != (i == 2) {
			t.Errorf("step %v: last = %v", i, step.Last())
		}
	}
	if _, err := p.Step(torque(0)); err == nil {
		t.Errorf("step: expected error after the last step")
	}
	if _, err := p.Step(mat.NewVecDense(2, nil)); err == nil {
		t.Errorf("step: expected error for a 2-dimensional action")
	}

	p.Reset()
	if _, err := p.Step(mat.NewVecDense(2, nil)); !ilerr.IsDimensionMismatch(err) {
		t.Errorf("step: expected dimension mismatch, got %v", err)
	}
}

func TestSeedReproducesStarts(t *testing.T) {
	p, _ := New(DefaultEpisodeSteps, 7, Expert{})
	first, _ := p.Reset()
	p.Seed(7)
	again, _ := p.Reset()
	if !mat.Equal(first.Observation, again.Observation) {
		t.Errorf("reseeding did not reproduce the starting state")
	}
}

func TestControllerBalances(t *testing.T) {
	p, _ := New(DefaultEpisodeSteps, 1, Expert{})
	p.Reset()
	p.th, p.thdot = 0.1, 0

	for i := 0; i < 100; i++ {
		if _, err := p.Step(torque(Controller(p.Angle()))); err != nil {
			t.Fatalf("step: %v", err)
		}
	}
	if th, _ := p.Angle(); math.Abs(th) > 0.01 {
		t.Errorf("angle = %v after balancing, want about 0", th)
	}
}

func TestDataset(t *testing.T) {
	p, _ := New(DefaultEpisodeSteps, 1, Expert{Episodes: 2})
	e, err := p.Dataset()
	if err != nil {
		t.Fatalf("dataset: %v", err)
	}
	if e.Len() != 2*DefaultEpisodeSteps {
		t.Fatalf("dataset has %v rows, want %v", e.Len(),
			2*DefaultEpisodeSteps)
	}
	for i, term := range e.Terminals {
		want := 0.0
		if (i+1)%DefaultEpisodeSteps == 0 {
			want = 1
		}
		if term != want {
			t.Fatalf("terminal %v = %v, want %v", i, term, want)
		}
	}

	path := filepath.Join(t.TempDir(), "expert.gob")
	if err := trajectory.SaveExpert(path, e); err != nil {
		t.Fatalf("saveExpert: %v", err)
	}
	loaded, err := New(DefaultEpisodeSteps, 1, Expert{Path: path, Episodes: 1})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	one, err := loaded.Dataset()
	if err != nil {
		t.Fatalf("dataset: %v", err)
	}
	if one.Len() != DefaultEpisodeSteps {
		t.Errorf("loaded dataset has %v rows, want %v", one.Len(),
			DefaultEpisodeSteps)
	}
}
