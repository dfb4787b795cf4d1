package imitation

import (
	"math"
	"testing"

	"github.com/samuelfneumann/goimitate/network"
	"gonum.org/v1/gonum/floats/scalar"
	"gonum.org/v1/gonum/stat"
	G "gorgonia.org/gorgonia"
)

func sigmoid(x float64) float64 { return 1 / (1 + math.Exp(-x)) }

// checkR1 compares the value of penalty, the R1 penalty with
// coefficient coeff of logit, to the penalty computed from central
// differences of σ(logit) with respect to the first wrt inputs.
func checkR1(t *testing.T, g *G.ExprGraph, logit, penalty *G.Node,
	coeff float64, inputs G.Nodes, data [][]float64, wrt int) {
	t.Helper()
	var logitVal, penaltyVal G.Value
	G.Read(logit, &logitVal)
	G.Read(penalty, &penaltyVal)

	vm := G.NewTapeMachine(g)
	defer vm.Close()
	run := func() []float64 {
		for i, in := range inputs {
			if err := network.SetInput(in, data[i]); err != nil {
				t.Fatalf("setInput: %v", err)
			}
		}
		vm.Reset()
		if err := vm.RunAll(); err != nil {
			t.Fatalf("runAll: %v", err)
		}
		return append([]float64(nil), logitVal.Data().([]float64)...)
	}

	run()
	want := penaltyVal.Data().(float64)

	const eps = 1e-5
	batch := logit.Shape().TotalSize()
	sq := make([]float64, batch)
	for k := 0; k < wrt; k++ {
		width := len(data[k]) / batch
		for i := 0; i < batch; i++ {
			for j := 0; j < width; j++ {
				idx := i*width + j
				orig := data[k][idx]
				data[k][idx] = orig + eps
				plus := run()[i]
				data[k][idx] = orig - eps
				minus := run()[i]
				data[k][idx] = orig

				d := (sigmoid(plus) - sigmoid(minus)) / (2 * eps)
				sq[i] += d * d
			}
		}
	}
	got := coeff * stat.Mean(sq, nil)

	if want <= 0 {
		t.Errorf("penalty = %v, want a positive value", want)
	}
	if !scalar.EqualWithinAbsOrRel(got, want, 1e-8, 1e-5) {
		t.Errorf("penalty = %v, central differences give %v", want, got)
	}
}

func TestGAILR1MatchesCentralDifferences(t *testing.T) {
	g := G.NewGraph()
	net, err := network.NewMLP(g, "discriminator", 3, []int{8, 8}, 1,
		network.TanH(), G.GlorotU(1.0))
	if err != nil {
		t.Fatalf("newMLP: %v", err)
	}
	x := network.NewInput(g, "x", 4, 3)
	logit, err := logits(net, x)
	if err != nil {
		t.Fatalf("logits: %v", err)
	}
	dLogit, err := sigmoidGrad(logit)
	if err != nil {
		t.Fatalf("sigmoidGrad: %v", err)
	}
	grad, err := net.InputGrad(x, dLogit)
	if err != nil {
		t.Fatalf("inputGrad: %v", err)
	}
	const coeff = 2
	penalty, err := addR1(G.NewConstant(0.0), coeff, grad)
	if err != nil {
		t.Fatalf("addR1: %v", err)
	}

	data := [][]float64{{
		0.3, -0.7, 1.1,
		-0.2, 0.5, 0.9,
		1.3, 0.4, -0.6,
		-1.0, -0.8, 0.2,
	}}
	checkR1(t, g, logit, penalty, coeff, G.Nodes{x}, data, 1)
}

func TestAIRLR1MatchesCentralDifferences(t *testing.T) {
	const (
		batch    = 4
		width    = 3
		sd       = 2
		discount = 0.9
	)
	g := G.NewGraph()
	gNet, err := network.NewMLP(g, "airlReward", width, nil, 1, nil,
		G.GlorotU(1.0))
	if err != nil {
		t.Fatalf("newMLP: %v", err)
	}
	hNet, err := network.NewMLP(g, "airlShaping", sd, []int{6}, 1,
		network.ReLU(), G.GlorotU(1.0))
	if err != nil {
		t.Fatalf("newMLP: %v", err)
	}
	in := newAIRLInputs(g, "", batch, width, sd)
	logit, err := in.logit(gNet, hNet, discount)
	if err != nil {
		t.Fatalf("logit: %v", err)
	}
	grads, err := in.inputGrads(gNet, hNet, logit, discount)
	if err != nil {
		t.Fatalf("inputGrads: %v", err)
	}
	penalty, err := addR1(G.NewConstant(0.0), 1, grads...)
	if err != nil {
		t.Fatalf("addR1: %v", err)
	}

	inputs := G.Nodes{in.inputs, in.states, in.next, in.terminals, in.logProbs}
	data := [][]float64{
		{0.3, -0.7, 1.1, -0.2, 0.5, 0.9, 1.3, 0.4, -0.6, -1.0, -0.8, 0.2},
		{0.3, -0.7, -0.2, 0.5, 1.3, 0.4, -1.0, -0.8},
		{0.6, -0.1, 0.8, 0.35, 0.7, -0.45, -0.9, 0.15},
		{0, 1, 0, 0},
		{-0.5, -1, -0.2, -0.7},
	}
	checkR1(t, g, logit, penalty, 1, inputs, data, 3)
}

// Discriminators train with the default R1 coefficient
func TestR1DefaultCoefficient(t *testing.T) {
	for _, k := range []Kind{GAIL, FAIRL, PUGAIL, AIRL} {
		c := testConfig()
		c.R1RegCoeff = DefaultConfig().R1RegCoeff
		if c.R1RegCoeff <= 0 {
			t.Fatalf("default r1 coefficient = %v, want positive",
				c.R1RegCoeff)
		}

		e, err := New(k, c, testDeps(t))
		if err != nil {
			t.Fatalf("new %v: %v", k, err)
		}
		expert := transitions(1, 64, 1)
		policy := transitions(2, 64, -1)
		for i := 0; i < 3; i++ {
			if err := e.Update(expert, policy); err != nil {
				t.Fatalf("%v: update: %v", k, err)
			}
		}

		rewards, err := e.PredictReward(expert, policy)
		if err != nil {
			t.Fatalf("%v: predictReward: %v", k, err)
		}
		if len(rewards) != policy.Len() {
			t.Fatalf("%v: got %v rewards, want %v", k, len(rewards),
				policy.Len())
		}
		for _, r := range rewards {
			if math.IsNaN(r) || math.IsInf(r, 0) {
				t.Errorf("%v: reward %v is not finite", k, r)
				break
			}
		}
	}
}
