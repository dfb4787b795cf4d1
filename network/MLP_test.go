package network

import (
	"testing"

	"gonum.org/v1/gonum/floats"
	G "gorgonia.org/gorgonia"
)

// forward builds an MLP with the given name on a fresh graph and
// returns its output on input
func forward(t *testing.T, src *MLP, input []float64, batch int) ([]float64, *MLP) {
	g := G.NewGraph()
	m, err := NewMLP(g, "net", 3, []int{4, 4}, 2, TanH(), G.GlorotU(1.0))
	if err != nil {
		t.Fatalf("newMLP: %v", err)
	}
	if src != nil {
		if err := m.Set(src); err != nil {
			t.Fatalf("set: %v", err)
		}
	}

	x := NewInput(g, "x", batch, 3)
	out, err := m.Fwd(x)
	if err != nil {
		t.Fatalf("fwd: %v", err)
	}
	var outVal G.Value
	G.Read(out, &outVal)

	if err := SetInput(x, input); err != nil {
		t.Fatalf("setInput: %v", err)
	}
	vm := G.NewTapeMachine(g)
	defer vm.Close()
	if err := vm.RunAll(); err != nil {
		t.Fatalf("runAll: %v", err)
	}

	return append([]float64(nil), outVal.Data().([]float64)...), m
}

func TestMLPForwardShape(t *testing.T) {
	out, m := forward(t, nil, []float64{1, 2, 3, 4, 5, 6}, 2)
	if len(out) != 4 {
		t.Errorf("output length = %v, want 4", len(out))
	}
	if len(m.Learnables()) != 6 {
		t.Errorf("learnables = %v, want 6", len(m.Learnables()))
	}
}

func TestMLPSet(t *testing.T) {
	input := []float64{0.1, -0.2, 0.3}
	first, m := forward(t, nil, input, 1)
	second, _ := forward(t, m, input, 1)

	if !floats.EqualApprox(first, second, 1e-12) {
		t.Errorf("outputs differ after set: %v != %v", first, second)
	}
}

func TestMLPGob(t *testing.T) {
	input := []float64{0.5, 0.5, -1}
	first, m := forward(t, nil, input, 1)

	encoded, err := m.GobEncode()
	if err != nil {
		t.Fatalf("gobEncode: %v", err)
	}

	g := G.NewGraph()
	decoded, _ := NewMLP(g, "net", 3, []int{4, 4}, 2, TanH(), G.GlorotU(1.0))
	if err := decoded.GobDecode(encoded); err != nil {
		t.Fatalf("gobDecode: %v", err)
	}

	second, _ := forward(t, decoded, input, 1)
	if !floats.EqualApprox(first, second, 1e-12) {
		t.Errorf("outputs differ after gob: %v != %v", first, second)
	}
}

func TestChunk(t *testing.T) {
	data := []float64{1, 1, 2, 2, 3, 3, 4, 4, 5, 5}
	chunks, last := Chunk(data, 2, 2)

	if len(chunks) != 3 {
		t.Fatalf("chunks = %v, want 3", len(chunks))
	}
	if last != 1 {
		t.Errorf("last = %v, want 1", last)
	}
	if !floats.Equal(chunks[2], []float64{5, 5, 0, 0}) {
		t.Errorf("final chunk = %v, want [5 5 0 0]", chunks[2])
	}
}

func TestParseActivation(t *testing.T) {
	for _, name := range []string{"relu", "tanh", "identity"} {
		a, err := ParseActivation(name)
		if err != nil || a.String() != name {
			t.Errorf("parseActivation(%q) = %v, %v", name, a, err)
		}
	}
	if _, err := ParseActivation("softmax"); err == nil {
		t.Errorf("parseActivation: expected error for unknown activation")
	}
}

// inputGradGraph builds an MLP with activation act applied to a 4 x 3
// input together with dy, an upstream gradient of its 4 x 2 output
func inputGradGraph(t *testing.T, act *Activation) (*G.ExprGraph, *MLP, *G.Node,
	*G.Node, *G.Node) {
	t.Helper()
	g := G.NewGraph()
	m, err := NewMLP(g, "net", 3, []int{5, 4}, 2, act, G.GlorotU(1.0))
	if err != nil {
		t.Fatalf("newMLP: %v", err)
	}
	x := NewInput(g, "x", 4, 3)
	dy := NewInput(g, "dy", 4, 2)
	y, err := m.Fwd(x)
	if err != nil {
		t.Fatalf("fwd: %v", err)
	}
	return g, m, x, dy, y
}

func setInputGradValues(t *testing.T, x, dy *G.Node) {
	t.Helper()
	err := SetInput(x, []float64{
		0.3, -0.7, 1.1,
		-0.2, 0.5, 0.9,
		1.3, 0.4, -0.6,
		-1.0, -0.8, 0.2,
	})
	if err != nil {
		t.Fatalf("setInput: %v", err)
	}
	err = SetInput(dy, []float64{0.5, -1, 2, 0.25, -0.3, 0.7, 1, 1})
	if err != nil {
		t.Fatalf("setInput: %v", err)
	}
}

func TestMLPInputGrad(t *testing.T) {
	for _, act := range []*Activation{TanH(), ReLU(), Identity()} {
		t.Run(act.String(), func(t *testing.T) {
			g, m, x, dy, y := inputGradGraph(t, act)

			prod, err := G.HadamardProd(dy, y)
			if err != nil {
				t.Fatalf("hadamardProd: %v", err)
			}
			cost, err := G.Sum(prod)
			if err != nil {
				t.Fatalf("sum: %v", err)
			}
			symbolic, err := G.Grad(cost, x)
			if err != nil {
				t.Fatalf("grad: %v", err)
			}
			explicit, err := m.InputGrad(x, dy)
			if err != nil {
				t.Fatalf("inputGrad: %v", err)
			}
			if !explicit.Shape().Eq(x.Shape()) {
				t.Fatalf("inputGrad shape = %v, want %v", explicit.Shape(),
					x.Shape())
			}

			var symVal, expVal G.Value
			G.Read(symbolic[0], &symVal)
			G.Read(explicit, &expVal)

			setInputGradValues(t, x, dy)
			vm := G.NewTapeMachine(g)
			defer vm.Close()
			if err := vm.RunAll(); err != nil {
				t.Fatalf("runAll: %v", err)
			}

			want := symVal.Data().([]float64)
			got := expVal.Data().([]float64)
			if !floats.EqualApprox(got, want, 1e-9) {
				t.Errorf("inputGrad = %v, want %v", got, want)
			}
		})
	}
}

// A penalty on the input gradient must itself be differentiable with
// respect to the weights, which symbolic input gradients are not
func TestMLPInputGradDifferentiable(t *testing.T) {
	g, m, x, dy, _ := inputGradGraph(t, TanH())

	grad, err := m.InputGrad(x, dy)
	if err != nil {
		t.Fatalf("inputGrad: %v", err)
	}
	sq, err := G.Square(grad)
	if err != nil {
		t.Fatalf("square: %v", err)
	}
	penalty, err := G.Sum(sq)
	if err != nil {
		t.Fatalf("sum: %v", err)
	}

	// The output bias does not change the input gradient
	learnables := m.Learnables()
	wrt := learnables[:len(learnables)-1]
	grads, err := G.Grad(penalty, wrt...)
	if err != nil {
		t.Fatalf("grad of penalty with respect to weights: %v", err)
	}

	var wGrad G.Value
	G.Read(grads[0], &wGrad)

	setInputGradValues(t, x, dy)
	vm := G.NewTapeMachine(g)
	defer vm.Close()
	if err := vm.RunAll(); err != nil {
		t.Fatalf("runAll: %v", err)
	}

	data := wGrad.Data().([]float64)
	if floats.HasNaN(data) {
		t.Fatalf("weight gradient has NaN: %v", data)
	}
	if floats.Norm(data, 2) == 0 {
		t.Errorf("weight gradient of input gradient penalty is zero")
	}
}

func TestMLPInputGradShapeError(t *testing.T) {
	g, m, x, _, _ := inputGradGraph(t, TanH())
	bad := NewInput(g, "bad", 4, 3)
	if _, err := m.InputGrad(x, bad); err == nil {
		t.Errorf("inputGrad: expected error for mismatched output gradient")
	}
}
