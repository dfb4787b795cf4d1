package imitation

import (
	"encoding/gob"
	"fmt"
	"io"

	"github.com/samuelfneumann/goimitate/ilerr"
	"github.com/samuelfneumann/goimitate/network"
	"github.com/samuelfneumann/goimitate/solver"
	"github.com/samuelfneumann/goimitate/utils/floatutils"
	"github.com/samuelfneumann/goimitate/utils/op"
	"golang.org/x/exp/rand"
	G "gorgonia.org/gorgonia"
)

// trainer runs gradient steps of a scalar loss on a graph
type trainer struct {
	op         string
	loss       *G.Node
	lossVal    G.Value
	learnables G.Nodes
	vm         G.VM
	solver     G.Solver
}

// newTrainer differentiates loss with respect to learnables, which
// must all lie on the graph of loss
func newTrainer(op string, loss *G.Node, learnables G.Nodes,
	c Config) (*trainer, error) {
	if _, err := G.Grad(loss, learnables...); err != nil {
		return nil, fmt.Errorf("could not compute gradient: %v", err)
	}

	s := c.Solver
	var err error
	if s == nil {
		s, err = solver.NewRMSProp(c.LearningRate, 1e-8, 0.99, 1)
		if err != nil {
			return nil, err
		}
	}
	gSolver, err := s.Create()
	if err != nil {
		return nil, err
	}

	t := &trainer{
		op:         op,
		loss:       loss,
		learnables: learnables,
		solver:     gSolver,
	}
	G.Read(loss, &t.lossVal)
	t.vm = G.NewTapeMachine(loss.Graph(), G.BindDualValues(learnables...))
	return t, nil
}

// feed is the data bound to an input node for one step
type feed struct {
	node *G.Node
	data []float64
}

// step binds feeds, computes the loss and its gradient, and steps the
// solver. No step is taken if the loss is not finite.
func (t *trainer) step(feeds ...feed) (float64, error) {
	for _, f := range feeds {
		if err := network.SetInput(f.node, f.data); err != nil {
			return 0, err
		}
	}

	if err := t.vm.RunAll(); err != nil {
		t.vm.Reset()
		return 0, err
	}
	defer t.vm.Reset()

	loss, err := network.Scalar(t.lossVal)
	if err != nil {
		return 0, err
	}
	if !floatutils.IsFinite(loss) {
		return loss, ilerr.NumericInstability(t.op, "loss", -1, loss)
	}

	if err := t.solver.Step(network.Model(t.learnables)); err != nil {
		return loss, fmt.Errorf("could not step solver: %v", err)
	}
	return loss, nil
}

// evaluator computes per-row outputs of a fixed batch size graph for
// any number of rows
type evaluator struct {
	batch   int
	inputs  G.Nodes
	widths  []int
	outputs []*G.Node
	values  []G.Value
	vm      G.VM
}

// newEvaluator returns an evaluator reading outputs, whose first
// dimension must be the batch size. All nodes must share a graph and
// any further nodes must be added to it before the first call to eval.
func newEvaluator(batch int, inputs G.Nodes, outputs ...*G.Node) *evaluator {
	e := &evaluator{
		batch:   batch,
		inputs:  inputs,
		widths:  make([]int, len(inputs)),
		outputs: outputs,
		values:  make([]G.Value, len(outputs)),
	}
	for i, in := range inputs {
		e.widths[i] = in.Shape().TotalSize() / batch
	}
	for i, out := range outputs {
		G.Read(out, &e.values[i])
	}
	return e
}

// eval returns, for each output, the outputs of all rows of data
// concatenated in order. Row-major data[i] is bound to input i.
func (e *evaluator) eval(data ...[]float64) ([][]float64, error) {
	if len(data) != len(e.inputs) {
		return nil, fmt.Errorf("eval: want %v inputs, have %v",
			len(e.inputs), len(data))
	}
	if e.vm == nil {
		e.vm = G.NewTapeMachine(e.inputs[0].Graph())
	}

	rows := len(data[0]) / e.widths[0]
	chunks := make([][][]float64, len(data))
	var last int
	for i := range data {
		if len(data[i]) != rows*e.widths[i] {
			return nil, ilerr.DimensionMismatch("eval", "input rows",
				rows*e.widths[i], len(data[i]))
		}
		chunks[i], last = network.Chunk(data[i], e.widths[i], e.batch)
	}

	out := make([][]float64, len(e.outputs))
	for c := range chunks[0] {
		for i := range e.inputs {
			if err := network.SetInput(e.inputs[i], chunks[i][c]); err != nil {
				return nil, fmt.Errorf("eval: %v", err)
			}
		}
		if err := e.vm.RunAll(); err != nil {
			e.vm.Reset()
			return nil, fmt.Errorf("eval: %v", err)
		}

		n := e.batch
		if c == len(chunks[0])-1 {
			n = last
		}
		for i, v := range e.values {
			width := e.outputs[i].Shape().TotalSize() / e.batch
			out[i] = append(out[i], v.Data().([]float64)[:n*width]...)
		}
		e.vm.Reset()
	}
	return out, nil
}

// minibatches returns a random partition of the indices [0, n) into
// minibatches of size, dropping the final partial minibatch
func minibatches(rng *rand.Rand, n, size int) [][]int {
	perm := rng.Perm(n)
	batches := make([][]int, 0, n/size)
	for start := 0; start+size <= n; start += size {
		batches = append(batches, perm[start:start+size])
	}
	return batches
}

// zip pairs shuffled minibatches of expert and policy indices. The
// number of pairs is limited by the smaller dataset.
func zip(rng *rand.Rand, expertLen, policyLen, size int) (expert,
	policy [][]int) {
	expert = minibatches(rng, expertLen, size)
	policy = minibatches(rng, policyLen, size)
	if len(expert) > len(policy) {
		expert = expert[:len(policy)]
	} else {
		policy = policy[:len(expert)]
	}
	return expert, policy
}

// checkRewards returns a *ilerr.NumericInstabilityError for the first
// non-finite reward
func checkRewards(op string, rewards []float64) error {
	if i := floatutils.NonFinite(rewards); i >= 0 {
		return ilerr.NumericInstability(op, "reward", i, rewards[i])
	}
	return nil
}

// saveWeights gob-encodes the values of every group of nodes in
// order to w
func saveWeights(w io.Writer, groups ...G.Nodes) error {
	weights := make([][][]float64, len(groups))
	for i, g := range groups {
		weights[i] = network.Values(g)
	}
	return gob.NewEncoder(w).Encode(weights)
}

// loadWeights decodes weights written by saveWeights into groups
func loadWeights(r io.Reader, groups ...G.Nodes) error {
	var weights [][][]float64
	if err := gob.NewDecoder(r).Decode(&weights); err != nil {
		return err
	}
	if len(weights) != len(groups) {
		return fmt.Errorf("loadWeights: want %v weight groups, have %v",
			len(groups), len(weights))
	}
	for i, g := range groups {
		if err := network.SetValues(g, weights[i]); err != nil {
			return err
		}
	}
	return nil
}

// inputWidth returns the width of estimator inputs over states of
// dimension stateDim
func inputWidth(stateOnly bool, stateDim, actionDim int) int {
	if stateOnly {
		return stateDim
	}
	return stateDim + actionDim
}

// markerDim returns the state dimension seen by estimators that use
// absorbing markers
func markerDim(c Config, stateDim int) int {
	if c.Absorbing {
		return stateDim + 1
	}
	return stateDim
}

// initOrDefault returns the weight initialiser of c, Glorot uniform by
// default
func initOrDefault(c Config) G.InitWFn {
	if c.Init != nil {
		return c.Init
	}
	return G.GlorotU(1.0)
}

// bce returns the mean binary cross entropy of logits against the
// label 1 if positive and 0 otherwise
func bce(logits *G.Node, positive bool) (*G.Node, error) {
	return op.BCEWithLogits(logits, positive)
}

// maxScalar returns max(x, c) for a scalar node x
func maxScalar(x *G.Node, c float64) (*G.Node, error) {
	return op.Max(x, G.NewConstant(c))
}
