package policy

import (
	"fmt"
	"math"

	"github.com/samuelfneumann/goimitate/network"
	"github.com/samuelfneumann/goimitate/utils/op"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Actor is a Gaussian policy with a state-independent log standard
// deviation whose mean network applies dropout after every hidden
// layer. With dropout switched on, repeated evaluations of the same
// state and action give an ensemble of densities.
type Actor struct {
	stateDim  int
	actionDim int
	batch     int
	config    Config
	dropP     float64
	seed      uint64

	g       *G.ExprGraph
	states  *G.Node
	actions *G.Node
	net     *network.MLP
	dropout *network.Dropout
	logStd  *G.Node
	logPdf  *G.Node

	logPdfVal G.Value
	vm        G.VM
}

// NewActor returns a new dropout Actor. The parameter dropP is the
// probability of dropping each hidden unit in stochastic passes.
func NewActor(stateDim, actionDim, batch int, c Config, dropP float64,
	seed uint64) (*Actor, error) {
	if batch < 1 {
		return nil, fmt.Errorf("newActor: batch size must be positive")
	}
	act, err := network.ParseActivation(c.Activation)
	if err != nil {
		return nil, fmt.Errorf("newActor: %v", err)
	}
	init := c.Init
	if init == nil {
		init = G.GlorotU(1.0)
	}

	g := G.NewGraph()
	a := &Actor{
		stateDim:  stateDim,
		actionDim: actionDim,
		batch:     batch,
		config:    c,
		dropP:     dropP,
		seed:      seed,
		g:         g,
		states:    network.NewInput(g, "states", batch, stateDim),
		actions:   network.NewInput(g, "actions", batch, actionDim),
	}

	a.net, err = network.NewMLP(g, "dropoutActor", stateDim, c.Hidden,
		actionDim, act, init)
	if err != nil {
		return nil, fmt.Errorf("newActor: %v", err)
	}
	a.dropout, err = network.NewDropout(a.net, "dropoutActor", batch, dropP,
		seed)
	if err != nil {
		return nil, fmt.Errorf("newActor: %v", err)
	}
	a.logStd = G.NewMatrix(g, tensor.Float64, G.WithShape(1, actionDim),
		G.WithName("dropoutActorLogStd"),
		G.WithInit(G.ValuesOf(c.LogStdInit)))

	mean, err := a.net.FwdWithDropout(a.states, a.dropout.Masks())
	if err != nil {
		return nil, fmt.Errorf("newActor: %v", err)
	}
	if a.logPdf, err = op.GaussianLogPdf(mean, a.logStd, a.actions); err != nil {
		return nil, fmt.Errorf("newActor: %v", err)
	}
	G.Read(a.logPdf, &a.logPdfVal)

	return a, nil
}

// CloneWithBatch returns a copy of the Actor on a new graph with a
// different batch size
func (a *Actor) CloneWithBatch(batch int) (*Actor, error) {
	clone, err := NewActor(a.stateDim, a.actionDim, batch, a.config, a.dropP,
		a.seed+uint64(batch))
	if err != nil {
		return nil, fmt.Errorf("cloneWithBatch: %v", err)
	}
	return clone, clone.Set(a)
}

// Set sets the weights of a to copies of the weights of src
func (a *Actor) Set(src *Actor) error {
	return network.SetValues(a.Learnables(), network.Values(src.Learnables()))
}

func (a *Actor) Graph() *G.ExprGraph { return a.g }
func (a *Actor) BatchSize() int      { return a.batch }
func (a *Actor) States() *G.Node     { return a.states }
func (a *Actor) Actions() *G.Node    { return a.actions }
func (a *Actor) LogPdf() *G.Node     { return a.logPdf }

// Learnables returns the mean network weights followed by the log
// standard deviation
func (a *Actor) Learnables() G.Nodes {
	return append(append(G.Nodes{}, a.net.Learnables()...), a.logStd)
}

// PolicyLearnables returns all weights of the Actor
func (a *Actor) PolicyLearnables() G.Nodes { return a.Learnables() }

// Resample draws new dropout masks
func (a *Actor) Resample() error {
	return a.dropout.Sample()
}

// Densities returns π(a|s) for each row of the row-major states and
// actions. If stochastic is true, new dropout masks are drawn for
// every batch; otherwise dropout is switched off.
func (a *Actor) Densities(states, actions []float64,
	stochastic bool) ([]float64, error) {
	rows := len(states) / a.stateDim
	if len(states) != rows*a.stateDim || len(actions) != rows*a.actionDim {
		return nil, fmt.Errorf("densities: states and actions must have " +
			"the same number of rows")
	}
	if a.vm == nil {
		a.vm = G.NewTapeMachine(a.g)
	}

	stateChunks, last := network.Chunk(states, a.stateDim, a.batch)
	actionChunks, _ := network.Chunk(actions, a.actionDim, a.batch)
	out := make([]float64, 0, rows)
	for i := range stateChunks {
		var err error
		if stochastic {
			err = a.dropout.Sample()
		} else {
			err = a.dropout.Keep()
		}
		if err != nil {
			return nil, fmt.Errorf("densities: %v", err)
		}
		if err := network.SetInput(a.states, stateChunks[i]); err != nil {
			return nil, fmt.Errorf("densities: %v", err)
		}
		if err := network.SetInput(a.actions, actionChunks[i]); err != nil {
			return nil, fmt.Errorf("densities: %v", err)
		}
		if err := a.vm.RunAll(); err != nil {
			a.vm.Reset()
			return nil, fmt.Errorf("densities: %v", err)
		}

		n := a.batch
		if i == len(stateChunks)-1 {
			n = last
		}
		for _, lp := range a.logPdfVal.Data().([]float64)[:n] {
			out = append(out, math.Exp(lp))
		}
		a.vm.Reset()
	}

	// Leave the actor deterministic for callers that evaluate it next
	return out, a.dropout.Keep()
}
