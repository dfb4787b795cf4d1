// Package policy implements Gaussian policies for continuous actions:
// an actor-critic that shares nothing but its inputs between the mean
// and value networks, and a standalone actor with dropout.
//
// Each model lives on its own computational graph with a fixed batch
// size. Models with other batch sizes are obtained with CloneWithBatch
// and kept in sync with Set, so that one model can act with batch size
// 1 while a clone is trained on a full batch.
package policy

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"math"

	"github.com/samuelfneumann/goimitate/network"
	"github.com/samuelfneumann/goimitate/utils/op"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Config describes the architecture of a Gaussian policy
type Config struct {
	Hidden     []int
	Activation string // relu, tanh, or identity
	LogStdInit float64
	Init       G.InitWFn
}

// Trainable is a Gaussian policy whose log density of given actions
// can be trained by gradient descent
type Trainable interface {
	Graph() *G.ExprGraph
	BatchSize() int
	States() *G.Node
	Actions() *G.Node
	LogPdf() *G.Node

	// PolicyLearnables returns the weights that LogPdf depends on
	PolicyLearnables() G.Nodes

	// Resample is called before every stochastic training pass
	Resample() error
}

// ActorCritic is a Gaussian policy π(a|s) = N(μ(s), diag(σ²)) with a
// state-independent log standard deviation, together with a state
// value function V(s). The mean and value functions are separate MLPs.
type ActorCritic struct {
	stateDim  int
	actionDim int
	batch     int
	config    Config
	seed      uint64

	g       *G.ExprGraph
	states  *G.Node
	actions *G.Node

	actor  *network.MLP
	critic *network.MLP
	logStd *G.Node

	mean    *G.Node
	value   *G.Node
	logPdf  *G.Node
	entropy *G.Node

	meanVal   G.Value
	valueVal  G.Value
	logPdfVal G.Value
	vm        G.VM

	normal distuv.Normal
}

// NewActorCritic returns a new ActorCritic for states of dimension
// stateDim and actions of dimension actionDim, operating on batches of
// batch samples.
func NewActorCritic(stateDim, actionDim, batch int, c Config,
	seed uint64) (*ActorCritic, error) {
	if batch < 1 {
		return nil, fmt.Errorf("newActorCritic: batch size must be positive")
	}
	act, err := network.ParseActivation(c.Activation)
	if err != nil {
		return nil, fmt.Errorf("newActorCritic: %v", err)
	}
	init := c.Init
	if init == nil {
		init = G.GlorotU(1.0)
	}

	g := G.NewGraph()
	states := network.NewInput(g, "states", batch, stateDim)
	actions := network.NewInput(g, "actions", batch, actionDim)

	actor, err := network.NewMLP(g, "actor", stateDim, c.Hidden, actionDim,
		act, init)
	if err != nil {
		return nil, fmt.Errorf("newActorCritic: could not create actor: %v",
			err)
	}
	critic, err := network.NewMLP(g, "critic", stateDim, c.Hidden, 1, act,
		init)
	if err != nil {
		return nil, fmt.Errorf("newActorCritic: could not create critic: %v",
			err)
	}
	logStd := G.NewMatrix(g, tensor.Float64, G.WithShape(1, actionDim),
		G.WithName("logStd"), G.WithInit(G.ValuesOf(c.LogStdInit)))

	a := &ActorCritic{
		stateDim:  stateDim,
		actionDim: actionDim,
		batch:     batch,
		config:    c,
		seed:      seed,
		g:         g,
		states:    states,
		actions:   actions,
		actor:     actor,
		critic:    critic,
		logStd:    logStd,
	}

	if a.mean, err = actor.Fwd(states); err != nil {
		return nil, fmt.Errorf("newActorCritic: %v", err)
	}
	value, err := critic.Fwd(states)
	if err != nil {
		return nil, fmt.Errorf("newActorCritic: %v", err)
	}
	if a.value, err = G.Ravel(value); err != nil {
		return nil, fmt.Errorf("newActorCritic: %v", err)
	}
	if a.logPdf, err = op.GaussianLogPdf(a.mean, logStd, actions); err != nil {
		return nil, fmt.Errorf("newActorCritic: could not compute log "+
			"pdf: %v", err)
	}
	if a.entropy, err = op.GaussianEntropy(logStd); err != nil {
		return nil, fmt.Errorf("newActorCritic: could not compute "+
			"entropy: %v", err)
	}

	G.Read(a.mean, &a.meanVal)
	G.Read(a.value, &a.valueVal)
	G.Read(a.logPdf, &a.logPdfVal)

	a.normal = distuv.Normal{Mu: 0, Sigma: 1, Src: rand.NewSource(seed)}

	return a, nil
}

// CloneWithBatch returns a copy of the ActorCritic on a new graph with
// a different batch size
func (a *ActorCritic) CloneWithBatch(batch int) (*ActorCritic, error) {
	clone, err := NewActorCritic(a.stateDim, a.actionDim, batch, a.config,
		a.seed)
	if err != nil {
		return nil, fmt.Errorf("cloneWithBatch: %v", err)
	}
	if err := clone.Set(a); err != nil {
		return nil, fmt.Errorf("cloneWithBatch: %v", err)
	}
	return clone, nil
}

// Set sets the weights of a to copies of the weights of src
func (a *ActorCritic) Set(src *ActorCritic) error {
	return network.SetValues(a.Learnables(), network.Values(src.Learnables()))
}

// Graph returns the computational graph of the model
func (a *ActorCritic) Graph() *G.ExprGraph { return a.g }

// BatchSize returns the number of samples in each batch
func (a *ActorCritic) BatchSize() int { return a.batch }

// StateDim returns the dimension of states
func (a *ActorCritic) StateDim() int { return a.stateDim }

// ActionDim returns the dimension of actions
func (a *ActorCritic) ActionDim() int { return a.actionDim }

// States returns the batch x StateDim state input node
func (a *ActorCritic) States() *G.Node { return a.states }

// Actions returns the batch x ActionDim action input node
func (a *ActorCritic) Actions() *G.Node { return a.actions }

// Mean returns the node of the policy mean for each state
func (a *ActorCritic) Mean() *G.Node { return a.mean }

// LogStd returns the 1 x ActionDim log standard deviation node
func (a *ActorCritic) LogStd() *G.Node { return a.logStd }

// Value returns the vector node of state values
func (a *ActorCritic) Value() *G.Node { return a.value }

// LogPdf returns the vector node of log π(a|s) for the input states
// and actions
func (a *ActorCritic) LogPdf() *G.Node { return a.logPdf }

// Entropy returns the scalar node of the policy entropy, which does not
// depend on the state
func (a *ActorCritic) Entropy() *G.Node { return a.entropy }

// Resample is a no-op; the actor-critic is not stochastic in its
// weights
func (a *ActorCritic) Resample() error { return nil }

// Learnables returns the actor, log standard deviation, and critic
// weights, in that order
func (a *ActorCritic) Learnables() G.Nodes {
	learnables := append(G.Nodes{}, a.actor.Learnables()...)
	learnables = append(learnables, a.logStd)
	return append(learnables, a.critic.Learnables()...)
}

// PolicyLearnables returns the actor and log standard deviation
// weights
func (a *ActorCritic) PolicyLearnables() G.Nodes {
	return append(append(G.Nodes{}, a.actor.Learnables()...), a.logStd)
}

// forward runs the inference graph on a single batch of inputs
func (a *ActorCritic) forward(states, actions []float64) error {
	if a.vm == nil {
		a.vm = G.NewTapeMachine(a.g)
	}
	if err := network.SetInput(a.states, states); err != nil {
		return err
	}
	if err := network.SetInput(a.actions, actions); err != nil {
		return err
	}
	return a.vm.RunAll()
}

// Act samples an action in state, returning the action, its log
// density, and the value of state. The model must have batch size 1.
func (a *ActorCritic) Act(state []float64) (action []float64, logProb,
	value float64, err error) {
	mean, value, err := a.meanAndValue(state)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("act: %v", err)
	}

	logStd := a.logStd.Value().Data().([]float64)
	action = make([]float64, a.actionDim)
	for j := range action {
		std := math.Exp(logStd[j])
		action[j] = mean[j] + std*a.normal.Rand()
		logProb += distuv.Normal{Mu: mean[j], Sigma: std}.LogProb(action[j])
	}
	return action, logProb, value, nil
}

// Greedy returns the mean action in state. The model must have batch
// size 1.
func (a *ActorCritic) Greedy(state []float64) ([]float64, error) {
	mean, _, err := a.meanAndValue(state)
	if err != nil {
		return nil, fmt.Errorf("greedy: %v", err)
	}
	return mean, nil
}

// StateValue returns the value of state. The model must have batch size
// 1.
func (a *ActorCritic) StateValue(state []float64) (float64, error) {
	_, value, err := a.meanAndValue(state)
	if err != nil {
		return 0, fmt.Errorf("stateValue: %v", err)
	}
	return value, nil
}

func (a *ActorCritic) meanAndValue(state []float64) ([]float64, float64,
	error) {
	if a.batch != 1 {
		return nil, 0, fmt.Errorf("model must have batch size 1, has %v",
			a.batch)
	}
	if len(state) != a.stateDim {
		return nil, 0, fmt.Errorf("illegal state dimension \n\twant(%v)"+
			"\n\thave(%v)", a.stateDim, len(state))
	}
	err := a.forward(state, make([]float64, a.actionDim))
	defer a.vm.Reset()
	if err != nil {
		return nil, 0, err
	}

	mean := append([]float64(nil), a.meanVal.Data().([]float64)...)
	value, err := network.Scalar(a.valueVal)
	return mean, value, err
}

// Evaluate returns log π(a|s) and V(s) for each row of the row-major
// states and actions. Any number of rows may be given; they are
// processed in batches of the model's batch size.
func (a *ActorCritic) Evaluate(states, actions []float64) (logProbs,
	values []float64, err error) {
	rows := len(states) / a.stateDim
	if len(states) != rows*a.stateDim || len(actions) != rows*a.actionDim {
		return nil, nil, fmt.Errorf("evaluate: states and actions must " +
			"have the same number of rows")
	}

	stateChunks, last := network.Chunk(states, a.stateDim, a.batch)
	actionChunks, _ := network.Chunk(actions, a.actionDim, a.batch)
	for i := range stateChunks {
		if err := a.forward(stateChunks[i], actionChunks[i]); err != nil {
			if a.vm != nil {
				a.vm.Reset()
			}
			return nil, nil, fmt.Errorf("evaluate: %v", err)
		}

		n := a.batch
		if i == len(stateChunks)-1 {
			n = last
		}
		logProbs = append(logProbs, a.logPdfVal.Data().([]float64)[:n]...)
		values = append(values, a.valueVal.Data().([]float64)[:n]...)
		a.vm.Reset()
	}
	return logProbs, values, nil
}

// LogProbs returns log π(a|s) for each row of the row-major states and
// actions
func (a *ActorCritic) LogProbs(states, actions []float64) ([]float64, error) {
	logProbs, _, err := a.Evaluate(states, actions)
	return logProbs, err
}

// Values returns V(s) for each row of the row-major states
func (a *ActorCritic) Values(states []float64) ([]float64, error) {
	rows := len(states) / a.stateDim
	_, values, err := a.Evaluate(states, make([]float64, rows*a.actionDim))
	return values, err
}

// GobEncode implements the gob.GobEncoder interface. Only weights are
// encoded.
func (a *ActorCritic) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode(network.Values(a.Learnables()))
	if err != nil {
		return nil, fmt.Errorf("gobEncode: %v", err)
	}
	return buf.Bytes(), nil
}

// GobDecode implements the gob.GobDecoder interface. The ActorCritic
// must already have the architecture of the encoded model.
func (a *ActorCritic) GobDecode(in []byte) error {
	var values [][]float64
	if err := gob.NewDecoder(bytes.NewReader(in)).Decode(&values); err != nil {
		return fmt.Errorf("gobDecode: %v", err)
	}
	return network.SetValues(a.Learnables(), values)
}
