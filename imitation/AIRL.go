package imitation

import (
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"github.com/samuelfneumann/goimitate/network"
	"github.com/samuelfneumann/goimitate/policy"
	"github.com/samuelfneumann/goimitate/trajectory"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat"
	G "gorgonia.org/gorgonia"
)

// AIRLDiscriminator implements adversarial inverse reinforcement
// learning. The discriminator logit is
//
//	f(s, a, s') - log π(a|s),  f = g(s, a) + (1 - d)(γ h(s') - h(s))
//
// where g is a linear reward approximator, h is a shaping network over
// states, and d is the terminal flag. The reward of a policy
// transition is the logit itself, log D - log(1 - D).
type AIRLDiscriminator struct {
	config    Config
	stateDim  int // including any absorbing marker
	actionDim int
	width     int
	rng       *rand.Rand
	logger    zerolog.Logger

	agent  *policy.ActorCritic
	prober *policy.ActorCritic

	trainG, trainH *network.MLP
	expert, policy airlInputs
	trainer        *trainer

	inferG, inferH *network.MLP
	infer          *evaluator
	inferIn        airlInputs
}

// airlInputs are the input nodes of one side of the discriminator
type airlInputs struct {
	inputs    *G.Node
	states    *G.Node
	next      *G.Node
	terminals *G.Node
	logProbs  *G.Node
}

func newAIRLInputs(g *G.ExprGraph, prefix string, batch, width,
	stateDim int) airlInputs {
	return airlInputs{
		inputs:    network.NewInput(g, prefix+"Inputs", batch, width),
		states:    network.NewInput(g, prefix+"States", batch, stateDim),
		next:      network.NewInput(g, prefix+"NextStates", batch, stateDim),
		terminals: network.NewVectorInput(g, prefix+"Terminals", batch),
		logProbs:  network.NewVectorInput(g, prefix+"LogProbs", batch),
	}
}

// logit adds the discriminator logit of in to the graph
func (in airlInputs) logit(gNet, hNet *network.MLP,
	discount float64) (*G.Node, error) {
	reward, err := logits(gNet, in.inputs)
	if err != nil {
		return nil, err
	}
	value, err := logits(hNet, in.states)
	if err != nil {
		return nil, err
	}
	nextValue, err := logits(hNet, in.next)
	if err != nil {
		return nil, err
	}

	nextValue, err = G.Mul(G.NewConstant(discount), nextValue)
	if err != nil {
		return nil, err
	}
	shaping, err := G.Sub(nextValue, value)
	if err != nil {
		return nil, err
	}
	continuing, err := G.Sub(G.NewConstant(1.0), in.terminals)
	if err != nil {
		return nil, err
	}
	shaping, err = G.HadamardProd(continuing, shaping)
	if err != nil {
		return nil, err
	}
	f, err := G.Add(reward, shaping)
	if err != nil {
		return nil, err
	}
	return G.Sub(f, in.logProbs)
}

// inputGrads adds to the graph the per-row gradients of σ(logit) with
// respect to the inputs, states, and next states of in
func (in airlInputs) inputGrads(gNet, hNet *network.MLP, logit *G.Node,
	discount float64) (G.Nodes, error) {
	dLogit, err := sigmoidGrad(logit)
	if err != nil {
		return nil, err
	}
	inputsGrad, err := gNet.InputGrad(in.inputs, dLogit)
	if err != nil {
		return nil, err
	}

	// The shaping term enters the logit as (1 - d)(γh(s') - h(s))
	continuing, err := G.Sub(G.NewConstant(1.0), in.terminals)
	if err != nil {
		return nil, err
	}
	if continuing, err = column(continuing); err != nil {
		return nil, err
	}
	dShaping, err := G.HadamardProd(continuing, dLogit)
	if err != nil {
		return nil, err
	}
	dNext, err := G.Mul(G.NewConstant(discount), dShaping)
	if err != nil {
		return nil, err
	}
	dState, err := G.Neg(dShaping)
	if err != nil {
		return nil, err
	}

	nextGrad, err := hNet.InputGrad(in.next, dNext)
	if err != nil {
		return nil, err
	}
	stateGrad, err := hNet.InputGrad(in.states, dState)
	if err != nil {
		return nil, err
	}
	return G.Nodes{inputsGrad, stateGrad, nextGrad}, nil
}

func (in airlInputs) feeds(t trajectory.Transitions, rows []int,
	stateOnly bool, logProbs []float64) []feed {
	sub := t.Rows(rows)
	return []feed{
		{in.inputs, sub.Inputs(stateOnly)},
		{in.states, sub.States},
		{in.next, sub.NextStates},
		{in.terminals, sub.Terminals},
		{in.logProbs, gather(logProbs, 1, rows)},
	}
}

func newAIRL(c Config, stateDim, actionDim int, agent *policy.ActorCritic,
	logger zerolog.Logger) (*AIRLDiscriminator, error) {
	act, err := network.ParseActivation(c.Activation)
	if err != nil {
		return nil, err
	}
	init := initOrDefault(c)
	sd := markerDim(c, stateDim)
	width := inputWidth(c.StateOnly, sd, actionDim)

	prober, err := agent.CloneWithBatch(c.BatchSize)
	if err != nil {
		return nil, err
	}

	d := &AIRLDiscriminator{
		config:    c,
		stateDim:  sd,
		actionDim: actionDim,
		width:     width,
		rng:       rand.New(rand.NewSource(c.Seed)),
		logger:    logger,
		agent:     agent,
		prober:    prober,
	}

	newNets := func(g *G.ExprGraph) (*network.MLP, *network.MLP, error) {
		gNet, err := network.NewMLP(g, "airlReward", width, nil, 1, nil, init)
		if err != nil {
			return nil, nil, err
		}
		hNet, err := network.NewMLP(g, "airlShaping", sd, c.Hidden, 1, act,
			init)
		return gNet, hNet, err
	}

	// Training graph
	g := G.NewGraph()
	if d.trainG, d.trainH, err = newNets(g); err != nil {
		return nil, err
	}
	d.expert = newAIRLInputs(g, "expert", c.BatchSize, width, sd)
	d.policy = newAIRLInputs(g, "policy", c.BatchSize, width, sd)
	expertLogits, err := d.expert.logit(d.trainG, d.trainH, c.Discount)
	if err != nil {
		return nil, err
	}
	policyLogits, err := d.policy.logit(d.trainG, d.trainH, c.Discount)
	if err != nil {
		return nil, err
	}
	loss, err := adversarialLoss(expertLogits, policyLogits)
	if err != nil {
		return nil, err
	}
	if c.R1RegCoeff > 0 {
		grads, err := d.expert.inputGrads(d.trainG, d.trainH, expertLogits,
			c.Discount)
		if err != nil {
			return nil, fmt.Errorf("newAIRL: r1 regularisation: %v", err)
		}
		loss, err = addR1(loss, c.R1RegCoeff, grads...)
		if err != nil {
			return nil, err
		}
	}
	d.trainer, err = newTrainer("update", loss, d.Learnables(), c)
	if err != nil {
		return nil, err
	}

	// Inference graph
	ig := G.NewGraph()
	if d.inferG, d.inferH, err = newNets(ig); err != nil {
		return nil, err
	}
	d.inferIn = newAIRLInputs(ig, "", c.BatchSize, width, sd)
	out, err := d.inferIn.logit(d.inferG, d.inferH, c.Discount)
	if err != nil {
		return nil, err
	}
	d.infer = newEvaluator(c.BatchSize, G.Nodes{d.inferIn.inputs,
		d.inferIn.states, d.inferIn.next, d.inferIn.terminals,
		d.inferIn.logProbs}, out)

	return d, nil
}

// Kind implements the Estimator interface
func (d *AIRLDiscriminator) Kind() Kind { return AIRL }

// Learnables returns the weights of the reward approximator followed
// by those of the shaping network
func (d *AIRLDiscriminator) Learnables() G.Nodes {
	return append(append(G.Nodes{}, d.trainG.Learnables()...),
		d.trainH.Learnables()...)
}

// Pretrain is a no-op
func (d *AIRLDiscriminator) Pretrain(trajectory.Transitions) error {
	return nil
}

// logProbs returns the current log π(a|s) of the agent on every row of
// t. Rows that are synthetic absorbing transitions get log π = 0.
func (d *AIRLDiscriminator) logProbs(t trajectory.Transitions) ([]float64,
	error) {
	if err := d.prober.Set(d.agent); err != nil {
		return nil, err
	}
	states, _ := trajectory.StripMarker(t)
	logProbs, err := d.prober.LogProbs(states, t.Actions)
	if err != nil {
		return nil, err
	}
	for i, synthetic := range t.Synthetic {
		if synthetic {
			logProbs[i] = 0
		}
	}
	return logProbs, nil
}

// Update performs one epoch of discriminator training over shuffled,
// paired minibatches of expert and policy data. The agent's current
// log probabilities are used for both.
func (d *AIRLDiscriminator) Update(expert,
	policy trajectory.Transitions) error {
	const op = "update"
	if err := trajectory.CheckCompatible(op, expert, policy); err != nil {
		return err
	}

	expertLogProbs, err := d.logProbs(expert)
	if err != nil {
		return fmt.Errorf("%v: %v", op, err)
	}
	policyLogProbs, err := d.logProbs(policy)
	if err != nil {
		return fmt.Errorf("%v: %v", op, err)
	}

	expertBatches, policyBatches := zip(d.rng, expert.Len(), policy.Len(),
		d.config.BatchSize)
	losses := make([]float64, 0, len(expertBatches))
	for i := range expertBatches {
		feeds := d.expert.feeds(expert, expertBatches[i], d.config.StateOnly,
			expertLogProbs)
		feeds = append(feeds, d.policy.feeds(policy, policyBatches[i],
			d.config.StateOnly, policyLogProbs)...)

		loss, err := d.trainer.step(feeds...)
		if err != nil {
			return fmt.Errorf("%v: %w", op, err)
		}
		losses = append(losses, loss)
	}

	if len(losses) > 0 {
		d.logger.Debug().
			Float64("loss", stat.Mean(losses, nil)).
			Int("minibatches", len(losses)).
			Msg("discriminator update")
	}
	return nil
}

// PredictReward returns log D - log(1 - D) for each row of policy,
// using the log probabilities stored with the policy data
func (d *AIRLDiscriminator) PredictReward(expert,
	policy trajectory.Transitions) ([]float64, error) {
	const op = "predictReward"
	if err := trajectory.CheckCompatible(op, expert, policy); err != nil {
		return nil, err
	}
	if len(policy.LogProbs) != policy.Len() {
		return nil, fmt.Errorf("%v: policy data has no log probabilities",
			op)
	}

	err := network.SetValues(d.inferG.Learnables(),
		network.Values(d.trainG.Learnables()))
	if err != nil {
		return nil, fmt.Errorf("%v: %v", op, err)
	}
	err = network.SetValues(d.inferH.Learnables(),
		network.Values(d.trainH.Learnables()))
	if err != nil {
		return nil, fmt.Errorf("%v: %v", op, err)
	}

	out, err := d.infer.eval(policy.Inputs(d.config.StateOnly),
		policy.States, policy.NextStates, policy.Terminals,
		policy.LogProbs)
	if err != nil {
		return nil, fmt.Errorf("%v: %v", op, err)
	}
	return out[0], checkRewards(op, out[0])
}

// Save writes the discriminator weights to w
func (d *AIRLDiscriminator) Save(w io.Writer) error {
	return saveWeights(w, d.trainG.Learnables(), d.trainH.Learnables())
}

// Load reads discriminator weights written by Save from r
func (d *AIRLDiscriminator) Load(r io.Reader) error {
	return loadWeights(r, d.trainG.Learnables(), d.trainH.Learnables())
}
