package imitation

import (
	"fmt"
	"io"
	"math"

	"github.com/rs/zerolog"
	"github.com/samuelfneumann/goimitate/network"
	"github.com/samuelfneumann/goimitate/trajectory"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// GAILDiscriminator implements GAIL, FAIRL, and PU-GAIL, which share a
// discriminator network h(x) over inputs x = (s, a), or x = s for
// state-only imitation. The discriminator is trained to output large
// logits on expert data. Rewards are softplus(h) = -log(1 - D) for GAIL
// and PU-GAIL, and exp(h)·(-h) for FAIRL.
type GAILDiscriminator struct {
	kind   Kind
	config Config
	width  int
	rng    *rand.Rand
	logger zerolog.Logger

	trainNet *network.MLP
	expertIn *G.Node
	policyIn *G.Node
	trainer  *trainer

	inferNet *network.MLP
	infer    *evaluator
}

func newGAIL(k Kind, c Config, stateDim, actionDim int,
	logger zerolog.Logger) (*GAILDiscriminator, error) {
	act, err := network.ParseActivation(c.Activation)
	if err != nil {
		return nil, err
	}
	init := initOrDefault(c)
	width := inputWidth(c.StateOnly, markerDim(c, stateDim), actionDim)

	d := &GAILDiscriminator{
		kind:   k,
		config: c,
		width:  width,
		rng:    rand.New(rand.NewSource(c.Seed)),
		logger: logger,
	}

	// Training graph, evaluating h on an expert and a policy minibatch
	g := G.NewGraph()
	d.trainNet, err = network.NewMLP(g, "discriminator", width, c.Hidden, 1,
		act, init)
	if err != nil {
		return nil, err
	}
	d.expertIn = network.NewInput(g, "expertInputs", c.BatchSize, width)
	d.policyIn = network.NewInput(g, "policyInputs", c.BatchSize, width)
	expertLogits, err := logits(d.trainNet, d.expertIn)
	if err != nil {
		return nil, err
	}
	policyLogits, err := logits(d.trainNet, d.policyIn)
	if err != nil {
		return nil, err
	}

	var loss *G.Node
	if k == PUGAIL {
		loss, err = puLoss(expertLogits, policyLogits, c.PosClassPrior,
			c.NonnegativeMargin)
	} else {
		loss, err = adversarialLoss(expertLogits, policyLogits)
	}
	if err != nil {
		return nil, err
	}
	if c.R1RegCoeff > 0 {
		dLogit, err := sigmoidGrad(expertLogits)
		if err != nil {
			return nil, err
		}
		grad, err := d.trainNet.InputGrad(d.expertIn, dLogit)
		if err != nil {
			return nil, fmt.Errorf("newGAIL: r1 regularisation: %v", err)
		}
		if loss, err = addR1(loss, c.R1RegCoeff, grad); err != nil {
			return nil, err
		}
	}
	d.trainer, err = newTrainer("update", loss, d.trainNet.Learnables(), c)
	if err != nil {
		return nil, err
	}

	// Inference graph
	ig := G.NewGraph()
	d.inferNet, err = network.NewMLP(ig, "discriminator", width, c.Hidden, 1,
		act, init)
	if err != nil {
		return nil, err
	}
	in := network.NewInput(ig, "inputs", c.BatchSize, width)
	out, err := logits(d.inferNet, in)
	if err != nil {
		return nil, err
	}
	d.infer = newEvaluator(c.BatchSize, G.Nodes{in}, out)

	return d, nil
}

// Kind implements the Estimator interface
func (d *GAILDiscriminator) Kind() Kind { return d.kind }

// Pretrain is a no-op
func (d *GAILDiscriminator) Pretrain(trajectory.Transitions) error {
	return nil
}

// Update performs one epoch of discriminator training over shuffled,
// paired minibatches of expert and policy data
func (d *GAILDiscriminator) Update(expert,
	policy trajectory.Transitions) error {
	const op = "update"
	if err := trajectory.CheckCompatible(op, expert, policy); err != nil {
		return err
	}

	expertInputs := expert.Inputs(d.config.StateOnly)
	policyInputs := policy.Inputs(d.config.StateOnly)
	expertBatches, policyBatches := zip(d.rng, expert.Len(), policy.Len(),
		d.config.BatchSize)

	losses := make([]float64, 0, len(expertBatches))
	for i := range expertBatches {
		loss, err := d.trainer.step(
			feed{d.expertIn, gather(expertInputs, d.width, expertBatches[i])},
			feed{d.policyIn, gather(policyInputs, d.width, policyBatches[i])},
		)
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

// PredictReward returns the reward of each row of policy
func (d *GAILDiscriminator) PredictReward(expert,
	policy trajectory.Transitions) ([]float64, error) {
	const op = "predictReward"
	if err := trajectory.CheckCompatible(op, expert, policy); err != nil {
		return nil, err
	}
	h, err := d.Logits(policy)
	if err != nil {
		return nil, fmt.Errorf("%v: %v", op, err)
	}

	rewards := make([]float64, len(h))
	for i, x := range h {
		if d.kind == FAIRL {
			rewards[i] = math.Exp(x) * -x
		} else {
			rewards[i] = softplus(x)
		}
	}
	return rewards, checkRewards(op, rewards)
}

// Logits returns the discriminator logits h(x) of each row of t
func (d *GAILDiscriminator) Logits(t trajectory.Transitions) ([]float64,
	error) {
	err := network.SetValues(d.inferNet.Learnables(),
		network.Values(d.trainNet.Learnables()))
	if err != nil {
		return nil, err
	}
	out, err := d.infer.eval(t.Inputs(d.config.StateOnly))
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// Save writes the discriminator weights to w
func (d *GAILDiscriminator) Save(w io.Writer) error {
	return saveWeights(w, d.trainNet.Learnables())
}

// Load reads discriminator weights written by Save from r
func (d *GAILDiscriminator) Load(r io.Reader) error {
	return loadWeights(r, d.trainNet.Learnables())
}

// logits applies net to in and flattens the single output column
func logits(net *network.MLP, in *G.Node) (*G.Node, error) {
	out, err := net.Fwd(in)
	if err != nil {
		return nil, err
	}
	return G.Ravel(out)
}

// adversarialLoss is the binary cross entropy of classifying expert
// logits as 1 and policy logits as 0
func adversarialLoss(expert, policy *G.Node) (*G.Node, error) {
	expertLoss, err := bce(expert, true)
	if err != nil {
		return nil, err
	}
	policyLoss, err := bce(policy, false)
	if err != nil {
		return nil, err
	}
	return G.Add(expertLoss, policyLoss)
}

// puLoss is the non-negative positive-unlabelled loss, treating expert
// data as positive with class prior η and policy data as unlabelled:
//
//	η BCE(hₑ, 1) + max(BCE(hₚ, 0) - η BCE(hₑ, 0), -β)
func puLoss(expert, policy *G.Node, prior, margin float64) (*G.Node, error) {
	expertLoss, err := bce(expert, true)
	if err != nil {
		return nil, err
	}
	expertLoss, err = G.Mul(G.NewConstant(prior), expertLoss)
	if err != nil {
		return nil, err
	}

	unlabelled, err := bce(policy, false)
	if err != nil {
		return nil, err
	}
	expertNegative, err := bce(expert, false)
	if err != nil {
		return nil, err
	}
	expertNegative, err = G.Mul(G.NewConstant(prior), expertNegative)
	if err != nil {
		return nil, err
	}
	policyLoss, err := G.Sub(unlabelled, expertNegative)
	if err != nil {
		return nil, err
	}
	policyLoss, err = maxScalar(policyLoss, -margin)
	if err != nil {
		return nil, err
	}
	return G.Add(expertLoss, policyLoss)
}

// sigmoidGrad returns the derivative σ(h)(1 - σ(h)) of the sigmoid
// at the vector of logits h, as a column
func sigmoidGrad(logits *G.Node) (*G.Node, error) {
	d, err := G.Sigmoid(logits)
	if err != nil {
		return nil, err
	}
	rest, err := G.Sub(G.NewConstant(1.0), d)
	if err != nil {
		return nil, err
	}
	d, err = G.HadamardProd(d, rest)
	if err != nil {
		return nil, err
	}
	return column(d)
}

// column reshapes the vector v into a len(v) x 1 matrix
func column(v *G.Node) (*G.Node, error) {
	return G.Reshape(v, tensor.Shape{v.Shape().TotalSize(), 1})
}

// addR1 adds the R1 gradient penalty
//
//	coeff · mean(‖∇ₓ σ(h(x))‖²)
//
// over the expert inputs x to loss. Each of grads holds the per-row
// gradient of σ(h) with respect to one input node of h, as built by
// network.MLP.InputGrad; the squared norms of all are summed per row.
func addR1(loss *G.Node, coeff float64, grads ...*G.Node) (*G.Node, error) {
	if len(grads) == 0 {
		return nil, fmt.Errorf("addR1: no input gradients")
	}

	var sqNorm *G.Node
	for _, grad := range grads {
		sq, err := G.Square(grad)
		if err != nil {
			return nil, err
		}
		rowSq, err := G.Sum(sq, 1)
		if err != nil {
			return nil, err
		}
		if sqNorm == nil {
			sqNorm = rowSq
		} else if sqNorm, err = G.Add(sqNorm, rowSq); err != nil {
			return nil, err
		}
	}

	penalty, err := G.Mean(sqNorm)
	if err != nil {
		return nil, err
	}
	penalty, err = G.Mul(G.NewConstant(coeff), penalty)
	if err != nil {
		return nil, err
	}
	return G.Add(loss, penalty)
}

// gather returns the given rows of the row-major data
func gather(data []float64, width int, rows []int) []float64 {
	out := make([]float64, 0, len(rows)*width)
	for _, r := range rows {
		out = append(out, data[r*width:(r+1)*width]...)
	}
	return out
}

// softplus returns log(1 + exp(x)) without overflow
func softplus(x float64) float64 {
	if x > 0 {
		return x + math.Log1p(math.Exp(-x))
	}
	return math.Log1p(math.Exp(x))
}
