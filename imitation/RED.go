package imitation

import (
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"github.com/samuelfneumann/goimitate/network"
	"github.com/samuelfneumann/goimitate/trajectory"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	G "gorgonia.org/gorgonia"
)

// REDEstimator implements random expert distillation. A predictor
// network is trained to match the output of a fixed, randomly initialised target
// network on expert inputs. The reward of a policy input is the
// negative distance between predictor and target outputs, so inputs
// resembling the expert data earn high rewards.
type REDEstimator struct {
	config Config
	width  int
	rng    *rand.Rand
	logger zerolog.Logger

	trainPredictor *network.MLP
	trainTarget    *network.MLP
	trainIn        *G.Node
	trainer        *trainer

	inferPredictor *network.MLP
	inferTarget    *network.MLP
	infer          *evaluator
}

func newRED(c Config, stateDim, actionDim int,
	logger zerolog.Logger) (*REDEstimator, error) {
	act, err := network.ParseActivation(c.Activation)
	if err != nil {
		return nil, err
	}
	if len(c.Hidden) == 0 {
		return nil, fmt.Errorf("RED requires at least one hidden layer")
	}
	init := initOrDefault(c)
	width := inputWidth(c.StateOnly, markerDim(c, stateDim), actionDim)

	// Both networks embed inputs into a space as wide as the last
	// hidden layer
	hidden := c.Hidden[:len(c.Hidden)-1]
	outputs := c.Hidden[len(c.Hidden)-1]
	newNets := func(g *G.ExprGraph) (*network.MLP, *network.MLP, error) {
		predictor, err := network.NewMLP(g, "redPredictor", width, hidden,
			outputs, act, init)
		if err != nil {
			return nil, nil, err
		}
		target, err := network.NewMLP(g, "redTarget", width, hidden, outputs,
			act, init)
		return predictor, target, err
	}

	r := &REDEstimator{
		config: c,
		width:  width,
		rng:    rand.New(rand.NewSource(c.Seed)),
		logger: logger,
	}

	g := G.NewGraph()
	if r.trainPredictor, r.trainTarget, err = newNets(g); err != nil {
		return nil, err
	}
	r.trainIn = network.NewInput(g, "inputs", c.BatchSize, width)
	prediction, err := r.trainPredictor.Fwd(r.trainIn)
	if err != nil {
		return nil, err
	}
	target, err := r.trainTarget.Fwd(r.trainIn)
	if err != nil {
		return nil, err
	}
	diff, err := G.Sub(prediction, target)
	if err != nil {
		return nil, err
	}
	diff, err = G.Square(diff)
	if err != nil {
		return nil, err
	}
	loss, err := G.Mean(diff)
	if err != nil {
		return nil, err
	}
	r.trainer, err = newTrainer("pretrain", loss,
		r.trainPredictor.Learnables(), c)
	if err != nil {
		return nil, err
	}

	ig := G.NewGraph()
	if r.inferPredictor, r.inferTarget, err = newNets(ig); err != nil {
		return nil, err
	}
	in := network.NewInput(ig, "inputs", c.BatchSize, width)
	inferPrediction, err := r.inferPredictor.Fwd(in)
	if err != nil {
		return nil, err
	}
	inferTarget, err := r.inferTarget.Fwd(in)
	if err != nil {
		return nil, err
	}
	r.infer = newEvaluator(c.BatchSize, G.Nodes{in}, inferPrediction,
		inferTarget)

	return r, r.sync()
}

// sync copies the training weights to the inference networks
func (r *REDEstimator) sync() error {
	err := network.SetValues(r.inferPredictor.Learnables(),
		network.Values(r.trainPredictor.Learnables()))
	if err != nil {
		return err
	}
	return network.SetValues(r.inferTarget.Learnables(),
		network.Values(r.trainTarget.Learnables()))
}

// Kind implements the Estimator interface
func (r *REDEstimator) Kind() Kind { return RED }

// Pretrain regresses the predictor onto the target over the expert
// inputs for Config.Epochs epochs of shuffled minibatches
func (r *REDEstimator) Pretrain(expert trajectory.Transitions) error {
	const op = "pretrain"
	inputs := expert.Inputs(r.config.StateOnly)
	if len(inputs) != expert.Len()*r.width {
		return fmt.Errorf("%v: expert inputs have width %v, want %v", op,
			len(inputs)/max(expert.Len(), 1), r.width)
	}

	for epoch := 0; epoch < r.config.Epochs; epoch++ {
		batches := minibatches(r.rng, expert.Len(), r.config.BatchSize)
		losses := make([]float64, 0, len(batches))
		for _, rows := range batches {
			loss, err := r.trainer.step(feed{r.trainIn,
				gather(inputs, r.width, rows)})
			if err != nil {
				return fmt.Errorf("%v: %w", op, err)
			}
			losses = append(losses, loss)
		}
		if len(losses) > 0 {
			r.logger.Debug().
				Int("epoch", epoch).
				Float64("loss", stat.Mean(losses, nil)).
				Msg("target estimation")
		}
	}
	return r.sync()
}

// Update is a no-op
func (r *REDEstimator) Update(expert, policy trajectory.Transitions) error {
	return trajectory.CheckCompatible("update", expert, policy)
}

// PredictReward returns -‖predictor(x) - target(x)‖₂ for each row of
// policy
func (r *REDEstimator) PredictReward(expert,
	policy trajectory.Transitions) ([]float64, error) {
	const op = "predictReward"
	if err := trajectory.CheckCompatible(op, expert, policy); err != nil {
		return nil, err
	}

	out, err := r.infer.eval(policy.Inputs(r.config.StateOnly))
	if err != nil {
		return nil, fmt.Errorf("%v: %v", op, err)
	}
	prediction, target := out[0], out[1]
	width := len(prediction) / max(policy.Len(), 1)

	rewards := make([]float64, policy.Len())
	for i := range rewards {
		p := prediction[i*width : (i+1)*width]
		t := target[i*width : (i+1)*width]
		rewards[i] = -floats.Distance(p, t, 2)
	}
	return rewards, checkRewards(op, rewards)
}

// Save writes the predictor and target weights to w
func (r *REDEstimator) Save(w io.Writer) error {
	return saveWeights(w, r.trainPredictor.Learnables(),
		r.trainTarget.Learnables())
}

// Load reads weights written by Save from r
func (r *REDEstimator) Load(rd io.Reader) error {
	if err := loadWeights(rd, r.trainPredictor.Learnables(),
		r.trainTarget.Learnables()); err != nil {
		return err
	}
	return r.sync()
}
