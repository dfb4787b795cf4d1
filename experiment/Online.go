package experiment

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"github.com/samuelfneumann/goimitate/buffer/gae"
	env "github.com/samuelfneumann/goimitate/environment"
	"github.com/samuelfneumann/goimitate/experiment/checkpointer"
	"github.com/samuelfneumann/goimitate/experiment/trackers"
	"github.com/samuelfneumann/goimitate/expreplay"
	"github.com/samuelfneumann/goimitate/ilerr"
	"github.com/samuelfneumann/goimitate/imitation"
	"github.com/samuelfneumann/goimitate/policy"
	"github.com/samuelfneumann/goimitate/ppo"
	ts "github.com/samuelfneumann/goimitate/timestep"
	"github.com/samuelfneumann/goimitate/trajectory"
	"github.com/samuelfneumann/goimitate/utils/progressbar"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// State is a state of the training loop
type State int

// Training loop states
const (
	Collecting State = iota
	BufferFull
	RewardRelabel
	AdvantageEstimate
	PPOEpochs
	Evaluating
	Done
)

func (s State) String() string {
	switch s {
	case Collecting:
		return "Collecting"
	case BufferFull:
		return "BufferFull"
	case RewardRelabel:
		return "RewardRelabel"
	case AdvantageEstimate:
		return "AdvantageEstimate"
	case PPOEpochs:
		return "PPOEpochs"
	case Evaluating:
		return "Evaluating"
	case Done:
		return "Done"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Online is an Experiment that trains a PPO agent online, optionally
// replacing the environment reward with a reward learned from expert
// demonstrations.
//
// Transitions are collected one environment step at a time. Once
// BatchSize transitions are buffered, the rewards of the batch are
// relabelled by the reward estimator, advantages are estimated, and
// PPOEpochs PPO updates are performed. Every evaluation interval the
// deterministic policy is evaluated on a separate environment.
type Online struct {
	config Config
	kind   imitation.Kind
	logger zerolog.Logger

	env     env.Environment
	evalEnv env.Environment
	expert  trajectory.Transitions

	agent     *policy.ActorCritic
	critic    *policy.ActorCritic // batched clone for recomputing values
	updater   *ppo.Updater
	estimator imitation.Estimator
	buffer    *trajectory.Buffer
	window    *expreplay.Window

	returns *trackers.Return
	lengths *trackers.EpisodeLength
	evals   *trackers.Evaluations
	trained bool

	state     State
	steps     int
	last      ts.TimeStep
	nextState []float64 // observation following the last buffered step

	progress *progressbar.ManualProgressBar
}

// NewOnline returns a new Online experiment training on e and
// evaluating on evalEnv. The expert demonstrations may be nil only if
// no imitation algorithm is used. All configuration is checked here, so
// that an invalid experiment fails before any training step.
func NewOnline(c Config, e, evalEnv env.Environment, expert *trajectory.Expert,
	logger zerolog.Logger) (*Online, error) {
	const op = "newOnline"
	if err := c.Validate(); err != nil {
		return nil, err
	}
	k, _ := c.Kind()

	stateDim := e.ObservationSpec().Dims()
	actionDim := e.ActionSpec().Dims()
	if evalEnv.ObservationSpec().Dims() != stateDim ||
		evalEnv.ActionSpec().Dims() != actionDim {
		return nil, ilerr.Configuration(op, "training and evaluation "+
			"environments have different dimensions")
	}

	o := &Online{
		config:  c,
		kind:    k,
		logger:  logger.With().Str("component", "online").Logger(),
		env:     e,
		evalEnv: evalEnv,
		returns: trackers.NewReturn(),
		lengths: trackers.NewEpisodeLength(),
		evals:   trackers.NewEvaluations(c.Evaluation.AverageWindow),
		state:   Collecting,
	}

	if k != imitation.PPO {
		if err := expert.Validate(stateDim, actionDim); err != nil {
			return nil, err
		}
		o.expert = trajectory.FromExpert(expert)
		if c.Absorbing {
			o.expert = trajectory.Absorb(o.expert)
		}
	}

	var err error
	o.agent, err = policy.NewActorCritic(stateDim, actionDim, 1,
		c.policyConfig(), c.Seed)
	if err != nil {
		return nil, fmt.Errorf("%v: could not create agent: %v", op, err)
	}
	if k == imitation.BC {
		return o, nil
	}

	if o.updater, err = ppo.New(o.agent, c.ppoConfig()); err != nil {
		return nil, fmt.Errorf("%v: could not create updater: %w", op, err)
	}
	o.estimator, err = imitation.New(k, c.imitationConfig(), imitation.Deps{
		StateDim:  stateDim,
		ActionDim: actionDim,
		Agent:     o.agent,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("%v: %w", op, err)
	}
	if o.buffer, err = trajectory.NewBuffer(stateDim, actionDim,
		c.BatchSize); err != nil {
		return nil, fmt.Errorf("%v: %v", op, err)
	}
	if k.Adversarial() {
		if o.window, err = expreplay.NewWindow(c.ImitationReplaySize); err != nil {
			return nil, fmt.Errorf("%v: %v", op, err)
		}
	}

	e.Seed(c.Seed)
	return o, nil
}

// SetProgress displays the progress of Run on p
func (o *Online) SetProgress(p *progressbar.ManualProgressBar) {
	o.progress = p
}

// State returns the current state of the training loop
func (o *Online) State() State {
	return o.state
}

// Agent returns the agent being trained
func (o *Online) Agent() *policy.ActorCritic {
	return o.agent
}

// Steps returns the number of environment steps taken
func (o *Online) Steps() int {
	return o.steps
}

func (o *Online) setState(s State) {
	o.logger.Debug().Stringer("from", o.state).Stringer("to", s).
		Int("step", o.steps).Msg("transition")
	o.state = s
}

// Run runs the experiment until the step budget is spent and returns
// the mean return of the last evaluations. The context is checked
// between environment steps.
func (o *Online) Run(ctx context.Context) (float64, error) {
	if o.trained {
		return 0, fmt.Errorf("run: experiment has already been run")
	}
	o.trained = true

	if err := o.pretrain(); err != nil {
		return 0, err
	}
	if o.kind == imitation.BC {
		if err := o.evaluate(); err != nil {
			return 0, err
		}
		o.setState(Done)
		return o.evals.Recent(), nil
	}

	step, err := o.env.Reset()
	if err != nil {
		return 0, fmt.Errorf("run: %v", err)
	}
	o.track(step)
	o.last = step

	for o.steps < o.config.Steps {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		if err := o.collect(); err != nil {
			return 0, err
		}
		if o.buffer.Full() {
			if err := o.update(); err != nil {
				return 0, err
			}
		}
		if o.steps%o.config.Evaluation.Interval == 0 {
			if err := o.evaluate(); err != nil {
				return 0, err
			}
		}

		if o.progress != nil {
			o.progress.Increment()
			if o.steps%100 == 0 || o.steps == o.config.Steps {
				o.progress.Display()
			}
		}
	}

	o.setState(Done)
	return o.evals.Recent(), nil
}

// pretrain trains behavioural cloning, DRIL, and RED once before any
// environment step
func (o *Online) pretrain() error {
	if !o.kind.Pretrained() {
		return nil
	}
	o.logger.Info().Stringer("imitation", o.kind).Msg("pretraining")

	if o.kind != imitation.BC {
		if err := o.estimator.Pretrain(o.expert); err != nil {
			return fmt.Errorf("pretrain: %w", err)
		}
		return nil
	}

	model, err := o.agent.CloneWithBatch(o.config.ImitationBatchSize)
	if err != nil {
		return fmt.Errorf("pretrain: %v", err)
	}
	bc, err := imitation.NewBehaviouralCloning(model, o.config.imitationConfig(),
		o.logger)
	if err != nil {
		return fmt.Errorf("pretrain: %w", err)
	}
	if err := bc.Train(o.expert); err != nil {
		return fmt.Errorf("pretrain: %w", err)
	}
	return o.agent.Set(model)
}

// collect takes one environment step with an action sampled from the
// agent and buffers the transition
func (o *Online) collect() error {
	const op = "collect"
	state := o.last.State()
	action, logProb, value, err := o.agent.Act(state)
	if err != nil {
		return fmt.Errorf("%v: %v", op, err)
	}

	step, err := o.env.Step(mat.NewVecDense(len(action), action))
	if err != nil {
		return fmt.Errorf("%v: %w", op, err)
	}
	o.steps++
	o.track(step)

	err = o.buffer.Add(trajectory.Transition{
		State:      state,
		Action:     action,
		Reward:     step.Reward,
		Terminal:   step.Last(),
		LogProb:    logProb,
		OldLogProb: logProb,
		Value:      value,
	})
	if err != nil {
		return fmt.Errorf("%v: %w", op, err)
	}
	o.nextState = step.State()
	o.last = step

	if step.Last() {
		o.logger.Debug().Int("step", o.steps).
			Float64("return", lastReturn(o.returns)).Msg("episode finished")
		if o.progress != nil {
			o.progress.Describe("Step: %v | Return: %.3f", o.steps,
				lastReturn(o.returns))
		}
		if o.last, err = o.env.Reset(); err != nil {
			return fmt.Errorf("%v: %v", op, err)
		}
		o.track(o.last)
	}
	return nil
}

func lastReturn(r *trackers.Return) float64 {
	returns := r.Returns()
	if len(returns) == 0 {
		return 0
	}
	return returns[len(returns)-1]
}

func (o *Online) track(step ts.TimeStep) {
	o.returns.Track(step)
	o.lengths.Track(step)
}

// update runs the relabel, advantage estimation, and PPO stages on the
// full buffer
func (o *Online) update() error {
	o.setState(BufferFull)
	batch, err := o.buffer.Flatten()
	if err != nil {
		return fmt.Errorf("update: %v", err)
	}
	o.buffer.Reset()

	if o.kind.RelabelsReward() {
		o.setState(RewardRelabel)
		if batch, err = o.relabel(batch); err != nil {
			return fmt.Errorf("update: %w", err)
		}
	}

	o.setState(AdvantageEstimate)
	bootstrap, err := o.agent.StateValue(o.nextState)
	if err != nil {
		return fmt.Errorf("update: %v", err)
	}
	aug, err := gae.Estimate(batch, bootstrap, o.config.Discount,
		o.config.TraceDecay)
	if err != nil {
		return fmt.Errorf("update: %w", err)
	}

	o.setState(PPOEpochs)
	for epoch := 0; epoch < o.config.PPOEpochs; epoch++ {
		if epoch > 0 && o.config.RecomputeAdvantages {
			if aug, err = o.recompute(batch); err != nil {
				return fmt.Errorf("update: %w", err)
			}
		}

		stats, err := o.updater.Update(aug)
		if err != nil {
			return fmt.Errorf("update: epoch %v: %w", epoch, err)
		}
		o.logger.Debug().
			Int("step", o.steps).
			Int("epoch", epoch).
			Float64("policyLoss", stats.PolicyLoss).
			Float64("valueLoss", stats.ValueLoss).
			Float64("entropy", stats.Entropy).
			Float64("gradNorm", stats.GradNorm).
			Msg("ppo update")
	}

	o.setState(Collecting)
	return nil
}

// relabel returns batch with its rewards replaced by those of the
// reward estimator. Adversarial estimators first train on the replay
// window.
func (o *Online) relabel(batch *trajectory.Batch) (*trajectory.Batch, error) {
	const op = "relabel"
	policyData, err := o.transitions(batch)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", op, err)
	}

	if o.kind.Adversarial() {
		o.window.Push(batch)
		replay, err := o.window.Flatten()
		if err != nil {
			return nil, fmt.Errorf("%v: %v", op, err)
		}

		// Window batches were collected consecutively, so the batch
		// following each of them starts at its next state
		replayData, err := o.transitions(replay)
		if err != nil {
			return nil, fmt.Errorf("%v: %w", op, err)
		}
		for epoch := 0; epoch < o.config.ImitationEpochs; epoch++ {
			if err := o.estimator.Update(o.expert, replayData); err != nil {
				return nil, fmt.Errorf("%v: %w", op, err)
			}
		}
	}

	rewards, err := o.estimator.PredictReward(o.expert, policyData)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", op, err)
	}
	if rewards, err = policyData.Real(rewards); err != nil {
		return nil, fmt.Errorf("%v: %w", op, err)
	}
	return batch.WithRewards(rewards)
}

// transitions returns the estimator view of batch, whose last step was
// followed by o.nextState
func (o *Online) transitions(batch *trajectory.Batch) (trajectory.Transitions,
	error) {
	t, err := trajectory.FromBatch(batch, o.nextState)
	if err != nil {
		return trajectory.Transitions{}, err
	}
	if o.config.Absorbing {
		t = trajectory.Absorb(t)
	}
	return t, nil
}

// recompute re-estimates advantages of batch with the current critic
func (o *Online) recompute(batch *trajectory.Batch) (*trajectory.Augmented,
	error) {
	var err error
	if o.critic == nil {
		if o.critic, err = o.agent.CloneWithBatch(o.config.BatchSize); err != nil {
			return nil, err
		}
	}
	if err := o.critic.Set(o.agent); err != nil {
		return nil, err
	}

	values, err := o.critic.Values(batch.States)
	if err != nil {
		return nil, err
	}
	revalued, err := batch.WithValues(values)
	if err != nil {
		return nil, err
	}
	bootstrap, err := o.agent.StateValue(o.nextState)
	if err != nil {
		return nil, err
	}
	return gae.Estimate(revalued, bootstrap, o.config.Discount,
		o.config.TraceDecay)
}

// evaluate runs the evaluation episodes and records their returns
func (o *Online) evaluate() error {
	prev := o.state
	o.setState(Evaluating)

	o.evalEnv.Seed(o.config.Seed)
	returns, _, err := Evaluate(o.evalEnv, o.agent,
		o.config.Evaluation.Episodes, false)
	if err != nil {
		return err
	}
	o.evals.Add(o.steps, returns)

	o.logger.Info().
		Int("step", o.steps).
		Float64("return", stat.Mean(returns, nil)).
		Float64("recent", o.evals.Recent()).
		Msg("evaluation")

	o.setState(prev)
	return nil
}

// Metrics returns the metrics recorded so far
func (o *Online) Metrics() *trackers.Metrics {
	return trackers.NewMetrics(o.returns, o.lengths, o.evals)
}

// Save persists the agent, the trainable reward estimator, and the
// metrics to s, as the blobs agent, discriminator, and metrics. If
// trajectories are to be saved, evaluation episodes of the final agent
// are recorded as the blob trajectories, in the expert dataset format.
func (o *Online) Save(s checkpointer.Store) error {
	if err := checkpointer.Gob(s, "agent", o.agent); err != nil {
		return fmt.Errorf("save: %w", err)
	}

	if saver, ok := o.estimator.(imitation.Saver); ok && o.kind.Trainable() {
		if err := checkpointer.Write(s, "discriminator", saver.Save); err != nil {
			return fmt.Errorf("save: %w", err)
		}
	}

	err := checkpointer.Write(s, "metrics", func(w io.Writer) error {
		return o.Metrics().Save(w)
	})
	if err != nil {
		return fmt.Errorf("save: %w", err)
	}

	if !o.config.SaveTrajectories {
		return nil
	}
	o.evalEnv.Seed(o.config.Seed)
	_, episodes, err := Evaluate(o.evalEnv, o.agent,
		o.config.Evaluation.Episodes, true)
	if err != nil {
		return fmt.Errorf("save: %w", err)
	}
	recorded := trajectory.FromEpisodes(o.agent.StateDim(),
		o.agent.ActionDim(), episodes)
	if err := checkpointer.Gob(s, "trajectories", recorded); err != nil {
		return fmt.Errorf("save: %w", err)
	}
	return nil
}

// Close closes both environments
func (o *Online) Close() error {
	if err := o.env.Close(); err != nil {
		return err
	}
	return o.evalEnv.Close()
}
