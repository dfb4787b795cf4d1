// Package ppo implements the clipped-surrogate proximal policy
// optimisation update of a Gaussian actor-critic.
package ppo

import (
	"fmt"

	"github.com/samuelfneumann/goimitate/buffer/gae"
	"github.com/samuelfneumann/goimitate/ilerr"
	"github.com/samuelfneumann/goimitate/network"
	"github.com/samuelfneumann/goimitate/policy"
	"github.com/samuelfneumann/goimitate/solver"
	"github.com/samuelfneumann/goimitate/trajectory"
	"github.com/samuelfneumann/goimitate/utils/floatutils"
	"github.com/samuelfneumann/goimitate/utils/op"
	G "gorgonia.org/gorgonia"
)

// Config configures a PPO Updater
type Config struct {
	BatchSize    int
	Clip         float64 // ε of the clipped surrogate
	ValueCoeff   float64 // c₁
	EntropyCoeff float64 // c₂
	MaxGradNorm  float64 // <= 0 disables gradient clipping

	NormaliseAdvantages bool

	// Solver defaults to RMSProp with ρ = 0.9 and step size
	// LearningRate when nil
	Solver       *solver.Solver
	LearningRate float64
}

// Validate returns a configuration error if c is invalid
func (c Config) Validate() error {
	const op = "validate"
	switch {
	case c.BatchSize < 1:
		return ilerr.Configuration(op, "batch size must be positive, got %v",
			c.BatchSize)
	case c.Clip <= 0:
		return ilerr.Configuration(op, "ppo clip must be positive, got %v",
			c.Clip)
	case c.ValueCoeff < 0 || c.EntropyCoeff < 0:
		return ilerr.Configuration(op, "loss coefficients must be "+
			"non-negative")
	case c.Solver == nil && c.LearningRate <= 0:
		return ilerr.Configuration(op, "learning rate must be positive, "+
			"got %v", c.LearningRate)
	}
	return nil
}

// Stats are the losses of a single PPO update, evaluated before the
// parameter step
type Stats struct {
	PolicyLoss          float64
	UnclippedPolicyLoss float64
	ValueLoss           float64
	Entropy             float64
	Loss                float64
	GradNorm            float64
}

// Updater performs PPO updates of an actor-critic. Updates are computed
// on a training clone of the agent with batch size Config.BatchSize;
// the agent's weights are copied into the clone before each update and
// copied back after it.
type Updater struct {
	config Config
	agent  *policy.ActorCritic
	train  *policy.ActorCritic

	oldLogProbs *G.Node
	advantages  *G.Node
	returns     *G.Node

	policyLoss, unclippedLoss, valueLoss, entropy, loss *G.Node

	policyLossVal, unclippedLossVal, valueLossVal G.Value
	entropyVal, lossVal                           G.Value

	vm     G.VM
	solver G.Solver
}

// New returns a new Updater for agent
func New(agent *policy.ActorCritic, c Config) (*Updater, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	train, err := agent.CloneWithBatch(c.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("new: could not create training model: %v",
			err)
	}

	s := c.Solver
	if s == nil {
		s, err = solver.NewRMSProp(c.LearningRate, 1e-8, 0.9, 1)
		if err != nil {
			return nil, fmt.Errorf("new: %v", err)
		}
	}
	gSolver, err := s.Create()
	if err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}

	u := &Updater{
		config: c,
		agent:  agent,
		train:  train,
		solver: gSolver,
	}
	if err := u.buildLoss(); err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}

	learnables := train.Learnables()
	if _, err := G.Grad(u.loss, learnables...); err != nil {
		return nil, fmt.Errorf("new: could not compute gradient: %v", err)
	}
	u.vm = G.NewTapeMachine(train.Graph(), G.BindDualValues(learnables...))

	return u, nil
}

// buildLoss adds the PPO loss to the graph of the training model:
//
//	L = -mean(min(rA, clip(r, 1-ε, 1+ε)A)) + c₁ mean((V - G)²) - c₂ H
func (u *Updater) buildLoss() error {
	g := u.train.Graph()
	n := u.config.BatchSize
	u.oldLogProbs = network.NewVectorInput(g, "ppoOldLogProbs", n)
	u.advantages = network.NewVectorInput(g, "ppoAdvantages", n)
	u.returns = network.NewVectorInput(g, "ppoReturns", n)

	logRatio, err := G.Sub(u.train.LogPdf(), u.oldLogProbs)
	if err != nil {
		return err
	}
	ratio, err := G.Exp(logRatio)
	if err != nil {
		return err
	}
	surrogate, err := G.HadamardProd(ratio, u.advantages)
	if err != nil {
		return err
	}
	clippedRatio, err := op.Clip(ratio, 1-u.config.Clip, 1+u.config.Clip)
	if err != nil {
		return err
	}
	clippedSurrogate, err := G.HadamardProd(clippedRatio, u.advantages)
	if err != nil {
		return err
	}
	minSurrogate, err := op.Min(surrogate, clippedSurrogate)
	if err != nil {
		return err
	}

	if u.policyLoss, err = negMean(minSurrogate); err != nil {
		return err
	}
	if u.unclippedLoss, err = negMean(surrogate); err != nil {
		return err
	}

	// Value clipping is not applied
	valueErr, err := G.Sub(u.train.Value(), u.returns)
	if err != nil {
		return err
	}
	valueErr, err = G.Square(valueErr)
	if err != nil {
		return err
	}
	if u.valueLoss, err = G.Mean(valueErr); err != nil {
		return err
	}
	u.entropy = u.train.Entropy()

	weightedValue, err := G.Mul(G.NewConstant(u.config.ValueCoeff),
		u.valueLoss)
	if err != nil {
		return err
	}
	weightedEntropy, err := G.Mul(G.NewConstant(u.config.EntropyCoeff),
		u.entropy)
	if err != nil {
		return err
	}
	loss, err := G.Add(u.policyLoss, weightedValue)
	if err != nil {
		return err
	}
	if u.loss, err = G.Sub(loss, weightedEntropy); err != nil {
		return err
	}

	G.Read(u.policyLoss, &u.policyLossVal)
	G.Read(u.unclippedLoss, &u.unclippedLossVal)
	G.Read(u.valueLoss, &u.valueLossVal)
	G.Read(u.entropy, &u.entropyVal)
	G.Read(u.loss, &u.lossVal)
	return nil
}

func negMean(x *G.Node) (*G.Node, error) {
	mean, err := G.Mean(x)
	if err != nil {
		return nil, err
	}
	return G.Neg(mean)
}

// Update performs a single gradient step on the PPO loss of aug. The
// batch must hold exactly Config.BatchSize transitions.
func (u *Updater) Update(aug *trajectory.Augmented) (Stats, error) {
	const opName = "update"
	if aug.Len() != u.config.BatchSize {
		return Stats{}, ilerr.DimensionMismatch(opName, "batch size",
			u.config.BatchSize, aug.Len())
	}
	if len(aug.Advantages) != aug.Len() || len(aug.Returns) != aug.Len() {
		return Stats{}, ilerr.DimensionMismatch(opName, "advantages",
			aug.Len(), len(aug.Advantages))
	}

	advantages := aug.Advantages
	if u.config.NormaliseAdvantages {
		advantages = gae.Normalise(advantages)
	}

	if err := u.train.Set(u.agent); err != nil {
		return Stats{}, fmt.Errorf("%v: %v", opName, err)
	}
	inputs := []struct {
		node *G.Node
		data []float64
	}{
		{u.train.States(), aug.States},
		{u.train.Actions(), aug.Actions},
		{u.oldLogProbs, aug.OldLogProbs},
		{u.advantages, advantages},
		{u.returns, aug.Returns},
	}
	for _, in := range inputs {
		if err := network.SetInput(in.node, append([]float64(nil),
			in.data...)); err != nil {
			return Stats{}, fmt.Errorf("%v: %v", opName, err)
		}
	}

	if err := u.vm.RunAll(); err != nil {
		u.vm.Reset()
		return Stats{}, fmt.Errorf("%v: %v", opName, err)
	}
	defer u.vm.Reset()

	stats, err := u.stats()
	if err != nil {
		return Stats{}, fmt.Errorf("%v: %v", opName, err)
	}
	losses := map[string]float64{
		"policy loss": stats.PolicyLoss,
		"value loss":  stats.ValueLoss,
		"entropy":     stats.Entropy,
		"ppo loss":    stats.Loss,
	}
	for name, value := range losses {
		if !floatutils.IsFinite(value) {
			return stats, ilerr.NumericInstability(opName, name, -1, value)
		}
	}

	learnables := u.train.Learnables()
	stats.GradNorm, err = solver.ClipGradNorm(learnables,
		u.config.MaxGradNorm)
	if err != nil {
		return stats, fmt.Errorf("%v: %v", opName, err)
	}
	if !floatutils.IsFinite(stats.GradNorm) {
		return stats, ilerr.NumericInstability(opName, "gradient norm", -1,
			stats.GradNorm)
	}
	if err := u.solver.Step(network.Model(learnables)); err != nil {
		return stats, fmt.Errorf("%v: could not step solver: %v", opName,
			err)
	}

	if err := u.agent.Set(u.train); err != nil {
		return stats, fmt.Errorf("%v: %v", opName, err)
	}
	return stats, nil
}

func (u *Updater) stats() (Stats, error) {
	var s Stats
	fields := []struct {
		value G.Value
		into  *float64
	}{
		{u.policyLossVal, &s.PolicyLoss},
		{u.unclippedLossVal, &s.UnclippedPolicyLoss},
		{u.valueLossVal, &s.ValueLoss},
		{u.entropyVal, &s.Entropy},
		{u.lossVal, &s.Loss},
	}
	for _, f := range fields {
		v, err := network.Scalar(f.value)
		if err != nil {
			return Stats{}, err
		}
		*f.into = v
	}
	return s, nil
}
