// Package gae implements generalized advantage estimation, GAE(λ),
// following https://arxiv.org/abs/1506.02438.
package gae

import (
	"github.com/samuelfneumann/goimitate/ilerr"
	"github.com/samuelfneumann/goimitate/trajectory"
	"github.com/samuelfneumann/goimitate/utils/floatutils"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Estimate computes the return-to-go and advantage of every step in b,
// walking backward from the last step:
//
//	δᵢ = rᵢ + ℽ(1 - dᵢ)Vᵢ₊₁ - Vᵢ
//	Aᵢ = δᵢ + ℽλ(1 - dᵢ)Aᵢ₊₁
//	Gᵢ = Aᵢ + Vᵢ
//
// where dᵢ is the terminal flag of step i, V_N = bootstrap is the
// value of the state following the batch, and A_N = 0. Terminal flags
// cut the chain, so batches may span several episodes.
//
// A new Augmented batch is returned; b is not modified. Advantages are
// not normalized.
func Estimate(b *trajectory.Batch, bootstrap, gamma,
	lambda float64) (*trajectory.Augmented, error) {
	const op = "estimate"
	if b == nil || b.Len() == 0 {
		return nil, ilerr.Configuration(op, "cannot estimate advantages "+
			"of an empty batch")
	}
	if gamma <= 0 || gamma > 1 {
		return nil, ilerr.Configuration(op, "discount ℽ = %v must be in "+
			"(0, 1]", gamma)
	}
	if lambda < 0 || lambda > 1 {
		return nil, ilerr.Configuration(op, "trace decay λ = %v must be "+
			"in [0, 1]", lambda)
	}
	n := b.Len()
	if len(b.Values) != n || len(b.Terminals) != n {
		return nil, ilerr.DimensionMismatch(op, "values", n, len(b.Values))
	}

	nextVals := make([]float64, n)
	copy(nextVals, b.Values[1:])
	nextVals[n-1] = bootstrap

	// continuing[i] = 1 - dᵢ
	continuing := make([]float64, n)
	for i, term := range b.Terminals {
		continuing[i] = 1 - term
	}

	// δ = r + ℽ(1 - d)V' - V
	nextStateVals := mat.NewVecDense(n, nextVals)
	nextStateVals.MulElemVec(nextStateVals, mat.NewVecDense(n, continuing))
	deltas := mat.NewVecDense(n, nil)
	deltas.AddScaledVec(mat.NewVecDense(n, b.Rewards), gamma, nextStateVals)
	deltas.SubVec(deltas, mat.NewVecDense(n, b.Values))

	advantages := make([]float64, n)
	next := 0.0
	for i := n - 1; i >= 0; i-- {
		advantages[i] = deltas.AtVec(i) + gamma*lambda*continuing[i]*next
		next = advantages[i]
	}

	if i := floatutils.NonFinite(advantages); i >= 0 {
		return nil, ilerr.NumericInstability(op, "advantage", i,
			advantages[i])
	}

	returns := make([]float64, n)
	floats.AddTo(returns, advantages, b.Values)

	return &trajectory.Augmented{
		Batch:      b,
		Returns:    returns,
		Advantages: advantages,
	}, nil
}

// Normalise returns adv standardized to mean 0 and standard deviation
// 1. A small constant is added to the standard deviation so that
// constant advantages do not divide by zero.
func Normalise(adv []float64) []float64 {
	mean := stat.Mean(adv, nil)
	std := 1e-8
	if len(adv) > 1 {
		std += stat.StdDev(adv, nil)
	}

	out := make([]float64, len(adv))
	copy(out, adv)
	floats.AddConst(-mean, out)
	floats.Scale(1/std, out)
	return out
}
