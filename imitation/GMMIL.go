package imitation

import (
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog"
	"github.com/samuelfneumann/goimitate/ilerr"
	"github.com/samuelfneumann/goimitate/trajectory"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// GMMILEstimator implements generative moment matching imitation
// learning. The reward of a policy input p is its mean similarity to
// the expert inputs under a mixture of two Gaussian kernels, minus its mean
// similarity to the policy inputs:
//
//	r(p) = Σₖ meanᵢ exp(-γₖ‖eᵢ - p‖²) - meanᵢ exp(-γₖ‖pᵢ - p‖²)
//
// The bandwidths γ₁ and γ₂ are set with the median heuristic on the
// first prediction and fixed afterwards. GMMIL has no parameters.
type GMMILEstimator struct {
	stateOnly      bool
	selfSimilarity bool
	gammas         []float64
	logger         zerolog.Logger
}

func newGMMIL(c Config, logger zerolog.Logger) *GMMILEstimator {
	return &GMMILEstimator{
		stateOnly:      c.StateOnly,
		selfSimilarity: c.SelfSimilarity,
		logger:         logger,
	}
}

// Kind implements the Estimator interface
func (g *GMMILEstimator) Kind() Kind { return GMMIL }

// Pretrain is a no-op
func (g *GMMILEstimator) Pretrain(trajectory.Transitions) error {
	return nil
}

// Update is a no-op
func (g *GMMILEstimator) Update(expert, policy trajectory.Transitions) error {
	return trajectory.CheckCompatible("update", expert, policy)
}

// Bandwidths returns the kernel bandwidths γ₁ and γ₂, or nil before
// the first prediction
func (g *GMMILEstimator) Bandwidths() []float64 {
	return append([]float64(nil), g.gammas...)
}

// PredictReward returns the reward of each row of policy
func (g *GMMILEstimator) PredictReward(expert,
	policy trajectory.Transitions) ([]float64, error) {
	const op = "predictReward"
	if err := trajectory.CheckCompatible(op, expert, policy); err != nil {
		return nil, err
	}
	if expert.Len() == 0 || policy.Len() == 0 {
		return nil, fmt.Errorf("%v: expert and policy data must be "+
			"non-empty", op)
	}

	width := inputWidth(g.stateOnly, expert.StateDim, expert.ActionDim)
	e := mat.NewDense(expert.Len(), width, expert.Inputs(g.stateOnly))
	p := mat.NewDense(policy.Len(), width, policy.Inputs(g.stateOnly))

	expertPolicy := squaredDistances(e, p)
	if g.gammas == nil {
		expertExpert := squaredDistances(e, e)
		g.gammas = []float64{
			1 / median(expertPolicy.RawMatrix().Data),
			1 / median(expertExpert.RawMatrix().Data),
		}
		for _, gamma := range g.gammas {
			if math.IsInf(gamma, 0) || math.IsNaN(gamma) {
				return nil, ilerr.NumericInstability(op, "kernel bandwidth",
					-1, gamma)
			}
		}
		g.logger.Info().
			Float64("gamma1", g.gammas[0]).
			Float64("gamma2", g.gammas[1]).
			Msg("set kernel bandwidths")
	}

	rewards := make([]float64, policy.Len())
	addKernelMeans(rewards, expertPolicy, g.gammas, 1)
	if g.selfSimilarity {
		addKernelMeans(rewards, squaredDistances(p, p), g.gammas, -1)
	}
	return rewards, checkRewards(op, rewards)
}

// addKernelMeans adds sign times the column means of the Gaussian
// kernel matrices of the squared distances dist to out, summed over
// bandwidths
func addKernelMeans(out []float64, dist *mat.Dense, gammas []float64,
	sign float64) {
	rows, cols := dist.Dims()
	for j := 0; j < cols; j++ {
		for _, gamma := range gammas {
			sum := 0.0
			for i := 0; i < rows; i++ {
				sum += math.Exp(-gamma * dist.At(i, j))
			}
			out[j] += sign * sum / float64(rows)
		}
	}
}

// squaredDistances returns the matrix of squared Euclidean distances
// between the rows of x and the rows of y, computed as
// ‖x‖² + ‖y‖² - 2x·y and clamped at zero
func squaredDistances(x, y *mat.Dense) *mat.Dense {
	n, _ := x.Dims()
	m, _ := y.Dims()

	var dist mat.Dense
	dist.Mul(x, y.T())
	dist.Scale(-2, &dist)

	xNorms := rowSquaredNorms(x)
	yNorms := rowSquaredNorms(y)
	for i := 0; i < n; i++ {
		for j := 0; j < m; j++ {
			d := dist.At(i, j) + xNorms[i] + yNorms[j]
			dist.Set(i, j, math.Max(d, 0))
		}
	}
	return &dist
}

func rowSquaredNorms(x *mat.Dense) []float64 {
	n, _ := x.Dims()
	norms := make([]float64, n)
	for i := range norms {
		row := x.RawRowView(i)
		norms[i] = mat.Dot(mat.NewVecDense(len(row), row),
			mat.NewVecDense(len(row), row))
	}
	return norms
}

// median returns the median of data, which is not modified
func median(data []float64) float64 {
	sorted := append([]float64(nil), data...)
	sort.Float64s(sorted)
	return stat.Quantile(0.5, stat.Empirical, sorted, nil)
}
