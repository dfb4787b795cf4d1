// Package op provides extended Gorgonia graph operations.
//
// Clip, Min, and Max are adapted from aunum/gold on GitHub
package op

import (
	"math"

	G "gorgonia.org/gorgonia"
)

// Clip clips the value of a node elementwise to [min, max]
func Clip(value *G.Node, min, max float64) (retVal *G.Node, err error) {
	minNode := G.NewConstant(min)
	maxNode := G.NewConstant(max)

	// Check if its the min value
	minMask, err := G.Lt(value, minNode, true)
	if err != nil {
		return nil, err
	}
	minVal, err := G.HadamardProd(minNode, minMask)
	if err != nil {
		return nil, err
	}

	// Check if its the given value
	isMaskGt, err := G.Gte(value, minNode, true)
	if err != nil {
		return nil, err
	}
	isMaskLt, err := G.Lte(value, maxNode, true)
	if err != nil {
		return nil, err
	}
	isMask, err := G.HadamardProd(isMaskGt, isMaskLt)
	if err != nil {
		return nil, err
	}
	isVal, err := G.HadamardProd(value, isMask)
	if err != nil {
		return nil, err
	}

	// Check if its the max value
	maxMask, err := G.Gt(value, maxNode, true)
	if err != nil {
		return nil, err
	}
	maxVal, err := G.HadamardProd(maxNode, maxMask)
	if err != nil {
		return nil, err
	}

	retVal, err = G.Add(minVal, isVal)
	if err != nil {
		return nil, err
	}
	return G.Add(retVal, maxVal)
}

// Min returns the elementwise min value between the nodes. If values
// are equal the first value is returned
func Min(a *G.Node, b *G.Node) (retVal *G.Node, err error) {
	aMask, err := G.Lte(a, b, true)
	if err != nil {
		return nil, err
	}
	aVal, err := G.HadamardProd(a, aMask)
	if err != nil {
		return nil, err
	}

	bMask, err := G.Lt(b, a, true)
	if err != nil {
		return nil, err
	}
	bVal, err := G.HadamardProd(b, bMask)
	if err != nil {
		return nil, err
	}
	return G.Add(aVal, bVal)
}

// Max returns the elementwise max value between the nodes. If values
// are equal the first value is returned.
func Max(a *G.Node, b *G.Node) (retVal *G.Node, err error) {
	aMask, err := G.Gte(a, b, true)
	if err != nil {
		return nil, err
	}
	aVal, err := G.HadamardProd(a, aMask)
	if err != nil {
		return nil, err
	}

	bMask, err := G.Gt(b, a, true)
	if err != nil {
		return nil, err
	}
	bVal, err := G.HadamardProd(b, bMask)
	if err != nil {
		return nil, err
	}
	return G.Add(aVal, bVal)
}

// GaussianLogPdf calculates the log density of actions under diagonal
// Gaussian distributions with means mean and a state-independent log
// standard deviation logStd.
//
// The mean and actions nodes are batch x n matrices, with row i
// holding the mean of the distribution and the action of sample i.
// The logStd node is a 1 x n matrix shared by all samples. The
// returned node is a vector with one log density per sample:
//
//	log π(a|s) = -½ Σⱼ ((aⱼ - μⱼ) / σⱼ)² - Σⱼ log σⱼ - (n/2) log 2π
func GaussianLogPdf(mean, logStd, actions *G.Node) (*G.Node, error) {
	dims := float64(mean.Shape()[1])

	std, err := G.Exp(logStd)
	if err != nil {
		return nil, err
	}
	diff, err := G.Sub(actions, mean)
	if err != nil {
		return nil, err
	}
	z, err := G.BroadcastHadamardDiv(diff, std, nil, []byte{0})
	if err != nil {
		return nil, err
	}
	z, err = G.Square(z)
	if err != nil {
		return nil, err
	}
	exponent, err := G.Sum(z, 1)
	if err != nil {
		return nil, err
	}
	exponent, err = G.HadamardProd(exponent, G.NewConstant(-0.5))
	if err != nil {
		return nil, err
	}

	logDet, err := G.Sum(logStd)
	if err != nil {
		return nil, err
	}
	norm, err := G.Add(logDet, G.NewConstant(0.5*dims*math.Log(2*math.Pi)))
	if err != nil {
		return nil, err
	}

	return G.Sub(exponent, norm)
}

// GaussianEntropy returns the entropy of a diagonal Gaussian with the
// 1 x n log standard deviation logStd as a scalar node:
//
//	H = Σⱼ log σⱼ + (n/2)(1 + log 2π)
func GaussianEntropy(logStd *G.Node) (*G.Node, error) {
	dims := float64(logStd.Shape()[1])

	sum, err := G.Sum(logStd)
	if err != nil {
		return nil, err
	}
	return G.Add(sum, G.NewConstant(0.5*dims*(1+math.Log(2*math.Pi))))
}

// BCEWithLogits returns the mean binary cross entropy of the logits
// vector against a constant label of 1 (positive is true) or 0,
// computed stably as softplus(-x) or softplus(x) respectively.
func BCEWithLogits(logits *G.Node, positive bool) (*G.Node, error) {
	x := logits
	var err error
	if positive {
		x, err = G.Neg(logits)
		if err != nil {
			return nil, err
		}
	}
	loss, err := G.Softplus(x)
	if err != nil {
		return nil, err
	}
	return G.Mean(loss)
}
