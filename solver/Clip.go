package solver

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	G "gorgonia.org/gorgonia"
)

// ClipGradNorm rescales the gradients of nodes in place so that their
// global L2 norm is at most maxNorm, and returns the norm before
// clipping. The gradients must already have been computed, for
// example by running a tape machine with G.BindDualValues. If maxNorm
// <= 0, gradients are left unchanged.
func ClipGradNorm(nodes G.Nodes, maxNorm float64) (float64, error) {
	grads := make([][]float64, len(nodes))
	sumSq := 0.0
	for i, n := range nodes {
		grad, err := n.Grad()
		if err != nil {
			return 0, fmt.Errorf("clipGradNorm: could not get gradient of "+
				"%v: %v", n.Name(), err)
		}
		data, ok := grad.Data().([]float64)
		if !ok {
			return 0, fmt.Errorf("clipGradNorm: gradient of %v is not "+
				"float64", n.Name())
		}
		grads[i] = data
		sumSq += floats.Dot(data, data)
	}

	norm := math.Sqrt(sumSq)
	if maxNorm <= 0 || norm <= maxNorm || norm == 0 {
		return norm, nil
	}

	scale := maxNorm / (norm + 1e-6)
	for _, g := range grads {
		floats.Scale(scale, g)
	}
	return norm, nil
}
