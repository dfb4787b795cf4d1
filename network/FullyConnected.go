package network

import (
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// fcLayer implements a fully connected layer of a feed forward neural
// network
type fcLayer struct {
	weights *G.Node
	bias    *G.Node
	act     *Activation
}

// newFCLayer adds the weights of a new fully connected layer mapping
// in features to out features to the graph g
func newFCLayer(g *G.ExprGraph, name string, in, out int, init G.InitWFn,
	act *Activation) *fcLayer {
	weights := G.NewMatrix(
		g,
		tensor.Float64,
		G.WithShape(in, out),
		G.WithName(name+"W"),
		G.WithInit(init),
	)

	bias := G.NewMatrix(
		g,
		tensor.Float64,
		G.WithShape(1, out),
		G.WithName(name+"B"),
		G.WithInit(G.Zeroes()),
	)

	return &fcLayer{weights: weights, bias: bias, act: act}
}

// fwd adds the forward pass of the fcLayer to the computational graph
func (f *fcLayer) fwd(x *G.Node) (*G.Node, error) {
	x, err := f.linear(x)
	if err != nil {
		return nil, err
	}

	if f.act == nil {
		return x, nil
	}
	return f.act.fwd(x)
}

// linear adds the pre-activation xW + b of the fcLayer to the graph
func (f *fcLayer) linear(x *G.Node) (*G.Node, error) {
	x, err := G.Mul(x, f.weights)
	if err != nil {
		return nil, fmt.Errorf("fwd: could not multiply weights: %v", err)
	}

	// Broadcast the bias weights to all samples along the batch
	// dimension
	x, err = G.BroadcastAdd(x, f.bias, nil, []byte{0})
	if err != nil {
		return nil, fmt.Errorf("fwd: could not add bias: %v", err)
	}
	return x, nil
}

// backward maps the gradient dy with respect to the output of the
// layer to the gradient with respect to its input, given the
// pre-activation z and output y of the layer
func (f *fcLayer) backward(dy, z, y *G.Node) (*G.Node, error) {
	if f.act != nil && f.act.df != nil {
		d, err := f.act.df(z, y)
		if err != nil {
			return nil, fmt.Errorf("backward: activation derivative: %v", err)
		}
		dy, err = G.HadamardProd(dy, d)
		if err != nil {
			return nil, fmt.Errorf("backward: could not scale by "+
				"activation derivative: %v", err)
		}
	}

	wT, err := G.Transpose(f.weights)
	if err != nil {
		return nil, fmt.Errorf("backward: could not transpose weights: %v", err)
	}
	dx, err := G.Mul(dy, wT)
	if err != nil {
		return nil, fmt.Errorf("backward: could not multiply weights: %v", err)
	}
	return dx, nil
}

// learnables returns the weights and bias of the layer
func (f *fcLayer) learnables() G.Nodes {
	return G.Nodes{f.weights, f.bias}
}
