// Package network implements feed forward neural networks on Gorgonia
// computational graphs.
//
// An MLP owns the weights of its layers on a single graph but is not
// bound to a single input node: the same MLP can be applied to several
// inputs on its graph, in which case all applications share weights.
// This is how, for example, a shaping network is evaluated on both the
// states and the next states of a batch.
package network

import (
	"bytes"
	"encoding/gob"
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// MLP implements a multi-layered perceptron. All hidden layers use the
// same activation, and the final layer is linear.
type MLP struct {
	g        *G.ExprGraph
	name     string
	features int
	hidden   []int
	outputs  int
	act      *Activation

	layers     []*fcLayer
	learnables G.Nodes
}

// NewMLP adds the weights of a new MLP to the graph g. The MLP maps
// features inputs through len(hidden) hidden layers, hidden[i] being
// the width of layer i, to outputs linear outputs. The name is used to
// prefix all weight nodes and must be unique on g; Gorgonia
// deduplicates nodes with equal names and shapes.
func NewMLP(g *G.ExprGraph, name string, features int, hidden []int,
	outputs int, act *Activation, init G.InitWFn) (*MLP, error) {
	if features <= 0 || outputs <= 0 {
		return nil, fmt.Errorf("newMLP: features and outputs must be " +
			"positive")
	}
	for _, h := range hidden {
		if h <= 0 {
			return nil, fmt.Errorf("newMLP: hidden layer widths must be "+
				"positive, got %v", hidden)
		}
	}
	if act == nil {
		act = Identity()
	}

	layers := make([]*fcLayer, 0, len(hidden)+1)
	in := features
	for i, out := range hidden {
		layerName := fmt.Sprintf("%v_L%d", name, i)
		layers = append(layers, newFCLayer(g, layerName, in, out, init, act))
		in = out
	}
	layerName := fmt.Sprintf("%v_L%d", name, len(hidden))
	layers = append(layers, newFCLayer(g, layerName, in, outputs, init, nil))

	var learnables G.Nodes
	for _, l := range layers {
		learnables = append(learnables, l.learnables()...)
	}

	return &MLP{
		g:          g,
		name:       name,
		features:   features,
		hidden:     append([]int(nil), hidden...),
		outputs:    outputs,
		act:        act,
		layers:     layers,
		learnables: learnables,
	}, nil
}

// Graph returns the computational graph of the MLP
func (m *MLP) Graph() *G.ExprGraph {
	return m.g
}

// Features returns the number of input features
func (m *MLP) Features() int {
	return m.features
}

// Outputs returns the number of outputs
func (m *MLP) Outputs() int {
	return m.outputs
}

// Hidden returns the widths of the hidden layers
func (m *MLP) Hidden() []int {
	return append([]int(nil), m.hidden...)
}

// Fwd adds the forward pass of the MLP applied to x to the graph. The
// input x must be a matrix on the MLP's graph whose rows are samples.
func (m *MLP) Fwd(x *G.Node) (*G.Node, error) {
	return m.FwdWithDropout(x, nil)
}

// FwdWithDropout is like Fwd, but the output of hidden layer i is
// multiplied elementwise by masks[i]. If masks is nil no dropout is
// performed.
func (m *MLP) FwdWithDropout(x *G.Node, masks G.Nodes) (*G.Node, error) {
	if x.Graph() != m.g {
		return nil, fmt.Errorf("fwd: input must share the graph of %v",
			m.name)
	}
	if !x.IsMatrix() || x.Shape()[1] != m.features {
		return nil, fmt.Errorf("fwd: input to %v must be a matrix with "+
			"%v columns, got shape %v", m.name, m.features, x.Shape())
	}
	if masks != nil && len(masks) != len(m.hidden) {
		return nil, fmt.Errorf("fwd: need one dropout mask per hidden "+
			"layer \n\twant(%v)\n\thave(%v)", len(m.hidden), len(masks))
	}

	var err error
	for i, l := range m.layers {
		x, err = l.fwd(x)
		if err != nil {
			return nil, fmt.Errorf("fwd: layer %v of %v: %v", i, m.name, err)
		}
		if masks != nil && i < len(m.hidden) {
			x, err = G.HadamardProd(x, masks[i])
			if err != nil {
				return nil, fmt.Errorf("fwd: dropout on layer %v of %v: %v",
					i, m.name, err)
			}
		}
	}
	return x, nil
}

// InputGrad adds to the graph the gradient with respect to x of
// sum(dy ⊙ m(x)), where dy has the shape of m(x). Row i of the result
// is the vector-Jacobian product of dy[i] with the MLP at x[i].
//
// The gradient is built from an explicit backward pass through the
// layers rather than symbolic differentiation, so it remains a first
// order expression of the weights and can be differentiated again
// with respect to them.
func (m *MLP) InputGrad(x, dy *G.Node) (*G.Node, error) {
	if x.Graph() != m.g || dy.Graph() != m.g {
		return nil, fmt.Errorf("inputGrad: inputs must share the graph "+
			"of %v", m.name)
	}
	if !x.IsMatrix() || x.Shape()[1] != m.features {
		return nil, fmt.Errorf("inputGrad: input to %v must be a matrix "+
			"with %v columns, got shape %v", m.name, m.features, x.Shape())
	}
	want := tensor.Shape{x.Shape()[0], m.outputs}
	if !dy.Shape().Eq(want) {
		return nil, fmt.Errorf("inputGrad: output gradient of %v must "+
			"have shape %v, got %v", m.name, want, dy.Shape())
	}

	// The final layer is linear, so only the hidden layers need their
	// pre-activations and outputs
	pre := make(G.Nodes, len(m.layers))
	post := make(G.Nodes, len(m.layers))
	h := x
	for i, l := range m.layers[:len(m.hidden)] {
		z, err := l.linear(h)
		if err != nil {
			return nil, fmt.Errorf("inputGrad: layer %v of %v: %v", i,
				m.name, err)
		}
		h, err = l.act.fwd(z)
		if err != nil {
			return nil, fmt.Errorf("inputGrad: layer %v of %v: %v", i,
				m.name, err)
		}
		pre[i], post[i] = z, h
	}

	g := dy
	for i := len(m.layers) - 1; i >= 0; i-- {
		var err error
		g, err = m.layers[i].backward(g, pre[i], post[i])
		if err != nil {
			return nil, fmt.Errorf("inputGrad: layer %v of %v: %v", i,
				m.name, err)
		}
	}
	return g, nil
}

// Learnables returns the learnable weights of the MLP
func (m *MLP) Learnables() G.Nodes {
	return m.learnables
}

// Set sets the weights of m to a copy of the weights of src. Both MLPs
// must have the same architecture.
func (m *MLP) Set(src *MLP) error {
	return SetValues(m.learnables, Values(src.learnables))
}

// GobEncode implements the gob.GobEncoder interface. Only weights are
// encoded.
func (m *MLP) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(Values(m.learnables)); err != nil {
		return nil, fmt.Errorf("gobEncode: could not encode weights: %v", err)
	}
	return buf.Bytes(), nil
}

// GobDecode implements the gob.GobDecoder interface. The MLP must have
// already been constructed with the same architecture as the encoded
// MLP.
func (m *MLP) GobDecode(in []byte) error {
	var values [][]float64
	if err := gob.NewDecoder(bytes.NewReader(in)).Decode(&values); err != nil {
		return fmt.Errorf("gobDecode: could not decode weights: %v", err)
	}
	return SetValues(m.learnables, values)
}
