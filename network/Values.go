package network

import (
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Values returns copies of the float64 values bound to nodes
func Values(nodes G.Nodes) [][]float64 {
	out := make([][]float64, len(nodes))
	for i, n := range nodes {
		data := n.Value().Data().([]float64)
		out[i] = append([]float64(nil), data...)
	}
	return out
}

// SetValues binds copies of values to nodes, with values[i] holding the
// row-major data of nodes[i]
func SetValues(nodes G.Nodes, values [][]float64) error {
	if len(nodes) != len(values) {
		return fmt.Errorf("setValues: wrong number of values "+
			"\n\twant(%v)\n\thave(%v)", len(nodes), len(values))
	}

	for i, n := range nodes {
		if n.Shape().TotalSize() != len(values[i]) {
			return fmt.Errorf("setValues: wrong number of values for node "+
				"%v \n\twant(%v)\n\thave(%v)", n.Name(), n.Shape().TotalSize(),
				len(values[i]))
		}
		backing := append([]float64(nil), values[i]...)
		t := tensor.New(tensor.WithShape(n.Shape()...),
			tensor.WithBacking(backing))
		if err := G.Let(n, t); err != nil {
			return fmt.Errorf("setValues: could not set node %v: %v",
				n.Name(), err)
		}
	}
	return nil
}

// SetInput binds data to the matrix input node, which must be of shape
// (rows, len(data)/rows)
func SetInput(input *G.Node, data []float64) error {
	if input.Shape().TotalSize() != len(data) {
		return fmt.Errorf("setInput: invalid number of values for input "+
			"%v \n\twant(%v)\n\thave(%v)", input.Name(),
			input.Shape().TotalSize(), len(data))
	}
	t := tensor.New(tensor.WithShape(input.Shape()...),
		tensor.WithBacking(data))
	return G.Let(input, t)
}

// NewInput adds a new batch x features matrix input node to g
func NewInput(g *G.ExprGraph, name string, batch, features int) *G.Node {
	return G.NewMatrix(
		g,
		tensor.Float64,
		G.WithShape(batch, features),
		G.WithName(name),
		G.WithInit(G.Zeroes()),
	)
}

// NewVectorInput adds a new vector input node of length batch to g
func NewVectorInput(g *G.ExprGraph, name string, batch int) *G.Node {
	return G.NewVector(
		g,
		tensor.Float64,
		G.WithShape(batch),
		G.WithName(name),
		G.WithInit(G.Zeroes()),
	)
}

// Model returns nodes as a slice of G.ValueGrad for use with a
// G.Solver
func Model(nodes G.Nodes) []G.ValueGrad {
	model := make([]G.ValueGrad, len(nodes))
	for i, n := range nodes {
		model[i] = n
	}
	return model
}

// Chunk pads rows of width values each, stored row-major in data,
// into consecutive chunks of exactly batch rows. The final chunk is
// padded with zeros. The number of real rows in the final chunk is
// returned as last, so that callers can discard padded outputs.
func Chunk(data []float64, width, batch int) (chunks [][]float64, last int) {
	rows := len(data) / width
	for start := 0; start < rows; start += batch {
		chunk := make([]float64, batch*width)
		stop := start + batch
		if stop > rows {
			stop = rows
		}
		copy(chunk, data[start*width:stop*width])
		chunks = append(chunks, chunk)
		last = stop - start
	}
	return chunks, last
}

// Scalar returns the single float64 held by v, which may be a scalar
// value or a tensor of size 1
func Scalar(v G.Value) (float64, error) {
	if v == nil {
		return 0, fmt.Errorf("scalar: nil value")
	}
	switch data := v.Data().(type) {
	case float64:
		return data, nil
	case []float64:
		if len(data) == 1 {
			return data[0], nil
		}
		return 0, fmt.Errorf("scalar: value has %v elements", len(data))
	}
	return 0, fmt.Errorf("scalar: value is not float64 but %T", v.Data())
}
