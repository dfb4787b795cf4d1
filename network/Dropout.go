package network

import (
	"fmt"

	"golang.org/x/exp/rand"

	G "gorgonia.org/gorgonia"
)

// Dropout holds one input mask node per hidden layer of an MLP. Masks
// are resampled explicitly with Sample before each forward pass, which
// keeps stochastic passes reproducible from a seed.
type Dropout struct {
	p     float64
	masks G.Nodes
	rng   *rand.Rand
}

// NewDropout adds dropout masks for every hidden layer of m to the
// graph of m. The parameter p is the probability of dropping a unit.
// Masks are initialized to keep every unit.
func NewDropout(m *MLP, name string, batch int, p float64,
	seed uint64) (*Dropout, error) {
	if p < 0 || p >= 1 {
		return nil, fmt.Errorf("newDropout: drop probability must be in "+
			"[0, 1), got %v", p)
	}

	masks := make(G.Nodes, len(m.hidden))
	for i, width := range m.hidden {
		masks[i] = NewInput(m.g, fmt.Sprintf("%v_mask%d", name, i), batch,
			width)
	}

	d := &Dropout{
		p:     p,
		masks: masks,
		rng:   rand.New(rand.NewSource(seed)),
	}
	return d, d.Keep()
}

// Masks returns the mask nodes
func (d *Dropout) Masks() G.Nodes {
	return d.masks
}

// Sample draws new inverted-dropout masks: each unit is zeroed with
// probability p and otherwise scaled by 1/(1-p).
func (d *Dropout) Sample() error {
	scale := 1 / (1 - d.p)
	for _, mask := range d.masks {
		data := make([]float64, mask.Shape().TotalSize())
		for j := range data {
			if d.rng.Float64() >= d.p {
				data[j] = scale
			}
		}
		if err := SetInput(mask, data); err != nil {
			return fmt.Errorf("sample: %v", err)
		}
	}
	return nil
}

// Keep sets all masks to keep every unit unscaled, turning dropout off
func (d *Dropout) Keep() error {
	for _, mask := range d.masks {
		data := make([]float64, mask.Shape().TotalSize())
		for j := range data {
			data[j] = 1.0
		}
		if err := SetInput(mask, data); err != nil {
			return fmt.Errorf("keep: %v", err)
		}
	}
	return nil
}
