package initwfn

import (
	"fmt"
	"math"

	G "gorgonia.org/gorgonia"
)

// defaultGain is used by Glorot initialisers whose gain is unset, as
// happens when a configuration file names the Type but omits Config
const defaultGain = 1.0

// GlorotUConfig configures Glorot uniform initialisation of the policy,
// critic, and discriminator weights. A zero Gain means defaultGain.
type GlorotUConfig struct {
	Gain float64
}

// NewGlorotU returns a new Glorot uniform weight initialiser
func NewGlorotU(gain float64) (*InitWFn, error) {
	if err := checkGain(gain); err != nil {
		return nil, fmt.Errorf("newGlorotU: %v", err)
	}
	return newInitWFn(GlorotUConfig{Gain: gain})
}

// Type implements the Config interface
func (g GlorotUConfig) Type() Type { return GlorotU }

// Create implements the Config interface
func (g GlorotUConfig) Create() G.InitWFn {
	return G.GlorotU(gainOrDefault(g.Gain))
}

func (g GlorotUConfig) validate() error { return checkGain(g.Gain) }

// GlorotNConfig configures Glorot normal initialisation. A zero Gain
// means defaultGain.
type GlorotNConfig struct {
	Gain float64
}

// NewGlorotN returns a new Glorot normal weight initialiser
func NewGlorotN(gain float64) (*InitWFn, error) {
	if err := checkGain(gain); err != nil {
		return nil, fmt.Errorf("newGlorotN: %v", err)
	}
	return newInitWFn(GlorotNConfig{Gain: gain})
}

// Type implements the Config interface
func (g GlorotNConfig) Type() Type { return GlorotN }

// Create implements the Config interface
func (g GlorotNConfig) Create() G.InitWFn {
	return G.GlorotN(gainOrDefault(g.Gain))
}

func (g GlorotNConfig) validate() error { return checkGain(g.Gain) }

func gainOrDefault(gain float64) float64 {
	if gain == 0 {
		return defaultGain
	}
	return gain
}

// checkGain returns an error if gain is negative or not finite
func checkGain(gain float64) error {
	if gain < 0 || math.IsNaN(gain) || math.IsInf(gain, 0) {
		return fmt.Errorf("gain must be finite and non-negative, got %v",
			gain)
	}
	return nil
}
