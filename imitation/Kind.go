package imitation

import (
	"strings"

	"github.com/samuelfneumann/goimitate/ilerr"
)

// Kind is a reward estimation algorithm
type Kind string

// Reward estimation algorithms. All but PPO learn a reward, or a
// policy in the case of BC, from expert demonstrations.
const (
	AIRL   Kind = "AIRL"
	BC     Kind = "BC"
	DRIL   Kind = "DRIL"
	FAIRL  Kind = "FAIRL"
	GAIL   Kind = "GAIL"
	GMMIL  Kind = "GMMIL"
	PUGAIL Kind = "PUGAIL"
	RED    Kind = "RED"

	// PPO uses the environment reward
	PPO Kind = "PPO"
)

// Kinds lists every recognised Kind
var Kinds = []Kind{AIRL, BC, DRIL, FAIRL, GAIL, GMMIL, PUGAIL, RED, PPO}

// ParseKind returns the Kind named by s, ignoring case. Any name other
// than those in Kinds results in a *ilerr.ConfigurationError.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if strings.EqualFold(string(k), s) {
			return k, nil
		}
	}
	return "", ilerr.Configuration("parseKind", "unknown imitation "+
		"algorithm %q, must be one of %v", s, Kinds)
}

// Adversarial returns whether the Kind trains a discriminator against
// replayed policy data after every batch
func (k Kind) Adversarial() bool {
	switch k {
	case AIRL, FAIRL, GAIL, PUGAIL:
		return true
	}
	return false
}

// Pretrained returns whether the Kind is trained once on the expert
// data before any interaction
func (k Kind) Pretrained() bool {
	switch k {
	case BC, DRIL, RED:
		return true
	}
	return false
}

// Trainable returns whether the Kind has parameters worth persisting
func (k Kind) Trainable() bool {
	switch k {
	case AIRL, DRIL, FAIRL, GAIL, PUGAIL, RED:
		return true
	}
	return false
}

// RelabelsReward returns whether the Kind replaces the environment
// reward during online training
func (k Kind) RelabelsReward() bool {
	return k != PPO && k != BC
}

// String implements the fmt.Stringer interface
func (k Kind) String() string {
	return string(k)
}
