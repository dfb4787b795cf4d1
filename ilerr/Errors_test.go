package ilerr

import (
	"fmt"
	"math"
	"testing"
)

func TestKinds(t *testing.T) {
	conf := Configuration("validate", "unknown imitation %q", "XYZ")
	num := NumericInstability("estimate", "advantage", 3, math.NaN())
	dim := DimensionMismatch("update", "state dimensions", 3, 4)

	tests := []struct {
		name          string
		err           error
		conf, num, dm bool
	}{
		{"configuration", conf, true, false, false},
		{"numeric", num, false, true, false},
		{"dimension", dim, false, false, true},
		{"wrapped", fmt.Errorf("run: %w", num), false, true, false},
		{"plain", fmt.Errorf("plain"), false, false, false},
	}

	for _, test := range tests {
		if got := IsConfiguration(test.err); got != test.conf {
			t.Errorf("%v: IsConfiguration = %v, want %v", test.name, got,
				test.conf)
		}
		if got := IsNumericInstability(test.err); got != test.num {
			t.Errorf("%v: IsNumericInstability = %v, want %v", test.name,
				got, test.num)
		}
		if got := IsDimensionMismatch(test.err); got != test.dm {
			t.Errorf("%v: IsDimensionMismatch = %v, want %v", test.name,
				got, test.dm)
		}
	}
}

func TestMessages(t *testing.T) {
	err := NumericInstability("ppo", "loss", -1, math.Inf(1))
	if want := "ppo: non-finite loss (+Inf)"; err.Error() != want {
		t.Errorf("have %q, want %q", err.Error(), want)
	}
}
