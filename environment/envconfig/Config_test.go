package envconfig

import (
	"testing"

	"github.com/samuelfneumann/goimitate/ilerr"
)

func TestCreate(t *testing.T) {
	c := Default()
	e, err := c.Create(1)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if d := e.ObservationSpec().Dims(); d != 3 {
		t.Errorf("observation dimensions = %v, want 3", d)
	}
	if d := e.ActionSpec().Dims(); d != 1 {
		t.Errorf("action dimensions = %v, want 1", d)
	}
}

func TestValidate(t *testing.T) {
	tests := map[string]func(*Config){
		"unknown environment": func(c *Config) { c.Environment = "Hopper" },
		"zero cutoff":         func(c *Config) { c.EpisodeCutoff = 0 },
		"negative episodes":   func(c *Config) { c.ExpertEpisodes = -1 },
	}
	for name, modify := range tests {
		c := Default()
		modify(&c)
		if _, err := c.Create(1); !ilerr.IsConfiguration(err) {
			t.Errorf("%v: expected configuration error, got %v", name, err)
		}
	}
}
