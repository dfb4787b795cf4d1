package progressbar

import (
	"bytes"
	"strings"
	"testing"
)

func TestManualProgressBar(t *testing.T) {
	var out bytes.Buffer
	p := NewManualProgressBar(&out, 10, 4, false)
	for i := 0; i < 6; i++ {
		p.Increment()
	}
	if p.Progress() != 4 {
		t.Errorf("progress = %v, want 4", p.Progress())
	}

	p.Describe("Step: %v", 12)
	p.Display()
	have := out.String()
	if !strings.Contains(have, strings.Repeat("█", 10)) {
		t.Errorf("full bar not displayed: %q", have)
	}
	if !strings.Contains(have, "100.00%") || !strings.Contains(have, "Step: 12") {
		t.Errorf("progress or description missing: %q", have)
	}
}
