package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/samuelfneumann/goimitate/trajectory"
)

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	root := RootCommand()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		t.Fatalf("%v: %v\n%v", args, err, out.String())
	}
	return out.String()
}

func TestDemo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "expert.gob")
	out := execute(t, "demo", "--episodes", "2", "--steps", "15",
		"--output", path)
	if !strings.Contains(out, "30 transitions") {
		t.Errorf("unexpected output %q", out)
	}

	expert, err := trajectory.LoadExpert(path)
	if err != nil {
		t.Fatal(err)
	}
	if expert.Len() != 30 {
		t.Errorf("want 30 transitions, got %v", expert.Len())
	}
}

func TestTrainAndPlot(t *testing.T) {
	dir := t.TempDir()
	expertPath := filepath.Join(dir, "expert.gob")
	execute(t, "demo", "--episodes", "1", "--steps", "20", "--output",
		expertPath)

	config := filepath.Join(dir, "config.yaml")
	err := os.WriteFile(config, []byte(`
steps: 1000
hidden_size: 8
batch_size: 32
ppo_epochs: 1
imitation: PPO
imitation_batch_size: 8
imitation_epochs: 1
imitation_replay_size: 2
env:
  episode_cutoff: 20
  dataset_path: `+expertPath+`
evaluation:
  interval: 32
  episodes: 1
  average_window: 2
plot: html
`), 0o644)
	if err != nil {
		t.Fatal(err)
	}

	results := filepath.Join(dir, "results")
	out := execute(t, "train", "--config", config, "--steps", "64",
		"--imitation", "GAIL", "--output", results)
	if !strings.Contains(out, "Final evaluation return") {
		t.Errorf("no final return reported in %q", out)
	}
	for _, name := range []string{"agent.gob", "metrics.gob",
		"discriminator.gob", "curves.html"} {
		if _, err := os.Stat(filepath.Join(results, name)); err != nil {
			t.Errorf("%v not written: %v", name, err)
		}
	}

	image := filepath.Join(dir, "curves.png")
	execute(t, "plot", "--metrics", filepath.Join(results, "metrics.gob"),
		"--output", image, "--format", "png")
	if _, err := os.Stat(image); err != nil {
		t.Errorf("no image written: %v", err)
	}
}

func TestPlotUnknownFormat(t *testing.T) {
	root := RootCommand()
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"plot", "--metrics", "missing.gob", "--format",
		"svg"})
	if err := root.Execute(); err == nil {
		t.Error("expected error")
	}
}
