package plot

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/samuelfneumann/goimitate/experiment/trackers"
)

func metrics() *trackers.Metrics {
	return &trackers.Metrics{
		TrainSteps:   []int{200, 400, 600},
		TrainReturns: []float64{-1200, -900, -400},
		TrainLengths: []int{200, 200, 200},
		TestSteps:    []int{300, 600},
		TestReturns:  [][]float64{{-1000, -800}, {-300, -100}},
	}
}

func TestCurves(t *testing.T) {
	curves := Curves(metrics())
	if len(curves) != 2 {
		t.Fatalf("want 2 curves, got %v", len(curves))
	}
	eval := curves[1]
	if eval.Returns[0] != -900 || eval.Returns[1] != -200 {
		t.Errorf("evaluation curve should hold mean returns, got %v",
			eval.Returns)
	}

	if len(Curves(&trackers.Metrics{})) != 0 {
		t.Error("empty metrics should have no curves")
	}
}

func TestPNG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "curves.png")
	if err := PNG(metrics(), path); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(path)
	if err != nil || info.Size() == 0 {
		t.Errorf("no image written: %v", err)
	}
}

func TestHTML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "curves.html")
	if err := HTML(metrics(), path); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "Evaluation") {
		t.Error("page does not contain the evaluation chart")
	}
}
