package trackers

import (
	"encoding/gob"
	"fmt"
	"io"
	"os"

	"gonum.org/v1/gonum/stat"
)

// Metrics are the step and return data of a training run
type Metrics struct {
	TrainSteps   []int
	TrainReturns []float64
	TrainLengths []int

	// TestReturns[i] holds the return of every evaluation episode run
	// after TestSteps[i] environment steps
	TestSteps   []int
	TestReturns [][]float64
}

// NewMetrics collects the training data recorded by ret and lengths
// together with the evaluations recorded so far
func NewMetrics(ret *Return, lengths *EpisodeLength, evals *Evaluations) *Metrics {
	m := &Metrics{}
	if ret != nil {
		m.TrainSteps, m.TrainReturns = ret.Steps(), ret.Returns()
	}
	if lengths != nil {
		m.TrainLengths = lengths.Lengths()
	}
	if evals != nil {
		m.TestSteps = append([]int(nil), evals.steps...)
		for _, r := range evals.returns {
			m.TestReturns = append(m.TestReturns, append([]float64(nil), r...))
		}
	}
	return m
}

// TestMeans returns the mean evaluation return at each evaluation
func (m *Metrics) TestMeans() []float64 {
	means := make([]float64, len(m.TestReturns))
	for i, r := range m.TestReturns {
		means[i] = stat.Mean(r, nil)
	}
	return means
}

// Save gob encodes the metrics to w
func (m *Metrics) Save(w io.Writer) error {
	return gob.NewEncoder(w).Encode(m)
}

// LoadMetrics decodes metrics saved with Save from the file at path
func LoadMetrics(path string) (*Metrics, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("loadMetrics: could not open file: %v", err)
	}
	defer file.Close()

	var m Metrics
	if err := gob.NewDecoder(file).Decode(&m); err != nil {
		return nil, fmt.Errorf("loadMetrics: could not decode metrics: %v",
			err)
	}
	return &m, nil
}

// Evaluations records the returns of periodic evaluations
type Evaluations struct {
	window int

	steps   []int
	returns [][]float64
}

// NewEvaluations returns a new Evaluations whose Recent average is
// taken over the last window evaluations
func NewEvaluations(window int) *Evaluations {
	return &Evaluations{window: window}
}

// Add records the returns of an evaluation run after step environment
// steps
func (e *Evaluations) Add(step int, returns []float64) {
	e.steps = append(e.steps, step)
	e.returns = append(e.returns, append([]float64(nil), returns...))
}

// Len returns the number of evaluations recorded
func (e *Evaluations) Len() int {
	return len(e.steps)
}

// Recent returns the mean over the last window evaluations of the
// mean evaluation return. Recent returns 0 if no evaluation has been
// recorded.
func (e *Evaluations) Recent() float64 {
	if len(e.returns) == 0 {
		return 0
	}
	start := max(len(e.returns)-e.window, 0)
	means := make([]float64, 0, len(e.returns)-start)
	for _, r := range e.returns[start:] {
		means = append(means, stat.Mean(r, nil))
	}
	return stat.Mean(means, nil)
}
