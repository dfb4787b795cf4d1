// Package plot renders the learning curves of a training run
package plot

import (
	"fmt"
	"os"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/samuelfneumann/goimitate/experiment/trackers"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// Curve is a named learning curve
type Curve struct {
	Name    string
	Steps   []int
	Returns []float64
}

// Curves returns the training return curve and the mean evaluation
// return curve of m. Curves without points are omitted.
func Curves(m *trackers.Metrics) []Curve {
	var curves []Curve
	if len(m.TrainReturns) > 0 {
		curves = append(curves, Curve{"Training", m.TrainSteps, m.TrainReturns})
	}
	if len(m.TestReturns) > 0 {
		curves = append(curves, Curve{"Evaluation", m.TestSteps, m.TestMeans()})
	}
	return curves
}

// PNG draws the learning curves of m to a PNG image at path
func PNG(m *trackers.Metrics, path string) error {
	p := plot.New()
	p.Title.Text = "Learning curves"
	p.X.Label.Text = "Step"
	p.Y.Label.Text = "Return"

	for i, c := range Curves(m) {
		points := make(plotter.XYs, len(c.Steps))
		for j := range c.Steps {
			points[j] = plotter.XY{X: float64(c.Steps[j]), Y: c.Returns[j]}
		}
		line, err := plotter.NewLine(points)
		if err != nil {
			return fmt.Errorf("png: %v", err)
		}
		line.Color = plotutil.Color(i)
		p.Add(line)
		p.Legend.Add(c.Name, line)
	}

	if err := p.Save(8*vg.Inch, 6*vg.Inch, path); err != nil {
		return fmt.Errorf("png: %v", err)
	}
	return nil
}

// HTML renders the learning curves of m as an interactive page at path,
// with one chart per curve
func HTML(m *trackers.Metrics, path string) error {
	page := components.NewPage()
	page.PageTitle = "Learning curves"

	for _, c := range Curves(m) {
		line := charts.NewLine()
		line.SetGlobalOptions(
			charts.WithTitleOpts(opts.Title{Title: c.Name}),
			charts.WithXAxisOpts(opts.XAxis{Name: "Step"}),
			charts.WithYAxisOpts(opts.YAxis{Name: "Return"}),
		)

		steps := make([]string, len(c.Steps))
		items := make([]opts.LineData, len(c.Returns))
		for j := range c.Steps {
			steps[j] = strconv.Itoa(c.Steps[j])
			items[j] = opts.LineData{Value: c.Returns[j]}
		}
		line.SetXAxis(steps).AddSeries(c.Name, items)
		page.AddCharts(line)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("html: %v", err)
	}
	if err := page.Render(f); err != nil {
		f.Close()
		return fmt.Errorf("html: %v", err)
	}
	return f.Close()
}
