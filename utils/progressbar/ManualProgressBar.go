// Package progressbar implements functionality of printing a progress
// bar to the terminal window
package progressbar

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/logrusorgru/aurora"
)

// ManualProgressBar implement progress bar functionality that must
// be manually managed. That is, the Display() function must be called
// whenever an updated progress bar should be printed to the screen.
//
// ManualProgressBar does not use concurrency.
type ManualProgressBar struct {
	out             io.Writer
	colours         aurora.Aurora
	width           float64
	maxProgress     float64
	currentProgress float64
	description     string
	bar             strings.Builder
	startTime       time.Time
}

// NewManualProgressBar returns a new ManualProgressBar printing to out
// which is width characters wide and is full after max increments.
func NewManualProgressBar(out io.Writer, width, max int,
	colour bool) *ManualProgressBar {
	return &ManualProgressBar{
		out:             out,
		colours:         aurora.NewAurora(colour),
		width:           float64(width),
		maxProgress:     float64(max),
		currentProgress: 0,
		startTime:       time.Now(),
	}
}

// Increment increments the internal progress counter. Each time an
// iteration is performed, Increment should be called.
func (p *ManualProgressBar) Increment() {
	if p.currentProgress < p.maxProgress {
		p.currentProgress++
	}
}

// Progress returns the number of increments so far
func (p *ManualProgressBar) Progress() int {
	return int(p.currentProgress)
}

// Describe sets the text displayed after the bar
func (p *ManualProgressBar) Describe(format string, args ...interface{}) {
	p.description = fmt.Sprintf(format, args...)
}

// String returns the progress bar as it is displayed, without the
// terminal control sequences
func (p *ManualProgressBar) String() string {
	p.bar.Reset()
	p.bar.WriteString("|")

	filled := int(p.currentProgress / p.maxProgress * p.width)
	p.bar.WriteString(p.colours.Green(strings.Repeat("█", filled)).String())
	p.bar.WriteString(strings.Repeat(" ", int(p.width)-filled))

	p.bar.WriteString(fmt.Sprintf("| [%.2f%v | elapsed: %v]",
		p.currentProgress/p.maxProgress*100, "%",
		time.Since(p.startTime).Truncate(time.Second)))
	if p.description != "" {
		p.bar.WriteString(" ")
		p.bar.WriteString(p.colours.Cyan(p.description).String())
	}
	return p.bar.String()
}

// Display prints the progress bar over the previously displayed one
func (p *ManualProgressBar) Display() {
	fmt.Fprintf(p.out, "\n\033[1A\033[K%v", p.String())
}

// Close moves the cursor past the progress bar
func (p *ManualProgressBar) Close() {
	fmt.Fprintln(p.out)
}
