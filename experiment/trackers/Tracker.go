// Package trackers implements Trackers, which record data generated by
// an experiment, and the Metrics that an experiment persists at its end
package trackers

import ts "github.com/samuelfneumann/goimitate/timestep"

// Tracker keeps track of experiment data one timestep at a time
type Tracker interface {
	Track(t ts.TimeStep)
}
