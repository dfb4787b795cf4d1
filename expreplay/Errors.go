package expreplay

import "errors"

// ExpReplayError implements errors unique to a replay window
type ExpReplayError struct {
	Op  string
	Err error
}

// Error satisifes the error interface
func (e *ExpReplayError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

// Unwrap returns the wrapped error
func (e *ExpReplayError) Unwrap() error {
	return e.Err
}

var errEmptyWindow = errors.New("window empty")

var errIllegalCapacity = errors.New("capacity must be positive")

// IsEmptyWindow returns whether or not an error reports that a
// replay window holds no batches.
func IsEmptyWindow(err error) bool {
	if replayErr, ok := err.(*ExpReplayError); ok {
		err = replayErr.Err
	}
	return err == errEmptyWindow
}
