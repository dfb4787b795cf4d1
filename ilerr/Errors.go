// Package ilerr implements the error kinds that abort a training run:
// configuration errors, numeric instabilities, and dimension
// mismatches between expert and policy data.
package ilerr

import (
	"errors"
	"fmt"
)

// ConfigurationError reports an invalid option or an invalid
// combination of options. It is always raised before training starts.
type ConfigurationError struct {
	Op  string
	Err error
}

// Configuration returns a new *ConfigurationError for operation op
func Configuration(op, format string, args ...interface{}) error {
	return &ConfigurationError{Op: op, Err: fmt.Errorf(format, args...)}
}

// Error satisfies the error interface
func (e *ConfigurationError) Error() string {
	return e.Op + ": configuration: " + e.Err.Error()
}

// Unwrap returns the wrapped error
func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// NumericInstabilityError reports a non-finite value appearing in a
// loss, reward, or advantage computation.
type NumericInstabilityError struct {
	Op       string
	Quantity string
	Index    int // -1 for scalars
	Value    float64
}

// NumericInstability returns a new *NumericInstabilityError
func NumericInstability(op, quantity string, index int,
	value float64) error {
	return &NumericInstabilityError{op, quantity, index, value}
}

// Error satisfies the error interface
func (e *NumericInstabilityError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("%v: non-finite %v (%v)", e.Op, e.Quantity,
			e.Value)
	}
	return fmt.Sprintf("%v: non-finite %v at index %v (%v)", e.Op,
		e.Quantity, e.Index, e.Value)
}

// DimensionMismatchError reports that two batches which must be used
// together disagree in the shape of some field.
type DimensionMismatchError struct {
	Op    string
	Field string
	Want  int
	Have  int
}

// DimensionMismatch returns a new *DimensionMismatchError
func DimensionMismatch(op, field string, want, have int) error {
	return &DimensionMismatchError{op, field, want, have}
}

// Error satisfies the error interface
func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("%v: dimension mismatch in %v \n\twant(%v)\n\thave(%v)",
		e.Op, e.Field, e.Want, e.Have)
}

// IsConfiguration returns whether err is or wraps a
// *ConfigurationError
func IsConfiguration(err error) bool {
	var target *ConfigurationError
	return errors.As(err, &target)
}

// IsNumericInstability returns whether err is or wraps a
// *NumericInstabilityError
func IsNumericInstability(err error) bool {
	var target *NumericInstabilityError
	return errors.As(err, &target)
}

// IsDimensionMismatch returns whether err is or wraps a
// *DimensionMismatchError
func IsDimensionMismatch(err error) bool {
	var target *DimensionMismatchError
	return errors.As(err, &target)
}
