package movingaverage

import (
	"errors"
	"fmt"
)

// ErrInvalidSize is returned when a window size is configured that is not a positive integer.
var ErrInvalidSize = errors.New("size must be a positive integer")

// ConfigurationError is returned by Build when a WeightedMovingAverage is misconfigured. It wraps the sentinel error
// describing the problem, such as ErrInvalidSize.
type ConfigurationError struct {
	// The name of the misconfigured field.
	Field string
	// The rejected value.
	Value any
	Err   error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid %s %v: %v", e.Field, e.Value, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}
