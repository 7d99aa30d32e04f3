package logic

import (
	"errors"
	"fmt"
)

// ErrEmptyInput is returned when a numeric entry is terminated before any digit.
var ErrEmptyInput = errors.New("empty input")

// ErrNilConfig is returned by a scheduler that was constructed without a config.
var ErrNilConfig = errors.New("scheduler started without a channel config")

// OutOfRangeError reports a field outside its allowed bounds.
type OutOfRangeError struct {
	Field string
	Value int
	Min   int
	Max   int
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("%s %d out of range [%d, %d]", e.Field, e.Value, e.Min, e.Max)
}

// PulseNotShorterError reports a pulse that does not fit inside the interval.
type PulseNotShorterError struct {
	PulseMs    int
	IntervalMs int
}

func (e *PulseNotShorterError) Error() string {
	return fmt.Sprintf("pulse duration %d ms must be shorter than interval %d ms (max %d ms)",
		e.PulseMs, e.IntervalMs, e.IntervalMs-1)
}
