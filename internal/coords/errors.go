package coords

import (
	"errors"
	"fmt"
)

// Bounds errors.
var (
	ErrOutOfBounds = errors.New("coordinate outside normalized canvas")
	ErrInvalidBox  = errors.New("invalid drawing box")
)

// BoundsError records a coordinate that was clamped into [0,1].
// It is a warning: the clamped value is always used.
type BoundsError struct {
	Stroke   int     `json:"stroke"`
	Point    int     `json:"point"`
	Axis     string  `json:"axis"`
	Original float64 `json:"original"`
	Clamped  float64 `json:"clamped"`
}

func (e *BoundsError) Error() string {
	return fmt.Sprintf("stroke %d point %d: %s=%g clamped to %g", e.Stroke, e.Point, e.Axis, e.Original, e.Clamped)
}

func (e *BoundsError) Unwrap() error {
	return ErrOutOfBounds
}
