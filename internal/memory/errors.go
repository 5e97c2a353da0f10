package memory

import "errors"

// Ingestion errors.
var (
	ErrTooFewPoints    = errors.New("stroke needs at least 2 points")
	ErrInvalidState    = errors.New("invalid stroke state")
	ErrInvalidPlan     = errors.New("invalid plan")
	ErrInvalidSnapshot = errors.New("invalid snapshot")
)
