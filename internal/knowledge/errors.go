package knowledge

import "errors"

// Registry errors.
var (
	ErrContextNotFound   = errors.New("context not found")
	ErrInvalidConfidence = errors.New("confidence must be within [0, 1]")
)
