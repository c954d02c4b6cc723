package engine

import "errors"

var (
	// ErrInvalidParams covers bad ranges and malformed operation inputs.
	ErrInvalidParams = errors.New("invalid operation parameters")

	// ErrUnknownName covers enum-like names (fonts, effects, masks,
	// transitions) absent from the configured capability tables.
	ErrUnknownName = errors.New("unknown capability name")
)
