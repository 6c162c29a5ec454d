package repository

import "errors"

// Sentinel kinds for rankings errors.
var (
	ErrNotFound      = errors.New("item not ranked")
	ErrInvalidLimit  = errors.New("invalid rankings limit")
	ErrInvalidOffset = errors.New("invalid rankings offset")
)
