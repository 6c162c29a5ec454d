package rating

import "errors"

// Sentinel error kinds for rating updates.
var (
	// ErrNonFinite is returned when an input or a computed rating is NaN or
	// infinite. The update must not be committed.
	ErrNonFinite = errors.New("non-finite rating")
	// ErrInvalidOutcome is returned for an outcome outside AWins/BWins/Draw.
	ErrInvalidOutcome = errors.New("invalid outcome")
	// ErrUnknownModel is returned by ParseKind and New for unknown model names.
	ErrUnknownModel = errors.New("unknown rating model")
)
