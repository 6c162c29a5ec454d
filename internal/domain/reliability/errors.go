package reliability

import "errors"

var (
	// ErrUnreachable is returned when a target reliability lies at or above
	// the curve's asymptote.
	ErrUnreachable = errors.New("target reliability unreachable")
	// ErrInvalidItemCount is returned for collections with no items.
	ErrInvalidItemCount = errors.New("item count must be positive")
	// ErrInvalidCurve is returned by New when the curve or thresholds are
	// inconsistent.
	ErrInvalidCurve = errors.New("invalid reliability curve")
)
