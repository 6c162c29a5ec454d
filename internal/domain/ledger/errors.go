package ledger

import "errors"

var (
	// ErrNotFound is returned for unknown or already removed event ids.
	ErrNotFound = errors.New("vote not found")
	// ErrDuplicateSeq is returned by Restore when two events share an id.
	ErrDuplicateSeq = errors.New("duplicate vote id")
)
