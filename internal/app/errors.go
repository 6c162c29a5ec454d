package service

import "errors"

var (
	// ErrNotStarted is returned by operations called before Start.
	ErrNotStarted = errors.New("service not started")
	// ErrItemNotFound is returned for unknown item ids.
	ErrItemNotFound = errors.New("item not found")
	// ErrDuplicateItem is returned when adding an id that already exists.
	ErrDuplicateItem = errors.New("item already exists")
	// ErrInvalidItem is returned for items without an id.
	ErrInvalidItem = errors.New("invalid item")
	// ErrNothingToUndo is returned by Undo on an empty ledger.
	ErrNothingToUndo = errors.New("no vote to undo")
)
