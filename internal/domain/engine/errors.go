package engine

import "errors"

var (
	// ErrUnknownItem is returned when a vote names an item that is not in
	// the collection.
	ErrUnknownItem = errors.New("unknown item")
	// ErrSelfComparison is returned when both sides of a vote are the same item.
	ErrSelfComparison = errors.New("item compared with itself")
)
