package storage

import "errors"

var (
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("store closed")
	// ErrMigrate wraps schema migration failures.
	ErrMigrate = errors.New("schema migration failed")
)
