// Package repository holds the read-side rankings index.
package repository

import (
	"context"

	"github.com/okian/pairank/internal/domain/model"
)

// Entry is one row of the rankings.
type Entry struct {
	Rank      int
	ItemID    string
	Label     string
	Rating    float64
	Deviation float64
	Votes     int
}

// Store serves ranking queries over the current item ratings.
type Store interface {
	// Reset replaces the whole index with items.
	Reset(ctx context.Context, items model.Collection)
	// Upsert inserts or repositions one item.
	Upsert(ctx context.Context, item model.Item)
	// Delete drops an item. Unknown ids are ignored.
	Delete(ctx context.Context, itemID string)

	// Rank returns the position of an item. ErrNotFound if unknown.
	Rank(ctx context.Context, itemID string) (Entry, error)
	// TopN returns the first n entries ordered by rating desc.
	TopN(ctx context.Context, n int) ([]Entry, error)
	// Page returns limit entries starting at offset plus the total count.
	Page(ctx context.Context, offset, limit int) ([]Entry, int, error)
	// Count returns the number of indexed items.
	Count(ctx context.Context) int
}
