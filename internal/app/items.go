package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/okian/pairank/internal/adapters/storage"
	"github.com/okian/pairank/internal/domain/ledger"
	"github.com/okian/pairank/internal/domain/model"
	"github.com/okian/pairank/pkg/logger"
	"github.com/okian/pairank/pkg/metrics"
)

// NewItem describes an item to add.
type NewItem struct {
	ID    string
	Label string
}

// AddItems adds items at the baseline rating. The item count feeds the
// reliability figure, so every rating is recomputed by a replay.
func (s *Service) AddItems(ctx context.Context, add []NewItem) ([]model.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return nil, ErrNotStarted
	}

	items := s.items.Clone()
	for _, n := range add {
		if strings.TrimSpace(n.ID) == "" {
			return nil, fmt.Errorf("%w: empty id", ErrInvalidItem)
		}
		if _, ok := items[n.ID]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateItem, n.ID)
		}
		items[n.ID] = s.engine.NewItem(n.ID, n.Label)
	}
	if len(add) == 0 {
		return nil, nil
	}

	replayed, err := s.replay(ctx, "items_added", s.ledger, items)
	if err != nil {
		return nil, err
	}
	if err := s.commit(ctx, replayed, s.ledger, storage.Batch{Items: replayed.Sorted()}, true); err != nil {
		return nil, err
	}

	out := make([]model.Item, len(add))
	for i, n := range add {
		out[i] = replayed[n.ID]
	}
	s.logger.Info(ctx, "items added", logger.Int("added", len(add)), logger.Int("items", len(replayed)))
	return out, nil
}

// RemoveItem drops an item and tombstones every live vote that references
// it, then recomputes all ratings. It returns the tombstoned events.
func (s *Service) RemoveItem(ctx context.Context, id string) ([]ledger.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return nil, ErrNotStarted
	}
	if _, ok := s.items[id]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrItemNotFound, id)
	}

	l := s.ledger.Clone()
	removed := l.RemoveReferencing(id, s.now())

	items := s.items.Clone()
	delete(items, id)
	replayed, err := s.replay(ctx, "item_removed", l, items)
	if err != nil {
		return nil, err
	}

	b := storage.Batch{Items: replayed.Sorted(), DeleteItems: []string{id}, Events: removed}
	if err := s.commit(ctx, replayed, l, b, true); err != nil {
		return nil, err
	}
	for _, e := range removed {
		s.deduper.ForgetSeq(ctx, e.Seq)
	}
	if len(removed) > 0 {
		metrics.RecordVotesRemoved(len(removed))
	}
	s.logger.Info(ctx, "item removed", logger.String("item", id), logger.Int("votes_removed", len(removed)))
	return removed, nil
}

// Item returns one item.
func (s *Service) Item(_ context.Context, id string) (model.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return model.Item{}, ErrNotStarted
	}
	it, ok := s.items[id]
	if !ok {
		return model.Item{}, fmt.Errorf("%w: %s", ErrItemNotFound, id)
	}
	return it, nil
}

// Items returns all items ordered by rating desc, then id.
func (s *Service) Items(_ context.Context) []model.Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil
	}
	return s.items.Sorted()
}
