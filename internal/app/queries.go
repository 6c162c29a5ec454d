package service

import (
	"context"
	"fmt"

	"github.com/okian/pairank/internal/adapters/repository"
	"github.com/okian/pairank/internal/domain/ledger"
	"github.com/okian/pairank/internal/domain/reliability"
	"github.com/okian/pairank/internal/domain/types"
)

func toEntry(e repository.Entry) types.Entry {
	return types.Entry{
		Rank:      e.Rank,
		ItemID:    e.ItemID,
		Label:     e.Label,
		Rating:    e.Rating,
		Deviation: e.Deviation,
		Votes:     e.Votes,
	}
}

// Rankings returns limit entries starting at offset, best first.
func (s *Service) Rankings(ctx context.Context, offset, limit int) (types.Page, error) {
	if !s.isStarted() {
		return types.Page{}, ErrNotStarted
	}
	entries, total, err := s.rankings.Page(ctx, offset, limit)
	if err != nil {
		return types.Page{}, err
	}

	page := types.Page{Entries: make([]types.Entry, len(entries)), Total: total, Offset: offset, Limit: limit}
	for i, e := range entries {
		page.Entries[i] = toEntry(e)
	}
	return page, nil
}

// TopN returns the n best items.
func (s *Service) TopN(ctx context.Context, n int) ([]types.Entry, error) {
	page, err := s.Rankings(ctx, 0, n)
	return page.Entries, err
}

// Rank returns the rankings entry of one item.
func (s *Service) Rank(ctx context.Context, itemID string) (types.Entry, error) {
	if !s.isStarted() {
		return types.Entry{}, ErrNotStarted
	}
	e, err := s.rankings.Rank(ctx, itemID)
	if err != nil {
		return types.Entry{}, err
	}
	return toEntry(e), nil
}

// Reliability reports the current reliability of the session.
func (s *Service) Reliability(_ context.Context) (reliability.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return reliability.Report{}, ErrNotStarted
	}
	return s.engine.Estimator().Report(s.ledger.Len(), len(s.items)), nil
}

// History returns the live votes in replay order, or every event including
// tombstones when includeRemoved is set.
func (s *Service) History(_ context.Context, includeRemoved bool) ([]ledger.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, ErrNotStarted
	}
	if includeRemoved {
		return s.ledger.Audit(), nil
	}
	return s.ledger.History(), nil
}

// VoteBySeq returns one ledger event, live or removed.
func (s *Service) VoteBySeq(_ context.Context, seq uint64) (ledger.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return ledger.Event{}, ErrNotStarted
	}
	e, ok := s.ledger.Get(seq)
	if !ok {
		return ledger.Event{}, fmt.Errorf("%w: %d", ledger.ErrNotFound, seq)
	}
	return e, nil
}

func (s *Service) isStarted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started
}
