package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/pairank/internal/adapters/storage"
	"github.com/okian/pairank/internal/domain/engine"
	"github.com/okian/pairank/internal/domain/ledger"
	"github.com/okian/pairank/internal/domain/model"
	"github.com/okian/pairank/internal/domain/rating"
	"github.com/okian/pairank/pkg/logger"
	"github.com/okian/pairank/pkg/metrics"
)

// VoteRequest is one comparison outcome. For a draw WinnerID and LoserID
// are just the two sides.
type VoteRequest struct {
	WinnerID  string
	LoserID   string
	Draw      bool
	RequestID string // optional idempotency key
}

// VoteResult is the outcome of a recorded vote.
type VoteResult struct {
	Event       ledger.Event
	Winner      model.Item
	Loser       model.Item
	Reliability float64
	Duplicate   bool // RequestID was seen before; nothing was recorded
}

// NextPair returns the next two items to compare in display order.
func (s *Service) NextPair(ctx context.Context) (model.Item, model.Item, float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return model.Item{}, model.Item{}, 0, ErrNotStarted
	}

	start := time.Now()
	r := s.reliabilityLocked()
	var history []ledger.Event
	if last, ok := s.ledger.Last(); ok {
		history = []ledger.Event{last}
	}
	a, b, err := s.selector.NextPair(s.items, history, r)
	if err != nil {
		return model.Item{}, model.Item{}, r, err
	}
	metrics.RecordPairSelection(time.Since(start))
	s.logger.Debug(ctx, "next pair", logger.String("left", a.ID), logger.String("right", b.ID))
	return a, b, r, nil
}

// Vote records one outcome. A repeated RequestID returns the vote recorded
// for it the first time without changing anything.
func (s *Service) Vote(ctx context.Context, req VoteRequest) (VoteResult, error) {
	start := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return VoteResult{}, ErrNotStarted
	}

	if req.RequestID != "" {
		if prev, seen := s.deduper.Remember(ctx, req.RequestID, s.ledger.NextSeq()); seen {
			if e, ok := s.ledger.Get(prev); ok {
				metrics.RecordVoteDuplicate()
				s.logger.Debug(ctx, "duplicate vote request", logger.String("request_id", req.RequestID), logger.Uint64("seq", prev))
				return VoteResult{
					Event:       e,
					Winner:      s.items[e.WinnerID],
					Loser:       s.items[e.LoserID],
					Reliability: s.reliabilityLocked(),
					Duplicate:   true,
				}, nil
			}
			// The remembered seq never reached the ledger; treat the request as new.
			s.deduper.Forget(ctx, req.RequestID)
			s.deduper.Remember(ctx, req.RequestID, s.ledger.NextSeq())
		}
	}

	res, err := s.vote(ctx, req)
	if err != nil {
		if req.RequestID != "" {
			s.deduper.Forget(ctx, req.RequestID)
		}
		return VoteResult{}, err
	}
	metrics.RecordVote(req.Draw, time.Since(start))
	s.checkReplay(ctx)
	return res, nil
}

func (s *Service) vote(ctx context.Context, req VoteRequest) (VoteResult, error) {
	if err := s.checkPair(req.WinnerID, req.LoserID); err != nil {
		return VoteResult{}, err
	}

	items := s.items.Clone()
	wb, lb := items[req.WinnerID].Rating, items[req.LoserID].Rating
	if err := s.engine.Apply(items, req.WinnerID, req.LoserID, req.Draw, s.ledger.Len()); err != nil {
		if errors.Is(err, rating.ErrNonFinite) {
			metrics.RecordRatingError()
		}
		return VoteResult{}, err
	}

	l := s.ledger.Clone()
	e := l.Record(req.WinnerID, req.LoserID, req.Draw, wb, lb, s.now())
	w, lo := items[req.WinnerID], items[req.LoserID]
	b := storage.Batch{Items: []model.Item{w, lo}, Events: []ledger.Event{e}}
	if err := s.commit(ctx, items, l, b, false); err != nil {
		return VoteResult{}, err
	}

	s.logger.Debug(ctx, "vote recorded",
		logger.Uint64("seq", e.Seq),
		logger.String("winner", w.ID),
		logger.String("loser", lo.ID),
		logger.Bool("draw", e.Draw),
		logger.Float64("winner_rating", w.Rating.Value),
		logger.Float64("loser_rating", lo.Rating.Value))
	return VoteResult{Event: e, Winner: w, Loser: lo, Reliability: s.reliabilityLocked()}, nil
}

// checkPair validates the two sides of a vote against the current items.
func (s *Service) checkPair(winnerID, loserID string) error {
	if winnerID == loserID {
		return fmt.Errorf("%w: %s", engine.ErrSelfComparison, winnerID)
	}
	for _, id := range []string{winnerID, loserID} {
		if _, ok := s.items[id]; !ok {
			return fmt.Errorf("%w: %s", ErrItemNotFound, id)
		}
	}
	return nil
}

// checkReplay compares the live ratings with a fresh replay every
// replayCheckEvery votes. Divergence is logged and counted, never repaired.
func (s *Service) checkReplay(ctx context.Context) {
	if s.replayCheckEvery == 0 {
		return
	}
	s.sinceLast++
	if s.sinceLast < s.replayCheckEvery {
		return
	}
	s.sinceLast = 0

	replayed, err := s.replay(ctx, "check", s.ledger, s.items)
	if err != nil {
		s.logger.Warn(ctx, "replay check failed", logger.Error(err))
		return
	}
	if diverged := engine.Diverged(s.items, replayed, divergenceTolerance); len(diverged) > 0 {
		metrics.RecordReplayDivergence()
		s.logger.Error(ctx, "live ratings diverge from ledger replay",
			logger.Int("items", len(diverged)),
			logger.String("first", diverged[0]))
	}
}

// Undo removes the vote replayed last.
func (s *Service) Undo(ctx context.Context) (ledger.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return ledger.Event{}, ErrNotStarted
	}
	last, ok := s.ledger.Last()
	if !ok {
		return ledger.Event{}, ErrNothingToUndo
	}
	return s.removeVote(ctx, last.Seq)
}

// RemoveVote tombstones vote seq and recomputes all ratings.
func (s *Service) RemoveVote(ctx context.Context, seq uint64) (ledger.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return ledger.Event{}, ErrNotStarted
	}
	return s.removeVote(ctx, seq)
}

func (s *Service) removeVote(ctx context.Context, seq uint64) (ledger.Event, error) {
	l := s.ledger.Clone()
	e, err := l.Remove(seq, s.now())
	if err != nil {
		return ledger.Event{}, err
	}
	replayed, err := s.replay(ctx, "vote_removed", l, s.items)
	if err != nil {
		return ledger.Event{}, err
	}

	b := storage.Batch{Items: changed(s.items, replayed), Events: []ledger.Event{e}}
	if err := s.commit(ctx, replayed, l, b, true); err != nil {
		return ledger.Event{}, err
	}
	s.deduper.ForgetSeq(ctx, seq)
	metrics.RecordVotesRemoved(1)
	s.logger.Info(ctx, "vote removed", logger.Uint64("seq", seq))
	return e, nil
}

// EditVote replaces vote seq with req at the same position in the ledger
// and recomputes all ratings. It returns the new event.
func (s *Service) EditVote(ctx context.Context, seq uint64, req VoteRequest) (ledger.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return ledger.Event{}, ErrNotStarted
	}
	if err := s.checkPair(req.WinnerID, req.LoserID); err != nil {
		return ledger.Event{}, err
	}

	// The replacement sits at the old vote's position, so its before
	// ratings are those seen at that point of the replay.
	prefix, err := s.engine.ReplayBefore(ctx, s.ledger, s.items, seq)
	if err != nil {
		return ledger.Event{}, err
	}
	l := s.ledger.Clone()
	wb, lb := prefix[req.WinnerID].Rating, prefix[req.LoserID].Rating
	e, err := l.Replace(seq, req.WinnerID, req.LoserID, req.Draw, wb, lb, s.now())
	if err != nil {
		return ledger.Event{}, err
	}
	old, _ := l.Get(seq)

	replayed, err := s.replay(ctx, "vote_edited", l, s.items)
	if err != nil {
		return ledger.Event{}, err
	}
	b := storage.Batch{Items: changed(s.items, replayed), Events: []ledger.Event{old, e}}
	if err := s.commit(ctx, replayed, l, b, true); err != nil {
		return ledger.Event{}, err
	}
	s.deduper.ForgetSeq(ctx, seq)
	metrics.RecordVoteEdited()
	s.logger.Info(ctx, "vote edited", logger.Uint64("seq", seq), logger.Uint64("new_seq", e.Seq))
	return e, nil
}

// Rebuild recomputes every rating from the baseline and returns the ids
// whose stored rating differed from the replay.
func (s *Service) Rebuild(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return nil, ErrNotStarted
	}

	replayed, err := s.replay(ctx, "rebuild", s.ledger, s.items)
	if err != nil {
		return nil, err
	}
	diverged := engine.Diverged(s.items, replayed, divergenceTolerance)
	if len(diverged) > 0 {
		metrics.RecordReplayDivergence()
	}
	if err := s.commit(ctx, replayed, s.ledger, storage.Batch{Items: replayed.Sorted()}, true); err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "ratings rebuilt", logger.Int("votes", s.ledger.Len()), logger.Int("diverged", len(diverged)))
	return diverged, nil
}

// changed returns the items of next that differ from prev.
func changed(prev, next model.Collection) []model.Item {
	var out []model.Item
	for _, id := range next.IDs() {
		if it := next[id]; prev[id] != it {
			out = append(out, it)
		}
	}
	return out
}
