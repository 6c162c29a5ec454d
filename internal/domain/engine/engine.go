// Package engine binds a rating model and the reliability estimator into
// the single vote step used both for live votes and for ledger replay.
// Sharing the step keeps live state bit-identical to a replay.
package engine

import (
	"context"
	"fmt"
	"math"

	"github.com/okian/pairank/internal/domain/ledger"
	"github.com/okian/pairank/internal/domain/model"
	"github.com/okian/pairank/internal/domain/rating"
	"github.com/okian/pairank/internal/domain/reliability"
)

// Engine applies votes to a collection.
type Engine struct {
	model     rating.Model
	estimator *reliability.Estimator
	initial   model.Rating
}

// New creates an Engine. initial is the rating every item starts from.
func New(m rating.Model, est *reliability.Estimator, initial model.Rating) *Engine {
	return &Engine{model: m, estimator: est, initial: initial}
}

// Model returns the rating model.
func (e *Engine) Model() rating.Model { return e.model }

// Estimator returns the reliability estimator.
func (e *Engine) Estimator() *reliability.Estimator { return e.estimator }

// Initial returns the starting rating of new items.
func (e *Engine) Initial() model.Rating { return e.initial }

// NewItem returns an item at the initial rating with no votes.
func (e *Engine) NewItem(id, label string) model.Item {
	return model.Item{ID: id, Label: label, Rating: e.initial}
}

// Reliability returns the calculated reliability of items after totalVotes.
func (e *Engine) Reliability(totalVotes int, items model.Collection) float64 {
	return e.estimator.Calculate(totalVotes, len(items))
}

// Apply folds one comparison into items in place. totalVotes is the number
// of live votes that precede this one. On error items is left untouched.
func (e *Engine) Apply(items model.Collection, winnerID, loserID string, draw bool, totalVotes int) error {
	if winnerID == loserID {
		return fmt.Errorf("%w: %s", ErrSelfComparison, winnerID)
	}
	w, ok := items[winnerID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownItem, winnerID)
	}
	l, ok := items[loserID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownItem, loserID)
	}

	outcome := rating.AWins
	if draw {
		outcome = rating.Draw
	}
	c := rating.Context{
		TotalVotes:  totalVotes,
		ItemCount:   len(items),
		Reliability: e.estimator.Calculate(totalVotes, len(items)),
	}

	nw, nl, err := e.model.Update(w.Rating, l.Rating, outcome, c)
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", winnerID, loserID, err)
	}

	w.Rating, l.Rating = nw, nl
	w.Votes++
	l.Votes++
	items[winnerID] = w
	items[loserID] = l
	return nil
}

// Replay recomputes every rating of items from the baseline by applying the
// live events of l in order. The result carries items' ids and labels.
func (e *Engine) Replay(ctx context.Context, l *ledger.Ledger, items model.Collection) (model.Collection, error) {
	applied := 0
	return l.Replay(ctx, items.Reset(e.initial), func(c model.Collection, ev ledger.Event) error {
		if err := e.Apply(c, ev.WinnerID, ev.LoserID, ev.Draw, applied); err != nil {
			return err
		}
		applied++
		return nil
	})
}

// ReplayBefore recomputes items from the baseline using only the live
// events that precede seq in replay order. It gives the ratings a vote at
// seq's position saw. ledger.ErrNotFound if seq is not live.
func (e *Engine) ReplayBefore(ctx context.Context, l *ledger.Ledger, items model.Collection, seq uint64) (model.Collection, error) {
	c := items.Reset(e.initial)
	applied := 0
	for ev := range l.Events() {
		if ev.Seq == seq {
			return c, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("replay at vote %d: %w", ev.Seq, err)
		}
		if err := e.Apply(c, ev.WinnerID, ev.LoserID, ev.Draw, applied); err != nil {
			return nil, fmt.Errorf("replay vote %d: %w", ev.Seq, err)
		}
		applied++
	}
	return nil, fmt.Errorf("%w: %d", ledger.ErrNotFound, seq)
}

// Diverged lists the ids whose rating or vote count in got differs from
// want by more than tolerance.
func Diverged(want, got model.Collection, tolerance float64) []string {
	var ids []string
	for _, id := range want.IDs() {
		w := want[id]
		g, ok := got[id]
		if !ok || w.Votes != g.Votes ||
			math.Abs(w.Rating.Value-g.Rating.Value) > tolerance ||
			math.Abs(w.Rating.Deviation-g.Rating.Deviation) > tolerance {
			ids = append(ids, id)
		}
	}
	for _, id := range got.IDs() {
		if _, ok := want[id]; !ok {
			ids = append(ids, id)
		}
	}
	return ids
}
