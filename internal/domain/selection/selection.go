// Package selection chooses the next pair of items to compare.
package selection

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"

	"github.com/okian/pairank/internal/domain/ledger"
	"github.com/okian/pairank/internal/domain/model"
	"github.com/okian/pairank/pkg/logger"
)

// Defaults.
const (
	DefaultWindow     = 100.0
	DefaultTransition = 85.0
)

// Selector picks pairs in three stages:
//
//  1. coverage: the first item comes from the least-voted tier. While at
//     least two items have no votes the opponent is another unvoted item,
//     so every item is compared within one matching round. Otherwise the
//     opponent is a representative item that already has votes.
//  2. competitiveness: once reliability reaches the transition threshold
//     opponents are limited to a rating window around the first item,
//     falling back to all candidates when the window is empty.
//  3. tie-breaking is seeded pseudo-random, and the previous pair is not
//     offered again when any alternative exists.
//
// A Selector is safe for concurrent use.
type Selector struct {
	mu         sync.Mutex
	rng        *rand.Rand
	window     float64
	transition float64
	logger     logger.Logger
}

// Option configures a Selector.
type Option func(*Selector)

// WithSeed makes selection reproducible.
func WithSeed(seed uint64) Option {
	return func(s *Selector) {
		s.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
}

// WithWindow sets the competitiveness window in rating points.
func WithWindow(points float64) Option {
	return func(s *Selector) {
		if points > 0 {
			s.window = points
		}
	}
}

// WithTransition sets the reliability at which pairing becomes competitive.
func WithTransition(pct float64) Option {
	return func(s *Selector) {
		if pct > 0 {
			s.transition = pct
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Selector) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a Selector. Without WithSeed the generator is seeded randomly.
func New(opts ...Option) *Selector {
	s := &Selector{
		rng:        rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		window:     DefaultWindow,
		transition: DefaultTransition,
		logger:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NextPair returns the next two items to compare. history is the live vote
// history in replay order; only its last event is consulted.
func (s *Selector) NextPair(items model.Collection, history []ledger.Event, reliability float64) (model.Item, model.Item, error) {
	if len(items) < 2 {
		return model.Item{}, model.Item{}, fmt.Errorf("%w: have %d", ErrInsufficientItems, len(items))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Sorted ids keep a seeded selector reproducible across map iteration orders.
	ids := items.IDs()

	minVotes := math.MaxInt
	for _, id := range ids {
		minVotes = min(minVotes, items[id].Votes)
	}
	least := make([]string, 0, len(ids))
	for _, id := range ids {
		if items[id].Votes == minVotes {
			least = append(least, id)
		}
	}

	first := items[least[s.rng.IntN(len(least))]]
	candidates := s.opponents(items, ids, first, minVotes)

	competitive := reliability >= s.transition
	if competitive {
		candidates = s.withinWindow(items, candidates, first)
	}

	if len(history) > 0 {
		candidates = avoidRepeat(candidates, first.ID, history[len(history)-1])
	}

	second := items[candidates[s.rng.IntN(len(candidates))]]
	if s.rng.IntN(2) == 1 {
		first, second = second, first
	}

	s.logger.Debug(context.Background(), "pair selected",
		logger.String("a", first.ID),
		logger.String("b", second.ID),
		logger.Bool("competitive", competitive),
		logger.Int("candidates", len(candidates)))
	return first, second, nil
}

// opponents returns the coverage-stage candidates for first.
func (s *Selector) opponents(items model.Collection, ids []string, first model.Item, minVotes int) []string {
	var unvoted, representative, voted, others []string
	for _, id := range ids {
		if id == first.ID {
			continue
		}
		it := items[id]
		others = append(others, id)
		switch {
		case it.Votes == 0:
			unvoted = append(unvoted, id)
		case it.Votes > minVotes:
			representative = append(representative, id)
			voted = append(voted, id)
		default:
			voted = append(voted, id)
		}
	}

	switch {
	case first.Votes == 0 && len(unvoted) > 0:
		return unvoted
	case len(representative) > 0:
		return representative
	case len(voted) > 0:
		return voted
	default:
		return others
	}
}

func (s *Selector) withinWindow(items model.Collection, candidates []string, first model.Item) []string {
	near := make([]string, 0, len(candidates))
	for _, id := range candidates {
		if math.Abs(items[id].Rating.Value-first.Rating.Value) <= s.window {
			near = append(near, id)
		}
	}
	if len(near) == 0 {
		return candidates
	}
	return near
}

// avoidRepeat drops the partner that would recreate the previous pair.
func avoidRepeat(candidates []string, firstID string, prev ledger.Event) []string {
	var partner string
	switch firstID {
	case prev.WinnerID:
		partner = prev.LoserID
	case prev.LoserID:
		partner = prev.WinnerID
	default:
		return candidates
	}
	if len(candidates) < 2 {
		return candidates
	}
	out := make([]string, 0, len(candidates))
	for _, id := range candidates {
		if id != partner {
			out = append(out, id)
		}
	}
	if len(out) == 0 {
		return candidates
	}
	return out
}
