// Package ledger keeps the ordered, append-only record of votes.
//
// The ledger is the source of truth of a session: item ratings are a pure
// function of the baseline collection and the live events, replayed in
// (Anchor, Seq) order. A Ledger is not safe for concurrent use; the owner
// serializes access.
package ledger

import (
	"context"
	"fmt"
	"iter"
	"sort"
	"time"

	"github.com/okian/pairank/internal/domain/model"
)

// Ledger is the ordered vote log including tombstones.
type Ledger struct {
	events []Event           // sorted by (Anchor, Seq)
	anchor map[uint64]uint64 // Seq -> Anchor
	next   uint64            // next Seq to assign
	live   int
}

// New returns an empty ledger.
func New() *Ledger {
	return &Ledger{
		anchor: make(map[uint64]uint64),
		next:   1,
	}
}

// Restore rebuilds a ledger from persisted events in any order.
func Restore(events []Event) (*Ledger, error) {
	l := New()
	l.events = make([]Event, 0, len(events))
	for _, e := range events {
		if _, dup := l.anchor[e.Seq]; dup || e.Seq == 0 {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateSeq, e.Seq)
		}
		if e.Anchor == 0 {
			e.Anchor = e.Seq
		}
		l.anchor[e.Seq] = e.Anchor
		l.events = append(l.events, e.clone())
		if e.Seq >= l.next {
			l.next = e.Seq + 1
		}
		if e.Live() {
			l.live++
		}
	}
	sort.Slice(l.events, func(i, j int) bool { return l.events[i].before(l.events[j]) })
	return l, nil
}

// Record appends a new vote at the end of the ledger.
func (l *Ledger) Record(winnerID, loserID string, draw bool, winnerBefore, loserBefore model.Rating, at time.Time) Event {
	seq := l.next
	l.next++
	e := Event{
		Seq:          seq,
		Anchor:       seq,
		WinnerID:     winnerID,
		LoserID:      loserID,
		Draw:         draw,
		WinnerBefore: winnerBefore,
		LoserBefore:  loserBefore,
		RecordedAt:   at,
	}
	l.anchor[seq] = seq
	l.events = append(l.events, e)
	l.live++
	return e
}

// Get returns the event with the given id, live or removed.
func (l *Ledger) Get(seq uint64) (Event, bool) {
	i, ok := l.find(seq)
	if !ok {
		return Event{}, false
	}
	return l.events[i].clone(), true
}

func (l *Ledger) find(seq uint64) (int, bool) {
	anchor, ok := l.anchor[seq]
	if !ok {
		return 0, false
	}
	key := Event{Seq: seq, Anchor: anchor}
	i := sort.Search(len(l.events), func(i int) bool { return !l.events[i].before(key) })
	if i == len(l.events) || l.events[i].Seq != seq {
		return 0, false
	}
	return i, true
}

// Remove tombstones a live event and returns it.
func (l *Ledger) Remove(seq uint64, at time.Time) (Event, error) {
	i, ok := l.find(seq)
	if !ok || !l.events[i].Live() {
		return Event{}, fmt.Errorf("%w: %d", ErrNotFound, seq)
	}
	ts := at
	l.events[i].RemovedAt = &ts
	l.live--
	return l.events[i].clone(), nil
}

// Replace tombstones event seq and records the corrected vote at the same
// replay position. The returned event carries a fresh Seq and Supersedes
// pointing at the old one.
func (l *Ledger) Replace(seq uint64, winnerID, loserID string, draw bool, winnerBefore, loserBefore model.Rating, at time.Time) (Event, error) {
	old, err := l.Remove(seq, at)
	if err != nil {
		return Event{}, err
	}

	e := Event{
		Seq:          l.next,
		Anchor:       old.Anchor,
		WinnerID:     winnerID,
		LoserID:      loserID,
		Draw:         draw,
		WinnerBefore: winnerBefore,
		LoserBefore:  loserBefore,
		RecordedAt:   at,
		Supersedes:   old.Seq,
	}
	l.next++

	i := sort.Search(len(l.events), func(i int) bool { return !l.events[i].before(e) })
	l.events = append(l.events, Event{})
	copy(l.events[i+1:], l.events[i:])
	l.events[i] = e
	l.anchor[e.Seq] = e.Anchor
	l.live++
	return e, nil
}

// RemoveReferencing tombstones every live event involving itemID and
// returns them in replay order.
func (l *Ledger) RemoveReferencing(itemID string, at time.Time) []Event {
	var removed []Event
	for i := range l.events {
		e := &l.events[i]
		if !e.Live() || !e.References(itemID) {
			continue
		}
		ts := at
		e.RemovedAt = &ts
		l.live--
		removed = append(removed, e.clone())
	}
	return removed
}

// Events yields the live events in replay order. The sequence can be
// iterated any number of times.
func (l *Ledger) Events() iter.Seq[Event] {
	return func(yield func(Event) bool) {
		for _, e := range l.events {
			if !e.Live() {
				continue
			}
			if !yield(e) {
				return
			}
		}
	}
}

// History returns the live events in replay order.
func (l *Ledger) History() []Event {
	out := make([]Event, 0, l.live)
	for e := range l.Events() {
		out = append(out, e)
	}
	return out
}

// Audit returns every event including tombstones in replay order.
func (l *Ledger) Audit() []Event {
	out := make([]Event, len(l.events))
	for i, e := range l.events {
		out[i] = e.clone()
	}
	return out
}

// Len returns the number of live events.
func (l *Ledger) Len() int { return l.live }

// Last returns the live event replayed last.
func (l *Ledger) Last() (Event, bool) {
	for i := len(l.events) - 1; i >= 0; i-- {
		if l.events[i].Live() {
			return l.events[i], true
		}
	}
	return Event{}, false
}

// NextSeq returns the id the next recorded event will get.
func (l *Ledger) NextSeq() uint64 { return l.next }

// Clone returns an independent copy of l.
func (l *Ledger) Clone() *Ledger {
	c := &Ledger{
		events: l.Audit(),
		anchor: make(map[uint64]uint64, len(l.anchor)),
		next:   l.next,
		live:   l.live,
	}
	for k, v := range l.anchor {
		c.anchor[k] = v
	}
	return c
}

// StepFunc applies one live event to items in place.
type StepFunc func(items model.Collection, e Event) error

// Replay applies every live event to a copy of baseline in replay order.
// baseline is not modified. On error or cancellation no partial result is
// returned.
func (l *Ledger) Replay(ctx context.Context, baseline model.Collection, step StepFunc) (model.Collection, error) {
	items := baseline.Clone()
	for e := range l.Events() {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("replay at vote %d: %w", e.Seq, err)
		}
		if err := step(items, e); err != nil {
			return nil, fmt.Errorf("replay vote %d: %w", e.Seq, err)
		}
	}
	return items, nil
}
