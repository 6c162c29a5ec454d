// Package dedupe tracks client request ids so that a retried vote
// submission is answered with the vote it already produced.
package dedupe

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"
)

// Deduper maps request ids to the vote id they produced.
type Deduper interface {
	// Remember atomically records id -> seq unless id is already known.
	// When it is, the previously recorded seq is returned with seen=true.
	Remember(ctx context.Context, id string, seq uint64) (prev uint64, seen bool)

	// Forget drops id, for example when the vote it produced was removed
	// or the unit of work that recorded it failed.
	Forget(ctx context.Context, id string)

	// ForgetSeq drops every id that produced seq.
	ForgetSeq(ctx context.Context, seq uint64)

	Size() int64
}

type entry struct {
	id  string
	seq uint64
}

// inMemoryDeduper evicts the oldest request ids first once maxSize is
// reached. maxSize <= 0 means unbounded.
type inMemoryDeduper struct {
	mu      sync.Mutex
	seen    map[string]*list.Element
	order   *list.List // front = oldest
	maxSize int
	size    atomic.Int64
}

// NewInMemoryDeduper creates a new in-memory deduper.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{
		maxSize: 50000,
		seen:    make(map[string]*list.Element),
		order:   list.New(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *inMemoryDeduper) Remember(_ context.Context, id string, seq uint64) (uint64, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if el, ok := d.seen[id]; ok {
		return el.Value.(entry).seq, true
	}
	if d.maxSize > 0 && d.order.Len() >= d.maxSize {
		d.removeLocked(d.order.Front())
	}
	d.seen[id] = d.order.PushBack(entry{id: id, seq: seq})
	d.size.Add(1)
	return 0, false
}

func (d *inMemoryDeduper) Forget(_ context.Context, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if el, ok := d.seen[id]; ok {
		d.removeLocked(el)
	}
}

func (d *inMemoryDeduper) ForgetSeq(_ context.Context, seq uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for el := d.order.Front(); el != nil; {
		next := el.Next()
		if el.Value.(entry).seq == seq {
			d.removeLocked(el)
		}
		el = next
	}
}

// removeLocked must be called with d.mu held.
func (d *inMemoryDeduper) removeLocked(el *list.Element) {
	if el == nil {
		return
	}
	delete(d.seen, el.Value.(entry).id)
	d.order.Remove(el)
	d.size.Add(-1)
}

// Size returns the current number of entries in the deduper.
func (d *inMemoryDeduper) Size() int64 {
	return d.size.Load()
}
