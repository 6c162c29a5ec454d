package repository

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/okian/pairank/internal/domain/model"
	"github.com/okian/pairank/pkg/metrics"
)

// Treap-based, in-memory Store implementation.
//
// Ordering: rating DESC, then item id ASC (deterministic). "less" means
// ranks earlier, so an in-order traversal yields the rankings from best to
// worst. Nodes carry subtree sizes, which makes Rank and Page O(log n).

// treap node
type node struct {
	id     string
	rating float64
	prio   uint64
	left   *node
	right  *node
	size   int
}

func nsize(n *node) int {
	if n == nil {
		return 0
	}
	return n.size
}

func fix(n *node) {
	if n != nil {
		n.size = 1 + nsize(n.left) + nsize(n.right)
	}
}

// less returns true if (aRating, aID) ranks before (bRating, bID).
func less(aRating float64, aID string, bRating float64, bID string) bool {
	if aRating != bRating {
		return aRating > bRating
	}
	return aID < bID
}

func rotateRight(y *node) *node {
	x := y.left
	y.left = x.right
	x.right = y
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	x.right = y.left
	y.left = x
	fix(x)
	fix(y)
	return y
}

func insert(n, nd *node) *node {
	if n == nil {
		return nd
	}
	if less(nd.rating, nd.id, n.rating, n.id) {
		n.left = insert(n.left, nd)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, nd)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

func deleteNode(n *node, id string, rating float64) *node {
	if n == nil {
		return nil
	}
	switch {
	case rating == n.rating && id == n.id:
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = deleteNode(n.right, id, rating)
		} else {
			n = rotateLeft(n)
			n.left = deleteNode(n.left, id, rating)
		}
	case less(rating, id, n.rating, n.id):
		n.left = deleteNode(n.left, id, rating)
	default:
		n.right = deleteNode(n.right, id, rating)
	}
	fix(n)
	return n
}

// position returns the number of nodes ranked before (rating, id).
func position(n *node, id string, rating float64) int {
	pos := 0
	for n != nil {
		if less(rating, id, n.rating, n.id) {
			n = n.left
			continue
		}
		if n.id == id {
			return pos + nsize(n.left)
		}
		pos += nsize(n.left) + 1
		n = n.right
	}
	return pos
}

// collectRange appends up to limit nodes in rank order after skipping skip.
func collectRange(n *node, skip *int, limit int, out *[]*node) {
	if n == nil || len(*out) >= limit {
		return
	}
	if *skip >= n.size {
		*skip -= n.size
		return
	}
	collectRange(n.left, skip, limit, out)
	if len(*out) >= limit {
		return
	}
	if *skip > 0 {
		*skip--
	} else {
		*out = append(*out, n)
	}
	collectRange(n.right, skip, limit, out)
}

// TreapStore is the default Store.
type TreapStore struct {
	mu   sync.RWMutex
	root *node
	byID map[string]model.Item
	seed uint64
	rng  *rand.Rand
}

// NewTreapStore constructs an empty treap store.
func NewTreapStore(opts ...Option) *TreapStore {
	s := &TreapStore{
		byID: make(map[string]model.Item),
		seed: rand.Uint64(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.rng = rand.New(rand.NewPCG(s.seed, s.seed>>1|1))
	return s
}

// Reset implements Store.Reset.
func (s *TreapStore) Reset(_ context.Context, items model.Collection) {
	s.mu.Lock()
	s.root = nil
	s.byID = make(map[string]model.Item, len(items))
	for _, id := range items.IDs() {
		s.upsertLocked(items[id])
	}
	n := len(s.byID)
	s.mu.Unlock()

	metrics.UpdateRankedItems(n)
}

// Upsert implements Store.Upsert in O(log n) expected time.
func (s *TreapStore) Upsert(_ context.Context, item model.Item) {
	s.mu.Lock()
	s.upsertLocked(item)
	n := len(s.byID)
	s.mu.Unlock()

	metrics.UpdateRankedItems(n)
}

func (s *TreapStore) upsertLocked(item model.Item) {
	if old, ok := s.byID[item.ID]; ok {
		s.root = deleteNode(s.root, old.ID, old.Rating.Value)
	}
	s.byID[item.ID] = item
	s.root = insert(s.root, &node{id: item.ID, rating: item.Rating.Value, prio: s.rng.Uint64(), size: 1})
}

// Delete implements Store.Delete.
func (s *TreapStore) Delete(_ context.Context, itemID string) {
	s.mu.Lock()
	if old, ok := s.byID[itemID]; ok {
		s.root = deleteNode(s.root, old.ID, old.Rating.Value)
		delete(s.byID, itemID)
	}
	n := len(s.byID)
	s.mu.Unlock()

	metrics.UpdateRankedItems(n)
}

func (s *TreapStore) entry(n *node, rank int) Entry {
	it := s.byID[n.id]
	return Entry{
		Rank:      rank,
		ItemID:    it.ID,
		Label:     it.Label,
		Rating:    it.Rating.Value,
		Deviation: it.Rating.Deviation,
		Votes:     it.Votes,
	}
}

// Rank implements Store.Rank in O(log n).
func (s *TreapStore) Rank(_ context.Context, itemID string) (Entry, error) {
	start := time.Now()
	defer func() { metrics.RecordRankingQuery(time.Since(start)) }()

	s.mu.RLock()
	defer s.mu.RUnlock()

	it, ok := s.byID[itemID]
	if !ok {
		metrics.RecordErrorByComponent("repository", "not_found")
		return Entry{}, ErrNotFound
	}
	pos := position(s.root, it.ID, it.Rating.Value)
	return s.entry(&node{id: it.ID}, pos+1), nil
}

// TopN implements Store.TopN.
func (s *TreapStore) TopN(ctx context.Context, n int) ([]Entry, error) {
	if n < 1 {
		metrics.RecordErrorByComponent("repository", "invalid_limit")
		return nil, ErrInvalidLimit
	}
	out, _, err := s.Page(ctx, 0, n)
	return out, err
}

// Page implements Store.Page. Ranks are 1-based positions.
func (s *TreapStore) Page(_ context.Context, offset, limit int) ([]Entry, int, error) {
	start := time.Now()
	defer func() { metrics.RecordRankingQuery(time.Since(start)) }()

	if limit < 1 {
		metrics.RecordErrorByComponent("repository", "invalid_limit")
		return nil, 0, ErrInvalidLimit
	}
	if offset < 0 {
		metrics.RecordErrorByComponent("repository", "invalid_offset")
		return nil, 0, ErrInvalidOffset
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	nodes := make([]*node, 0, min(limit, len(s.byID)))
	skip := offset
	collectRange(s.root, &skip, limit, &nodes)

	out := make([]Entry, len(nodes))
	for i, n := range nodes {
		out[i] = s.entry(n, offset+i+1)
	}
	return out, len(s.byID), nil
}

// Count implements Store.Count.
func (s *TreapStore) Count(_ context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}
