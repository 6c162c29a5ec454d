// Package model contains domain models passed between layers.
package model

import (
	"math"
	"sort"
)

// Rating is the mutable skill estimate carried by an item.
// Deviation and Volatility are only used by the Glicko-2 model and stay at
// their initial values under the Elo variants.
type Rating struct {
	Value      float64 // skill estimate on the Elo scale
	Deviation  float64 // rating deviation (RD)
	Volatility float64 // sigma
}

// Finite reports whether every component of r is a finite number.
func (r Rating) Finite() bool {
	for _, v := range [...]float64{r.Value, r.Deviation, r.Volatility} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Item is a ranked media entry.
type Item struct {
	ID     string // stable, unique identifier
	Label  string // free-form reference to the media (path, title)
	Rating Rating
	Votes  int // comparisons this item took part in
}

// Collection is the in-memory item table shared by the engine components.
// It is always passed explicitly; the engine keeps no ambient state.
type Collection map[string]Item

// Clone returns a copy of c that can be mutated independently.
func (c Collection) Clone() Collection {
	out := make(Collection, len(c))
	for id, it := range c {
		out[id] = it
	}
	return out
}

// Reset returns a copy of c with every item back at the baseline rating and
// zero votes. Labels are preserved.
func (c Collection) Reset(baseline Rating) Collection {
	out := make(Collection, len(c))
	for id, it := range c {
		out[id] = Item{ID: it.ID, Label: it.Label, Rating: baseline}
	}
	return out
}

// TotalVotes returns the number of comparisons recorded in c. Every vote
// touches two items, so this is half the sum of item vote counts.
func (c Collection) TotalVotes() int {
	sum := 0
	for _, it := range c {
		sum += it.Votes
	}
	return sum / 2
}

// Sorted returns the items ordered by rating desc, then id asc.
func (c Collection) Sorted() []Item {
	out := make([]Item, 0, len(c))
	for _, it := range c {
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Rating.Value != out[j].Rating.Value {
			return out[i].Rating.Value > out[j].Rating.Value
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// IDs returns the item ids in ascending order. Iteration over the map is
// randomized, so callers that need determinism go through here.
func (c Collection) IDs() []string {
	ids := make([]string, 0, len(c))
	for id := range c {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
