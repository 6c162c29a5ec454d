// Package types contains the read shapes shared by the service and the API.
package types

import (
	"time"

	"github.com/okian/pairank/internal/domain/ledger"
	"github.com/okian/pairank/internal/domain/model"
	"github.com/okian/pairank/internal/domain/reliability"
)

// Entry represents a rankings row.
type Entry struct {
	Rank      int     `json:"rank"`
	ItemID    string  `json:"item_id"`
	Label     string  `json:"label,omitempty"`
	Rating    float64 `json:"rating"`
	Deviation float64 `json:"deviation,omitempty"`
	Votes     int     `json:"votes"`
}

// Page is a slice of the rankings plus the number of ranked items.
type Page struct {
	Entries []Entry `json:"entries"`
	Total   int     `json:"total"`
	Offset  int     `json:"offset"`
	Limit   int     `json:"limit"`
}

// Item is the API view of a model.Item.
type Item struct {
	ID         string  `json:"id"`
	Label      string  `json:"label,omitempty"`
	Rating     float64 `json:"rating"`
	Deviation  float64 `json:"deviation"`
	Volatility float64 `json:"volatility"`
	Votes      int     `json:"votes"`
}

// FromItem converts a domain item.
func FromItem(it model.Item) Item {
	return Item{
		ID:         it.ID,
		Label:      it.Label,
		Rating:     it.Rating.Value,
		Deviation:  it.Rating.Deviation,
		Volatility: it.Rating.Volatility,
		Votes:      it.Votes,
	}
}

// Pair is the next comparison to present. Left and Right are already in
// display order.
type Pair struct {
	Left        Item    `json:"left"`
	Right       Item    `json:"right"`
	Reliability float64 `json:"reliability"`
}

// Vote is the API view of a ledger event.
type Vote struct {
	Seq          uint64     `json:"seq"`
	WinnerID     string     `json:"winner_id"`
	LoserID      string     `json:"loser_id"`
	Draw         bool       `json:"draw,omitempty"`
	WinnerBefore float64    `json:"winner_before"`
	LoserBefore  float64    `json:"loser_before"`
	RecordedAt   time.Time  `json:"recorded_at"`
	RemovedAt    *time.Time `json:"removed_at,omitempty"`
	Supersedes   uint64     `json:"supersedes,omitempty"`
}

// FromEvent converts a ledger event.
func FromEvent(e ledger.Event) Vote {
	return Vote{
		Seq:          e.Seq,
		WinnerID:     e.WinnerID,
		LoserID:      e.LoserID,
		Draw:         e.Draw,
		WinnerBefore: e.WinnerBefore.Value,
		LoserBefore:  e.LoserBefore.Value,
		RecordedAt:   e.RecordedAt,
		RemovedAt:    e.RemovedAt,
		Supersedes:   e.Supersedes,
	}
}

// FromEvents converts a slice of ledger events.
func FromEvents(events []ledger.Event) []Vote {
	out := make([]Vote, len(events))
	for i, e := range events {
		out[i] = FromEvent(e)
	}
	return out
}

// VoteResult is returned after a vote mutation.
type VoteResult struct {
	Vote        Vote    `json:"vote"`
	Winner      Item    `json:"winner"`
	Loser       Item    `json:"loser"`
	Reliability float64 `json:"reliability"`
	Duplicate   bool    `json:"duplicate,omitempty"`
}

// Reliability is the API view of a reliability.Report.
type Reliability struct {
	Value             float64 `json:"value"`
	Phase             string  `json:"phase"`
	TotalVotes        int     `json:"total_votes"`
	ItemCount         int     `json:"item_count"`
	VotesToTransition int     `json:"votes_to_transition"`
	VotesToCeiling    int     `json:"votes_to_ceiling"`
	Reliable          bool    `json:"reliable"`
}

// FromReport converts a reliability report.
func FromReport(r reliability.Report) Reliability {
	return Reliability{
		Value:             r.Value,
		Phase:             string(r.Phase),
		TotalVotes:        r.TotalVotes,
		ItemCount:         r.ItemCount,
		VotesToTransition: r.VotesToTransition,
		VotesToCeiling:    r.VotesToCeiling,
		Reliable:          r.Reliable,
	}
}
