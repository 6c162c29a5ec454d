package ledger

import (
	"time"

	"github.com/okian/pairank/internal/domain/model"
)

// Event is one recorded comparison. Events are immutable once recorded:
// removal sets RemovedAt, and an edit removes the old event and records a
// new one at the same position.
type Event struct {
	Seq    uint64 // unique id, monotonically increasing, never reused
	Anchor uint64 // replay position; equals Seq unless the event replaced another

	WinnerID string
	LoserID  string
	Draw     bool // WinnerID/LoserID are then just the two sides

	// Ratings of both sides when the vote was cast. Kept for auditing only;
	// replay recomputes everything from the baseline.
	WinnerBefore model.Rating
	LoserBefore  model.Rating

	RecordedAt time.Time
	RemovedAt  *time.Time
	Supersedes uint64 // Seq of the event this one replaced, 0 if none
}

// Live reports whether the event still counts.
func (e Event) Live() bool { return e.RemovedAt == nil }

// References reports whether the event involves itemID.
func (e Event) References(itemID string) bool {
	return e.WinnerID == itemID || e.LoserID == itemID
}

// before reports whether e is replayed before o.
func (e Event) before(o Event) bool {
	if e.Anchor != o.Anchor {
		return e.Anchor < o.Anchor
	}
	return e.Seq < o.Seq
}

func (e Event) clone() Event {
	if e.RemovedAt != nil {
		at := *e.RemovedAt
		e.RemovedAt = &at
	}
	return e
}
