// Package rating implements the pairwise rating update models.
//
// Three interchangeable variants share the Model interface and are selected
// by Kind at session start:
//
//   - fixed:   Elo with a constant K.
//   - dynamic: Elo whose K drops from a coarse to a fine value once the
//     calculated reliability crosses the transition threshold.
//   - glicko2: Glicko-2 with a one-game rating period per comparison; the
//     per-item deviation widens the step for rarely compared items.
//
// Updates are pure: nothing is written anywhere, callers persist the result.
package rating

import (
	"fmt"
	"math"
	"strings"

	"github.com/okian/pairank/internal/domain/model"
)

// eloScale is the rating difference at which the stronger side is expected
// to win ten times as often.
const eloScale = 400.0

// Kind tags a rating model variant.
type Kind string

// Supported model kinds.
const (
	KindFixed   Kind = "fixed"
	KindDynamic Kind = "dynamic"
	KindGlicko2 Kind = "glicko2"
)

// ParseKind maps a configuration string to a Kind (case-insensitive).
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindFixed:
		return KindFixed, nil
	case KindDynamic, "":
		return KindDynamic, nil
	case KindGlicko2, "glicko":
		return KindGlicko2, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownModel, s)
}

// Outcome is the result of a comparison from A's point of view.
type Outcome int

// Comparison outcomes.
const (
	AWins Outcome = iota
	BWins
	Draw
)

// Score returns A's actual score S_A: 1, 0 or 0.5.
func (o Outcome) Score() float64 {
	switch o {
	case AWins:
		return 1
	case BWins:
		return 0
	default:
		return 0.5
	}
}

func (o Outcome) valid() bool { return o == AWins || o == BWins || o == Draw }

func (o Outcome) String() string {
	switch o {
	case AWins:
		return "a_wins"
	case BWins:
		return "b_wins"
	case Draw:
		return "draw"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Context carries the session state a model may depend on. It describes the
// collection as it was right before the vote being applied.
type Context struct {
	TotalVotes  int     // votes recorded before this one
	ItemCount   int     // items in the collection
	Reliability float64 // calculated reliability percentage before this vote
}

// Model maps two ratings and an outcome to the two updated ratings.
type Model interface {
	// Kind identifies the variant.
	Kind() Kind
	// Update returns the new ratings of A and B. It returns ErrNonFinite and
	// zero values when the result cannot be committed.
	Update(a, b model.Rating, o Outcome, c Context) (model.Rating, model.Rating, error)
}

// Expected returns A's expected score against B on the Elo curve.
func Expected(ratingA, ratingB float64) float64 {
	return 1 / (1 + math.Pow(10, (ratingB-ratingA)/eloScale))
}

// Apply is the Elo update rule: newRating = rating + K*(S-E) for each side.
// With kA == kB the two deltas cancel exactly.
func Apply(ratingA, ratingB float64, o Outcome, kA, kB float64) (float64, float64, error) {
	if !o.valid() {
		return 0, 0, ErrInvalidOutcome
	}
	if !finite(ratingA, ratingB, kA, kB) {
		return 0, 0, fmt.Errorf("rating: apply inputs: %w", ErrNonFinite)
	}

	// B's surprise is the negation of A's since E_B = 1-E_A and S_B = 1-S_A.
	d := o.Score() - Expected(ratingA, ratingB)
	newA := ratingA + kA*d
	newB := ratingB - kB*d

	if !finite(newA, newB) {
		return 0, 0, fmt.Errorf("rating: apply result: %w", ErrNonFinite)
	}
	return newA, newB, nil
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// New builds the model selected by kind.
func New(kind Kind, opts ...Option) (Model, error) {
	s := defaultSettings()
	for _, opt := range opts {
		opt(&s)
	}

	switch kind {
	case KindFixed:
		return &Fixed{K: s.kFixed}, nil
	case KindDynamic:
		return &Dynamic{Coarse: s.kCoarse, Fine: s.kFine, Transition: s.transition}, nil
	case KindGlicko2:
		return &Glicko2{Center: s.center, Tau: s.tau, Epsilon: s.epsilon}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownModel, kind)
}
