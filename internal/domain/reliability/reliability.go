// Package reliability estimates how trustworthy a ranking is from the
// number of recorded votes and the collection size alone.
package reliability

import (
	"fmt"
)

// Phase is the qualitative stage of a ranking session.
type Phase string

// Session phases.
const (
	PhaseInitial     Phase = "initial"
	PhaseDevelopment Phase = "development"
	PhaseRefinement  Phase = "refinement"
)

// maxDoublings bounds the search for an upper vote bound in RequiredVotes.
const maxDoublings = 48

// Estimator evaluates the reliability curve.
type Estimator struct {
	curve      Curve
	thresholds Thresholds
}

// Option configures an Estimator.
type Option func(*Estimator)

// WithCurve replaces the default curve.
func WithCurve(c Curve) Option {
	return func(e *Estimator) {
		e.curve = c
	}
}

// WithThresholds replaces the default thresholds.
func WithThresholds(t Thresholds) Option {
	return func(e *Estimator) {
		e.thresholds = t
	}
}

// New creates an Estimator and validates its configuration.
func New(opts ...Option) (*Estimator, error) {
	e := &Estimator{
		curve:      DefaultCurve(),
		thresholds: DefaultThresholds(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if !e.curve.valid() {
		return nil, fmt.Errorf("%w: asymptote %.2f", ErrInvalidCurve, e.curve.Asymptote())
	}
	if !e.thresholds.valid(e.curve.Asymptote()) {
		return nil, fmt.Errorf("%w: thresholds %+v", ErrInvalidCurve, e.thresholds)
	}
	return e, nil
}

// Curve returns the curve in use.
func (e *Estimator) Curve() Curve { return e.curve }

// Thresholds returns the thresholds in use.
func (e *Estimator) Thresholds() Thresholds { return e.thresholds }

// Calculate returns the calculated reliability in [0, 100). It is 0 for
// empty collections or negative vote counts.
func (e *Estimator) Calculate(totalVotes, itemCount int) float64 {
	if itemCount <= 0 || totalVotes < 0 {
		return 0
	}
	return e.curve.Value(e.curve.Progress(totalVotes, itemCount))
}

// Phase classifies a reliability value.
func (e *Estimator) Phase(r float64) Phase {
	switch {
	case r < e.thresholds.DevelopmentStart:
		return PhaseInitial
	case r < e.thresholds.RefinementStart:
		return PhaseDevelopment
	default:
		return PhaseRefinement
	}
}

// RequiredVotes returns the smallest total vote count at which a collection
// of itemCount items reaches target.
func (e *Estimator) RequiredVotes(itemCount int, target float64) (int, error) {
	if itemCount <= 0 {
		return 0, ErrInvalidItemCount
	}
	if target >= e.curve.Asymptote() {
		return 0, fmt.Errorf("%w: %.2f >= %.2f", ErrUnreachable, target, e.curve.Asymptote())
	}
	if e.Calculate(0, itemCount) >= target {
		return 0, nil
	}

	lo, hi := 0, itemCount
	for i := 0; e.Calculate(hi, itemCount) < target; i++ {
		if i == maxDoublings {
			return 0, fmt.Errorf("%w: %.2f", ErrUnreachable, target)
		}
		lo, hi = hi, hi*2
	}

	for lo < hi {
		mid := lo + (hi-lo)/2
		if e.Calculate(mid, itemCount) >= target {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return lo, nil
}

// Report is a snapshot of a session's reliability.
type Report struct {
	Value             float64
	Phase             Phase
	TotalVotes        int
	ItemCount         int
	VotesToTransition int // remaining votes, 0 once reached
	VotesToCeiling    int
	Reliable          bool // at or above the ceiling
}

// Report builds the reliability snapshot for the given counts.
func (e *Estimator) Report(totalVotes, itemCount int) Report {
	v := e.Calculate(totalVotes, itemCount)
	r := Report{
		Value:      v,
		Phase:      e.Phase(v),
		TotalVotes: totalVotes,
		ItemCount:  itemCount,
		Reliable:   itemCount > 0 && v >= e.thresholds.Ceiling,
	}
	r.VotesToTransition = e.remaining(totalVotes, itemCount, e.thresholds.Transition)
	r.VotesToCeiling = e.remaining(totalVotes, itemCount, e.thresholds.Ceiling)
	return r
}

func (e *Estimator) remaining(totalVotes, itemCount int, target float64) int {
	need, err := e.RequiredVotes(itemCount, target)
	if err != nil || need <= totalVotes {
		return 0
	}
	return need - totalVotes
}
