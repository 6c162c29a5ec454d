package calibration

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/okian/pairank/internal/domain/engine"
	"github.com/okian/pairank/internal/domain/ledger"
	"github.com/okian/pairank/internal/domain/model"
	"github.com/okian/pairank/internal/domain/rating"
	"github.com/okian/pairank/internal/domain/reliability"
	"github.com/okian/pairank/internal/domain/selection"
	"github.com/okian/pairank/pkg/metrics"
)

// Scenario is one simulated ranking session.
type Scenario struct {
	Model      rating.Kind `json:"model"`
	Items      int         `json:"items"`
	Seed       uint64      `json:"seed"`
	MaxVotes   int         `json:"max_votes"`
	Every      int         `json:"every"`      // sample interval in votes
	Thresholds []float64   `json:"thresholds"` // real reliability targets
	Noise      float64     `json:"noise"`      // upset probability
}

// Sample is the state after Votes votes.
type Sample struct {
	Votes      int     `json:"votes"`
	Calculated float64 `json:"calculated"`
	Real       float64 `json:"real"`
}

// Target records when real reliability first reached Threshold.
type Target struct {
	Threshold float64 `json:"threshold"`
	Votes     int     `json:"votes"`
	Reached   bool    `json:"reached"`
}

// Result is the outcome of one scenario.
type Result struct {
	Scenario Scenario      `json:"scenario"`
	Samples  []Sample      `json:"samples,omitempty"`
	Targets  []Target      `json:"targets"`
	Crossing int           `json:"crossing"` // first sample where calculated >= real, 0 if none
	Final    Sample        `json:"final"`
	Took     time.Duration `json:"took"`
}

// Simulator runs scenarios against the real engine and pair selector.
type Simulator struct {
	estimator  *reliability.Estimator
	initial    model.Rating
	ratingOpts []rating.Option
	window     float64
}

// NewSimulator creates a Simulator. initial is the rating items start from.
func NewSimulator(est *reliability.Estimator, initial model.Rating, window float64, opts ...rating.Option) *Simulator {
	return &Simulator{estimator: est, initial: initial, window: window, ratingOpts: opts}
}

// Run simulates sc until every threshold is reached or MaxVotes is spent.
func (s *Simulator) Run(ctx context.Context, sc Scenario) (Result, error) {
	switch {
	case sc.Items < 2:
		return Result{}, fmt.Errorf("%w: need at least 2 items, have %d", ErrInvalidScenario, sc.Items)
	case sc.Every < 1:
		return Result{}, fmt.Errorf("%w: sample interval %d", ErrInvalidScenario, sc.Every)
	case sc.MaxVotes < 0:
		return Result{}, fmt.Errorf("%w: vote budget %d", ErrInvalidScenario, sc.MaxVotes)
	}
	start := time.Now()
	m, err := rating.New(sc.Model, s.ratingOpts...)
	if err != nil {
		return Result{}, err
	}
	e := engine.New(m, s.estimator, s.initial)
	truth, items := Synthesize(sc.Items, sc.Seed, e)
	sel := selection.New(
		selection.WithSeed(sc.Seed),
		selection.WithWindow(s.window),
		selection.WithTransition(s.estimator.Thresholds().Transition),
	)
	rng := rand.New(rand.NewPCG(sc.Seed^0x2545f491, sc.Seed))
	l := ledger.New()

	res := Result{Scenario: sc, Targets: make([]Target, len(sc.Thresholds))}
	for i, th := range sc.Thresholds {
		res.Targets[i].Threshold = th
	}
	var history []ledger.Event

	for v := 0; v < sc.MaxVotes; v++ {
		if v%256 == 0 {
			if err := ctx.Err(); err != nil {
				return Result{}, err
			}
		}

		a, b, err := sel.NextPair(items, history, e.Reliability(v, items))
		if err != nil {
			return Result{}, err
		}
		w, lo := truth.Outcome(a.ID, b.ID, rng, sc.Noise)
		wb, lb := items[w].Rating, items[lo].Rating
		if err := e.Apply(items, w, lo, false, v); err != nil {
			return Result{}, fmt.Errorf("vote %d: %w", v+1, err)
		}
		history = []ledger.Event{l.Record(w, lo, false, wb, lb, time.Time{})}

		if (v+1)%sc.Every != 0 && v+1 != sc.MaxVotes {
			continue
		}
		sample := Sample{Votes: v + 1, Calculated: e.Reliability(v+1, items), Real: truth.Accuracy(items)}
		res.Samples = append(res.Samples, sample)
		res.Final = sample
		if res.Crossing == 0 && sample.Calculated >= sample.Real {
			res.Crossing = sample.Votes
		}
		if res.mark(sample) {
			break
		}
	}

	res.Took = time.Since(start)
	metrics.RecordCalibrationRun(string(sc.Model), res.Took)
	return res, nil
}

// mark records the thresholds reached by sample and reports whether all are.
func (r *Result) mark(sample Sample) bool {
	all := len(r.Targets) > 0
	for i := range r.Targets {
		t := &r.Targets[i]
		if !t.Reached && sample.Real >= t.Threshold {
			t.Reached, t.Votes = true, sample.Votes
		}
		all = all && t.Reached
	}
	return all
}
