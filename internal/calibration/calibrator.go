// Package calibration measures how well the calculated reliability tracks
// real ranking accuracy. It runs the production engine and pair selector
// against synthetic collections with a known hidden order.
package calibration

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/pairank/internal/domain/model"
	"github.com/okian/pairank/internal/domain/rating"
	"github.com/okian/pairank/internal/domain/reliability"
	"github.com/okian/pairank/pkg/logger"
)

// Plan describes a calibration sweep. Every combination of model, item
// count and seed becomes one scenario.
type Plan struct {
	Models     []rating.Kind `json:"models"`
	Items      []int         `json:"items"`
	Seeds      []uint64      `json:"seeds"`
	MaxVotes   int           `json:"max_votes"` // 0 means 60 votes per item
	Every      int           `json:"every"`
	Thresholds []float64     `json:"thresholds"`
	Noise      float64       `json:"noise"`
}

// DefaultPlan is the sweep used by the calibrate command.
func DefaultPlan() Plan {
	return Plan{
		Models:     []rating.Kind{rating.KindFixed, rating.KindDynamic, rating.KindGlicko2},
		Items:      []int{10, 20, 50, 100, 200},
		Seeds:      []uint64{42, 123, 456, 508, 749, 862},
		Every:      50,
		Thresholds: []float64{85, 93},
	}
}

// Validate checks that the plan can run.
func (p Plan) Validate() error {
	switch {
	case len(p.Models) == 0:
		return fmt.Errorf("%w: no models", ErrInvalidPlan)
	case len(p.Items) == 0:
		return fmt.Errorf("%w: no item counts", ErrInvalidPlan)
	case len(p.Seeds) == 0:
		return fmt.Errorf("%w: no seeds", ErrInvalidPlan)
	case p.Every < 1:
		return fmt.Errorf("%w: sample interval must be positive", ErrInvalidPlan)
	case p.MaxVotes < 0:
		return fmt.Errorf("%w: max votes must not be negative", ErrInvalidPlan)
	case p.Noise < 0 || p.Noise >= 0.5:
		return fmt.Errorf("%w: noise must be in [0, 0.5)", ErrInvalidPlan)
	}
	for _, n := range p.Items {
		if n < 2 {
			return fmt.Errorf("%w: item count %d below 2", ErrInvalidPlan, n)
		}
	}
	for _, t := range p.Thresholds {
		if t <= 0 || t > 100 {
			return fmt.Errorf("%w: threshold %v out of range", ErrInvalidPlan, t)
		}
	}
	return nil
}

// Scenarios expands the plan in model, items, seed order.
func (p Plan) Scenarios() []Scenario {
	out := make([]Scenario, 0, len(p.Models)*len(p.Items)*len(p.Seeds))
	for _, m := range p.Models {
		for _, n := range p.Items {
			budget := p.MaxVotes
			if budget == 0 {
				budget = 60 * n
			}
			for _, seed := range p.Seeds {
				out = append(out, Scenario{
					Model:      m,
					Items:      n,
					Seed:       seed,
					MaxVotes:   budget,
					Every:      p.Every,
					Thresholds: p.Thresholds,
					Noise:      p.Noise,
				})
			}
		}
	}
	return out
}

// Calibrator runs plans.
type Calibrator struct {
	workers    int
	estimator  *reliability.Estimator
	initial    model.Rating
	window     float64
	ratingOpts []rating.Option
	logger     logger.Logger
}

// Option configures a Calibrator.
type Option func(*Calibrator)

// WithWorkers sets the number of scenarios run in parallel.
func WithWorkers(n int) Option {
	return func(c *Calibrator) { c.workers = n }
}

// WithEstimator sets the reliability estimator under test.
func WithEstimator(est *reliability.Estimator) Option {
	return func(c *Calibrator) {
		if est != nil {
			c.estimator = est
		}
	}
}

// WithInitialRating sets the rating synthetic items start from.
func WithInitialRating(r model.Rating) Option {
	return func(c *Calibrator) { c.initial = r }
}

// WithWindow sets the competitiveness window of the pair selector.
func WithWindow(points float64) Option {
	return func(c *Calibrator) { c.window = points }
}

// WithRatingOptions passes options to every rating model.
func WithRatingOptions(opts ...rating.Option) Option {
	return func(c *Calibrator) { c.ratingOpts = append(c.ratingOpts, opts...) }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Calibrator) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a Calibrator with the default curve and thresholds.
func New(opts ...Option) (*Calibrator, error) {
	est, err := reliability.New()
	if err != nil {
		return nil, err
	}
	c := &Calibrator{
		estimator: est,
		initial:   model.Rating{Value: 1000, Deviation: 350, Volatility: 0.06},
		window:    100,
		logger:    logger.Get(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.Named("calibration")
	return c, nil
}

// Run executes every scenario of p and aggregates the results.
func (c *Calibrator) Run(ctx context.Context, p Plan) (Report, error) {
	if err := p.Validate(); err != nil {
		return Report{}, err
	}
	start := time.Now()
	scenarios := p.Scenarios()
	c.logger.Info(ctx, "calibration started",
		logger.Int("scenarios", len(scenarios)),
		logger.Int("workers", c.workers),
	)

	sim := NewSimulator(c.estimator, c.initial, c.window, c.ratingOpts...)
	results, err := NewPool(c.workers, sim, c.logger).Run(ctx, scenarios)
	if err != nil {
		return Report{}, fmt.Errorf("calibration: %w", err)
	}

	r := Report{
		Plan:      p,
		Summaries: Aggregate(results),
		Results:   results,
		Took:      time.Since(start),
	}
	c.logger.Info(ctx, "calibration finished",
		logger.Int("summaries", len(r.Summaries)),
		logger.Duration("took", r.Took),
	)
	return r, nil
}
