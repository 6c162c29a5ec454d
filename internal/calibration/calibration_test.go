package calibration

import (
	"bytes"
	"context"
	"errors"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/pairank/internal/domain/engine"
	"github.com/okian/pairank/internal/domain/model"
	"github.com/okian/pairank/internal/domain/rating"
	"github.com/okian/pairank/internal/domain/reliability"
	"github.com/okian/pairank/pkg/logger"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

var baseline = model.Rating{Value: 1000, Deviation: 350, Volatility: 0.06}

func testEngine() *engine.Engine {
	m, err := rating.New(rating.KindDynamic)
	if err != nil {
		panic(err)
	}
	est, err := reliability.New()
	if err != nil {
		panic(err)
	}
	return engine.New(m, est, baseline)
}

func TestTruth(t *testing.T) {
	Convey("Given a synthetic collection", t, func() {
		e := testEngine()
		truth, items := Synthesize(8, 42, e)

		Convey("Ids and scores are reproducible per seed", func() {
			again, items2 := Synthesize(8, 42, e)
			So(items2.IDs(), ShouldResemble, items.IDs())
			for _, id := range items.IDs() {
				So(again.Score(id), ShouldEqual, truth.Score(id))
			}

			_, other := Synthesize(8, 43, e)
			So(other.IDs(), ShouldNotResemble, items.IDs())
		})

		Convey("Scores are a permutation of 1..n", func() {
			seen := map[int]bool{}
			for _, id := range items.IDs() {
				s := truth.Score(id)
				So(s, ShouldBeBetweenOrEqual, 1, 8)
				seen[s] = true
			}
			So(seen, ShouldHaveLength, 8)
		})

		Convey("Items start at the baseline", func() {
			for _, it := range items {
				So(it.Rating, ShouldResemble, baseline)
				So(it.Votes, ShouldEqual, 0)
			}
		})

		Convey("The better item wins without noise", func() {
			rng := rand.New(rand.NewPCG(1, 2))
			ids := items.IDs()
			a, b := ids[0], ids[1]
			w, l := truth.Outcome(a, b, rng, 0)
			So(truth.Score(w), ShouldBeGreaterThan, truth.Score(l))
			w2, l2 := truth.Outcome(b, a, rng, 0)
			So(w2, ShouldEqual, w)
			So(l2, ShouldEqual, l)
		})

		Convey("Accuracy is 100 for the hidden order and 0 for its reverse", func() {
			for id, it := range items {
				it.Rating.Value = float64(1000 + truth.Score(id))
				items[id] = it
			}
			So(truth.Accuracy(items), ShouldEqual, 100)

			for id, it := range items {
				it.Rating.Value = float64(1000 - truth.Score(id))
				items[id] = it
			}
			So(truth.Accuracy(items), ShouldEqual, 0)
		})
	})
}

func TestSimulator(t *testing.T) {
	Convey("Given a simulator", t, func() {
		est, err := reliability.New()
		So(err, ShouldBeNil)
		sim := NewSimulator(est, baseline, 100)
		sc := Scenario{
			Model:      rating.KindDynamic,
			Items:      10,
			Seed:       42,
			MaxVotes:   3000,
			Every:      50,
			Thresholds: []float64{85},
		}

		Convey("A noiseless run reaches the threshold and stops", func() {
			res, err := sim.Run(context.Background(), sc)
			So(err, ShouldBeNil)
			So(res.Targets, ShouldHaveLength, 1)
			So(res.Targets[0].Reached, ShouldBeTrue)
			So(res.Final.Votes, ShouldEqual, res.Targets[0].Votes)
			So(res.Final.Real, ShouldBeGreaterThanOrEqualTo, 85)
			So(res.Final.Votes%50, ShouldEqual, 0)

			for i := 1; i < len(res.Samples); i++ {
				So(res.Samples[i].Votes, ShouldBeGreaterThan, res.Samples[i-1].Votes)
				So(res.Samples[i].Calculated, ShouldBeGreaterThanOrEqualTo, res.Samples[i-1].Calculated)
			}
		})

		Convey("Scenarios it cannot run are rejected", func() {
			for _, mutate := range []func(*Scenario){
				func(c *Scenario) { c.Every = 0 },
				func(c *Scenario) { c.Every = -5 },
				func(c *Scenario) { c.Items = 1 },
				func(c *Scenario) { c.MaxVotes = -1 },
			} {
				bad := sc
				mutate(&bad)
				_, err := sim.Run(context.Background(), bad)
				So(errors.Is(err, ErrInvalidScenario), ShouldBeTrue)
			}
		})

		Convey("Runs are deterministic per seed", func() {
			a, err := sim.Run(context.Background(), sc)
			So(err, ShouldBeNil)
			b, err := sim.Run(context.Background(), sc)
			So(err, ShouldBeNil)
			So(b.Samples, ShouldResemble, a.Samples)
			So(b.Targets, ShouldResemble, a.Targets)
		})

		Convey("An unreachable threshold spends the whole budget", func() {
			sc.MaxVotes = 120
			sc.Thresholds = []float64{100.5}
			res, err := sim.Run(context.Background(), sc)
			So(err, ShouldBeNil)
			So(res.Targets[0].Reached, ShouldBeFalse)
			So(res.Final.Votes, ShouldEqual, 120)
			So(res.Samples, ShouldHaveLength, 3)
		})

		Convey("Calculated reliability for 20 items crosses 85 within 50 to 100 votes", func() {
			sc.Items, sc.Every, sc.MaxVotes, sc.Thresholds = 20, 1, 150, nil
			res, err := sim.Run(context.Background(), sc)
			So(err, ShouldBeNil)
			So(res.Samples, ShouldHaveLength, 150)

			crossed := 0
			for _, smp := range res.Samples {
				if smp.Calculated >= 85 {
					crossed = smp.Votes
					break
				}
			}
			So(crossed, ShouldBeGreaterThan, 50)
			So(crossed, ShouldBeLessThanOrEqualTo, 100)
		})

		Convey("A canceled context stops the run", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			_, err := sim.Run(ctx, sc)
			So(err, ShouldEqual, context.Canceled)
		})

		Convey("An unknown model is rejected", func() {
			sc.Model = "trueskill"
			_, err := sim.Run(context.Background(), sc)
			So(errors.Is(err, rating.ErrUnknownModel), ShouldBeTrue)
		})
	})
}

func TestPlan(t *testing.T) {
	Convey("Given the default plan", t, func() {
		p := DefaultPlan()
		So(p.Validate(), ShouldBeNil)

		Convey("Scenarios cover every combination", func() {
			scs := p.Scenarios()
			So(scs, ShouldHaveLength, 3*5*6)
			So(scs[0].Model, ShouldEqual, rating.KindFixed)
			So(scs[0].Items, ShouldEqual, 10)
			So(scs[0].MaxVotes, ShouldEqual, 600)
			So(scs[len(scs)-1].Model, ShouldEqual, rating.KindGlicko2)
			So(scs[len(scs)-1].Seed, ShouldEqual, uint64(862))
		})

		Convey("Invalid plans are rejected", func() {
			for _, mutate := range []func(*Plan){
				func(p *Plan) { p.Models = nil },
				func(p *Plan) { p.Items = []int{1} },
				func(p *Plan) { p.Seeds = nil },
				func(p *Plan) { p.Every = 0 },
				func(p *Plan) { p.Noise = 0.5 },
				func(p *Plan) { p.Thresholds = []float64{0} },
			} {
				bad := DefaultPlan()
				mutate(&bad)
				So(errors.Is(bad.Validate(), ErrInvalidPlan), ShouldBeTrue)
			}
		})
	})
}

func TestCalibrator(t *testing.T) {
	Convey("Given a small plan", t, func() {
		c, err := New(WithWorkers(2))
		So(err, ShouldBeNil)
		p := Plan{
			Models:     []rating.Kind{rating.KindFixed, rating.KindDynamic},
			Items:      []int{6},
			Seeds:      []uint64{1, 2, 3},
			MaxVotes:   300,
			Every:      50,
			Thresholds: []float64{85},
		}

		r, err := c.Run(context.Background(), p)
		So(err, ShouldBeNil)

		Convey("Results keep the scenario order", func() {
			So(r.Results, ShouldHaveLength, 6)
			for i, sc := range p.Scenarios() {
				So(r.Results[i].Scenario.Model, ShouldEqual, sc.Model)
				So(r.Results[i].Scenario.Seed, ShouldEqual, sc.Seed)
			}
		})

		Convey("Summaries group seeds per model", func() {
			So(r.Summaries, ShouldHaveLength, 2)
			s, ok := r.Summary(rating.KindDynamic, 6)
			So(ok, ShouldBeTrue)
			So(s.Runs, ShouldEqual, 3)
			So(s.Curve, ShouldNotBeEmpty)
			So(s.Targets, ShouldHaveLength, 1)
			So(s.FinalReal.N, ShouldEqual, 3)

			_, ok = r.Summary(rating.KindGlicko2, 6)
			So(ok, ShouldBeFalse)
		})

		Convey("The report encodes as JSON", func() {
			var buf bytes.Buffer
			So(r.WriteJSON(&buf), ShouldBeNil)
			So(buf.String(), ShouldContainSubstring, `"summaries"`)
			So(buf.String(), ShouldContainSubstring, `"model": "dynamic"`)
		})

		Convey("The report plots to PNG", func() {
			path := filepath.Join(t.TempDir(), "reliability.png")
			So(r.Plot(path, 6), ShouldBeNil)
			info, err := os.Stat(path)
			So(err, ShouldBeNil)
			So(info.Size(), ShouldBeGreaterThan, 0)

			So(errors.Is(r.Plot(path, 7), ErrNoData), ShouldBeTrue)
		})

		Convey("An invalid plan fails before running", func() {
			_, err := c.Run(context.Background(), Plan{})
			So(errors.Is(err, ErrInvalidPlan), ShouldBeTrue)
		})
	})
}

func TestAggregate(t *testing.T) {
	Convey("Aggregate computes mean and deviation of reached targets", t, func() {
		mk := func(seed uint64, votes int, reached bool) Result {
			return Result{
				Scenario: Scenario{Model: rating.KindFixed, Items: 10, Seed: seed},
				Targets:  []Target{{Threshold: 85, Votes: votes, Reached: reached}},
				Final:    Sample{Votes: votes, Real: 90},
				Samples:  []Sample{{Votes: 50, Calculated: 60, Real: 70 + float64(seed)}},
			}
		}
		s := Aggregate([]Result{mk(1, 100, true), mk(2, 200, true), mk(3, 500, false)})
		So(s, ShouldHaveLength, 1)
		So(s[0].Runs, ShouldEqual, 3)
		So(s[0].Targets[0].Reached, ShouldEqual, 2)
		So(s[0].Targets[0].Votes.Mean, ShouldEqual, 150)
		So(s[0].Targets[0].Votes.Std, ShouldAlmostEqual, 70.7107, 0.001)
		So(s[0].Crossing.N, ShouldEqual, 0)
		So(s[0].Curve, ShouldResemble, []Sample{{Votes: 50, Calculated: 60, Real: 72}})
		So(describe([]float64{4}), ShouldResemble, Stat{N: 1, Mean: 4})
	})
}
