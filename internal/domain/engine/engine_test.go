package engine_test

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/okian/pairank/internal/domain/engine"
	"github.com/okian/pairank/internal/domain/ledger"
	"github.com/okian/pairank/internal/domain/model"
	"github.com/okian/pairank/internal/domain/rating"
	"github.com/okian/pairank/internal/domain/reliability"
	. "github.com/smartystreets/goconvey/convey"
)

var initial = model.Rating{Value: 1000, Deviation: 350, Volatility: 0.06}

func newEngine(kind rating.Kind) *engine.Engine {
	m, err := rating.New(kind, rating.WithCenter(initial.Value))
	if err != nil {
		panic(err)
	}
	est, err := reliability.New()
	if err != nil {
		panic(err)
	}
	return engine.New(m, est, initial)
}

func collection(e *engine.Engine, n int) model.Collection {
	c := make(model.Collection, n)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("item-%02d", i)
		c[id] = e.NewItem(id, id+".jpg")
	}
	return c
}

// session mimics the service: live votes go through Apply, removals and
// edits through a full replay.
type session struct {
	eng   *engine.Engine
	items model.Collection
	log   *ledger.Ledger
}

func (s *session) vote(w, l string, draw bool) {
	ev := s.log.Record(w, l, draw, s.items[w].Rating, s.items[l].Rating, time.Time{})
	So(s.eng.Apply(s.items, ev.WinnerID, ev.LoserID, ev.Draw, s.log.Len()-1), ShouldBeNil)
}

func (s *session) replay() {
	out, err := s.eng.Replay(context.Background(), s.log, s.items)
	So(err, ShouldBeNil)
	s.items = out
}

func TestApply(t *testing.T) {
	Convey("Given a dynamic engine with two items", t, func() {
		eng := newEngine(rating.KindDynamic)
		items := model.Collection{
			"a": eng.NewItem("a", ""),
			"b": eng.NewItem("b", ""),
		}

		Convey("When a wins the first vote", func() {
			So(eng.Apply(items, "a", "b", false, 0), ShouldBeNil)

			Convey("Then the coarse K moves both sides by 16", func() {
				So(items["a"].Rating.Value, ShouldEqual, 1016)
				So(items["b"].Rating.Value, ShouldEqual, 984)
				So(items["a"].Votes, ShouldEqual, 1)
				So(items["b"].Votes, ShouldEqual, 1)
			})
		})

		Convey("When a vote names an unknown item", func() {
			err := eng.Apply(items, "a", "zzz", false, 0)
			So(errors.Is(err, engine.ErrUnknownItem), ShouldBeTrue)
			So(items["a"].Votes, ShouldEqual, 0)
		})

		Convey("When a vote names the same item twice", func() {
			err := eng.Apply(items, "a", "a", false, 0)
			So(errors.Is(err, engine.ErrSelfComparison), ShouldBeTrue)
		})

		Convey("When an item carries a non-finite rating", func() {
			bad := items["b"]
			bad.Rating.Value = 0
			bad.Rating.Deviation = 0
			items["b"] = bad
			g := newEngine(rating.KindGlicko2)
			err := g.Apply(items, "a", "b", false, 0)

			Convey("Then nothing is committed", func() {
				So(errors.Is(err, rating.ErrNonFinite), ShouldBeTrue)
				So(items["a"].Rating, ShouldResemble, initial)
				So(items["a"].Votes, ShouldEqual, 0)
			})
		})
	})
}

func TestReplayDeterminism(t *testing.T) {
	for _, kind := range []rating.Kind{rating.KindFixed, rating.KindDynamic, rating.KindGlicko2} {
		Convey(fmt.Sprintf("Given a %s session with random votes, edits and undos", kind), t, func() {
			eng := newEngine(kind)
			s := &session{eng: eng, items: collection(eng, 12), log: ledger.New()}
			ids := s.items.IDs()
			rng := rand.New(rand.NewPCG(7, 11))

			for step := 0; step < 400; step++ {
				switch r := rng.IntN(10); {
				case r < 7 || s.log.Len() == 0:
					i, j := rng.IntN(len(ids)), rng.IntN(len(ids)-1)
					if j >= i {
						j++
					}
					s.vote(ids[i], ids[j], rng.IntN(12) == 0)
				case r < 9:
					last, _ := s.log.Last()
					_, err := s.log.Remove(last.Seq, time.Time{})
					So(err, ShouldBeNil)
					s.replay()
				default:
					h := s.log.History()
					ev := h[rng.IntN(len(h))]
					_, err := s.log.Replace(ev.Seq, ev.LoserID, ev.WinnerID, ev.Draw, model.Rating{}, model.Rating{}, time.Time{})
					So(err, ShouldBeNil)
					s.replay()
				}
			}

			Convey("Then the live state equals a replay from scratch", func() {
				fresh, err := eng.Replay(context.Background(), s.log, collection(eng, 12))
				So(err, ShouldBeNil)
				So(engine.Diverged(fresh, s.items, 0), ShouldBeEmpty)
				for id, it := range fresh {
					So(s.items[id].Rating, ShouldResemble, it.Rating)
				}
			})

			Convey("Then vote counts equal live ledger references", func() {
				refs := map[string]int{}
				for e := range s.log.Events() {
					refs[e.WinnerID]++
					refs[e.LoserID]++
				}
				for id, it := range s.items {
					So(it.Votes, ShouldEqual, refs[id])
				}
				So(s.items.TotalVotes(), ShouldEqual, s.log.Len())
			})
		})
	}
}

func TestUndoIdempotence(t *testing.T) {
	Convey("Given a session with some history", t, func() {
		eng := newEngine(rating.KindDynamic)
		s := &session{eng: eng, items: collection(eng, 6), log: ledger.New()}
		ids := s.items.IDs()
		for i := 0; i < 30; i++ {
			s.vote(ids[i%6], ids[(i*5+1)%6], false)
		}
		before := s.items.Clone()

		Convey("When a vote is recorded and undone", func() {
			s.vote(ids[5], ids[0], false)
			last, ok := s.log.Last()
			So(ok, ShouldBeTrue)
			_, err := s.log.Remove(last.Seq, time.Time{})
			So(err, ShouldBeNil)
			s.replay()

			Convey("Then the state equals the state before the vote", func() {
				So(engine.Diverged(before, s.items, 0), ShouldBeEmpty)
			})
		})
	})
}

func TestReplayBefore(t *testing.T) {
	Convey("Given a session with recorded before ratings", t, func() {
		eng := newEngine(rating.KindDynamic)
		s := &session{eng: eng, items: collection(eng, 4), log: ledger.New()}
		ids := s.items.IDs()
		for i := 0; i < 8; i++ {
			s.vote(ids[i%4], ids[(i+1)%4], false)
		}
		ctx := context.Background()

		Convey("Then the prefix before each vote matches what it recorded", func() {
			for _, ev := range s.log.History() {
				prefix, err := eng.ReplayBefore(ctx, s.log, s.items, ev.Seq)
				So(err, ShouldBeNil)
				So(prefix[ev.WinnerID].Rating, ShouldResemble, ev.WinnerBefore)
				So(prefix[ev.LoserID].Rating, ShouldResemble, ev.LoserBefore)
			}
		})

		Convey("Then the first vote sees the baseline", func() {
			prefix, err := eng.ReplayBefore(ctx, s.log, s.items, 1)
			So(err, ShouldBeNil)
			for _, it := range prefix {
				So(it.Rating, ShouldResemble, initial)
				So(it.Votes, ShouldEqual, 0)
			}
		})

		Convey("When the vote is not live", func() {
			_, err := s.log.Remove(3, time.Time{})
			So(err, ShouldBeNil)
			_, err = eng.ReplayBefore(ctx, s.log, s.items, 3)
			So(errors.Is(err, ledger.ErrNotFound), ShouldBeTrue)
			_, err = eng.ReplayBefore(ctx, s.log, s.items, 99)
			So(errors.Is(err, ledger.ErrNotFound), ShouldBeTrue)
		})
	})
}

func TestDiverged(t *testing.T) {
	Convey("Given two collections", t, func() {
		a := model.Collection{"x": {ID: "x", Rating: model.Rating{Value: 1000}, Votes: 1}}
		b := a.Clone()

		Convey("Then identical collections do not diverge", func() {
			So(engine.Diverged(a, b, 0), ShouldBeEmpty)
		})

		Convey("Then rating drift beyond the tolerance is reported", func() {
			x := b["x"]
			x.Rating.Value += 0.5
			b["x"] = x
			So(engine.Diverged(a, b, 0.1), ShouldResemble, []string{"x"})
			So(engine.Diverged(a, b, 1), ShouldBeEmpty)
		})

		Convey("Then extra items are reported", func() {
			b["y"] = model.Item{ID: "y"}
			So(engine.Diverged(a, b, 0), ShouldResemble, []string{"y"})
		})
	})
}
