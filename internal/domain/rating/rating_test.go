package rating_test

import (
	"errors"
	"math"
	"testing"

	"github.com/okian/pairank/internal/domain/model"
	"github.com/okian/pairank/internal/domain/rating"
	. "github.com/smartystreets/goconvey/convey"
)

func TestExpected(t *testing.T) {
	Convey("Given two ratings", t, func() {
		Convey("Then expected scores of both sides sum to one", func() {
			for _, pair := range [][2]float64{{1000, 1000}, {1200, 1000}, {850.5, 1432.25}, {-300, 2500}} {
				ea := rating.Expected(pair[0], pair[1])
				eb := rating.Expected(pair[1], pair[0])
				So(ea+eb, ShouldAlmostEqual, 1.0, 1e-12)
			}
		})

		Convey("Then equal ratings expect a coin flip", func() {
			So(rating.Expected(1000, 1000), ShouldEqual, 0.5)
		})

		Convey("Then a 400 point gap expects ten to one", func() {
			So(rating.Expected(1400, 1000), ShouldAlmostEqual, 10.0/11.0, 1e-12)
		})
	})
}

func TestApply(t *testing.T) {
	Convey("Given the Elo update rule", t, func() {
		Convey("When equal items meet with K=32", func() {
			a, b, err := rating.Apply(1000, 1000, rating.AWins, 32, 32)
			So(err, ShouldBeNil)

			Convey("Then the winner gains 16 and the loser drops 16", func() {
				So(a, ShouldEqual, 1016)
				So(b, ShouldEqual, 984)
			})
		})

		Convey("When the same K is used for both sides", func() {
			cases := []struct {
				a, b float64
				o    rating.Outcome
			}{
				{1000, 1000, rating.AWins},
				{1200, 1000, rating.BWins},
				{1350.75, 990.1, rating.Draw},
				{700, 1500, rating.AWins},
			}

			Convey("Then the update is zero-sum", func() {
				for _, c := range cases {
					na, nb, err := rating.Apply(c.a, c.b, c.o, 16, 16)
					So(err, ShouldBeNil)
					So(na-c.a, ShouldAlmostEqual, -(nb - c.b), 1e-9)
				}
			})
		})

		Convey("When an upset happens", func() {
			_, underdog, err := rating.Apply(1200, 1000, rating.BWins, 32, 32)
			So(err, ShouldBeNil)
			favourite, _, err := rating.Apply(1200, 1000, rating.AWins, 32, 32)
			So(err, ShouldBeNil)

			Convey("Then the underdog's gain exceeds the favourite's expected gain", func() {
				So(math.Abs(underdog-1000), ShouldBeGreaterThan, math.Abs(favourite-1200))
			})
		})

		Convey("When a draw is between equal items", func() {
			a, b, err := rating.Apply(1000, 1000, rating.Draw, 32, 32)
			So(err, ShouldBeNil)

			Convey("Then nothing moves", func() {
				So(a, ShouldEqual, 1000)
				So(b, ShouldEqual, 1000)
			})
		})

		Convey("When an input is not finite", func() {
			_, _, err := rating.Apply(math.NaN(), 1000, rating.AWins, 32, 32)

			Convey("Then ErrNonFinite is returned", func() {
				So(errors.Is(err, rating.ErrNonFinite), ShouldBeTrue)
			})
		})

		Convey("When the outcome is out of range", func() {
			_, _, err := rating.Apply(1000, 1000, rating.Outcome(9), 32, 32)
			So(errors.Is(err, rating.ErrInvalidOutcome), ShouldBeTrue)
		})
	})
}

func TestModels(t *testing.T) {
	base := model.Rating{Value: 1000, Deviation: 350, Volatility: 0.06}

	Convey("Given the fixed model", t, func() {
		m, err := rating.New(rating.KindFixed)
		So(err, ShouldBeNil)
		So(m.Kind(), ShouldEqual, rating.KindFixed)

		Convey("Then K is 16 regardless of context", func() {
			a, b, err := m.Update(base, base, rating.AWins, rating.Context{Reliability: 10})
			So(err, ShouldBeNil)
			So(a.Value, ShouldEqual, 1008)
			So(b.Value, ShouldEqual, 992)
			So(a.Deviation, ShouldEqual, 350)
		})
	})

	Convey("Given the dynamic model", t, func() {
		m, err := rating.New(rating.KindDynamic)
		So(err, ShouldBeNil)

		Convey("When reliability is below the transition", func() {
			a, b, err := m.Update(base, base, rating.AWins, rating.Context{Reliability: 60})
			So(err, ShouldBeNil)

			Convey("Then the coarse K applies", func() {
				So(a.Value, ShouldEqual, 1016)
				So(b.Value, ShouldEqual, 984)
			})
		})

		Convey("When reliability reached the transition", func() {
			a, b, err := m.Update(base, base, rating.AWins, rating.Context{Reliability: 85})
			So(err, ShouldBeNil)

			Convey("Then the fine K applies", func() {
				So(a.Value, ShouldEqual, 1008)
				So(b.Value, ShouldEqual, 992)
			})
		})

		Convey("When options override the step sizes", func() {
			m, err := rating.New(rating.KindDynamic, rating.WithKCoarse(40), rating.WithKFine(10), rating.WithTransition(70))
			So(err, ShouldBeNil)
			d := m.(*rating.Dynamic)
			So(d.K(69.9), ShouldEqual, 40)
			So(d.K(70), ShouldEqual, 10)
		})
	})

	Convey("Given the glicko2 model", t, func() {
		m, err := rating.New(rating.KindGlicko2, rating.WithCenter(1000))
		So(err, ShouldBeNil)

		Convey("When two fresh items meet", func() {
			a, b, err := m.Update(base, base, rating.AWins, rating.Context{})
			So(err, ShouldBeNil)

			Convey("Then the winner rises and the loser falls symmetrically", func() {
				So(a.Value, ShouldBeGreaterThan, 1000)
				So(b.Value, ShouldBeLessThan, 1000)
				So(a.Value-1000, ShouldAlmostEqual, 1000-b.Value, 1e-6)
			})

			Convey("Then deviations shrink", func() {
				So(a.Deviation, ShouldBeLessThan, 350)
				So(b.Deviation, ShouldBeLessThan, 350)
				So(a.Deviation, ShouldBeGreaterThan, 0)
			})

			Convey("Then volatility stays near its initial value", func() {
				So(a.Volatility, ShouldAlmostEqual, 0.06, 1e-3)
			})
		})

		Convey("When a settled item meets a fresh one", func() {
			settled := model.Rating{Value: 1000, Deviation: 60, Volatility: 0.06}
			a, b, err := m.Update(settled, base, rating.BWins, rating.Context{})
			So(err, ShouldBeNil)

			Convey("Then the fresh item moves further", func() {
				So(b.Value-1000, ShouldBeGreaterThan, 1000-a.Value)
			})
		})

		Convey("When an input is not finite", func() {
			bad := base
			bad.Deviation = math.Inf(1)
			_, _, err := m.Update(bad, base, rating.AWins, rating.Context{})
			So(errors.Is(err, rating.ErrNonFinite), ShouldBeTrue)
		})
	})
}

func TestParseKind(t *testing.T) {
	Convey("Given model names", t, func() {
		Convey("Then known names parse", func() {
			k, err := rating.ParseKind("Fixed")
			So(err, ShouldBeNil)
			So(k, ShouldEqual, rating.KindFixed)

			k, err = rating.ParseKind("glicko2")
			So(err, ShouldBeNil)
			So(k, ShouldEqual, rating.KindGlicko2)

			k, err = rating.ParseKind("")
			So(err, ShouldBeNil)
			So(k, ShouldEqual, rating.KindDynamic)
		})

		Convey("Then unknown names fail", func() {
			_, err := rating.ParseKind("trueskill")
			So(errors.Is(err, rating.ErrUnknownModel), ShouldBeTrue)

			_, err = rating.New(rating.Kind("trueskill"))
			So(errors.Is(err, rating.ErrUnknownModel), ShouldBeTrue)
		})
	})
}
