package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/pairank/internal/calibration"
	"github.com/okian/pairank/internal/domain/rating"
)

func TestBuildPlan(t *testing.T) {
	convey.Convey("Given command line lists", t, func() {
		convey.Convey("Valid lists build a plan", func() {
			p, err := buildPlan("fixed, Glicko2", "10,20", "1,2,3", "85", 500, 25, 0.1)
			convey.So(err, convey.ShouldBeNil)
			convey.So(p.Models, convey.ShouldResemble, []rating.Kind{rating.KindFixed, rating.KindGlicko2})
			convey.So(p.Items, convey.ShouldResemble, []int{10, 20})
			convey.So(p.Seeds, convey.ShouldResemble, []uint64{1, 2, 3})
			convey.So(p.Thresholds, convey.ShouldResemble, []float64{85})
			convey.So(p.MaxVotes, convey.ShouldEqual, 500)
			convey.So(p.Every, convey.ShouldEqual, 25)
		})

		convey.Convey("Bad values are rejected", func() {
			_, err := buildPlan("elo9000", "10", "1", "85", 0, 50, 0)
			convey.So(errors.Is(err, rating.ErrUnknownModel), convey.ShouldBeTrue)

			_, err = buildPlan("fixed", "ten", "1", "85", 0, 50, 0)
			convey.So(err, convey.ShouldNotBeNil)

			_, err = buildPlan("fixed", "10", "-1", "85", 0, 50, 0)
			convey.So(err, convey.ShouldNotBeNil)

			_, err = buildPlan("fixed", "10", "1", "85", 0, 0, 0)
			convey.So(errors.Is(err, calibration.ErrInvalidPlan), convey.ShouldBeTrue)
		})

		convey.Convey("Defaults round-trip through the flag format", func() {
			d := calibration.DefaultPlan()
			convey.So(joinInts(d.Items), convey.ShouldEqual, "10,20,50,100,200")
			convey.So(joinUints(d.Seeds), convey.ShouldEqual, "42,123,456,508,749,862")
			convey.So(splitList(" a, ,b,"), convey.ShouldResemble, []string{"a", "b"})
		})
	})
}

func TestWriteReport(t *testing.T) {
	convey.Convey("writeReport creates the file", t, func() {
		path := filepath.Join(t.TempDir(), "report.json")
		r := calibration.Report{Plan: calibration.DefaultPlan()}
		convey.So(writeReport(path, r), convey.ShouldBeNil)

		data, err := os.ReadFile(path)
		convey.So(err, convey.ShouldBeNil)
		convey.So(string(data), convey.ShouldContainSubstring, `"plan"`)

		convey.So(writeReport(filepath.Join(t.TempDir(), "missing", "r.json"), r), convey.ShouldNotBeNil)
	})
}
