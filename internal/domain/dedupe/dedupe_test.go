package dedupe_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/okian/pairank/internal/domain/dedupe"
	. "github.com/smartystreets/goconvey/convey"
)

func TestInMemoryDeduper(t *testing.T) {
	Convey("Given a new InMemoryDeduper", t, func() {
		ctx := context.Background()
		d := dedupe.NewInMemoryDeduper()

		Convey("When a request id is new", func() {
			prev, seen := d.Remember(ctx, "req-1", 7)

			Convey("Then it is recorded", func() {
				So(seen, ShouldBeFalse)
				So(prev, ShouldEqual, 0)
				So(d.Size(), ShouldEqual, 1)
			})

			Convey("And the same id is submitted again", func() {
				prev, seen := d.Remember(ctx, "req-1", 9)

				Convey("Then the original vote id is returned", func() {
					So(seen, ShouldBeTrue)
					So(prev, ShouldEqual, 7)
					So(d.Size(), ShouldEqual, 1)
				})
			})

			Convey("And it is forgotten", func() {
				d.Forget(ctx, "req-1")
				d.Forget(ctx, "never-seen")

				Convey("Then it can be recorded again", func() {
					So(d.Size(), ShouldEqual, 0)
					_, seen := d.Remember(ctx, "req-1", 9)
					So(seen, ShouldBeFalse)
				})
			})
		})

		Convey("When a vote is removed", func() {
			d.Remember(ctx, "a", 1)
			d.Remember(ctx, "b", 2)
			d.ForgetSeq(ctx, 1)

			Convey("Then only its request ids are dropped", func() {
				So(d.Size(), ShouldEqual, 1)
				_, seen := d.Remember(ctx, "a", 3)
				So(seen, ShouldBeFalse)
				prev, seen := d.Remember(ctx, "b", 4)
				So(seen, ShouldBeTrue)
				So(prev, ShouldEqual, 2)
			})
		})
	})

	Convey("Given a bounded deduper", t, func() {
		ctx := context.Background()
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(3))
		for i := 1; i <= 4; i++ {
			d.Remember(ctx, fmt.Sprintf("r%d", i), uint64(i))
		}

		Convey("Then the oldest id is evicted", func() {
			So(d.Size(), ShouldEqual, 3)
			_, seen := d.Remember(ctx, "r4", 99)
			So(seen, ShouldBeTrue)
			_, seen = d.Remember(ctx, "r1", 99)
			So(seen, ShouldBeFalse)
		})
	})

	Convey("Given an unbounded deduper", t, func() {
		ctx := context.Background()
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(0))
		for i := 0; i < 1000; i++ {
			d.Remember(ctx, fmt.Sprintf("r%d", i), uint64(i))
		}

		Convey("Then nothing is evicted", func() {
			So(d.Size(), ShouldEqual, 1000)
		})
	})
}

func TestDedupeConcurrency(t *testing.T) {
	Convey("Given concurrent submissions of the same request ids", t, func() {
		ctx := context.Background()
		d := dedupe.NewInMemoryDeduper()
		var wg sync.WaitGroup
		var mu sync.Mutex
		fresh := 0

		for g := 0; g < 8; g++ {
			wg.Add(1)
			go func(g int) {
				defer wg.Done()
				for i := 0; i < 100; i++ {
					if _, seen := d.Remember(ctx, fmt.Sprintf("req-%d", i), uint64(g)); !seen {
						mu.Lock()
						fresh++
						mu.Unlock()
					}
				}
			}(g)
		}
		wg.Wait()

		Convey("Then each id is recorded exactly once", func() {
			So(fresh, ShouldEqual, 100)
			So(d.Size(), ShouldEqual, 100)
		})
	})
}
