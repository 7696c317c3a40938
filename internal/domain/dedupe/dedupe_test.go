package dedupe_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/okian/matchday/internal/domain/dedupe"
	. "github.com/smartystreets/goconvey/convey"
)

func TestDeduper(t *testing.T) {
	Convey("Given an in-memory deduper", t, func() {
		ctx := context.Background()
		d := dedupe.NewInMemoryDeduper()

		Convey("A key is new once and seen afterwards", func() {
			So(d.SeenAndRecord(ctx, "a"), ShouldBeFalse)
			So(d.SeenAndRecord(ctx, "a"), ShouldBeTrue)
			So(d.Size(), ShouldEqual, int64(1))
		})

		Convey("Unrecord lets the key through again", func() {
			d.SeenAndRecord(ctx, "a")
			d.Unrecord(ctx, "a")
			d.Unrecord(ctx, "missing")
			So(d.Size(), ShouldEqual, int64(0))
			So(d.SeenAndRecord(ctx, "a"), ShouldBeFalse)
		})

		Convey("Concurrent callers record each key exactly once", func() {
			var wg sync.WaitGroup
			var mu sync.Mutex
			fresh := 0
			for g := 0; g < 8; g++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for i := 0; i < 100; i++ {
						if !d.SeenAndRecord(ctx, fmt.Sprintf("k-%d", i)) {
							mu.Lock()
							fresh++
							mu.Unlock()
						}
					}
				}()
			}
			wg.Wait()
			So(fresh, ShouldEqual, 100)
			So(d.Size(), ShouldEqual, int64(100))
		})
	})

	Convey("Given a bounded deduper", t, func() {
		ctx := context.Background()
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(2))
		d.SeenAndRecord(ctx, "a")
		d.SeenAndRecord(ctx, "b")
		d.SeenAndRecord(ctx, "c")

		So(d.Size(), ShouldEqual, int64(2))
		So(d.SeenAndRecord(ctx, "c"), ShouldBeTrue)
		So(d.SeenAndRecord(ctx, "a"), ShouldBeFalse)
	})

	Convey("Given a deduper with a ttl", t, func() {
		ctx := context.Background()
		now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
		d := dedupe.NewInMemoryDeduper(dedupe.WithTTL(time.Hour), dedupe.WithClock(func() time.Time { return now }))

		So(d.SeenAndRecord(ctx, "a"), ShouldBeFalse)
		now = now.Add(30 * time.Minute)
		So(d.SeenAndRecord(ctx, "a"), ShouldBeTrue)
		now = now.Add(time.Hour)
		So(d.SeenAndRecord(ctx, "a"), ShouldBeFalse)
		So(d.Size(), ShouldEqual, int64(1))
	})
}

func TestKey(t *testing.T) {
	Convey("Keys change when the kickoff moves", t, func() {
		k := time.Date(2026, 3, 14, 15, 0, 0, 0, time.UTC)
		So(dedupe.Key(7, k), ShouldEqual, dedupe.Key(7, k))
		So(dedupe.Key(7, k), ShouldNotEqual, dedupe.Key(7, k.Add(time.Hour)))
		So(dedupe.Key(7, k), ShouldNotEqual, dedupe.Key(8, k))
	})
}
