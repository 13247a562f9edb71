package dedupe_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/circlematch/internal/domain/dedupe"
	"github.com/okian/circlematch/internal/domain/model"
)

func TestDeduper(t *testing.T) {
	Convey("Given a new deduper", t, func() {
		ctx := context.Background()
		d := dedupe.New(dedupe.WithCapacity(8))
		So(d.Size(), ShouldEqual, 0)

		Convey("When an id is recorded twice", func() {
			first := d.SeenAndRecord(ctx, "e1")
			second := d.SeenAndRecord(ctx, "e1")

			Convey("Then only the second call reports it as seen", func() {
				So(first, ShouldBeFalse)
				So(second, ShouldBeTrue)
				So(d.Size(), ShouldEqual, 1)
			})
		})

		Convey("When an id is unrecorded", func() {
			d.SeenAndRecord(ctx, "e1")
			d.Unrecord(ctx, "e1")
			d.Unrecord(ctx, "missing")

			Convey("Then it can be recorded again", func() {
				So(d.Size(), ShouldEqual, 0)
				So(d.SeenAndRecord(ctx, "e1"), ShouldBeFalse)
			})
		})

		Convey("When many goroutines record the same ids", func() {
			var wg sync.WaitGroup
			var mu sync.Mutex
			fresh := 0
			for g := 0; g < 8; g++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for i := 0; i < 50; i++ {
						if !d.SeenAndRecord(ctx, fmt.Sprintf("id-%d", i)) {
							mu.Lock()
							fresh++
							mu.Unlock()
						}
					}
				}()
			}
			wg.Wait()

			Convey("Then each id is fresh exactly once", func() {
				So(fresh, ShouldEqual, 50)
				So(d.Size(), ShouldEqual, 50)
			})
		})
	})
}

func TestCandidates(t *testing.T) {
	Convey("Given candidates with repeats and a missing id", t, func() {
		cands := []model.Candidate{
			{Origin: model.OriginCircleEvent, Data: model.Record{"id": "a", "title": "first"}},
			{Origin: model.OriginCircleEvent, Data: model.Record{"title": "no id"}},
			{Origin: model.OriginExternalEvent, Data: model.Record{"id": "b"}},
			{Origin: model.OriginExternalEvent, Data: model.Record{"id": "a", "title": "second"}},
		}

		kept, dropped := dedupe.Candidates(context.Background(), cands)

		Convey("Then the first occurrence of each id is kept in order", func() {
			So(dropped, ShouldEqual, 2)
			So(kept, ShouldHaveLength, 2)
			So(kept[0].Data["title"], ShouldEqual, "first")
			So(kept[0].Origin, ShouldEqual, model.OriginCircleEvent)
			So(kept[1].Data.ID(), ShouldEqual, "b")
		})
	})
}
