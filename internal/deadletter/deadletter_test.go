package deadletter_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/okian/matchday/internal/adapters/mq/queue"
	"github.com/okian/matchday/internal/adapters/repository"
	"github.com/okian/matchday/internal/deadletter"
	. "github.com/smartystreets/goconvey/convey"
)

func TestLedger(t *testing.T) {
	Convey("Given a ledger over sqlite and an in-memory broker", t, func() {
		ctx := context.Background()
		store, err := repository.Open(ctx, "sqlite", ":memory:", repository.WithPool(1, 1, 0))
		So(err, ShouldBeNil)
		So(store.Migrate(ctx), ShouldBeNil)
		defer store.Close()

		broker := queue.NewInMemoryQueue()
		producer := queue.NewProducer(broker, func(string) queue.Policy { return queue.Policy{Attempts: 3, Backoff: time.Second} })
		ledger := deadletter.New(store, producer)

		// Run the job to a terminal failure the way a consumer would.
		_, err = producer.Add(ctx, "settlement", "settlement-9", map[string]any{"fixtureId": 9}, 0)
		So(err, ShouldBeNil)
		job, err := broker.Dequeue(ctx, "settlement", time.Minute)
		So(err, ShouldBeNil)
		So(broker.Fail(ctx, *job, errors.New("no result")), ShouldBeNil)
		So(ledger.Record(ctx, *job, errors.New("no result"), true), ShouldBeNil)

		Convey("The entry is listed once per job", func() {
			So(ledger.Record(ctx, *job, errors.New("no result again"), true), ShouldBeNil)
			entries, err := ledger.List(ctx, "")
			So(err, ShouldBeNil)
			So(len(entries), ShouldEqual, 1)
			So(entries[0].Reason, ShouldEqual, "no result again")
			So(entries[0].Attempts, ShouldEqual, 1)
		})

		Convey("Replay re-enqueues the payload with a fresh budget", func() {
			So(ledger.Replay(ctx, "settlement", "settlement-9"), ShouldBeNil)
			j, err := broker.Get(ctx, "settlement", "settlement-9")
			So(err, ShouldBeNil)
			So(j.State, ShouldEqual, queue.StateWaiting)
			So(j.Attempts, ShouldEqual, 0)
			So(string(j.Payload), ShouldEqual, `{"fixtureId":9}`)

			entries, err := ledger.List(ctx, "settlement")
			So(err, ShouldBeNil)
			So(entries, ShouldBeEmpty)
		})

		Convey("Replay refuses while the id is still queued", func() {
			So(broker.Clear(ctx, "settlement", "settlement-9"), ShouldBeNil)
			_, err := producer.Add(ctx, "settlement", "settlement-9", map[string]any{"fixtureId": 9}, time.Hour)
			So(err, ShouldBeNil)
			So(errors.Is(ledger.Replay(ctx, "settlement", "settlement-9"), deadletter.ErrReplayConflict), ShouldBeTrue)
		})

		Convey("Delete and purge empty the ledger", func() {
			So(ledger.Delete(ctx, "settlement", "settlement-9"), ShouldBeNil)
			So(errors.Is(ledger.Delete(ctx, "settlement", "settlement-9"), repository.ErrNotFound), ShouldBeTrue)
			So(ledger.Record(ctx, *job, errors.New("x"), false), ShouldBeNil)
			n, err := ledger.Purge(ctx)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, int64(1))
		})
	})
}
