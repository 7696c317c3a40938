package tracker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/okian/matchday/pkg/tracker"
	. "github.com/smartystreets/goconvey/convey"
)

type recorder struct {
	mu     sync.Mutex
	events []*sentry.Event
}

func (r *recorder) beforeSend(e *sentry.Event, _ *sentry.EventHint) *sentry.Event {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
	return nil
}

func TestTracker(t *testing.T) {
	Convey("Without a DSN the tracker is a no-op", t, func() {
		tr, err := tracker.New("", "test", "")
		So(err, ShouldBeNil)
		So(tr, ShouldHaveSameTypeAs, tracker.Noop{})
		So(tr.Flush(time.Second), ShouldBeTrue)
	})

	Convey("Given a Sentry tracker with a recording transport", t, func() {
		transport := &recorder{}
		client, err := sentry.NewClient(sentry.ClientOptions{BeforeSend: transport.beforeSend})
		So(err, ShouldBeNil)
		tr := tracker.NewSentry(sentry.NewHub(client, sentry.NewScope()))
		ctx := context.Background()

		Convey("Capture sends the error with its tags", func() {
			tr.Capture(ctx, errors.New("upstream exploded"), map[string]string{"queue": "analysis"})
			So(len(transport.events), ShouldEqual, 1)
			So(transport.events[0].Level, ShouldEqual, sentry.LevelError)
			So(transport.events[0].Tags["queue"], ShouldEqual, "analysis")
		})

		Convey("Alert is fatal", func() {
			tr.Alert(ctx, "predictor credentials rejected", errors.New("401"), nil)
			So(len(transport.events), ShouldEqual, 1)
			So(transport.events[0].Level, ShouldEqual, sentry.LevelFatal)
			So(transport.events[0].Message, ShouldEqual, "predictor credentials rejected")
		})

		Convey("A nil error is ignored", func() {
			tr.Capture(ctx, nil, nil)
			So(transport.events, ShouldBeEmpty)
		})
	})
}
