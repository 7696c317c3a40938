package deploy

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/matchday/internal/domain/model"
)

// Built-in task ids.
const (
	BackfillDataFetchedID = "2026-03-analysis-data-fetched-at"
	DeepBackfillID        = "2026-03-deep-backfill-90d"
	DeepBackfillDays      = 90
)

// Stamper backfills the explicit data-presence column.
type Stamper interface {
	BackfillDataFetched(ctx context.Context) (int64, error)
}

// Enqueuer adds jobs.
type Enqueuer interface {
	Add(ctx context.Context, queue, id string, payload any, delay time.Duration) (bool, error)
}

// BackfillDataFetched stamps data_fetched_at on snapshots that only carry
// the legacy favorite indicator.
func BackfillDataFetched(s Stamper) Task {
	return Task{
		ID: BackfillDataFetchedID,
		Run: func(ctx context.Context) (string, error) {
			n, err := s.BackfillDataFetched(ctx)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("stamped %d snapshots", n), nil
		},
	}
}

// DeepBackfill enqueues one reconciler run over the last 90 days.
func DeepBackfill(q Enqueuer) Task {
	return Task{
		ID: DeepBackfillID,
		Run: func(ctx context.Context) (string, error) {
			p := model.BackfillJob{LookbackDays: DeepBackfillDays, Reason: "deploy"}
			added, err := q.Add(ctx, p.Stage().Queue(), "backfill-deploy-"+DeepBackfillID, p, 0)
			if err != nil {
				return "", err
			}
			if !added {
				return "backfill already queued", nil
			}
			return "backfill queued", nil
		},
	}
}
