package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/matchday/internal/domain/types"
	"github.com/okian/matchday/pkg/metrics"
)

// CoverageWindow is how far ahead Coverage looks.
const CoverageWindow = 6 * time.Hour

// SeverityOf grades a gap by the time left before kickoff.
func SeverityOf(untilKickoff time.Duration) types.Severity {
	switch {
	case untilKickoff < 2*time.Hour:
		return types.SeverityCritical
	case untilKickoff < 4*time.Hour:
		return types.SeverityWarning
	default:
		return types.SeverityInfo
	}
}

// Coverage lists fixtures kicking off within CoverageWindow that lack
// analysis data or a full forecast population, most urgent first.
func (r *Reconciler) Coverage(ctx context.Context) ([]types.CoverageGap, error) {
	now := r.now()
	expected, err := r.store.ActiveForecasterCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("count forecasters: %w", err)
	}
	rows, err := r.store.Coverage(ctx, now, now.Add(CoverageWindow), r.limit)
	if err != nil {
		return nil, fmt.Errorf("coverage: %w", err)
	}

	counts := map[types.Severity]int{}
	out := make([]types.CoverageGap, 0)
	for _, c := range rows {
		if c.HasAnalysis && c.Forecasts >= expected {
			continue
		}
		until := c.Fixture.KickoffAt.Sub(now)
		sev := SeverityOf(until)
		counts[sev]++
		out = append(out, types.CoverageGap{
			FixtureID:        c.Fixture.ID,
			HomeTeam:         c.Fixture.HomeTeam,
			AwayTeam:         c.Fixture.AwayTeam,
			KickoffAt:        c.Fixture.KickoffAt,
			MinutesToKickoff: int(until.Minutes()),
			Severity:         sev,
			MissingAnalysis:  !c.HasAnalysis,
			Forecasts:        c.Forecasts,
			Expected:         expected,
		})
	}
	for _, sev := range []types.Severity{types.SeverityCritical, types.SeverityWarning, types.SeverityInfo} {
		metrics.UpdateCoverageGaps(string(sev), counts[sev])
	}
	return out, nil
}
