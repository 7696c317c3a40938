package upstream

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/okian/matchday/internal/domain/failure"
	"github.com/okian/matchday/internal/domain/model"
	"github.com/shopspring/decimal"
)

// SportsClient is the HTTP sports-data provider.
type SportsClient struct {
	c *client
}

var _ SportsData = (*SportsClient)(nil)

// NewSportsClient creates a provider client.
func NewSportsClient(baseURL, apiKey string, timeout time.Duration, opts ...ClientOption) *SportsClient {
	return &SportsClient{c: newClient(baseURL, apiKey, timeout, opts...)}
}

type fixtureDTO struct {
	ID          string    `json:"id"`
	Competition string    `json:"competition"`
	Home        string    `json:"home"`
	Away        string    `json:"away"`
	Kickoff     time.Time `json:"kickoff"`
	Status      string    `json:"status"`
	HomeScore   *int      `json:"homeScore"`
	AwayScore   *int      `json:"awayScore"`
}

type oddsDTO struct {
	Home decimal.NullDecimal `json:"home"`
	Draw decimal.NullDecimal `json:"draw"`
	Away decimal.NullDecimal `json:"away"`
}

func (o oddsDTO) odds() Odds { return Odds{Home: o.Home, Draw: o.Draw, Away: o.Away} }

type analysisDTO struct {
	Odds         *oddsDTO `json:"odds"`
	HomeForm     string   `json:"homeForm"`
	AwayForm     string   `json:"awayForm"`
	HomeInjuries int      `json:"homeInjuries"`
	AwayInjuries int      `json:"awayInjuries"`
}

// ParseStatus maps a provider status string onto a fixture status.
// Unknown values are treated as scheduled.
func ParseStatus(s string) model.FixtureStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "live", "in_play", "inplay", "1h", "2h", "ht", "et", "pen":
		return model.StatusLive
	case "finished", "ft", "aet", "full_time":
		return model.StatusFinished
	case "cancelled", "canceled", "abandoned":
		return model.StatusCancelled
	case "postponed", "suspended":
		return model.StatusPostponed
	default:
		return model.StatusScheduled
	}
}

func (s *SportsClient) Fixtures(ctx context.Context, from, to time.Time) ([]FixtureInfo, error) {
	const op = "upstream.fixtures"
	q := url.Values{}
	q.Set("from", from.UTC().Format(time.RFC3339))
	q.Set("to", to.UTC().Format(time.RFC3339))
	var body struct {
		Fixtures []fixtureDTO `json:"fixtures"`
	}
	if err := s.c.get(ctx, op, "/fixtures", q, &body); err != nil {
		if failure.KindOf(err) == failure.KindNoData {
			return nil, nil
		}
		return nil, err
	}
	out := make([]FixtureInfo, 0, len(body.Fixtures))
	for _, f := range body.Fixtures {
		if f.ID == "" {
			continue
		}
		out = append(out, FixtureInfo{
			ExternalID:  f.ID,
			Competition: f.Competition,
			HomeTeam:    f.Home,
			AwayTeam:    f.Away,
			KickoffAt:   f.Kickoff.UTC(),
			Status:      ParseStatus(f.Status),
			HomeScore:   f.HomeScore,
			AwayScore:   f.AwayScore,
		})
	}
	return out, nil
}

func (s *SportsClient) Analysis(ctx context.Context, externalID string) (Analysis, error) {
	const op = "upstream.analysis"
	var body analysisDTO
	if err := s.c.get(ctx, op, "/fixtures/"+url.PathEscape(externalID)+"/analysis", nil, &body); err != nil {
		return Analysis{}, err
	}
	if body.Odds == nil && body.HomeForm == "" && body.AwayForm == "" {
		return Analysis{}, failure.NoData(op, ErrNoData)
	}
	a := Analysis{
		HomeForm:     body.HomeForm,
		AwayForm:     body.AwayForm,
		HomeInjuries: body.HomeInjuries,
		AwayInjuries: body.AwayInjuries,
	}
	if body.Odds != nil {
		a.Odds = body.Odds.odds()
	}
	return a, nil
}

func (s *SportsClient) Odds(ctx context.Context, externalID string) (Odds, error) {
	const op = "upstream.odds"
	var body oddsDTO
	if err := s.c.get(ctx, op, "/fixtures/"+url.PathEscape(externalID)+"/odds", nil, &body); err != nil {
		return Odds{}, err
	}
	o := body.odds()
	if o.Empty() {
		return Odds{}, failure.NoData(op, ErrNoData)
	}
	return o, nil
}

func (s *SportsClient) Lineups(ctx context.Context, externalID string) (Lineups, error) {
	const op = "upstream.lineups"
	var body Lineups
	if err := s.c.get(ctx, op, "/fixtures/"+url.PathEscape(externalID)+"/lineups", nil, &body); err != nil {
		return Lineups{}, err
	}
	if len(body.Home) == 0 && len(body.Away) == 0 {
		return Lineups{}, failure.NoData(op, ErrNoData)
	}
	return body, nil
}

func (s *SportsClient) Status(ctx context.Context, externalID string) (Status, error) {
	const op = "upstream.status"
	var body struct {
		Status    string `json:"status"`
		HomeScore *int   `json:"homeScore"`
		AwayScore *int   `json:"awayScore"`
	}
	if err := s.c.get(ctx, op, "/fixtures/"+url.PathEscape(externalID)+"/status", nil, &body); err != nil {
		return Status{}, err
	}
	return Status{Status: ParseStatus(body.Status), HomeScore: body.HomeScore, AwayScore: body.AwayScore}, nil
}
