// Package upstream talks to the external sports-data and forecast
// inference providers.
package upstream

import (
	"context"
	"errors"
	"time"

	"github.com/okian/matchday/internal/domain/model"
	"github.com/shopspring/decimal"
)

// ErrNoData is wrapped in a no-data failure when the provider has nothing
// for the requested fixture.
var ErrNoData = errors.New("provider returned no data")

// FixtureInfo is one fixture as listed by the sports-data provider.
type FixtureInfo struct {
	ExternalID  string
	Competition string
	HomeTeam    string
	AwayTeam    string
	KickoffAt   time.Time
	Status      model.FixtureStatus
	HomeScore   *int
	AwayScore   *int
}

// Fixture converts the listing into a fixture row.
func (f FixtureInfo) Fixture() model.Fixture {
	ext := f.ExternalID
	return model.Fixture{
		ExternalID:  &ext,
		Competition: f.Competition,
		HomeTeam:    f.HomeTeam,
		AwayTeam:    f.AwayTeam,
		KickoffAt:   f.KickoffAt.UTC(),
		Status:      f.Status,
		HomeScore:   f.HomeScore,
		AwayScore:   f.AwayScore,
	}
}

// Odds are decimal 1X2 prices.
type Odds struct {
	Home decimal.NullDecimal
	Draw decimal.NullDecimal
	Away decimal.NullDecimal
}

// Empty reports whether no price is present.
func (o Odds) Empty() bool { return !o.Home.Valid && !o.Draw.Valid && !o.Away.Valid }

// Analysis is the pre-match data of one fixture.
type Analysis struct {
	Odds         Odds
	HomeForm     string
	AwayForm     string
	HomeInjuries int
	AwayInjuries int
}

// Lineups are the announced starting elevens and injury counts.
type Lineups struct {
	Home         []string `json:"home"`
	Away         []string `json:"away"`
	HomeInjuries int      `json:"homeInjuries"`
	AwayInjuries int      `json:"awayInjuries"`
}

// Status is the live state of one fixture.
type Status struct {
	Status    model.FixtureStatus
	HomeScore *int
	AwayScore *int
}

// SportsData is the fixture, odds and result provider.
type SportsData interface {
	Fixtures(ctx context.Context, from, to time.Time) ([]FixtureInfo, error)
	Analysis(ctx context.Context, externalID string) (Analysis, error)
	Odds(ctx context.Context, externalID string) (Odds, error)
	Lineups(ctx context.Context, externalID string) (Lineups, error)
	Status(ctx context.Context, externalID string) (Status, error)
}

// PredictRequest is what a forecaster sees of a fixture.
type PredictRequest struct {
	Model    string
	Fixture  model.FixtureRef
	Kickoff  time.Time
	Analysis *model.AnalysisSnapshot
}

// Predictor produces the raw textual forecast of one model.
type Predictor interface {
	Predict(ctx context.Context, req PredictRequest) (string, error)
}

// PredictorFunc adapts a function to Predictor.
type PredictorFunc func(ctx context.Context, req PredictRequest) (string, error)

func (f PredictorFunc) Predict(ctx context.Context, req PredictRequest) (string, error) {
	return f(ctx, req)
}
