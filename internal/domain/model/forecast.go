package model

import (
	"time"
)

// ForecastStatus is the scoring lifecycle of a forecast.
type ForecastStatus string

const (
	ForecastPending ForecastStatus = "pending"
	ForecastScored  ForecastStatus = "scored"
)

// Forecast is one forecaster's score prediction for one fixture.
// The point fields stay nil until the fixture is settled.
type Forecast struct {
	ID               uint64         `gorm:"primaryKey;autoIncrement" json:"id"`
	FixtureID        uint64         `gorm:"not null;uniqueIndex:uk_forecast_fixture_forecaster,priority:1" json:"fixtureId"`
	ForecasterID     string         `gorm:"size:64;not null;uniqueIndex:uk_forecast_fixture_forecaster,priority:2;index" json:"forecasterId"`
	PredictedHome    int            `gorm:"not null" json:"predictedHome"`
	PredictedAway    int            `gorm:"not null" json:"predictedAway"`
	PredictedOutcome Outcome        `gorm:"size:8;not null" json:"predictedOutcome"`
	Status           ForecastStatus `gorm:"size:16;not null;default:pending;index" json:"status"`
	Attempt          int            `json:"attempt"`
	RawOutput        string         `gorm:"type:text" json:"-"`
	TendencyPoints   *int           `json:"tendencyPoints,omitempty"`
	GoalDiffBonus    *int           `json:"goalDiffBonus,omitempty"`
	ExactBonus       *int           `json:"exactBonus,omitempty"`
	TotalPoints      *int           `json:"totalPoints,omitempty"`
	ScoredAt         *time.Time     `json:"scoredAt,omitempty"`
	CreatedAt        time.Time      `json:"createdAt"`
	UpdatedAt        time.Time      `json:"updatedAt"`
}

// NewForecast builds a pending forecast with its derived outcome.
func NewForecast(fixtureID uint64, forecasterID string, home, away, attempt int) Forecast {
	return Forecast{
		FixtureID:        fixtureID,
		ForecasterID:     forecasterID,
		PredictedHome:    home,
		PredictedAway:    away,
		PredictedOutcome: OutcomeOf(home, away),
		Status:           ForecastPending,
		Attempt:          attempt,
	}
}

// StreakType classifies the current run of a forecaster.
type StreakType string

const (
	StreakNone     StreakType = "none"
	StreakPositive StreakType = "positive"
	StreakExact    StreakType = "exact"
	StreakNegative StreakType = "negative"
)

// Streak holds a forecaster's running counters.
type Streak struct {
	Current      int        `gorm:"column:streak_current;not null;default:0" json:"current"`
	Type         StreakType `gorm:"column:streak_type;size:16;not null;default:none" json:"type"`
	Best         int        `gorm:"column:streak_best;not null;default:0" json:"best"`
	Worst        int        `gorm:"column:streak_worst;not null;default:0" json:"worst"`
	ExactRun     int        `gorm:"column:streak_exact_run;not null;default:0" json:"exactRun"`
	BestExact    int        `gorm:"column:streak_best_exact;not null;default:0" json:"bestExact"`
	TendencyRun  int        `gorm:"column:streak_tendency_run;not null;default:0" json:"tendencyRun"`
	BestTendency int        `gorm:"column:streak_best_tendency;not null;default:0" json:"bestTendency"`
}

// Forecaster is a registered prediction source.
type Forecaster struct {
	ID                  string     `gorm:"primaryKey;size:64" json:"id"`
	Name                string     `gorm:"size:128;not null" json:"name"`
	Provider            string     `gorm:"size:64;not null" json:"provider"`
	Model               string     `gorm:"size:128" json:"model,omitempty"`
	Enabled             bool       `gorm:"not null" json:"enabled"`
	AutoDisabled        bool       `gorm:"not null;default:false" json:"autoDisabled"`
	ConsecutiveFailures int        `gorm:"not null;default:0" json:"consecutiveFailures"`
	LastFailureAt       *time.Time `json:"lastFailureAt,omitempty"`
	LastSuccessAt       *time.Time `json:"lastSuccessAt,omitempty"`
	LastError           string     `gorm:"type:text" json:"lastError,omitempty"`
	Streak              Streak     `gorm:"embedded" json:"streak"`
	CreatedAt           time.Time  `json:"createdAt"`
	UpdatedAt           time.Time  `json:"updatedAt"`
}

// Active reports whether the forecaster should be called.
func (f Forecaster) Active() bool {
	return f.Enabled && !f.AutoDisabled
}

// Standing is one row of the forecaster leaderboard.
type Standing struct {
	Rank         int    `json:"rank"`
	ForecasterID string `json:"forecasterId"`
	Points       int    `json:"points"`
	Scored       int    `json:"scored"`
	Exact        int    `json:"exact"`
}
