package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Favorite names the side the bookmakers price as most likely to win.
type Favorite string

const (
	FavoriteHome Favorite = "home"
	FavoriteAway Favorite = "away"
	FavoriteNone Favorite = "none"
)

// AnalysisSnapshot is the pre-match data gathered for one fixture.
//
// DataFetchedAt is set only when the upstream provider returned data. Rows
// written before that column existed fall back to the favorite indicator.
type AnalysisSnapshot struct {
	ID               uint64              `gorm:"primaryKey;autoIncrement" json:"id"`
	FixtureID        uint64              `gorm:"not null;uniqueIndex" json:"fixtureId"`
	HomeOdds         decimal.NullDecimal `gorm:"type:numeric(10,3)" json:"homeOdds"`
	DrawOdds         decimal.NullDecimal `gorm:"type:numeric(10,3)" json:"drawOdds"`
	AwayOdds         decimal.NullDecimal `gorm:"type:numeric(10,3)" json:"awayOdds"`
	HomeForm         string              `gorm:"size:16" json:"homeForm,omitempty"`
	AwayForm         string              `gorm:"size:16" json:"awayForm,omitempty"`
	HomeInjuries     int                 `json:"homeInjuries"`
	AwayInjuries     int                 `json:"awayInjuries"`
	Favorite         *Favorite           `gorm:"size:8" json:"favorite,omitempty"`
	Lineups          datatypes.JSON      `json:"lineups,omitempty"`
	DataFetchedAt    *time.Time          `json:"dataFetchedAt,omitempty"`
	OddsUpdatedAt    *time.Time          `json:"oddsUpdatedAt,omitempty"`
	LineupsUpdatedAt *time.Time          `json:"lineupsUpdatedAt,omitempty"`
	CreatedAt        time.Time           `json:"createdAt"`
	UpdatedAt        time.Time           `json:"updatedAt"`
}

// HasData reports whether upstream data actually backs this snapshot.
func (a *AnalysisSnapshot) HasData() bool {
	if a == nil {
		return false
	}
	return a.DataFetchedAt != nil || a.Favorite != nil
}

// FavoriteFromOdds picks the side with the shortest price. Equal prices on
// both sides yield FavoriteNone; missing prices yield nil.
func FavoriteFromOdds(home, away decimal.NullDecimal) *Favorite {
	if !home.Valid || !away.Valid {
		return nil
	}
	f := FavoriteNone
	switch home.Decimal.Cmp(away.Decimal) {
	case -1:
		f = FavoriteHome
	case 1:
		f = FavoriteAway
	}
	return &f
}
