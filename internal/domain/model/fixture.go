// Package model contains the persisted domain entities and the job payloads
// passed between pipeline stages.
package model

import (
	"time"
)

// FixtureStatus is the lifecycle state of a fixture.
type FixtureStatus string

const (
	StatusScheduled FixtureStatus = "scheduled"
	StatusLive      FixtureStatus = "live"
	StatusFinished  FixtureStatus = "finished"
	StatusCancelled FixtureStatus = "cancelled"
	StatusPostponed FixtureStatus = "postponed"
)

// Valid reports whether s is a known status.
func (s FixtureStatus) Valid() bool {
	switch s {
	case StatusScheduled, StatusLive, StatusFinished, StatusCancelled, StatusPostponed:
		return true
	}
	return false
}

// Void reports whether the fixture will never be played as scheduled.
func (s FixtureStatus) Void() bool {
	return s == StatusCancelled || s == StatusPostponed
}

// Outcome is the coarse result of a fixture (the tendency).
type Outcome string

const (
	OutcomeHome Outcome = "home"
	OutcomeDraw Outcome = "draw"
	OutcomeAway Outcome = "away"
)

// OutcomeOf derives the tendency from a score pair.
func OutcomeOf(home, away int) Outcome {
	switch {
	case home > away:
		return OutcomeHome
	case away > home:
		return OutcomeAway
	default:
		return OutcomeDraw
	}
}

// Fixture is one sporting event.
type Fixture struct {
	ID          uint64        `gorm:"primaryKey;autoIncrement" json:"id"`
	ExternalID  *string       `gorm:"size:64;uniqueIndex" json:"externalId,omitempty"`
	Competition string        `gorm:"size:128" json:"competition,omitempty"`
	HomeTeam    string        `gorm:"size:128;not null" json:"homeTeam"`
	AwayTeam    string        `gorm:"size:128;not null" json:"awayTeam"`
	KickoffAt   time.Time     `gorm:"not null;index" json:"kickoffAt"`
	Status      FixtureStatus `gorm:"size:16;not null;index;default:scheduled" json:"status"`
	HomeScore   *int          `json:"homeScore,omitempty"`
	AwayScore   *int          `json:"awayScore,omitempty"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}

// External returns the external identifier or "" when absent.
func (f Fixture) External() string {
	if f.ExternalID == nil {
		return ""
	}
	return *f.ExternalID
}

// HasResult reports whether the fixture is finished with both scores present.
func (f Fixture) HasResult() bool {
	return f.Status == StatusFinished && f.HomeScore != nil && f.AwayScore != nil
}

// Result returns the final outcome. ok is false until HasResult.
func (f Fixture) Result() (home, away int, ok bool) {
	if !f.HasResult() {
		return 0, 0, false
	}
	return *f.HomeScore, *f.AwayScore, true
}

// Validate checks the fixture invariants: scores are set iff finished.
func (f Fixture) Validate() error {
	if !f.Status.Valid() {
		return ErrInvalidStatus
	}
	if f.HomeTeam == "" || f.AwayTeam == "" {
		return ErrMissingTeams
	}
	scored := f.HomeScore != nil && f.AwayScore != nil
	partial := (f.HomeScore == nil) != (f.AwayScore == nil)
	if partial || (f.Status == StatusFinished) != scored {
		return ErrScoreInvariant
	}
	return nil
}

// Ref builds the job reference carried by stage payloads.
func (f Fixture) Ref(retroactive bool) FixtureRef {
	return FixtureRef{
		FixtureID:        f.ID,
		ExternalID:       f.External(),
		HomeTeam:         f.HomeTeam,
		AwayTeam:         f.AwayTeam,
		AllowRetroactive: retroactive,
	}
}

// Transition reports whether moving from s to next is allowed. Terminal
// states only accept themselves; postponed fixtures may be rescheduled.
func (s FixtureStatus) Transition(next FixtureStatus) bool {
	if s == next {
		return true
	}
	switch s {
	case StatusScheduled:
		return next == StatusLive || next == StatusFinished || next.Void()
	case StatusLive:
		return next == StatusFinished || next.Void()
	case StatusPostponed:
		return next == StatusScheduled || next == StatusCancelled
	}
	return false
}
