package scheduler

import (
	"time"

	"github.com/okian/matchday/internal/domain/model"
)

// Slot is one planned stage job of a fixture.
type Slot struct {
	Stage   model.Stage
	Name    string
	Offset  time.Duration
	JobID   string
	Delay   time.Duration
	Payload model.Payload
}

type offset struct {
	stage  model.Stage
	name   string
	before time.Duration
}

// offsets is the per-fixture plan, relative to kickoff.
var offsets = []offset{
	{model.StageAnalysis, "", 6 * time.Hour},
	{model.StageOdds, "t120", 2 * time.Hour},
	{model.StageForecasts, "a1", 90 * time.Minute},
	{model.StageOdds, "t95", 95 * time.Minute},
	{model.StageLineups, "", time.Hour},
	{model.StageOdds, "t35", 35 * time.Minute},
	{model.StageForecasts, "a2", 30 * time.Minute},
	{model.StageOdds, "t10", 10 * time.Minute},
	{model.StageForecasts, "a3", 5 * time.Minute},
	{model.StageLive, "", 0},
}

// Calendar returns the stage jobs of f relative to now. Slots whose time
// has already passed run immediately.
func Calendar(f model.Fixture, now time.Time) []Slot {
	ref := f.Ref(false)
	out := make([]Slot, 0, len(offsets))
	attempt := 0
	for _, o := range offsets {
		s := Slot{
			Stage:  o.stage,
			Name:   o.name,
			Offset: o.before,
			JobID:  model.JobID(o.stage, f.ID, o.name, false),
		}
		if d := f.KickoffAt.Add(-o.before).Sub(now); d > 0 {
			s.Delay = d
		}
		switch o.stage {
		case model.StageAnalysis:
			s.Payload = model.AnalysisJob{FixtureRef: ref}
		case model.StageOdds:
			s.Payload = model.OddsJob{FixtureRef: ref, Slot: o.name}
		case model.StageLineups:
			s.Payload = model.LineupsJob{FixtureRef: ref}
		case model.StageForecasts:
			attempt++
			s.Payload = model.ForecastJob{
				FixtureRef: ref,
				Attempt:    attempt,
				Forced:     attempt == model.MaxForecastAttempts,
			}
		case model.StageLive:
			s.Payload = model.LiveJob{FixtureRef: ref}
		}
		out = append(out, s)
	}
	return out
}
