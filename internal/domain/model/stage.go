package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Stage names a pipeline stage. Every stage owns exactly one queue and the
// queue name equals the stage name.
type Stage string

const (
	StageIngest     Stage = "ingest"
	StageAnalysis   Stage = "analysis"
	StageOdds       Stage = "odds"
	StageLineups    Stage = "lineups"
	StageForecasts  Stage = "forecasts"
	StageLive       Stage = "live"
	StageSettlement Stage = "settlement"
	StageBackfill   Stage = "backfill"
)

// Stages lists every stage in pipeline order.
func Stages() []Stage {
	return []Stage{
		StageIngest, StageAnalysis, StageOdds, StageLineups,
		StageForecasts, StageLive, StageSettlement, StageBackfill,
	}
}

// Queue returns the queue this stage consumes.
func (s Stage) Queue() string { return string(s) }

// ParseStage maps a queue name back to its stage.
func ParseStage(queue string) (Stage, error) {
	for _, s := range Stages() {
		if string(s) == queue {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStage, queue)
}

// JobID builds the deterministic job identifier for a fixture stage.
// Normal jobs are "<stage>-<fixture>" or "<stage>-<slot>-<fixture>" when a
// stage runs several times per fixture; retroactive jobs are
// "<stage>-retro-<fixture>".
func JobID(stage Stage, fixtureID uint64, slot string, retroactive bool) string {
	id := strconv.FormatUint(fixtureID, 10)
	switch {
	case retroactive:
		return string(stage) + "-retro-" + id
	case slot != "":
		return string(stage) + "-" + slot + "-" + id
	default:
		return string(stage) + "-" + id
	}
}

// Payload is implemented by every stage payload variant.
type Payload interface {
	Stage() Stage
	Validate() error
}

// FixtureRef is the common part of every fixture-scoped payload.
type FixtureRef struct {
	FixtureID        uint64 `json:"fixtureId"`
	ExternalID       string `json:"externalId"`
	HomeTeam         string `json:"teamA"`
	AwayTeam         string `json:"teamB"`
	AllowRetroactive bool   `json:"allowRetroactive,omitempty"`
}

func (r FixtureRef) validate(needExternal bool) error {
	if r.FixtureID == 0 {
		return ErrMissingFixture
	}
	if needExternal && r.ExternalID == "" {
		return ErrMissingExternal
	}
	return nil
}

// AnalysisJob fetches the pre-match analysis of a fixture.
type AnalysisJob struct {
	FixtureRef
}

func (AnalysisJob) Stage() Stage      { return StageAnalysis }
func (p AnalysisJob) Validate() error { return p.validate(true) }

// OddsJob refreshes the odds of a fixture. Slot identifies the refresh.
type OddsJob struct {
	FixtureRef
	Slot string `json:"slot,omitempty"`
}

func (OddsJob) Stage() Stage      { return StageOdds }
func (p OddsJob) Validate() error { return p.validate(true) }

// LineupsJob fetches lineups and injuries.
type LineupsJob struct {
	FixtureRef
}

func (LineupsJob) Stage() Stage      { return StageLineups }
func (p LineupsJob) Validate() error { return p.validate(true) }

// MaxForecastAttempts is the number of timed forecast attempts per fixture.
const MaxForecastAttempts = 3

// ForecastJob collects forecasts. The final attempt is forced: it runs even
// when the analysis snapshot holds no data.
type ForecastJob struct {
	FixtureRef
	Attempt int  `json:"attempt"`
	Forced  bool `json:"forced,omitempty"`
}

func (ForecastJob) Stage() Stage { return StageForecasts }

func (p ForecastJob) Validate() error {
	if err := p.validate(false); err != nil {
		return err
	}
	if !p.AllowRetroactive && (p.Attempt < 1 || p.Attempt > MaxForecastAttempts) {
		return fmt.Errorf("%w: attempt %d out of range", ErrInvalidPayload, p.Attempt)
	}
	return nil
}

// LiveJob monitors a fixture from kickoff until it finishes.
type LiveJob struct {
	FixtureRef
}

func (LiveJob) Stage() Stage      { return StageLive }
func (p LiveJob) Validate() error { return p.validate(true) }

// SettlementJob scores a finished fixture.
type SettlementJob struct {
	FixtureRef
}

func (SettlementJob) Stage() Stage      { return StageSettlement }
func (p SettlementJob) Validate() error { return p.validate(false) }

// IngestJob pulls the fixture list for a window.
type IngestJob struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

func (IngestJob) Stage() Stage { return StageIngest }

func (p IngestJob) Validate() error {
	if p.From.IsZero() || !p.To.After(p.From) {
		return fmt.Errorf("%w: empty ingest window", ErrInvalidPayload)
	}
	return nil
}

// BackfillJob runs the retroactive reconciler.
type BackfillJob struct {
	LookbackDays int             `json:"lookbackDays"`
	Reason       string          `json:"reason,omitempty"`
	Resume       *BackfillCursor `json:"resume,omitempty"`
}

// BackfillCursor marks the first fixture a budget-limited run did not reach.
// Fixtures ordered before it were handled by an earlier run.
type BackfillCursor struct {
	KickoffAt time.Time `json:"kickoffAt"`
	FixtureID uint64    `json:"fixtureId"`
	// Unsettled is set when the gap sweep finished and the run stopped in
	// the unsettled sweep.
	Unsettled bool `json:"unsettled,omitempty"`
}

// Reached reports whether f sorts at or after the cursor.
func (c *BackfillCursor) Reached(f Fixture) bool {
	if c == nil {
		return true
	}
	k := f.KickoffAt.UTC()
	at := c.KickoffAt.UTC()
	return k.After(at) || (k.Equal(at) && f.ID >= c.FixtureID)
}

func (BackfillJob) Stage() Stage { return StageBackfill }

func (p BackfillJob) Validate() error {
	if p.LookbackDays < 1 || p.LookbackDays > 365 {
		return fmt.Errorf("%w: lookback %d days", ErrInvalidPayload, p.LookbackDays)
	}
	return nil
}

// DecodePayload strictly decodes a job body taken from queue into T.
// Unknown fields, a foreign queue or a failed Validate are all rejected.
func DecodePayload[T Payload](queue string, data []byte) (T, error) {
	var p T
	if p.Stage().Queue() != queue {
		return p, fmt.Errorf("%w: %s payload on %s", ErrStageMismatch, p.Stage(), queue)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return p, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if err := p.Validate(); err != nil {
		return p, err
	}
	return p, nil
}
