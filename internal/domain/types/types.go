// Package types contains the response shapes of the admin surface.
package types

import (
	"time"
)

// QueueCounts are the job counts of one queue.
type QueueCounts struct {
	Queue     string `json:"queue"`
	Waiting   int64  `json:"waiting"`
	Active    int64  `json:"active"`
	Delayed   int64  `json:"delayed"`
	Failed    int64  `json:"failed"`
	Completed int64  `json:"completed"`
	Paused    bool   `json:"paused"`
}

// Severity grades a coverage gap by time left before kickoff.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// CoverageGap is an upcoming fixture missing pipeline output.
type CoverageGap struct {
	FixtureID        uint64    `json:"fixtureId"`
	HomeTeam         string    `json:"homeTeam"`
	AwayTeam         string    `json:"awayTeam"`
	KickoffAt        time.Time `json:"kickoffAt"`
	MinutesToKickoff int       `json:"minutesToKickoff"`
	Severity         Severity  `json:"severity"`
	MissingAnalysis  bool      `json:"missingAnalysis"`
	Forecasts        int       `json:"forecasts"`
	Expected         int       `json:"expected"`
}

// ServiceBreaker is the status of one persisted service breaker.
type ServiceBreaker struct {
	Name                string     `json:"name"`
	State               string     `json:"state"`
	ConsecutiveFailures uint32     `json:"consecutiveFailures"`
	TotalFailures       uint32     `json:"totalFailures"`
	TotalSuccesses      uint32     `json:"totalSuccesses"`
	LastFailureAt       *time.Time `json:"lastFailureAt,omitempty"`
}

// QueueBreaker is the status of one queue breaker.
type QueueBreaker struct {
	Queue                string     `json:"queue"`
	Paused               bool       `json:"paused"`
	ConsecutiveRateLimit int        `json:"consecutiveRateLimits"`
	Threshold            int        `json:"threshold"`
	ResumeAt             *time.Time `json:"resumeAt,omitempty"`
	Trips                int        `json:"trips"`
}

// Breakers groups every breaker status.
type Breakers struct {
	Services []ServiceBreaker `json:"services"`
	Queues   []QueueBreaker   `json:"queues"`
}
