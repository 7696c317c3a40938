package model

import (
	"time"

	"gorm.io/datatypes"
)

// BreakerState is the persisted state of one guarded dependency. Data holds
// the breaker's own serialized counters; the other columns mirror it for
// operators and queries.
type BreakerState struct {
	Name                string     `gorm:"primaryKey;size:128" json:"name"`
	State               string     `gorm:"size:16;not null;default:closed" json:"state"`
	ConsecutiveFailures uint32     `json:"consecutiveFailures"`
	TotalFailures       uint32     `json:"totalFailures"`
	TotalSuccesses      uint32     `json:"totalSuccesses"`
	LastFailureAt       *time.Time `json:"lastFailureAt,omitempty"`
	Data                []byte     `json:"-"`
	LockOwner           string     `gorm:"size:64" json:"-"`
	LockExpiresAt       *time.Time `json:"-"`
	UpdatedAt           time.Time  `json:"updatedAt"`
}

// DeadLetter is one permanently failed job.
type DeadLetter struct {
	ID        uint64         `gorm:"primaryKey;autoIncrement" json:"id"`
	Queue     string         `gorm:"size:64;not null;uniqueIndex:uk_dead_letter_queue_job,priority:1" json:"queue"`
	JobID     string         `gorm:"size:191;not null;uniqueIndex:uk_dead_letter_queue_job,priority:2" json:"jobId"`
	Payload   datatypes.JSON `json:"payload"`
	Reason    string         `gorm:"type:text" json:"reason"`
	Attempts  int            `json:"attempts"`
	Permanent bool           `json:"permanent"`
	FailedAt  time.Time      `gorm:"not null;index" json:"failedAt"`
}

// DeployTaskStatus is the lifecycle of a deploy task claim.
type DeployTaskStatus string

const (
	DeployTaskRunning   DeployTaskStatus = "running"
	DeployTaskCompleted DeployTaskStatus = "completed"
)

// DeployTask records a one-shot maintenance task. IDs are never reused.
type DeployTask struct {
	ID          string           `gorm:"primaryKey;size:128" json:"id"`
	Status      DeployTaskStatus `gorm:"size:16;not null" json:"status"`
	Result      string           `gorm:"type:text" json:"result"`
	StartedAt   time.Time        `json:"startedAt"`
	CompletedAt *time.Time       `json:"completedAt,omitempty"`
}
