package scheduler

import "errors"

var (
	ErrNoExternalID  = errors.New("fixture has no external id")
	ErrKickoffPassed = errors.New("fixture kickoff has passed")
	ErrNotScheduled  = errors.New("fixture is not in scheduled state")
)
