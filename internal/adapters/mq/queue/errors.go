package queue

import "errors"

// Sentinel kinds for broker errors.
var (
	ErrDuplicateJob = errors.New("job id already exists")
	ErrJobNotFound  = errors.New("job not found")
	ErrNotPending   = errors.New("job is not pending")
	ErrNotTerminal  = errors.New("job is not terminal")
	ErrNotActive    = errors.New("job is not active")
	ErrLeaseLost    = errors.New("job lease held by another delivery")
	ErrQueueFull    = errors.New("queue is full")
	ErrClosed       = errors.New("broker closed")
)
