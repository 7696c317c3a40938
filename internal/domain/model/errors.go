package model

import (
	"errors"
)

// Sentinel errors for model validation.
var (
	ErrInvalidStatus   = errors.New("invalid fixture status")
	ErrMissingTeams    = errors.New("fixture needs both team names")
	ErrScoreInvariant  = errors.New("scores must be present iff the fixture is finished")
	ErrInvalidPayload  = errors.New("invalid job payload")
	ErrStageMismatch   = errors.New("payload does not belong to this queue")
	ErrUnknownStage    = errors.New("unknown stage")
	ErrMissingFixture  = errors.New("payload needs a fixture id")
	ErrMissingExternal = errors.New("payload needs an external id")
)
