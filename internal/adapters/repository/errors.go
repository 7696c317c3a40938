package repository

import (
	"errors"
	"fmt"

	"github.com/okian/matchday/internal/domain/failure"
	"github.com/okian/matchday/internal/domain/model"
	"gorm.io/gorm"
)

// Sentinel kinds for store errors.
var (
	ErrNotFound          = errors.New("record not found")
	ErrInvalidLimit      = errors.New("invalid limit")
	ErrUnknownDriver     = errors.New("unknown database driver")
	ErrInvalidTransition = errors.New("invalid fixture status transition")
	ErrLocked            = errors.New("record is locked by another owner")
)

// wrap maps gorm errors onto the store's sentinels and the failure taxonomy.
// Missing rows are permanent not-found failures; everything else is transient.
func wrap(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound), errors.Is(err, ErrNotFound):
		return failure.NotFound(op, ErrNotFound)
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrInvalidLimit), errors.Is(err, model.ErrMissingExternal):
		return failure.Permanent(op, err)
	}
	return failure.Transient(op, fmt.Errorf("database: %w", err))
}
