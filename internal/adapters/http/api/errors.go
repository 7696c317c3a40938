package api

import (
	"errors"
	"net/http"

	"github.com/okian/matchday/internal/deadletter"
	"github.com/okian/matchday/internal/domain/failure"
	"github.com/okian/matchday/internal/domain/model"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest   = errors.New("bad request")
	ErrUnauthorized = errors.New("unauthorized")
)

// Error tags an error with the handler that produced it.
type Error struct {
	Op   string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Op + ": " + e.Err.Error()
	}
	return e.Op + ": " + e.Kind.Error()
}

func (e *Error) Unwrap() []error { return []error{e.Kind, e.Err} }

// NewKind builds an error of a sentinel kind.
func NewKind(op string, kind error) error { return &Error{Op: op, Kind: kind} }

// Wrap tags err with op.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Kind: err, Err: err}
}

// statusOf maps an error onto an HTTP status and a short code.
func statusOf(err error) (int, string) {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, ErrBadRequest), errors.Is(err, model.ErrUnknownStage), errors.Is(err, model.ErrInvalidPayload):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, deadletter.ErrReplayConflict):
		return http.StatusConflict, "conflict"
	case failure.KindOf(err) == failure.KindNotFound:
		return http.StatusNotFound, "not_found"
	}
	return http.StatusInternalServerError, "internal_error"
}
