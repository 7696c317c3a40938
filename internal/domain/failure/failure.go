// Package failure classifies job and upstream errors into the kinds the
// queue consumers act on.
package failure

import (
	"errors"
	"fmt"
)

// Kind is the handling class of an error.
type Kind int

const (
	// KindTransient errors are retried with backoff.
	KindTransient Kind = iota
	// KindRateLimited is transient and also feeds the queue breaker.
	KindRateLimited
	// KindBreakerOpen means the call was refused before the network hop.
	KindBreakerOpen
	// KindPermanent can never succeed on retry.
	KindPermanent
	// KindNoData is permanent and expected: the provider has nothing for us.
	KindNoData
	// KindNotFound is permanent and expected: the entity does not exist.
	KindNotFound
	// KindConfig is permanent and points at a systemic misconfiguration.
	KindConfig
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindRateLimited:
		return "rate_limited"
	case KindBreakerOpen:
		return "breaker_open"
	case KindPermanent:
		return "permanent"
	case KindNoData:
		return "no_data"
	case KindNotFound:
		return "not_found"
	case KindConfig:
		return "config"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error wraps an underlying error with its handling kind.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return e.Op + ": " + e.Kind.String() + ": " + e.Err.Error()
	case e.Err != nil:
		return e.Kind.String() + ": " + e.Err.Error()
	case e.Op != "":
		return e.Op + ": " + e.Kind.String()
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Err }

func wrap(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Constructors.
func Transient(op string, err error) error   { return wrap(KindTransient, op, err) }
func RateLimited(op string, err error) error { return wrap(KindRateLimited, op, err) }
func BreakerOpen(op string, err error) error { return wrap(KindBreakerOpen, op, err) }
func Permanent(op string, err error) error   { return wrap(KindPermanent, op, err) }
func NoData(op string, err error) error      { return wrap(KindNoData, op, err) }
func NotFound(op string, err error) error    { return wrap(KindNotFound, op, err) }
func Config(op string, err error) error      { return wrap(KindConfig, op, err) }

// KindOf returns the kind of the outermost classified error in the chain.
// Unclassified errors are transient.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindTransient
}

// Classify wraps an unclassified error as transient and leaves classified
// errors untouched. Nil stays nil.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) {
		return err
	}
	return Transient(op, err)
}

// IsRetryable reports whether the queue should retry the job.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindTransient, KindRateLimited, KindBreakerOpen:
		return true
	}
	return false
}

// IsPermanent reports whether the job must skip the retry budget.
func IsPermanent(err error) bool {
	return err != nil && !IsRetryable(err)
}

// IsExpected reports permanent failures that are not operational alarms.
func IsExpected(err error) bool {
	if err == nil {
		return false
	}
	k := KindOf(err)
	return k == KindNoData || k == KindNotFound
}

// IsRateLimited reports an upstream rate-limit rejection.
func IsRateLimited(err error) bool { return err != nil && KindOf(err) == KindRateLimited }

// IsBreakerOpen reports a call refused by an open circuit breaker.
func IsBreakerOpen(err error) bool { return err != nil && KindOf(err) == KindBreakerOpen }

// IsConfig reports a configuration or authorization failure.
func IsConfig(err error) bool { return err != nil && KindOf(err) == KindConfig }
