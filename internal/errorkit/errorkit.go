// Package errorkit defines the closed error taxonomy shared by every
// component of the orchestration core. Every error that
// crosses a package boundary is either one of these sentinel kinds, or
// is wrapped with Wrap so callers can classify it with errors.Is /
// errors.As without depending on a specific package's error variables.
package errorkit

import (
	"errors"
	"fmt"
)

// Kind is a closed enum of error categories. The set is fixed and is
// not meant to grow casually; adding a Kind means
// updating Retryable and every switch that dispatches on Kind.
type Kind string

const (
	KindValidation     Kind = "validation"
	KindAuthentication Kind = "authentication"
	KindNotFound       Kind = "not_found"
	KindConflict       Kind = "conflict"
	KindTimeout        Kind = "timeout"
	KindUnavailable    Kind = "unavailable"
	KindProtocolError  Kind = "protocol_error"
	KindStateError     Kind = "state_error"
	KindDeadlockError  Kind = "deadlock_error"
	KindBudgetExhausted Kind = "budget_exhausted"
	KindCancelled      Kind = "cancelled"
)

// Retryable reports whether errors of this kind are, in principle,
// worth retrying. The
// scheduler's backoff policy treats a non-retryable kind as terminal
// regardless of remaining attempts.
func (k Kind) Retryable() bool {
	switch k {
	case KindConflict, KindTimeout, KindUnavailable, KindProtocolError:
		return true
	default:
		return false
	}
}

// Error is the concrete error type carried across package boundaries.
// Component and CorrelationID are optional diagnostic context; they
// are never parsed by callers, only logged.
type Error struct {
	Kind          Kind
	Component     string
	CorrelationID string
	RecoveryHint  string
	Op            string
	Err           error
}

func (e *Error) Error() string {
	if e.Op != "" {
		if e.Err != nil {
			return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
		}
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is allows errors.Is(err, errorkit.New(KindNotFound, ...)) style
// comparisons to match purely on Kind, independent of message/op.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New constructs a bare *Error of the given kind with a message.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Err: errors.New(msg)}
}

// Wrap attaches op and kind context to an existing error. If err is
// already an *Error, its Kind is preserved unless overridden is
// explicitly requested via WrapAs.
func Wrap(op string, kind Kind, err error) error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) {
		kind = existing.Kind
	}
	return &Error{Op: op, Kind: kind, Err: err}
}

// WrapAs forcibly reclassifies err under a new Kind, keeping the
// original error as the wrapped cause.
func WrapAs(op string, kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Kind: kind, Err: err}
}

// WithContext attaches component and correlation-id diagnostic fields
// to an *Error in place, returning it for chaining. Non-*Error inputs
// are returned unchanged since they carry no Kind to annotate.
func WithContext(err error, component, correlationID string) error {
	var e *Error
	if errors.As(err, &e) {
		e.Component = component
		e.CorrelationID = correlationID
		return e
	}
	return err
}

// KindOf extracts the Kind of err, defaulting to KindStateError if err
// does not wrap an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindStateError
}

// Retryable reports whether err should be retried.
func Retryable(err error) bool {
	return KindOf(err).Retryable()
}

// Is* helpers classify an error by Kind without the caller importing
// errors.As boilerplate.
func IsNotFound(err error) bool    { return KindOf(err) == KindNotFound }
func IsConflict(err error) bool    { return KindOf(err) == KindConflict }
func IsTimeout(err error) bool     { return KindOf(err) == KindTimeout }
func IsUnavailable(err error) bool { return KindOf(err) == KindUnavailable }
func IsDeadlock(err error) bool    { return KindOf(err) == KindDeadlockError }
func IsCancelled(err error) bool   { return KindOf(err) == KindCancelled }
func IsBudgetExhausted(err error) bool { return KindOf(err) == KindBudgetExhausted }

// Sentinel values for comparison with errors.Is where no additional
// context is needed.
var (
	ErrNotFound        = &Error{Kind: KindNotFound, Err: errors.New("not found")}
	ErrConflict        = &Error{Kind: KindConflict, Err: errors.New("conflict")}
	ErrDeadlock        = &Error{Kind: KindDeadlockError, Err: errors.New("dependency cycle detected")}
	ErrBudgetExhausted = &Error{Kind: KindBudgetExhausted, Err: errors.New("retry budget exhausted")}
	ErrCancelled       = &Error{Kind: KindCancelled, Err: errors.New("operation cancelled")}
)
