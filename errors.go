package teamhub

import (
	"errors"
	"fmt"
)

// Kind classifies an error the way callers (REST adapters, the CLI) need
// to react to it, independent of the Go type that carries it.
type Kind int

const (
	// KindValidation is malformed input; surfaced as 4xx, never logged
	// as an incident.
	KindValidation Kind = iota
	// KindNotFound is a resource absent.
	KindNotFound
	// KindConflict is a state-machine violation.
	KindConflict
	// KindDriverUnavailable is a ContainerDriver connectivity error;
	// retry-safe.
	KindDriverUnavailable
	// KindDriverFailure is a completed-but-failed driver operation;
	// not retry-safe, operator intervention expected.
	KindDriverFailure
	// KindTransient covers disconnect/backoff conditions such as a
	// ChatClient reconnect window.
	KindTransient
	// KindOverflowClosed marks a subscription terminated for being too
	// slow to drain its delivery queue.
	KindOverflowClosed
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindDriverUnavailable:
		return "driver_unavailable"
	case KindDriverFailure:
		return "driver_failure"
	case KindTransient:
		return "transient"
	case KindOverflowClosed:
		return "overflow_closed"
	default:
		return "unknown"
	}
}

// Error is the typed error every core component returns. REST adapters
// and the CLI map Kind to a status code / exit code; nothing downstream
// needs to pattern-match on concrete Go types.
type Error struct {
	Kind    Kind
	Op      string // operation that failed, e.g. "CreateTeam"
	Message string
	Err     error // wrapped cause, may be nil
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error or a sentinel with the same
// Kind, so callers can write errors.Is(err, teamhub.ErrNotFound)
// instead of comparing Kind fields by hand.
func (e *Error) Is(target error) bool {
	var te *Error
	if errors.As(target, &te) {
		return e.Kind == te.Kind
	}
	var sk sentinelKind
	if errors.As(target, &sk) {
		return e.Kind == Kind(sk)
	}
	return false
}

// NewError constructs an *Error for the given kind and operation.
func NewError(kind Kind, op, message string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Err: cause}
}

// KindOf extracts the Kind from err, defaulting to KindDriverFailure
// (an internal, non-retry-safe error) when err is not a *teamhub.Error.
func KindOf(err error) Kind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return KindDriverFailure
}

// sentinelKind lets code do errors.Is(err, teamhub.ErrNotFound) against a
// bare kind without constructing a full *Error.
type sentinelKind Kind

func (s sentinelKind) Error() string { return Kind(s).String() }

func (s sentinelKind) Is(target error) bool {
	var te *Error
	if errors.As(target, &te) {
		return Kind(s) == te.Kind
	}
	var other sentinelKind
	if errors.As(target, &other) {
		return s == other
	}
	return false
}

// Sentinels for use with errors.Is against errors returned by this
// package and package serve/store/container/chat.
var (
	ErrValidation        error = sentinelKind(KindValidation)
	ErrNotFound          error = sentinelKind(KindNotFound)
	ErrConflict          error = sentinelKind(KindConflict)
	ErrDriverUnavailable error = sentinelKind(KindDriverUnavailable)
	ErrDriverFailure     error = sentinelKind(KindDriverFailure)
	ErrTransient         error = sentinelKind(KindTransient)
	ErrOverflowClosed    error = sentinelKind(KindOverflowClosed)
)
