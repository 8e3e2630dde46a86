// Package errkind holds the error taxonomy from spec §7. Each kind carries
// a stable string (suitable for structured log fields and API responses)
// and wraps whatever caused it, following the %w-wrapping convention used
// throughout this codebase (see semantic/error_helpers.go).
package errkind

import (
	"errors"
	"fmt"
)

// Kind is a stable error-taxonomy tag.
type Kind string

const (
	CacheDeserialize       Kind = "cache_deserialize"
	CacheDurableWrite      Kind = "cache_durable_write"
	BusPublish             Kind = "bus_publish"
	BusConsumerLag         Kind = "bus_consumer_lag"
	SnapshotMissing        Kind = "snapshot_missing"
	RebaseConflict         Kind = "rebase_conflict"
	GraphInvariantViolation Kind = "graph_invariant_violation"
	ActionFunctionFailure  Kind = "action_function_failure"
	WorkspaceTenancyMissing Kind = "workspace_tenancy_missing"
	Timeout                Kind = "timeout"
)

// Error is the structured error value propagated across package
// boundaries: a stable kind, a human message, and the wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New constructs an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an Error of the given kind around a cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Is reports whether err is (or wraps) an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// Fatal reports whether errors of this kind are panic-equivalent per §7's
// propagation policy: the process should exit rather than attempt local
// recovery, since durable state is untouched and a replacement process can
// resume from it (spec §7 "Propagation policy").
func (k Kind) Fatal() bool {
	return k == GraphInvariantViolation || k == SnapshotMissing
}

// Fatal reports whether e's kind is process-fatal.
func (e *Error) Fatal() bool {
	return e.Kind.Fatal()
}
