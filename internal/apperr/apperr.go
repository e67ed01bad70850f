// Package apperr models the error kinds from the error handling design
// (spec §7) as a typed sentinel so callers can errors.Is/errors.As
// instead of matching error strings.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is one of the six recognized error categories.
type Kind string

const (
	// Duplicate is benign: the caller should silently drop the record.
	Duplicate Kind = "duplicate"
	// TransientExternal marks an external failure that may succeed on a later
	// attempt; no code in this module retries it automatically.
	TransientExternal Kind = "transient_external"
	// PermanentExternal surfaces immediately.
	PermanentExternal Kind = "permanent_external"
	// ContractViolation means malformed external output; declared fallbacks apply.
	ContractViolation Kind = "contract_violation"
	// NoContent means selection returned empty; the episode fails with a user-facing message.
	NoContent Kind = "no_content"
	// Cancelled means the caller went away; uploads are skipped.
	Cancelled Kind = "cancelled"
)

// Error pairs a Kind with the underlying cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs an *Error of the given kind.
func New(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: cause}
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
