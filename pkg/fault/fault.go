// Package fault defines the error taxonomy shared by all palace subsystems.
package fault

import (
	"errors"
	"fmt"
)

// Kind classifies an error for callers and for metrics labeling.
type Kind string

const (
	// KindNotFound indicates an absent tenant, record, or deletion id.
	KindNotFound Kind = "not_found"

	// KindValidation indicates rejected input, such as missing deletion
	// selection criteria or a malformed import package.
	KindValidation Kind = "validation"

	// KindIntegrity indicates a checksum mismatch. An integrity failure on
	// import blocks the whole import before any mutation.
	KindIntegrity Kind = "integrity"

	// KindLimitExceeded indicates a batch size or result cap was hit.
	KindLimitExceeded Kind = "limit_exceeded"

	// KindConflict indicates a duplicate-signature race; resolved
	// last-writer-wins under the overwrite merge strategy.
	KindConflict Kind = "conflict"

	// KindPartial indicates that individual items in a batch failed while
	// the batch itself continued.
	KindPartial Kind = "partial_failure"

	// KindInternal is the fallback for unclassified failures.
	KindInternal Kind = "internal"
)

// Error carries a Kind and the operation that raised it.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
	case e.Msg != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Op, string(e.Kind))
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New builds a classified error with a formatted message.
func New(kind Kind, op, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Wrap classifies an underlying error.
func Wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the Kind of err, or KindInternal when err carries none.
// Returns the empty Kind for nil errors.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindInternal
}

// IsKind reports whether err is classified as kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
