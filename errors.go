package sidecargo

import (
	"errors"
	"fmt"
)

// Kind groups errors into the four operational categories callers map to
// exit codes. The core itself never terminates the process.
type Kind int

const (
	// KindUser covers invalid input: bad version strings, unknown migration
	// pairs. Surfaced verbatim, never retried.
	KindUser Kind = iota + 1

	// KindIO covers filesystem failures: unreadable or unwritable files.
	// The caller may retry the whole operation.
	KindIO

	// KindValidation covers cases where a valid sidecar was required but not
	// found, e.g. migrating with From omitted on a corrupt record.
	KindValidation

	// KindInternal covers unexpected faults in sidecargo itself. Always a bug.
	KindInternal
)

// String returns the stable lowercase name of the kind.
func (k Kind) String() string {
	switch k {
	case KindUser:
		return "user"
	case KindIO:
		return "io"
	case KindValidation:
		return "validation"
	case KindInternal:
		return "internal"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error is the structured error type for sidecargo operations.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s error: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s error: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// ExitCode maps the error kind to the conventional process exit code
// (user=1, io=2, validation=3, internal=4). Mapping exit codes onto a
// process is the caller's job; this is just the table.
func (e *Error) ExitCode() int { return int(e.Kind) }

// UserErrorf builds a KindUser error.
func UserErrorf(format string, args ...any) *Error {
	return newError(KindUser, format, args...)
}

// IOErrorf builds a KindIO error.
func IOErrorf(format string, args ...any) *Error {
	return newError(KindIO, format, args...)
}

// ValidationErrorf builds a KindValidation error.
func ValidationErrorf(format string, args ...any) *Error {
	return newError(KindValidation, format, args...)
}

// InternalErrorf builds a KindInternal error.
func InternalErrorf(format string, args ...any) *Error {
	return newError(KindInternal, format, args...)
}

// newError extracts a %w cause, if present, so errors.Is/As keep working
// through the structured wrapper.
func newError(k Kind, format string, args ...any) *Error {
	wrapped := fmt.Errorf(format, args...)
	return &Error{
		Kind:    k,
		Message: wrapped.Error(),
		cause:   errors.Unwrap(wrapped),
	}
}

// WrapIO wraps err as a KindIO error with a message prefix.
// Returns nil if err is nil.
func WrapIO(err error, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindIO, Message: fmt.Sprintf("%s: %v", msg, err), cause: err}
}

// KindOf reports the Kind of err, or KindInternal if err carries none.
// A nil err has no kind and reports 0.
func KindOf(err error) Kind {
	if err == nil {
		return 0
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// ExitCode returns the exit code for an arbitrary error: 0 for nil,
// the structured code when err is (or wraps) an *Error, 4 otherwise.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	return int(KindOf(err))
}
