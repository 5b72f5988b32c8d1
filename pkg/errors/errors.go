// Package errors defines the typed failure kinds the storage engine can
// report. Every tree or pager operation that fails returns one of these
// wrapped in an Error, never a bare fmt.Errorf string.
package errors

import "fmt"

// Kind distinguishes the handful of ways a store operation can fail.
type Kind int

const (
	// KindUnknown is never produced deliberately; its presence means a
	// call site forgot to classify its failure.
	KindUnknown Kind = iota
	// KindIO covers any read/write/fsync failure from the underlying file.
	// Never retried at the engine layer.
	KindIO
	// KindCorruption covers a structural assertion failing on load: a
	// root page pointing outside the file, a malformed free-list chain,
	// an internal invariant that does not hold.
	KindCorruption
	// KindVersionMismatch means the file header's version tag is not one
	// this build recognizes.
	KindVersionMismatch
	// KindOutOfSpace means extending the file failed.
	KindOutOfSpace
	// KindInvalidArgument covers caller errors, e.g. a value too large
	// for the configured inline/overflow scheme.
	KindInvalidArgument
)

func (k Kind) String() string {
	switch k {
	case KindIO:
		return "io_error"
	case KindCorruption:
		return "corruption"
	case KindVersionMismatch:
		return "version_mismatch"
	case KindOutOfSpace:
		return "out_of_space"
	case KindInvalidArgument:
		return "invalid_argument"
	default:
		return "unknown"
	}
}

// Error is the concrete error type returned by this module's public APIs.
type Error struct {
	Kind  Kind
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("nifflerdb: %s: %s: %v", e.Kind, e.Msg, e.Cause)
	}
	return fmt.Sprintf("nifflerdb: %s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if as(err, &e) {
		return e.Kind == kind
	}
	return false
}

// as is a tiny local errors.As to avoid importing the stdlib package under
// the same name as this one at every call site.
func as(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

func newErr(kind Kind, msg string, cause error) error {
	return &Error{Kind: kind, Msg: msg, Cause: cause}
}

// IOError wraps a failed read/write/fsync/truncate against the file.
func IOError(msg string, cause error) error { return newErr(KindIO, msg, cause) }

// Corruption reports a structural invariant violated on load.
func Corruption(msg string) error { return newErr(KindCorruption, msg, nil) }

// VersionMismatch reports an unrecognized file header version tag.
func VersionMismatch(msg string) error { return newErr(KindVersionMismatch, msg, nil) }

// OutOfSpace reports a failed file extension.
func OutOfSpace(msg string, cause error) error { return newErr(KindOutOfSpace, msg, cause) }

// InvalidArgument reports a caller error, e.g. an oversized value.
func InvalidArgument(msg string) error { return newErr(KindInvalidArgument, msg, nil) }
