// Package utils holds the small assertion helper shared by the storage
// packages. Assertion failures here are programming bugs, not user or I/O
// errors — see pkg/errors for the latter.
package utils

import "fmt"

// Assert panics with message if condition is false. Reserved for invariants
// that must never fail given correct callers (e.g. "split only ever runs on
// a full node"); anything a caller can trigger belongs in pkg/errors instead.
func Assert(condition bool, message string) {
	if !condition {
		panic(message)
	}
}

// Assertf is Assert with a formatted message.
func Assertf(condition bool, format string, args ...any) {
	if !condition {
		panic(fmt.Sprintf(format, args...))
	}
}
