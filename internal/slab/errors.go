package slab

import (
	"fmt"

	"percolator/pkg/types"
)

// Error wraps the shared ErrorCode taxonomy (spec §7) with slab-local
// context. Callers compare on Code, not on the error value or string —
// matching the spec's "stable numeric codes" requirement.
type Error struct {
	Code    types.ErrorCode
	Op      string // operation that failed: "reserve", "commit", "cancel", ...
	Context string // extra detail for logs, never part of equality
}

func (e *Error) Error() string {
	if e.Context == "" {
		return fmt.Sprintf("slab: %s: %s", e.Op, e.Code)
	}
	return fmt.Sprintf("slab: %s: %s (%s)", e.Op, e.Code, e.Context)
}

func newErr(op string, code types.ErrorCode, context string) *Error {
	return &Error{Op: op, Code: code, Context: context}
}

// IsInvariantViolation reports whether err is the fatal, non-recoverable
// invariant-violation error (spec §7: "never recoverable within the core").
func IsInvariantViolation(err error) bool {
	se, ok := err.(*Error)
	return ok && se.Code == types.ErrInvariantViolation
}
