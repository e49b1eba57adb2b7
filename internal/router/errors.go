package router

import (
	"fmt"

	"percolator/pkg/types"
)

// Error wraps the shared ErrorCode taxonomy (spec §7) with router-local
// context, mirroring slab.Error so callers across both packages compare on
// the same closed Code enum rather than on error identity or message text.
type Error struct {
	Code    types.ErrorCode
	Op      string
	Context string
}

func (e *Error) Error() string {
	if e.Context == "" {
		return fmt.Sprintf("router: %s: %s", e.Op, e.Code)
	}
	return fmt.Sprintf("router: %s: %s (%s)", e.Op, e.Code, e.Context)
}

func newErr(op string, code types.ErrorCode, context string) *Error {
	return &Error{Op: op, Code: code, Context: context}
}
