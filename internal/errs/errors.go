// Package errs holds the sentinel errors shared across the allocator's
// internal packages.
package errs

import "errors"

var (
	// ErrShutdown names the shutdown state. It is not returned: its
	// message is the Msg of the precondition panic raised by operations
	// invoked after shutdown.
	ErrShutdown = errors.New("bitalloc: allocator shut down")
)

// PreconditionError marks a caller bug: an out-of-range block index,
// freeing bits that were never allocated, or marking bits already
// allocated. It is never returned — it is the argument to panic, since
// precondition violations are treated as fatal and non-recoverable.
type PreconditionError struct {
	Op  string
	Msg string
}

func (e *PreconditionError) Error() string {
	return "bitalloc: " + e.Op + ": " + e.Msg
}

// Precondition panics with a *PreconditionError. Call sites name the
// operation and the violated invariant.
func Precondition(op, msg string) {
	panic(&PreconditionError{Op: op, Msg: msg})
}
