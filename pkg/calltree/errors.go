package calltree

import (
	"fmt"

	"github.com/danpilch/vmprof/pkg/trace"
)

// UnbalancedTraceError is returned when the event stream is not well nested.
type UnbalancedTraceError struct {
	// Index of the offending event; equal to the stream length when the
	// stream ended with open frames.
	Index int
	// Reason is a short description of the violation.
	Reason string
	// Open is the innermost frame still open when the error was detected.
	Open trace.FunctionID
}

func (e *UnbalancedTraceError) Error() string {
	if e.Open.IsZero() {
		return fmt.Sprintf("unbalanced trace at event %d: %s", e.Index, e.Reason)
	}
	return fmt.Sprintf("unbalanced trace at event %d: %s (open frame %s)", e.Index, e.Reason, e.Open)
}

// CostOverflowError is returned when accumulated cost no longer fits in 64 bits.
type CostOverflowError struct {
	Index    int
	Function trace.FunctionID
}

func (e *CostOverflowError) Error() string {
	return fmt.Sprintf("event %d: cost of %s overflows 64 bits", e.Index, e.Function)
}
