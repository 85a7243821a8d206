package profile

import (
	"errors"
	"fmt"

	"github.com/danpilch/vmprof/pkg/trace"
)

// ErrCostOverflow is returned when aggregated cost no longer fits in 64 bits.
var ErrCostOverflow = errors.New("cost overflows 64 bits")

// SerializationError reports a value an exporter cannot encode faithfully.
type SerializationError struct {
	Function trace.FunctionID
	// Label is the rendered text, set for label collisions.
	Label string
	// Conflict is the other identity that rendered to Label.
	Conflict trace.FunctionID
	// Value is the offending cost, set for range errors.
	Value  uint64
	Reason string
}

func (e *SerializationError) Error() string {
	switch {
	case !e.Conflict.IsZero():
		return fmt.Sprintf("cannot serialize %s: label %q already used by %s", e.Function, e.Label, e.Conflict)
	case e.Value != 0:
		return fmt.Sprintf("cannot serialize cost %d: %s", e.Value, e.Reason)
	default:
		return fmt.Sprintf("cannot serialize %s: %s", e.Function, e.Reason)
	}
}
