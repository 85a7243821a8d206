package trace

import "fmt"

// UnknownFunctionIdentityError reports an event whose function the tracer
// could not resolve to a name and category.
type UnknownFunctionIdentityError struct {
	// Index of the offending event in the stream.
	Index int
	// Ref is the raw function reference from a trace file, if any.
	Ref string
	// Function is whatever partial identity was available.
	Function FunctionID
}

func (e *UnknownFunctionIdentityError) Error() string {
	if e.Ref != "" {
		return fmt.Sprintf("event %d: unknown function identity %s", e.Index, e.Ref)
	}
	return fmt.Sprintf("event %d: unknown function identity %q (category %s)",
		e.Index, e.Function.Name, e.Function.Category)
}
