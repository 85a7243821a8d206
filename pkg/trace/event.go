// Package trace defines the call/return event stream produced by a VM tracer.
package trace

import "fmt"

// Category classifies a function. The set is closed.
type Category uint8

const (
	// CategoryUnresolved is the zero value; the tracer could not classify the function.
	CategoryUnresolved Category = iota
	User
	Corelib
	Libfunc
	// Synthetic marks frames the builder invents, such as the tree root.
	Synthetic
)

// String returns the lower-case category name used in trace files and labels.
func (c Category) String() string {
	switch c {
	case User:
		return "user"
	case Corelib:
		return "corelib"
	case Libfunc:
		return "libfunc"
	case Synthetic:
		return "synthetic"
	default:
		return "unresolved"
	}
}

// Valid reports whether c is one of the categories a tracer may emit.
func (c Category) Valid() bool {
	switch c {
	case User, Corelib, Libfunc:
		return true
	default:
		return false
	}
}

// ParseCategory maps a trace-file category name to a Category.
func ParseCategory(s string) (Category, error) {
	switch s {
	case "user":
		return User, nil
	case "corelib":
		return Corelib, nil
	case "libfunc":
		return Libfunc, nil
	default:
		return CategoryUnresolved, fmt.Errorf("unknown category %q", s)
	}
}

// FunctionID identifies a callable unit. Two IDs are the same function only
// if both name and category match.
type FunctionID struct {
	Name     string
	Category Category
}

// Root is the identity of the synthetic frame at the top of every call tree.
var Root = FunctionID{Name: "root", Category: Synthetic}

func (id FunctionID) String() string {
	return fmt.Sprintf("%s(%s)", id.Name, id.Category)
}

// IsZero reports whether id carries no identity at all.
func (id FunctionID) IsZero() bool {
	return id == FunctionID{}
}

// Kind is the event type.
type Kind uint8

const (
	Call Kind = iota + 1
	Return
)

func (k Kind) String() string {
	switch k {
	case Call:
		return "call"
	case Return:
		return "return"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Event is a single entry of the event stream. Cost is the resource delta
// attributed to the frame being opened (Call) or closed (Return). A Return
// may leave Function zero.
type Event struct {
	Kind     Kind
	Function FunctionID
	Cost     uint64
}

// NewCall returns a Call event for the named function.
func NewCall(name string, category Category, cost uint64) Event {
	return Event{Kind: Call, Function: FunctionID{Name: name, Category: category}, Cost: cost}
}

// NewReturn returns an anonymous Return event.
func NewReturn(cost uint64) Event {
	return Event{Kind: Return, Cost: cost}
}

// Validate checks that a Call event carries a resolved identity. index is the
// event's position in the stream and is reported in the error.
func (e Event) Validate(index int) error {
	switch e.Kind {
	case Call:
		if e.Function.Name == "" || !e.Function.Category.Valid() {
			return &UnknownFunctionIdentityError{Index: index, Function: e.Function}
		}
	case Return:
		if !e.Function.IsZero() && (e.Function.Name == "" || !e.Function.Category.Valid()) {
			return &UnknownFunctionIdentityError{Index: index, Function: e.Function}
		}
	default:
		return fmt.Errorf("event %d: invalid kind %s", index, e.Kind)
	}
	return nil
}
