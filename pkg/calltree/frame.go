// Package calltree reconstructs a tree of call frames from a flat event stream.
package calltree

import "github.com/danpilch/vmprof/pkg/trace"

// Frame is a node of a call tree. A frame owns its children; the parent
// pointer is a lookup edge only.
type Frame struct {
	ID       trace.FunctionID
	SelfCost uint64
	Children []*Frame

	parent     *Frame
	cumulative uint64
}

// NewFrame returns an empty frame for id.
func NewFrame(id trace.FunctionID) *Frame {
	return &Frame{ID: id}
}

// Parent returns the enclosing frame, or nil for the root.
func (f *Frame) Parent() *Frame {
	return f.parent
}

// CumulativeCost is SelfCost plus the cumulative cost of all children.
func (f *Frame) CumulativeCost() uint64 {
	return f.cumulative
}

// AddChild appends a new child frame for id and returns it.
func (f *Frame) AddChild(id trace.FunctionID) *Frame {
	child := &Frame{ID: id, parent: f}
	f.Children = append(f.Children, child)
	return child
}

// Child returns the first direct child with the given identity.
func (f *Frame) Child(id trace.FunctionID) *Frame {
	for _, c := range f.Children {
		if c.ID == id {
			return c
		}
	}
	return nil
}

// Depth is the number of ancestors above f.
func (f *Frame) Depth() int {
	d := 0
	for p := f.parent; p != nil; p = p.parent {
		d++
	}
	return d
}

// Recompute refreshes cached cumulative costs for the whole subtree from the
// self costs and returns the subtree total.
func (f *Frame) Recompute() uint64 {
	total := f.SelfCost
	for _, c := range f.Children {
		total += c.Recompute()
	}
	f.cumulative = total
	return total
}

// Walk visits f and its descendants depth-first, parents before children.
// Returning false from fn skips the frame's subtree.
func (f *Frame) Walk(fn func(*Frame) bool) {
	if !fn(f) {
		return
	}
	for _, c := range f.Children {
		c.Walk(fn)
	}
}

// Count returns the number of frames in the subtree rooted at f.
func (f *Frame) Count() int {
	n := 0
	f.Walk(func(*Frame) bool {
		n++
		return true
	})
	return n
}
