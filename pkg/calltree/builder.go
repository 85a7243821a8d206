package calltree

import (
	"math/bits"

	"github.com/danpilch/vmprof/pkg/trace"
)

// Option configures a Builder.
type Option func(*Builder)

// WithSiblingMerge makes a Call reuse an existing same-identity child of the
// current frame instead of opening a new sibling.
func WithSiblingMerge() Option {
	return func(b *Builder) {
		b.mergeSiblings = true
	}
}

// activation is an open frame on the builder stack. cost is the running
// cumulative cost of this activation only, so merged frames stay exact.
type activation struct {
	frame *Frame
	cost  uint64
}

// Builder turns events into a call tree using an explicit stack.
type Builder struct {
	root          *Frame
	stack         []activation
	index         int
	err           error
	mergeSiblings bool
	children      map[*Frame]map[trace.FunctionID]*Frame
}

// NewBuilder returns a builder whose stack holds only the synthetic root.
func NewBuilder(opts ...Option) *Builder {
	root := NewFrame(trace.Root)
	b := &Builder{
		root:  root,
		stack: []activation{{frame: root}},
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.mergeSiblings {
		b.children = make(map[*Frame]map[trace.FunctionID]*Frame)
	}
	return b
}

// Add consumes the next event. After the first error every call returns it.
func (b *Builder) Add(ev trace.Event) error {
	if b.err != nil {
		return b.err
	}
	b.err = b.add(ev)
	b.index++
	return b.err
}

func (b *Builder) add(ev trace.Event) error {
	if err := ev.Validate(b.index); err != nil {
		return err
	}

	top := &b.stack[len(b.stack)-1]
	switch ev.Kind {
	case trace.Call:
		child := b.open(top.frame, ev.Function)
		self, carry := bits.Add64(child.SelfCost, ev.Cost, 0)
		if carry != 0 {
			return &CostOverflowError{Index: b.index, Function: ev.Function}
		}
		child.SelfCost = self
		b.stack = append(b.stack, activation{frame: child, cost: ev.Cost})

	case trace.Return:
		if len(b.stack) == 1 {
			return &UnbalancedTraceError{Index: b.index, Reason: "return without matching call"}
		}
		if !ev.Function.IsZero() && ev.Function != top.frame.ID {
			return &UnbalancedTraceError{
				Index:  b.index,
				Reason: "return of " + ev.Function.String() + " does not match open call",
				Open:   top.frame.ID,
			}
		}

		var carry, c uint64
		top.frame.SelfCost, carry = bits.Add64(top.frame.SelfCost, ev.Cost, 0)
		top.cost, c = bits.Add64(top.cost, ev.Cost, 0)
		carry |= c
		top.frame.cumulative, c = bits.Add64(top.frame.cumulative, top.cost, 0)
		carry |= c

		done := *top
		b.stack = b.stack[:len(b.stack)-1]
		parent := &b.stack[len(b.stack)-1]
		parent.cost, c = bits.Add64(parent.cost, done.cost, 0)
		carry |= c
		if carry != 0 {
			return &CostOverflowError{Index: b.index, Function: done.frame.ID}
		}
	}
	return nil
}

func (b *Builder) open(parent *Frame, id trace.FunctionID) *Frame {
	if !b.mergeSiblings {
		return parent.AddChild(id)
	}
	byID, ok := b.children[parent]
	if !ok {
		byID = make(map[trace.FunctionID]*Frame)
		b.children[parent] = byID
	}
	if child, ok := byID[id]; ok {
		return child
	}
	child := parent.AddChild(id)
	byID[id] = child
	return child
}

// Depth is the number of frames currently open, excluding the root.
func (b *Builder) Depth() int {
	return len(b.stack) - 1
}

// Finish checks that every call was matched and returns the root frame.
func (b *Builder) Finish() (*Frame, error) {
	if b.err != nil {
		return nil, b.err
	}
	if len(b.stack) > 1 {
		top := b.stack[len(b.stack)-1].frame
		b.err = &UnbalancedTraceError{
			Index:  b.index,
			Reason: "stream ended with unmatched calls",
			Open:   top.ID,
		}
		return nil, b.err
	}
	b.root.cumulative = b.stack[0].cost
	return b.root, nil
}

// Build constructs the call tree for a complete event stream.
func Build(events []trace.Event, opts ...Option) (*Frame, error) {
	b := NewBuilder(opts...)
	for _, ev := range events {
		if err := b.Add(ev); err != nil {
			return nil, err
		}
	}
	return b.Finish()
}
