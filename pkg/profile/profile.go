// Package profile holds the output-neutral aggregate shared by all exporters:
// an ordered mapping from call path to accumulated self cost.
package profile

import (
	"fmt"
	"math/bits"
	"slices"

	"github.com/zeebo/xxh3"

	"github.com/danpilch/vmprof/pkg/calltree"
	"github.com/danpilch/vmprof/pkg/trace"
)

// Entry is one call path, root first, and the self cost accumulated on it.
type Entry struct {
	Path  []trace.FunctionID
	Value uint64
}

// Leaf returns the innermost function of the path.
func (e Entry) Leaf() trace.FunctionID {
	return e.Path[len(e.Path)-1]
}

// Profile keeps entries in insertion order and aggregates repeated paths.
type Profile struct {
	entries []Entry
	index   map[uint64][]int
	total   uint64
}

// New returns an empty profile.
func New() *Profile {
	return &Profile{index: make(map[uint64][]int)}
}

func pathKey(path []trace.FunctionID) uint64 {
	n := 0
	for _, id := range path {
		n += len(id.Name) + 2
	}
	buf := make([]byte, 0, n)
	for _, id := range path {
		buf = append(buf, id.Name...)
		buf = append(buf, 0, byte(id.Category))
	}
	return xxh3.Hash(buf)
}

// Add accumulates value on path. Paths must be non-empty.
func (p *Profile) Add(path []trace.FunctionID, value uint64) error {
	if len(path) == 0 {
		return fmt.Errorf("empty call path")
	}
	total, carry := bits.Add64(p.total, value, 0)
	if carry != 0 {
		return ErrCostOverflow
	}

	key := pathKey(path)
	for _, i := range p.index[key] {
		if slices.Equal(p.entries[i].Path, path) {
			p.entries[i].Value += value
			p.total = total
			return nil
		}
	}

	p.index[key] = append(p.index[key], len(p.entries))
	p.entries = append(p.entries, Entry{Path: slices.Clone(path), Value: value})
	p.total = total
	return nil
}

// Entries returns the entries in insertion order. Callers must not modify them.
func (p *Profile) Entries() []Entry {
	return p.entries
}

// Len is the number of distinct paths.
func (p *Profile) Len() int {
	return len(p.entries)
}

// Total is the sum of all entry values.
func (p *Profile) Total() uint64 {
	return p.total
}

// Value returns the cost recorded for path.
func (p *Profile) Value(path []trace.FunctionID) (uint64, bool) {
	for _, i := range p.index[pathKey(path)] {
		if slices.Equal(p.entries[i].Path, path) {
			return p.entries[i].Value, true
		}
	}
	return 0, false
}

// Options are display filters applied when flattening a tree. The zero
// value keeps every path and preserves the exact total.
type Options struct {
	// MinCost drops paths whose aggregated cost is below it.
	MinCost uint64
	// Hide elides frames of these categories from paths. Their self cost is
	// charged to the nearest visible ancestor.
	Hide []trace.Category
}

// FromTree flattens a call tree into a profile. Paths are emitted depth
// first, left to right, with a frame's children before its own self cost.
// Frames with zero self cost contribute only when they are leaves.
func FromTree(root *calltree.Frame, opts Options) (*Profile, error) {
	w := &treeWalker{profile: New(), hidden: make(map[trace.Category]bool)}
	for _, c := range opts.Hide {
		if !c.Valid() {
			return nil, fmt.Errorf("cannot hide category %s", c)
		}
		w.hidden[c] = true
	}

	if root.SelfCost > 0 {
		if err := w.profile.Add([]trace.FunctionID{root.ID}, root.SelfCost); err != nil {
			return nil, err
		}
	}
	for _, c := range root.Children {
		if err := w.visit(c, nil); err != nil {
			return nil, err
		}
	}

	if opts.MinCost > 0 {
		return w.profile.prune(opts.MinCost), nil
	}
	return w.profile, nil
}

type treeWalker struct {
	profile *Profile
	hidden  map[trace.Category]bool
}

func (w *treeWalker) visit(f *calltree.Frame, path []trace.FunctionID) error {
	switch f.ID.Category {
	case trace.User, trace.Corelib, trace.Libfunc:
	default:
		return &SerializationError{Function: f.ID, Reason: "unrecognized category " + f.ID.Category.String()}
	}

	visible := len(path) == 0 || !w.hidden[f.ID.Category]
	own := path
	if visible {
		own = append(path[:len(path):len(path)], f.ID)
	}

	for _, c := range f.Children {
		if err := w.visit(c, own); err != nil {
			return err
		}
	}

	if f.SelfCost > 0 || (visible && len(f.Children) == 0) {
		if err := w.profile.Add(own, f.SelfCost); err != nil {
			return fmt.Errorf("%s: %w", f.ID, err)
		}
	}
	return nil
}

// Filter applies opts to an already aggregated profile, such as one read
// back from folded text. Hidden frames are removed from each path except in
// the first position, and entries left with a hidden zero-cost leaf vanish.
func (p *Profile) Filter(opts Options) (*Profile, error) {
	hidden := make(map[trace.Category]bool, len(opts.Hide))
	for _, c := range opts.Hide {
		if !c.Valid() {
			return nil, fmt.Errorf("cannot hide category %s", c)
		}
		hidden[c] = true
	}

	out := p
	if len(hidden) > 0 {
		out = New()
		for _, e := range p.entries {
			path := make([]trace.FunctionID, 0, len(e.Path))
			for i, id := range e.Path {
				if i == 0 || !hidden[id.Category] {
					path = append(path, id)
				}
			}
			if e.Value == 0 && len(path) < len(e.Path) && hidden[e.Leaf().Category] {
				continue
			}
			// Cannot overflow: out.total <= p.total.
			_ = out.Add(path, e.Value)
		}
	}
	if opts.MinCost > 0 {
		out = out.prune(opts.MinCost)
	}
	return out, nil
}

// prune returns a copy without entries cheaper than min.
func (p *Profile) prune(min uint64) *Profile {
	out := New()
	for _, e := range p.entries {
		if e.Value >= min {
			// Cannot overflow: out.total <= p.total.
			_ = out.Add(e.Path, e.Value)
		}
	}
	return out
}
