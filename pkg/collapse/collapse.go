// Package collapse folds recursive and repeated call paths of a call tree
// into single aggregated frames without changing any cost totals.
package collapse

import (
	"github.com/danpilch/vmprof/pkg/calltree"
	"github.com/danpilch/vmprof/pkg/trace"
)

// Stats describes what a collapse pass merged.
type Stats struct {
	InputFrames  int
	OutputFrames int
	// Recursions counts frames folded into a same-identity ancestor.
	Recursions int
	// Repetitions counts frames merged into an earlier same-identity sibling.
	Repetitions int
}

type collapser struct {
	children map[*calltree.Frame]map[trace.FunctionID]*calltree.Frame
	stats    Stats
}

// Collapse returns a new tree in which no root-to-leaf path repeats an
// identity and no two siblings share one. The input is not modified.
func Collapse(root *calltree.Frame) *calltree.Frame {
	out, _ := Run(root)
	return out
}

// Run is Collapse that also reports merge statistics.
func Run(root *calltree.Frame) (*calltree.Frame, Stats) {
	c := &collapser{
		children: make(map[*calltree.Frame]map[trace.FunctionID]*calltree.Frame),
	}
	c.stats.InputFrames = root.Count()

	out := calltree.NewFrame(root.ID)
	out.SelfCost = root.SelfCost
	c.absorb([]*calltree.Frame{out}, root.Children)
	out.Recompute()

	c.stats.OutputFrames = out.Count()
	return out, c.stats
}

// absorb merges src frames below the last element of path. path holds the
// output frames from the root down, each identity at most once.
func (c *collapser) absorb(path []*calltree.Frame, src []*calltree.Frame) {
	dst := path[len(path)-1]
	for _, s := range src {
		if i := indexOf(path, s.ID); i >= 0 {
			// Recursion: the frame disappears into its ancestor and its
			// callees are placed relative to that ancestor.
			c.stats.Recursions++
			path[i].SelfCost += s.SelfCost
			c.absorb(path[:i+1:i+1], s.Children)
			continue
		}

		d := c.child(dst, s.ID)
		d.SelfCost += s.SelfCost
		c.absorb(append(path[:len(path):len(path)], d), s.Children)
	}
}

// child returns the output child of parent for id, creating it in
// first-occurrence order.
func (c *collapser) child(parent *calltree.Frame, id trace.FunctionID) *calltree.Frame {
	byID, ok := c.children[parent]
	if !ok {
		byID = make(map[trace.FunctionID]*calltree.Frame)
		c.children[parent] = byID
	}
	if existing, ok := byID[id]; ok {
		c.stats.Repetitions++
		return existing
	}
	child := parent.AddChild(id)
	byID[id] = child
	return child
}

func indexOf(path []*calltree.Frame, id trace.FunctionID) int {
	for i, f := range path {
		if f.ID == id {
			return i
		}
	}
	return -1
}
