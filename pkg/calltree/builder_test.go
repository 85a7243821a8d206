package calltree

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danpilch/vmprof/pkg/trace"
)

func user(name string) trace.FunctionID {
	return trace.FunctionID{Name: name, Category: trace.User}
}

func call(name string) trace.Event {
	return trace.NewCall(name, trace.User, 0)
}

func ret(cost uint64) trace.Event {
	return trace.NewReturn(cost)
}

// assertConserved recomputes cumulative costs independently and compares
// them with the cached values at every node.
func assertConserved(t *testing.T, f *Frame) uint64 {
	t.Helper()
	total := f.SelfCost
	for _, c := range f.Children {
		assert.Same(t, f, c.Parent())
		total += assertConserved(t, c)
	}
	assert.Equal(t, total, f.CumulativeCost(), "frame %s", f.ID)
	return total
}

func TestBuild_Example(t *testing.T) {
	events := []trace.Event{call("f"), call("g"), ret(5), call("g"), ret(3), ret(2)}

	root, err := Build(events)
	require.NoError(t, err)

	assert.Equal(t, trace.Root, root.ID)
	assert.Nil(t, root.Parent())
	require.Len(t, root.Children, 1)

	f := root.Children[0]
	assert.Equal(t, user("f"), f.ID)
	assert.Equal(t, uint64(2), f.SelfCost)
	require.Len(t, f.Children, 2)
	assert.Equal(t, uint64(5), f.Children[0].SelfCost)
	assert.Equal(t, uint64(3), f.Children[1].SelfCost)

	assert.Equal(t, uint64(10), root.CumulativeCost())
	assert.Equal(t, uint64(10), f.CumulativeCost())
	assertConserved(t, root)
}

func TestBuild_SiblingMerge(t *testing.T) {
	events := []trace.Event{call("f"), call("g"), ret(5), call("h"), ret(1), call("g"), ret(3), ret(2)}

	root, err := Build(events, WithSiblingMerge())
	require.NoError(t, err)

	f := root.Children[0]
	require.Len(t, f.Children, 2)
	assert.Equal(t, user("g"), f.Children[0].ID)
	assert.Equal(t, uint64(8), f.Children[0].SelfCost)
	assert.Equal(t, user("h"), f.Children[1].ID)
	assert.Equal(t, uint64(11), root.CumulativeCost())
	assertConserved(t, root)
}

func TestBuild_CallCostAndZeroCostLeaves(t *testing.T) {
	events := []trace.Event{
		trace.NewCall("f", trace.User, 4),
		trace.NewCall("store_temp", trace.Libfunc, 0),
		ret(0),
		ret(1),
	}

	root, err := Build(events)
	require.NoError(t, err)

	f := root.Children[0]
	assert.Equal(t, uint64(5), f.SelfCost)
	require.Len(t, f.Children, 1, "zero-cost leaf must be retained")
	assert.Equal(t, uint64(0), f.Children[0].CumulativeCost())
	assert.Equal(t, uint64(5), root.CumulativeCost())
	assertConserved(t, root)
}

func TestBuild_Empty(t *testing.T) {
	root, err := Build(nil)
	require.NoError(t, err)
	assert.Empty(t, root.Children)
	assert.Zero(t, root.CumulativeCost())
}

func TestBuild_Unbalanced(t *testing.T) {
	tests := []struct {
		name      string
		events    []trace.Event
		wantIndex int
		wantOpen  trace.FunctionID
	}{
		{
			name:      "extra return",
			events:    []trace.Event{call("f"), ret(1), ret(1)},
			wantIndex: 2,
		},
		{
			name:      "return first",
			events:    []trace.Event{ret(1)},
			wantIndex: 0,
		},
		{
			name:      "trailing call",
			events:    []trace.Event{call("f"), call("g"), ret(1)},
			wantIndex: 3,
			wantOpen:  user("f"),
		},
		{
			name: "mismatched return",
			events: []trace.Event{
				call("f"),
				{Kind: trace.Return, Function: user("g"), Cost: 1},
			},
			wantIndex: 1,
			wantOpen:  user("f"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root, err := Build(tt.events)
			assert.Nil(t, root)

			var unbalanced *UnbalancedTraceError
			require.ErrorAs(t, err, &unbalanced)
			assert.Equal(t, tt.wantIndex, unbalanced.Index)
			assert.Equal(t, tt.wantOpen, unbalanced.Open)
		})
	}
}

func TestBuild_UnknownIdentity(t *testing.T) {
	events := []trace.Event{call("f"), trace.NewCall("?", trace.CategoryUnresolved, 0), ret(0), ret(0)}

	_, err := Build(events)
	var unknown *trace.UnknownFunctionIdentityError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, 1, unknown.Index)
}

func TestBuild_Overflow(t *testing.T) {
	events := []trace.Event{call("f"), ret(math.MaxUint64), call("g"), ret(1)}

	_, err := Build(events)
	var overflow *CostOverflowError
	require.ErrorAs(t, err, &overflow)
	assert.Equal(t, 3, overflow.Index)
}

func TestBuilder_StickyError(t *testing.T) {
	b := NewBuilder()
	require.Error(t, b.Add(ret(1)))
	assert.Error(t, b.Add(call("f")))
	_, err := b.Finish()
	assert.Error(t, err)
}

func TestBuilder_Depth(t *testing.T) {
	b := NewBuilder()
	require.NoError(t, b.Add(call("f")))
	require.NoError(t, b.Add(call("g")))
	assert.Equal(t, 2, b.Depth())
	require.NoError(t, b.Add(ret(0)))
	assert.Equal(t, 1, b.Depth())
}

func TestFrame_Helpers(t *testing.T) {
	root := NewFrame(trace.Root)
	f := root.AddChild(user("f"))
	g := f.AddChild(user("g"))
	g.SelfCost = 7
	f.SelfCost = 1

	assert.Equal(t, uint64(8), root.Recompute())
	assert.Equal(t, uint64(7), g.CumulativeCost())
	assert.Equal(t, 2, g.Depth())
	assert.Same(t, g, f.Child(user("g")))
	assert.Nil(t, f.Child(user("x")))
	assert.Equal(t, 3, root.Count())
}
