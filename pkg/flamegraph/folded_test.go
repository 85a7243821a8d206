package flamegraph

import (
	"bytes"
	"errors"
	"math/rand"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danpilch/vmprof/pkg/calltree"
	"github.com/danpilch/vmprof/pkg/collapse"
	"github.com/danpilch/vmprof/pkg/profile"
	"github.com/danpilch/vmprof/pkg/trace"
)

func profileOf(t *testing.T, events ...trace.Event) (*profile.Profile, *calltree.Frame) {
	t.Helper()
	root, err := calltree.Build(events)
	require.NoError(t, err)
	out := collapse.Collapse(root)
	p, err := profile.FromTree(out, profile.Options{})
	require.NoError(t, err)
	return p, out
}

func TestWriteFolded_Example(t *testing.T) {
	p, root := profileOf(t,
		trace.NewCall("f", trace.User, 0),
		trace.NewCall("g", trace.User, 0), trace.NewReturn(5),
		trace.NewCall("g", trace.User, 0), trace.NewReturn(3),
		trace.NewReturn(2),
	)

	var buf bytes.Buffer
	require.NoError(t, WriteFolded(&buf, p))
	assert.Equal(t, "f;g 8\nf 2\n", buf.String())
	assert.Equal(t, uint64(10), root.CumulativeCost())
}

func TestWriteFolded_Categories(t *testing.T) {
	p, _ := profileOf(t,
		trace.NewCall("main::main", trace.User, 0),
		trace.NewCall("core::array::ArrayImpl::append", trace.Corelib, 0),
		trace.NewCall("array_append", trace.Libfunc, 0), trace.NewReturn(2),
		trace.NewReturn(1),
		trace.NewReturn(0),
	)

	var buf bytes.Buffer
	require.NoError(t, WriteFolded(&buf, p))
	assert.Equal(t,
		"main::main;core::array::ArrayImpl::append [corelib];array_append [libfunc] 2\n"+
			"main::main;core::array::ArrayImpl::append [corelib] 1\n",
		buf.String())
}

type failWriter struct{ n int }

func (w *failWriter) Write(p []byte) (int, error) {
	w.n += len(p)
	return 0, errors.New("disk full")
}

func TestWriteFolded_CollisionWritesNothing(t *testing.T) {
	p := profile.New()
	require.NoError(t, p.Add([]trace.FunctionID{{Name: "a;b", Category: trace.User}}, 1))
	require.NoError(t, p.Add([]trace.FunctionID{{Name: "a_b", Category: trace.User}}, 1))

	var buf bytes.Buffer
	err := WriteFolded(&buf, p)
	var serr *profile.SerializationError
	require.ErrorAs(t, err, &serr)
	assert.Zero(t, buf.Len())

	w := &failWriter{}
	p2 := profile.New()
	require.NoError(t, p2.Add([]trace.FunctionID{{Name: "a", Category: trace.User}}, 1))
	assert.Error(t, WriteFolded(w, p2))
}

func randomEvents(r *rand.Rand, n int) []trace.Event {
	names := []string{"a", "b", "c", "d"}
	cats := []trace.Category{trace.User, trace.Corelib, trace.Libfunc}
	var events []trace.Event
	depth := 0
	for i := 0; i < n; i++ {
		if depth > 0 && r.Intn(2) == 0 {
			events = append(events, trace.NewReturn(uint64(r.Intn(20))))
			depth--
			continue
		}
		events = append(events, trace.NewCall(names[r.Intn(len(names))], cats[r.Intn(len(cats))], 0))
		depth++
	}
	for ; depth > 0; depth-- {
		events = append(events, trace.NewReturn(uint64(r.Intn(20))))
	}
	return events
}

func TestWriteFolded_TotalMatchesTree(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for i := 0; i < 100; i++ {
		p, root := profileOf(t, randomEvents(r, 10+r.Intn(150))...)

		var buf bytes.Buffer
		require.NoError(t, WriteFolded(&buf, p))

		var sum uint64
		for _, line := range strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n") {
			if line == "" {
				continue
			}
			idx := strings.LastIndexByte(line, ' ')
			require.Positive(t, idx)
			v, err := strconv.ParseUint(line[idx+1:], 10, 64)
			require.NoError(t, err)
			sum += v
		}
		assert.Equal(t, root.CumulativeCost(), sum)

		// The folded text reads back into the same profile.
		back, err := ReadFolded(&buf)
		require.NoError(t, err)
		assert.Equal(t, p.Entries(), back.Entries())
	}
}

func TestReadFolded(t *testing.T) {
	input := "main;helper 5\n\nmain;store_temp [libfunc] 0\nmain;helper 2\n  main 1  \n"

	p, err := ReadFolded(strings.NewReader(input))
	require.NoError(t, err)

	main := trace.FunctionID{Name: "main", Category: trace.User}
	helper := trace.FunctionID{Name: "helper", Category: trace.User}
	store := trace.FunctionID{Name: "store_temp", Category: trace.Libfunc}

	require.Equal(t, 3, p.Len())
	assert.Equal(t, profile.Entry{Path: []trace.FunctionID{main, helper}, Value: 7}, p.Entries()[0])
	assert.Equal(t, profile.Entry{Path: []trace.FunctionID{main, store}, Value: 0}, p.Entries()[1])
	assert.Equal(t, profile.Entry{Path: []trace.FunctionID{main}, Value: 1}, p.Entries()[2])
	assert.Equal(t, uint64(8), p.Total())
}

func TestReadFolded_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"no count", "main\n", "line 1"},
		{"bad count", "ok 1\nmain;f x\n", "line 2"},
		{"negative count", "main -4\n", "line 1"},
		{"empty frame", "main;;f 3\n", "line 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadFolded(strings.NewReader(tt.input))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
