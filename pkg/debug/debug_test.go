package debug

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danpilch/vmprof/pkg/calltree"
	"github.com/danpilch/vmprof/pkg/trace"
)

func TestTimings(t *testing.T) {
	tm := NewTimings()
	clock := time.Unix(0, 0)
	tm.now = func() time.Time {
		clock = clock.Add(10 * time.Millisecond)
		return clock
	}

	require.NoError(t, tm.Track("build", func() error { return nil }))
	boom := errors.New("boom")
	assert.ErrorIs(t, tm.Track("export", func() error { return boom }), boom)

	stages := tm.Stages()
	require.Len(t, stages, 2)
	assert.Equal(t, StageTiming{Name: "build", Duration: 10 * time.Millisecond}, stages[0])
	assert.Equal(t, "export", stages[1].Name, "failed stages are still recorded")

	var buf bytes.Buffer
	TimingReport(&buf, stages)
	assert.Contains(t, buf.String(), "Stage Timing Report")
	assert.Contains(t, buf.String(), "build")
	assert.Contains(t, buf.String(), "20ms")
}

func TestDumpTree(t *testing.T) {
	root, err := calltree.Build([]trace.Event{
		trace.NewCall("f", trace.User, 0),
		trace.NewCall("g", trace.User, 0),
		trace.NewCall("h", trace.Corelib, 0), trace.NewReturn(1),
		trace.NewReturn(5),
		trace.NewReturn(2),
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	DumpTree(&buf, "Call Tree", root, 0)
	out := buf.String()
	assert.Contains(t, out, "root(synthetic)")
	assert.Contains(t, out, "      h(corelib)")
	assert.NotContains(t, out, "frames below")

	buf.Reset()
	DumpTree(&buf, "Call Tree", root, 2)
	out = buf.String()
	assert.Contains(t, out, "g(user)")
	assert.NotContains(t, out, "h(corelib)")
	assert.Contains(t, out, "1 frames below")
}

func TestStartPprofServer(t *testing.T) {
	addr, stop, err := StartPprofServer("127.0.0.1:0", nil)
	require.NoError(t, err)
	defer stop()

	resp, err := http.Get("http://" + addr + "/debug/pprof/")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "goroutine")
}
