package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	gprofile "github.com/google/pprof/profile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const exampleTrace = `{
  "functions": [
    {"id": 0, "name": "f", "category": "user"},
    {"id": 1, "name": "g", "category": "user"},
    {"id": 2, "name": "felt252_add", "category": "libfunc"}
  ],
  "events": [
    {"kind": "call", "function": 0},
    {"kind": "call", "function": 1},
    {"kind": "call", "function": 2},
    {"kind": "return", "cost": 1},
    {"kind": "return", "cost": 4},
    {"kind": "call", "function": 1},
    {"kind": "return", "cost": 3},
    {"kind": "return", "cost": 2}
  ]
}`

func execute(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetArgs(args)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRoot_Flamegraph(t *testing.T) {
	dir := t.TempDir()
	tracePath := writeFile(t, dir, "trace.json", exampleTrace)
	out := filepath.Join(dir, "out.folded")
	svg := filepath.Join(dir, "out.svg")

	_, _, err := execute(t, "", "--trace-file", tracePath, "--output-file", out, "--svg-file", svg)
	require.NoError(t, err)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "f;g;felt252_add [libfunc] 1\nf;g 7\nf 2\n", string(data))

	svgData, err := os.ReadFile(svg)
	require.NoError(t, err)
	assert.Contains(t, string(svgData), "<svg")
}

func TestRoot_PprofFromStdin(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out.pb.gz")

	stdout, _, err := execute(t, exampleTrace,
		"--trace-file", "-", "--output-type", "pprof", "--output-file", out,
		"--summary", "--summary-format", "tsv")
	require.NoError(t, err)

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()
	prof, err := gprofile.Parse(f)
	require.NoError(t, err)

	var sum int64
	for _, s := range prof.Sample {
		sum += s.Value[0]
	}
	assert.Equal(t, int64(10), sum)
	assert.True(t, strings.HasPrefix(stdout, "RANK\tFUNCTION"), stdout)
	assert.Contains(t, stdout, "1\tg\tuser\t7\t")
}

func TestRoot_ProfileFileWithFilters(t *testing.T) {
	dir := t.TempDir()
	folded := writeFile(t, dir, "in.folded", "f;g;felt252_add [libfunc] 1\nf;g 7\nf 2\n")
	out := filepath.Join(dir, "out.folded")

	_, _, err := execute(t, "", "--profile-file", folded, "--output-file", out, "--hide", "libfunc", "--min-cost", "3")
	require.NoError(t, err)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "f;g 8\n", string(data))
}

func TestRoot_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	tracePath := writeFile(t, dir, "trace.json", exampleTrace)
	cfg := writeFile(t, dir, "vmprof.yaml", "output_type: pprof\nhide: [libfunc]\n")
	out := filepath.Join(dir, "out")

	_, _, err := execute(t, "", "--config", cfg, "--trace-file", tracePath, "--output-file", out)
	require.NoError(t, err)
	_, err = gprofile.Parse(mustOpen(t, out))
	require.NoError(t, err, "config selects pprof")

	_, _, err = execute(t, "", "--config", cfg, "--trace-file", tracePath, "--output-file", out, "--output-type", "flamegraph")
	require.NoError(t, err)
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "f;g 8\nf 2\n", string(data), "flags override the config file")
}

func mustOpen(t *testing.T, path string) *os.File {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func TestRoot_DebugOutput(t *testing.T) {
	dir := t.TempDir()
	tracePath := writeFile(t, dir, "trace.json", exampleTrace)

	_, stderr, err := execute(t, "", "--trace-file", tracePath, "--output-file", filepath.Join(dir, "out"),
		"--dump-tree", "--timings", "--verbose")
	require.NoError(t, err)
	assert.Contains(t, stderr, "Collapsed Call Tree")
	assert.Contains(t, stderr, "felt252_add(libfunc)")
	assert.Contains(t, stderr, "Stage Timing Report")
	assert.Contains(t, stderr, "Call tree collapsed")
}

func TestRoot_BuildCommand(t *testing.T) {
	dir := t.TempDir()
	tracePath := writeFile(t, dir, "trace.json", exampleTrace)
	marker := filepath.Join(dir, "built")
	cfg := writeFile(t, dir, "vmprof.yaml", "build:\n  command: [sh, -c, \"touch "+marker+"\"]\n")
	out := filepath.Join(dir, "out")

	_, _, err := execute(t, "", "--config", cfg, "--trace-file", tracePath, "--output-file", out, "--no-build")
	require.NoError(t, err)
	assert.NoFileExists(t, marker)

	_, _, err = execute(t, "", "--config", cfg, "--trace-file", tracePath, "--output-file", out)
	require.NoError(t, err)
	assert.FileExists(t, marker)
}

func TestRoot_Baselines(t *testing.T) {
	dir := t.TempDir()
	baselines := filepath.Join(dir, "baselines")
	before := writeFile(t, dir, "before.folded", "f;g 8\nf 2\n")
	after := writeFile(t, dir, "after.folded", "f;g 16\nf 2\n")
	out := filepath.Join(dir, "out")

	_, _, err := execute(t, "", "--profile-file", before, "--output-file", out,
		"--save-baseline", "main", "--baseline-dir", baselines)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(baselines, "main.json"))

	stdout, _, err := execute(t, "", "--profile-file", after, "--output-file", out,
		"--compare-baseline", "main", "--baseline-dir", baselines)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Baseline Comparison")
	assert.Contains(t, stdout, "2 cost regressions detected.")

	_, _, err = execute(t, "", "--profile-file", after, "--output-file", out,
		"--compare-baseline", "other", "--baseline-dir", baselines)
	assert.Error(t, err)
}

func TestRoot_Errors(t *testing.T) {
	dir := t.TempDir()
	tracePath := writeFile(t, dir, "trace.json", exampleTrace)
	unbalanced := writeFile(t, dir, "bad.json",
		`{"functions":[{"id":0,"name":"f","category":"user"}],"events":[{"kind":"call","function":0}]}`)
	out := filepath.Join(dir, "out")

	tests := []struct {
		name string
		args []string
	}{
		{"no input", []string{"--output-file", out}},
		{"both inputs", []string{"--trace-file", tracePath, "--profile-file", tracePath, "--output-file", out}},
		{"no output", []string{"--trace-file", tracePath}},
		{"bad output type", []string{"--trace-file", tracePath, "--output-file", out, "--output-type", "svg"}},
		{"bad hide", []string{"--trace-file", tracePath, "--output-file", out, "--hide", "builtin"}},
		{"missing config", []string{"--trace-file", tracePath, "--output-file", out, "--config", filepath.Join(dir, "nope.yaml")}},
		{"unbalanced trace", []string{"--trace-file", unbalanced, "--output-file", out}},
		{"missing trace", []string{"--trace-file", filepath.Join(dir, "nope.json"), "--output-file", out}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := execute(t, "", tt.args...)
			assert.Error(t, err)
			assert.NoFileExists(t, out, "no output on failure")
		})
	}
}
