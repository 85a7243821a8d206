// Package build runs the external build step that produces the program
// artifact before a trace is profiled.
package build

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Options configures the build command.
type Options struct {
	// Command is the program and its arguments. Empty disables the step.
	Command []string
	// Env is added on top of the current environment.
	Env map[string]string
	// Dir is the working directory; empty means the current one.
	Dir string
}

// Enabled reports whether a build command is configured.
func (o Options) Enabled() bool {
	return len(o.Command) > 0
}

// Result describes a finished build.
type Result struct {
	Command  string
	Duration time.Duration
	Output   string
}

// Run executes the configured build command and waits for it.
func Run(ctx context.Context, opts Options, logger *logrus.Logger) (*Result, error) {
	if !opts.Enabled() {
		return nil, fmt.Errorf("no build command configured")
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.WarnLevel)
	}

	if _, err := exec.LookPath(opts.Command[0]); err != nil {
		return nil, fmt.Errorf("build command %q not found: %w", opts.Command[0], err)
	}

	cmd := exec.CommandContext(ctx, opts.Command[0], opts.Command[1:]...)
	cmd.Dir = opts.Dir
	cmd.Env = append(os.Environ(), envList(opts.Env)...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	line := strings.Join(opts.Command, " ")
	logger.WithFields(logrus.Fields{
		"command": line,
		"dir":     opts.Dir,
	}).Debug("Running build")

	start := time.Now()
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("build failed: %v (%s)", err, strings.TrimSpace(stderr.String()))
	}

	res := &Result{
		Command:  line,
		Duration: time.Since(start),
		Output:   stdout.String(),
	}
	logger.WithField("duration", res.Duration).Debug("Build finished")
	return res, nil
}

// envList renders env as sorted KEY=VALUE pairs.
func envList(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+env[k])
	}
	return out
}
