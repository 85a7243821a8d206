package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/pkg/browser"
	"github.com/sirupsen/logrus"

	"github.com/danpilch/vmprof/pkg/profiler"
)

// pprofHTTPAddr is where `go tool pprof` serves its web UI.
const pprofHTTPAddr = ":8000"

// openResult shows the written profile. Flame graphs open as their SVG;
// pprof output goes to the pprof web UI, which blocks until interrupted.
func openResult(ctx context.Context, outputType profiler.OutputType, opts *rootOptions, logger *logrus.Logger) error {
	switch outputType {
	case profiler.OutputPprof:
		goBin, err := exec.LookPath("go")
		if err != nil {
			return fmt.Errorf("cannot open pprof profile: %w", err)
		}
		c := exec.CommandContext(ctx, goBin, "tool", "pprof", "-http="+pprofHTTPAddr, opts.outputFile)
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		logger.WithField("addr", pprofHTTPAddr).Info("Starting pprof web UI")
		if err := c.Run(); err != nil && ctx.Err() == nil {
			return fmt.Errorf("go tool pprof failed: %w", err)
		}
		return nil
	default:
		if opts.svgFile == "" {
			logger.Warn("Nothing to open: pass --svg-file to render the flame graph")
			return nil
		}
		if err := browser.OpenFile(opts.svgFile); err != nil {
			return fmt.Errorf("cannot open %s: %w", opts.svgFile, err)
		}
		return nil
	}
}
