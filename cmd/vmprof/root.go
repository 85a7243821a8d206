package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/danpilch/vmprof/pkg/baseline"
	"github.com/danpilch/vmprof/pkg/build"
	"github.com/danpilch/vmprof/pkg/config"
	"github.com/danpilch/vmprof/pkg/debug"
	"github.com/danpilch/vmprof/pkg/flamegraph"
	"github.com/danpilch/vmprof/pkg/pprof"
	"github.com/danpilch/vmprof/pkg/profile"
	"github.com/danpilch/vmprof/pkg/profiler"
	"github.com/danpilch/vmprof/pkg/report"
)

type rootOptions struct {
	traceFile     string
	profileFile   string
	outputType    string
	outputFile    string
	svgFile       string
	minCost       uint64
	hide          []string
	mergeSiblings bool

	summary       bool
	summaryFormat string
	top           int
	dumpTree      bool
	dumpDepth     int
	timings       bool
	debugPprof    string

	saveBaseline    string
	compareBaseline string
	baselineDir     string

	noBuild       bool
	openInBrowser bool
	configPath    string
	logLevel      string
	verbose       bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "vmprof",
		Short: "Turn VM execution traces into flame graphs and pprof profiles",
		Long: `vmprof reads a call/return trace of a VM program, rebuilds the call tree,
folds recursion and repeated calls, and writes the result either as folded
stacks for flame graph tools or as a gzip-compressed pprof profile.

A previously written folded profile can be given with --profile-file
instead of a trace.`,
		Example: `  vmprof --trace-file trace.json --output-file out.folded --svg-file out.svg
  vmprof --trace-file - --output-type pprof --output-file out.pb.gz --summary
  vmprof --profile-file out.folded --output-type pprof --output-file out.pb.gz`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.traceFile, "trace-file", "", "JSON trace to profile (- for stdin)")
	f.StringVar(&opts.profileFile, "profile-file", "", "Folded profile to convert instead of a trace")
	f.StringVar(&opts.outputType, "output-type", "flamegraph", "Output type (flamegraph, pprof)")
	f.StringVarP(&opts.outputFile, "output-file", "o", "", "File to write the profile to")
	f.StringVar(&opts.svgFile, "svg-file", "", "Also render an SVG flame graph to this file")
	f.Uint64Var(&opts.minCost, "min-cost", 0, "Drop call paths cheaper than this")
	f.StringSliceVar(&opts.hide, "hide", nil, "Categories to elide from call paths (corelib, libfunc, user)")
	f.BoolVar(&opts.mergeSiblings, "merge-siblings", false, "Merge repeated calls while building the call tree")
	f.BoolVar(&opts.summary, "summary", false, "Print the most expensive functions")
	f.StringVar(&opts.summaryFormat, "summary-format", "table", "Summary format (table, json, tsv)")
	f.IntVar(&opts.top, "top", 10, "Number of functions in the summary (0 for all)")
	f.BoolVar(&opts.dumpTree, "dump-tree", false, "Print the collapsed call tree to stderr")
	f.IntVar(&opts.dumpDepth, "dump-depth", 0, "Depth limit for --dump-tree (0 for no limit)")
	f.BoolVar(&opts.timings, "timings", false, "Print per-stage timings to stderr")
	f.StringVar(&opts.debugPprof, "debug-pprof", "", "Serve vmprof's own runtime profiles at this address")
	f.StringVar(&opts.saveBaseline, "save-baseline", "", "Save per-function costs as a named baseline")
	f.StringVar(&opts.compareBaseline, "compare-baseline", "", "Compare per-function costs against a named baseline")
	f.StringVar(&opts.baselineDir, "baseline-dir", "", "Baseline directory (default ~/.vmprof/baselines)")
	f.BoolVar(&opts.noBuild, "no-build", false, "Skip the configured build command")
	f.BoolVar(&opts.openInBrowser, "open-in-browser", false, "Open the result in a browser when done")
	f.StringVar(&opts.configPath, "config", "", "Config file (default "+config.DefaultFile+" if present)")
	f.StringVar(&opts.logLevel, "log-level", "warn", "Log level (trace, debug, info, warn, error)")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "Shortcut for --log-level debug")

	_ = cmd.MarkFlagRequired("output-file")
	cmd.MarkFlagsMutuallyExclusive("trace-file", "profile-file")
	cmd.MarkFlagsOneRequired("trace-file", "profile-file")

	_ = cmd.RegisterFlagCompletionFunc("output-type", func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return []string{string(profiler.OutputFlamegraph), string(profiler.OutputPprof)}, cobra.ShellCompDirectiveNoFileComp
	})
	_ = cmd.RegisterFlagCompletionFunc("summary-format", func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return []string{string(report.FormatTable), string(report.FormatJSON), string(report.FormatTSV)}, cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

// loadConfig reads the config file and lets explicitly set flags win.
func loadConfig(cmd *cobra.Command, opts *rootOptions) (*config.Config, error) {
	path, required := config.DefaultFile, false
	if opts.configPath != "" {
		path, required = opts.configPath, true
	}
	cfg, err := config.Load(path, required)
	if err != nil {
		return nil, err
	}

	changed := cmd.Flags().Changed
	if changed("output-type") {
		cfg.OutputType = opts.outputType
	}
	if changed("min-cost") {
		cfg.MinCost = opts.minCost
	}
	if changed("hide") {
		cfg.Hide = opts.hide
	}
	if changed("log-level") {
		cfg.LogLevel = opts.logLevel
	}
	if opts.verbose {
		cfg.LogLevel = logrus.DebugLevel.String()
	}
	if changed("summary-format") {
		cfg.Summary.Format = opts.summaryFormat
	}
	if changed("top") {
		cfg.Summary.Top = opts.top
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(w io.Writer, level string) (*logrus.Logger, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	logger := logrus.New()
	logger.SetOutput(w)
	logger.SetLevel(lvl)
	logger.SetFormatter(&logrus.TextFormatter{
		DisableTimestamp: true,
	})
	return logger, nil
}

func run(cmd *cobra.Command, opts *rootOptions) error {
	ctx := cmd.Context()
	stderr := cmd.ErrOrStderr()

	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}
	logger, err := newLogger(stderr, cfg.LogLevel)
	if err != nil {
		return err
	}

	if opts.debugPprof != "" {
		_, stop, err := debug.StartPprofServer(opts.debugPprof, logger)
		if err != nil {
			return err
		}
		defer stop()
	}

	outputType, err := profiler.ParseOutputType(cfg.OutputType)
	if err != nil {
		return err
	}
	hidden, err := cfg.HiddenCategories()
	if err != nil {
		return err
	}

	p, err := profiler.New(profiler.Options{
		OutputType:    outputType,
		MergeSiblings: opts.mergeSiblings,
		Filter: profile.Options{
			MinCost: cfg.MinCost,
			Hide:    hidden,
		},
		Pprof: pprof.Options{
			SampleType:  cfg.Pprof.SampleType,
			SampleUnit:  cfg.Pprof.SampleUnit,
			MappingFile: cfg.Pprof.MappingFile,
			TimeNanos:   time.Now().UnixNano(),
		},
	}, logger)
	if err != nil {
		return err
	}

	buildOpts := build.Options{
		Command: cfg.Build.Command,
		Env:     cfg.Build.Env,
		Dir:     cfg.Build.Dir,
	}
	if opts.traceFile != "" && buildOpts.Enabled() && !opts.noBuild {
		res, err := build.Run(ctx, buildOpts, logger)
		if err != nil {
			return err
		}
		p.Timings().Record("build-command", res.Duration)
	}

	var prof *profile.Profile
	if opts.traceFile != "" {
		prof, err = profileTrace(cmd, p, opts)
	} else {
		prof, err = profileFolded(p, opts.profileFile)
	}
	if err != nil {
		return err
	}

	var out bytes.Buffer
	if err := p.Export(&out, prof); err != nil {
		return err
	}
	if err := os.WriteFile(opts.outputFile, out.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", opts.outputFile, err)
	}
	logger.WithFields(logrus.Fields{
		"file":  opts.outputFile,
		"type":  outputType,
		"total": prof.Total(),
	}).Info("Profile written")

	if opts.svgFile != "" {
		if err := writeSVG(opts.svgFile, prof, cfg.SVG); err != nil {
			return err
		}
	}

	if opts.summary {
		format, err := report.ParseFormat(cfg.Summary.Format)
		if err != nil {
			return err
		}
		if err := report.NewFormatter(format, cmd.OutOrStdout()).Render(report.Summarize(prof, cfg.Summary.Top)); err != nil {
			return err
		}
	}

	if err := handleBaselines(cmd.OutOrStdout(), opts, prof); err != nil {
		return err
	}

	if opts.timings {
		debug.TimingReport(stderr, p.Timings().Stages())
	}

	if opts.openInBrowser {
		return openResult(ctx, outputType, opts, logger)
	}
	return nil
}

func profileTrace(cmd *cobra.Command, p *profiler.Profiler, opts *rootOptions) (*profile.Profile, error) {
	in := cmd.InOrStdin()
	if opts.traceFile != "-" {
		f, err := os.Open(opts.traceFile)
		if err != nil {
			return nil, fmt.Errorf("cannot open trace: %w", err)
		}
		defer f.Close()
		in = f
	}

	events, err := p.Decode(in)
	if err != nil {
		return nil, err
	}
	res, err := p.Aggregate(events)
	if err != nil {
		return nil, err
	}

	if opts.dumpTree {
		debug.DumpTree(cmd.ErrOrStderr(), "Collapsed Call Tree", res.Collapsed, opts.dumpDepth)
	}
	return res.Profile, nil
}

func profileFolded(p *profiler.Profiler, path string) (*profile.Profile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open profile: %w", err)
	}
	defer f.Close()
	return p.LoadFolded(f)
}

func writeSVG(path string, prof *profile.Profile, cfg config.SVGConfig) error {
	svgOpts := flamegraph.DefaultSVGOptions()
	if cfg.Title != "" {
		svgOpts.Title = cfg.Title
	}
	if cfg.Width > 0 {
		svgOpts.Width = cfg.Width
	}
	if cfg.Height > 0 {
		svgOpts.Height = cfg.Height
	}

	var buf bytes.Buffer
	if err := flamegraph.GenerateSVG(&buf, prof, svgOpts); err != nil {
		return fmt.Errorf("failed to render svg: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func handleBaselines(w io.Writer, opts *rootOptions, prof *profile.Profile) error {
	if opts.saveBaseline == "" && opts.compareBaseline == "" {
		return nil
	}
	all := report.Summarize(prof, 0)

	if opts.compareBaseline != "" {
		b, err := baseline.Load(opts.compareBaseline, opts.baselineDir)
		if err != nil {
			return err
		}
		baseline.RenderComparison(w, b, baseline.Compare(b, all), false)
	}

	if opts.saveBaseline != "" {
		source := opts.traceFile
		if source == "" {
			source = opts.profileFile
		}
		if err := baseline.NewBaseline(opts.saveBaseline, source, all).Save(opts.baselineDir); err != nil {
			return err
		}
	}
	return nil
}
