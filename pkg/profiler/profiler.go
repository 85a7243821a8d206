// Package profiler wires the trace, call tree, collapse and export stages
// into one pipeline.
package profiler

import (
	"bytes"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/danpilch/vmprof/pkg/calltree"
	"github.com/danpilch/vmprof/pkg/collapse"
	"github.com/danpilch/vmprof/pkg/debug"
	"github.com/danpilch/vmprof/pkg/flamegraph"
	"github.com/danpilch/vmprof/pkg/pprof"
	"github.com/danpilch/vmprof/pkg/profile"
	"github.com/danpilch/vmprof/pkg/trace"
)

// OutputType selects the exporter.
type OutputType string

const (
	OutputFlamegraph OutputType = "flamegraph"
	OutputPprof      OutputType = "pprof"
)

// ParseOutputType accepts exactly the two supported output types.
func ParseOutputType(s string) (OutputType, error) {
	switch t := OutputType(s); t {
	case OutputFlamegraph, OutputPprof:
		return t, nil
	default:
		return "", fmt.Errorf("unknown output type %q (want flamegraph or pprof)", s)
	}
}

// Stage names used for timings and log fields.
const (
	StageDecode    = "decode"
	StageBuild     = "build"
	StageCollapse  = "collapse"
	StageAggregate = "aggregate"
	StageExport    = "export"
)

// Options configures a Profiler.
type Options struct {
	OutputType OutputType
	// MergeSiblings folds repeated calls while the tree is built instead of
	// leaving it all to the collapse pass.
	MergeSiblings bool
	Filter        profile.Options
	Pprof         pprof.Options
}

// Result holds the intermediate products of Aggregate.
type Result struct {
	Tree      *calltree.Frame
	Collapsed *calltree.Frame
	Stats     collapse.Stats
	Profile   *profile.Profile
}

// Profiler runs the pipeline. It is not safe for concurrent use.
type Profiler struct {
	opts    Options
	logger  *logrus.Logger
	timings *debug.Timings
}

// New validates opts and returns a Profiler. A nil logger logs warnings to
// stderr.
func New(opts Options, logger *logrus.Logger) (*Profiler, error) {
	if _, err := ParseOutputType(string(opts.OutputType)); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.WarnLevel)
	}
	return &Profiler{
		opts:    opts,
		logger:  logger,
		timings: debug.NewTimings(),
	}, nil
}

// Timings returns the durations of the stages run so far.
func (p *Profiler) Timings() *debug.Timings {
	return p.timings
}

// Decode reads a JSON trace file.
func (p *Profiler) Decode(r io.Reader) ([]trace.Event, error) {
	var events []trace.Event
	err := p.timings.Track(StageDecode, func() error {
		var err error
		events, err = trace.Decode(r)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to decode trace: %w", err)
	}
	p.logger.WithField("events", len(events)).Debug("Trace decoded")
	return events, nil
}

// Aggregate builds, collapses and flattens events.
func (p *Profiler) Aggregate(events []trace.Event) (*Result, error) {
	res := &Result{}

	var opts []calltree.Option
	if p.opts.MergeSiblings {
		opts = append(opts, calltree.WithSiblingMerge())
	}
	err := p.timings.Track(StageBuild, func() error {
		var err error
		res.Tree, err = calltree.Build(events, opts...)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build call tree: %w", err)
	}
	p.logger.WithFields(logrus.Fields{
		"frames": res.Tree.Count() - 1,
		"cost":   res.Tree.CumulativeCost(),
	}).Debug("Call tree built")

	_ = p.timings.Track(StageCollapse, func() error {
		res.Collapsed, res.Stats = collapse.Run(res.Tree)
		return nil
	})
	p.logger.WithFields(logrus.Fields{
		"input_frames":  res.Stats.InputFrames,
		"output_frames": res.Stats.OutputFrames,
		"recursions":    res.Stats.Recursions,
		"repetitions":   res.Stats.Repetitions,
	}).Debug("Call tree collapsed")

	err = p.timings.Track(StageAggregate, func() error {
		var err error
		res.Profile, err = profile.FromTree(res.Collapsed, p.opts.Filter)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate profile: %w", err)
	}
	p.logAggregate(res.Profile)
	return res, nil
}

// LoadFolded reads a folded profile and applies the display filters.
func (p *Profiler) LoadFolded(r io.Reader) (*profile.Profile, error) {
	var prof *profile.Profile
	err := p.timings.Track(StageDecode, func() error {
		var err error
		prof, err = flamegraph.ReadFolded(r)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read folded profile: %w", err)
	}

	err = p.timings.Track(StageAggregate, func() error {
		var err error
		prof, err = prof.Filter(p.opts.Filter)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to filter profile: %w", err)
	}
	p.logAggregate(prof)
	return prof, nil
}

func (p *Profiler) logAggregate(prof *profile.Profile) {
	p.logger.WithFields(logrus.Fields{
		"paths": prof.Len(),
		"total": prof.Total(),
	}).Debug("Profile aggregated")
}

// Export renders prof in the configured format. Nothing is written to w
// unless rendering succeeds.
func (p *Profiler) Export(w io.Writer, prof *profile.Profile) error {
	var buf bytes.Buffer
	err := p.timings.Track(StageExport, func() error {
		switch p.opts.OutputType {
		case OutputPprof:
			data, err := pprof.Encode(prof, p.opts.Pprof)
			if err != nil {
				return err
			}
			buf.Write(data)
			return nil
		default:
			return flamegraph.WriteFolded(&buf, prof)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to export %s: %w", p.opts.OutputType, err)
	}

	p.logger.WithFields(logrus.Fields{
		"type":  p.opts.OutputType,
		"bytes": buf.Len(),
	}).Debug("Profile exported")
	_, err = w.Write(buf.Bytes())
	return err
}

// Render runs the whole pipeline over events and returns the output bytes.
func (p *Profiler) Render(events []trace.Event) ([]byte, *Result, error) {
	res, err := p.Aggregate(events)
	if err != nil {
		return nil, nil, err
	}
	var buf bytes.Buffer
	if err := p.Export(&buf, res.Profile); err != nil {
		return nil, nil, err
	}
	return buf.Bytes(), res, nil
}
