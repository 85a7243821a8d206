// Package pprof converts an aggregated profile into a gzip-compressed pprof
// protobuf.
package pprof

import (
	"bytes"
	"fmt"
	"io"
	"math"

	gprofile "github.com/google/pprof/profile"
	"github.com/klauspost/compress/gzip"

	"github.com/danpilch/vmprof/pkg/profile"
	"github.com/danpilch/vmprof/pkg/trace"
)

const (
	// DefaultSampleType is the pprof sample type for VM cost.
	DefaultSampleType = "cost"
	// DefaultSampleUnit is the unit for cost samples.
	DefaultSampleUnit = "count"
	// DefaultMappingFile names the synthetic mapping; there is no real binary.
	DefaultMappingFile = "vm"
)

// Options configures the generated profile.
type Options struct {
	SampleType  string
	SampleUnit  string
	MappingFile string
	// TimeNanos is stored as the profile collection time when non-zero.
	TimeNanos int64
}

func (o Options) withDefaults() Options {
	if o.SampleType == "" {
		o.SampleType = DefaultSampleType
	}
	if o.SampleUnit == "" {
		o.SampleUnit = DefaultSampleUnit
	}
	if o.MappingFile == "" {
		o.MappingFile = DefaultMappingFile
	}
	return o
}

// Build creates a pprof profile with one Function and one Location per
// distinct function and one Sample per profile entry.
func Build(p *profile.Profile, opts Options) (*gprofile.Profile, error) {
	opts = opts.withDefaults()

	out := &gprofile.Profile{
		SampleType: []*gprofile.ValueType{
			{Type: opts.SampleType, Unit: opts.SampleUnit},
		},
		DefaultSampleType: opts.SampleType,
		Mapping: []*gprofile.Mapping{
			{ID: 1, File: opts.MappingFile, HasFunctions: true},
		},
		TimeNanos: opts.TimeNanos,
	}
	mapping := out.Mapping[0]
	labels := profile.NewLabeler()
	locations := make(map[trace.FunctionID]*gprofile.Location)

	locationFor := func(id trace.FunctionID) (*gprofile.Location, error) {
		if loc, ok := locations[id]; ok {
			return loc, nil
		}
		name, err := labels.Label(id)
		if err != nil {
			return nil, err
		}
		fn := &gprofile.Function{
			ID:         uint64(len(out.Function) + 1),
			Name:       name,
			SystemName: id.Name,
			Filename:   id.Category.String(),
		}
		out.Function = append(out.Function, fn)

		loc := &gprofile.Location{
			ID:      uint64(len(out.Location) + 1),
			Mapping: mapping,
			Line:    []gprofile.Line{{Function: fn}},
		}
		out.Location = append(out.Location, loc)
		locations[id] = loc
		return loc, nil
	}

	for _, e := range p.Entries() {
		if e.Value > math.MaxInt64 {
			return nil, &profile.SerializationError{
				Function: e.Leaf(),
				Value:    e.Value,
				Reason:   "exceeds int64 range of pprof sample values",
			}
		}

		locs := make([]*gprofile.Location, len(e.Path))
		for i, id := range e.Path {
			loc, err := locationFor(id)
			if err != nil {
				return nil, err
			}
			// pprof wants the leaf first.
			locs[len(e.Path)-1-i] = loc
		}

		out.Sample = append(out.Sample, &gprofile.Sample{
			Location: locs,
			Value:    []int64{int64(e.Value)},
		})
	}

	if err := out.CheckValid(); err != nil {
		return nil, fmt.Errorf("profile validation failed: %w", err)
	}
	return out, nil
}

// Write serializes prof as gzip-compressed protobuf.
func Write(w io.Writer, prof *gprofile.Profile) error {
	gw := gzip.NewWriter(w)
	if err := prof.WriteUncompressed(gw); err != nil {
		_ = gw.Close()
		return fmt.Errorf("failed to write pprof data: %w", err)
	}
	return gw.Close()
}

// Encode builds and serializes p in one step, returning the compressed bytes.
func Encode(p *profile.Profile, opts Options) ([]byte, error) {
	prof, err := Build(p, opts)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := Write(&buf, prof); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
