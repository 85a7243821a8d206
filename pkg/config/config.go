// Package config loads vmprof settings from a YAML file.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/danpilch/vmprof/pkg/trace"
)

// DefaultFile is looked up in the working directory when no path is given.
const DefaultFile = ".vmprof.yaml"

// Config is the file layout. Zero fields fall back to defaults.
type Config struct {
	OutputType string        `yaml:"output_type"`
	MinCost    uint64        `yaml:"min_cost"`
	Hide       []string      `yaml:"hide"`
	LogLevel   string        `yaml:"log_level"`
	Pprof      PprofConfig   `yaml:"pprof"`
	SVG        SVGConfig     `yaml:"svg"`
	Build      BuildConfig   `yaml:"build"`
	Summary    SummaryConfig `yaml:"summary"`
}

// PprofConfig names the pprof sample type.
type PprofConfig struct {
	SampleType  string `yaml:"sample_type"`
	SampleUnit  string `yaml:"sample_unit"`
	MappingFile string `yaml:"mapping_file"`
}

// SVGConfig tunes the rendered flame graph.
type SVGConfig struct {
	Title  string `yaml:"title"`
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
}

// BuildConfig describes the external build step.
type BuildConfig struct {
	Command []string          `yaml:"command"`
	Env     map[string]string `yaml:"env"`
	Dir     string            `yaml:"dir"`
}

// SummaryConfig controls the report printed after export.
type SummaryConfig struct {
	Format string `yaml:"format"`
	Top    int    `yaml:"top"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		OutputType: "flamegraph",
		LogLevel:   "warn",
		Pprof: PprofConfig{
			SampleType: "cost",
			SampleUnit: "count",
		},
		SVG: SVGConfig{
			Title: "Flame Graph",
			Width: 1200,
		},
		Summary: SummaryConfig{
			Format: "table",
			Top:    10,
		},
	}
}

// Load reads path over the defaults. A missing file yields the defaults
// unless required is set.
func Load(path string, required bool) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !required {
			return cfg, nil
		}
		return nil, fmt.Errorf("cannot read config %q: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config %q: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %q: %w", path, err)
	}
	return cfg, nil
}

// Validate checks enumerated fields.
func (c *Config) Validate() error {
	switch c.OutputType {
	case "flamegraph", "pprof":
	default:
		return fmt.Errorf("output_type must be flamegraph or pprof, got %q", c.OutputType)
	}
	if _, err := c.HiddenCategories(); err != nil {
		return err
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	switch c.Summary.Format {
	case "table", "json", "tsv":
	default:
		return fmt.Errorf("summary.format must be table, json or tsv, got %q", c.Summary.Format)
	}
	if c.Summary.Top < 0 {
		return fmt.Errorf("summary.top must not be negative")
	}
	if c.SVG.Width < 0 || c.SVG.Height < 0 {
		return fmt.Errorf("svg dimensions must not be negative")
	}
	return nil
}

// HiddenCategories parses Hide.
func (c *Config) HiddenCategories() ([]trace.Category, error) {
	out := make([]trace.Category, 0, len(c.Hide))
	for _, name := range c.Hide {
		cat, err := trace.ParseCategory(name)
		if err != nil {
			return nil, fmt.Errorf("hide: %w", err)
		}
		out = append(out, cat)
	}
	return out, nil
}
