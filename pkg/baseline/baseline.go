// Package baseline saves profile cost snapshots and detects cost drift
// between runs.
package baseline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/danpilch/vmprof/pkg/report"
)

// Baseline is a saved per-function cost snapshot.
type Baseline struct {
	Name      string                `json:"name"`
	Timestamp time.Time             `json:"timestamp"`
	Source    string                `json:"source,omitempty"`
	TotalCost uint64                `json:"total_cost"`
	Functions []report.FunctionCost `json:"functions"`
	Metadata  map[string]string     `json:"metadata,omitempty"`
}

// DefaultDir returns the default baseline storage directory.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".vmprof/baselines"
	}
	return filepath.Join(home, ".vmprof", "baselines")
}

func validName(name string) error {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return fmt.Errorf("invalid baseline name %q", name)
	}
	return nil
}

// Save writes a baseline to a JSON file.
func (b *Baseline) Save(dir string) error {
	if err := validName(b.Name); err != nil {
		return err
	}
	if dir == "" {
		dir = DefaultDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create baseline directory: %w", err)
	}

	path := filepath.Join(dir, b.Name+".json")
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal baseline: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("cannot write baseline: %w", err)
	}
	return nil
}

// Load reads a baseline from a JSON file.
func Load(name, dir string) (*Baseline, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	if dir == "" {
		dir = DefaultDir()
	}
	path := filepath.Join(dir, name+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read baseline %q: %w", name, err)
	}

	var b Baseline
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("cannot parse baseline: %w", err)
	}
	return &b, nil
}

// List returns all saved baseline names.
func List(dir string) ([]string, error) {
	if dir == "" {
		dir = DefaultDir()
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if name, ok := strings.CutSuffix(e.Name(), ".json"); ok && !e.IsDir() {
			names = append(names, name)
		}
	}
	return names, nil
}

// NewBaseline snapshots every function of a summary. The summary should be
// built without a top-N limit.
func NewBaseline(name, source string, s report.Summary) *Baseline {
	return &Baseline{
		Name:      name,
		Timestamp: time.Now(),
		Source:    source,
		TotalCost: s.TotalCost,
		Functions: s.Top,
	}
}
