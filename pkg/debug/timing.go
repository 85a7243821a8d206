// Package debug provides instrumentation for the vmprof pipeline.
package debug

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
)

var (
	debugTitle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	debugHeader = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Background(lipgloss.Color("62")).Padding(0, 1)
	debugDim    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

// StageTiming records how long one pipeline stage took.
type StageTiming struct {
	Name     string
	Duration time.Duration
}

// Timings collects stage durations in the order the stages ran.
type Timings struct {
	mu     sync.Mutex
	stages []StageTiming
	now    func() time.Time
}

// NewTimings returns an empty recorder.
func NewTimings() *Timings {
	return &Timings{now: time.Now}
}

// Track runs fn and records its duration under name, even when fn fails.
func (t *Timings) Track(name string, fn func() error) error {
	start := t.now()
	err := fn()
	t.Record(name, t.now().Sub(start))
	return err
}

// Record adds a measured duration.
func (t *Timings) Record(name string, d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stages = append(t.stages, StageTiming{Name: name, Duration: d})
}

// Stages returns a copy of the recorded timings.
func (t *Timings) Stages() []StageTiming {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]StageTiming, len(t.stages))
	copy(out, t.stages)
	return out
}

// TimingReport prints a styled timing summary.
func TimingReport(w io.Writer, timings []StageTiming) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, debugTitle.Render("Stage Timing Report"))
	fmt.Fprintln(w, debugDim.Render(strings.Repeat("═", 40)))
	fmt.Fprintf(w, "  %s  %s\n",
		debugHeader.Render("STAGE              "),
		debugHeader.Render("DURATION    "))
	fmt.Fprintln(w, "  "+debugDim.Render(strings.Repeat("─", 40)))

	var total time.Duration
	for _, t := range timings {
		fmt.Fprintf(w, "  %-20s %v\n", t.Name, t.Duration)
		total += t.Duration
	}
	fmt.Fprintln(w, "  "+debugDim.Render(strings.Repeat("─", 40)))
	fmt.Fprintf(w, "  %-20s %v\n",
		lipgloss.NewStyle().Bold(true).Render("TOTAL"), total)
}
