package baseline

import (
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/danpilch/vmprof/pkg/report"
)

// Severity indicates the magnitude of a cost drift.
type Severity string

const (
	SeverityNone     Severity = "none"
	SeverityMinor    Severity = "minor"
	SeverityModerate Severity = "moderate"
	// SeverityImproved is a large cost decrease.
	SeverityImproved Severity = "improved"
	SeverityRegress  Severity = "regression"
)

// TotalRow is the Function of the comparison covering the whole profile.
const TotalRow = "TOTAL"

// Comparison holds the drift of one function's self cost.
type Comparison struct {
	Function    string
	Category    string
	BaselineVal uint64
	CurrentVal  uint64
	DeltaPct    float64
	Severity    Severity
}

var (
	blTitle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	blHeader = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Background(lipgloss.Color("62")).Padding(0, 1)
	blDim    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	blOK     = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	blWarn   = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	blErr    = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	blMinor  = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
)

type funcKey struct{ name, category string }

// Compare matches functions by name and category. The first row compares
// total cost; functions present on only one side compare against zero.
func Compare(baseline *Baseline, current report.Summary) []Comparison {
	base := make(map[funcKey]uint64, len(baseline.Functions))
	for _, f := range baseline.Functions {
		base[funcKey{f.Function, f.Category}] = f.Self
	}

	comparisons := []Comparison{compare(TotalRow, "", baseline.TotalCost, current.TotalCost)}
	seen := make(map[funcKey]bool, len(current.Top))
	for _, cur := range current.Top {
		k := funcKey{cur.Function, cur.Category}
		seen[k] = true
		comparisons = append(comparisons, compare(cur.Function, cur.Category, base[k], cur.Self))
	}
	for _, f := range baseline.Functions {
		if k := (funcKey{f.Function, f.Category}); !seen[k] {
			comparisons = append(comparisons, compare(f.Function, f.Category, f.Self, 0))
		}
	}
	return comparisons
}

func compare(name, category string, baseVal, curVal uint64) Comparison {
	var deltaPct float64
	if baseVal != 0 {
		deltaPct = (float64(curVal) - float64(baseVal)) / float64(baseVal) * 100
	} else if curVal != 0 {
		deltaPct = 100
	}
	return Comparison{
		Function:    name,
		Category:    category,
		BaselineVal: baseVal,
		CurrentVal:  curVal,
		DeltaPct:    deltaPct,
		Severity:    classifySeverity(deltaPct),
	}
}

func classifySeverity(deltaPct float64) Severity {
	absDelta := math.Abs(deltaPct)
	if absDelta < 5 {
		return SeverityNone
	}
	if absDelta < 15 {
		return SeverityMinor
	}
	if absDelta < 30 {
		return SeverityModerate
	}
	if deltaPct > 0 {
		return SeverityRegress
	}
	return SeverityImproved
}

// Regressions counts comparisons classified as regressions.
func Regressions(comparisons []Comparison) int {
	n := 0
	for _, c := range comparisons {
		if c.Severity == SeverityRegress {
			n++
		}
	}
	return n
}

// RenderComparison outputs a styled comparison table. Unchanged functions
// are left out unless all is set.
func RenderComparison(w io.Writer, baseline *Baseline, comparisons []Comparison, all bool) {
	fmt.Fprintln(w, blTitle.Render("Baseline Comparison"))
	fmt.Fprintln(w, blDim.Render(strings.Repeat("═", 90)))
	fmt.Fprintf(w, "Comparing against %s (from %s)\n\n",
		lipgloss.NewStyle().Bold(true).Render(fmt.Sprintf("%q", baseline.Name)),
		blDim.Render(baseline.Timestamp.Format("2006-01-02 15:04:05")))

	fmt.Fprintf(w, "  %s %s %s %s %s %s\n",
		blHeader.Render("FUNCTION                "),
		blHeader.Render("CATEGORY  "),
		blHeader.Render("BASELINE    "),
		blHeader.Render("CURRENT     "),
		blHeader.Render("DELTA    "),
		blHeader.Render("SEVERITY  "))
	fmt.Fprintln(w, "  "+blDim.Render(strings.Repeat("─", 90)))

	for _, c := range comparisons {
		if !all && c.Severity == SeverityNone && c.Function != TotalRow {
			continue
		}
		deltaStr := fmt.Sprintf("%+.1f%%", c.DeltaPct)
		var sevStr string
		switch c.Severity {
		case SeverityRegress:
			sevStr = blErr.Render("REGRESSION")
		case SeverityImproved:
			sevStr = blOK.Render("improved")
		case SeverityModerate:
			sevStr = blWarn.Render("moderate")
		case SeverityMinor:
			sevStr = blMinor.Render("minor")
		default:
			sevStr = blOK.Render("none")
		}

		fmt.Fprintf(w, "  %-25s %-11s %-14d %-14d %-10s %s\n",
			c.Function, c.Category, c.BaselineVal, c.CurrentVal, deltaStr, sevStr)
	}

	fmt.Fprintln(w)
	if n := Regressions(comparisons); n > 0 {
		fmt.Fprintf(w, "  %s\n", blErr.Render(fmt.Sprintf("%d cost regressions detected.", n)))
	} else {
		fmt.Fprintf(w, "  %s\n", blOK.Render("No significant regressions detected."))
	}
}
