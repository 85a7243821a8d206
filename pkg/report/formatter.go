package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// Format represents the output format type.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatTSV   Format = "tsv"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case FormatTable, FormatJSON, FormatTSV:
		return f, nil
	default:
		return "", fmt.Errorf("unknown summary format %q (want table, json or tsv)", s)
	}
}

// fixed columns besides the function name, with borders and padding
const tableOverhead = 60

// Formatter handles output formatting.
type Formatter struct {
	format Format
	writer io.Writer
	width  int
}

// NewFormatter creates a new formatter. Table output is fitted to the
// terminal when writer is one.
func NewFormatter(format Format, writer io.Writer) *Formatter {
	f := &Formatter{
		format: format,
		writer: writer,
	}
	if w, ok := terminalWidth(writer); ok {
		f.width = w
	}
	return f
}

// SetWidth overrides the detected terminal width. Zero disables truncation.
func (f *Formatter) SetWidth(width int) {
	f.width = width
}

// Render outputs the summary in the configured format.
func (f *Formatter) Render(s Summary) error {
	switch f.format {
	case FormatJSON:
		return f.renderJSON(s)
	case FormatTSV:
		return f.renderTSV(s)
	default:
		return f.renderTable(s)
	}
}

func (f *Formatter) renderJSON(s Summary) error {
	enc := json.NewEncoder(f.writer)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

func (f *Formatter) renderTable(s Summary) error {
	headerStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("15")).
		Background(lipgloss.Color("62")).
		Padding(0, 1)

	cellStyle := lipgloss.NewStyle().Padding(0, 1)
	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))

	categoryStyles := map[string]lipgloss.Style{
		"user":      lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
		"corelib":   lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true),
		"libfunc":   lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true),
		"synthetic": lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Bold(true),
	}

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		MarginBottom(1)

	fmt.Fprintln(f.writer, titleStyle.Render("VM Cost Profile"))
	fmt.Fprintln(f.writer, strings.Repeat("═", 60))
	fmt.Fprintf(f.writer, "Total cost %d across %d paths, %d functions, max depth %d\n\n",
		s.TotalCost, s.Paths, s.Functions, s.MaxDepth)

	if len(s.Top) == 0 {
		fmt.Fprintln(f.writer, dim.Render("No cost recorded"))
		return nil
	}

	nameWidth := 0
	if f.width > 0 {
		nameWidth = max(f.width-tableOverhead, 12)
	}

	rows := make([][]string, len(s.Top))
	for i, fc := range s.Top {
		rows[i] = []string{
			fmt.Sprintf("%d", i+1),
			truncate(fc.Function, nameWidth),
			categoryStyles[fc.Category].Render(fc.Category),
			fmt.Sprintf("%d", fc.Self),
			fmt.Sprintf("%.2f%%", fc.Share),
			fmt.Sprintf("%d", fc.Total),
		}
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("240"))).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers("#", "FUNCTION", "CATEGORY", "SELF", "SHARE", "TOTAL").
		Rows(rows...)

	fmt.Fprintln(f.writer, t)
	fmt.Fprintln(f.writer)

	parts := make([]string, 0, len(s.Categories))
	for _, c := range s.Categories {
		parts = append(parts, categoryStyles[c.Category].Render(fmt.Sprintf("%s %.1f%%", c.Category, c.Share)))
	}
	fmt.Fprintf(f.writer, "Categories: %s\n", strings.Join(parts, ", "))
	fmt.Fprintf(f.writer, "Cost by depth: %s\n", sparkline(s.DepthCost))
	return nil
}

func (f *Formatter) renderTSV(s Summary) error {
	fmt.Fprintln(f.writer, "RANK\tFUNCTION\tCATEGORY\tSELF\tSHARE\tTOTAL")

	for i, fc := range s.Top {
		fmt.Fprintf(f.writer, "%d\t%s\t%s\t%d\t%.4f\t%d\n",
			i+1, fc.Function, fc.Category, fc.Self, fc.Share, fc.Total)
	}

	return nil
}

func truncate(s string, width int) string {
	if width <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	return string(r[:width-1]) + "…"
}
