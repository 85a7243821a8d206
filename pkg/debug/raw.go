package debug

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/danpilch/vmprof/pkg/calltree"
)

// DumpTree prints the call tree with self and cumulative cost per frame.
// Frames deeper than maxDepth are summarized; maxDepth <= 0 prints all.
func DumpTree(w io.Writer, title string, root *calltree.Frame, maxDepth int) {
	header := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Background(lipgloss.Color("62")).Padding(0, 1)

	fmt.Fprintln(w)
	fmt.Fprintln(w, debugTitle.Render(title))
	fmt.Fprintln(w, debugDim.Render(strings.Repeat("═", 70)))
	fmt.Fprintf(w, "  %s %s %s\n",
		header.Render("FRAME                                 "),
		header.Render("SELF        "),
		header.Render("TOTAL       "))
	fmt.Fprintln(w, "  "+debugDim.Render(strings.Repeat("─", 70)))

	dumpFrame(w, root, 0, maxDepth)
}

func dumpFrame(w io.Writer, f *calltree.Frame, depth, maxDepth int) {
	name := strings.Repeat("  ", depth) + f.ID.String()
	fmt.Fprintf(w, "  %-40s %-13d %d\n", name, f.SelfCost, f.CumulativeCost())

	if len(f.Children) == 0 {
		return
	}
	if maxDepth > 0 && depth+1 > maxDepth {
		fmt.Fprintf(w, "  %s\n", debugDim.Render(fmt.Sprintf("%s... %d frames below",
			strings.Repeat("  ", depth+1), f.Count()-1)))
		return
	}
	for _, c := range f.Children {
		dumpFrame(w, c, depth+1, maxDepth)
	}
}
