package flamegraph

import (
	"bytes"
	"fmt"
	"html"
	"io"

	"github.com/danpilch/vmprof/pkg/profile"
	"github.com/danpilch/vmprof/pkg/trace"
)

// SVGOptions configures the flame graph SVG output.
type SVGOptions struct {
	Title  string
	Width  int
	Height int
	// ColorScheme forces one palette ("hot", "cold", "mem") for every
	// frame. Empty colours frames by category.
	ColorScheme string
}

// DefaultSVGOptions returns sensible defaults.
func DefaultSVGOptions() SVGOptions {
	return SVGOptions{
		Title: "Flame Graph",
		Width: 1200,
	}
}

// frame represents a stack frame in the flame graph tree.
type frame struct {
	id       trace.FunctionID
	label    string
	value    uint64
	children []*frame
	index    map[trace.FunctionID]*frame
}

func newFrame(id trace.FunctionID, label string) *frame {
	return &frame{
		id:    id,
		label: label,
		index: make(map[trace.FunctionID]*frame),
	}
}

func (f *frame) child(id trace.FunctionID, label string) *frame {
	if c, ok := f.index[id]; ok {
		return c
	}
	c := newFrame(id, label)
	f.index[id] = c
	f.children = append(f.children, c)
	return c
}

// GenerateSVG renders a profile as an SVG flame graph.
func GenerateSVG(svg io.Writer, p *profile.Profile, opts SVGOptions) error {
	if opts.Width == 0 {
		opts.Width = 1200
	}
	if opts.Title == "" {
		opts.Title = "Flame Graph"
	}
	if p.Total() == 0 {
		return fmt.Errorf("no cost recorded in profile")
	}

	// Rebuild a tree from the paths, children in first-seen order.
	labels := profile.NewLabeler()
	root := newFrame(trace.Root, "all")
	for _, e := range p.Entries() {
		node := root
		for _, id := range e.Path {
			label, err := labels.Label(id)
			if err != nil {
				return err
			}
			node = node.child(id, label)
			node.value += e.Value
		}
		root.value += e.Value
	}

	// Calculate dimensions
	frameHeight := 16
	fontSize := 12
	maxDepth := getMaxDepth(root, 0)
	chartHeight := (maxDepth + 2) * frameHeight
	headerHeight := 40
	totalHeight := chartHeight + headerHeight + 20

	if opts.Height == 0 {
		opts.Height = totalHeight
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, `<?xml version="1.0" standalone="no"?>
<!DOCTYPE svg PUBLIC "-//W3C//DTD SVG 1.1//EN" "http://www.w3.org/Graphics/SVG/1.1/DTD/svg1.1.dtd">
<svg version="1.1" width="%d" height="%d" xmlns="http://www.w3.org/2000/svg">
<style>
  .func:hover { stroke:black; stroke-width:0.5; cursor:pointer; }
  text { font-family: monospace; font-size: %dpx; }
</style>
<rect x="0" y="0" width="%d" height="%d" fill="white"/>
<text x="%d" y="20" text-anchor="middle" style="font-size:16px; font-weight:bold;">%s</text>
<text x="%d" y="35" text-anchor="middle" style="font-size:12px; fill:#666;">(total cost %d)</text>
`,
		opts.Width, opts.Height, fontSize,
		opts.Width, opts.Height,
		opts.Width/2, html.EscapeString(opts.Title),
		opts.Width/2, root.value)

	// Render frames bottom-up
	margin := 10
	r := &renderer{
		w:           &buf,
		baseY:       opts.Height - 20,
		frameHeight: frameHeight,
		total:       root.value,
		scheme:      opts.ColorScheme,
	}
	r.render(root, margin, opts.Width-2*margin, 0)

	fmt.Fprintln(&buf, "</svg>")
	_, err := svg.Write(buf.Bytes())
	return err
}

type renderer struct {
	w           io.Writer
	baseY       int
	frameHeight int
	total       uint64
	scheme      string
}

func (r *renderer) render(f *frame, x, width, depth int) {
	if width < 1 || f.value == 0 {
		return
	}

	y := r.baseY - (depth * r.frameHeight)
	red, green, blue := frameColor(depth, r.schemeFor(f.id))

	fmt.Fprintf(r.w, `<g class="func">
<rect x="%d" y="%d" width="%d" height="%d" fill="rgb(%d,%d,%d)" rx="1"/>
`, x, y-r.frameHeight, width, r.frameHeight-1, red, green, blue)

	// Add text if frame is wide enough
	if width > 40 {
		label := f.label
		maxChars := (width - 4) / 7 // approximate char width
		if len(label) > maxChars {
			if maxChars > 3 {
				label = label[:maxChars-2] + ".."
			} else {
				label = ""
			}
		}
		if label != "" {
			fmt.Fprintf(r.w, `<text x="%d" y="%d" fill="black">%s</text>
`, x+2, y-4, html.EscapeString(label))
		}
	}

	pctStr := fmt.Sprintf("%.1f%%", float64(f.value)/float64(r.total)*100)
	fmt.Fprintf(r.w, `<title>%s (cost %d, %s)</title>
</g>
`, html.EscapeString(f.label), f.value, pctStr)

	childX := x
	for _, child := range f.children {
		childWidth := int(float64(width) * float64(child.value) / float64(f.value))
		if childWidth < 1 {
			childWidth = 1
		}
		r.render(child, childX, childWidth, depth+1)
		childX += childWidth
	}
}

func (r *renderer) schemeFor(id trace.FunctionID) string {
	if r.scheme != "" {
		return r.scheme
	}
	switch id.Category {
	case trace.Corelib:
		return "cold"
	case trace.Libfunc:
		return "mem"
	default:
		return "hot"
	}
}

func frameColor(depth int, scheme string) (int, int, int) {
	// Deterministic color based on depth
	switch scheme {
	case "cold":
		g := 50 + (depth*30)%150
		b := 150 + (depth*20)%100
		return 30, g, b
	case "mem":
		g := 190 + (depth*15)%60
		return 30, g, 30
	default: // "hot"
		r := 200 + (depth*15)%55
		g := 50 + (depth*40)%150
		return r, g, 30
	}
}

func getMaxDepth(f *frame, depth int) int {
	max := depth
	for _, child := range f.children {
		d := getMaxDepth(child, depth+1)
		if d > max {
			max = d
		}
	}
	return max
}
