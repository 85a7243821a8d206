// Package flamegraph writes and reads the folded-stack format and renders
// SVG flame graphs from it.
package flamegraph

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/danpilch/vmprof/pkg/profile"
	"github.com/danpilch/vmprof/pkg/trace"
)

// maxLineSize bounds a single folded line; deep VM stacks get long.
const maxLineSize = 16 * 1024 * 1024

// WriteFolded writes one "label1;label2;...;labelN cost" line per profile
// entry, in entry order. Nothing is written if any label fails to render.
func WriteFolded(w io.Writer, p *profile.Profile) error {
	var buf bytes.Buffer
	labels := profile.NewLabeler()

	for _, e := range p.Entries() {
		for i, id := range e.Path {
			text, err := labels.Label(id)
			if err != nil {
				return err
			}
			if i > 0 {
				buf.WriteByte(';')
			}
			buf.WriteString(text)
		}
		buf.WriteByte(' ')
		buf.WriteString(strconv.FormatUint(e.Value, 10))
		buf.WriteByte('\n')
	}

	_, err := w.Write(buf.Bytes())
	return err
}

// ReadFolded parses folded stacks into a profile. Repeated stacks are
// aggregated; blank lines are skipped.
func ReadFolded(r io.Reader) (*profile.Profile, error) {
	p := profile.New()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		idx := strings.LastIndexByte(line, ' ')
		if idx <= 0 {
			return nil, fmt.Errorf("line %d: invalid folded stack %q", lineNo, line)
		}
		count, err := strconv.ParseUint(line[idx+1:], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid count: %w", lineNo, err)
		}

		frames := strings.Split(strings.TrimSpace(line[:idx]), ";")
		path := make([]trace.FunctionID, 0, len(frames))
		for _, frame := range frames {
			id, err := profile.ParseLabel(frame)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
			path = append(path, id)
		}

		if err := p.Add(path, count); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("cannot read folded stacks: %w", err)
	}
	return p, nil
}
