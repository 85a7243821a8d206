package profile

import (
	"fmt"
	"strings"

	"github.com/danpilch/vmprof/pkg/trace"
)

var labelEscaper = strings.NewReplacer(
	";", "_", // frame separator in folded stacks
	"\n", " ",
	"\r", " ",
)

// Label renders id as folded-stack text. User functions render as their
// name; other categories get a bracketed suffix so that the same name in two
// categories stays distinct.
func Label(id trace.FunctionID) string {
	name := labelEscaper.Replace(id.Name)
	if id.Category == trace.User {
		return name
	}
	return name + " [" + id.Category.String() + "]"
}

// ParseLabel is the inverse of Label for unescaped names.
func ParseLabel(s string) (trace.FunctionID, error) {
	if s == "" {
		return trace.FunctionID{}, fmt.Errorf("empty frame label")
	}
	for _, c := range []trace.Category{trace.Corelib, trace.Libfunc, trace.Synthetic} {
		suffix := " [" + c.String() + "]"
		if name, ok := strings.CutSuffix(s, suffix); ok && name != "" {
			return trace.FunctionID{Name: name, Category: c}, nil
		}
	}
	return trace.FunctionID{Name: s, Category: trace.User}, nil
}

// Labeler hands out labels and fails if two identities would share one.
type Labeler struct {
	byID   map[trace.FunctionID]string
	byText map[string]trace.FunctionID
}

// NewLabeler returns an empty Labeler.
func NewLabeler() *Labeler {
	return &Labeler{
		byID:   make(map[trace.FunctionID]string),
		byText: make(map[string]trace.FunctionID),
	}
}

// Label returns the stable text for id.
func (l *Labeler) Label(id trace.FunctionID) (string, error) {
	if text, ok := l.byID[id]; ok {
		return text, nil
	}
	text := Label(id)
	if other, ok := l.byText[text]; ok {
		return "", &SerializationError{Function: id, Label: text, Conflict: other}
	}
	l.byID[id] = text
	l.byText[text] = id
	return text, nil
}
