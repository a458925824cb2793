package caption

import "strings"

type WordState uint8

const (
	Plain WordState = iota
	Spoken
	Current
	Upcoming
)

func (s WordState) String() string {
	switch s {
	case Spoken:
		return "spoken"
	case Current:
		return "current"
	case Upcoming:
		return "upcoming"
	default:
		return "plain"
	}
}

// Span is a run of text drawn in one style. Scale multiplies Layout.FontSize.
type Span struct {
	Text  string
	State WordState
	Scale float64
}

type Line struct {
	Spans []Span
}

func (l Line) Text() string {
	parts := make([]string, len(l.Spans))
	for i, sp := range l.Spans {
		parts[i] = sp.Text
	}
	return strings.Join(parts, " ")
}

// Layout is the renderable decision for one frame. It holds no pointers
// into the caption set, so two layouts compare equal with reflect.DeepEqual
// whenever the decisions match.
type Layout struct {
	Template Template
	Anchor   Anchor
	Font     string
	FontSize float64
	Lines    []Line
	Backdrop bool
	Shadow   bool
}

func (l Layout) Text() string {
	lines := make([]string, len(l.Lines))
	for i, ln := range l.Lines {
		lines[i] = ln.Text()
	}
	return strings.Join(lines, "\n")
}

func (l Layout) WordCount() int {
	n := 0
	for _, ln := range l.Lines {
		n += len(ln.Spans)
	}
	return n
}
