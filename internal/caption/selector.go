package caption

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/ivlev/reelcomposer/internal/render"
)

const (
	karaokeWindow = 8
	karaokeLead   = 3
	karaokePop    = 1.15
	popSeconds    = 0.15

	sentenceLead   = 4
	sentenceWindow = 8
	sentenceLines  = 2
	usableWidth    = 0.85

	minimalLead   = 3
	minimalWindow = 6
	minimalChars  = 50
	minimalScale  = 0.7

	wordByWordScale = 2.0
)

// Measurer reports the advance width in pixels of text set in a font family
// at a pixel size.
type Measurer interface {
	MeasureText(family string, size float64, text string) float64
}

// ApproxMeasurer assumes every rune is 0.55em wide.
type ApproxMeasurer struct{}

func (ApproxMeasurer) MeasureText(_ string, size float64, text string) float64 {
	return float64(utf8.RuneCountInString(text)) * size * 0.55
}

// Selector decides what caption text a frame shows. It holds only immutable
// configuration: Select has no side effects and returns identical layouts
// for identical inputs.
type Selector struct {
	settings Settings
	width    int
	height   int
	measure  Measurer
}

func NewSelector(s Settings, width, height int, m Measurer) *Selector {
	if m == nil {
		m = ApproxMeasurer{}
	}
	return &Selector{
		settings: s.WithDefaults(),
		width:    width,
		height:   height,
		measure:  m,
	}
}

func (s *Selector) Settings() Settings {
	return s.settings
}

// BaseFontSize is the configured size class scaled to the output's short edge.
func (s *Selector) BaseFontSize() float64 {
	short := s.width
	if s.height < short {
		short = s.height
	}
	return s.settings.Size.basePixels() * float64(short) / 1080
}

// Select returns the layout for timestamp t, or false when no caption is
// active (nothing is drawn that frame).
func (s *Selector) Select(captions []Caption, t float64) (Layout, bool) {
	c, ok := Active(captions, t)
	if !ok {
		return Layout{}, false
	}
	return s.Layout(c, t)
}

// Layout applies the configured template to an already selected caption.
func (s *Selector) Layout(c Caption, t float64) (Layout, bool) {
	switch s.settings.Template {
	case Karaoke:
		if !c.HasWordTimings() {
			return s.sentence(c, t)
		}
		return s.karaoke(c, t)
	case WordByWord:
		return s.wordByWord(c, t)
	case Minimal:
		return s.minimal(c, t)
	default:
		return s.sentence(c, t)
	}
}

func (s *Selector) base(tpl Template) Layout {
	return Layout{
		Template: tpl,
		Anchor:   s.settings.Anchor,
		Font:     s.settings.Font,
		FontSize: s.BaseFontSize(),
	}
}

// currentWord finds the word being spoken at t. In a gap it falls back to
// the last word that already ended; before the first word it returns -1.
func currentWord(words []WordTiming, t float64) int {
	last := -1
	for i, w := range words {
		if w.Start <= t && t < w.End {
			return i
		}
		if w.End <= t {
			last = i
		}
	}
	return last
}

// karaokeBounds returns the [start, end) window of at most karaokeWindow
// words keeping the current word near the front, re-clamped from the end
// when the list runs out.
func karaokeBounds(n, current int) (int, int) {
	start := current - karaokeLead
	if start < 0 {
		start = 0
	}
	end := start + karaokeWindow
	if end > n {
		end = n
		start = end - karaokeWindow
		if start < 0 {
			start = 0
		}
	}
	return start, end
}

func popScale(elapsed float64) float64 {
	return render.Lerp(1, karaokePop, render.EaseInOutCubic(elapsed/popSeconds))
}

func (s *Selector) karaoke(c Caption, t float64) (Layout, bool) {
	cur := currentWord(c.Words, t)
	start, end := karaokeBounds(len(c.Words), cur)

	spans := make([]Span, 0, end-start)
	for i := start; i < end; i++ {
		w := c.Words[i]
		sp := Span{Text: w.Word, State: Upcoming, Scale: 1}
		switch {
		case i < cur:
			sp.State = Spoken
		case i == cur:
			sp.State = Current
			sp.Scale = popScale(t - w.Start)
		}
		spans = append(spans, sp)
	}

	l := s.base(Karaoke)
	l.Backdrop = true
	first := (len(spans) + 1) / 2
	l.Lines = append(l.Lines, Line{Spans: spans[:first]})
	if len(spans) > first {
		l.Lines = append(l.Lines, Line{Spans: spans[first:]})
	}
	return l, len(spans) > 0
}

func (s *Selector) wordByWord(c Caption, t float64) (Layout, bool) {
	var word string
	if c.HasWordTimings() {
		i := currentWord(c.Words, t)
		if i < 0 {
			i = 0
		}
		word = c.Words[i].Word
	} else {
		words := strings.Fields(c.Text)
		if len(words) == 0 {
			return Layout{}, false
		}
		i := int(math.Floor(c.Progress(t) * float64(len(words))))
		if i >= len(words) {
			i = len(words) - 1
		}
		word = words[i]
	}

	l := s.base(WordByWord)
	l.FontSize *= wordByWordScale
	l.Shadow = true
	l.Lines = []Line{{Spans: []Span{{Text: strings.ToUpper(word), State: Plain, Scale: 1}}}}
	return l, true
}

// revealBounds is the proportional-reveal window shared by sentence and
// minimal: lead words past the spoken point, at most window words total.
func revealBounds(n int, progress float64, lead, window int) (int, int) {
	end := int(math.Ceil(progress*float64(n))) + lead
	if end > n {
		end = n
	}
	start := end - window
	if start < 0 {
		start = 0
	}
	return start, end
}

func (s *Selector) sentence(c Caption, t float64) (Layout, bool) {
	words := strings.Fields(c.Text)
	if len(words) == 0 {
		return Layout{}, false
	}
	start, end := revealBounds(len(words), c.Progress(t), sentenceLead, sentenceWindow)

	l := s.base(Sentence)
	l.Backdrop = true
	maxWidth := usableWidth * float64(s.width)
	for _, text := range s.wrap(words[start:end], l.FontSize, maxWidth, sentenceLines) {
		l.Lines = append(l.Lines, Line{Spans: []Span{{Text: text, State: Plain, Scale: 1}}})
	}
	return l, len(l.Lines) > 0
}

// wrap fills lines greedily up to maxWidth and keeps at most maxLines,
// dropping overflow from the tail.
func (s *Selector) wrap(words []string, size, maxWidth float64, maxLines int) []string {
	var lines []string
	cur := ""
	for _, w := range words {
		if cur == "" {
			cur = w
			continue
		}
		candidate := cur + " " + w
		if s.measure.MeasureText(s.settings.Font, size, candidate) <= maxWidth {
			cur = candidate
			continue
		}
		lines = append(lines, cur)
		if len(lines) == maxLines {
			return lines
		}
		cur = w
	}
	if cur != "" {
		lines = append(lines, cur)
	}
	if len(lines) > maxLines {
		lines = lines[:maxLines]
	}
	return lines
}

func (s *Selector) minimal(c Caption, t float64) (Layout, bool) {
	words := strings.Fields(c.Text)
	if len(words) == 0 {
		return Layout{}, false
	}
	start, end := revealBounds(len(words), c.Progress(t), minimalLead, minimalWindow)

	l := s.base(Minimal)
	l.Anchor = AnchorBottom
	l.FontSize *= minimalScale
	l.Shadow = true
	text := truncateRunes(strings.Join(words[start:end], " "), minimalChars)
	l.Lines = []Line{{Spans: []Span{{Text: text, State: Plain, Scale: 1}}}}
	return l, true
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return strings.TrimRight(string(r[:max-3]), " ") + "..."
}
