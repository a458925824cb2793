package caption

import (
	"fmt"
	"strings"

	"github.com/ivlev/reelcomposer/internal/timeline"
)

// WordTiming is a single transcribed word with absolute timeline times.
type WordTiming struct {
	Word  string  `yaml:"word" json:"word"`
	Start float64 `yaml:"start" json:"start"`
	End   float64 `yaml:"end" json:"end"`
}

// Caption is a timed text span. Without Words it renders by proportional reveal.
type Caption struct {
	Start float64      `yaml:"startTime" json:"startTime"`
	End   float64      `yaml:"endTime" json:"endTime"`
	Text  string       `yaml:"text" json:"text"`
	Words []WordTiming `yaml:"words,omitempty" json:"words,omitempty"`
}

func (c Caption) HasWordTimings() bool {
	return len(c.Words) > 0
}

// Progress is the linear position of t inside the caption, clamped to [0, 1].
func (c Caption) Progress(t float64) float64 {
	span := c.End - c.Start
	if span <= 0 {
		return 1
	}
	p := (t - c.Start) / span
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

// Active returns the first caption with Start <= t < End.
func Active(captions []Caption, t float64) (Caption, bool) {
	for _, c := range captions {
		if c.Start <= t && t < c.End {
			return c, true
		}
	}
	return Caption{}, false
}

// FromIntervals derives one caption per scene from its narration text,
// used when no transcription was supplied.
func FromIntervals(intervals []timeline.Interval) []Caption {
	out := make([]Caption, 0, len(intervals))
	for _, iv := range intervals {
		if iv.Scene == nil {
			continue
		}
		text := strings.TrimSpace(iv.Scene.Text)
		if text == "" {
			continue
		}
		out = append(out, Caption{Start: iv.Start, End: iv.End, Text: text})
	}
	return out
}

// Sanitize returns a copy safe to feed the selector. Captions with an empty
// span are dropped; word lists that go backwards in time or leave the
// caption span are removed so the caption falls back to proportional
// reveal. Each repair is reported in issues.
func Sanitize(in []Caption) (out []Caption, issues []error) {
	out = make([]Caption, 0, len(in))
	for i, c := range in {
		if !(c.End > c.Start) {
			issues = append(issues, fmt.Errorf("caption %d: empty span [%v, %v), dropped", i, c.Start, c.End))
			continue
		}
		if len(c.Words) > 0 {
			if err := checkWords(c); err != nil {
				issues = append(issues, fmt.Errorf("caption %d: %w, word timings ignored", i, err))
				c.Words = nil
			} else {
				words := make([]WordTiming, len(c.Words))
				copy(words, c.Words)
				c.Words = words
			}
		}
		out = append(out, c)
	}
	return out, issues
}

// slack absorbs transcription rounding at the caption edges.
const slack = 0.05

func checkWords(c Caption) error {
	prevStart, prevEnd := c.Start-slack, c.Start-slack
	for j, w := range c.Words {
		if w.End < w.Start {
			return fmt.Errorf("word %d %q ends before it starts", j, w.Word)
		}
		if w.Start < prevStart || w.End < prevEnd {
			return fmt.Errorf("word %d %q is out of order", j, w.Word)
		}
		if w.Start < c.Start-slack || w.End > c.End+slack {
			return fmt.Errorf("word %d %q outside caption span", j, w.Word)
		}
		prevStart, prevEnd = w.Start, w.End
	}
	return nil
}
