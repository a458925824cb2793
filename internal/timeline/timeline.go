package timeline

import (
	"errors"
	"fmt"
	"image"
	"math"
	"sort"
)

var (
	ErrEmptyTimeline   = errors.New("empty timeline")
	ErrInvalidDuration = errors.New("invalid scene duration")
)

// Scene is one narrated segment. Image is nil until the loader resolves it
// (and stays nil when the compositor has to synthesize a placeholder).
type Scene struct {
	Index       int
	Text        string
	ImagePrompt string
	ImagePath   string
	Image       image.Image
	Duration    float64 // seconds, > 0
}

// Interval is the absolute [Start, End) span during which a scene is active.
type Interval struct {
	Scene *Scene
	Start float64
	End   float64
}

func (iv Interval) Duration() float64 {
	return iv.End - iv.Start
}

type Timeline struct {
	intervals []Interval
	total     float64
}

// Build turns per-scene durations into contiguous intervals covering [0, total).
func Build(scenes []Scene) (*Timeline, error) {
	if len(scenes) == 0 {
		return nil, ErrEmptyTimeline
	}

	total := 0.0
	for i := range scenes {
		d := scenes[i].Duration
		if math.IsNaN(d) || math.IsInf(d, 0) || d < 0 {
			return nil, fmt.Errorf("scene %d: %w: %v", i+1, ErrInvalidDuration, d)
		}
		total += d
	}
	if total <= 0 {
		return nil, ErrEmptyTimeline
	}

	intervals := make([]Interval, len(scenes))
	start := 0.0
	for i := range scenes {
		if scenes[i].Duration == 0 {
			return nil, fmt.Errorf("scene %d: %w: zero length", i+1, ErrInvalidDuration)
		}
		end := start + scenes[i].Duration
		intervals[i] = Interval{Scene: &scenes[i], Start: start, End: end}
		start = end
	}
	// Pin the last edge so accumulated rounding never leaves a hole before total.
	intervals[len(intervals)-1].End = total

	return &Timeline{intervals: intervals, total: total}, nil
}

func (tl *Timeline) Total() float64 {
	return tl.total
}

func (tl *Timeline) Len() int {
	return len(tl.intervals)
}

func (tl *Timeline) Intervals() []Interval {
	out := make([]Interval, len(tl.intervals))
	copy(out, tl.intervals)
	return out
}

// ActiveSceneAt returns the interval containing t. Timestamps past the end
// clamp to the last interval since the audio clock may overrun slightly;
// negative timestamps clamp to the first.
func (tl *Timeline) ActiveSceneAt(t float64) Interval {
	return tl.intervals[tl.IndexAt(t)]
}

// IndexAt is ActiveSceneAt returning the zero-based scene position.
func (tl *Timeline) IndexAt(t float64) int {
	last := len(tl.intervals) - 1
	if t >= tl.total {
		return last
	}
	if t <= 0 {
		return 0
	}
	i := sort.Search(len(tl.intervals), func(i int) bool {
		return tl.intervals[i].End > t
	})
	if i > last {
		i = last
	}
	return i
}
