package video

import "math"

// Pacer maps capture timestamps onto a constant frame rate. Each frame owns
// slot round(ts*fps); a late frame repeats to fill the slots that were
// skipped, and a frame landing on a filled slot is dropped.
type Pacer struct {
	fps   float64
	limit int // total slots, 0 = unbounded
	next  int

	Duplicated int
	Dropped    int
}

func NewPacer(fps int, duration float64) *Pacer {
	p := &Pacer{fps: float64(fps)}
	if duration > 0 {
		p.limit = Slots(fps, duration)
	}
	return p
}

// Slots is the number of frames a stream of the given length carries.
func Slots(fps int, duration float64) int {
	return int(math.Round(duration * float64(fps)))
}

// Place returns how many times the frame at ts must be written; 0 drops it.
func (p *Pacer) Place(ts float64) int {
	slot := int(math.Round(ts * p.fps))
	if slot < 0 {
		slot = 0
	}
	if p.limit > 0 && slot >= p.limit {
		slot = p.limit - 1
	}
	if slot < p.next {
		p.Dropped++
		return 0
	}
	n := slot - p.next + 1
	p.Duplicated += n - 1
	p.next = slot + 1
	return n
}

// Pad returns how many copies of the last frame complete the stream.
func (p *Pacer) Pad() int {
	if p.limit <= p.next {
		return 0
	}
	n := p.limit - p.next
	p.Duplicated += n
	p.next = p.limit
	return n
}

// Written is the number of slots filled so far.
func (p *Pacer) Written() int {
	return p.next
}
