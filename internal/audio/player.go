package audio

import (
	"sync"
	"time"
)

// Player is the playback head. Its position is the authoritative timeline
// position for the capture loop.
type Player interface {
	Start()
	Position() float64
	Stop()
}

// ClockPlayer plays the narration against a Clock: position is the time
// elapsed on that clock since Start. The track itself is muxed by the sink.
type ClockPlayer struct {
	clock Clock

	mu      sync.Mutex
	started time.Time
	running bool
	stopped float64
}

func NewClockPlayer(c Clock) *ClockPlayer {
	return &ClockPlayer{clock: c}
}

// Start begins playback from 0. Calling it again restarts.
func (p *ClockPlayer) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.started = p.clock.Now()
	p.running = true
	p.stopped = 0
}

// Position is seconds since Start, frozen once stopped.
func (p *ClockPlayer) Position() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return p.stopped
	}
	return p.clock.Now().Sub(p.started).Seconds()
}

func (p *ClockPlayer) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return
	}
	p.stopped = p.clock.Now().Sub(p.started).Seconds()
	p.running = false
}

func (p *ClockPlayer) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}
