package engine

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/ivlev/reelcomposer/internal/audio"
	"github.com/ivlev/reelcomposer/internal/caption"
	"github.com/ivlev/reelcomposer/internal/compositor"
	"github.com/ivlev/reelcomposer/internal/render"
	"github.com/ivlev/reelcomposer/internal/system"
	"github.com/ivlev/reelcomposer/internal/timeline"
)

// recorder is the capture loop of one run. Everything here is touched by a
// single goroutine.
type recorder struct {
	driver   *Driver
	timeline *timeline.Timeline
	captions []caption.Caption
	selector *caption.Selector
	comp     *compositor.Compositor
	faces    *render.Faces
	pool     *system.FramePool
	player   *audio.ClockPlayer

	ticks       int
	lastPercent int
}

// record plays the timeline once. Each tick takes the playback position as
// the frame timestamp, composes and pushes one frame, then sleeps until the
// next frame boundary on the clock. A slow tick skips boundaries instead of
// accumulating lag.
func (r *recorder) record(ctx context.Context) error {
	d := r.driver
	clock := d.deps.Clock
	interval := time.Second / time.Duration(d.opts.FPS)
	total := r.timeline.Total()

	r.player.Start()
	defer r.player.Stop()
	start := clock.Now()
	r.lastPercent = 0

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		t := r.player.Position()
		if t >= total {
			return nil
		}
		if err := r.tick(t); err != nil {
			return err
		}
		r.progress(t, total)

		elapsed := clock.Now().Sub(start)
		next := (elapsed/interval + 1) * interval
		if err := clock.Sleep(ctx, next-elapsed); err != nil {
			return err
		}
	}
}

func (r *recorder) tick(t float64) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: panic at %.3fs: %v", ErrComposition, t, p)
		}
	}()

	idx := r.timeline.IndexAt(t)
	iv := r.timeline.ActiveSceneAt(t)
	f := compositor.Frame{Index: idx, Scene: iv.Scene}
	if l, ok := r.selector.Select(r.captions, t); ok {
		f.Layout = &l
	}

	frame := r.pool.Get()
	defer r.pool.Put(frame)
	r.comp.Compose(render.NewCanvas(frame, r.faces), f)

	if err := r.driver.deps.Sink.WriteFrame(frame, t); err != nil {
		return fmt.Errorf("encode frame at %.3fs: %w", t, err)
	}
	r.ticks++
	return nil
}

func (r *recorder) progress(t, total float64) {
	pct := int(math.Floor(t / total * 100))
	if pct > 100 {
		pct = 100
	}
	if pct-r.lastPercent < progressStep {
		return
	}
	r.lastPercent = pct
	r.driver.log.Debugf("[*] recording %d%%", pct)
	r.driver.emit(Event{Stage: Recording, Message: fmt.Sprintf("recording %d%%", pct), Percent: pct})
}
