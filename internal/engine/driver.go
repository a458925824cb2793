package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ivlev/reelcomposer/internal/audio"
	"github.com/ivlev/reelcomposer/internal/caption"
	"github.com/ivlev/reelcomposer/internal/compositor"
	"github.com/ivlev/reelcomposer/internal/render"
	"github.com/ivlev/reelcomposer/internal/source"
	"github.com/ivlev/reelcomposer/internal/system"
	"github.com/ivlev/reelcomposer/internal/timeline"
	"github.com/ivlev/reelcomposer/internal/video"
)

// Input is what the upstream collaborators produced for one video.
type Input struct {
	Scenes    []timeline.Scene
	Captions  []caption.Caption // nil: one caption per scene from its text
	AudioPath string            // empty renders a silent video
	Settings  caption.Settings
}

type Options struct {
	Width  int
	Height int
	FPS    int

	Encoder string
	Quality int
	Bitrate int
	Output  string

	Highlight string
	Watermark string

	LoadTimeout time.Duration
	Workers     int
	DPI         int

	ShowStats    bool
	BenchmarkLog string
	BuildVersion string
}

// Deps are the collaborators a Driver talks to. Only Sink is required.
type Deps struct {
	Sink     video.FrameSink
	Prober   audio.Prober
	Clock    audio.Clock
	Fonts    *render.FontBook
	Decode   source.DecodeFunc
	Log      *logrus.Entry
	Progress ProgressFunc
}

// Driver runs one composition: it owns the render state, the playback head
// and the frame buffers, and is the only thing that changes state.
type Driver struct {
	ID   string
	opts Options
	deps Deps
	log  *logrus.Entry

	mu      sync.Mutex
	state   State
	started bool
	stats   Stats
}

func New(opts Options, deps Deps) *Driver {
	if opts.FPS <= 0 {
		opts.FPS = 30
	}
	if opts.LoadTimeout <= 0 {
		opts.LoadTimeout = time.Minute
	}
	if deps.Prober == nil {
		deps.Prober = audio.FFProbe{}
	}
	if deps.Clock == nil {
		deps.Clock = audio.SystemClock{}
	}
	if deps.Fonts == nil {
		deps.Fonts = render.NewFontBook()
	}
	if deps.Log == nil {
		deps.Log = logrus.NewEntry(logrus.StandardLogger())
	}
	id := uuid.NewString()
	return &Driver{
		ID:   id,
		opts: opts,
		deps: deps,
		log:  deps.Log.WithFields(logrus.Fields{"run": id, "component": "driver"}),
	}
}

func (d *Driver) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *Driver) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

func (d *Driver) setState(s State, msg string, percent int) {
	d.mu.Lock()
	d.state = s
	d.mu.Unlock()
	d.log.WithField("state", s).Infof("[*] %s", msg)
	d.emit(Event{Stage: s, Message: msg, Percent: percent})
}

func (d *Driver) emit(ev Event) {
	if d.deps.Progress != nil {
		d.deps.Progress(ev)
	}
}

func (d *Driver) fail(state State, err error) error {
	re := &RunError{State: state, Err: err}
	d.mu.Lock()
	d.state = Failed
	d.mu.Unlock()
	d.log.WithField("state", state).Errorf("[!] run failed: %v", err)
	d.emit(Event{Stage: Failed, Message: re.Error()})
	return re
}

// Run composes the video and returns the artifact once Ready. Every
// failure is a *RunError; on failure or cancellation the sink is aborted
// and no artifact exists. A Driver runs once.
func (d *Driver) Run(ctx context.Context, in Input) (*video.Artifact, error) {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return nil, ErrAlreadyStarted
	}
	d.started = true
	d.mu.Unlock()
	if d.deps.Sink == nil {
		return nil, d.fail(Idle, ErrNoSink)
	}

	runStart := time.Now()
	scenes := make([]timeline.Scene, len(in.Scenes))
	copy(scenes, in.Scenes)
	tl, err := timeline.Build(scenes)
	if err != nil {
		return nil, d.fail(Idle, err)
	}
	settings, err := in.Settings.Normalized()
	if err != nil {
		return nil, d.fail(Idle, err)
	}

	// Loading assets.
	d.setState(LoadingAssets, fmt.Sprintf("loading %d scenes", tl.Len()), 0)
	info, err := d.loadAssets(ctx, scenes, in.AudioPath)
	if err != nil {
		return nil, d.fail(LoadingAssets, err)
	}
	loadTime := time.Since(runStart)

	captions := in.Captions
	if captions == nil {
		captions = caption.FromIntervals(tl.Intervals())
	}
	captions, issues := caption.Sanitize(captions)
	for _, issue := range issues {
		d.log.Warnf("[!] %v", issue)
	}

	total := tl.Total()
	if in.AudioPath != "" && absDiff(info.Duration, total) > 0.5 {
		d.log.Warnf("[!] narration is %.2fs, timeline is %.2fs; output follows the timeline", info.Duration, total)
	}

	faces := d.deps.Fonts.Faces()
	defer faces.Close()
	comp, err := compositor.New(compositor.Options{
		Width:     d.opts.Width,
		Height:    d.opts.Height,
		Settings:  settings,
		Highlight: d.opts.Highlight,
		Watermark: d.opts.Watermark,
	}, faces)
	if err != nil {
		return nil, d.fail(LoadingAssets, err)
	}

	r := &recorder{
		driver:   d,
		timeline: tl,
		captions: captions,
		selector: caption.NewSelector(settings, d.opts.Width, d.opts.Height, faces),
		comp:     comp,
		faces:    faces,
		pool:     system.NewFramePool(d.opts.Width, d.opts.Height),
		player:   audio.NewClockPlayer(d.deps.Clock),
	}

	// Recording.
	d.setState(Recording, "recording", 0)
	recStart := time.Now()
	err = d.deps.Sink.Begin(ctx, video.Options{
		Width:     d.opts.Width,
		Height:    d.opts.Height,
		FPS:       d.opts.FPS,
		Encoder:   d.opts.Encoder,
		Quality:   d.opts.Quality,
		Bitrate:   d.opts.Bitrate,
		AudioPath: in.AudioPath,
		Duration:  total,
		Output:    d.opts.Output,
	})
	if err != nil {
		return nil, d.fail(Recording, err)
	}
	if err := r.record(ctx); err != nil {
		d.deps.Sink.Abort()
		return nil, d.fail(Recording, err)
	}
	recTime := time.Since(recStart)

	// Finalizing.
	d.setState(Finalizing, "finalizing", 100)
	finStart := time.Now()
	art, err := d.deps.Sink.Finalize(ctx)
	if err != nil {
		d.deps.Sink.Abort()
		return nil, d.fail(Finalizing, err)
	}

	stats := Stats{
		Scenes:       tl.Len(),
		Duration:     total,
		Ticks:        r.ticks,
		Frames:       art.Frames,
		Duplicated:   art.Duplicated,
		Dropped:      art.Dropped,
		LoadTime:     loadTime,
		RecordTime:   recTime,
		FinalizeTime: time.Since(finStart),
		TotalTime:    time.Since(runStart),
		Host:         system.Snapshot(),
	}
	d.mu.Lock()
	d.stats = stats
	d.mu.Unlock()
	if d.opts.ShowStats {
		d.report(stats)
	}

	d.setState(Ready, fmt.Sprintf("ready: %s", art.Path), 100)
	return art, nil
}

// loadAssets resolves scene images and probes the narration in parallel
// under the load timeout. Image failures are recovered by the loader.
func (d *Driver) loadAssets(ctx context.Context, scenes []timeline.Scene, audioPath string) (audio.Info, error) {
	loadCtx, cancel := context.WithTimeout(ctx, d.opts.LoadTimeout)
	defer cancel()

	workers := d.opts.Workers
	if workers <= 0 {
		workers = system.LoaderWorkers(system.Snapshot())
	}
	loader := &source.Loader{
		Workers: workers,
		DPI:     d.opts.DPI,
		Decode:  d.deps.Decode,
		Log:     d.log.WithField("component", "loader"),
	}

	var (
		info audio.Info
		res  source.Result
	)
	g, gctx := errgroup.WithContext(loadCtx)
	g.Go(func() error {
		var err error
		res, err = loader.Load(gctx, scenes)
		return err
	})
	if audioPath != "" {
		g.Go(func() error {
			var err error
			info, err = d.deps.Prober.Probe(gctx, audioPath)
			return err
		})
	}

	err := g.Wait()
	if err != nil {
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			return info, fmt.Errorf("%w after %s", ErrAssetLoadTimeout, d.opts.LoadTimeout)
		}
		return info, err
	}
	d.log.Infof("[*] assets ready: %d images, %d placeholders (%d failed)", res.Loaded, res.Missing+res.Failed, res.Failed)
	return info, nil
}

func absDiff(a, b float64) float64 {
	if a > b {
		return a - b
	}
	return b - a
}
