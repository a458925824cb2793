package engine

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivlev/reelcomposer/internal/audio"
	"github.com/ivlev/reelcomposer/internal/caption"
	"github.com/ivlev/reelcomposer/internal/timeline"
	"github.com/ivlev/reelcomposer/internal/video"
)

// fakeSink paces frames like the ffmpeg sink but keeps everything in memory.
type fakeSink struct {
	mu sync.Mutex

	beginErr   error
	panicAfter int
	onWrite    func(n int)

	began     bool
	finalized bool
	aborted   bool
	opts      video.Options
	stamps    []float64
	first     *image.RGBA
	pacer     *video.Pacer
}

func (s *fakeSink) Begin(_ context.Context, opts video.Options) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.beginErr != nil {
		return s.beginErr
	}
	s.began = true
	s.opts = opts
	s.pacer = video.NewPacer(opts.FPS, opts.Duration)
	return nil
}

func (s *fakeSink) WriteFrame(frame *image.RGBA, ts float64) error {
	s.mu.Lock()
	s.stamps = append(s.stamps, ts)
	n := len(s.stamps)
	if s.first == nil {
		s.first = image.NewRGBA(frame.Rect)
		copy(s.first.Pix, frame.Pix)
	}
	s.pacer.Place(ts)
	s.mu.Unlock()

	if s.panicAfter > 0 && n >= s.panicAfter {
		panic("rasterizer exploded")
	}
	if s.onWrite != nil {
		s.onWrite(n)
	}
	return nil
}

func (s *fakeSink) Finalize(context.Context) (*video.Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pacer == nil || s.pacer.Written() == 0 {
		return nil, video.ErrNoFramesCaptured
	}
	s.pacer.Pad()
	s.finalized = true
	return &video.Artifact{
		Path:       s.opts.Output,
		Duration:   float64(s.pacer.Written()) / float64(s.opts.FPS),
		Frames:     s.pacer.Written(),
		Duplicated: s.pacer.Duplicated,
		Dropped:    s.pacer.Dropped,
	}, nil
}

func (s *fakeSink) Abort() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aborted = true
}

type fakeProber struct {
	info audio.Info
	err  error
}

func (p fakeProber) Probe(context.Context, string) (audio.Info, error) {
	return p.info, p.err
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) add(ev Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) stages() []State {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []State
	for _, ev := range l.events {
		if len(out) == 0 || out[len(out)-1] != ev.Stage {
			out = append(out, ev.Stage)
		}
	}
	return out
}

func threeScenes() []timeline.Scene {
	return []timeline.Scene{
		{Text: "The quick brown fox", Duration: 1},
		{Text: "jumps over the lazy dog", Duration: 1},
		{Text: "near the river bank", Duration: 1},
	}
}

type harness struct {
	sink   *fakeSink
	events *eventLog
	hook   *test.Hook
	driver *Driver
}

func newHarness(t *testing.T, sink *fakeSink, mutate func(*Options, *Deps)) *harness {
	t.Helper()
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	events := &eventLog{}
	opts := Options{
		Width: 64, Height: 36, FPS: 10,
		Output:      "out.mp4",
		LoadTimeout: time.Second,
		Workers:     2,
	}
	deps := Deps{
		Sink:     sink,
		Prober:   fakeProber{info: audio.Info{Duration: 3}},
		Clock:    audio.NewManualClock(time.Unix(0, 0)),
		Log:      logrus.NewEntry(logger),
		Progress: events.add,
	}
	if mutate != nil {
		mutate(&opts, &deps)
	}
	return &harness{sink: sink, events: events, hook: hook, driver: New(opts, deps)}
}

func TestRunProducesArtifact(t *testing.T) {
	h := newHarness(t, &fakeSink{}, nil)

	art, err := h.driver.Run(context.Background(), Input{Scenes: threeScenes(), AudioPath: "voice.mp3"})
	require.NoError(t, err)

	assert.Equal(t, "out.mp4", art.Path)
	assert.InDelta(t, 3.0, art.Duration, 1e-9)
	assert.Equal(t, 30, art.Frames)
	assert.Equal(t, Ready, h.driver.State())
	assert.Equal(t, []State{LoadingAssets, Recording, Finalizing, Ready}, h.events.stages())

	assert.True(t, h.sink.finalized)
	assert.False(t, h.sink.aborted)
	assert.Equal(t, "voice.mp3", h.sink.opts.AudioPath)
	assert.InDelta(t, 3.0, h.sink.opts.Duration, 1e-9)

	require.Len(t, h.sink.stamps, 30)
	for i, ts := range h.sink.stamps {
		assert.InDelta(t, float64(i)/10, ts, 1e-6, "tick %d", i)
	}
	assert.Equal(t, 30, h.driver.Stats().Ticks)
}

func TestRunEmptyTimelineHasNoSideEffects(t *testing.T) {
	h := newHarness(t, &fakeSink{}, nil)

	art, err := h.driver.Run(context.Background(), Input{})
	assert.Nil(t, art)
	require.ErrorIs(t, err, timeline.ErrEmptyTimeline)

	var re *RunError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, Idle, re.State)
	assert.Equal(t, Failed, h.driver.State())
	assert.False(t, h.sink.began, "encoder never touched")
	assert.Equal(t, []State{Failed}, h.events.stages())
}

func TestRerenderProducesEqualDurations(t *testing.T) {
	var durations []float64
	for _, tpl := range []caption.Template{caption.Sentence, caption.Sentence, caption.Karaoke} {
		h := newHarness(t, &fakeSink{}, nil)
		s := caption.DefaultSettings()
		s.Template = tpl
		art, err := h.driver.Run(context.Background(), Input{Scenes: threeScenes(), Settings: s})
		require.NoError(t, err)
		durations = append(durations, art.Duration)
	}
	assert.Equal(t, durations[0], durations[1])
	assert.Equal(t, durations[0], durations[2])
}

func TestMissingImageUsesPlaceholder(t *testing.T) {
	decode := func(string, int) (image.Image, error) {
		return nil, errors.New("corrupt png")
	}
	h := newHarness(t, &fakeSink{}, func(_ *Options, d *Deps) { d.Decode = decode })

	scenes := threeScenes()
	scenes[0].ImagePath = "scene-1.png"
	_, err := h.driver.Run(context.Background(), Input{Scenes: scenes})
	require.NoError(t, err)

	assert.Nil(t, scenes[0].Image, "caller's scenes are not modified")
	require.NotNil(t, h.sink.first)
	assert.NotEqual(t, color.RGBA{0, 0, 0, 255}, h.sink.first.RGBAAt(1, 1), "placeholder gradient, not black")

	warned := false
	for _, e := range h.hook.AllEntries() {
		if e.Level == logrus.WarnLevel {
			warned = true
		}
	}
	assert.True(t, warned)
}

func TestSceneImagesAreDrawn(t *testing.T) {
	green := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for i := 0; i < len(green.Pix); i += 4 {
		green.Pix[i+1], green.Pix[i+3] = 255, 255
	}
	scenes := threeScenes()
	scenes[0].Image = green

	h := newHarness(t, &fakeSink{}, nil)
	_, err := h.driver.Run(context.Background(), Input{Scenes: scenes, Captions: []caption.Caption{}})
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{0, 255, 0, 255}, h.sink.first.RGBAAt(1, 1))
}

func TestEncoderInitFailure(t *testing.T) {
	sink := &fakeSink{beginErr: fmt.Errorf("%w: no such codec", video.ErrEncoderInit)}
	h := newHarness(t, sink, nil)

	_, err := h.driver.Run(context.Background(), Input{Scenes: threeScenes()})
	require.ErrorIs(t, err, video.ErrEncoderInit)
	var re *RunError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, Recording, re.State)
	assert.Equal(t, Failed, h.driver.State())
	assert.False(t, sink.finalized)
}

func TestAudioDecodeFailure(t *testing.T) {
	h := newHarness(t, &fakeSink{}, func(_ *Options, d *Deps) {
		d.Prober = fakeProber{err: fmt.Errorf("%w: truncated file", audio.ErrDecode)}
	})

	_, err := h.driver.Run(context.Background(), Input{Scenes: threeScenes(), AudioPath: "voice.mp3"})
	require.ErrorIs(t, err, audio.ErrDecode)
	var re *RunError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, LoadingAssets, re.State)
	assert.False(t, h.sink.began)
}

func TestAssetLoadTimeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	h := newHarness(t, &fakeSink{}, func(o *Options, d *Deps) {
		o.LoadTimeout = 20 * time.Millisecond
		d.Decode = func(string, int) (image.Image, error) {
			<-release
			return nil, errors.New("too late")
		}
	})

	scenes := threeScenes()
	scenes[1].ImagePath = "slow.png"
	_, err := h.driver.Run(context.Background(), Input{Scenes: scenes})
	require.ErrorIs(t, err, ErrAssetLoadTimeout)
	assert.Equal(t, Failed, h.driver.State())
	assert.False(t, h.sink.began)
}

func TestCancellationAbortsSink(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sink := &fakeSink{onWrite: func(n int) {
		if n == 5 {
			cancel()
		}
	}}
	h := newHarness(t, sink, nil)

	art, err := h.driver.Run(ctx, Input{Scenes: threeScenes()})
	assert.Nil(t, art)
	require.ErrorIs(t, err, context.Canceled)
	assert.True(t, sink.aborted)
	assert.False(t, sink.finalized)
	assert.Len(t, sink.stamps, 5)
	assert.Equal(t, Failed, h.driver.State())
}

func TestCompositionPanicIsRecovered(t *testing.T) {
	sink := &fakeSink{panicAfter: 3}
	h := newHarness(t, sink, nil)

	var err error
	require.NotPanics(t, func() {
		_, err = h.driver.Run(context.Background(), Input{Scenes: threeScenes()})
	})
	require.ErrorIs(t, err, ErrComposition)
	assert.Contains(t, err.Error(), "rasterizer exploded")
	assert.True(t, sink.aborted)
	assert.False(t, sink.finalized)
}

func TestProgressIsCoarse(t *testing.T) {
	h := newHarness(t, &fakeSink{}, func(o *Options, _ *Deps) { o.FPS = 30 })
	_, err := h.driver.Run(context.Background(), Input{Scenes: threeScenes()})
	require.NoError(t, err)

	var pcts []int
	for _, ev := range h.events.events {
		if ev.Stage == Recording && ev.Percent > 0 {
			pcts = append(pcts, ev.Percent)
		}
	}
	require.NotEmpty(t, pcts)
	assert.LessOrEqual(t, len(pcts), 25)
	prev := 0
	for _, p := range pcts {
		assert.GreaterOrEqual(t, p-prev, progressStep)
		prev = p
	}
}

func TestDriverRunsOnce(t *testing.T) {
	h := newHarness(t, &fakeSink{}, nil)
	_, err := h.driver.Run(context.Background(), Input{Scenes: threeScenes()})
	require.NoError(t, err)

	_, err = h.driver.Run(context.Background(), Input{Scenes: threeScenes()})
	assert.ErrorIs(t, err, ErrAlreadyStarted)
}

func TestMalformedWordTimingsAreRecovered(t *testing.T) {
	h := newHarness(t, &fakeSink{}, nil)
	caps := []caption.Caption{{
		Start: 0, End: 3, Text: "backwards words",
		Words: []caption.WordTiming{{Word: "backwards", Start: 1, End: 2}, {Word: "words", Start: 0, End: 0.5}},
	}}
	_, err := h.driver.Run(context.Background(), Input{Scenes: threeScenes(), Captions: caps})
	require.NoError(t, err)
	assert.Len(t, caps[0].Words, 2, "caller's captions untouched")
}

func TestStateStrings(t *testing.T) {
	assert.Equal(t, "loading-assets", LoadingAssets.String())
	assert.True(t, Ready.Terminal())
	assert.True(t, Failed.Terminal())
	assert.False(t, Recording.Terminal())

	err := &RunError{State: Finalizing, Err: video.ErrNoFramesCaptured}
	assert.Equal(t, "finalizing: no frames captured", err.Error())
	assert.ErrorIs(t, err, video.ErrNoFramesCaptured)
}

func TestRunWithoutSinkFails(t *testing.T) {
	h := newHarness(t, nil, func(_ *Options, d *Deps) { d.Sink = nil })

	art, err := h.driver.Run(context.Background(), Input{Scenes: threeScenes()})
	assert.Nil(t, art)
	require.ErrorIs(t, err, ErrNoSink)
	assert.Equal(t, Failed, h.driver.State())
}

func TestRunReportAppendsBenchmarkLog(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "bench.log")
	for i := 0; i < 2; i++ {
		h := newHarness(t, &fakeSink{}, func(o *Options, _ *Deps) {
			o.ShowStats = true
			o.BenchmarkLog = logPath
			o.BuildVersion = "v0.3.1"
		})
		_, err := h.driver.Run(context.Background(), Input{Scenes: threeScenes()})
		require.NoError(t, err)
	}

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	for _, l := range lines {
		assert.Contains(t, l, "Build: v0.3.1")
		assert.Contains(t, l, "Output: out.mp4")
		assert.Contains(t, l, "Scenes: 3")
		assert.Contains(t, l, "Frames: 30")
	}
}

func TestRunReportWarnsWhenLogIsUnwritable(t *testing.T) {
	h := newHarness(t, &fakeSink{}, func(o *Options, _ *Deps) {
		o.ShowStats = true
		o.BenchmarkLog = filepath.Join(t.TempDir(), "missing", "bench.log")
	})
	_, err := h.driver.Run(context.Background(), Input{Scenes: threeScenes()})
	require.NoError(t, err, "a broken report never fails the run")

	var warned bool
	for _, e := range h.hook.AllEntries() {
		if e.Level == logrus.WarnLevel && strings.Contains(e.Message, "cannot write") {
			warned = true
		}
	}
	assert.True(t, warned)
}

func TestStatsReport(t *testing.T) {
	s := Stats{Scenes: 3, Duration: 3, Ticks: 30, Frames: 30, RecordTime: 2 * time.Second}
	assert.InDelta(t, 15.0, s.EffectiveFPS(), 1e-9)

	report := s.Report("dev")
	assert.Contains(t, report, "[PERFORMANCE REPORT]")
	assert.Contains(t, report, "Build: dev")
	assert.Contains(t, report, "Effective FPS: 15.00")

	line := s.LogLine("dev", "reel.mp4")
	assert.True(t, strings.HasSuffix(line, "\n"))
	assert.Contains(t, line, "FPS: 15.00")

	assert.Zero(t, Stats{Ticks: 30}.EffectiveFPS(), "no recording time")
}
