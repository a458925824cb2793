package video

import (
	"context"
	"image"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPacerFillsAndDrops(t *testing.T) {
	p := NewPacer(30, 1)

	assert.Equal(t, 1, p.Place(0))
	assert.Equal(t, 1, p.Place(1.0/30))
	// A slow tick skips two slots: the late frame covers them.
	assert.Equal(t, 3, p.Place(4.0/30))
	// Two frames inside the same slot: the second is dropped.
	assert.Equal(t, 1, p.Place(5.0/30))
	assert.Equal(t, 0, p.Place(5.2/30))

	assert.Equal(t, 6, p.Written())
	assert.Equal(t, 2, p.Duplicated)
	assert.Equal(t, 1, p.Dropped)

	assert.Equal(t, 24, p.Pad())
	assert.Equal(t, 30, p.Written())
	assert.Equal(t, 0, p.Pad(), "padding twice adds nothing")
}

func TestPacerClampsOverrun(t *testing.T) {
	p := NewPacer(10, 2)
	assert.Equal(t, 20, p.Place(2.05), "overrun lands on the last slot")
	assert.Equal(t, 0, p.Place(2.2))
	assert.Equal(t, 20, p.Written())
	assert.Equal(t, 0, p.Pad())
}

func TestPacerSameDurationForDifferentTickJitter(t *testing.T) {
	run := func(ticks []float64) int {
		p := NewPacer(30, 3)
		for _, ts := range ticks {
			p.Place(ts)
		}
		p.Pad()
		return p.Written()
	}

	var smooth, jittery []float64
	for i := 0; i < 90; i++ {
		smooth = append(smooth, float64(i)/30)
	}
	for ts := 0.0; ts < 3; ts += 0.071 {
		jittery = append(jittery, ts)
	}
	assert.Equal(t, Slots(30, 3), run(smooth))
	assert.Equal(t, run(smooth), run(jittery))
}

func TestQualityArgs(t *testing.T) {
	tests := []struct {
		encoder string
		quality int
		bitrate int
		want    []string
	}{
		{"libx264", 0, 0, []string{"-crf", "23", "-preset", "medium"}},
		{"libx264", 18, 0, []string{"-crf", "18", "-preset", "medium"}},
		{"h264_nvenc", 0, 0, []string{"-cq", "28"}},
		{"h264_videotoolbox", 75, 0, []string{"-b:v", "7500k"}},
		{"libx264", 18, 6000, []string{"-b:v", "6000k"}},
	}
	for _, tt := range tests {
		t.Run(tt.encoder, func(t *testing.T) {
			assert.Equal(t, tt.want, QualityArgs(tt.encoder, tt.quality, tt.bitrate))
		})
	}
}

func TestBuildArgs(t *testing.T) {
	opts := Options{
		Width: 1080, Height: 1920, FPS: 30,
		AudioPath: "narration.mp3",
		Duration:  12.5,
	}
	args := BuildArgs(opts, "out.mp4")
	joined := strings.Join(args, " ")

	assert.Contains(t, joined, "-f rawvideo -pixel_format rgba -video_size 1080x1920 -framerate 30 -i -")
	assert.Contains(t, joined, "-i narration.mp3 -map 0:v:0 -map 1:a:0")
	assert.Contains(t, joined, "-c:v libx264 -pix_fmt yuv420p -crf 23")
	assert.Contains(t, joined, "-c:a aac")
	assert.Contains(t, joined, "-t 12.500")
	assert.Equal(t, "out.mp4", args[len(args)-1])

	silent := strings.Join(BuildArgs(Options{Width: 2, Height: 2, FPS: 30}, "x.mp4"), " ")
	assert.NotContains(t, silent, "-map")
	assert.NotContains(t, silent, "-c:a")
	assert.NotContains(t, silent, " -t ")
}

func TestPackRGBAStripsPadding(t *testing.T) {
	big := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for i := range big.Pix {
		big.Pix[i] = byte(i)
	}
	sub := big.SubImage(image.Rect(1, 1, 3, 3)).(*image.RGBA)

	buf := packRGBA(nil, sub)
	require.Len(t, buf, 2*2*4)
	assert.Equal(t, big.Pix[big.PixOffset(1, 1):big.PixOffset(1, 1)+8], buf[:8])
	assert.Equal(t, big.Pix[big.PixOffset(1, 2):big.PixOffset(1, 2)+8], buf[8:])

	whole := packRGBA(buf, big)
	assert.Equal(t, big.Pix, whole)
}

func TestFFmpegSinkBeginFailures(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.mp4")
	tests := map[string]Options{
		"odd size":  {Width: 1081, Height: 1920, FPS: 30, Output: out},
		"no fps":    {Width: 1080, Height: 1920, Output: out},
		"no output": {Width: 1080, Height: 1920, FPS: 30},
	}
	for name, opts := range tests {
		t.Run(name, func(t *testing.T) {
			s := &FFmpegSink{}
			assert.ErrorIs(t, s.Begin(context.Background(), opts), ErrEncoderInit)
		})
	}

	s := &FFmpegSink{Bin: "/nonexistent/ffmpeg"}
	err := s.Begin(context.Background(), Options{Width: 2, Height: 2, FPS: 30, Output: out})
	assert.ErrorIs(t, err, ErrEncoderInit)
}

func TestFFmpegSinkNotStarted(t *testing.T) {
	s := &FFmpegSink{}
	_, err := s.Finalize(context.Background())
	assert.ErrorIs(t, err, ErrNotStarted)
	assert.ErrorIs(t, s.WriteFrame(image.NewRGBA(image.Rect(0, 0, 2, 2)), 0), ErrNotStarted)
	assert.NotPanics(t, s.Abort)
}

// fakeEncoder writes a script that stands in for ffmpeg: it ignores every
// flag and copies stdin into the last argument, the output file.
func fakeEncoder(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("needs /bin/sh")
	}
	bin := filepath.Join(t.TempDir(), "ffmpeg")
	script := "#!/bin/sh\nfor last; do :; done\ncat > \"$last\"\n"
	require.NoError(t, os.WriteFile(bin, []byte(script), 0755))
	return bin
}

func sinkOptions(dir string) Options {
	return Options{Width: 2, Height: 2, FPS: 10, Duration: 0.3, Output: filepath.Join(dir, "reel.mp4")}
}

func dirEntries(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestFFmpegSinkFinalizeWithoutFrames(t *testing.T) {
	dir := t.TempDir()
	s := &FFmpegSink{Bin: fakeEncoder(t)}
	require.NoError(t, s.Begin(context.Background(), sinkOptions(dir)))

	art, err := s.Finalize(context.Background())
	assert.Nil(t, art)
	assert.ErrorIs(t, err, ErrNoFramesCaptured)
	assert.Empty(t, dirEntries(t, dir), "partial output is removed")
}

func TestFFmpegSinkAbortRemovesPartialOutput(t *testing.T) {
	dir := t.TempDir()
	s := &FFmpegSink{Bin: fakeEncoder(t)}
	require.NoError(t, s.Begin(context.Background(), sinkOptions(dir)))
	require.NoError(t, s.WriteFrame(image.NewRGBA(image.Rect(0, 0, 2, 2)), 0))

	s.Abort()
	assert.Empty(t, dirEntries(t, dir))
	assert.NotPanics(t, s.Abort, "abort is idempotent")
}

func TestFFmpegSinkFinalizeMovesArtifactIntoPlace(t *testing.T) {
	dir := t.TempDir()
	opts := sinkOptions(dir)
	s := &FFmpegSink{Bin: fakeEncoder(t)}
	require.NoError(t, s.Begin(context.Background(), opts))

	frame := image.NewRGBA(image.Rect(0, 0, 2, 2))
	require.NoError(t, s.WriteFrame(frame, 0))
	require.NoError(t, s.WriteFrame(frame, 0.1))

	art, err := s.Finalize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, opts.Output, art.Path)
	assert.Equal(t, 3, art.Frames, "padded to the full duration")
	assert.InDelta(t, 0.3, art.Duration, 1e-9)
	// The stand-in encoder stores the raw stream: three 2x2 RGBA frames.
	assert.Equal(t, int64(3*2*2*4), art.Size)
	assert.Equal(t, []string{"reel.mp4"}, dirEntries(t, dir))
}
