package video

import (
	"context"
	"errors"
	"image"
)

var (
	ErrEncoderInit      = errors.New("encoder initialization failed")
	ErrNoFramesCaptured = errors.New("no frames captured")
	ErrNotStarted       = errors.New("sink not started")
)

// Options configure one encoding session.
type Options struct {
	Width   int
	Height  int
	FPS     int
	Encoder string // ffmpeg codec name, e.g. libx264
	Quality int    // encoder-specific, see QualityArgs
	Bitrate int    // kbit/s; overrides Quality when > 0

	AudioPath string  // narration muxed alongside the frames
	Duration  float64 // seconds; output is padded and trimmed to it
	Output    string  // final artifact path
}

// Artifact is a finished, muxed video handed over to the caller.
type Artifact struct {
	Path       string
	Duration   float64
	Frames     int // frame slots in the stream
	Duplicated int
	Dropped    int
	Size       int64
}

// FrameSink consumes timestamped frames and produces one artifact.
// Frames are only read during WriteFrame and may be reused afterwards.
// Abort releases the encoder and discards partial output; it is safe to
// call at any point, including after Finalize.
type FrameSink interface {
	Begin(ctx context.Context, opts Options) error
	WriteFrame(frame *image.RGBA, ts float64) error
	Finalize(ctx context.Context) (*Artifact, error)
	Abort()
}
