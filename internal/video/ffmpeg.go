package video

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// DefaultQuality is a sensible quality value for each supported encoder.
func DefaultQuality(encoder string) int {
	switch encoder {
	case "h264_videotoolbox":
		return 75
	case "h264_nvenc":
		return 28
	default:
		return 23
	}
}

// QualityArgs are the rate-control flags for an encoder. VideoToolbox has no
// usable constant-quality mode, so quality maps to bitrate there (75 -> 7.5 Mbit/s).
func QualityArgs(encoder string, quality, bitrate int) []string {
	if bitrate > 0 {
		return []string{"-b:v", fmt.Sprintf("%dk", bitrate)}
	}
	if quality <= 0 {
		quality = DefaultQuality(encoder)
	}
	switch encoder {
	case "h264_videotoolbox":
		return []string{"-b:v", fmt.Sprintf("%dk", quality*100)}
	case "h264_nvenc":
		return []string{"-cq", strconv.Itoa(quality)}
	default:
		return []string{"-crf", strconv.Itoa(quality), "-preset", "medium"}
	}
}

// BuildArgs returns the ffmpeg command line that reads raw RGBA frames on
// stdin, muxes the narration and writes an MP4 to out.
func BuildArgs(opts Options, out string) []string {
	encoder := opts.Encoder
	if encoder == "" {
		encoder = "libx264"
	}
	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-f", "rawvideo",
		"-pixel_format", "rgba",
		"-video_size", fmt.Sprintf("%dx%d", opts.Width, opts.Height),
		"-framerate", strconv.Itoa(opts.FPS),
		"-i", "-",
	}
	if opts.AudioPath != "" {
		args = append(args, "-i", opts.AudioPath, "-map", "0:v:0", "-map", "1:a:0")
	}
	args = append(args, "-c:v", encoder, "-pix_fmt", "yuv420p")
	args = append(args, QualityArgs(encoder, opts.Quality, opts.Bitrate)...)
	if opts.AudioPath != "" {
		args = append(args, "-c:a", "aac", "-b:a", "192k")
	}
	if opts.Duration > 0 {
		args = append(args, "-t", strconv.FormatFloat(opts.Duration, 'f', 3, 64))
	}
	args = append(args, "-movflags", "+faststart", out)
	return args
}

// FFmpegSink pipes frames into an ffmpeg process. Output is written to a
// hidden temporary file next to Options.Output and only renamed into place
// by a successful Finalize.
type FFmpegSink struct {
	Bin string
	Log *logrus.Entry

	opts    Options
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	stderr  lockedBuffer
	tmp     string
	pacer   *Pacer
	last    []byte
	started bool
}

var _ FrameSink = (*FFmpegSink)(nil)

func (s *FFmpegSink) Begin(ctx context.Context, opts Options) error {
	if s.started {
		return fmt.Errorf("%w: sink already started", ErrEncoderInit)
	}
	if opts.Width <= 0 || opts.Height <= 0 || opts.FPS <= 0 {
		return fmt.Errorf("%w: invalid stream %dx%d@%d", ErrEncoderInit, opts.Width, opts.Height, opts.FPS)
	}
	if opts.Width%2 != 0 || opts.Height%2 != 0 {
		return fmt.Errorf("%w: yuv420p needs even dimensions, got %dx%d", ErrEncoderInit, opts.Width, opts.Height)
	}
	if opts.Output == "" {
		return fmt.Errorf("%w: no output path", ErrEncoderInit)
	}
	if err := os.MkdirAll(filepath.Dir(opts.Output), 0755); err != nil {
		return fmt.Errorf("%w: %v", ErrEncoderInit, err)
	}

	bin := s.Bin
	if bin == "" {
		bin = "ffmpeg"
	}
	s.opts = opts
	s.tmp = filepath.Join(filepath.Dir(opts.Output), "."+uuid.NewString()+".part.mp4")
	s.pacer = NewPacer(opts.FPS, opts.Duration)
	s.stderr.Reset()

	s.cmd = exec.CommandContext(ctx, bin, BuildArgs(opts, s.tmp)...)
	s.cmd.Stdout = io.Discard
	s.cmd.Stderr = &s.stderr
	stdin, err := s.cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("%w: stdin pipe: %v", ErrEncoderInit, err)
	}
	if err := s.cmd.Start(); err != nil {
		return fmt.Errorf("%w: start %s: %v", ErrEncoderInit, bin, err)
	}
	s.stdin = stdin
	s.started = true
	s.log().WithField("encoder", opts.Encoder).Debugf("[*] ffmpeg started: %s", s.tmp)
	return nil
}

func (s *FFmpegSink) WriteFrame(frame *image.RGBA, ts float64) error {
	if !s.started {
		return fmt.Errorf("write frame: %w", ErrNotStarted)
	}
	b := frame.Bounds()
	if b.Dx() != s.opts.Width || b.Dy() != s.opts.Height {
		return fmt.Errorf("write frame: got %dx%d, want %dx%d", b.Dx(), b.Dy(), s.opts.Width, s.opts.Height)
	}
	n := s.pacer.Place(ts)
	if n == 0 {
		return nil
	}
	s.last = packRGBA(s.last, frame)
	for i := 0; i < n; i++ {
		if _, err := s.stdin.Write(s.last); err != nil {
			return fmt.Errorf("write frame at %.3fs: %w%s", ts, err, s.stderrTail())
		}
	}
	return nil
}

func (s *FFmpegSink) Finalize(ctx context.Context) (*Artifact, error) {
	if !s.started {
		return nil, ErrNotStarted
	}
	if s.pacer.Written() == 0 {
		s.Abort()
		return nil, ErrNoFramesCaptured
	}
	for i, n := 0, s.pacer.Pad(); i < n; i++ {
		if _, err := s.stdin.Write(s.last); err != nil {
			s.Abort()
			return nil, fmt.Errorf("pad stream: %w%s", err, s.stderrTail())
		}
	}

	s.stdin.Close()
	err := s.cmd.Wait()
	s.started = false
	if err != nil {
		os.Remove(s.tmp)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("ffmpeg: %w%s", err, s.stderrTail())
	}
	if err := os.Rename(s.tmp, s.opts.Output); err != nil {
		os.Remove(s.tmp)
		return nil, fmt.Errorf("move artifact into place: %w", err)
	}

	a := &Artifact{
		Path:       s.opts.Output,
		Duration:   float64(s.pacer.Written()) / float64(s.opts.FPS),
		Frames:     s.pacer.Written(),
		Duplicated: s.pacer.Duplicated,
		Dropped:    s.pacer.Dropped,
	}
	if s.opts.Duration > 0 {
		a.Duration = s.opts.Duration
	}
	if fi, err := os.Stat(a.Path); err == nil {
		a.Size = fi.Size()
	}
	return a, nil
}

func (s *FFmpegSink) Abort() {
	if !s.started {
		return
	}
	s.started = false
	s.stdin.Close()
	if s.cmd.Process != nil {
		s.cmd.Process.Kill()
	}
	s.cmd.Wait()
	os.Remove(s.tmp)
	s.log().Debug("[*] ffmpeg aborted, partial output removed")
}

func (s *FFmpegSink) stderrTail() string {
	out := strings.TrimSpace(s.stderr.String())
	if out == "" {
		return ""
	}
	if len(out) > 512 {
		out = out[len(out)-512:]
	}
	return ": " + out
}

// lockedBuffer collects ffmpeg's stderr, which exec copies from another
// goroutine while frames are still being written.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *lockedBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf.Reset()
}

func (s *FFmpegSink) log() *logrus.Entry {
	if s.Log != nil {
		return s.Log
	}
	return logrus.NewEntry(logrus.StandardLogger())
}

// packRGBA copies the visible pixels of img into buf without row padding.
func packRGBA(buf []byte, img *image.RGBA) []byte {
	b := img.Bounds()
	rowLen := b.Dx() * 4
	size := rowLen * b.Dy()
	if cap(buf) < size {
		buf = make([]byte, size)
	}
	buf = buf[:size]
	if img.Stride == rowLen && b.Min == (image.Point{}) {
		copy(buf, img.Pix[:size])
		return buf
	}
	for y := 0; y < b.Dy(); y++ {
		off := img.PixOffset(b.Min.X, b.Min.Y+y)
		copy(buf[y*rowLen:], img.Pix[off:off+rowLen])
	}
	return buf
}
