package audio

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

var ErrDecode = errors.New("audio decode failed")

// Info is what the pipeline needs to know about the narration track.
type Info struct {
	Path       string
	Duration   float64 // seconds
	Codec      string
	SampleRate int
	Channels   int
}

type Prober interface {
	Probe(ctx context.Context, path string) (Info, error)
}

// FFProbe reads audio metadata with the ffprobe binary.
type FFProbe struct {
	Bin string
}

type probeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecName  string `json:"codec_name"`
		CodecType  string `json:"codec_type"`
		SampleRate string `json:"sample_rate"`
		Channels   int    `json:"channels"`
		Duration   string `json:"duration"`
	} `json:"streams"`
}

func (p FFProbe) Probe(ctx context.Context, path string) (Info, error) {
	bin := p.Bin
	if bin == "" {
		bin = "ffprobe"
	}
	cmd := exec.CommandContext(ctx, bin,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		"-select_streams", "a:0",
		path,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return Info{}, ctx.Err()
		}
		return Info{}, fmt.Errorf("%w: %s: %v: %s", ErrDecode, path, err, strings.TrimSpace(stderr.String()))
	}
	info, err := ParseProbe(out)
	if err != nil {
		return Info{}, fmt.Errorf("%s: %w", path, err)
	}
	info.Path = path
	return info, nil
}

// ParseProbe extracts Info from ffprobe's JSON output. A file without an
// audio stream or a positive duration is a decode failure.
func ParseProbe(data []byte) (Info, error) {
	var res probeOutput
	if err := json.Unmarshal(data, &res); err != nil {
		return Info{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	var info Info
	found := false
	for _, s := range res.Streams {
		if s.CodecType != "audio" {
			continue
		}
		found = true
		info.Codec = s.CodecName
		info.Channels = s.Channels
		info.SampleRate, _ = strconv.Atoi(s.SampleRate)
		if d, err := strconv.ParseFloat(s.Duration, 64); err == nil {
			info.Duration = d
		}
		break
	}
	if !found {
		return Info{}, fmt.Errorf("%w: no audio stream", ErrDecode)
	}
	if d, err := strconv.ParseFloat(res.Format.Duration, 64); err == nil && d > 0 {
		info.Duration = d
	}
	if info.Duration <= 0 {
		return Info{}, fmt.Errorf("%w: unknown duration", ErrDecode)
	}
	return info, nil
}
