package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ivlev/reelcomposer/internal/audio"
	"github.com/ivlev/reelcomposer/internal/caption"
	"github.com/ivlev/reelcomposer/internal/config"
	"github.com/ivlev/reelcomposer/internal/engine"
	"github.com/ivlev/reelcomposer/internal/project"
	"github.com/ivlev/reelcomposer/internal/render"
	"github.com/ivlev/reelcomposer/internal/video"
)

// renderer turns a project into an MP4 with the process configuration.
// The CLI calls it once; the job server once per job.
type renderer struct {
	cfg   *config.Config
	fonts *render.FontBook
	log   *logrus.Entry
}

func (r *renderer) run(ctx context.Context, p *project.Project, progress engine.ProgressFunc) (*video.Artifact, error) {
	cfg := *r.cfg
	if cfg.Aspect == "" {
		cfg.Aspect = p.Aspect
	}
	if cfg.Aspect == "" {
		cfg.Aspect = config.DefaultAspect
	}
	if err := cfg.ResolveSize(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.OutputVideo == "" {
		cfg.OutputVideo = outputName(cfg.OutputDir, p, time.Now())
	}

	var captions []caption.Caption
	if len(p.Captions) > 0 || p.CaptionsFile != "" {
		var err error
		if captions, err = p.LoadCaptions(nil); err != nil {
			return nil, err
		}
	}

	var clock audio.Clock = audio.SystemClock{}
	if !cfg.Realtime {
		clock = audio.NewManualClock(time.Now())
	}

	d := engine.New(engine.Options{
		Width:        cfg.Width,
		Height:       cfg.Height,
		FPS:          cfg.FPS,
		Encoder:      cfg.VideoEncoder,
		Quality:      cfg.Quality,
		Bitrate:      cfg.Bitrate,
		Output:       cfg.OutputVideo,
		Highlight:    cfg.Highlight,
		Watermark:    cfg.Watermark,
		LoadTimeout:  cfg.LoadTimeout,
		Workers:      cfg.Workers,
		DPI:          cfg.DPI,
		ShowStats:    cfg.ShowStats,
		BuildVersion: cfg.BuildVersion,
	}, engine.Deps{
		Sink:     &video.FFmpegSink{Bin: cfg.FFmpegBin, Log: r.log.WithField("component", "ffmpeg")},
		Prober:   audio.FFProbe{Bin: cfg.FFprobeBin},
		Clock:    clock,
		Fonts:    r.fonts,
		Log:      r.log,
		Progress: progress,
	})
	return d.Run(ctx, engine.Input{
		Scenes:    p.TimelineScenes(),
		Captions:  captions,
		AudioPath: p.AudioPath(),
		Settings:  p.Settings,
	})
}

// outputName builds output/<name>_<timestamp>_<id>.mp4, named after the
// narration file when there is one.
func outputName(dir string, p *project.Project, now time.Time) string {
	name := "reel"
	if p.Audio != "" {
		base := filepath.Base(p.Audio)
		name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	name = strings.ReplaceAll(name, " ", "_")
	id := strings.SplitN(uuid.NewString(), "-", 2)[0]
	return filepath.Join(dir, fmt.Sprintf("%s_%s_%s.mp4", name, now.Format("2006-01-02_15-04-05"), id))
}
