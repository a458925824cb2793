package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ivlev/reelcomposer/internal/api"
	"github.com/ivlev/reelcomposer/internal/config"
	"github.com/ivlev/reelcomposer/internal/engine"
	"github.com/ivlev/reelcomposer/internal/project"
	"github.com/ivlev/reelcomposer/internal/render"
	"github.com/ivlev/reelcomposer/internal/system"
	"github.com/ivlev/reelcomposer/internal/video"
)

var buildVersion = "dev"

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	log := logrus.NewEntry(logger)

	if err := config.LoadEnv(); err != nil {
		log.Warnf("[!] .env: %v", err)
	}
	cfg := config.Default()
	cfg.BuildVersion = buildVersion
	cfg.Aspect = ""

	flag.StringVar(&cfg.ProjectPath, "project", "", "Project file, YAML or JSON (default: newest file in input/)")
	flag.StringVar(&cfg.OutputVideo, "output", "", "Output MP4 (default: generated in the output directory)")
	flag.StringVar(&cfg.OutputDir, "output-dir", cfg.OutputDir, "Directory for generated outputs")
	flag.StringVar(&cfg.Aspect, "aspect", "", "Aspect ratio: 16:9, 9:16 or 1:1 (default: from project, else 9:16)")
	flag.IntVar(&cfg.FPS, "fps", cfg.FPS, "Frames per second")
	flag.IntVar(&cfg.Quality, "quality", 0, "Quality (0 = encoder default; x264 CRF, NVENC CQ, VideoToolbox Q*100 kbit/s)")
	flag.IntVar(&cfg.Bitrate, "bitrate", 0, "Target bitrate in kbit/s, overrides -quality")
	flag.StringVar(&cfg.VideoEncoder, "encoder", "", "H.264 encoder (default: best available)")
	flag.StringVar(&cfg.FontDir, "font-dir", cfg.FontDir, "Directory of extra .ttf/.otf fonts")
	flag.StringVar(&cfg.Highlight, "highlight", "", "Karaoke highlight colour (hex)")
	flag.StringVar(&cfg.Watermark, "watermark", cfg.Watermark, "Encode this text as a QR watermark")
	flag.BoolVar(&cfg.Realtime, "realtime", false, "Pace capture on the wall clock")
	flag.DurationVar(&cfg.LoadTimeout, "timeout", cfg.LoadTimeout, "Asset loading timeout")
	flag.IntVar(&cfg.Workers, "workers", 0, "Image decode workers (0 = by free memory)")
	flag.IntVar(&cfg.DPI, "dpi", cfg.DPI, "DPI for PDF page images")
	flag.BoolVar(&cfg.ShowStats, "stats", false, "Print a performance report and append to benchmark.log")
	serve := flag.Bool("serve", false, "Run the render job server instead of a single render")
	flag.StringVar(&cfg.Addr, "addr", cfg.Addr, "Job server listen address")
	debug := flag.Bool("debug", false, "Verbose logging")
	flag.Parse()

	if *debug {
		logger.SetLevel(logrus.DebugLevel)
	}

	system.InitResourceLimits(log)
	os.MkdirAll(cfg.OutputDir, 0755)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.VideoEncoder == "" {
		cfg.VideoEncoder = system.GetBestH264Encoder(ctx, cfg.FFmpegBin)
		if cfg.VideoEncoder != "libx264" {
			log.Infof("[*] hardware encoder: %s", cfg.VideoEncoder)
		}
	}
	if cfg.Quality == 0 {
		cfg.Quality = video.DefaultQuality(cfg.VideoEncoder)
	}

	fonts := render.NewFontBook()
	if cfg.FontDir != "" {
		n, err := fonts.LoadDir(cfg.FontDir)
		if err != nil {
			log.Warnf("[!] fonts: %v", err)
		}
		log.Debugf("[*] loaded %d fonts from %s", n, cfg.FontDir)
	}
	r := &renderer{cfg: cfg, fonts: fonts, log: log}

	if *serve {
		if err := runServer(ctx, r, log); err != nil {
			log.Fatalf("[-] server: %v", err)
		}
		return
	}

	if cfg.ProjectPath == "" {
		latest, err := system.FindLatest("input", ".yaml", ".yml", ".json")
		if err != nil {
			log.Fatalf("[-] %v. Put a project file in input/", err)
		}
		cfg.ProjectPath = latest
		log.Infof("[*] project: %s", latest)
	}
	p, err := project.Read(cfg.ProjectPath)
	if err != nil {
		log.Fatalf("[-] %v", err)
	}

	art, err := r.run(ctx, p, func(ev engine.Event) {
		log.WithField("percent", ev.Percent).Debugf("[*] %s: %s", ev.Stage, ev.Message)
	})
	if err != nil {
		var re *engine.RunError
		if errors.As(err, &re) {
			log.Fatalf("[-] failed while %s: %v", re.State, re.Err)
		}
		log.Fatalf("[-] %v", err)
	}
	log.Infof("[+++] done: %s (%.2fs, %d frames)", art.Path, art.Duration, art.Frames)
}

func runServer(ctx context.Context, r *renderer, log *logrus.Entry) error {
	jobs := api.NewManager(r.run, 2, log)
	srv := &http.Server{
		Addr:              r.cfg.Addr,
		Handler:           api.NewRouter(api.NewRenderHandler(jobs, "."), nil, log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Infof("[*] job server listening on %s", srv.Addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		jobs.Shutdown()
		return err
	case <-ctx.Done():
	}
	log.Info("[*] shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	jobs.Shutdown()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
