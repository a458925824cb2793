package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is one composition run plus the process-level settings the CLI
// and the job server share.
type Config struct {
	ProjectPath string
	OutputVideo string
	OutputDir   string

	Aspect string
	Width  int
	Height int
	FPS    int

	VideoEncoder string
	Quality      int
	Bitrate      int // kbit/s, 0 = quality based

	FFmpegBin  string
	FFprobeBin string
	FontDir    string
	Highlight  string
	Watermark  string

	Realtime    bool
	LoadTimeout time.Duration
	Workers     int
	DPI         int

	ShowStats    bool
	BuildVersion string
	Addr         string
}

const (
	DefaultFPS         = 30
	DefaultAspect      = "9:16"
	DefaultLoadTimeout = 60 * time.Second
)

var aspects = map[string][2]int{
	"16:9": {1920, 1080},
	"9:16": {1080, 1920},
	"1:1":  {1080, 1080},
}

// AspectSize maps an aspect selector to its fixed output size.
func AspectSize(aspect string) (int, int, error) {
	s, ok := aspects[strings.TrimSpace(aspect)]
	if !ok {
		return 0, 0, fmt.Errorf("unknown aspect ratio %q (want 16:9, 9:16 or 1:1)", aspect)
	}
	return s[0], s[1], nil
}

// LoadEnv reads .env files into the process environment. Missing files are
// not an error; variables already set win.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	var existing []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	return godotenv.Load(existing...)
}

// Default returns the built-in defaults with REEL_* environment overrides.
func Default() *Config {
	return &Config{
		OutputDir:   getEnv("REEL_OUTPUT_DIR", "output"),
		Aspect:      DefaultAspect,
		FPS:         getEnvAsInt("REEL_FPS", DefaultFPS),
		FFmpegBin:   getEnv("REEL_FFMPEG", "ffmpeg"),
		FFprobeBin:  getEnv("REEL_FFPROBE", "ffprobe"),
		FontDir:     getEnv("REEL_FONT_DIR", ""),
		Watermark:   getEnv("REEL_WATERMARK", ""),
		LoadTimeout: getEnvAsDuration("REEL_LOAD_TIMEOUT", DefaultLoadTimeout),
		DPI:         150,
		Addr:        getEnv("REEL_ADDR", ":8080"),
	}
}

// ResolveSize fills Width/Height from Aspect unless both are set.
func (c *Config) ResolveSize() error {
	if c.Width > 0 && c.Height > 0 {
		return nil
	}
	w, h, err := AspectSize(c.Aspect)
	if err != nil {
		return err
	}
	c.Width, c.Height = w, h
	return nil
}

func (c *Config) Validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("invalid output size %dx%d", c.Width, c.Height)
	}
	if c.Width%2 != 0 || c.Height%2 != 0 {
		return fmt.Errorf("output size %dx%d must be even", c.Width, c.Height)
	}
	if c.FPS <= 0 || c.FPS > 120 {
		return fmt.Errorf("fps %d out of range", c.FPS)
	}
	if c.Bitrate < 0 {
		return errors.New("bitrate must not be negative")
	}
	if c.LoadTimeout <= 0 {
		return errors.New("load timeout must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}
