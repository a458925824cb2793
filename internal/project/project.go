package project

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ivlev/reelcomposer/internal/caption"
	"github.com/ivlev/reelcomposer/internal/timeline"
)

// Project is everything one render needs: scenes, narration, captions and
// caption settings. Files are YAML; JSON documents parse as well.
type Project struct {
	Version      string            `yaml:"version,omitempty" json:"version,omitempty"`
	Aspect       string            `yaml:"aspect,omitempty" json:"aspect,omitempty"`
	Audio        string            `yaml:"audio" json:"audio"`
	Scenes       []Scene           `yaml:"scenes" json:"scenes"`
	Captions     []caption.Caption `yaml:"captions,omitempty" json:"captions,omitempty"`
	CaptionsFile string            `yaml:"captionsFile,omitempty" json:"captionsFile,omitempty"`
	Settings     caption.Settings  `yaml:"captionSettings" json:"captionSettings"`

	dir string
}

type Scene struct {
	Text        string  `yaml:"text" json:"text"`
	ImagePrompt string  `yaml:"imagePrompt,omitempty" json:"imagePrompt,omitempty"`
	Duration    float64 `yaml:"duration" json:"duration"`
	Image       string  `yaml:"image,omitempty" json:"image,omitempty"`
}

// Read loads a project file. Relative paths inside it resolve against the
// file's directory.
func Read(path string) (*Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	p, err := Parse(data, filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return p, nil
}

// Parse decodes a project document; baseDir anchors relative paths.
func Parse(data []byte, baseDir string) (*Project, error) {
	var p Project
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse project: %w", err)
	}
	s, err := p.Settings.Normalized()
	if err != nil {
		return nil, err
	}
	p.Settings = s
	p.dir = baseDir
	return &p, nil
}

// Write saves the project as YAML.
func Write(p *Project, path string) error {
	data, err := yaml.Marshal(p)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (p *Project) Dir() string {
	return p.dir
}

// Resolve turns a path from the project file into one usable from the
// working directory.
func (p *Project) Resolve(ref string) string {
	if ref == "" || filepath.IsAbs(ref) || strings.Contains(ref, "://") || p.dir == "" {
		return ref
	}
	return filepath.Join(p.dir, ref)
}

func (p *Project) AudioPath() string {
	return p.Resolve(p.Audio)
}

// TimelineScenes returns fresh scene values for one run; images are not
// loaded yet.
func (p *Project) TimelineScenes() []timeline.Scene {
	out := make([]timeline.Scene, len(p.Scenes))
	for i, s := range p.Scenes {
		out[i] = timeline.Scene{
			Index:       i,
			Text:        s.Text,
			ImagePrompt: s.ImagePrompt,
			ImagePath:   p.Resolve(s.Image),
			Duration:    s.Duration,
		}
	}
	return out
}

// LoadCaptions returns the inline captions, else the captions file, else
// one caption per scene spanning its interval.
func (p *Project) LoadCaptions(intervals []timeline.Interval) ([]caption.Caption, error) {
	if len(p.Captions) > 0 {
		out := make([]caption.Caption, len(p.Captions))
		copy(out, p.Captions)
		return out, nil
	}
	if p.CaptionsFile != "" {
		f, err := os.Open(p.Resolve(p.CaptionsFile))
		if err != nil {
			return nil, fmt.Errorf("captions file: %w", err)
		}
		defer f.Close()
		return caption.ParseSRT(f)
	}
	return caption.FromIntervals(intervals), nil
}

// WithSettings returns a copy that renders with different caption settings;
// scenes, audio and captions are shared.
func (p *Project) WithSettings(s caption.Settings) (*Project, error) {
	s, err := s.Normalized()
	if err != nil {
		return nil, err
	}
	cp := *p
	cp.Settings = s
	return &cp, nil
}
