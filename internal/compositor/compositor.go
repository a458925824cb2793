package compositor

import (
	"fmt"
	"image"
	"image/color"

	"github.com/ivlev/reelcomposer/internal/caption"
	"github.com/ivlev/reelcomposer/internal/render"
	"github.com/ivlev/reelcomposer/internal/timeline"
)

const DefaultHighlight = "#FFD700"

type Options struct {
	Width     int
	Height    int
	Settings  caption.Settings
	Highlight string // hex, defaults to DefaultHighlight
	Watermark string // QR payload; empty disables it
}

// Frame is everything needed to rasterize one tick.
type Frame struct {
	Index  int // zero-based scene position
	Scene  *timeline.Scene
	Layout *caption.Layout // nil when no caption is active
}

// Compositor rasterizes frames for one run. It caches the current scene's
// background, so it must not be shared between runs or goroutines.
type Compositor struct {
	opts      Options
	palette   Palette
	faces     *render.Faces
	watermark *Watermark

	bgIndex int
	bg      *image.RGBA
}

func New(opts Options, faces *render.Faces) (*Compositor, error) {
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, fmt.Errorf("invalid output size %dx%d", opts.Width, opts.Height)
	}
	opts.Settings = opts.Settings.WithDefaults()
	if opts.Highlight == "" {
		opts.Highlight = DefaultHighlight
	}

	var (
		p   Palette
		err error
	)
	if p.Text, err = render.ParseHex(opts.Settings.TextColor); err != nil {
		return nil, fmt.Errorf("text colour: %w", err)
	}
	if p.Background, err = render.ParseHex(opts.Settings.Background); err != nil {
		return nil, fmt.Errorf("background colour: %w", err)
	}
	if p.Highlight, err = render.ParseHex(opts.Highlight); err != nil {
		return nil, fmt.Errorf("highlight colour: %w", err)
	}

	c := &Compositor{opts: opts, palette: p, faces: faces, bgIndex: -1}
	if opts.Watermark != "" {
		if c.watermark, err = NewWatermark(opts.Watermark, opts.Width, opts.Height); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Compositor) Size() (int, int) {
	return c.opts.Width, c.opts.Height
}

// Compose draws f onto dst: opaque black, the scene background (cover-scaled
// image or placeholder), the caption overlay and the watermark.
func (c *Compositor) Compose(dst render.Surface, f Frame) {
	dst.Clear(color.Black)
	dst.DrawImage(c.background(f), image.Rect(0, 0, c.opts.Width, c.opts.Height), 1)
	DrawCaption(dst, f.Layout, c.palette)
	if c.watermark != nil {
		c.watermark.Draw(dst)
	}
}

func (c *Compositor) background(f Frame) *image.RGBA {
	if c.bg != nil && c.bgIndex == f.Index {
		return c.bg
	}
	if c.bg == nil {
		c.bg = image.NewRGBA(image.Rect(0, 0, c.opts.Width, c.opts.Height))
	}
	canvas := render.NewCanvas(c.bg, c.faces)
	canvas.Clear(color.Black)
	if f.Scene != nil && f.Scene.Image != nil {
		b := f.Scene.Image.Bounds()
		canvas.DrawImage(f.Scene.Image, CoverRect(b.Dx(), b.Dy(), c.opts.Width, c.opts.Height), 1)
	} else {
		DrawPlaceholder(canvas, f.Index, c.opts.Settings.Font)
	}
	c.bgIndex = f.Index
	return c.bg
}
