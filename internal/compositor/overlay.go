package compositor

import (
	"image"
	"image/color"
	"math"

	"github.com/ivlev/reelcomposer/internal/caption"
	"github.com/ivlev/reelcomposer/internal/render"
)

const (
	lineSpacing    = 1.2
	backdropPad    = 0.45
	backdropRadius = 0.35
	shadowOffset   = 0.06
	upcomingAlpha  = 0.45
	glowAlpha      = 0.35
)

// Palette is the resolved colour set for caption drawing.
type Palette struct {
	Text       color.RGBA
	Background color.RGBA
	Highlight  color.RGBA
}

var shadowColor = color.RGBA{0, 0, 0, 153}

type placedLine struct {
	spans  []placedSpan
	width  float64
	ascent float64
}

type placedSpan struct {
	span  caption.Span
	style render.TextStyle
	width float64
}

// DrawCaption renders a caption layout onto s: optional rounded backdrop,
// then each line centred horizontally at the layout's anchor.
func DrawCaption(s render.Surface, l *caption.Layout, p Palette) {
	if l == nil || len(l.Lines) == 0 {
		return
	}
	w, h := s.Size()
	base := render.TextStyle{Family: l.Font, Size: l.FontSize, Color: p.Text}
	ascent, descent := s.Metrics(base)
	lineH := (ascent + descent) * lineSpacing
	space := s.MeasureText(" ", base)

	lines := make([]placedLine, len(l.Lines))
	blockW := 0.0
	for i, ln := range l.Lines {
		pl := placedLine{ascent: ascent}
		for j, sp := range ln.Spans {
			st := base
			if sp.Scale > 0 {
				st.Size = l.FontSize * sp.Scale
			}
			ps := placedSpan{span: sp, style: st, width: s.MeasureText(sp.Text, st)}
			pl.width += ps.width
			if j > 0 {
				pl.width += space
			}
			pl.spans = append(pl.spans, ps)
		}
		blockW = math.Max(blockW, pl.width)
		lines[i] = pl
	}
	blockH := lineH * float64(len(lines))
	top := blockTop(l, float64(h), blockH)

	if l.Backdrop {
		pad := backdropPad * l.FontSize
		r := image.Rect(
			int(math.Floor((float64(w)-blockW)/2-pad)),
			int(math.Floor(top-pad)),
			int(math.Ceil((float64(w)+blockW)/2+pad)),
			int(math.Ceil(top+blockH+pad)),
		)
		s.FillRoundedRect(r, backdropRadius*l.FontSize, p.Background)
	}

	for i, pl := range lines {
		baseline := top + float64(i)*lineH + (lineH-ascent-descent)/2 + ascent
		x := (float64(w) - pl.width) / 2
		for _, ps := range pl.spans {
			drawSpan(s, l, ps, x, baseline, p)
			x += ps.width + space
		}
	}
}

// blockTop places the text block: top at 8% of the frame, centred, or with
// its bottom at 90% (93% for the minimal template).
func blockTop(l *caption.Layout, h, blockH float64) float64 {
	switch {
	case l.Template == caption.Minimal:
		return 0.93*h - blockH
	case l.Anchor == caption.AnchorTop:
		return 0.08 * h
	case l.Anchor == caption.AnchorCenter:
		return (h - blockH) / 2
	default:
		return 0.90*h - blockH
	}
}

func drawSpan(s render.Surface, l *caption.Layout, ps placedSpan, x, y float64, p Palette) {
	st := ps.style
	if l.Shadow {
		shadow := st
		shadow.Color = shadowColor
		off := shadowOffset * l.FontSize
		s.DrawText(ps.span.Text, x+off, y+off, shadow)
	}

	switch ps.span.State {
	case caption.Current:
		glow := st
		glow.Color = render.WithAlpha(p.Highlight, glowAlpha)
		r := math.Max(2, 0.05*st.Size)
		for _, d := range [][2]float64{{-r, 0}, {r, 0}, {0, -r}, {0, r}} {
			s.DrawText(ps.span.Text, x+d[0], y+d[1], glow)
		}
		st.Color = p.Highlight
	case caption.Upcoming:
		st.Color = render.WithAlpha(p.Text, upcomingAlpha)
	}
	s.DrawText(ps.span.Text, x, y, st)
}
