package render

import (
	"image"
	"image/color"
	"math"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"
)

// Canvas is the software Surface: it rasterizes straight into an RGBA
// buffer owned by the caller.
type Canvas struct {
	img   *image.RGBA
	faces *Faces
}

var _ Surface = (*Canvas)(nil)

func NewCanvas(img *image.RGBA, faces *Faces) *Canvas {
	return &Canvas{img: img, faces: faces}
}

func (c *Canvas) Image() *image.RGBA {
	return c.img
}

func (c *Canvas) Size() (int, int) {
	b := c.img.Bounds()
	return b.Dx(), b.Dy()
}

func (c *Canvas) Clear(col color.Color) {
	xdraw.Draw(c.img, c.img.Bounds(), image.NewUniform(col), image.Point{}, xdraw.Src)
}

// DrawImage scales src into dst. Parts of dst outside the canvas are clipped,
// which is how cover scaling crops the overflow axis.
func (c *Canvas) DrawImage(src image.Image, dst image.Rectangle, opacity float64) {
	if opacity <= 0 || dst.Empty() {
		return
	}
	sb := src.Bounds()
	if sb.Dx() != dst.Dx() || sb.Dy() != dst.Dy() {
		scaled := image.NewRGBA(image.Rect(0, 0, dst.Dx(), dst.Dy()))
		xdraw.ApproxBiLinear.Scale(scaled, scaled.Bounds(), src, sb, xdraw.Src, nil)
		src, sb = scaled, scaled.Bounds()
	}
	if opacity >= 1 {
		xdraw.Draw(c.img, dst, src, sb.Min, xdraw.Over)
		return
	}
	mask := image.NewUniform(color.Alpha{A: uint8(math.Round(opacity * 255))})
	xdraw.DrawMask(c.img, dst, src, sb.Min, mask, image.Point{}, xdraw.Over)
}

func (c *Canvas) FillRect(r image.Rectangle, col color.Color) {
	xdraw.Draw(c.img, r, image.NewUniform(col), image.Point{}, xdraw.Over)
}

func (c *Canvas) FillRoundedRect(r image.Rectangle, radius float64, col color.Color) {
	r = r.Intersect(c.img.Bounds())
	if r.Empty() {
		return
	}
	mask := RoundedMask(r.Dx(), r.Dy(), radius)
	xdraw.DrawMask(c.img, r, image.NewUniform(col), image.Point{}, mask, image.Point{}, xdraw.Over)
}

// FillDiagonalGradient paints from the top-left corner colour to the
// bottom-right one.
func (c *Canvas) FillDiagonalGradient(from, to color.RGBA) {
	b := c.img.Bounds()
	w, h := float64(b.Dx()-1), float64(b.Dy()-1)
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := c.img.Pix[(y-b.Min.Y)*c.img.Stride:]
		ty := float64(y-b.Min.Y) / h
		for x := b.Min.X; x < b.Max.X; x++ {
			px := LerpColor(from, to, (float64(x-b.Min.X)/w+ty)/2)
			i := (x - b.Min.X) * 4
			row[i], row[i+1], row[i+2], row[i+3] = px.R, px.G, px.B, px.A
		}
	}
}

func (c *Canvas) DrawText(text string, x, y float64, st TextStyle) {
	d := font.Drawer{
		Dst:  c.img,
		Src:  image.NewUniform(st.Color),
		Face: c.faces.Face(st.Family, st.Size),
		Dot:  fixed.Point26_6{X: fixed.Int26_6(math.Round(x * 64)), Y: fixed.Int26_6(math.Round(y * 64))},
	}
	d.DrawString(text)
}

func (c *Canvas) MeasureText(text string, st TextStyle) float64 {
	return c.faces.MeasureText(st.Family, st.Size, text)
}

func (c *Canvas) Metrics(st TextStyle) (float64, float64) {
	m := c.faces.Face(st.Family, st.Size).Metrics()
	return float64(m.Ascent) / 64, float64(m.Descent) / 64
}

// RoundedMask returns a w×h alpha mask of a rounded rectangle with
// anti-aliased corners.
func RoundedMask(w, h int, radius float64) *image.Alpha {
	mask := image.NewAlpha(image.Rect(0, 0, w, h))
	maxR := math.Min(float64(w), float64(h)) / 2
	if radius > maxR {
		radius = maxR
	}
	if radius < 0 {
		radius = 0
	}
	for y := 0; y < h; y++ {
		row := mask.Pix[y*mask.Stride : y*mask.Stride+w]
		for x := range row {
			row[x] = cornerCoverage(float64(x)+0.5, float64(y)+0.5, float64(w), float64(h), radius)
		}
	}
	return mask
}

func cornerCoverage(px, py, w, h, r float64) uint8 {
	if r == 0 {
		return 0xff
	}
	var cx, cy float64
	switch {
	case px < r:
		cx = r
	case px > w-r:
		cx = w - r
	default:
		return 0xff
	}
	switch {
	case py < r:
		cy = r
	case py > h-r:
		cy = h - r
	default:
		return 0xff
	}
	d := math.Hypot(px-cx, py-cy)
	cov := Clamp01(r - d + 0.5)
	return uint8(math.Round(cov * 255))
}
