package render

import (
	"image"
	"image/color"
)

type TextStyle struct {
	Family string
	Size   float64 // pixels
	Color  color.Color
}

// Surface is everything the compositor needs from a drawing backend.
// Coordinates are in output pixels; text y is the baseline.
type Surface interface {
	Size() (width, height int)
	Clear(c color.Color)
	DrawImage(src image.Image, dst image.Rectangle, opacity float64)
	FillRect(r image.Rectangle, c color.Color)
	FillRoundedRect(r image.Rectangle, radius float64, c color.Color)
	FillDiagonalGradient(from, to color.RGBA)
	DrawText(text string, x, y float64, st TextStyle)
	MeasureText(text string, st TextStyle) float64
	Metrics(st TextStyle) (ascent, descent float64)
}
