package compositor

import (
	"image/color"
	"strconv"

	"github.com/ivlev/reelcomposer/internal/render"
)

var placeholderPalette = [][2]color.RGBA{
	{render.MustHex("#1E3C72"), render.MustHex("#2A5298")},
	{render.MustHex("#42275A"), render.MustHex("#734B6D")},
	{render.MustHex("#134E5E"), render.MustHex("#71B280")},
	{render.MustHex("#C04848"), render.MustHex("#480048")},
	{render.MustHex("#232526"), render.MustHex("#414345")},
	{render.MustHex("#E65C00"), render.MustHex("#F9D423")},
}

// DrawPlaceholder stands in for a scene whose image is missing: a diagonal
// gradient picked by position, with the 1-based scene number in large
// translucent text.
func DrawPlaceholder(s render.Surface, index int, family string) {
	if index < 0 {
		index = 0
	}
	pair := placeholderPalette[index%len(placeholderPalette)]
	s.FillDiagonalGradient(pair[0], pair[1])

	w, h := s.Size()
	short := w
	if h < short {
		short = h
	}
	st := render.TextStyle{
		Family: family,
		Size:   0.35 * float64(short),
		Color:  render.WithAlpha(color.RGBA{255, 255, 255, 255}, 0.35),
	}
	label := strconv.Itoa(index + 1)
	ascent, descent := s.Metrics(st)
	x := (float64(w) - s.MeasureText(label, st)) / 2
	y := float64(h)/2 + (ascent-descent)/2
	s.DrawText(label, x, y, st)
}
