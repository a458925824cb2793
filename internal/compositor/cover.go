package compositor

import (
	"image"
	"math"
)

// CoverRect returns where an imgW×imgH image lands when scaled to fill an
// outW×outH frame with its aspect ratio kept. The overflow axis extends past
// the frame on both sides by the same amount and is cropped when drawn.
func CoverRect(imgW, imgH, outW, outH int) image.Rectangle {
	if imgW <= 0 || imgH <= 0 {
		return image.Rect(0, 0, outW, outH)
	}
	imgAspect := float64(imgW) / float64(imgH)
	outAspect := float64(outW) / float64(outH)

	var dw, dh int
	if imgAspect > outAspect {
		dh = outH
		dw = int(math.Round(float64(outH) * imgAspect))
	} else {
		dw = outW
		dh = int(math.Round(float64(outW) / imgAspect))
	}
	x0 := (outW - dw) / 2
	y0 := (outH - dh) / 2
	return image.Rect(x0, y0, x0+dw, y0+dh)
}
