package compositor

import (
	"fmt"
	"image"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/ivlev/reelcomposer/internal/render"
)

const (
	watermarkShare   = 0.12
	watermarkMargin  = 0.03
	watermarkOpacity = 0.85
)

// Watermark is a QR code rendered once and blitted into the top-right corner
// of every frame.
type Watermark struct {
	img image.Image
}

func NewWatermark(content string, outW, outH int) (*Watermark, error) {
	q, err := qrcode.New(content, qrcode.Medium)
	if err != nil {
		return nil, fmt.Errorf("watermark qr: %w", err)
	}
	short := outW
	if outH < short {
		short = outH
	}
	size := int(watermarkShare * float64(short))
	if size < 21 {
		size = 21
	}
	return &Watermark{img: q.Image(size)}, nil
}

// Rect is where the watermark lands on a w×h frame.
func (wm *Watermark) Rect(w, h int) image.Rectangle {
	short := w
	if h < short {
		short = h
	}
	margin := int(watermarkMargin * float64(short))
	size := wm.img.Bounds().Dx()
	return image.Rect(w-margin-size, margin, w-margin, margin+size)
}

func (wm *Watermark) Draw(s render.Surface) {
	w, h := s.Size()
	s.DrawImage(wm.img, wm.Rect(w, h), watermarkOpacity)
}
