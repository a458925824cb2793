package system

import (
	"image"
	"sync"
)

// FramePool recycles output frames of one size so the capture loop does not
// allocate a full RGBA buffer per tick. Each run owns its pool.
type FramePool struct {
	rect image.Rectangle
	pool sync.Pool
}

func NewFramePool(width, height int) *FramePool {
	p := &FramePool{rect: image.Rect(0, 0, width, height)}
	p.pool.New = func() any {
		return image.NewRGBA(p.rect)
	}
	return p
}

func (p *FramePool) Get() *image.RGBA {
	return p.pool.Get().(*image.RGBA)
}

// Put returns a frame; frames of another size are left to the GC.
func (p *FramePool) Put(img *image.RGBA) {
	if img == nil || img.Rect != p.rect {
		return
	}
	p.pool.Put(img)
}
