package source

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivlev/reelcomposer/internal/timeline"
)

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{255, 0, 0, 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))
}

func TestDecodeRaster(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scene.png")
	writePNG(t, path, 12, 8)

	img, err := Decode(path, 0)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 12, 8), img.Bounds())

	_, err = Decode(filepath.Join(dir, "missing.png"), 0)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "junk.jpg"), []byte("not an image"), 0644))
	_, err = Decode(filepath.Join(dir, "junk.jpg"), 0)
	assert.Error(t, err)
}

func TestSplitPage(t *testing.T) {
	tests := []struct {
		in   string
		path string
		page int
	}{
		{"deck.pdf", "deck.pdf", 1},
		{"deck.pdf#3", "deck.pdf", 3},
		{"deck.pdf#0", "deck.pdf#0", 1},
		{"odd#name.png", "odd#name.png", 1},
	}
	for _, tt := range tests {
		path, page := splitPage(tt.in)
		assert.Equal(t, tt.path, path, tt.in)
		assert.Equal(t, tt.page, page, tt.in)
	}
}

func TestLoaderIsolatesFailures(t *testing.T) {
	logger, hook := test.NewNullLogger()
	preset := image.NewRGBA(image.Rect(0, 0, 1, 1))
	scenes := []timeline.Scene{
		{ImagePath: "ok-1", Duration: 1},
		{ImagePath: "broken", Duration: 1},
		{Duration: 1},
		{Image: preset, ImagePath: "ignored", Duration: 1},
		{ImagePath: "ok-2", Duration: 1},
	}

	var calls atomic.Int32
	l := &Loader{
		Workers: 2,
		Log:     logrus.NewEntry(logger),
		Decode: func(ref string, _ int) (image.Image, error) {
			calls.Add(1)
			if ref == "broken" {
				return nil, errors.New("corrupt")
			}
			return image.NewRGBA(image.Rect(0, 0, 4, 4)), nil
		},
	}

	res, err := l.Load(context.Background(), scenes)
	require.NoError(t, err)
	assert.Equal(t, Result{Loaded: 3, Missing: 1, Failed: 1}, res)
	assert.Equal(t, int32(3), calls.Load())

	assert.NotNil(t, scenes[0].Image)
	assert.Nil(t, scenes[1].Image)
	assert.Nil(t, scenes[2].Image)
	assert.Same(t, preset, scenes[3].Image)
	assert.NotNil(t, scenes[4].Image)

	require.Len(t, hook.AllEntries(), 1)
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
	assert.Equal(t, 2, hook.LastEntry().Data["scene"])
}

func TestLoaderReturnsOnDeadline(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	scenes := []timeline.Scene{{ImagePath: "slow", Duration: 1}}
	l := &Loader{Decode: func(string, int) (image.Image, error) {
		<-release
		return image.NewRGBA(image.Rect(0, 0, 1, 1)), nil
	}}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	begin := time.Now()
	_, err := l.Load(ctx, scenes)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(begin), 2*time.Second)
	assert.Nil(t, scenes[0].Image, "scenes stay untouched on timeout")
}
