package render

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/gobolditalic"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/gomedium"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
)

const DefaultFamily = "go-bold"

// FontBook holds parsed font files by family name. It is read-only once
// loading is done and may be shared between runs; faces are not, see Faces.
type FontBook struct {
	fonts    map[string]*opentype.Font
	fallback string
}

// NewFontBook returns a book with the Go font families built in.
func NewFontBook() *FontBook {
	b := &FontBook{fonts: make(map[string]*opentype.Font), fallback: DefaultFamily}
	builtins := map[string][]byte{
		"go":             goregular.TTF,
		"go-bold":        gobold.TTF,
		"go-medium":      gomedium.TTF,
		"go-mono":        gomono.TTF,
		"go-italic":      goitalic.TTF,
		"go-bold-italic": gobolditalic.TTF,
	}
	for name, ttf := range builtins {
		f, err := opentype.Parse(ttf)
		if err != nil {
			// Embedded fonts always parse.
			panic(fmt.Sprintf("parse builtin font %s: %v", name, err))
		}
		b.fonts[name] = f
	}
	return b
}

// LoadDir registers every .ttf/.otf file in dir under its lower-cased base
// name. Unreadable files are skipped and reported in the returned error.
func (b *FontBook) LoadDir(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}

	var failed []string
	loaded := 0
	for _, e := range entries {
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if e.IsDir() || (ext != ".ttf" && ext != ".otf") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			failed = append(failed, e.Name())
			continue
		}
		f, err := opentype.Parse(data)
		if err != nil {
			failed = append(failed, e.Name())
			continue
		}
		b.fonts[normalizeFamily(strings.TrimSuffix(e.Name(), filepath.Ext(e.Name())))] = f
		loaded++
	}
	if len(failed) > 0 {
		return loaded, fmt.Errorf("skipped unreadable fonts: %s", strings.Join(failed, ", "))
	}
	return loaded, nil
}

func (b *FontBook) Families() []string {
	names := make([]string, 0, len(b.fonts))
	for name := range b.fonts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Has reports whether family resolves without falling back.
func (b *FontBook) Has(family string) bool {
	_, ok := b.fonts[normalizeFamily(family)]
	return ok
}

func (b *FontBook) lookup(family string) *opentype.Font {
	if f, ok := b.fonts[normalizeFamily(family)]; ok {
		return f
	}
	return b.fonts[b.fallback]
}

func normalizeFamily(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	return strings.Join(strings.Fields(name), "-")
}

// Faces returns a face cache bound to this book. A Faces value must stay
// on one goroutine.
func (b *FontBook) Faces() *Faces {
	return &Faces{book: b, cache: make(map[faceKey]font.Face)}
}

type faceKey struct {
	family string
	px     int
}

type Faces struct {
	book  *FontBook
	cache map[faceKey]font.Face
}

// Face returns a face for family at size rounded to the nearest pixel.
func (f *Faces) Face(family string, size float64) font.Face {
	px := int(math.Round(size))
	if px < 1 {
		px = 1
	}
	key := faceKey{family: normalizeFamily(family), px: px}
	if face, ok := f.cache[key]; ok {
		return face
	}
	face, err := opentype.NewFace(f.book.lookup(family), &opentype.FaceOptions{
		Size:    float64(px),
		DPI:     72,
		Hinting: font.HintingNone,
	})
	if err != nil {
		face, _ = opentype.NewFace(f.book.fonts[f.book.fallback], &opentype.FaceOptions{Size: float64(px), DPI: 72})
	}
	f.cache[key] = face
	return face
}

// MeasureText returns the advance width of text in pixels.
func (f *Faces) MeasureText(family string, size float64, text string) float64 {
	adv := font.MeasureString(f.Face(family, size), text)
	return float64(adv) / 64
}

func (f *Faces) Close() {
	for k, face := range f.cache {
		face.Close()
		delete(f.cache, k)
	}
}
