package source

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gen2brain/go-fitz"
	_ "golang.org/x/image/webp"
)

const DefaultDPI = 150

// Decode reads one scene image. Raster formats go through image.Decode;
// a PDF renders one page, chosen with a "#N" suffix (1-based, default 1).
func Decode(ref string, dpi int) (image.Image, error) {
	path, page := splitPage(ref)
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		return renderPDFPage(path, page, dpi)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return img, nil
}

func splitPage(ref string) (string, int) {
	i := strings.LastIndex(ref, "#")
	if i < 0 {
		return ref, 1
	}
	n, err := strconv.Atoi(ref[i+1:])
	if err != nil || n < 1 {
		return ref, 1
	}
	return ref[:i], n
}

// renderPDFPage opens its own document: fitz documents are not safe for
// concurrent use.
func renderPDFPage(path string, page, dpi int) (image.Image, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf %s: %w", filepath.Base(path), err)
	}
	defer doc.Close()

	if page > doc.NumPage() {
		return nil, fmt.Errorf("pdf %s has %d pages, want page %d", filepath.Base(path), doc.NumPage(), page)
	}
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	return doc.ImageDPI(page-1, float64(dpi))
}
