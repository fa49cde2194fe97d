package document

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"

	"github.com/gen2brain/go-fitz"
	"github.com/rs/zerolog/log"
)

// Renderer draws single pages of a PDF held in memory.
type Renderer struct {
	DPI     int
	Quality int
}

// RenderJPEG renders page (1-based) of data as JPEG.
// Returns JPEG bytes, width, height, error
func (r Renderer) RenderJPEG(data []byte, page int, gray bool) ([]byte, int, int, error) {
	dpi, quality := r.DPI, r.Quality
	if dpi <= 0 {
		dpi = 72
	}
	if quality <= 0 || quality > 100 {
		quality = 80
	}

	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, 0, 0, &LoadError{Err: err}
	}
	defer doc.Close()

	// go-fitz uses 0-based indexing
	if page < 1 || page > doc.NumPage() {
		return nil, 0, 0, fmt.Errorf("page %d out of range (document has %d pages)", page, doc.NumPage())
	}
	img, err := doc.ImageDPI(page-1, float64(dpi))
	if err != nil {
		return nil, 0, 0, fmt.Errorf("failed to render page %d: %w", page, err)
	}

	bounds := img.Bounds()
	var final image.Image = img
	if gray {
		g := image.NewGray(bounds)
		draw.Draw(g, bounds, img, image.Point{}, draw.Src)
		final = g
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, final, &jpeg.Options{Quality: quality}); err != nil {
		return nil, 0, 0, fmt.Errorf("failed to encode JPEG: %w", err)
	}

	log.Debug().
		Int("page", page).
		Int("width", bounds.Dx()).
		Int("height", bounds.Dy()).
		Bool("gray", gray).
		Int("jpeg_size", buf.Len()).
		Msg("rendered page preview")

	return buf.Bytes(), bounds.Dx(), bounds.Dy(), nil
}
