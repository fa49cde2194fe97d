package document_test

import (
	"bytes"
	"image/jpeg"
	"testing"

	"github.com/local/bookletreorder/internal/document"
	"github.com/local/bookletreorder/internal/pdftest"
)

func TestRenderJPEG(t *testing.T) {
	data := pdftest.Pages(150, 300)
	out, w, h, err := document.Renderer{DPI: 72, Quality: 70}.RenderJPEG(data, 2, true)
	if err != nil {
		t.Fatalf("RenderJPEG failed: %v", err)
	}
	if w < 299 || w > 301 || h < pdftest.Height-1 || h > pdftest.Height+1 {
		t.Fatalf("unexpected size %dx%d", w, h)
	}
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("output is not a JPEG: %v", err)
	}
	if cfg.Width != w || cfg.Height != h {
		t.Fatalf("JPEG is %dx%d, reported %dx%d", cfg.Width, cfg.Height, w, h)
	}
}

func TestRenderJPEGPageOutOfRange(t *testing.T) {
	data := pdftest.Pages(150)
	for _, p := range []int{0, 2} {
		if _, _, _, err := (document.Renderer{}).RenderJPEG(data, p, false); err == nil {
			t.Fatalf("page %d: expected error", p)
		}
	}
}
