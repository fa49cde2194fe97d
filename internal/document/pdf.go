package document

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/local/bookletreorder/internal/filetype"
)

func init() {
	// Never read or create pdfcpu's user config directory.
	model.ConfigPath = "disable"
}

// PDFModel implements Model with pdfcpu.
type PDFModel struct {
	detector *filetype.Detector
}

// NewPDFModel returns a pdfcpu backed Model.
func NewPDFModel() *PDFModel {
	return &PDFModel{detector: filetype.New()}
}

func pdfConfig() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// Open sniffs and parses data, failing with *LoadError on anything that is
// not a readable PDF.
func (m *PDFModel) Open(ctx context.Context, data []byte) (Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, &LoadError{Err: err}
	}
	if len(data) == 0 {
		return nil, &LoadError{Err: errors.New("empty input")}
	}
	if err := m.detector.RequirePDF(data, ""); err != nil {
		return nil, &LoadError{Err: err}
	}
	n, err := api.PageCount(bytes.NewReader(data), pdfConfig())
	if err != nil {
		return nil, &LoadError{Err: fmt.Errorf("pdf page count failed: %w", err)}
	}
	return &pdfDocument{data: data, pages: n}, nil
}

type pdfDocument struct {
	data  []byte
	pages int
}

func (d *pdfDocument) PageCount() int { return d.pages }

// BuildReordered uses pdfcpu's page collection, which keeps the selection
// order, then checks the output holds exactly one page per index.
func (d *pdfDocument) BuildReordered(ctx context.Context, sourceIndices []int) ([]byte, error) {
	if len(sourceIndices) == 0 {
		return nil, &RebuildError{Reason: "no pages selected"}
	}
	sel := make([]string, len(sourceIndices))
	for i, idx := range sourceIndices {
		if idx < 0 || idx >= d.pages {
			return nil, &RebuildError{Reason: fmt.Sprintf("page index %d out of range (document has %d pages)", idx, d.pages)}
		}
		sel[i] = strconv.Itoa(idx + 1)
	}
	if err := ctx.Err(); err != nil {
		return nil, &RebuildError{Reason: "cancelled", Err: err}
	}

	conf := pdfConfig()
	var out bytes.Buffer
	if err := api.Collect(bytes.NewReader(d.data), &out, sel, conf); err != nil {
		return nil, &RebuildError{Reason: "collect pages", Err: err}
	}
	got, err := api.PageCount(bytes.NewReader(out.Bytes()), conf)
	if err != nil {
		return nil, &RebuildError{Reason: "read rebuilt document", Err: err}
	}
	if got != len(sourceIndices) {
		return nil, &RebuildError{Reason: fmt.Sprintf("rebuilt document has %d pages, expected %d", got, len(sourceIndices))}
	}
	return out.Bytes(), nil
}
