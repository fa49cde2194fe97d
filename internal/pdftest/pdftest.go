// Package pdftest builds small, well-formed PDF fixtures for tests.
package pdftest

import (
	"github.com/local/bookletreorder/internal/booklet"
	"github.com/local/bookletreorder/internal/document"
)

// Height is the MediaBox height of every generated page.
const Height = document.BlankHeight

// Pages returns a PDF whose i-th page has MediaBox width widths[i]. Page
// widths are how tests tell pages apart after a reorder.
func Pages(widths ...int) []byte { return document.Blank(widths...) }

// WidthFor is the page width that marks reading-order page p.
func WidthFor(p int) int { return 100 + p }

// ScannedBooklet returns an n-page PDF laid out in the interleaved scan
// order, with each page's width set by WidthFor(its reading-order page).
// For n not divisible by 4 the pages are in plain order.
func ScannedBooklet(n int) []byte {
	widths := make([]int, n)
	a := booklet.Analyze(n)
	if !a.Valid {
		for i := range widths {
			widths[i] = WidthFor(i + 1)
		}
		return Pages(widths...)
	}
	for i, p := range a.ScanOrder() {
		widths[i] = WidthFor(p)
	}
	return Pages(widths...)
}
