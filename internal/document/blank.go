package document

import (
	"bytes"
	"context"
	"fmt"
)

// BlankHeight is the MediaBox height of every page produced by Blank.
const BlankHeight = 200

// Blank returns a minimal PDF with one empty page per width, the i-th page
// having MediaBox width widths[i].
func Blank(widths ...int) []byte {
	var buf bytes.Buffer
	n := len(widths)
	offsets := make([]int, 0, n+2)

	buf.WriteString("%PDF-1.4\n%\xe2\xe3\xcf\xd3\n")

	offsets = append(offsets, buf.Len())
	buf.WriteString("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")

	offsets = append(offsets, buf.Len())
	buf.WriteString("2 0 obj\n<< /Type /Pages /Kids [")
	for i := 0; i < n; i++ {
		fmt.Fprintf(&buf, " %d 0 R", i+3)
	}
	fmt.Fprintf(&buf, " ] /Count %d /Resources << >> >>\nendobj\n", n)

	for i, w := range widths {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n<< /Type /Page /Parent 2 0 R /MediaBox [0 0 %d %d] >>\nendobj\n", i+3, w, BlankHeight)
	}

	xref := buf.Len()
	size := len(offsets) + 1
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", size)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", size, xref)
	return buf.Bytes()
}

// SelfTest opens and reorders a generated four page document.
func (m *PDFModel) SelfTest(ctx context.Context) error {
	doc, err := m.Open(ctx, Blank(101, 102, 103, 104))
	if err != nil {
		return err
	}
	if doc.PageCount() != 4 {
		return fmt.Errorf("self test document has %d pages", doc.PageCount())
	}
	_, err = doc.BuildReordered(ctx, []int{1, 3, 2, 0})
	return err
}
