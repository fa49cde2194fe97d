// Package document is the narrow document-model boundary used by the batch
// engine: open bytes, count pages, and assemble a new document from a page
// sequence.
package document

import "context"

// Model opens raw document bytes.
type Model interface {
	Open(ctx context.Context, data []byte) (Document, error)
}

// Document is an opened source document.
type Document interface {
	PageCount() int
	// BuildReordered returns a new document holding the source pages at the
	// given 0-based indices, in the given order, one output page per index.
	BuildReordered(ctx context.Context, sourceIndices []int) ([]byte, error)
}
