package booklet

import "fmt"

// ErrNoPages is the analysis error reported for an empty document.
const ErrNoPages = "No pages found."

// PageMapping places the page found at SourceIndex (0-based, scan order)
// at TargetPage (1-based, reading order).
type PageMapping struct {
	SourceIndex int `json:"source_index"`
	TargetPage  int `json:"target_page"`
}

// Analysis is the result of Analyze. It is never mutated after creation.
type Analysis struct {
	TotalPages int           `json:"total_pages"`
	Valid      bool          `json:"valid"`
	Mappings   []PageMapping `json:"mappings"`
	Error      string        `json:"error,omitempty"`
}

// ValidationError reports a page count that cannot be a booklet scan.
type ValidationError struct {
	Pages  int
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// Analyze computes the reading-order mapping for a booklet scanned in the
// interleaved sheet-fed order (P8,P1,P7,P2,P6,P3,P5,P4 for eight pages).
//
// Front-half pages sit at odd scan positions in ascending order, back-half
// pages at even scan positions in descending order. Invalid counts are
// reported through Valid/Error, never by panicking.
func Analyze(pageCount int) Analysis {
	switch {
	case pageCount == 0:
		return Analysis{Mappings: []PageMapping{}, Error: ErrNoPages}
	case pageCount < 0:
		return Analysis{Mappings: []PageMapping{}, Error: fmt.Sprintf("Invalid page count %d.", pageCount)}
	case pageCount%4 != 0:
		return Analysis{
			TotalPages: pageCount,
			Mappings:   []PageMapping{},
			Error:      fmt.Sprintf("A standard booklet requires a page count divisible by 4. You have %d pages.", pageCount),
		}
	}

	n := pageCount
	mappings := make([]PageMapping, 0, n)
	for p := 1; p <= n; p++ {
		mappings = append(mappings, PageMapping{SourceIndex: sourceIndex(n, p), TargetPage: p})
	}
	return Analysis{TotalPages: n, Valid: true, Mappings: mappings}
}

func sourceIndex(n, p int) int {
	if p <= n/2 {
		return 2*(p-1) + 1
	}
	return 2 * (n - p)
}

// Err returns the analysis error as a *ValidationError, or nil when valid.
func (a Analysis) Err() error {
	if a.Valid {
		return nil
	}
	return &ValidationError{Pages: a.TotalPages, Reason: a.Error}
}

// SourceIndices lists the 0-based source index of each page in reading order.
func (a Analysis) SourceIndices() []int {
	out := make([]int, len(a.Mappings))
	for i, m := range a.Mappings {
		out[i] = m.SourceIndex
	}
	return out
}

// ScanOrder lists, for each physical scan position, the reading-order page
// found there. For eight pages this is [8 1 7 2 6 3 5 4].
func (a Analysis) ScanOrder() []int {
	out := make([]int, len(a.Mappings))
	for _, m := range a.Mappings {
		out[m.SourceIndex] = m.TargetPage
	}
	return out
}
