package batch

import "fmt"

// ProcessingError is a reorder failure attributed to a single entry. It is
// stored on the entry as its error message, never returned across the batch loop.
type ProcessingError struct {
	Op  string
	Err error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ProcessingError) Unwrap() error { return e.Err }
