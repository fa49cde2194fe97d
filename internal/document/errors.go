package document

import "fmt"

// LoadError reports input that could not be opened as a document.
type LoadError struct {
	Name string
	Err  error
}

func (e *LoadError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("load %s: %v", e.Name, e.Err)
	}
	return fmt.Sprintf("load document: %v", e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// RebuildError reports a failure to assemble the reordered document.
type RebuildError struct {
	Reason string
	Err    error
}

func (e *RebuildError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("rebuild document: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("rebuild document: %s", e.Reason)
}

func (e *RebuildError) Unwrap() error { return e.Err }
