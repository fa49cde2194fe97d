package batch

import (
	"time"

	"github.com/local/bookletreorder/internal/booklet"
	"github.com/local/bookletreorder/internal/source"
)

// Status is the lifecycle state of a queue entry.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusProcessing Status = "processing"
	StatusReady      Status = "ready"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further transition can happen.
func (s Status) Terminal() bool { return s == StatusReady || s == StatusFailed }

// Entry is one queued document. Entries are values: the engine replaces
// them on every transition and never mutates a published one. Result is
// shared between snapshots and must not be modified by callers.
type Entry struct {
	ID        string           `json:"id"`
	Source    source.Ref       `json:"source"`
	Analysis  booklet.Analysis `json:"analysis"`
	Status    Status           `json:"status"`
	Result    []byte           `json:"-"`
	Error     string           `json:"error,omitempty"`
	AddedAt   time.Time        `json:"added_at"`
	StartedAt *time.Time       `json:"started_at,omitempty"`
	SettledAt *time.Time       `json:"settled_at,omitempty"`
}

// Processable reports whether ProcessEntry would start a reorder.
func (e Entry) Processable() bool {
	return e.Status == StatusIdle && e.Analysis.Valid
}

// Observer is told about every committed transition, in commit order. It
// runs under the engine's writer lock and must not call back into the engine.
type Observer interface {
	EntryChanged(e Entry)
	EntryRemoved(e Entry)
}
