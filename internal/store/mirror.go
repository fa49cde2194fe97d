package store

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/bookletreorder/internal/batch"
)

// StatusWriter is the write side of a status store.
type StatusWriter interface {
	Set(ctx context.Context, id string, st Status) error
	Delete(ctx context.Context, id string) error
}

type mirrorOp struct {
	id     string
	st     Status
	delete bool
}

// Mirror publishes engine transitions to a StatusWriter from a background
// goroutine so the engine never waits on the network. It is write-only:
// nothing reads the mirror back into the queue.
type Mirror struct {
	w      StatusWriter
	ch     chan mirrorOp
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
}

// NewMirror starts the publishing loop. buffer bounds queued updates;
// updates beyond it are dropped with a warning.
func NewMirror(w StatusWriter, buffer int) *Mirror {
	if buffer <= 0 {
		buffer = 1000
	}
	m := &Mirror{w: w, ch: make(chan mirrorOp, buffer)}
	m.wg.Add(1)
	go m.loop()
	return m
}

func (m *Mirror) EntryChanged(e batch.Entry) { m.send(mirrorOp{id: e.ID, st: FromEntry(e)}) }

func (m *Mirror) EntryRemoved(e batch.Entry) { m.send(mirrorOp{id: e.ID, delete: true}) }

func (m *Mirror) send(op mirrorOp) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return
	}
	select {
	case m.ch <- op:
	default:
		log.Warn().Str("entry_id", op.id).Msg("status mirror buffer full; update dropped")
	}
}

func (m *Mirror) loop() {
	defer m.wg.Done()
	for op := range m.ch {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		var err error
		if op.delete {
			err = m.w.Delete(ctx, op.id)
		} else {
			err = m.w.Set(ctx, op.id, op.st)
		}
		cancel()
		if err != nil {
			log.Warn().Err(err).Str("entry_id", op.id).Msg("status mirror update failed")
		}
	}
}

// Close drains pending updates and stops the loop.
func (m *Mirror) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	close(m.ch)
	m.mu.Unlock()
	m.wg.Wait()
}

// FromEntry converts an entry to its mirrored status.
func FromEntry(e batch.Entry) Status {
	st := Status{
		Status:  string(e.Status),
		File:    e.Source.Name,
		Pages:   e.Analysis.TotalPages,
		Valid:   e.Analysis.Valid,
		Message: e.Error,
		Start:   e.StartedAt,
		End:     e.SettledAt,
		Metadata: map[string]any{
			"size":     e.Source.Size,
			"added_at": e.AddedAt.Format(time.RFC3339Nano),
		},
	}
	if !e.Analysis.Valid {
		st.Message = e.Analysis.Error
	}
	if e.Status == batch.StatusReady {
		st.Metadata["result_size"] = len(e.Result)
	}
	return st
}
