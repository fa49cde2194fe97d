// Package batch owns the queue of booklet documents and drives each one
// through idle → processing → ready|failed.
package batch

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/local/bookletreorder/internal/booklet"
	"github.com/local/bookletreorder/internal/document"
	"github.com/local/bookletreorder/internal/source"
)

// Options configures an Engine.
type Options struct {
	// Concurrency bounds how many reorders ProcessAll runs at once.
	// Values below 1 mean 1 (strictly sequential).
	Concurrency int
	Observers   []Observer
	NewID       func() string
	Now         func() time.Time
}

// Engine is the batch queue. The queue is an immutable snapshot replaced
// atomically on each transition; writers are serialized so a transition
// that completes late always applies to the latest snapshot.
type Engine struct {
	model document.Model
	opts  Options

	mu    sync.Mutex
	queue atomic.Pointer[[]Entry]
}

// New returns an empty Engine.
func New(model document.Model, opts Options) *Engine {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	e := &Engine{model: model, opts: opts}
	empty := []Entry{}
	e.queue.Store(&empty)
	return e
}

// Entries returns the current snapshot in insertion order.
func (e *Engine) Entries() []Entry {
	return slices.Clone(*e.queue.Load())
}

// Len returns the number of queued entries.
func (e *Engine) Len() int { return len(*e.queue.Load()) }

// Get returns the entry with id from the current snapshot.
func (e *Engine) Get(id string) (Entry, bool) {
	for _, en := range *e.queue.Load() {
		if en.ID == id {
			return en, true
		}
	}
	return Entry{}, false
}

// Ready returns the ready entries in insertion order.
func (e *Engine) Ready() []Entry {
	var out []Entry
	for _, en := range *e.queue.Load() {
		if en.Status == StatusReady {
			out = append(out, en)
		}
	}
	return out
}

// AddEntry reads ref, analyses its page count and appends an idle entry.
// Invalid booklets are queued too and carry their analysis error. Content
// that cannot be opened is returned as *document.LoadError and not queued.
func (e *Engine) AddEntry(ctx context.Context, ref source.Ref) (Entry, error) {
	data, err := ref.Bytes(ctx)
	if err != nil {
		return Entry{}, &document.LoadError{Name: ref.Name, Err: err}
	}
	doc, err := e.model.Open(ctx, data)
	if err != nil {
		var lerr *document.LoadError
		if errors.As(err, &lerr) && lerr.Name == "" {
			lerr.Name = ref.Name
		}
		log.Warn().Err(err).Str("file", ref.Name).Msg("failed to analyze file")
		return Entry{}, err
	}

	entry := Entry{
		ID:       e.opts.NewID(),
		Source:   ref,
		Analysis: booklet.Analyze(doc.PageCount()),
		Status:   StatusIdle,
		AddedAt:  e.opts.Now(),
	}

	e.mu.Lock()
	next := append(slices.Clone(*e.queue.Load()), entry)
	e.queue.Store(&next)
	e.notifyChanged(entry)
	e.mu.Unlock()

	ev := log.Info().Str("entry_id", entry.ID).Str("file", ref.Name).Int("pages", entry.Analysis.TotalPages).Bool("valid", entry.Analysis.Valid)
	if !entry.Analysis.Valid {
		ev = ev.Str("analysis_error", entry.Analysis.Error)
	}
	ev.Msg("entry added")
	return entry, nil
}

// ProcessEntry reorders one idle, valid entry and returns once it has
// settled. It is a no-op returning false when the entry is unknown, invalid
// or already processed. The returned entry may already have been removed
// from the queue, in which case its result was discarded.
func (e *Engine) ProcessEntry(ctx context.Context, id string) (Entry, bool) {
	started, ok := e.replace(id, func(cur Entry) (Entry, bool) {
		if !cur.Processable() {
			return cur, false
		}
		now := e.opts.Now()
		cur.Status = StatusProcessing
		cur.StartedAt = &now
		return cur, true
	})
	if !ok {
		cur, _ := e.Get(id)
		return cur, false
	}

	// A started reorder always runs to completion; cancelling ctx only
	// stops new work.
	begin := time.Now()
	result, err := e.reorder(context.WithoutCancel(ctx), started)

	final := started
	settledAt := e.opts.Now()
	final.SettledAt = &settledAt
	if err != nil {
		final.Status = StatusFailed
		final.Error = err.Error()
	} else {
		final.Status = StatusReady
		final.Result = result
	}

	_, applied := e.replace(id, func(cur Entry) (Entry, bool) {
		if cur.Status != StatusProcessing {
			return cur, false
		}
		return final, true
	})
	if !applied {
		log.Info().Str("entry_id", id).Str("file", started.Source.Name).Msg("entry removed while processing; result discarded")
		return final, true
	}

	ev := log.Info()
	if err != nil {
		ev = log.Warn().Err(err)
	}
	ev.Str("entry_id", id).
		Str("file", started.Source.Name).
		Str("status", string(final.Status)).
		Int("pages", started.Analysis.TotalPages).
		Dur("duration", time.Since(begin)).
		Msg("entry settled")
	return final, true
}

// reorder runs the collaborator for one entry. Any failure, including a
// panic inside the document library, is returned as *ProcessingError.
func (e *Engine) reorder(ctx context.Context, entry Entry) (out []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, &ProcessingError{Op: "reorder", Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	data, err := entry.Source.Bytes(ctx)
	if err != nil {
		return nil, &ProcessingError{Op: "read source", Err: err}
	}
	doc, err := e.model.Open(ctx, data)
	if err != nil {
		return nil, &ProcessingError{Op: "reopen source", Err: err}
	}
	if n := doc.PageCount(); n != entry.Analysis.TotalPages {
		return nil, &ProcessingError{
			Op:  "verify page count",
			Err: fmt.Errorf("document has %d pages but was analyzed with %d", n, entry.Analysis.TotalPages),
		}
	}
	out, err = doc.BuildReordered(ctx, entry.Analysis.SourceIndices())
	if err != nil {
		return nil, &ProcessingError{Op: "reorder pages", Err: err}
	}
	return out, nil
}

// Summary counts the outcome of a ProcessAll run.
type Summary struct {
	Attempted int `json:"attempted"`
	Ready     int `json:"ready"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// ProcessAll processes every idle, valid entry of the current snapshot in
// insertion order. With the default concurrency of 1 each entry settles
// before the next starts. A failure never stops later entries. Once ctx is
// done no further entry is started; in-flight ones still settle.
func (e *Engine) ProcessAll(ctx context.Context) Summary {
	snap := e.Entries()

	var (
		mu  sync.Mutex
		sum Summary
		g   errgroup.Group
	)
	g.SetLimit(e.opts.Concurrency)

	skip := func() {
		mu.Lock()
		sum.Skipped++
		mu.Unlock()
	}

	for _, en := range snap {
		if !en.Processable() || ctx.Err() != nil {
			skip()
			continue
		}
		id := en.ID
		g.Go(func() error {
			if ctx.Err() != nil {
				skip()
				return nil
			}
			out, attempted := e.ProcessEntry(ctx, id)
			mu.Lock()
			defer mu.Unlock()
			if !attempted {
				sum.Skipped++
				return nil
			}
			sum.Attempted++
			if out.Status == StatusReady {
				sum.Ready++
			} else {
				sum.Failed++
			}
			return nil
		})
	}
	_ = g.Wait()

	log.Info().
		Int("attempted", sum.Attempted).
		Int("ready", sum.Ready).
		Int("failed", sum.Failed).
		Int("skipped", sum.Skipped).
		Msg("process all finished")
	return sum
}

// RemoveEntry drops the entry whatever its status. An in-flight reorder for
// it keeps running but its result is discarded.
func (e *Engine) RemoveEntry(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	cur := *e.queue.Load()
	idx := slices.IndexFunc(cur, func(en Entry) bool { return en.ID == id })
	if idx < 0 {
		return false
	}
	removed := cur[idx]
	next := slices.Delete(slices.Clone(cur), idx, idx+1)
	e.queue.Store(&next)
	for _, o := range e.opts.Observers {
		o.EntryRemoved(removed)
	}
	log.Info().Str("entry_id", id).Str("status", string(removed.Status)).Msg("entry removed")
	return true
}

// ResetAll empties the queue and returns how many entries were dropped.
func (e *Engine) ResetAll() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	cur := *e.queue.Load()
	empty := []Entry{}
	e.queue.Store(&empty)
	for _, en := range cur {
		for _, o := range e.opts.Observers {
			o.EntryRemoved(en)
		}
	}
	log.Info().Int("entries", len(cur)).Msg("queue reset")
	return len(cur)
}

// replace applies fn to the entry with id in the latest snapshot. When fn
// reports a change the snapshot is swapped and observers are notified.
func (e *Engine) replace(id string, fn func(cur Entry) (Entry, bool)) (Entry, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	cur := *e.queue.Load()
	idx := slices.IndexFunc(cur, func(en Entry) bool { return en.ID == id })
	if idx < 0 {
		return Entry{}, false
	}
	updated, changed := fn(cur[idx])
	if !changed {
		return cur[idx], false
	}
	next := slices.Clone(cur)
	next[idx] = updated
	e.queue.Store(&next)
	e.notifyChanged(updated)
	return updated, true
}

func (e *Engine) notifyChanged(en Entry) {
	for _, o := range e.opts.Observers {
		o.EntryChanged(en)
	}
}
