// Package export writes reordered documents out of the queue.
package export

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/local/bookletreorder/internal/batch"
)

// Prefix is prepended to the original file name of every exported document.
const Prefix = "Sequential_"

var (
	ErrNotFound = errors.New("entry not found")
	ErrNotReady = errors.New("entry is not ready")
)

// Name returns the export file name for an original file name.
func Name(original string) string {
	base := filepath.Base(strings.ReplaceAll(original, "\\", "/"))
	if base == "." || base == "/" || base == "" {
		base = "document.pdf"
	}
	return Prefix + base
}

// Sink stores one exported document and returns where it went.
type Sink interface {
	Put(ctx context.Context, name string, data []byte) (string, error)
}

// Queue is the read side of the batch engine used by the exporter.
type Queue interface {
	Get(id string) (batch.Entry, bool)
	Ready() []batch.Entry
}

// Exporter moves ready entries to a sink.
type Exporter struct {
	queue Queue
	sink  Sink
}

func New(q Queue, sink Sink) *Exporter {
	return &Exporter{queue: q, sink: sink}
}

// Result describes one exported entry.
type Result struct {
	EntryID  string `json:"entry_id"`
	Name     string `json:"name"`
	Location string `json:"location,omitempty"`
	Error    string `json:"error,omitempty"`
}

// One exports a single ready entry.
func (x *Exporter) One(ctx context.Context, id string) (Result, error) {
	en, ok := x.queue.Get(id)
	if !ok {
		return Result{}, ErrNotFound
	}
	if en.Status != batch.StatusReady {
		return Result{}, fmt.Errorf("%w: status %s", ErrNotReady, en.Status)
	}
	return x.put(ctx, en, Name(en.Source.Name))
}

// All exports every ready entry. A failed entry is reported in its Result
// and does not stop the others; the returned error joins all failures.
// Entries sharing an original base name get numbered names within one run.
func (x *Exporter) All(ctx context.Context) ([]Result, error) {
	var (
		results []Result
		errs    []error
		used    = map[string]bool{}
	)
	for _, en := range x.queue.Ready() {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		res, err := x.put(ctx, en, uniqueName(Name(en.Source.Name), used))
		if err != nil {
			res.Error = err.Error()
			errs = append(errs, fmt.Errorf("%s: %w", en.Source.Name, err))
		}
		results = append(results, res)
	}
	log.Info().Int("exported", len(results)-len(errs)).Int("failed", len(errs)).Msg("export finished")
	return results, errors.Join(errs...)
}

// uniqueName returns name, or "base (n).ext" for the first n >= 2 not yet in
// used, and records the choice.
func uniqueName(name string, used map[string]bool) string {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	out := name
	for i := 2; used[out]; i++ {
		out = fmt.Sprintf("%s (%d)%s", stem, i, ext)
	}
	used[out] = true
	return out
}

func (x *Exporter) put(ctx context.Context, en batch.Entry, name string) (Result, error) {
	res := Result{EntryID: en.ID, Name: name}
	loc, err := x.sink.Put(ctx, res.Name, en.Result)
	if err != nil {
		log.Warn().Err(err).Str("entry_id", en.ID).Str("file", res.Name).Msg("export failed")
		return res, err
	}
	res.Location = loc
	log.Info().Str("entry_id", en.ID).Str("file", res.Name).Str("location", loc).Msg("entry exported")
	return res, nil
}
