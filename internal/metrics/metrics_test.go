package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/local/bookletreorder/internal/batch"
	"github.com/local/bookletreorder/internal/booklet"
)

func TestObserverTracksQueue(t *testing.T) {
	Init()
	Init()
	o := NewObserver()

	addedBefore := testutil.ToFloat64(entriesAdded.WithLabelValues("valid"))
	readyBefore := testutil.ToFloat64(reorders.WithLabelValues("ready"))

	start := time.Now()
	end := start.Add(250 * time.Millisecond)
	en := batch.Entry{ID: "a", Analysis: booklet.Analyze(8), Status: batch.StatusIdle}
	o.EntryChanged(en)
	o.EntryChanged(batch.Entry{ID: "b", Analysis: booklet.Analyze(7), Status: batch.StatusIdle})

	en.Status, en.StartedAt = batch.StatusProcessing, &start
	o.EntryChanged(en)
	if got := testutil.ToFloat64(queueEntries.WithLabelValues("processing")); got != 1 {
		t.Fatalf("expected 1 processing, got %v", got)
	}

	en.Status, en.SettledAt = batch.StatusReady, &end
	o.EntryChanged(en)

	if got := testutil.ToFloat64(entriesAdded.WithLabelValues("valid")) - addedBefore; got != 1 {
		t.Fatalf("expected one valid entry counted, got %v", got)
	}
	if got := testutil.ToFloat64(reorders.WithLabelValues("ready")) - readyBefore; got != 1 {
		t.Fatalf("expected one ready reorder, got %v", got)
	}
	if got := testutil.ToFloat64(queueEntries.WithLabelValues("ready")); got != 1 {
		t.Fatalf("expected 1 ready, got %v", got)
	}
	if got := testutil.ToFloat64(queueEntries.WithLabelValues("idle")); got != 1 {
		t.Fatalf("expected 1 idle, got %v", got)
	}

	o.EntryRemoved(en)
	if got := testutil.ToFloat64(queueEntries.WithLabelValues("ready")); got != 0 {
		t.Fatalf("expected 0 ready after removal, got %v", got)
	}
}
