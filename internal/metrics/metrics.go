package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/local/bookletreorder/internal/batch"
)

var (
	entriesAdded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "booklet",
			Name:      "entries_added_total",
			Help:      "Entries added to the queue by analysis result (valid, invalid)",
		},
		[]string{"analysis"},
	)

	reorders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "booklet",
			Name:      "reorders_total",
			Help:      "Settled reorders by result (ready, failed)",
		},
		[]string{"result"},
	)

	reorderLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "booklet",
			Name:      "reorder_duration_seconds",
			Help:      "Time from processing start to settlement",
			Buckets:   prometheus.DefBuckets,
		},
	)

	queueEntries = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "booklet",
			Name:      "queue_entries",
			Help:      "Current queue entries by status",
		},
		[]string{"status"},
	)

	registerOnce sync.Once
)

// Init registers collectors. Safe to call more than once.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(entriesAdded, reorders, reorderLatency, queueEntries)
	})
}

// Handler returns the http.Handler for /metrics
func Handler() http.Handler { return promhttp.Handler() }

func IncAdded(valid bool) {
	if valid {
		entriesAdded.WithLabelValues("valid").Inc()
		return
	}
	entriesAdded.WithLabelValues("invalid").Inc()
}

func ObserveReorder(result string, dur time.Duration) {
	reorders.WithLabelValues(result).Inc()
	reorderLatency.Observe(dur.Seconds())
}

func SetQueueEntries(status string, v int) { queueEntries.WithLabelValues(status).Set(float64(v)) }

// Observer feeds engine transitions into the collectors. It keeps its own
// view of entry statuses to maintain the per-status gauge.
type Observer struct {
	mu     sync.Mutex
	status map[string]batch.Status
}

func NewObserver() *Observer {
	o := &Observer{status: map[string]batch.Status{}}
	for _, st := range []batch.Status{batch.StatusIdle, batch.StatusProcessing, batch.StatusReady, batch.StatusFailed} {
		SetQueueEntries(string(st), 0)
	}
	return o
}

func (o *Observer) EntryChanged(e batch.Entry) {
	o.mu.Lock()
	defer o.mu.Unlock()

	prev, known := o.status[e.ID]
	if known && prev == e.Status {
		return
	}
	if !known {
		IncAdded(e.Analysis.Valid)
	}
	if e.Status.Terminal() && e.StartedAt != nil && e.SettledAt != nil {
		ObserveReorder(string(e.Status), e.SettledAt.Sub(*e.StartedAt))
	}
	o.status[e.ID] = e.Status
	o.refresh()
}

func (o *Observer) EntryRemoved(e batch.Entry) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.status, e.ID)
	o.refresh()
}

func (o *Observer) refresh() {
	counts := map[batch.Status]int{
		batch.StatusIdle:       0,
		batch.StatusProcessing: 0,
		batch.StatusReady:      0,
		batch.StatusFailed:     0,
	}
	for _, st := range o.status {
		counts[st]++
	}
	for st, n := range counts {
		SetQueueEntries(string(st), n)
	}
}
