package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/axiomhq/axiom-go/axiom"
	"github.com/axiomhq/axiom-go/axiom/ingest"
)

// axiomWriter forwards zerolog JSON lines to Axiom.
type axiomWriter struct {
	client  *axiomClient
	service string
}

func (w *axiomWriter) Write(p []byte) (int, error) {
	ev := axiomEvent(p, w.service)
	if ev == nil {
		return len(p), nil
	}
	w.client.Send(ev)
	return len(p), nil
}

// axiomEvent converts one JSON log line. Debug and trace lines yield nil.
func axiomEvent(p []byte, service string) axiom.Event {
	var ev map[string]any
	if err := json.Unmarshal(p, &ev); err != nil {
		ev = map[string]any{"message": string(p), "level": "info"}
	}
	if lvl, ok := ev["level"].(string); ok && (lvl == "debug" || lvl == "trace") {
		return nil
	}
	ev["service"] = service
	if _, ok := ev[ingest.TimestampField]; !ok {
		ev[ingest.TimestampField] = time.Now()
	}
	return axiom.Event(ev)
}

const (
	axiomBuffer    = 1000
	axiomBatchSize = 200
	axiomTimeout   = 15 * time.Second
)

// axiomClient ships events in batches of axiomBatchSize or every flush
// interval, whichever comes first. Events are dropped while the buffer is full.
type axiomClient struct {
	client  *axiom.Client
	dataset string
	events  chan axiom.Event
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
}

func newAxiomClient(token, orgID, dataset string, flushEvery time.Duration) (*axiomClient, error) {
	opts := []axiom.Option{axiom.SetToken(token)}
	if orgID != "" {
		opts = append(opts, axiom.SetOrganizationID(orgID))
	}
	c, err := axiom.NewClient(opts...)
	if err != nil {
		return nil, err
	}
	if dataset == "" {
		dataset = "dev_bookletreorder"
	}
	if flushEvery <= 0 {
		flushEvery = 10 * time.Second
	}
	ac := &axiomClient{
		client:  c,
		dataset: dataset,
		events:  make(chan axiom.Event, axiomBuffer),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go ac.run(flushEvery)
	return ac, nil
}

func (a *axiomClient) Send(ev axiom.Event) {
	select {
	case a.events <- ev:
	default:
	}
}

func (a *axiomClient) run(flushEvery time.Duration) {
	defer close(a.done)
	ticker := time.NewTicker(flushEvery)
	defer ticker.Stop()

	pending := make([]axiom.Event, 0, axiomBatchSize)
	for {
		select {
		case ev := <-a.events:
			if pending = append(pending, ev); len(pending) >= axiomBatchSize {
				pending = a.ingest(pending)
			}
		case <-ticker.C:
			pending = a.ingest(pending)
		case <-a.stop:
			for len(a.events) > 0 {
				pending = append(pending, <-a.events)
			}
			a.ingest(pending)
			return
		}
	}
}

// ingest sends events and returns the emptied slice for reuse.
func (a *axiomClient) ingest(events []axiom.Event) []axiom.Event {
	if len(events) == 0 {
		return events
	}
	ctx, cancel := context.WithTimeout(context.Background(), axiomTimeout)
	defer cancel()
	if _, err := a.client.IngestEvents(ctx, a.dataset, events); err != nil {
		fmt.Fprintf(os.Stderr, "axiom ingest: %v\n", err)
	}
	return events[:0]
}

// Close flushes pending events and stops the client.
func (a *axiomClient) Close() error {
	a.once.Do(func() { close(a.stop) })
	<-a.done
	return nil
}
