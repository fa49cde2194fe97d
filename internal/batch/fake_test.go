package batch

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/local/bookletreorder/internal/document"
	"github.com/local/bookletreorder/internal/source"
)

// fakeModel treats the bytes "name:pages" as a document.
type fakeModel struct {
	mu        sync.Mutex
	events    []string
	indices   map[string][]int
	builds    map[string]int
	fail      map[string]error
	panics    map[string]bool
	gates     map[string]*gate
	delay     time.Duration
	active    int
	maxActive int
}

type gate struct {
	started chan struct{}
	release chan struct{}
}

func newFakeModel() *fakeModel {
	return &fakeModel{
		indices: map[string][]int{},
		builds:  map[string]int{},
		fail:    map[string]error{},
		panics:  map[string]bool{},
		gates:   map[string]*gate{},
	}
}

// hold makes the build for name block until the returned gate is released.
func (m *fakeModel) hold(name string) *gate {
	g := &gate{started: make(chan struct{}), release: make(chan struct{})}
	m.mu.Lock()
	m.gates[name] = g
	m.mu.Unlock()
	return g
}

func (m *fakeModel) Open(_ context.Context, data []byte) (document.Document, error) {
	name, pages, ok := strings.Cut(string(data), ":")
	n, err := strconv.Atoi(pages)
	if !ok || err != nil {
		return nil, &document.LoadError{Err: errors.New("malformed fake document")}
	}
	return &fakeDoc{m: m, name: name, pages: n}, nil
}

type fakeDoc struct {
	m     *fakeModel
	name  string
	pages int
}

func (d *fakeDoc) PageCount() int { return d.pages }

func (d *fakeDoc) BuildReordered(_ context.Context, idx []int) ([]byte, error) {
	m := d.m
	m.mu.Lock()
	m.events = append(m.events, "start:"+d.name)
	m.builds[d.name]++
	m.indices[d.name] = append([]int(nil), idx...)
	m.active++
	if m.active > m.maxActive {
		m.maxActive = m.active
	}
	g := m.gates[d.name]
	failErr := m.fail[d.name]
	doPanic := m.panics[d.name]
	delay := m.delay
	m.mu.Unlock()

	if g != nil {
		close(g.started)
		<-g.release
	}
	if delay > 0 {
		time.Sleep(delay)
	}

	m.mu.Lock()
	m.active--
	m.events = append(m.events, "end:"+d.name)
	m.mu.Unlock()

	if doPanic {
		panic("boom")
	}
	if failErr != nil {
		return nil, &document.RebuildError{Reason: "corrupted", Err: failErr}
	}
	return []byte(fmt.Sprintf("reordered:%s:%v", d.name, idx)), nil
}

func (m *fakeModel) eventLog() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.events...)
}

func (m *fakeModel) buildCount(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.builds[name]
}

func fakeRef(name string, pages int) source.Ref {
	return source.FromBytes(name+".pdf", []byte(fmt.Sprintf("%s:%d", name, pages)))
}

// recorder is an Observer keeping every notification.
type recorder struct {
	mu      sync.Mutex
	changed []string
	removed []string
}

func (r *recorder) EntryChanged(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changed = append(r.changed, e.Source.Name+"="+string(e.Status))
}

func (r *recorder) EntryRemoved(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removed = append(r.removed, e.Source.Name)
}
