package server

import (
	"bytes"
	"context"
	"encoding/json"
	"image/jpeg"
	"io"
	"maps"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/local/bookletreorder/internal/batch"
	"github.com/local/bookletreorder/internal/document"
	"github.com/local/bookletreorder/internal/export"
	"github.com/local/bookletreorder/internal/pdftest"
	"github.com/local/bookletreorder/internal/source"
)

type harness struct {
	srv       *httptest.Server
	engine    *batch.Engine
	uploadDir string
	exportDir string
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	dir := t.TempDir()
	stager, err := NewStager(filepath.Join(dir, "uploads"))
	if err != nil {
		t.Fatalf("NewStager failed: %v", err)
	}
	engine := batch.New(document.NewPDFModel(), batch.Options{Observers: []batch.Observer{stager}})
	exportDir := filepath.Join(dir, "results")
	s := New(Dependencies{
		Engine:   engine,
		Exporter: export.New(engine, export.LocalSink{Dir: exportDir}),
		Stager:   stager,
		Resolver: source.NewResolver("", 0),
		Renderer: document.Renderer{DPI: 36},
	}, opts)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return &harness{srv: srv, engine: engine, uploadDir: filepath.Join(dir, "uploads"), exportDir: exportDir}
}

func (h *harness) upload(t *testing.T, files map[string][]byte) (*http.Response, addResp) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, name := range slices.Sorted(maps.Keys(files)) {
		fw, err := mw.CreateFormFile("file", name)
		if err != nil {
			t.Fatal(err)
		}
		_, _ = fw.Write(files[name])
	}
	_ = mw.Close()
	resp, err := http.Post(h.srv.URL+"/queue/files", mw.FormDataContentType(), &body)
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	defer resp.Body.Close()
	var out addResp
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func (h *harness) do(t *testing.T, method, path string, v any) *http.Response {
	t.Helper()
	req, _ := http.NewRequest(method, h.srv.URL+path, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	if v != nil {
		defer resp.Body.Close()
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatalf("%s %s: decode: %v", method, path, err)
		}
	}
	return resp
}

func stagedFiles(t *testing.T, dir string) int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	return len(entries)
}

func TestUploadProcessDownload(t *testing.T) {
	h := newHarness(t, Options{})
	resp, added := h.upload(t, map[string][]byte{
		"a.pdf":     pdftest.ScannedBooklet(8),
		"b.pdf":     pdftest.ScannedBooklet(6),
		"notes.txt": []byte("just some notes"),
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	if len(added.Added) != 2 || len(added.Rejected) != 1 || added.Rejected[0].Name != "notes.txt" {
		t.Fatalf("unexpected add response %#v", added)
	}
	if stagedFiles(t, h.uploadDir) != 2 {
		t.Fatal("rejected upload should not stay staged")
	}

	var q queueView
	h.do(t, http.MethodGet, "/queue", &q)
	if len(q.Entries) != 2 || !q.AnyToProcess || q.AnyProcessed {
		t.Fatalf("unexpected queue %#v", q)
	}
	if q.Entries[1].Valid || !strings.Contains(q.Entries[1].Error, "You have 6 pages") {
		t.Fatalf("unexpected invalid entry %#v", q.Entries[1])
	}

	a := added.Added[0]
	var detail entryView
	h.do(t, http.MethodGet, "/queue/"+a.ID, &detail)
	if len(detail.Mappings) != 8 || detail.Mappings[0] != (mappingView{ScanPosition: 2, TargetPage: 1}) {
		t.Fatalf("unexpected mappings %#v", detail.Mappings)
	}

	if r := h.do(t, http.MethodGet, "/queue/"+a.ID+"/download", nil); r.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 before processing, got %d", r.StatusCode)
	}
	if r := h.do(t, http.MethodPost, "/queue/"+a.ID+"/export", nil); r.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 for export before processing, got %d", r.StatusCode)
	}

	var processed entryView
	if r := h.do(t, http.MethodPost, "/queue/"+a.ID+"/process", &processed); r.StatusCode != http.StatusOK {
		t.Fatalf("process returned %d", r.StatusCode)
	}
	if processed.Status != batch.StatusReady || processed.DownloadName != "Sequential_a.pdf" {
		t.Fatalf("unexpected processed entry %#v", processed)
	}

	r := h.do(t, http.MethodGet, "/queue/"+a.ID+"/download", nil)
	defer r.Body.Close()
	if cd := r.Header.Get("Content-Disposition"); !strings.Contains(cd, `filename="Sequential_a.pdf"`) {
		t.Fatalf("unexpected Content-Disposition %q", cd)
	}
	pdf, _ := io.ReadAll(r.Body)
	dims, err := api.PageDims(bytes.NewReader(pdf), nil)
	if err != nil || len(dims) != 8 {
		t.Fatalf("downloaded document unreadable: %v", err)
	}
	for i, d := range dims {
		if d.Width != float64(pdftest.WidthFor(i+1)) {
			t.Fatalf("page %d out of order (width %v)", i+1, d.Width)
		}
	}

	var exported export.Result
	if r := h.do(t, http.MethodPost, "/queue/"+a.ID+"/export", &exported); r.StatusCode != http.StatusOK {
		t.Fatalf("export returned %d", r.StatusCode)
	}
	if exported.Name != "Sequential_a.pdf" || exported.Location != filepath.Join(h.exportDir, "Sequential_a.pdf") {
		t.Fatalf("unexpected export result %#v", exported)
	}
	if b, err := os.ReadFile(exported.Location); err != nil || !bytes.Equal(b, pdf) {
		t.Fatalf("exported file differs from download: %v", err)
	}
	if r := h.do(t, http.MethodPost, "/queue/nope/export", nil); r.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for export, got %d", r.StatusCode)
	}

	if r := h.do(t, http.MethodPost, "/queue/"+a.ID+"/process", nil); r.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 for settled entry, got %d", r.StatusCode)
	}
	if r := h.do(t, http.MethodPost, "/queue/"+added.Added[1].ID+"/process", nil); r.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 for invalid entry, got %d", r.StatusCode)
	}
	if r := h.do(t, http.MethodPost, "/queue/nope/process", nil); r.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", r.StatusCode)
	}
}

func TestProcessAllAndDownloadAll(t *testing.T) {
	h := newHarness(t, Options{})
	h.upload(t, map[string][]byte{
		"a.pdf": pdftest.ScannedBooklet(8),
		"b.pdf": pdftest.ScannedBooklet(7),
		"c.pdf": pdftest.ScannedBooklet(4),
	})

	var out struct {
		Summary batch.Summary `json:"summary"`
		Queue   queueView     `json:"queue"`
	}
	h.do(t, http.MethodPost, "/queue/process_all", &out)
	if out.Summary != (batch.Summary{Attempted: 2, Ready: 2, Skipped: 1}) {
		t.Fatalf("unexpected summary %#v", out.Summary)
	}
	if !out.Queue.AnyProcessed || out.Queue.AnyToProcess || out.Queue.Counts[batch.StatusReady] != 2 {
		t.Fatalf("unexpected queue %#v", out.Queue)
	}

	var dl struct {
		Results []export.Result `json:"results"`
		Error   string          `json:"error"`
	}
	h.do(t, http.MethodPost, "/queue/download_all", &dl)
	if dl.Error != "" || len(dl.Results) != 2 {
		t.Fatalf("unexpected download_all response %#v", dl)
	}
	for _, name := range []string{"Sequential_a.pdf", "Sequential_c.pdf"} {
		if _, err := os.Stat(filepath.Join(h.exportDir, name)); err != nil {
			t.Fatalf("%s not exported: %v", name, err)
		}
	}
	if _, err := os.Stat(filepath.Join(h.exportDir, "Sequential_b.pdf")); !os.IsNotExist(err) {
		t.Fatal("invalid entry should not be exported")
	}
}

func TestRemoveAndReset(t *testing.T) {
	h := newHarness(t, Options{})
	_, added := h.upload(t, map[string][]byte{
		"a.pdf": pdftest.ScannedBooklet(4),
		"b.pdf": pdftest.ScannedBooklet(8),
	})

	if r := h.do(t, http.MethodDelete, "/queue/"+added.Added[0].ID, nil); r.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", r.StatusCode)
	}
	if r := h.do(t, http.MethodDelete, "/queue/"+added.Added[0].ID, nil); r.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 on second delete, got %d", r.StatusCode)
	}
	if stagedFiles(t, h.uploadDir) != 1 {
		t.Fatal("staged file not removed with its entry")
	}

	var reset map[string]int
	h.do(t, http.MethodDelete, "/queue", &reset)
	if reset["removed"] != 1 || h.engine.Len() != 0 {
		t.Fatalf("unexpected reset %#v", reset)
	}
	if stagedFiles(t, h.uploadDir) != 0 {
		t.Fatal("staged files left after reset")
	}
}

func TestUploadTooLarge(t *testing.T) {
	h := newHarness(t, Options{MaxUploadMB: 1})
	resp, _ := h.upload(t, map[string][]byte{"big.pdf": bytes.Repeat([]byte("x"), 2<<20)})
	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", resp.StatusCode)
	}
}

func TestUploadNothingReadable(t *testing.T) {
	h := newHarness(t, Options{})
	resp, out := h.upload(t, map[string][]byte{"x.pdf": []byte("%PDF-1.4 broken")})
	if resp.StatusCode != http.StatusUnprocessableEntity || len(out.Rejected) != 1 {
		t.Fatalf("expected 422 with one rejection, got %d %#v", resp.StatusCode, out)
	}
}

func TestAddRefs(t *testing.T) {
	remote := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(pdftest.ScannedBooklet(12))
	}))
	defer remote.Close()

	local := filepath.Join(t.TempDir(), "local.pdf")
	if err := os.WriteFile(local, pdftest.ScannedBooklet(4), 0o644); err != nil {
		t.Fatal(err)
	}

	h := newHarness(t, Options{})
	body, _ := json.Marshal(refsReq{Refs: []string{remote.URL + "/scans/remote.pdf", local}})
	resp, err := http.Post(h.srv.URL+"/queue/refs", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var out addResp
	_ = json.NewDecoder(resp.Body).Decode(&out)
	if resp.StatusCode != http.StatusCreated || len(out.Added) != 1 || len(out.Rejected) != 1 {
		t.Fatalf("unexpected response %d %#v", resp.StatusCode, out)
	}
	if out.Added[0].Name != "remote.pdf" || out.Added[0].TotalPages != 12 {
		t.Fatalf("unexpected entry %#v", out.Added[0])
	}

	h2 := newHarness(t, Options{AllowLocalRefs: true})
	body, _ = json.Marshal(refsReq{Refs: []string{local}})
	resp2, err := http.Post(h2.srv.URL+"/queue/refs", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusCreated {
		t.Fatalf("expected local ref to be accepted, got %d", resp2.StatusCode)
	}
}

func TestPreview(t *testing.T) {
	h := newHarness(t, Options{})
	_, added := h.upload(t, map[string][]byte{"a.pdf": pdftest.ScannedBooklet(4)})
	id := added.Added[0].ID

	r := h.do(t, http.MethodGet, "/queue/"+id+"/preview?page=1", nil)
	r.Body.Close()
	if r.StatusCode != http.StatusOK || r.Header.Get("X-Preview-Source") != "original" {
		t.Fatalf("unexpected preview before processing: %d %q", r.StatusCode, r.Header.Get("X-Preview-Source"))
	}

	h.do(t, http.MethodPost, "/queue/"+id+"/process", nil)
	r = h.do(t, http.MethodGet, "/queue/"+id+"/preview?page=2&gray=1", nil)
	defer r.Body.Close()
	if r.StatusCode != http.StatusOK || r.Header.Get("X-Preview-Source") != "reordered" {
		t.Fatalf("unexpected preview after processing: %d", r.StatusCode)
	}
	if _, err := jpeg.DecodeConfig(r.Body); err != nil {
		t.Fatalf("preview is not a JPEG: %v", err)
	}

	for _, q := range []string{"page=0", "page=x", "page=5"} {
		r := h.do(t, http.MethodGet, "/queue/"+id+"/preview?"+q, nil)
		r.Body.Close()
		if r.StatusCode != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", q, r.StatusCode)
		}
	}
}

func TestHealthAndUnconfiguredStatus(t *testing.T) {
	h := newHarness(t, Options{})
	r := h.do(t, http.MethodGet, "/health", nil)
	r.Body.Close()
	if r.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", r.StatusCode)
	}
	r = h.do(t, http.MethodGet, "/status", nil)
	r.Body.Close()
	if r.StatusCode != http.StatusNotImplemented {
		t.Fatalf("expected 501, got %d", r.StatusCode)
	}
}

func TestStagerCleanupKeepsLiveFiles(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStager(dir)
	if err != nil {
		t.Fatal(err)
	}
	ref, err := s.Stage(`C:\scans\live.pdf`, strings.NewReader("data"))
	if err != nil {
		t.Fatal(err)
	}
	if ref.Name != "live.pdf" {
		t.Fatalf("unexpected staged name %q", ref.Name)
	}
	orphan := filepath.Join(dir, "old_orphan.pdf")
	if err := os.WriteFile(orphan, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	if n := s.Cleanup(0); n != 1 {
		t.Fatalf("expected 1 removal, got %d", n)
	}
	if _, err := ref.Bytes(context.Background()); err != nil {
		t.Fatalf("live staged file removed: %v", err)
	}
	s.Discard(ref)
	if stagedFiles(t, dir) != 0 {
		t.Fatal("discarded file still on disk")
	}
	// references outside the upload dir are never touched
	outside := filepath.Join(t.TempDir(), "keep.pdf")
	_ = os.WriteFile(outside, []byte("x"), 0o644)
	s.Discard(source.New("keep.pdf", "file://"+outside, 1, nil))
	if _, err := os.Stat(outside); err != nil {
		t.Fatal("file outside upload dir removed")
	}
}
