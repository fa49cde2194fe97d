// Package server exposes the batch queue over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/bookletreorder/internal/batch"
	"github.com/local/bookletreorder/internal/document"
	"github.com/local/bookletreorder/internal/export"
	"github.com/local/bookletreorder/internal/source"
	"github.com/local/bookletreorder/internal/statuscheck"
)

// Dependencies are the collaborators behind the routes. Status, Metrics and
// Resolver are optional.
type Dependencies struct {
	Engine   *batch.Engine
	Exporter *export.Exporter
	Stager   *Stager
	Resolver *source.Resolver
	Renderer document.Renderer
	Status   *statuscheck.Checker
	Metrics  http.Handler
}

// Options bounds request handling.
type Options struct {
	MaxUploadMB int64
	// AllowLocalRefs lets POST /queue/refs name files on the server's disk.
	AllowLocalRefs bool
}

type Server struct {
	deps Dependencies
	opts Options
}

func New(deps Dependencies, opts Options) *Server {
	if opts.MaxUploadMB <= 0 {
		opts.MaxUploadMB = 64
	}
	return &Server{deps: deps, opts: opts}
}

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /status", s.handleStatus)
	if s.deps.Metrics != nil {
		mux.Handle("GET /metrics", s.deps.Metrics)
	}

	mux.HandleFunc("POST /queue/files", s.handleAddFiles)
	mux.HandleFunc("POST /queue/refs", s.handleAddRefs)
	mux.HandleFunc("GET /queue", s.handleList)
	mux.HandleFunc("DELETE /queue", s.handleReset)
	mux.HandleFunc("POST /queue/process_all", s.handleProcessAll)
	mux.HandleFunc("POST /queue/download_all", s.handleDownloadAll)
	mux.HandleFunc("GET /queue/{id}", s.handleGet)
	mux.HandleFunc("DELETE /queue/{id}", s.handleRemove)
	mux.HandleFunc("POST /queue/{id}/process", s.handleProcess)
	mux.HandleFunc("GET /queue/{id}/download", s.handleDownload)
	mux.HandleFunc("POST /queue/{id}/export", s.handleExport)
	mux.HandleFunc("GET /queue/{id}/preview", s.handlePreview)
}

// Handler returns a mux with every route registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return mux
}

type rejected struct {
	Name  string `json:"name"`
	Error string `json:"error"`
}

type addResp struct {
	Added    []entryView `json:"added"`
	Rejected []rejected  `json:"rejected"`
}

func (s *Server) handleAddFiles(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadMB<<20)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d MB", s.opts.MaxUploadMB))
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	files := r.MultipartForm.File["file"]
	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, "missing file")
		return
	}

	resp := addResp{Added: []entryView{}, Rejected: []rejected{}}
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			resp.Rejected = append(resp.Rejected, rejected{Name: fh.Filename, Error: err.Error()})
			continue
		}
		ref, err := s.deps.Stager.Stage(fh.Filename, f)
		f.Close()
		if err != nil {
			log.Error().Err(err).Str("file", fh.Filename).Msg("failed to stage upload")
			resp.Rejected = append(resp.Rejected, rejected{Name: fh.Filename, Error: err.Error()})
			continue
		}
		s.add(r.Context(), ref, &resp)
	}
	writeAdded(w, resp)
}

type refsReq struct {
	Refs []string `json:"refs"`
}

func (s *Server) handleAddRefs(w http.ResponseWriter, r *http.Request) {
	if s.deps.Resolver == nil {
		writeError(w, http.StatusNotImplemented, "references are not enabled")
		return
	}
	defer r.Body.Close()
	var req refsReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if len(req.Refs) == 0 {
		writeError(w, http.StatusBadRequest, "missing refs")
		return
	}

	resp := addResp{Added: []entryView{}, Rejected: []rejected{}}
	for _, raw := range req.Refs {
		if !s.opts.AllowLocalRefs && !isRemote(raw) {
			resp.Rejected = append(resp.Rejected, rejected{Name: raw, Error: "local references are not allowed"})
			continue
		}
		ref, err := s.deps.Resolver.Resolve(r.Context(), raw)
		if err != nil {
			log.Warn().Err(err).Str("ref", raw).Msg("failed to resolve reference")
			resp.Rejected = append(resp.Rejected, rejected{Name: raw, Error: err.Error()})
			continue
		}
		s.add(r.Context(), ref, &resp)
	}
	writeAdded(w, resp)
}

func isRemote(ref string) bool {
	ref = strings.TrimSpace(ref)
	return strings.HasPrefix(ref, "s3://") || strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")
}

// add queues ref; a file that cannot be read is reported and not queued.
func (s *Server) add(ctx context.Context, ref source.Ref, resp *addResp) {
	en, err := s.deps.Engine.AddEntry(ctx, ref)
	if err != nil {
		if s.deps.Stager != nil {
			s.deps.Stager.Discard(ref)
		}
		resp.Rejected = append(resp.Rejected, rejected{Name: ref.Name, Error: err.Error()})
		return
	}
	resp.Added = append(resp.Added, viewEntry(en, false))
}

func writeAdded(w http.ResponseWriter, resp addResp) {
	code := http.StatusCreated
	if len(resp.Added) == 0 {
		code = http.StatusUnprocessableEntity
	}
	writeJSON(w, code, resp)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, viewQueue(s.deps.Engine.Entries()))
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	en, ok := s.deps.Engine.Get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	writeJSON(w, http.StatusOK, viewEntry(en, true))
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	en, attempted := s.deps.Engine.ProcessEntry(r.Context(), id)
	if !attempted {
		if en.ID == "" {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		writeJSON(w, http.StatusConflict, map[string]any{
			"error": "entry cannot be processed",
			"entry": viewEntry(en, false),
		})
		return
	}
	writeJSON(w, http.StatusOK, viewEntry(en, false))
}

func (s *Server) handleProcessAll(w http.ResponseWriter, r *http.Request) {
	sum := s.deps.Engine.ProcessAll(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"summary": sum,
		"queue":   viewQueue(s.deps.Engine.Entries()),
	})
}

func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	if !s.deps.Engine.RemoveEntry(r.PathValue("id")) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	n := s.deps.Engine.ResetAll()
	writeJSON(w, http.StatusOK, map[string]any{"removed": n})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	en, ok := s.deps.Engine.Get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if en.Status != batch.StatusReady {
		writeError(w, http.StatusConflict, "not ready")
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.Name(en.Source.Name)))
	w.Header().Set("Content-Length", strconv.Itoa(len(en.Result)))
	_, _ = w.Write(en.Result)
}

func (s *Server) handleDownloadAll(w http.ResponseWriter, r *http.Request) {
	if s.deps.Exporter == nil {
		writeError(w, http.StatusNotImplemented, "export is not configured")
		return
	}
	results, err := s.deps.Exporter.All(r.Context())
	resp := map[string]any{"results": results}
	if results == nil {
		resp["results"] = []export.Result{}
	}
	if err != nil {
		resp["error"] = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleExport writes one ready entry to the configured sink.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if s.deps.Exporter == nil {
		writeError(w, http.StatusNotImplemented, "export is not configured")
		return
	}
	res, err := s.deps.Exporter.One(r.Context(), r.PathValue("id"))
	switch {
	case errors.Is(err, export.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, export.ErrNotReady):
		writeError(w, http.StatusConflict, err.Error())
	case err != nil:
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		writeJSON(w, http.StatusOK, res)
	}
}

// handlePreview renders one page as JPEG: the reordered document once the
// entry is ready, the original scan before that.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	en, ok := s.deps.Engine.Get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	page := 1
	if v := r.URL.Query().Get("page"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil || p < 1 {
			writeError(w, http.StatusBadRequest, "invalid page")
			return
		}
		page = p
	}
	gray := r.URL.Query().Get("gray") == "1" || r.URL.Query().Get("gray") == "true"

	data, origin := en.Result, "reordered"
	if en.Status != batch.StatusReady {
		b, err := en.Source.Bytes(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to read source")
			return
		}
		data, origin = b, "original"
	}
	if page > en.Analysis.TotalPages {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("page %d out of range (document has %d pages)", page, en.Analysis.TotalPages))
		return
	}

	start := time.Now()
	img, _, _, err := s.deps.Renderer.RenderJPEG(data, page, gray)
	if err != nil {
		log.Warn().Err(err).Str("entry_id", en.ID).Int("page", page).Msg("preview failed")
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	log.Debug().Str("entry_id", en.ID).Int("page", page).Dur("duration", time.Since(start)).Msg("preview rendered")
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("X-Preview-Source", origin)
	_, _ = w.Write(img)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.deps.Status == nil {
		writeError(w, http.StatusNotImplemented, "status checks are not configured")
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Status.Summary(r.Context()))
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
