package server

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/local/bookletreorder/internal/batch"
	"github.com/local/bookletreorder/internal/source"
)

// Stager stores uploads on disk for the lifetime of their queue entry. It
// is a batch.Observer: removing an entry deletes its staged file.
type Stager struct {
	dir string

	mu   sync.Mutex
	live map[string]struct{}
}

func NewStager(dir string) (*Stager, error) {
	if dir == "" {
		dir = "uploads"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Stager{dir: filepath.Clean(dir), live: map[string]struct{}{}}, nil
}

// Stage copies r to a uniquely named file and returns a reference that
// displays as name.
func (s *Stager) Stage(name string, r io.Reader) (source.Ref, error) {
	base := uploadName(name)
	p := filepath.Join(s.dir, uuid.NewString()+"_"+base)
	out, err := os.Create(p)
	if err != nil {
		return source.Ref{}, fmt.Errorf("cannot save upload: %w", err)
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		os.Remove(p)
		return source.Ref{}, fmt.Errorf("write failed: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(p)
		return source.Ref{}, fmt.Errorf("write failed: %w", err)
	}

	ref, err := source.FromStaged(base, p)
	if err != nil {
		os.Remove(p)
		return source.Ref{}, err
	}
	s.mu.Lock()
	s.live[p] = struct{}{}
	s.mu.Unlock()
	return ref, nil
}

// Discard deletes the staged file behind ref, if this stager owns it.
func (s *Stager) Discard(ref source.Ref) {
	p, ok := s.owned(ref)
	if !ok {
		return
	}
	s.mu.Lock()
	delete(s.live, p)
	s.mu.Unlock()
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Str("path", p).Msg("failed to remove staged upload")
	}
}

func (s *Stager) owned(ref source.Ref) (string, bool) {
	if !strings.HasPrefix(ref.Location, "file://") {
		return "", false
	}
	p := filepath.Clean(strings.TrimPrefix(ref.Location, "file://"))
	return p, filepath.Dir(p) == s.dir
}

func (s *Stager) EntryChanged(batch.Entry) {}

func (s *Stager) EntryRemoved(e batch.Entry) { s.Discard(e.Source) }

// Cleanup removes files in the upload directory older than maxAge that no
// queue entry refers to, and returns how many were removed.
func (s *Stager) Cleanup(maxAge time.Duration) int {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		log.Warn().Err(err).Str("dir", s.dir).Msg("upload cleanup failed")
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	removed := 0
	for _, de := range entries {
		if de.IsDir() {
			continue
		}
		p := filepath.Join(s.dir, de.Name())
		if _, ok := s.live[p]; ok {
			continue
		}
		info, err := de.Info()
		if err != nil || now.Sub(info.ModTime()) < maxAge {
			continue
		}
		if err := os.Remove(p); err == nil {
			removed++
		}
	}
	if removed > 0 {
		log.Info().Int("removed", removed).Str("dir", s.dir).Msg("stale uploads removed")
	}
	return removed
}

func uploadName(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if base == "." || base == "/" || base == "" {
		return "upload.pdf"
	}
	return base
}
