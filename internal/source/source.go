// Package source holds references to the original content of queued files.
package source

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Loader returns the full content behind a reference.
type Loader func(ctx context.Context) ([]byte, error)

// Ref is an opaque reference to a file's original bytes plus the display
// data shown alongside a queue entry.
type Ref struct {
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	Location string `json:"location,omitempty"`
	load     Loader
}

// New builds a Ref around an arbitrary loader.
func New(name, location string, size int64, load Loader) Ref {
	return Ref{Name: name, Size: size, Location: location, load: load}
}

// Bytes loads the referenced content.
func (r Ref) Bytes(ctx context.Context) ([]byte, error) {
	if r.load == nil {
		return nil, errors.New("source reference has no loader")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.load(ctx)
}

// SizeMB is the size in megabytes, as shown in queue listings.
func (r Ref) SizeMB() float64 { return float64(r.Size) / 1024 / 1024 }

// FromBytes keeps data in memory. The slice is copied.
func FromBytes(name string, data []byte) Ref {
	buf := append([]byte(nil), data...)
	return New(name, "memory:"+name, int64(len(buf)), func(context.Context) ([]byte, error) {
		return buf, nil
	})
}

// FromPath references a local file. The file is re-read on every load so a
// staged upload is not held in memory between operations.
func FromPath(path string) (Ref, error) {
	path = strings.TrimPrefix(path, "file://")
	info, err := os.Stat(path)
	if err != nil {
		return Ref{}, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return Ref{}, fmt.Errorf("%s is a directory", path)
	}
	return New(filepath.Base(path), "file://"+path, info.Size(), func(context.Context) ([]byte, error) {
		return os.ReadFile(path)
	}), nil
}

// FromStaged references a staged upload stored at path but displayed as name.
func FromStaged(name, path string) (Ref, error) {
	r, err := FromPath(path)
	if err != nil {
		return Ref{}, err
	}
	r.Name = name
	return r, nil
}
