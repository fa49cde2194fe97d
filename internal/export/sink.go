package export

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/local/bookletreorder/internal/storage"
)

// LocalSink writes documents into a directory, creating it when missing.
type LocalSink struct {
	Dir string
}

func (s LocalSink) Put(ctx context.Context, name string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	dir := s.Dir
	if dir == "" {
		dir = filepath.Join("uploads", "results")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	p := filepath.Join(dir, filepath.Base(name))
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", p, err)
	}
	return p, nil
}

// Uploader is the part of storage.S3Client the S3 sink needs.
type Uploader interface {
	Bucket() string
	UploadFile(ctx context.Context, key string, data []byte, password string, meta *storage.FileMetadata) (string, error)
}

// S3Sink uploads documents under Prefix, encrypted when Password is set.
type S3Sink struct {
	Client   Uploader
	Prefix   string
	Password string
}

func (s S3Sink) Put(ctx context.Context, name string, data []byte) (string, error) {
	key := path.Join(s.Prefix, name)
	meta := &storage.FileMetadata{
		OriginalName: name,
		ContentType:  "application/pdf",
		Size:         int64(len(data)),
		Metadata:     map[string]string{"source": "booklet-reorder"},
	}
	loc, err := s.Client.UploadFile(ctx, key, data, s.Password, meta)
	if err != nil {
		return "", err
	}
	if loc == "" {
		loc = fmt.Sprintf("s3://%s/%s", s.Client.Bucket(), key)
	}
	return loc, nil
}
