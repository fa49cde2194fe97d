package statuscheck

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"
)

// RedisPinger models the minimal Redis capability we need for status checks.
type RedisPinger interface {
	Ping(ctx context.Context) error
}

// BucketHeader is satisfied by storage.S3Client.
type BucketHeader interface {
	HeadBucket(ctx context.Context) error
}

// Checker aggregates health checks for the dependencies of the service.
type Checker struct {
	redis     RedisPinger
	s3        BucketHeader
	exportDir string
	uploadDir string
	pdf       func(ctx context.Context) error
}

// Options configures the Checker. Nil dependencies are reported as not configured.
type Options struct {
	Redis     RedisPinger
	S3        BucketHeader
	ExportDir string
	UploadDir string
	// PDFEngine runs a self-test of the document library.
	PDFEngine func(ctx context.Context) error
}

// Status represents the readiness of a subsystem.
type Status struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// Summary bundles all subsystem statuses.
type Summary struct {
	Redis     Status `json:"redis"`
	S3        Status `json:"s3"`
	PDFEngine Status `json:"pdf_engine"`
	Uploads   Status `json:"uploads"`
	Exports   Status `json:"exports"`
}

// New creates a new Checker with the provided options.
func New(opts Options) *Checker {
	return &Checker{
		redis:     opts.Redis,
		s3:        opts.S3,
		exportDir: opts.ExportDir,
		uploadDir: opts.UploadDir,
		pdf:       opts.PDFEngine,
	}
}

// Summary returns the current status snapshot.
func (c *Checker) Summary(ctx context.Context) Summary {
	return Summary{
		Redis:     c.checkRedis(ctx),
		S3:        c.checkS3(ctx),
		PDFEngine: c.checkPDF(ctx),
		Uploads:   checkDir(c.uploadDir),
		Exports:   checkDir(c.exportDir),
	}
}

func (c *Checker) checkRedis(ctx context.Context) Status {
	if c.redis == nil {
		return Status{OK: false, Message: "Not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := c.redis.Ping(ctx); err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	return Status{OK: true, Message: "Connected"}
}

func (c *Checker) checkS3(ctx context.Context) Status {
	if c.s3 == nil {
		return Status{OK: false, Message: "Bucket not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := c.s3.HeadBucket(ctx); err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	return Status{OK: true, Message: "Connected"}
}

func (c *Checker) checkPDF(ctx context.Context) Status {
	if c.pdf == nil {
		return Status{OK: false, Message: "Not configured"}
	}
	if err := c.pdf(ctx); err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	return Status{OK: true, Message: "Available"}
}

// checkDir verifies dir exists or can be created and accepts writes.
func checkDir(dir string) Status {
	if dir == "" {
		return Status{OK: false, Message: "Not configured"}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	f, err := os.CreateTemp(dir, ".statuscheck-*")
	if err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	name := f.Name()
	_ = f.Close()
	_ = os.Remove(name)
	return Status{OK: true, Message: "Writable: " + filepath.Clean(dir)}
}

func trimError(err error) string {
	if err == nil {
		return ""
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	msg := err.Error()
	if len(msg) > 120 {
		return msg[:120]
	}
	return msg
}
