package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/bookletreorder/internal/storage"
)

// S3Downloader is the part of storage.S3Client used to fetch sources.
type S3Downloader interface {
	DownloadFile(ctx context.Context, key, password string) ([]byte, *storage.FileMetadata, error)
}

// Resolver turns user supplied references (s3://, http(s)://, file://, or a
// bare path) into Refs.
type Resolver struct {
	HTTP     *http.Client
	S3       func(ctx context.Context, bucket string) (S3Downloader, error)
	Password string
	MaxBytes int64
}

// NewResolver returns a Resolver using the default AWS chain for S3.
func NewResolver(password string, maxBytes int64) *Resolver {
	return &Resolver{
		HTTP: &http.Client{Timeout: 60 * time.Second},
		S3: func(ctx context.Context, bucket string) (S3Downloader, error) {
			return storage.NewS3Client(ctx, bucket)
		},
		Password: password,
		MaxBytes: maxBytes,
	}
}

// Resolve dispatches on the reference scheme. Remote content is fetched once
// here and kept in memory.
func (r *Resolver) Resolve(ctx context.Context, ref string) (Ref, error) {
	ref = strings.TrimSpace(ref)
	if i := strings.Index(ref, "#"); i >= 0 {
		ref = ref[:i]
	}
	switch {
	case ref == "":
		return Ref{}, fmt.Errorf("empty reference")
	case strings.HasPrefix(ref, "s3://"):
		return r.fromS3(ctx, ref)
	case strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://"):
		return r.fromURL(ctx, ref)
	default:
		return FromPath(ref)
	}
}

func (r *Resolver) fromURL(ctx context.Context, raw string) (Ref, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, raw, nil)
	if err != nil {
		return Ref{}, err
	}
	client := r.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return Ref{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Ref{}, fmt.Errorf("http %d", resp.StatusCode)
	}
	var body io.Reader = resp.Body
	if r.MaxBytes > 0 {
		body = io.LimitReader(resp.Body, r.MaxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return Ref{}, err
	}
	if r.MaxBytes > 0 && int64(len(data)) > r.MaxBytes {
		return Ref{}, fmt.Errorf("download exceeds %d bytes", r.MaxBytes)
	}

	name := "download.pdf"
	if u, err := url.Parse(raw); err == nil {
		if base := path.Base(u.Path); base != "" && base != "/" && base != "." {
			name = base
		}
	}
	log.Info().Str("url", raw).Int("size", len(data)).Msg("downloaded source")
	out := FromBytes(name, data)
	out.Location = raw
	return out, nil
}

func (r *Resolver) fromS3(ctx context.Context, s3url string) (Ref, error) {
	bucket, key, err := storage.ParseURL(s3url)
	if err != nil {
		return Ref{}, err
	}
	if r.S3 == nil {
		return Ref{}, fmt.Errorf("s3 not configured")
	}
	cli, err := r.S3(ctx, bucket)
	if err != nil {
		return Ref{}, err
	}
	data, meta, err := cli.DownloadFile(ctx, key, r.Password)
	if err != nil {
		return Ref{}, err
	}
	if r.MaxBytes > 0 && int64(len(data)) > r.MaxBytes {
		return Ref{}, fmt.Errorf("download exceeds %d bytes", r.MaxBytes)
	}
	name := path.Base(key)
	if meta != nil && meta.OriginalName != "" {
		name = meta.OriginalName
	}
	out := FromBytes(name, data)
	out.Location = s3url
	return out, nil
}
