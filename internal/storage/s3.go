package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
)

// S3Client wraps the AWS S3 client for one bucket.
type S3Client struct {
	client     *s3.Client
	uploader   *manager.Uploader
	bucketName string
}

// FileMetadata represents metadata about a stored file
type FileMetadata struct {
	OriginalName string            `json:"original_name"`
	ContentType  string            `json:"content_type"`
	Size         int64             `json:"size"`
	Encrypted    bool              `json:"encrypted"`
	Metadata     map[string]string `json:"metadata"`
}

// NewS3Client creates a new S3 client
func NewS3Client(ctx context.Context, bucketName string) (*S3Client, error) {
	cfg, err := awscfg.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	cli := s3.NewFromConfig(cfg)
	return &S3Client{
		client:     cli,
		uploader:   manager.NewUploader(cli),
		bucketName: bucketName,
	}, nil
}

// Bucket returns the bucket this client is bound to.
func (s *S3Client) Bucket() string { return s.bucketName }

// ParseURL splits s3://bucket/key.
func ParseURL(s3url string) (bucket, key string, err error) {
	path := strings.TrimPrefix(s3url, "s3://")
	slash := strings.Index(path, "/")
	if !strings.HasPrefix(s3url, "s3://") || slash <= 0 || slash == len(path)-1 {
		return "", "", fmt.Errorf("invalid s3 url: %s", s3url)
	}
	return path[:slash], path[slash+1:], nil
}

// DownloadFile fetches key and, when the object is encrypted and a password
// is given, decrypts it.
func (s *S3Client) DownloadFile(ctx context.Context, key, password string) ([]byte, *FileMetadata, error) {
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to download from S3: %w", err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read S3 object: %w", err)
	}

	meta := &FileMetadata{Metadata: make(map[string]string)}
	for k, v := range result.Metadata {
		meta.Metadata[strings.ToLower(k)] = v
	}
	meta.OriginalName = meta.Metadata["name"]
	if result.ContentType != nil {
		meta.ContentType = *result.ContentType
	}

	if IsEncrypted(data) {
		meta.Encrypted = true
		if password == "" {
			return nil, nil, fmt.Errorf("object %s is encrypted and no password was given", key)
		}
		data, err = Decrypt(data, password)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to decrypt data: %w", err)
		}
	}
	meta.Size = int64(len(data))

	log.Info().
		Str("bucket", s.bucketName).
		Str("key", key).
		Bool("encrypted", meta.Encrypted).
		Int("size", len(data)).
		Msg("downloaded file from S3")
	return data, meta, nil
}

// UploadFile stores data under key, encrypting it first when password is set.
// Returns the object location reported by the uploader.
func (s *S3Client) UploadFile(ctx context.Context, key string, data []byte, password string, meta *FileMetadata) (string, error) {
	body := data
	s3meta := map[string]string{}
	if password != "" {
		enc, err := Encrypt(data, password)
		if err != nil {
			return "", fmt.Errorf("failed to encrypt data: %w", err)
		}
		body = enc
		s3meta["encrypted"] = "true"
	}
	contentType := "application/pdf"
	if meta != nil {
		if meta.OriginalName != "" {
			s3meta["name"] = meta.OriginalName
		}
		if meta.ContentType != "" {
			contentType = meta.ContentType
		}
		for k, v := range meta.Metadata {
			s3meta[k] = v
		}
	}

	out, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucketName),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
		Metadata:    s3meta,
	})
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("S3 upload failed")
		return "", fmt.Errorf("failed to upload to S3: %w", err)
	}

	log.Info().Str("key", key).Bool("encrypted", password != "").Int("size", len(body)).Msg("uploaded file to S3")
	return out.Location, nil
}

// HeadBucket checks the bucket is reachable.
func (s *S3Client) HeadBucket(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucketName)})
	return err
}
