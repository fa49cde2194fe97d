package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
	Level      string
	Pretty     bool
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// AxiomConfig holds Axiom logging configuration.
type AxiomConfig struct {
	Send          bool
	APIKey        string
	OrgID         string
	Dataset       string
	FlushInterval time.Duration
}

// EngineConfig controls the batch engine.
type EngineConfig struct {
	// Concurrency is the number of reorders process-all runs at once.
	Concurrency int
}

// ServerConfig holds HTTP surface settings.
type ServerConfig struct {
	Port         string
	UploadDir    string
	MaxUploadMB  int64
	UploadMaxAge time.Duration
	// SourcePassword decrypts encrypted S3 sources added by reference.
	SourcePassword string
	AllowLocalRefs bool
}

// ExportConfig selects where download-all writes documents. A bucket
// takes precedence over the local directory.
type ExportConfig struct {
	Dir      string
	S3Bucket string
	S3Prefix string
	Password string
}

// StatusConfig controls the Redis status mirror.
type StatusConfig struct {
	Enabled  bool
	RedisURL string
	TTL      time.Duration
}

// PreviewConfig controls page preview rendering.
type PreviewConfig struct {
	DPI     int
	Quality int
}

// Config is the top-level configuration.
type Config struct {
	Logging LoggingConfig
	Axiom   AxiomConfig
	Engine  EngineConfig
	Server  ServerConfig
	Export  ExportConfig
	Status  StatusConfig
	Preview PreviewConfig
}

// LoadDotEnv reads variables from the given files (".env" by default)
// without overriding ones already set. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

// FromEnv loads configuration from environment with sensible defaults.
func FromEnv() Config {
	cfg := Config{}

	cfg.Logging = LoggingConfig{
		Level:      getEnv("LOG_LEVEL", "info"),
		Pretty:     parseBool(getEnv("LOG_PRETTY", devDefaultPretty())),
		File:       getEnv("LOG_FILE", "logs/bookletreorder.log"),
		MaxSizeMB:  parseInt(getEnv("LOG_MAX_SIZE_MB", "100"), 100),
		MaxBackups: parseInt(getEnv("LOG_MAX_BACKUPS", "10"), 10),
		MaxAgeDays: parseInt(getEnv("LOG_MAX_AGE_DAYS", "30"), 30),
		Compress:   parseBool(getEnv("LOG_COMPRESS", "true")),
	}

	baseDataset := getEnv("AXIOM_DATASET", "dev")
	cfg.Axiom = AxiomConfig{
		Send:          parseBool(getEnv("SEND_LOGS_TO_AXIOM", "0")),
		APIKey:        getEnv("AXIOM_API_KEY", ""),
		OrgID:         getEnv("AXIOM_ORG_ID", ""),
		Dataset:       baseDataset + "_bookletreorder",
		FlushInterval: parseDuration(getEnv("AXIOM_FLUSH_INTERVAL", "10s"), 10*time.Second),
	}

	cfg.Engine = EngineConfig{
		Concurrency: parseInt(getEnv("ENGINE_CONCURRENCY", "1"), 1),
	}
	if cfg.Engine.Concurrency < 1 {
		cfg.Engine.Concurrency = 1
	}

	cfg.Server = ServerConfig{
		Port:           getEnv("PORT", "8080"),
		UploadDir:      getEnv("UPLOAD_DIR", "uploads"),
		MaxUploadMB:    int64(parseInt(getEnv("MAX_UPLOAD_MB", "64"), 64)),
		UploadMaxAge:   parseDuration(getEnv("UPLOAD_MAX_AGE", "24h"), 24*time.Hour),
		SourcePassword: getEnv("SOURCE_PASSWORD", ""),
		AllowLocalRefs: parseBool(getEnv("ALLOW_LOCAL_REFS", "false")),
	}

	cfg.Export = ExportConfig{
		Dir:      getEnv("EXPORT_DIR", "uploads/results"),
		S3Bucket: getEnv("EXPORT_S3_BUCKET", ""),
		S3Prefix: strings.Trim(getEnv("EXPORT_S3_PREFIX", "booklets"), "/"),
		Password: getEnv("EXPORT_PASSWORD", ""),
	}

	redisURL := getEnv("REDIS_URL", "")
	cfg.Status = StatusConfig{
		Enabled:  parseBool(getEnv("STATUS_MIRROR", boolString(redisURL != ""))),
		RedisURL: redisURL,
		TTL:      parseDuration(getEnv("STATUS_TTL", "24h"), 24*time.Hour),
	}
	if cfg.Status.RedisURL == "" {
		cfg.Status.RedisURL = "redis://localhost:6379"
	}

	cfg.Preview = PreviewConfig{
		DPI:     parseInt(getEnv("PREVIEW_DPI", "72"), 72),
		Quality: parseInt(getEnv("PREVIEW_QUALITY", "80"), 80),
	}

	return cfg
}

// Helpers
func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
		return n
	}
	return def
}

func parseBool(s string) bool {
	v := strings.ToLower(strings.TrimSpace(s))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	return def
}

func devDefaultPretty() string {
	env := strings.ToLower(os.Getenv("ENVIRONMENT"))
	if env == "dev" || env == "development" || env == "local" {
		return "true"
	}
	return "false"
}
