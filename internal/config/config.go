// Package config centralizes how styledrop reads environment variables and
// exposes them as strongly typed Go values.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dharsanguruparan/styledrop/internal/s3storage"
	"github.com/dharsanguruparan/styledrop/internal/signing"
	"github.com/dharsanguruparan/styledrop/internal/storage"
)

// DownloadPath is the API route serving signed local downloads.
const DownloadPath = "/download"

// Queue backends for processing jobs.
const (
	QueueMemory = "memory"
	QueueAsynq  = "asynq"
)

// Config represents runtime configuration for the binaries.
type Config struct {
	Address        string
	Environment    string
	LogLevel       string
	LogDevelopment bool

	DefinitionsFile string
	StorageRoot     string
	StagingRoot     string
	WorkRoot        string
	PublicURL       string
	MaxUploadBytes  int64

	SigningSecret []byte
	SignedURLTTL  time.Duration

	Queue          string
	ProcessingPool int
	RedisAddr      string
	RedisPassword  string
	RedisDB        int

	// DatabaseURL selects the Postgres record store; empty keeps records in
	// memory.
	DatabaseURL string

	S3Endpoint        string
	S3Region          string
	S3Bucket          string
	S3AccessKey       string
	S3SecretKey       string
	S3CredentialsFile string
	S3UseSSL          bool
	S3Permission      string
	S3Protocol        string
	S3HostAlias       string

	MetricsEnabled bool
}

const (
	defaultAddress     = ":8080"
	defaultEnvironment = "development"
	defaultMaxUpload   = 25 << 20 // 25 MiB
	defaultSignedTTL   = 5 * time.Minute
	defaultWorkerCount = 2
	defaultRedisAddr   = "localhost:6379"
)

// Load reads configuration from environment variables falling back to defaults.
func Load() (*Config, error) {
	cfg := &Config{
		Address:        readEnv("STYLEDROP_ADDRESS", defaultAddress),
		Environment:    readEnv("STYLEDROP_ENV", defaultEnvironment),
		LogLevel:       readEnv("STYLEDROP_LOG_LEVEL", "info"),
		LogDevelopment: parseBool("STYLEDROP_LOG_DEVELOPMENT", false),

		DefinitionsFile: readEnv("STYLEDROP_DEFINITIONS", ""),
		StorageRoot:     readEnv("STYLEDROP_STORAGE_ROOT", filepath.Join(".", "public")),
		StagingRoot:     readEnv("STYLEDROP_STAGING_ROOT", ""),
		WorkRoot:        readEnv("STYLEDROP_WORK_ROOT", ""),
		PublicURL:       readEnv("STYLEDROP_PUBLIC_URL", ""),
		MaxUploadBytes:  parseInt64("STYLEDROP_MAX_UPLOAD_BYTES", defaultMaxUpload),

		SigningSecret: parseSecret("STYLEDROP_SIGNING_SECRET"),
		SignedURLTTL:  parseDuration("STYLEDROP_SIGNED_TTL", defaultSignedTTL),

		Queue:          readEnv("STYLEDROP_QUEUE", QueueMemory),
		ProcessingPool: parseInt("STYLEDROP_WORKERS", defaultWorkerCount),
		RedisAddr:      readEnv("STYLEDROP_REDIS_ADDR", defaultRedisAddr),
		RedisPassword:  readEnv("STYLEDROP_REDIS_PASSWORD", ""),
		RedisDB:        parseInt("STYLEDROP_REDIS_DB", 0),

		DatabaseURL: readEnv("STYLEDROP_DATABASE_URL", ""),

		S3Endpoint:        readEnv("STYLEDROP_S3_ENDPOINT", ""),
		S3Region:          readEnv("STYLEDROP_S3_REGION", ""),
		S3Bucket:          readEnv("STYLEDROP_S3_BUCKET", ""),
		S3AccessKey:       readEnv("STYLEDROP_S3_ACCESS_KEY", ""),
		S3SecretKey:       readEnv("STYLEDROP_S3_SECRET_KEY", ""),
		S3CredentialsFile: readEnv("STYLEDROP_S3_CREDENTIALS_FILE", ""),
		S3UseSSL:          parseBool("STYLEDROP_S3_USE_SSL", true),
		S3Permission:      readEnv("STYLEDROP_S3_PERMISSION", s3storage.PermissionPublicRead),
		S3Protocol:        readEnv("STYLEDROP_S3_PROTOCOL", ""),
		S3HostAlias:       readEnv("STYLEDROP_S3_HOST_ALIAS", ""),

		MetricsEnabled: parseBool("STYLEDROP_METRICS", true),
	}
	if cfg.SigningSecret == nil {
		cfg.SigningSecret = randomSecret()
	}
	if cfg.ProcessingPool <= 0 {
		cfg.ProcessingPool = defaultWorkerCount
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = defaultMaxUpload
	}
	if cfg.SignedURLTTL <= 0 {
		cfg.SignedURLTTL = defaultSignedTTL
	}
	if cfg.Queue != QueueAsynq {
		cfg.Queue = QueueMemory
	}
	return cfg, nil
}

// S3Enabled reports whether an object store is configured.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" || c.S3CredentialsFile != ""
}

// S3Options maps the S3 settings onto the client options.
func (c *Config) S3Options() s3storage.Options {
	opts := s3storage.Options{
		Endpoint:        c.S3Endpoint,
		Region:          c.S3Region,
		UseSSL:          c.S3UseSSL,
		Bucket:          c.S3Bucket,
		CredentialsFile: c.S3CredentialsFile,
		Environment:     c.Environment,
		Permission:      c.S3Permission,
		Protocol:        c.S3Protocol,
		HostAlias:       c.S3HostAlias,
	}
	if c.S3AccessKey != "" {
		opts.Credentials = &s3storage.Credentials{AccessKeyID: c.S3AccessKey, SecretAccessKey: c.S3SecretKey}
	}
	return opts
}

// FilesystemOptions maps the local storage settings onto backend options.
func (c *Config) FilesystemOptions() storage.FilesystemOptions {
	return storage.FilesystemOptions{
		Root:         c.StorageRoot,
		StagingRoot:  c.StagingRoot,
		PublicURL:    c.PublicURL,
		Signer:       signing.NewSigner(c.SigningSecret),
		DownloadPath: DownloadPath,
	}
}

func readEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func parseInt64(key string, def int64) int64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil {
			return parsed
		}
	}
	return def
}

func parseInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return def
}

func parseBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return parsed
		}
	}
	return def
}

func parseDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			return parsed
		}
	}
	return def
}

func parseSecret(key string) []byte {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return []byte(v)
	}
	return nil
}

func randomSecret() []byte {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return []byte(hex.EncodeToString([]byte("fallbacksecret")))
	}
	return buf
}
