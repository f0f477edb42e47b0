package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/styledrop/internal/s3storage"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"STYLEDROP_ADDRESS", "STYLEDROP_QUEUE", "STYLEDROP_WORKERS", "STYLEDROP_SIGNING_SECRET", "STYLEDROP_S3_BUCKET", "STYLEDROP_S3_CREDENTIALS_FILE"} {
		t.Setenv(k, "")
	}
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Address)
	assert.Equal(t, QueueMemory, cfg.Queue)
	assert.Equal(t, 2, cfg.ProcessingPool)
	assert.Len(t, cfg.SigningSecret, 32)
	assert.Equal(t, 5*time.Minute, cfg.SignedURLTTL)
	assert.False(t, cfg.S3Enabled())
	assert.Equal(t, s3storage.PermissionPublicRead, cfg.S3Permission)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("STYLEDROP_ADDRESS", ":9000")
	t.Setenv("STYLEDROP_QUEUE", "asynq")
	t.Setenv("STYLEDROP_WORKERS", "-3")
	t.Setenv("STYLEDROP_SIGNED_TTL", "90s")
	t.Setenv("STYLEDROP_SIGNING_SECRET", "shh")
	t.Setenv("STYLEDROP_MAX_UPLOAD_BYTES", "not-a-number")
	t.Setenv("STYLEDROP_S3_BUCKET", "media")
	t.Setenv("STYLEDROP_S3_ACCESS_KEY", "AKIA")
	t.Setenv("STYLEDROP_S3_SECRET_KEY", "secret")
	t.Setenv("STYLEDROP_S3_USE_SSL", "false")
	t.Setenv("STYLEDROP_STORAGE_ROOT", "/srv/public")
	t.Setenv("STYLEDROP_PUBLIC_URL", "https://cdn.example.com")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Address)
	assert.Equal(t, QueueAsynq, cfg.Queue)
	assert.Equal(t, 2, cfg.ProcessingPool)
	assert.Equal(t, 90*time.Second, cfg.SignedURLTTL)
	assert.Equal(t, []byte("shh"), cfg.SigningSecret)
	assert.EqualValues(t, 25<<20, cfg.MaxUploadBytes)

	require.True(t, cfg.S3Enabled())
	opts := cfg.S3Options()
	assert.Equal(t, "media", opts.Bucket)
	assert.False(t, opts.UseSSL)
	require.NotNil(t, opts.Credentials)
	assert.Equal(t, "AKIA", opts.Credentials.AccessKeyID)

	fs := cfg.FilesystemOptions()
	assert.Equal(t, "/srv/public", fs.Root)
	assert.Equal(t, "https://cdn.example.com", fs.PublicURL)
	assert.Equal(t, DownloadPath, fs.DownloadPath)
	require.NotNil(t, fs.Signer)
}

func TestLoad_UnknownQueueFallsBack(t *testing.T) {
	t.Setenv("STYLEDROP_QUEUE", "kafka")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, QueueMemory, cfg.Queue)
}
