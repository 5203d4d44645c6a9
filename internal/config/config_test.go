package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := fromEnv()

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, 4444, cfg.OxiDBPort)
	assert.Equal(t, StorageOxiDB, cfg.StorageBackend)
	assert.Equal(t, 24*time.Hour, cfg.SessionTTL)
	assert.False(t, cfg.GoogleEnabled())
	assert.NoError(t, cfg.Validate())
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("DMS_ADDR", ":9090")
	t.Setenv("OXIDB_PORT", "5555")
	t.Setenv("DMS_SESSION_TTL", "30m")
	t.Setenv("STORAGE_BACKEND", "S3")
	t.Setenv("S3_BUCKET", "tracks")
	t.Setenv("DMS_PUBLIC_URL", "https://mixedby.example/")
	t.Setenv("GOOGLE_CLIENT_ID", "id")
	t.Setenv("GOOGLE_CLIENT_SECRET", "secret")

	cfg := fromEnv()
	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, 5555, cfg.OxiDBPort)
	assert.Equal(t, 30*time.Minute, cfg.SessionTTL)
	assert.Equal(t, StorageS3, cfg.StorageBackend)
	assert.Equal(t, "https://mixedby.example", cfg.PublicURL)
	assert.True(t, cfg.GoogleEnabled())
	assert.NoError(t, cfg.Validate())
}

func TestMalformedNumbersFallBack(t *testing.T) {
	t.Setenv("OXIDB_PORT", "44x4")
	t.Setenv("AUTH_RATE_LIMIT", "fast")

	cfg := fromEnv()
	assert.Equal(t, 4444, cfg.OxiDBPort)
	assert.Equal(t, 5.0, cfg.AuthRateLimit)
}

func TestValidate(t *testing.T) {
	t.Setenv("STORAGE_BACKEND", "s3")
	cfg := fromEnv()
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "S3_BUCKET")

	cfg.StorageBackend = "ftp"
	cfg.PoolSize = 0
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown STORAGE_BACKEND "ftp"`)
	assert.Contains(t, err.Error(), "DMS_POOL_SIZE")
}
