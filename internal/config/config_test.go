package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad(t *testing.T) {
	configPath := writeConfig(t, `
server:
  port: 9090
  host: "0.0.0.0"

database:
  url: "postgres://localhost/reconciler?sslmode=disable"

redis:
  addr: "localhost:6379"

build:
  chunk_size: 500
  soft_limit_seconds: 120
  state_backend: postgres

sheets:
  clean_master: "Clean Master (staging)"

exclusion:
  banned_product_keywords: ["tusk", "ivory"]
  renewal:
    year: 2025
    jurisdictions: ["DE"]
    entities: ["LLC", "Corp"]
    renewal_stems: ["renew"]

platform_b:
  enabled: true
  base_url: "https://shop.example.com/admin/api/2024-01"
  access_token: "file-token"
`)

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "postgres://localhost/reconciler?sslmode=disable", cfg.Database.URL)

	assert.Equal(t, 500, cfg.Build.ChunkSize)
	assert.Equal(t, 2*time.Minute, cfg.Build.SoftLimit())
	assert.Equal(t, "postgres", cfg.Build.StateBackend)

	assert.Equal(t, "Clean Master (staging)", cfg.Sheets.CleanMaster)
	assert.Equal(t, "Platform A Orders", cfg.Sheets.RawA)

	assert.Equal(t, []string{"tusk", "ivory"}, cfg.Exclusion.BannedProductKeywords)
	assert.Equal(t, 2025, cfg.Exclusion.Renewal.Year)
	assert.Equal(t, []string{"LLC", "Corp"}, cfg.Exclusion.Renewal.Entities)

	assert.True(t, cfg.PlatformB.Enabled)
	assert.Equal(t, 250, cfg.PlatformB.PageSize)
	assert.NoError(t, cfg.Validate())
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "log:\n  level: debug\n"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 1500, cfg.Build.ChunkSize)
	assert.Equal(t, 318*time.Second, cfg.Build.SoftLimit())
	assert.Equal(t, 10*time.Second, cfg.Build.LockWait())
	assert.Equal(t, 6*time.Minute, cfg.Build.LockTTL())
	assert.Equal(t, "redis", cfg.Build.StateBackend)
	assert.Equal(t, "Platform B Orders", cfg.Sheets.RawB)
	assert.Equal(t, 3, cfg.Import.LookbackDays)
	assert.Equal(t, 15*time.Minute, cfg.Worker.Interval())
	assert.Equal(t, 90*24*time.Hour, cfg.Worker.EventRetention())
	assert.Empty(t, cfg.Server.APIToken)
	assert.Empty(t, cfg.Exclusion.BannedProductKeywords, "keywords come from config only")
}

func TestLoadFromEnv(t *testing.T) {
	configPath := writeConfig(t, `
platform_a:
  api_key: "file-key"
redis:
  addr: "file:6379"
`)

	t.Setenv("PLATFORM_A_API_KEY", "env-key")
	t.Setenv("REDIS_ADDR", "env:6379")
	t.Setenv("EXPORT_S3_BUCKET", "snapshots")
	t.Setenv("NOTIFY_TO", "ops@example.com, finance@example.com,")
	t.Setenv("PORT", "7000")
	t.Setenv("API_TOKEN", "s3cret")

	cfg, err := LoadFromEnv(configPath)
	require.NoError(t, err)

	// Environment variables should override file values
	assert.Equal(t, "env-key", cfg.PlatformA.APIKey)
	assert.Equal(t, "env:6379", cfg.Redis.Addr)
	assert.True(t, cfg.Export.Enabled)
	assert.Equal(t, "snapshots", cfg.Export.Bucket)
	assert.Equal(t, []string{"ops@example.com", "finance@example.com"}, cfg.Notify.To)
	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, "s3cret", cfg.Server.APIToken)
}

func TestLoadFileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"redis without addr", func(c *Config) { c.Redis.Addr = "" }, "redis.addr is empty"},
		{"postgres without url", func(c *Config) { c.Build.StateBackend = "postgres" }, "database.url is empty"},
		{"unknown backend", func(c *Config) { c.Build.StateBackend = "etcd" }, `unknown build.state_backend "etcd"`},
		{"export without bucket", func(c *Config) { c.Export.Enabled = true }, "export.bucket"},
		{"notify without recipients", func(c *Config) { c.Notify.Enabled = true; c.Notify.From = "etl@example.com" }, "notify.to"},
		{"platform A without url", func(c *Config) { c.PlatformA.Enabled = true }, "platform_a.base_url"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, "redis:\n  addr: localhost:6379\n"))
			require.NoError(t, err)
			require.NoError(t, cfg.Validate())

			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.wantErr)
		})
	}
}

func TestImportSince(t *testing.T) {
	now := time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 3, 6, 12, 0, 0, 0, time.UTC), ImportConfig{LookbackDays: 3}.Since(now))
}

func TestShippedConfigIsValid(t *testing.T) {
	cfg, err := Load("../../config/config.yaml")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.NotEmpty(t, cfg.Exclusion.BannedProductKeywords)
	assert.Equal(t, "redis", cfg.Build.StateBackend)
}
