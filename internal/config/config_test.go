package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"ETL_MODE", "MATOMO_URL", "MATOMO_TOKEN", "MATOMO_SITE_ID",
		"DB_HOST", "DB_USER", "DB_PASSWORD", "DB_NAME", "DB_PORT",
		"REDIS_PASSWORD", "BACKFILL_DAYS", "API_JWT_SECRET",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("DB_NAME", "TP3_DB")

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, ModeSimulation, cfg.Source.Mode)
	assert.False(t, cfg.Source.IsLive())
	assert.Equal(t, 30*time.Second, cfg.Source.Timeout())
	assert.Equal(t, 7, cfg.Pipeline.BackfillDays)
	assert.Equal(t, "0 3 * * *", cfg.Pipeline.Schedule)
	assert.Equal(t, 10*time.Minute, cfg.Pipeline.LockTTL())
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, "5432", cfg.Database.Port)
	assert.Equal(t, "TP3_DB", cfg.Database.DBName)
	assert.Equal(t, 8080, cfg.API.Port)
	assert.Equal(t, 6, cfg.API.TriggerRateLimit)
	assert.Empty(t, cfg.API.TrustedProxies)
	assert.False(t, cfg.API.TriggerAuthEnabled())
}

func TestLoadConfigReadsTriggerAuthFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("DB_NAME", "TP3_DB")
	t.Setenv("API_JWT_SECRET", "0123456789abcdef0123456789abcdef")

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)
	assert.True(t, cfg.API.TriggerAuthEnabled())
	assert.Equal(t, "0123456789abcdef0123456789abcdef", cfg.API.JWTSecret)
}

func TestLoadConfigLiveModeRequiresCredentials(t *testing.T) {
	clearEnv(t)
	t.Setenv("DB_NAME", "TP3_DB")
	t.Setenv("ETL_MODE", "LIVE")
	t.Setenv("MATOMO_URL", "https://example.matomo.cloud/index.php")

	_, err := LoadConfig(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "source.token")

	t.Setenv("MATOMO_TOKEN", "abcdef0123456789")
	t.Setenv("MATOMO_SITE_ID", "1")

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)
	assert.True(t, cfg.Source.IsLive())
	assert.Equal(t, "1", cfg.Source.SiteID)
}

func TestLoadConfigReadsYAMLFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	yaml := `
app:
  environment: development
source:
  mode: simulation
  timeout_seconds: 5
database:
  host: db.internal
  port: "6543"
  db_name: analytics
pipeline:
  backfill_days: 30
  schedule: "30 1 * * *"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o600))

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.Source.Timeout())
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, "6543", cfg.Database.Port)
	assert.Equal(t, 30, cfg.Pipeline.BackfillDays)
	assert.Equal(t, "30 1 * * *", cfg.Pipeline.Schedule)
}

func TestLoadConfigEnvOverridesBackfillWindow(t *testing.T) {
	clearEnv(t)
	t.Setenv("DB_NAME", "TP3_DB")
	t.Setenv("BACKFILL_DAYS", "30")

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.Pipeline.BackfillDays)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			App:      AppConfig{Environment: "development"},
			Source:   SourceConfig{Mode: ModeSimulation, TimeoutSeconds: 30},
			Database: DatabaseConfig{Host: "localhost", Port: "5432", DBName: "TP3_DB"},
			Pipeline: PipelineConfig{BackfillDays: 7},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"unknown mode", func(c *Config) { c.Source.Mode = "replay" }, "source.mode"},
		{"missing db name", func(c *Config) { c.Database.DBName = "" }, "database.db_name"},
		{"zero window", func(c *Config) { c.Pipeline.BackfillDays = 0 }, "pipeline.backfill_days"},
		{"zero timeout", func(c *Config) { c.Source.TimeoutSeconds = 0 }, "source.timeout_seconds"},
		{"production without redis", func(c *Config) { c.App.Environment = "production" }, "redis.host"},
		{"production without jwt secret", func(c *Config) {
			c.App.Environment = "production"
			c.Redis.Host = "redis"
		}, "api.jwt_secret"},
		{"production with short jwt secret", func(c *Config) {
			c.App.Environment = "production"
			c.Redis.Host = "redis"
			c.API.JWTSecret = "short"
		}, "api.jwt_secret"},
		{"production with jwt secret", func(c *Config) {
			c.App.Environment = "production"
			c.Redis.Host = "redis"
			c.API.JWTSecret = strings.Repeat("k", 32)
		}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSafeStringMasksToken(t *testing.T) {
	cfg := &Config{Source: SourceConfig{Token: "9536e21d3aed48f7961b4b66027a939f"}}
	out := cfg.SafeString()

	assert.NotContains(t, out, cfg.Source.Token)
	assert.True(t, strings.Contains(out, "9536...939f"))
	assert.Equal(t, "(not set)", maskSecret(""))
	assert.Equal(t, "****", maskSecret("abcd"))
}

func TestSafeStringMasksJWTSecret(t *testing.T) {
	cfg := &Config{API: APIConfig{JWTSecret: "supersecret-signing-key-0123456789"}}
	out := cfg.SafeString()

	assert.NotContains(t, out, cfg.API.JWTSecret)
	assert.Contains(t, out, "supe...6789")
}
