package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/datarequests/pkg/observability"
)

const testSecret = "config-test-secret-123"

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("DATAREQ_TEST_STRING", "custom")
	t.Setenv("DATAREQ_TEST_BOOL", "1")
	t.Setenv("DATAREQ_TEST_INT", "42")
	t.Setenv("DATAREQ_TEST_BAD_INT", "forty")
	t.Setenv("DATAREQ_TEST_FLOAT", "0.25")
	t.Setenv("DATAREQ_TEST_DURATION", "90s")

	assert.Equal(t, "custom", getEnv("TEST_STRING", "default"))
	assert.Equal(t, "default", getEnv("TEST_UNSET", "default"))
	assert.True(t, getEnvBool("TEST_BOOL", false))
	assert.True(t, getEnvBool("TEST_UNSET", true))
	assert.Equal(t, 42, getEnvInt("TEST_INT", 0))
	assert.Equal(t, 7, getEnvInt("TEST_BAD_INT", 7))
	assert.Equal(t, int64(42), getEnvInt64("TEST_INT", 0))
	assert.Equal(t, 0.25, getEnvFloat("TEST_FLOAT", 1))
	assert.Equal(t, 90*time.Second, getEnvDuration("TEST_DURATION", time.Second))
	assert.Equal(t, time.Second, getEnvDuration("TEST_UNSET", time.Second))
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]observability.LogLevel{
		"debug":   observability.DebugLevel,
		"INFO":    observability.InfoLevel,
		"warn":    observability.WarnLevel,
		"warning": observability.WarnLevel,
		"error":   observability.ErrorLevel,
		"verbose": observability.InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, parseLogLevel(in), in)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("DATAREQ_AUTH_SECRET", testSecret)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "9090", cfg.Server.HealthPort)
	assert.Equal(t, "memory", cfg.Storage.Type)
	assert.False(t, cfg.Storage.CacheEnabled)
	assert.Equal(t, "https://api.customer.io/v1", cfg.Upstream.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.Upstream.Timeout)
	assert.Equal(t, "", cfg.Policy.Path)
	assert.True(t, cfg.RateLimit.Enabled)
	assert.Equal(t, observability.InfoLevel, cfg.Observability.LogLevel)
	assert.False(t, cfg.Observability.OTelEnabled)
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("DATAREQ_AUTH_SECRET", testSecret)
	t.Setenv("DATAREQ_PORT", "8000")
	t.Setenv("DATAREQ_STORAGE_TYPE", "Postgres")
	t.Setenv("DATAREQ_POSTGRES_URL", "postgres://db/datarequests")
	t.Setenv("DATAREQ_CACHE_ENABLED", "true")
	t.Setenv("DATAREQ_REDIS_URL", "redis://cache:6379/1")
	t.Setenv("DATAREQ_CACHE_TTL_DATASET", "2m")
	t.Setenv("DATAREQ_UPSTREAM_URL", "https://beta-api.customer.io/v1/api")
	t.Setenv("DATAREQ_UPSTREAM_RATE_LIMIT", "0")
	t.Setenv("DATAREQ_POLICY_FILE", "/etc/datarequests/policy.yaml")
	t.Setenv("DATAREQ_LOG_LEVEL", "debug")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8000", cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Storage.Type)
	assert.Equal(t, "postgres://db/datarequests", cfg.Storage.PostgresURL)
	assert.True(t, cfg.Storage.CacheEnabled)
	assert.Equal(t, "redis://cache:6379/1", cfg.Storage.RedisURL)
	assert.Equal(t, 2*time.Minute, cfg.Storage.CacheTTL["dataset"])
	assert.Equal(t, 10*time.Minute, cfg.Storage.CacheTTL["project"])
	assert.Equal(t, "https://beta-api.customer.io/v1/api", cfg.Upstream.BaseURL)
	assert.Zero(t, cfg.Upstream.RateLimit)
	assert.Equal(t, "/etc/datarequests/policy.yaml", cfg.Policy.Path)
	assert.Equal(t, observability.DebugLevel, cfg.Observability.LogLevel)
}

func TestValidate(t *testing.T) {
	t.Setenv("DATAREQ_AUTH_SECRET", testSecret)
	valid := func() *Config {
		cfg, err := LoadConfig()
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "same ports", mutate: func(c *Config) { c.Server.HealthPort = c.Server.Port }, wantErr: "must be different"},
		{name: "missing port", mutate: func(c *Config) { c.Server.Port = "" }, wantErr: "server port"},
		{name: "unknown storage", mutate: func(c *Config) { c.Storage.Type = "sqlite" }, wantErr: "invalid storage type"},
		{name: "postgres without url", mutate: func(c *Config) { c.Storage.Type = "postgres" }, wantErr: "postgres URL"},
		{name: "relative upstream", mutate: func(c *Config) { c.Upstream.BaseURL = "/v1" }, wantErr: "upstream URL"},
		{name: "short secret", mutate: func(c *Config) { c.Auth.Secret = "abc" }, wantErr: "auth secret"},
		{name: "zero rate limit", mutate: func(c *Config) { c.RateLimit.RequestsPerMinute = 0 }, wantErr: "rate limit"},
		{name: "disabled rate limit", mutate: func(c *Config) { c.RateLimit.Enabled = false; c.RateLimit.RequestsPerMinute = 0 }},
		{name: "trusted proxies", mutate: func(c *Config) { c.RateLimit.TrustedProxies = "10.0.0.0/8,192.168.1.1" }},
		{name: "bad trusted proxy", mutate: func(c *Config) { c.RateLimit.TrustedProxies = "lb.internal" }, wantErr: "trusted proxy"},
		{name: "otel without endpoint", mutate: func(c *Config) {
			c.Observability.OTelEnabled = true
			c.Observability.OTelEndpoint = ""
		}, wantErr: "endpoint"},
		{name: "bad sample ratio", mutate: func(c *Config) { c.Observability.OTelSampleRatio = 2 }, wantErr: "sample ratio"},
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

func TestLoadConfig_MissingSecret(t *testing.T) {
	t.Setenv("DATAREQ_AUTH_SECRET", "")
	_, err := LoadConfig()
	assert.Error(t, err)
}
