// AngelaMos | 2026
// config_test.go

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadLayersDefaultsFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
subscription:
  free_prompts_limit: 7
  expiry_sweep:
    enabled: true
admin:
  emails:
    - file@studio.io
`), 0o600))

	t.Setenv("DATABASE_URL", "postgres://localhost/promptstudio")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("ADMIN_EMAILS", "Owner@Studio.io, ops@studio.io ,")
	t.Setenv("DEFAULT_CURRENCY", "USD")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.Subscription.FreePromptsLimit)
	assert.True(t, cfg.Subscription.ExpirySweep.Enabled)
	assert.Equal(t, "@hourly", cfg.Subscription.ExpirySweep.Schedule)
	assert.Equal(t, "USD", cfg.Subscription.DefaultCurrency)
	assert.Equal(t, []string{"Owner@Studio.io", "ops@studio.io"}, cfg.Admin.Emails)
	assert.Equal(t, 15*time.Minute, cfg.JWT.AccessTokenExpire)
	assert.Equal(t, "2024-06-01", cfg.AI.APIVersion)
	assert.False(t, cfg.Kafka.Enabled)
	assert.Same(t, cfg, Get())
}

func TestEnvValue(t *testing.T) {
	key, val := envValue("KAFKA_BROKERS", "b1:9092, b2:9092")
	assert.Equal(t, "kafka.brokers", key)
	assert.Equal(t, []string{"b1:9092", "b2:9092"}, val)

	key, val = envValue("PORT", "9090")
	assert.Equal(t, "server.port", key)
	assert.Equal(t, "9090", val)

	key, _ = envValue("HOME", "/root")
	assert.Empty(t, key)
}

func TestIsAdminEmail(t *testing.T) {
	admins := AdminConfig{Emails: []string{" Owner@Studio.io "}}

	assert.True(t, admins.IsAdminEmail("owner@studio.io"))
	assert.False(t, admins.IsAdminEmail("guest@studio.io"))
	assert.False(t, AdminConfig{}.IsAdminEmail(""))
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Database:     DatabaseConfig{URL: "postgres://x"},
			Redis:        RedisConfig{URL: "redis://x"},
			JWT:          JWTConfig{PrivateKeyPath: "a", PublicKeyPath: "b"},
			Server:       ServerConfig{ReadTimeout: time.Second, WriteTimeout: time.Second},
			Subscription: SubscriptionConfig{FreePromptsLimit: 5},
		}
	}

	require.NoError(t, validate(valid()))

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing database", func(c *Config) { c.Database.URL = "" }},
		{"missing redis", func(c *Config) { c.Redis.URL = "" }},
		{"zero free limit", func(c *Config) { c.Subscription.FreePromptsLimit = 0 }},
		{"kafka without brokers", func(c *Config) { c.Kafka.Enabled = true }},
		{"wildcard cors with credentials", func(c *Config) {
			c.CORS.AllowCredentials = true
			c.CORS.AllowedOrigins = []string{"*"}
		}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := valid()
			tc.mutate(c)
			assert.Error(t, validate(c))
		})
	}
}
