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
	path := writeConfig(t, `
server:
  port: 9090
  host: "0.0.0.0"
  public_base_url: "https://waitlist.example.com"

store:
  type: "redis"

redis:
  url: "redis://localhost:6379/0"

waitlist:
  signups_per_window: 10
  window_seconds: 600
  referral_boost_min: 2
  referral_boost_max: 8

token:
  secret: "s3cret"
  ttl_hours: 12

webhooks:
  urls:
    - "https://hooks.example.com/a"
  max_retries: 5
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "https://waitlist.example.com", cfg.Server.PublicBaseURL)
	assert.Equal(t, "redis", cfg.Store.Type)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Redis.URL)
	assert.Equal(t, 10, cfg.Waitlist.SignupsPerWindow)
	assert.Equal(t, 10*time.Minute, cfg.Waitlist.Window())
	assert.Equal(t, 2, cfg.Waitlist.ReferralBoostMin)
	assert.Equal(t, 8, cfg.Waitlist.ReferralBoostMax)
	assert.Equal(t, "s3cret", cfg.Token.Secret)
	assert.Equal(t, 12*time.Hour, cfg.Token.TTL())
	assert.Equal(t, []string{"https://hooks.example.com/a"}, cfg.Webhooks.URLs)
	assert.Equal(t, 5, cfg.Webhooks.MaxRetries)
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 0
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, "memory", cfg.Store.Type)
	assert.Equal(t, "kv_store", cfg.Store.Table)
	assert.Equal(t, 5, cfg.Waitlist.SignupsPerWindow)
	assert.Equal(t, time.Hour, cfg.Waitlist.Window())
	assert.Equal(t, 3, cfg.Waitlist.ReferralBoostMin)
	assert.Equal(t, 10, cfg.Waitlist.ReferralBoostMax)
	assert.Equal(t, 24*time.Hour, cfg.Token.TTL())
	assert.Equal(t, 24*time.Hour, cfg.Waitlist.RecentWindow())
	assert.Equal(t, 15*time.Second, cfg.SES.Timeout())
	assert.Equal(t, 10*time.Second, cfg.Webhooks.Timeout())
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadFromEnv(t *testing.T) {
	path := writeConfig(t, `
token:
  secret: "file-secret"
`)

	t.Setenv("TOKEN_SECRET", "env-secret")
	t.Setenv("REDIS_URL", "redis://cache:6379")
	t.Setenv("WEBHOOK_URLS", "https://a.example.com, https://b.example.com,")
	t.Setenv("SQS_QUEUE_URL", "https://sqs.us-east-1.amazonaws.com/123/events")
	t.Setenv("SESSION_SECRET", "cookie-secret")

	cfg, err := LoadFromEnv(path)
	require.NoError(t, err)

	assert.Equal(t, "env-secret", cfg.Token.Secret)
	assert.Equal(t, "redis://cache:6379", cfg.Redis.URL)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.Webhooks.URLs)
	assert.True(t, cfg.SQS.Enabled)
	assert.Equal(t, "cookie-secret", cfg.Auth.SessionSecret)
}

func TestLoadFileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	assert.Error(t, err)
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeConfig(t, "server: [unterminated")
	_, err := Load(path)
	assert.Error(t, err)
}
