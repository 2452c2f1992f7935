package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ogulcanaydogan/pitchwatch/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, ":8080", cfg.Server.Listen)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 5*time.Minute, cfg.Evaluator.Interval)
	assert.Equal(t, 1, cfg.Evaluator.Concurrency)
	assert.Equal(t, 2*time.Minute, cfg.Evaluator.PassTimeout)
	assert.Equal(t, 10*time.Second, cfg.Notify.Timeout)
	assert.Equal(t, 587, cfg.Channels.Email.Port)
	assert.Empty(t, cfg.Channels.Slack.URL)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	data := []byte(`
storage:
  path: /tmp/test.db
server:
  listen: ":9090"
evaluator:
  interval: 1m
  concurrency: 4
channels:
  slack:
    url: https://hooks.slack.com/services/T/B/X
    channel: "#ops"
  email:
    host: smtp.example.com
    from: alerts@example.com
    to:
      - ops@example.com
logging:
  level: debug
  format: text
`)
	err := os.WriteFile(cfgPath, data, 0o644)
	require.NoError(t, err)

	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/test.db", cfg.Storage.Path)
	assert.Equal(t, ":9090", cfg.Server.Listen)
	assert.Equal(t, time.Minute, cfg.Evaluator.Interval)
	assert.Equal(t, 4, cfg.Evaluator.Concurrency)
	assert.Equal(t, "https://hooks.slack.com/services/T/B/X", cfg.Channels.Slack.URL)
	assert.Equal(t, "#ops", cfg.Channels.Slack.Channel)
	assert.Equal(t, []string{"ops@example.com"}, cfg.Channels.Email.To)
	assert.True(t, cfg.EmailSettings().Configured())
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PW_LOGGING_LEVEL", "error")
	t.Setenv("PW_SERVER_LISTEN", ":7070")
	t.Setenv("PW_CHANNELS_WEBHOOK_SECRET", "s3cret")

	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, "error", cfg.Logging.Level)
	assert.Equal(t, ":7070", cfg.Server.Listen)
	assert.Equal(t, "s3cret", cfg.Channels.Webhook.Secret)
}

func TestLoad_LegacyChannelEnv(t *testing.T) {
	t.Setenv("SLACK_WEBHOOK_URL", "https://hooks.slack.com/services/legacy")
	t.Setenv("DISCORD_WEBHOOK_URL", "https://discord.com/api/webhooks/1/x")
	t.Setenv("WEBHOOK_WEBHOOK_URL", "https://example.com/legacy")
	t.Setenv("PW_CHANNELS_WEBHOOK_URL", "https://example.com/preferred")

	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, "https://hooks.slack.com/services/legacy", cfg.Channels.Slack.URL)
	assert.Equal(t, "https://discord.com/api/webhooks/1/x", cfg.Channels.Discord.URL)
	assert.Equal(t, "https://example.com/preferred", cfg.Channels.Webhook.URL)
}

func TestLoad_InvalidFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "bad.yaml")
	err := os.WriteFile(cfgPath, []byte("invalid: [yaml"), 0o644)
	require.NoError(t, err)

	_, err = config.Load(cfgPath)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *config.Config)
		want   string
	}{
		{"bad driver", func(c *config.Config) { c.Storage.Driver = "mysql" }, `unsupported storage.driver "mysql"`},
		{"postgres without dsn", func(c *config.Config) { c.Storage.Driver = "postgres" }, "storage.dsn is required"},
		{"relative slack url", func(c *config.Config) { c.Channels.Slack.URL = "hooks.slack.com/x" }, "channels.slack.url"},
		{"ftp webhook url", func(c *config.Config) { c.Channels.Webhook.URL = "ftp://example.com" }, "channels.webhook.url"},
		{"email without recipients", func(c *config.Config) { c.Channels.Email.Host = "smtp.example.com" }, "channels.email requires"},
		{"zero interval", func(c *config.Config) { c.Evaluator.Interval = 0 }, "evaluator.interval"},
		{"zero concurrency", func(c *config.Config) { c.Evaluator.Concurrency = 0 }, "evaluator.concurrency"},
		{"bad trusted proxy", func(c *config.Config) { c.Server.TrustedProxies = []string{"lb.internal"} }, "server.trusted_proxies"},
		{"bad log format", func(c *config.Config) { c.Logging.Format = "xml" }, "logging.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := config.Load("")
			require.NoError(t, err)
			tt.mutate(cfg)

			err = cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
