package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Telegram: TelegramConfig{Token: "123:abc", AdminID: 42},
	}
}

func TestNormalizeDefaults(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, Normalize(cfg))

	assert.Equal(t, RunModeLongpoll, cfg.Telegram.RunMode)
	assert.Equal(t, DefaultRateLimitMaxEvents, cfg.RateLimit.MaxEvents)
	assert.Equal(t, DefaultRateLimitWindowSeconds, cfg.RateLimit.WindowSeconds)
}

func TestNormalizeRejectsMissingMandatoryFields(t *testing.T) {
	cfg := validConfig()
	cfg.Telegram.Token = " "
	assert.Error(t, Normalize(cfg))

	cfg = validConfig()
	cfg.Telegram.AdminID = 0
	assert.Error(t, Normalize(cfg))

	assert.Error(t, Normalize(nil))
}

func TestNormalizeWebhookMode(t *testing.T) {
	cfg := validConfig()
	cfg.Telegram.RunMode = "Webhook"
	require.Error(t, Normalize(cfg), "webhook url is mandatory in webhook mode")

	cfg.Webhook.URL = "https://example.org/webhook"
	cfg.Webhook.Port = 8443
	require.NoError(t, Normalize(cfg))
	assert.Equal(t, RunModeWebhook, cfg.Telegram.RunMode)
	assert.Equal(t, "0.0.0.0", cfg.Webhook.Listen)
}

func TestNormalizeExcludeUpdates(t *testing.T) {
	cfg := validConfig()
	cfg.RateLimit.ExcludeUpdates = []string{" Callback ", "MESSAGE"}
	require.NoError(t, Normalize(cfg))
	assert.Equal(t, []string{UpdateCallback, UpdateMessage}, cfg.RateLimit.ExcludeUpdates)

	cfg.RateLimit.ExcludeUpdates = []string{"poll"}
	assert.Error(t, Normalize(cfg))
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yml := "telegram:\n  token: from-file\n  admin_id: 7\nrate_limit:\n  max_events: 3\n"
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o600))

	t.Setenv("BOT_TOKEN", "from-env")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Telegram.Token)
	assert.Equal(t, int64(7), cfg.Telegram.AdminID)
	assert.Equal(t, 3, cfg.RateLimit.MaxEvents)
}

func TestNormalizeReportsYAMLFieldNames(t *testing.T) {
	cfg := validConfig()
	cfg.Telegram.RunMode = "carrier-pigeon"
	cfg.RateLimit.WindowSeconds = -1
	err := Normalize(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "telegram.run_mode: oneof=webhook longpoll")
	assert.Contains(t, err.Error(), "rate_limit.window_seconds: gte=0")
}

func TestWebhookPortRequiredWithURL(t *testing.T) {
	cfg := validConfig()
	cfg.Telegram.RunMode = RunModeWebhook
	cfg.Webhook.URL = "https://example.org/hook"
	err := Normalize(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "webhook.port: required_with=url")
}

func TestRateLimitWindow(t *testing.T) {
	assert.Equal(t, 10*time.Second, RateLimitConfig{WindowSeconds: 10}.Window())
}
