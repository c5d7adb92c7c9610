package app

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/ticketbot/internal/render"
)

const minimalYAML = `
telegram:
  token: "123:abc"
  admin_id: 42
database:
  host: db
  user: bot
  name: tickets
render:
  template: ticket.jpg
  font_regular: Roboto-Regular.ttf
  font_medium: Roboto-Medium.ttf
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, int64(42), cfg.Telegram.AdminID)
	assert.Equal(t, 6, cfg.RateLimit.MaxEvents)
	assert.Equal(t, 10, cfg.RateLimit.WindowSeconds)
	assert.Equal(t, 5000, cfg.Dialog.LockTimeoutMS)
	assert.Equal(t, 60, cfg.Dialog.SweepIntervalSeconds)
	assert.Equal(t, 600, cfg.Dialog.IdleTTLSeconds)
	assert.Equal(t, render.ModeImage, cfg.Render.Mode)
	assert.Equal(t, 200, cfg.Render.CropTopPx)
	assert.Equal(t, 120, cfg.Render.TimeoutSeconds)
	assert.Equal(t, "5432", cfg.Database.Port)
	assert.Same(t, &cfg.Config, cfg.CoreConfig())

	opts := cfg.RenderOptions()
	assert.Equal(t, "ticket.jpg", opts.Template)
	assert.Equal(t, "Roboto-Regular.ttf", opts.FontRegular)
	assert.Equal(t, 200, opts.CropTopPx)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("BOT_TOKEN", "999:env")
	t.Setenv("DB_HOST", "pg.internal")
	t.Setenv("RENDER_MODE", "VIDEO")
	t.Setenv("RENDER_BASE_VIDEO", "base.mp4")

	cfg, err := LoadConfig(writeConfig(t, minimalYAML))
	require.NoError(t, err)
	assert.Equal(t, "999:env", cfg.Telegram.Token)
	assert.Equal(t, "pg.internal", cfg.Database.Host)
	assert.Equal(t, render.ModeVideo, cfg.Render.Mode)
}

func TestLoadConfigValidation(t *testing.T) {
	cases := map[string]string{
		// minimalYAML ends inside the render section.
		"video without base": minimalYAML + "  mode: video\n",
		"bad metrics addr":   minimalYAML + "metrics:\n  listen: nope\n",
		"bad sslmode": `
telegram:
  token: "123:abc"
  admin_id: 42
render:
  template: ticket.jpg
database:
  host: db
  user: bot
  name: tickets
  sslmode: maybe
`,
		"missing fonts": `
telegram:
  token: "123:abc"
  admin_id: 42
database:
  host: db
  user: bot
  name: tickets
render:
  template: ticket.jpg
`,
		"missing database": `
telegram:
  token: "123:abc"
  admin_id: 42
render:
  template: ticket.jpg
`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, body))
			assert.Error(t, err)
		})
	}

	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
