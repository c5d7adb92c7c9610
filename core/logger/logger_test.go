package logger

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	coreconfig "github.com/m3rciful/ticketbot/core/config"
)

func TestSelectFormat(t *testing.T) {
	cfg := func(format, profile string) *coreconfig.Config {
		c := &coreconfig.Config{}
		c.Logging.Format = format
		c.Logging.Profile = profile
		return c
	}

	assert.Equal(t, formatJSON, selectFormat(nil, true))
	assert.Equal(t, formatJSON, selectFormat(cfg("json", "dev"), true), "explicit format wins")
	assert.Equal(t, formatKV, selectFormat(cfg("pretty", ""), false))
	assert.Equal(t, formatKV, selectFormat(cfg("", "Dev"), false))
	assert.Equal(t, formatKV, selectFormat(cfg("", "prod"), true), "terminal output")
	assert.Equal(t, formatJSON, selectFormat(cfg("", "prod"), false))
}

func TestSelectLevel(t *testing.T) {
	c := &coreconfig.Config{}
	for in, want := range map[string]slog.Level{
		"":        slog.LevelInfo,
		"DEBUG":   slog.LevelDebug,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"verbose": slog.LevelInfo,
	} {
		c.Logging.Level = in
		assert.Equal(t, want, selectLevel(c), in)
	}
}

func TestParseDebugSample(t *testing.T) {
	c := &coreconfig.Config{}
	check := func(spec string, num, den int) {
		t.Helper()
		c.Logging.DebugSample = spec
		n, d := parseDebugSample(c)
		assert.Equal(t, num, n, spec)
		assert.Equal(t, den, d, spec)
	}
	check("", 1, 50)
	check("1/10", 1, 10)
	check("20", 1, 20)
	check("0/0", 0, 0)
	check("-1/5", 1, 50)
}

func TestSelectKeyOrder(t *testing.T) {
	c := &coreconfig.Config{}
	assert.Equal(t, defaultKeyOrder, selectKeyOrder(c))
	c.Logging.KeysOrder = " ts, event ,,level"
	assert.Equal(t, []string{"ts", "event", "level"}, selectKeyOrder(c))
}
