package cmd

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreconfig "github.com/m3rciful/ticketbot/core/config"
	coretelegram "github.com/m3rciful/ticketbot/core/telegram"
)

type carrier struct{ cfg *coreconfig.Config }

func (c carrier) CoreConfig() *coreconfig.Config { return c.cfg }

type app struct {
	bgStarted chan struct{}
	bgErr     error
}

func (a *app) TelegramRunOptions() (coretelegram.RunOptions, error) {
	return coretelegram.RunOptions{}, nil
}

func (a *app) RunBackground(ctx context.Context) error {
	close(a.bgStarted)
	if a.bgErr != nil {
		return a.bgErr
	}
	<-ctx.Done()
	return nil
}

func baseOptions(application TelegramApp) Options {
	return Options{
		DefaultConfigPath: "config.yaml",
		LoadConfig: func(string) (ConfigCarrier, error) {
			return carrier{cfg: &coreconfig.Config{}}, nil
		},
		Bootstrap: func(context.Context, ConfigCarrier) (TelegramApp, error) {
			return application, nil
		},
		ShutdownLogger: func() error { return nil },
	}
}

func TestRunStopsBackgroundWhenBotReturns(t *testing.T) {
	a := &app{bgStarted: make(chan struct{})}
	opts := baseOptions(a)
	opts.RunTelegram = func(ctx context.Context, ro coretelegram.RunOptions) error {
		<-a.bgStarted
		require.NotNil(t, ro.OnStart)
		require.NoError(t, ro.OnStart(ctx, coretelegram.Runtime{}))
		return nil
	}
	assert.NoError(t, Run(opts))
}

func TestRunPropagatesBackgroundError(t *testing.T) {
	boom := errors.New("metrics listen failed")
	a := &app{bgStarted: make(chan struct{}), bgErr: boom}
	opts := baseOptions(a)
	opts.RunTelegram = func(ctx context.Context, _ coretelegram.RunOptions) error {
		<-ctx.Done()
		return nil
	}
	assert.ErrorIs(t, Run(opts), boom)
}

func TestRunValidatesOptions(t *testing.T) {
	assert.Error(t, Run(Options{}))
	opts := baseOptions(&app{bgStarted: make(chan struct{})})
	opts.DefaultConfigPath = ""
	opts.ConfigEnvVar = "TICKETBOT_TEST_UNSET_CONFIG"
	assert.Error(t, Run(opts))
}

func TestConfigPath(t *testing.T) {
	t.Setenv("BOT_CONFIG", "")
	_, err := configPath(Options{ConfigEnvVar: "BOT_CONFIG"})
	assert.ErrorContains(t, err, "BOT_CONFIG")

	p, err := configPath(Options{ConfigEnvVar: "BOT_CONFIG", DefaultConfigPath: "config.yaml"})
	require.NoError(t, err)
	assert.Equal(t, "config.yaml", p)

	t.Setenv("BOT_CONFIG", "/etc/bot.yaml")
	p, err = configPath(Options{ConfigEnvVar: "BOT_CONFIG", DefaultConfigPath: "config.yaml"})
	require.NoError(t, err)
	assert.Equal(t, "/etc/bot.yaml", p)
}

func TestLifecycleLogsChainHooks(t *testing.T) {
	var calls []string
	ro := coretelegram.RunOptions{
		OnStart: func(context.Context, coretelegram.Runtime) error { calls = append(calls, "start"); return nil },
		OnStop: func(context.Context, coretelegram.Runtime) error {
			calls = append(calls, "stop")
			return errors.New("close")
		},
	}
	withLifecycleLogs(&ro, time.Now())

	require.NoError(t, ro.OnStart(context.Background(), coretelegram.Runtime{}))
	assert.EqualError(t, ro.OnStop(context.Background(), coretelegram.Runtime{}), "close")
	assert.Equal(t, []string{"start", "stop"}, calls)
}
