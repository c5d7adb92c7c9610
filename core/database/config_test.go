package database

import (
	"context"
	"errors"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigDefaultsAndDSN(t *testing.T) {
	cfg := Config{Host: "db", User: "bot", Password: "p@ss", Name: "tickets"}
	cfg.ApplyDefaults()

	assert.Equal(t, "5432", cfg.Port)
	assert.Equal(t, "disable", cfg.SSLMode)
	assert.Equal(t, 5, cfg.MaxConnections)
	assert.Equal(t, "user=bot password=p@ss host=db port=5432 dbname=tickets sslmode=disable", cfg.DSN())
	assert.Equal(t, "postgres://bot:p%40ss@db:5432/tickets?sslmode=disable", cfg.URL())
}

func TestListMigrationFiles(t *testing.T) {
	fsys := fstest.MapFS{
		"000002_b.up.sql":   {Data: []byte("select 1")},
		"000001_a.up.sql":   {Data: []byte("select 1")},
		"000001_a.down.sql": {Data: []byte("select 1")},
		"embed.go":          {Data: []byte("package migrations")},
	}
	files := listMigrationFiles(fsys)
	assert.Equal(t, []string{"000001_a.up.sql", "000002_b.up.sql"}, files)

	assert.Equal(t, []string{"000002_b.up.sql"}, selectApplied(files, 1, 2))
	assert.Nil(t, selectApplied(files, 2, 2))
	assert.Equal(t, uint64(12), parseVersion("000012_x.up.sql"))
	assert.Zero(t, parseVersion("junk"))
}

type flakyPinger struct{ failures int }

func (p *flakyPinger) PingContext(context.Context) error {
	if p.failures > 0 {
		p.failures--
		return errors.New("connection refused")
	}
	return nil
}

func TestWaitReady(t *testing.T) {
	attempts, err := waitReady(context.Background(), &flakyPinger{}, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 1, attempts)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	attempts, err = waitReady(ctx, &flakyPinger{failures: 100}, time.Minute)
	assert.Error(t, err)
	assert.Equal(t, 1, attempts)
}
