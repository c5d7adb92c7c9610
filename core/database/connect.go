package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/m3rciful/ticketbot/core/logger"
)

const (
	defaultReadyTimeout = 30 * time.Second
	pingTimeout         = 5 * time.Second
	retryEvery          = 2 * time.Second
	connMaxIdleTime     = 5 * time.Minute
)

// Connect opens the pool, waits until PostgreSQL answers and applies pool
// limits. It gives up after 30 seconds or when ctx is done.
func Connect(ctx context.Context, cfg Config) (*sqlx.DB, error) {
	start := time.Now()
	attrs := []any{
		slog.String("driver", "postgres"),
		slog.String("host", cfg.Host),
		slog.String("port", cfg.Port),
		slog.String("db", cfg.Name),
	}

	db, err := sqlx.Open("postgres", cfg.DSN())
	if err != nil {
		logger.DB.Error("db open failed", append(attrs,
			slog.String("event", "db.connect"),
			slog.String("err", err.Error()),
		)...)
		return nil, fmt.Errorf("db open: %w", err)
	}

	attempts, err := waitReady(ctx, db, defaultReadyTimeout)
	took := time.Since(start)
	if err != nil {
		_ = db.Close()
		logger.DB.Error("db connect failed", append(attrs,
			slog.String("event", "db.connect"),
			slog.Int("attempts", attempts),
			slog.Duration("duration", logger.RoundMS(took)),
			slog.String("err", err.Error()),
		)...)
		return nil, fmt.Errorf("db connect: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxConnections)
	db.SetConnMaxIdleTime(connMaxIdleTime)

	logger.DB.Info("db connected", append(attrs,
		slog.String("event", "db.connect"),
		slog.Int("pool_open", cfg.MaxConnections),
		slog.Int("attempts", attempts),
		slog.Duration("duration", logger.RoundMS(took)),
	)...)
	return db, nil
}

// pinger is the part of *sqlx.DB used while waiting for readiness.
type pinger interface {
	PingContext(ctx context.Context) error
}

// waitReady pings until success, timeout or ctx cancellation and returns
// the number of attempts made.
func waitReady(ctx context.Context, db pinger, timeout time.Duration) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	attempts := 0
	for {
		attempts++
		pctx, pcancel := context.WithTimeout(ctx, pingTimeout)
		err := db.PingContext(pctx)
		pcancel()
		if err == nil {
			return attempts, nil
		}
		logger.DB.Debug("db not ready",
			slog.String("event", "db.ping"),
			slog.Int("attempt", attempts),
			slog.String("err", err.Error()),
		)

		timer := time.NewTimer(retryEvery)
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempts, fmt.Errorf("database not ready: %w (last error: %v)", ctx.Err(), err)
		case <-timer.C:
		}
	}
}
