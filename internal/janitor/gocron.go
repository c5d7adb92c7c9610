package janitor

import (
	"context"
	"log/slog"

	"github.com/go-co-op/gocron/v2"
)

// schedulerLogger routes gocron's own messages into the structured logger.
type schedulerLogger struct{ log *slog.Logger }

func newSchedulerLogger(log *slog.Logger) gocron.Logger {
	return schedulerLogger{log: log}
}

func (l schedulerLogger) Debug(msg string, args ...any) { l.emit(slog.LevelDebug, msg, args) }
func (l schedulerLogger) Info(msg string, args ...any)  { l.emit(slog.LevelInfo, msg, args) }
func (l schedulerLogger) Warn(msg string, args ...any)  { l.emit(slog.LevelWarn, msg, args) }
func (l schedulerLogger) Error(msg string, args ...any) { l.emit(slog.LevelError, msg, args) }

func (l schedulerLogger) emit(level slog.Level, msg string, args []any) {
	all := append([]any{"event", "scheduler", "scheduler_msg", msg}, renameErr(args)...)
	l.log.Log(context.Background(), level, msg, all...)
}

// renameErr maps gocron's "error" key to the "err" key used elsewhere.
func renameErr(args []any) []any {
	out := make([]any, 0, len(args))
	for i := 0; i < len(args); i++ {
		if i+1 < len(args) {
			if k, ok := args[i].(string); ok && k == "error" {
				out = append(out, "err", args[i+1])
				i++
				continue
			}
		}
		out = append(out, args[i])
	}
	return out
}
