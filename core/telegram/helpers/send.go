package helpers

import (
	"errors"
	"log/slog"
	"path/filepath"
	"sync/atomic"

	"github.com/m3rciful/ticketbot/core/logger"
	"github.com/m3rciful/ticketbot/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

var globalDispatcher atomic.Pointer[sender.Dispatcher]

// SetDispatcher wires the asynchronous sender used by helper functions.
func SetDispatcher(d *sender.Dispatcher) {
	globalDispatcher.Store(d)
}

func currentDispatcher() *sender.Dispatcher {
	return globalDispatcher.Load()
}

// sendAsync queues run on the dispatcher shard of the current chat. With no
// dispatcher, or when the queue refuses the job, run executes inline.
func sendAsync(c tele.Context, action, endpoint string, run func() error) error {
	disp := currentDispatcher()
	if disp == nil {
		return run()
	}
	var chatID int64
	if chat := c.Chat(); chat != nil {
		chatID = chat.ID
	}
	ctx := BuildContext(c)
	err := disp.Enqueue(ctx, chatID, action, endpoint, run)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sender.ErrQueueFull), errors.Is(err, sender.ErrQueueClosed):
		logger.LogEvent(ctx, logger.Sender, slog.LevelWarn, "queue.fallback",
			slog.String("status", "skip"),
			slog.String("action", action),
			slog.String("endpoint", endpoint),
			slog.String("err", err.Error()),
		)
		return run()
	default:
		return err
	}
}

// SendText sends plain text to the current chat. opts are passed to
// tele.Context.Send unchanged.
func SendText(c tele.Context, text string, opts ...interface{}) error {
	return sendAsync(c, "send.text", "sendMessage", func() error {
		return c.Send(text, opts...)
	})
}

// SendDocument uploads the file at path as a document. It runs synchronously
// so the caller may remove the file once it returns.
func SendDocument(c tele.Context, path, caption string) error {
	return c.Send(&tele.Document{
		File:     tele.FromDisk(path),
		FileName: filepath.Base(path),
		Caption:  caption,
	})
}
