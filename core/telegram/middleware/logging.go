package middleware

import (
	"log/slog"
	"sync"

	"github.com/m3rciful/ticketbot/core/logger"
	"github.com/m3rciful/ticketbot/core/telegram/callbacks"
	tghelpers "github.com/m3rciful/ticketbot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// seenUpdates remembers the last ids that produced a receipt line.
type seenUpdates struct {
	mu   sync.Mutex
	ids  []int
	next int
	set  map[int]struct{}
}

func newSeenUpdates(size int) *seenUpdates {
	return &seenUpdates{ids: make([]int, 0, size), set: make(map[int]struct{}, size)}
}

// mark records id and reports whether it was already present. The oldest
// id is forgotten once the ring is full.
func (s *seenUpdates) mark(id int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.set[id]; ok {
		return true
	}
	if len(s.ids) < cap(s.ids) {
		s.ids = append(s.ids, id)
	} else {
		delete(s.set, s.ids[s.next])
		s.ids[s.next] = id
		s.next = (s.next + 1) % len(s.ids)
	}
	s.set[id] = struct{}{}
	return false
}

var receipts = newSeenUpdates(256)

// LoggerMiddleware starts the update context (rid and ids) and logs one
// sampled receipt line per update. Receipts are deduplicated by update_id
// since the middleware may be applied on more than one branch.
func LoggerMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		ctx, rid := tghelpers.NewUpdateContext(c)
		if logger.ShouldSampleDebug() && !receipts.mark(c.Update().ID) {
			logger.LogEvent(ctx, logger.Component("tg"), slog.LevelDebug, "update.received", receiptAttrs(c, rid)...)
		}
		return next(c)
	}
}

func receiptAttrs(c tele.Context, rid string) []slog.Attr {
	upd := c.Update()
	attrs := []slog.Attr{
		slog.String("status", "ok"),
		slog.String("rid", rid),
		slog.Int("update_id", upd.ID),
		slog.String("kind", UpdateKind(upd)),
	}
	if chat := c.Chat(); chat != nil {
		attrs = append(attrs, slog.Int64("chat_id", chat.ID), slog.String("chat_type", string(chat.Type)))
	}
	if user := c.Sender(); user != nil {
		attrs = append(attrs, slog.Int64("user_id", user.ID))
		if user.Username != "" {
			attrs = append(attrs, slog.String("username", logger.SanitizeLimit(user.Username, 64)))
		}
		if user.LanguageCode != "" {
			attrs = append(attrs, slog.String("lang", user.LanguageCode))
		}
	}

	switch {
	case upd.Callback != nil:
		key, payload := callbacks.ParseCallbackData(upd.Callback)
		if key != "" {
			attrs = append(attrs, slog.String("cb_key", logger.SanitizeLimit(key, 128)))
		}
		if payload != "" {
			attrs = append(attrs, slog.String("payload", logger.SanitizeLimit(payload, 256)))
		}
	case upd.Message != nil:
		if t := c.Text(); t != "" {
			attrs = append(attrs, slog.String("payload", logger.SanitizeLimit(t, 256)))
		}
	}
	return attrs
}
