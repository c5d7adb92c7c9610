package router

import (
	"log/slog"

	tg "github.com/m3rciful/ticketbot/core/telegram"
	"github.com/m3rciful/ticketbot/core/telegram/callbacks"

	tele "gopkg.in/telebot.v4"
)

// CallbackOptions customises fallback behaviour for callbacks.
type CallbackOptions struct {
	// NotFound is used when the registry has no not-found handler.
	NotFound tele.HandlerFunc
}

// CallbackRoute dispatches inline button presses by their unique key.
// Unknown keys are answered so the client stops its spinner.
func CallbackRoute(reg *tg.Registry, opts CallbackOptions) tg.Route {
	return tg.Route{
		Endpoint: tele.OnCallback,
		Handler: func(c tele.Context) error {
			cb := c.Callback()
			if cb == nil {
				return nil
			}
			key, payload := callbacks.ParseCallbackData(cb)
			name := "callback." + normalizeHandlerName(key)
			extras := []slog.Attr{
				slog.String("cb_key", key),
				slog.Int("payload_len", len(payload)),
			}

			if h, ok := reg.GetCallback(key); ok && h != nil {
				return newSummary(name, extras...).run(c, h)
			}

			extras = append(extras, slog.String("reason", "not_found"))
			return newSummary(name, extras...).skipped().run(c, notFoundHandler(reg, opts))
		},
	}
}

func notFoundHandler(reg *tg.Registry, opts CallbackOptions) tele.HandlerFunc {
	if h := reg.CallbackNotFound(); h != nil {
		return h
	}
	if opts.NotFound != nil {
		return opts.NotFound
	}
	return func(c tele.Context) error { return c.Respond() }
}
