package router

import (
	"strings"

	tg "github.com/m3rciful/ticketbot/core/telegram"

	tele "gopkg.in/telebot.v4"
)

// TextHandler consumes a plain text message and reports the pipeline outcome
// for the handler summary log.
type TextHandler func(c tele.Context) (outcome string, err error)

// TextRoute routes text updates. Slash-prefixed text resolves command
// aliases against cmds (the wrapped routes from CommandRoutes) and falls back
// to reg.TextFallback; any other text goes to dialog.
func TextRoute(reg *tg.Registry, cmds []tg.Route, dialog TextHandler) tg.Route {
	wrapped := make(map[string]tele.HandlerFunc, len(cmds))
	for _, r := range cmds {
		if ep, ok := r.Endpoint.(string); ok {
			wrapped[ep] = r.Handler
		}
	}

	handler := func(c tele.Context) error {
		text := strings.TrimSpace(c.Text())

		if strings.HasPrefix(text, "/") && reg != nil {
			if key, _, ok := reg.LookupCommand(firstWord(text)); ok {
				if h := wrapped[key]; h != nil {
					return h(c)
				}
			}
			if fb := reg.TextFallback(); fb != nil {
				return newSummary("unknown_command").skipped().run(c, fb)
			}
			newSummary("unknown_command").skipped().log(c, nil)
			return nil
		}

		if dialog == nil {
			newSummary("text").skipped().log(c, nil)
			return nil
		}
		sum := newSummary("dialog")
		outcome, err := dialog(c)
		sum.outcome = outcome
		sum.log(c, err)
		return err
	}

	return tg.Route{Endpoint: tele.OnText, Handler: handler}
}

func firstWord(s string) string {
	if i := strings.IndexAny(s, " \n\t@"); i >= 0 {
		return s[:i]
	}
	return s
}
