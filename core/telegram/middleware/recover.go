package middleware

import (
	"log/slog"
	"runtime/debug"

	"github.com/m3rciful/ticketbot/core/logger"
	tghelpers "github.com/m3rciful/ticketbot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// PanicReply is sent to the user when a handler panics. Empty disables the reply.
var PanicReply = "Произошла ошибка. Нажмите /start и попробуйте снова."

// RecoverMiddleware catches panics in handlers and prevents the bot from crashing.
func RecoverMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) (err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.LogEvent(tghelpers.BuildContext(c), logger.TG, slog.LevelError, "tg.panic",
					slog.String("status", "fail"),
					slog.Any("err", r),
					slog.String("stack", string(debug.Stack())),
				)
				if PanicReply != "" && c.Chat() != nil {
					_ = c.Send(PanicReply)
				}
				err = nil
			}
		}()
		return next(c)
	}
}
