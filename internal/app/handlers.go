package app

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/m3rciful/ticketbot/core/logger"
	tghelpers "github.com/m3rciful/ticketbot/core/telegram/helpers"
	"github.com/m3rciful/ticketbot/internal/access"
	"github.com/m3rciful/ticketbot/internal/conversation"

	tele "gopkg.in/telebot.v4"
)

// Admin-facing texts.
const (
	msgAdminOnly     = "⛔ Команда доступна только администратору."
	msgUnknownCmd    = "Неизвестная команда. Нажмите /start."
	msgAllowUsage    = "Использование: /allow <id> [user|guest|admin]"
	msgRevokeUsage   = "Использование: /revoke <id>"
	msgNoUsers       = "Список пуст."
	msgAccessGranted = "✅ Доступ открыт. Нажмите /start, чтобы начать."
	msgAccessDenied  = "⛔ В доступе отказано."
	msgBadPayload    = "Некорректные данные кнопки"
)

type handlers struct {
	service  *conversation.Service
	gate     *access.Gate
	notifier *adminNotifier
}

func (h *handlers) start(c tele.Context) error {
	_, err := h.service.Reset(tghelpers.BuildContext(c), inboundFrom(c), contextOutbound{c: c})
	return err
}

func (h *handlers) text(c tele.Context) (string, error) {
	outcome, err := h.service.HandleMessage(tghelpers.BuildContext(c), inboundFrom(c), contextOutbound{c: c})
	return string(outcome), err
}

func (h *handlers) adminOnly(c tele.Context) error {
	if c.Callback() != nil {
		return c.Respond(&tele.CallbackResponse{Text: msgAdminOnly})
	}
	return tghelpers.SendText(c, msgAdminOnly)
}

func (h *handlers) unknownCommand(c tele.Context) error {
	switch {
	case c.Chat() == nil:
		return nil
	case c.Chat().Type != tele.ChatPrivate:
		return tghelpers.SendText(c, conversation.MsgPrivateOnly)
	}
	return tghelpers.SendText(c, msgUnknownCmd)
}

// allow handles "/allow <id> [role]".
func (h *handlers) allow(c tele.Context) error {
	args := c.Args()
	if len(args) < 1 || len(args) > 2 {
		return tghelpers.SendText(c, msgAllowUsage)
	}
	user, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || user <= 0 {
		return tghelpers.SendText(c, msgAllowUsage)
	}
	role := access.RoleUser
	if len(args) == 2 {
		if role, err = access.ParseRole(args[1]); err != nil {
			return tghelpers.SendText(c, msgAllowUsage)
		}
	}

	ctx := tghelpers.BuildContext(c)
	if _, err := h.gate.Approve(ctx, user, role); err != nil {
		return fmt.Errorf("allow %d: %w", user, err)
	}
	h.tellUser(c, user, msgAccessGranted)
	return tghelpers.SendText(c, fmt.Sprintf("✅ %d добавлен (%s)", user, role))
}

// revoke handles "/revoke <id>".
func (h *handlers) revoke(c tele.Context) error {
	args := c.Args()
	if len(args) != 1 {
		return tghelpers.SendText(c, msgRevokeUsage)
	}
	user, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return tghelpers.SendText(c, msgRevokeUsage)
	}

	removed, err := h.gate.Revoke(tghelpers.BuildContext(c), user)
	switch {
	case errors.Is(err, access.ErrAdminRevoke):
		return tghelpers.SendText(c, "Нельзя удалить администратора.")
	case err != nil:
		return fmt.Errorf("revoke %d: %w", user, err)
	case !removed:
		return tghelpers.SendText(c, fmt.Sprintf("%d не найден в списке.", user))
	}
	return tghelpers.SendText(c, fmt.Sprintf("🗑 %d удалён.", user))
}

func (h *handlers) users(c tele.Context) error {
	return tghelpers.SendText(c, formatMembers(h.gate.List(), time.Now()))
}

// formatMembers lists user id and role per line, with the age of the grant
// when it is known.
func formatMembers(members []access.Member, now time.Time) string {
	if len(members) == 0 {
		return msgNoUsers
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Пользователи (%d):", len(members))
	for _, m := range members {
		fmt.Fprintf(&b, "\n%d  %s", m.UserID, m.Role)
		if !m.AddedAt.IsZero() {
			fmt.Fprintf(&b, "  (%s)", humanize.RelTime(m.AddedAt, now, "ago", "from now"))
		}
	}
	return b.String()
}

func (h *handlers) approveAs(role access.Role) tele.HandlerFunc {
	return func(c tele.Context) error {
		user, err := decisionTarget(c)
		if err != nil {
			return c.Respond(&tele.CallbackResponse{Text: msgBadPayload})
		}
		req, err := h.gate.Approve(tghelpers.BuildContext(c), user, role)
		if err != nil {
			_ = c.Respond(&tele.CallbackResponse{Text: "Ошибка сохранения"})
			return fmt.Errorf("approve %d: %w", user, err)
		}
		h.tellUser(c, user, msgAccessGranted)
		return h.closeRequest(c, req, fmt.Sprintf("✅ Разрешено (%s)", role))
	}
}

func (h *handlers) deny(c tele.Context) error {
	user, err := decisionTarget(c)
	if err != nil {
		return c.Respond(&tele.CallbackResponse{Text: msgBadPayload})
	}
	req := h.gate.Deny(tghelpers.BuildContext(c), user)
	h.tellUser(c, user, msgAccessDenied)
	return h.closeRequest(c, req, "⛔ Отклонено")
}

// closeRequest acknowledges the button press and replaces the request
// message with the decision, removing the keyboard.
func (h *handlers) closeRequest(c tele.Context, req access.Request, decision string) error {
	_ = c.Respond(&tele.CallbackResponse{Text: decision})
	text := accessRequestText(req) + "\n\n" + decision
	if err := c.Edit(text); err != nil {
		return tghelpers.SendText(c, text)
	}
	return nil
}

func (h *handlers) tellUser(c tele.Context, user int64, text string) {
	if err := h.notifier.tell(user, text); err != nil {
		logger.LogEvent(tghelpers.BuildContext(c), logger.Component("access"), slog.LevelWarn, "access.tell_user",
			slog.String("status", "fail"),
			slog.Int64("target_user_id", user),
			slog.String("err", err.Error()),
		)
	}
}
