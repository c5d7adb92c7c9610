package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/m3rciful/ticketbot/core/telegram/callbacks"
	tghelpers "github.com/m3rciful/ticketbot/core/telegram/helpers"
	"github.com/m3rciful/ticketbot/core/telegram/keyboard"
	"github.com/m3rciful/ticketbot/internal/access"
	"github.com/m3rciful/ticketbot/internal/conversation"

	tele "gopkg.in/telebot.v4"
)

// Callback keys of the admin decision buttons.
const (
	cbApprove = "access_approve"
	cbGuest   = "access_guest"
	cbDeny    = "access_deny"
)

var errBotNotReady = errors.New("telegram bot is not started yet")

// contextOutbound answers through the update being handled.
type contextOutbound struct {
	c tele.Context
}

func (o contextOutbound) SendText(_ context.Context, _ int64, text string) error {
	return tghelpers.SendText(o.c, text)
}

func (o contextOutbound) SendArtifact(_ context.Context, _ int64, path, caption string) error {
	return tghelpers.SendDocument(o.c, path, caption)
}

func inboundFrom(c tele.Context) conversation.Inbound {
	in := conversation.Inbound{Text: c.Text()}
	if chat := c.Chat(); chat != nil {
		in.ChatID = chat.ID
		in.Private = chat.Type == tele.ChatPrivate
	}
	if u := c.Sender(); u != nil {
		in.UserID = u.ID
		in.Username = u.Username
		in.FirstName = u.FirstName
		in.LastName = u.LastName
	}
	return in
}

// botSender is the subset of *tele.Bot used for unsolicited messages.
type botSender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// adminNotifier delivers access requests to the admin chat. The bot is
// attached once the runtime has started.
type adminNotifier struct {
	adminID int64

	mu  sync.RWMutex
	bot botSender
}

func (n *adminNotifier) attach(b botSender) {
	n.mu.Lock()
	n.bot = b
	n.mu.Unlock()
}

func (n *adminNotifier) sender() botSender {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.bot
}

func (n *adminNotifier) NotifyAccessRequest(_ context.Context, req access.Request) error {
	bot := n.sender()
	if bot == nil {
		return errBotNotReady
	}
	_, err := bot.Send(&tele.User{ID: n.adminID}, accessRequestText(req), decisionKeyboard(req.UserID))
	if err != nil {
		return fmt.Errorf("notify admin: %w", err)
	}
	return nil
}

// tell sends text to user outside of any update; failures are returned for
// logging only.
func (n *adminNotifier) tell(user int64, text string) error {
	bot := n.sender()
	if bot == nil {
		return errBotNotReady
	}
	_, err := bot.Send(&tele.User{ID: user}, text)
	return err
}

func accessRequestText(req access.Request) string {
	return "🔐 Запрос доступа:\n" + req.Compact()
}

func decisionKeyboard(user int64) *tele.ReplyMarkup {
	id := strconv.FormatInt(user, 10)
	return keyboard.Inline().
		Row(keyboard.Btn("✅ Разрешить", cbApprove, id), keyboard.Btn("👤 Гость", cbGuest, id)).
		Row(keyboard.Btn("⛔ Отклонить", cbDeny, id)).
		Markup()
}

// decisionTarget extracts the user id carried by a decision button.
func decisionTarget(c tele.Context) (int64, error) {
	return callbacks.PayloadInt64(c)
}
