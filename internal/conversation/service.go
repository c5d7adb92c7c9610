// Package conversation runs inbound messages through the admission pipeline
// (private chat, rate limit, access, per-user lock) and the dialog engine.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/m3rciful/ticketbot/core/logger"
	"github.com/m3rciful/ticketbot/internal/access"
	"github.com/m3rciful/ticketbot/internal/dialog"
	"github.com/m3rciful/ticketbot/internal/metrics"
	"github.com/m3rciful/ticketbot/internal/render"
	"github.com/m3rciful/ticketbot/internal/usermutex"
)

// User-visible texts sent by the pipeline.
const (
	MsgPrivateOnly     = "Бот работает только в личных сообщениях. Напишите мне в личку."
	MsgRateLimited     = "Слишком много сообщений. Подождите пару секунд 🙏"
	MsgBusy            = "Подождите секунду и повторите 🙏"
	MsgNoAccess        = "⛔ Нет доступа. Запрос отправлен администратору, дождитесь подтверждения."
	MsgTicketCaption   = "Ваш билет 🎟️"
	MsgDone            = "✅ Готово! Введите любой символ для нового билета."
	MsgRenderFailed    = "Ошибка при генерации: "
	MsgSendFailed      = "Не удалось отправить билет. Введите любой символ и попробуйте снова."
	MsgInternalFailure = "Произошла ошибка. Нажмите /start и попробуйте снова."
)

// Outcome is the terminal result of one inbound event.
type Outcome string

const (
	OutcomeOK              Outcome = "ok"
	OutcomeRejectedChat    Outcome = "rejected_chat"
	OutcomeRateLimited     Outcome = "rate_limited"
	OutcomeUnauthorized    Outcome = "unauthorized"
	OutcomeLockTimeout     Outcome = "lock_timeout"
	OutcomeInvalidInput    Outcome = "invalid_input"
	OutcomeRendered        Outcome = "rendered"
	OutcomeRenderFailed    Outcome = "render_failed"
	OutcomeUnexpectedState Outcome = "unexpected_state"
	OutcomeReset           Outcome = "reset"
)

// Inbound is a transport-neutral text event.
type Inbound struct {
	UserID    int64
	ChatID    int64
	Text      string
	Private   bool
	Username  string
	FirstName string
	LastName  string
}

func (in Inbound) request() access.Request {
	return access.Request{
		UserID:    in.UserID,
		Username:  in.Username,
		FirstName: in.FirstName,
		LastName:  in.LastName,
	}
}

// Outbound delivers replies for one event.
type Outbound interface {
	SendText(ctx context.Context, chatID int64, text string) error
	SendArtifact(ctx context.Context, chatID int64, path, caption string) error
}

// Limiter admits or rejects events per user.
type Limiter interface {
	Admit(user int64) bool
}

// Gate authorizes users and announces newcomers.
type Gate interface {
	Authorize(ctx context.Context, req access.Request, n access.Notifier) bool
}

// Deps are the collaborators of a Service.
type Deps struct {
	Store    *dialog.Store
	Engine   *dialog.Engine
	Limiter  Limiter
	Gate     Gate
	Notifier access.Notifier
	Locks    *usermutex.Table
	Renderer render.Renderer
	Metrics  *metrics.Metrics

	LockTimeout   time.Duration
	RenderTimeout time.Duration
}

// Service is the dialog entry point. It is safe for concurrent use.
type Service struct {
	Deps
	log *slog.Logger
}

// New validates deps and returns a Service.
func New(deps Deps) (*Service, error) {
	switch {
	case deps.Store == nil:
		return nil, errors.New("conversation: nil store")
	case deps.Engine == nil:
		return nil, errors.New("conversation: nil engine")
	case deps.Limiter == nil:
		return nil, errors.New("conversation: nil limiter")
	case deps.Gate == nil:
		return nil, errors.New("conversation: nil gate")
	case deps.Locks == nil:
		return nil, errors.New("conversation: nil lock table")
	case deps.Renderer == nil:
		return nil, errors.New("conversation: nil renderer")
	}
	return &Service{Deps: deps, log: logger.Component("dialog")}, nil
}

// HandleMessage feeds one text message into the user's dialog. The returned
// error reports transport failures only; the outcome is always meaningful.
func (s *Service) HandleMessage(ctx context.Context, in Inbound, out Outbound) (Outcome, error) {
	return s.run(ctx, in, out, func(ctx context.Context) (Outcome, error) {
		return s.step(ctx, in, out)
	})
}

// Reset discards the user's dialog and sends the first prompt.
func (s *Service) Reset(ctx context.Context, in Inbound, out Outbound) (Outcome, error) {
	return s.run(ctx, in, out, func(ctx context.Context) (Outcome, error) {
		s.Store.Put(in.UserID, dialog.State{})
		return OutcomeReset, out.SendText(ctx, in.ChatID, dialog.MsgStart)
	})
}

func (s *Service) run(ctx context.Context, in Inbound, out Outbound, fn func(context.Context) (Outcome, error)) (outcome Outcome, err error) {
	start := time.Now()
	defer func() {
		s.Metrics.ObserveOutcome(string(outcome))
		level := slog.LevelDebug
		if err != nil {
			level = slog.LevelWarn
		}
		attrs := []slog.Attr{
			slog.String("outcome", string(outcome)),
			slog.Duration("duration", logger.Took(start)),
		}
		if err != nil {
			attrs = append(attrs, slog.String("err", err.Error()))
		}
		logger.LogEvent(ctx, s.log, level, "dialog.event", attrs...)
	}()

	if !in.Private {
		return OutcomeRejectedChat, out.SendText(ctx, in.ChatID, MsgPrivateOnly)
	}
	if !s.Limiter.Admit(in.UserID) {
		return OutcomeRateLimited, out.SendText(ctx, in.ChatID, MsgRateLimited)
	}
	if !s.Gate.Authorize(ctx, in.request(), s.Notifier) {
		return OutcomeUnauthorized, out.SendText(ctx, in.ChatID, MsgNoAccess)
	}

	lockErr := s.Locks.With(ctx, in.UserID, s.LockTimeout, func(ctx context.Context) error {
		outcome, err = s.guarded(ctx, in, out, fn)
		return nil
	})
	if lockErr != nil {
		if errors.Is(lockErr, usermutex.ErrTimeout) {
			return OutcomeLockTimeout, out.SendText(ctx, in.ChatID, MsgBusy)
		}
		return OutcomeLockTimeout, lockErr
	}
	return outcome, err
}

// guarded converts a panic in the locked section into a reset of the session.
func (s *Service) guarded(ctx context.Context, in Inbound, out Outbound, fn func(context.Context) (Outcome, error)) (outcome Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.Store.Delete(in.UserID)
			logger.LogEvent(ctx, s.log, slog.LevelError, "dialog.panic", slog.Any("panic", r))
			outcome = OutcomeUnexpectedState
			err = errors.Join(fmt.Errorf("conversation: panic: %v", r), out.SendText(ctx, in.ChatID, MsgInternalFailure))
		}
	}()
	return fn(ctx)
}

func (s *Service) step(ctx context.Context, in Inbound, out Outbound) (Outcome, error) {
	st := s.Store.GetOrCreate(in.UserID)
	next, act := s.Engine.Transition(st, in.Text)

	switch act.Kind {
	case dialog.ActionPrompt:
		s.Store.Put(in.UserID, next)
		outcome := OutcomeOK
		if act.Invalid {
			outcome = OutcomeInvalidInput
		}
		return outcome, out.SendText(ctx, in.ChatID, act.Text)

	case dialog.ActionRender:
		s.Store.Put(in.UserID, next)
		defer s.Store.Delete(in.UserID)
		return s.render(ctx, in, out, *act.Ticket)

	default:
		s.Store.Delete(in.UserID)
		logger.LogEvent(ctx, s.log, slog.LevelError, "dialog.unexpected_state",
			slog.String("step", string(st.Step())),
		)
		return OutcomeUnexpectedState, out.SendText(ctx, in.ChatID, act.Text)
	}
}

func (s *Service) render(ctx context.Context, in Inbound, out Outbound, t dialog.Ticket) (Outcome, error) {
	renderCtx := ctx
	if s.RenderTimeout > 0 {
		var cancel context.CancelFunc
		renderCtx, cancel = context.WithTimeout(ctx, s.RenderTimeout)
		defer cancel()
	}

	start := time.Now()
	art, err := s.Renderer.Render(renderCtx, t)
	s.Metrics.ObserveRender(err, time.Since(start))
	if err != nil {
		_ = art.Cleanup()
		logger.LogEvent(ctx, s.log, slog.LevelWarn, "dialog.render",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
		return OutcomeRenderFailed, out.SendText(ctx, in.ChatID, MsgRenderFailed+err.Error())
	}
	defer func() {
		if cerr := art.Cleanup(); cerr != nil {
			logger.LogEvent(ctx, s.log, slog.LevelWarn, "dialog.cleanup", slog.String("err", cerr.Error()))
		}
	}()

	if err := out.SendArtifact(ctx, in.ChatID, art.Primary, MsgTicketCaption); err != nil {
		logger.LogEvent(ctx, s.log, slog.LevelWarn, "dialog.send_artifact",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
		return OutcomeRenderFailed, errors.Join(err, out.SendText(ctx, in.ChatID, MsgSendFailed))
	}
	logger.LogEvent(ctx, s.log, slog.LevelInfo, "ticket.generated",
		slog.String("user", in.request().Compact()),
		slog.String("transport", t.TransportLabel),
		slog.String("route_num", t.RouteNum),
		slog.String("route", t.Route),
		slog.String("garage_number", t.GarageNumber),
	)
	return OutcomeRendered, out.SendText(ctx, in.ChatID, MsgDone)
}
