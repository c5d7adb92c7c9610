// Package app wires configuration, storage, the conversation pipeline and
// the Telegram runtime into a runnable bot.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"golang.org/x/sync/errgroup"

	"github.com/m3rciful/ticketbot/core/bootstrap"
	corecmd "github.com/m3rciful/ticketbot/core/cmd"
	coreconfig "github.com/m3rciful/ticketbot/core/config"
	"github.com/m3rciful/ticketbot/core/logger"
	tg "github.com/m3rciful/ticketbot/core/telegram"
	"github.com/m3rciful/ticketbot/core/telegram/commands"
	"github.com/m3rciful/ticketbot/core/telegram/middleware"
	"github.com/m3rciful/ticketbot/core/telegram/router"
	tgsender "github.com/m3rciful/ticketbot/core/telegram/sender"
	"github.com/m3rciful/ticketbot/internal/access"
	"github.com/m3rciful/ticketbot/internal/conversation"
	"github.com/m3rciful/ticketbot/internal/dialog"
	"github.com/m3rciful/ticketbot/internal/janitor"
	"github.com/m3rciful/ticketbot/internal/metrics"
	"github.com/m3rciful/ticketbot/internal/ratelimit"
	"github.com/m3rciful/ticketbot/internal/render"
	"github.com/m3rciful/ticketbot/internal/usermutex"
	"github.com/m3rciful/ticketbot/migrations"

	tele "gopkg.in/telebot.v4"
)

// allowedUpdates are the only update kinds the bot handles.
var allowedUpdates = []string{"message", "callback_query"}

// App holds the long-lived components of a running bot.
type App struct {
	cfg *Config
	db  *sqlx.DB

	gate      *access.Gate
	notifier  *adminNotifier
	store     *dialog.Store
	locks     *usermutex.Table
	limiter   *ratelimit.Limiter
	cbLimiter *ratelimit.Limiter
	metrics   *metrics.Metrics
	service   *conversation.Service
	janitor   *janitor.Janitor
}

// Load adapts LoadConfig to the runner.
func Load(path string) (corecmd.ConfigCarrier, error) {
	return LoadConfig(path)
}

// Bootstrap connects storage, loads the allow-list and assembles the pipeline.
func Bootstrap(ctx context.Context, carrier corecmd.ConfigCarrier) (corecmd.TelegramApp, error) {
	cfg, ok := carrier.(*Config)
	if !ok || cfg == nil {
		return nil, fmt.Errorf("app: unexpected config type %T", carrier)
	}

	var gate *access.Gate
	res, err := bootstrap.Run(ctx, bootstrap.Options{
		Config:     &cfg.Config,
		Database:   cfg.Database,
		Migrations: migrations.FS,
		Seeders: []bootstrap.Seeder{
			bootstrap.SeederFunc(func(ctx context.Context, db *sqlx.DB) error {
				gate = access.NewGate(access.NewPostgresStore(db), cfg.Telegram.AdminID)
				if err := gate.EnsureAdmin(ctx); err != nil {
					return fmt.Errorf("ensure admin: %w", err)
				}
				return gate.Load(ctx)
			}),
		},
	})
	if err != nil {
		return nil, err
	}

	a, err := assemble(cfg, gate)
	if err != nil {
		_ = res.DB.Close()
		return nil, err
	}
	a.db = res.DB
	return a, nil
}

// assemble builds everything that does not touch the database.
func assemble(cfg *Config, gate *access.Gate) (*App, error) {
	routes, err := dialog.LoadRoutes(cfg.Routes.File)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	renderer, err := render.New(cfg.RenderOptions())
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}

	window := cfg.RateLimit.Window()
	a := &App{
		cfg:       cfg,
		gate:      gate,
		notifier:  &adminNotifier{adminID: cfg.Telegram.AdminID},
		store:     dialog.NewStore(),
		locks:     usermutex.New(),
		limiter:   ratelimit.New(cfg.RateLimit.MaxEvents, window),
		cbLimiter: ratelimit.New(cfg.RateLimit.MaxEvents, window),
		metrics:   metrics.New(),
	}

	a.service, err = conversation.New(conversation.Deps{
		Store:         a.store,
		Engine:        dialog.NewEngine(routes),
		Limiter:       a.limiter,
		Gate:          gate,
		Notifier:      a.notifier,
		Locks:         a.locks,
		Renderer:      renderer,
		Metrics:       a.metrics,
		LockTimeout:   time.Duration(cfg.Dialog.LockTimeoutMS) * time.Millisecond,
		RenderTimeout: time.Duration(cfg.Render.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}

	a.janitor, err = janitor.New(a.locks, a.store,
		time.Duration(cfg.Dialog.IdleTTLSeconds)*time.Second,
		time.Duration(cfg.Dialog.SweepIntervalSeconds)*time.Second,
		a.limiter, a.cbLimiter,
	)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}

	a.metrics.Gauge("dialog_sessions", "Dialogs in progress.", func() float64 { return float64(a.store.Len()) })
	a.metrics.Gauge("user_locks", "Entries in the per-user lock table.", func() float64 { return float64(a.locks.Len()) })
	a.metrics.Gauge("rate_windows", "Users with an open rate window.", func() float64 { return float64(a.limiter.Len()) })
	return a, nil
}

// CoreConfig exposes the embedded core configuration.
func (a *App) CoreConfig() *coreconfig.Config { return a.cfg.CoreConfig() }

func (a *App) registry(h *handlers) (*tg.Registry, error) {
	reg := tg.NewRegistry()
	adminOnly := middleware.AdminOnlyMiddleware(middleware.AdminOptions{
		IsAdmin:  a.gate.IsAdmin,
		OnReject: h.adminOnly,
	})

	err := errors.Join(
		reg.RegisterCommand("/start", commands.Command{
			Handler:     h.start,
			Description: "Новый билет",
		}),
		reg.RegisterCommand("/allow", commands.Command{
			Handler:     h.allow,
			Description: "Выдать доступ: /allow <id> [role]",
			AdminOnly:   true,
		}),
		reg.RegisterCommand("/revoke", commands.Command{
			Handler:     h.revoke,
			Description: "Отозвать доступ: /revoke <id>",
			AdminOnly:   true,
		}),
		reg.RegisterCommand("/users", commands.Command{
			Handler:     h.users,
			Description: "Список пользователей",
			AdminOnly:   true,
		}),
		reg.RegisterCallback(cbApprove, adminOnly(h.approveAs(access.RoleUser))),
		reg.RegisterCallback(cbGuest, adminOnly(h.approveAs(access.RoleGuest))),
		reg.RegisterCallback(cbDeny, adminOnly(h.deny)),
	)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	reg.SetTextFallback(h.unknownCommand)
	return reg, nil
}

// TelegramRunOptions describes routes, middlewares and lifecycle hooks.
func (a *App) TelegramRunOptions() (tg.RunOptions, error) {
	if a.service == nil || a.gate == nil {
		return tg.RunOptions{}, errors.New("app: not bootstrapped")
	}
	h := &handlers{service: a.service, gate: a.gate, notifier: a.notifier}
	reg, err := a.registry(h)
	if err != nil {
		return tg.RunOptions{}, err
	}

	cmdRoutes := router.CommandRoutes(reg, router.CommandRouteOptions{
		IsAdmin:       a.gate.IsAdmin,
		OnAdminReject: h.adminOnly,
	})
	routes := append([]tg.Route{}, cmdRoutes...)
	routes = append(routes,
		router.TextRoute(reg, cmdRoutes, h.text),
		router.CallbackRoute(reg, router.CallbackOptions{}),
	)

	core := a.CoreConfig()
	return tg.RunOptions{
		Config:   core,
		Registry: reg,
		DispatcherOptions: tgsender.Options{
			MaxRetries: 2,
			Observe:    a.metrics.ObserveDispatch,
		},
		Middlewares: tg.DefaultMiddlewares(core, tg.MiddlewareOptions{
			Limiter:       a.cbLimiter,
			AlwaysExclude: []string{coreconfig.UpdateMessage},
			OnLimited: func(c tele.Context) error {
				if c.Callback() != nil {
					return c.Respond(&tele.CallbackResponse{Text: conversation.MsgRateLimited})
				}
				return nil
			},
			Sent: a.metrics,
		}),
		Routes:         routes,
		AllowedUpdates: allowedUpdates,
		OnStart: func(ctx context.Context, rt tg.Runtime) error {
			if rt.Bot != nil {
				a.notifier.attach(rt.Bot)
			}
			return nil
		},
		OnStop: func(ctx context.Context, rt tg.Runtime) error {
			a.notifier.attach(nil)
			if a.db != nil {
				return a.db.Close()
			}
			return nil
		},
	}, nil
}

// RunBackground runs the janitor and, when configured, the metrics server
// until ctx is done.
func (a *App) RunBackground(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.janitor.Run(gctx)
	})
	if addr := a.cfg.Metrics.Listen; addr != "" {
		g.Go(func() error {
			return a.metrics.Serve(gctx, addr)
		})
	} else {
		logger.LogEvent(ctx, logger.Component("metrics"), slog.LevelDebug, "metrics.listen",
			slog.String("status", "skip"),
		)
	}
	return g.Wait()
}
