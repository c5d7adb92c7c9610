package telegram

import (
	"strings"

	coreconfig "github.com/m3rciful/ticketbot/core/config"
	"github.com/m3rciful/ticketbot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// MiddlewareOptions feeds DefaultMiddlewares.
type MiddlewareOptions struct {
	// Limiter enables the rate limit stage when set.
	Limiter middleware.Admitter
	// AlwaysExclude is merged with rate_limit.exclude_updates, for update
	// kinds that are limited further down the pipeline.
	AlwaysExclude []string
	OnLimited     tele.HandlerFunc
	// Sent counts outbound messages per kind.
	Sent middleware.SentObserver
}

// DefaultMiddlewares builds the shared middleware chain for bots.
func DefaultMiddlewares(cfg *coreconfig.Config, opts MiddlewareOptions) []Middleware {
	mws := []Middleware{
		{Name: "recover", Use: middleware.RecoverMiddleware},
	}

	if cfg != nil && opts.Limiter != nil {
		ex := make(map[string]struct{}, len(cfg.RateLimit.ExcludeUpdates)+len(opts.AlwaysExclude))
		for _, t := range append(append([]string(nil), cfg.RateLimit.ExcludeUpdates...), opts.AlwaysExclude...) {
			ex[strings.ToLower(strings.TrimSpace(t))] = struct{}{}
		}
		mws = append(mws, Middleware{
			Name: "rate_limit",
			Use: middleware.RateLimitMiddleware(middleware.RateLimitOptions{
				Limiter:   opts.Limiter,
				Exclude:   ex,
				OnLimited: opts.OnLimited,
			}),
		})
	}

	mws = append(mws,
		Middleware{Name: "logger", Use: middleware.LoggerMiddleware},
		Middleware{Name: "metrics", Use: middleware.MessageMetricsMiddleware(opts.Sent)},
	)

	return mws
}
