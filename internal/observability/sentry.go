// Package observability reports unexpected errors to Sentry.
package observability

import (
	"context"
	"time"

	"github.com/getsentry/sentry-go"
	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-gonic/gin"

	"github.com/irfndi/coinsight-go/internal/config"
)

// Enabled reports whether cfg turns reporting on.
func Enabled(cfg config.SentryConfig) bool {
	return cfg.Enabled && cfg.DSN != ""
}

// InitSentry configures the global Sentry client. Blank release and
// environment fall back to the service's own.
func InitSentry(cfg config.SentryConfig, fallbackRelease, fallbackEnv string) error {
	if !Enabled(cfg) {
		return nil
	}

	release := cfg.Release
	if release == "" {
		release = fallbackRelease
	}
	environment := cfg.Environment
	if environment == "" {
		environment = fallbackEnv
	}

	return sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      environment,
		Release:          release,
		EnableTracing:    cfg.TracesSampleRate > 0,
		TracesSampleRate: cfg.TracesSampleRate,
		AttachStacktrace: true,
	})
}

// Middleware attaches a per-request hub and reports panics before gin's
// recovery handler answers.
func Middleware() gin.HandlerFunc {
	return sentrygin.New(sentrygin.Options{
		Repanic: true,
		Timeout: 2 * time.Second,
	})
}

// Flush drains buffered events within ctx's deadline, or two seconds.
func Flush(ctx context.Context) {
	timeout := 2 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
		if timeout < 0 {
			timeout = 0
		}
	}
	sentry.Flush(timeout)
}

// CaptureException reports err on the hub carried by ctx, or on the global
// hub when there is none.
func CaptureException(ctx context.Context, err error) {
	if err == nil {
		return
	}
	if hub := sentry.GetHubFromContext(ctx); hub != nil {
		hub.CaptureException(err)
		return
	}
	sentry.CaptureException(err)
}

// CaptureRequestError reports a server-side failure on the request's hub.
// Requests that did not pass through Middleware are skipped.
func CaptureRequestError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	if hub := sentrygin.GetHubFromContext(c); hub != nil {
		hub.WithScope(func(scope *sentry.Scope) {
			scope.SetTag("route", c.FullPath())
			if userID := c.GetString("user_id"); userID != "" {
				scope.SetUser(sentry.User{ID: userID})
			}
			hub.CaptureException(err)
		})
	}
}
