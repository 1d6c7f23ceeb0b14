// Package report forwards session errors to Sentry. Without a DSN every
// function is a no-op.
package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/getsentry/sentry-go"
)

// FlushTimeout bounds how long Flush waits for queued events.
const FlushTimeout = 2 * time.Second

var enabled atomic.Bool

// Init configures the global Sentry client.
func Init(dsn, environment, release string) error {
	if dsn == "" {
		return nil
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:         dsn,
		Environment: environment,
		Release:     release,
	})
	if err != nil {
		return fmt.Errorf("report: init sentry: %w", err)
	}
	enabled.Store(true)
	slog.Info("sentry initialized", "environment", environment)
	return nil
}

// Enabled reports whether Init succeeded with a DSN.
func Enabled() bool { return enabled.Load() }

// Capture sends err with the given tags. Context cancellation is not
// reported.
func Capture(err error, tags map[string]string) {
	if err == nil || !enabled.Load() || errors.Is(err, context.Canceled) {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		sentry.CaptureException(err)
	})
}

// Flush waits up to FlushTimeout for queued events to be sent.
func Flush() {
	if enabled.Load() {
		sentry.Flush(FlushTimeout)
	}
}

// Recover reports panics in next and answers 500.
func Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				slog.Error("http handler panic", "path", req.URL.Path, "panic", err)
				if enabled.Load() {
					hub := sentry.CurrentHub().Clone()
					hub.Scope().SetRequest(req)
					hub.RecoverWithContext(req.Context(), err)
					hub.Flush(FlushTimeout)
				}
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, req)
	})
}
