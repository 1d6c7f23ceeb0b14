package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/matin/internal/health"
	"github.com/MrWong99/matin/internal/observe"
	"github.com/MrWong99/matin/internal/report"
	"github.com/MrWong99/matin/internal/schedule"
	"github.com/MrWong99/matin/pkg/audio"
)

const (
	// DefaultListenAddr is used when server.listen_addr is unset.
	DefaultListenAddr = ":8080"

	shutdownTimeout = 10 * time.Second
)

// pinger is implemented by backends that can report their reachability.
type pinger interface {
	Ping(ctx context.Context) error
}

// Serve runs sessions on the daily schedule and serves the operational
// endpoints until ctx is cancelled, which is the normal way to stop it.
//
// A malformed session time fails Serve before anything starts. Without any
// session time the endpoints are still served and sessions only start
// through POST /session until a time is configured.
func (a *App) Serve(ctx context.Context) error {
	switch at, err := a.sessionTime(); {
	case errors.Is(err, schedule.ErrNoTime):
		slog.Warn("no session time configured, sessions start only on request")
	case err != nil:
		return err
	default:
		slog.Info("daily session scheduled", "at", at.String())
	}

	addr := a.Config().Server.ListenAddr
	if addr == "" {
		addr = DefaultListenAddr
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           a.Handler(ctx),
		ReadHeaderTimeout: 5 * time.Second,
	}

	daily := &schedule.Daily{
		At: a.sessionTime,
		Job: func(ctx context.Context) error {
			err := a.RunSession(ctx)
			if errors.Is(err, ErrSessionActive) {
				slog.Warn("scheduled session skipped", "err", err)
				return nil
			}
			return err
		},
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("http server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("app: http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	g.Go(func() error { return daily.Run(gctx) })

	err := g.Wait()
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return nil
	}
	return err
}

// sessionTime resolves the next session time from the settings and the
// config on every call, so edits apply to the next day.
func (a *App) sessionTime() (schedule.Clock, error) {
	c, err := schedule.Resolve(a.settings, a.Config().Schedule.At)
	if err != nil {
		return schedule.Clock{}, fmt.Errorf("app: session time: %w", err)
	}
	return c, nil
}

// Handler returns the operational HTTP API. Sessions started through it run
// on ctx.
//
//	GET  /healthz   liveness and session status
//	GET  /readyz    archive, settings and session readiness
//	GET  /metrics   Prometheus scrape endpoint
//	POST /session   start a session now
//	DELETE /session stop the running session
func (a *App) Handler(ctx context.Context) http.Handler {
	mux := http.NewServeMux()
	health.New(a.checkers(), health.WithSession(a.sessions.Status)).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("POST /session", func(w http.ResponseWriter, _ *http.Request) {
		if a.sessions.IsActive() {
			http.Error(w, ErrSessionActive.Error(), http.StatusConflict)
			return
		}
		go func() {
			if err := a.RunSession(ctx); err != nil && !errors.Is(err, ErrSessionActive) {
				slog.Error("manual session failed", "err", err)
			}
		}()
		w.WriteHeader(http.StatusAccepted)
	})
	mux.HandleFunc("DELETE /session", func(w http.ResponseWriter, _ *http.Request) {
		if !a.sessions.IsActive() {
			http.Error(w, "no active session", http.StatusNotFound)
			return
		}
		a.sessions.Stop()
		w.WriteHeader(http.StatusAccepted)
	})

	return report.Recover(observe.Middleware(a.metrics)(mux))
}

func (a *App) checkers() []health.Checker {
	var cs []health.Checker
	if p, ok := a.archive.(pinger); ok {
		cs = append(cs, health.Checker{Name: "archive", Check: p.Ping})
	}
	if db := a.settingsDB; db != nil {
		cs = append(cs, health.Checker{Name: "settings", Check: func(context.Context) error { return db.Ping() }})
	}
	cs = append(cs, health.Checker{Name: "session", Check: a.sessionReady})
	return cs
}

// sessionReady fails once a session could not open the audio devices; the
// next scheduled session would fail the same way.
func (a *App) sessionReady(context.Context) error {
	if err := a.sessions.LastErr(); errors.Is(err, audio.ErrDeviceUnavailable) {
		return err
	}
	return nil
}
