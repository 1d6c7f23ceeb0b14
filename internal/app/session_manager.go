package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/matin/internal/config"
)

// ErrSessionActive is returned when a session is requested while another one
// is still running. Only one session can own the microphone.
var ErrSessionActive = errors.New("app: a session is already active")

// SessionInfo describes the running or last session.
type SessionInfo struct {
	SessionID string
	Mode      config.Mode
	StartedAt time.Time
}

// SessionManager enforces a single active session and remembers how the last
// one ended. It is safe for concurrent use.
type SessionManager struct {
	mu      sync.Mutex
	active  bool
	info    SessionInfo
	cancel  context.CancelFunc
	lastErr error
	now     func() time.Time
}

// NewSessionManager returns an idle manager.
func NewSessionManager() *SessionManager {
	return &SessionManager{now: time.Now}
}

// begin marks a session as active and returns its context. The caller must
// call end with the same ID.
func (sm *SessionManager) begin(ctx context.Context, mode config.Mode) (context.Context, SessionInfo, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.active {
		return nil, SessionInfo{}, fmt.Errorf("%w (id=%s)", ErrSessionActive, sm.info.SessionID)
	}

	now := sm.now().UTC()
	info := SessionInfo{
		SessionID: "session-" + now.Format("20060102T150405Z"),
		Mode:      mode,
		StartedAt: now,
	}
	sctx, cancel := context.WithCancel(ctx)

	sm.active = true
	sm.info = info
	sm.cancel = cancel
	slog.Info("session started", "session_id", info.SessionID, "mode", mode)
	return sctx, info, nil
}

func (sm *SessionManager) end(id string, err error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if !sm.active || sm.info.SessionID != id {
		return
	}
	sm.cancel()
	sm.active = false
	sm.cancel = nil
	sm.lastErr = err
	slog.Info("session stopped", "session_id", id, "err", err)
}

// Stop cancels the active session, if any. The session still runs its
// end-of-session bookkeeping.
func (sm *SessionManager) Stop() {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.active {
		sm.cancel()
	}
}

// IsActive reports whether a session is running.
func (sm *SessionManager) IsActive() bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.active
}

// Info returns the running or most recent session.
func (sm *SessionManager) Info() SessionInfo {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.info
}

// LastErr is the error the most recent session ended with.
func (sm *SessionManager) LastErr() error {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.lastErr
}

// Status is a one-word summary for the liveness probe.
func (sm *SessionManager) Status() string {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	switch {
	case sm.active:
		return "active"
	case sm.lastErr != nil:
		return "failed"
	default:
		return "idle"
	}
}
