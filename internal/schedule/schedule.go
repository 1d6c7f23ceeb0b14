// Package schedule starts a session once a day at a fixed local time.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrWong99/matin/internal/settings"
)

// ErrNoTime is returned when neither the settings nor the config name a time.
var ErrNoTime = errors.New("schedule: no session time configured")

// DefaultRetry is how long Daily waits before asking At again after an error.
const DefaultRetry = time.Minute

// Clock is a wall-clock time of day.
type Clock struct {
	Hour, Minute int
}

// Parse reads an "HH:MM" 24-hour time.
func Parse(s string) (Clock, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return Clock{}, fmt.Errorf("schedule: parse %q: %w", s, err)
	}
	return Clock{Hour: t.Hour(), Minute: t.Minute()}, nil
}

func (c Clock) String() string { return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute) }

// Next returns the first occurrence of c strictly after now, in now's
// location.
func (c Clock) Next(now time.Time) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), c.Hour, c.Minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// Resolve picks the session time: the "time" setting wins over fallback.
func Resolve(s settings.Store, fallback string) (Clock, error) {
	at := fallback
	if s != nil {
		if v := s.Lookup(settings.Time); v != "" {
			at = v
		}
	}
	if at == "" {
		return Clock{}, ErrNoTime
	}
	return Parse(at)
}

// Daily runs a job every day at the time returned by At. At is called again
// before each wait so that a changed setting applies to the next day.
type Daily struct {
	At  func() (Clock, error)
	Job func(ctx context.Context) error

	// Retry is the wait after an At error. Defaults to DefaultRetry.
	Retry time.Duration

	// Now and After default to time.Now and time.After.
	Now   func() time.Time
	After func(time.Duration) <-chan time.Time
}

// Run blocks until ctx is cancelled and then returns ctx.Err(). Neither Job
// nor At errors stop the schedule: a failed job waits for the next day and a
// failed At is asked again after Retry, so a bad setting can be corrected
// while the process runs.
func (d *Daily) Run(ctx context.Context) error {
	now, after := d.Now, d.After
	if now == nil {
		now = time.Now
	}
	if after == nil {
		after = time.After
	}
	retry := d.Retry
	if retry <= 0 {
		retry = DefaultRetry
	}

	for {
		at, err := d.At()
		if err != nil {
			slog.Error("session time unavailable, retrying", "err", err, "retry", retry)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-after(retry):
			}
			continue
		}
		next := at.Next(now())
		slog.Info("next session scheduled", "at", next.Format(time.DateTime))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-after(next.Sub(now())):
		}

		if err := d.Job(ctx); err != nil && ctx.Err() == nil {
			slog.Error("scheduled session failed", "err", err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}
