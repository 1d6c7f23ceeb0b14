// Package mock provides an in-memory [memory.Archive] for tests.
//
// Archive records every call and keeps written entries so that Session and
// Search answer from them. It is safe for concurrent use.
package mock

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/MrWong99/matin/pkg/memory"
	"github.com/MrWong99/matin/pkg/types"
)

var _ memory.Archive = (*Archive)(nil)

// Call records the name and arguments of one method invocation.
type Call struct {
	Method string
	Args   []any
}

// Archive is a configurable test double.
type Archive struct {
	mu      sync.Mutex
	calls   []Call
	entries []types.TranscriptEntry

	// WriteErr, SessionErr and SearchErr are returned when non-nil.
	WriteErr   error
	SessionErr error
	SearchErr  error
}

// Calls returns a copy of all recorded invocations.
func (m *Archive) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.calls)
}

// CallCount returns how many times method was invoked.
func (m *Archive) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// Entries returns everything successfully written so far.
func (m *Archive) Entries() []types.TranscriptEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.entries)
}

// Write implements [memory.Archive].
func (m *Archive) Write(_ context.Context, entries []types.TranscriptEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "Write", Args: []any{slices.Clone(entries)}})
	if m.WriteErr != nil {
		return m.WriteErr
	}
	m.entries = append(m.entries, entries...)
	return nil
}

// Session implements [memory.Archive].
func (m *Archive) Session(_ context.Context, sessionID string) ([]types.TranscriptEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "Session", Args: []any{sessionID}})
	if m.SessionErr != nil {
		return nil, m.SessionErr
	}
	out := []types.TranscriptEntry{}
	for _, e := range m.entries {
		if e.SessionID == sessionID {
			out = append(out, e)
		}
	}
	slices.SortStableFunc(out, func(a, b types.TranscriptEntry) int { return a.Seq - b.Seq })
	return out, nil
}

// Search implements [memory.Archive] with a case-insensitive substring match.
func (m *Archive) Search(_ context.Context, query string, opts memory.SearchOpts) ([]types.TranscriptEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "Search", Args: []any{query, opts}})
	if m.SearchErr != nil {
		return nil, m.SearchErr
	}
	q := strings.ToLower(query)
	out := []types.TranscriptEntry{}
	for _, e := range m.entries {
		switch {
		case !strings.Contains(strings.ToLower(e.Text), q),
			opts.SessionID != "" && e.SessionID != opts.SessionID,
			opts.Role != "" && e.Role != opts.Role,
			!opts.After.IsZero() && !e.Timestamp.After(opts.After),
			!opts.Before.IsZero() && !e.Timestamp.Before(opts.Before):
			continue
		}
		out = append(out, e)
		if opts.Limit > 0 && len(out) == opts.Limit {
			break
		}
	}
	return out, nil
}
