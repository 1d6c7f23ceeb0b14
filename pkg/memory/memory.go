// Package memory archives finished coaching conversations.
//
// The archive is append-only: a session's entries are written once when the
// session ends and can be read back by session or searched by keyword.
// Implementations must be safe for concurrent use.
package memory

import (
	"context"
	"time"

	"github.com/MrWong99/matin/pkg/types"
)

// SearchOpts narrows a keyword search. All non-zero fields are applied as AND
// conditions.
type SearchOpts struct {
	// SessionID restricts the search to a single session.
	SessionID string

	// Role restricts results to one author role.
	Role string

	// After and Before bound the entry timestamp (both exclusive). A zero
	// Time disables the bound.
	After  time.Time
	Before time.Time

	// Limit caps the number of results. Zero means no limit.
	Limit int
}

// Archive stores conversation transcripts.
type Archive interface {
	// Write appends entries. Entries of one call are written atomically.
	Write(ctx context.Context, entries []types.TranscriptEntry) error

	// Session returns the entries of sessionID ordered by Seq.
	Session(ctx context.Context, sessionID string) ([]types.TranscriptEntry, error)

	// Search runs a full-text query over entry text.
	Search(ctx context.Context, query string, opts SearchOpts) ([]types.TranscriptEntry, error)
}
