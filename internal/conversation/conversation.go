// Package conversation holds the ordered message log of one coaching session.
//
// A log is seeded with exactly two system messages, the coach persona and the
// user's checklist, which stay at the front for the lifetime of the session.
// After seeding only user and assistant messages may be appended.
//
// All methods are safe for concurrent use.
package conversation

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MrWong99/matin/pkg/types"
)

// Role identifies the author of a message.
type Role string

const (
	System    Role = types.RoleSystem
	User      Role = types.RoleUser
	Assistant Role = types.RoleAssistant
)

// ErrSeedOnly is returned by [Log.Append] for system messages. System messages
// only enter the log through [New].
var ErrSeedOnly = errors.New("conversation: system messages are only allowed as seeds")

// Message is one immutable entry of the log.
type Message struct {
	Role    Role
	Content string
	At      time.Time
}

// LLM converts m to the provider message type.
func (m Message) LLM() types.Message {
	return types.Message{Role: string(m.Role), Content: m.Content}
}

// Log is an append-only conversation history.
type Log struct {
	mu       sync.Mutex
	messages []Message
	now      func() time.Time
}

// New returns a log seeded with the persona and the checklist as system
// messages, in that order.
func New(persona, checklist string) *Log {
	l := &Log{now: time.Now}
	at := l.now()
	l.messages = []Message{
		{Role: System, Content: persona, At: at},
		{Role: System, Content: checklist, At: at},
	}
	return l
}

// Append adds m to the end of the log, stamping it with the current time when
// m.At is zero.
func (l *Log) Append(m Message) error {
	switch m.Role {
	case User, Assistant:
	case System:
		return ErrSeedOnly
	default:
		return fmt.Errorf("conversation: unknown role %q", m.Role)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if m.At.IsZero() {
		m.At = l.now()
	}
	l.messages = append(l.messages, m)
	return nil
}

// Snapshot returns a copy of the log in order.
func (l *Log) Snapshot() []Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Message(nil), l.messages...)
}

// Len returns the number of messages, seeds included.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.messages)
}

// Turns returns the number of user messages.
func (l *Log) Turns() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, m := range l.messages {
		if m.Role == User {
			n++
		}
	}
	return n
}

// LastAssistant returns the most recent assistant message, if any.
func (l *Log) LastAssistant() (Message, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := len(l.messages) - 1; i >= 0; i-- {
		if l.messages[i].Role == Assistant {
			return l.messages[i], true
		}
	}
	return Message{}, false
}

// Entries converts the log into archive rows for sessionID.
func (l *Log) Entries(sessionID string) []types.TranscriptEntry {
	msgs := l.Snapshot()
	out := make([]types.TranscriptEntry, len(msgs))
	for i, m := range msgs {
		out[i] = types.TranscriptEntry{
			SessionID: sessionID,
			Seq:       i,
			Role:      string(m.Role),
			Text:      m.Content,
			Timestamp: m.At,
		}
	}
	return out
}
