// Package reasoning turns the conversation log into the coach's next reply.
//
// The reasoning model is offered a single tool, leave_conversation. When the
// model calls it the session is over and the reply is a leave reply.
package reasoning

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrWong99/matin/internal/conversation"
	"github.com/MrWong99/matin/internal/observe"
	"github.com/MrWong99/matin/pkg/provider/llm"
	"github.com/MrWong99/matin/pkg/types"
)

const (
	// DefaultMaxTokens caps the length of a spoken reply.
	DefaultMaxTokens = 120

	// LeaveTool is the name of the tool that ends the session.
	LeaveTool = "leave_conversation"

	// LeaveText is the text of every leave reply.
	LeaveText = "Goodbye!"

	leaveDescription = "The GPT AI can choose to call this function to leave the conversation whenever it appears finished, or if the user is unintelligible more than 3 times in a row."
)

// DefaultPersona is the system prompt that precedes the user's checklist.
const DefaultPersona = "You are an AI personal routine trainer. You greet the user in the morning, then go through the user-provided morning routine checklist and ensure that the user completes each task on the list in order. Make sure to keep your tone positive, but it is vital that the user completes each task - do not allow them to 'skip' tasks. The user uses speech-to-text to communicate, so some of their messages may be incorrect - if some text seems out of place, please ignore it. If the users sentence makes no sense in the context, tell them you don't understand and ask them to repeat themselves. If you receive any text like [SILENCE] or [MUSIC] please respond with - I didn't catch that. The following message is the prompt the user provided - their morning checklist. Call the leave_conversation function when the user has completed their morning routine, or whenever the AI would normally say goodbye"

// ErrEmptyReply is returned when the model answers with neither text nor a
// leave call.
var ErrEmptyReply = errors.New("reasoning: empty reply")

// Reply is the outcome of one reasoning request.
type Reply struct {
	Text string

	// Leave is set when the model ended the conversation. Text is then
	// [LeaveText].
	Leave bool
}

// Service produces the next reply for a conversation.
type Service interface {
	Reply(ctx context.Context, history []conversation.Message) (Reply, error)
}

// LeaveToolDefinition returns the schema offered to the model.
func LeaveToolDefinition() types.ToolDefinition {
	return types.ToolDefinition{
		Name:        LeaveTool,
		Description: leaveDescription,
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
	}
}

// Option configures an [LLM] service.
type Option func(*LLM)

// WithMaxTokens overrides [DefaultMaxTokens].
func WithMaxTokens(n int) Option {
	return func(s *LLM) {
		if n > 0 {
			s.maxTokens = n
		}
	}
}

// WithTemperature sets the sampling temperature. Zero keeps the provider default.
func WithTemperature(t float64) Option {
	return func(s *LLM) { s.temperature = t }
}

// WithProviderName sets the provider label used on metrics.
func WithProviderName(name string) Option {
	return func(s *LLM) { s.name = name }
}

// WithMetrics records latency and request counts on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *LLM) { s.metrics = m }
}

// LLM is a [Service] backed by an llm.Provider.
type LLM struct {
	provider    llm.Provider
	name        string
	maxTokens   int
	temperature float64
	metrics     *observe.Metrics
}

var _ Service = (*LLM)(nil)

// New returns a Service that asks p for replies.
func New(p llm.Provider, opts ...Option) *LLM {
	s := &LLM{provider: p, name: "llm", maxTokens: DefaultMaxTokens}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Reply sends the whole history, seeds included, and interprets the answer.
func (s *LLM) Reply(ctx context.Context, history []conversation.Message) (reply Reply, err error) {
	ctx, span := observe.StartSpan(ctx, "reasoning.reply")
	defer func() { observe.EndSpan(span, err) }()

	req := llm.CompletionRequest{
		Messages:    make([]types.Message, len(history)),
		MaxTokens:   s.maxTokens,
		Temperature: s.temperature,
	}
	for i, m := range history {
		req.Messages[i] = m.LLM()
	}
	if caps := s.provider.Capabilities(); caps.ContextWindow == 0 || caps.SupportsToolCalling {
		req.Tools = []types.ToolDefinition{LeaveToolDefinition()}
	}

	start := time.Now()
	resp, err := s.provider.Complete(ctx, req)
	if s.metrics != nil {
		observe.Since(ctx, s.metrics.LLMDuration, start)
		status := "ok"
		if err != nil {
			status = "error"
			s.metrics.RecordProviderError(ctx, s.name, "llm")
		}
		s.metrics.RecordProviderRequest(ctx, s.name, "llm", status)
	}
	if err != nil {
		return Reply{}, fmt.Errorf("reasoning: complete: %w", err)
	}

	for _, tc := range resp.ToolCalls {
		if tc.Name == LeaveTool {
			observe.Logger(ctx).Info("reasoning: model left the conversation")
			return Reply{Text: LeaveText, Leave: true}, nil
		}
		observe.Logger(ctx).Warn("reasoning: ignoring unknown tool call", "tool", tc.Name)
	}

	text := strings.TrimSpace(resp.Content)
	if text == "" {
		return Reply{}, ErrEmptyReply
	}
	return Reply{Text: text}, nil
}

// Func adapts a function to [Service].
type Func func(ctx context.Context, history []conversation.Message) (Reply, error)

// Reply calls f.
func (f Func) Reply(ctx context.Context, history []conversation.Message) (Reply, error) {
	return f(ctx, history)
}
