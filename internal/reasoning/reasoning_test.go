package reasoning_test

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/matin/internal/conversation"
	"github.com/MrWong99/matin/internal/reasoning"
	"github.com/MrWong99/matin/pkg/provider/llm"
	"github.com/MrWong99/matin/pkg/provider/llm/mock"
	"github.com/MrWong99/matin/pkg/types"
)

func history() []conversation.Message {
	l := conversation.New(reasoning.DefaultPersona, "1. Make the bed")
	_ = l.Append(conversation.Message{Role: conversation.User, Content: "I'm awake"})
	return l.Snapshot()
}

func TestReply_Text(t *testing.T) {
	t.Parallel()
	p := &mock.Provider{Responses: []*llm.CompletionResponse{{Content: "  Great, now make the bed!\n"}}}
	s := reasoning.New(p)

	got, err := s.Reply(context.Background(), history())
	if err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if got.Leave || got.Text != "Great, now make the bed!" {
		t.Errorf("reply = %+v", got)
	}

	calls := p.Calls()
	if len(calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(calls))
	}
	req := calls[0].Req
	if req.MaxTokens != reasoning.DefaultMaxTokens {
		t.Errorf("MaxTokens = %d, want %d", req.MaxTokens, reasoning.DefaultMaxTokens)
	}
	if len(req.Messages) != 3 {
		t.Fatalf("messages = %d, want 3", len(req.Messages))
	}
	wantRoles := []string{types.RoleSystem, types.RoleSystem, types.RoleUser}
	for i, m := range req.Messages {
		if m.Role != wantRoles[i] {
			t.Errorf("messages[%d].Role = %q, want %q", i, m.Role, wantRoles[i])
		}
	}
	if len(req.Tools) != 1 || req.Tools[0].Name != reasoning.LeaveTool {
		t.Fatalf("tools = %+v", req.Tools)
	}
	if req.Tools[0].Parameters["type"] != "object" {
		t.Errorf("tool schema = %v", req.Tools[0].Parameters)
	}
}

func TestReply_Leave(t *testing.T) {
	t.Parallel()
	p := &mock.Provider{Responses: []*llm.CompletionResponse{{
		Content:   "See you tomorrow",
		ToolCalls: []types.ToolCall{{ID: "c1", Name: reasoning.LeaveTool, Arguments: "{}"}},
	}}}

	got, err := reasoning.New(p).Reply(context.Background(), history())
	if err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if !got.Leave || got.Text != reasoning.LeaveText {
		t.Errorf("reply = %+v, want leave reply", got)
	}
}

func TestReply_Errors(t *testing.T) {
	t.Parallel()
	boom := errors.New("503")
	tests := []struct {
		name string
		p    *mock.Provider
		want error
	}{
		{name: "provider error", p: &mock.Provider{Errs: []error{boom}}, want: boom},
		{name: "empty reply", p: &mock.Provider{}, want: reasoning.ErrEmptyReply},
		{
			name: "unknown tool only",
			p: &mock.Provider{Responses: []*llm.CompletionResponse{{
				ToolCalls: []types.ToolCall{{Name: "roll_dice"}},
			}}},
			want: reasoning.ErrEmptyReply,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := reasoning.New(tc.p).Reply(context.Background(), history())
			if !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestReply_Options(t *testing.T) {
	t.Parallel()
	p := &mock.Provider{
		Responses:          []*llm.CompletionResponse{{Content: "ok"}},
		CapabilitiesResult: types.ModelCapabilities{ContextWindow: 4096, SupportsToolCalling: false},
	}
	s := reasoning.New(p, reasoning.WithMaxTokens(60), reasoning.WithTemperature(0.3), reasoning.WithMaxTokens(0))
	if _, err := s.Reply(context.Background(), history()); err != nil {
		t.Fatalf("Reply: %v", err)
	}
	req := p.Calls()[0].Req
	if req.MaxTokens != 60 || req.Temperature != 0.3 {
		t.Errorf("MaxTokens = %d, Temperature = %v", req.MaxTokens, req.Temperature)
	}
	if len(req.Tools) != 0 {
		t.Errorf("tools offered to a model without tool calling: %+v", req.Tools)
	}
}
