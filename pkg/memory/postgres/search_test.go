package postgres

import (
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/matin/pkg/memory"
)

func TestBuildSearch(t *testing.T) {
	t.Parallel()
	after := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		opts     memory.SearchOpts
		wantArgs int
		contains []string
		absent   []string
	}{
		{
			name:     "query only",
			wantArgs: 1,
			absent:   []string{"session_id =", "LIMIT"},
		},
		{
			name:     "all filters",
			opts:     memory.SearchOpts{SessionID: "s1", Role: "user", After: after, Before: after.Add(time.Hour), Limit: 5},
			wantArgs: 6,
			contains: []string{"session_id = $2", "role = $3", "timestamp > $4", "timestamp < $5", "LIMIT $6"},
		},
		{
			name:     "limit numbering skips unset filters",
			opts:     memory.SearchOpts{Role: "assistant", Limit: 2},
			wantArgs: 3,
			contains: []string{"role = $2", "LIMIT $3"},
			absent:   []string{"session_id ="},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			q, args := buildSearch("vitamins", tc.opts)
			if len(args) != tc.wantArgs {
				t.Fatalf("args = %v, want %d", args, tc.wantArgs)
			}
			if args[0] != "vitamins" {
				t.Errorf("args[0] = %v", args[0])
			}
			for _, s := range tc.contains {
				if !strings.Contains(q, s) {
					t.Errorf("query missing %q:\n%s", s, q)
				}
			}
			for _, s := range tc.absent {
				if strings.Contains(q, s) {
					t.Errorf("query unexpectedly contains %q:\n%s", s, q)
				}
			}
		})
	}
}
