package llm

import (
	"strings"

	"github.com/MrWong99/matin/pkg/types"
)

// capabilityRule maps a lowercase model-name pattern to its capabilities.
// Rules are matched in order, so more specific patterns come first.
type capabilityRule struct {
	prefix   string // matched with HasPrefix when set
	contains string // matched with Contains when prefix is empty
	caps     types.ModelCapabilities
}

var capabilityRules = []capabilityRule{
	{prefix: "gpt-4o", caps: types.ModelCapabilities{ContextWindow: 128_000, MaxOutputTokens: 16_384, SupportsToolCalling: true}},
	{prefix: "gpt-4.1", caps: types.ModelCapabilities{ContextWindow: 1_047_576, MaxOutputTokens: 32_768, SupportsToolCalling: true}},
	{prefix: "gpt-4-turbo", caps: types.ModelCapabilities{ContextWindow: 128_000, MaxOutputTokens: 4_096, SupportsToolCalling: true}},
	{prefix: "gpt-4", caps: types.ModelCapabilities{ContextWindow: 8_192, MaxOutputTokens: 4_096, SupportsToolCalling: true}},
	{prefix: "gpt-3.5-turbo", caps: types.ModelCapabilities{ContextWindow: 16_385, MaxOutputTokens: 4_096, SupportsToolCalling: true}},
	{prefix: "o1-mini", caps: types.ModelCapabilities{ContextWindow: 128_000, MaxOutputTokens: 65_536}},
	{prefix: "o1", caps: types.ModelCapabilities{ContextWindow: 200_000, MaxOutputTokens: 100_000, SupportsToolCalling: true}},
	{prefix: "o3", caps: types.ModelCapabilities{ContextWindow: 200_000, MaxOutputTokens: 100_000, SupportsToolCalling: true}},
	{contains: "claude-3-opus", caps: types.ModelCapabilities{ContextWindow: 200_000, MaxOutputTokens: 4_096, SupportsToolCalling: true}},
	{prefix: "claude", caps: types.ModelCapabilities{ContextWindow: 200_000, MaxOutputTokens: 8_192, SupportsToolCalling: true}},
	{contains: "gemini-1.5-pro", caps: types.ModelCapabilities{ContextWindow: 2_097_152, MaxOutputTokens: 8_192, SupportsToolCalling: true}},
	{contains: "gemini", caps: types.ModelCapabilities{ContextWindow: 1_048_576, MaxOutputTokens: 8_192, SupportsToolCalling: true}},
	{prefix: "llama", caps: types.ModelCapabilities{ContextWindow: 8_192, MaxOutputTokens: 2_048, SupportsToolCalling: true}},
}

// defaultCapabilities is used for model names no rule matches.
var defaultCapabilities = types.ModelCapabilities{
	ContextWindow:       128_000,
	MaxOutputTokens:     4_096,
	SupportsToolCalling: true,
}

// KnownCapabilities returns the capabilities of a model by name. Matching is
// case-insensitive; unknown models get permissive defaults.
func KnownCapabilities(model string) types.ModelCapabilities {
	lower := strings.ToLower(model)
	for _, r := range capabilityRules {
		if r.prefix != "" && strings.HasPrefix(lower, r.prefix) {
			return r.caps
		}
		if r.prefix == "" && strings.Contains(lower, r.contains) {
			return r.caps
		}
	}
	return defaultCapabilities
}
