// Package llmcorrect asks a language model to fix misheard checklist words in
// a transcript.
//
// The model must answer with JSON holding the corrected text and the list of
// substitutions it made. Only substitutions it declared survive: any other
// difference between input and output is reverted, so the model cannot
// rephrase what the user said. An unparseable answer leaves the text as is.
package llmcorrect

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/MrWong99/matin/pkg/provider/llm"
	"github.com/MrWong99/matin/pkg/types"
)

const defaultTemperature = 0.1

const systemPrompt = `You fix speech-to-text errors in what a user said to their morning routine coach.

Only correct words that are misheard versions of the routine vocabulary below. Do not change any other word, the grammar or the punctuation. If unsure, leave the word unchanged. Corrected words use the spelling from the vocabulary.

Vocabulary:
%s
Answer with ONLY a JSON object, no markdown:
{"corrected_text": "<full text>", "corrections": [{"original": "<heard>", "corrected": "<vocabulary term>", "confidence": <0.0-1.0>}]}

If nothing needs correcting, return the input as corrected_text and an empty corrections array.`

// Correction is one substitution reported by the model and found in its
// corrected text.
type Correction struct {
	Original   string
	Corrected  string
	Confidence float64
}

type response struct {
	CorrectedText string `json:"corrected_text"`
	Corrections   []struct {
		Original   string  `json:"original"`
		Corrected  string  `json:"corrected"`
		Confidence float64 `json:"confidence"`
	} `json:"corrections"`
}

// Option configures a [Corrector].
type Option func(*Corrector)

// WithTemperature overrides the default sampling temperature of 0.1.
func WithTemperature(temp float64) Option {
	return func(c *Corrector) { c.temperature = temp }
}

// Corrector is safe for concurrent use.
type Corrector struct {
	llm         llm.Provider
	temperature float64
}

// New returns a Corrector backed by provider.
func New(provider llm.Provider, opts ...Option) *Corrector {
	c := &Corrector{llm: provider, temperature: defaultTemperature}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Correct returns text with misheard vocabulary fixed and the substitutions
// that were applied. Provider errors are returned; a malformed answer is not
// an error and yields text unchanged.
func (c *Corrector) Correct(ctx context.Context, text string, vocabulary []string) (string, []Correction, error) {
	if len(vocabulary) == 0 || strings.TrimSpace(text) == "" {
		return text, nil, nil
	}

	var list strings.Builder
	for _, v := range vocabulary {
		fmt.Fprintf(&list, "- %s\n", v)
	}
	resp, err := c.llm.Complete(ctx, llm.CompletionRequest{
		Temperature: c.temperature,
		Messages: []types.Message{
			{Role: types.RoleSystem, Content: fmt.Sprintf(systemPrompt, list.String())},
			{Role: types.RoleUser, Content: text},
		},
	})
	if err != nil {
		return text, nil, fmt.Errorf("llmcorrect: complete: %w", err)
	}

	corrected, declared, ok := parse(resp.Content)
	if !ok {
		return text, nil, nil
	}
	out, kept := keepDeclared(text, corrected, declared)
	return out, kept, nil
}

func parse(content string) (string, []Correction, bool) {
	var r response
	if err := json.Unmarshal([]byte(stripFences(content)), &r); err != nil || r.CorrectedText == "" {
		return "", nil, false
	}
	out := make([]Correction, 0, len(r.Corrections))
	for _, c := range r.Corrections {
		if c.Original == "" || c.Original == c.Corrected {
			continue
		}
		out = append(out, Correction{Original: c.Original, Corrected: c.Corrected, Confidence: c.Confidence})
	}
	return r.CorrectedText, out, true
}

// stripFences removes a ```json ... ``` wrapper some models add.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	for _, prefix := range []string{"```json", "```"} {
		if after, ok := strings.CutPrefix(s, prefix); ok {
			s = after
			break
		}
	}
	s, _ = strings.CutSuffix(s, "```")
	return strings.TrimSpace(s)
}
