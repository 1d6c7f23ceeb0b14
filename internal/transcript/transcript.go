// Package transcript corrects recognised speech against the vocabulary of the
// user's checklist before it enters the conversation log.
//
// Correction runs in up to two stages. The phonetic stage slides n-gram
// windows over the text and replaces the longest window that sounds like a
// vocabulary term. The optional LLM stage then asks a model for the remaining
// fixes and keeps only the substitutions it declared.
package transcript

import (
	"context"
	"regexp"
	"strings"

	"github.com/MrWong99/matin/internal/transcript/llmcorrect"
	"github.com/MrWong99/matin/internal/transcript/phonetic"
)

// Correction is one applied substitution.
type Correction struct {
	Original   string
	Corrected  string
	Confidence float64

	// Method is "phonetic" or "llm".
	Method string
}

// Result is a corrected transcript.
type Result struct {
	Text        string
	Corrections []Correction
}

// Option configures a [Pipeline].
type Option func(*Pipeline)

// WithPhonetic enables the phonetic stage.
func WithPhonetic(m *phonetic.Matcher) Option {
	return func(p *Pipeline) { p.phonetic = m }
}

// WithLLM enables the LLM stage.
func WithLLM(c *llmcorrect.Corrector) Option {
	return func(p *Pipeline) { p.llm = c }
}

// Pipeline is safe for concurrent use. With no stages enabled it returns the
// text unchanged.
type Pipeline struct {
	phonetic *phonetic.Matcher
	llm      *llmcorrect.Corrector
}

// NewPipeline returns a Pipeline with the given stages.
func NewPipeline(opts ...Option) *Pipeline {
	p := &Pipeline{}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Correct applies the enabled stages in order. Only an LLM provider failure
// is returned as an error, together with the phonetic result so far.
func (p *Pipeline) Correct(ctx context.Context, text string, vocabulary []string) (Result, error) {
	res := Result{Text: text}
	if len(vocabulary) == 0 {
		return res, nil
	}
	if p.phonetic != nil {
		res.Text, res.Corrections = p.snap(res.Text, phonetic.Prepare(vocabulary))
	}
	if p.llm != nil {
		fixed, applied, err := p.llm.Correct(ctx, res.Text, vocabulary)
		if err != nil {
			return res, err
		}
		res.Text = fixed
		for _, c := range applied {
			res.Corrections = append(res.Corrections, Correction{
				Original:   c.Original,
				Corrected:  c.Corrected,
				Confidence: c.Confidence,
				Method:     "llm",
			})
		}
	}
	return res, nil
}

// snap replaces, at each position, the longest window of words that matches
// a term.
func (p *Pipeline) snap(text string, terms *phonetic.Terms) (string, []Correction) {
	words := strings.Fields(text)
	if len(words) == 0 || terms.Len() == 0 {
		return text, nil
	}

	var (
		out         []string
		corrections []Correction
	)
	for i := 0; i < len(words); {
		n := min(terms.MaxWords(), len(words)-i)
		for ; n >= 1; n-- {
			window := strings.Join(words[i:i+n], " ")
			term, conf, ok := p.phonetic.MatchPrepared(window, terms)
			if !ok {
				continue
			}
			if strings.EqualFold(window, term) {
				out = append(out, words[i:i+n]...)
			} else {
				out = append(out, strings.Fields(term)...)
				corrections = append(corrections, Correction{
					Original:   window,
					Corrected:  term,
					Confidence: conf,
					Method:     "phonetic",
				})
			}
			i += n
			break
		}
		if n == 0 {
			out = append(out, words[i])
			i++
		}
	}
	if len(corrections) == 0 {
		return text, nil
	}
	return strings.Join(out, " "), corrections
}

var listMarker = regexp.MustCompile(`^\s*(?:\d+[.)]|[-*•])\s*`)

// common words that are long enough to be picked up from a checklist but
// would only cause false corrections.
var stopwords = map[string]bool{
	"about": true, "after": true, "again": true, "before": true, "every": true,
	"minutes": true, "morning": true, "other": true, "their": true, "there": true,
	"these": true, "those": true, "until": true, "which": true, "while": true,
	"would": true, "could": true, "should": true,
}

// Vocabulary returns the extra terms followed by the distinct words of at
// least five letters in checklist, without list numbering or stopwords.
func Vocabulary(checklist string, extra ...string) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(term string) {
		key := strings.ToLower(term)
		if term == "" || seen[key] {
			return
		}
		seen[key] = true
		out = append(out, term)
	}
	for _, e := range extra {
		add(strings.TrimSpace(e))
	}
	for _, line := range strings.Split(checklist, "\n") {
		line = listMarker.ReplaceAllString(line, "")
		for _, w := range strings.Fields(line) {
			w = strings.ToLower(strings.Trim(w, ".,;:!?\"'()"))
			if len([]rune(w)) >= 5 && !stopwords[w] {
				add(w)
			}
		}
	}
	return out
}

// Checklist binds a pipeline to one session's vocabulary.
type Checklist struct {
	pipeline   *Pipeline
	vocabulary []string
}

// NewChecklist returns a corrector for vocabulary.
func NewChecklist(p *Pipeline, vocabulary []string) *Checklist {
	return &Checklist{pipeline: p, vocabulary: vocabulary}
}

// Correct returns the corrected text.
func (c *Checklist) Correct(ctx context.Context, text string) (string, error) {
	res, err := c.pipeline.Correct(ctx, text, c.vocabulary)
	return res.Text, err
}
