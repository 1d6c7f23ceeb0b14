package phonetic_test

import (
	"testing"

	"github.com/MrWong99/matin/internal/transcript/phonetic"
)

var vocabulary = []string{"Vitamins", "Meditate", "Brush teeth"}

func TestMatcher_Match(t *testing.T) {
	t.Parallel()
	m := phonetic.New()

	tests := []struct {
		name        string
		phrase      string
		vocab       []string
		want        string
		wantMatched bool
		minConf     float64
	}{
		{name: "exact", phrase: "vitamins", vocab: vocabulary, want: "Vitamins", wantMatched: true, minConf: 0.99},
		{name: "case insensitive", phrase: "VITAMINS", vocab: vocabulary, want: "Vitamins", wantMatched: true, minConf: 0.99},
		{name: "misheard", phrase: "vitamines", vocab: vocabulary, want: "Vitamins", wantMatched: true, minConf: 0.9},
		{name: "multi-word term", phrase: "brush teath", vocab: vocabulary, want: "Brush teeth", wantMatched: true, minConf: 0.9},
		{name: "unrelated word", phrase: "hello", vocab: vocabulary, want: "hello"},
		{name: "empty vocabulary", phrase: "vitamins", vocab: nil, want: "vitamins"},
		{name: "empty phrase", phrase: "", vocab: vocabulary, want: ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, conf, matched := m.Match(tc.phrase, tc.vocab)
			if matched != tc.wantMatched || got != tc.want {
				t.Fatalf("Match(%q) = %q, %v; want %q, %v", tc.phrase, got, matched, tc.want, tc.wantMatched)
			}
			if !matched && conf != 0 {
				t.Errorf("confidence = %f on a miss, want 0", conf)
			}
			if matched && conf < tc.minConf {
				t.Errorf("confidence = %f, want >= %f", conf, tc.minConf)
			}
		})
	}
}

func TestMatcher_Thresholds(t *testing.T) {
	t.Parallel()
	m := phonetic.New(phonetic.WithPhoneticThreshold(0.99), phonetic.WithFuzzyThreshold(0.99))
	if _, _, matched := m.Match("vitamines", vocabulary); matched {
		t.Error("near match accepted above a 0.99 threshold")
	}
}

func TestPrepare(t *testing.T) {
	t.Parallel()
	ts := phonetic.Prepare([]string{"Brush teeth", "Vitamins", "   "})
	if ts.Len() != 2 {
		t.Errorf("Len = %d, want 2", ts.Len())
	}
	if ts.MaxWords() != 2 {
		t.Errorf("MaxWords = %d, want 2", ts.MaxWords())
	}

	got, _, matched := phonetic.New().MatchPrepared("meditate", phonetic.Prepare(vocabulary))
	if !matched || got != "Meditate" {
		t.Errorf("MatchPrepared = %q, %v", got, matched)
	}
}
