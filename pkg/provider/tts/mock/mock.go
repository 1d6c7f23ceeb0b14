// Package mock provides a test double for the tts.Provider interface.
//
// Example:
//
//	p := &mock.Provider{Chunks: [][]byte{{0, 0, 1, 0}}}
//	clip, _ := tts.Synthesize(ctx, p, "Good morning!", voice)
//	p.Spoken() // ["Good morning!"]
package mock

import (
	"context"
	"strings"
	"sync"

	"github.com/MrWong99/matin/pkg/provider/tts"
	"github.com/MrWong99/matin/pkg/types"
)

// SynthesizeCall records a single invocation of SynthesizeStream once its text
// channel has been drained.
type SynthesizeCall struct {
	Text  string
	Voice types.VoiceProfile
}

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// Rate is returned by SampleRate; zero means 16000.
	Rate int

	// Chunks are emitted on every stream after the text channel closes.
	Chunks [][]byte

	// Err, if non-nil, is returned by SynthesizeStream instead of a stream.
	Err error

	Voices    []types.VoiceProfile
	VoicesErr error

	SynthesizeCalls []SynthesizeCall
}

var _ tts.Provider = (*Provider)(nil)

// SampleRate implements tts.Provider.
func (p *Provider) SampleRate() int {
	if p.Rate == 0 {
		return 16000
	}
	return p.Rate
}

// SynthesizeStream implements tts.Provider.
func (p *Provider) SynthesizeStream(ctx context.Context, text <-chan string, voice types.VoiceProfile) (<-chan []byte, error) {
	p.mu.Lock()
	err := p.Err
	chunks := append([][]byte(nil), p.Chunks...)
	p.mu.Unlock()
	if err != nil {
		go func() {
			for range text {
			}
		}()
		return nil, err
	}

	out := make(chan []byte, len(chunks))
	go func() {
		defer close(out)
		var sb strings.Builder
		for s := range text {
			sb.WriteString(s)
		}
		p.mu.Lock()
		p.SynthesizeCalls = append(p.SynthesizeCalls, SynthesizeCall{Text: sb.String(), Voice: voice})
		p.mu.Unlock()
		for _, c := range chunks {
			select {
			case out <- c:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// ListVoices returns Voices, VoicesErr.
func (p *Provider) ListVoices(context.Context) ([]types.VoiceProfile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Voices, p.VoicesErr
}

// Calls returns a copy of the recorded calls.
func (p *Provider) Calls() []SynthesizeCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]SynthesizeCall(nil), p.SynthesizeCalls...)
}

// Spoken returns the text of every completed call, in order.
func (p *Provider) Spoken() []string {
	calls := p.Calls()
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.Text
	}
	return out
}
