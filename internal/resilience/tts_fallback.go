package resilience

import (
	"context"

	"github.com/MrWong99/matin/pkg/audio"
	"github.com/MrWong99/matin/pkg/provider/tts"
	"github.com/MrWong99/matin/pkg/types"
)

// TTSFallback is a [tts.Provider] that fails over across synthesisers.
//
// The whole text is collected before the first attempt so that it can be
// replayed to a fallback. A stream that closes before its first chunk counts
// as a failure; once audio has started there is no failover. Audio from
// fallbacks at another rate is converted to the primary's rate.
type TTSFallback struct {
	group *FallbackGroup[tts.Provider]
}

var _ tts.Provider = (*TTSFallback)(nil)

// NewTTSFallback prefers primary.
func NewTTSFallback(primary tts.Provider, primaryName string, cfg FallbackConfig) *TTSFallback {
	return &TTSFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback appends a synthesiser.
func (f *TTSFallback) AddFallback(name string, p tts.Provider) { f.group.AddFallback(name, p) }

// SampleRate is the primary's rate.
func (f *TTSFallback) SampleRate() int { return f.group.Primary().SampleRate() }

// ListVoices lists the voices of the first provider that answers.
func (f *TTSFallback) ListVoices(ctx context.Context) ([]types.VoiceProfile, error) {
	return ExecuteWithResult(ctx, f.group, func(p tts.Provider) ([]types.VoiceProfile, error) {
		return p.ListVoices(ctx)
	})
}

// SynthesizeStream implements [tts.Provider].
func (f *TTSFallback) SynthesizeStream(ctx context.Context, text <-chan string, voice types.VoiceProfile) (<-chan []byte, error) {
	var parts []string
collect:
	for {
		select {
		case s, ok := <-text:
			if !ok {
				break collect
			}
			parts = append(parts, s)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	rate := f.SampleRate()
	return ExecuteWithResult(ctx, f.group, func(p tts.Provider) (<-chan []byte, error) {
		in := make(chan string, len(parts))
		for _, s := range parts {
			in <- s
		}
		close(in)

		audioCh, err := p.SynthesizeStream(ctx, in, voice)
		if err != nil {
			return nil, err
		}
		var first []byte
		select {
		case c, ok := <-audioCh:
			if !ok {
				return nil, tts.ErrNoAudio
			}
			first = c
		case <-ctx.Done():
			go audio.Drain(audioCh)
			return nil, ctx.Err()
		}
		return relay(ctx, first, audioCh, p.SampleRate(), rate), nil
	})
}

// relay forwards first and the rest of in, converting from rate src to dst.
func relay(ctx context.Context, first []byte, in <-chan []byte, src, dst int) <-chan []byte {
	convert := func(c []byte) []byte {
		if src == dst {
			return c
		}
		return audio.Int16ToPCM16(audio.ResampleMono16(audio.PCM16ToInt16(c), src, dst))
	}
	out := make(chan []byte, 1)
	go func() {
		defer close(out)
		defer audio.Drain(in)
		out <- convert(first)
		for c := range in {
			select {
			case out <- convert(c):
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
