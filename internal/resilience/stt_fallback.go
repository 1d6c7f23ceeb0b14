package resilience

import (
	"context"
	"fmt"

	"github.com/MrWong99/matin/pkg/audio/resample"
	"github.com/MrWong99/matin/pkg/provider/stt"
)

// STTFallback is an [stt.Engine] that fails over across recognisers. It
// accepts samples at the primary's rate and resamples them for fallbacks that
// run at another rate.
type STTFallback struct {
	group *FallbackGroup[stt.Engine]
}

var _ stt.Engine = (*STTFallback)(nil)

// NewSTTFallback prefers primary.
func NewSTTFallback(primary stt.Engine, primaryName string, cfg FallbackConfig) *STTFallback {
	return &STTFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback appends a recogniser.
func (f *STTFallback) AddFallback(name string, e stt.Engine) { f.group.AddFallback(name, e) }

// SampleRate is the primary's rate.
func (f *STTFallback) SampleRate() int { return f.group.Primary().SampleRate() }

// Infer implements [stt.Engine].
func (f *STTFallback) Infer(ctx context.Context, samples []float32, prompt string) (string, error) {
	rate := f.SampleRate()
	return ExecuteWithResult(ctx, f.group, func(e stt.Engine) (string, error) {
		in := samples
		if r := e.SampleRate(); r != rate {
			var err error
			if in, err = resample.Resample(samples, rate, r); err != nil {
				return "", fmt.Errorf("%w: %w", stt.ErrResample, err)
			}
		}
		return e.Infer(ctx, in, prompt)
	})
}
