// Package stt defines the speech-to-text boundary of the turn engine.
//
// Recognition happens in two layers:
//
//   - [Engine] is a batch recogniser for mono float32 audio at its own fixed
//     sample rate (16 kHz for whisper.cpp). Implementations live in
//     subpackages.
//   - [Adapter] validates the channel contract, resamples a finished speech
//     segment to the engine's rate and runs inference. It implements
//     [Transcriber], which is what the turn engine depends on.
//
// An empty transcript is a valid result and must be forwarded, not dropped.
package stt

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/MrWong99/matin/pkg/audio"
	"github.com/MrWong99/matin/pkg/audio/resample"
)

var (
	// ErrNotMono is returned when a multi-channel frame reaches recognition.
	// Conditioning must downmix first; the segment is skipped.
	ErrNotMono = errors.New("stt: input must be mono")

	// ErrResample is returned when a segment cannot be converted to the
	// engine's sample rate. It is unrecoverable.
	ErrResample = errors.New("stt: resample failed")
)

// Engine runs batch recognition on mono samples at SampleRate.
//
// prompt, when non-empty, is passed to the model as preceding context; it is
// used by the sliding-window dictation mode to carry text across windows.
//
// Implementations must be safe for concurrent use.
type Engine interface {
	SampleRate() int
	Infer(ctx context.Context, samples []float32, prompt string) (string, error)
}

// Transcriber turns one finished speech segment into text. Frames with more
// than one channel are rejected with [ErrNotMono].
type Transcriber interface {
	Transcribe(ctx context.Context, frame audio.Frame) (string, error)
}

// Compile-time interface assertion.
var _ Transcriber = (*Adapter)(nil)

// Adapter feeds conditioned speech segments to an [Engine]. Resamplers are
// built lazily per input rate and reused.
type Adapter struct {
	engine Engine

	mu         sync.Mutex
	resamplers map[int]*resample.Resampler
}

// NewAdapter returns an Adapter in front of engine.
func NewAdapter(engine Engine) *Adapter {
	return &Adapter{engine: engine, resamplers: make(map[int]*resample.Resampler)}
}

// Transcribe implements [Transcriber].
func (a *Adapter) Transcribe(ctx context.Context, frame audio.Frame) (string, error) {
	return a.TranscribeWithPrompt(ctx, frame, "")
}

// TranscribeWithPrompt transcribes frame with prompt as preceding context.
// The engine is not called for a frame that is not mono.
func (a *Adapter) TranscribeWithPrompt(ctx context.Context, frame audio.Frame, prompt string) (string, error) {
	if frame.Channels != 1 {
		return "", fmt.Errorf("%w: got %d channels", ErrNotMono, frame.Channels)
	}
	samples, err := a.toEngineRate(frame.Samples, frame.SampleRate)
	if err != nil {
		return "", err
	}
	text, err := a.engine.Infer(ctx, samples, prompt)
	if err != nil {
		return "", fmt.Errorf("stt: infer: %w", err)
	}
	return text, nil
}

func (a *Adapter) toEngineRate(segment []float32, sampleRate int) ([]float32, error) {
	target := a.engine.SampleRate()
	if sampleRate == target {
		return segment, nil
	}
	a.mu.Lock()
	r, ok := a.resamplers[sampleRate]
	if !ok {
		var err error
		r, err = resample.New(sampleRate, target)
		if err != nil {
			a.mu.Unlock()
			return nil, fmt.Errorf("%w: %v", ErrResample, err)
		}
		a.resamplers[sampleRate] = r
	}
	a.mu.Unlock()
	return r.Process(segment), nil
}
