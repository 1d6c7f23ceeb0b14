// Package tts defines the Provider interface for text-to-speech backends.
//
// A provider accepts a channel of text fragments and returns a channel of raw
// 16-bit little-endian mono PCM as it becomes available. [Synthesize] collects
// a whole reply into an [audio.Clip] for the speak stage, which plays replies
// to completion before listening again.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/matin/pkg/audio"
	"github.com/MrWong99/matin/pkg/types"
)

// ErrNoAudio is returned by [Synthesize] when the stream closed without
// producing any audio. Providers signal mid-stream failures by closing the
// channel early, so an empty stream is treated as a failed synthesis.
var ErrNoAudio = errors.New("tts: stream produced no audio")

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// SynthesizeStream consumes text fragments and returns a channel emitting
	// PCM chunks at SampleRate. The audio channel is closed when all text has
	// been synthesised, on a provider error, or when ctx is cancelled. Callers
	// must drain it.
	//
	// A non-nil error means the stream could not be started at all.
	SynthesizeStream(ctx context.Context, text <-chan string, voice types.VoiceProfile) (<-chan []byte, error)

	// ListVoices returns the voices currently offered by the backend.
	ListVoices(ctx context.Context) ([]types.VoiceProfile, error)

	// SampleRate is the rate of the PCM emitted by SynthesizeStream.
	SampleRate() int
}

// Synthesize speaks text with voice and returns the complete utterance as a
// mono clip.
func Synthesize(ctx context.Context, p Provider, text string, voice types.VoiceProfile) (audio.Clip, error) {
	in := make(chan string, 1)
	in <- text
	close(in)

	out, err := p.SynthesizeStream(ctx, in, voice)
	if err != nil {
		return audio.Clip{}, fmt.Errorf("tts: start stream: %w", err)
	}
	var pcm []byte
	for chunk := range out {
		pcm = append(pcm, chunk...)
	}
	if err := ctx.Err(); err != nil {
		return audio.Clip{}, err
	}
	if len(pcm) == 0 {
		return audio.Clip{}, ErrNoAudio
	}
	if len(pcm)%2 != 0 {
		pcm = pcm[:len(pcm)-1]
	}
	return audio.Clip{Data: pcm, SampleRate: p.SampleRate(), Channels: 1}, nil
}
