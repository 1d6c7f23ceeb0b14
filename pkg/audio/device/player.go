package device

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/MrWong99/matin/pkg/audio"
)

// Compile-time interface assertion.
var _ audio.Sink = (*Player)(nil)

// oto allows a single context per process.
var (
	otoOnce sync.Once
	otoCtx  *oto.Context
	otoErr  error
)

// pollInterval is how often Play checks whether oto has finished a clip.
const pollInterval = 10 * time.Millisecond

// Player plays clips on the default output device. Clips are converted to the
// device format first. Play calls are serialised.
type Player struct {
	mu   sync.Mutex
	conv audio.FormatConverter
}

// NewPlayer opens the default output device at format. Only the first call in
// a process chooses the device format; later calls must pass the same one.
func NewPlayer(format audio.Format) (*Player, error) {
	otoOnce.Do(func() {
		var ready chan struct{}
		otoCtx, ready, otoErr = oto.NewContext(&oto.NewContextOptions{
			SampleRate:   format.SampleRate,
			ChannelCount: format.Channels,
			Format:       oto.FormatSignedInt16LE,
		})
		if otoErr == nil {
			<-ready
		}
	})
	if otoErr != nil {
		return nil, fmt.Errorf("%w: open output: %v", audio.ErrDeviceUnavailable, otoErr)
	}
	return &Player{conv: audio.FormatConverter{Target: format}}, nil
}

// Play blocks until clip has finished playing or ctx is cancelled.
func (p *Player) Play(ctx context.Context, clip audio.Clip) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	clip = p.conv.Convert(clip)
	if len(clip.Data) == 0 {
		return nil
	}
	pl := otoCtx.NewPlayer(bytes.NewReader(clip.Data))
	defer pl.Close()
	pl.Play()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for pl.IsPlaying() {
		select {
		case <-ctx.Done():
			pl.Pause()
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// Close is a no-op; the shared oto context lives for the whole process.
func (p *Player) Close() error { return nil }
