// Package dictation implements the sliding-window transcription mode.
//
// Every Window the captured audio is drained, downmixed and appended to a
// window of the last Iterations blocks. The whole window is transcribed and the
// text emitted. When a block falls out of the window, the transcript that last
// covered it is passed to the recogniser as the prompt for the next window, so
// words cut at a block boundary keep their context.
package dictation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/matin/internal/observe"
	"github.com/MrWong99/matin/pkg/audio"
	"github.com/MrWong99/matin/pkg/audio/ring"
	"github.com/MrWong99/matin/pkg/provider/stt"
)

const (
	DefaultWindow     = 5 * time.Second
	DefaultIterations = 2
)

// Transcriber recognises a mono window with a text prompt. [stt.Adapter]
// implements it.
type Transcriber interface {
	TranscribeWithPrompt(ctx context.Context, frame audio.Frame, prompt string) (string, error)
}

var _ Transcriber = (*stt.Adapter)(nil)

// Config wires a [Session]. Source, Transcriber and OnText are required.
type Config struct {
	Source      audio.Source
	Transcriber Transcriber

	// OnText receives the transcript of every window, in order.
	OnText func(text string)

	// Window defaults to DefaultWindow.
	Window time.Duration

	// Iterations is the number of blocks per window. Defaults to
	// DefaultIterations.
	Iterations int

	// Gain defaults to 1.
	Gain float32

	// Metrics defaults to observe.DefaultMetrics.
	Metrics *observe.Metrics
}

// Session is one dictation run.
type Session struct {
	cfg Config
}

// New validates cfg and applies defaults.
func New(cfg Config) (*Session, error) {
	switch {
	case cfg.Source == nil:
		return nil, errors.New("dictation: Source is required")
	case cfg.Transcriber == nil:
		return nil, errors.New("dictation: Transcriber is required")
	case cfg.OnText == nil:
		return nil, errors.New("dictation: OnText is required")
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.Iterations <= 0 {
		cfg.Iterations = DefaultIterations
	}
	if cfg.Gain == 0 {
		cfg.Gain = 1
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	return &Session{cfg: cfg}, nil
}

// Run captures and transcribes until ctx is cancelled, which is the normal way
// to stop dictation; Run then returns ctx.Err(). A recognition failure other
// than unusable input stops it with an error.
func (s *Session) Run(ctx context.Context) error {
	var r *ring.Ring
	ready := make(chan struct{})
	format, err := s.cfg.Source.Start(func(samples []float32) {
		select {
		case <-ready:
			r.PushBlock(samples)
		default:
		}
	})
	if err != nil {
		return fmt.Errorf("dictation: start capture: %w", err)
	}
	defer func() {
		if cerr := s.cfg.Source.Close(); cerr != nil {
			observe.Logger(ctx).Warn("dictation: close capture", "err", cerr)
		}
	}()

	r = ring.New(ring.Capacity(s.cfg.Window, format.SampleRate, format.Channels))
	close(ready)
	observe.Logger(ctx).Info("dictation: capture started",
		"sample_rate", format.SampleRate,
		"window", s.cfg.Window,
		"iterations", s.cfg.Iterations,
	)

	blocks := make(chan []float32, 1)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.collect(gctx, r, format, blocks) })
	g.Go(func() error { return s.transcribe(gctx, format.SampleRate, blocks) })
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// collect drains the ring once per window and queues the conditioned block.
func (s *Session) collect(ctx context.Context, r *ring.Ring, format audio.Format, out chan<- []float32) error {
	log := observe.Logger(ctx)
	cond := audio.Conditioner{Channels: format.Channels, Gain: s.cfg.Gain}
	dropped := r.Dropped()

	tick := time.NewTicker(s.cfg.Window)
	defer tick.Stop()
	r.Clear()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick.C:
		}

		raw := r.Drain()
		if d := r.Dropped(); d > dropped {
			log.Warn("dictation: capture fell behind, samples dropped", "dropped", d-dropped)
			s.cfg.Metrics.RecordOverflow(ctx, int(d-dropped))
			dropped = d
		}
		block, err := cond.Condition(raw)
		if err != nil {
			log.Warn("dictation: discarding capture block", "err", err)
			continue
		}

		select {
		case out <- block:
			continue
		default:
		}
		log.Warn("dictation: transcription fell behind the window", "window", s.cfg.Window)
		select {
		case out <- block:
		case <-ctx.Done():
			return nil
		}
	}
}

func (s *Session) transcribe(ctx context.Context, rate int, in <-chan []float32) error {
	log := observe.Logger(ctx)
	var (
		window [][]float32
		buf    []float32
		prompt string
		last   string
	)
	for {
		var block []float32
		select {
		case <-ctx.Done():
			return nil
		case block = <-in:
		}

		window = append(window, block)
		if len(window) > s.cfg.Iterations {
			window = window[1:]
			prompt = last
		}
		buf = buf[:0]
		for _, b := range window {
			buf = append(buf, b...)
		}
		if len(buf) == 0 {
			continue
		}

		start := time.Now()
		frame := audio.Frame{Samples: buf, SampleRate: rate, Channels: 1}
		text, err := s.cfg.Transcriber.TranscribeWithPrompt(ctx, frame, prompt)
		observe.Since(ctx, s.cfg.Metrics.STTDuration, start)
		if err != nil {
			var mf *audio.MalformedFrameError
			switch {
			case ctx.Err() != nil:
				return nil
			case errors.Is(err, stt.ErrNotMono), errors.As(err, &mf):
				log.Warn("dictation: skipping unusable window", "err", err)
				continue
			}
			return fmt.Errorf("dictation: transcribe: %w", err)
		}
		if elapsed := time.Since(start); elapsed > s.cfg.Window {
			log.Warn("dictation: recognition slower than the window", "took", elapsed, "window", s.cfg.Window)
		}

		last = text
		s.cfg.Metrics.RecordTurn(ctx, "dictation")
		s.cfg.OnText(text)
	}
}
