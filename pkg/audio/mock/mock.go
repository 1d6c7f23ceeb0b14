// Package mock provides in-memory implementations of [audio.Source] and
// [audio.Sink] for unit tests.
//
// Both mocks are safe for concurrent use. They record every call so tests can
// assert on counts and arguments, and expose exported fields that control
// return values.
//
// Typical usage:
//
//	src := &mock.Source{Format: audio.Format{SampleRate: 16000, Channels: 1}}
//	sink := &mock.Sink{}
//	// ... start the engine ...
//	src.Emit(samples) // delivered as if from the driver thread
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/matin/pkg/audio"
)

// ─── Source ───────────────────────────────────────────────────────────────────

// Source is a mock [audio.Source]. Samples passed to [Source.Emit] are handed
// to the registered callback unless the source is paused.
type Source struct {
	mu sync.Mutex

	// Format is returned by Start.
	Format audio.Format

	// StartErr, PauseErr, ResumeErr and CloseErr are returned by the
	// matching methods.
	StartErr  error
	PauseErr  error
	ResumeErr error
	CloseErr  error

	// OnPause, if set, is called after every successful Pause.
	OnPause func()

	onBlock    func([]float32)
	paused     bool
	started    bool
	closed     bool
	startCalls int
	pauseCalls int
	resumeCall int
}

// Start implements [audio.Source].
func (s *Source) Start(onBlock func([]float32)) (audio.Format, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startCalls++
	if s.StartErr != nil {
		return audio.Format{}, s.StartErr
	}
	s.onBlock = onBlock
	s.started = true
	return s.Format, nil
}

// Pause implements [audio.Source].
func (s *Source) Pause() error {
	s.mu.Lock()
	s.pauseCalls++
	if s.PauseErr != nil {
		s.mu.Unlock()
		return s.PauseErr
	}
	s.paused = true
	hook := s.OnPause
	s.mu.Unlock()
	if hook != nil {
		hook()
	}
	return nil
}

// Resume implements [audio.Source].
func (s *Source) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resumeCall++
	if s.ResumeErr != nil {
		return s.ResumeErr
	}
	s.paused = false
	return nil
}

// Close implements [audio.Source].
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return s.CloseErr
}

// Emit delivers samples to the callback as the driver thread would. It
// reports whether they were delivered.
func (s *Source) Emit(samples []float32) bool {
	s.mu.Lock()
	cb := s.onBlock
	deliver := s.started && !s.paused && !s.closed
	s.mu.Unlock()
	if !deliver || cb == nil {
		return false
	}
	cb(samples)
	return true
}

// Paused reports whether the source is currently paused.
func (s *Source) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// Closed reports whether Close was called.
func (s *Source) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Calls returns the number of Start, Pause and Resume calls so far.
func (s *Source) Calls() (start, pause, resume int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startCalls, s.pauseCalls, s.resumeCall
}

// ─── Sink ─────────────────────────────────────────────────────────────────────

// Sink is a mock [audio.Sink] that records every played clip.
type Sink struct {
	mu sync.Mutex

	// PlayErr is returned by Play.
	PlayErr error

	// OnPlay, if set, is called with each clip before Play returns.
	OnPlay func(audio.Clip)

	played []audio.Clip
	closed bool
}

// Play implements [audio.Sink].
func (s *Sink) Play(ctx context.Context, clip audio.Clip) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.played = append(s.played, clip)
	hook, err := s.OnPlay, s.PlayErr
	s.mu.Unlock()
	if hook != nil {
		hook(clip)
	}
	return err
}

// Close implements [audio.Sink].
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Played returns a copy of every clip passed to Play.
func (s *Sink) Played() []audio.Clip {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]audio.Clip, len(s.played))
	copy(out, s.played)
	return out
}
