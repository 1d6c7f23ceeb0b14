// Package mock provides test doubles for the stt package interfaces.
//
// Use Engine to stand in for a recogniser behind [stt.Adapter]; use
// Transcriber to script transcripts for the turn engine directly.
//
// Example:
//
//	tr := &mock.Transcriber{Texts: []string{"first", "second"}}
//	text, _ := tr.Transcribe(ctx, audio.Frame{Samples: seg, SampleRate: 48000, Channels: 1}) // "first"
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/matin/pkg/audio"
	"github.com/MrWong99/matin/pkg/provider/stt"
)

// InferCall records a single invocation of Engine.Infer.
type InferCall struct {
	// Len is the number of samples passed in.
	Len int

	// Prompt is the prompt passed in.
	Prompt string
}

// Engine is a mock implementation of [stt.Engine].
type Engine struct {
	mu sync.Mutex

	// Rate is returned by SampleRate.
	Rate int

	// Text and Err are returned by every Infer call.
	Text string
	Err  error

	InferCalls []InferCall
}

var _ stt.Engine = (*Engine)(nil)

// SampleRate returns Rate.
func (e *Engine) SampleRate() int { return e.Rate }

// Infer records the call and returns Text, Err.
func (e *Engine) Infer(_ context.Context, samples []float32, prompt string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.InferCalls = append(e.InferCalls, InferCall{Len: len(samples), Prompt: prompt})
	return e.Text, e.Err
}

// Calls returns a copy of the recorded calls.
func (e *Engine) Calls() []InferCall {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]InferCall(nil), e.InferCalls...)
}

// TranscribeCall records a single invocation of Transcriber.Transcribe.
type TranscribeCall struct {
	Segment    []float32
	SampleRate int
	Channels   int
}

// Transcriber is a mock implementation of [stt.Transcriber]. It returns Texts
// in order and then "" forever. Errs, if set, is consulted by call index and a
// non-nil entry is returned instead of the text.
type Transcriber struct {
	mu sync.Mutex

	Texts []string
	Errs  []error

	TranscribeCalls []TranscribeCall
}

var _ stt.Transcriber = (*Transcriber)(nil)

// Transcribe records a copy of the frame and returns the next scripted result.
func (tr *Transcriber) Transcribe(_ context.Context, frame audio.Frame) (string, error) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	i := len(tr.TranscribeCalls)
	tr.TranscribeCalls = append(tr.TranscribeCalls, TranscribeCall{
		Segment:    append([]float32(nil), frame.Samples...),
		SampleRate: frame.SampleRate,
		Channels:   frame.Channels,
	})
	if i < len(tr.Errs) && tr.Errs[i] != nil {
		return "", tr.Errs[i]
	}
	if i < len(tr.Texts) {
		return tr.Texts[i], nil
	}
	return "", nil
}

// Calls returns a copy of the recorded calls.
func (tr *Transcriber) Calls() []TranscribeCall {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return append([]TranscribeCall(nil), tr.TranscribeCalls...)
}
