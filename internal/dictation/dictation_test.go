package dictation_test

import (
	"context"
	"errors"
	"bytes"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/matin/internal/dictation"
	"github.com/MrWong99/matin/pkg/audio"
	audiomock "github.com/MrWong99/matin/pkg/audio/mock"
	"github.com/MrWong99/matin/pkg/provider/stt"
	sttmock "github.com/MrWong99/matin/pkg/provider/stt/mock"
)

type call struct {
	n        int
	channels int
	prompt   string
}

// fakeTranscriber returns "t1", "t2", ... and records each prompt.
type fakeTranscriber struct {
	mu    sync.Mutex
	calls []call
	errs  map[int]error
}

func (f *fakeTranscriber) TranscribeWithPrompt(_ context.Context, frame audio.Frame, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{n: len(frame.Samples), channels: frame.Channels, prompt: prompt})
	i := len(f.calls)
	if err := f.errs[i]; err != nil {
		return "", err
	}
	return fmt.Sprintf("t%d", i), nil
}

func (f *fakeTranscriber) recorded() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

func feed(t *testing.T, src *audiomock.Source, block []float32) {
	t.Helper()
	stop, done := make(chan struct{}), make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-stop:
				return
			case <-time.After(time.Millisecond):
				src.Emit(block)
			}
		}
	}()
	t.Cleanup(func() {
		close(stop)
		<-done
	})
}

// runUntil runs s until want texts were emitted and returns them.
func runUntil(t *testing.T, cfg dictation.Config, want int) ([]string, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var (
		mu    sync.Mutex
		texts []string
	)
	cfg.OnText = func(text string) {
		mu.Lock()
		defer mu.Unlock()
		texts = append(texts, text)
		if len(texts) == want {
			cancel()
		}
	}
	s, err := dictation.New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	err = s.Run(ctx)
	mu.Lock()
	defer mu.Unlock()
	return slices.Clone(texts), err
}

func TestRun_SlidingWindowCarriesPrompt(t *testing.T) {
	src := &audiomock.Source{Format: audio.Format{SampleRate: 16000, Channels: 2}}
	tr := &fakeTranscriber{}
	feed(t, src, []float32{0.1, 0.1})

	texts, err := runUntil(t, dictation.Config{
		Source:      src,
		Transcriber: tr,
		Window:      20 * time.Millisecond,
	}, 4)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run = %v, want context.Canceled", err)
	}
	if !slices.Equal(texts[:4], []string{"t1", "t2", "t3", "t4"}) {
		t.Errorf("texts = %q", texts)
	}

	calls := tr.recorded()
	wantPrompts := []string{"", "", "t2", "t3"}
	for i, want := range wantPrompts {
		if calls[i].prompt != want {
			t.Errorf("call %d prompt = %q, want %q", i, calls[i].prompt, want)
		}
		if calls[i].channels != 1 {
			t.Errorf("call %d channels = %d, want the downmixed window", i, calls[i].channels)
		}
	}
	if !src.Closed() {
		t.Error("capture not closed")
	}
}

func TestRun_SkipsUnusableWindow(t *testing.T) {
	src := &audiomock.Source{Format: audio.Format{SampleRate: 16000, Channels: 1}}
	tr := &fakeTranscriber{errs: map[int]error{1: stt.ErrNotMono}}
	feed(t, src, []float32{0.1})

	texts, err := runUntil(t, dictation.Config{Source: src, Transcriber: tr, Window: 10 * time.Millisecond}, 1)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run = %v", err)
	}
	if len(texts) != 1 || texts[0] != "t2" {
		t.Errorf("texts = %q, want [t2]", texts)
	}
}

func TestRun_LogsCloseFailure(t *testing.T) {
	var buf bytes.Buffer
	orig := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(orig) })

	src := &audiomock.Source{
		Format:   audio.Format{SampleRate: 16000, Channels: 1},
		CloseErr: errors.New("device gone"),
	}
	feed(t, src, []float32{0.1})

	_, err := runUntil(t, dictation.Config{Source: src, Transcriber: &fakeTranscriber{}, Window: 10 * time.Millisecond}, 1)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run = %v", err)
	}
	if !src.Closed() {
		t.Fatal("capture not closed")
	}
	if out := buf.String(); !strings.Contains(out, "dictation: close capture") || !strings.Contains(out, "device gone") {
		t.Errorf("close failure not logged: %s", out)
	}
}

func TestRun_RecognitionFailureStops(t *testing.T) {
	src := &audiomock.Source{Format: audio.Format{SampleRate: 16000, Channels: 1}}
	boom := errors.New("model crashed")
	tr := &fakeTranscriber{errs: map[int]error{1: boom}}
	feed(t, src, []float32{0.1})

	_, err := runUntil(t, dictation.Config{Source: src, Transcriber: tr, Window: 10 * time.Millisecond}, 1)
	if !errors.Is(err, boom) {
		t.Fatalf("Run = %v, want %v", err, boom)
	}
}

func TestRun_WithAdapter(t *testing.T) {
	src := &audiomock.Source{Format: audio.Format{SampleRate: 16000, Channels: 1}}
	eng := &sttmock.Engine{Rate: 16000, Text: "make the bed"}
	feed(t, src, []float32{0.2, 0.2})

	texts, err := runUntil(t, dictation.Config{
		Source:      src,
		Transcriber: stt.NewAdapter(eng),
		Window:      10 * time.Millisecond,
		Iterations:  1,
	}, 2)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run = %v", err)
	}
	if texts[0] != "make the bed" {
		t.Errorf("text = %q", texts[0])
	}
	calls := eng.Calls()
	if len(calls) < 2 || calls[1].Prompt != "make the bed" {
		t.Errorf("engine calls = %+v, want the evicted block's text as second prompt", calls)
	}
}

func TestNew_Validates(t *testing.T) {
	t.Parallel()
	src := &audiomock.Source{}
	tests := []struct {
		name string
		cfg  dictation.Config
	}{
		{"no source", dictation.Config{Transcriber: &fakeTranscriber{}, OnText: func(string) {}}},
		{"no transcriber", dictation.Config{Source: src, OnText: func(string) {}}},
		{"no text callback", dictation.Config{Source: src, Transcriber: &fakeTranscriber{}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := dictation.New(tc.cfg); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestStartFailure(t *testing.T) {
	src := &audiomock.Source{StartErr: audio.ErrDeviceUnavailable}
	s, err := dictation.New(dictation.Config{Source: src, Transcriber: &fakeTranscriber{}, OnText: func(string) {}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Run(context.Background()); !errors.Is(err, audio.ErrDeviceUnavailable) {
		t.Fatalf("Run = %v", err)
	}
}
