package app_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/matin/internal/app"
	"github.com/MrWong99/matin/internal/config"
	"github.com/MrWong99/matin/internal/journal"
	"github.com/MrWong99/matin/internal/notify"
	"github.com/MrWong99/matin/internal/settings"
	"github.com/MrWong99/matin/pkg/audio"
	audiomock "github.com/MrWong99/matin/pkg/audio/mock"
	memorymock "github.com/MrWong99/matin/pkg/memory/mock"
	"github.com/MrWong99/matin/pkg/provider/llm"
	llmmock "github.com/MrWong99/matin/pkg/provider/llm/mock"
	sttmock "github.com/MrWong99/matin/pkg/provider/stt/mock"
	ttsmock "github.com/MrWong99/matin/pkg/provider/tts/mock"
	"github.com/MrWong99/matin/pkg/provider/vad"
	vadmock "github.com/MrWong99/matin/pkg/provider/vad/mock"
	"github.com/MrWong99/matin/pkg/types"
)

var cue = audio.Clip{Data: []byte{1, 0, 2, 0}, SampleRate: 16000, Channels: 1}

// testConfig returns a turn-mode config with fast polling and no warm-up.
func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{LogLevel: config.LogInfo},
		Audio: config.AudioConfig{
			PollInterval: 2 * time.Millisecond,
			Warmup:       -1,
		},
		Session: config.SessionConfig{Mode: config.ModeTurn, VoiceID: "coach"},
		Dictation: config.DictationConfig{
			Window:     20 * time.Millisecond,
			Iterations: 2,
		},
		Schedule: config.ScheduleConfig{At: "07:00"},
	}
}

func testProviders() *app.Providers {
	return &app.Providers{
		LLM: &llmmock.Provider{Responses: []*llm.CompletionResponse{
			{Content: "Great, now brush your teeth."},
			{ToolCalls: []types.ToolCall{{Name: "leave_conversation"}}},
		}},
		LLMName: "mock",
		STT:     &sttmock.Engine{Rate: 16000, Text: "bed is made"},
		TTS:     &ttsmock.Provider{Chunks: [][]byte{{0, 1, 0, 1}}},
	}
}

type fakeNotifier struct {
	mu   sync.Mutex
	sums []notify.Summary
}

func (f *fakeNotifier) Notify(_ context.Context, s notify.Summary) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sums = append(f.sums, s)
	return nil
}

func (f *fakeNotifier) summaries() []notify.Summary {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.sums)
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// feed emits block from src every millisecond until the test ends.
func feed(t *testing.T, src *audiomock.Source, block []float32) {
	t.Helper()
	stop := make(chan struct{})
	done := make(chan struct{})
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

type fixture struct {
	src      *audiomock.Source
	sink     *audiomock.Sink
	archive  *memorymock.Archive
	notifier *fakeNotifier
	out      *syncBuffer
}

func newFixture(t *testing.T) *fixture {
	f := &fixture{
		src:      &audiomock.Source{Format: audio.Format{SampleRate: 16000, Channels: 1}},
		sink:     &audiomock.Sink{},
		archive:  &memorymock.Archive{},
		notifier: &fakeNotifier{},
		out:      &syncBuffer{},
	}
	feed(t, f.src, make([]float32, 160))
	return f
}

func (f *fixture) options(extra ...app.Option) []app.Option {
	return append([]app.Option{
		app.WithAudio(func() audio.Source { return f.src }, f.sink),
		app.WithDetector(&vadmock.Detector{Verdicts: []vad.Verdict{vad.SpeechEnded}}),
		app.WithArchive(f.archive),
		app.WithNotifier(f.notifier),
		app.WithCue(cue),
		app.WithOutput(f.out),
	}, extra...)
}

func newApp(t *testing.T, cfg *config.Config, p *app.Providers, opts ...app.Option) *app.App {
	t.Helper()
	a, err := app.New(context.Background(), cfg, p, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })
	return a
}

func TestNew_RequiresProviders(t *testing.T) {
	t.Parallel()
	dictation := testConfig()
	dictation.Session.Mode = config.ModeDictation

	tests := []struct {
		name    string
		cfg     *config.Config
		p       *app.Providers
		wantErr bool
	}{
		{name: "nil providers", cfg: testConfig(), p: nil, wantErr: true},
		{name: "no stt", cfg: testConfig(), p: &app.Providers{LLM: &llmmock.Provider{}, TTS: &ttsmock.Provider{}}, wantErr: true},
		{name: "turn without llm", cfg: testConfig(), p: &app.Providers{STT: &sttmock.Engine{Rate: 16000}, TTS: &ttsmock.Provider{}}, wantErr: true},
		{name: "dictation with stt only", cfg: dictation, p: &app.Providers{STT: &sttmock.Engine{Rate: 16000}}},
		{name: "turn complete", cfg: testConfig(), p: testProviders()},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			a, err := app.New(context.Background(), tc.cfg, tc.p,
				app.WithAudio(func() audio.Source { return &audiomock.Source{} }, &audiomock.Sink{}),
				app.WithCue(cue),
			)
			if (err != nil) != tc.wantErr {
				t.Fatalf("New error = %v, wantErr %v", err, tc.wantErr)
			}
			if a != nil {
				_ = a.Shutdown(context.Background())
			}
		})
	}
}

func TestNew_YAMLSettings(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "settings.yaml")
	if err := os.WriteFile(path, []byte("userFirstName: Sam\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg := testConfig()
	cfg.Settings = config.SettingsConfig{
		Backend: config.SettingsYAML,
		Path:    path,
		Values:  map[string]string{"userFirstName": "ignored", "userPrompt": "1. Stretch"},
	}
	a := newApp(t, cfg, testProviders(), app.WithAudio(func() audio.Source { return &audiomock.Source{} }, &audiomock.Sink{}), app.WithCue(cue))

	s := a.Settings()
	if got := s.Lookup(settings.UserFirstName); got != "Sam" {
		t.Errorf("userFirstName = %q, want the file value", got)
	}
	if got := s.Lookup(settings.UserPrompt); got != "1. Stretch" {
		t.Errorf("userPrompt = %q, want the inline value", got)
	}
}

func TestNew_MissingSettingsFile(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.Settings = config.SettingsConfig{Backend: config.SettingsYAML, Path: filepath.Join(t.TempDir(), "nope.yaml")}
	_, err := app.New(context.Background(), cfg, testProviders(), app.WithAudio(func() audio.Source { return &audiomock.Source{} }, &audiomock.Sink{}))
	if err == nil {
		t.Fatal("New succeeded with a missing settings file")
	}
}

func TestRunSession_Turn(t *testing.T) {
	f := newFixture(t)
	cfg := testConfig()
	p := testProviders()
	j, err := journal.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	a := newApp(t, cfg, p, f.options(
		app.WithSettings(settings.Map{
			settings.UserFirstName: "Sam",
			settings.UserPrompt:    "1. Make the bed\n2. Brush teeth",
		}),
		app.WithJournal(j),
	)...)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.RunSession(ctx); err != nil {
		t.Fatalf("RunSession: %v", err)
	}

	spoken := p.TTS.(*ttsmock.Provider).Spoken()
	if len(spoken) == 0 || spoken[0] != "Good morning Sam!" {
		t.Errorf("spoken = %q, want the greeting first", spoken)
	}

	var roles, texts []string
	for _, e := range f.archive.Entries() {
		roles = append(roles, e.Role)
		texts = append(texts, e.Text)
	}
	wantRoles := []string{"system", "system", "user", "assistant", "user"}
	if !slices.Equal(roles, wantRoles) {
		t.Fatalf("archived roles = %v, want %v", roles, wantRoles)
	}
	if texts[1] != "1. Make the bed\n2. Brush teeth" {
		t.Errorf("checklist seed = %q", texts[1])
	}

	sums := f.notifier.summaries()
	if len(sums) != 1 {
		t.Fatalf("notified %d times, want 1", len(sums))
	}
	if s := sums[0]; s.Turns != 2 || s.LastReply != "Great, now brush your teeth." || s.Err != nil || s.Mode != "turn" {
		t.Errorf("summary = %+v", s)
	}

	files, _ := filepath.Glob(filepath.Join(j.Path(sums[0].SessionID, 0), "..", "*.opus"))
	if len(files) != 2 {
		t.Errorf("journal files = %d, want 2", len(files))
	}
}

func TestRunSession_ReasoningFailure(t *testing.T) {
	f := newFixture(t)
	p := testProviders()
	p.LLM = &llmmock.Provider{Errs: []error{errors.New("rate limited")}}
	a := newApp(t, testConfig(), p, f.options()...)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := a.RunSession(ctx)
	if err == nil {
		t.Fatal("RunSession succeeded after a reasoning failure")
	}

	sums := f.notifier.summaries()
	if len(sums) != 1 || sums[0].Err == nil {
		t.Fatalf("summaries = %+v, want one failed summary", sums)
	}
	if f.archive.CallCount("Write") != 1 {
		t.Error("transcript of a failed session was not archived")
	}
	played := f.sink.Played()
	if len(played) == 0 || !bytes.Equal(played[len(played)-1].Data, cue.Data) {
		t.Error("end-of-session cue not played")
	}
}

func TestRunSession_Dictation(t *testing.T) {
	f := newFixture(t)
	cfg := testConfig()
	cfg.Session.Mode = config.ModeDictation
	a := newApp(t, cfg, &app.Providers{STT: &sttmock.Engine{Rate: 16000, Text: "note to self"}}, f.options()...)

	errc := make(chan error, 1)
	go func() { errc <- a.RunSession(context.Background()) }()

	deadline := time.Now().Add(5 * time.Second)
	for strings.Count(f.out.String(), "note to self") < 2 {
		if time.Now().After(deadline) {
			t.Fatal("no dictation output")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if a.Sessions().Status() != "active" {
		t.Errorf("status = %q during dictation", a.Sessions().Status())
	}
	a.Sessions().Stop()

	if err := <-errc; err != nil {
		t.Fatalf("RunSession = %v, want nil after stop", err)
	}
	entries := f.archive.Entries()
	if len(entries) < 2 {
		t.Fatalf("archived %d entries, want at least 2", len(entries))
	}
	for _, e := range entries {
		if e.Role != "user" || e.Text != "note to self" {
			t.Errorf("entry = %+v", e)
		}
	}
	if got := a.Sessions().Status(); got != "idle" {
		t.Errorf("status after stop = %q, want idle", got)
	}
}

func TestRunSession_StartFailure(t *testing.T) {
	f := newFixture(t)
	src := &audiomock.Source{StartErr: audio.ErrDeviceUnavailable}
	a := newApp(t, testConfig(), testProviders(), f.options(
		app.WithAudio(func() audio.Source { return src }, f.sink),
	)...)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.RunSession(ctx); !errors.Is(err, audio.ErrDeviceUnavailable) {
		t.Fatalf("RunSession = %v, want ErrDeviceUnavailable", err)
	}

	srv := httptest.NewServer(a.Handler(ctx))
	defer srv.Close()
	resp, err := http.Get(srv.URL + "/readyz")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("/readyz = %d after a device failure, want 503", resp.StatusCode)
	}
}

func TestHandler(t *testing.T) {
	t.Parallel()
	a := newApp(t, testConfig(), testProviders(),
		app.WithAudio(func() audio.Source { return &audiomock.Source{} }, &audiomock.Sink{}),
		app.WithCue(cue),
	)
	srv := httptest.NewServer(a.Handler(context.Background()))
	defer srv.Close()

	tests := []struct {
		method, path string
		want         int
		body         string
	}{
		{method: http.MethodGet, path: "/healthz", want: http.StatusOK, body: `"session":"idle"`},
		{method: http.MethodGet, path: "/readyz", want: http.StatusOK, body: `"session":"ok"`},
		{method: http.MethodGet, path: "/metrics", want: http.StatusOK},
		{method: http.MethodDelete, path: "/session", want: http.StatusNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			req, _ := http.NewRequest(tc.method, srv.URL+tc.path, nil)
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatal(err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != tc.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tc.want)
			}
			var buf bytes.Buffer
			_, _ = buf.ReadFrom(resp.Body)
			if tc.body != "" && !strings.Contains(buf.String(), tc.body) {
				t.Errorf("body = %s, want it to contain %s", buf.String(), tc.body)
			}
		})
	}
}

func TestServe_SessionTime(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		at      string
		wantErr bool
	}{
		{name: "configured", at: "07:00"},
		{name: "missing keeps serving", at: ""},
		{name: "malformed fails fast", at: "7am", wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := testConfig()
			cfg.Schedule.At = tc.at
			cfg.Server.ListenAddr = "127.0.0.1:0"
			a := newApp(t, cfg, testProviders(),
				app.WithAudio(func() audio.Source { return &audiomock.Source{} }, &audiomock.Sink{}),
				app.WithCue(cue),
			)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			time.AfterFunc(50*time.Millisecond, cancel)

			done := make(chan error, 1)
			go func() { done <- a.Serve(ctx) }()
			select {
			case err := <-done:
				if (err != nil) != tc.wantErr {
					t.Fatalf("Serve = %v, wantErr %v", err, tc.wantErr)
				}
				if tc.wantErr && ctx.Err() != nil {
					t.Error("Serve did not fail before the context ended")
				}
			case <-time.After(5 * time.Second):
				t.Fatal("Serve did not return")
			}
		})
	}
}

func TestReload(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	a := newApp(t, cfg, testProviders(),
		app.WithAudio(func() audio.Source { return &audiomock.Source{} }, &audiomock.Sink{}),
		app.WithCue(cue),
	)

	next := testConfig()
	next.Session.Persona = "Be brief."
	next.VAD.Threshold = 0.2
	next.Schedule.At = "06:30"
	next.Audio.LatencyMs = 9000
	next.Session.Mode = config.ModeDictation
	a.Reload(next)

	got := a.Config()
	if got.Session.Persona != "Be brief." || got.VAD.Threshold != 0.2 || got.Schedule.At != "06:30" {
		t.Errorf("reloadable fields not applied: %+v", got)
	}
	if got.Audio.LatencyMs != 0 || got.Session.Mode != config.ModeTurn {
		t.Errorf("restart-only fields changed: %+v", got)
	}
	if cfg.Session.Persona != "" {
		t.Error("Reload mutated the original config")
	}
}

func TestListVoices(t *testing.T) {
	t.Parallel()
	p := testProviders()
	p.TTS = &ttsmock.Provider{Voices: []types.VoiceProfile{{ID: "v1", Name: "Rachel"}}}
	a := newApp(t, testConfig(), p,
		app.WithAudio(func() audio.Source { return &audiomock.Source{} }, &audiomock.Sink{}),
		app.WithCue(cue),
	)
	voices, err := a.ListVoices(context.Background())
	if err != nil {
		t.Fatalf("ListVoices: %v", err)
	}
	if len(voices) != 1 || voices[0].Name != "Rachel" {
		t.Errorf("voices = %+v", voices)
	}
}
