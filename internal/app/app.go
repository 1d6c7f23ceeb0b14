// Package app wires all matin subsystems into a running application.
//
// The App struct owns the full lifecycle: New opens every collaborator named
// in the config, RunSession runs one coaching or dictation session, Serve runs
// sessions on the daily schedule next to the operational HTTP endpoints, and
// Shutdown tears everything down in reverse order.
//
// For testing, inject doubles via functional options (WithAudio,
// WithArchive, etc.). When an option is not provided, New creates the real
// implementation from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/MrWong99/matin/internal/config"
	"github.com/MrWong99/matin/internal/journal"
	"github.com/MrWong99/matin/internal/notify"
	"github.com/MrWong99/matin/internal/observe"
	"github.com/MrWong99/matin/internal/settings"
	"github.com/MrWong99/matin/internal/transcript"
	"github.com/MrWong99/matin/internal/transcript/llmcorrect"
	"github.com/MrWong99/matin/internal/transcript/phonetic"
	"github.com/MrWong99/matin/pkg/audio"
	"github.com/MrWong99/matin/pkg/audio/device"
	"github.com/MrWong99/matin/pkg/memory"
	"github.com/MrWong99/matin/pkg/memory/postgres"
	"github.com/MrWong99/matin/pkg/provider/llm"
	"github.com/MrWong99/matin/pkg/provider/stt"
	"github.com/MrWong99/matin/pkg/provider/tts"
	"github.com/MrWong99/matin/pkg/provider/vad"
	"github.com/MrWong99/matin/pkg/types"
)

// DefaultCuePath is played when a session ends and audio.cue_path is unset.
const DefaultCuePath = "assets/audio/session_complete.wav"

const (
	defaultPlaybackRate = 48000
	archiveTimeout      = 10 * time.Second
)

// Providers holds one backend per slot, built by main.go through the config
// registry. LLM and TTS may be nil in dictation mode.
type Providers struct {
	LLM     llm.Provider
	LLMName string
	STT     stt.Engine
	TTS     tts.Provider
}

// App owns all subsystem lifetimes.
type App struct {
	providers *Providers

	mu  sync.Mutex
	cfg *config.Config

	settings    settings.Store
	settingsDB  *settings.SQLiteStore
	archive     memory.Archive
	journal     *journal.Journal
	notifier    notify.Notifier
	newSource   func() audio.Source
	sink        audio.Sink
	detector    vad.Detector
	cue         *audio.Clip
	metrics     *observe.Metrics
	out         io.Writer
	transcriber *stt.Adapter
	corrector   *transcript.Pipeline

	sessions *SessionManager

	// closers are called in reverse order during Shutdown.
	closers  []func() error
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithSettings injects the settings store instead of opening the configured
// backend.
func WithSettings(s settings.Store) Option {
	return func(a *App) { a.settings = s }
}

// WithArchive injects a transcript archive instead of connecting to Postgres.
func WithArchive(ar memory.Archive) Option {
	return func(a *App) { a.archive = ar }
}

// WithJournal injects a voice journal.
func WithJournal(j *journal.Journal) Option {
	return func(a *App) { a.journal = j }
}

// WithNotifier injects the end-of-session notifier.
func WithNotifier(n notify.Notifier) Option {
	return func(a *App) { a.notifier = n }
}

// WithAudio replaces the malgo capture and oto playback devices. newSource is
// called once per session.
func WithAudio(newSource func() audio.Source, sink audio.Sink) Option {
	return func(a *App) {
		a.newSource = newSource
		a.sink = sink
	}
}

// WithDetector replaces the energy detector built from the vad section.
func WithDetector(d vad.Detector) Option {
	return func(a *App) { a.detector = d }
}

// WithCue replaces the end-of-session cue loaded from audio.cue_path.
func WithCue(clip audio.Clip) Option {
	return func(a *App) { a.cue = &clip }
}

// WithMetrics records on m instead of observe.DefaultMetrics.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithOutput sets where dictation transcripts are printed. Defaults to
// os.Stdout.
func WithOutput(w io.Writer) Option {
	return func(a *App) { a.out = w }
}

// New creates an App by wiring all subsystems together. Failures to open a
// configured backend are fatal.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.STT == nil {
		return nil, errors.New("app: an STT engine is required")
	}
	if cfg.Session.Mode != config.ModeDictation && (providers.LLM == nil || providers.TTS == nil) {
		return nil, errors.New("app: turn mode requires an LLM and a TTS provider")
	}

	a := &App{
		cfg:       cfg,
		providers: providers,
		out:       os.Stdout,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	if err := a.initSettings(); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init settings: %w", err)
	}
	if err := a.initArchive(ctx); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init archive: %w", err)
	}
	if err := a.initJournal(); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init journal: %w", err)
	}
	if err := a.initNotifier(); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init notifier: %w", err)
	}
	if err := a.initAudio(); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init audio: %w", err)
	}
	a.initCue()
	a.initTranscript()

	a.sessions = NewSessionManager()
	return a, nil
}

func (a *App) initSettings() error {
	if a.settings != nil {
		return nil
	}
	inline := settings.Map(a.cfg.Settings.Values)

	switch a.cfg.Settings.Backend {
	case config.SettingsYAML:
		m, err := settings.LoadYAML(a.cfg.Settings.Path)
		if err != nil {
			return err
		}
		a.settings = settings.Chain{m, inline}
	case config.SettingsSQLite:
		db, err := settings.OpenSQLite(a.cfg.Settings.Path)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, db.Close)
		a.settingsDB = db
		a.settings = settings.Chain{db, inline}
	default:
		a.settings = inline
	}
	slog.Info("settings loaded", "backend", a.cfg.Settings.Backend)
	return nil
}

func (a *App) initArchive(ctx context.Context) error {
	if a.archive != nil || a.cfg.Archive.PostgresDSN == "" {
		return nil
	}
	store, err := postgres.NewStore(ctx, a.cfg.Archive.PostgresDSN)
	if err != nil {
		return err
	}
	a.archive = store
	a.closers = append(a.closers, func() error {
		store.Close()
		return nil
	})
	return nil
}

func (a *App) initJournal() error {
	if a.journal != nil || !a.cfg.Journal.Enabled {
		return nil
	}
	j, err := journal.New(a.cfg.Journal.Dir)
	if err != nil {
		return err
	}
	a.journal = j
	return nil
}

func (a *App) initNotifier() error {
	if a.notifier != nil || a.cfg.Notify.DiscordToken == "" {
		return nil
	}
	d, err := notify.NewDiscord(a.cfg.Notify.DiscordToken, a.cfg.Notify.DiscordChannelID)
	if err != nil {
		return err
	}
	a.notifier = d
	return nil
}

func (a *App) initAudio() error {
	if a.newSource == nil {
		want := audio.Format{SampleRate: a.cfg.Audio.CaptureRate, Channels: a.cfg.Audio.CaptureChannels}
		a.newSource = func() audio.Source {
			return device.NewCapture(device.WithCaptureFormat(want))
		}
	}
	if a.sink != nil || a.cfg.Session.Mode == config.ModeDictation {
		return nil
	}
	rate := a.cfg.Audio.PlaybackRate
	if rate == 0 {
		rate = defaultPlaybackRate
	}
	p, err := device.NewPlayer(audio.Format{SampleRate: rate, Channels: 2})
	if err != nil {
		return err
	}
	a.sink = p
	a.closers = append(a.closers, p.Close)
	return nil
}

// initCue loads the end-of-session sound. A missing or unreadable file only
// costs the cue, not the session.
func (a *App) initCue() {
	if a.cue != nil {
		return
	}
	path := a.cfg.Audio.CuePath
	if path == "" {
		path = DefaultCuePath
	}
	clip, err := audio.LoadWAV(path)
	if err != nil {
		slog.Warn("end-of-session cue unavailable", "path", path, "err", err)
		a.cue = &audio.Clip{}
		return
	}
	a.cue = &clip
}

func (a *App) initTranscript() {
	a.transcriber = stt.NewAdapter(a.providers.STT)
	if !a.cfg.Transcript.Correct {
		return
	}
	opts := []transcript.Option{transcript.WithPhonetic(phonetic.New())}
	if a.cfg.Transcript.LLM && a.providers.LLM != nil {
		opts = append(opts, transcript.WithLLM(llmcorrect.New(a.providers.LLM)))
	}
	a.corrector = transcript.NewPipeline(opts...)
}

// Config returns the config the next session will use.
func (a *App) Config() *config.Config {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg
}

// Reload applies the parts of next that can change between sessions: the
// persona and other session text, VAD tuning, the schedule and the log
// level. Everything else keeps its startup value until a restart.
func (a *App) Reload(next *config.Config) {
	a.mu.Lock()
	defer a.mu.Unlock()

	cfg := *a.cfg
	cfg.Server.LogLevel = next.Server.LogLevel
	cfg.VAD = next.VAD
	cfg.Schedule = next.Schedule
	cfg.Session.Persona = next.Session.Persona
	cfg.Session.Greeting = next.Session.Greeting
	cfg.Session.VoiceID = next.Session.VoiceID
	cfg.Session.MaxTokens = next.Session.MaxTokens
	a.cfg = &cfg
}

// Sessions returns the manager tracking the active session.
func (a *App) Sessions() *SessionManager { return a.sessions }

// Settings returns the settings store in use.
func (a *App) Settings() settings.Store { return a.settings }

// ListVoices returns the voices offered by the TTS provider.
func (a *App) ListVoices(ctx context.Context) ([]types.VoiceProfile, error) {
	if a.providers.TTS == nil {
		return nil, errors.New("app: no TTS provider configured")
	}
	voices, err := a.providers.TTS.ListVoices(ctx)
	if err != nil {
		return nil, fmt.Errorf("app: list voices: %w", err)
	}
	return voices, nil
}

// Shutdown releases every subsystem opened by New. It is safe to call more
// than once.
func (a *App) Shutdown(ctx context.Context) error {
	var err error
	a.stopOnce.Do(func() {
		a.sessions.Stop()

		done := make(chan error, 1)
		go func() { done <- a.closeAll() }()
		select {
		case err = <-done:
		case <-ctx.Done():
			err = fmt.Errorf("app: shutdown: %w", ctx.Err())
		}
	})
	return err
}

func (a *App) closeAll() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
