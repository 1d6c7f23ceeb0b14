package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/matin/internal/config"
)

const fullYAML = `
server:
  listen_addr: ":9090"
  log_level: debug
  sentry_dsn: "https://key@sentry.example.com/1"
providers:
  llm:
    name: openai
    api_key: sk-test
    model: gpt-3.5-turbo
  stt:
    name: whisper-native
    base_url: models/ggml-base.en.bin
  tts:
    name: elevenlabs
    api_key: el-test
  fallbacks:
    llm:
      - name: ollama
        model: llama3
audio:
  latency_ms: 7000
  gain: 2
  poll_interval: 1s
  warmup: 2s
  cue_path: assets/audio/session_complete.wav
vad:
  last_ms: 1000
  threshold: 0.6
  cutoff_hz: 100
session:
  mode: turn
  voice_id: rachel
  max_tokens: 120
dictation:
  window: 5s
  iterations: 2
settings:
  backend: sqlite
  path: settings.db
  values:
    userFirstName: Ada
archive:
  postgres_dsn: "postgres://localhost/matin"
journal:
  enabled: true
  dir: journal
notify:
  discord_token: bot-token
  discord_channel_id: "123"
schedule:
  at: "07:30"
transcript:
  correct: true
  vocabulary: [Vitamins]
`

func TestLoadFromReader_Full(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(fullYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	checks := []struct {
		name      string
		got, want any
	}{
		{"listen_addr", cfg.Server.ListenAddr, ":9090"},
		{"log_level", cfg.Server.LogLevel, config.LogDebug},
		{"llm model", cfg.Providers.LLM.Model, "gpt-3.5-turbo"},
		{"stt name", cfg.Providers.STT.Name, "whisper-native"},
		{"fallback llm", len(cfg.Providers.Fallbacks.LLM), 1},
		{"latency", cfg.Audio.LatencyMs, 7000},
		{"poll_interval", cfg.Audio.PollInterval, time.Second},
		{"warmup", cfg.Audio.Warmup, 2 * time.Second},
		{"vad threshold", cfg.VAD.Threshold, 0.6},
		{"mode", cfg.Session.Mode, config.ModeTurn},
		{"window", cfg.Dictation.Window, 5 * time.Second},
		{"settings backend", cfg.Settings.Backend, config.SettingsSQLite},
		{"inline value", cfg.Settings.Values["userFirstName"], "Ada"},
		{"journal dir", cfg.Journal.Dir, "journal"},
		{"schedule", cfg.Schedule.At, "07:30"},
		{"vocabulary", len(cfg.Transcript.Vocabulary), 1},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	t.Parallel()
	yaml := `
providers:
  stt: {name: whisper}
  llm: {name: openai}
  tts: {name: coqui}
routines: []
`
	if _, err := config.LoadFromReader(strings.NewReader(yaml)); err == nil {
		t.Fatal("expected unknown field to be rejected")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	base := func() *config.Config {
		return &config.Config{Providers: config.ProvidersConfig{
			LLM: config.ProviderEntry{Name: "openai"},
			STT: config.ProviderEntry{Name: "whisper"},
			TTS: config.ProviderEntry{Name: "elevenlabs"},
		}}
	}

	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr []string
	}{
		{name: "minimal turn mode", mutate: func(*config.Config) {}},
		{
			name:   "dictation needs only stt",
			mutate: func(c *config.Config) { c.Session.Mode = config.ModeDictation; c.Providers.LLM.Name = ""; c.Providers.TTS.Name = "" },
		},
		{
			name:    "turn mode needs llm and tts",
			mutate:  func(c *config.Config) { c.Providers.LLM.Name = ""; c.Providers.TTS.Name = "" },
			wantErr: []string{"providers.llm.name", "providers.tts.name"},
		},
		{
			name:    "stt always required",
			mutate:  func(c *config.Config) { c.Providers.STT.Name = "" },
			wantErr: []string{"providers.stt.name"},
		},
		{
			name:    "bad enums",
			mutate:  func(c *config.Config) { c.Server.LogLevel = "loud"; c.Session.Mode = "chat"; c.Settings.Backend = "redis" },
			wantErr: []string{"server.log_level", "session.mode", "settings.backend"},
		},
		{
			name:    "settings path",
			mutate:  func(c *config.Config) { c.Settings.Backend = config.SettingsYAML },
			wantErr: []string{"settings.path"},
		},
		{
			name:    "ranges",
			mutate:  func(c *config.Config) { c.VAD.Threshold = 1.5; c.Audio.Gain = -1; c.Audio.LatencyMs = -5 },
			wantErr: []string{"vad.threshold", "audio.gain", "audio.latency_ms"},
		},
		{
			name:    "journal without dir",
			mutate:  func(c *config.Config) { c.Journal.Enabled = true },
			wantErr: []string{"journal.dir"},
		},
		{
			name:    "half notify config",
			mutate:  func(c *config.Config) { c.Notify.DiscordToken = "x" },
			wantErr: []string{"notify.discord_token"},
		},
		{
			name:    "schedule format",
			mutate:  func(c *config.Config) { c.Schedule.At = "7 o'clock" },
			wantErr: []string{"schedule.at"},
		},
		{
			name:    "fallback without name",
			mutate:  func(c *config.Config) { c.Providers.Fallbacks.TTS = []config.ProviderEntry{{}} },
			wantErr: []string{"providers.fallbacks.tts[0].name"},
		},
		{
			name:   "negative warmup disables it",
			mutate: func(c *config.Config) { c.Audio.Warmup = -1 },
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(cfg)
			err := config.Validate(cfg)
			if len(tc.wantErr) == 0 {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			for _, want := range tc.wantErr {
				if !strings.Contains(err.Error(), want) {
					t.Errorf("error should mention %q, got: %v", want, err)
				}
			}
		})
	}
}

func TestLoad(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(fullYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := config.Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Load missing = %v, want ErrNotExist", err)
	}
}
