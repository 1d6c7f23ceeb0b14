package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per kind. [Validate] warns
// about names not listed.
var ValidProviderNames = map[string][]string{
	"llm": {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"stt": {"whisper", "whisper-native", "deepgram"},
	"tts": {"elevenlabs", "coqui"},
}

// Load reads and validates the YAML configuration file at path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates it. Unknown keys
// are rejected.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cfg and returns every problem found, joined.
func Validate(cfg *Config) error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		bad("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel)
	}

	mode := cfg.Session.Mode
	if mode != "" && !mode.IsValid() {
		bad("session.mode %q is invalid; valid values: turn, dictation", mode)
	}
	if cfg.Providers.STT.Name == "" {
		bad("providers.stt.name is required")
	}
	if mode != ModeDictation {
		if cfg.Providers.LLM.Name == "" {
			bad("providers.llm.name is required in turn mode")
		}
		if cfg.Providers.TTS.Name == "" {
			bad("providers.tts.name is required in turn mode")
		}
	}
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)
	for kind, entries := range map[string][]ProviderEntry{
		"llm": cfg.Providers.Fallbacks.LLM,
		"stt": cfg.Providers.Fallbacks.STT,
		"tts": cfg.Providers.Fallbacks.TTS,
	} {
		for i, e := range entries {
			if e.Name == "" {
				bad("providers.fallbacks.%s[%d].name is required", kind, i)
			}
			validateProviderName(kind, e.Name)
		}
	}

	if cfg.Audio.LatencyMs < 0 {
		bad("audio.latency_ms must not be negative")
	}
	if cfg.Audio.Gain < 0 {
		bad("audio.gain must not be negative")
	}
	if cfg.Audio.PollInterval < 0 {
		bad("audio.poll_interval must not be negative")
	}
	if cfg.Audio.CaptureChannels < 0 || cfg.Audio.CaptureRate < 0 || cfg.Audio.PlaybackRate < 0 {
		bad("audio rates and channel counts must not be negative")
	}

	if cfg.VAD.LastMs < 0 {
		bad("vad.last_ms must not be negative")
	}
	if cfg.VAD.Threshold < 0 || cfg.VAD.Threshold > 1 {
		bad("vad.threshold %.2f is out of range [0, 1]", cfg.VAD.Threshold)
	}
	if cfg.VAD.CutoffHz < 0 {
		bad("vad.cutoff_hz must not be negative")
	}

	if cfg.Session.MaxTokens < 0 {
		bad("session.max_tokens must not be negative")
	}
	if cfg.Dictation.Window < 0 || cfg.Dictation.Iterations < 0 {
		bad("dictation.window and dictation.iterations must not be negative")
	}

	if b := cfg.Settings.Backend; b != "" {
		switch {
		case !b.IsValid():
			bad("settings.backend %q is invalid; valid values: inline, yaml, sqlite", b)
		case b != SettingsInline && cfg.Settings.Path == "":
			bad("settings.path is required for the %s backend", b)
		}
	}

	if cfg.Journal.Enabled && cfg.Journal.Dir == "" {
		bad("journal.dir is required when the journal is enabled")
	}
	if (cfg.Notify.DiscordToken == "") != (cfg.Notify.DiscordChannelID == "") {
		bad("notify.discord_token and notify.discord_channel_id must be set together")
	}
	if at := cfg.Schedule.At; at != "" {
		if _, err := time.Parse("15:04", at); err != nil {
			bad("schedule.at %q is not an HH:MM time", at)
		}
	}

	if cfg.Transcript.LLM && !cfg.Transcript.Correct {
		slog.Warn("transcript.llm has no effect while transcript.correct is false")
	}
	if cfg.Archive.PostgresDSN == "" {
		slog.Debug("archive.postgres_dsn is empty; transcripts will not be archived")
	}

	return errors.Join(errs...)
}

// validateProviderName warns when name is set but not in [ValidProviderNames].
func validateProviderName(kind, name string) {
	if name == "" || slices.Contains(ValidProviderNames[kind], name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", ValidProviderNames[kind],
	)
}
