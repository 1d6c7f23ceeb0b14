// Command matin is a spoken morning-routine coach.
//
// By default it runs a single session and exits. With -serve it stays up,
// starts a session every day at the configured time and serves the health and
// metrics endpoints.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/matin/internal/app"
	"github.com/MrWong99/matin/internal/config"
	"github.com/MrWong99/matin/internal/observe"
	"github.com/MrWong99/matin/internal/report"
	"github.com/MrWong99/matin/internal/resilience"
	"github.com/MrWong99/matin/pkg/provider/llm"
	"github.com/MrWong99/matin/pkg/provider/llm/anyllm"
	"github.com/MrWong99/matin/pkg/provider/llm/openai"
	"github.com/MrWong99/matin/pkg/provider/stt"
	"github.com/MrWong99/matin/pkg/provider/stt/deepgram"
	"github.com/MrWong99/matin/pkg/provider/stt/whisper"
	"github.com/MrWong99/matin/pkg/provider/tts"
	"github.com/MrWong99/matin/pkg/provider/tts/coqui"
	"github.com/MrWong99/matin/pkg/provider/tts/elevenlabs"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// defaultModel is used when providers.llm.model is empty and the provider is
// openai.
const defaultModel = "gpt-3.5-turbo"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	serve := flag.Bool("serve", false, "run sessions on the daily schedule and serve /healthz, /readyz and /metrics")
	listVoices := flag.Bool("list-voices", false, "print the voices offered by the TTS provider and exit")
	mode := flag.String("mode", "", `session mode, "turn" or "dictation" (overrides session.mode)`)
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "matin: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "matin: %v\n", err)
		}
		return 1
	}
	if *mode != "" {
		cfg.Session.Mode = config.Mode(*mode)
		if err := config.Validate(cfg); err != nil {
			fmt.Fprintf(os.Stderr, "matin: %v\n", err)
			return 1
		}
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(slogLevel(cfg.Server.LogLevel))
	slog.SetDefault(newLogger(level))

	slog.Info("matin starting",
		"version", version,
		"config", *configPath,
		"mode", cfg.Session.Mode,
		"serve", *serve,
	)

	// ── Error reporting ───────────────────────────────────────────────────────
	if err := report.Init(cfg.Server.SentryDSN, cfg.Server.Environment, version); err != nil {
		slog.Warn("error reporting disabled", "err", err)
	}
	defer report.Flush()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	if *listVoices {
		return printVoices(ctx, cfg, providers)
	}

	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg, providers)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		report.Capture(err, map[string]string{"stage": "startup"})
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := application.Shutdown(sctx); err != nil {
			slog.Error("shutdown error", "err", err)
		}
	}()

	if !*serve {
		if err := application.RunSession(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("session failed", "err", err)
			return 1
		}
		slog.Info("goodbye")
		return 0
	}

	// ── Config hot reload ─────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		diff := config.Diff(old, new)
		if diff.LogLevelChanged {
			level.Set(slogLevel(diff.NewLogLevel))
		}
		if !diff.Reloadable() {
			slog.Warn("config changes need a restart to take effect", "sections", diff.Sections)
		}
		application.Reload(new)
	})
	if err != nil {
		slog.Warn("config hot reload disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	slog.Info("server ready, press Ctrl+C to shut down")
	if err := application.Serve(ctx); err != nil {
		slog.Error("serve error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// anyllmBackends are the LLM names served through any-llm-go. openai has its
// own client.
var anyllmBackends = []string{"anthropic", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile", "ollama"}

// registerBuiltinProviders wires all built-in provider factories into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// ── LLM ───────────────────────────────────────────────────────────────────
	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		model := entry.Model
		if model == "" {
			model = defaultModel
		}
		var opts []openai.Option
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		if org := optString(entry.Options, "organization"); org != "" {
			opts = append(opts, openai.WithOrganization(org))
		}
		return openai.New(entry.APIKey, model, opts...)
	})

	for _, providerName := range anyllmBackends {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ── STT ───────────────────────────────────────────────────────────────────
	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Engine, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Engine, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.NewServer(entry.BaseURL, opts...)
	})

	reg.RegisterSTT("whisper-native", func(entry config.ProviderEntry) (stt.Engine, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = optString(entry.Options, "model_path")
		}
		var opts []whisper.NativeOption
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithNativeLanguage(lang))
		}
		return whisper.NewNative(modelPath, opts...)
	})

	// ── TTS ───────────────────────────────────────────────────────────────────
	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if outputFmt := optString(entry.Options, "output_format"); outputFmt != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(outputFmt))
		}
		if entry.BaseURL != "" {
			opts = append(opts, elevenlabs.WithBaseURL(entry.BaseURL))
		}
		return elevenlabs.New(entry.APIKey, opts...)
	})

	reg.RegisterTTS("coqui", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []coqui.Option
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, coqui.WithLanguage(lang))
		}
		if mode := optString(entry.Options, "api_mode"); mode != "" {
			opts = append(opts, coqui.WithAPIMode(coqui.APIMode(mode)))
		}
		return coqui.New(entry.BaseURL, opts...)
	})

	for kind, names := range reg.Names() {
		for _, name := range names {
			slog.Debug("registered provider", "kind", kind, "name", name)
		}
	}
}

// breakerConfig logs every breaker transition.
func breakerConfig() resilience.FallbackConfig {
	return resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			OnStateChange: func(name string, from, to resilience.State) {
				slog.Warn("provider circuit breaker changed state", "provider", name, "from", from, "to", to)
			},
		},
	}
}

// buildProviders instantiates the providers named in cfg. When fallbacks are
// configured for a slot, the primary and its fallbacks are wrapped in a
// failover group.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}
	fb := cfg.Providers.Fallbacks

	if e := cfg.Providers.LLM; e.Name != "" {
		p, err := reg.CreateLLM(e)
		if err != nil {
			return nil, err
		}
		ps.LLM, ps.LLMName = p, e.Name
		if len(fb.LLM) > 0 {
			group := resilience.NewLLMFallback(p, e.Name, breakerConfig())
			for _, f := range fb.LLM {
				alt, err := reg.CreateLLM(f)
				if err != nil {
					return nil, err
				}
				group.AddFallback(f.Name, alt)
			}
			ps.LLM = group
		}
		slog.Info("provider created", "kind", "llm", "name", e.Name, "fallbacks", len(fb.LLM))
	}

	if e := cfg.Providers.STT; e.Name != "" {
		p, err := reg.CreateSTT(e)
		if err != nil {
			return nil, err
		}
		ps.STT = p
		if len(fb.STT) > 0 {
			group := resilience.NewSTTFallback(p, e.Name, breakerConfig())
			for _, f := range fb.STT {
				alt, err := reg.CreateSTT(f)
				if err != nil {
					return nil, err
				}
				group.AddFallback(f.Name, alt)
			}
			ps.STT = group
		}
		slog.Info("provider created", "kind", "stt", "name", e.Name, "fallbacks", len(fb.STT))
	}

	if e := cfg.Providers.TTS; e.Name != "" {
		p, err := reg.CreateTTS(e)
		if err != nil {
			return nil, err
		}
		ps.TTS = p
		if len(fb.TTS) > 0 {
			group := resilience.NewTTSFallback(p, e.Name, breakerConfig())
			for _, f := range fb.TTS {
				alt, err := reg.CreateTTS(f)
				if err != nil {
					return nil, err
				}
				group.AddFallback(f.Name, alt)
			}
			ps.TTS = group
		}
		slog.Info("provider created", "kind", "tts", "name", e.Name, "fallbacks", len(fb.TTS))
	}

	return ps, nil
}

func printVoices(ctx context.Context, cfg *config.Config, providers *app.Providers) int {
	if providers.TTS == nil {
		fmt.Fprintln(os.Stderr, "matin: no TTS provider configured")
		return 1
	}
	voices, err := providers.TTS.ListVoices(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "matin: list voices: %v\n", err)
		return 1
	}
	fmt.Printf("%d voices from %s:\n", len(voices), cfg.Providers.TTS.Name)
	for _, v := range voices {
		marker := " "
		if v.ID == cfg.Session.VoiceID {
			marker = "*"
		}
		fmt.Printf(" %s %-28s %s\n", marker, v.ID, v.Name)
	}
	return 0
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║          matin startup summary        ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("LLM", cfg.Providers.LLM.Name, cfg.Providers.LLM.Model)
	printProvider("STT", cfg.Providers.STT.Name, cfg.Providers.STT.Model)
	printProvider("TTS", cfg.Providers.TTS.Name, cfg.Providers.TTS.Model)
	printRow("Mode", string(cfg.Session.Mode))
	printRow("Settings", string(cfg.Settings.Backend))
	printRow("Archive", enabled(cfg.Archive.PostgresDSN != ""))
	printRow("Journal", enabled(cfg.Journal.Enabled))
	printRow("Discord report", enabled(cfg.Notify.DiscordToken != ""))
	if cfg.Schedule.At != "" {
		printRow("Schedule", cfg.Schedule.At)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	printRow(kind, value)
}

func printRow(label, value string) {
	if value == "" {
		value = "(default)"
	}
	if len(value) > 19 {
		value = value[:16] + "..."
	}
	fmt.Printf("║  %-14s  : %-19s ║\n", label, value)
}

func enabled(on bool) string {
	if on {
		return "enabled"
	}
	return "(disabled)"
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level slog.Leveler) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	v, ok := opts[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}
