package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/matin/internal/config"
	"github.com/MrWong99/matin/internal/conversation"
	"github.com/MrWong99/matin/internal/dictation"
	"github.com/MrWong99/matin/internal/notify"
	"github.com/MrWong99/matin/internal/observe"
	"github.com/MrWong99/matin/internal/reasoning"
	"github.com/MrWong99/matin/internal/report"
	"github.com/MrWong99/matin/internal/settings"
	"github.com/MrWong99/matin/internal/transcript"
	"github.com/MrWong99/matin/internal/turn"
	"github.com/MrWong99/matin/pkg/provider/vad/energy"
	"github.com/MrWong99/matin/pkg/types"
)

// RunSession runs one session in the configured mode and blocks until it
// ends. Afterwards the transcript is archived and the summary is sent, even
// when the session failed or ctx was cancelled.
func (a *App) RunSession(ctx context.Context) error {
	cfg := a.Config()
	mode := cfg.Session.Mode
	if mode == "" {
		mode = config.ModeTurn
	}

	sctx, info, err := a.sessions.begin(ctx, mode)
	if err != nil {
		return err
	}

	var res sessionResult
	if mode == config.ModeDictation {
		res = a.runDictation(sctx, cfg, info)
	} else {
		res = a.runTurn(sctx, cfg, info)
	}
	a.finish(ctx, info, res)
	a.sessions.end(info.SessionID, res.err)
	return res.err
}

// sessionResult is what a finished session leaves behind.
type sessionResult struct {
	entries   []types.TranscriptEntry
	turns     int
	lastReply string
	err       error
}

func (a *App) runTurn(ctx context.Context, cfg *config.Config, info SessionInfo) sessionResult {
	persona := cfg.Session.Persona
	if persona == "" {
		persona = reasoning.DefaultPersona
	}
	checklist := a.settings.Lookup(settings.UserPrompt)
	log := conversation.New(persona, checklist)

	greeting := cfg.Session.Greeting
	if greeting == "" {
		greeting = settings.Greeting(a.settings)
	}

	tc := turn.Config{
		Source:      a.newSource(),
		Sink:        a.sink,
		Detector:    a.detector,
		Transcriber: a.transcriber,
		Reasoner: reasoning.New(a.providers.LLM,
			reasoning.WithMaxTokens(cfg.Session.MaxTokens),
			reasoning.WithProviderName(a.providers.LLMName),
			reasoning.WithMetrics(a.metrics),
		),
		TTS:          a.providers.TTS,
		Voice:        types.VoiceProfile{ID: cfg.Session.VoiceID},
		Log:          log,
		Cue:          *a.cue,
		Greeting:     greeting,
		Latency:      time.Duration(cfg.Audio.LatencyMs) * time.Millisecond,
		Gain:         float32(cfg.Audio.Gain),
		PollInterval: cfg.Audio.PollInterval,
		Warmup:       cfg.Audio.Warmup,
		OnSegment:    a.journalSegments(ctx, info.SessionID),
		Metrics:      a.metrics,
	}
	if tc.Detector == nil {
		tc.Detector = newDetector(cfg.VAD)
	}
	if a.corrector != nil {
		vocab := transcript.Vocabulary(checklist, cfg.Transcript.Vocabulary...)
		tc.Corrector = transcript.NewChecklist(a.corrector, vocab)
	}

	eng, err := turn.New(tc)
	if err != nil {
		return sessionResult{err: fmt.Errorf("app: %w", err)}
	}
	err = eng.Run(ctx)

	res := sessionResult{
		entries: log.Entries(info.SessionID),
		turns:   log.Turns(),
		err:     err,
	}
	if m, ok := log.LastAssistant(); ok {
		res.lastReply = m.Content
	}
	return res
}

func (a *App) runDictation(ctx context.Context, cfg *config.Config, info SessionInfo) sessionResult {
	var (
		mu      sync.Mutex
		entries []types.TranscriptEntry
	)
	sess, err := dictation.New(dictation.Config{
		Source:      a.newSource(),
		Transcriber: a.transcriber,
		Window:      cfg.Dictation.Window,
		Iterations:  cfg.Dictation.Iterations,
		Gain:        float32(cfg.Audio.Gain),
		Metrics:     a.metrics,
		OnText: func(text string) {
			fmt.Fprintln(a.out, text)
			mu.Lock()
			defer mu.Unlock()
			entries = append(entries, types.TranscriptEntry{
				SessionID: info.SessionID,
				Seq:       len(entries),
				Role:      string(conversation.User),
				Text:      text,
				Timestamp: time.Now(),
			})
		},
	})
	if err != nil {
		return sessionResult{err: fmt.Errorf("app: %w", err)}
	}

	err = sess.Run(ctx)
	// Cancellation is how dictation is stopped.
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		err = nil
	}

	mu.Lock()
	defer mu.Unlock()
	res := sessionResult{entries: entries, turns: len(entries), err: err}
	if n := len(entries); n > 0 {
		res.lastReply = entries[n-1].Text
	}
	return res
}

// journalSegments returns the OnSegment hook writing each user utterance to
// the voice journal, or nil when the journal is disabled.
func (a *App) journalSegments(ctx context.Context, sessionID string) func([]float32, int) {
	if a.journal == nil {
		return nil
	}
	var seq atomic.Int32
	return func(samples []float32, rate int) {
		n := int(seq.Add(1))
		path, err := a.journal.Record(sessionID, n, samples, rate)
		if err != nil {
			observe.Logger(ctx).Warn("journal: record segment", "session_id", sessionID, "seq", n, "err", err)
			return
		}
		observe.Logger(ctx).Debug("journal: segment recorded", "path", path)
	}
}

// finish archives the transcript, reports failures and sends the summary.
// It runs on a context detached from the session so that a cancelled
// session is still recorded.
func (a *App) finish(ctx context.Context, info SessionInfo, res sessionResult) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), archiveTimeout)
	defer cancel()
	log := observe.Logger(ctx).With("session_id", info.SessionID)

	if res.err != nil {
		report.Capture(res.err, map[string]string{
			"session_id": info.SessionID,
			"mode":       string(info.Mode),
		})
	}

	if a.archive != nil && len(res.entries) > 0 {
		if err := a.archive.Write(ctx, res.entries); err != nil {
			log.Error("archive: write transcript", "err", err)
			report.Capture(err, map[string]string{"session_id": info.SessionID, "stage": "archive"})
		} else {
			log.Info("archive: transcript written", "entries", len(res.entries))
		}
	}

	if a.notifier != nil {
		sum := notify.Summary{
			SessionID: info.SessionID,
			Mode:      string(info.Mode),
			Started:   info.StartedAt,
			Ended:     a.sessions.now().UTC(),
			Turns:     res.turns,
			LastReply: res.lastReply,
			Err:       res.err,
		}
		if err := a.notifier.Notify(ctx, sum); err != nil {
			log.Warn("notify: send summary", "err", err)
		}
	}
}

func newDetector(cfg config.VADConfig) *energy.Detector {
	var opts []energy.Option
	if cfg.LastMs > 0 {
		opts = append(opts, energy.WithLastMs(cfg.LastMs))
	}
	if cfg.Threshold > 0 {
		opts = append(opts, energy.WithThreshold(float32(cfg.Threshold)))
	}
	if cfg.CutoffHz > 0 {
		opts = append(opts, energy.WithCutoffHz(float32(cfg.CutoffHz)))
	}
	return energy.New(opts...)
}
