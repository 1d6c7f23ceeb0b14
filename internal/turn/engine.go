// Package turn runs one spoken coaching session: capture, end-of-speech
// detection, recognition, reasoning and playback, until the reasoning service
// leaves the conversation.
//
// Four stages run concurrently and hand work to each other over bounded
// channels:
//
//	listen ──segments──▶ transcribe ──transcripts──▶ reason ──replies──▶ speak
//	   ▲                                                                   │
//	   └───────────────────────────── resume ──────────────────────────────┘
//
// Capture is paused while a segment is in flight, so the coach never hears
// itself. The driver callback only pushes into a lock-free ring; every other
// step happens on the stage goroutines.
package turn

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/matin/internal/conversation"
	"github.com/MrWong99/matin/internal/observe"
	"github.com/MrWong99/matin/internal/reasoning"
	"github.com/MrWong99/matin/pkg/audio"
	"github.com/MrWong99/matin/pkg/audio/ring"
	"github.com/MrWong99/matin/pkg/provider/stt"
	"github.com/MrWong99/matin/pkg/provider/tts"
	"github.com/MrWong99/matin/pkg/provider/vad"
	"github.com/MrWong99/matin/pkg/types"
)

const (
	// DefaultPollInterval is how long the listener sleeps between detector
	// polls while the user is still speaking or silent.
	DefaultPollInterval = time.Second

	// DefaultWarmup is how much audio is discarded right after capture starts.
	DefaultWarmup = 2 * time.Second

	// stageBuffer is the depth of the segment, transcript and reply channels.
	stageBuffer = 20
)

// Corrector rewrites a transcript before it is logged, e.g. to snap misheard
// words onto the user's checklist vocabulary. On error the transcript is
// logged as recognised.
type Corrector interface {
	Correct(ctx context.Context, text string) (string, error)
}

// Config wires an [Engine] to its collaborators. Source, Sink, Detector,
// Transcriber, Reasoner, TTS and Log are required.
type Config struct {
	Source      audio.Source
	Sink        audio.Sink
	Detector    vad.Detector
	Transcriber stt.Transcriber
	Reasoner    reasoning.Service
	TTS         tts.Provider
	Voice       types.VoiceProfile
	Log         *conversation.Log

	// Cue is played when the session ends. An empty clip plays nothing.
	Cue audio.Clip

	// Greeting is spoken before capture starts. Empty skips it.
	Greeting string

	// Latency sizes the ring and caps the segment accumulator.
	// Zero means ring.DefaultLatency.
	Latency time.Duration

	// Gain is applied after downmix. Zero means audio.DefaultGain.
	Gain float32

	// PollInterval defaults to DefaultPollInterval.
	PollInterval time.Duration

	// Warmup defaults to DefaultWarmup. A negative value disables it.
	Warmup time.Duration

	// Corrector is optional.
	Corrector Corrector

	// OnSegment, if set, receives every captured segment before it is
	// transcribed. The slice must not be retained.
	OnSegment func(segment []float32, sampleRate int)

	// OnTransition, if set, is called synchronously on every state change.
	OnTransition func(from, to State)

	// Metrics defaults to observe.DefaultMetrics.
	Metrics *observe.Metrics
}

// segment is one finished utterance on its way to recognition.
type segment struct {
	frame audio.Frame
	at    time.Time
}

// utterance is text flowing between the later stages. at is when the
// originating segment was captured.
type utterance struct {
	text string
	at   time.Time
}

// Engine runs a single session. It is not reusable: create a new Engine for
// every session.
type Engine struct {
	cfg   Config
	ctl   *SessionControl
	state atomic.Int32
	ring  atomic.Pointer[ring.Ring]
}

// New validates cfg and applies defaults.
func New(cfg Config) (*Engine, error) {
	var errs []error
	for name, missing := range map[string]bool{
		"Source":      cfg.Source == nil,
		"Sink":        cfg.Sink == nil,
		"Detector":    cfg.Detector == nil,
		"Transcriber": cfg.Transcriber == nil,
		"Reasoner":    cfg.Reasoner == nil,
		"TTS":         cfg.TTS == nil,
		"Log":         cfg.Log == nil,
	} {
		if missing {
			errs = append(errs, errMissing(name))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	if cfg.Latency <= 0 {
		cfg.Latency = ring.DefaultLatency
	}
	if cfg.Gain == 0 {
		cfg.Gain = audio.DefaultGain
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Warmup == 0 {
		cfg.Warmup = DefaultWarmup
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	return &Engine{cfg: cfg, ctl: NewSessionControl()}, nil
}

// Control returns the session's quit flag. Calling Quit on it ends the session
// without the end-of-session cue.
func (e *Engine) Control() *SessionControl { return e.ctl }

// State returns the current state.
func (e *Engine) State() State { return State(e.state.Load()) }

// setState moves to next unless the session is already terminated.
func (e *Engine) setState(next State) {
	for {
		cur := State(e.state.Load())
		if cur == next || cur == Terminated {
			return
		}
		if e.state.CompareAndSwap(int32(cur), int32(next)) {
			if e.cfg.OnTransition != nil {
				e.cfg.OnTransition(cur, next)
			}
			return
		}
	}
}

// Run speaks the greeting, starts capture and runs the stages until the
// reasoning service leaves, a stage fails, or ctx is cancelled. It returns nil
// after a normal leave and ctx.Err() after cancellation.
func (e *Engine) Run(ctx context.Context) (err error) {
	ctx, span := observe.StartSpan(ctx, "turn.session")
	defer func() { observe.EndSpan(span, err) }()

	m := e.cfg.Metrics
	m.ActiveSessions.Add(ctx, 1)
	defer m.ActiveSessions.Add(context.WithoutCancel(ctx), -1)
	defer e.setState(Terminated)
	defer e.ctl.Quit()

	log := observe.Logger(ctx)

	if e.cfg.Greeting != "" {
		if err := e.say(ctx, e.cfg.Greeting); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return e.fail(ctx, "greeting", err)
		}
	}

	format, err := e.cfg.Source.Start(e.onBlock)
	if err != nil {
		return fmt.Errorf("turn: start capture: %w", err)
	}
	defer func() {
		if cerr := e.cfg.Source.Close(); cerr != nil {
			log.Warn("turn: close capture", "err", cerr)
		}
	}()
	r := ring.New(ring.Capacity(e.cfg.Latency, format.SampleRate, format.Channels))
	e.ring.Store(r)
	log.Info("turn: capture started",
		"sample_rate", format.SampleRate,
		"channels", format.Channels,
		"ring_capacity", r.Cap(),
	)

	if e.cfg.Warmup > 0 {
		if !e.sleep(ctx, e.cfg.Warmup) {
			return ctx.Err()
		}
	}
	r.Clear()

	segments := make(chan segment, stageBuffer)
	transcripts := make(chan utterance, stageBuffer)
	replies := make(chan utterance, stageBuffer)
	resume := make(chan struct{}, 1)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return e.listen(gctx, r, format, segments, resume) })
	g.Go(func() error { return e.transcribe(gctx, segments, transcripts, resume) })
	g.Go(func() error { return e.reason(gctx, transcripts, replies) })
	g.Go(func() error { return e.speak(gctx, replies, resume) })

	if err := g.Wait(); err != nil {
		log.Error("turn: session failed", "err", err)
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	log.Info("turn: session finished", "messages", e.cfg.Log.Len())
	return nil
}

// onBlock runs on the driver thread.
func (e *Engine) onBlock(samples []float32) {
	if r := e.ring.Load(); r != nil {
		r.PushBlock(samples)
	}
}

// listen polls the ring, accumulates conditioned audio and hands a segment to
// recognition whenever the detector reports the end of speech.
func (e *Engine) listen(ctx context.Context, r *ring.Ring, format audio.Format, segments chan<- segment, resume <-chan struct{}) error {
	log := observe.Logger(ctx)
	cond := audio.Conditioner{Channels: format.Channels, Gain: e.cfg.Gain}
	maxLen := max(int(e.cfg.Latency.Milliseconds())*format.SampleRate/1000, 1)

	var (
		raw, acc, scratch []float32
		dropped           = r.Dropped()
	)
	for {
		if e.ctl.ShouldQuit() || ctx.Err() != nil {
			return nil
		}

		raw = r.DrainInto(raw[:0])
		if d := r.Dropped(); d > dropped {
			log.Warn("turn: capture fell behind, samples dropped", "dropped", d-dropped)
			e.cfg.Metrics.RecordOverflow(ctx, int(d-dropped))
			dropped = d
		}
		if len(raw) > 0 {
			block, err := cond.Condition(raw)
			if err != nil {
				log.Warn("turn: discarding capture block", "err", err)
			} else {
				acc = append(acc, block...)
				if over := len(acc) - maxLen; over > 0 {
					acc = append(acc[:0], acc[over:]...)
				}
			}
		}

		if len(acc) > 0 {
			scratch = append(scratch[:0], acc...)
			verdict := e.cfg.Detector.Detect(scratch, format.SampleRate)
			e.cfg.Metrics.RecordVerdict(ctx, verdict.String())
			if verdict == vad.SpeechEnded {
				seg := segment{
					frame: audio.Frame{Samples: append([]float32(nil), acc...), SampleRate: format.SampleRate, Channels: 1},
					at:    time.Now(),
				}
				acc = acc[:0]
				if !e.handOff(ctx, r, seg, segments, resume) {
					return nil
				}
				continue
			}
		}

		if !e.sleep(ctx, e.cfg.PollInterval) {
			return nil
		}
	}
}

// handOff pauses capture, queues seg and waits until the reply has been spoken.
// It reports false when the session ended meanwhile.
func (e *Engine) handOff(ctx context.Context, r *ring.Ring, seg segment, segments chan<- segment, resume <-chan struct{}) bool {
	log := observe.Logger(ctx)
	e.setState(SpeechCaptured)
	if err := e.cfg.Source.Pause(); err != nil {
		log.Warn("turn: pause capture", "err", err)
	}

	if e.ctl.ShouldQuit() {
		return false
	}
	select {
	case segments <- seg:
	case <-e.ctl.Done():
		return false
	case <-ctx.Done():
		return false
	}
	r.Clear()

	select {
	case <-resume:
	case <-e.ctl.Done():
		return false
	case <-ctx.Done():
		return false
	}
	if err := e.cfg.Source.Resume(); err != nil {
		log.Warn("turn: resume capture", "err", err)
	}
	r.Clear()
	e.setState(AwaitingSpeech)
	return true
}

func (e *Engine) transcribe(ctx context.Context, segments <-chan segment, out chan<- utterance, resume chan<- struct{}) error {
	log := observe.Logger(ctx)
	for {
		var seg segment
		select {
		case <-e.ctl.Done():
			return nil
		case <-ctx.Done():
			return nil
		case seg = <-segments:
		}
		if e.ctl.ShouldQuit() {
			return nil
		}

		if e.cfg.OnSegment != nil {
			e.cfg.OnSegment(seg.frame.Samples, seg.frame.SampleRate)
		}

		text, err := e.recognise(ctx, seg.frame)
		switch {
		case err == nil:
		case ctx.Err() != nil:
			return nil
		case malformed(err):
			log.Warn("turn: skipping unusable segment", "err", err)
			signal(resume)
			continue
		case errors.Is(err, stt.ErrResample):
			e.ctl.Quit()
			e.setState(Terminated)
			return fmt.Errorf("turn: transcribe: %w", err)
		default:
			return e.fail(ctx, "transcribe", err)
		}

		if e.cfg.Corrector != nil {
			fixed, err := e.cfg.Corrector.Correct(ctx, text)
			switch {
			case err != nil:
				log.Warn("turn: transcript correction failed", "err", err)
			case fixed != text:
				log.Debug("turn: transcript corrected", "from", text, "to", fixed)
				text = fixed
			}
		}
		log.Info("turn: user said", "text", text)

		if e.ctl.ShouldQuit() {
			return nil
		}
		if err := e.cfg.Log.Append(conversation.Message{Role: conversation.User, Content: text}); err != nil {
			return fmt.Errorf("turn: log transcript: %w", err)
		}
		select {
		case out <- utterance{text: text, at: seg.at}:
		case <-e.ctl.Done():
			return nil
		case <-ctx.Done():
			return nil
		}
	}
}

func (e *Engine) recognise(ctx context.Context, frame audio.Frame) (text string, err error) {
	ctx, span := observe.StartSpan(ctx, "turn.transcribe")
	defer func() { observe.EndSpan(span, err) }()
	defer observe.Since(ctx, e.cfg.Metrics.STTDuration, time.Now())
	return e.cfg.Transcriber.Transcribe(ctx, frame)
}

func (e *Engine) reason(ctx context.Context, in <-chan utterance, out chan<- utterance) error {
	log := observe.Logger(ctx)
	for {
		var u utterance
		select {
		case <-e.ctl.Done():
			return nil
		case <-ctx.Done():
			return nil
		case u = <-in:
		}
		if e.ctl.ShouldQuit() {
			return nil
		}

		e.setState(AwaitingReasoningReply)
		reply, err := e.cfg.Reasoner.Reply(ctx, e.cfg.Log.Snapshot())
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return e.fail(ctx, "reason", err)
		}
		if reply.Leave {
			log.Info("turn: coach left the conversation")
			e.leave(ctx)
			return nil
		}

		if e.ctl.ShouldQuit() {
			return nil
		}
		if err := e.cfg.Log.Append(conversation.Message{Role: conversation.Assistant, Content: reply.Text}); err != nil {
			return fmt.Errorf("turn: log reply: %w", err)
		}
		log.Info("turn: coach replied", "text", reply.Text)
		select {
		case out <- utterance{text: reply.Text, at: u.at}:
		case <-e.ctl.Done():
			return nil
		case <-ctx.Done():
			return nil
		}
	}
}

func (e *Engine) speak(ctx context.Context, in <-chan utterance, resume chan<- struct{}) error {
	for {
		var u utterance
		select {
		case <-e.ctl.Done():
			return nil
		case <-ctx.Done():
			return nil
		case u = <-in:
		}
		if e.ctl.ShouldQuit() {
			return nil
		}

		e.setState(Speaking)
		if err := e.say(ctx, u.text); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return e.fail(ctx, "speak", err)
		}
		observe.Since(ctx, e.cfg.Metrics.TurnDuration, u.at)
		e.cfg.Metrics.RecordTurn(ctx, "turn")
		signal(resume)
	}
}

// say synthesizes text and plays it to completion.
func (e *Engine) say(ctx context.Context, text string) (err error) {
	ctx, span := observe.StartSpan(ctx, "turn.speak")
	defer func() { observe.EndSpan(span, err) }()

	start := time.Now()
	clip, err := tts.Synthesize(ctx, e.cfg.TTS, text, e.cfg.Voice)
	observe.Since(ctx, e.cfg.Metrics.TTSDuration, start)
	if err != nil {
		return err
	}
	return e.cfg.Sink.Play(ctx, clip)
}

// leave ends the session normally.
func (e *Engine) leave(ctx context.Context) {
	e.ctl.Quit()
	e.setState(Terminated)
	e.playCue(ctx)
}

// fail ends the session after an external failure and returns the error Run
// reports.
func (e *Engine) fail(ctx context.Context, stage string, err error) error {
	e.ctl.Quit()
	e.setState(Terminated)
	e.playCue(ctx)
	return fmt.Errorf("%w: %s: %w", ErrExternalService, stage, err)
}

func (e *Engine) playCue(ctx context.Context) {
	if len(e.cfg.Cue.Data) == 0 {
		return
	}
	if err := e.cfg.Sink.Play(ctx, e.cfg.Cue); err != nil {
		observe.Logger(ctx).Warn("turn: play end-of-session cue", "err", err)
	}
}

// sleep waits for d. It reports false if the session ended or ctx was
// cancelled first.
func (e *Engine) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-e.ctl.Done():
		return false
	case <-ctx.Done():
		return false
	}
}

// signal performs a non-blocking send on a capacity-1 channel.
func signal(ch chan<- struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
