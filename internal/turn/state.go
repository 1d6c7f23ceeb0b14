package turn

import (
	"sync"
	"sync/atomic"
)

// State is the phase of the conversation as seen from the user.
type State int32

const (
	// AwaitingSpeech: capture is running and the detector is polled.
	AwaitingSpeech State = iota

	// SpeechCaptured: a finished segment has been handed to recognition and
	// capture is paused.
	SpeechCaptured

	// AwaitingReasoningReply: the transcript is logged and the reasoning
	// service has been asked for the next reply.
	AwaitingReasoningReply

	// Speaking: the reply is being synthesized and played.
	Speaking

	// Terminated is final.
	Terminated
)

func (s State) String() string {
	switch s {
	case AwaitingSpeech:
		return "awaiting_speech"
	case SpeechCaptured:
		return "speech_captured"
	case AwaitingReasoningReply:
		return "awaiting_reasoning_reply"
	case Speaking:
		return "speaking"
	case Terminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// SessionControl is the shared quit flag of one session. Quit may be called
// from any goroutine any number of times; only the first call has an effect.
type SessionControl struct {
	once sync.Once
	quit atomic.Bool
	done chan struct{}
}

// NewSessionControl returns a control that has not quit.
func NewSessionControl() *SessionControl {
	return &SessionControl{done: make(chan struct{})}
}

// Quit marks the session as finished and releases every Done waiter.
func (c *SessionControl) Quit() {
	c.once.Do(func() {
		c.quit.Store(true)
		close(c.done)
	})
}

// ShouldQuit reports whether Quit has been called.
func (c *SessionControl) ShouldQuit() bool { return c.quit.Load() }

// Done is closed by the first Quit.
func (c *SessionControl) Done() <-chan struct{} { return c.done }
