// Package mock provides a scripted test double for [vad.Detector].
//
// Example:
//
//	det := &mock.Detector{Verdicts: []vad.Verdict{vad.SpeechContinuing, vad.SpeechEnded}}
//	det.Detect(seg, 16000) // continuing
//	det.Detect(seg, 16000) // ended
//	det.Detect(seg, 16000) // ended (last verdict repeats)
package mock

import (
	"sync"

	"github.com/MrWong99/matin/pkg/provider/vad"
)

// DetectCall records a single invocation of Detector.Detect.
type DetectCall struct {
	// Len is the length of the segment passed in.
	Len int

	// SampleRate is the rate passed in.
	SampleRate int
}

// Detector is a mock implementation of [vad.Detector]. It returns Verdicts in
// order, repeating the last one once exhausted. With no verdicts configured it
// always returns [vad.SpeechContinuing].
type Detector struct {
	mu sync.Mutex

	Verdicts []vad.Verdict

	// DetectCalls records every call in order.
	DetectCalls []DetectCall
}

var _ vad.Detector = (*Detector)(nil)

// Detect records the call and returns the next scripted verdict.
func (d *Detector) Detect(segment []float32, sampleRate int) vad.Verdict {
	d.mu.Lock()
	defer d.mu.Unlock()
	i := len(d.DetectCalls)
	d.DetectCalls = append(d.DetectCalls, DetectCall{Len: len(segment), SampleRate: sampleRate})
	switch {
	case len(d.Verdicts) == 0:
		return vad.SpeechContinuing
	case i < len(d.Verdicts):
		return d.Verdicts[i]
	default:
		return d.Verdicts[len(d.Verdicts)-1]
	}
}

// Calls returns a copy of the recorded calls.
func (d *Detector) Calls() []DetectCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]DetectCall(nil), d.DetectCalls...)
}
