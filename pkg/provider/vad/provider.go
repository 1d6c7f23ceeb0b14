// Package vad defines the Detector interface for end-of-utterance detection.
//
// A Detector inspects the whole speech segment accumulated so far and decides
// whether the speaker has finished. Detectors are stateless between calls:
// the caller owns the segment and decides when to reset it, which keeps the
// detector trivially safe for concurrent use.
//
// The energy subpackage provides the default implementation. Tests use the
// scripted detector in vad/mock.
package vad

// Verdict is the outcome of a single detection pass.
type Verdict int

const (
	// SpeechContinuing means the segment should keep growing.
	SpeechContinuing Verdict = iota

	// SpeechEnded means the trailing window is quiet relative to the segment
	// and the utterance is complete.
	SpeechEnded
)

// String returns the human-readable name of the verdict.
func (v Verdict) String() string {
	switch v {
	case SpeechContinuing:
		return "continuing"
	case SpeechEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// Detector decides whether an utterance has ended.
//
// Detect may modify segment in place (for example by filtering it); callers
// that still need the original samples must pass a copy. sampleRate is the
// rate of the mono samples in segment.
type Detector interface {
	Detect(segment []float32, sampleRate int) Verdict
}

// DetectorFunc adapts a plain function to the [Detector] interface.
type DetectorFunc func(segment []float32, sampleRate int) Verdict

// Detect calls f.
func (f DetectorFunc) Detect(segment []float32, sampleRate int) Verdict {
	return f(segment, sampleRate)
}
