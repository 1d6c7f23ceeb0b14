// Package energy implements an energy-ratio end-of-utterance detector.
//
// The segment is high-pass filtered to strip rumble and DC offset, then the
// mean absolute amplitude of the trailing window is compared with that of the
// whole segment. When the tail has dropped to a fraction of the overall level
// the speaker is considered finished.
package energy

import (
	"math"

	"github.com/MrWong99/matin/pkg/provider/vad"
)

// Defaults.
const (
	DefaultLastMs    = 1000
	DefaultThreshold = 0.6
	DefaultCutoffHz  = 100.0
)

var _ vad.Detector = (*Detector)(nil)

// Option configures a [Detector].
type Option func(*Detector)

// WithLastMs sets the length of the trailing window in milliseconds.
func WithLastMs(ms int) Option {
	return func(d *Detector) { d.lastMs = ms }
}

// WithThreshold sets the tail/segment energy ratio at or below which speech
// is considered ended.
func WithThreshold(th float32) Option {
	return func(d *Detector) { d.threshold = th }
}

// WithCutoffHz sets the high-pass filter cutoff. Zero disables filtering.
func WithCutoffHz(hz float32) Option {
	return func(d *Detector) { d.cutoffHz = hz }
}

// Detector is the energy-ratio detector. The zero value is not usable; call
// [New].
type Detector struct {
	lastMs    int
	threshold float32
	cutoffHz  float32
}

// New returns a Detector with the given options applied over the defaults.
func New(opts ...Option) *Detector {
	d := &Detector{
		lastMs:    DefaultLastMs,
		threshold: DefaultThreshold,
		cutoffHz:  DefaultCutoffHz,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Detect implements [vad.Detector]. The segment is filtered in place.
func (d *Detector) Detect(segment []float32, sampleRate int) vad.Verdict {
	all, last, ok := d.Energies(segment, sampleRate)
	if !ok {
		return vad.SpeechContinuing
	}
	if last <= d.threshold*all {
		return vad.SpeechEnded
	}
	return vad.SpeechContinuing
}

// Energies filters segment in place and returns the mean absolute amplitude of
// the whole segment and of its trailing window. ok is false when the segment
// is not longer than the trailing window, in which case nothing is computed.
func (d *Detector) Energies(segment []float32, sampleRate int) (all, last float32, ok bool) {
	n := len(segment)
	nLast := sampleRate * d.lastMs / 1000
	if sampleRate <= 0 || nLast <= 0 || nLast >= n {
		return 0, 0, false
	}
	if d.cutoffHz > 0 {
		HighPass(segment, d.cutoffHz, sampleRate)
	}
	return meanAbs(segment), meanAbs(segment[n-nLast:]), true
}

// HighPass applies a first-order RC high-pass filter in place:
//
//	y[0] = x[0]
//	y[i] = α·(y[i-1] + x[i] - x[i-1]),  α = dt/(rc+dt), rc = 1/(2π·cutoff)
//
// x[i-1] is the unfiltered previous input, kept aside before it is
// overwritten. All arithmetic is float32.
func HighPass(x []float32, cutoffHz float32, sampleRate int) {
	if len(x) == 0 {
		return
	}
	rc := 1 / (2 * math.Pi * cutoffHz)
	dt := 1 / float32(sampleRate)
	alpha := dt / (rc + dt)

	prevX := x[0]
	for i := 1; i < len(x); i++ {
		cur := x[i]
		x[i] = alpha * (x[i-1] + cur - prevX)
		prevX = cur
	}
}

func meanAbs(x []float32) float32 {
	if len(x) == 0 {
		return 0
	}
	var sum float32
	for _, s := range x {
		if s < 0 {
			s = -s
		}
		sum += s
	}
	return sum / float32(len(x))
}
