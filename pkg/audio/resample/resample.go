// Package resample converts mono float32 audio between sample rates with a
// band-limited windowed-sinc interpolator. It is used on speech segments
// before recognition, where the linear interpolation in package audio would
// alias too much energy into the passband.
package resample

import (
	"errors"
	"fmt"
	"math"
)

// Default interpolator parameters.
const (
	DefaultSincLen      = 256
	DefaultCutoff       = 0.95
	DefaultOversampling = 128
)

// ErrInvalidRate is returned for non-positive sample rates.
var ErrInvalidRate = errors.New("resample: sample rate must be positive")

// Option configures a [Resampler].
type Option func(*Resampler)

// WithSincLen sets the number of input taps contributing to each output
// sample. Odd values are rounded up.
func WithSincLen(n int) Option {
	return func(r *Resampler) { r.sincLen = n + n%2 }
}

// WithCutoff sets the anti-aliasing cutoff relative to the Nyquist frequency
// of the lower of the two rates.
func WithCutoff(c float64) Option {
	return func(r *Resampler) { r.cutoff = c }
}

// WithOversampling sets how many kernel points are tabulated per input sample.
func WithOversampling(n int) Option {
	return func(r *Resampler) { r.oversampling = n }
}

// Resampler converts between one fixed pair of rates. The kernel table is
// computed once in [New]; [Resampler.Process] is safe for concurrent use.
type Resampler struct {
	from, to     int
	sincLen      int
	cutoff       float64
	oversampling int

	ratio  float64 // output samples per input sample
	kernel []float64
}

// New returns a Resampler from rate from to rate to.
func New(from, to int, opts ...Option) (*Resampler, error) {
	if from <= 0 || to <= 0 {
		return nil, fmt.Errorf("%w: %d -> %d", ErrInvalidRate, from, to)
	}
	r := &Resampler{
		from:         from,
		to:           to,
		sincLen:      DefaultSincLen,
		cutoff:       DefaultCutoff,
		oversampling: DefaultOversampling,
		ratio:        float64(to) / float64(from),
	}
	for _, o := range opts {
		o(r)
	}
	if r.sincLen < 2 || r.oversampling < 1 || r.cutoff <= 0 || r.cutoff > 1 {
		return nil, fmt.Errorf("resample: invalid parameters (sinc_len=%d oversampling=%d cutoff=%g)",
			r.sincLen, r.oversampling, r.cutoff)
	}
	r.kernel = r.buildKernel()
	return r, nil
}

// buildKernel tabulates cutoff·sinc(cutoff·t)·w(t) for t in
// [-sincLen/2, sincLen/2] at 1/oversampling steps, w being a 4-term
// Blackman-Harris window.
func (r *Resampler) buildKernel() []float64 {
	fc := r.cutoff
	if r.ratio < 1 {
		fc *= r.ratio
	}
	half := float64(r.sincLen) / 2
	n := r.sincLen*r.oversampling + 1
	k := make([]float64, n)
	for i := range k {
		t := float64(i)/float64(r.oversampling) - half
		k[i] = fc * sinc(fc*t) * blackmanHarris((t+half)/float64(r.sincLen))
	}
	return k
}

func sinc(x float64) float64 {
	if x == 0 {
		return 1
	}
	px := math.Pi * x
	return math.Sin(px) / px
}

// blackmanHarris evaluates the window at x in [0, 1].
func blackmanHarris(x float64) float64 {
	const (
		a0 = 0.35875
		a1 = 0.48829
		a2 = 0.14128
		a3 = 0.01168
	)
	w := 2 * math.Pi * x
	return a0 - a1*math.Cos(w) + a2*math.Cos(2*w) - a3*math.Cos(3*w)
}

// at returns the kernel value at offset t (in input samples) by linear
// interpolation between the two nearest tabulated points.
func (r *Resampler) at(t float64) float64 {
	pos := (t + float64(r.sincLen)/2) * float64(r.oversampling)
	if pos < 0 || pos >= float64(len(r.kernel)-1) {
		return 0
	}
	i := int(pos)
	frac := pos - float64(i)
	return r.kernel[i] + (r.kernel[i+1]-r.kernel[i])*frac
}

// OutputLen returns the number of samples Process produces for n inputs.
func (r *Resampler) OutputLen(n int) int {
	return int(int64(n) * int64(r.to) / int64(r.from))
}

// Process resamples a whole mono segment. Samples outside the segment are
// treated as silence.
func (r *Resampler) Process(in []float32) []float32 {
	if r.from == r.to {
		out := make([]float32, len(in))
		copy(out, in)
		return out
	}
	out := make([]float32, r.OutputLen(len(in)))
	half := r.sincLen / 2
	for j := range out {
		p := float64(j) / r.ratio
		base := int(math.Floor(p))
		lo := max(base-half+1, 0)
		hi := min(base+half, len(in)-1)
		var acc float64
		for k := lo; k <= hi; k++ {
			acc += float64(in[k]) * r.at(p-float64(k))
		}
		out[j] = float32(acc)
	}
	return out
}

// Resample converts in from rate from to rate to with the default parameters.
func Resample(in []float32, from, to int) ([]float32, error) {
	r, err := New(from, to)
	if err != nil {
		return nil, err
	}
	return r.Process(in), nil
}
