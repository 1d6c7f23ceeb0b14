package audio

import "fmt"

// DefaultGain is the linear gain applied to captured speech before detection
// and transcription.
const DefaultGain float32 = 2.0

// MalformedFrameError reports an interleaved block whose length is not a
// multiple of its channel count. The block is unusable and must be skipped.
type MalformedFrameError struct {
	Len      int
	Channels int
}

func (e *MalformedFrameError) Error() string {
	return fmt.Sprintf("audio: malformed frame: %d samples not divisible by %d channels", e.Len, e.Channels)
}

// Downmix averages each group of channels interleaved samples into one mono
// sample. For channels == 1 a copy of raw is returned.
func Downmix(raw []float32, channels int) ([]float32, error) {
	if channels <= 0 || len(raw)%channels != 0 {
		return nil, &MalformedFrameError{Len: len(raw), Channels: channels}
	}
	out := make([]float32, len(raw)/channels)
	if channels == 1 {
		copy(out, raw)
		return out, nil
	}
	inv := 1 / float32(channels)
	for i := range out {
		var sum float32
		for _, s := range raw[i*channels : (i+1)*channels] {
			sum += s
		}
		out[i] = sum * inv
	}
	return out, nil
}

// ApplyGain multiplies every sample by gain and clamps the result to [-1, 1].
// It works in place.
func ApplyGain(samples []float32, gain float32) {
	for i, s := range samples {
		samples[i] = clamp(s * gain)
	}
}

func clamp(s float32) float32 {
	switch {
	case s > 1:
		return 1
	case s < -1:
		return -1
	}
	return s
}

// Conditioner turns raw interleaved capture blocks into mono, amplified,
// clipped samples. Downmix always happens before gain, gain before clamp.
type Conditioner struct {
	Channels int
	Gain     float32
}

// Condition returns the conditioned mono samples for raw.
func (c Conditioner) Condition(raw []float32) ([]float32, error) {
	mono, err := Downmix(raw, c.Channels)
	if err != nil {
		return nil, err
	}
	ApplyGain(mono, c.Gain)
	return mono, nil
}
