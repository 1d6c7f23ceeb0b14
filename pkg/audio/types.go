package audio

import "time"

// Frame is a block of interleaved float32 samples in [-1, 1] as delivered by a
// [Source]. A frame with Channels == 1 is mono.
type Frame struct {
	Samples    []float32
	SampleRate int
	Channels   int
}

// Duration returns the wall-clock length of the frame.
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return 0
	}
	n := len(f.Samples) / f.Channels
	return time.Duration(n) * time.Second / time.Duration(f.SampleRate)
}

// Clip is little-endian signed 16-bit PCM ready for playback. Synthesized
// speech and decoded WAV cues are both carried as clips.
type Clip struct {
	Data       []byte
	SampleRate int
	Channels   int
}

// Duration returns the wall-clock length of the clip.
func (c Clip) Duration() time.Duration {
	if c.SampleRate <= 0 || c.Channels <= 0 {
		return 0
	}
	n := len(c.Data) / (2 * c.Channels)
	return time.Duration(n) * time.Second / time.Duration(c.SampleRate)
}
