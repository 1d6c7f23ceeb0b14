package audio

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"sync"
)

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	SampleRate int
	Channels   int
}

func (f Format) String() string {
	ch := "mono"
	switch {
	case f.Channels == 2:
		ch = "stereo"
	case f.Channels > 2:
		ch = fmt.Sprintf("%dch", f.Channels)
	}
	return fmt.Sprintf("%dHz %s", f.SampleRate, ch)
}

// FormatConverter adapts clips to the fixed format of an output device. It
// logs once on the first mismatch and once on the first corrupt clip.
// Create one per sink; it is not designed for shared use across goroutines.
type FormatConverter struct {
	Target         Format
	warnedMismatch sync.Once
	warnedCorrupt  sync.Once
}

// Convert returns clip in the target format. Clips already in the target
// format are returned unchanged. Resampling happens before channel mapping so
// a stereo target never pays for resampling two channels.
func (c *FormatConverter) Convert(clip Clip) Clip {
	if clip.Channels <= 0 || len(clip.Data)%(2*clip.Channels) != 0 {
		c.warnedCorrupt.Do(func() {
			slog.Warn("audio: dropping misaligned PCM clip",
				"bytes", len(clip.Data),
				"format", Format{clip.SampleRate, clip.Channels},
			)
		})
		return Clip{SampleRate: c.Target.SampleRate, Channels: c.Target.Channels}
	}
	src := Format{clip.SampleRate, clip.Channels}
	if src == c.Target {
		return clip
	}
	c.warnedMismatch.Do(func() {
		slog.Warn("audio: converting clip format", "from", src, "to", c.Target)
	})

	samples := PCM16ToInt16(clip.Data)
	ch := clip.Channels
	if ch != 1 {
		samples = mixToMono16(samples, ch)
		ch = 1
	}
	samples = ResampleMono16(samples, clip.SampleRate, c.Target.SampleRate)
	if c.Target.Channels > 1 {
		samples = spreadMono16(samples, c.Target.Channels)
		ch = c.Target.Channels
	}
	return Clip{Data: Int16ToPCM16(samples), SampleRate: c.Target.SampleRate, Channels: ch}
}

// PCM16ToInt16 decodes little-endian 16-bit PCM. A trailing odd byte is ignored.
func PCM16ToInt16(pcm []byte) []int16 {
	out := make([]int16, len(pcm)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return out
}

// Int16ToPCM16 encodes samples as little-endian 16-bit PCM.
func Int16ToPCM16(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// Float32ToInt16 scales samples in [-1, 1] to the int16 range, clamping
// anything outside it.
func Float32ToInt16(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		out[i] = int16(math.Round(float64(clamp(s)) * math.MaxInt16))
	}
	return out
}

// Int16ToFloat32 scales int16 samples to [-1, 1).
func Int16ToFloat32(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s) / 32768
	}
	return out
}

// DecodeFloat32LE decodes little-endian IEEE-754 float32 samples from raw
// driver bytes into dst, which must hold len(raw)/4 samples. It returns the
// filled prefix of dst.
func DecodeFloat32LE(dst []float32, raw []byte) []float32 {
	n := len(raw) / 4
	if n > len(dst) {
		n = len(dst)
	}
	for i := range n {
		dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return dst[:n]
}

// ResampleMono16 resamples mono int16 samples from srcRate to dstRate using
// linear interpolation. It is meant for playback where a cheap conversion is
// good enough; speech going to recognition uses package resample instead.
func ResampleMono16(samples []int16, srcRate, dstRate int) []int16 {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(samples) < 2 {
		return samples
	}
	n := int(int64(len(samples)) * int64(dstRate) / int64(srcRate))
	out := make([]int16, n)
	step := float64(srcRate) / float64(dstRate)
	for i := range out {
		pos := float64(i) * step
		idx := int(pos)
		frac := pos - float64(idx)
		s0 := float64(samples[idx])
		s1 := s0
		if idx+1 < len(samples) {
			s1 = float64(samples[idx+1])
		}
		out[i] = int16(s0 + (s1-s0)*frac)
	}
	return out
}

func mixToMono16(samples []int16, channels int) []int16 {
	out := make([]int16, len(samples)/channels)
	for i := range out {
		var sum int32
		for _, s := range samples[i*channels : (i+1)*channels] {
			sum += int32(s)
		}
		out[i] = int16(sum / int32(channels))
	}
	return out
}

func spreadMono16(samples []int16, channels int) []int16 {
	out := make([]int16, len(samples)*channels)
	for i, s := range samples {
		for c := range channels {
			out[i*channels+c] = s
		}
	}
	return out
}
