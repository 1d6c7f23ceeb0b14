// Package audio defines the capture and playback abstractions used by the
// turn engine together with the sample-level helpers that sit between them.
//
// The two device-facing abstractions are:
//
//   - [Source]: a microphone-like producer that pushes interleaved float32
//     blocks into a callback on a real-time thread.
//   - [Sink]: a speaker-like consumer that plays a 16-bit PCM [Clip] to
//     completion.
//
// Concrete implementations live in audio/device (malgo + oto). Tests use the
// doubles in audio/mock.
package audio

import (
	"context"
	"errors"
)

// ErrDeviceUnavailable is returned when no usable input or output device can be
// opened. It is always fatal at startup.
var ErrDeviceUnavailable = errors.New("audio: device unavailable")

// Source is a capture stream bound to an input device.
//
// The callback passed to Start runs on the driver's real-time thread: it must
// not block, allocate after warm-up, take locks or log. The slice it receives
// is only valid for the duration of the call.
//
// Pause and Resume must not be called from inside the callback.
type Source interface {
	// Start opens the device at its negotiated configuration, begins delivery
	// to onBlock, and returns the negotiated format.
	Start(onBlock func(samples []float32)) (Format, error)

	// Pause stops delivery without tearing the stream down.
	Pause() error

	// Resume restarts delivery after Pause.
	Resume() error

	// Close releases the device. It is safe to call more than once.
	Close() error
}

// Sink plays finished clips through an output device.
type Sink interface {
	// Play blocks until clip has been played completely or ctx is cancelled.
	Play(ctx context.Context, clip Clip) error

	// Close releases the output device.
	Close() error
}
