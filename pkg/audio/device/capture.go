// Package device binds the [audio.Source] and [audio.Sink] abstractions to
// real hardware: capture through miniaudio (github.com/gen2brain/malgo) and
// playback through oto (github.com/ebitengine/oto/v3).
package device

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/MrWong99/matin/pkg/audio"
)

// Compile-time interface assertion.
var _ audio.Source = (*Capture)(nil)

// CaptureOption configures a [Capture].
type CaptureOption func(*Capture)

// WithCaptureFormat requests a specific sample rate and channel count instead
// of the device default. Zero fields keep the default.
func WithCaptureFormat(f audio.Format) CaptureOption {
	return func(c *Capture) { c.want = f }
}

// Capture reads interleaved float32 samples from the default input device.
type Capture struct {
	want audio.Format

	mu     sync.Mutex
	mctx   *malgo.AllocatedContext
	dev    *malgo.Device
	closed bool

	// scratch is only touched by the driver callback.
	scratch []float32
}

// NewCapture returns an unopened capture stream.
func NewCapture(opts ...CaptureOption) *Capture {
	c := &Capture{}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Start opens the default input device and starts delivering blocks to
// onBlock on the driver thread.
func (c *Capture) Start(onBlock func(samples []float32)) (audio.Format, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dev != nil {
		return audio.Format{}, errors.New("device: capture already started")
	}

	cfg := malgo.ContextConfig{}
	cfg.ThreadPriority = malgo.ThreadPriorityRealtime
	mctx, err := malgo.InitContext(nil, cfg, nil)
	if err != nil {
		return audio.Format{}, fmt.Errorf("%w: init context: %v", audio.ErrDeviceUnavailable, err)
	}

	devCfg := malgo.DefaultDeviceConfig(malgo.Capture)
	devCfg.Capture.Format = malgo.FormatF32
	devCfg.Capture.Channels = uint32(c.want.Channels)
	devCfg.SampleRate = uint32(c.want.SampleRate)

	dev, err := malgo.InitDevice(mctx.Context, devCfg, malgo.DeviceCallbacks{
		Data: func(_, in []byte, _ uint32) {
			if n := len(in) / 4; cap(c.scratch) < n {
				c.scratch = make([]float32, n)
			}
			onBlock(audio.DecodeFloat32LE(c.scratch[:cap(c.scratch)], in))
		},
	})
	if err != nil {
		_ = mctx.Uninit()
		mctx.Free()
		return audio.Format{}, fmt.Errorf("%w: init device: %v", audio.ErrDeviceUnavailable, err)
	}

	format := audio.Format{SampleRate: int(dev.SampleRate()), Channels: int(dev.CaptureChannels())}
	if err := dev.Start(); err != nil {
		dev.Uninit()
		_ = mctx.Uninit()
		mctx.Free()
		return audio.Format{}, fmt.Errorf("%w: start device: %v", audio.ErrDeviceUnavailable, err)
	}
	c.mctx, c.dev = mctx, dev
	return format, nil
}

// Pause stops the device. Queued audio already delivered is unaffected.
func (c *Capture) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dev == nil {
		return errors.New("device: capture not started")
	}
	if err := c.dev.Stop(); err != nil {
		return fmt.Errorf("device: pause capture: %w", err)
	}
	return nil
}

// Resume restarts the device after Pause.
func (c *Capture) Resume() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dev == nil {
		return errors.New("device: capture not started")
	}
	if err := c.dev.Start(); err != nil {
		return fmt.Errorf("device: resume capture: %w", err)
	}
	return nil
}

// Close stops and releases the device and its context.
func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.dev != nil {
		c.dev.Uninit()
		c.dev = nil
	}
	if c.mctx != nil {
		err := c.mctx.Uninit()
		c.mctx.Free()
		c.mctx = nil
		if err != nil {
			return fmt.Errorf("device: release capture context: %w", err)
		}
	}
	return nil
}
