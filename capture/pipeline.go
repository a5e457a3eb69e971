// Package capture owns the microphone for the lifetime of a
// conversation. Every non-empty S16LE frame from the device is forwarded
// as a base64 chunk in capture order; an RMS level tap feeds the UI
// meter.
package capture

import (
	"fmt"
	"sync"

	"vox/audio"
)

// ChunkFunc receives one base64-encoded 16 kHz mono PCM chunk. It runs
// on the audio driver's thread and must not block.
type ChunkFunc func(b64 string)

// LevelFunc receives the RMS level of each frame, normalized to [0, 1].
type LevelFunc func(level float64)

// FrameFunc receives each raw S16LE frame before encoding. The slice is
// only valid for the duration of the call.
type FrameFunc func(data []byte)

// Taps are optional observers of the capture stream; either field may
// be nil.
type Taps struct {
	Level LevelFunc
	Frame FrameFunc
}

type Pipeline struct {
	mu      sync.Mutex
	dev     audio.CaptureDevice
	started bool
}

// Start acquires the capture device and begins streaming chunks. On any
// failure nothing stays acquired.
func Start(ctx audio.Context, device *audio.DeviceInfo, onChunk ChunkFunc, taps Taps) (*Pipeline, error) {
	dev, err := ctx.NewCapture(device, audio.CaptureConfig{
		SampleRate: audio.CaptureRate,
		Channels:   audio.Channels,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: opening capture: %v", audio.ErrDeviceUnavailable, err)
	}

	dev.SetCallback(func(data []byte, frameCount uint32) {
		if len(data) == 0 {
			return
		}
		if taps.Level != nil {
			taps.Level(audio.RMS(data))
		}
		if taps.Frame != nil {
			taps.Frame(data)
		}
		onChunk(audio.EncodeChunk(data))
	})

	if err := dev.Start(); err != nil {
		dev.ClearCallback()
		dev.Close()
		return nil, fmt.Errorf("%w: starting capture: %v", audio.ErrDeviceUnavailable, err)
	}

	return &Pipeline{dev: dev, started: true}, nil
}

// DeviceName reports the name of the acquired microphone.
func (p *Pipeline) DeviceName() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dev == nil {
		return ""
	}
	return p.dev.DeviceName()
}

// Stop releases the device and the processing callback. Safe to call
// repeatedly or on a pipeline that never started.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return
	}
	p.started = false
	p.dev.Stop()
	p.dev.ClearCallback()
	p.dev.Close()
	p.dev = nil
}
