// Package playback schedules synthesized speech chunks for gapless
// output. Chunks arrive as base64 S16LE PCM at 24 kHz and are queued
// back-to-back on a frame-accurate cursor; the device render callback
// mixes whatever is live and retires finished chunks.
package playback

import (
	"fmt"
	"sync"

	"vox/audio"
)

// DefaultSpeed is the playback-rate multiplier applied when the caller
// does not configure one.
const DefaultSpeed = 1.5

type handle struct {
	id      uint64
	start   int64 // absolute frame index on the device clock
	samples []float32
}

func (h *handle) end() int64 {
	return h.start + int64(len(h.samples))
}

// Engine owns the output device and the scheduling state. The device
// callback runs on the driver's thread, so all state is mutex-guarded.
type Engine struct {
	mu         sync.Mutex
	out        audio.OutputDevice
	sampleRate int
	speed      float64
	cursor     int64 // next available start frame
	rendered   int64 // frames rendered so far; the device clock
	handles    map[uint64]*handle
	nextID     uint64
	closed     bool
}

// NewEngine opens the output device and starts rendering. speed <= 0
// falls back to DefaultSpeed.
func NewEngine(ctx audio.Context, speed float64) (*Engine, error) {
	if speed <= 0 {
		speed = DefaultSpeed
	}
	e := &Engine{
		sampleRate: audio.PlaybackRate,
		speed:      speed,
		handles:    make(map[uint64]*handle),
	}
	out, err := ctx.NewOutput(audio.PlaybackConfig{
		SampleRate: audio.PlaybackRate,
		Channels:   audio.Channels,
	}, e.render)
	if err != nil {
		return nil, fmt.Errorf("%w: opening output: %v", audio.ErrDeviceUnavailable, err)
	}
	if err := out.Start(); err != nil {
		out.Close()
		return nil, fmt.Errorf("%w: starting output: %v", audio.ErrDeviceUnavailable, err)
	}
	e.out = out
	return e, nil
}

// render fills out with mixed scheduled audio and advances the device
// clock. Finished handles are retired here; completion is a state change
// inside the arena, not a callback.
func (e *Engine) render(out []int16) {
	e.mu.Lock()
	defer e.mu.Unlock()

	n := int64(len(out))
	for i := int64(0); i < n; i++ {
		frame := e.rendered + i
		var sum float32
		for _, h := range e.handles {
			if frame >= h.start && frame < h.end() {
				sum += h.samples[frame-h.start]
			}
		}
		if sum > 1 {
			sum = 1
		} else if sum < -1 {
			sum = -1
		}
		out[i] = int16(sum * 0x7FFF)
	}
	e.rendered += n

	for id, h := range e.handles {
		if h.end() <= e.rendered {
			delete(e.handles, id)
		}
	}
}

// Play decodes one base64 PCM chunk and schedules it at
// max(deviceClock, cursor). The playback speed is snapshotted here; a
// later SetSpeed never changes a chunk that is already scheduled.
func (e *Engine) Play(b64 string) error {
	pcm, err := audio.DecodeChunk(b64)
	if err != nil {
		return err
	}
	samples := audio.PCMToFloat(pcm)
	if len(samples) == 0 {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return fmt.Errorf("playback engine closed")
	}

	adjusted := resample(samples, e.speed)
	start := e.rendered
	if e.cursor > start {
		start = e.cursor
	}
	e.cursor = start + int64(len(adjusted))

	e.nextID++
	e.handles[e.nextID] = &handle{id: e.nextID, start: start, samples: adjusted}
	return nil
}

// Stop halts everything that is scheduled or playing and resets pacing:
// the cursor snaps to the current device clock so that playback after a
// stop does not replay a stale backlog.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handles = make(map[uint64]*handle)
	e.cursor = e.rendered
}

// SetSpeed updates the rate used for chunks scheduled from now on.
// Rates <= 0 are ignored.
func (e *Engine) SetSpeed(speed float64) {
	if speed <= 0 {
		return
	}
	e.mu.Lock()
	e.speed = speed
	e.mu.Unlock()
}

func (e *Engine) Speed() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.speed
}

// Live reports how many chunks are scheduled or currently playing.
func (e *Engine) Live() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.handles)
}

// Clock returns the device clock in seconds.
func (e *Engine) Clock() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return float64(e.rendered) / float64(e.sampleRate)
}

// Close releases the output device. Safe to call repeatedly.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.handles = make(map[uint64]*handle)
	e.cursor = 0
	out := e.out
	e.out = nil
	e.mu.Unlock()

	if out != nil {
		out.Stop()
		out.Close()
	}
}

// resample stretches or squeezes samples by the rate multiplier using
// linear interpolation. rate > 1 shortens the output (faster speech).
func resample(samples []float32, rate float64) []float32 {
	if rate == 1 {
		out := make([]float32, len(samples))
		copy(out, samples)
		return out
	}
	n := int(float64(len(samples)) / rate)
	if n < 1 {
		n = 1
	}
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		pos := float64(i) * rate
		j := int(pos)
		if j >= len(samples)-1 {
			out[i] = samples[len(samples)-1]
			continue
		}
		frac := float32(pos - float64(j))
		out[i] = samples[j]*(1-frac) + samples[j+1]*frac
	}
	return out
}
