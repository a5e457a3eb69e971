package audio

import (
	"os"
	"sync"
	"time"
)

const (
	fakeFrameSize     = 1024
	fakeBytesPerFrame = 2 // 16-bit mono
)

// FakeContext replaces the platform audio backend in headless test mode.
// Capture replays PCM from a WAV file; output devices render on demand
// when the test pumps them, which makes scheduling deterministic.
type FakeContext struct {
	pcm      []byte
	realtime bool

	mu          sync.Mutex
	lastOutput  *FakeOutput
	lastCapture *FakeCapture
}

func NewFakeContext(wavPath string, realtime bool) (*FakeContext, error) {
	data, err := os.ReadFile(wavPath)
	if err != nil {
		return nil, err
	}
	if len(data) > WAVHeaderSize {
		data = data[WAVHeaderSize:]
	}
	return &FakeContext{pcm: data, realtime: realtime}, nil
}

// NewSilentFakeContext returns a fake backend with no capture audio at
// all, for tests that only exercise playback.
func NewSilentFakeContext() *FakeContext {
	return &FakeContext{}
}

func (f *FakeContext) Devices() ([]DeviceInfo, error) { return nil, nil }
func (f *FakeContext) Close()                         {}

func (f *FakeContext) NewCapture(_ *DeviceInfo, _ CaptureConfig) (CaptureDevice, error) {
	c := &FakeCapture{pcm: f.pcm, realtime: f.realtime, audioDone: make(chan struct{})}
	f.mu.Lock()
	f.lastCapture = c
	f.mu.Unlock()
	return c, nil
}

// LastCapture returns the most recently created capture device so the
// headless driver can wait for its audio to drain.
func (f *FakeContext) LastCapture() *FakeCapture {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastCapture
}

func (f *FakeContext) NewOutput(_ PlaybackConfig, render RenderCallback) (OutputDevice, error) {
	out := &FakeOutput{render: render}
	f.mu.Lock()
	f.lastOutput = out
	f.mu.Unlock()
	return out, nil
}

// LastOutput returns the most recently created output device so tests can
// pump it.
func (f *FakeContext) LastOutput() *FakeOutput {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastOutput
}

// FakeOutput is an output device whose clock only advances when Pump is
// called.
type FakeOutput struct {
	render RenderCallback

	mu      sync.Mutex
	started bool
	closed  bool
}

func (o *FakeOutput) Start() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started = true
	return nil
}

func (o *FakeOutput) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started = false
}

func (o *FakeOutput) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started = false
	o.closed = true
}

func (o *FakeOutput) Started() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.started
}

// Pump renders n frames through the device callback and returns them.
func (o *FakeOutput) Pump(n int) []int16 {
	buf := make([]int16, n)
	o.render(buf)
	return buf
}

type FakeCapture struct {
	pcm       []byte
	realtime  bool
	audioDone chan struct{}

	mu       sync.Mutex
	cb       DataCallback
	stopCh   chan struct{}
	feedDone chan struct{}
}

func (f *FakeCapture) AudioDone() <-chan struct{} { return f.audioDone }

func (f *FakeCapture) SetCallback(cb DataCallback) {
	f.mu.Lock()
	f.cb = cb
	f.mu.Unlock()
}

func (f *FakeCapture) ClearCallback() {
	f.mu.Lock()
	f.cb = nil
	f.mu.Unlock()
}

func (f *FakeCapture) DeviceName() string { return "fake" }

func (f *FakeCapture) feedChunk(cb DataCallback, pos, chunkBytes int) int {
	end := min(pos+chunkBytes, len(f.pcm))
	chunk := make([]byte, end-pos)
	copy(chunk, f.pcm[pos:end])
	cb(chunk, uint32(len(chunk)/fakeBytesPerFrame))
	return end
}

func (f *FakeCapture) Start() error {
	f.stopCh = make(chan struct{})
	f.feedDone = make(chan struct{})
	// audioDone is NOT recreated here -- callers may already be waiting on
	// it. It's reset in Stop() for replay.

	chunkBytes := fakeFrameSize * fakeBytesPerFrame
	interval := time.Duration(fakeFrameSize) * time.Second / time.Duration(CaptureRate)

	go func() {
		defer close(f.feedDone)
		pos := 0
		silence := make([]byte, chunkBytes)
		audioFinished := len(f.pcm) == 0

		if audioFinished {
			close(f.audioDone)
		}

		for {
			select {
			case <-f.stopCh:
				return
			default:
			}

			f.mu.Lock()
			cb := f.cb
			f.mu.Unlock()
			if cb == nil {
				time.Sleep(time.Millisecond)
				continue
			}

			if pos < len(f.pcm) {
				pos = f.feedChunk(cb, pos, chunkBytes)
			} else {
				if !audioFinished {
					audioFinished = true
					close(f.audioDone)
				}
				cb(silence, fakeFrameSize)
			}

			wait := interval
			if !f.realtime && pos < len(f.pcm) {
				wait = 0
			}
			select {
			case <-f.stopCh:
				return
			case <-time.After(wait):
			}
		}
	}()

	return nil
}

func (f *FakeCapture) Stop() {
	select {
	case <-f.stopCh:
	default:
		close(f.stopCh)
	}
	if f.feedDone != nil {
		<-f.feedDone
	}
	f.audioDone = make(chan struct{}) // reset for replay
}

func (f *FakeCapture) Close() {}
