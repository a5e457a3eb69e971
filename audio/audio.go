package audio

import (
	"errors"
	"strings"
)

// ErrDeviceUnavailable wraps any failure to acquire a physical capture or
// output device. Fatal to starting a session; never retried by the core.
var ErrDeviceUnavailable = errors.New("audio device unavailable")

const (
	// CaptureRate is the microphone sample rate expected by the model.
	CaptureRate = 16000
	// PlaybackRate is the sample rate of synthesized speech from the model.
	PlaybackRate = 24000

	Channels      = 1
	BitsPerSample = 16

	WAVHeaderSize = 44
)

var btKeywords = []string{
	"airpods", "beats", "bose", "wh-1000", "wf-1000",
	"sony wh-", "sony wf-",
	"jabra", "galaxy buds", "pixel buds", "powerbeats",
	"jbl ", "sennheiser momentum", "plantronics",
	"tozo", "anker soundcore", "skullcandy",
	"bluetooth", " bt ", " bt)", " bt]",
}

func IsBluetooth(name string) bool {
	lower := strings.ToLower(name)
	for _, kw := range btKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// DataCallback receives raw S16LE mono frames from a capture device.
// It runs on the audio driver's thread.
type DataCallback func(data []byte, frameCount uint32)

// RenderCallback fills out with S16LE mono frames for an output device.
// The callback must fill the whole slice (silence where nothing is
// scheduled). It runs on the audio driver's thread.
type RenderCallback func(out []int16)

type CaptureConfig struct {
	SampleRate uint32
	Channels   uint32
}

type PlaybackConfig struct {
	SampleRate uint32
	Channels   uint32
}

type DeviceInfo struct {
	ID   string // opaque platform-specific identifier
	Name string
}

type Context interface {
	Devices() ([]DeviceInfo, error)
	NewCapture(device *DeviceInfo, config CaptureConfig) (CaptureDevice, error)
	NewOutput(config PlaybackConfig, render RenderCallback) (OutputDevice, error)
	Close()
}

type CaptureDevice interface {
	Start() error
	Stop()
	Close()
	SetCallback(cb DataCallback)
	ClearCallback()
	DeviceName() string
}

type OutputDevice interface {
	Start() error
	Stop()
	Close()
}
