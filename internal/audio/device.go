package audio

import (
	"errors"
	"time"
)

var (
	// ErrNoInputDevice is returned when no microphone backend is available.
	ErrNoInputDevice = errors.New("no audio input device available")
	// ErrDeviceBusy is returned when a device already has an open stream.
	ErrDeviceBusy = errors.New("audio input device busy")
)

// Format describes the capture layout requested from a device.
type Format struct {
	SampleRate     int
	Channels       int
	FramesPerChunk int
}

// Device opens input streams. A recording opens exactly one stream.
type Device interface {
	Open(format Format) (Stream, error)
}

// Stream yields interleaved float32 frames.
type Stream interface {
	// Read returns the next frame, or nil when nothing arrived within timeout.
	Read(timeout time.Duration) ([]float32, error)
	Close() error
}

// bufferedStream is implemented by streams that queue frames internally.
// Drain hands over whatever is still queued when a recording stops.
type bufferedStream interface {
	Drain() [][]float32
}

// NoDevice is the input used when no microphone backend is configured.
type NoDevice struct{}

func (NoDevice) Open(Format) (Stream, error) {
	return nil, ErrNoInputDevice
}
