package audio

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrNotCapturing is returned by Push when no recording holds the device open.
	ErrNotCapturing = errors.New("audio input is not recording")
	// ErrFrameDropped is returned by Push when the reader is too far behind.
	ErrFrameDropped = errors.New("audio frame dropped")
)

const pushStreamBacklog = 256

// PushDevice is an input fed by frames from a remote client, such as browser microphone chunks.
type PushDevice struct {
	mu     sync.Mutex
	stream *pushStream
}

// NewPushDevice creates an idle push input.
func NewPushDevice() *PushDevice {
	return &PushDevice{}
}

func (d *PushDevice) Open(format Format) (Stream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stream != nil {
		return nil, ErrDeviceBusy
	}
	s := &pushStream{
		device: d,
		format: format,
		frames: make(chan []float32, pushStreamBacklog),
	}
	d.stream = s
	return s, nil
}

// Capturing reports whether a recording currently holds the device open.
func (d *PushDevice) Capturing() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stream != nil
}

// Push hands one chunk of interleaved samples to the open stream.
func (d *PushDevice) Push(samples []float32, sampleRate int) error {
	if len(samples) == 0 {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.stream
	if s == nil {
		return ErrNotCapturing
	}
	if sampleRate > 0 && sampleRate != s.format.SampleRate {
		return fmt.Errorf("sample rate %d does not match capture rate %d", sampleRate, s.format.SampleRate)
	}
	if ch := s.format.Channels; ch > 1 && len(samples)%ch != 0 {
		return fmt.Errorf("chunk of %d samples is not whole %d-channel frames", len(samples), ch)
	}
	frame := make([]float32, len(samples))
	copy(frame, samples)
	select {
	case s.frames <- frame:
		return nil
	default:
		return ErrFrameDropped
	}
}

func (d *PushDevice) release(s *pushStream) {
	d.mu.Lock()
	if d.stream == s {
		d.stream = nil
	}
	d.mu.Unlock()
}

type pushStream struct {
	device *PushDevice
	format Format
	frames chan []float32
	once   sync.Once
}

func (s *pushStream) Read(timeout time.Duration) ([]float32, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case frame := <-s.frames:
		return frame, nil
	case <-timer.C:
		return nil, nil
	}
}

// Drain releases the device and returns the frames still queued. Push holds the device
// lock while queueing, so nothing can arrive after the release.
func (s *pushStream) Drain() [][]float32 {
	s.once.Do(func() { s.device.release(s) })
	var out [][]float32
	for {
		select {
		case frame := <-s.frames:
			out = append(out, frame)
		default:
			return out
		}
	}
}

func (s *pushStream) Close() error {
	s.once.Do(func() { s.device.release(s) })
	return nil
}
