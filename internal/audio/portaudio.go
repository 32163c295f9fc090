//go:build portaudio

package audio

import (
	"fmt"
	"time"

	"github.com/gordonklaus/portaudio"
)

// PortAudioDevice captures from the host's default microphone.
type PortAudioDevice struct{}

// NewPortAudioDevice initializes the PortAudio library. Call Close once at shutdown.
func NewPortAudioDevice() (*PortAudioDevice, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio init: %w", err)
	}
	return &PortAudioDevice{}, nil
}

func (d *PortAudioDevice) Open(format Format) (Stream, error) {
	buf := make([]float32, format.FramesPerChunk*format.Channels)
	stream, err := portaudio.OpenDefaultStream(format.Channels, 0, float64(format.SampleRate), format.FramesPerChunk, buf)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoInputDevice, err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return nil, fmt.Errorf("portaudio start: %w", err)
	}
	return &portAudioStream{stream: stream, buf: buf}, nil
}

// Close terminates the PortAudio library.
func (d *PortAudioDevice) Close() error {
	return portaudio.Terminate()
}

type portAudioStream struct {
	stream *portaudio.Stream
	buf    []float32
}

// Read blocks for one chunk; at the default chunk size that is well under the poll interval.
func (s *portAudioStream) Read(time.Duration) ([]float32, error) {
	if err := s.stream.Read(); err != nil {
		return nil, err
	}
	frame := make([]float32, len(s.buf))
	copy(frame, s.buf)
	return frame, nil
}

func (s *portAudioStream) Close() error {
	stopErr := s.stream.Stop()
	closeErr := s.stream.Close()
	if stopErr != nil {
		return stopErr
	}
	return closeErr
}
