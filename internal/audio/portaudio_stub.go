//go:build !portaudio

package audio

import "fmt"

// PortAudioDevice is unavailable in builds without the portaudio tag.
type PortAudioDevice struct {
	NoDevice
}

// NewPortAudioDevice reports that microphone support was not compiled in.
func NewPortAudioDevice() (*PortAudioDevice, error) {
	return nil, fmt.Errorf("%w: built without the portaudio tag", ErrNoInputDevice)
}

func (d *PortAudioDevice) Close() error {
	return nil
}
