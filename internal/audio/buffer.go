package audio

import (
	"encoding/binary"
	"math"
	"time"
)

// Buffer holds interleaved float32 samples in [-1, 1].
type Buffer struct {
	Samples    []float32
	SampleRate int
	Channels   int
}

// Empty reports whether the buffer carries no samples.
func (b Buffer) Empty() bool {
	return len(b.Samples) == 0
}

// Frames returns the number of sample frames (one sample per channel).
func (b Buffer) Frames() int {
	ch := b.Channels
	if ch <= 0 {
		ch = 1
	}
	return len(b.Samples) / ch
}

// Duration returns the playback length of the buffer.
func (b Buffer) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(b.Frames()) * time.Second / time.Duration(b.SampleRate)
}

// Peak returns the largest absolute sample value.
func (b Buffer) Peak() float32 {
	var peak float32
	for _, s := range b.Samples {
		if s < 0 {
			s = -s
		}
		if s > peak {
			peak = s
		}
	}
	return peak
}

// Normalize scales samples so the peak absolute value becomes 1.
// A silent buffer is returned as is.
func Normalize(b Buffer) Buffer {
	peak := b.Peak()
	if peak == 0 {
		return b
	}
	out := make([]float32, len(b.Samples))
	for i, s := range b.Samples {
		out[i] = s / peak
	}
	return Buffer{Samples: out, SampleRate: b.SampleRate, Channels: b.Channels}
}

// PCM16LE converts samples to little-endian signed 16-bit PCM. Values outside [-1, 1] are clipped.
func (b Buffer) PCM16LE() []byte {
	out := make([]byte, len(b.Samples)*2)
	for i, s := range b.Samples {
		v := float64(s)
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(math.Round(v*math.MaxInt16))))
	}
	return out
}

// DecodePCM16LE converts little-endian signed 16-bit PCM to float32 samples.
// A trailing odd byte is ignored.
func DecodePCM16LE(pcm []byte) []float32 {
	out := make([]float32, len(pcm)/2)
	for i := range out {
		v := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		out[i] = float32(v) / math.MaxInt16
	}
	return out
}
