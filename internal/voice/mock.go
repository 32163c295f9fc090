package voice

import (
	"context"
	"fmt"
	"math"
	"os"

	"github.com/ent0n29/voicebot/internal/audio"
)

const ProviderMock = "mock"

// MockTranscriber is a local provider used when no ASR credentials are configured.
type MockTranscriber struct{}

func NewMockTranscriber() *MockTranscriber { return &MockTranscriber{} }

func (MockTranscriber) Transcribe(_ context.Context, buf audio.Buffer) (string, error) {
	if buf.Empty() || buf.Peak() == 0 {
		return "", ErrNoSpeech
	}
	return fmt.Sprintf("simulated voice input (%.1f seconds)", buf.Duration().Seconds()), nil
}

// MockSpeaker writes a short tone as a WAV file so playback works without a TTS provider.
type MockSpeaker struct{}

func NewMockSpeaker() *MockSpeaker { return &MockSpeaker{} }

func (MockSpeaker) Name() string   { return ProviderMock }
func (MockSpeaker) Format() string { return "wav" }

func (MockSpeaker) SpeakToFile(_ context.Context, text, path string) error {
	const (
		sampleRate = 16000
		toneHz     = 440.0
	)
	// Roughly 40ms of tone per character, capped at two seconds.
	n := len([]rune(text)) * sampleRate / 25
	if n > 2*sampleRate {
		n = 2 * sampleRate
	}
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = float32(0.2 * math.Sin(2*math.Pi*toneHz*float64(i)/sampleRate))
	}
	buf := audio.Buffer{Samples: samples, SampleRate: sampleRate, Channels: 1}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if err := audio.WriteWAVPCM16LETo(f, buf.PCM16LE(), sampleRate, 1); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
