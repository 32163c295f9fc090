package voice

import (
	"context"

	openai "github.com/sashabaranov/go-openai"

	"github.com/ent0n29/voicebot/internal/audio"
)

// Transcriber turns a recorded buffer into text.
type Transcriber interface {
	Transcribe(ctx context.Context, buf audio.Buffer) (string, error)
}

// SpeechProvider writes spoken audio for text to a file the caller created.
type SpeechProvider interface {
	Name() string
	// Format is the file extension of the audio the provider writes, such as "mp3".
	Format() string
	SpeakToFile(ctx context.Context, text, path string) error
}

// TranscriptionAPI is the subset of the OpenAI-compatible client used for speech recognition.
type TranscriptionAPI interface {
	CreateTranscription(ctx context.Context, request openai.AudioRequest) (openai.AudioResponse, error)
}

// SpeechAPI is the subset of the OpenAI-compatible client used for speech synthesis.
type SpeechAPI interface {
	CreateSpeech(ctx context.Context, request openai.CreateSpeechRequest) (openai.RawResponse, error)
}
