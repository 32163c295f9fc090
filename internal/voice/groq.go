package voice

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/ent0n29/voicebot/internal/audio"
	"github.com/ent0n29/voicebot/internal/logging"
	"github.com/ent0n29/voicebot/internal/reliability"
)

const (
	ProviderGroq = "groq"

	recordingFilename = "recording.wav"
)

// ErrNoSpeech is returned when the recognizer produced an empty transcript.
var ErrNoSpeech = errors.New("no speech recognized")

// GroqConfig configures the OpenAI-compatible Groq endpoints.
type GroqConfig struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

// NewGroqClient builds a client for Groq's OpenAI-compatible API.
func NewGroqClient(cfg GroqConfig) *openai.Client {
	clientCfg := openai.DefaultConfig(strings.TrimSpace(cfg.APIKey))
	if base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"); base != "" {
		clientCfg.BaseURL = base
	}
	if cfg.HTTPClient != nil {
		clientCfg.HTTPClient = cfg.HTTPClient
	}
	return openai.NewClientWithConfig(clientCfg)
}

// GroqTranscriber sends recordings to the Whisper transcription endpoint.
type GroqTranscriber struct {
	api      TranscriptionAPI
	model    string
	language string
	logger   *zap.Logger
}

// NewGroqTranscriber builds a transcriber. A nil api means the provider has no credentials.
func NewGroqTranscriber(api TranscriptionAPI, model, language string, logger *zap.Logger) *GroqTranscriber {
	if strings.TrimSpace(language) == "" {
		language = "en"
	}
	return &GroqTranscriber{
		api:      api,
		model:    model,
		language: language,
		logger:   logging.OrNop(logger),
	}
}

func (t *GroqTranscriber) Transcribe(ctx context.Context, buf audio.Buffer) (string, error) {
	if t.api == nil {
		return "", reliability.Classify(ProviderGroq, fmt.Errorf("transcription: %w", reliability.ErrNotConfigured))
	}
	wav, err := audio.EncodeWAV(buf)
	if err != nil {
		return "", fmt.Errorf("encode recording: %w", err)
	}

	resp, err := t.api.CreateTranscription(ctx, openai.AudioRequest{
		Model:    t.model,
		FilePath: recordingFilename,
		Reader:   bytes.NewReader(wav),
		Language: t.language,
		Format:   openai.AudioResponseFormatVerboseJSON,
	})
	if err != nil {
		return "", reliability.Classify(ProviderGroq, fmt.Errorf("transcription: %w", err))
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", ErrNoSpeech
	}
	t.logger.Debug("transcription complete",
		zap.String("provider", ProviderGroq),
		zap.Duration("audio", buf.Duration()),
		zap.Int("chars", len(text)),
	)
	return text, nil
}

// GroqSpeaker synthesizes speech with the PlayAI voices served by Groq.
type GroqSpeaker struct {
	api   SpeechAPI
	model string
	voice string
}

// NewGroqSpeaker builds a speaker. A nil api means the provider has no credentials.
func NewGroqSpeaker(api SpeechAPI, model, voice string) *GroqSpeaker {
	return &GroqSpeaker{api: api, model: model, voice: voice}
}

func (s *GroqSpeaker) Name() string   { return ProviderGroq }
func (s *GroqSpeaker) Format() string { return "mp3" }

func (s *GroqSpeaker) SpeakToFile(ctx context.Context, text, path string) error {
	if s.api == nil {
		return reliability.Classify(ProviderGroq, fmt.Errorf("speech: %w", reliability.ErrNotConfigured))
	}
	resp, err := s.api.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(s.model),
		Input:          text,
		Voice:          openai.SpeechVoice(s.voice),
		ResponseFormat: openai.SpeechResponseFormatMp3,
	})
	if err != nil {
		return reliability.Classify(ProviderGroq, fmt.Errorf("speech: %w", err))
	}
	defer resp.Close()

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("open artifact: %w", err)
	}
	if _, err := io.Copy(f, resp); err != nil {
		_ = f.Close()
		return reliability.Classify(ProviderGroq, fmt.Errorf("speech body: %w", err))
	}
	return f.Close()
}
