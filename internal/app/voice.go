package app

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ent0n29/voicebot/internal/config"
	"github.com/ent0n29/voicebot/internal/llm"
	"github.com/ent0n29/voicebot/internal/logging"
	"github.com/ent0n29/voicebot/internal/session"
	"github.com/ent0n29/voicebot/internal/voice"
)

const providerHTTPTimeout = 60 * time.Second

type providerSetup struct {
	mode        string
	transcriber voice.Transcriber
	responder   session.Responder
	primary     voice.SpeechProvider
	fallback    voice.SpeechProvider
	detail      string
}

func resolveProviders(cfg config.Config, persona string, logger *zap.Logger) (providerSetup, error) {
	logger = logging.OrNop(logger)
	mode := strings.ToLower(strings.TrimSpace(cfg.VoiceProvider))
	if mode == "" {
		mode = "auto"
	}

	useGroq := func() providerSetup {
		var (
			transcriptionAPI voice.TranscriptionAPI
			speechAPI        voice.SpeechAPI
			chatAPI          llm.ChatAPI
		)
		// Without a key the clients stay nil and every call reports not_configured.
		if cfg.GroqConfigured() {
			client := voice.NewGroqClient(voice.GroqConfig{
				APIKey:     cfg.GroqAPIKey,
				BaseURL:    cfg.GroqBaseURL,
				HTTPClient: &http.Client{Timeout: providerHTTPTimeout},
			})
			transcriptionAPI, speechAPI, chatAPI = client, client, client
		}
		setup := providerSetup{
			mode:        "groq",
			transcriber: voice.NewGroqTranscriber(transcriptionAPI, cfg.GroqModelSTT, cfg.ASRLanguage, logger),
			responder: llm.NewGenerator(chatAPI, llm.Config{
				Model:       cfg.GroqModelText,
				MaxTokens:   cfg.LLMMaxTokens,
				Temperature: cfg.LLMTemperature,
				Persona:     persona,
			}, logger),
			primary: voice.NewGroqSpeaker(speechAPI, cfg.GroqModelTTS, cfg.GroqTTSVoice),
			detail:  fmt.Sprintf("groq (%s, %s, %s)", cfg.GroqModelSTT, cfg.GroqModelText, cfg.GroqModelTTS),
		}
		if cfg.DeepgramConfigured() {
			setup.fallback = voice.NewDeepgramSpeaker(cfg.DeepgramAPIKey, cfg.DeepgramTTSModel)
			setup.detail += fmt.Sprintf(", fallback deepgram (%s)", cfg.DeepgramTTSModel)
		}
		return setup
	}

	useMock := func(detail string) providerSetup {
		return providerSetup{
			mode:        "mock",
			transcriber: voice.NewMockTranscriber(),
			responder:   llm.NewMock(),
			primary:     voice.NewMockSpeaker(),
			detail:      detail,
		}
	}

	switch mode {
	case "groq":
		if !cfg.GroqConfigured() {
			logger.Warn("VOICE_PROVIDER=groq but GROQ_API_KEY is not set; provider calls will fail")
		}
		return useGroq(), nil
	case "mock":
		return useMock("mock"), nil
	case "auto":
		if cfg.GroqConfigured() {
			return useGroq(), nil
		}
		return useMock("mock (no GROQ_API_KEY)"), nil
	default:
		return providerSetup{}, fmt.Errorf("invalid VOICE_PROVIDER: %q (expected auto|groq|mock)", cfg.VoiceProvider)
	}
}

func (p providerSetup) names() (transcriber, responder, primary, fallback string) {
	if p.mode == "mock" {
		return voice.ProviderMock, voice.ProviderMock, p.primary.Name(), ""
	}
	transcriber, responder = voice.ProviderGroq, llm.ProviderGroq
	primary = p.primary.Name()
	if p.fallback != nil {
		fallback = p.fallback.Name()
	}
	return transcriber, responder, primary, fallback
}
