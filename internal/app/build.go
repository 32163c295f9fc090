package app

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ent0n29/voicebot/internal/audio"
	"github.com/ent0n29/voicebot/internal/config"
	"github.com/ent0n29/voicebot/internal/httpapi"
	"github.com/ent0n29/voicebot/internal/llm"
	"github.com/ent0n29/voicebot/internal/logging"
	"github.com/ent0n29/voicebot/internal/observability"
	"github.com/ent0n29/voicebot/internal/session"
	"github.com/ent0n29/voicebot/internal/voice"
)

type VoiceInfo struct {
	Mode        string
	Detail      string
	AudioInput  string
	HasFallback bool
}

type BuildResult struct {
	Config   config.Config
	API      *httpapi.Server
	Sessions *session.Manager
	Metrics  *observability.Metrics
	Voice    VoiceInfo
	// BrowserInput is the device fed by websocket audio, nil unless AUDIO_INPUT=browser.
	BrowserInput *audio.PushDevice

	// Cleanup closes the session, ends any recording, deletes tracked audio artifacts and
	// releases the input device. Call it once on shutdown.
	Cleanup func() error
}

func Build(cfg config.Config, logger *zap.Logger) (*BuildResult, error) {
	logger = logging.OrNop(logger)
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	persona, err := llm.LoadPersona(cfg.PersonaPromptFile)
	if err != nil {
		return nil, err
	}

	providers, err := resolveProviders(cfg, persona, logger)
	if err != nil {
		return nil, err
	}

	input, err := openInput(cfg, logger)
	if err != nil {
		return nil, err
	}

	capture := audio.NewCapture(input.device, audio.CaptureConfig{
		Format: audio.Format{
			SampleRate:     cfg.SampleRate,
			Channels:       cfg.Channels,
			FramesPerChunk: cfg.ChunkSize,
		},
		PollInterval:        cfg.PollInterval,
		MaxRecordingSeconds: cfg.MaxRecordingSeconds,
	}, logger.Named("capture"))

	synthesizer := voice.NewSynthesizer(providers.primary, providers.fallback, cfg.ArtifactDir, logger.Named("tts"))

	sessions := session.NewManager(session.Config{
		Recorder:    capture,
		Transcriber: providers.transcriber,
		Responder:   providers.responder,
		Synthesizer: synthesizer,
		Observer:    metrics,
		Logger:      logger.Named("session"),
	})

	transcriber, responder, primary, fallback := providers.names()
	api := httpapi.New(httpapi.Options{
		Config:   cfg,
		Sessions: sessions,
		Input:    input.push,
		Providers: httpapi.Providers{
			Mode:        providers.mode,
			Transcriber: transcriber,
			Responder:   responder,
			PrimaryTTS:  primary,
			FallbackTTS: fallback,
		},
		Metrics: metrics,
		Logger:  logger.Named("http"),
	})

	cleanup := func() error {
		// The worker must close its stream before the input library goes away.
		sessions.Close()
		if capture.Recording() {
			capture.Stop()
		}

		var errs []error
		if removed, err := sessions.CleanupArtifacts(); err != nil {
			errs = append(errs, fmt.Errorf("artifact cleanup: %w", err))
		} else if removed > 0 {
			logger.Info("audio artifacts removed", zap.Int("count", removed))
		}
		if input.close != nil {
			if err := input.close(); err != nil {
				errs = append(errs, fmt.Errorf("audio input close: %w", err))
			}
		}
		return errors.Join(errs...)
	}

	return &BuildResult{
		Config:   cfg,
		API:      api,
		Sessions: sessions,
		Metrics:      metrics,
		BrowserInput: input.push,
		Voice: VoiceInfo{
			Mode:        providers.mode,
			Detail:      providers.detail,
			AudioInput:  input.name,
			HasFallback: synthesizer.HasFallback(),
		},
		Cleanup: cleanup,
	}, nil
}

type inputSetup struct {
	name   string
	device audio.Device
	push   *audio.PushDevice
	close  func() error
}

func openInput(cfg config.Config, logger *zap.Logger) (inputSetup, error) {
	if err := cfg.ValidateAudioInput(); err != nil {
		return inputSetup{}, err
	}
	switch strings.ToLower(strings.TrimSpace(cfg.AudioInput)) {
	case "", "browser":
		push := audio.NewPushDevice()
		return inputSetup{name: "browser", device: push, push: push}, nil
	case "portaudio":
		dev, err := audio.NewPortAudioDevice()
		if err != nil {
			return inputSetup{}, fmt.Errorf("audio input init failed: %w", err)
		}
		return inputSetup{name: "portaudio", device: dev, close: dev.Close}, nil
	case "none":
		logging.OrNop(logger).Warn("no audio input configured; recordings will be empty")
		return inputSetup{name: "none", device: audio.NoDevice{}}, nil
	default:
		return inputSetup{}, fmt.Errorf("invalid AUDIO_INPUT: %q (expected browser|portaudio|none)", cfg.AudioInput)
	}
}
