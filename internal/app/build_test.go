package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ent0n29/voicebot/internal/audio"
	"github.com/ent0n29/voicebot/internal/config"
	"github.com/ent0n29/voicebot/internal/reliability"
	"github.com/ent0n29/voicebot/internal/session"
	"github.com/ent0n29/voicebot/internal/voice"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		MetricsNamespace:    "test_app",
		VoiceProvider:       "auto",
		AudioInput:          "browser",
		SampleRate:          16000,
		Channels:            1,
		ChunkSize:           1024,
		MaxRecordingSeconds: 30,
		PollInterval:        10 * time.Millisecond,
		LLMMaxTokens:        300,
		LLMTemperature:      0.7,
		ArtifactDir:         t.TempDir(),
		GroqModelSTT:        "whisper-large-v3",
		GroqModelText:       "llama-3.3-70b-versatile",
		GroqModelTTS:        "playai-tts",
		GroqTTSVoice:        "Mitch-PlayAI",
		DeepgramTTSModel:    "aura-2-odysseus-en",
	}
}

func TestResolveProvidersModes(t *testing.T) {
	cases := []struct {
		name         string
		mode         string
		groqKey      string
		deepgramKey  string
		wantMode     string
		wantFallback string
	}{
		{name: "auto without key", mode: "auto", wantMode: "mock"},
		{name: "auto with key", mode: "auto", groqKey: "gsk_test", wantMode: "groq"},
		{name: "explicit mock", mode: "mock", groqKey: "gsk_test", deepgramKey: "dg", wantMode: "mock"},
		{name: "groq with fallback", mode: "GROQ", groqKey: "gsk_test", deepgramKey: "dg", wantMode: "groq", wantFallback: voice.ProviderDeepgram},
		{name: "empty means auto", mode: "", wantMode: "mock"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig(t)
			cfg.VoiceProvider = tc.mode
			cfg.GroqAPIKey = tc.groqKey
			cfg.DeepgramAPIKey = tc.deepgramKey

			setup, err := resolveProviders(cfg, "persona", nil)
			if err != nil {
				t.Fatalf("resolveProviders() error = %v", err)
			}
			if setup.mode != tc.wantMode {
				t.Fatalf("mode = %q, want %q", setup.mode, tc.wantMode)
			}
			_, _, _, fallback := setup.names()
			if fallback != tc.wantFallback {
				t.Fatalf("fallback = %q, want %q", fallback, tc.wantFallback)
			}
		})
	}
}

func TestResolveProvidersRejectsUnknownMode(t *testing.T) {
	cfg := testConfig(t)
	cfg.VoiceProvider = "elevenlabs"
	if _, err := resolveProviders(cfg, "", nil); err == nil {
		t.Fatalf("resolveProviders() error = nil for unknown mode")
	}
}

func TestGroqModeWithoutKeyReportsNotConfigured(t *testing.T) {
	cfg := testConfig(t)
	cfg.VoiceProvider = "groq"

	setup, err := resolveProviders(cfg, "", nil)
	if err != nil {
		t.Fatalf("resolveProviders() error = %v", err)
	}
	_, err = setup.responder.Generate(context.Background(), "hello", nil)
	if got := reliability.KindOf(err); got != reliability.KindFatal {
		t.Fatalf("KindOf(Generate error) = %q, want %q", got, reliability.KindFatal)
	}
	if !errors.Is(err, reliability.ErrNotConfigured) {
		t.Fatalf("Generate() error = %v, want ErrNotConfigured", err)
	}
}

func TestOpenInput(t *testing.T) {
	cfg := testConfig(t)

	in, err := openInput(cfg, nil)
	if err != nil || in.push == nil || in.name != "browser" {
		t.Fatalf("openInput(browser) = %+v, %v", in, err)
	}

	cfg.AudioInput = "none"
	in, err = openInput(cfg, nil)
	if err != nil || in.push != nil {
		t.Fatalf("openInput(none) = %+v, %v", in, err)
	}
	if _, err := in.device.Open(audio.Format{SampleRate: 16000, Channels: 1}); !errors.Is(err, audio.ErrNoInputDevice) {
		t.Fatalf("NoDevice.Open() error = %v", err)
	}

	cfg.AudioInput = "speakers"
	if _, err := openInput(cfg, nil); err == nil {
		t.Fatalf("openInput(speakers) error = nil")
	}
}

func TestBuildAndCleanup(t *testing.T) {
	cfg := testConfig(t)
	persona := filepath.Join(t.TempDir(), "persona.txt")
	if err := os.WriteFile(persona, []byte("You are Sam."), 0o600); err != nil {
		t.Fatalf("write persona: %v", err)
	}
	cfg.PersonaPromptFile = persona

	built, err := Build(cfg, nil)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if built.Voice.Mode != "mock" || built.Voice.AudioInput != "browser" || built.Voice.HasFallback {
		t.Fatalf("Voice = %+v", built.Voice)
	}
	if built.API == nil || built.API.Router() == nil {
		t.Fatalf("Build() returned no API")
	}

	res := built.Sessions.Dispatch(context.Background(), session.Intent{Kind: session.IntentSnapshot})
	if !res.OK || res.Snapshot.State != session.StateIdle {
		t.Fatalf("snapshot = %+v", res)
	}
	if err := built.Cleanup(); err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}
}

func TestBuildFailsOnMissingPersona(t *testing.T) {
	cfg := testConfig(t)
	cfg.PersonaPromptFile = filepath.Join(t.TempDir(), "missing.txt")
	if _, err := Build(cfg, nil); err == nil {
		t.Fatalf("Build() error = nil with missing persona file")
	}
}

func TestCleanupEndsActiveRecording(t *testing.T) {
	cfg := testConfig(t)
	built, err := Build(cfg, nil)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if res := built.Sessions.Dispatch(context.Background(), session.Intent{Kind: session.IntentStartRecording}); !res.OK {
		t.Fatalf("start_recording = %+v", res)
	}
	deadline := time.Now().Add(2 * time.Second)
	for !built.BrowserInput.Capturing() {
		if time.Now().After(deadline) {
			t.Fatalf("browser input never opened")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := built.Cleanup(); err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}
	if built.BrowserInput.Capturing() {
		t.Fatalf("browser input still capturing after Cleanup")
	}
	if got := built.Sessions.State(); got != session.StateIdle {
		t.Fatalf("State() = %q after Cleanup, want idle", got)
	}
	res := built.Sessions.Dispatch(context.Background(), session.Intent{Kind: session.IntentStartRecording})
	if res.OK {
		t.Fatalf("start_recording after Cleanup = %+v, want rejection", res)
	}
}

func TestOpenInputRejectsBrowserFormatMismatch(t *testing.T) {
	cases := []struct {
		name     string
		rate     int
		channels int
	}{
		{"sample rate", 44100, 1},
		{"stereo", 16000, 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig(t)
			cfg.SampleRate = tc.rate
			cfg.Channels = tc.channels
			if _, err := openInput(cfg, nil); err == nil {
				t.Fatalf("openInput(browser, %d Hz, %d ch) error = nil", tc.rate, tc.channels)
			}
			cfg.AudioInput = "none"
			if _, err := openInput(cfg, nil); err != nil {
				t.Fatalf("openInput(none) error = %v", err)
			}
		})
	}
}
