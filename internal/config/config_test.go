package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	setCoreEnvEmpty(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.SampleRate != 16000 || cfg.Channels != 1 || cfg.ChunkSize != 1024 {
		t.Fatalf("audio defaults = %d/%d/%d, want 16000/1/1024", cfg.SampleRate, cfg.Channels, cfg.ChunkSize)
	}
	if cfg.PollInterval != 100*time.Millisecond {
		t.Fatalf("PollInterval = %v, want 100ms", cfg.PollInterval)
	}
	if cfg.GroqModelSTT != "whisper-large-v3" {
		t.Fatalf("GroqModelSTT = %q, want whisper-large-v3", cfg.GroqModelSTT)
	}
	if cfg.GroqTTSVoice != "Mitch-PlayAI" {
		t.Fatalf("GroqTTSVoice = %q, want Mitch-PlayAI", cfg.GroqTTSVoice)
	}
	if cfg.DeepgramTTSModel != "aura-2-odysseus-en" {
		t.Fatalf("DeepgramTTSModel = %q, want aura-2-odysseus-en", cfg.DeepgramTTSModel)
	}
	if cfg.LLMMaxTokens != 300 || cfg.LLMTemperature != 0.7 {
		t.Fatalf("llm defaults = %d/%v, want 300/0.7", cfg.LLMMaxTokens, cfg.LLMTemperature)
	}
	if cfg.GroqConfigured() || cfg.DeepgramConfigured() {
		t.Fatalf("providers should not be configured without keys")
	}
}

func TestLoadReadsOverrides(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("GROQ_API_KEY", "  gsk_test  ")
	t.Setenv("AUDIO_SAMPLE_RATE", "48000")
	t.Setenv("AUDIO_POLL_INTERVAL", "50ms")
	t.Setenv("LLM_TEMPERATURE", "0.2")
	t.Setenv("AUDIO_INPUT", "portaudio")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.GroqAPIKey != "gsk_test" {
		t.Fatalf("GroqAPIKey = %q, want trimmed key", cfg.GroqAPIKey)
	}
	if !cfg.GroqConfigured() {
		t.Fatalf("GroqConfigured() = false, want true")
	}
	if cfg.SampleRate != 48000 {
		t.Fatalf("SampleRate = %d, want 48000", cfg.SampleRate)
	}
	if cfg.PollInterval != 50*time.Millisecond {
		t.Fatalf("PollInterval = %v, want 50ms", cfg.PollInterval)
	}
	if cfg.LLMTemperature != 0.2 {
		t.Fatalf("LLMTemperature = %v, want 0.2", cfg.LLMTemperature)
	}
	if cfg.AudioInput != "portaudio" {
		t.Fatalf("AudioInput = %q, want portaudio", cfg.AudioInput)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := []struct {
		key   string
		value string
	}{
		{"AUDIO_SAMPLE_RATE", "0"},
		{"AUDIO_CHANNELS", "3"},
		{"AUDIO_CHUNK_SIZE", "abc"},
		{"AUDIO_POLL_INTERVAL", "soon"},
		{"LLM_TEMPERATURE", "5"},
		{"AUDIO_INPUT", "cassette"},
		{"APP_ALLOW_ANY_ORIGIN", "maybe"},
	}
	for _, tc := range cases {
		t.Run(tc.key, func(t *testing.T) {
			setCoreEnvEmpty(t)
			t.Setenv(tc.key, tc.value)
			if _, err := Load(); err == nil {
				t.Fatalf("Load() with %s=%q expected error", tc.key, tc.value)
			}
		})
	}
}

func TestLoadRejectsBrowserInputFormatMismatch(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
	}{
		{"sample rate", map[string]string{"AUDIO_SAMPLE_RATE": "44100"}},
		{"stereo", map[string]string{"AUDIO_CHANNELS": "2"}},
		{"explicit browser", map[string]string{"AUDIO_INPUT": "browser", "AUDIO_SAMPLE_RATE": "48000"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			setCoreEnvEmpty(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), "AUDIO_INPUT=browser") {
				t.Fatalf("Load() error = %v, want browser format error", err)
			}
		})
	}
}

func TestLoadAcceptsAnyFormatForHostInput(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("AUDIO_INPUT", "portaudio")
	t.Setenv("AUDIO_SAMPLE_RATE", "44100")
	t.Setenv("AUDIO_CHANNELS", "2")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.SampleRate != 44100 || cfg.Channels != 2 {
		t.Fatalf("format = %d Hz %d channels", cfg.SampleRate, cfg.Channels)
	}
}

func setCoreEnvEmpty(t *testing.T) {
	t.Helper()
	keys := []string{
		"APP_BIND_ADDR",
		"APP_SHUTDOWN_TIMEOUT",
		"APP_METRICS_NAMESPACE",
		"APP_ALLOW_ANY_ORIGIN",
		"APP_LOG_LEVEL",
		"APP_LOG_FORMAT",
		"VOICE_PROVIDER",
		"GROQ_API_KEY",
		"GROQ_BASE_URL",
		"GROQ_MODEL_TEXT",
		"GROQ_MODEL_STT",
		"GROQ_MODEL_TTS",
		"GROQ_TTS_VOICE",
		"DEEPGRAM_API_KEY",
		"DEEPGRAM_TTS_MODEL",
		"AUDIO_INPUT",
		"AUDIO_SAMPLE_RATE",
		"AUDIO_CHANNELS",
		"AUDIO_CHUNK_SIZE",
		"AUDIO_MAX_RECORDING_SECONDS",
		"AUDIO_POLL_INTERVAL",
		"ASR_LANGUAGE",
		"LLM_MAX_TOKENS",
		"LLM_TEMPERATURE",
		"PERSONA_PROMPT_FILE",
		"ARTIFACT_DIR",
	}
	for _, key := range keys {
		t.Setenv(key, "")
	}
}
