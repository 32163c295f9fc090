package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config contains all runtime settings for the voice chat service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string
	AllowAnyOrigin   bool
	LogLevel         string
	LogFormat        string

	VoiceProvider string

	GroqAPIKey    string
	GroqBaseURL   string
	GroqModelText string
	GroqModelSTT  string
	GroqModelTTS  string
	GroqTTSVoice  string

	DeepgramAPIKey   string
	DeepgramTTSModel string

	AudioInput          string
	SampleRate          int
	Channels            int
	ChunkSize           int
	MaxRecordingSeconds int
	PollInterval        time.Duration

	ASRLanguage       string
	LLMMaxTokens      int
	LLMTemperature    float64
	PersonaPromptFile string
	ArtifactDir       string
}

// Load reads a .env file when present, then environment variables, and applies defaults.
func Load() (Config, error) {
	// A missing .env is the normal case outside local development.
	_ = godotenv.Load()

	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "voicebot"),
		LogLevel:         envOrDefault("APP_LOG_LEVEL", "info"),
		LogFormat:        envOrDefault("APP_LOG_FORMAT", "json"),
		VoiceProvider:    envOrDefault("VOICE_PROVIDER", "auto"),
		GroqAPIKey:       stringsTrimSpace("GROQ_API_KEY"),
		GroqBaseURL:      envOrDefault("GROQ_BASE_URL", "https://api.groq.com/openai/v1"),
		GroqModelText:    envOrDefault("GROQ_MODEL_TEXT", "llama-3.3-70b-versatile"),
		GroqModelSTT:     envOrDefault("GROQ_MODEL_STT", "whisper-large-v3"),
		GroqModelTTS:     envOrDefault("GROQ_MODEL_TTS", "playai-tts"),
		GroqTTSVoice:     envOrDefault("GROQ_TTS_VOICE", "Mitch-PlayAI"),
		DeepgramAPIKey:   stringsTrimSpace("DEEPGRAM_API_KEY"),
		DeepgramTTSModel: envOrDefault("DEEPGRAM_TTS_MODEL", "aura-2-odysseus-en"),
		// Browser capture works without native audio libraries on the host.
		AudioInput:          envOrDefault("AUDIO_INPUT", "browser"),
		SampleRate:          16000,
		Channels:            1,
		ChunkSize:           1024,
		MaxRecordingSeconds: 30,
		PollInterval:        100 * time.Millisecond,
		ASRLanguage:         envOrDefault("ASR_LANGUAGE", "en"),
		LLMMaxTokens:        300,
		LLMTemperature:      0.7,
		PersonaPromptFile:   stringsTrimSpace("PERSONA_PROMPT_FILE"),
		ArtifactDir:         envOrDefault("ARTIFACT_DIR", os.TempDir()),
		ShutdownTimeout:     15 * time.Second,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.SampleRate, err = intFromEnv("AUDIO_SAMPLE_RATE", cfg.SampleRate)
	if err != nil {
		return Config{}, err
	}
	cfg.Channels, err = intFromEnv("AUDIO_CHANNELS", cfg.Channels)
	if err != nil {
		return Config{}, err
	}
	cfg.ChunkSize, err = intFromEnv("AUDIO_CHUNK_SIZE", cfg.ChunkSize)
	if err != nil {
		return Config{}, err
	}
	cfg.MaxRecordingSeconds, err = intFromEnv("AUDIO_MAX_RECORDING_SECONDS", cfg.MaxRecordingSeconds)
	if err != nil {
		return Config{}, err
	}
	cfg.PollInterval, err = durationFromEnv("AUDIO_POLL_INTERVAL", cfg.PollInterval)
	if err != nil {
		return Config{}, err
	}
	cfg.LLMMaxTokens, err = intFromEnv("LLM_MAX_TOKENS", cfg.LLMMaxTokens)
	if err != nil {
		return Config{}, err
	}
	cfg.LLMTemperature, err = floatFromEnv("LLM_TEMPERATURE", cfg.LLMTemperature)
	if err != nil {
		return Config{}, err
	}

	if cfg.SampleRate <= 0 {
		return Config{}, fmt.Errorf("AUDIO_SAMPLE_RATE must be positive")
	}
	if cfg.Channels <= 0 || cfg.Channels > 2 {
		return Config{}, fmt.Errorf("AUDIO_CHANNELS must be 1 or 2")
	}
	if cfg.ChunkSize <= 0 {
		return Config{}, fmt.Errorf("AUDIO_CHUNK_SIZE must be positive")
	}
	if cfg.MaxRecordingSeconds <= 0 {
		return Config{}, fmt.Errorf("AUDIO_MAX_RECORDING_SECONDS must be positive")
	}
	if cfg.PollInterval <= 0 {
		return Config{}, fmt.Errorf("AUDIO_POLL_INTERVAL must be positive")
	}
	if cfg.LLMMaxTokens <= 0 {
		return Config{}, fmt.Errorf("LLM_MAX_TOKENS must be positive")
	}
	if cfg.LLMTemperature < 0 || cfg.LLMTemperature > 2 {
		return Config{}, fmt.Errorf("LLM_TEMPERATURE must be within [0, 2]")
	}
	if err := cfg.ValidateAudioInput(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// The bundled page always uploads 16 kHz mono PCM16.
const (
	BrowserSampleRate = 16000
	BrowserChannels   = 1
)

// ValidateAudioInput checks AUDIO_INPUT and, for browser input, that the capture format
// matches what the page sends.
func (c Config) ValidateAudioInput() error {
	switch strings.ToLower(strings.TrimSpace(c.AudioInput)) {
	case "", "browser":
		if c.SampleRate != BrowserSampleRate || c.Channels != BrowserChannels {
			return fmt.Errorf("AUDIO_INPUT=browser requires AUDIO_SAMPLE_RATE=%d and AUDIO_CHANNELS=%d (got %d Hz, %d channels)",
				BrowserSampleRate, BrowserChannels, c.SampleRate, c.Channels)
		}
		return nil
	case "portaudio", "none":
		return nil
	default:
		return fmt.Errorf("invalid AUDIO_INPUT: %q (expected browser|portaudio|none)", c.AudioInput)
	}
}

// GroqConfigured reports whether the primary provider has credentials.
func (c Config) GroqConfigured() bool {
	return strings.TrimSpace(c.GroqAPIKey) != ""
}

// DeepgramConfigured reports whether the fallback TTS provider has credentials.
func (c Config) DeepgramConfigured() bool {
	return strings.TrimSpace(c.DeepgramAPIKey) != ""
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func floatFromEnv(key string, fallback float64) (float64, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return f, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
