package httpapi

import (
	"net/http"
	"os"
	"strings"
)

type statusCheck struct {
	ID     string `json:"id"`
	Status string `json:"status"` // ok|warn|error
	Label  string `json:"label"`
	Detail string `json:"detail,omitempty"`
	Fix    string `json:"fix,omitempty"`
}

type statusResponse struct {
	VoiceMode   string        `json:"voice_mode"`
	AudioInput  string        `json:"audio_input"`
	Transcriber string        `json:"transcriber"`
	Responder   string        `json:"responder"`
	PrimaryTTS  string        `json:"primary_tts"`
	FallbackTTS string        `json:"fallback_tts,omitempty"`
	Checks      []statusCheck `json:"checks"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, statusResponse{
		VoiceMode:   s.providers.Mode,
		AudioInput:  strings.ToLower(strings.TrimSpace(s.cfg.AudioInput)),
		Transcriber: s.providers.Transcriber,
		Responder:   s.providers.Responder,
		PrimaryTTS:  s.providers.PrimaryTTS,
		FallbackTTS: s.providers.FallbackTTS,
		Checks:      s.statusChecks(),
	})
}

func (s *Server) statusChecks() []statusCheck {
	checks := make([]statusCheck, 0, 4)

	switch {
	case s.providers.Mode == "mock":
		checks = append(checks, statusCheck{
			ID:     "groq_key",
			Status: "warn",
			Label:  "Groq API key",
			Detail: "mock providers in use; replies are canned",
			Fix:    "Set GROQ_API_KEY and VOICE_PROVIDER=groq.",
		})
	case s.cfg.GroqConfigured():
		checks = append(checks, statusCheck{
			ID:     "groq_key",
			Status: "ok",
			Label:  "Groq API key",
			Detail: "present",
		})
	default:
		checks = append(checks, statusCheck{
			ID:     "groq_key",
			Status: "error",
			Label:  "Groq API key",
			Detail: "GROQ_API_KEY is not set",
			Fix:    "Set GROQ_API_KEY in the environment or .env file.",
		})
	}

	if s.cfg.DeepgramConfigured() {
		checks = append(checks, statusCheck{
			ID:     "deepgram_key",
			Status: "ok",
			Label:  "Fallback TTS (Deepgram)",
			Detail: "present",
		})
	} else {
		checks = append(checks, statusCheck{
			ID:     "deepgram_key",
			Status: "warn",
			Label:  "Fallback TTS (Deepgram)",
			Detail: "DEEPGRAM_API_KEY is not set; replies stay text-only when primary TTS fails",
			Fix:    "Set DEEPGRAM_API_KEY to enable fallback speech.",
		})
	}

	switch strings.ToLower(strings.TrimSpace(s.cfg.AudioInput)) {
	case "browser":
		checks = append(checks, statusCheck{
			ID:     "audio_input",
			Status: "ok",
			Label:  "Microphone",
			Detail: "browser microphone over websocket",
		})
	case "portaudio":
		checks = append(checks, statusCheck{
			ID:     "audio_input",
			Status: "ok",
			Label:  "Microphone",
			Detail: "host default input device",
		})
	default:
		checks = append(checks, statusCheck{
			ID:     "audio_input",
			Status: "warn",
			Label:  "Microphone",
			Detail: "no audio input configured; recordings will be empty",
			Fix:    "Set AUDIO_INPUT=browser or AUDIO_INPUT=portaudio.",
		})
	}

	dir := s.cfg.ArtifactDir
	if dir == "" {
		dir = os.TempDir()
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		checks = append(checks, statusCheck{
			ID:     "artifact_dir",
			Status: "error",
			Label:  "Audio artifact directory",
			Detail: dir + " is not a directory",
			Fix:    "Point ARTIFACT_DIR at a writable directory.",
		})
	} else {
		checks = append(checks, statusCheck{
			ID:     "artifact_dir",
			Status: "ok",
			Label:  "Audio artifact directory",
			Detail: dir,
		})
	}
	return checks
}
