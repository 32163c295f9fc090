package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ent0n29/voicebot/internal/policy"
	"github.com/ent0n29/voicebot/internal/reliability"
	"github.com/ent0n29/voicebot/internal/voice"
)

const (
	StageCapture    = "capture"
	StageTranscribe = "transcribe"
	StageGenerate   = "generate"
	StageSynthesize = "synthesize"
)

func (m *Manager) startRecording() Result {
	res := newResult(IntentStartRecording)
	if m.State() != StateIdle {
		m.logger.Info("start ignored, session busy", zap.String("state", string(m.State())))
		res.OK = true
		res.Notices = append(res.Notices, Notice{Level: LevelInfo, Code: "already_recording", Message: "Already recording."})
		return res
	}
	if m.recorder == nil || !m.recorder.Start() {
		res.Notices = append(res.Notices, Notice{Level: LevelError, Code: "recorder_unavailable", Message: "Recording could not be started."})
		return res
	}
	m.setState(StateRecording, "")
	res.OK = true
	res.Notices = append(res.Notices, Notice{Level: LevelSuccess, Code: "recording_started", Message: "Recording started! Speak now..."})
	return res
}

// runTurn drives one turn from the end of a recording to the synthesized reply.
// Every exit leaves the session idle with the turns in a consistent state.
func (m *Manager) runTurn(ctx context.Context) Result {
	res := newResult(IntentStopRecording)
	if m.State() != StateRecording {
		res.OK = true
		res.Notices = append(res.Notices, Notice{Level: LevelInfo, Code: "not_recording", Message: "Recording is not active."})
		return res
	}

	turnID := uuid.NewString()
	res.TurnID = turnID
	logger := m.logger.With(zap.String("turn_id", turnID))
	defer m.setState(StateIdle, turnID)

	m.setState(StateTranscribing, turnID)
	started := time.Now()
	buf, ok := m.recorder.Stop()
	m.observer.ObserveStage(StageCapture, time.Since(started))
	if !ok || buf.Empty() {
		logger.Info("turn aborted, no audio")
		res.Notices = append(res.Notices, Notice{Level: LevelError, Code: "no_audio", Message: "No audio recorded. Please try again."})
		return res
	}

	started = time.Now()
	transcript, err := m.transcriber.Transcribe(ctx, buf)
	m.observer.ObserveStage(StageTranscribe, time.Since(started))
	if err != nil {
		m.observeFailure(StageTranscribe, err)
		logger.Warn("transcription failed", zap.Error(err))
		res.Notices = append(res.Notices, failureNotice("transcription_failed", "Failed to transcribe audio. Please try again.", err))
		return res
	}
	redacted, _ := policy.RedactPII(transcript)
	logger.Info("user turn transcribed", zap.String("transcript", redacted), zap.Duration("audio", buf.Duration()))

	userIndex := m.appendTurn(Turn{Role: RoleUser, Content: transcript, InputMethod: InputVoice})

	m.setState(StateGenerating, turnID)
	started = time.Now()
	reply, err := m.responder.Generate(ctx, transcript, m.historyBefore(userIndex))
	m.observer.ObserveStage(StageGenerate, time.Since(started))
	if err != nil {
		m.observeFailure(StageGenerate, err)
		logger.Warn("generation failed", zap.Error(err))
		res.Notices = append(res.Notices, failureNotice("generation_failed", "Error generating a response.", err))
		return res
	}
	replyIndex := m.appendReply(reply)
	res.OK = true

	m.setState(StateSynthesizing, turnID)
	started = time.Now()
	syn, err := m.synthesizer.Synthesize(ctx, reply)
	m.observer.ObserveStage(StageSynthesize, time.Since(started))
	m.clearPendingSpeech()

	if syn.PrimaryErr != nil {
		kind := reliability.KindOf(syn.PrimaryErr)
		m.observer.ObserveProviderError(StageSynthesize, kind)
		res.Notices = append(res.Notices, primarySpeechNotice(syn.PrimaryErr))
	}
	if err != nil {
		logger.Warn("synthesis failed", zap.Error(err))
		res.Notices = append(res.Notices, speechFailureNotice(err))
		res.Notices = append(res.Notices, Notice{Level: LevelSuccess, Code: "turn_complete", Message: "Voice message processed successfully!"})
		return res
	}

	m.mapArtifact(replyIndex, syn.ArtifactPath)
	res.PlayArtifact = replyIndex
	if syn.PrimaryErr != nil {
		m.observer.ObserveFallback(syn.Provider)
		res.Notices = append(res.Notices, Notice{Level: LevelSuccess, Code: "fallback_speech", Message: "Speech generated using " + providerLabel(syn.Provider) + " TTS"})
	}
	logger.Info("turn complete", zap.String("provider", syn.Provider), zap.Int("turn_index", replyIndex))
	res.Notices = append(res.Notices, Notice{Level: LevelSuccess, Code: "turn_complete", Message: "Voice message processed successfully!"})
	return res
}

func (m *Manager) clearPendingSpeech() {
	m.mu.Lock()
	m.pendingSpeech = ""
	m.mu.Unlock()
}

func (m *Manager) observeFailure(stage string, err error) {
	var pe *reliability.ProviderError
	if errors.As(err, &pe) {
		m.observer.ObserveProviderError(stage, pe.Kind)
	}
}

func failureNotice(code, message string, err error) Notice {
	return Notice{Level: LevelError, Code: code, Message: message + " (" + policy.RedactSecrets(err.Error()) + ")"}
}

func primarySpeechNotice(err error) Notice {
	n := Notice{Level: LevelWarning}
	switch {
	case errors.Is(err, reliability.ErrNotConfigured):
		n.Code = "primary_tts_not_configured"
		n.Message = "Groq API is not configured. Using fallback TTS."
	case reliability.KindOf(err) == reliability.KindTermsRequired:
		n.Code = "primary_tts_terms_required"
		n.Message = "Groq PlayAI TTS requires terms acceptance. Using fallback TTS instead..."
	case reliability.KindOf(err) == reliability.KindQuotaExceeded:
		n.Code = "primary_tts_rate_limited"
		n.Message = "Groq TTS rate limit reached. Using fallback TTS instead..."
	default:
		n.Code = "primary_tts_unavailable"
		n.Message = "Groq TTS temporarily unavailable. Using fallback TTS instead..."
	}
	return n
}

func speechFailureNotice(err error) Notice {
	switch {
	case errors.Is(err, voice.ErrFallbackUnavailable):
		return Notice{Level: LevelError, Code: "fallback_tts_not_configured", Message: "Fallback TTS is not configured. Add DEEPGRAM_API_KEY to enable it."}
	case errors.Is(err, voice.ErrNothingToSpeak):
		return Notice{Level: LevelWarning, Code: "nothing_to_speak", Message: "The reply has no speakable text."}
	default:
		return failureNotice("synthesis_failed", "Failed to generate speech.", err)
	}
}

func providerLabel(name string) string {
	switch name {
	case voice.ProviderDeepgram:
		return "Deepgram"
	case voice.ProviderGroq:
		return "Groq"
	default:
		return name
	}
}
