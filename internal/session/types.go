package session

import (
	"context"
	"errors"
	"time"

	"github.com/ent0n29/voicebot/internal/audio"
	"github.com/ent0n29/voicebot/internal/llm"
	"github.com/ent0n29/voicebot/internal/reliability"
	"github.com/ent0n29/voicebot/internal/voice"
)

// ErrConversationNotFound is returned when an archived conversation id does not exist.
var ErrConversationNotFound = errors.New("conversation not found")

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// InputVoice marks a user turn that came from a recording.
const InputVoice = "voice"

// Turn is one message of a conversation. InputMethod is a UI annotation and never reaches the model.
type Turn struct {
	Role        Role   `json:"role"`
	Content     string `json:"content"`
	InputMethod string `json:"input_method,omitempty"`
}

// Conversation is an archived, named sequence of turns.
type Conversation struct {
	ID        int    `json:"id"`
	Title     string `json:"title"`
	Turns     []Turn `json:"turns"`
	Timestamp string `json:"timestamp"`
}

type State string

const (
	StateIdle         State = "idle"
	StateRecording    State = "recording"
	StateTranscribing State = "transcribing"
	StateGenerating   State = "generating"
	StateSynthesizing State = "synthesizing"
)

type NoticeLevel string

const (
	LevelInfo    NoticeLevel = "info"
	LevelSuccess NoticeLevel = "success"
	LevelWarning NoticeLevel = "warning"
	LevelError   NoticeLevel = "error"
)

// Notice is an operator-facing message attached to an intent result.
type Notice struct {
	Level   NoticeLevel `json:"level"`
	Code    string      `json:"code"`
	Message string      `json:"message"`
}

// TurnView is a turn as rendered in a snapshot.
type TurnView struct {
	Index       int    `json:"index"`
	Role        Role   `json:"role"`
	Content     string `json:"content"`
	InputMethod string `json:"input_method,omitempty"`
	HasArtifact bool   `json:"has_artifact"`
}

// ConversationSummary is an archive entry as rendered in a snapshot.
type ConversationSummary struct {
	ID        int    `json:"id"`
	Title     string `json:"title"`
	Timestamp string `json:"timestamp"`
	TurnCount int    `json:"turn_count"`
}

// Snapshot is a consistent copy of the session state.
type Snapshot struct {
	State         State                 `json:"state"`
	Recording     bool                  `json:"recording"`
	PendingSpeech string                `json:"pending_speech,omitempty"`
	Turns         []TurnView            `json:"turns"`
	Conversations []ConversationSummary `json:"conversations"`
}

type IntentKind string

const (
	IntentStartRecording     IntentKind = "start_recording"
	IntentStopRecording      IntentKind = "stop_recording"
	IntentNewConversation    IntentKind = "new_conversation"
	IntentLoadConversation   IntentKind = "load_conversation"
	IntentDeleteConversation IntentKind = "delete_conversation"
	IntentCleanupArtifacts   IntentKind = "cleanup_artifacts"
	IntentSnapshot           IntentKind = "snapshot"
)

// Intent is a command emitted by the presentation layer.
type Intent struct {
	Kind           IntentKind
	ConversationID int
}

// Result answers one intent.
type Result struct {
	Intent IntentKind `json:"intent"`
	OK     bool       `json:"ok"`
	TurnID string     `json:"turn_id,omitempty"`
	// PlayArtifact is the turn index whose artifact should be played now, or -1.
	PlayArtifact int      `json:"play_artifact"`
	Notices      []Notice `json:"notices"`
	Snapshot     Snapshot `json:"snapshot"`
}

// StateChange is published to the state hook on every transition.
type StateChange struct {
	From   State  `json:"from"`
	To     State  `json:"to"`
	TurnID string `json:"turn_id,omitempty"`
}

// Recorder captures one recording at a time.
type Recorder interface {
	Start() bool
	Stop() (audio.Buffer, bool)
}

// Responder produces the assistant reply for an utterance.
type Responder interface {
	Generate(ctx context.Context, utterance string, history []llm.Message) (string, error)
}

// Synthesizer turns a reply into an audio artifact.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (voice.Synthesis, error)
}

// Observer receives pipeline measurements.
type Observer interface {
	ObserveStage(stage string, d time.Duration)
	ObserveProviderError(stage string, kind reliability.Kind)
	ObserveFallback(provider string)
}

type nopObserver struct{}

func (nopObserver) ObserveStage(string, time.Duration)             {}
func (nopObserver) ObserveProviderError(string, reliability.Kind) {}
func (nopObserver) ObserveFallback(string)                         {}
