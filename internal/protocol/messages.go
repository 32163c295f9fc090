package protocol

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"

	"github.com/bytedance/sonic"

	"github.com/ent0n29/voicebot/internal/audio"
	"github.com/ent0n29/voicebot/internal/session"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeClientAudioChunk MessageType = "client_audio_chunk"
	TypeIntent           MessageType = "intent"
	TypeStateChanged     MessageType = "state_changed"
	TypeIntentResult     MessageType = "intent_result"
	TypeErrorEvent       MessageType = "error_event"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

type ClientAudioChunk struct {
	Type        MessageType `json:"type"`
	Seq         int         `json:"seq"`
	PCM16Base64 string      `json:"pcm16_base64"`
	SampleRate  int         `json:"sample_rate"`
}

// Samples decodes the chunk payload.
func (c ClientAudioChunk) Samples() ([]float32, error) {
	pcm, err := base64.StdEncoding.DecodeString(c.PCM16Base64)
	if err != nil {
		return nil, fmt.Errorf("invalid pcm16_base64: %w", err)
	}
	if len(pcm)%2 != 0 {
		return nil, errors.New("pcm16 payload has odd length")
	}
	return audio.DecodePCM16LE(pcm), nil
}

// IntentRequest is an intent as sent over HTTP or the websocket.
type IntentRequest struct {
	Type           MessageType `json:"type,omitempty"`
	Intent         string      `json:"intent"`
	ConversationID int         `json:"conversation_id,omitempty"`
}

// ToIntent validates the request.
func (r IntentRequest) ToIntent() (session.Intent, error) {
	kind, err := session.ParseIntentKind(r.Intent)
	if err != nil {
		return session.Intent{}, err
	}
	switch kind {
	case session.IntentLoadConversation, session.IntentDeleteConversation:
		if r.ConversationID <= 0 {
			return session.Intent{}, fmt.Errorf("%s requires a positive conversation_id", kind)
		}
	}
	return session.Intent{Kind: kind, ConversationID: r.ConversationID}, nil
}

// ParseIntentRequest decodes and validates an intent request body.
func ParseIntentRequest(raw []byte) (session.Intent, error) {
	var req IntentRequest
	if err := sonic.Unmarshal(raw, &req); err != nil {
		return session.Intent{}, fmt.Errorf("invalid intent: %w", err)
	}
	return req.ToIntent()
}

// ParseConversationID parses a conversation id path parameter.
func ParseConversationID(raw string) (int, error) {
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid conversation id %q", raw)
	}
	return id, nil
}

type StateChanged struct {
	Type   MessageType   `json:"type"`
	From   session.State `json:"from"`
	To     session.State `json:"to"`
	TurnID string        `json:"turn_id,omitempty"`
}

type ErrorEvent struct {
	Type   MessageType `json:"type"`
	Code   string      `json:"code"`
	Detail string      `json:"detail"`
}

// ParseClientMessage decodes one inbound websocket frame into ClientAudioChunk or session.Intent.
func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := sonic.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeClientAudioChunk:
		var msg ClientAudioChunk
		if err := sonic.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.PCM16Base64 == "" || msg.SampleRate <= 0 {
			return nil, errors.New("invalid client_audio_chunk")
		}
		return msg, nil
	case TypeIntent:
		return ParseIntentRequest(raw)
	default:
		return nil, ErrUnsupportedType
	}
}

// Encode serializes an outbound message.
func Encode(v any) ([]byte, error) {
	return sonic.Marshal(v)
}

// TurnView is a turn as sent to clients; ArtifactURL is set while the reply audio exists.
type TurnView struct {
	Index       int          `json:"index"`
	Role        session.Role `json:"role"`
	Content     string       `json:"content"`
	InputMethod string       `json:"input_method,omitempty"`
	ArtifactURL string       `json:"artifact_url,omitempty"`
}

type SnapshotView struct {
	State         session.State                 `json:"state"`
	Recording     bool                          `json:"recording"`
	PendingSpeech string                        `json:"pending_speech,omitempty"`
	Turns         []TurnView                    `json:"turns"`
	Conversations []session.ConversationSummary `json:"conversations"`
}

type IntentResult struct {
	Type         MessageType      `json:"type"`
	Intent       string           `json:"intent"`
	OK           bool             `json:"ok"`
	TurnID       string           `json:"turn_id,omitempty"`
	PlayArtifact string           `json:"play_artifact,omitempty"`
	Notices      []session.Notice `json:"notices"`
	Snapshot     SnapshotView     `json:"snapshot"`
}

// ArtifactURL is the route serving the audio of the turn at index.
func ArtifactURL(index int) string {
	return "/v1/artifacts/" + strconv.Itoa(index)
}

func NewSnapshotView(s session.Snapshot) SnapshotView {
	turns := make([]TurnView, 0, len(s.Turns))
	for _, t := range s.Turns {
		view := TurnView{
			Index:       t.Index,
			Role:        t.Role,
			Content:     t.Content,
			InputMethod: t.InputMethod,
		}
		if t.HasArtifact {
			view.ArtifactURL = ArtifactURL(t.Index)
		}
		turns = append(turns, view)
	}
	convs := s.Conversations
	if convs == nil {
		convs = []session.ConversationSummary{}
	}
	return SnapshotView{
		State:         s.State,
		Recording:     s.Recording,
		PendingSpeech: s.PendingSpeech,
		Turns:         turns,
		Conversations: convs,
	}
}

func NewIntentResult(r session.Result) IntentResult {
	out := IntentResult{
		Type:     TypeIntentResult,
		Intent:   string(r.Intent),
		OK:       r.OK,
		TurnID:   r.TurnID,
		Notices:  r.Notices,
		Snapshot: NewSnapshotView(r.Snapshot),
	}
	if out.Notices == nil {
		out.Notices = []session.Notice{}
	}
	if r.PlayArtifact >= 0 {
		out.PlayArtifact = ArtifactURL(r.PlayArtifact)
	}
	return out
}

func NewStateChanged(c session.StateChange) StateChanged {
	return StateChanged{Type: TypeStateChanged, From: c.From, To: c.To, TurnID: c.TurnID}
}

func NewErrorEvent(code, detail string) ErrorEvent {
	return ErrorEvent{Type: TypeErrorEvent, Code: code, Detail: detail}
}
