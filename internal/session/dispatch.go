package session

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"
)

// ParseIntentKind validates an intent name.
func ParseIntentKind(name string) (IntentKind, error) {
	switch k := IntentKind(name); k {
	case IntentStartRecording, IntentStopRecording, IntentNewConversation, IntentLoadConversation,
		IntentDeleteConversation, IntentCleanupArtifacts, IntentSnapshot:
		return k, nil
	default:
		return "", fmt.Errorf("unsupported intent %q", name)
	}
}

// Dispatch runs one intent and answers with its outcome and a snapshot taken afterwards.
// Intents run one at a time.
func (m *Manager) Dispatch(ctx context.Context, in Intent) Result {
	m.dispatchMu.Lock()
	defer m.dispatchMu.Unlock()

	var res Result
	if m.closed {
		res = newResult(in.Kind)
		res.Notices = append(res.Notices, Notice{Level: LevelError, Code: "session_closed", Message: "The voice session is shutting down."})
		res.Snapshot = m.Snapshot()
		return res
	}
	switch in.Kind {
	case IntentStartRecording:
		res = m.startRecording()
	case IntentStopRecording:
		res = m.runTurn(ctx)
	case IntentNewConversation:
		res = m.newConversation()
	case IntentLoadConversation:
		res = m.loadConversation(in.ConversationID)
	case IntentDeleteConversation:
		res = m.deleteConversation(in.ConversationID)
	case IntentCleanupArtifacts:
		res = m.cleanupArtifacts()
	case IntentSnapshot:
		res = newResult(IntentSnapshot)
		res.OK = true
	default:
		res = newResult(in.Kind)
		res.Notices = append(res.Notices, Notice{Level: LevelError, Code: "unsupported_intent", Message: fmt.Sprintf("unsupported intent %q", in.Kind)})
	}
	res.Snapshot = m.Snapshot()
	return res
}

func newResult(kind IntentKind) Result {
	return Result{Intent: kind, PlayArtifact: -1, Notices: []Notice{}}
}

func (m *Manager) newConversation() Result {
	res := newResult(IntentNewConversation)
	res.OK = true
	if conv, ok := m.Archive(); ok {
		res.Notices = append(res.Notices, Notice{Level: LevelInfo, Code: "conversation_archived", Message: "Saved conversation #" + strconv.Itoa(conv.ID) + ": " + conv.Title})
	}
	return res
}

func (m *Manager) loadConversation(id int) Result {
	res := newResult(IntentLoadConversation)
	if err := m.Load(id); err != nil {
		res.Notices = append(res.Notices, Notice{Level: LevelError, Code: "conversation_not_found", Message: fmt.Sprintf("Conversation %d not found.", id)})
		return res
	}
	res.OK = true
	return res
}

func (m *Manager) deleteConversation(id int) Result {
	res := newResult(IntentDeleteConversation)
	res.OK = true
	if !m.Delete(id) {
		res.Notices = append(res.Notices, Notice{Level: LevelInfo, Code: "conversation_not_found", Message: fmt.Sprintf("Conversation %d not found.", id)})
	}
	return res
}

func (m *Manager) cleanupArtifacts() Result {
	res := newResult(IntentCleanupArtifacts)
	res.OK = true
	removed, err := m.CleanupArtifacts()
	if err != nil {
		res.Notices = append(res.Notices, failureNotice("cleanup_failed", "Error cleaning up audio files.", err))
		res.Notices[len(res.Notices)-1].Level = LevelWarning
		return res
	}
	res.Notices = append(res.Notices, Notice{Level: LevelSuccess, Code: "artifacts_cleaned", Message: fmt.Sprintf("Audio files cleaned up! (%d removed)", removed)})
	return res
}

// Close waits for the intent in flight, discards an active recording and rejects later intents.
// The recorder's device is released before Close returns.
func (m *Manager) Close() {
	m.dispatchMu.Lock()
	defer m.dispatchMu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	if m.State() == StateRecording {
		if buf, ok := m.recorder.Stop(); ok {
			m.logger.Info("recording discarded on close", zap.Duration("audio", buf.Duration()))
		}
		m.setState(StateIdle, "")
	}
}
