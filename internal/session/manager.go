package session

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ent0n29/voicebot/internal/llm"
	"github.com/ent0n29/voicebot/internal/logging"
	"github.com/ent0n29/voicebot/internal/voice"
)

const (
	titleMarker       = "🎤 "
	titleMaxRunes     = 50
	untitledTitle     = "New Conversation"
	unknownTimestamp  = "Unknown"
	timestampLayout   = "15:04"
	firstConversation = 1
)

// Config wires the providers a Manager drives.
type Config struct {
	Recorder    Recorder
	Transcriber voice.Transcriber
	Responder   Responder
	Synthesizer Synthesizer
	Observer    Observer
	Logger      *zap.Logger
	Now         func() time.Time
}

// Manager owns the active conversation, the archive and the turn pipeline.
// Intents are serialized; snapshots may be read while a pipeline runs.
type Manager struct {
	recorder    Recorder
	transcriber voice.Transcriber
	responder   Responder
	synthesizer Synthesizer
	observer    Observer
	logger      *zap.Logger
	now         func() time.Time

	dispatchMu sync.Mutex
	closed     bool // guarded by dispatchMu

	mu            sync.RWMutex
	state         State
	turns         []Turn
	pendingSpeech string
	lastReplyAt   string
	artifacts     map[int]string
	orphans       []string
	conversations []Conversation
	nextID        int
	onState       func(StateChange)
}

func NewManager(cfg Config) *Manager {
	if cfg.Observer == nil {
		cfg.Observer = nopObserver{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Manager{
		recorder:    cfg.Recorder,
		transcriber: cfg.Transcriber,
		responder:   cfg.Responder,
		synthesizer: cfg.Synthesizer,
		observer:    cfg.Observer,
		logger:      logging.OrNop(cfg.Logger),
		now:         cfg.Now,
		state:       StateIdle,
		artifacts:   make(map[int]string),
		nextID:      firstConversation,
	}
}

// SetStateHook registers a callback invoked after every state transition.
func (m *Manager) SetStateHook(hook func(StateChange)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onState = hook
}

func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Turns returns a copy of the active conversation.
func (m *Manager) Turns() []Turn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return cloneTurns(m.turns)
}

// Conversations returns a deep copy of the archive, most recent first.
func (m *Manager) Conversations() []Conversation {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Conversation, len(m.conversations))
	for i, c := range m.conversations {
		out[i] = cloneConversation(c)
	}
	return out
}

// Snapshot returns a consistent view of the session.
func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked()
}

func (m *Manager) snapshotLocked() Snapshot {
	turns := make([]TurnView, len(m.turns))
	for i, t := range m.turns {
		_, has := m.artifacts[i]
		turns[i] = TurnView{
			Index:       i,
			Role:        t.Role,
			Content:     t.Content,
			InputMethod: t.InputMethod,
			HasArtifact: has,
		}
	}
	convs := make([]ConversationSummary, len(m.conversations))
	for i, c := range m.conversations {
		convs[i] = ConversationSummary{
			ID:        c.ID,
			Title:     c.Title,
			Timestamp: c.Timestamp,
			TurnCount: len(c.Turns),
		}
	}
	return Snapshot{
		State:         m.state,
		Recording:     m.state == StateRecording,
		PendingSpeech: m.pendingSpeech,
		Turns:         turns,
		Conversations: convs,
	}
}

// Archive moves the active turns into a new archived conversation and clears the session.
// It returns false without consuming an id when there is nothing to archive.
func (m *Manager) Archive() (Conversation, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.turns) == 0 {
		return Conversation{}, false
	}

	timestamp := m.lastReplyAt
	if timestamp == "" {
		timestamp = unknownTimestamp
	}
	conv := Conversation{
		ID:        m.nextID,
		Title:     Title(m.turns),
		Turns:     cloneTurns(m.turns),
		Timestamp: timestamp,
	}
	m.nextID++
	m.conversations = append([]Conversation{conv}, m.conversations...)
	m.resetActiveLocked()
	return cloneConversation(conv), true
}

// Load replaces the active turns with a copy of an archived conversation.
func (m *Manager) Load(id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.conversations {
		if c.ID != id {
			continue
		}
		m.resetActiveLocked()
		m.turns = cloneTurns(c.Turns)
		if c.Timestamp != unknownTimestamp {
			m.lastReplyAt = c.Timestamp
		}
		return nil
	}
	return ErrConversationNotFound
}

// Delete removes an archived conversation. It reports whether one was removed.
func (m *Manager) Delete(id int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, c := range m.conversations {
		if c.ID == id {
			m.conversations = append(m.conversations[:i:i], m.conversations[i+1:]...)
			return true
		}
	}
	return false
}

// resetActiveLocked clears the active turns. Artifacts of replaced turns stay tracked as orphans.
func (m *Manager) resetActiveLocked() {
	for _, path := range m.artifacts {
		m.orphans = append(m.orphans, path)
	}
	m.artifacts = make(map[int]string)
	m.turns = nil
	m.pendingSpeech = ""
	m.lastReplyAt = ""
}

func (m *Manager) appendTurn(t Turn) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = append(m.turns, t)
	return len(m.turns) - 1
}

// appendReply commits an assistant turn, stamps the reply time and marks it pending synthesis.
func (m *Manager) appendReply(text string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = append(m.turns, Turn{Role: RoleAssistant, Content: text})
	m.lastReplyAt = m.now().Format(timestampLayout)
	m.pendingSpeech = text
	return len(m.turns) - 1
}

// historyBefore returns the turns preceding index as model messages.
func (m *Manager) historyBefore(index int) []llm.Message {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if index > len(m.turns) {
		index = len(m.turns)
	}
	out := make([]llm.Message, 0, index)
	for _, t := range m.turns[:index] {
		out = append(out, llm.Message{Role: string(t.Role), Content: t.Content})
	}
	return out
}

func (m *Manager) setState(to State, turnID string) {
	m.mu.Lock()
	from := m.state
	m.state = to
	hook := m.onState
	m.mu.Unlock()

	if from == to {
		return
	}
	m.logger.Debug("session state changed",
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.String("turn_id", turnID),
	)
	if hook != nil {
		hook(StateChange{From: from, To: to, TurnID: turnID})
	}
}

// Title derives a conversation title from its first user turn.
func Title(turns []Turn) string {
	for _, t := range turns {
		if t.Role != RoleUser {
			continue
		}
		runes := []rune(t.Content)
		if len(runes) > titleMaxRunes {
			return titleMarker + string(runes[:titleMaxRunes]) + "..."
		}
		return titleMarker + t.Content
	}
	return untitledTitle
}

func cloneTurns(in []Turn) []Turn {
	if in == nil {
		return nil
	}
	out := make([]Turn, len(in))
	copy(out, in)
	return out
}

func cloneConversation(c Conversation) Conversation {
	c.Turns = cloneTurns(c.Turns)
	return c
}
