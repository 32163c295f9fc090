package httpapi

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ent0n29/voicebot/internal/audio"
	"github.com/ent0n29/voicebot/internal/protocol"
	"github.com/ent0n29/voicebot/internal/session"
)

const (
	clientOutboundBuffer = 64
	wsWriteTimeout       = 10 * time.Second
	wsReadTimeout        = 120 * time.Second
)

type wsClient struct {
	id       string
	outbound chan any
}

// hub fans outbound events out to every connected websocket client.
type hub struct {
	mu      sync.RWMutex
	clients map[string]*wsClient
}

func newHub() *hub {
	return &hub{clients: make(map[string]*wsClient)}
}

func (h *hub) add(c *wsClient) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.id] = c
	return len(h.clients)
}

func (h *hub) remove(id string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, id)
	return len(h.clients)
}

func (h *hub) count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// publish queues msg on every client and returns how many queues were full.
func (h *hub) publish(msg any) (dropped int) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		select {
		case c.outbound <- msg:
		default:
			dropped++
		}
	}
	return dropped
}

func (s *Server) broadcast(msg any) {
	if dropped := s.hub.publish(msg); dropped > 0 {
		s.logger.Warn("websocket outbound queue full", zap.String("type", string(messageTypeOf(msg))), zap.Int("dropped", dropped))
	}
}

func (s *Server) send(c *wsClient, msg any) {
	select {
	case c.outbound <- msg:
	default:
		s.logger.Warn("websocket outbound queue full", zap.String("connection_id", c.id), zap.String("type", string(messageTypeOf(msg))))
	}
}

func (s *Server) handleSessionWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	client := &wsClient{id: uuid.NewString(), outbound: make(chan any, clientOutboundBuffer)}
	active := s.hub.add(client)
	s.setActiveConnections(active)
	logger := s.logger.With(zap.String("connection_id", client.id))
	logger.Info("websocket connected")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// New clients start from the current state.
	s.send(client, protocol.NewIntentResult(session.Result{
		Intent:       session.IntentSnapshot,
		OK:           true,
		PlayArtifact: -1,
		Snapshot:     s.sessions.Snapshot(),
	}))

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-client.outbound:
				raw, err := protocol.Encode(msg)
				if err != nil {
					logger.Error("encode outbound message", zap.Error(err))
					continue
				}
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
				if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
					cancel()
					return
				}
				s.countMessage("outbound", messageTypeOf(msg))
			}
		}
	}()

	conn.SetReadLimit(2 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		return nil
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		if msgType != websocket.TextMessage {
			continue
		}
		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			s.send(client, protocol.NewErrorEvent("invalid_client_message", err.Error()))
			continue
		}
		s.countMessage("inbound", messageTypeOf(parsed))

		switch msg := parsed.(type) {
		case protocol.ClientAudioChunk:
			s.pushAudio(client, logger, msg)
		case session.Intent:
			// Results reach this client through the broadcast.
			s.dispatch(ctx, msg)
		}
	}

	s.setActiveConnections(s.hub.remove(client.id))
	cancel()
	<-writerDone
	logger.Info("websocket disconnected")
}

func (s *Server) pushAudio(client *wsClient, logger *zap.Logger, chunk protocol.ClientAudioChunk) {
	if s.input == nil {
		s.send(client, protocol.NewErrorEvent("audio_input_unavailable", "this server does not accept browser audio"))
		return
	}
	samples, err := chunk.Samples()
	if err != nil {
		s.send(client, protocol.NewErrorEvent("invalid_client_message", err.Error()))
		return
	}
	err = s.input.Push(samples, chunk.SampleRate)
	switch {
	case err == nil:
	case errors.Is(err, audio.ErrNotCapturing):
		// Trailing chunks after stop are expected.
	case errors.Is(err, audio.ErrFrameDropped):
		logger.Debug("audio frame dropped", zap.Int("seq", chunk.Seq))
	default:
		s.send(client, protocol.NewErrorEvent("invalid_audio_chunk", err.Error()))
	}
}

func (s *Server) setActiveConnections(n int) {
	if s.metrics != nil {
		s.metrics.ActiveConnections.Set(float64(n))
	}
}

func (s *Server) countMessage(direction string, t protocol.MessageType) {
	if s.metrics != nil && t != "" {
		s.metrics.WSMessages.WithLabelValues(direction, string(t)).Inc()
	}
}

func messageTypeOf(v any) protocol.MessageType {
	switch m := v.(type) {
	case protocol.ClientAudioChunk:
		return m.Type
	case session.Intent:
		return protocol.TypeIntent
	case protocol.StateChanged:
		return m.Type
	case protocol.IntentResult:
		return m.Type
	case protocol.ErrorEvent:
		return m.Type
	default:
		return ""
	}
}
