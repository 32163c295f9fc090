package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ent0n29/voicebot/internal/audio"
	"github.com/ent0n29/voicebot/internal/config"
	"github.com/ent0n29/voicebot/internal/logging"
	"github.com/ent0n29/voicebot/internal/observability"
	"github.com/ent0n29/voicebot/internal/protocol"
	"github.com/ent0n29/voicebot/internal/session"
)

const maxRequestBody = 1 << 20

// Sessions is the conversation core driven by the HTTP surface.
type Sessions interface {
	Dispatch(ctx context.Context, in session.Intent) session.Result
	Snapshot() session.Snapshot
	ArtifactPath(index int) (string, bool)
	SetStateHook(hook func(session.StateChange))
}

// Providers describes the resolved backends for the status endpoint.
type Providers struct {
	Mode        string
	Transcriber string
	Responder   string
	PrimaryTTS  string
	FallbackTTS string
}

type Options struct {
	Config    config.Config
	Sessions  Sessions
	Input     *audio.PushDevice
	Providers Providers
	Metrics   *observability.Metrics
	Logger    *zap.Logger
}

type Server struct {
	cfg       config.Config
	sessions  Sessions
	input     *audio.PushDevice
	providers Providers
	metrics   *observability.Metrics
	logger    *zap.Logger
	hub       *hub
	upgrader  websocket.Upgrader
	static    http.Handler
}

func New(opts Options) *Server {
	cfg := opts.Config
	s := &Server{
		cfg:       cfg,
		sessions:  opts.Sessions,
		input:     opts.Input,
		providers: opts.Providers,
		metrics:   opts.Metrics,
		logger:    logging.OrNop(opts.Logger),
		hub:       newHub(),
		static:    newStaticHandler(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
	s.sessions.SetStateHook(func(c session.StateChange) {
		s.broadcast(protocol.NewStateChanged(c))
	})
	return s
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	if s.cfg.AllowAnyOrigin {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
		}))
	}

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/ui/", http.StatusTemporaryRedirect)
	})
	r.Get("/ui", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/ui/", http.StatusTemporaryRedirect)
	})
	r.Handle("/ui/*", http.StripPrefix("/ui/", s.static))

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}

	r.Get("/v1/status", s.handleStatus)
	r.Get("/v1/perf/latency", s.handlePerfLatency)
	r.Get("/v1/session", s.handleSnapshot)
	r.Get("/v1/session/ws", s.handleSessionWS)
	r.Post("/v1/intents", s.handleIntent)
	r.Post("/v1/recording/start", s.intentHandler(session.IntentStartRecording))
	r.Post("/v1/recording/stop", s.intentHandler(session.IntentStopRecording))
	r.Post("/v1/conversations/new", s.intentHandler(session.IntentNewConversation))
	r.Post("/v1/conversations/{id}/load", s.conversationHandler(session.IntentLoadConversation))
	r.Delete("/v1/conversations/{id}", s.conversationHandler(session.IntentDeleteConversation))
	r.Post("/v1/artifacts/cleanup", s.intentHandler(session.IntentCleanupArtifacts))
	r.Get("/v1/artifacts/{index}", s.handleArtifact)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"voice_mode":    s.providers.Mode,
		"audio_input":   s.cfg.AudioInput,
		"ws_clients":    s.hub.count(),
		"fallback_tts":  s.providers.FallbackTTS != "",
		"session_state": s.sessions.Snapshot().State,
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":     "ready",
		"voice_mode": s.providers.Mode,
	})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, protocol.NewSnapshotView(s.sessions.Snapshot()))
}

func (s *Server) handleIntent(w http.ResponseWriter, r *http.Request) {
	raw, err := readBody(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	in, err := protocol.ParseIntentRequest(raw)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_intent", err.Error())
		return
	}
	s.dispatchAndRespond(w, r, in)
}

func (s *Server) intentHandler(kind session.IntentKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.dispatchAndRespond(w, r, session.Intent{Kind: kind})
	}
}

func (s *Server) conversationHandler(kind session.IntentKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := protocol.ParseConversationID(chi.URLParam(r, "id"))
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid_conversation_id", err.Error())
			return
		}
		s.dispatchAndRespond(w, r, session.Intent{Kind: kind, ConversationID: id})
	}
}

func (s *Server) dispatchAndRespond(w http.ResponseWriter, r *http.Request, in session.Intent) {
	result := s.dispatch(r.Context(), in)
	respondJSON(w, http.StatusOK, result)
}

// dispatch runs an intent and publishes its result to every websocket client.
func (s *Server) dispatch(ctx context.Context, in session.Intent) protocol.IntentResult {
	res := s.sessions.Dispatch(ctx, in)
	if s.metrics != nil {
		s.metrics.ObserveIntent(string(in.Kind), res.OK)
	}
	out := protocol.NewIntentResult(res)
	s.broadcast(out)
	return out
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, errEmptyBody
	}
	defer r.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return nil, errEmptyBody
	}
	return raw, nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	raw, err := sonic.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"encode failed","code":"internal"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(raw)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
