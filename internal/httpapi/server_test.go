package httpapi

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ent0n29/voicebot/internal/audio"
	"github.com/ent0n29/voicebot/internal/config"
	"github.com/ent0n29/voicebot/internal/llm"
	"github.com/ent0n29/voicebot/internal/observability"
	"github.com/ent0n29/voicebot/internal/session"
	"github.com/ent0n29/voicebot/internal/voice"
)

type testServer struct {
	*httptest.Server
	input    *audio.PushDevice
	sessions *session.Manager
	metrics  *observability.Metrics
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	cfg := config.Config{
		AudioInput:  "browser",
		ArtifactDir: t.TempDir(),
	}
	input := audio.NewPushDevice()
	capture := audio.NewCapture(input, audio.CaptureConfig{
		Format:              audio.Format{SampleRate: 16000, Channels: 1, FramesPerChunk: 1024},
		PollInterval:        5 * time.Millisecond,
		MaxRecordingSeconds: 5,
	}, nil)
	metrics := observability.NewMetrics("test_httpapi")
	sessions := session.NewManager(session.Config{
		Recorder:    capture,
		Transcriber: voice.NewMockTranscriber(),
		Responder:   llm.NewMock(),
		Synthesizer: voice.NewSynthesizer(voice.NewMockSpeaker(), nil, cfg.ArtifactDir, nil),
		Observer:    metrics,
	})
	srv := New(Options{
		Config:   cfg,
		Sessions: sessions,
		Input:    input,
		Providers: Providers{
			Mode:        "mock",
			Transcriber: voice.ProviderMock,
			Responder:   voice.ProviderMock,
			PrimaryTTS:  voice.ProviderMock,
		},
		Metrics: metrics,
	})
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(func() {
		ts.Close()
		_, _ = sessions.CleanupArtifacts()
	})
	return &testServer{Server: ts, input: input, sessions: sessions, metrics: metrics}
}

// speak pushes a short tone once the recording has opened the input.
func (ts *testServer) speak(t *testing.T) {
	t.Helper()
	waitFor(t, ts.input.Capturing)
	samples := make([]float32, 3200)
	for i := range samples {
		samples[i] = float32(0.3 * math.Sin(2*math.Pi*220*float64(i)/16000))
	}
	if err := ts.input.Push(samples, 16000); err != nil {
		t.Fatalf("Push() error = %v", err)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met before deadline")
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func postJSON(t *testing.T, url, body string) (int, map[string]any) {
	t.Helper()
	res, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s error = %v", url, err)
	}
	defer res.Body.Close()
	return res.StatusCode, decodeBody(t, res.Body)
}

func doRequest(t *testing.T, method, url string) (int, map[string]any) {
	t.Helper()
	req, _ := http.NewRequest(method, url, nil)
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s error = %v", method, url, err)
	}
	defer res.Body.Close()
	return res.StatusCode, decodeBody(t, res.Body)
}

func decodeBody(t *testing.T, r io.Reader) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.NewDecoder(r).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func snapshotOf(t *testing.T, payload map[string]any) map[string]any {
	t.Helper()
	snap, ok := payload["snapshot"].(map[string]any)
	if !ok {
		t.Fatalf("missing snapshot in %+v", payload)
	}
	return snap
}

func TestUIRoutes(t *testing.T) {
	ts := newTestServer(t)

	client := &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	rootRes, err := client.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("GET / error = %v", err)
	}
	defer rootRes.Body.Close()
	if rootRes.StatusCode != http.StatusTemporaryRedirect {
		t.Fatalf("GET / status = %d, want %d", rootRes.StatusCode, http.StatusTemporaryRedirect)
	}
	if got := rootRes.Header.Get("Location"); got != "/ui/" {
		t.Fatalf("GET / location = %q, want %q", got, "/ui/")
	}

	uiRes, err := http.Get(ts.URL + "/ui/")
	if err != nil {
		t.Fatalf("GET /ui/ error = %v", err)
	}
	defer uiRes.Body.Close()
	if uiRes.StatusCode != http.StatusOK {
		t.Fatalf("GET /ui/ status = %d, want %d", uiRes.StatusCode, http.StatusOK)
	}
	if got := uiRes.Header.Get("Cache-Control"); got != "no-cache" {
		t.Fatalf("GET /ui/ Cache-Control = %q, want no-cache", got)
	}
	var body bytes.Buffer
	if _, err := body.ReadFrom(uiRes.Body); err != nil {
		t.Fatalf("reading /ui/ body failed: %v", err)
	}
	if !strings.Contains(body.String(), `id="record"`) {
		t.Fatalf("GET /ui/ body missing expected content")
	}
}

func TestHealthAndStatus(t *testing.T) {
	ts := newTestServer(t)

	status, payload := doRequest(t, http.MethodGet, ts.URL+"/healthz")
	if status != http.StatusOK || payload["status"] != "ok" || payload["session_state"] != "idle" {
		t.Fatalf("healthz = %d %+v", status, payload)
	}

	status, payload = doRequest(t, http.MethodGet, ts.URL+"/v1/status")
	if status != http.StatusOK {
		t.Fatalf("status code = %d", status)
	}
	if payload["voice_mode"] != "mock" || payload["audio_input"] != "browser" {
		t.Fatalf("status = %+v", payload)
	}
	checks, _ := payload["checks"].([]any)
	byID := map[string]string{}
	for _, c := range checks {
		m := c.(map[string]any)
		byID[m["id"].(string)], _ = m["status"].(string)
	}
	if byID["groq_key"] != "warn" || byID["deepgram_key"] != "warn" || byID["artifact_dir"] != "ok" {
		t.Fatalf("checks = %+v", byID)
	}
}

func TestTurnOverHTTP(t *testing.T) {
	ts := newTestServer(t)

	status, payload := postJSON(t, ts.URL+"/v1/intents", `{"intent":"start_recording"}`)
	if status != http.StatusOK || payload["ok"] != true {
		t.Fatalf("start = %d %+v", status, payload)
	}
	if snapshotOf(t, payload)["state"] != "recording" {
		t.Fatalf("state after start = %v", snapshotOf(t, payload)["state"])
	}

	ts.speak(t)

	status, payload = postJSON(t, ts.URL+"/v1/recording/stop", "")
	if status != http.StatusOK || payload["ok"] != true {
		t.Fatalf("stop = %d %+v", status, payload)
	}
	if payload["play_artifact"] != "/v1/artifacts/1" {
		t.Fatalf("play_artifact = %v", payload["play_artifact"])
	}
	snap := snapshotOf(t, payload)
	turns, _ := snap["turns"].([]any)
	if len(turns) != 2 || snap["state"] != "idle" {
		t.Fatalf("snapshot = %+v", snap)
	}
	user := turns[0].(map[string]any)
	if user["input_method"] != "voice" || !strings.HasPrefix(user["content"].(string), "simulated voice input") {
		t.Fatalf("user turn = %+v", user)
	}

	res, err := http.Get(ts.URL + "/v1/artifacts/1")
	if err != nil {
		t.Fatalf("GET artifact error = %v", err)
	}
	wav, _ := io.ReadAll(res.Body)
	res.Body.Close()
	if res.StatusCode != http.StatusOK || res.Header.Get("Content-Type") != "audio/wav" {
		t.Fatalf("artifact = %d %q", res.StatusCode, res.Header.Get("Content-Type"))
	}
	if len(wav) < 44 || string(wav[:4]) != "RIFF" {
		t.Fatalf("artifact is not a wav file")
	}

	status, payload = postJSON(t, ts.URL+"/v1/conversations/new", "")
	convs, _ := snapshotOf(t, payload)["conversations"].([]any)
	if status != http.StatusOK || len(convs) != 1 {
		t.Fatalf("new conversation = %d %+v", status, payload)
	}
	title := convs[0].(map[string]any)["title"].(string)
	if !strings.HasPrefix(title, "🎤 ") {
		t.Fatalf("title = %q", title)
	}

	status, payload = postJSON(t, ts.URL+"/v1/conversations/1/load", "")
	if status != http.StatusOK || payload["ok"] != true || len(snapshotOf(t, payload)["turns"].([]any)) != 2 {
		t.Fatalf("load = %d %+v", status, payload)
	}

	status, payload = doRequest(t, http.MethodDelete, ts.URL+"/v1/conversations/1")
	convs, _ = snapshotOf(t, payload)["conversations"].([]any)
	if status != http.StatusOK || len(convs) != 0 {
		t.Fatalf("delete = %d %+v", status, payload)
	}

	status, payload = postJSON(t, ts.URL+"/v1/artifacts/cleanup", "")
	if status != http.StatusOK || payload["ok"] != true {
		t.Fatalf("cleanup = %d %+v", status, payload)
	}
	if status, _ := doRequest(t, http.MethodGet, ts.URL+"/v1/artifacts/1"); status != http.StatusNotFound {
		t.Fatalf("artifact after cleanup status = %d, want 404", status)
	}

	status, payload = doRequest(t, http.MethodGet, ts.URL+"/v1/perf/latency")
	if status != http.StatusOK {
		t.Fatalf("perf status = %d", status)
	}
	if stages, _ := payload["stages"].([]any); len(stages) == 0 {
		t.Fatalf("perf stages empty after a turn: %+v", payload)
	}
}

func TestStopWithoutAudio(t *testing.T) {
	ts := newTestServer(t)

	postJSON(t, ts.URL+"/v1/recording/start", "")
	waitFor(t, ts.input.Capturing)
	status, payload := postJSON(t, ts.URL+"/v1/recording/stop", "")
	if status != http.StatusOK || payload["ok"] != false {
		t.Fatalf("stop = %d %+v", status, payload)
	}
	notices, _ := payload["notices"].([]any)
	if len(notices) == 0 || notices[0].(map[string]any)["code"] != "no_audio" {
		t.Fatalf("notices = %+v", notices)
	}
	if snapshotOf(t, payload)["state"] != "idle" {
		t.Fatalf("state = %v", snapshotOf(t, payload)["state"])
	}
}

func TestRejectsInvalidRequests(t *testing.T) {
	ts := newTestServer(t)

	cases := []struct {
		method string
		path   string
		body   string
		want   int
	}{
		{http.MethodPost, "/v1/intents", `{"intent":"dance"}`, http.StatusBadRequest},
		{http.MethodPost, "/v1/intents", `{"intent":"load_conversation"}`, http.StatusBadRequest},
		{http.MethodPost, "/v1/intents", ``, http.StatusBadRequest},
		{http.MethodPost, "/v1/conversations/abc/load", ``, http.StatusBadRequest},
		{http.MethodDelete, "/v1/conversations/0", ``, http.StatusBadRequest},
		{http.MethodGet, "/v1/artifacts/-1", ``, http.StatusBadRequest},
		{http.MethodGet, "/v1/artifacts/7", ``, http.StatusNotFound},
	}
	for _, tc := range cases {
		req, _ := http.NewRequest(tc.method, ts.URL+tc.path, strings.NewReader(tc.body))
		res, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("%s %s error = %v", tc.method, tc.path, err)
		}
		payload := decodeBody(t, res.Body)
		res.Body.Close()
		if res.StatusCode != tc.want {
			t.Fatalf("%s %s status = %d, want %d", tc.method, tc.path, res.StatusCode, tc.want)
		}
		if payload["code"] == "" {
			t.Fatalf("%s %s missing error code", tc.method, tc.path)
		}
	}

	status, payload := postJSON(t, ts.URL+"/v1/conversations/9/load", "")
	if status != http.StatusOK || payload["ok"] != false {
		t.Fatalf("load missing = %d %+v", status, payload)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	postJSON(t, ts.URL+"/v1/intents", `{"intent":"snapshot"}`)

	res, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics error = %v", err)
	}
	defer res.Body.Close()
	body, _ := io.ReadAll(res.Body)
	if !strings.Contains(string(body), `test_httpapi_intents_total{intent="snapshot",ok="true"} 1`) {
		t.Fatalf("metrics missing intent counter:\n%s", body)
	}
}

type wsEvent struct {
	Type     string           `json:"type"`
	Intent   string           `json:"intent"`
	OK       bool             `json:"ok"`
	From     string           `json:"from"`
	To       string           `json:"to"`
	Code     string           `json:"code"`
	Snapshot protocolSnapshot `json:"snapshot"`
}

type protocolSnapshot struct {
	State string           `json:"state"`
	Turns []map[string]any `json:"turns"`
}

func readEvent(t *testing.T, conn *websocket.Conn) wsEvent {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var evt wsEvent
	if err := conn.ReadJSON(&evt); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	return evt
}

// readUntil skips events until one matches.
func readUntil(t *testing.T, conn *websocket.Conn, match func(wsEvent) bool) wsEvent {
	t.Helper()
	for i := 0; i < 32; i++ {
		if evt := readEvent(t, conn); match(evt) {
			return evt
		}
	}
	t.Fatalf("no matching websocket event")
	return wsEvent{}
}

func TestWebsocketTurn(t *testing.T) {
	ts := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/session/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	first := readEvent(t, conn)
	if first.Type != "intent_result" || first.Intent != "snapshot" || first.Snapshot.State != "idle" {
		t.Fatalf("first event = %+v", first)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"nope"}`)); err != nil {
		t.Fatalf("write error = %v", err)
	}
	if evt := readEvent(t, conn); evt.Type != "error_event" || evt.Code != "invalid_client_message" {
		t.Fatalf("error event = %+v", evt)
	}

	_ = conn.WriteJSON(map[string]any{"type": "intent", "intent": "start_recording"})
	changed := readUntil(t, conn, func(e wsEvent) bool { return e.Type == "state_changed" })
	if changed.From != "idle" || changed.To != "recording" {
		t.Fatalf("state_changed = %+v", changed)
	}
	readUntil(t, conn, func(e wsEvent) bool { return e.Type == "intent_result" && e.Intent == "start_recording" })

	waitFor(t, ts.input.Capturing)
	pcm := make([]byte, 3200)
	for i := 0; i < len(pcm); i += 2 {
		pcm[i+1] = 0x20
	}
	_ = conn.WriteJSON(map[string]any{
		"type":         "client_audio_chunk",
		"seq":          0,
		"pcm16_base64": base64.StdEncoding.EncodeToString(pcm),
		"sample_rate":  16000,
	})
	// Messages on one connection are handled in order, so the chunk lands before stop.
	_ = conn.WriteJSON(map[string]any{"type": "intent", "intent": "stop_recording"})
	result := readUntil(t, conn, func(e wsEvent) bool { return e.Type == "intent_result" && e.Intent == "stop_recording" })
	if !result.OK || len(result.Snapshot.Turns) != 2 || result.Snapshot.State != "idle" {
		t.Fatalf("stop result = %+v", result)
	}
	if result.Snapshot.Turns[1]["artifact_url"] != "/v1/artifacts/1" {
		t.Fatalf("assistant turn = %+v", result.Snapshot.Turns[1])
	}
}
