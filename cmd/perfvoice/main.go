package main

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"

	"github.com/ent0n29/voicebot/internal/protocol"
	"github.com/ent0n29/voicebot/internal/session"
)

type options struct {
	baseURL        string
	turns          int
	chunkMS        int
	realtime       float64
	sampleRate     int
	clipSeconds    float64
	wavFiles       []string
	startDelay     time.Duration
	interTurnDelay time.Duration
	turnTimeout    time.Duration
	newConvEvery   int
	verbose        bool
}

type wsEnvelope struct {
	Type         string           `json:"type"`
	Intent       string           `json:"intent,omitempty"`
	OK           bool             `json:"ok,omitempty"`
	From         string           `json:"from,omitempty"`
	To           string           `json:"to,omitempty"`
	Code         string           `json:"code,omitempty"`
	Detail       string           `json:"detail,omitempty"`
	PlayArtifact string           `json:"play_artifact,omitempty"`
	Notices      []session.Notice `json:"notices,omitempty"`
}

type audioClip struct {
	Name       string
	PCM16LE    []byte
	SampleRate int
}

type turnReport struct {
	OK       bool
	Elapsed  time.Duration
	Artifact string
	Notices  []session.Notice
}

func main() {
	cfg, err := parseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "perfvoice: %v\n", err)
		os.Exit(2)
	}
	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "perfvoice: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags() (options, error) {
	var cfg options
	var wavRaw string
	var startDelayMS int
	var interTurnMS int
	var turnTimeoutMS int

	flag.StringVar(&cfg.baseURL, "base-url", "http://127.0.0.1:8080", "voicebot base URL")
	flag.IntVar(&cfg.turns, "turns", 5, "number of turns to replay")
	flag.IntVar(&cfg.chunkMS, "chunk-ms", 64, "audio chunk size in milliseconds")
	flag.Float64Var(&cfg.realtime, "realtime", 1.0, "chunk pacing multiplier (1.0=realtime, 2.0=2x)")
	flag.IntVar(&cfg.sampleRate, "sample-rate", 16000, "capture sample rate configured on the server")
	flag.Float64Var(&cfg.clipSeconds, "clip-seconds", 1.5, "length of the synthetic tone when no wav files are given")
	flag.StringVar(&wavRaw, "wav", "", "16-bit PCM wav files separated by ',' (optional)")
	flag.IntVar(&startDelayMS, "start-delay-ms", 300, "delay before first turn in milliseconds")
	flag.IntVar(&interTurnMS, "inter-turn-ms", 200, "delay between turns in milliseconds")
	flag.IntVar(&turnTimeoutMS, "turn-timeout-ms", 30000, "timeout waiting for the stop_recording result per turn in milliseconds")
	flag.IntVar(&cfg.newConvEvery, "new-conversation-every", 0, "archive the conversation after this many turns (0 disables)")
	flag.BoolVar(&cfg.verbose, "verbose", true, "print replay progress")
	flag.Parse()

	cfg.baseURL = strings.TrimRight(strings.TrimSpace(cfg.baseURL), "/")
	if cfg.baseURL == "" {
		return options{}, fmt.Errorf("base-url is required")
	}
	if cfg.turns <= 0 {
		return options{}, fmt.Errorf("turns must be > 0")
	}
	if cfg.chunkMS < 10 || cfg.chunkMS > 2000 {
		return options{}, fmt.Errorf("chunk-ms must be in [10,2000]")
	}
	if cfg.realtime <= 0 {
		return options{}, fmt.Errorf("realtime must be > 0")
	}
	if cfg.sampleRate <= 0 {
		return options{}, fmt.Errorf("sample-rate must be > 0")
	}
	if cfg.clipSeconds <= 0 {
		return options{}, fmt.Errorf("clip-seconds must be > 0")
	}
	if startDelayMS < 0 {
		startDelayMS = 0
	}
	if interTurnMS < 0 {
		interTurnMS = 0
	}
	if turnTimeoutMS < 1000 {
		turnTimeoutMS = 1000
	}
	cfg.startDelay = time.Duration(startDelayMS) * time.Millisecond
	cfg.interTurnDelay = time.Duration(interTurnMS) * time.Millisecond
	cfg.turnTimeout = time.Duration(turnTimeoutMS) * time.Millisecond

	for _, part := range strings.Split(wavRaw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			cfg.wavFiles = append(cfg.wavFiles, p)
		}
	}
	return cfg, nil
}

func run(cfg options) error {
	ctx, cancel := context.WithTimeout(context.Background(), 8*time.Minute)
	defer cancel()

	clips, err := loadClips(cfg)
	if err != nil {
		return fmt.Errorf("prepare audio: %w", err)
	}

	wsURL, err := wsURLFor(cfg.baseURL)
	if err != nil {
		return fmt.Errorf("build ws URL: %w", err)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("open websocket: %w", err)
	}
	defer conn.Close()

	if cfg.verbose {
		fmt.Printf("perfvoice: turns=%d chunk_ms=%d realtime=%.2f clips=%d\n", cfg.turns, cfg.chunkMS, cfg.realtime, len(clips))
	}
	if cfg.startDelay > 0 {
		time.Sleep(cfg.startDelay)
	}

	events := make(chan wsEnvelope, 64)
	readErrCh := make(chan error, 1)
	go readLoop(conn, events, readErrCh, cfg.verbose)

	seq := 0
	failed := 0
	for i := 0; i < cfg.turns; i++ {
		clip := clips[i%len(clips)]
		if cfg.verbose {
			fmt.Printf("perfvoice: turn %d/%d clip=%s sample_rate=%dHz bytes=%d\n", i+1, cfg.turns, clip.Name, clip.SampleRate, len(clip.PCM16LE))
		}

		if err := sendIntent(conn, session.IntentStartRecording); err != nil {
			return fmt.Errorf("turn %d start: %w", i+1, err)
		}
		if _, err := awaitEvent(events, readErrCh, cfg.turnTimeout, isState(session.StateRecording)); err != nil {
			return fmt.Errorf("turn %d await recording: %w", i+1, err)
		}
		if err := sendTurnAudio(conn, clip, cfg.chunkMS, cfg.realtime, &seq); err != nil {
			return fmt.Errorf("turn %d send audio: %w", i+1, err)
		}

		stopped := time.Now()
		if err := sendIntent(conn, session.IntentStopRecording); err != nil {
			return fmt.Errorf("turn %d stop: %w", i+1, err)
		}
		evt, err := awaitEvent(events, readErrCh, cfg.turnTimeout, isResult(session.IntentStopRecording))
		if err != nil {
			return fmt.Errorf("turn %d await result: %w", i+1, err)
		}
		report := turnReport{OK: evt.OK, Elapsed: time.Since(stopped), Artifact: evt.PlayArtifact, Notices: evt.Notices}
		if !report.OK {
			failed++
		}
		printReport(i+1, report)

		if cfg.newConvEvery > 0 && (i+1)%cfg.newConvEvery == 0 {
			if err := sendIntent(conn, session.IntentNewConversation); err != nil {
				return fmt.Errorf("turn %d new conversation: %w", i+1, err)
			}
			if _, err := awaitEvent(events, readErrCh, cfg.turnTimeout, isResult(session.IntentNewConversation)); err != nil {
				return fmt.Errorf("turn %d await new conversation: %w", i+1, err)
			}
		}
		if cfg.interTurnDelay > 0 && i < cfg.turns-1 {
			time.Sleep(cfg.interTurnDelay)
		}
	}

	if err := printLatency(ctx, cfg.baseURL); err != nil {
		fmt.Fprintf(os.Stderr, "perfvoice: latency snapshot: %v\n", err)
	}
	if cfg.verbose {
		fmt.Printf("perfvoice: replay completed, %d/%d turns failed\n", failed, cfg.turns)
	}
	return nil
}

func printReport(turn int, r turnReport) {
	status := "ok"
	if !r.OK {
		status = "failed"
	}
	fmt.Printf("perfvoice: turn %d %s in %s artifact=%q\n", turn, status, r.Elapsed.Round(time.Millisecond), r.Artifact)
	for _, n := range r.Notices {
		if n.Level == session.LevelWarning || n.Level == session.LevelError {
			fmt.Printf("perfvoice:   %s %s: %s\n", n.Level, n.Code, n.Message)
		}
	}
}

func printLatency(ctx context.Context, baseURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/v1/perf/latency", nil)
	if err != nil {
		return err
	}
	res, err := (&http.Client{Timeout: 10 * time.Second}).Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return err
	}
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	var snap struct {
		Stages []struct {
			Stage string  `json:"stage"`
			P50MS float64 `json:"p50_ms"`
			P95MS float64 `json:"p95_ms"`
		} `json:"stages"`
	}
	if err := sonic.Unmarshal(body, &snap); err != nil {
		return err
	}
	for _, s := range snap.Stages {
		fmt.Printf("perfvoice: stage=%s p50=%.0fms p95=%.0fms\n", s.Stage, s.P50MS, s.P95MS)
	}
	return nil
}

func loadClips(cfg options) ([]audioClip, error) {
	if len(cfg.wavFiles) == 0 {
		return []audioClip{toneClip(cfg.sampleRate, cfg.clipSeconds)}, nil
	}
	out := make([]audioClip, 0, len(cfg.wavFiles))
	for _, path := range cfg.wavFiles {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		pcm, rate, err := decodeWAVPCM16(data)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
		out = append(out, audioClip{
			Name:       path,
			PCM16LE:    resamplePCM16(pcm, rate, cfg.sampleRate),
			SampleRate: cfg.sampleRate,
		})
	}
	return out, nil
}

// toneClip is the replay audio used when no wav files are given.
func toneClip(sampleRate int, seconds float64) audioClip {
	n := int(float64(sampleRate) * seconds)
	pcm := make([]byte, n*2)
	for i := 0; i < n; i++ {
		t := float64(i) / float64(sampleRate)
		v := 0.3 * math.Sin(2*math.Pi*(180+60*t)*t)
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(int16(v*math.MaxInt16)))
	}
	return audioClip{Name: "tone", PCM16LE: pcm, SampleRate: sampleRate}
}

// resamplePCM16 converts mono PCM between rates with linear interpolation.
func resamplePCM16(pcm []byte, from, to int) []byte {
	if from == to || from <= 0 || to <= 0 || len(pcm) < 4 {
		return pcm
	}
	inFrames := len(pcm) / 2
	outFrames := int(int64(inFrames) * int64(to) / int64(from))
	out := make([]byte, outFrames*2)
	ratio := float64(from) / float64(to)
	for i := 0; i < outFrames; i++ {
		pos := float64(i) * ratio
		lo := int(pos)
		hi := lo + 1
		if hi >= inFrames {
			hi = inFrames - 1
		}
		frac := pos - float64(lo)
		a := float64(int16(binary.LittleEndian.Uint16(pcm[lo*2:])))
		b := float64(int16(binary.LittleEndian.Uint16(pcm[hi*2:])))
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(math.Round(a+(b-a)*frac))))
	}
	return out
}

func wsURLFor(baseURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return "", err
	}
	switch strings.ToLower(u.Scheme) {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported base-url scheme %q", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return "", fmt.Errorf("base-url host is required")
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/v1/session/ws"
	return u.String(), nil
}

func readLoop(conn *websocket.Conn, events chan<- wsEnvelope, readErrCh chan<- error, verbose bool) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case readErrCh <- err:
			default:
			}
			return
		}

		var env wsEnvelope
		if err := sonic.Unmarshal(data, &env); err != nil {
			continue
		}
		if env.Type == string(protocol.TypeErrorEvent) && verbose {
			fmt.Fprintf(os.Stderr, "perfvoice: error_event code=%s detail=%s\n", env.Code, env.Detail)
		}
		select {
		case events <- env:
		default:
		}
	}
}

func isState(to session.State) func(wsEnvelope) bool {
	return func(e wsEnvelope) bool {
		return e.Type == string(protocol.TypeStateChanged) && e.To == string(to)
	}
}

func isResult(kind session.IntentKind) func(wsEnvelope) bool {
	return func(e wsEnvelope) bool {
		return e.Type == string(protocol.TypeIntentResult) && e.Intent == string(kind)
	}
}

func awaitEvent(events <-chan wsEnvelope, readErrCh <-chan error, timeout time.Duration, match func(wsEnvelope) bool) (wsEnvelope, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case evt := <-events:
			if match(evt) {
				return evt, nil
			}
		case err := <-readErrCh:
			return wsEnvelope{}, err
		case <-timer.C:
			return wsEnvelope{}, fmt.Errorf("timeout after %s", timeout)
		}
	}
}

func sendIntent(conn *websocket.Conn, kind session.IntentKind) error {
	raw, err := protocol.Encode(protocol.IntentRequest{Type: protocol.TypeIntent, Intent: string(kind)})
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, raw)
}

func sendTurnAudio(conn *websocket.Conn, clip audioClip, chunkMS int, realtime float64, seq *int) error {
	sampleRate := clip.SampleRate
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	bytesPerChunk := sampleRate * 2 * chunkMS / 1000
	if bytesPerChunk < 2 {
		bytesPerChunk = 2
	}
	if bytesPerChunk%2 != 0 {
		bytesPerChunk++
	}

	for off := 0; off < len(clip.PCM16LE); {
		end := off + bytesPerChunk
		if end > len(clip.PCM16LE) {
			end = len(clip.PCM16LE)
		}
		if (end-off)%2 != 0 {
			end--
		}
		if end <= off {
			break
		}
		chunkBytes := end - off
		*seq = *seq + 1
		raw, err := protocol.Encode(protocol.ClientAudioChunk{
			Type:        protocol.TypeClientAudioChunk,
			Seq:         *seq,
			PCM16Base64: base64.StdEncoding.EncodeToString(clip.PCM16LE[off:end]),
			SampleRate:  sampleRate,
		})
		if err != nil {
			return err
		}
		if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
			return err
		}
		off = end

		chunkDuration := time.Duration(float64(time.Duration(chunkBytes)*time.Second/time.Duration(sampleRate*2)) / realtime)
		if chunkDuration <= 0 {
			chunkDuration = 10 * time.Millisecond
		}
		time.Sleep(chunkDuration)
	}
	return nil
}

func decodeWAVPCM16(data []byte) ([]byte, int, error) {
	if len(data) < 12 {
		return nil, 0, fmt.Errorf("wav too short")
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, 0, fmt.Errorf("unsupported wav header")
	}

	var (
		haveFmt     bool
		audioFormat uint16
		channels    uint16
		sampleRate  int
		bitsPerSamp uint16
		pcmData     []byte
	)
	for off := 12; off+8 <= len(data); {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		off += 8
		if size < 0 || off+size > len(data) {
			return nil, 0, fmt.Errorf("invalid wav chunk size")
		}
		chunk := data[off : off+size]
		switch id {
		case "fmt ":
			if len(chunk) < 16 {
				return nil, 0, fmt.Errorf("invalid wav fmt chunk")
			}
			audioFormat = binary.LittleEndian.Uint16(chunk[0:2])
			channels = binary.LittleEndian.Uint16(chunk[2:4])
			sampleRate = int(binary.LittleEndian.Uint32(chunk[4:8]))
			bitsPerSamp = binary.LittleEndian.Uint16(chunk[14:16])
			haveFmt = true
		case "data":
			pcmData = append(pcmData[:0], chunk...)
		}
		off += size
		if size%2 == 1 {
			off++
		}
	}
	if !haveFmt {
		return nil, 0, fmt.Errorf("wav fmt chunk missing")
	}
	if len(pcmData) == 0 {
		return nil, 0, fmt.Errorf("wav data chunk missing")
	}
	if audioFormat != 1 {
		return nil, 0, fmt.Errorf("unsupported wav audio format %d", audioFormat)
	}
	if bitsPerSamp != 16 {
		return nil, 0, fmt.Errorf("unsupported wav bits_per_sample %d", bitsPerSamp)
	}
	if channels == 0 {
		return nil, 0, fmt.Errorf("invalid wav channels=0")
	}
	if sampleRate <= 0 {
		sampleRate = 16000
	}

	if channels == 1 {
		if len(pcmData)%2 != 0 {
			pcmData = pcmData[:len(pcmData)-1]
		}
		return pcmData, sampleRate, nil
	}

	frameBytes := int(channels) * 2
	if len(pcmData) < frameBytes {
		return nil, 0, fmt.Errorf("invalid wav frame bytes")
	}
	frameCount := len(pcmData) / frameBytes
	mono := make([]byte, frameCount*2)
	for i := 0; i < frameCount; i++ {
		base := i * frameBytes
		sum := 0
		for ch := 0; ch < int(channels); ch++ {
			sum += int(int16(binary.LittleEndian.Uint16(pcmData[base+ch*2 : base+ch*2+2])))
		}
		binary.LittleEndian.PutUint16(mono[i*2:i*2+2], uint16(int16(sum/int(channels))))
	}
	return mono, sampleRate, nil
}
