// Command vaani is the terminal voice client for the vaani gateway. It
// streams microphone audio to the live websocket endpoint and plays the
// synthesized replies through the default output device.
package main

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"

	"github.com/vaani-ai/vaani/pkg/gateway/live/protocol"
)

const clientVersion = "0.1.0"

type options struct {
	gateway  string
	apiKey   string
	language string
	voice    string
	greeting bool
	frameMS  int
	debug    bool
}

func main() {
	os.Exit(runMain())
}

func runMain() int {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "vaani:", err)
		return 1
	}

	var opt options
	flag.StringVar(&opt.gateway, "gateway", envOr("VAANI_GATEWAY", "localhost:8080"), "gateway address (host:port, http(s):// or ws(s)://)")
	flag.StringVar(&opt.apiKey, "api-key", os.Getenv("VAANI_API_KEY"), "gateway API key (also read from VAANI_API_KEY)")
	flag.StringVar(&opt.language, "language", "", "conversation language (tamil, telugu, kannada, malayalam, english; gateway default when empty)")
	flag.StringVar(&opt.voice, "voice", "", "synthesis voice override")
	flag.BoolVar(&opt.greeting, "greeting", true, "have the assistant speak first")
	flag.IntVar(&opt.frameMS, "frame-ms", 20, "microphone frame duration in milliseconds")
	flag.BoolVar(&opt.debug, "debug", false, "print state transitions and utterance boundaries")
	flag.Parse()

	if opt.frameMS <= 0 {
		fmt.Fprintln(os.Stderr, "vaani: -frame-ms must be > 0")
		return 2
	}

	// Only forward the greeting preference when the flag was given, so the
	// gateway default applies otherwise.
	greetingSet := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "greeting" {
			greetingSet = true
		}
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opt, greetingSet); err != nil {
		if errors.Is(err, context.Canceled) {
			return 0
		}
		fmt.Fprintln(os.Stderr, "vaani:", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, opt options, greetingSet bool) error {
	wsURL, err := liveURL(opt.gateway)
	if err != nil {
		return fmt.Errorf("invalid -gateway: %w", err)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", wsURL, err)
	}
	defer conn.Close()

	ready, err := handshake(conn, opt, greetingSet)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "connected: session=%s language=%s voice=%s\n", ready.SessionID, ready.Language, ready.Voice)
	fmt.Fprintln(os.Stderr, "speak when ready; enter commits the current utterance, q ends the session")

	mic, err := newMicCapture(ready.Audio.SampleRateHz, ready.Audio.Channels)
	if err != nil {
		return err
	}
	defer mic.Close()

	spk, err := newSpeakerSink(ready.Audio.SampleRateHz, ready.Audio.Channels)
	if err != nil {
		return err
	}
	defer spk.Close()

	var writeMu sync.Mutex
	sendJSON := func(v any) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteJSON(v)
	}

	readErr := make(chan error, 1)
	go func() { readErr <- readLoop(conn, spk, opt.debug) }()

	micErr := make(chan error, 1)
	go func() { micErr <- micLoop(ctx, mic, sendJSON, frameSize(ready, opt.frameMS)) }()

	stdinCh := make(chan string)
	go stdinLoop(stdinCh)

	for {
		select {
		case <-ctx.Done():
			_ = sendJSON(protocol.ClientControl{Type: "control", Op: "stop"})
			// Give the gateway a moment to flush the session_ended frame.
			select {
			case <-readErr:
			case <-time.After(2 * time.Second):
			}
			return nil
		case err := <-readErr:
			return err
		case err := <-micErr:
			if err != nil && !errors.Is(err, io.EOF) && ctx.Err() == nil {
				return fmt.Errorf("microphone: %w", err)
			}
			// The mic went quiet; keep serving playback until the session ends.
			micErr = nil
		case line, ok := <-stdinCh:
			if !ok {
				stdinCh = nil
				continue
			}
			switch strings.ToLower(strings.TrimSpace(line)) {
			case "q", "quit", "exit":
				_ = sendJSON(protocol.ClientControl{Type: "control", Op: "stop"})
			case "":
				_ = sendJSON(protocol.ClientControl{Type: "control", Op: "end_input"})
			}
		}
	}
}

// handshake sends the hello and waits for the gateway's ready frame.
func handshake(conn *websocket.Conn, opt options, greetingSet bool) (protocol.ServerReady, error) {
	hello := protocol.ClientHello{
		Type:            "hello",
		ProtocolVersion: protocol.ProtocolVersion1,
		Client: protocol.HelloClient{
			Name:     "vaani-cli",
			Version:  clientVersion,
			Platform: runtime.GOOS,
		},
		Audio: protocol.AudioFormat{
			Encoding:     protocol.EncodingPCM16,
			SampleRateHz: 16000,
			Channels:     1,
		},
		Language: strings.TrimSpace(opt.language),
		Voice:    strings.TrimSpace(opt.voice),
	}
	if key := strings.TrimSpace(opt.apiKey); key != "" {
		hello.Auth = &protocol.HelloAuth{APIKey: key}
	}
	if greetingSet {
		hello.Greeting = &opt.greeting
	}

	deadline := time.Now().Add(5 * time.Second)
	_ = conn.SetWriteDeadline(deadline)
	if err := conn.WriteJSON(hello); err != nil {
		return protocol.ServerReady{}, fmt.Errorf("send hello: %w", err)
	}

	_ = conn.SetReadDeadline(deadline)
	messageType, data, err := conn.ReadMessage()
	if err != nil {
		return protocol.ServerReady{}, fmt.Errorf("await ready: %w", err)
	}
	if messageType != websocket.TextMessage {
		return protocol.ServerReady{}, fmt.Errorf("await ready: unexpected message type %d", messageType)
	}

	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return protocol.ServerReady{}, fmt.Errorf("bad ready frame: %w", err)
	}
	if env.Type == "error" {
		var se protocol.ServerError
		_ = json.Unmarshal(data, &se)
		return protocol.ServerReady{}, fmt.Errorf("gateway rejected hello: %s (%s)", se.Message, se.Code)
	}
	if env.Type != "ready" {
		return protocol.ServerReady{}, fmt.Errorf("expected ready frame, got %q", env.Type)
	}

	var ready protocol.ServerReady
	if err := json.Unmarshal(data, &ready); err != nil {
		return protocol.ServerReady{}, fmt.Errorf("bad ready frame: %w", err)
	}
	if ready.SessionID == "" {
		return protocol.ServerReady{}, errors.New("ready frame missing session_id")
	}

	_ = conn.SetReadDeadline(time.Time{})
	_ = conn.SetWriteDeadline(time.Time{})
	return ready, nil
}

// playbackSink is the slice of the speaker the server read loop needs.
type playbackSink interface {
	Write(p []byte)
	Flush()
}

// readLoop consumes server frames until the session ends or the socket
// breaks. Returns nil on a clean session_ended or normal closure.
func readLoop(conn *websocket.Conn, spk playbackSink, debug bool) error {
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) && closeErr.Code == websocket.CloseNormalClosure {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var env struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(data, &env); err != nil {
			fmt.Fprintln(os.Stderr, "bad server frame:", err)
			continue
		}

		switch env.Type {
		case "state":
			if !debug {
				continue
			}
			var st protocol.ServerState
			if json.Unmarshal(data, &st) == nil {
				fmt.Fprintf(os.Stderr, "[state] %s -> %s\n", st.From, st.To)
			}
		case "utterance":
			if !debug {
				continue
			}
			var u protocol.ServerUtterance
			if json.Unmarshal(data, &u) == nil {
				fmt.Fprintf(os.Stderr, "[utterance] %dms truncated=%v\n", u.DurationMS, u.Truncated)
			}
		case "transcript":
			var tr protocol.ServerTranscript
			if err := json.Unmarshal(data, &tr); err != nil {
				continue
			}
			fmt.Printf("[you] %s\n", tr.Text)
		case "turn":
			var st protocol.ServerTurn
			if err := json.Unmarshal(data, &st); err != nil {
				continue
			}
			// User turns were already printed from their transcript frame.
			if st.Turn.Speaker == "system" {
				fmt.Printf("[vaani] %s\n", st.Turn.Text)
			}
		case "language_switched":
			var sw protocol.ServerLanguageSwitched
			if json.Unmarshal(data, &sw) == nil {
				fmt.Fprintf(os.Stderr, "[language] %s -> %s\n", sw.From, sw.To)
			}
		case "audio_delta":
			var d protocol.ServerAudioDelta
			if err := json.Unmarshal(data, &d); err != nil {
				continue
			}
			pcm, err := base64.StdEncoding.DecodeString(d.AudioB64)
			if err != nil {
				fmt.Fprintln(os.Stderr, "bad audio delta:", err)
				continue
			}
			spk.Write(pcm)
		case "playback_interrupted":
			spk.Flush()
		case "warning":
			var w protocol.ServerWarning
			if json.Unmarshal(data, &w) == nil {
				fmt.Fprintf(os.Stderr, "[warning] %s: %s\n", w.Code, w.Message)
			}
		case "error":
			var se protocol.ServerError
			if err := json.Unmarshal(data, &se); err != nil {
				return fmt.Errorf("bad error frame: %w", err)
			}
			if se.Close {
				return fmt.Errorf("gateway error: %s (%s)", se.Message, se.Code)
			}
			fmt.Fprintf(os.Stderr, "[error] %s: %s\n", se.Code, se.Message)
		case "session_ended":
			var end protocol.ServerSessionEnded
			_ = json.Unmarshal(data, &end)
			fmt.Fprintf(os.Stderr, "session ended: %s\n", end.Reason)
			return nil
		default:
			// Unknown frames are ignored so this client keeps working
			// against newer gateways.
		}
	}
}

// micLoop chops captured audio into frames and ships them as base64 JSON.
func micLoop(ctx context.Context, mic *micCapture, sendJSON func(any) error, frameBytes int) error {
	frame := make([]byte, frameBytes)
	var seq int64
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := mic.ReadFrame(frame); err != nil {
			return err
		}
		seq++
		if err := sendJSON(protocol.ClientAudioFrame{
			Type:    "audio_frame",
			Seq:     seq,
			DataB64: base64.StdEncoding.EncodeToString(frame),
		}); err != nil {
			return err
		}
	}
}

func stdinLoop(lines chan<- string) {
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		lines <- sc.Text()
	}
	close(lines)
}

// frameSize converts the frame duration to bytes, capped at the gateway's
// advertised frame limit.
func frameSize(ready protocol.ServerReady, frameMS int) int {
	bytesPerMS := ready.Audio.SampleRateHz * ready.Audio.Channels * 2 / 1000
	n := bytesPerMS * frameMS
	if n <= 0 {
		n = bytesPerMS * 20
	}
	if ready.Limits != nil && ready.Limits.MaxAudioFrameBytes > 0 && n > ready.Limits.MaxAudioFrameBytes {
		// Whole samples only.
		n = ready.Limits.MaxAudioFrameBytes &^ 1
	}
	return n
}

// liveURL turns a gateway address into the live websocket URL, mapping
// http(s) schemes to ws(s) and appending the endpoint path.
func liveURL(gateway string) (string, error) {
	raw := strings.TrimSpace(gateway)
	if raw == "" {
		return "", errors.New("empty gateway address")
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	switch strings.ToLower(u.Scheme) {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	// Keep any base path the deployment mounts the gateway under.
	u.Path = strings.TrimSuffix(u.Path, "/") + "/v1/live"
	u.Fragment = ""
	return u.String(), nil
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
