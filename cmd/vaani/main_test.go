package main

import (
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/vaani-ai/vaani/pkg/gateway/live/protocol"
)

// newFakeGateway upgrades one connection, reads the hello and hands the
// socket to the script.
func newFakeGateway(t *testing.T, script func(t *testing.T, conn *websocket.Conn, hello protocol.ClientHello)) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		var hello protocol.ClientHello
		if err := conn.ReadJSON(&hello); err != nil {
			t.Errorf("read hello: %v", err)
			return
		}
		script(t, conn, hello)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func mustDial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", wsURL, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func testReady() protocol.ServerReady {
	return protocol.ServerReady{
		Type:            "ready",
		ProtocolVersion: protocol.ProtocolVersion1,
		SessionID:       "sess-42",
		Audio:           protocol.AudioFormat{Encoding: protocol.EncodingPCM16, SampleRateHz: 16000, Channels: 1},
		Language:        "tamil",
		Voice:           "onyx",
	}
}

func TestHandshake_SendsHelloAndParsesReady(t *testing.T) {
	helloCh := make(chan protocol.ClientHello, 1)
	srv := newFakeGateway(t, func(t *testing.T, conn *websocket.Conn, hello protocol.ClientHello) {
		helloCh <- hello
		if err := conn.WriteJSON(testReady()); err != nil {
			t.Errorf("write ready: %v", err)
		}
	})
	conn := mustDial(t, srv)

	opt := options{apiKey: "vaani_sk_test", language: "tamil", voice: "onyx", greeting: false}
	ready, err := handshake(conn, opt, true)
	if err != nil {
		t.Fatalf("handshake: %v", err)
	}
	if ready.SessionID != "sess-42" {
		t.Fatalf("session_id=%q, want sess-42", ready.SessionID)
	}
	if ready.Language != "tamil" || ready.Voice != "onyx" {
		t.Fatalf("language=%q voice=%q, want tamil/onyx", ready.Language, ready.Voice)
	}

	hello := <-helloCh
	if hello.Type != "hello" || hello.ProtocolVersion != protocol.ProtocolVersion1 {
		t.Fatalf("hello type=%q version=%q", hello.Type, hello.ProtocolVersion)
	}
	if hello.Audio.Encoding != protocol.EncodingPCM16 || hello.Audio.SampleRateHz != 16000 || hello.Audio.Channels != 1 {
		t.Fatalf("hello audio=%+v, want pcm_s16le 16000/1", hello.Audio)
	}
	if hello.Auth == nil || hello.Auth.APIKey != "vaani_sk_test" {
		t.Fatalf("hello auth=%+v, want the api key", hello.Auth)
	}
	if hello.Language != "tamil" || hello.Voice != "onyx" {
		t.Fatalf("hello language=%q voice=%q", hello.Language, hello.Voice)
	}
	if hello.Greeting == nil || *hello.Greeting {
		t.Fatalf("hello greeting=%v, want explicit false", hello.Greeting)
	}
}

func TestHandshake_OmitsGreetingWhenFlagUnset(t *testing.T) {
	helloCh := make(chan protocol.ClientHello, 1)
	srv := newFakeGateway(t, func(t *testing.T, conn *websocket.Conn, hello protocol.ClientHello) {
		helloCh <- hello
		_ = conn.WriteJSON(testReady())
	})
	conn := mustDial(t, srv)

	if _, err := handshake(conn, options{greeting: true}, false); err != nil {
		t.Fatalf("handshake: %v", err)
	}
	hello := <-helloCh
	if hello.Greeting != nil {
		t.Fatalf("hello greeting=%v, want omitted", *hello.Greeting)
	}
	if hello.Auth != nil {
		t.Fatalf("hello auth=%+v, want omitted without a key", hello.Auth)
	}
}

func TestHandshake_GatewayErrorSurfaced(t *testing.T) {
	srv := newFakeGateway(t, func(t *testing.T, conn *websocket.Conn, hello protocol.ClientHello) {
		_ = conn.WriteJSON(protocol.ServerError{Type: "error", Code: "unauthorized", Message: "invalid api key", Close: true})
	})
	conn := mustDial(t, srv)

	_, err := handshake(conn, options{apiKey: "wrong"}, false)
	if err == nil {
		t.Fatalf("expected handshake error")
	}
	if !strings.Contains(err.Error(), "unauthorized") {
		t.Fatalf("err=%q, want the gateway code in the message", err)
	}
}

type recordingSink struct {
	mu      sync.Mutex
	audio   []byte
	flushes int
}

func (r *recordingSink) Write(p []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.audio = append(r.audio, p...)
}

func (r *recordingSink) Flush() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flushes++
}

func TestReadLoop_PlaysAudioUntilSessionEnds(t *testing.T) {
	srv := newFakeGateway(t, func(t *testing.T, conn *websocket.Conn, hello protocol.ClientHello) {
		frames := []any{
			testReady(),
			protocol.ServerState{Type: "state", From: "IDLE", To: "SPEAKING"},
			protocol.ServerAudioDelta{Type: "audio_delta", AudioB64: base64.StdEncoding.EncodeToString([]byte("greeting-pcm"))},
			protocol.ServerPlaybackInterrupted{Type: "playback_interrupted", Reason: "barge_in"},
			protocol.ServerAudioDelta{Type: "audio_delta", AudioB64: base64.StdEncoding.EncodeToString([]byte("reply-pcm"))},
			protocol.ServerSessionEnded{Type: "session_ended", Reason: "stopped"},
		}
		for _, f := range frames {
			if err := conn.WriteJSON(f); err != nil {
				return
			}
		}
	})
	conn := mustDial(t, srv)

	if _, err := handshake(conn, options{}, false); err != nil {
		t.Fatalf("handshake: %v", err)
	}

	sink := &recordingSink{}
	if err := readLoop(conn, sink, false); err != nil {
		t.Fatalf("readLoop: %v", err)
	}
	if got := string(sink.audio); got != "greeting-pcmreply-pcm" {
		t.Fatalf("audio=%q, want both deltas in order", got)
	}
	if sink.flushes != 1 {
		t.Fatalf("flushes=%d, want 1 for the barge-in", sink.flushes)
	}
}

func TestReadLoop_ClosingErrorStopsClient(t *testing.T) {
	srv := newFakeGateway(t, func(t *testing.T, conn *websocket.Conn, hello protocol.ClientHello) {
		frames := []any{
			testReady(),
			protocol.ServerWarning{Type: "warning", Code: "slow_consumer", Message: "catching up"},
			protocol.ServerError{Type: "error", Code: "internal", Message: "pipeline failed", Close: true},
		}
		for _, f := range frames {
			if err := conn.WriteJSON(f); err != nil {
				return
			}
		}
	})
	conn := mustDial(t, srv)

	if _, err := handshake(conn, options{}, false); err != nil {
		t.Fatalf("handshake: %v", err)
	}

	err := readLoop(conn, &recordingSink{}, false)
	if err == nil {
		t.Fatalf("expected error from closing error frame")
	}
	if !strings.Contains(err.Error(), "internal") {
		t.Fatalf("err=%q, want the gateway code", err)
	}
}

func TestLiveURL(t *testing.T) {
	cases := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "bare host", in: "localhost:8080", want: "ws://localhost:8080/v1/live"},
		{name: "http scheme", in: "http://gw.example.com", want: "ws://gw.example.com/v1/live"},
		{name: "https scheme", in: "https://gw.example.com", want: "wss://gw.example.com/v1/live"},
		{name: "ws passthrough", in: "ws://gw.example.com", want: "ws://gw.example.com/v1/live"},
		{name: "base path preserved", in: "https://edge.example.com/voice/", want: "wss://edge.example.com/voice/v1/live"},
		{name: "query preserved", in: "http://gw.example.com?api_key=vaani_sk_x", want: "ws://gw.example.com/v1/live?api_key=vaani_sk_x"},
		{name: "unsupported scheme", in: "ftp://gw.example.com", wantErr: true},
		{name: "empty", in: "   ", wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := liveURL(tc.in)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("liveURL(%q)=%q, expected error", tc.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("liveURL(%q): %v", tc.in, err)
			}
			if got != tc.want {
				t.Fatalf("liveURL(%q)=%q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestFrameSize(t *testing.T) {
	ready := testReady()

	if got := frameSize(ready, 20); got != 640 {
		t.Fatalf("frameSize(20ms)=%d, want 640", got)
	}

	ready.Limits = &protocol.ReadyLimits{MaxAudioFrameBytes: 501}
	if got := frameSize(ready, 40); got != 500 {
		t.Fatalf("frameSize capped=%d, want 500 (even byte count)", got)
	}

	ready.Limits = nil
	if got := frameSize(ready, 0); got != 640 {
		t.Fatalf("frameSize(0ms)=%d, want the 20ms default", got)
	}
}
