package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNew_DefaultNamespace(t *testing.T) {
	m := New("")
	if m == nil {
		t.Fatal("New returned nil")
	}

	m.RecordSessionStart()
	m.RecordSessionEnd("client_stop", 3*time.Second)
	m.RecordTurn("user")
	m.RecordLanguageSwitch("english", "tamil")
	m.RecordStageFailure("transcription")
	m.RecordAudio("in", 640)
	m.RecordRequest("GET", "/healthz", "200", 2*time.Millisecond)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("metrics endpoint status = %d", rec.Code)
	}
	body, err := io.ReadAll(rec.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	out := string(body)
	for _, want := range []string{
		"vaani_sessions_total",
		"vaani_session_duration_seconds",
		"vaani_turns_total",
		"vaani_language_switches_total",
		"vaani_stage_failures_total",
		"vaani_audio_bytes_total",
		"vaani_http_requests_total",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
	if !strings.Contains(out, `reason="client_stop"`) {
		t.Error("sessions_total missing reason label")
	}
	if !strings.Contains(out, `direction="in"`) {
		t.Error("audio_bytes_total missing direction label")
	}
}

func TestNew_CustomNamespace(t *testing.T) {
	m := New("custom")
	m.RecordTurn("assistant")

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)

	if !strings.Contains(rec.Body.String(), "custom_turns_total") {
		t.Error("metrics output missing custom namespace")
	}
}

func TestRecordAudio_IgnoresNonPositive(t *testing.T) {
	m := New("")
	m.RecordAudio("out", 0)
	m.RecordAudio("out", -5)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)

	if strings.Contains(rec.Body.String(), `direction="out"`) {
		t.Error("zero-byte audio should not create a series")
	}
}
