package protocol

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestDecodeClientMessage_Hello(t *testing.T) {
	raw := []byte(`{
		"type":"hello",
		"protocol_version":"1",
		"audio":{"encoding":"pcm_s16le","sample_rate_hz":16000,"channels":1},
		"language":"tamil",
		"voice":"nova"
	}`)

	msg, err := DecodeClientMessage(raw)
	if err != nil {
		t.Fatalf("DecodeClientMessage() error = %v", err)
	}
	hello, ok := msg.(ClientHello)
	if !ok {
		t.Fatalf("decoded type = %T, want ClientHello", msg)
	}
	if hello.ProtocolVersion != "1" {
		t.Fatalf("protocol_version=%q", hello.ProtocolVersion)
	}
	if hello.Language != "tamil" || hello.Voice != "nova" {
		t.Fatalf("language=%q voice=%q", hello.Language, hello.Voice)
	}
	if hello.Greeting != nil {
		t.Fatalf("greeting=%v, want unset", *hello.Greeting)
	}
}

func TestDecodeClientMessage_HelloMissingRequired(t *testing.T) {
	raw := []byte(`{"type":"hello","protocol_version":"1"}`)
	_, err := DecodeClientMessage(raw)
	if err == nil {
		t.Fatalf("expected error")
	}
	decErr, ok := err.(*DecodeError)
	if !ok {
		t.Fatalf("err type = %T", err)
	}
	if decErr.Code != "bad_request" {
		t.Fatalf("code=%q", decErr.Code)
	}
}

func TestDecodeClientMessage_HelloWrongVersion(t *testing.T) {
	raw := []byte(`{
		"type":"hello",
		"protocol_version":"2",
		"audio":{"encoding":"pcm_s16le","sample_rate_hz":16000,"channels":1}
	}`)
	_, err := DecodeClientMessage(raw)
	if err == nil {
		t.Fatalf("expected error")
	}
	decErr, ok := err.(*DecodeError)
	if !ok {
		t.Fatalf("err type = %T", err)
	}
	if decErr.Code != "unsupported" {
		t.Fatalf("code=%q", decErr.Code)
	}
}

func TestDecodeClientMessage_AudioFrame(t *testing.T) {
	raw := []byte(`{"type":"audio_frame","seq":7,"data_b64":"AAAA"}`)
	msg, err := DecodeClientMessage(raw)
	if err != nil {
		t.Fatalf("DecodeClientMessage() error = %v", err)
	}
	frame, ok := msg.(ClientAudioFrame)
	if !ok {
		t.Fatalf("decoded type = %T, want ClientAudioFrame", msg)
	}
	if frame.Seq != 7 || frame.DataB64 != "AAAA" {
		t.Fatalf("frame=%+v", frame)
	}
}

func TestDecodeClientMessage_AudioFrameMissingData(t *testing.T) {
	raw := []byte(`{"type":"audio_frame","seq":7}`)
	_, err := DecodeClientMessage(raw)
	if err == nil {
		t.Fatalf("expected error")
	}
}

func TestDecodeClientMessage_Control(t *testing.T) {
	for _, op := range []string{"stop", "end_input"} {
		raw := []byte(`{"type":"control","op":"` + op + `"}`)
		msg, err := DecodeClientMessage(raw)
		if err != nil {
			t.Fatalf("DecodeClientMessage(%s) error = %v", op, err)
		}
		ctl, ok := msg.(ClientControl)
		if !ok {
			t.Fatalf("decoded type = %T, want ClientControl", msg)
		}
		if ctl.Op != op {
			t.Fatalf("op=%q, want %q", ctl.Op, op)
		}
	}
}

func TestDecodeClientMessage_UnsupportedControlOp(t *testing.T) {
	raw := []byte(`{"type":"control","op":"reboot"}`)
	_, err := DecodeClientMessage(raw)
	if err == nil {
		t.Fatalf("expected error")
	}
	decErr, ok := err.(*DecodeError)
	if !ok {
		t.Fatalf("err type = %T", err)
	}
	if decErr.Code != "unsupported" {
		t.Fatalf("code=%q", decErr.Code)
	}
}

func TestDecodeClientMessage_UnknownType(t *testing.T) {
	raw := []byte(`{"type":"teleport"}`)
	_, err := DecodeClientMessage(raw)
	if err == nil {
		t.Fatalf("expected error")
	}
}

func TestDecodeClientMessage_InvalidJSON(t *testing.T) {
	_, err := DecodeClientMessage([]byte(`{"type":`))
	if err == nil {
		t.Fatalf("expected error")
	}
}

func TestClientHelloRedaction(t *testing.T) {
	h := ClientHello{
		Type:            "hello",
		ProtocolVersion: "1",
		Auth:            &HelloAuth{APIKey: "vaani_sk_secret"},
		Audio:           AudioFormat{Encoding: "pcm_s16le", SampleRateHz: 16000, Channels: 1},
		Language:        "tamil",
		Voice:           "nova",
	}

	redacted := h.RedactedForLog()
	blob, err := json.Marshal(redacted)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(blob), "secret") {
		t.Fatalf("redacted payload leaked secret: %s", string(blob))
	}
	if !strings.Contains(string(blob), "has_api_key") {
		t.Fatalf("expected has_api_key in redacted payload: %s", string(blob))
	}
	if !strings.Contains(string(blob), "tamil") {
		t.Fatalf("expected language in redacted payload: %s", string(blob))
	}
}
