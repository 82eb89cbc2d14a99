// Package protocol defines the JSON frames exchanged over a live voice
// websocket. Clients open with a hello, then stream base64 PCM frames up;
// the server streams session events and synthesized audio back down.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	ProtocolVersion1 = "1"

	// EncodingPCM16 is little-endian signed 16-bit PCM, the only inbound
	// encoding the pipeline accepts.
	EncodingPCM16 = "pcm_s16le"
)

type DecodeError struct {
	Code    string
	Message string
	Param   string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Param) == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Param)
}

func badRequest(message, param string) *DecodeError {
	return &DecodeError{Code: "bad_request", Message: message, Param: param}
}

func unsupported(message, param string) *DecodeError {
	return &DecodeError{Code: "unsupported", Message: message, Param: param}
}

// AudioFormat describes the live audio shape on either direction.
type AudioFormat struct {
	Encoding     string `json:"encoding"`
	SampleRateHz int    `json:"sample_rate_hz"`
	Channels     int    `json:"channels"`
}

type HelloClient struct {
	Name     string `json:"name,omitempty"`
	Version  string `json:"version,omitempty"`
	Platform string `json:"platform,omitempty"`
}

type HelloAuth struct {
	APIKey string `json:"api_key,omitempty"`
}

type ClientHello struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	Client          HelloClient `json:"client,omitempty"`
	Auth            *HelloAuth  `json:"auth,omitempty"`
	Audio           AudioFormat `json:"audio"`
	Language        string      `json:"language,omitempty"`
	Voice           string      `json:"voice,omitempty"`
	Greeting        *bool       `json:"greeting,omitempty"`
}

// RedactedForLog returns the hello without the API key, for access logs.
func (h ClientHello) RedactedForLog() map[string]any {
	return map[string]any{
		"type":             h.Type,
		"protocol_version": h.ProtocolVersion,
		"client":           h.Client,
		"audio":            h.Audio,
		"language":         h.Language,
		"voice":            h.Voice,
		"has_api_key":      h.Auth != nil && strings.TrimSpace(h.Auth.APIKey) != "",
	}
}

type ClientAudioFrame struct {
	Type    string `json:"type"`
	Seq     int64  `json:"seq,omitempty"`
	DataB64 string `json:"data_b64"`
}

type ClientControl struct {
	Type string `json:"type"`
	Op   string `json:"op"`
}

// DecodeClientMessage parses one inbound frame into its typed form.
func DecodeClientMessage(data []byte) (any, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, badRequest("invalid json frame", "")
	}
	typ := strings.TrimSpace(envelope.Type)
	if typ == "" {
		return nil, badRequest("missing type", "type")
	}

	switch typ {
	case "hello":
		var msg ClientHello
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid hello frame", "")
		}
		if err := ValidateHello(msg); err != nil {
			return nil, err
		}
		return msg, nil
	case "audio_frame":
		var msg ClientAudioFrame
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid audio_frame", "")
		}
		if strings.TrimSpace(msg.DataB64) == "" {
			return nil, badRequest("audio_frame.data_b64 is required", "data_b64")
		}
		return msg, nil
	case "control":
		var msg ClientControl
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid control", "")
		}
		op := strings.TrimSpace(msg.Op)
		if op == "" {
			return nil, badRequest("control.op is required", "op")
		}
		switch op {
		case "stop", "end_input":
		default:
			return nil, unsupported("unsupported control operation", "op")
		}
		msg.Op = op
		return msg, nil
	default:
		return nil, badRequest("unsupported message type", "type")
	}
}

// ValidateHello checks the opening frame shape. Language and voice values are
// validated by the handler against what the gateway actually supports.
func ValidateHello(msg ClientHello) error {
	if strings.TrimSpace(msg.ProtocolVersion) == "" {
		return badRequest("hello.protocol_version is required", "protocol_version")
	}
	if msg.ProtocolVersion != ProtocolVersion1 {
		return unsupported("unsupported protocol version", "protocol_version")
	}
	if strings.TrimSpace(msg.Audio.Encoding) == "" {
		return badRequest("hello.audio.encoding is required", "audio.encoding")
	}
	if msg.Audio.SampleRateHz <= 0 {
		return badRequest("hello.audio.sample_rate_hz must be > 0", "audio.sample_rate_hz")
	}
	if msg.Audio.Channels <= 0 {
		return badRequest("hello.audio.channels must be > 0", "audio.channels")
	}
	return nil
}

type ReadyLimits struct {
	MaxAudioFrameBytes  int   `json:"max_audio_frame_bytes"`
	MaxJSONMessageBytes int64 `json:"max_json_message_bytes"`
	MaxAudioFPS         int   `json:"max_audio_fps,omitempty"`
	MaxAudioBPS         int64 `json:"max_audio_bps,omitempty"`
	SilenceCommitMS     int   `json:"silence_commit_ms"`
	IdleTimeoutMS       int   `json:"idle_timeout_ms,omitempty"`
}

// ServerReady acknowledges the hello and opens the session.
type ServerReady struct {
	Type            string       `json:"type"`
	ProtocolVersion string       `json:"protocol_version"`
	SessionID       string       `json:"session_id"`
	Audio           AudioFormat  `json:"audio"`
	Language        string       `json:"language"`
	Voice           string       `json:"voice"`
	Limits          *ReadyLimits `json:"limits,omitempty"`
}

type ServerState struct {
	Type string `json:"type"`
	From string `json:"from"`
	To   string `json:"to"`
}

type ServerUtterance struct {
	Type       string `json:"type"`
	DurationMS int    `json:"duration_ms"`
	Truncated  bool   `json:"truncated,omitempty"`
}

type ServerTranscript struct {
	Type       string  `json:"type"`
	Text       string  `json:"text"`
	Language   string  `json:"language"`
	Confidence float64 `json:"confidence"`
}

type ServerTurn struct {
	Type string `json:"type"`
	Turn Turn   `json:"turn"`
}

// Turn is the wire shape of one committed transcript entry.
type Turn struct {
	ID          string `json:"id"`
	Speaker     string `json:"speaker"`
	Text        string `json:"text"`
	Language    string `json:"language"`
	TimestampMS int64  `json:"timestamp_ms"`
	AudioRef    string `json:"audio_ref,omitempty"`
}

type ServerLanguageSwitched struct {
	Type string `json:"type"`
	From string `json:"from"`
	To   string `json:"to"`
}

type ServerAudioDelta struct {
	Type     string `json:"type"`
	AudioB64 string `json:"audio_b64"`
	Format   string `json:"format,omitempty"`
}

type ServerPlaybackInterrupted struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

type ServerError struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Close   bool   `json:"close,omitempty"`
}

type ServerWarning struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ServerSessionEnded struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}
