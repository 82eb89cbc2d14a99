package live

import (
	"github.com/vaani-ai/vaani/pkg/core/types"
)

// Event is the interface for all live session events.
type Event interface {
	// EventType returns the event type string for serialization.
	EventType() string
}

// SessionCreatedEvent is emitted once when the session starts.
type SessionCreatedEvent struct {
	SessionID  string `json:"session_id"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
}

func (e *SessionCreatedEvent) EventType() string { return "session.created" }

// StateChangedEvent is emitted when the session state changes.
type StateChangedEvent struct {
	From SessionState `json:"from"`
	To   SessionState `json:"to"`
}

func (e *StateChangedEvent) EventType() string { return "state.changed" }

// UtteranceCommittedEvent is emitted when the segmenter commits an utterance.
type UtteranceCommittedEvent struct {
	DurationMs int  `json:"duration_ms"`
	Truncated  bool `json:"truncated,omitempty"` // input stream ended mid-utterance
}

func (e *UtteranceCommittedEvent) EventType() string { return "utterance.committed" }

// TranscriptEvent is emitted when an utterance has been transcribed.
type TranscriptEvent struct {
	Text       string         `json:"text"`
	Language   types.Language `json:"language,omitempty"`
	Confidence float64        `json:"confidence"`
}

func (e *TranscriptEvent) EventType() string { return "transcript" }

// TurnCommittedEvent is emitted when a turn is appended to the history.
type TurnCommittedEvent struct {
	Turn types.Turn `json:"turn"`
}

func (e *TurnCommittedEvent) EventType() string { return "turn.committed" }

// LanguageSwitchedEvent is emitted when the profile's primary language
// changes after sustained detection.
type LanguageSwitchedEvent struct {
	From types.Language `json:"from"`
	To   types.Language `json:"to"`
}

func (e *LanguageSwitchedEvent) EventType() string { return "language.switched" }

// AudioDeltaEvent is emitted for each synthesized audio chunk as it is
// written to the playback sink.
type AudioDeltaEvent struct {
	Data   []byte `json:"data"`
	Format string `json:"format,omitempty"` // e.g. "pcm_s16le"
}

func (e *AudioDeltaEvent) EventType() string { return "audio.delta" }

// PlaybackInterruptedEvent signals that pending playback audio was
// discarded. Clients should clear their device buffers immediately.
type PlaybackInterruptedEvent struct {
	Reason string `json:"reason"` // "barge_in"
}

func (e *PlaybackInterruptedEvent) EventType() string { return "playback.interrupted" }

// ErrorEvent is emitted when a stage fails and the session degrades
// instead of ending.
type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *ErrorEvent) EventType() string { return "error" }

// SessionEndedEvent is the final event before the event channel closes.
type SessionEndedEvent struct {
	Reason string `json:"reason"` // "stopped", "idle_timeout", "device_failure", "cancelled"
}

func (e *SessionEndedEvent) EventType() string { return "session.ended" }
