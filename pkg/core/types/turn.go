package types

import (
	"time"
)

// Speaker says which side of the conversation produced a turn.
type Speaker string

const (
	SpeakerUser   Speaker = "user"
	SpeakerSystem Speaker = "system"
)

// Turn is one committed conversational exchange half. Turns are immutable
// once committed; correction happens by appending new turns.
type Turn struct {
	ID        string    `json:"id"`
	Speaker   Speaker   `json:"speaker"`
	Text      string    `json:"text"`
	Language  string    `json:"language"`            // tag such as "ta" or "ta-en"
	Timestamp time.Time `json:"timestamp"`           // set at commit time
	AudioRef  string    `json:"audio_ref,omitempty"` // reference into audio storage, if kept
}

// SessionRecord is the persisted shape of a session: identity, profile and
// the committed transcript.
type SessionRecord struct {
	ID        string          `json:"id"`
	StartedAt time.Time       `json:"started_at"`
	EndedAt   time.Time       `json:"ended_at,omitempty"`
	Profile   LanguageProfile `json:"profile"`
	Turns     []Turn          `json:"turns"`
}
