package live

import (
	"time"

	"github.com/vaani-ai/vaani/pkg/core/audio"
	"github.com/vaani-ai/vaani/pkg/core/dialogue"
	"github.com/vaani-ai/vaani/pkg/core/types"
	"github.com/vaani-ai/vaani/pkg/core/voice/stt"
	"github.com/vaani-ai/vaani/pkg/core/voice/tts"
)

// SessionState represents the current state of a live session.
type SessionState int

const (
	// StateIdle is the initial state before the session is started.
	StateIdle SessionState = iota
	// StateListening is when the segmenter is consuming user audio.
	StateListening
	// StateThinking is when transcription and response generation run.
	StateThinking
	// StateSpeaking is when synthesized audio is being played.
	StateSpeaking
	// StateEnded is terminal, reached via stop, idle timeout, or device failure.
	StateEnded
)

// String returns a human-readable state name.
func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateListening:
		return "LISTENING"
	case StateThinking:
		return "THINKING"
	case StateSpeaking:
		return "SPEAKING"
	case StateEnded:
		return "ENDED"
	default:
		return "UNKNOWN"
	}
}

// SegmenterConfig tunes utterance boundary detection.
type SegmenterConfig struct {
	// EnergyThreshold is the RMS level below which a frame counts as silence.
	// Range 0.0 to 1.0.
	EnergyThreshold float64

	// SilenceCommit is how much trailing silence commits an utterance.
	SilenceCommit time.Duration

	// MaxUtterance caps utterance length; longer speech is committed early
	// to bound worst-case transcription latency.
	MaxUtterance time.Duration

	// PrefixPadding is how much audio from just before speech onset is kept,
	// so the first syllable is not clipped. Leading silence beyond the
	// padding is discarded.
	PrefixPadding time.Duration
}

// DefaultSegmenterConfig returns the standard segmentation thresholds.
func DefaultSegmenterConfig() SegmenterConfig {
	return SegmenterConfig{
		EnergyThreshold: 0.015,
		SilenceCommit:   600 * time.Millisecond,
		MaxUtterance:    30 * time.Second,
		PrefixPadding:   300 * time.Millisecond,
	}
}

// SessionConfig holds all configuration for a live session. Zero values are
// replaced with defaults at construction; the config is immutable once the
// session starts.
type SessionConfig struct {
	// Audio is the PCM format of both captured and played audio.
	Audio audio.Config

	// Segmenter tunes utterance boundary detection.
	Segmenter SegmenterConfig

	// IdleTimeout ends the session after this long without an utterance.
	// Negative disables the timeout.
	IdleTimeout time.Duration

	// HistoryWindow bounds how many turns are sent to the dialogue policy.
	HistoryWindow int

	// SwitchThreshold is how many consecutive turns in a different language
	// are needed before the profile's primary language switches.
	SwitchThreshold int

	// RetryBackoff is the wait schedule for transcription retries; its
	// length is the retry budget. An empty non-nil slice disables retries.
	RetryBackoff []time.Duration

	// Greeting makes the session open with a spoken greeting.
	Greeting bool

	// Profile is the starting language profile.
	Profile types.LanguageProfile

	// Voices optionally maps each language to a synthesis voice, applied
	// when the profile's primary language switches.
	Voices map[types.Language]string

	// STTModel is the transcription model identifier.
	STTModel string

	// TTSModel is the synthesis model identifier.
	TTSModel string

	// SpeechSpeed is the synthesis speed multiplier.
	SpeechSpeed float64

	// EnhanceSpeech runs replies through the policy's pronunciation rewrite
	// before synthesis.
	EnhanceSpeech bool
}

// DefaultSessionConfig returns a SessionConfig with standard defaults.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		Audio:           audio.DefaultConfig(),
		Segmenter:       DefaultSegmenterConfig(),
		IdleTimeout:     120 * time.Second,
		HistoryWindow:   dialogue.DefaultHistoryWindow,
		SwitchThreshold: dialogue.DefaultSwitchThreshold,
		RetryBackoff:    []time.Duration{500 * time.Millisecond, 1500 * time.Millisecond},
		Greeting:        true,
		Profile:         types.DefaultProfile(),
		STTModel:        stt.DefaultWhisperModel,
		TTSModel:        tts.DefaultModel,
		SpeechSpeed:     tts.DefaultSpeed,
		EnhanceSpeech:   true,
	}
}

// withDefaults fills zero-valued fields from DefaultSessionConfig.
func (c SessionConfig) withDefaults() SessionConfig {
	def := DefaultSessionConfig()
	if c.Audio.SampleRate == 0 {
		c.Audio = def.Audio
	}
	if c.Segmenter.EnergyThreshold == 0 {
		c.Segmenter.EnergyThreshold = def.Segmenter.EnergyThreshold
	}
	if c.Segmenter.SilenceCommit == 0 {
		c.Segmenter.SilenceCommit = def.Segmenter.SilenceCommit
	}
	if c.Segmenter.MaxUtterance == 0 {
		c.Segmenter.MaxUtterance = def.Segmenter.MaxUtterance
	}
	if c.Segmenter.PrefixPadding == 0 {
		c.Segmenter.PrefixPadding = def.Segmenter.PrefixPadding
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = def.IdleTimeout
	}
	if c.HistoryWindow == 0 {
		c.HistoryWindow = def.HistoryWindow
	}
	if c.SwitchThreshold == 0 {
		c.SwitchThreshold = def.SwitchThreshold
	}
	if c.RetryBackoff == nil {
		c.RetryBackoff = def.RetryBackoff
	}
	if c.Profile.Primary == "" {
		c.Profile = def.Profile
	}
	if c.STTModel == "" {
		c.STTModel = def.STTModel
	}
	if c.TTSModel == "" {
		c.TTSModel = def.TTSModel
	}
	if c.SpeechSpeed == 0 {
		c.SpeechSpeed = def.SpeechSpeed
	}
	return c
}
