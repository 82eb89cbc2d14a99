// Package stt provides speech-to-text functionality.
package stt

import (
	"context"
	"io"
)

// Provider is the interface for speech-to-text services.
// Utterances are segmented upstream and transcribed whole, so the surface
// is a single blocking call per utterance.
type Provider interface {
	// Name returns the provider identifier.
	Name() string

	// Transcribe converts one utterance of audio to text.
	Transcribe(ctx context.Context, audio io.Reader, opts TranscribeOptions) (*Transcript, error)
}

// TranscribeOptions configures transcription.
type TranscribeOptions struct {
	Model       string  // Provider-specific model (default: "whisper-1")
	Language    string  // ISO language hint; empty lets the model detect
	Format      string  // Audio format hint (wav, mp3, webm, etc.)
	SampleRate  int     // Audio sample rate in Hz
	Prompt      string  // Optional vocabulary hint for the decoder
	Temperature float64 // Sampling temperature, 0 for deterministic output
}

// Transcript is the result of transcription.
type Transcript struct {
	Text       string  // Full transcribed text
	Language   string  // Detected or specified language, full name ("tamil")
	Confidence float64 // 0.0 to 1.0, derived from segment log-probabilities
	Duration   float64 // Audio duration in seconds
}
