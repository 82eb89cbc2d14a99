// Package tts provides text-to-speech functionality.
package tts

import (
	"context"
)

// Provider is the interface for text-to-speech services.
type Provider interface {
	// Name returns the provider identifier.
	Name() string

	// Synthesize converts text to audio.
	Synthesize(ctx context.Context, text string, opts SynthesizeOptions) (*Synthesis, error)

	// SynthesizeStream converts text to streaming audio. Chunks arrive as
	// the provider produces them, so playback can start before the full
	// reply is rendered.
	SynthesizeStream(ctx context.Context, text string, opts SynthesizeOptions) (*SynthesisStream, error)
}

// SynthesizeOptions configures synthesis.
type SynthesizeOptions struct {
	Model      string  // Provider-specific model (default: "tts-1-hd")
	Voice      string  // Voice identifier (default: "nova")
	Speed      float64 // Speed multiplier (0.25-4.0, default 0.9)
	Language   string  // Language tag, used as a rendering hint
	Format     string  // Output format: "wav", "mp3", or "pcm"
	SampleRate int     // Sample rate for pcm output
}

// Synthesis is the result of synthesis.
type Synthesis struct {
	Audio    []byte  // Audio data
	Format   string  // Audio format
	Duration float64 // Duration in seconds (if available)
}

// SynthesisStream provides streaming audio output.
type SynthesisStream struct {
	chunks chan []byte
	err    error
	done   chan struct{}
}

// NewSynthesisStream creates a new synthesis stream.
func NewSynthesisStream() *SynthesisStream {
	return &SynthesisStream{
		chunks: make(chan []byte, 100),
		done:   make(chan struct{}),
	}
}

// Chunks returns the channel of audio chunks.
func (s *SynthesisStream) Chunks() <-chan []byte {
	return s.chunks
}

// Err returns any error that occurred. Blocks until the stream is closed.
func (s *SynthesisStream) Err() error {
	<-s.done
	return s.err
}

// Close closes the stream.
func (s *SynthesisStream) Close() error {
	select {
	case <-s.done:
		// Already closed
	default:
		close(s.done)
	}
	return nil
}

// SetError sets the stream error.
func (s *SynthesisStream) SetError(err error) {
	s.err = err
}

// Send sends a chunk to the stream. Returns false if stream is closed.
func (s *SynthesisStream) Send(chunk []byte) bool {
	select {
	case s.chunks <- chunk:
		return true
	case <-s.done:
		return false
	}
}

// FinishSending closes the chunks channel to signal completion.
func (s *SynthesisStream) FinishSending() {
	close(s.chunks)
}
