package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/vaani-ai/vaani/pkg/core"
)

const (
	openaiDefaultBaseURL = "https://api.openai.com/v1"

	// DefaultModel is the speech model used when none is set.
	DefaultModel = "tts-1-hd"

	// DefaultVoice renders South Indian English and romanized Indic text
	// most naturally of the available voices.
	DefaultVoice = "nova"

	// DefaultSpeed is slightly slower than realtime so code-mixed phrases
	// stay intelligible.
	DefaultSpeed = 0.9
)

// Voices lists the voice identifiers accepted by the speech endpoint.
var Voices = []string{"alloy", "echo", "fable", "onyx", "nova", "shimmer"}

// ValidVoice reports whether v names a known voice.
func ValidVoice(v string) bool {
	for _, known := range Voices {
		if v == known {
			return true
		}
	}
	return false
}

// OpenAIProvider synthesizes speech with OpenAI's audio API.
type OpenAIProvider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewOpenAI creates an OpenAI-backed TTS provider.
func NewOpenAI(apiKey string) *OpenAIProvider {
	return &OpenAIProvider{
		apiKey:     strings.TrimSpace(apiKey),
		baseURL:    openaiDefaultBaseURL,
		httpClient: &http.Client{},
	}
}

// NewOpenAIWithClient creates a provider with a custom HTTP client.
func NewOpenAIWithClient(apiKey string, client *http.Client) *OpenAIProvider {
	if client == nil {
		client = &http.Client{}
	}
	return &OpenAIProvider{
		apiKey:     strings.TrimSpace(apiKey),
		baseURL:    openaiDefaultBaseURL,
		httpClient: client,
	}
}

// WithBaseURL overrides the API endpoint, mainly for tests.
func (o *OpenAIProvider) WithBaseURL(base string) *OpenAIProvider {
	base = strings.TrimSpace(base)
	if base != "" {
		o.baseURL = strings.TrimRight(base, "/")
	}
	return o
}

// Name returns the provider identifier.
func (o *OpenAIProvider) Name() string {
	return "openai"
}

// speechRequest is the JSON body for /audio/speech.
type speechRequest struct {
	Model          string  `json:"model"`
	Input          string  `json:"input"`
	Voice          string  `json:"voice"`
	ResponseFormat string  `json:"response_format,omitempty"`
	Speed          float64 `json:"speed,omitempty"`
}

// Synthesize renders text to audio in one call.
func (o *OpenAIProvider) Synthesize(ctx context.Context, text string, opts SynthesizeOptions) (*Synthesis, error) {
	resp, err := o.doSpeechRequest(ctx, text, opts)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}

	return &Synthesis{
		Audio:  audio,
		Format: getFormat(opts.Format),
	}, nil
}

// SynthesizeStream renders text to audio, delivering chunks as the
// response body arrives.
func (o *OpenAIProvider) SynthesizeStream(ctx context.Context, text string, opts SynthesizeOptions) (*SynthesisStream, error) {
	resp, err := o.doSpeechRequest(ctx, text, opts)
	if err != nil {
		return nil, err
	}

	stream := NewSynthesisStream()
	go func() {
		defer resp.Body.Close()
		defer stream.Close()
		defer stream.FinishSending()

		buf := make([]byte, 4096)
		for {
			n, err := resp.Body.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				if !stream.Send(chunk) {
					return
				}
			}
			if err == io.EOF {
				return
			}
			if err != nil {
				stream.SetError(err)
				return
			}
		}
	}()

	return stream, nil
}

func (o *OpenAIProvider) doSpeechRequest(ctx context.Context, text string, opts SynthesizeOptions) (*http.Response, error) {
	if o.apiKey == "" {
		return nil, core.NewAuthenticationError("openai api key is required")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, core.NewInvalidRequestError("synthesis text is empty")
	}

	sr := speechRequest{
		Model:          opts.Model,
		Input:          text,
		Voice:          opts.Voice,
		ResponseFormat: getFormat(opts.Format),
		Speed:          opts.Speed,
	}
	if sr.Model == "" {
		sr.Model = DefaultModel
	}
	if sr.Voice == "" || !ValidVoice(sr.Voice) {
		sr.Voice = DefaultVoice
	}
	if sr.Speed == 0 {
		sr.Speed = DefaultSpeed
	}

	body, err := json.Marshal(sr)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := o.baseURL + "/audio/speech"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		return nil, parseAPIError(resp)
	}
	return resp, nil
}

// getFormat normalizes the output format, defaulting to pcm for direct
// playback.
func getFormat(format string) string {
	switch strings.ToLower(format) {
	case "mp3":
		return "mp3"
	case "wav":
		return "wav"
	case "opus":
		return "opus"
	case "aac":
		return "aac"
	case "flac":
		return "flac"
	case "", "pcm":
		return "pcm"
	default:
		return "pcm"
	}
}
