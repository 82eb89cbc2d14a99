package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/vaani-ai/vaani/pkg/core"
)

const (
	openaiDefaultBaseURL = "https://api.openai.com/v1"

	// DefaultWhisperModel is the transcription model used when none is set.
	DefaultWhisperModel = "whisper-1"
)

// OpenAIProvider transcribes audio with OpenAI's Whisper API.
type OpenAIProvider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewOpenAI creates a Whisper-backed STT provider.
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

// Transcribe uploads one utterance and returns its transcript. The model
// auto-detects the spoken language unless opts.Language is set, which is
// what allows code-mixed Tamil/English speech to come back romanized with
// a language attribution.
func (o *OpenAIProvider) Transcribe(ctx context.Context, audio io.Reader, opts TranscribeOptions) (*Transcript, error) {
	if o.apiKey == "" {
		return nil, core.NewAuthenticationError("openai api key is required")
	}

	model := opts.Model
	if model == "" {
		model = DefaultWhisperModel
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fw, err := w.CreateFormFile("file", "audio."+getExtension(opts.Format))
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(fw, audio); err != nil {
		return nil, fmt.Errorf("copy audio: %w", err)
	}

	_ = w.WriteField("model", model)
	_ = w.WriteField("response_format", "verbose_json")
	if opts.Language != "" {
		_ = w.WriteField("language", opts.Language)
	}
	if opts.Prompt != "" {
		_ = w.WriteField("prompt", opts.Prompt)
	}
	if opts.Temperature > 0 {
		_ = w.WriteField("temperature", strconv.FormatFloat(opts.Temperature, 'f', -1, 64))
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	url := o.baseURL + "/audio/transcriptions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, parseAPIError(resp)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var wr whisperResponse
	if err := json.Unmarshal(body, &wr); err != nil {
		return nil, fmt.Errorf("parse transcription response: %w", err)
	}

	return &Transcript{
		Text:       strings.TrimSpace(wr.Text),
		Language:   strings.ToLower(strings.TrimSpace(wr.Language)),
		Confidence: wr.confidence(),
		Duration:   wr.Duration,
	}, nil
}

// whisperResponse is the verbose_json shape from /audio/transcriptions.
type whisperResponse struct {
	Task     string           `json:"task"`
	Language string           `json:"language"`
	Duration float64          `json:"duration"`
	Text     string           `json:"text"`
	Segments []whisperSegment `json:"segments"`
}

type whisperSegment struct {
	Text         string  `json:"text"`
	AvgLogprob   float64 `json:"avg_logprob"`
	NoSpeechProb float64 `json:"no_speech_prob"`
}

// confidence converts segment log-probabilities into a 0..1 score.
func (r whisperResponse) confidence() float64 {
	if len(r.Segments) == 0 {
		if strings.TrimSpace(r.Text) == "" {
			return 0
		}
		return 0.8
	}
	var sum float64
	for _, s := range r.Segments {
		sum += math.Exp(s.AvgLogprob)
	}
	c := sum / float64(len(r.Segments))
	if c > 1 {
		c = 1
	}
	return c
}

// getExtension maps a format hint to a file extension for the upload name.
func getExtension(format string) string {
	switch strings.ToLower(format) {
	case "", "wav":
		return "wav"
	case "mp3":
		return "mp3"
	case "webm":
		return "webm"
	case "ogg":
		return "ogg"
	case "flac":
		return "flac"
	case "m4a":
		return "m4a"
	default:
		return "wav"
	}
}
