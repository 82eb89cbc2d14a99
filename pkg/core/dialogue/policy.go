// Package dialogue implements the reply policy for code-mixed South
// Indian voice conversations: prompt construction, reply generation,
// language detection and the hysteresis gate that governs language
// switches.
package dialogue

import (
	"context"
	"log/slog"

	"github.com/vaani-ai/vaani/pkg/core"
	"github.com/vaani-ai/vaani/pkg/core/providers/openai"
	"github.com/vaani-ai/vaani/pkg/core/types"
)

const (
	// DefaultHistoryWindow is how many committed turns are replayed into
	// the prompt.
	DefaultHistoryWindow = 20

	defaultTemperature = 0.7
	defaultMaxTokens   = 300

	enhanceTemperature = 0.3
	enhanceMaxTokens   = 200
)

// ChatClient is the slice of the OpenAI provider the policy needs.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, req *openai.ChatRequest) (*openai.ChatResponse, error)
}

// Policy turns transcribed user speech into assistant replies.
type Policy struct {
	client      ChatClient
	model       string
	temperature float64
	maxTokens   int
	window      int
	logger      *slog.Logger
}

// PolicyOption configures a Policy.
type PolicyOption func(*Policy)

// WithModel overrides the reply model.
func WithModel(model string) PolicyOption {
	return func(p *Policy) {
		if model != "" {
			p.model = model
		}
	}
}

// WithHistoryWindow sets how many turns of history feed the prompt.
func WithHistoryWindow(n int) PolicyOption {
	return func(p *Policy) {
		if n > 0 {
			p.window = n
		}
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) PolicyOption {
	return func(p *Policy) {
		p.temperature = t
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) PolicyOption {
	return func(p *Policy) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewPolicy creates the dialogue policy.
func NewPolicy(client ChatClient, opts ...PolicyOption) *Policy {
	p := &Policy{
		client:      client,
		model:       openai.DefaultChatModel,
		temperature: defaultTemperature,
		maxTokens:   defaultMaxTokens,
		window:      DefaultHistoryWindow,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Respond generates the assistant reply to the newest user turn, which
// must already be the last entry of history. Only the trailing window of
// history is replayed; the analysis shapes the code-mixing instructions.
func (p *Policy) Respond(ctx context.Context, profile types.LanguageProfile, history []types.Turn, analysis types.Analysis) (string, error) {
	msgs := []openai.ChatMessage{
		openai.SystemMessage(systemPrompt(profile, analysis)),
	}

	window := history
	if len(window) > p.window {
		window = window[len(window)-p.window:]
	}
	for _, turn := range window {
		switch turn.Speaker {
		case types.SpeakerUser:
			msgs = append(msgs, openai.UserMessage(turn.Text))
		case types.SpeakerSystem:
			msgs = append(msgs, openai.AssistantMessage(turn.Text))
		}
	}

	resp, err := p.client.CreateChatCompletion(ctx, &openai.ChatRequest{
		Model:       p.model,
		Messages:    msgs,
		Temperature: openai.Float64Ptr(p.temperature),
		MaxTokens:   openai.IntPtr(p.maxTokens),
	})
	if err != nil {
		return "", core.NewGenerationError("chat completion failed", err)
	}
	if resp.PolicyRejected() {
		return "", core.NewPolicyRejectionError("reply was refused by the model's safety layer")
	}

	text := resp.Text()
	if text == "" {
		return "", core.NewGenerationError("chat completion returned no text", nil)
	}
	return text, nil
}

// EnhanceForSpeech rewrites a reply so it renders better through the
// speech model: pronunciation-friendly romanized spellings with the
// code-mixing preserved. Any failure returns the original text.
func (p *Policy) EnhanceForSpeech(ctx context.Context, text string, profile types.LanguageProfile) string {
	if profile.Primary == types.LanguageEnglish {
		return text
	}

	resp, err := p.client.CreateChatCompletion(ctx, &openai.ChatRequest{
		Model: p.model,
		Messages: []openai.ChatMessage{
			openai.SystemMessage(enhanceSystemPrompt(profile)),
			openai.UserMessage(text),
		},
		Temperature: openai.Float64Ptr(enhanceTemperature),
		MaxTokens:   openai.IntPtr(enhanceMaxTokens),
	})
	if err != nil {
		p.logger.Warn("speech enhancement failed, using original text", "error", err)
		return text
	}
	if enhanced := resp.Text(); enhanced != "" {
		return enhanced
	}
	return text
}
