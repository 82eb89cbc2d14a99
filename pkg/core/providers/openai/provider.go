// Package openai implements the OpenAI Chat Completions API client used
// for reply generation, language detection and speech-text enhancement.
package openai

import (
	"context"
	"net/http"
	"strings"
)

const (
	// DefaultBaseURL is the default OpenAI API endpoint.
	DefaultBaseURL = "https://api.openai.com/v1"

	// DefaultChatModel balances latency and quality for conversational
	// turns.
	DefaultChatModel = "gpt-4o-mini"
)

// Provider implements the OpenAI Chat Completions API.
type Provider struct {
	apiKey       string
	baseURL      string
	httpClient   *http.Client
	extraHeaders map[string]string
}

// New creates a new OpenAI provider.
func New(apiKey string, opts ...Option) *Provider {
	p := &Provider{
		apiKey:     strings.TrimSpace(apiKey),
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return "openai"
}

// CreateChatCompletion sends a non-streaming chat request.
func (p *Provider) CreateChatCompletion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	if req.Model == "" {
		req.Model = DefaultChatModel
	}

	respBody, err := p.doRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	return parseResponse(respBody)
}
