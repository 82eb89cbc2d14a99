package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vaani-ai/vaani/pkg/core"
)

func TestCreateChatCompletion(t *testing.T) {
	var got ChatRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q, want /chat/completions", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("auth = %q", auth)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content-type = %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode request: %v", err)
		}

		json.NewEncoder(w).Encode(ChatResponse{
			ID:    "chatcmpl-1",
			Model: "gpt-4o-mini",
			Choices: []Choice{
				{Message: ChatMessage{Role: "assistant", Content: "  Vanakkam! Epdi irukkeenga?  "}, FinishReason: "stop"},
			},
			Usage: Usage{PromptTokens: 20, CompletionTokens: 8, TotalTokens: 28},
		})
	}))
	defer srv.Close()

	p := New("test-key", WithBaseURL(srv.URL))
	resp, err := p.CreateChatCompletion(context.Background(), &ChatRequest{
		Messages: []ChatMessage{
			SystemMessage("be brief"),
			UserMessage("vanakkam"),
		},
		Temperature: Float64Ptr(0.7),
		MaxTokens:   IntPtr(300),
	})
	if err != nil {
		t.Fatalf("CreateChatCompletion: %v", err)
	}

	if got.Model != DefaultChatModel {
		t.Errorf("model = %q, want default %q", got.Model, DefaultChatModel)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" {
		t.Errorf("messages = %+v", got.Messages)
	}
	if got.Temperature == nil || *got.Temperature != 0.7 {
		t.Errorf("temperature = %v", got.Temperature)
	}
	if got.MaxTokens == nil || *got.MaxTokens != 300 {
		t.Errorf("max tokens = %v", got.MaxTokens)
	}

	if resp.Text() != "Vanakkam! Epdi irukkeenga?" {
		t.Errorf("Text() = %q", resp.Text())
	}
	if resp.PolicyRejected() {
		t.Error("PolicyRejected() = true for finish_reason stop")
	}
}

func TestCreateChatCompletion_JSONMode(t *testing.T) {
	var got ChatRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(ChatResponse{
			Choices: []Choice{{Message: ChatMessage{Content: `{"primary_language":"tamil"}`}, FinishReason: "stop"}},
		})
	}))
	defer srv.Close()

	p := New("k", WithBaseURL(srv.URL))
	_, err := p.CreateChatCompletion(context.Background(), &ChatRequest{
		Messages:       []ChatMessage{UserMessage("classify")},
		ResponseFormat: JSONResponseFormat(),
	})
	if err != nil {
		t.Fatalf("CreateChatCompletion: %v", err)
	}
	if got.ResponseFormat == nil || got.ResponseFormat.Type != "json_object" {
		t.Errorf("response_format = %+v, want json_object", got.ResponseFormat)
	}
}

func TestCreateChatCompletion_ErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		wantType core.ErrorType
	}{
		{"bad_request", http.StatusBadRequest, core.ErrInvalidRequest},
		{"unauthorized", http.StatusUnauthorized, core.ErrAuthentication},
		{"rate_limited", http.StatusTooManyRequests, core.ErrRateLimit},
		{"server_error", http.StatusBadGateway, core.ErrUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.status == http.StatusTooManyRequests {
					w.Header().Set("Retry-After", "7")
				}
				w.WriteHeader(tt.status)
				json.NewEncoder(w).Encode(map[string]any{
					"error": map[string]any{"message": "boom", "type": "x"},
				})
			}))
			defer srv.Close()

			p := New("k", WithBaseURL(srv.URL))
			_, err := p.CreateChatCompletion(context.Background(), &ChatRequest{
				Messages: []ChatMessage{UserMessage("hi")},
			})
			if err == nil {
				t.Fatal("expected error")
			}
			if !core.IsType(err, tt.wantType) {
				t.Errorf("error = %v, want type %s", err, tt.wantType)
			}

			if tt.status == http.StatusTooManyRequests {
				var ce *core.Error
				if !errors.As(err, &ce) || ce.RetryAfter == nil || *ce.RetryAfter != 7 {
					t.Errorf("RetryAfter not propagated: %v", err)
				}
			}
		})
	}
}

func TestChatResponse_PolicyRejected(t *testing.T) {
	r := &ChatResponse{Choices: []Choice{{FinishReason: "content_filter"}}}
	if !r.PolicyRejected() {
		t.Error("PolicyRejected() = false for content_filter")
	}
}
