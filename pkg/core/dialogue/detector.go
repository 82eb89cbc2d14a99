package dialogue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/vaani-ai/vaani/pkg/core/providers/openai"
	"github.com/vaani-ai/vaani/pkg/core/types"
)

const (
	detectorTemperature = 0.1
	detectorMaxTokens   = 200

	detectorSystemPrompt = "You are a South Indian language expert. Respond only with valid JSON."
)

// Detector classifies the language make-up of one utterance.
type Detector struct {
	client ChatClient
	model  string
	logger *slog.Logger
}

// DetectorOption configures a Detector.
type DetectorOption func(*Detector)

// WithDetectorModel overrides the classification model.
func WithDetectorModel(model string) DetectorOption {
	return func(d *Detector) {
		if model != "" {
			d.model = model
		}
	}
}

// WithDetectorLogger sets the logger.
func WithDetectorLogger(logger *slog.Logger) DetectorOption {
	return func(d *Detector) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// NewDetector creates a language detector backed by a chat model.
func NewDetector(client ChatClient, opts ...DetectorOption) *Detector {
	d := &Detector{
		client: client,
		model:  openai.DefaultChatModel,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// detectionResult is the JSON shape the model is asked for.
type detectionResult struct {
	PrimaryLanguage   string  `json:"primary_language"`
	SecondaryLanguage string  `json:"secondary_language"`
	Confidence        float64 `json:"confidence"`
	IsCodeMixed       bool    `json:"is_code_mixed"`
	MixRatio          float64 `json:"mix_ratio"`
	Reasoning         string  `json:"reasoning"`
}

// Detect analyzes text and returns its language profile. hint is the
// transcription model's own language attribution and seeds the fallback:
// when detection fails, the returned analysis carries the hint (or
// English) at confidence 0.5 so it can label the turn but never mutate
// the session profile.
func (d *Detector) Detect(ctx context.Context, text string, hint types.Language) (types.Analysis, error) {
	fallback := types.Analysis{
		Primary:    types.LanguageEnglish,
		Confidence: 0.5,
	}
	if hint.Valid() && hint != types.LanguageMixed {
		fallback.Primary = hint
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return fallback, fmt.Errorf("detect: empty text")
	}

	resp, err := d.client.CreateChatCompletion(ctx, &openai.ChatRequest{
		Model: d.model,
		Messages: []openai.ChatMessage{
			openai.SystemMessage(detectorSystemPrompt),
			openai.UserMessage(detectionPrompt(text)),
		},
		Temperature:    openai.Float64Ptr(detectorTemperature),
		MaxTokens:      openai.IntPtr(detectorMaxTokens),
		ResponseFormat: openai.JSONResponseFormat(),
	})
	if err != nil {
		d.logger.Warn("language detection failed", "error", err)
		return fallback, err
	}

	var res detectionResult
	if err := json.Unmarshal([]byte(resp.Text()), &res); err != nil {
		d.logger.Warn("language detection returned invalid json", "error", err)
		return fallback, fmt.Errorf("detect: parse result: %w", err)
	}

	primary, err := types.ParseLanguage(res.PrimaryLanguage)
	if err != nil {
		return fallback, fmt.Errorf("detect: %w", err)
	}

	analysis := types.Analysis{
		Primary:    primary,
		Confidence: clamp01(res.Confidence),
		CodeMixed:  res.IsCodeMixed,
		MixRatio:   clamp01(res.MixRatio),
		Reasoning:  res.Reasoning,
	}
	if secondary, err := types.ParseLanguage(res.SecondaryLanguage); err == nil && secondary != primary {
		analysis.Secondary = secondary
	}
	return analysis, nil
}

func detectionPrompt(text string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Analyze the language of this utterance from a South Indian voice conversation: %q\n\n", text)
	b.WriteString("The text is romanized (English letters) and may code-mix an Indian language with English.\n\n")
	b.WriteString("Respond with only a JSON object of this exact shape:\n")
	b.WriteString(`{"primary_language": "...", "secondary_language": "...", "confidence": 0.0, "is_code_mixed": false, "mix_ratio": 0.0, "reasoning": "..."}` + "\n\n")
	b.WriteString("primary_language and secondary_language must be one of: tamil, telugu, kannada, malayalam, english.\n")
	b.WriteString("primary_language is the language carrying the sentence's grammar. ")
	b.WriteString("mix_ratio is the fraction of words NOT in the primary language. ")
	b.WriteString("A sentence that is entirely one language has is_code_mixed false and mix_ratio 0.")
	return b.String()
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
