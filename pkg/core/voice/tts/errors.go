package tts

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/vaani-ai/vaani/pkg/core"
)

// openaiError is the error envelope returned by the OpenAI API.
type openaiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

// parseAPIError maps an OpenAI error response onto the shared taxonomy.
func parseAPIError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	message := string(body)
	var oe openaiError
	if err := json.Unmarshal(body, &oe); err == nil && oe.Error.Message != "" {
		message = oe.Error.Message
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return core.NewAuthenticationError(message)
	case resp.StatusCode == http.StatusTooManyRequests:
		retryAfter := 0
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			retryAfter, _ = strconv.Atoi(ra)
		}
		return core.NewRateLimitError(message, retryAfter)
	case resp.StatusCode >= 500:
		return core.NewUnavailableError(message)
	default:
		return core.NewInvalidRequestError(message)
	}
}
