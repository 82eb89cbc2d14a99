package core

import (
	"errors"
	"fmt"
)

// Error represents a pipeline or upstream API error.
type Error struct {
	Type       ErrorType `json:"type"`
	Message    string    `json:"message"`
	Code       string    `json:"code,omitempty"`
	RequestID  string    `json:"request_id,omitempty"`
	Cause      error     `json:"-"`
	RetryAfter *int      `json:"retry_after,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (code: %s)", e.Type, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// ErrorType categorizes errors.
//
// The stage types (transcription, generation, synthesis, device) say which
// part of the voice pipeline failed and drive the orchestrator's recovery
// paths. The transport types (invalid_request, authentication, rate_limit,
// unavailable) classify upstream HTTP failures and are usually found wrapped
// inside a stage error.
type ErrorType string

const (
	ErrTranscription  ErrorType = "transcription_error"
	ErrGeneration     ErrorType = "generation_error"
	ErrSynthesis      ErrorType = "synthesis_error"
	ErrDevice         ErrorType = "device_error"
	ErrInvalidRequest ErrorType = "invalid_request_error"
	ErrAuthentication ErrorType = "authentication_error"
	ErrRateLimit      ErrorType = "rate_limit_error"
	ErrUnavailable    ErrorType = "unavailable_error"
)

// Codes attached to generation errors.
const (
	CodeRateLimited    = "rate_limited"
	CodePolicyRejected = "policy_rejected"
)

// NewTranscriptionError wraps a failed speech-to-text attempt.
func NewTranscriptionError(message string, cause error) *Error {
	return &Error{
		Type:    ErrTranscription,
		Message: message,
		Cause:   cause,
	}
}

// NewGenerationError wraps a failed response generation attempt.
func NewGenerationError(message string, cause error) *Error {
	e := &Error{
		Type:    ErrGeneration,
		Message: message,
		Cause:   cause,
	}
	var inner *Error
	if errors.As(cause, &inner) && inner.Type == ErrRateLimit {
		e.Code = CodeRateLimited
	}
	return e
}

// NewPolicyRejectionError marks a generation refused by the model's safety
// layer. Policy rejections are terminal for the turn.
func NewPolicyRejectionError(message string) *Error {
	return &Error{
		Type:    ErrGeneration,
		Message: message,
		Code:    CodePolicyRejected,
	}
}

// NewSynthesisError wraps a failed text-to-speech attempt.
func NewSynthesisError(message string, cause error) *Error {
	return &Error{
		Type:    ErrSynthesis,
		Message: message,
		Cause:   cause,
	}
}

// NewDeviceError wraps a capture or playback device failure.
func NewDeviceError(message string, cause error) *Error {
	return &Error{
		Type:    ErrDevice,
		Message: message,
		Cause:   cause,
	}
}

// NewInvalidRequestError creates an invalid request error.
func NewInvalidRequestError(message string) *Error {
	return &Error{
		Type:    ErrInvalidRequest,
		Message: message,
	}
}

// NewAuthenticationError creates an authentication error.
func NewAuthenticationError(message string) *Error {
	return &Error{
		Type:    ErrAuthentication,
		Message: message,
	}
}

// NewRateLimitError creates a rate limit error.
func NewRateLimitError(message string, retryAfter int) *Error {
	return &Error{
		Type:       ErrRateLimit,
		Message:    message,
		RetryAfter: &retryAfter,
	}
}

// NewUnavailableError creates an error for upstream 5xx responses and
// timeouts.
func NewUnavailableError(message string) *Error {
	return &Error{
		Type:    ErrUnavailable,
		Message: message,
	}
}

// IsRetryable reports whether retrying the same request may succeed.
// Stage errors defer to their wrapped transport error.
func (e *Error) IsRetryable() bool {
	switch e.Type {
	case ErrRateLimit, ErrUnavailable:
		return true
	case ErrTranscription, ErrSynthesis:
		var inner *Error
		if errors.As(e.Cause, &inner) {
			return inner.IsRetryable()
		}
		return e.Cause != nil
	default:
		return false
	}
}

// Unwrap returns the underlying error for error wrapping.
func (e *Error) Unwrap() error {
	return e.Cause
}

// IsType reports whether err is a *Error of the given type.
func IsType(err error, t ErrorType) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Type == t
}
