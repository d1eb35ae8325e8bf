package aiclient

import (
	"errors"
	"fmt"
	"net/http"
)

// Message is a single chat message in OpenAI-compatible wire format.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is a chat completion request, compatible with the OpenAI API
// format used by OpenRouter and most hosted providers.
type ChatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
}

// ChatResponse is a chat completion response.
type ChatResponse struct {
	ID      string    `json:"id"`
	Model   string    `json:"model"`
	Choices []Choice  `json:"choices"`
	Usage   Usage     `json:"usage"`
	Error   *APIError `json:"error,omitempty"`
}

type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// APIError is the error object some providers embed in the response body.
type APIError struct {
	Message string `json:"message"`
	Type    string `json:"type,omitempty"`
	Code    string `json:"code,omitempty"`
}

// Error is a classified translation failure. StatusCode carries the upstream
// HTTP status when one was received; transport-level failures (timeouts,
// connection resets) have no status code but are still retryable.
type Error struct {
	Message    string
	StatusCode int

	transport bool
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("translation failed (%d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("translation failed: %s", e.Message)
}

// Retryable reports whether the failure is transient: rate limiting, server
// errors, and transport failures. Everything else (bad credentials, client
// errors, empty responses) is permanent.
func (e *Error) Retryable() bool {
	if e.transport {
		return true
	}
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

func newTransportError(err error) *Error {
	return &Error{Message: err.Error(), transport: true}
}

// IsRetryable reports whether err is a classified transient upstream failure.
func IsRetryable(err error) bool {
	var clientErr *Error
	if errors.As(err, &clientErr) {
		return clientErr.Retryable()
	}
	return false
}

// StatusCode extracts the upstream HTTP status from a classified error,
// or 0 when none applies.
func StatusCode(err error) int {
	var clientErr *Error
	if errors.As(err, &clientErr) {
		return clientErr.StatusCode
	}
	return 0
}
