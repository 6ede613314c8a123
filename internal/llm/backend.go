// Package llm talks to the generative text backend on behalf of the `ai`
// command, rotating through a pool of API keys when one runs out of quota.
package llm

import (
	"context"
	"errors"
	"net/http"

	"google.golang.org/genai"
)

// Conversation roles as stored in AI histories.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one message of a conversation.
type Turn struct {
	Role    string
	Content string
}

// Backend generates the next assistant message for a conversation whose last
// turn is the user's prompt.
type Backend interface {
	Generate(ctx context.Context, turns []Turn) (string, error)
}

var (
	// ErrQuotaExhausted marks an error as a per-key quota failure.
	ErrQuotaExhausted = errors.New("quota exhausted")
	// ErrOverloaded is returned after every key reported exhausted quota.
	ErrOverloaded = errors.New("Error: Server is currently overloaded (All API keys exhausted). Please try again later.")
	// ErrUnavailable is returned when no key or backend is configured.
	ErrUnavailable = errors.New("AI backend is not available")
)

// RequestError is a non-quota backend failure. Its text is shown to the user.
type RequestError struct {
	Err error
}

func (e *RequestError) Error() string {
	return "Error processing request: " + e.Err.Error()
}

func (e *RequestError) Unwrap() error { return e.Err }

// IsQuotaExhausted reports whether err means the active key is out of quota.
func IsQuotaExhausted(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrQuotaExhausted) {
		return true
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return quotaAPIError(apiErr)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return quotaAPIError(*apiErrPtr)
	}
	return false
}

func quotaAPIError(e genai.APIError) bool {
	return e.Code == http.StatusTooManyRequests || e.Status == "RESOURCE_EXHAUSTED"
}
