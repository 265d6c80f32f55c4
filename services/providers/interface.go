package providers

import (
	"context"
	"errors"
	"time"
)

// ModelClient is the external model-call collaborator used by the chat
// pipeline. Complete answers prompt using contextTexts as grounding.
type ModelClient interface {
	// Name returns the provider name
	Name() string

	// Complete returns the model's answer to prompt
	Complete(ctx context.Context, prompt string, contextTexts []string) (string, error)
}

// CredentialSource resolves the API credential for a provider.
type CredentialSource interface {
	Get(provider string) (string, bool)
}

// Message represents a chat message sent to a provider
type Message struct {
	// Role is "system", "user" or "assistant"
	Role string `json:"role"`

	// Content is the message content
	Content string `json:"content"`
}

// ProviderConfig holds configuration for a provider
type ProviderConfig struct {
	// BaseURL is the API base URL
	BaseURL string

	// Model is the model requested from the provider
	Model string

	// Timeout bounds a single HTTP attempt
	Timeout time.Duration

	// MaxRetries is the number of retries after the first attempt
	MaxRetries int

	// RetryDelay is multiplied by the attempt number between retries
	RetryDelay time.Duration
}

// DefaultProviderConfig returns a default provider configuration
func DefaultProviderConfig() ProviderConfig {
	return ProviderConfig{
		Model:      "gpt-3.5-turbo",
		Timeout:    30 * time.Second,
		MaxRetries: 2,
		RetryDelay: 500 * time.Millisecond,
	}
}

// ErrNoCredential is returned when no credential is stored for a provider.
var ErrNoCredential = errors.New("no credential configured for provider")

// ProviderError represents an error from a provider
type ProviderError struct {
	// Provider is the name of the provider that returned the error
	Provider string

	// Code is the provider-specific error code
	Code string

	// Message is the human-readable error message
	Message string

	// StatusCode is the HTTP status code, 0 for transport errors
	StatusCode int

	// Retryable indicates if the request can be retried
	Retryable bool

	// Cause is the underlying error
	Cause error
}

func (e *ProviderError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// NewProviderError creates a new provider error
func NewProviderError(provider, code, message string, statusCode int, retryable bool, cause error) *ProviderError {
	return &ProviderError{
		Provider:   provider,
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Retryable:  retryable,
		Cause:      cause,
	}
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	var provErr *ProviderError
	if errors.As(err, &provErr) {
		return provErr.Retryable
	}
	return false
}
