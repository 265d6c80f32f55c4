package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/upb/crossaudit-gateway/services/providers"
)

const (
	ProviderName   = "openai"
	defaultBaseURL = "https://api.openai.com/v1"
)

// OpenAIAdapter implements providers.ModelClient against the chat
// completions endpoint.
type OpenAIAdapter struct {
	config      providers.ProviderConfig
	credentials providers.CredentialSource
	httpClient  *http.Client
}

// NewOpenAIAdapter creates a new OpenAI adapter. The API key is looked up
// in credentials on every call, so keys set at runtime take effect.
func NewOpenAIAdapter(config providers.ProviderConfig, credentials providers.CredentialSource) *OpenAIAdapter {
	defaults := providers.DefaultProviderConfig()
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	if config.Model == "" {
		config.Model = defaults.Model
	}
	if config.Timeout == 0 {
		config.Timeout = defaults.Timeout
	}
	if config.RetryDelay == 0 {
		config.RetryDelay = defaults.RetryDelay
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	return &OpenAIAdapter{
		config:      config,
		credentials: credentials,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// Name returns the provider name
func (a *OpenAIAdapter) Name() string {
	return ProviderName
}

// Complete sends prompt as the user message. Context texts, when present,
// go first as a single system message.
func (a *OpenAIAdapter) Complete(ctx context.Context, prompt string, contextTexts []string) (string, error) {
	apiKey, ok := a.credentials.Get(ProviderName)
	if !ok || apiKey == "" {
		return "", fmt.Errorf("%s: %w", ProviderName, providers.ErrNoCredential)
	}

	reqBody, err := json.Marshal(a.buildRequest(prompt, contextTexts))
	if err != nil {
		return "", providers.NewProviderError(ProviderName, "MARSHAL_ERROR", "Failed to marshal request", 0, false, err)
	}

	status, respBody, err := a.do(ctx, apiKey, reqBody)
	if err != nil {
		return "", err
	}

	if status != http.StatusOK {
		return "", a.handleErrorResponse(status, respBody)
	}

	var openaiResp OpenAIChatResponse
	if err := json.Unmarshal(respBody, &openaiResp); err != nil {
		return "", providers.NewProviderError(ProviderName, "UNMARSHAL_ERROR", "Failed to unmarshal response", status, false, err)
	}
	if len(openaiResp.Choices) == 0 {
		return "", providers.NewProviderError(ProviderName, "EMPTY_RESPONSE", "Provider returned no choices", status, false, nil)
	}

	return openaiResp.Choices[0].Message.Content, nil
}

// do executes the request, retrying transport errors and 5xx responses.
func (a *OpenAIAdapter) do(ctx context.Context, apiKey string, body []byte) (int, []byte, error) {
	var lastErr error

	for attempt := 0; attempt <= a.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(a.config.RetryDelay * time.Duration(attempt)):
			case <-ctx.Done():
				return 0, nil, providers.NewProviderError(ProviderName, "CANCELLED", "Request cancelled", 0, false, ctx.Err())
			}
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.BaseURL+"/chat/completions", bytes.NewReader(body))
		if err != nil {
			return 0, nil, providers.NewProviderError(ProviderName, "REQUEST_ERROR", "Failed to create request", 0, false, err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Authorization", "Bearer "+apiKey)

		httpResp, err := a.httpClient.Do(httpReq)
		if err != nil {
			lastErr = providers.NewProviderError(ProviderName, "HTTP_ERROR", "HTTP request failed", 0, true, err)
			continue
		}

		respBody, err := io.ReadAll(httpResp.Body)
		httpResp.Body.Close()
		if err != nil {
			lastErr = providers.NewProviderError(ProviderName, "READ_ERROR", "Failed to read response", httpResp.StatusCode, true, err)
			continue
		}

		if httpResp.StatusCode >= 500 && attempt < a.config.MaxRetries {
			lastErr = a.handleErrorResponse(httpResp.StatusCode, respBody)
			continue
		}

		return httpResp.StatusCode, respBody, nil
	}

	return 0, nil, lastErr
}

func (a *OpenAIAdapter) buildRequest(prompt string, contextTexts []string) *OpenAIChatRequest {
	messages := make([]OpenAIMessage, 0, 2)
	if len(contextTexts) > 0 {
		messages = append(messages, OpenAIMessage{
			Role:    "system",
			Content: "Context:\n" + strings.Join(contextTexts, "\n---\n"),
		})
	}
	messages = append(messages, OpenAIMessage{Role: "user", Content: prompt})

	return &OpenAIChatRequest{
		Model:    a.config.Model,
		Messages: messages,
	}
}

// handleErrorResponse handles OpenAI error responses
func (a *OpenAIAdapter) handleErrorResponse(statusCode int, body []byte) error {
	var errResp OpenAIErrorResponse
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error.Message == "" {
		return providers.NewProviderError(ProviderName, "UNKNOWN_ERROR", fmt.Sprintf("unexpected status %d", statusCode), statusCode, statusCode >= 500, err)
	}

	retryable := statusCode >= 500 || statusCode == http.StatusTooManyRequests

	return providers.NewProviderError(
		ProviderName,
		errResp.Error.Type,
		errResp.Error.Message,
		statusCode,
		retryable,
		errors.New(errResp.Error.Message),
	)
}

// OpenAI-specific request/response types

type OpenAIChatRequest struct {
	Model    string          `json:"model"`
	Messages []OpenAIMessage `json:"messages"`
}

type OpenAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type OpenAIChatResponse struct {
	ID      string         `json:"id"`
	Object  string         `json:"object"`
	Created int64          `json:"created"`
	Model   string         `json:"model"`
	Choices []OpenAIChoice `json:"choices"`
	Usage   OpenAIUsage    `json:"usage"`
}

type OpenAIChoice struct {
	Index        int           `json:"index"`
	Message      OpenAIMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

type OpenAIUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type OpenAIErrorResponse struct {
	Error OpenAIError `json:"error"`
}

type OpenAIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}
