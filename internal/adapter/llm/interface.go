// Package llm provides an abstraction for completion backends.
package llm

import (
	"context"
	"errors"
)

var (
	// ErrNotConfigured is returned when no API key is available for the provider.
	ErrNotConfigured = errors.New("llm: api key not configured")
	// ErrEmptyResponse is returned when the backend answers without any text.
	ErrEmptyResponse = errors.New("llm: invalid response format, no completion text")
)

// LLMClient defines the interface for completion backends.
type LLMClient interface {
	// CreateChatCompletion sends a non-streaming completion request.
	CreateChatCompletion(ctx context.Context, req *ChatCompletionRequest) (*ChatCompletionResponse, error)

	// Provider names the backend, used in logs and metrics.
	Provider() string
}

// ChatMessage is one message of the conversation sent upstream.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatCompletionRequest carries everything the backends need.
// System is sent as the provider's system instruction.
type ChatCompletionRequest struct {
	Model       string        `json:"model,omitempty"`
	System      string        `json:"system,omitempty"`
	Messages    []ChatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
}

// ChatCompletionResponse is the normalized completion result.
type ChatCompletionResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Content string `json:"content"`
	Usage   *Usage `json:"usage,omitempty"`
}

// Usage represents token usage information.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Ensure clients implement LLMClient interface.
var (
	_ LLMClient = (*OpenAIClient)(nil)
	_ LLMClient = (*AnthropicClient)(nil)
	_ LLMClient = (*MockClient)(nil)
	_ LLMClient = unconfiguredClient{}
)
