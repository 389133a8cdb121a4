package llm

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const (
	// OpenRouterBaseURL is used when the openrouter provider has no explicit base URL.
	OpenRouterBaseURL = "https://openrouter.ai/api/v1"
	// DefaultOpenRouterModel is the free instruct model used by default on OpenRouter.
	DefaultOpenRouterModel = "meta-llama/llama-3.1-8b-instruct:free"
	// DefaultOpenAIModel is used for the openai provider.
	DefaultOpenAIModel = "gpt-4o-mini"
	// AppTitle is sent to OpenRouter as X-Title.
	AppTitle = "AI Customer Support"
)

// OpenAIClient talks to any OpenAI-compatible chat completions API,
// including OpenRouter.
type OpenAIClient struct {
	client   openai.Client
	model    string
	provider string
}

// NewOpenAIClient creates an OpenAI-compatible client. Extra headers are
// attached to every request.
func NewOpenAIClient(provider, apiKey, baseURL, model string, headers map[string]string) *OpenAIClient {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	for k, v := range headers {
		if v != "" {
			opts = append(opts, option.WithHeader(k, v))
		}
	}
	if model == "" {
		model = DefaultOpenAIModel
	}
	return &OpenAIClient{
		client:   openai.NewClient(opts...),
		model:    model,
		provider: provider,
	}
}

// Provider returns the configured provider name.
func (c *OpenAIClient) Provider() string { return c.provider }

// CreateChatCompletion sends a chat completion request.
func (c *OpenAIClient) CreateChatCompletion(ctx context.Context, req *ChatCompletionRequest) (*ChatCompletionResponse, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}

	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.System != "" {
		msgs = append(msgs, openai.SystemMessage(req.System))
	}
	for _, m := range req.Messages {
		switch m.Role {
		case "assistant":
			msgs = append(msgs, openai.AssistantMessage(m.Content))
		case "system":
			msgs = append(msgs, openai.SystemMessage(m.Content))
		default:
			msgs = append(msgs, openai.UserMessage(m.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(model),
		Messages:    msgs,
		Temperature: openai.Float(req.Temperature),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("%s: chat completion: %w", c.provider, err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return nil, ErrEmptyResponse
	}

	return &ChatCompletionResponse{
		ID:      resp.ID,
		Model:   resp.Model,
		Content: resp.Choices[0].Message.Content,
		Usage: &Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}, nil
}
