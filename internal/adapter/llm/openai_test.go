package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAIClientCreateChatCompletion(t *testing.T) {
	var got map[string]any
	var headers http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		headers = r.Header.Clone()
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","created":1,"model":"test-model",
			"choices":[{"index":0,"message":{"role":"assistant","content":"  Hello there  "},"finish_reason":"stop"}],
			"usage":{"prompt_tokens":5,"completion_tokens":3,"total_tokens":8}}`))
	}))
	defer srv.Close()

	client := NewOpenAIClient(ProviderOpenRouter, "key-1", srv.URL+"/api/v1", "test-model", map[string]string{
		"HTTP-Referer": "http://localhost:3000",
		"X-Title":      AppTitle,
	})
	resp, err := client.CreateChatCompletion(context.Background(), &ChatCompletionRequest{
		System:      "be helpful",
		Messages:    []ChatMessage{{Role: "user", Content: "hi"}, {Role: "assistant", Content: "hello"}, {Role: "user", Content: "help"}},
		MaxTokens:   500,
		Temperature: 0.7,
	})
	require.NoError(t, err)

	assert.Equal(t, "  Hello there  ", resp.Content)
	assert.Equal(t, 8, resp.Usage.TotalTokens)
	assert.Equal(t, "Bearer key-1", headers.Get("Authorization"))
	assert.Equal(t, AppTitle, headers.Get("X-Title"))
	assert.Equal(t, "http://localhost:3000", headers.Get("HTTP-Referer"))

	assert.Equal(t, "test-model", got["model"])
	assert.EqualValues(t, 500, got["max_tokens"])
	assert.InDelta(t, 0.7, got["temperature"], 0.0001)
	msgs, ok := got["messages"].([]any)
	require.True(t, ok)
	require.Len(t, msgs, 4)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	assert.Equal(t, "assistant", msgs[2].(map[string]any)["role"])
}

func TestOpenAIClientErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, `{"error":{"message":"boom"}}`},
		{"no choices", http.StatusOK, `{"id":"c1","object":"chat.completion","created":1,"model":"m","choices":[]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			client := NewOpenAIClient(ProviderOpenAI, "k", srv.URL, "m", nil)
			_, err := client.CreateChatCompletion(context.Background(), &ChatCompletionRequest{
				Messages: []ChatMessage{{Role: "user", Content: "hi"}},
			})
			assert.Error(t, err)
		})
	}
}
