package service

import (
	"context"
	"fmt"
	"log"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/xiaot623/gogo/supportchat/internal/adapter/llm"
	"github.com/xiaot623/gogo/supportchat/internal/config"
	"github.com/xiaot623/gogo/supportchat/internal/domain"
)

const systemPrompt = `You are a helpful AI customer support assistant. You should:
- Be friendly, professional, and helpful
- Provide accurate and concise responses
- Ask clarifying questions when needed
- Escalate complex issues to human support when appropriate
- Keep responses under 200 words unless detailed explanation is needed

Current user ID: %s`

// FallbackResponses are the canned replies used when the backend fails.
var FallbackResponses = []string{
	"I apologize, but I'm experiencing technical difficulties. Please try again in a moment.",
	"I'm having trouble processing your request right now. Could you please rephrase your question?",
	"I'm temporarily unavailable. Please try again later or contact our support team directly.",
}

// Picker returns an index in [0, n).
type Picker func(n int) int

// NewSeededPicker returns a deterministic Picker, safe for concurrent use.
func NewSeededPicker(seed uint64) Picker {
	var mu sync.Mutex
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	return func(n int) int {
		mu.Lock()
		defer mu.Unlock()
		return r.IntN(n)
	}
}

// Reply is the outcome of one generation. Success is false when Content is
// a fallback response.
type Reply struct {
	Success bool
	Content string
	Usage   *llm.Usage
	Err     error
}

// Responder calls the completion backend and absorbs its failures.
type Responder struct {
	client      llm.LLMClient
	model       string
	maxTokens   int
	temperature float64
	timeout     time.Duration
	pick        Picker
	metrics     *Metrics
}

// ResponderOption configures a Responder.
type ResponderOption func(*Responder)

// WithPicker sets how fallback responses are chosen.
func WithPicker(p Picker) ResponderOption {
	return func(r *Responder) { r.pick = p }
}

// WithResponderMetrics records completion outcomes into m.
func WithResponderMetrics(m *Metrics) ResponderOption {
	return func(r *Responder) { r.metrics = m }
}

// NewResponder creates a Responder using the LLM settings of cfg.
func NewResponder(client llm.LLMClient, cfg *config.Config, opts ...ResponderOption) *Responder {
	r := &Responder{
		client:      client,
		model:       cfg.LLMModel,
		maxTokens:   cfg.LLMMaxTokens,
		temperature: cfg.LLMTemperature,
		timeout:     cfg.LLMTimeout(),
		pick:        rand.IntN,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Generate produces the assistant reply for window. It never fails: any
// backend error yields a fallback Reply.
func (r *Responder) Generate(ctx context.Context, window []domain.Turn, ownerID string) (reply Reply) {
	provider := r.client.Provider()
	startTime := time.Now()

	defer func() {
		if p := recover(); p != nil {
			reply = r.fallback(fmt.Errorf("panic in completion client: %v", p))
		}
		outcome := "success"
		if !reply.Success {
			outcome = "fallback"
			log.Printf("WARN: completion via %s failed, using fallback: %v", provider, reply.Err)
		}
		r.metrics.observeCompletion(provider, outcome, time.Since(startTime), reply.Usage)
	}()

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req := &llm.ChatCompletionRequest{
		Model:       r.model,
		System:      fmt.Sprintf(systemPrompt, ownerID),
		Messages:    make([]llm.ChatMessage, 0, len(window)),
		MaxTokens:   r.maxTokens,
		Temperature: r.temperature,
	}
	for _, t := range window {
		req.Messages = append(req.Messages, llm.ChatMessage{Role: string(t.Role), Content: t.Content})
	}

	resp, err := r.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return r.fallback(err)
	}
	if resp == nil {
		return r.fallback(llm.ErrEmptyResponse)
	}
	content := strings.TrimSpace(resp.Content)
	if content == "" {
		return r.fallback(llm.ErrEmptyResponse)
	}
	return Reply{Success: true, Content: content, Usage: resp.Usage}
}

func (r *Responder) fallback(err error) Reply {
	idx := r.pick(len(FallbackResponses))
	if idx < 0 || idx >= len(FallbackResponses) {
		idx = 0
	}
	return Reply{Success: false, Content: FallbackResponses[idx], Err: err}
}
