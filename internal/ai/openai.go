// Package ai – OpenAI-compatible completion adapter.
//
// This file implements the Completer contract on top of the go-openai
// client. A custom base URL makes the adapter work against any
// OpenAI-compatible gateway (vLLM, Ollama, LiteLLM and similar), which is
// how per-participant "providers" are expected to be routed in practice.
//
// Transient failures are retried with bounded exponential backoff; each
// attempt carries its own timeout so a stuck upstream cannot pin the
// enclosing operation past the configured deadline.
package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/rs/zerolog/log"
)

// completionAPI is the slice of the go-openai client surface this adapter
// uses, extracted so tests can substitute a fake.
type completionAPI interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIClient is a Completer backed by an OpenAI-compatible API.
type OpenAIClient struct {
	api completionAPI

	// CallTimeout bounds each individual attempt.
	CallTimeout time.Duration
	// MaxAttempts caps retries of transient failures (total attempts).
	MaxAttempts int
	// Backoff is the initial delay between attempts; it doubles per retry.
	Backoff time.Duration
}

// NewOpenAIClient constructs an adapter for the given API key and optional
// base URL (empty means the public OpenAI endpoint).
func NewOpenAIClient(apiKey, baseURL string) *OpenAIClient {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIClient{
		api:         openai.NewClientWithConfig(cfg),
		CallTimeout: 60 * time.Second,
		MaxAttempts: 3,
		Backoff:     500 * time.Millisecond,
	}
}

// Complete generates text for req, retrying transient failures up to
// MaxAttempts with exponential backoff. It returns the first choice's
// content plus token usage, or the last attempt's error once exhausted.
func (c *OpenAIClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResult, error) {
	msgs := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	apiReq := openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    msgs,
		Temperature: req.Temperature,
	}
	if req.MaxTokens > 0 {
		apiReq.MaxTokens = req.MaxTokens
	}

	attempts := c.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	backoff := c.Backoff

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		resp, err := c.attempt(ctx, apiReq)
		if err == nil {
			if len(resp.Choices) == 0 {
				return nil, errors.New("completion returned no choices")
			}
			return &CompletionResult{
				Content:          resp.Choices[0].Message.Content,
				PromptTokens:     resp.Usage.PromptTokens,
				CompletionTokens: resp.Usage.CompletionTokens,
			}, nil
		}
		lastErr = err

		// The parent context being done is not transient.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if attempt < attempts {
			log.Warn().
				Err(err).
				Str("provider", req.Provider).
				Str("model", req.Model).
				Int("attempt", attempt).
				Msg("completion attempt failed, retrying")
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			backoff *= 2
		}
	}
	return nil, fmt.Errorf("completion failed after %d attempts: %w", attempts, lastErr)
}

// attempt performs one bounded API call.
func (c *OpenAIClient) attempt(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	callCtx := ctx
	if c.CallTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.CallTimeout)
		defer cancel()
	}
	return c.api.CreateChatCompletion(callCtx, req)
}
