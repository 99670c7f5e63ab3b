// Package ai – context-service REST adapter.
//
// This file implements the ContextStore contract over a plain JSON/HTTP API.
// The context service is an optional enrichment for the orchestrator, so the
// adapter is deliberately simple: bounded per-call timeout, a small retry
// loop with exponential backoff for transient transport failures, and no
// state of its own.
package ai

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

	"github.com/rs/zerolog/log"
)

// HTTPContextClient is a ContextStore talking to a REST context service.
type HTTPContextClient struct {
	baseURL string
	http    *http.Client

	// MaxAttempts caps retries of transient failures (total attempts).
	MaxAttempts int
	// Backoff is the initial delay between attempts; it doubles per retry.
	Backoff time.Duration
}

// NewHTTPContextClient constructs an adapter for the service at baseURL
// (e.g. "http://contextd:9400"). callTimeout bounds each attempt.
func NewHTTPContextClient(baseURL string, callTimeout time.Duration) *HTTPContextClient {
	if callTimeout <= 0 {
		callTimeout = 10 * time.Second
	}
	return &HTTPContextClient{
		baseURL:     strings.TrimRight(baseURL, "/"),
		http:        &http.Client{Timeout: callTimeout},
		MaxAttempts: 3,
		Backoff:     250 * time.Millisecond,
	}
}

// CreateContext registers a context namespace and returns the handle the
// service assigned to it.
func (c *HTTPContextClient) CreateContext(ctx context.Context, org, namespace, name string, initial []Message) (string, error) {
	body := map[string]any{
		"org":       org,
		"namespace": namespace,
		"name":      name,
		"messages":  initial,
	}
	var resp struct {
		Handle string `json:"handle"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/contexts", body, &resp); err != nil {
		return "", err
	}
	if resp.Handle == "" {
		return "", fmt.Errorf("context service returned empty handle")
	}
	return resp.Handle, nil
}

// AppendToContext adds messages to an existing context.
func (c *HTTPContextClient) AppendToContext(ctx context.Context, handle string, messages []Message) error {
	body := map[string]any{"messages": messages}
	path := "/v1/contexts/" + handle + "/messages"
	return c.do(ctx, http.MethodPost, path, body, nil)
}

// GetContextWindow returns a token-bounded slice of prior conversation.
func (c *HTTPContextClient) GetContextWindow(ctx context.Context, handle string, maxTokens int, strategy string) ([]Message, error) {
	path := fmt.Sprintf("/v1/contexts/%s/window?max_tokens=%d&strategy=%s", handle, maxTokens, strategy)
	var resp struct {
		Messages []Message `json:"messages"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// do runs one JSON request with bounded retries. 4xx responses are not
// retried; transport errors and 5xx responses are.
func (c *HTTPContextClient) do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return err
		}
	}

	attempts := c.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	backoff := c.Backoff

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = c.once(ctx, method, path, payload, out)
		if lastErr == nil {
			return nil
		}
		var pe *permanentError
		if ctx.Err() != nil || errors.As(lastErr, &pe) {
			break
		}
		if attempt < attempts {
			log.Debug().
				Err(lastErr).
				Str("path", path).
				Int("attempt", attempt).
				Msg("context service call failed, retrying")
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff *= 2
		}
	}
	return lastErr
}

// once performs a single HTTP round trip.
func (c *HTTPContextClient) once(ctx context.Context, method, path string, payload []byte, out any) error {
	var rd io.Reader
	if payload != nil {
		rd = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("context service returned %d", resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return &permanentError{status: resp.StatusCode}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

// permanentError marks a response that retrying cannot fix.
type permanentError struct{ status int }

func (e *permanentError) Error() string {
	return fmt.Sprintf("context service rejected request with %d", e.status)
}
