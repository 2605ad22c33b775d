// Package llmextract maps raw assignment text to a structured record via a
// single chat-completions call, guarded by a circuit breaker and bounded
// retries.
package llmextract

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

	"github.com/tutordex/core/internal/config"
	"github.com/tutordex/core/internal/model"
	"github.com/tutordex/core/internal/pipeline"
	"github.com/tutordex/core/internal/retry"
)

// Client extracts structured Assignment fields from raw text through a
// chat-completions endpoint. It deliberately bypasses the openai-go SDK:
// the extractor only ever needs one non-streaming JSON-producing call, and
// a hand-rolled client keeps the circuit breaker and response-repair logic
// in one place instead of threading it through the SDK's option plumbing.
type Client struct {
	httpClient *http.Client
	breaker    *CircuitBreaker
	backoff    retry.Backoff

	baseURL     string
	apiKey      string
	model       string
	maxTokens   int
	timeout     time.Duration
	maxAttempts int
}

// authTransport injects the bearer token on every request, mirroring the
// self-hosted header-injection wrapper pattern used by the chat client.
type authTransport struct {
	inner  http.RoundTripper
	apiKey string
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+t.apiKey)
	}
	req.Header.Set("Content-Type", "application/json")
	return t.inner.RoundTrip(req)
}

// New builds a Client from LLM and circuit-breaker configuration.
func New(llmCfg config.LLMConfig, circuitCfg config.CircuitConfig) *Client {
	inner := http.DefaultTransport
	timeout := time.Duration(llmCfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	httpClient := &http.Client{
		Timeout:   timeout,
		Transport: &authTransport{inner: inner, apiKey: llmCfg.APIKey},
	}
	return &Client{
		httpClient:  httpClient,
		breaker:     NewCircuitBreaker(circuitCfg.FailureThreshold, circuitCfg.TimeoutSeconds),
		backoff:     retry.New(500*time.Millisecond, 8*time.Second),
		baseURL:     strings.TrimSuffix(strings.TrimSpace(llmCfg.BaseURL), "/"),
		apiKey:      llmCfg.APIKey,
		model:       llmCfg.Model,
		maxTokens:   llmCfg.MaxTokens,
		timeout:     timeout,
		maxAttempts: 3,
	}
}

// chatRequest is the minimal OpenAI-compatible chat-completions payload the
// extractor needs: one system message pinning the schema, one user message
// carrying the raw text, temperature pinned to 0 for determinism.
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Result is the extractor's raw output prior to deterministic enrichment.
type Result struct {
	Assignment model.Assignment
	RawJSON    []byte
}

// Extract runs one guarded chat-completions call and returns the parsed
// Assignment fields the model produced. channelHint gives the model the
// channel's display title as weak context; correlationID is logged on
// every attempt for trace correlation.
func (c *Client) Extract(ctx context.Context, text, channelHint, correlationID string) (*Result, error) {
	var result *Result
	var lastErr error

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		err := c.breaker.Call(func() error {
			r, callErr := c.call(ctx, text, channelHint, correlationID)
			if callErr != nil {
				return callErr
			}
			result = r
			return nil
		})
		if err == nil {
			return result, nil
		}
		lastErr = err

		se, ok := pipeline.AsStageError(err)
		if ok && se.Code == pipeline.CodeLLMCircuitOpen {
			return nil, err
		}
		if !pipeline.IsRetriable(err) || attempt == c.maxAttempts {
			return nil, err
		}
		wait := c.backoff.Next(attempt)
		log.Warn().Str("correlation_id", correlationID).Int("attempt", attempt).
			Dur("wait", wait).Err(err).Msg("llmextract: retrying after transient failure")
		if sleepErr := retry.Sleep(ctx, wait); sleepErr != nil {
			return nil, sleepErr
		}
	}
	return nil, lastErr
}

func (c *Client) call(ctx context.Context, text, channelHint, correlationID string) (*Result, error) {
	reqBody := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt(channelHint)},
			{Role: "user", Content: text},
		},
		Temperature: 0,
		MaxTokens:   c.maxTokens,
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, pipeline.NewStageError(pipeline.CodeLLMError, fmt.Errorf("marshal request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, pipeline.NewStageError(pipeline.CodeLLMError, fmt.Errorf("build request: %w", err))
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeoutErr(err) {
			return nil, pipeline.NewStageError(pipeline.CodeLLMTimeout, err)
		}
		return nil, pipeline.NewStageError(pipeline.CodeLLMConnection, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, pipeline.NewStageError(pipeline.CodeLLMConnection, fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode >= 500 {
		return nil, pipeline.NewStageError(pipeline.CodeLLMConnection, fmt.Errorf("status %d: %s", resp.StatusCode, truncateBytes(body, 500)))
	}
	if resp.StatusCode >= 400 {
		return nil, pipeline.NewStageError(pipeline.CodeLLMBadResponse, fmt.Errorf("status %d: %s", resp.StatusCode, truncateBytes(body, 500)))
	}

	var cr chatResponse
	if err := json.Unmarshal(body, &cr); err != nil {
		return nil, pipeline.NewStageError(pipeline.CodeLLMBadResponse, fmt.Errorf("decode chat response: %w", err))
	}
	if len(cr.Choices) == 0 {
		return nil, pipeline.NewStageError(pipeline.CodeLLMBadResponse, errors.New("no choices in chat response"))
	}

	record, raw, err := parseRecord(cr.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}

	log.Debug().Str("correlation_id", correlationID).Msg("llmextract: extraction succeeded")
	return &Result{Assignment: record, RawJSON: raw}, nil
}

func isTimeoutErr(err error) bool {
	type timeouter interface{ Timeout() bool }
	var t timeouter
	if errors.As(err, &t) {
		return t.Timeout()
	}
	return false
}

func truncateBytes(b []byte, n int) string {
	s := string(b)
	if len(s) <= n {
		return s
	}
	return s[:n] + "...(truncated)"
}

// Stats exposes the circuit breaker's current statistics for metrics export.
func (c *Client) Stats() Stats { return c.breaker.Stats() }
