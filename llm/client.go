// Package llm provides a provider-agnostic LLM client with retry and
// fallback support. It integrates with the model.Registry for
// capability-based model selection and supports tool-enabled and streaming
// completions.
package llm

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	"github.com/c360studio/deckcheck/model"
	"github.com/c360studio/deckcheck/tools"
	"github.com/google/uuid"
)

// maxResponseSize limits the LLM response body to prevent memory exhaustion.
const maxResponseSize = 10 * 1024 * 1024 // 10MB

// Client is a provider-agnostic LLM client with retry and fallback support.
type Client struct {
	registry    *model.Registry
	httpClient  *http.Client
	retryConfig RetryConfig
	logger      *slog.Logger
}

// Message represents a conversation turn.
type Message struct {
	// Role is "system", "user", "assistant", or "tool".
	Role string `json:"role"`

	// Content is the message text.
	Content string `json:"content"`

	// ToolCalls holds tool invocations requested by an assistant turn.
	ToolCalls []tools.Call `json:"tool_calls,omitempty"`

	// ToolResults holds resolved tool outputs for a tool turn.
	ToolResults []tools.Result `json:"tool_results,omitempty"`
}

// Request defines an LLM completion request.
type Request struct {
	// Capability specifies the semantic capability ("analysis", "chat").
	// The registry resolves this to available models.
	Capability string

	// Messages is the conversation history to send to the LLM.
	Messages []Message

	// Temperature controls randomness. nil uses endpoint default, 0 is deterministic.
	Temperature *float64

	// MaxTokens limits response length. 0 uses endpoint default.
	MaxTokens int

	// Tools declares the callables the model may invoke this turn.
	Tools []tools.Definition
}

// TokenUsage represents token consumption details for an LLM call.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add accumulates another usage record.
func (u *TokenUsage) Add(other TokenUsage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
}

// Response contains the LLM completion result.
type Response struct {
	// RequestID uniquely identifies this LLM call.
	RequestID string

	// Content is the generated text.
	Content string

	// ToolCalls lists tool invocations the model requested instead of, or
	// alongside, text output. Each must be resolved before the turn is done.
	ToolCalls []tools.Call

	// Model is the actual model that was used.
	Model string

	// Usage contains token consumption metrics.
	Usage TokenUsage

	// FinishReason indicates why generation stopped.
	FinishReason string
}

// StreamChunk is one element of a streaming completion. The final chunk has
// Done set; a chunk with Err set terminates the stream abnormally.
type StreamChunk struct {
	Text  string
	Done  bool
	Usage *TokenUsage
	Err   error
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(client *Client) {
		client.httpClient = c
	}
}

// WithRetryConfig sets the retry configuration.
func WithRetryConfig(cfg RetryConfig) ClientOption {
	return func(client *Client) {
		client.retryConfig = cfg
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(client *Client) {
		client.logger = logger
	}
}

// NewClient creates a new LLM client with the given model registry.
func NewClient(registry *model.Registry, opts ...ClientOption) *Client {
	c := &Client{
		registry:    registry,
		retryConfig: DefaultRetryConfig(),
		httpClient: &http.Client{
			Timeout: 180 * time.Second, // Allow time for LLM responses
		},
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Complete sends a completion request, handling retry and fallback logic.
func (c *Client) Complete(ctx context.Context, req Request) (*Response, error) {
	chain, err := c.resolveChain(req)
	if err != nil {
		return nil, err
	}

	requestID := uuid.New().String()
	var lastErr error

	for _, modelName := range chain {
		endpoint := c.registry.GetEndpoint(modelName)
		if endpoint == nil {
			c.logger.Debug("No endpoint for model, skipping", "model", modelName)
			continue
		}

		if !c.registry.IsEndpointAvailable(modelName) {
			c.logger.Debug("Endpoint circuit open, skipping", "model", modelName)
			continue
		}

		resp, err := c.tryEndpointWithRetry(ctx, endpoint, modelName, req)
		if err == nil {
			resp.RequestID = requestID
			return resp, nil
		}

		lastErr = err
		c.logger.Warn("Endpoint failed, trying fallback",
			"model", modelName,
			"provider", endpoint.Provider,
			"error", err)

		if IsFatal(err) {
			c.logger.Warn("Fatal error, not trying fallbacks", "error", err)
			return nil, err
		}
	}

	return nil, fmt.Errorf("all endpoints failed for capability %s: %w", req.Capability, lastErr)
}

// CompleteStream sends a streaming completion request. The returned channel
// yields text fragments as they arrive and is closed after the terminal
// chunk; the full response is the concatenation of all fragments. Fallback
// applies only before the first byte is received - once a stream is open it
// is not restarted.
func (c *Client) CompleteStream(ctx context.Context, req Request) (<-chan StreamChunk, error) {
	chain, err := c.resolveChain(req)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for _, modelName := range chain {
		endpoint := c.registry.GetEndpoint(modelName)
		if endpoint == nil {
			continue
		}
		if !c.registry.IsEndpointAvailable(modelName) {
			continue
		}

		ch, err := c.openStream(ctx, endpoint, modelName, req)
		if err == nil {
			return ch, nil
		}

		lastErr = err
		c.logger.Warn("Stream open failed, trying fallback",
			"model", modelName, "provider", endpoint.Provider, "error", err)

		if IsFatal(err) {
			return nil, err
		}
	}

	return nil, fmt.Errorf("all endpoints failed for capability %s: %w", req.Capability, lastErr)
}

// resolveChain validates the request and returns the health-filtered model
// chain for its capability.
func (c *Client) resolveChain(req Request) ([]string, error) {
	if req.Capability == "" {
		return nil, fmt.Errorf("capability is required")
	}
	if len(req.Messages) == 0 {
		return nil, fmt.Errorf("at least one message is required")
	}

	capVal := model.ParseCapability(req.Capability)
	if capVal == "" {
		capVal = model.CapabilityChat // Default for unknown capabilities
	}

	chain := c.registry.GetAvailableFallbackChain(capVal)
	if len(chain) == 0 {
		return nil, fmt.Errorf("no models configured for capability %s", req.Capability)
	}
	return chain, nil
}

// tryEndpointWithRetry attempts a request with retry logic.
func (c *Client) tryEndpointWithRetry(ctx context.Context, ep *model.EndpointConfig, modelName string, req Request) (*Response, error) {
	var lastErr error

	for attempt := 1; attempt <= c.retryConfig.MaxAttempts; attempt++ {
		resp, err := c.doRequest(ctx, ep, req)
		if err == nil {
			c.registry.MarkEndpointSuccess(modelName)
			return resp, nil
		}

		lastErr = err

		if IsFatal(err) {
			// Fatal errors may indicate config issues, not endpoint health.
			return nil, err
		}

		if attempt < c.retryConfig.MaxAttempts {
			backoff := c.calculateBackoff(attempt)
			c.logger.Debug("Request failed, retrying",
				"attempt", attempt,
				"max_attempts", c.retryConfig.MaxAttempts,
				"backoff", backoff,
				"error", err)

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}
	}

	c.registry.MarkEndpointFailure(modelName)
	return nil, lastErr
}

// calculateBackoff computes exponential backoff duration with jitter.
// Jitter prevents thundering herd when multiple clients retry simultaneously.
func (c *Client) calculateBackoff(attempt int) time.Duration {
	multiplier := 1.0
	for i := 1; i < attempt; i++ {
		multiplier *= c.retryConfig.BackoffMultiplier
	}

	backoff := time.Duration(float64(c.retryConfig.BackoffBase) * multiplier)
	if backoff > c.retryConfig.MaxBackoff {
		backoff = c.retryConfig.MaxBackoff
	}

	// Add jitter: +/- 25% to prevent synchronized retries
	jitter := float64(backoff) * 0.25 * (rand.Float64()*2 - 1)
	return backoff + time.Duration(jitter)
}

// doRequest executes a single HTTP request to the LLM endpoint.
func (c *Client) doRequest(ctx context.Context, ep *model.EndpointConfig, req Request) (*Response, error) {
	provider := GetProvider(ep.Provider)
	if provider == nil {
		return nil, NewFatalError(fmt.Errorf("unknown provider: %s", ep.Provider))
	}

	started := time.Now()

	httpResp, err := c.send(ctx, provider, ep, req, false)
	if err != nil {
		observeRequest(ep.Provider, ep.Model, "error", time.Since(started))
		return nil, err
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseSize))
	if err != nil {
		observeRequest(ep.Provider, ep.Model, "error", time.Since(started))
		return nil, NewTransientError(fmt.Errorf("read response body: %w", err))
	}

	if httpResp.StatusCode != http.StatusOK {
		observeRequest(ep.Provider, ep.Model, fmt.Sprintf("%d", httpResp.StatusCode), time.Since(started))
		return nil, classifyHTTPError(ep.Provider, httpResp.StatusCode, respBody)
	}

	resp, err := provider.ParseResponse(respBody, ep.Model)
	if err != nil {
		observeRequest(ep.Provider, ep.Model, "parse_error", time.Since(started))
		return nil, NewFatalError(err)
	}

	observeRequest(ep.Provider, ep.Model, "ok", time.Since(started))
	observeUsage(ep.Provider, ep.Model, resp.Usage)
	return resp, nil
}

// openStream starts a streaming request and returns a channel of chunks.
func (c *Client) openStream(ctx context.Context, ep *model.EndpointConfig, modelName string, req Request) (<-chan StreamChunk, error) {
	provider := GetProvider(ep.Provider)
	if provider == nil {
		return nil, NewFatalError(fmt.Errorf("unknown provider: %s", ep.Provider))
	}

	started := time.Now()

	httpResp, err := c.send(ctx, provider, ep, req, true)
	if err != nil {
		c.registry.MarkEndpointFailure(modelName)
		return nil, err
	}

	if httpResp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseSize))
		httpResp.Body.Close()
		c.registry.MarkEndpointFailure(modelName)
		observeRequest(ep.Provider, ep.Model, fmt.Sprintf("%d", httpResp.StatusCode), time.Since(started))
		return nil, classifyHTTPError(ep.Provider, httpResp.StatusCode, respBody)
	}

	c.registry.MarkEndpointSuccess(modelName)

	chunks := make(chan StreamChunk)
	go func() {
		defer close(chunks)
		defer httpResp.Body.Close()

		scanner := bufio.NewScanner(httpResp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), maxResponseSize)

		// Some providers report usage on an event before the terminal one.
		var lastUsage *TokenUsage

		for scanner.Scan() {
			select {
			case <-ctx.Done():
				c.emit(ctx, chunks, StreamChunk{Err: ctx.Err()})
				return
			default:
			}

			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(line, "data:") {
				// Comment, event-type, or blank line between events.
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "" {
				continue
			}

			event, err := provider.ParseStreamData([]byte(data))
			if err != nil {
				c.emit(ctx, chunks, StreamChunk{Err: NewTransientError(err)})
				return
			}
			if event.Usage != nil {
				lastUsage = event.Usage
			}
			if event.Delta != "" {
				if !c.emit(ctx, chunks, StreamChunk{Text: event.Delta}) {
					return
				}
			}
			if event.Done {
				if lastUsage != nil {
					observeUsage(ep.Provider, ep.Model, *lastUsage)
				}
				observeRequest(ep.Provider, ep.Model, "ok", time.Since(started))
				c.emit(ctx, chunks, StreamChunk{Done: true, Usage: lastUsage})
				return
			}
		}

		if err := scanner.Err(); err != nil {
			c.emit(ctx, chunks, StreamChunk{Err: NewTransientError(fmt.Errorf("read stream: %w", err))})
			return
		}
		// Stream ended without a terminal event; treat as done.
		observeRequest(ep.Provider, ep.Model, "ok", time.Since(started))
		c.emit(ctx, chunks, StreamChunk{Done: true})
	}()

	return chunks, nil
}

// emit delivers a chunk unless the consumer has gone away.
func (c *Client) emit(ctx context.Context, ch chan<- StreamChunk, chunk StreamChunk) bool {
	select {
	case ch <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}

// send builds and executes the HTTP request for an endpoint.
func (c *Client) send(ctx context.Context, provider Provider, ep *model.EndpointConfig, req Request, stream bool) (*http.Response, error) {
	url := provider.BuildURL(ep.URL)

	if req.MaxTokens == 0 && ep.MaxTokens > 0 {
		req.MaxTokens = ep.MaxTokens
	}

	body, err := provider.BuildRequestBody(ep.Model, req, stream)
	if err != nil {
		return nil, NewFatalError(fmt.Errorf("build request body: %w", err))
	}

	c.logger.Debug("Sending LLM request",
		"provider", ep.Provider,
		"model", ep.Model,
		"url", url,
		"messages", len(req.Messages),
		"tools", len(req.Tools),
		"stream", stream)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, NewFatalError(fmt.Errorf("create HTTP request: %w", err))
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}
	provider.SetHeaders(httpReq)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		// Network errors are transient
		return nil, NewTransientError(&ProviderError{Provider: ep.Provider, Body: err.Error()})
	}
	return httpResp, nil
}

// classifyHTTPError determines if an HTTP error is transient or fatal.
func classifyHTTPError(provider string, statusCode int, body []byte) error {
	bodyStr := string(body)
	if len(bodyStr) > 200 {
		bodyStr = bodyStr[:200] + "..."
	}

	switch {
	case statusCode == http.StatusTooManyRequests:
		return NewTransientError(&RateLimitError{Provider: provider, Body: bodyStr})
	case statusCode >= 500:
		// Server errors are transient
		return NewTransientError(&ProviderError{Provider: provider, Status: statusCode, Body: bodyStr})
	case statusCode == http.StatusUnauthorized,
		statusCode == http.StatusForbidden,
		statusCode == http.StatusBadRequest:
		// Auth and bad request errors are fatal
		return NewFatalError(&ProviderError{Provider: provider, Status: statusCode, Body: bodyStr})
	default:
		// Unknown errors default to fatal
		return NewFatalError(&ProviderError{Provider: provider, Status: statusCode, Body: bodyStr})
	}
}
