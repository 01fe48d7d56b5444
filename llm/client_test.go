package llm_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/deckcheck/llm"
	_ "github.com/c360studio/deckcheck/llm/providers" // Register providers
	"github.com/c360studio/deckcheck/model"
)

// newTestRegistry wires a single ollama-protocol endpoint under the chat
// capability.
func newTestRegistry(url string) *model.Registry {
	return model.NewRegistry(
		map[model.Capability]*model.CapabilityConfig{
			model.CapabilityChat: {
				Description: "Test capability",
				Preferred:   []string{"test-model"},
			},
		},
		map[string]*model.EndpointConfig{
			"test-model": {
				Provider: "ollama",
				URL:      url,
				Model:    "test-model",
			},
		},
	)
}

func fastRetry() llm.RetryConfig {
	return llm.RetryConfig{
		MaxAttempts:       3,
		BackoffBase:       10 * time.Millisecond,
		BackoffMultiplier: 1.5,
		MaxBackoff:        100 * time.Millisecond,
	}
}

func okResponse(content string) map[string]any {
	return map[string]any{
		"id":    "chatcmpl-123",
		"model": "test-model",
		"choices": []map[string]any{
			{
				"index": 0,
				"message": map[string]string{
					"role":    "assistant",
					"content": content,
				},
				"finish_reason": "stop",
			},
		},
		"usage": map[string]int{
			"prompt_tokens":     10,
			"completion_tokens": 8,
			"total_tokens":      18,
		},
	}
}

func TestClient_Complete_EndpointMaxTokensDefault(t *testing.T) {
	var gotMaxTokens atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			MaxTokens int `json:"max_tokens"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		gotMaxTokens.Store(int64(body.MaxTokens))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(okResponse("ok"))
	}))
	defer server.Close()

	registry := newTestRegistry(server.URL)
	registry.SetEndpoint("test-model", &model.EndpointConfig{
		Provider:  "ollama",
		URL:       server.URL,
		Model:     "test-model",
		MaxTokens: 2048,
	})
	client := llm.NewClient(registry)

	// No budget on the request: the endpoint default applies.
	_, err := client.Complete(context.Background(), llm.Request{
		Capability: "chat",
		Messages:   []llm.Message{{Role: "user", Content: "Hello"}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2048), gotMaxTokens.Load())

	// An explicit request budget wins over the endpoint default.
	_, err = client.Complete(context.Background(), llm.Request{
		Capability: "chat",
		Messages:   []llm.Message{{Role: "user", Content: "Hello"}},
		MaxTokens:  512,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(512), gotMaxTokens.Load())
}

func TestClient_Complete_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(okResponse("Hello! How can I help you?"))
	}))
	defer server.Close()

	client := llm.NewClient(newTestRegistry(server.URL))

	resp, err := client.Complete(context.Background(), llm.Request{
		Capability: "chat",
		Messages: []llm.Message{
			{Role: "user", Content: "Hello"},
		},
	})

	require.NoError(t, err)
	assert.Equal(t, "Hello! How can I help you?", resp.Content)
	assert.Equal(t, "test-model", resp.Model)
	assert.Equal(t, 18, resp.Usage.TotalTokens)
	assert.Equal(t, "stop", resp.FinishReason)
	assert.NotEmpty(t, resp.RequestID)
}

func TestClient_Complete_RetryOnTransientError(t *testing.T) {
	var attempts atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("Service temporarily unavailable"))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(okResponse("Success after retries"))
	}))
	defer server.Close()

	client := llm.NewClient(newTestRegistry(server.URL), llm.WithRetryConfig(fastRetry()))

	resp, err := client.Complete(context.Background(), llm.Request{
		Capability: "chat",
		Messages:   []llm.Message{{Role: "user", Content: "Hello"}},
	})

	require.NoError(t, err)
	assert.Equal(t, "Success after retries", resp.Content)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestClient_Complete_FatalErrorNotRetried(t *testing.T) {
	var attempts atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte("invalid api key"))
	}))
	defer server.Close()

	client := llm.NewClient(newTestRegistry(server.URL), llm.WithRetryConfig(fastRetry()))

	_, err := client.Complete(context.Background(), llm.Request{
		Capability: "chat",
		Messages:   []llm.Message{{Role: "user", Content: "Hello"}},
	})

	require.Error(t, err)
	assert.True(t, llm.IsFatal(err))
	assert.Equal(t, int32(1), attempts.Load(), "fatal errors must not be retried")
}

func TestClient_Complete_RateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte("slow down"))
	}))
	defer server.Close()

	client := llm.NewClient(newTestRegistry(server.URL), llm.WithRetryConfig(llm.RetryConfig{
		MaxAttempts:       2,
		BackoffBase:       5 * time.Millisecond,
		BackoffMultiplier: 1,
		MaxBackoff:        10 * time.Millisecond,
	}))

	_, err := client.Complete(context.Background(), llm.Request{
		Capability: "chat",
		Messages:   []llm.Message{{Role: "user", Content: "Hello"}},
	})

	require.Error(t, err)
	assert.True(t, llm.IsTransient(err))
	assert.True(t, llm.IsRateLimited(err))
}

func TestClient_Complete_FallbackToSecondEndpoint(t *testing.T) {
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer broken.Close()

	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(okResponse("from fallback"))
	}))
	defer healthy.Close()

	registry := model.NewRegistry(
		map[model.Capability]*model.CapabilityConfig{
			model.CapabilityChat: {
				Preferred: []string{"primary"},
				Fallback:  []string{"secondary"},
			},
		},
		map[string]*model.EndpointConfig{
			"primary":   {Provider: "ollama", URL: broken.URL, Model: "primary"},
			"secondary": {Provider: "ollama", URL: healthy.URL, Model: "secondary"},
		},
	)

	client := llm.NewClient(registry, llm.WithRetryConfig(llm.RetryConfig{
		MaxAttempts:       1,
		BackoffBase:       time.Millisecond,
		BackoffMultiplier: 1,
		MaxBackoff:        time.Millisecond,
	}))

	resp, err := client.Complete(context.Background(), llm.Request{
		Capability: "chat",
		Messages:   []llm.Message{{Role: "user", Content: "Hello"}},
	})

	require.NoError(t, err)
	assert.Equal(t, "from fallback", resp.Content)
}

func TestClient_Complete_FatalShortCircuitsFallback(t *testing.T) {
	var fallbackHit atomic.Bool

	unauthorized := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer unauthorized.Close()

	fallback := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fallbackHit.Store(true)
		json.NewEncoder(w).Encode(okResponse("should not be reached"))
	}))
	defer fallback.Close()

	registry := model.NewRegistry(
		map[model.Capability]*model.CapabilityConfig{
			model.CapabilityChat: {
				Preferred: []string{"primary"},
				Fallback:  []string{"secondary"},
			},
		},
		map[string]*model.EndpointConfig{
			"primary":   {Provider: "ollama", URL: unauthorized.URL, Model: "primary"},
			"secondary": {Provider: "ollama", URL: fallback.URL, Model: "secondary"},
		},
	)

	client := llm.NewClient(registry, llm.WithRetryConfig(fastRetry()))

	_, err := client.Complete(context.Background(), llm.Request{
		Capability: "chat",
		Messages:   []llm.Message{{Role: "user", Content: "Hello"}},
	})

	require.Error(t, err)
	assert.True(t, llm.IsFatal(err))
	assert.False(t, fallbackHit.Load(), "fatal errors must not fall through to other endpoints")
}

func TestClient_Complete_ParsesToolCalls(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{
			"model": "test-model",
			"choices": []map[string]any{
				{
					"message": map[string]any{
						"role":    "assistant",
						"content": "",
						"tool_calls": []map[string]any{
							{
								"id":   "call_1",
								"type": "function",
								"function": map[string]string{
									"name":      "calculate_slide_metric",
									"arguments": `{"metric": "total_slides"}`,
								},
							},
						},
					},
					"finish_reason": "tool_calls",
				},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := llm.NewClient(newTestRegistry(server.URL))

	resp, err := client.Complete(context.Background(), llm.Request{
		Capability: "chat",
		Messages:   []llm.Message{{Role: "user", Content: "count the slides"}},
	})

	require.NoError(t, err)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "call_1", resp.ToolCalls[0].ID)
	assert.Equal(t, "calculate_slide_metric", resp.ToolCalls[0].Name)
	assert.Equal(t, "total_slides", resp.ToolCalls[0].Arguments["metric"])
	assert.Equal(t, "tool_calls", resp.FinishReason)
}

func TestClient_Complete_RequestValidation(t *testing.T) {
	client := llm.NewClient(newTestRegistry("http://unused"))

	_, err := client.Complete(context.Background(), llm.Request{
		Messages: []llm.Message{{Role: "user", Content: "hi"}},
	})
	assert.Error(t, err, "missing capability")

	_, err = client.Complete(context.Background(), llm.Request{Capability: "chat"})
	assert.Error(t, err, "missing messages")
}

func TestClient_CompleteStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)

		chunks := []string{
			`{"choices":[{"delta":{"content":"Hel"}}]}`,
			`{"choices":[{"delta":{"content":"lo"}}]}`,
			`{"choices":[],"usage":{"prompt_tokens":5,"completion_tokens":2,"total_tokens":7}}`,
			`[DONE]`,
		}
		for _, chunk := range chunks {
			fmt.Fprintf(w, "data: %s\n\n", chunk)
			flusher.Flush()
		}
	}))
	defer server.Close()

	client := llm.NewClient(newTestRegistry(server.URL))

	ch, err := client.CompleteStream(context.Background(), llm.Request{
		Capability: "chat",
		Messages:   []llm.Message{{Role: "user", Content: "Hello"}},
	})
	require.NoError(t, err)

	var text string
	var usage *llm.TokenUsage
	var done bool
	for chunk := range ch {
		require.NoError(t, chunk.Err)
		text += chunk.Text
		if chunk.Done {
			done = true
			usage = chunk.Usage
		}
	}

	assert.True(t, done)
	assert.Equal(t, "Hello", text)
	// Usage arrives on the chunk before [DONE] and must survive to the
	// terminal chunk.
	require.NotNil(t, usage)
	assert.Equal(t, 7, usage.TotalTokens)
}

func TestClient_CompleteStream_HTTPErrorBeforeFirstByte(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := llm.NewClient(newTestRegistry(server.URL))

	_, err := client.CompleteStream(context.Background(), llm.Request{
		Capability: "chat",
		Messages:   []llm.Message{{Role: "user", Content: "Hello"}},
	})
	require.Error(t, err)
	assert.True(t, llm.IsTransient(err))
}

func TestClient_Complete_CircuitBreakerSkipsOpenEndpoint(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	registry := newTestRegistry(server.URL)
	registry.SetHealthConfig(model.HealthConfig{
		FailureThreshold: 1,
		RecoveryTimeout:  time.Hour,
	})

	client := llm.NewClient(registry, llm.WithRetryConfig(llm.RetryConfig{
		MaxAttempts:       1,
		BackoffBase:       time.Millisecond,
		BackoffMultiplier: 1,
		MaxBackoff:        time.Millisecond,
	}))

	req := llm.Request{
		Capability: "chat",
		Messages:   []llm.Message{{Role: "user", Content: "Hello"}},
	}

	_, err := client.Complete(context.Background(), req)
	require.Error(t, err)
	firstHits := hits.Load()

	// Circuit is open now; the endpoint gets skipped rather than re-hit,
	// but the full chain is still offered when everything is unavailable.
	_, err = client.Complete(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, firstHits, hits.Load(), "open circuit must not be re-hit")
}
