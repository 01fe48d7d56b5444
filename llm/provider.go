package llm

import (
	"net/http"
	"sync"
)

// Provider defines the interface for LLM provider implementations.
type Provider interface {
	// Name returns the provider identifier (e.g., "anthropic", "ollama").
	Name() string

	// BuildURL constructs the full API endpoint URL.
	BuildURL(baseURL string) string

	// SetHeaders adds provider-specific headers to the request.
	SetHeaders(req *http.Request)

	// BuildRequestBody creates the JSON request body for the provider.
	// The request's tools, temperature, and token limit are mapped to the
	// provider's wire format; stream selects the streaming variant.
	BuildRequestBody(model string, req Request, stream bool) ([]byte, error)

	// ParseResponse extracts the response from provider-specific JSON,
	// including any tool calls the model requested.
	ParseResponse(body []byte, model string) (*Response, error)

	// ParseStreamData interprets the data payload of one server-sent event.
	ParseStreamData(data []byte) (StreamEvent, error)
}

// StreamEvent is the provider-neutral content of one streaming event.
type StreamEvent struct {
	// Delta is the text fragment carried by this event, possibly empty.
	Delta string

	// Done marks the end of the stream.
	Done bool

	// Usage carries token accounting when the provider reports it.
	Usage *TokenUsage
}

// providerRegistry holds registered providers.
var (
	providerRegistry = make(map[string]Provider)
	providerMu       sync.RWMutex
)

// RegisterProvider adds a provider to the registry.
func RegisterProvider(p Provider) {
	providerMu.Lock()
	defer providerMu.Unlock()
	providerRegistry[p.Name()] = p
}

// GetProvider retrieves a provider by name.
func GetProvider(name string) Provider {
	providerMu.RLock()
	defer providerMu.RUnlock()
	return providerRegistry[name]
}

// ListProviders returns all registered provider names.
func ListProviders() []string {
	providerMu.RLock()
	defer providerMu.RUnlock()

	names := make([]string, 0, len(providerRegistry))
	for name := range providerRegistry {
		names = append(names, name)
	}
	return names
}
