// Package providers implements LLM provider adapters.
package providers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/c360studio/deckcheck/llm"
	"github.com/c360studio/deckcheck/tools"
)

// AnthropicProvider implements the Anthropic messages API, including tool
// use and server-sent event streaming.
type AnthropicProvider struct{}

// anthropicVersion is the API version to use.
const anthropicVersion = "2023-06-01"

func init() {
	llm.RegisterProvider(&AnthropicProvider{})
}

// Name returns the provider identifier.
func (a *AnthropicProvider) Name() string {
	return "anthropic"
}

// BuildURL constructs the Anthropic messages endpoint.
func (a *AnthropicProvider) BuildURL(baseURL string) string {
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}
	baseURL = strings.TrimSuffix(baseURL, "/")
	return baseURL + "/v1/messages"
}

// SetHeaders adds Anthropic-specific authentication headers.
func (a *AnthropicProvider) SetHeaders(req *http.Request) {
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey != "" {
		req.Header.Set("x-api-key", apiKey)
	}
	req.Header.Set("anthropic-version", anthropicVersion)
}

// anthropicRequest is the Anthropic API request format.
type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Messages    []anthropicMessage `json:"messages"`
	System      string             `json:"system,omitempty"`
	Temperature *float64           `json:"temperature,omitempty"`
	Tools       []anthropicTool    `json:"tools,omitempty"`
	Stream      bool               `json:"stream,omitempty"`
}

// anthropicMessage content is either a plain string or a block list; blocks
// are used for tool_use and tool_result turns.
type anthropicMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type anthropicTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

type anthropicBlock struct {
	Type      string         `json:"type"`
	Text      string         `json:"text,omitempty"`
	ID        string         `json:"id,omitempty"`
	Name      string         `json:"name,omitempty"`
	Input     map[string]any `json:"input,omitempty"`
	ToolUseID string         `json:"tool_use_id,omitempty"`
	Content   string         `json:"content,omitempty"`
	IsError   bool           `json:"is_error,omitempty"`
}

// BuildRequestBody creates the Anthropic API request body.
func (a *AnthropicProvider) BuildRequestBody(model string, req llm.Request, stream bool) ([]byte, error) {
	var systemPrompt string
	var apiMessages []anthropicMessage

	for _, msg := range req.Messages {
		switch {
		case msg.Role == "system":
			systemPrompt = msg.Content

		case len(msg.ToolCalls) > 0:
			// Assistant turn requesting tool invocations.
			blocks := make([]anthropicBlock, 0, len(msg.ToolCalls)+1)
			if msg.Content != "" {
				blocks = append(blocks, anthropicBlock{Type: "text", Text: msg.Content})
			}
			for _, call := range msg.ToolCalls {
				blocks = append(blocks, anthropicBlock{
					Type:  "tool_use",
					ID:    call.ID,
					Name:  call.Name,
					Input: call.Arguments,
				})
			}
			apiMessages = append(apiMessages, anthropicMessage{Role: "assistant", Content: blocks})

		case len(msg.ToolResults) > 0:
			// Resolved tool outputs travel back as a user turn.
			blocks := make([]anthropicBlock, 0, len(msg.ToolResults))
			for _, result := range msg.ToolResults {
				blocks = append(blocks, anthropicBlock{
					Type:      "tool_result",
					ToolUseID: result.CallID,
					Content:   result.Content,
					IsError:   result.IsError,
				})
			}
			apiMessages = append(apiMessages, anthropicMessage{Role: "user", Content: blocks})

		default:
			apiMessages = append(apiMessages, anthropicMessage{Role: msg.Role, Content: msg.Content})
		}
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	apiReq := anthropicRequest{
		Model:       model,
		MaxTokens:   maxTokens,
		Messages:    apiMessages,
		System:      systemPrompt,
		Temperature: req.Temperature, // nil = use default, 0 = deterministic
		Tools:       buildAnthropicTools(req.Tools),
		Stream:      stream,
	}

	return json.Marshal(apiReq)
}

func buildAnthropicTools(defs []tools.Definition) []anthropicTool {
	if len(defs) == 0 {
		return nil
	}
	out := make([]anthropicTool, len(defs))
	for i, def := range defs {
		out[i] = anthropicTool{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: def.Parameters,
		}
	}
	return out
}

// anthropicResponse is the Anthropic API response format.
type anthropicResponse struct {
	ID         string           `json:"id"`
	Type       string           `json:"type"`
	Role       string           `json:"role"`
	Content    []anthropicBlock `json:"content"`
	Model      string           `json:"model"`
	StopReason string           `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// ParseResponse extracts text and tool calls from an Anthropic response.
func (a *AnthropicProvider) ParseResponse(body []byte, _ string) (*llm.Response, error) {
	var resp anthropicResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse anthropic response: %w", err)
	}

	var content string
	var calls []tools.Call
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			content += block.Text
		case "tool_use":
			calls = append(calls, tools.Call{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: block.Input,
			})
		}
	}

	totalTokens := resp.Usage.InputTokens + resp.Usage.OutputTokens
	return &llm.Response{
		Content:   content,
		ToolCalls: calls,
		Model:     resp.Model,
		Usage: llm.TokenUsage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      totalTokens,
		},
		FinishReason: resp.StopReason,
	}, nil
}

// anthropicStreamEvent covers the event shapes the stream parser needs.
type anthropicStreamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
	Message struct {
		Usage struct {
			InputTokens int `json:"input_tokens"`
		} `json:"usage"`
	} `json:"message"`
	Usage struct {
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// ParseStreamData interprets one SSE data payload from the messages stream.
func (a *AnthropicProvider) ParseStreamData(data []byte) (llm.StreamEvent, error) {
	var event anthropicStreamEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return llm.StreamEvent{}, fmt.Errorf("parse anthropic stream event: %w", err)
	}

	switch event.Type {
	case "content_block_delta":
		if event.Delta.Type == "text_delta" {
			return llm.StreamEvent{Delta: event.Delta.Text}, nil
		}
		return llm.StreamEvent{}, nil
	case "message_start":
		return llm.StreamEvent{Usage: &llm.TokenUsage{
			PromptTokens: event.Message.Usage.InputTokens,
		}}, nil
	case "message_delta":
		return llm.StreamEvent{Usage: &llm.TokenUsage{
			CompletionTokens: event.Usage.OutputTokens,
			TotalTokens:      event.Usage.OutputTokens,
		}}, nil
	case "message_stop":
		return llm.StreamEvent{Done: true}, nil
	default:
		// ping, content_block_start, content_block_stop
		return llm.StreamEvent{}, nil
	}
}
