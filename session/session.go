// Package session wraps a model endpoint in a stateful conversation: a
// system prompt fixed at construction, an append-only ordered turn history,
// and a registered tool set. Three interaction modes are exposed - a
// blocking free-text turn, a streaming turn, and a schema-constrained turn -
// all sharing the same history so later turns can build on earlier ones.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/c360studio/deckcheck/llm"
	"github.com/c360studio/deckcheck/model"
	"github.com/c360studio/deckcheck/schema"
	"github.com/c360studio/deckcheck/tools"
)

// defaultMaxToolRounds bounds the tool-resolution loop within one logical
// turn so a confused model cannot spin forever.
const defaultMaxToolRounds = 5

// Completer is the model client surface the session needs. *llm.Client
// satisfies it; tests substitute fakes.
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (*llm.Response, error)
	CompleteStream(ctx context.Context, req llm.Request) (<-chan llm.StreamChunk, error)
}

// Session is a single conversation with the model. A session is created per
// analysis run and discarded afterwards; it is not safe for concurrent turns
// (callers issue one turn at a time, which the orchestration guarantees by
// construction).
type Session struct {
	client        Completer
	systemPrompt  string
	capability    string
	temperature   *float64
	maxTokens     int
	tools         *tools.Registry
	maxToolRounds int
	logger        *slog.Logger

	mu    sync.Mutex
	turns []llm.Message
	usage llm.TokenUsage
}

// Option configures a Session.
type Option func(*Session)

// WithTools registers the tool set the model may invoke.
func WithTools(registry *tools.Registry) Option {
	return func(s *Session) {
		s.tools = registry
	}
}

// WithCapability selects the model capability for this session's turns.
func WithCapability(c model.Capability) Option {
	return func(s *Session) {
		s.capability = c.String()
	}
}

// WithTemperature sets an explicit sampling temperature.
func WithTemperature(t float64) Option {
	return func(s *Session) {
		s.temperature = &t
	}
}

// WithMaxTokens limits response length per turn.
func WithMaxTokens(n int) Option {
	return func(s *Session) {
		s.maxTokens = n
	}
}

// WithMaxToolRounds bounds tool-resolution iterations within one turn.
func WithMaxToolRounds(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.maxToolRounds = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// New creates a session. The system prompt is immutable for the session's
// life; changing objective mid-run means creating a new session.
func New(client Completer, systemPrompt string, opts ...Option) *Session {
	s := &Session{
		client:        client,
		systemPrompt:  systemPrompt,
		capability:    model.CapabilityChat.String(),
		maxToolRounds: defaultMaxToolRounds,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// History returns a copy of the committed turns.
func (s *Session) History() []llm.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]llm.Message, len(s.turns))
	copy(out, s.turns)
	return out
}

// Usage returns the token usage accumulated across all committed turns.
func (s *Session) Usage() llm.TokenUsage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usage
}

// Respond sends a user turn and blocks until the model produces its final
// text. Tool calls the model issues along the way are validated, invoked,
// and fed back as tool-result turns until the model answers in prose. The
// whole exchange - user turn, any tool rounds, final assistant turn - is
// committed to history as a unit.
func (s *Session) Respond(ctx context.Context, userText string) (string, error) {
	pending := []llm.Message{{Role: "user", Content: userText}}
	var usage llm.TokenUsage

	for round := 0; round < s.maxToolRounds; round++ {
		resp, err := s.client.Complete(ctx, s.request(pending, true))
		if err != nil {
			return "", err
		}
		usage.Add(resp.Usage)

		if len(resp.ToolCalls) == 0 {
			pending = append(pending, llm.Message{Role: "assistant", Content: resp.Content})
			s.commit(pending, usage)
			return resp.Content, nil
		}

		pending = append(pending, llm.Message{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		results, err := s.resolveToolCalls(ctx, resp.ToolCalls)
		if err != nil {
			return "", err
		}
		pending = append(pending, llm.Message{Role: "tool", ToolResults: results})
	}

	return "", fmt.Errorf("turn not resolved after %d tool rounds", s.maxToolRounds)
}

// Chunk is one fragment of a streamed response.
type Chunk struct {
	Text string
	Err  error
}

// Stream sends a user turn and returns a single-pass sequence of text
// fragments; the full response is their concatenation. The turn is committed
// to history only once the stream is exhausted - cancelling mid-stream
// leaves the history exactly as it was.
func (s *Session) Stream(ctx context.Context, userText string) (<-chan Chunk, error) {
	userTurn := llm.Message{Role: "user", Content: userText}

	inner, err := s.client.CompleteStream(ctx, s.request([]llm.Message{userTurn}, false))
	if err != nil {
		return nil, err
	}

	out := make(chan Chunk)
	go func() {
		defer close(out)
		var full []byte
		var usage llm.TokenUsage

		for chunk := range inner {
			if chunk.Err != nil {
				select {
				case out <- Chunk{Err: chunk.Err}:
				case <-ctx.Done():
				}
				return
			}
			if chunk.Text != "" {
				full = append(full, chunk.Text...)
				select {
				case out <- Chunk{Text: chunk.Text}:
				case <-ctx.Done():
					// The consumer may have walked away entirely;
					// never block on delivering the cancel error.
					select {
					case out <- Chunk{Err: ctx.Err()}:
					default:
					}
					return
				}
			}
			if chunk.Done {
				if chunk.Usage != nil {
					usage = *chunk.Usage
				}
				s.commit([]llm.Message{
					userTurn,
					{Role: "assistant", Content: string(full)},
				}, usage)
				return
			}
		}
		// Channel closed without a terminal chunk: the stream was cut
		// short, so nothing is committed.
	}()

	return out, nil
}

// RespondStructured sends a user turn constrained to the given schema,
// validates the model's JSON against it, and decodes the payload into out.
// A *schema.ValidationError is returned - never swallowed - when the output
// does not conform, so the caller can retry or fall back.
func (s *Session) RespondStructured(ctx context.Context, userText string, sc *schema.Schema, out any) error {
	instruction := fmt.Sprintf(
		"%s\n\nRespond with a single JSON object conforming to this schema. "+
			"Output only the JSON, no surrounding prose.\n\n%s",
		userText, sc.Instructions())

	pending := []llm.Message{{Role: "user", Content: instruction}}

	resp, err := s.client.Complete(ctx, s.request(pending, false))
	if err != nil {
		return err
	}

	raw := llm.ExtractJSON(resp.Content)
	if raw == "" {
		return &schema.ValidationError{Problems: []string{"response contains no JSON object"}}
	}

	var payload any
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return &schema.ValidationError{Problems: []string{fmt.Sprintf("response is not valid JSON: %v", err)}}
	}
	if err := sc.Validate(payload); err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return &schema.ValidationError{Problems: []string{fmt.Sprintf("decode validated payload: %v", err)}}
	}

	pending = append(pending, llm.Message{Role: "assistant", Content: resp.Content})
	s.commit(pending, resp.Usage)
	return nil
}

// request assembles the full message list for one model call. The system
// prompt always travels first; withTools controls whether the registered
// tool set is offered this call.
func (s *Session) request(pending []llm.Message, withTools bool) llm.Request {
	s.mu.Lock()
	committed := make([]llm.Message, len(s.turns))
	copy(committed, s.turns)
	s.mu.Unlock()

	messages := make([]llm.Message, 0, len(committed)+len(pending)+1)
	if s.systemPrompt != "" {
		messages = append(messages, llm.Message{Role: "system", Content: s.systemPrompt})
	}
	messages = append(messages, committed...)
	messages = append(messages, pending...)

	req := llm.Request{
		Capability:  s.capability,
		Messages:    messages,
		Temperature: s.temperature,
		MaxTokens:   s.maxTokens,
	}
	if withTools && s.tools != nil && s.tools.Len() > 0 {
		req.Tools = s.tools.Definitions()
	}
	return req
}

// resolveToolCalls invokes every call the model requested. Argument and
// handler failures come back as error results the model can react to; only
// a call to a tool that was never offered aborts the turn.
func (s *Session) resolveToolCalls(ctx context.Context, calls []tools.Call) ([]tools.Result, error) {
	if s.tools == nil {
		return nil, fmt.Errorf("model requested tool calls but no tools are registered")
	}

	results := make([]tools.Result, 0, len(calls))
	for _, call := range calls {
		result, err := s.tools.Invoke(ctx, call)
		if err != nil {
			return nil, fmt.Errorf("resolve tool call %s: %w", call.Name, err)
		}

		if result.IsError {
			s.logger.Warn("Tool call failed, reporting back to model",
				"tool", call.Name, "error", result.Content)
		} else {
			s.logger.Debug("Tool call resolved", "tool", call.Name)
		}
		results = append(results, result)
	}
	return results, nil
}

// commit appends a completed exchange to the history. Turns are append-only;
// nothing ever rewrites a committed turn.
func (s *Session) commit(turns []llm.Message, usage llm.TokenUsage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, turns...)
	s.usage.Add(usage)
}
