// Package tools exposes callables the model may invoke mid-conversation.
// Each tool is declared once with a name, description, and typed argument
// schema; the registry validates every argument payload before dispatch so
// handlers never see raw model output.
package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ParamSpec declares one tool parameter.
type ParamSpec struct {
	// Type is the JSON type of the parameter ("string", "number", ...).
	Type string `json:"type"`

	// Description tells the model what the parameter means.
	Description string `json:"description"`

	// Required marks the parameter as mandatory.
	Required bool `json:"-"`

	// Enum restricts string parameters to a closed value set.
	Enum []string `json:"enum,omitempty"`
}

// Handler is the callable behind a tool. Handlers must be pure with respect
// to conversation state: they only read the inputs they were constructed
// over.
type Handler func(ctx context.Context, args map[string]any) (any, error)

// Descriptor declares a tool: its name, what it does, and what it takes.
type Descriptor struct {
	Name        string
	Description string
	Parameters  map[string]ParamSpec
	Handler     Handler
}

// Definition is the provider-facing view of a tool (no handler), shaped as
// a JSON-schema parameter object.
type Definition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Call is a model-initiated tool invocation.
type Call struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// Result is the outcome of one tool invocation, fed back into the
// conversation as a tool-result turn. IsError marks failures the model is
// expected to self-correct (bad arguments, handler errors).
type Result struct {
	CallID  string `json:"call_id"`
	Content string `json:"content"`
	IsError bool   `json:"is_error,omitempty"`
}

// ArgumentError reports a tool invocation whose arguments do not satisfy the
// declared schema. It lists every offending field so the model can fix the
// call in one retry.
type ArgumentError struct {
	Tool   string
	Fields []string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("tool %s: invalid arguments: %s", e.Tool, strings.Join(e.Fields, "; "))
}

// Registry holds the tools available to one conversation.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Descriptor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Descriptor)}
}

// Register adds a tool. Re-registering a name replaces the prior descriptor.
func (r *Registry) Register(d Descriptor) error {
	if d.Name == "" {
		return fmt.Errorf("tool name is required")
	}
	if d.Handler == nil {
		return fmt.Errorf("tool %s: handler is required", d.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[d.Name] = d
	return nil
}

// Lookup returns the descriptor for a name.
func (r *Registry) Lookup(name string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.tools[name]
	return d, ok
}

// Definitions returns provider-facing tool definitions in name order.
func (r *Registry) Definitions() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	defs := make([]Definition, 0, len(names))
	for _, name := range names {
		defs = append(defs, r.tools[name].Definition())
	}
	return defs
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Definition converts the descriptor to its provider-facing form.
func (d Descriptor) Definition() Definition {
	properties := make(map[string]any, len(d.Parameters))
	var required []string

	names := make([]string, 0, len(d.Parameters))
	for name := range d.Parameters {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		spec := d.Parameters[name]
		prop := map[string]any{
			"type":        spec.Type,
			"description": spec.Description,
		}
		if len(spec.Enum) > 0 {
			prop["enum"] = spec.Enum
		}
		properties[name] = prop
		if spec.Required {
			required = append(required, name)
		}
	}

	params := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		params["required"] = required
	}

	return Definition{
		Name:        d.Name,
		Description: d.Description,
		Parameters:  params,
	}
}

// Invoke validates a call against the registered descriptor, runs the
// handler, and packages the outcome as a Result. Validation and handler
// failures produce an error Result rather than aborting the conversation;
// an unregistered tool name is the only hard error, since the model can
// only call tools it was offered.
func (r *Registry) Invoke(ctx context.Context, call Call) (Result, error) {
	d, ok := r.Lookup(call.Name)
	if !ok {
		return Result{}, fmt.Errorf("tool %s is not registered", call.Name)
	}

	if err := d.validateArgs(call.Arguments); err != nil {
		return Result{
			CallID:  call.ID,
			Content: err.Error(),
			IsError: true,
		}, nil
	}

	out, err := d.Handler(ctx, call.Arguments)
	if err != nil {
		return Result{
			CallID:  call.ID,
			Content: fmt.Sprintf("tool %s failed: %v", call.Name, err),
			IsError: true,
		}, nil
	}

	return Result{
		CallID:  call.ID,
		Content: fmt.Sprintf("%v", out),
	}, nil
}

// validateArgs checks an argument payload against the declared parameters.
func (d Descriptor) validateArgs(args map[string]any) error {
	var fields []string

	names := make([]string, 0, len(d.Parameters))
	for name := range d.Parameters {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		spec := d.Parameters[name]
		val, present := args[name]
		if !present {
			if spec.Required {
				fields = append(fields, fmt.Sprintf("%s is required", name))
			}
			continue
		}

		if !typeMatches(spec.Type, val) {
			fields = append(fields, fmt.Sprintf("%s must be a %s", name, spec.Type))
			continue
		}

		if len(spec.Enum) > 0 {
			str, _ := val.(string)
			if !enumContains(spec.Enum, str) {
				fields = append(fields, fmt.Sprintf("%s must be one of %s", name, strings.Join(spec.Enum, ", ")))
			}
		}
	}

	if len(fields) > 0 {
		return &ArgumentError{Tool: d.Name, Fields: fields}
	}
	return nil
}

func typeMatches(typ string, v any) bool {
	switch typ {
	case "string":
		_, ok := v.(string)
		return ok
	case "number", "integer":
		_, ok := v.(float64)
		return ok
	case "boolean":
		_, ok := v.(bool)
		return ok
	case "object":
		_, ok := v.(map[string]any)
		return ok
	case "array":
		_, ok := v.([]any)
		return ok
	default:
		return true
	}
}

func enumContains(enum []string, v string) bool {
	for _, e := range enum {
		if e == v {
			return true
		}
	}
	return false
}
