package tools_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/deckcheck/tools"
)

func echoTool() tools.Descriptor {
	return tools.Descriptor{
		Name:        "echo",
		Description: "Echoes the message back.",
		Parameters: map[string]tools.ParamSpec{
			"message": {Type: "string", Description: "What to echo", Required: true},
			"repeat":  {Type: "integer", Description: "Repeat count"},
		},
		Handler: func(_ context.Context, args map[string]any) (any, error) {
			return args["message"], nil
		},
	}
}

func TestRegister(t *testing.T) {
	r := tools.NewRegistry()
	require.NoError(t, r.Register(echoTool()))
	assert.Equal(t, 1, r.Len())

	d, ok := r.Lookup("echo")
	require.True(t, ok)
	assert.Equal(t, "echo", d.Name)
}

func TestRegister_Invalid(t *testing.T) {
	r := tools.NewRegistry()

	err := r.Register(tools.Descriptor{Handler: func(context.Context, map[string]any) (any, error) { return nil, nil }})
	assert.Error(t, err)

	err = r.Register(tools.Descriptor{Name: "no-handler"})
	assert.Error(t, err)
}

func TestRegister_ReplacesByName(t *testing.T) {
	r := tools.NewRegistry()
	require.NoError(t, r.Register(echoTool()))

	replacement := echoTool()
	replacement.Description = "updated"
	require.NoError(t, r.Register(replacement))

	assert.Equal(t, 1, r.Len())
	d, _ := r.Lookup("echo")
	assert.Equal(t, "updated", d.Description)
}

func TestDefinitions_NameOrdered(t *testing.T) {
	r := tools.NewRegistry()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		d := echoTool()
		d.Name = name
		require.NoError(t, r.Register(d))
	}

	defs := r.Definitions()
	require.Len(t, defs, 3)
	assert.Equal(t, "alpha", defs[0].Name)
	assert.Equal(t, "mid", defs[1].Name)
	assert.Equal(t, "zeta", defs[2].Name)
}

func TestDefinition_Shape(t *testing.T) {
	def := echoTool().Definition()

	assert.Equal(t, "object", def.Parameters["type"])
	props, ok := def.Parameters["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "message")
	assert.Equal(t, []string{"message"}, def.Parameters["required"])
}

func TestInvoke_Success(t *testing.T) {
	r := tools.NewRegistry()
	require.NoError(t, r.Register(echoTool()))

	result, err := r.Invoke(context.Background(), tools.Call{
		ID:        "call-1",
		Name:      "echo",
		Arguments: map[string]any{"message": "hello"},
	})
	require.NoError(t, err)
	assert.Equal(t, "call-1", result.CallID)
	assert.Equal(t, "hello", result.Content)
	assert.False(t, result.IsError)
}

func TestInvoke_UnregisteredToolIsHardError(t *testing.T) {
	r := tools.NewRegistry()

	_, err := r.Invoke(context.Background(), tools.Call{Name: "ghost"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not registered")
}

func TestInvoke_BadArgumentsProduceErrorResult(t *testing.T) {
	r := tools.NewRegistry()
	require.NoError(t, r.Register(echoTool()))

	tests := []struct {
		name string
		args map[string]any
		want string
	}{
		{"missing required", map[string]any{}, "message is required"},
		{"wrong type", map[string]any{"message": 42.0}, "message must be a string"},
		{"wrong optional type", map[string]any{"message": "hi", "repeat": "three"}, "repeat must be a integer"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := r.Invoke(context.Background(), tools.Call{ID: "c", Name: "echo", Arguments: tt.args})
			require.NoError(t, err, "argument problems must not abort the conversation")
			assert.True(t, result.IsError)
			assert.Contains(t, result.Content, tt.want)
		})
	}
}

func TestInvoke_EnumViolation(t *testing.T) {
	r := tools.NewRegistry()
	d := tools.Descriptor{
		Name:        "pick",
		Description: "Picks a color.",
		Parameters: map[string]tools.ParamSpec{
			"color": {Type: "string", Required: true, Enum: []string{"red", "green"}},
		},
		Handler: func(_ context.Context, args map[string]any) (any, error) {
			return args["color"], nil
		},
	}
	require.NoError(t, r.Register(d))

	result, err := r.Invoke(context.Background(), tools.Call{Name: "pick", Arguments: map[string]any{"color": "blue"}})
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, result.Content, "red, green")
}

func TestInvoke_HandlerErrorProducesErrorResult(t *testing.T) {
	r := tools.NewRegistry()
	require.NoError(t, r.Register(tools.Descriptor{
		Name:        "flaky",
		Description: "Always fails.",
		Handler: func(context.Context, map[string]any) (any, error) {
			return nil, errors.New("boom")
		},
	}))

	result, err := r.Invoke(context.Background(), tools.Call{ID: "c2", Name: "flaky"})
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, result.Content, "boom")
}

func TestArgumentError_ListsAllFields(t *testing.T) {
	r := tools.NewRegistry()
	require.NoError(t, r.Register(tools.Descriptor{
		Name: "multi",
		Parameters: map[string]tools.ParamSpec{
			"a": {Type: "string", Required: true},
			"b": {Type: "number", Required: true},
		},
		Handler: func(context.Context, map[string]any) (any, error) { return "ok", nil },
	}))

	result, err := r.Invoke(context.Background(), tools.Call{Name: "multi", Arguments: map[string]any{}})
	require.NoError(t, err)
	assert.True(t, result.IsError)
	// Every offending field is reported in one pass.
	assert.Contains(t, result.Content, "a is required")
	assert.Contains(t, result.Content, "b is required")
}
