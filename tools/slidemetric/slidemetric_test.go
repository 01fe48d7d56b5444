package slidemetric_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/deckcheck/tools"
	"github.com/c360studio/deckcheck/tools/slidemetric"
)

const deckHTML = `<html><head><title>T</title></head><body>` +
	`<section><pre class="sourceCode"><code>x</code></pre></section>` +
	`<section><img src="a.png"></section>` +
	`<section><p>text</p></section>` +
	`<section><p>text</p></section>` +
	`</body></html>`

func newRegistry(t *testing.T) *tools.Registry {
	t.Helper()
	r := tools.NewRegistry()
	require.NoError(t, r.Register(slidemetric.New(deckHTML)))
	return r
}

func TestSlideMetric_TotalSlides(t *testing.T) {
	r := newRegistry(t)

	result, err := r.Invoke(context.Background(), tools.Call{
		ID:        "c1",
		Name:      slidemetric.ToolName,
		Arguments: map[string]any{"metric": "total_slides"},
	})
	require.NoError(t, err)
	assert.False(t, result.IsError)
	// Counts come back as a bare integer, not a percentage.
	assert.Equal(t, "4", result.Content)
}

func TestSlideMetric_Percentages(t *testing.T) {
	r := newRegistry(t)

	tests := []struct {
		metric string
		want   string
	}{
		{"code", "25.00"},
		{"images", "25.00"},
	}
	for _, tt := range tests {
		t.Run(tt.metric, func(t *testing.T) {
			result, err := r.Invoke(context.Background(), tools.Call{
				Name:      slidemetric.ToolName,
				Arguments: map[string]any{"metric": tt.metric},
			})
			require.NoError(t, err)
			assert.False(t, result.IsError)
			assert.Equal(t, tt.want, result.Content)
		})
	}
}

func TestSlideMetric_UnknownMetricRejectedBySchema(t *testing.T) {
	r := newRegistry(t)

	result, err := r.Invoke(context.Background(), tools.Call{
		Name:      slidemetric.ToolName,
		Arguments: map[string]any{"metric": "word_count"},
	})
	require.NoError(t, err)
	// The enum catches the bad name before the handler runs, and the model
	// gets the allowed values back.
	assert.True(t, result.IsError)
	assert.Contains(t, result.Content, "total_slides")
}

func TestSlideMetric_EmptyDeckSurfacesHandlerError(t *testing.T) {
	r := tools.NewRegistry()
	require.NoError(t, r.Register(slidemetric.New("<html><body></body></html>")))

	result, err := r.Invoke(context.Background(), tools.Call{
		Name:      slidemetric.ToolName,
		Arguments: map[string]any{"metric": "total_slides"},
	})
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, result.Content, "no slides")
}
