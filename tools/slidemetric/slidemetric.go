// Package slidemetric exposes the slide metric extractor as a conversation
// tool. The handler closes over the HTML rendering of one deck and only
// reads it, so a registered instance is safe to call any number of times
// within a session.
package slidemetric

import (
	"context"
	"fmt"

	"github.com/c360studio/deckcheck/deck"
	"github.com/c360studio/deckcheck/tools"
)

// ToolName is the name the model uses to invoke the extractor.
const ToolName = "calculate_slide_metric"

// New builds the tool descriptor for a deck's HTML rendering.
func New(html string) tools.Descriptor {
	return tools.Descriptor{
		Name: ToolName,
		Description: "Calculates the total number of slides, the percentage of slides " +
			"containing fenced code blocks, or the percentage of slides containing " +
			"images in the rendered presentation.",
		Parameters: map[string]tools.ParamSpec{
			"metric": {
				Type: "string",
				Description: "The metric to calculate: \"total_slides\" for the total " +
					"number of slides, \"code\" for the percentage of slides with code " +
					"blocks, or \"images\" for the percentage of slides with images.",
				Required: true,
				Enum:     metricNames(),
			},
		},
		Handler: func(_ context.Context, args map[string]any) (any, error) {
			metric, _ := args["metric"].(string)
			value, err := deck.ComputeMetric(html, deck.Metric(metric))
			if err != nil {
				return nil, err
			}
			if deck.Metric(metric) == deck.MetricTotalSlides {
				return int(value), nil
			}
			return fmt.Sprintf("%.2f", value), nil
		},
	}
}

func metricNames() []string {
	metrics := deck.Metrics()
	names := make([]string, len(metrics))
	for i, m := range metrics {
		names[i] = string(m)
	}
	return names
}
