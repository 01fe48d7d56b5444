package analysis_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/deckcheck/analysis"
)

func TestProject(t *testing.T) {
	var a analysis.DeckAnalysis
	require.NoError(t, json.Unmarshal([]byte(analysisJSON(t, func(p map[string]any) {
		p["engagement"] = map[string]any{
			"score":                    5,
			"justification":            "flat middle section",
			"improvements":             "add a demo on slide 6",
			"score_after_improvements": 8,
		}
	})), &a))
	a.Normalize()

	p := analysis.Project(&a)

	assert.Equal(t, "Go for Data Teams", p.Metadata.PresentationTitle)
	assert.Equal(t, 10, p.Metadata.TotalSlides)
	assert.Equal(t, 20.0, p.Metadata.PercentWithCode)

	// One row per dimension, in fixed declaration order.
	require.Len(t, p.Evaluations, len(analysis.Dimensions))
	for i, dim := range analysis.Dimensions {
		assert.Equal(t, dim, p.Evaluations[i].Category)
	}

	// Gain reflects the projected uplift; untouched rows gain nothing.
	var engagement, clarity analysis.EvaluationRow
	for _, row := range p.Evaluations {
		switch row.Category {
		case "engagement":
			engagement = row
		case "clarity":
			clarity = row
		}
	}
	assert.Equal(t, 3, engagement.Gain)
	assert.Equal(t, "add a demo on slide 6", engagement.Improvements)
	assert.Equal(t, 0, clarity.Gain)
}

func TestProject_OrderIsStableAcrossCalls(t *testing.T) {
	var a analysis.DeckAnalysis
	require.NoError(t, json.Unmarshal([]byte(analysisJSON(t, nil)), &a))

	first := analysis.Project(&a)
	second := analysis.Project(&a)
	assert.Equal(t, first, second)
}
