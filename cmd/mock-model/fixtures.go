package main

import (
	"encoding/json"
	"fmt"

	"github.com/c360studio/deckcheck/analysis"
)

const builtinCommentary = `The deck has 12 slides. Using the metric tool: 25.00% carry code and ` +
	`41.67% carry images. The opening three slides are all prose, the code-heavy ` +
	`middle section runs slides 5 through 8 back to back, and the close returns ` +
	`to a single summary visual. At a typical pace this reads as a 20 minute talk.`

// builtinSequence returns the two-phase pair served when no fixture dir is
// configured: commentary first, then a conforming rubric payload. Built from
// the rubric type itself so it never drifts out of schema.
func builtinSequence() []string {
	payload := map[string]any{
		"presentation_title":         "Sample Deck",
		"total_slides":               12,
		"percent_with_code":          25.00,
		"percent_with_images":        41.67,
		"estimated_duration_minutes": 20,
		"tone":                       "informal and technical",
	}
	for i, dim := range analysis.Dimensions {
		score := 5 + i%4
		payload[dim] = map[string]any{
			"score":                    score,
			"justification":            fmt.Sprintf("Canned verdict on %s for offline runs.", dim),
			"improvements":             fmt.Sprintf("Canned suggestion for %s.", dim),
			"score_after_improvements": score + 2,
		}
	}

	rubric, err := json.Marshal(payload)
	if err != nil {
		panic(err)
	}
	return []string{builtinCommentary, string(rubric)}
}
