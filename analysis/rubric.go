// Package analysis orchestrates the two-phase deck assessment: a free-text
// phase that grounds the conversation in tool-derived slide metrics, and a
// schema-constrained phase that extracts the full rubric scoring.
package analysis

import "github.com/c360studio/deckcheck/schema"

// Dimensions lists the rubric categories in their fixed declaration order.
// Projection and reporting preserve this order; nothing sorts by score.
var Dimensions = []string{
	"clarity",
	"relevance",
	"visual_design",
	"engagement",
	"pacing",
	"structure",
	"consistency",
	"accessibility",
}

// ScoringCategory is the assessment of one rubric dimension.
type ScoringCategory struct {
	// Score is the current score from 1-10.
	Score int `json:"score"`

	// Justification is a brief explanation of the score.
	Justification string `json:"justification"`

	// Improvements holds concise, actionable suggestions, empty when no
	// improvement is warranted.
	Improvements string `json:"improvements,omitempty"`

	// ScoreAfterImprovements estimates the score after applying the
	// suggestions. Equal to Score when Improvements is empty.
	ScoreAfterImprovements int `json:"score_after_improvements"`
}

// DeckAnalysis is the root aggregate produced by one analysis run. Each run
// builds a fresh instance; it is never mutated or merged after creation.
type DeckAnalysis struct {
	PresentationTitle        string  `json:"presentation_title"`
	TotalSlides              int     `json:"total_slides"`
	PercentWithCode          float64 `json:"percent_with_code"`
	PercentWithImages        float64 `json:"percent_with_images"`
	EstimatedDurationMinutes int     `json:"estimated_duration_minutes"`
	Tone                     string  `json:"tone"`

	Clarity       ScoringCategory `json:"clarity"`
	Relevance     ScoringCategory `json:"relevance"`
	VisualDesign  ScoringCategory `json:"visual_design"`
	Engagement    ScoringCategory `json:"engagement"`
	Pacing        ScoringCategory `json:"pacing"`
	Structure     ScoringCategory `json:"structure"`
	Consistency   ScoringCategory `json:"consistency"`
	Accessibility ScoringCategory `json:"accessibility"`
}

// Category returns the scoring category for a dimension name, nil for an
// unknown name.
func (a *DeckAnalysis) Category(dimension string) *ScoringCategory {
	switch dimension {
	case "clarity":
		return &a.Clarity
	case "relevance":
		return &a.Relevance
	case "visual_design":
		return &a.VisualDesign
	case "engagement":
		return &a.Engagement
	case "pacing":
		return &a.Pacing
	case "structure":
		return &a.Structure
	case "consistency":
		return &a.Consistency
	case "accessibility":
		return &a.Accessibility
	}
	return nil
}

// Normalize enforces the no-phantom-improvement rule: a category without
// suggested improvements projects its current score unchanged. The schema
// leaves this advisory, so it is applied after validation.
func (a *DeckAnalysis) Normalize() {
	for _, dimension := range Dimensions {
		category := a.Category(dimension)
		if category.Improvements == "" {
			category.ScoreAfterImprovements = category.Score
		}
	}
}

// dimensionDescriptions tells the model what each rubric dimension assesses.
var dimensionDescriptions = map[string]string{
	"clarity": "Evaluate how clearly the ideas are communicated. Are the " +
		"explanations easy to understand? Are terms defined when needed? Is the " +
		"key message clear?",
	"relevance": "Assess how well the content matches the audience's background, " +
		"needs, and expectations. Are examples, depth of detail, and terminology " +
		"appropriate for the audience type?",
	"visual_design": "Judge the visual effectiveness of the slides. Are they " +
		"readable, visually balanced, and not overcrowded with text or visuals? " +
		"Is layout used consistently?",
	"engagement": "Estimate how likely the presentation is to keep attention. " +
		"Are there moments of interactivity, storytelling, humor, or visual " +
		"interest that invite focus?",
	"pacing": "Analyze the distribution of content across slides. Are some " +
		"slides too dense or too light?",
	"structure": "Review the logical flow of the presentation. Is there a clear " +
		"beginning, middle, and end? Are transitions between topics smooth? Does " +
		"the presentation build toward a conclusion?",
	"consistency": "Evaluate whether the presentation is consistent when it " +
		"comes to formatting, tone, and visual elements. Are there any elements " +
		"that feel out of place?",
	"accessibility": "Consider how accessible the presentation would be for all " +
		"viewers, including those with visual or cognitive challenges. Are font " +
		"sizes readable? Is there sufficient contrast? Are visual elements not " +
		"overwhelming?",
}

// Schema declares the Phase 2 output contract as data. Versioning the
// schema means editing this declaration, not a Go type.
func Schema() *schema.Schema {
	properties := map[string]*schema.Schema{
		"presentation_title":         schema.String("The presentation title."),
		"total_slides":               schema.Integer("Total number of slides.", 1, 10000),
		"percent_with_code":          schema.Number("Percentage of slides containing code blocks.", 0, 100),
		"percent_with_images":        schema.Number("Percentage of slides containing images.", 0, 100),
		"estimated_duration_minutes": schema.Integer("Estimated presentation duration in minutes.", 0, 10000),
		"tone":                       schema.String("Brief description of the tone of the presentation."),
	}
	required := []string{
		"presentation_title", "total_slides", "percent_with_code",
		"percent_with_images", "estimated_duration_minutes", "tone",
	}

	for _, dimension := range Dimensions {
		properties[dimension] = categorySchema(dimensionDescriptions[dimension])
		required = append(required, dimension)
	}

	return schema.Object("Structured quality assessment of a slide deck.", properties, required)
}

// categorySchema declares the per-dimension scoring object.
func categorySchema(description string) *schema.Schema {
	return schema.Object(description, map[string]*schema.Schema{
		"score":         schema.Integer("Score from 1-10.", 1, 10),
		"justification": schema.String("Brief explanation of the score."),
		"improvements": schema.String("Concise, actionable improvements, mentioning " +
			"slide numbers if applicable. Omit when no improvement is warranted."),
		"score_after_improvements": schema.Integer("Estimated score after suggested improvements.", 1, 10),
	}, []string{"score", "justification", "score_after_improvements"})
}
