package analysis

// MetadataRow is the single deck-level fact row of a projection.
type MetadataRow struct {
	PresentationTitle        string  `json:"presentation_title"`
	TotalSlides              int     `json:"total_slides"`
	PercentWithCode          float64 `json:"percent_with_code"`
	PercentWithImages        float64 `json:"percent_with_images"`
	EstimatedDurationMinutes int     `json:"estimated_duration_minutes"`
	Tone                     string  `json:"tone"`
}

// EvaluationRow is one rubric dimension flattened for tabular display.
type EvaluationRow struct {
	Category               string `json:"category"`
	Score                  int    `json:"score"`
	Justification          string `json:"justification"`
	Improvements           string `json:"improvements,omitempty"`
	ScoreAfterImprovements int    `json:"score_after_improvements"`

	// Gain is ScoreAfterImprovements minus Score, zero when no improvements
	// were suggested.
	Gain int `json:"gain"`
}

// Projection is the display-ready view of an analysis: one metadata row and
// one evaluation row per rubric dimension, in declaration order.
type Projection struct {
	Metadata    MetadataRow     `json:"metadata"`
	Evaluations []EvaluationRow `json:"evaluations"`
}

// Project flattens an analysis into its tabular projection. Every dimension
// appears exactly once, in the fixed Dimensions order.
func Project(a *DeckAnalysis) Projection {
	rows := make([]EvaluationRow, 0, len(Dimensions))
	for _, dimension := range Dimensions {
		category := a.Category(dimension)
		rows = append(rows, EvaluationRow{
			Category:               dimension,
			Score:                  category.Score,
			Justification:          category.Justification,
			Improvements:           category.Improvements,
			ScoreAfterImprovements: category.ScoreAfterImprovements,
			Gain:                   category.ScoreAfterImprovements - category.Score,
		})
	}

	return Projection{
		Metadata: MetadataRow{
			PresentationTitle:        a.PresentationTitle,
			TotalSlides:              a.TotalSlides,
			PercentWithCode:          a.PercentWithCode,
			PercentWithImages:        a.PercentWithImages,
			EstimatedDurationMinutes: a.EstimatedDurationMinutes,
			Tone:                     a.Tone,
		},
		Evaluations: rows,
	}
}
