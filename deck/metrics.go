package deck

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// Metric identifies a structural measurement over the HTML rendering.
type Metric string

// Metrics the extractor understands. These names double as the enum values
// the model passes when invoking the slide metric tool.
const (
	MetricTotalSlides Metric = "total_slides"
	MetricCode        Metric = "code"
	MetricImages      Metric = "images"
)

// Metrics lists all supported metrics in declaration order.
func Metrics() []Metric {
	return []Metric{MetricTotalSlides, MetricCode, MetricImages}
}

// Structural markers in the rendered HTML. Each slide opens with a <section>
// element; highlighted code carries the sourceCode class; images are embedded
// as <img> tags. These are reveal.js output conventions, not configurable.
const (
	slideDelimiter = "<section"
	codeMarker     = `class="sourceCode"`
	imageMarker    = "<img"
)

// ErrEmptyDeck is returned when the HTML contains no delimited slides.
// Percentages are undefined for an empty deck; the guard runs before any
// division so the extractor can never produce NaN or Inf.
var ErrEmptyDeck = errors.New("deck has no slides")

// ErrUnknownMetric is returned for a metric name outside the supported set.
// Hitting it means the tool wiring is wrong, not that the input is bad.
var ErrUnknownMetric = errors.New("unknown metric")

// ComputeMetric measures the HTML rendering of a deck. For MetricTotalSlides
// it returns the slide count; for MetricCode and MetricImages it returns the
// percentage of slides containing at least one matching marker, rounded to
// two decimal places. A slide with several code blocks or images still counts
// once.
func ComputeMetric(html string, metric Metric) (float64, error) {
	parts := strings.Split(html, slideDelimiter)
	// The first part is everything before the first slide (head, scripts).
	slides := parts[1:]
	if len(slides) == 0 {
		return 0, fmt.Errorf("compute %s: %w", metric, ErrEmptyDeck)
	}

	switch metric {
	case MetricTotalSlides:
		return float64(len(slides)), nil
	case MetricCode:
		return percentContaining(slides, codeMarker), nil
	case MetricImages:
		return percentContaining(slides, imageMarker), nil
	default:
		return 0, fmt.Errorf("%w: %q (choose total_slides, code, or images)", ErrUnknownMetric, metric)
	}
}

// percentContaining returns the share of slides containing the marker as a
// percentage rounded to two decimal places. Callers guarantee len(slides) > 0.
func percentContaining(slides []string, marker string) float64 {
	matches := 0
	for _, slide := range slides {
		if strings.Contains(slide, marker) {
			matches++
		}
	}
	pct := 100 * float64(matches) / float64(len(slides))
	return math.Round(pct*100) / 100
}
