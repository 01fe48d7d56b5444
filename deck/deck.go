// Package deck handles the textual artifacts of a presentation and the
// structural measurements taken over them. A deck is rendered once into a
// Markdown artifact (content, fed to the model) and an HTML artifact
// (markup, measured by the metric extractor); both are immutable for the
// life of an analysis run.
package deck

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// Deck holds the two renderings of one source presentation.
type Deck struct {
	// Source is the path the deck was rendered from.
	Source string

	// Markdown is the content rendering used for semantic analysis.
	Markdown string

	// HTML is the markup rendering used for structural counting.
	HTML string

	// Title is the presentation title extracted from the HTML head,
	// empty if the document has none.
	Title string
}

// New builds a Deck from already-rendered artifacts, extracting the title
// from the HTML head.
func New(source, markdown, htmlDoc string) (*Deck, error) {
	if strings.TrimSpace(markdown) == "" {
		return nil, fmt.Errorf("deck %s: empty markdown rendering", source)
	}
	if strings.TrimSpace(htmlDoc) == "" {
		return nil, fmt.Errorf("deck %s: empty HTML rendering", source)
	}

	return &Deck{
		Source:   source,
		Markdown: markdown,
		HTML:     htmlDoc,
		Title:    extractTitle(htmlDoc),
	}, nil
}

// extractTitle returns the text of the document's <title> element.
// Parse errors and missing titles both yield "" - the title is advisory,
// the model reports its own from the slide content.
func extractTitle(htmlDoc string) string {
	root, err := html.Parse(strings.NewReader(htmlDoc))
	if err != nil {
		return ""
	}

	var title string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if title != "" {
			return
		}
		if n.Type == html.ElementNode && n.Data == "title" {
			var sb strings.Builder
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				if c.Type == html.TextNode {
					sb.WriteString(c.Data)
				}
			}
			title = strings.TrimSpace(sb.String())
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return title
}
