package analysis

import (
	"fmt"
	"strings"
	"text/template"
)

// systemPromptTemplate frames the whole conversation. Both phases run
// against this prompt; the per-phase user turns only name which task to
// execute, so the model keeps its earlier tool-derived counts in scope.
var systemPromptTemplate = template.Must(template.New("system").Parse(`You are an experienced public speaking coach reviewing a slide deck for an upcoming talk.

Presentation context:
- Audience: {{.Audience}}
- Time cap: {{.DurationMinutes}} minutes
- Type of talk: {{.TalkType}}
- Event: {{.Event}}

You have two tasks. Perform only the task the user asks for.

Task 1 (counts): determine structural facts about the deck. Use the calculate_slide_metric tool to obtain the total number of slides, the percentage of slides containing code, and the percentage of slides containing images. Never estimate these values yourself. Then read the slides and estimate the presentation duration in minutes and describe the overall tone.

Task 2 (suggestions): score the deck on each quality dimension you are asked about, justify every score, and suggest concise, actionable improvements where warranted, mentioning slide numbers when applicable. Reuse the counts and observations from Task 1 without recomputing them.`))

type systemPromptData struct {
	Audience        string
	DurationMinutes int
	TalkType        string
	Event           string
}

func buildSystemPrompt(params RunParams) (string, error) {
	var sb strings.Builder
	err := systemPromptTemplate.Execute(&sb, systemPromptData{
		Audience:        params.Audience,
		DurationMinutes: params.DurationMinutes,
		TalkType:        params.TalkType,
		Event:           params.Event,
	})
	if err != nil {
		return "", fmt.Errorf("building system prompt: %w", err)
	}
	return sb.String(), nil
}

func phase1Prompt(markdown string) string {
	return "Execute Task 1 (counts).\n\nHere is the deck in Markdown:\n\n" + markdown
}

func phase2Prompt() string {
	return "Execute Task 2 (suggestions), building on the counts and observations from Task 1."
}
