package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/cobra"

	"github.com/c360studio/deckcheck/analysis"
	"github.com/c360studio/deckcheck/config"
	"github.com/c360studio/deckcheck/deck"
	"github.com/c360studio/deckcheck/llm"
)

func analyzeCmd(configPath, logLevel *string) *cobra.Command {
	var (
		audience  string
		duration  int
		talkType  string
		event     string
		asJSON    bool
		showNotes bool
	)

	cmd := &cobra.Command{
		Use:   "analyze <deck>...",
		Short: "Analyze one or more slide decks",
		Long: `Analyze renders each deck and runs the two-phase review against it.

Arguments are paths or glob patterns (** is supported), so a whole
directory of decks can be reviewed in one invocation:

  deckcheck analyze talks/**/*.qmd --audience "platform engineers"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, client, logger, err := setup(*configPath, *logLevel)
			if err != nil {
				return err
			}

			params := runParams(cfg, audience, duration, talkType, event)
			if err := params.Validate(); err != nil {
				return fmt.Errorf("invalid run parameters: %w", err)
			}

			sources, err := expandGlobs(args)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			renderer := newRenderer(cfg, logger)
			var failed int
			for _, source := range sources {
				if err := analyzeOne(ctx, cmd, client, renderer, source, params, cfg.Model.Temperature, asJSON, showNotes); err != nil {
					failed++
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", source, err)
				}
				if ctx.Err() != nil {
					return ctx.Err()
				}
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d decks failed", failed, len(sources))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&audience, "audience", "", "Who the talk is for")
	cmd.Flags().IntVar(&duration, "duration", 0, "Time cap in minutes")
	cmd.Flags().StringVar(&talkType, "talk-type", "", "Kind of talk (conference talk, lightning talk, ...)")
	cmd.Flags().StringVar(&event, "event", "", "Event the talk is for")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit the projection as JSON")
	cmd.Flags().BoolVar(&showNotes, "notes", false, "Include the free-text review notes")

	return cmd
}

func runParams(cfg *config.Config, audience string, duration int, talkType, event string) analysis.RunParams {
	params := analysis.RunParams{
		Audience:        cfg.Run.Audience,
		DurationMinutes: cfg.Run.DurationMinutes,
		TalkType:        cfg.Run.TalkType,
		Event:           cfg.Run.Event,
	}
	if audience != "" {
		params.Audience = audience
	}
	if duration > 0 {
		params.DurationMinutes = duration
	}
	if talkType != "" {
		params.TalkType = talkType
	}
	if event != "" {
		params.Event = event
	}
	return params
}

// expandGlobs resolves each argument as a doublestar pattern, passing plain
// paths through untouched.
func expandGlobs(args []string) ([]string, error) {
	var sources []string
	seen := make(map[string]bool)

	for _, arg := range args {
		matches, err := doublestar.FilepathGlob(arg)
		if err != nil {
			return nil, fmt.Errorf("bad pattern %q: %w", arg, err)
		}
		if len(matches) == 0 {
			// Not a pattern hit; treat as a literal path and let rendering
			// report the missing file.
			matches = []string{arg}
		}
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				sources = append(sources, m)
			}
		}
	}

	return sources, nil
}

func analyzeOne(ctx context.Context, cmd *cobra.Command, client *llm.Client, renderer *deck.Renderer, source string, params analysis.RunParams, temperature float64, asJSON, showNotes bool) error {
	d, err := renderer.Render(ctx, source)
	if err != nil {
		return fmt.Errorf("rendering: %w", err)
	}

	analyzer, err := analysis.NewAnalyzer(client, d, params,
		analysis.WithTemperature(temperature))
	if err != nil {
		return err
	}

	result, err := analyzer.Run(ctx)
	if err != nil {
		return err
	}

	projection := analysis.Project(result)
	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(projection)
	}

	printProjection(cmd, source, projection)
	if showNotes {
		cmd.Println("\nReview notes:")
		cmd.Println(analyzer.Phase1Reply())
	}

	usage := analyzer.Usage()
	cmd.Printf("\nTokens: %d prompt, %d completion\n", usage.PromptTokens, usage.CompletionTokens)
	return nil
}

func printProjection(cmd *cobra.Command, source string, p analysis.Projection) {
	meta := p.Metadata
	cmd.Printf("%s\n%s\n\n", source, strings.Repeat("=", len(source)))
	cmd.Printf("Title:       %s\n", meta.PresentationTitle)
	cmd.Printf("Slides:      %d\n", meta.TotalSlides)
	cmd.Printf("With code:   %.2f%%\n", meta.PercentWithCode)
	cmd.Printf("With images: %.2f%%\n", meta.PercentWithImages)
	cmd.Printf("Duration:    ~%d min\n", meta.EstimatedDurationMinutes)
	cmd.Printf("Tone:        %s\n\n", meta.Tone)

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CATEGORY\tSCORE\tAFTER\tGAIN\tIMPROVEMENTS")
	for _, row := range p.Evaluations {
		improvements := row.Improvements
		if improvements == "" {
			improvements = "-"
		}
		fmt.Fprintf(w, "%s\t%d\t%d\t%+d\t%s\n",
			row.Category, row.Score, row.ScoreAfterImprovements, row.Gain, improvements)
	}
	_ = w.Flush()
}
