package main

import (
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	// Register LLM providers via init()
	_ "github.com/c360studio/deckcheck/llm/providers"

	"github.com/c360studio/deckcheck/config"
	"github.com/c360studio/deckcheck/deck"
	"github.com/c360studio/deckcheck/llm"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "deckcheck"
)

func rootCmd() *cobra.Command {
	var (
		configPath string
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:   "deckcheck",
		Short: "Presentation coaching for slide decks",
		Long: `DeckCheck reviews a slide deck the way a public speaking coach would.

It renders the deck to Markdown and HTML, computes structural slide
metrics through a tool the model must call, and runs a two-phase
conversation: free-text observations first, then a schema-constrained
extraction scoring clarity, relevance, visual design, engagement,
pacing, structure, consistency, and accessibility.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file path (YAML)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	cmd.AddCommand(analyzeCmd(&configPath, &logLevel))
	cmd.AddCommand(serveCmd(&configPath, &logLevel))
	cmd.AddCommand(watchCmd(&configPath, &logLevel))

	// Version command
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("%s version %s (build: %s)\n", appName, Version, BuildTime)
		},
	})

	return cmd
}

// setup wires the shared pieces every subcommand needs: environment, logger,
// layered config, and the LLM client.
func setup(configPath, logLevel string) (*config.Config, *llm.Client, *slog.Logger, error) {
	// API keys commonly live in a local .env during development
	_ = godotenv.Load()

	logger := newLogger(logLevel)
	slog.SetDefault(logger)

	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFromFile(configPath)
		if err == nil {
			err = cfg.Validate()
		}
	} else {
		cfg, err = config.NewLoader(logger).Load()
	}
	if err != nil {
		return nil, nil, nil, err
	}

	client := llm.NewClient(cfg.BuildRegistry(),
		llm.WithLogger(logger),
		llm.WithHTTPClient(&http.Client{Timeout: cfg.Model.Timeout}),
	)

	return cfg, client, logger, nil
}

func newLogger(logLevel string) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func newRenderer(cfg *config.Config, logger *slog.Logger) *deck.Renderer {
	return deck.NewRenderer(
		deck.WithQuartoPath(cfg.Render.QuartoPath),
		deck.WithRendererLogger(logger),
	)
}
