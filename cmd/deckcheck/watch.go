package main

import (
	"context"
	"fmt"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

// debounceWindow absorbs the burst of writes editors and quarto produce
// when saving a deck.
const debounceWindow = 2 * time.Second

func watchCmd(configPath, logLevel *string) *cobra.Command {
	var (
		audience string
		duration int
		talkType string
		event    string
	)

	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Re-analyze decks as they change",
		Long: `Watch monitors a directory and reruns the analysis whenever a deck
file (.qmd or .html) is written. Useful while iterating on slides.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, client, logger, err := setup(*configPath, *logLevel)
			if err != nil {
				return err
			}

			params := runParams(cfg, audience, duration, talkType, event)
			if err := params.Validate(); err != nil {
				return fmt.Errorf("invalid run parameters: %w", err)
			}

			watcher, err := fsnotify.NewWatcher()
			if err != nil {
				return fmt.Errorf("creating watcher: %w", err)
			}
			defer watcher.Close()

			dir := args[0]
			if err := watcher.Add(dir); err != nil {
				return fmt.Errorf("watching %s: %w", dir, err)
			}
			logger.Info("watching for deck changes", "dir", dir)

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			renderer := newRenderer(cfg, logger)
			lastRun := make(map[string]time.Time)

			for {
				select {
				case <-ctx.Done():
					return nil
				case err, ok := <-watcher.Errors:
					if !ok {
						return nil
					}
					logger.Warn("watcher error", "error", err)
				case ev, ok := <-watcher.Events:
					if !ok {
						return nil
					}
					if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
						continue
					}
					if !isDeckFile(ev.Name) {
						continue
					}
					if time.Since(lastRun[ev.Name]) < debounceWindow {
						continue
					}
					lastRun[ev.Name] = time.Now()

					logger.Info("deck changed", "path", ev.Name)
					runCtx, runCancel := context.WithTimeout(ctx, cfg.Model.Timeout*2)
					if err := analyzeOne(runCtx, cmd, client, renderer, ev.Name, params, cfg.Model.Temperature, false, false); err != nil {
						fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", ev.Name, err)
					}
					runCancel()
				}
			}
		},
	}

	cmd.Flags().StringVar(&audience, "audience", "", "Who the talk is for")
	cmd.Flags().IntVar(&duration, "duration", 0, "Time cap in minutes")
	cmd.Flags().StringVar(&talkType, "talk-type", "", "Kind of talk")
	cmd.Flags().StringVar(&event, "event", "", "Event the talk is for")

	return cmd
}

func isDeckFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".qmd", ".html", ".htm":
		return true
	}
	return false
}
