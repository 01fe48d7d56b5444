// Package server exposes deck analysis over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/c360studio/deckcheck/analysis"
	"github.com/c360studio/deckcheck/config"
	"github.com/c360studio/deckcheck/deck"
	"github.com/c360studio/deckcheck/session"
)

// maxDeckUpload bounds the multipart form size for /analyze.
const maxDeckUpload = 32 << 20

// Server runs the analysis API.
type Server struct {
	cfg      *config.Config
	client   session.Completer
	renderer *deck.Renderer
	logger   *slog.Logger
	router   *chi.Mux
	httpSrv  *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request and lifecycle logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRenderer overrides the deck renderer.
func WithRenderer(r *deck.Renderer) Option {
	return func(s *Server) {
		if r != nil {
			s.renderer = r
		}
	}
}

// New builds the server with its routes registered.
func New(cfg *config.Config, client session.Completer, opts ...Option) *Server {
	s := &Server{
		cfg:    cfg,
		client: client,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.renderer == nil {
		s.renderer = deck.NewRenderer(
			deck.WithQuartoPath(cfg.Render.QuartoPath),
			deck.WithRendererLogger(s.logger),
		)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/analyze", s.handleAnalyze)

	s.router = r
	return s
}

// Router exposes the mux, mainly for tests.
func (s *Server) Router() http.Handler { return s.router }

// Start listens until the context is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.httpSrv = &http.Server{
		Addr:         s.cfg.Server.Addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("analysis server listening", "addr", s.cfg.Server.Addr)
		errCh <- s.httpSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.WriteTimeout)
		defer cancel()
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// analyzeResponse is the /analyze payload: the projection plus the free-text
// commentary from the first phase and token accounting for the whole run.
type analyzeResponse struct {
	Deck       string              `json:"deck"`
	Analysis   analysis.Projection `json:"analysis"`
	Commentary string              `json:"commentary,omitempty"`
	Usage      map[string]int      `json:"usage"`
}

// handleAnalyze accepts a multipart form with a "deck" file (.html or .qmd)
// and optional audience, duration_minutes, talk_type, and event fields, and
// responds with the full projection.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxDeckUpload); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid multipart form: %v", err))
		return
	}

	file, header, err := r.FormFile("deck")
	if err != nil {
		writeError(w, http.StatusBadRequest, "deck file is required")
		return
	}
	defer file.Close()

	params, err := s.runParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	d, err := s.renderUpload(r.Context(), file, header.Filename)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, fmt.Sprintf("rendering deck: %v", err))
		return
	}

	analyzer, err := analysis.NewAnalyzer(s.client, d, params,
		analysis.WithLogger(s.logger),
		analysis.WithTemperature(s.cfg.Model.Temperature),
	)
	if err != nil {
		if errors.Is(err, deck.ErrEmptyDeck) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := analyzer.Run(r.Context())
	if err != nil {
		s.logger.Error("analysis failed", "deck", header.Filename, "error", err)
		writeError(w, analysisStatus(err), err.Error())
		return
	}

	usage := analyzer.Usage()
	writeJSON(w, http.StatusOK, analyzeResponse{
		Deck:       header.Filename,
		Analysis:   analysis.Project(result),
		Commentary: analyzer.Phase1Reply(),
		Usage: map[string]int{
			"prompt_tokens":     usage.PromptTokens,
			"completion_tokens": usage.CompletionTokens,
			"total_tokens":      usage.TotalTokens,
		},
	})
}

// runParams merges form fields over the configured run defaults.
func (s *Server) runParams(r *http.Request) (analysis.RunParams, error) {
	params := analysis.RunParams{
		Audience:        s.cfg.Run.Audience,
		DurationMinutes: s.cfg.Run.DurationMinutes,
		TalkType:        s.cfg.Run.TalkType,
		Event:           s.cfg.Run.Event,
	}

	if v := r.FormValue("audience"); v != "" {
		params.Audience = v
	}
	if v := r.FormValue("duration_minutes"); v != "" {
		minutes, err := strconv.Atoi(v)
		if err != nil {
			return params, fmt.Errorf("duration_minutes must be an integer, got %q", v)
		}
		params.DurationMinutes = minutes
	}
	if v := r.FormValue("talk_type"); v != "" {
		params.TalkType = v
	}
	if v := r.FormValue("event"); v != "" {
		params.Event = v
	}

	return params, params.Validate()
}

// renderUpload spools the upload to a temp file so the renderer can dispatch
// on its extension.
func (s *Server) renderUpload(ctx context.Context, file io.Reader, filename string) (*deck.Deck, error) {
	ext := filepath.Ext(filename)
	if ext == "" {
		ext = ".html"
	}

	dir, err := os.MkdirTemp("", "deckcheck-upload-*")
	if err != nil {
		return nil, fmt.Errorf("creating upload dir: %w", err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "deck"+ext)
	out, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("spooling upload: %w", err)
	}
	if _, err := io.Copy(out, file); err != nil {
		out.Close()
		return nil, fmt.Errorf("spooling upload: %w", err)
	}
	if err := out.Close(); err != nil {
		return nil, fmt.Errorf("spooling upload: %w", err)
	}

	return s.renderer.Render(ctx, path)
}
