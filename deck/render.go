package deck

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"
)

// Renderer produces the Markdown and HTML artifacts for a deck source.
// Quarto sources (.qmd) are rendered by invoking the quarto binary; HTML
// sources are taken as-is with the Markdown artifact derived via
// html-to-markdown.
type Renderer struct {
	quartoPath string
	converter  *md.Converter
	logger     *slog.Logger
}

// RendererOption configures a Renderer.
type RendererOption func(*Renderer)

// WithQuartoPath overrides the quarto binary path (default "quarto").
func WithQuartoPath(path string) RendererOption {
	return func(r *Renderer) {
		if path != "" {
			r.quartoPath = path
		}
	}
}

// WithRendererLogger sets the logger.
func WithRendererLogger(logger *slog.Logger) RendererOption {
	return func(r *Renderer) {
		r.logger = logger
	}
}

// NewRenderer creates a renderer.
func NewRenderer(opts ...RendererOption) *Renderer {
	converter := md.NewConverter("", true, nil)
	converter.Use(plugin.GitHubFlavored())

	r := &Renderer{
		quartoPath: "quarto",
		converter:  converter,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Render produces a Deck from a source document. Both artifacts are scoped
// to the returned Deck; the renderer keeps no state between runs.
func (r *Renderer) Render(ctx context.Context, source string) (*Deck, error) {
	switch strings.ToLower(filepath.Ext(source)) {
	case ".qmd", ".qmdx":
		return r.renderQuarto(ctx, source)
	case ".html", ".htm":
		return r.renderHTML(source)
	default:
		return nil, fmt.Errorf("render %s: unsupported deck format %q", source, filepath.Ext(source))
	}
}

// renderQuarto shells out to quarto for both target formats and reads the
// generated files back.
func (r *Renderer) renderQuarto(ctx context.Context, source string) (*Deck, error) {
	cmd := exec.CommandContext(ctx, r.quartoPath, "render", source, "--to", "markdown,html")
	cmd.Dir = filepath.Dir(source)

	r.logger.Debug("Rendering deck", "source", source, "quarto", r.quartoPath)

	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("quarto render %s: %w: %s", source, err, truncate(string(out), 500))
	}

	markdown, err := r.readArtifact(source, ".md")
	if err != nil {
		return nil, err
	}
	htmlDoc, err := r.readArtifact(source, ".html")
	if err != nil {
		return nil, err
	}

	return New(source, markdown, htmlDoc)
}

// renderHTML uses an already rendered HTML document as the source of both
// artifacts, converting markup to Markdown for the content side.
func (r *Renderer) renderHTML(source string) (*Deck, error) {
	data, err := os.ReadFile(source)
	if err != nil {
		return nil, fmt.Errorf("read deck HTML: %w", err)
	}

	markdown, err := r.converter.ConvertString(string(data))
	if err != nil {
		return nil, fmt.Errorf("convert deck HTML to markdown: %w", err)
	}

	return New(source, markdown, string(data))
}

// readArtifact locates a quarto output file for the source. Quarto writes
// next to the source by default, or under the project's output-dir; "docs"
// is the conventional output-dir for published decks, so both are checked.
func (r *Renderer) readArtifact(source, ext string) (string, error) {
	base := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source)) + ext
	dir := filepath.Dir(source)

	candidates := []string{
		filepath.Join(dir, base),
		filepath.Join(dir, "docs", base),
		filepath.Join(dir, "_site", base),
	}

	for _, path := range candidates {
		data, err := os.ReadFile(path)
		if err == nil {
			return string(data), nil
		}
		if !os.IsNotExist(err) {
			return "", fmt.Errorf("read rendered artifact: %w", err)
		}
	}

	return "", fmt.Errorf("rendered artifact %s not found near %s", base, dir)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
