package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/c360studio/deckcheck/deck"
	"github.com/c360studio/deckcheck/llm"
	"github.com/c360studio/deckcheck/model"
	"github.com/c360studio/deckcheck/session"
	"github.com/c360studio/deckcheck/tools"
	"github.com/c360studio/deckcheck/tools/slidemetric"
)

// State tracks analyzer progress through the protocol.
type State int

const (
	// StateInitialized means no phase has run yet.
	StateInitialized State = iota
	// StatePhase1Complete means the free-text phase finished and its turns
	// are committed to the session.
	StatePhase1Complete
	// StatePhase2Complete means the structured phase finished and the
	// analysis is available.
	StatePhase2Complete
)

func (s State) String() string {
	switch s {
	case StateInitialized:
		return "initialized"
	case StatePhase1Complete:
		return "phase1_complete"
	case StatePhase2Complete:
		return "phase2_complete"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// RunParams carries the presentation context the coach scores against.
type RunParams struct {
	Audience        string `json:"audience" yaml:"audience"`
	DurationMinutes int    `json:"duration_minutes" yaml:"duration_minutes"`
	TalkType        string `json:"talk_type" yaml:"talk_type"`
	Event           string `json:"event" yaml:"event"`
}

// Validate checks that the run parameters are usable.
func (p RunParams) Validate() error {
	if p.Audience == "" {
		return errors.New("audience is required")
	}
	if p.DurationMinutes <= 0 {
		return fmt.Errorf("duration_minutes must be positive, got %d", p.DurationMinutes)
	}
	if p.TalkType == "" {
		return errors.New("talk_type is required")
	}
	return nil
}

// Analyzer drives both phases of the protocol over a single session, so
// Phase 2 extraction sees every turn Phase 1 produced. An Analyzer is
// single-use: one deck, one run.
type Analyzer struct {
	session     *session.Session
	deck        *deck.Deck
	params      RunParams
	logger      *slog.Logger
	state       State
	temperature float64

	phase1Reply string
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithLogger sets the logger for protocol progress events.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Analyzer) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithTemperature sets the sampling temperature for both phases.
func WithTemperature(t float64) Option {
	return func(a *Analyzer) {
		a.temperature = t
	}
}

// NewAnalyzer builds an analyzer for one deck. The session is created here
// with the metric tool bound to the deck's HTML; callers never feed the HTML
// to the model directly.
func NewAnalyzer(client session.Completer, d *deck.Deck, params RunParams, opts ...Option) (*Analyzer, error) {
	if client == nil {
		return nil, errors.New("client is required")
	}
	if d == nil {
		return nil, errors.New("deck is required")
	}
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid run params: %w", err)
	}

	// A deck with no slides can never ground phase 1, so fail here
	// before any model request is made.
	if _, err := deck.ComputeMetric(d.HTML, deck.MetricTotalSlides); err != nil {
		return nil, fmt.Errorf("inspecting deck: %w", err)
	}

	systemPrompt, err := buildSystemPrompt(params)
	if err != nil {
		return nil, err
	}

	registry := tools.NewRegistry()
	if err := registry.Register(slidemetric.New(d.HTML)); err != nil {
		return nil, fmt.Errorf("registering metric tool: %w", err)
	}

	a := &Analyzer{
		deck:        d,
		params:      params,
		logger:      slog.Default(),
		state:       StateInitialized,
		temperature: 0.8,
	}
	for _, opt := range opts {
		opt(a)
	}

	a.session = session.New(client, systemPrompt,
		session.WithCapability(model.CapabilityAnalysis),
		session.WithTools(registry),
		session.WithTemperature(a.temperature),
		session.WithLogger(a.logger),
	)
	return a, nil
}

// State reports the analyzer's current protocol state.
func (a *Analyzer) State() State { return a.state }

// Phase1Reply returns the free-text commentary from Phase 1. Empty until
// the phase completes.
func (a *Analyzer) Phase1Reply() string { return a.phase1Reply }

// Usage reports tokens consumed so far across both phases.
func (a *Analyzer) Usage() llm.TokenUsage { return a.session.Usage() }

// Run executes both phases in order and returns the normalized analysis.
// A Phase 1 failure aborts the run before any structured request is made.
// A schema validation failure from Phase 2 is returned as-is; callers decide
// whether to rerun with a fresh analyzer.
func (a *Analyzer) Run(ctx context.Context) (*DeckAnalysis, error) {
	if a.state != StateInitialized {
		return nil, fmt.Errorf("analyzer already ran (state %s)", a.state)
	}

	if err := a.runPhase1(ctx); err != nil {
		return nil, err
	}
	return a.runPhase2(ctx)
}

func (a *Analyzer) runPhase1(ctx context.Context) error {
	a.logger.Info("analysis phase 1 starting",
		"deck", a.deck.Source,
		"audience", a.params.Audience)

	reply, err := a.session.Respond(ctx, phase1Prompt(a.deck.Markdown))
	if err != nil {
		return fmt.Errorf("phase 1: %w", err)
	}

	a.phase1Reply = reply
	a.state = StatePhase1Complete
	a.logger.Info("analysis phase 1 complete", "reply_chars", len(reply))
	return nil
}

func (a *Analyzer) runPhase2(ctx context.Context) (*DeckAnalysis, error) {
	a.logger.Info("analysis phase 2 starting", "deck", a.deck.Source)

	var result DeckAnalysis
	if err := a.session.RespondStructured(ctx, phase2Prompt(), Schema(), &result); err != nil {
		return nil, fmt.Errorf("phase 2: %w", err)
	}

	result.Normalize()
	a.state = StatePhase2Complete
	a.logger.Info("analysis phase 2 complete",
		"title", result.PresentationTitle,
		"total_slides", result.TotalSlides)
	return &result, nil
}

// Run is the handle for an analysis started asynchronously.
type Run struct {
	cancel context.CancelFunc
	done   chan struct{}

	result *DeckAnalysis
	err    error
}

// Start launches Run on a new goroutine and returns a cancellable handle.
func (a *Analyzer) Start(ctx context.Context) *Run {
	ctx, cancel := context.WithCancel(ctx)
	r := &Run{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(r.done)
		r.result, r.err = a.Run(ctx)
	}()
	return r
}

// Done is closed when the run finishes, successfully or not.
func (r *Run) Done() <-chan struct{} { return r.done }

// Cancel aborts the run. In-flight requests observe the cancellation.
func (r *Run) Cancel() { r.cancel() }

// Result blocks until the run finishes and returns its outcome.
func (r *Run) Result() (*DeckAnalysis, error) {
	<-r.done
	return r.result, r.err
}
