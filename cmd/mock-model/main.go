// Package main implements a mock model server for offline deckcheck runs.
// It serves OpenAI-compatible /v1/chat/completions responses from fixture
// files, routing by the "model" field in the request. Point an endpoint at it
// and `deckcheck analyze` works without a real model, deterministically.
//
// Usage:
//
//	mock-model -fixtures ./fixtures -port 11434
//
// Fixture files are named by model with an extension (e.g. "deck-coach.txt"
// maps to model "deck-coach"). The file content is returned verbatim as the
// assistant message.
//
// Sequential fixtures: numbered files (e.g. "deck-coach.1.txt",
// "deck-coach.2.json") are played back in order, one per call, with the
// unnumbered base file repeating once the sequence is exhausted. A two-phase
// analysis run maps onto this directly: fixture 1 is the free-text
// commentary, fixture 2 is the rubric JSON.
//
// With no -fixtures directory the server answers every model with a built-in
// commentary and rubric pair, so a zero-setup demo run succeeds end to end.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
)

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// capturedRequest stores the key fields of an incoming request so tests can
// verify what prompts the analyzer actually sent.
type capturedRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	CallIndex int           `json:"call_index"`
	Timestamp int64         `json:"timestamp"`
}

type server struct {
	fixtures map[string][]string
	logger   *slog.Logger
	calls    atomic.Int64

	mu            sync.Mutex
	modelCalls    map[string]int
	modelRequests map[string][]capturedRequest
}

func newServer(fixtures map[string][]string, logger *slog.Logger) *server {
	return &server{
		fixtures:      fixtures,
		logger:        logger,
		modelCalls:    make(map[string]int),
		modelRequests: make(map[string][]capturedRequest),
	}
}

func main() {
	fixtureDir := flag.String("fixtures", "", "directory containing fixture response files")
	port := flag.Int("port", 11434, "port to listen on")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if envDir := os.Getenv("MOCK_MODEL_FIXTURES"); envDir != "" && *fixtureDir == "" {
		*fixtureDir = envDir
	}

	var fixtures map[string][]string
	if *fixtureDir == "" {
		fixtures = nil
		logger.Info("no fixture dir, serving built-in rubric for every model")
	} else {
		var err error
		fixtures, err = loadFixtures(*fixtureDir)
		if err != nil {
			logger.Error("loading fixtures", "dir", *fixtureDir, "error", err)
			os.Exit(1)
		}
		logger.Info("fixtures loaded", "dir", *fixtureDir, "models", len(fixtures))
	}

	s := newServer(fixtures, logger)

	r := chi.NewRouter()
	r.Get("/healthz", s.handleHealth)
	r.Post("/v1/chat/completions", s.handleChatCompletions)
	r.Get("/v1/models", s.handleModels)
	r.Get("/stats", s.handleStats)
	r.Get("/requests", s.handleRequests)

	addr := fmt.Sprintf(":%d", *port)
	logger.Info("mock model server listening", "addr", addr)
	if err := http.ListenAndServe(addr, r); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func (s *server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	callNum := s.calls.Add(1)

	seq := s.resolve(req.Model)
	if seq == nil {
		s.logger.Warn("no fixture for model", "call", callNum, "model", req.Model)
		http.Error(w, fmt.Sprintf("no fixture for model %q", req.Model), http.StatusNotFound)
		return
	}

	s.mu.Lock()
	callIndex := s.modelCalls[req.Model]
	s.modelCalls[req.Model] = callIndex + 1
	s.modelRequests[req.Model] = append(s.modelRequests[req.Model], capturedRequest{
		Model:     req.Model,
		Messages:  req.Messages,
		CallIndex: callIndex + 1,
		Timestamp: time.Now().UnixMilli(),
	})
	s.mu.Unlock()

	content := seq[len(seq)-1]
	if callIndex < len(seq) {
		content = seq[callIndex]
	}

	s.logger.Info("serving fixture",
		"call", callNum, "model", req.Model,
		"call_index", callIndex+1, "fixtures", len(seq))

	writeJSON(w, chatResponse{
		ID:      fmt.Sprintf("mock-%d", time.Now().UnixNano()),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   req.Model,
		Choices: []chatChoice{
			{
				Index:        0,
				Message:      chatMessage{Role: "assistant", Content: content},
				FinishReason: "stop",
			},
		},
		Usage: chatUsage{
			PromptTokens:     len(content) / 4,
			CompletionTokens: len(content) / 4,
			TotalTokens:      len(content) / 2,
		},
	})
}

// resolve finds the fixture sequence for a model. With no fixture dir every
// model gets the built-in two-phase pair.
func (s *server) resolve(model string) []string {
	if s.fixtures == nil {
		return builtinSequence()
	}
	if seq, ok := s.fixtures[model]; ok {
		return seq
	}
	if seq, ok := s.fixtures[strings.TrimPrefix(model, "mock-")]; ok {
		return seq
	}
	return nil
}

func (s *server) handleModels(w http.ResponseWriter, _ *http.Request) {
	type modelEntry struct {
		ID      string `json:"id"`
		Object  string `json:"object"`
		OwnedBy string `json:"owned_by"`
	}
	var models []modelEntry
	for name := range s.fixtures {
		models = append(models, modelEntry{ID: name, Object: "model", OwnedBy: "mock-model"})
	}
	writeJSON(w, map[string]any{"object": "list", "data": models})
}

func (s *server) handleStats(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	callsByModel := make(map[string]int, len(s.modelCalls))
	for model, count := range s.modelCalls {
		callsByModel[model] = count
	}
	s.mu.Unlock()

	writeJSON(w, map[string]any{
		"total_calls":    s.calls.Load(),
		"calls_by_model": callsByModel,
	})
}

// handleRequests returns captured request bodies for test assertions,
// optionally filtered by ?model= and 1-indexed ?call=.
func (s *server) handleRequests(w http.ResponseWriter, r *http.Request) {
	modelFilter := r.URL.Query().Get("model")
	callFilter := r.URL.Query().Get("call")

	s.mu.Lock()
	result := make(map[string][]capturedRequest)
	for model, reqs := range s.modelRequests {
		if modelFilter != "" && model != modelFilter {
			continue
		}
		if callIdx, err := strconv.Atoi(callFilter); callFilter != "" && err == nil {
			for _, req := range reqs {
				if req.CallIndex == callIdx {
					result[model] = append(result[model], req)
				}
			}
			continue
		}
		result[model] = reqs
	}
	s.mu.Unlock()

	writeJSON(w, map[string]any{"requests_by_model": result})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// numberedFileRe matches files like "deck-coach.1.txt", "deck-coach.2.json".
var numberedFileRe = regexp.MustCompile(`^(.+)\.(\d+)\.[^.]+$`)

// loadFixtures reads fixture files from dir and returns model name to ordered
// content sequence. Numbered files play first in numeric order, then the
// unnumbered base file repeats as the fallback. Content is returned verbatim,
// so prose commentary and rubric JSON both work.
func loadFixtures(dir string) (map[string][]string, error) {
	baseFiles := make(map[string]string)
	numberedFiles := make(map[string]map[int]string)

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || strings.HasPrefix(info.Name(), ".") {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		content := string(data)

		if matches := numberedFileRe.FindStringSubmatch(info.Name()); matches != nil {
			model := matches[1]
			index, _ := strconv.Atoi(matches[2])
			if numberedFiles[model] == nil {
				numberedFiles[model] = make(map[int]string)
			}
			numberedFiles[model][index] = content
			return nil
		}

		model := strings.TrimSuffix(info.Name(), filepath.Ext(info.Name()))
		baseFiles[model] = content
		return nil
	})
	if err != nil {
		return nil, err
	}

	fixtures := make(map[string][]string)
	allModels := make(map[string]bool)
	for m := range baseFiles {
		allModels[m] = true
	}
	for m := range numberedFiles {
		allModels[m] = true
	}

	for model := range allModels {
		var seq []string
		if numbered, ok := numberedFiles[model]; ok {
			indices := make([]int, 0, len(numbered))
			for idx := range numbered {
				indices = append(indices, idx)
			}
			sort.Ints(indices)
			for _, idx := range indices {
				seq = append(seq, numbered[idx])
			}
		}
		if base, ok := baseFiles[model]; ok {
			seq = append(seq, base)
		}
		if len(seq) > 0 {
			fixtures[model] = seq
		}
	}

	if len(fixtures) == 0 {
		return nil, fmt.Errorf("no fixture files found in %s", dir)
	}
	return fixtures, nil
}
