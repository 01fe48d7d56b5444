package main

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/deckcheck/analysis"
)

func writeFixture(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func completions(t *testing.T, s *server, model string) (*httptest.ResponseRecorder, chatResponse) {
	t.Helper()
	body, err := json.Marshal(chatRequest{
		Model:    model,
		Messages: []chatMessage{{Role: "user", Content: "analyze this"}},
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.handleChatCompletions(rec, req)

	var resp chatResponse
	if rec.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	}
	return rec, resp
}

func TestLoadFixtures_SequencedBeforeBase(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "deck-coach.2.json", `{"phase": 2}`)
	writeFixture(t, dir, "deck-coach.1.txt", "phase 1 commentary")
	writeFixture(t, dir, "deck-coach.txt", "fallback")
	writeFixture(t, dir, "other.txt", "other model")

	fixtures, err := loadFixtures(dir)
	require.NoError(t, err)

	require.Contains(t, fixtures, "deck-coach")
	assert.Equal(t, []string{"phase 1 commentary", `{"phase": 2}`, "fallback"}, fixtures["deck-coach"])
	assert.Equal(t, []string{"other model"}, fixtures["other"])
}

func TestLoadFixtures_EmptyDir(t *testing.T) {
	_, err := loadFixtures(t.TempDir())
	assert.Error(t, err)
}

func TestChatCompletions_SequentialPlayback(t *testing.T) {
	s := newServer(map[string][]string{
		"deck-coach": {"first", "second"},
	}, testLogger())

	_, resp := completions(t, s, "deck-coach")
	assert.Equal(t, "first", resp.Choices[0].Message.Content)

	_, resp = completions(t, s, "deck-coach")
	assert.Equal(t, "second", resp.Choices[0].Message.Content)

	// Exhausted sequences repeat the last fixture.
	_, resp = completions(t, s, "deck-coach")
	assert.Equal(t, "second", resp.Choices[0].Message.Content)
}

func TestChatCompletions_UnknownModel(t *testing.T) {
	s := newServer(map[string][]string{"deck-coach": {"x"}}, testLogger())

	rec, _ := completions(t, s, "nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestChatCompletions_MockPrefixStripped(t *testing.T) {
	s := newServer(map[string][]string{"deck-coach": {"content"}}, testLogger())

	rec, resp := completions(t, s, "mock-deck-coach")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "content", resp.Choices[0].Message.Content)
}

func TestBuiltinSequence_ConformsToRubric(t *testing.T) {
	seq := builtinSequence()
	require.Len(t, seq, 2)

	var v any
	require.NoError(t, json.Unmarshal([]byte(seq[1]), &v))
	assert.NoError(t, analysis.Schema().Validate(v))
}

func TestBuiltinServedWithoutFixtureDir(t *testing.T) {
	s := newServer(nil, testLogger())

	rec, resp := completions(t, s, "anything")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, resp.Choices[0].Message.Content, "12 slides")

	_, resp = completions(t, s, "anything")
	assert.Contains(t, resp.Choices[0].Message.Content, "presentation_title")
}

func TestStatsAndRequests(t *testing.T) {
	s := newServer(map[string][]string{
		"deck-coach": {"a", "b"},
		"other":      {"c"},
	}, testLogger())

	completions(t, s, "deck-coach")
	completions(t, s, "deck-coach")
	completions(t, s, "other")

	rec := httptest.NewRecorder()
	s.handleStats(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))
	var stats struct {
		TotalCalls   int            `json:"total_calls"`
		CallsByModel map[string]int `json:"calls_by_model"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 3, stats.TotalCalls)
	assert.Equal(t, 2, stats.CallsByModel["deck-coach"])

	rec = httptest.NewRecorder()
	s.handleRequests(rec, httptest.NewRequest(http.MethodGet, "/requests?model=deck-coach&call=2", nil))
	var captured struct {
		RequestsByModel map[string][]capturedRequest `json:"requests_by_model"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &captured))
	require.Len(t, captured.RequestsByModel["deck-coach"], 1)
	assert.Equal(t, 2, captured.RequestsByModel["deck-coach"][0].CallIndex)
	assert.Equal(t, "analyze this", captured.RequestsByModel["deck-coach"][0].Messages[0].Content)
	assert.NotContains(t, captured.RequestsByModel, "other")
}

func TestHealthz(t *testing.T) {
	s := newServer(nil, testLogger())

	rec := httptest.NewRecorder()
	s.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}
