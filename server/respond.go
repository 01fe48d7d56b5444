package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/c360studio/deckcheck/deck"
	"github.com/c360studio/deckcheck/llm"
	"github.com/c360studio/deckcheck/schema"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// analysisStatus maps a run failure to an HTTP status. Model output that
// fails schema validation is the upstream's fault, deck problems are the
// caller's.
func analysisStatus(err error) int {
	var validationErr *schema.ValidationError
	if errors.As(err, &validationErr) {
		return http.StatusBadGateway
	}
	if errors.Is(err, deck.ErrEmptyDeck) || errors.Is(err, deck.ErrUnknownMetric) {
		return http.StatusUnprocessableEntity
	}
	if llm.IsFatal(err) || llm.IsTransient(err) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
