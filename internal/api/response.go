// Package api provides HTTP response utilities for AgentBuilder.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/BTreeMap/AgentBuilder/internal/flow"
	"github.com/BTreeMap/AgentBuilder/internal/models"
	"github.com/BTreeMap/AgentBuilder/internal/prompt"
	"github.com/BTreeMap/AgentBuilder/internal/session"
	"github.com/BTreeMap/AgentBuilder/internal/store"
)

// Pre-marshaled fallback responses to avoid runtime JSON encoding failures
var (
	fallbackErrorResponse []byte
)

// init validates that our fallback responses can be marshaled
func init() {
	var err error
	fallbackErrorResponse, err = json.Marshal(models.Error("Internal server error"))
	if err != nil {
		panic(fmt.Sprintf("Failed to marshal fallback error response at startup: %v", err))
	}
}

// writeJSONResponse writes a JSON response to the http.ResponseWriter with the given status code.
func writeJSONResponse(w http.ResponseWriter, statusCode int, response interface{}) {
	// Marshal first so encoding errors surface before headers are written
	jsonData, err := json.Marshal(response)
	if err != nil {
		slog.Error("Server.writeJSONResponse: failed to marshal JSON response", "error", err)
		jsonData = fallbackErrorResponse
		statusCode = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if _, writeErr := w.Write(jsonData); writeErr != nil {
		slog.Error("Server.writeJSONResponse: failed to write JSON response", "error", writeErr)
	}
}

// errorStatus maps domain errors to an HTTP status and a client-facing message.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, store.ErrSessionNotFound):
		return http.StatusNotFound, "Session not found"
	case errors.Is(err, store.ErrSessionExpired):
		return http.StatusNotFound, "Session expired"
	case errors.Is(err, store.ErrWorkflowNotFound):
		return http.StatusNotFound, "Workflow not found"
	case errors.Is(err, flow.ErrSessionBusy):
		return http.StatusConflict, "Session is busy, retry later"
	case errors.Is(err, models.ErrEmptyMessage),
		errors.Is(err, models.ErrMessageTooLong),
		errors.Is(err, session.ErrSessionNotActive),
		errors.Is(err, session.ErrWorkflowNotReady),
		errors.Is(err, session.ErrMissingFacts),
		errors.Is(err, prompt.ErrUnsupportedFormat):
		return http.StatusBadRequest, err.Error()
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

// writeError logs err and writes the mapped error response.
func writeError(w http.ResponseWriter, op string, err error) {
	code, msg := errorStatus(err)
	if code >= http.StatusInternalServerError {
		slog.Error("Server."+op+": request failed", "error", err)
	} else {
		slog.Warn("Server."+op+": request rejected", "error", err, "status", code)
	}
	writeJSONResponse(w, code, models.Error(msg))
}
