// Package api provides HTTP handlers for AgentBuilder endpoints.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/BTreeMap/AgentBuilder/internal/models"
)

// maxRequestBytes bounds JSON request bodies.
const maxRequestBytes = 1 << 20

// decodeJSON decodes an optional JSON body into v. An empty body leaves v unchanged.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]string{"status": "healthy"}))
}

// createSessionHandler handles POST /sessions
func (s *Server) createSessionHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.createSessionHandler: processing request", "method", r.Method, "path", r.URL.Path)
	var req models.SessionCreateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		slog.Warn("Server.createSessionHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	resp, err := s.sessions.Create(r.Context(), req.InitialMessage)
	if err != nil {
		writeError(w, "createSessionHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, models.SuccessWithMessage("Session created", resp))
}

// sendMessageHandler handles POST /sessions/{id}/messages
func (s *Server) sendMessageHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req models.MessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		slog.Warn("Server.sendMessageHandler: failed to decode JSON", "error", err, "sessionID", id)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, "sendMessageHandler", err)
		return
	}

	resp, err := s.sessions.Process(r.Context(), id, req.Message)
	if err != nil {
		writeError(w, "sendMessageHandler", err)
		return
	}
	slog.Debug("Server.sendMessageHandler: message processed", "sessionID", id, "stage", resp.Stage, "degraded", resp.Degraded)
	writeJSONResponse(w, http.StatusOK, models.Success(resp))
}

// sessionStatusHandler handles GET /sessions/{id}/status
func (s *Server) sessionStatusHandler(w http.ResponseWriter, r *http.Request) {
	resp, err := s.sessions.Status(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, "sessionStatusHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(resp))
}

// resumeSessionHandler handles POST /sessions/{id}/resume
func (s *Server) resumeSessionHandler(w http.ResponseWriter, r *http.Request) {
	resp, err := s.sessions.Resume(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, "resumeSessionHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(resp))
}

// deleteSessionHandler handles DELETE /sessions/{id}
func (s *Server) deleteSessionHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.sessions.Delete(r.Context(), id); err != nil {
		writeError(w, "deleteSessionHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Session "+id+" deleted successfully", nil))
}

// getWorkflowHandler handles GET /sessions/{id}/workflow
func (s *Server) getWorkflowHandler(w http.ResponseWriter, r *http.Request) {
	resp, err := s.sessions.Workflow(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, "getWorkflowHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(resp))
}

// reviewWorkflowHandler handles POST /sessions/{id}/workflow/review
func (s *Server) reviewWorkflowHandler(w http.ResponseWriter, r *http.Request) {
	var req models.WorkflowReviewRequest
	if err := decodeJSON(w, r, &req); err != nil {
		slog.Warn("Server.reviewWorkflowHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	resp, err := s.sessions.Review(r.Context(), r.PathValue("id"), req)
	if err != nil {
		writeError(w, "reviewWorkflowHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(resp))
}

// regenerateWorkflowHandler handles POST /sessions/{id}/workflow/regenerate
func (s *Server) regenerateWorkflowHandler(w http.ResponseWriter, r *http.Request) {
	resp, err := s.sessions.Regenerate(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, "regenerateWorkflowHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(resp))
}

// generatePromptsHandler handles POST /sessions/{id}/prompts
func (s *Server) generatePromptsHandler(w http.ResponseWriter, r *http.Request) {
	var req models.PromptGenerateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		slog.Warn("Server.generatePromptsHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	prompts, err := s.sessions.Prompts(r.Context(), r.PathValue("id"), req.Formats)
	if err != nil {
		writeError(w, "generatePromptsHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(prompts))
}

// exportHandler handles GET /sessions/{id}/export?format=&include_workflow=
// The rendered package is returned as a file attachment.
func (s *Server) exportHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	format := models.ExportFormat(q.Get("format"))
	if format == "" {
		format = models.ExportFormatJSON
	}
	includeWorkflow := true
	if v := q.Get("include_workflow"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("include_workflow must be a boolean"))
			return
		}
		includeWorkflow = b
	}

	exp, err := s.sessions.Export(r.Context(), r.PathValue("id"), format, includeWorkflow)
	if err != nil {
		writeError(w, "exportHandler", err)
		return
	}
	w.Header().Set("Content-Type", exp.ContentType)
	w.Header().Set("Content-Disposition", "attachment; filename="+strconv.Quote(exp.Filename))
	w.WriteHeader(http.StatusOK)
	if _, err := io.WriteString(w, exp.Content); err != nil {
		slog.Error("Server.exportHandler: failed to write export", "error", err)
	}
}
