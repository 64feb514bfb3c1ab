package genai

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BTreeMap/AgentBuilder/internal/models"
)

type debugEntry struct {
	Timestamp time.Time              `json:"timestamp"`
	Method    string                 `json:"method"`
	Model     string                 `json:"model"`
	Params    models.DialogueRequest `json:"params"`
	Response  string                 `json:"response"`
}

// writeDebugLog stores one request/response pair as a JSON file under stateDir/debug.
// Failures are logged and otherwise ignored.
func writeDebugLog(stateDir, method, model string, req models.DialogueRequest, response string) {
	dir := filepath.Join(stateDir, "debug")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		slog.Warn("genai debug log: failed to create directory", "dir", dir, "error", err)
		return
	}
	now := time.Now().UTC()
	entry := debugEntry{Timestamp: now, Method: method, Model: model, Params: req, Response: response}
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		slog.Warn("genai debug log: failed to encode entry", "error", err)
		return
	}
	name := fmt.Sprintf("%s_%s.json", now.Format("20060102T150405.000000000"), strings.ReplaceAll(method, ".", "_"))
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		slog.Warn("genai debug log: failed to write file", "path", path, "error", err)
		return
	}
	slog.Debug("genai debug log written", "path", path)
}
