package genai

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/openai/openai-go"
)

// debugLogEntry is the on-disk record of one completion call.
type debugLogEntry struct {
	Timestamp time.Time                      `json:"timestamp"`
	Method    string                         `json:"method"`
	Model     string                         `json:"model"`
	Params    openai.ChatCompletionNewParams `json:"params"`
	Response  *openai.ChatCompletion         `json:"response"`
	Error     string                         `json:"error,omitempty"`
}

// writeDebugLog records a completion under <stateDir>/debug when debug mode is on.
// Failures are logged and otherwise ignored.
func (c *Client) writeDebugLog(method string, params openai.ChatCompletionNewParams, resp *openai.ChatCompletion, callErr error) {
	if !c.debugMode || c.stateDir == "" {
		return
	}
	debugDir := filepath.Join(c.stateDir, "debug")
	if err := os.MkdirAll(debugDir, 0755); err != nil {
		slog.Warn("Client.writeDebugLog: failed to create debug directory", "dir", debugDir, "error", err)
		return
	}

	now := time.Now()
	entry := debugLogEntry{
		Timestamp: now,
		Method:    method,
		Model:     string(params.Model),
		Params:    params,
		Response:  resp,
	}
	if callErr != nil {
		entry.Error = callErr.Error()
	}
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		slog.Warn("Client.writeDebugLog: failed to marshal debug entry", "error", err)
		return
	}

	name := fmt.Sprintf("%s_%s.json", now.Format("20060102T150405.000000000"), method)
	path := filepath.Join(debugDir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		slog.Warn("Client.writeDebugLog: failed to write debug file", "path", path, "error", err)
		return
	}
	slog.Debug("Client.writeDebugLog: debug log written", "path", path)
}
