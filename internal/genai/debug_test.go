package genai

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/openai/openai-go"
)

// Test the debug logging functionality
func TestDebugLogging(t *testing.T) {
	tempDir := t.TempDir()

	mockResp := openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: "Test response"}},
		},
	}

	client := &Client{
		chat:        &mockChatService{resp: mockResp},
		model:       "test-model",
		temperature: 0.7,
		maxTokens:   100,
		debugMode:   true,
		stateDir:    tempDir,
	}

	_, err := client.Complete(context.Background(), []Message{{Role: RoleSystem, Content: "System prompt"}, {Role: RoleUser, Content: "User prompt"}}, CompletionOptions{})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	debugDir := filepath.Join(tempDir, "debug")
	files, err := os.ReadDir(debugDir)
	if err != nil {
		t.Fatalf("Failed to read debug directory: %v", err)
	}
	if len(files) == 0 {
		t.Fatalf("No debug files were created")
	}

	content, err := os.ReadFile(filepath.Join(debugDir, files[0].Name()))
	if err != nil {
		t.Fatalf("Failed to read debug file: %v", err)
	}

	var logEntry map[string]interface{}
	if err := json.Unmarshal(content, &logEntry); err != nil {
		t.Fatalf("Failed to unmarshal debug log: %v", err)
	}

	requiredFields := []string{"timestamp", "method", "model", "params", "response"}
	for _, field := range requiredFields {
		if _, exists := logEntry[field]; !exists {
			t.Errorf("Required field '%s' missing from debug log", field)
		}
	}
	if logEntry["method"] != "Complete" {
		t.Errorf("Expected method 'Complete', got %v", logEntry["method"])
	}
	if logEntry["model"] != "test-model" {
		t.Errorf("Expected model 'test-model', got %v", logEntry["model"])
	}
}

// Test that debug logging is disabled when debug mode is false
func TestDebugLoggingDisabled(t *testing.T) {
	tempDir := t.TempDir()

	mockResp := openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: "Test response"}},
		},
	}

	client := &Client{
		chat:        &mockChatService{resp: mockResp},
		model:       "test-model",
		temperature: 0.7,
		maxTokens:   100,
		debugMode:   false,
		stateDir:    tempDir,
	}

	if _, err := client.Complete(context.Background(), []Message{{Role: RoleUser, Content: "User prompt"}}, CompletionOptions{}); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	debugDir := filepath.Join(tempDir, "debug")
	if _, err := os.Stat(debugDir); !os.IsNotExist(err) {
		t.Errorf("Debug directory should not be created when debug mode is disabled")
	}
}
