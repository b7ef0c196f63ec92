// Package testutil provides common test utilities and helpers for StudyPipe tests.
package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/BTreeMap/StudyPipe/internal/genai"
	"github.com/BTreeMap/StudyPipe/internal/models"
	"github.com/BTreeMap/StudyPipe/internal/store"
)

// TB is the subset of testing.TB used by the assertion helpers.
type TB interface {
	Helper()
	Errorf(format string, args ...interface{})
	Fatalf(format string, args ...interface{})
}

// FakeReply is one scripted completion result.
type FakeReply struct {
	Text string
	Err  error
}

// FakeCompleter is a genai.Completer that plays back scripted replies in order.
// Once the script is exhausted it repeats the last reply.
type FakeCompleter struct {
	mu       sync.Mutex
	script   []FakeReply
	calls    int
	messages [][]genai.Message
	options  []genai.CompletionOptions
}

// NewFakeCompleter creates a FakeCompleter that answers with texts in order.
func NewFakeCompleter(texts ...string) *FakeCompleter {
	f := &FakeCompleter{}
	for _, text := range texts {
		f.script = append(f.script, FakeReply{Text: text})
	}
	return f
}

// NewFailingCompleter creates a FakeCompleter that always returns err.
func NewFailingCompleter(err error) *FakeCompleter {
	return &FakeCompleter{script: []FakeReply{{Err: err}}}
}

// Then appends a reply to the script.
func (f *FakeCompleter) Then(reply FakeReply) *FakeCompleter {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.script = append(f.script, reply)
	return f
}

func (f *FakeCompleter) Complete(ctx context.Context, messages []genai.Message, opts genai.CompletionOptions) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.messages = append(f.messages, append([]genai.Message(nil), messages...))
	f.options = append(f.options, opts)
	if len(f.script) == 0 {
		return "", errors.New("fake completer: no scripted reply")
	}
	i := f.calls - 1
	if i >= len(f.script) {
		i = len(f.script) - 1
	}
	return f.script[i].Text, f.script[i].Err
}

// Calls returns how many times Complete was called.
func (f *FakeCompleter) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// LastMessages returns the messages of the most recent call.
func (f *FakeCompleter) LastMessages() []genai.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.messages) == 0 {
		return nil
	}
	return f.messages[len(f.messages)-1]
}

// LastOptions returns the options of the most recent call.
func (f *FakeCompleter) LastOptions() genai.CompletionOptions {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.options) == 0 {
		return genai.CompletionOptions{}
	}
	return f.options[len(f.options)-1]
}

// FieldWrite records one UpdateStudyField call.
type FieldWrite struct {
	StudyID string
	Field   models.FieldName
	Value   string
}

// RecordingWriter is a study writer that records every call.
type RecordingWriter struct {
	mu        sync.Mutex
	Fields    []FieldWrite
	Statuses  map[string]models.StudyStatus
	FieldErr  error
	StatusErr error
}

// NewRecordingWriter creates an empty RecordingWriter.
func NewRecordingWriter() *RecordingWriter {
	return &RecordingWriter{Statuses: make(map[string]models.StudyStatus)}
}

func (w *RecordingWriter) UpdateStudyField(ctx context.Context, id string, field models.FieldName, value string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.FieldErr != nil {
		return w.FieldErr
	}
	w.Fields = append(w.Fields, FieldWrite{StudyID: id, Field: field, Value: value})
	return nil
}

func (w *RecordingWriter) SetStudyStatus(ctx context.Context, id string, status models.StudyStatus) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.StatusErr != nil {
		return w.StatusErr
	}
	w.Statuses[id] = status
	return nil
}

// FieldWrites returns a copy of the recorded field writes.
func (w *RecordingWriter) FieldWrites() []FieldWrite {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]FieldWrite(nil), w.Fields...)
}

// Status returns the last status written for id.
func (w *RecordingWriter) Status(id string) models.StudyStatus {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.Statuses[id]
}

// FilledStudy returns a study with every required field set.
func FilledStudy(id string) models.Study {
	return models.Study{
		ID:                 id,
		Title:              "Checkout study",
		Description:        "Online checkout flow",
		StudyType:          string(models.StudyTypeExploratory),
		Objective:          "Understand why carts are abandoned",
		TargetAudience:     "First-time shoppers",
		InterviewQuestions: "1. How did checkout go?",
		Status:             models.StudyStatusDraft,
	}
}

// StudyMissing returns FilledStudy(id) with the given fields cleared.
func StudyMissing(id string, fields ...models.FieldName) models.Study {
	s := FilledStudy(id)
	for _, f := range fields {
		s.SetField(f, "")
	}
	return s
}

// SeedStudy creates study in st and returns the stored copy.
func SeedStudy(t TB, st store.StudyStore, study models.Study) models.Study {
	t.Helper()
	created, err := st.CreateStudy(context.Background(), study)
	if err != nil {
		t.Fatalf("failed to seed study: %v", err)
	}
	return created
}

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t TB, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}

// AssertJSONResponse decodes the APIResponse envelope and validates its status field.
func AssertJSONResponse(t TB, rr *httptest.ResponseRecorder, expectedStatus string) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
	}

	if status, ok := response["status"].(string); ok {
		if status != expectedStatus {
			t.Errorf("expected status '%s', got '%s'", expectedStatus, status)
		}
	} else {
		t.Errorf("response missing or invalid 'status' field")
	}

	return response
}

// DecodeTurnResponse decodes a {content: [...]} turn body.
func DecodeTurnResponse(t TB, rr *httptest.ResponseRecorder) []models.Action {
	t.Helper()
	var resp models.TurnResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode turn response: %v (body %q)", err, rr.Body.String())
	}
	return resp.Content
}

// CreateHTTPRequest creates an HTTP request with optional JSON body for testing.
func CreateHTTPRequest(t TB, method, url string, body interface{}) *http.Request {
	t.Helper()
	reqBody := bytes.NewBuffer(nil)
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		t.Fatalf("failed to create HTTP request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return req
}

// ActionTypes lists the type of each action, for compact assertions.
func ActionTypes(actions []models.Action) []models.ActionType {
	types := make([]models.ActionType, len(actions))
	for i, a := range actions {
		types[i] = a.Type
	}
	return types
}

// MustMarshalJSON marshals an object to JSON and fails test on error.
func MustMarshalJSON(t *testing.T, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal JSON: %v", err)
	}
	return data
}

// MustUnmarshalJSON unmarshals JSON data into target and fails test on error.
func MustUnmarshalJSON(t *testing.T, data []byte, target interface{}) {
	t.Helper()
	if err := json.Unmarshal(data, target); err != nil {
		t.Fatalf("failed to unmarshal JSON: %v", err)
	}
}
