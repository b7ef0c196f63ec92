package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/BTreeMap/StudyPipe/internal/flow"
	"github.com/BTreeMap/StudyPipe/internal/genai"
	"github.com/BTreeMap/StudyPipe/internal/models"
	"github.com/BTreeMap/StudyPipe/internal/session"
	"github.com/BTreeMap/StudyPipe/internal/store"
	"github.com/BTreeMap/StudyPipe/internal/testutil"
)

type testServer struct {
	srv      *Server
	st       *store.InMemoryStore
	llm      *testutil.FakeCompleter
	setup    *flow.StudySetupFlow
	sessions *session.MemoryStore
	locker   *session.MemoryLocker
}

func newTestServer(t *testing.T, llm *testutil.FakeCompleter, opts ...Option) *testServer {
	t.Helper()
	if llm == nil {
		llm = testutil.NewFailingCompleter(errors.New("llm must not be called"))
	}
	st := store.NewInMemoryStore()
	setup := flow.NewStudySetupFlow(st, llm)
	sessions := session.NewMemoryStore(0)
	locker := session.NewMemoryLocker()
	t.Cleanup(setup.Wait)
	return &testServer{
		srv:      NewServer(st, setup, sessions, locker, opts...),
		st:       st,
		llm:      llm,
		setup:    setup,
		sessions: sessions,
		locker:   locker,
	}
}

func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(rr, req)
	return rr
}

func chatRequest(t *testing.T, study models.Study, payload *models.TurnPayload, messages ...models.ChatMessage) *http.Request {
	if messages == nil {
		messages = []models.ChatMessage{}
	}
	return testutil.CreateHTTPRequest(t, http.MethodPost, "/api/study-setup/chat", models.TurnRequest{
		Messages: messages,
		Study:    &study,
		Payload:  payload,
	})
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body models.ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	return body.Error
}

func TestStudySetupChat_ScriptedNext(t *testing.T) {
	ts := newTestServer(t, nil)
	study := testutil.SeedStudy(t, ts.st, testutil.StudyMissing("", models.FieldStudyType))

	rr := ts.do(chatRequest(t, study, &models.TurnPayload{Action: models.TurnActionNext}))
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "next turn")
	actions := testutil.DecodeTurnResponse(t, rr)

	count := 0
	for _, a := range actions {
		if a.Type == models.ActionStudyTypeOptions {
			count++
			if len(a.Options) != 4 {
				t.Errorf("expected 4 options, got %d", len(a.Options))
			}
		}
	}
	if count != 1 {
		t.Errorf("expected one study_type_options action, got %d", count)
	}
	if rr.Header().Get("Content-Type") != "application/json" {
		t.Errorf("expected JSON content type")
	}
}

func TestStudySetupChat_FreeTextPersists(t *testing.T) {
	ts := newTestServer(t, nil)
	study := testutil.SeedStudy(t, ts.st, testutil.StudyMissing("", models.FieldObjective))

	rr := ts.do(chatRequest(t, study,
		&models.TurnPayload{ActiveSection: models.FieldObjective},
		models.ChatMessage{Role: models.RoleUser, Content: "Reduce churn"},
	))
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "free text turn")

	got, err := ts.st.GetStudy(context.Background(), study.ID)
	if err != nil {
		t.Fatalf("GetStudy: %v", err)
	}
	if got.Objective != "Reduce churn" {
		t.Errorf("expected objective persisted, got %q", got.Objective)
	}
}

func TestStudySetupChat_CompleteMarksActive(t *testing.T) {
	ts := newTestServer(t, nil)
	study := testutil.SeedStudy(t, ts.st, testutil.FilledStudy(""))

	rr := ts.do(chatRequest(t, study, &models.TurnPayload{Action: models.TurnActionCompleteSetup}))
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "complete_setup")
	actions := testutil.DecodeTurnResponse(t, rr)
	if actions[len(actions)-1].Type != models.ActionComplete {
		t.Fatalf("expected complete last, got %v", testutil.ActionTypes(actions))
	}

	ts.setup.Wait()
	got, _ := ts.st.GetStudy(context.Background(), study.ID)
	if got.Status != models.StudyStatusActive {
		t.Errorf("expected active status, got %q", got.Status)
	}
}

func TestStudySetupChat_InputErrors(t *testing.T) {
	ts := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/study-setup/chat", strings.NewReader("{not json"))
	rr := ts.do(req)
	testutil.AssertHTTPStatus(t, http.StatusBadRequest, rr.Code, "invalid JSON")
	if msg := decodeError(t, rr); msg != msgInvalidJSON {
		t.Errorf("unexpected error %q", msg)
	}

	rr = ts.do(testutil.CreateHTTPRequest(t, http.MethodPost, "/api/study-setup/chat", map[string]any{
		"messages": []models.ChatMessage{},
	}))
	testutil.AssertHTTPStatus(t, http.StatusBadRequest, rr.Code, "missing study")
	if msg := decodeError(t, rr); !strings.Contains(msg, models.ErrMissingStudy.Error()) {
		t.Errorf("unexpected error %q", msg)
	}

	rr = ts.do(testutil.CreateHTTPRequest(t, http.MethodPost, "/api/study-setup/chat", map[string]any{
		"study": testutil.FilledStudy(""),
	}))
	testutil.AssertHTTPStatus(t, http.StatusBadRequest, rr.Code, "missing messages")

	rr = ts.do(chatRequest(t, testutil.FilledStudy(""), &models.TurnPayload{SelectedStudyType: "Qualitative"}))
	testutil.AssertHTTPStatus(t, http.StatusBadRequest, rr.Code, "invalid study type")

	if ts.llm.Calls() != 0 {
		t.Errorf("input errors must not reach the LLM")
	}
}

func TestStudySetupChat_UpstreamErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantMsg    string
	}{
		{"timeout", fmt.Errorf("completion failed after 3 attempt(s): %w", genai.ErrTimeout), http.StatusGatewayTimeout, msgTimeout},
		{"rate limit", fmt.Errorf("%w: status 429", genai.ErrRateLimit), http.StatusTooManyRequests, msgRateLimited},
		{"auth", fmt.Errorf("%w: status 401", genai.ErrAuth), http.StatusInternalServerError, msgContactSupport},
		{"not configured", genai.ErrNotConfigured, http.StatusInternalServerError, msgContactSupport},
		{"other", errors.New("connection reset by peer"), http.StatusInternalServerError, msgTurnFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, testutil.NewFailingCompleter(tt.err))
			rr := ts.do(chatRequest(t, testutil.FilledStudy(""), nil, models.ChatMessage{Role: models.RoleUser, Content: "hello"}))
			testutil.AssertHTTPStatus(t, tt.wantStatus, rr.Code, tt.name)
			if msg := decodeError(t, rr); msg != tt.wantMsg {
				t.Errorf("expected %q, got %q", tt.wantMsg, msg)
			}
		})
	}
}

func TestStudySetupChat_MalformedLLMReplyIsOK(t *testing.T) {
	ts := newTestServer(t, testutil.NewFakeCompleter("definitely not json"))
	rr := ts.do(chatRequest(t, testutil.FilledStudy(""), nil, models.ChatMessage{Role: models.RoleUser, Content: "hello"}))
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "malformed reply")
	actions := testutil.DecodeTurnResponse(t, rr)
	if len(actions) != 1 || actions[0].Content != flow.MsgProcessingError {
		t.Errorf("expected fallback message, got %+v", actions)
	}
}

func TestStudySetupChat_UnknownStudy(t *testing.T) {
	ts := newTestServer(t, nil)
	rr := ts.do(chatRequest(t, testutil.StudyMissing("nope", models.FieldStudyType), &models.TurnPayload{SelectedStudyType: "Behavioral"}))
	testutil.AssertHTTPStatus(t, http.StatusNotFound, rr.Code, "unknown study")
}

func TestStudySetupChat_LockTimeout(t *testing.T) {
	ts := newTestServer(t, nil, WithLockTimeout(20*time.Millisecond))
	study := testutil.SeedStudy(t, ts.st, testutil.FilledStudy(""))

	release, err := ts.locker.Acquire(context.Background(), study.ID)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	rr := ts.do(chatRequest(t, study, &models.TurnPayload{Action: models.TurnActionNext}))
	testutil.AssertHTTPStatus(t, http.StatusConflict, rr.Code, "locked study")
	release()

	rr = ts.do(chatRequest(t, study, &models.TurnPayload{Action: models.TurnActionNext}))
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "after release")
}

func TestSetupSessions(t *testing.T) {
	ts := newTestServer(t, nil)
	study := testutil.SeedStudy(t, ts.st, testutil.StudyMissing("", models.FieldObjective, models.FieldTargetAudience))

	rr := ts.do(testutil.CreateHTTPRequest(t, http.MethodPost, "/api/study-setup/sessions", models.CreateSessionRequest{StudyID: study.ID}))
	testutil.AssertHTTPStatus(t, http.StatusCreated, rr.Code, "create session")
	resp := testutil.AssertJSONResponse(t, rr, "ok")
	sessionID, _ := resp["result"].(map[string]interface{})["id"].(string)
	if sessionID == "" {
		t.Fatalf("expected session id in %v", resp)
	}

	req := models.TurnRequest{
		Messages:  []models.ChatMessage{{Role: models.RoleUser, Content: "Reduce churn"}},
		Study:     &study,
		Payload:   &models.TurnPayload{ActiveSection: models.FieldObjective},
		SessionID: sessionID,
	}
	rr = ts.do(testutil.CreateHTTPRequest(t, http.MethodPost, "/api/study-setup/chat", req))
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "chat with session")

	// empty history falls back to the session's
	req.Messages = []models.ChatMessage{}
	req.Payload = &models.TurnPayload{Action: models.TurnActionNext}
	rr = ts.do(testutil.CreateHTTPRequest(t, http.MethodPost, "/api/study-setup/chat", req))
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "chat from session history")

	sess, err := ts.sessions.Get(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("Get session: %v", err)
	}
	roles := make([]models.Role, len(sess.Messages))
	for i, m := range sess.Messages {
		roles[i] = m.Role
	}
	want := []models.Role{models.RoleUser, models.RoleAssistant, models.RoleAssistant}
	if fmt.Sprint(roles) != fmt.Sprint(want) {
		t.Fatalf("expected session roles %v, got %v", want, roles)
	}
	if sess.Messages[0].Content != "Reduce churn" {
		t.Errorf("expected user message recorded, got %q", sess.Messages[0].Content)
	}

	rr = ts.do(testutil.CreateHTTPRequest(t, http.MethodGet, "/api/study-setup/sessions/"+sessionID, nil))
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "get session")
	testutil.AssertJSONResponse(t, rr, "ok")

	rr = ts.do(testutil.CreateHTTPRequest(t, http.MethodDelete, "/api/study-setup/sessions/"+sessionID, nil))
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "delete session")
	if body := testutil.AssertJSONResponse(t, rr, "ok"); body["message"] != "setup session deleted" {
		t.Errorf("expected delete message, got %v", body["message"])
	}
	if _, err := ts.sessions.Get(context.Background(), sessionID); !errors.Is(err, session.ErrSessionNotFound) {
		t.Errorf("expected session gone after delete, got %v", err)
	}
	rr = ts.do(testutil.CreateHTTPRequest(t, http.MethodDelete, "/api/study-setup/sessions/"+sessionID, nil))
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "repeat delete")
}

func createSession(t *testing.T, ts *testServer, studyID string) string {
	t.Helper()
	rr := ts.do(testutil.CreateHTTPRequest(t, http.MethodPost, "/api/study-setup/sessions", models.CreateSessionRequest{StudyID: studyID}))
	testutil.AssertHTTPStatus(t, http.StatusCreated, rr.Code, "create session")
	resp := testutil.AssertJSONResponse(t, rr, "ok")
	id, _ := resp["result"].(map[string]interface{})["id"].(string)
	if id == "" {
		t.Fatalf("expected session id in %v", resp)
	}
	return id
}

func TestSetupSessions_ConcurrentTurnsKeepAllMessages(t *testing.T) {
	ts := newTestServer(t, nil)
	study := testutil.SeedStudy(t, ts.st, testutil.StudyMissing("", models.FieldObjective, models.FieldTargetAudience))
	sessionID := createSession(t, ts, study.ID)

	answers := []struct {
		section models.FieldName
		text    string
	}{
		{models.FieldObjective, "Reduce churn"},
		{models.FieldTargetAudience, "ICU nurses"},
	}

	release, err := ts.locker.Acquire(context.Background(), study.ID)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	reqs := make([]*http.Request, len(answers))
	for i, a := range answers {
		reqs[i] = testutil.CreateHTTPRequest(t, http.MethodPost, "/api/study-setup/chat", models.TurnRequest{
			Messages:  []models.ChatMessage{{Role: models.RoleUser, Content: a.text}},
			Study:     &study,
			Payload:   &models.TurnPayload{ActiveSection: a.section},
			SessionID: sessionID,
		})
	}
	codes := make([]int, len(reqs))
	var wg sync.WaitGroup
	for i, req := range reqs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			codes[i] = ts.do(req).Code
		}()
	}
	// let both turns queue behind the held lock
	time.Sleep(50 * time.Millisecond)
	release()
	wg.Wait()

	for i, code := range codes {
		testutil.AssertHTTPStatus(t, http.StatusOK, code, fmt.Sprintf("turn %d", i))
	}
	sess, err := ts.sessions.Get(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("Get session: %v", err)
	}
	if len(sess.Messages) != 4 {
		t.Fatalf("expected 4 session messages, got %d: %+v", len(sess.Messages), sess.Messages)
	}
	var users []string
	for _, m := range sess.Messages {
		if m.Role == models.RoleUser {
			users = append(users, m.Content)
		}
	}
	if len(users) != 2 {
		t.Errorf("expected both user answers recorded, got %v", users)
	}
}

func TestSetupSessions_StudyMismatch(t *testing.T) {
	ts := newTestServer(t, nil)
	owner := testutil.SeedStudy(t, ts.st, testutil.StudyMissing("", models.FieldObjective))
	other := testutil.SeedStudy(t, ts.st, testutil.StudyMissing("", models.FieldObjective))
	sessionID := createSession(t, ts, owner.ID)

	rr := ts.do(testutil.CreateHTTPRequest(t, http.MethodPost, "/api/study-setup/chat", models.TurnRequest{
		Messages:  []models.ChatMessage{{Role: models.RoleUser, Content: "Reduce churn"}},
		Study:     &other,
		Payload:   &models.TurnPayload{ActiveSection: models.FieldObjective},
		SessionID: sessionID,
	}))
	testutil.AssertHTTPStatus(t, http.StatusBadRequest, rr.Code, "session of another study")
	if msg := decodeError(t, rr); msg != msgSessionStudyMismatch {
		t.Errorf("expected mismatch message, got %q", msg)
	}

	got, err := ts.st.GetStudy(context.Background(), other.ID)
	if err != nil {
		t.Fatalf("GetStudy: %v", err)
	}
	if got.Objective != "" {
		t.Errorf("mismatched turn must not write, got objective %q", got.Objective)
	}
	sess, err := ts.sessions.Get(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("Get session: %v", err)
	}
	if len(sess.Messages) != 0 {
		t.Errorf("mismatched turn must not touch the session, got %+v", sess.Messages)
	}
}

func TestSetupSessions_NotFound(t *testing.T) {
	ts := newTestServer(t, nil)

	rr := ts.do(testutil.CreateHTTPRequest(t, http.MethodPost, "/api/study-setup/sessions", models.CreateSessionRequest{StudyID: "missing"}))
	testutil.AssertHTTPStatus(t, http.StatusNotFound, rr.Code, "session for unknown study")

	rr = ts.do(testutil.CreateHTTPRequest(t, http.MethodPost, "/api/study-setup/sessions", models.CreateSessionRequest{}))
	testutil.AssertHTTPStatus(t, http.StatusBadRequest, rr.Code, "session without study")

	rr = ts.do(testutil.CreateHTTPRequest(t, http.MethodGet, "/api/study-setup/sessions/missing", nil))
	testutil.AssertHTTPStatus(t, http.StatusNotFound, rr.Code, "unknown session")

	rr = ts.do(testutil.CreateHTTPRequest(t, http.MethodPost, "/api/study-setup/chat", models.TurnRequest{
		Messages:  []models.ChatMessage{},
		Study:     &models.Study{},
		SessionID: "missing",
	}))
	testutil.AssertHTTPStatus(t, http.StatusNotFound, rr.Code, "chat with unknown session")
}

func TestInterviewGuide(t *testing.T) {
	guide := `{"questions":["How do you shop?"],"instructions":"Listen","system_prompt":"You interview","duration_minutes":30,"supplementary_materials":[]}`
	ts := newTestServer(t, testutil.NewFakeCompleter(guide))
	study := testutil.SeedStudy(t, ts.st, testutil.FilledStudy(""))

	rr := ts.do(testutil.CreateHTTPRequest(t, http.MethodPost, "/api/study-setup/interview-guide", models.InterviewGuideRequest{Study: &study}))
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "guide from study")
	if rr.Body.String() != guide {
		t.Errorf("expected guide verbatim, got %s", rr.Body.String())
	}

	rr = ts.do(testutil.CreateHTTPRequest(t, http.MethodPost, "/api/study-setup/interview-guide", models.InterviewGuideRequest{StudyID: study.ID}))
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "guide from study id")
	msgs := ts.llm.LastMessages()
	if !strings.Contains(msgs[len(msgs)-1].Content, study.Objective) {
		t.Errorf("guide prompt should carry the stored study")
	}

	rr = ts.do(testutil.CreateHTTPRequest(t, http.MethodPost, "/api/study-setup/interview-guide", models.InterviewGuideRequest{StudyID: "missing"}))
	testutil.AssertHTTPStatus(t, http.StatusNotFound, rr.Code, "guide for unknown study")

	rr = ts.do(testutil.CreateHTTPRequest(t, http.MethodPost, "/api/study-setup/interview-guide", map[string]any{}))
	testutil.AssertHTTPStatus(t, http.StatusBadRequest, rr.Code, "guide without study")
}

func TestInterviewGuide_Errors(t *testing.T) {
	ts := newTestServer(t, testutil.NewFakeCompleter("Sure! Here's a guide."))
	study := testutil.FilledStudy("s1")
	rr := ts.do(testutil.CreateHTTPRequest(t, http.MethodPost, "/api/study-setup/interview-guide", models.InterviewGuideRequest{Study: &study}))
	testutil.AssertHTTPStatus(t, http.StatusInternalServerError, rr.Code, "malformed guide")
	if msg := decodeError(t, rr); msg != flow.ErrMalformedGuide.Error() {
		t.Errorf("guide errors pass their text through, got %q", msg)
	}

	ts = newTestServer(t, testutil.NewFailingCompleter(genai.ErrRateLimit))
	rr = ts.do(testutil.CreateHTTPRequest(t, http.MethodPost, "/api/study-setup/interview-guide", models.InterviewGuideRequest{Study: &study}))
	testutil.AssertHTTPStatus(t, http.StatusTooManyRequests, rr.Code, "rate limited guide")
}

func TestStudiesEndpoints(t *testing.T) {
	ts := newTestServer(t, nil)

	rr := ts.do(testutil.CreateHTTPRequest(t, http.MethodPost, "/api/studies", models.CreateStudyRequest{Title: "Checkout", StudyType: "comparative"}))
	testutil.AssertHTTPStatus(t, http.StatusCreated, rr.Code, "create study")
	resp := testutil.AssertJSONResponse(t, rr, "ok")
	result := resp["result"].(map[string]interface{})
	id, _ := result["id"].(string)
	if id == "" || result["study_type"] != "Comparative" || result["status"] != "draft" {
		t.Fatalf("unexpected created study %v", result)
	}

	rr = ts.do(testutil.CreateHTTPRequest(t, http.MethodPost, "/api/studies", models.CreateStudyRequest{StudyType: "Qualitative"}))
	testutil.AssertHTTPStatus(t, http.StatusBadRequest, rr.Code, "invalid study type")
	testutil.AssertJSONResponse(t, rr, "error")

	rr = ts.do(testutil.CreateHTTPRequest(t, http.MethodGet, "/api/studies", nil))
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "list studies")
	resp = testutil.AssertJSONResponse(t, rr, "ok")
	if list, _ := resp["result"].([]interface{}); len(list) != 1 {
		t.Errorf("expected one study, got %v", resp["result"])
	}

	rr = ts.do(testutil.CreateHTTPRequest(t, http.MethodGet, "/api/studies/"+id, nil))
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "get study")

	rr = ts.do(testutil.CreateHTTPRequest(t, http.MethodGet, "/api/studies/missing", nil))
	testutil.AssertHTTPStatus(t, http.StatusNotFound, rr.Code, "get missing study")
	testutil.AssertJSONResponse(t, rr, "error")
}

func TestStudiesEndpoints_EmptyList(t *testing.T) {
	ts := newTestServer(t, nil)
	rr := ts.do(testutil.CreateHTTPRequest(t, http.MethodGet, "/api/studies", nil))
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "empty list")
	resp := testutil.AssertJSONResponse(t, rr, "ok")
	if _, ok := resp["result"].([]interface{}); !ok {
		t.Errorf("expected an empty array, got %v", resp["result"])
	}
}

func TestMethodNotAllowed(t *testing.T) {
	ts := newTestServer(t, nil)
	rr := ts.do(testutil.CreateHTTPRequest(t, http.MethodGet, "/api/study-setup/chat", nil))
	testutil.AssertHTTPStatus(t, http.StatusMethodNotAllowed, rr.Code, "GET chat")
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: %w", flow.ErrInvalidTurn, models.ErrMissingStudy), http.StatusBadRequest},
		{models.ErrInvalidStudyType, http.StatusBadRequest},
		{fmt.Errorf("failed to save objective: %w", store.ErrStudyNotFound), http.StatusNotFound},
		{session.ErrSessionNotFound, http.StatusNotFound},
		{fmt.Errorf("%w: s1", session.ErrLockTimeout), http.StatusConflict},
		{genai.ErrTimeout, http.StatusGatewayTimeout},
		{genai.ErrRateLimit, http.StatusTooManyRequests},
		{genai.ErrAuth, http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got, _ := errorStatus(tt.err, "fallback"); got != tt.want {
			t.Errorf("errorStatus(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
	if _, msg := errorStatus(errors.New("boom"), "fallback"); msg != "fallback" {
		t.Errorf("expected fallback copy, got %q", msg)
	}
}
