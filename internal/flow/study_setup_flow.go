// Package flow implements the study setup conversation: the turn orchestrator,
// its scripted copy, the LLM response normalizer and interview guide generation.
package flow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"github.com/BTreeMap/StudyPipe/internal/extract"
	"github.com/BTreeMap/StudyPipe/internal/genai"
	"github.com/BTreeMap/StudyPipe/internal/models"
)

var (
	// ErrInvalidTurn wraps every input error of ProcessTurn.
	ErrInvalidTurn = errors.New("invalid turn request")
	// ErrMalformedGuide is returned when the interview guide reply is not a JSON object.
	ErrMalformedGuide = errors.New("interview guide response was not a JSON object")

	errEmptyCompletion  = errors.New("empty completion")
	errNotJSONContainer = errors.New("completion is not a JSON array or object")
)

// Completion settings of the two LLM-backed operations.
const (
	setupTemperature          = 0.7
	setupMaxTokens            = 1000
	guideTemperature          = 0.7
	guideMaxTokens            = 2000
	defaultStatusWriteTimeout = 30 * time.Second
)

// StudyWriter is the part of the study store the flow writes through.
type StudyWriter interface {
	UpdateStudyField(ctx context.Context, id string, field models.FieldName, value string) error
	SetStudyStatus(ctx context.Context, id string, status models.StudyStatus) error
}

// Opts holds configuration for StudySetupFlow.
type Opts struct {
	SystemPromptFile   string
	Observer           Observer
	StatusWriteTimeout time.Duration
}

// Option configures StudySetupFlow.
type Option func(*Opts)

// WithSystemPromptFile replaces the built-in conversational system prompt with the file's content.
func WithSystemPromptFile(path string) Option {
	return func(o *Opts) { o.SystemPromptFile = path }
}

// WithObserver sets the turn observer. The default is a LogObserver.
func WithObserver(obs Observer) Option {
	return func(o *Opts) { o.Observer = obs }
}

// WithStatusWriteTimeout bounds the background "active" status write.
func WithStatusWriteTimeout(d time.Duration) Option {
	return func(o *Opts) { o.StatusWriteTimeout = d }
}

// StudySetupFlow decides each setup turn: a scripted reply for the deterministic
// steps, or the LLM for open-ended conversation.
type StudySetupFlow struct {
	studies            StudyWriter
	llm                genai.Completer
	systemPromptFile   string
	systemPrompt       string
	observer           Observer
	statusWriteTimeout time.Duration
	wg                 sync.WaitGroup
}

// NewStudySetupFlow creates the flow. llm should already carry the retry policy.
func NewStudySetupFlow(studies StudyWriter, llm genai.Completer, opts ...Option) *StudySetupFlow {
	cfg := Opts{StatusWriteTimeout: defaultStatusWriteTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Observer == nil {
		cfg.Observer = NewLogObserver()
	}
	if cfg.StatusWriteTimeout <= 0 {
		cfg.StatusWriteTimeout = defaultStatusWriteTimeout
	}
	f := &StudySetupFlow{
		studies:            studies,
		llm:                llm,
		systemPromptFile:   cfg.SystemPromptFile,
		systemPrompt:       defaultSetupSystemPrompt,
		observer:           cfg.Observer,
		statusWriteTimeout: cfg.StatusWriteTimeout,
	}
	if f.systemPromptFile != "" {
		if err := f.LoadSystemPrompt(); err != nil {
			slog.Warn("StudySetupFlow.NewStudySetupFlow: using built-in system prompt", "error", err)
		}
	}
	slog.Debug("StudySetupFlow.NewStudySetupFlow: flow created", "hasStore", studies != nil, "hasLLM", llm != nil)
	return f
}

// LoadSystemPrompt loads the conversational system prompt from the configured file.
func (f *StudySetupFlow) LoadSystemPrompt() error {
	if f.systemPromptFile == "" {
		return fmt.Errorf("system prompt file not configured")
	}
	content, err := os.ReadFile(f.systemPromptFile)
	if err != nil {
		slog.Error("StudySetupFlow.LoadSystemPrompt: failed to read system prompt file", "file", f.systemPromptFile, "error", err)
		return fmt.Errorf("failed to read system prompt file: %w", err)
	}
	prompt := strings.TrimSpace(string(content))
	if prompt == "" {
		return fmt.Errorf("system prompt file is empty: %s", f.systemPromptFile)
	}
	f.systemPrompt = prompt
	slog.Info("StudySetupFlow.LoadSystemPrompt: system prompt loaded successfully", "file", f.systemPromptFile, "length", len(prompt))
	return nil
}

// SystemPrompt returns the conversational system prompt in use.
func (f *StudySetupFlow) SystemPrompt() string {
	return f.systemPrompt
}

// Wait blocks until every background status write has finished.
func (f *StudySetupFlow) Wait() {
	f.wg.Wait()
}

// turnResult is what one branch of the orchestrator decided.
type turnResult struct {
	actions []models.Action
	path    TurnPath
	branch  string
}

func scripted(branch string, actions ...models.Action) turnResult {
	return turnResult{actions: actions, path: PathScripted, branch: branch}
}

// ProcessTurn runs one setup turn and returns the ordered actions for the caller.
// Every field_update in the result has already been written to the store when the
// study has an ID; a complete action schedules the "active" status write.
func (f *StudySetupFlow) ProcessTurn(ctx context.Context, req models.TurnRequest) ([]models.Action, error) {
	start := time.Now()
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTurn, err)
	}
	study := *req.Study

	res, err := f.route(ctx, req, study)
	if err == nil {
		res.actions, err = f.applyFieldUpdates(ctx, study.ID, res.actions)
	}
	if err != nil {
		f.observer.OnTurn(TurnEvent{StudyID: study.ID, Path: res.path, Branch: res.branch, Elapsed: time.Since(start), Err: err})
		return nil, err
	}

	actions := ensureNonEmpty(res.actions)
	f.scheduleCompletion(study.ID, actions)
	f.observer.OnTurn(TurnEvent{StudyID: study.ID, Path: res.path, Branch: res.branch, Actions: len(actions), Elapsed: time.Since(start)})
	return actions, nil
}

// route picks the first branch whose condition holds. Scripted branches are checked
// before the LLM. An answer for an active section is stored as written; approval of
// proposed questions only applies when no section is active.
func (f *StudySetupFlow) route(ctx context.Context, req models.TurnRequest, study models.Study) (turnResult, error) {
	payload := req.PayloadOrEmpty()
	state := models.DeriveSetupState(study)
	slog.Debug("StudySetupFlow.route: deciding turn", "studyID", study.ID, "state", state.String(), "action", payload.Action, "initialSetup", req.IsInitialSetup)

	if req.IsInitialSetup {
		return initialSetupTurn(study, state), nil
	}

	if !knownTurnAction(payload.Action) {
		slog.Warn("StudySetupFlow.route: ignoring unknown action", "studyID", study.ID, "action", payload.Action)
	}

	if payload.Action == models.TurnActionNext {
		return nextTurn(study, state), nil
	}

	if strings.TrimSpace(payload.SelectedStudyType) != "" {
		st, err := models.ParseStudyType(payload.SelectedStudyType)
		if err != nil {
			return turnResult{path: PathScripted, branch: "select_study_type"}, fmt.Errorf("%w: %w: %q", ErrInvalidTurn, err, payload.SelectedStudyType)
		}
		return scripted("select_study_type",
			models.FieldUpdateAction(models.FieldStudyType, string(st)),
			models.MessageAction(studyTypeConfirmation(st)),
			models.FocusAction(models.FieldStudyType),
		), nil
	}

	if payload.Action == models.TurnActionCompleteSetup {
		return scripted("complete_setup",
			models.FieldUpdateAction(models.FieldInterviewQuestions, study.InterviewQuestions),
			models.MessageAction(msgSetupComplete),
			models.CompleteAction(),
		), nil
	}

	rawUser, hasUser := req.LastUserMessage()
	userText := strings.TrimSpace(extract.UnwrapJSONMessage(rawUser))

	if hasUser && userText != "" {
		if res, ok := freeTextTurn(rawUser, userText, payload); ok {
			return res, nil
		}
		if questions, ok := pendingQuestions(req.Messages); ok && extract.DetectApproval(userText) {
			return scripted("approve_questions",
				models.FieldUpdateAction(models.FieldInterviewQuestions, questions),
				models.MessageAction(msgQuestionsApproved),
				models.CompleteAction(),
			), nil
		}
	}

	return f.llmTurn(ctx, req, study)
}

func knownTurnAction(a models.TurnAction) bool {
	switch a {
	case models.TurnActionNone, models.TurnActionNext, models.TurnActionCompleteSetup:
		return true
	default:
		return false
	}
}

func initialSetupTurn(study models.Study, state models.SetupState) turnResult {
	field, missing := state.MissingField()
	switch {
	case !missing:
		return scripted("initial_all_filled", models.MessageAction(msgAllComplete))
	case field == models.FieldInterviewQuestions:
		return scripted("initial_questions",
			models.MessageAction(questionsMessage(templatedQuestions(study))),
			models.FocusAction(models.FieldInterviewQuestions),
		)
	default:
		return scripted("initial_field", fieldPromptActions(field)...)
	}
}

func nextTurn(study models.Study, state models.SetupState) turnResult {
	field, missing := state.MissingField()
	switch {
	case !missing:
		return scripted("next_all_filled", models.MessageAction(msgAllComplete))
	case field == models.FieldInterviewQuestions:
		questions := templatedQuestions(study)
		return scripted("next_questions",
			models.MessageAction(questionsMessage(questions)),
			models.FieldUpdateAction(models.FieldInterviewQuestions, questions),
			models.FocusAction(models.FieldInterviewQuestions),
		)
	default:
		return scripted("next_field", fieldPromptActions(field)...)
	}
}

// pendingQuestions returns the numbered questions of the most recent assistant message.
func pendingQuestions(history []models.ChatMessage) (string, bool) {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == models.RoleAssistant {
			return extract.NumberedQuestions(extract.UnwrapJSONMessage(history[i].Content))
		}
	}
	return "", false
}

// freeTextTurn stores the user's text as the answer to the active section.
// The section comes from the payload, or from the JSON envelope around the message.
func freeTextTurn(rawUser, userText string, payload models.TurnPayload) (turnResult, bool) {
	env, isEnvelope := extract.ParseEnvelope(rawUser)
	if isEnvelope && env.IsControl() {
		return turnResult{}, false
	}
	section := payload.ActiveSection
	if section == "" && isEnvelope {
		section = models.FieldName(env.ActiveSection)
	}
	if !models.IsValidField(section) {
		return turnResult{}, false
	}
	value, err := models.NormalizeFieldValue(section, userText)
	if err != nil {
		// free-form study type answers go to the LLM
		return turnResult{}, false
	}
	return scripted("free_text_answer",
		models.MessageAction(acknowledgement(section)),
		models.FieldUpdateAction(section, value),
		models.FocusAction(section),
	), true
}

func (f *StudySetupFlow) llmTurn(ctx context.Context, req models.TurnRequest, study models.Study) (turnResult, error) {
	res := turnResult{path: PathLLM, branch: "conversation"}
	if f.llm == nil {
		return res, fmt.Errorf("%w: no completer", genai.ErrNotConfigured)
	}

	messages := make([]genai.Message, 0, len(req.Messages)+1)
	messages = append(messages, genai.Message{Role: genai.RoleSystem, Content: f.systemPrompt + studyContext(study)})
	for _, m := range req.Messages {
		switch m.Role {
		case models.RoleUser:
			messages = append(messages, genai.Message{Role: genai.RoleUser, Content: extract.UnwrapJSONMessage(m.Content)})
		case models.RoleAssistant:
			messages = append(messages, genai.Message{Role: genai.RoleAssistant, Content: m.Content})
		}
	}

	text, err := f.llm.Complete(ctx, messages, genai.CompletionOptions{
		Temperature:  genai.Float(setupTemperature),
		MaxTokens:    setupMaxTokens,
		JSONResponse: true,
	})
	if err != nil {
		return res, err
	}
	res.actions = NormalizeResponse(text)
	return res, nil
}

// applyFieldUpdates validates every field_update and writes it through the store.
// Updates with values the field cannot hold are dropped from the result.
func (f *StudySetupFlow) applyFieldUpdates(ctx context.Context, studyID string, actions []models.Action) ([]models.Action, error) {
	out := make([]models.Action, 0, len(actions))
	for _, a := range actions {
		if a.Type != models.ActionFieldUpdate {
			out = append(out, a)
			continue
		}
		value, err := models.NormalizeFieldValue(a.Field, a.Value)
		if err != nil {
			slog.Warn("StudySetupFlow.applyFieldUpdates: dropping invalid field update", "studyID", studyID, "field", a.Field, "value", a.Value, "error", err)
			continue
		}
		a.Value = value
		if studyID != "" && f.studies != nil {
			if err := f.studies.UpdateStudyField(ctx, studyID, a.Field, value); err != nil {
				slog.Error("StudySetupFlow.applyFieldUpdates: failed to save field", "studyID", studyID, "field", a.Field, "error", err)
				return nil, fmt.Errorf("failed to save %s: %w", a.Field, err)
			}
		}
		out = append(out, a)
	}
	return out, nil
}

// scheduleCompletion marks the study active in the background when the turn completes setup.
func (f *StudySetupFlow) scheduleCompletion(studyID string, actions []models.Action) {
	if studyID == "" || f.studies == nil || !hasComplete(actions) {
		return
	}
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), f.statusWriteTimeout)
		defer cancel()
		if err := f.studies.SetStudyStatus(ctx, studyID, models.StudyStatusActive); err != nil {
			f.observer.OnStatusUpdateFailed(studyID, err)
			return
		}
		slog.Debug("StudySetupFlow.scheduleCompletion: study marked active", "studyID", studyID)
	}()
}

func hasComplete(actions []models.Action) bool {
	for _, a := range actions {
		if a.Type == models.ActionComplete {
			return true
		}
	}
	return false
}

// GenerateInterviewGuide asks the LLM for an interview guide and returns the JSON object verbatim.
func (f *StudySetupFlow) GenerateInterviewGuide(ctx context.Context, study models.Study) (json.RawMessage, error) {
	start := time.Now()
	if f.llm == nil {
		return nil, fmt.Errorf("%w: no completer", genai.ErrNotConfigured)
	}
	userPrompt, err := interviewGuideUserPrompt(study)
	if err != nil {
		return nil, err
	}

	text, err := f.llm.Complete(ctx, []genai.Message{
		{Role: genai.RoleSystem, Content: interviewGuideSystemPrompt},
		{Role: genai.RoleUser, Content: userPrompt},
	}, genai.CompletionOptions{
		Temperature:  genai.Float(guideTemperature),
		MaxTokens:    guideMaxTokens,
		JSONResponse: true,
	})
	if err != nil {
		slog.Error("StudySetupFlow.GenerateInterviewGuide: completion failed", "studyID", study.ID, "elapsed", time.Since(start), "error", err)
		return nil, err
	}

	trimmed := strings.TrimSpace(text)
	if !gjson.Valid(trimmed) || !gjson.Parse(trimmed).IsObject() {
		slog.Error("StudySetupFlow.GenerateInterviewGuide: reply is not a JSON object", "studyID", study.ID, "elapsed", time.Since(start), "length", len(text))
		return nil, ErrMalformedGuide
	}
	slog.Info("StudySetupFlow.GenerateInterviewGuide: guide generated", "studyID", study.ID, "elapsed", time.Since(start))
	return json.RawMessage(trimmed), nil
}
