package models

import (
	"errors"
	"time"
)

// Role of a conversation message author.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// TurnAction is the explicit action tag a caller may attach to a turn.
type TurnAction string

const (
	TurnActionNone          TurnAction = ""
	TurnActionNext          TurnAction = "next"
	TurnActionCompleteSetup TurnAction = "complete_setup"
)

var (
	ErrMissingMessages = errors.New("messages are required")
	ErrMissingStudy    = errors.New("study is required")
)

// ChatMessage is one entry of the setup conversation history.
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// TurnPayload carries the caller's out-of-band turn metadata.
type TurnPayload struct {
	Action            TurnAction  `json:"action,omitempty"`
	SelectedStudyType string      `json:"selectedStudyType,omitempty"`
	ActiveSection     FieldName   `json:"activeSection,omitempty"`
	MissingFields     []FieldName `json:"missingFields,omitempty"`
}

// TurnRequest is one orchestrator invocation.
type TurnRequest struct {
	Messages       []ChatMessage `json:"messages"`
	Study          *Study        `json:"study"`
	IsEditing      bool          `json:"isEditing,omitempty"`
	IsInitialSetup bool          `json:"isInitialSetup,omitempty"`
	Payload        *TurnPayload  `json:"payload,omitempty"`
	SessionID      string        `json:"sessionId,omitempty"`
}

// Validate rejects requests without history or study snapshot.
// An empty (but present) history is valid.
func (r *TurnRequest) Validate() error {
	if r.Messages == nil {
		return ErrMissingMessages
	}
	if r.Study == nil {
		return ErrMissingStudy
	}
	return nil
}

// PayloadOrEmpty returns the payload, never nil.
func (r *TurnRequest) PayloadOrEmpty() TurnPayload {
	if r.Payload == nil {
		return TurnPayload{}
	}
	return *r.Payload
}

// LastUserMessage returns the content of the most recent user message.
func (r *TurnRequest) LastUserMessage() (string, bool) {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == RoleUser {
			return r.Messages[i].Content, true
		}
	}
	return "", false
}

// TurnResponse is the success body of a turn.
type TurnResponse struct {
	Content []Action `json:"content"`
}

// ErrorResponse is the failure body of a turn or guide request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// InterviewGuideRequest asks for a one-shot interview guide.
type InterviewGuideRequest struct {
	Study   *Study `json:"study,omitempty"`
	StudyID string `json:"studyId,omitempty"`
}

// SetupSession holds the persisted setup conversation for a study.
type SetupSession struct {
	ID        string        `json:"id"`
	StudyID   string        `json:"study_id"`
	Messages  []ChatMessage `json:"messages"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// CreateSessionRequest is the payload for opening a setup session.
type CreateSessionRequest struct {
	StudyID string `json:"studyId"`
}

// CreateStudyRequest is the payload for creating a study.
type CreateStudyRequest struct {
	Title              string `json:"title,omitempty"`
	Description        string `json:"description,omitempty"`
	StudyType          string `json:"study_type,omitempty"`
	Objective          string `json:"objective,omitempty"`
	TargetAudience     string `json:"target_audience,omitempty"`
	InterviewQuestions string `json:"interview_questions,omitempty"`
}

// Validate checks the optional study type.
func (r *CreateStudyRequest) Validate() error {
	if r.StudyType != "" {
		if _, err := ParseStudyType(r.StudyType); err != nil {
			return err
		}
	}
	return nil
}
