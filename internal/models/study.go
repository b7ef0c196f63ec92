// Package models defines the study record and the field model that drives study setup.
package models

import (
	"errors"
	"strings"
	"time"
)

// FieldName identifies one of the required study fields. The values are the wire strings.
type FieldName string

const (
	FieldDescription        FieldName = "description"
	FieldStudyType          FieldName = "study_type"
	FieldObjective          FieldName = "objective"
	FieldTargetAudience     FieldName = "target_audience"
	FieldInterviewQuestions FieldName = "interview_questions"
)

// FieldOrder is the canonical completion order of the required fields.
var FieldOrder = []FieldName{
	FieldDescription,
	FieldStudyType,
	FieldObjective,
	FieldTargetAudience,
	FieldInterviewQuestions,
}

// StudyType enumerates the supported study types.
type StudyType string

const (
	StudyTypeExploratory StudyType = "Exploratory"
	StudyTypeComparative StudyType = "Comparative"
	StudyTypeAttitudinal StudyType = "Attitudinal"
	StudyTypeBehavioral  StudyType = "Behavioral"
)

// StudyTypes lists the study types in display order.
var StudyTypes = []StudyType{
	StudyTypeExploratory,
	StudyTypeComparative,
	StudyTypeAttitudinal,
	StudyTypeBehavioral,
}

// StudyStatus is the lifecycle status persisted alongside a study.
type StudyStatus string

const (
	// StudyStatusDraft is assigned on creation.
	StudyStatusDraft StudyStatus = "draft"
	// StudyStatusActive is assigned once setup completes.
	StudyStatusActive StudyStatus = "active"
)

var (
	ErrUnknownField     = errors.New("unknown study field")
	ErrInvalidStudyType = errors.New("invalid study type")
	ErrEmptyStudyID     = errors.New("study id cannot be empty")
)

// Study is the research study record being set up.
type Study struct {
	ID                 string      `json:"id"`
	Title              string      `json:"title,omitempty"`
	Description        string      `json:"description"`
	StudyType          string      `json:"study_type"`
	Objective          string      `json:"objective"`
	TargetAudience     string      `json:"target_audience"`
	InterviewQuestions string      `json:"interview_questions"`
	Status             StudyStatus `json:"status,omitempty"`
	CreatedAt          time.Time   `json:"created_at,omitempty"`
	UpdatedAt          time.Time   `json:"updated_at,omitempty"`
}

// IsValidField reports whether f is one of the five required fields.
func IsValidField(f FieldName) bool {
	switch f {
	case FieldDescription, FieldStudyType, FieldObjective, FieldTargetAudience, FieldInterviewQuestions:
		return true
	default:
		return false
	}
}

// ParseStudyType matches s case-insensitively against the known study types.
func ParseStudyType(s string) (StudyType, error) {
	s = strings.TrimSpace(s)
	for _, st := range StudyTypes {
		if strings.EqualFold(s, string(st)) {
			return st, nil
		}
	}
	return "", ErrInvalidStudyType
}

// NormalizeFieldValue validates a value about to be written to field.
// Study types are canonicalized to their enum spelling.
func NormalizeFieldValue(field FieldName, value string) (string, error) {
	if !IsValidField(field) {
		return "", ErrUnknownField
	}
	if field == FieldStudyType {
		st, err := ParseStudyType(value)
		if err != nil {
			return "", err
		}
		return string(st), nil
	}
	return value, nil
}

// Field returns the current value of f.
func (s Study) Field(f FieldName) string {
	switch f {
	case FieldDescription:
		return s.Description
	case FieldStudyType:
		return s.StudyType
	case FieldObjective:
		return s.Objective
	case FieldTargetAudience:
		return s.TargetAudience
	case FieldInterviewQuestions:
		return s.InterviewQuestions
	default:
		return ""
	}
}

// SetField assigns value to f. Unknown fields are rejected.
func (s *Study) SetField(f FieldName, value string) error {
	switch f {
	case FieldDescription:
		s.Description = value
	case FieldStudyType:
		s.StudyType = value
	case FieldObjective:
		s.Objective = value
	case FieldTargetAudience:
		s.TargetAudience = value
	case FieldInterviewQuestions:
		s.InterviewQuestions = value
	default:
		return ErrUnknownField
	}
	return nil
}

// IsFilled reports whether value counts as an answer: non-whitespace content.
func IsFilled(field FieldName, value string) bool {
	return strings.TrimSpace(value) != ""
}

// MissingFields returns the unfilled fields of s in canonical order.
func MissingFields(s Study) []FieldName {
	missing := make([]FieldName, 0, len(FieldOrder))
	for _, f := range FieldOrder {
		if !IsFilled(f, s.Field(f)) {
			missing = append(missing, f)
		}
	}
	return missing
}

// NextField returns the first missing field in canonical order.
// ok is false when every field is filled.
func NextField(s Study) (field FieldName, ok bool) {
	for _, f := range FieldOrder {
		if !IsFilled(f, s.Field(f)) {
			return f, true
		}
	}
	return "", false
}

// SetupState is derived from a study snapshot and never stored.
// It is either AllFilled or MissingField(name).
type SetupState struct {
	next FieldName
}

// DeriveSetupState computes the setup state of s.
func DeriveSetupState(s Study) SetupState {
	next, _ := NextField(s)
	return SetupState{next: next}
}

// AllFilled reports whether every required field has a value.
func (st SetupState) AllFilled() bool {
	return st.next == ""
}

// MissingField returns the next field to complete.
func (st SetupState) MissingField() (FieldName, bool) {
	return st.next, st.next != ""
}

// String renders the state for logs.
func (st SetupState) String() string {
	if st.AllFilled() {
		return "all_filled"
	}
	return "missing:" + string(st.next)
}
