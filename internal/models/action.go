// Package models defines the action protocol exchanged between the study setup flow and its callers.
package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ActionType tags an Action variant.
type ActionType string

const (
	ActionMessage          ActionType = "message"
	ActionFieldUpdate      ActionType = "field_update"
	ActionFocus            ActionType = "focus"
	ActionStudyTypeOptions ActionType = "study_type_options"
	ActionComplete         ActionType = "complete"
)

// ErrInvalidAction is returned by Action.Validate for malformed or unknown actions.
var ErrInvalidAction = errors.New("invalid action")

// StudyTypeOption is one selectable study type.
type StudyTypeOption struct {
	Value       StudyType `json:"value"`
	Description string    `json:"description"`
	Recommended bool      `json:"recommended,omitempty"`
}

// Action is one unit of a turn's output. Only the fields of the variant named by Type are meaningful:
//
//	message            Content
//	field_update       Field, Value
//	focus              Section
//	study_type_options Options
//	complete           (always value: true on the wire)
type Action struct {
	Type    ActionType
	Content string
	Field   FieldName
	Value   string
	Section FieldName
	Options []StudyTypeOption

	// notDone marks a decoded complete action whose value was not true.
	notDone bool
}

// MessageAction builds a message action.
func MessageAction(content string) Action {
	return Action{Type: ActionMessage, Content: content}
}

// FieldUpdateAction builds a field_update action.
func FieldUpdateAction(field FieldName, value string) Action {
	return Action{Type: ActionFieldUpdate, Field: field, Value: value}
}

// FocusAction builds a focus action.
func FocusAction(section FieldName) Action {
	return Action{Type: ActionFocus, Section: section}
}

// StudyTypeOptionsAction builds a study_type_options action.
func StudyTypeOptionsAction(options []StudyTypeOption) Action {
	return Action{Type: ActionStudyTypeOptions, Options: options}
}

// CompleteAction builds the terminal complete action.
func CompleteAction() Action {
	return Action{Type: ActionComplete}
}

// Validate checks the action against the protocol.
func (a Action) Validate() error {
	switch a.Type {
	case ActionMessage:
		return nil
	case ActionFieldUpdate:
		if !IsValidField(a.Field) {
			return fmt.Errorf("%w: field_update for unknown field %q", ErrInvalidAction, a.Field)
		}
		return nil
	case ActionFocus:
		if !IsValidField(a.Section) {
			return fmt.Errorf("%w: focus on unknown section %q", ErrInvalidAction, a.Section)
		}
		return nil
	case ActionStudyTypeOptions:
		if len(a.Options) == 0 {
			return fmt.Errorf("%w: study_type_options without options", ErrInvalidAction)
		}
		return nil
	case ActionComplete:
		if a.notDone {
			return fmt.Errorf("%w: complete without value true", ErrInvalidAction)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidAction, a.Type)
	}
}

type messageWire struct {
	Type    ActionType `json:"type"`
	Content string     `json:"content"`
}

type fieldUpdateWire struct {
	Type  ActionType `json:"type"`
	Field FieldName  `json:"field"`
	Value string     `json:"value"`
}

type focusWire struct {
	Type    ActionType `json:"type"`
	Section FieldName  `json:"section"`
}

type optionsWire struct {
	Type    ActionType        `json:"type"`
	Options []StudyTypeOption `json:"options"`
}

type completeWire struct {
	Type  ActionType `json:"type"`
	Value bool       `json:"value"`
}

// MarshalJSON emits the wire shape of the action's variant.
func (a Action) MarshalJSON() ([]byte, error) {
	switch a.Type {
	case ActionMessage:
		return json.Marshal(messageWire{Type: a.Type, Content: a.Content})
	case ActionFieldUpdate:
		return json.Marshal(fieldUpdateWire{Type: a.Type, Field: a.Field, Value: a.Value})
	case ActionFocus:
		return json.Marshal(focusWire{Type: a.Type, Section: a.Section})
	case ActionStudyTypeOptions:
		return json.Marshal(optionsWire{Type: a.Type, Options: a.Options})
	case ActionComplete:
		return json.Marshal(completeWire{Type: a.Type, Value: true})
	default:
		return nil, fmt.Errorf("%w: cannot marshal type %q", ErrInvalidAction, a.Type)
	}
}

// UnmarshalJSON reads any variant. Values are kept loosely typed here;
// Validate decides whether the result is acceptable.
func (a *Action) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type    ActionType        `json:"type"`
		Content json.RawMessage   `json:"content"`
		Field   FieldName         `json:"field"`
		Value   json.RawMessage   `json:"value"`
		Section FieldName         `json:"section"`
		Options []StudyTypeOption `json:"options"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*a = Action{
		Type:    raw.Type,
		Field:   raw.Field,
		Section: raw.Section,
		Options: raw.Options,
	}
	a.Content = rawString(raw.Content)
	switch raw.Type {
	case ActionFieldUpdate:
		a.Value = rawString(raw.Value)
	case ActionComplete:
		a.notDone = string(bytes.TrimSpace(raw.Value)) != "true"
	}
	return nil
}

// rawString returns a JSON string's value, or the raw JSON text for any other scalar.
func rawString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// DefaultStudyTypeOptions returns the four fixed choices with Exploratory recommended.
func DefaultStudyTypeOptions() []StudyTypeOption {
	return []StudyTypeOption{
		{Value: StudyTypeExploratory, Description: "Discover new insights and understand problems in depth", Recommended: true},
		{Value: StudyTypeComparative, Description: "Compare products, concepts, or experiences against each other"},
		{Value: StudyTypeAttitudinal, Description: "Understand what people think, feel, and believe"},
		{Value: StudyTypeBehavioral, Description: "Understand what people actually do and how they do it"},
	}
}
