package flow

import (
	"bytes"
	"encoding/json"
	"log/slog"

	"github.com/BTreeMap/StudyPipe/internal/models"
)

// MsgProcessingError replaces any reply or action that cannot be used.
const MsgProcessingError = "I encountered an error processing your request. Please try again."

type shapeKind int

const (
	shapeInvalid shapeKind = iota
	shapeArray
	shapeObject
)

// parsedShape is the result of sniffing a completion: exactly one of
// elements (array) or fields (object) is set, or kind is shapeInvalid.
// An {"actions": [...]} wrapper and a bare single action both sniff as arrays.
type parsedShape struct {
	kind     shapeKind
	elements []json.RawMessage
	fields   map[string]json.RawMessage
	err      error
}

func parseShape(text string) parsedShape {
	trimmed := bytes.TrimSpace([]byte(text))
	if len(trimmed) == 0 {
		return parsedShape{kind: shapeInvalid, err: errEmptyCompletion}
	}
	switch trimmed[0] {
	case '[':
		var elements []json.RawMessage
		if err := json.Unmarshal(trimmed, &elements); err != nil {
			return parsedShape{kind: shapeInvalid, err: err}
		}
		return parsedShape{kind: shapeArray, elements: elements}
	case '{':
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &fields); err != nil {
			return parsedShape{kind: shapeInvalid, err: err}
		}
		var elements []json.RawMessage
		if raw, ok := fields["actions"]; ok && json.Unmarshal(raw, &elements) == nil && elements != nil {
			return parsedShape{kind: shapeArray, elements: elements}
		}
		if isSingleAction(fields) {
			return parsedShape{kind: shapeArray, elements: []json.RawMessage{json.RawMessage(trimmed)}}
		}
		return parsedShape{kind: shapeObject, fields: fields}
	default:
		return parsedShape{kind: shapeInvalid, err: errNotJSONContainer}
	}
}

// legacyKeys are the keys of the single-object reply shape.
var legacyKeys = []string{"message", "field_updates", "focus", "complete"}

// isSingleAction reports whether an object is one bare action rather than the
// legacy reply shape. study_type_options objects stay on the legacy path, which
// projects them to the same action.
func isSingleAction(fields map[string]json.RawMessage) bool {
	switch models.ActionType(jsonScalarString(fields["type"])) {
	case models.ActionMessage, models.ActionFieldUpdate, models.ActionFocus, models.ActionComplete:
	default:
		return false
	}
	for _, k := range legacyKeys {
		if _, ok := fields[k]; ok {
			return false
		}
	}
	return true
}

// NormalizeResponse converts raw completion text into a valid, non-empty action list.
// Unusable input never fails; it yields the processing-error message instead.
func NormalizeResponse(text string) []models.Action {
	shape := parseShape(text)
	var actions []models.Action
	switch shape.kind {
	case shapeArray:
		actions = normalizeArray(shape.elements)
	case shapeObject:
		actions = normalizeLegacyObject(shape.fields)
	default:
		slog.Warn("flow.NormalizeResponse: completion is not a JSON array or object", "error", shape.err, "length", len(text))
	}
	return ensureNonEmpty(actions)
}

// normalizeArray keeps valid actions in order. The first invalid element is
// replaced by the processing-error message; later invalid elements are dropped.
func normalizeArray(elements []json.RawMessage) []models.Action {
	actions := make([]models.Action, 0, len(elements))
	replaced := false
	for i, raw := range elements {
		var a models.Action
		err := json.Unmarshal(raw, &a)
		if err == nil {
			err = a.Validate()
		}
		if err != nil {
			slog.Warn("flow.normalizeArray: rejecting action", "index", i, "error", err)
			if !replaced {
				actions = append(actions, models.MessageAction(MsgProcessingError))
				replaced = true
			}
			continue
		}
		actions = append(actions, a)
	}
	return actions
}

// normalizeLegacyObject projects the single-object reply shape onto actions in the order
// message, field_updates (canonical field order), focus, study_type_options, complete.
func normalizeLegacyObject(fields map[string]json.RawMessage) []models.Action {
	var actions []models.Action
	rejected := false
	reject := func(reason string, args ...any) {
		slog.Warn("flow.normalizeLegacyObject: "+reason, args...)
		if !rejected {
			actions = append(actions, models.MessageAction(MsgProcessingError))
			rejected = true
		}
	}

	if raw, ok := fields["message"]; ok {
		var msg string
		if err := json.Unmarshal(raw, &msg); err != nil {
			reject("message is not a string", "error", err)
		} else if msg != "" {
			actions = append(actions, models.MessageAction(msg))
		}
	}

	if raw, ok := fields["field_updates"]; ok {
		var updates map[string]json.RawMessage
		if err := json.Unmarshal(raw, &updates); err != nil {
			reject("field_updates is not an object", "error", err)
		} else {
			for name := range updates {
				if !models.IsValidField(models.FieldName(name)) {
					reject("field_updates names unknown field", "field", name)
				}
			}
			for _, f := range models.FieldOrder {
				if v, ok := updates[string(f)]; ok {
					actions = append(actions, models.FieldUpdateAction(f, jsonScalarString(v)))
				}
			}
		}
	}

	if raw, ok := fields["focus"]; ok {
		var section string
		if err := json.Unmarshal(raw, &section); err != nil || !models.IsValidField(models.FieldName(section)) {
			reject("focus names unknown section", "focus", string(raw))
		} else {
			actions = append(actions, models.FocusAction(models.FieldName(section)))
		}
	}

	if jsonScalarString(fields["type"]) == string(models.ActionStudyTypeOptions) {
		var options []models.StudyTypeOption
		if err := json.Unmarshal(fields["options"], &options); err != nil || len(options) == 0 {
			reject("study_type_options without usable options", "error", err)
		} else {
			actions = append(actions, models.StudyTypeOptionsAction(options))
		}
	}

	if raw, ok := fields["complete"]; ok {
		var done bool
		if err := json.Unmarshal(raw, &done); err == nil && done {
			actions = append(actions, models.CompleteAction())
		}
	}
	return actions
}

// ensureNonEmpty guarantees a turn never returns zero actions.
func ensureNonEmpty(actions []models.Action) []models.Action {
	if len(actions) == 0 {
		return []models.Action{models.MessageAction(MsgProcessingError)}
	}
	return actions
}

// jsonScalarString returns a JSON string's value, or the raw text of any other value.
func jsonScalarString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
