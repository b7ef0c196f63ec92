package flow

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/BTreeMap/StudyPipe/internal/models"
)

// defaultSetupSystemPrompt drives the conversational fallback of the setup flow.
const defaultSetupSystemPrompt = `You are a research study setup assistant. You help a researcher complete a study by filling in five fields, in this order: description, study_type, objective, target_audience, interview_questions.

Rules:
- study_type must be exactly one of: Exploratory, Comparative, Attitudinal, Behavioral.
- Ask about one field at a time and keep replies short and friendly.
- When the researcher gives you a value for a field, record it with a field_update action.
- When you propose interview questions, write them as a numbered list ("1. ...", "2. ...").

Respond ONLY with a JSON object of the form {"actions": [<action>, ...]}. Allowed actions:
  {"type": "message", "content": "<text to show>"}
  {"type": "field_update", "field": "<field name>", "value": "<new value>"}
  {"type": "focus", "section": "<field name>"}
  {"type": "study_type_options", "options": [{"value": "Exploratory", "description": "...", "recommended": true}]}
  {"type": "complete", "value": true}
Only emit "complete" once every field is filled and the researcher has confirmed.`

// interviewGuideSystemPrompt asks for the one-shot interview guide document.
const interviewGuideSystemPrompt = `You are an expert user researcher. Given a study, write an interview guide for a moderator.
Respond ONLY with a JSON object with exactly these keys:
  "questions": an array of interview questions in the order they should be asked,
  "instructions": guidance for the moderator,
  "system_prompt": a system prompt an AI interviewer could use to run this interview,
  "duration_minutes": the suggested interview length as a number,
  "supplementary_materials": an array of materials or stimuli to prepare.`

// studyContext renders the study snapshot appended to the conversational system prompt.
func studyContext(study models.Study) string {
	var b strings.Builder
	b.WriteString("\n\nCurrent study:\n")
	for _, f := range models.FieldOrder {
		v := strings.TrimSpace(study.Field(f))
		if v == "" {
			v = "(empty)"
		}
		fmt.Fprintf(&b, "- %s: %s\n", f, v)
	}
	missing := models.MissingFields(study)
	if len(missing) == 0 {
		b.WriteString("All fields are filled.")
	} else {
		names := make([]string, len(missing))
		for i, f := range missing {
			names[i] = string(f)
		}
		fmt.Fprintf(&b, "Missing fields: %s", strings.Join(names, ", "))
	}
	return b.String()
}

// interviewGuideUserPrompt renders the study as the guide request.
func interviewGuideUserPrompt(study models.Study) (string, error) {
	details := map[string]string{
		"title":               study.Title,
		"description":         study.Description,
		"study_type":          study.StudyType,
		"objective":           study.Objective,
		"target_audience":     study.TargetAudience,
		"interview_questions": study.InterviewQuestions,
	}
	data, err := json.MarshalIndent(details, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode study: %w", err)
	}
	return "Create an interview guide for this study:\n" + string(data), nil
}
