package flow

import (
	"fmt"
	"strings"

	"github.com/BTreeMap/StudyPipe/internal/models"
)

// User-facing copy of the scripted path.
const (
	msgAllComplete       = "All sections are complete! You can review your study details or finish the setup whenever you're ready."
	msgSetupComplete     = "All set! Your study setup is complete."
	msgQuestionsApproved = "Great! I've saved your interview questions. Your study setup is complete!"
	msgQuestionsIntro    = "Based on your study details, here are some suggested interview questions:"
	msgQuestionsOutro    = "Would you like to use these questions, or would you like to change any of them?"
)

var fieldPrompts = map[models.FieldName]string{
	models.FieldDescription:    "Let's start with the basics. What is your study about? Describe the product, feature, or experience you want to learn more about.",
	models.FieldStudyType:      "What type of study would you like to run? Pick the option that best fits your research goals.",
	models.FieldObjective:      "What is the main objective of this study? What do you hope to learn or decide based on the results?",
	models.FieldTargetAudience: "Who is your target audience? Describe the people you would like to interview.",
}

var fieldLabels = map[models.FieldName]string{
	models.FieldDescription:        "study description",
	models.FieldStudyType:          "study type",
	models.FieldObjective:          "objective",
	models.FieldTargetAudience:     "target audience",
	models.FieldInterviewQuestions: "interview questions",
}

// fieldPromptActions is the scripted prompt for field: its message and focus,
// with the study type choices added for study_type.
func fieldPromptActions(field models.FieldName) []models.Action {
	actions := []models.Action{models.MessageAction(fieldPrompts[field])}
	if field == models.FieldStudyType {
		actions = append(actions, models.StudyTypeOptionsAction(models.DefaultStudyTypeOptions()))
	}
	return append(actions, models.FocusAction(field))
}

// templatedQuestions builds the five starter questions from the study's details.
func templatedQuestions(study models.Study) string {
	topic := orDefault(study.Description, "this topic")
	objective := orDefault(study.Objective, "your goals")
	audience := orDefault(study.TargetAudience, "people like you")

	questions := []string{
		fmt.Sprintf("Can you tell me about your experience with %s?", topic),
		fmt.Sprintf("Thinking about %s, what has worked well for you and what hasn't?", objective),
		fmt.Sprintf("How do %s usually approach this today? Walk me through the last time you did.", audience),
		fmt.Sprintf("What is the biggest challenge you face when it comes to %s?", topic),
		fmt.Sprintf("If you could change one thing related to %s, what would it be and why?", objective),
	}
	lines := make([]string, len(questions))
	for i, q := range questions {
		lines[i] = fmt.Sprintf("%d. %s", i+1, q)
	}
	return strings.Join(lines, "\n")
}

// questionsMessage wraps the numbered questions in the proposal copy.
func questionsMessage(questions string) string {
	return msgQuestionsIntro + "\n\n" + questions + "\n\n" + msgQuestionsOutro
}

func acknowledgement(field models.FieldName) string {
	return fmt.Sprintf("Thanks! I've saved your %s.", fieldLabels[field])
}

func studyTypeConfirmation(st models.StudyType) string {
	return fmt.Sprintf("Great choice! I've set your study type to %s.", st)
}

func orDefault(value, fallback string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return fallback
}
