// Package extract pulls structured signals out of free-form chat text:
// numbered question lists, approval phrases and JSON-wrapped user messages.
package extract

import (
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

var numberedLine = regexp.MustCompile(`^\d+\.`)

// approvalPhrases are matched case-insensitively as substrings.
var approvalPhrases = []string{
	"yes",
	"those look good",
	"i like these",
	"good",
	"perfect",
	"great",
	"approved",
	"lets finish",
	"continue",
	"proceed",
	"move on",
}

// NumberedQuestions returns the lines of text that start with "<digits>.",
// joined by newlines in their original order. ok is false when no line matches.
func NumberedQuestions(text string) (questions string, ok bool) {
	var matched []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if numberedLine.MatchString(line) {
			matched = append(matched, line)
		}
	}
	if len(matched) == 0 {
		return "", false
	}
	return strings.Join(matched, "\n"), true
}

// DetectApproval reports whether text reads as the user approving a proposal.
func DetectApproval(text string) bool {
	lower := strings.ToLower(text)
	// "let's finish" should match "lets finish"
	lower = strings.NewReplacer("'", "", "’", "").Replace(lower)
	for _, phrase := range approvalPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return strings.Contains(lower, "like") && strings.Contains(lower, "question")
}

// UnwrapJSONMessage returns the "message" string of a JSON envelope, or text unchanged.
func UnwrapJSONMessage(text string) string {
	env, ok := ParseEnvelope(text)
	if !ok || !env.HasMessage {
		return text
	}
	return env.Message
}

// Envelope is the JSON wrapper the UI sometimes puts around user input.
type Envelope struct {
	Message       string
	HasMessage    bool
	ActiveSection string
	MissingFields []string
	Action        string
}

// IsControl reports whether the envelope carries no user text at all.
func (e Envelope) IsControl() bool {
	return !e.HasMessage
}

// ParseEnvelope parses text as a JSON object envelope. ok is false for plain text.
func ParseEnvelope(text string) (Envelope, bool) {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "{") || !gjson.Valid(trimmed) {
		return Envelope{}, false
	}
	doc := gjson.Parse(trimmed)
	var env Envelope
	if msg := doc.Get("message"); msg.Type == gjson.String {
		env.Message = msg.String()
		env.HasMessage = true
	}
	env.ActiveSection = doc.Get("activeSection").String()
	env.Action = doc.Get("action").String()
	for _, f := range doc.Get("missingFields").Array() {
		env.MissingFields = append(env.MissingFields, f.String())
	}
	return env, true
}
