package api

import (
	"errors"
	"net/http"

	"github.com/BTreeMap/StudyPipe/internal/flow"
	"github.com/BTreeMap/StudyPipe/internal/genai"
	"github.com/BTreeMap/StudyPipe/internal/models"
	"github.com/BTreeMap/StudyPipe/internal/session"
	"github.com/BTreeMap/StudyPipe/internal/store"
)

// User-facing error copy.
const (
	msgInternalError        = "Internal server error"
	msgTurnFailed           = "Failed to process your message. Please try again."
	msgTimeout              = "The assistant took too long to respond. Please try again."
	msgRateLimited          = "The assistant is receiving too many requests. Please wait a moment and try again."
	msgContactSupport       = "The assistant is not available right now. Please contact support."
	msgTurnInProgress       = "Another message for this study is still being processed. Please try again."
	msgStudyNotFound        = "Study not found"
	msgSessionNotFound      = "Setup session not found"
	msgSessionStudyMismatch = "Setup session belongs to a different study"
	msgInvalidJSON          = "Invalid JSON format"
	msgMissingGuideArgs     = "study or studyId is required"
)

// errorStatus maps an error to its HTTP status and user-facing copy.
// Unrecognized errors get fallback as their message.
func errorStatus(err error, fallback string) (int, string) {
	switch {
	case errors.Is(err, flow.ErrInvalidTurn),
		errors.Is(err, models.ErrMissingMessages),
		errors.Is(err, models.ErrMissingStudy),
		errors.Is(err, models.ErrInvalidStudyType),
		errors.Is(err, models.ErrUnknownField):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, store.ErrStudyNotFound):
		return http.StatusNotFound, msgStudyNotFound
	case errors.Is(err, session.ErrSessionNotFound):
		return http.StatusNotFound, msgSessionNotFound
	case errors.Is(err, session.ErrLockTimeout):
		return http.StatusConflict, msgTurnInProgress
	case errors.Is(err, genai.ErrTimeout):
		return http.StatusGatewayTimeout, msgTimeout
	case errors.Is(err, genai.ErrRateLimit):
		return http.StatusTooManyRequests, msgRateLimited
	case errors.Is(err, genai.ErrAuth), errors.Is(err, genai.ErrNotConfigured):
		return http.StatusInternalServerError, msgContactSupport
	default:
		return http.StatusInternalServerError, fallback
	}
}
