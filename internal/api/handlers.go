// Package api provides HTTP handlers for StudyPipe endpoints.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/BTreeMap/StudyPipe/internal/models"
	"github.com/BTreeMap/StudyPipe/internal/session"
	"github.com/BTreeMap/StudyPipe/internal/util"
)

// studySetupChatHandler handles POST /api/study-setup/chat
func (s *Server) studySetupChatHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req models.TurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.studySetupChatHandler: failed to decode JSON", "error", err)
		writeTurnError(w, http.StatusBadRequest, msgInvalidJSON)
		return
	}

	studyID := ""
	if req.Study != nil {
		studyID = req.Study.ID
	}

	// The session is read and written under the same lock as the turn.
	if key := turnLockKey(studyID, req.SessionID); key != "" {
		lockCtx, cancel := context.WithTimeout(r.Context(), s.lockTimeout)
		release, err := s.locker.Acquire(lockCtx, key)
		cancel()
		if err != nil {
			s.writeTurnFailure(w, err, "studyID", studyID, "sessionID", req.SessionID, "elapsed", time.Since(start))
			return
		}
		defer release()
	}

	var sess *models.SetupSession
	supplied := len(req.Messages) > 0
	if req.SessionID != "" {
		loaded, err := s.sessions.Get(r.Context(), req.SessionID)
		if err != nil {
			s.writeTurnFailure(w, err, "sessionID", req.SessionID, "elapsed", time.Since(start))
			return
		}
		if studyID != "" && loaded.StudyID != "" && loaded.StudyID != studyID {
			slog.Warn("Server.studySetupChatHandler: session belongs to another study", "sessionID", loaded.ID, "sessionStudyID", loaded.StudyID, "studyID", studyID)
			writeTurnError(w, http.StatusBadRequest, msgSessionStudyMismatch)
			return
		}
		sess = &loaded
		if !supplied {
			req.Messages = append([]models.ChatMessage{}, loaded.Messages...)
		}
	}

	actions, err := s.setup.ProcessTurn(r.Context(), req)
	if err != nil {
		s.writeTurnFailure(w, err, "studyID", studyID, "elapsed", time.Since(start))
		return
	}

	if sess != nil {
		s.appendToSession(r.Context(), *sess, req, supplied, actions)
	}

	slog.Info("Server.studySetupChatHandler: turn processed", "studyID", studyID, "actions", len(actions), "elapsed", time.Since(start))
	writeJSONResponse(w, http.StatusOK, models.TurnResponse{Content: actions})
}

// turnLockKey serializes turns per study, or per session when the study has no ID.
func turnLockKey(studyID, sessionID string) string {
	switch {
	case studyID != "":
		return studyID
	case sessionID != "":
		return "session:" + sessionID
	default:
		return ""
	}
}

func (s *Server) writeTurnFailure(w http.ResponseWriter, err error, args ...any) {
	status, msg := errorStatus(err, msgTurnFailed)
	if status >= http.StatusInternalServerError {
		slog.Error("Server.studySetupChatHandler: turn failed", append(args, "status", status, "error", err)...)
	} else {
		slog.Warn("Server.studySetupChatHandler: turn rejected", append(args, "status", status, "error", err)...)
	}
	writeTurnError(w, status, msg)
}

// appendToSession records the user's latest message and the assistant's replies.
// Failures are logged; the turn has already been applied.
func (s *Server) appendToSession(ctx context.Context, sess models.SetupSession, req models.TurnRequest, supplied bool, actions []models.Action) {
	if supplied {
		if last, ok := req.LastUserMessage(); ok {
			sess.Messages = append(sess.Messages, models.ChatMessage{Role: models.RoleUser, Content: last})
		}
	}
	for _, a := range actions {
		if a.Type == models.ActionMessage {
			sess.Messages = append(sess.Messages, models.ChatMessage{Role: models.RoleAssistant, Content: a.Content})
		}
	}
	sess.UpdatedAt = time.Now()
	if err := s.sessions.Save(ctx, sess); err != nil {
		slog.Error("Server.appendToSession: failed to save session", "sessionID", sess.ID, "error", err)
	}
}

// interviewGuideHandler handles POST /api/study-setup/interview-guide
func (s *Server) interviewGuideHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req models.InterviewGuideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.interviewGuideHandler: failed to decode JSON", "error", err)
		writeTurnError(w, http.StatusBadRequest, msgInvalidJSON)
		return
	}

	var study models.Study
	switch {
	case req.Study != nil:
		study = *req.Study
	case req.StudyID != "":
		loaded, err := s.st.GetStudy(r.Context(), req.StudyID)
		if err != nil {
			status, msg := errorStatus(err, err.Error())
			slog.Warn("Server.interviewGuideHandler: failed to load study", "studyID", req.StudyID, "status", status, "error", err)
			writeTurnError(w, status, msg)
			return
		}
		study = loaded
	default:
		writeTurnError(w, http.StatusBadRequest, msgMissingGuideArgs)
		return
	}

	guide, err := s.setup.GenerateInterviewGuide(r.Context(), study)
	if err != nil {
		// the guide path passes unrecognized error text through
		status, msg := errorStatus(err, err.Error())
		slog.Error("Server.interviewGuideHandler: guide generation failed", "studyID", study.ID, "status", status, "elapsed", time.Since(start), "error", err)
		writeTurnError(w, status, msg)
		return
	}
	slog.Info("Server.interviewGuideHandler: guide generated", "studyID", study.ID, "elapsed", time.Since(start))
	writeJSONResponse(w, http.StatusOK, guide)
}

// createSessionHandler handles POST /api/study-setup/sessions
func (s *Server) createSessionHandler(w http.ResponseWriter, r *http.Request) {
	var req models.CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.createSessionHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(msgInvalidJSON))
		return
	}
	if req.StudyID == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(models.ErrEmptyStudyID.Error()))
		return
	}
	if _, err := s.st.GetStudy(r.Context(), req.StudyID); err != nil {
		status, msg := errorStatus(err, "Failed to load study")
		slog.Warn("Server.createSessionHandler: study lookup failed", "studyID", req.StudyID, "error", err)
		writeJSONResponse(w, status, models.Error(msg))
		return
	}

	sess := session.NewSetupSession(util.GenerateSessionID(), req.StudyID, time.Now())
	if err := s.sessions.Save(r.Context(), sess); err != nil {
		slog.Error("Server.createSessionHandler: failed to save session", "studyID", req.StudyID, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to create setup session"))
		return
	}
	slog.Info("Server.createSessionHandler: session created", "sessionID", sess.ID, "studyID", sess.StudyID)
	writeJSONResponse(w, http.StatusCreated, models.Success(sess))
}

// getSessionHandler handles GET /api/study-setup/sessions/{id}
func (s *Server) getSessionHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sess, err := s.sessions.Get(r.Context(), id)
	if err != nil {
		status, msg := errorStatus(err, "Failed to load setup session")
		slog.Debug("Server.getSessionHandler: lookup failed", "sessionID", id, "error", err)
		writeJSONResponse(w, status, models.Error(msg))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(sess))
}

// deleteSessionHandler handles DELETE /api/study-setup/sessions/{id}. Deleting an
// unknown or expired session succeeds.
func (s *Server) deleteSessionHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.sessions.Delete(r.Context(), id); err != nil {
		slog.Error("Server.deleteSessionHandler: delete failed", "sessionID", id, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to delete setup session"))
		return
	}
	slog.Info("Server.deleteSessionHandler: setup session deleted", "sessionID", id)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("setup session deleted", nil))
}

// createStudyHandler handles POST /api/studies
func (s *Server) createStudyHandler(w http.ResponseWriter, r *http.Request) {
	var req models.CreateStudyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.createStudyHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(msgInvalidJSON))
		return
	}
	if err := req.Validate(); err != nil {
		slog.Warn("Server.createStudyHandler: validation failed", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	created, err := s.st.CreateStudy(r.Context(), models.Study{
		Title:              req.Title,
		Description:        req.Description,
		StudyType:          req.StudyType,
		Objective:          req.Objective,
		TargetAudience:     req.TargetAudience,
		InterviewQuestions: req.InterviewQuestions,
	})
	if err != nil {
		status, msg := errorStatus(err, "Failed to create study")
		slog.Error("Server.createStudyHandler: create failed", "error", err)
		writeJSONResponse(w, status, models.Error(msg))
		return
	}
	slog.Info("Server.createStudyHandler: study created", "studyID", created.ID)
	writeJSONResponse(w, http.StatusCreated, models.Success(created))
}

// listStudiesHandler handles GET /api/studies
func (s *Server) listStudiesHandler(w http.ResponseWriter, r *http.Request) {
	studies, err := s.st.ListStudies(r.Context())
	if err != nil {
		slog.Error("Server.listStudiesHandler: list failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list studies"))
		return
	}
	if studies == nil {
		studies = []models.Study{}
	}
	writeJSONResponse(w, http.StatusOK, models.Success(studies))
}

// getStudyHandler handles GET /api/studies/{id}
func (s *Server) getStudyHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	study, err := s.st.GetStudy(r.Context(), id)
	if err != nil {
		status, msg := errorStatus(err, "Failed to load study")
		slog.Debug("Server.getStudyHandler: lookup failed", "studyID", id, "error", err)
		writeJSONResponse(w, status, models.Error(msg))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(study))
}
