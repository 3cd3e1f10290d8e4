package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/quizdesk/internal/logger"
	"github.com/stemsi/quizdesk/internal/model"
	"github.com/stemsi/quizdesk/internal/response"
	"github.com/stemsi/quizdesk/internal/service"
	"github.com/stemsi/quizdesk/internal/session"
	"github.com/stemsi/quizdesk/internal/validator"
)

// idTag validates the course and quiz ids of session routes.
const idTag = "required,storage_id"

// SessionHandler exposes open quiz sessions to the shell.
type SessionHandler struct {
	sessions *service.QuizSessionService
	log      zerolog.Logger
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(sessions *service.QuizSessionService, log zerolog.Logger) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		log:      logger.Component(log, "session_handler"),
	}
}

// OpenSession godoc
// POST /api/v1/sessions
// Opens the quiz screen: restores saved progress at most once and starts the
// countdown. Opening an already open quiz returns its current state.
func (h *SessionHandler) OpenSession(c *gin.Context) {
	var req model.OpenSessionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	view, err := h.sessions.Open(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"session": view})
}

// GetSession godoc
// GET /api/v1/sessions/:course_id/:quiz_id
func (h *SessionHandler) GetSession(c *gin.Context) {
	sess, ok := h.lookup(c)
	if !ok {
		return
	}
	response.Success(c, http.StatusOK, gin.H{"session": sess.View()})
}

// SelectOption godoc
// POST /api/v1/sessions/:course_id/:quiz_id/select
// Toggles one option; selecting the chosen option again clears the answer.
func (h *SessionHandler) SelectOption(c *gin.Context) {
	sess, ok := h.lookup(c)
	if !ok {
		return
	}

	var req model.SelectOptionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	view, err := sess.SelectOption(*req.QuestionIndex, *req.OptionIndex)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"session": view})
}

// GoTo godoc
// POST /api/v1/sessions/:course_id/:quiz_id/goto
func (h *SessionHandler) GoTo(c *gin.Context) {
	sess, ok := h.lookup(c)
	if !ok {
		return
	}

	var req model.GoToRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	view, err := sess.GoTo(*req.QuestionIndex)
	h.respond(c, view, err)
}

// Next godoc
// POST /api/v1/sessions/:course_id/:quiz_id/next
func (h *SessionHandler) Next(c *gin.Context) {
	sess, ok := h.lookup(c)
	if !ok {
		return
	}
	view, err := sess.Next()
	h.respond(c, view, err)
}

// Prev godoc
// POST /api/v1/sessions/:course_id/:quiz_id/prev
func (h *SessionHandler) Prev(c *gin.Context) {
	sess, ok := h.lookup(c)
	if !ok {
		return
	}
	view, err := sess.Prev()
	h.respond(c, view, err)
}

// Submit godoc
// POST /api/v1/sessions/:course_id/:quiz_id/submit
// Sends the answers. On failure the answers stay saved and the session keeps
// running so the user can retry.
func (h *SessionHandler) Submit(c *gin.Context) {
	courseID, quizID, ok := h.params(c)
	if !ok {
		return
	}

	res, view, err := h.sessions.Submit(c.Request.Context(), quizID, courseID)
	if err != nil {
		f := classify(err)
		if f.status >= http.StatusInternalServerError {
			h.log.Warn().Err(err).Str("quiz_id", quizID).Msg("Submit failed")
		}
		response.FailWithMessage(c, f.status, f.code, f.message)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"result": res, "session": view})
}

// Blur godoc
// POST /api/v1/sessions/:course_id/:quiz_id/blur
// Saves with read-back verification when the quiz screen loses focus.
func (h *SessionHandler) Blur(c *gin.Context) {
	sess, ok := h.lookup(c)
	if !ok {
		return
	}
	if err := sess.Blur(c.Request.Context()); err != nil {
		h.log.Error().Err(err).Str("quiz_id", sess.QuizID()).Msg("Blur save failed")
		fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"session": sess.View()})
}

// CloseSession godoc
// DELETE /api/v1/sessions/:course_id/:quiz_id
// Saves and releases the session; saved progress stays for a later resume.
func (h *SessionHandler) CloseSession(c *gin.Context) {
	courseID, quizID, ok := h.params(c)
	if !ok {
		return
	}
	if err := h.sessions.Close(c.Request.Context(), quizID, courseID); err != nil {
		fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"message": "Session closed"})
}

// AppState godoc
// POST /api/v1/app/state
// Forwards foreground/background transitions to every open session.
func (h *SessionHandler) AppState(c *gin.Context) {
	var req model.AppStateRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	if err := h.sessions.AppState(c.Request.Context(), req.State); err != nil {
		fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"state": req.State, "open_sessions": h.sessions.OpenCount()})
}

func (h *SessionHandler) respond(c *gin.Context, view session.View, err error) {
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"session": view})
}

func (h *SessionHandler) params(c *gin.Context) (courseID, quizID string, ok bool) {
	if fields := validator.Params(c, idTag, "course_id", "quiz_id"); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrInvalidID, fields)
		return "", "", false
	}
	return c.Param("course_id"), c.Param("quiz_id"), true
}

func (h *SessionHandler) lookup(c *gin.Context) (*session.Session, bool) {
	courseID, quizID, ok := h.params(c)
	if !ok {
		return nil, false
	}
	sess, err := h.sessions.Session(quizID, courseID)
	if err != nil {
		fail(c, err)
		return nil, false
	}
	return sess, true
}
