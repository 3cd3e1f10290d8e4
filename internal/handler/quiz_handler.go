package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/quizdesk/internal/response"
	"github.com/stemsi/quizdesk/internal/service"
	"github.com/stemsi/quizdesk/internal/validator"
)

// QuizHandler serves the course quiz list.
type QuizHandler struct {
	sessions *service.QuizSessionService
}

// NewQuizHandler creates a new QuizHandler.
func NewQuizHandler(sessions *service.QuizSessionService) *QuizHandler {
	return &QuizHandler{sessions: sessions}
}

// ListQuizzes godoc
// GET /api/v1/courses/:course_id/quizzes
// Returns the course quizzes. Unfinished attempts come with existing_state,
// to be passed back when the quiz is opened.
func (h *QuizHandler) ListQuizzes(c *gin.Context) {
	if fields := validator.Params(c, idTag, "course_id"); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrInvalidID, fields)
		return
	}

	quizzes, err := h.sessions.ListQuizzes(c.Request.Context(), c.Param("course_id"))
	if err != nil {
		fail(c, err)
		return
	}
	if quizzes == nil {
		quizzes = []service.QuizSummary{}
	}
	response.Success(c, http.StatusOK, gin.H{"quizzes": quizzes})
}
