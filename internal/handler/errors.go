package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/quizdesk/internal/backend"
	"github.com/stemsi/quizdesk/internal/response"
	"github.com/stemsi/quizdesk/internal/service"
	"github.com/stemsi/quizdesk/internal/session"
)

// failure is the HTTP rendering of a service or session error.
type failure struct {
	status  int
	code    response.ErrCode
	message string
}

// classify maps domain errors to status codes. The WebSocket stream uses the
// same codes as the REST routes.
func classify(err error) failure {
	var rejected *session.RejectedError
	var apiErr *backend.APIError

	switch {
	case errors.Is(err, service.ErrNoToken):
		return failure{status: http.StatusUnauthorized, code: response.ErrTokenRequired}
	case errors.Is(err, backend.ErrUnauthorized):
		return failure{status: http.StatusUnauthorized, code: response.ErrTokenExpired}
	case errors.Is(err, service.ErrAuthoringNeedsAdmin):
		return failure{status: http.StatusForbidden, code: response.ErrAdminAccessOnly}
	case errors.Is(err, session.ErrNotReady):
		return failure{status: http.StatusServiceUnavailable, code: response.ErrSessionNotReady}
	case errors.Is(err, service.ErrSessionNotFound), errors.Is(err, session.ErrClosed):
		return failure{status: http.StatusNotFound, code: response.ErrSessionNotOpen}
	case errors.Is(err, backend.ErrQuizNotFound):
		return failure{status: http.StatusNotFound, code: response.ErrQuizNotFound}
	case errors.Is(err, service.ErrNoQuestionsAvailable), errors.Is(err, session.ErrNoQuestions):
		return failure{status: http.StatusUnprocessableEntity, code: response.ErrNoQuestions}
	case errors.Is(err, service.ErrUnknownAppState):
		return failure{status: http.StatusBadRequest, code: response.ErrValidation, message: err.Error()}
	case errors.Is(err, session.ErrSubmitted):
		return failure{status: http.StatusConflict, code: response.ErrQuizSubmitted}
	case errors.Is(err, session.ErrSubmitInFlight):
		return failure{status: http.StatusConflict, code: response.ErrSubmitInProgress}
	case errors.Is(err, session.ErrReadOnly):
		return failure{status: http.StatusConflict, code: response.ErrSessionReadOnly}
	case errors.Is(err, session.ErrTimeUp):
		return failure{status: http.StatusConflict, code: response.ErrTimeUp}
	case errors.Is(err, session.ErrInvalidIndex):
		return failure{status: http.StatusBadRequest, code: response.ErrIndexOutOfRange}
	case errors.As(err, &rejected):
		return failure{status: http.StatusUnprocessableEntity, code: response.ErrSubmitRejected, message: rejected.Message}
	case backend.IsRetryable(err):
		return failure{status: http.StatusBadGateway, code: response.ErrBackendUnavailable}
	case errors.As(err, &apiErr):
		return failure{status: http.StatusBadGateway, code: response.ErrSubmissionFailed, message: apiErr.Message}
	default:
		return failure{status: http.StatusInternalServerError, code: response.ErrInternal}
	}
}

// fail writes err as an error envelope.
func fail(c *gin.Context, err error) {
	f := classify(err)
	response.FailWithMessage(c, f.status, f.code, f.message)
}
