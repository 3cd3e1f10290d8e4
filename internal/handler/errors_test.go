package handler

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stemsi/quizdesk/internal/backend"
	"github.com/stemsi/quizdesk/internal/response"
	"github.com/stemsi/quizdesk/internal/service"
	"github.com/stemsi/quizdesk/internal/session"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   response.ErrCode
	}{
		{"no token", fmt.Errorf("%w: %w", backend.ErrUnauthorized, service.ErrNoToken), http.StatusUnauthorized, response.ErrTokenRequired},
		{"backend 401", backend.ErrUnauthorized, http.StatusUnauthorized, response.ErrTokenExpired},
		{"authoring as student", service.ErrAuthoringNeedsAdmin, http.StatusForbidden, response.ErrAdminAccessOnly},
		{"not open", service.ErrSessionNotFound, http.StatusNotFound, response.ErrSessionNotOpen},
		{"closed", session.ErrClosed, http.StatusNotFound, response.ErrSessionNotOpen},
		{"restore read failed", fmt.Errorf("%w: %w", session.ErrNotReady, errors.New("i/o timeout")), http.StatusServiceUnavailable, response.ErrSessionNotReady},
		{"unknown quiz", backend.ErrQuizNotFound, http.StatusNotFound, response.ErrQuizNotFound},
		{"already submitted", session.ErrSubmitted, http.StatusConflict, response.ErrQuizSubmitted},
		{"in flight", session.ErrSubmitInFlight, http.StatusConflict, response.ErrSubmitInProgress},
		{"time up", session.ErrTimeUp, http.StatusConflict, response.ErrTimeUp},
		{"bad index", session.ErrInvalidIndex, http.StatusBadRequest, response.ErrIndexOutOfRange},
		{"rejected", &session.RejectedError{Message: "closed quiz"}, http.StatusUnprocessableEntity, response.ErrSubmitRejected},
		{"transport", fmt.Errorf("%w: dial", backend.ErrServiceUnavailable), http.StatusBadGateway, response.ErrBackendUnavailable},
		{"backend 500", &backend.APIError{StatusCode: 500}, http.StatusBadGateway, response.ErrBackendUnavailable},
		{"backend 400", &backend.APIError{StatusCode: 400, Message: "answers missing"}, http.StatusBadGateway, response.ErrSubmissionFailed},
		{"other", errors.New("disk full"), http.StatusInternalServerError, response.ErrInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := classify(tt.err)
			assert.Equal(t, tt.status, f.status)
			assert.Equal(t, tt.code, f.code)
		})
	}
}

func TestClassifyKeepsBackendMessage(t *testing.T) {
	f := classify(&session.RejectedError{Message: "quiz closed"})
	assert.Equal(t, "quiz closed", f.message)

	f = classify(&backend.APIError{StatusCode: 404, Message: "no such course"})
	assert.Equal(t, "no such course", f.message)
}

func TestRefusedBeforeSend(t *testing.T) {
	assert.True(t, refusedBeforeSend(session.ErrSubmitInFlight))
	assert.True(t, refusedBeforeSend(session.ErrSubmitted))
	assert.True(t, refusedBeforeSend(session.ErrNotReady))
	assert.False(t, refusedBeforeSend(&session.RejectedError{}))
	assert.False(t, refusedBeforeSend(backend.ErrServiceUnavailable))
}
