package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/quizdesk/internal/logger"
	"github.com/stemsi/quizdesk/internal/model"
	"github.com/stemsi/quizdesk/internal/response"
	"github.com/stemsi/quizdesk/internal/service"
	"github.com/stemsi/quizdesk/internal/validator"
)

// AuthHandler manages the stored backend credentials.
type AuthHandler struct {
	authService *service.AuthService
	log         zerolog.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(authService *service.AuthService, log zerolog.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		log:         logger.Component(log, "auth_handler"),
	}
}

// Status godoc
// GET /api/v1/auth/status
func (h *AuthHandler) Status(c *gin.Context) {
	st, err := h.authService.Status(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to read credentials")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, st)
}

// SetCredentials godoc
// PUT /api/v1/auth/credentials
// Stores the token and role issued by the backend at sign-in.
func (h *AuthHandler) SetCredentials(c *gin.Context) {
	var req model.CredentialsRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	err := h.authService.SetCredentials(c.Request.Context(), req.Token, service.Role(req.Role))
	switch {
	case err == nil:
	case errors.Is(err, service.ErrTokenExpired):
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenExpired)
		return
	case errors.Is(err, service.ErrNoToken), errors.Is(err, service.ErrInvalidRole):
		response.FailWithMessage(c, http.StatusBadRequest, response.ErrValidation, err.Error())
		return
	default:
		h.log.Error().Err(err).Msg("Failed to store credentials")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	h.log.Info().Str("role", req.Role).Msg("Credentials stored")
	h.Status(c)
}

// Logout godoc
// DELETE /api/v1/auth/credentials
// Removes the token and role. Saved quiz progress is kept.
func (h *AuthHandler) Logout(c *gin.Context) {
	if err := h.authService.Logout(c.Request.Context()); err != nil {
		h.log.Error().Err(err).Msg("Failed to clear credentials")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"message": "Signed out"})
}
