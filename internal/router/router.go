package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/stemsi/quizdesk/internal/config"
	"github.com/stemsi/quizdesk/internal/handler"
	"github.com/stemsi/quizdesk/internal/middleware"
	"github.com/stemsi/quizdesk/internal/response"
	"github.com/stemsi/quizdesk/internal/service"
	"github.com/stemsi/quizdesk/internal/validator"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth    *handler.AuthHandler
	Quiz    *handler.QuizHandler
	Session *handler.SessionHandler
	WS      *handler.WSHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	submitLimiter *middleware.RateLimiter,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	validator.Setup()
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())
	router.Use(middleware.NoStore())

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// ─── 1. Auth Group (no token required) ─────────────────────────────
	auth := router.Group("/api/v1/auth")
	{
		auth.GET("/status", handlers.Auth.Status)
		auth.PUT("/credentials", handlers.Auth.SetCredentials)
		auth.DELETE("/credentials", handlers.Auth.Logout)
	}

	// ─── 2. Quiz Group (stored bearer token) ───────────────────────────
	api := router.Group("/api/v1")
	api.Use(middleware.RequireBackendToken(authService))
	{
		api.GET("/courses/:course_id/quizzes", handlers.Quiz.ListQuizzes)

		api.POST("/sessions", handlers.Session.OpenSession)
		sessions := api.Group("/sessions/:course_id/:quiz_id")
		{
			sessions.GET("", handlers.Session.GetSession)
			sessions.DELETE("", handlers.Session.CloseSession)
			sessions.POST("/select", handlers.Session.SelectOption)
			sessions.POST("/goto", handlers.Session.GoTo)
			sessions.POST("/next", handlers.Session.Next)
			sessions.POST("/prev", handlers.Session.Prev)
			sessions.POST("/submit", submitLimiter.Middleware(), handlers.Session.Submit)
			sessions.POST("/blur", handlers.Session.Blur)
		}

		api.POST("/app/state", handlers.Session.AppState)
	}

	// ─── 3. WebSocket Group ────────────────────────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireBackendToken(authService))
	{
		ws.GET("/sessions/:course_id/:quiz_id/stream", handlers.WS.SessionStream)
	}

	return router
}
