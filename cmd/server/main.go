package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/quizdesk/internal/backend"
	"github.com/stemsi/quizdesk/internal/config"
	"github.com/stemsi/quizdesk/internal/handler"
	"github.com/stemsi/quizdesk/internal/logger"
	"github.com/stemsi/quizdesk/internal/middleware"
	"github.com/stemsi/quizdesk/internal/repository"
	"github.com/stemsi/quizdesk/internal/router"
	"github.com/stemsi/quizdesk/internal/service"
	"github.com/stemsi/quizdesk/internal/session"
	"github.com/stemsi/quizdesk/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("store", cfg.StoreDriver).
		Str("backend", cfg.BackendURL).
		Msg("Starting quizdesk")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Open Snapshot Store ───────────────────────────────────────────
	store, closeStore, err := repository.OpenStore(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open snapshot store")
	}
	defer closeStore()

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	var workers sync.WaitGroup

	snapshotWriter := worker.NewSnapshotWorker(cfg.SnapshotQueueSize, log)
	workers.Add(1)
	go func() {
		defer workers.Done()
		snapshotWriter.Start(workerCtx)
	}()

	// ─── Initialize Services ──────────────────────────────────────────
	authService := service.NewAuthService(store)
	api := backend.NewClient(cfg.BackendURL, cfg.BackendTimeout, nil, authService, log)
	sessionService := service.NewQuizSessionService(cfg, store, snapshotWriter, api, authService, session.RealClock(), log)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Auth:    handler.NewAuthHandler(authService, log),
		Quiz:    handler.NewQuizHandler(sessionService),
		Session: handler.NewSessionHandler(sessionService, log),
		WS:      handler.NewWSHandler(sessionService, log, cfg.AllowedOrigins, cfg.BackendTimeout),
	}

	// Submissions are limited to 5 per 10 seconds per client.
	submitLimiter := middleware.NewRateLimiter(ctx, 5, 10*time.Second)

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(authService, handlers, submitLimiter, cfg)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:    "127.0.0.1:" + cfg.ServerPort,
		Handler: r,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Save every open session the way the app does when backgrounded.
	saveCtx, saveCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer saveCancel()
	sessionService.Shutdown(saveCtx)

	// 3. Stop background workers and wait for queued writes to drain.
	workerCancel()
	workers.Wait()

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
