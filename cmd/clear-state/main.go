package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/stemsi/quizdesk/internal/config"
	"github.com/stemsi/quizdesk/internal/logger"
	"github.com/stemsi/quizdesk/internal/repository"
	"github.com/stemsi/quizdesk/internal/session"
)

func main() {
	var quizID, courseID string
	var answers, dryRun bool
	flag.StringVar(&quizID, "quiz", "", "Quiz ID")
	flag.StringVar(&courseID, "course", "", "Course ID")
	flag.BoolVar(&answers, "answers", false, "Clear the admin answer-key draft instead of the student attempt")
	flag.BoolVar(&dryRun, "dry-run", false, "Show the saved record without deleting it")
	flag.Parse()

	if quizID == "" || courseID == "" {
		fmt.Println("Usage: clear-state -quiz <id> -course <id> [-answers] [-dry-run]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx := context.Background()

	store, closeStore, err := repository.OpenStore(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open store")
	}
	defer closeStore()

	key := config.StorageKey.QuizStateKey(quizID, courseID)
	if answers {
		key = config.StorageKey.QuizAnswersKey(quizID, courseID)
	}

	raw, err := store.GetItem(ctx, key)
	if errors.Is(err, repository.ErrNotFound) {
		color.Yellow("Nothing saved under %s", key)
		return
	}
	if err != nil {
		log.Fatal().Err(err).Str("key", key).Msg("Failed to read saved state")
	}

	if snap, err := session.DecodeSnapshot([]byte(raw)); err != nil {
		color.Yellow("%s holds an unreadable record: %v", key, err)
	} else {
		fmt.Printf("%s: %d answered, question %d, %s left at last save (%s)\n",
			key,
			snap.AnsweredCount(),
			snap.CurrentQuestion+1,
			session.FormatClock(snap.TimeRemaining),
			time.UnixMilli(snap.LastSaved).Local().Format("2006-01-02 15:04:05"),
		)
	}

	if dryRun {
		return
	}
	if err := store.RemoveItem(ctx, key); err != nil {
		log.Fatal().Err(err).Str("key", key).Msg("Failed to clear saved state")
	}
	color.Green("Cleared %s", key)
}
