package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/stemsi/quizdesk/internal/model"
)

// RejectedError is returned when the backend answered without its success flag.
type RejectedError struct {
	Message string
}

func (e *RejectedError) Error() string {
	if e.Message == "" {
		return "submission rejected"
	}
	return fmt.Sprintf("submission rejected: %s", e.Message)
}

// Submit sends one answer per question, in question order, with null for
// unanswered ones. It runs at most once successfully; a call while another
// is in flight or after success returns an error and changes nothing. On
// failure the answers and the persisted snapshot are kept for a retry.
func (s *Session) Submit(ctx context.Context) (*model.SubmitResult, error) {
	return s.submit(ctx, false)
}

func (s *Session) autoSubmit() {
	ctx, cancel := context.WithTimeout(context.Background(), s.submitTimeout)
	defer cancel()

	if _, err := s.submit(ctx, true); err != nil {
		if errors.Is(err, ErrSubmitInFlight) || errors.Is(err, ErrSubmitted) {
			return
		}
		s.log.Error().Err(err).Msg("Auto-submit failed")
	}
}

// goAutoSubmit submits in the background.
func (s *Session) goAutoSubmit() {
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		s.autoSubmit()
	}()
}

func (s *Session) submit(ctx context.Context, auto bool) (*model.SubmitResult, error) {
	s.mu.Lock()
	if err := s.mutableLocked(); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if s.submitter == nil {
		s.mu.Unlock()
		return nil, ErrReadOnly
	}

	if auto {
		s.status = StatusAutoSubmitting
		s.remaining = 0
		// Nothing left to count down; a failed auto-submit is retried by
		// the user or on the next foreground.
		s.stopTimersLocked()
	} else {
		s.remaining = s.remainingNowLocked()
		s.status = StatusSubmitting
	}
	answers := s.answersLocked()
	s.mu.Unlock()

	if auto {
		s.events.publish(Event{Type: EventExpired, Message: "time is up, submitting"})
	}

	s.log.Info().Bool("auto", auto).Int("answers", len(answers)).Msg("Submitting quiz")
	res, err := s.submitter.Submit(ctx, s.quizID, s.courseID, answers)
	if err == nil && (res == nil || !res.Success) {
		msg := ""
		if res != nil {
			msg = res.Message
		}
		err = &RejectedError{Message: msg}
	}

	if err != nil {
		s.mu.Lock()
		s.status = StatusRunning
		expired := false
		if !auto {
			// Ticks stop while a submission is in flight.
			expired = s.startTimersLocked()
		}
		s.mu.Unlock()

		s.log.Warn().Err(err).Bool("auto", auto).Msg("Submission failed")
		s.events.publish(Event{Type: EventSubmitFailed, Message: err.Error()})
		if expired {
			s.goAutoSubmit()
		}
		return nil, err
	}

	s.mu.Lock()
	s.status = StatusSubmitted
	s.stopTimersLocked()
	s.mu.Unlock()

	clearCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.saveTimeout)
	defer cancel()
	if err := s.persist.Clear(clearCtx); err != nil {
		s.log.Error().Err(err).Msg("Failed to clear persisted state after submit")
	}

	s.log.Info().Bool("auto", auto).Msg("Quiz submitted")
	s.events.publish(Event{Type: EventSubmitted, Message: res.Message, State: ptr(s.View())})
	return res, nil
}

func (s *Session) remainingNowLocked() int {
	if s.mode != model.SessionModeTimed {
		return 0
	}
	return RemainingSeconds(s.startedAt, s.clock.Now(), s.budget)
}

func ptr[T any](v T) *T {
	return &v
}

// SubmitFunc adapts a function to Submitter.
type SubmitFunc func(ctx context.Context, quizID, courseID string, answers []model.Answer) (*model.SubmitResult, error)

func (f SubmitFunc) Submit(ctx context.Context, quizID, courseID string, answers []model.Answer) (*model.SubmitResult, error) {
	return f(ctx, quizID, courseID, answers)
}
