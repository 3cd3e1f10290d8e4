package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stemsi/quizdesk/internal/model"
)

// Restore hydrates the session once per lifetime and starts its timers.
// A caller-supplied existing snapshot wins over the persisted one; both are
// revalidated against the clock. Later calls return the current view.
// Mutations fail with ErrNotReady until it succeeds. A failed read leaves
// the record untouched and the session unrestored so the next open retries.
func (s *Session) Restore(ctx context.Context, existing *model.Snapshot) (View, error) {
	s.mu.Lock()
	if s.closed {
		defer s.mu.Unlock()
		return s.viewLocked(), ErrClosed
	}
	if s.restored {
		defer s.mu.Unlock()
		return s.viewLocked(), nil
	}
	if s.status != StatusRunning {
		s.restored = true
		defer s.mu.Unlock()
		return s.viewLocked(), nil
	}
	if s.restoring {
		defer s.mu.Unlock()
		return s.viewLocked(), ErrNotReady
	}
	s.restoring = true
	s.mu.Unlock()

	snap := s.checkExisting(ctx, existing)
	source := "existing_state"
	if snap == nil {
		source = "storage"
		loaded, err := s.persist.Load(ctx)
		if err != nil {
			s.log.Warn().Err(err).Msg("Could not read persisted state, keeping it for the next open")
			s.mu.Lock()
			s.restoring = false
			view := s.viewLocked()
			s.mu.Unlock()
			return view, fmt.Errorf("%w: %w", ErrNotReady, err)
		}
		snap = loaded
	}

	s.mu.Lock()
	s.restoring = false
	if s.closed {
		defer s.mu.Unlock()
		return s.viewLocked(), ErrClosed
	}
	s.restored = true
	fresh := snap == nil
	if fresh {
		s.startedAt = s.clock.Now()
	} else {
		s.hydrateLocked(snap)
	}
	expired := s.startTimersLocked()
	var anchor Staged
	if fresh {
		anchor = s.stageLocked()
	}
	view := s.viewLocked()
	s.mu.Unlock()

	if fresh {
		// Anchors the start time so a restart cannot reset the budget.
		s.persist.SaveImmediate(anchor)
		s.log.Info().Msg("Started fresh session")
	} else {
		s.log.Info().
			Str("source", source).
			Int("answered", len(view.SelectedOptions)).
			Int("current_question", view.CurrentQuestion).
			Int("time_remaining", view.TimeRemaining).
			Msg("Restored session")
	}

	if expired {
		s.goAutoSubmit()
	}
	s.events.publish(Event{Type: EventState, TimeRemaining: view.TimeRemaining, State: &view})
	return view, nil
}

// checkExisting applies the load-time checks to a handed-off snapshot.
// An expired one also removes the stored record.
func (s *Session) checkExisting(ctx context.Context, existing *model.Snapshot) *model.Snapshot {
	if existing == nil {
		return nil
	}
	if existing.SelectedOptions == nil || existing.QuizStartTime <= 0 {
		s.log.Warn().Msg("Ignoring malformed existing state")
		return nil
	}

	snap := *existing
	if s.mode == model.SessionModeTimed {
		snap.TimeRemaining = RemainingSeconds(time.UnixMilli(snap.QuizStartTime), s.clock.Now(), s.budget)
		if snap.TimeRemaining <= 0 {
			s.log.Info().Msg("Existing state expired, clearing")
			s.persist.Discard(ctx)
			return nil
		}
	}
	return &snap
}

func (s *Session) hydrateLocked(snap *model.Snapshot) {
	s.selected = sanitizeSelections(snap.SelectedOptions, s.questions)
	s.current = clamp(snap.CurrentQuestion, 0, len(s.questions)-1)
	s.startedAt = time.UnixMilli(snap.QuizStartTime)
}

// Blur saves with verification when the screen loses focus. If a verified
// save is already running it falls back to an unverified write so the
// latest state is still queued.
func (s *Session) Blur(ctx context.Context) error {
	s.mu.Lock()
	if s.closed || s.status != StatusRunning || s.persist == nil || !s.restored {
		s.mu.Unlock()
		return nil
	}
	staged := s.stageLocked()
	s.mu.Unlock()

	return s.flush(ctx, staged, "blur")
}

func (s *Session) flush(ctx context.Context, staged Staged, reason string) error {
	err := s.persist.SaveVerified(ctx, staged)
	switch {
	case err == nil:
		s.events.publish(Event{Type: EventSaved, TimeRemaining: staged.Snapshot.TimeRemaining, Message: reason})
		return nil
	case errors.Is(err, ErrSaveSuperseded):
		return nil
	case errors.Is(err, ErrSaveInProgress):
		s.mu.Lock()
		staged = s.stageLocked()
		s.persist.SaveImmediate(staged)
		s.mu.Unlock()
		return nil
	default:
		s.log.Error().Err(err).Str("reason", reason).Msg("Verified save failed")
		return err
	}
}

// Background saves with verification as the app leaves the foreground.
// Timers keep running; the expiry still fires if the process stays alive.
func (s *Session) Background(ctx context.Context) error {
	return s.Blur(ctx)
}

// Foreground recomputes the remaining time from the start time and
// re-arms the timers, replacing any that were armed before. If the budget
// ran out while away the quiz is submitted.
func (s *Session) Foreground() View {
	s.mu.Lock()
	if s.closed || s.status != StatusRunning || s.mode != model.SessionModeTimed || !s.restored {
		defer s.mu.Unlock()
		return s.viewLocked()
	}
	expired := s.startTimersLocked()
	view := s.viewLocked()
	s.mu.Unlock()

	if expired {
		s.goAutoSubmit()
	}
	s.events.publish(Event{Type: EventState, TimeRemaining: view.TimeRemaining, State: &view})
	return view
}

// Close saves, stops the timers and ends the event stream. The session
// cannot be used afterwards.
func (s *Session) Close(ctx context.Context) error {
	err := s.Blur(ctx)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.stopTimersLocked()
	s.mu.Unlock()

	s.WaitIdle()
	s.events.close()
	return err
}
