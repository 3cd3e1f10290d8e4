package session

import (
	"time"

	"github.com/stemsi/quizdesk/internal/model"
)

// startTimersLocked replaces any running timers with fresh ones armed from
// the recomputed remaining time. It reports true when no time is left, in
// which case nothing is armed and the caller must submit.
func (s *Session) startTimersLocked() bool {
	s.stopTimersLocked()
	if s.mode != model.SessionModeTimed || s.status != StatusRunning || s.closed {
		return false
	}

	now := s.clock.Now()
	s.remaining = RemainingSeconds(s.startedAt, now, s.budget)
	if s.remaining <= 0 {
		return true
	}

	gen := s.timerGen
	s.checkpoint = checkpointFor(s.remaining, s.countdownSave)

	deadline := s.startedAt.Add(s.budget)
	if s.startedAt.After(now) {
		deadline = now.Add(s.budget)
	}
	s.expiry = s.clock.AfterFunc(deadline.Sub(now), func() { s.onExpiry(gen) })
	s.countdown = s.clock.AfterFunc(time.Second, func() { s.onTick(gen) })
	if s.periodicSave > 0 {
		s.periodic = s.clock.AfterFunc(s.periodicSave, func() { s.onPeriodic(gen) })
	}

	s.log.Debug().Int("time_remaining", s.remaining).Msg("Timers started")
	return false
}

// stopTimersLocked cancels all timers. Bumping the generation also disarms
// callbacks already past their Stop window.
func (s *Session) stopTimersLocked() {
	s.timerGen++
	for _, t := range []Timer{s.countdown, s.expiry, s.periodic} {
		if t != nil {
			t.Stop()
		}
	}
	s.countdown, s.expiry, s.periodic = nil, nil, nil
}

func (s *Session) onExpiry(gen uint64) {
	s.mu.Lock()
	if gen != s.timerGen || s.status != StatusRunning {
		s.mu.Unlock()
		return
	}
	s.remaining = 0
	s.mu.Unlock()

	s.log.Info().Msg("Time budget exhausted, submitting")
	s.autoSubmit()
}

func (s *Session) onTick(gen uint64) {
	s.mu.Lock()
	if gen != s.timerGen || s.status != StatusRunning {
		s.mu.Unlock()
		return
	}

	s.remaining = RemainingSeconds(s.startedAt, s.clock.Now(), s.budget)
	remaining := s.remaining
	if remaining <= 0 {
		s.mu.Unlock()
		s.autoSubmit()
		return
	}

	var checkpoint *Staged
	if cp := checkpointFor(remaining, s.countdownSave); cp < s.checkpoint {
		s.checkpoint = cp
		staged := s.stageLocked()
		checkpoint = &staged
	}
	s.countdown = s.clock.AfterFunc(time.Second, func() { s.onTick(gen) })
	s.mu.Unlock()

	s.events.publish(Event{Type: EventTick, TimeRemaining: remaining})
	if checkpoint != nil {
		s.saveVerified(*checkpoint, "countdown")
	}
}

func (s *Session) onPeriodic(gen uint64) {
	s.mu.Lock()
	if gen != s.timerGen || s.status != StatusRunning {
		s.mu.Unlock()
		return
	}
	staged := s.stageLocked()
	s.periodic = s.clock.AfterFunc(s.periodicSave, func() { s.onPeriodic(gen) })
	s.mu.Unlock()

	s.saveVerified(staged, "periodic")
}

// checkpointFor numbers the countdown save window remaining falls in; a
// verified save runs each time the number drops.
func checkpointFor(remaining int, every time.Duration) int {
	step := int(every / time.Second)
	if step <= 0 {
		return 0
	}
	return (remaining + step - 1) / step
}
