// Package session implements the quiz session manager: the in-memory answer
// set, snapshot persistence, the wall-clock countdown and the submission
// pipeline.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/quizdesk/internal/model"
)

var (
	ErrNoQuestions    = errors.New("quiz has no questions")
	ErrSubmitted      = errors.New("quiz already submitted")
	ErrSubmitInFlight = errors.New("submission already in progress")
	ErrReadOnly       = errors.New("session is read-only")
	ErrInvalidIndex   = errors.New("question or option index out of range")
	ErrClosed         = errors.New("session closed")
	ErrTimeUp         = errors.New("time is up")
	ErrNotReady       = errors.New("saved state not loaded yet")
	ErrMissingBudget  = errors.New("timed session needs a positive time budget")
	ErrNoPersister    = errors.New("session mode needs a persister")
)

// Status is the session state machine position.
type Status string

const (
	StatusRunning        Status = "running"
	StatusSubmitting     Status = "submitting"
	StatusAutoSubmitting Status = "auto_submitting"
	StatusSubmitted      Status = "submitted"
	StatusReadOnly       Status = "read_only"
)

// Submitter delivers the final answer list to the backend.
type Submitter interface {
	Submit(ctx context.Context, quizID, courseID string, answers []model.Answer) (*model.SubmitResult, error)
}

// Options configures a Session.
type Options struct {
	QuizID    string
	CourseID  string
	Mode      model.SessionMode
	Questions []model.Question
	// Selections seeds the answer set, e.g. from an already-submitted quiz.
	Selections map[int]int

	Persister *Persister
	Submitter Submitter
	Clock     Clock

	Budget        time.Duration
	CountdownSave time.Duration
	PeriodicSave  time.Duration
	SaveTimeout   time.Duration
	SubmitTimeout time.Duration

	Logger zerolog.Logger
}

// Session is one open quiz. All methods are safe for concurrent use.
type Session struct {
	mu sync.Mutex

	quizID    string
	courseID  string
	mode      model.SessionMode
	questions []model.Question

	selected  map[int]int
	current   int
	startedAt time.Time
	remaining int
	status    Status
	restored  bool // saved state applied, mutations allowed
	restoring bool
	closed    bool

	checkpoint int
	timerGen   uint64
	countdown  Timer
	expiry     Timer
	periodic   Timer

	persist   *Persister
	submitter Submitter
	clock     Clock

	budget        time.Duration
	countdownSave time.Duration
	periodicSave  time.Duration
	saveTimeout   time.Duration
	submitTimeout time.Duration

	events  *broadcaster
	pending sync.WaitGroup
	log     zerolog.Logger
}

// New builds a session. Timers start on Restore.
func New(opts Options) (*Session, error) {
	if len(opts.Questions) == 0 {
		return nil, ErrNoQuestions
	}
	if opts.Mode == "" {
		opts.Mode = model.SessionModeTimed
	}
	if opts.Mode == model.SessionModeTimed && opts.Budget <= 0 {
		return nil, ErrMissingBudget
	}
	if opts.Mode != model.SessionModeReview && opts.Persister == nil {
		return nil, ErrNoPersister
	}
	if opts.Clock == nil {
		opts.Clock = RealClock()
	}
	if opts.SaveTimeout <= 0 {
		opts.SaveTimeout = 5 * time.Second
	}
	if opts.SubmitTimeout <= 0 {
		opts.SubmitTimeout = 30 * time.Second
	}

	s := &Session{
		quizID:        opts.QuizID,
		courseID:      opts.CourseID,
		mode:          opts.Mode,
		questions:     opts.Questions,
		selected:      sanitizeSelections(opts.Selections, opts.Questions),
		startedAt:     opts.Clock.Now(),
		status:        StatusRunning,
		persist:       opts.Persister,
		submitter:     opts.Submitter,
		clock:         opts.Clock,
		budget:        opts.Budget,
		countdownSave: opts.CountdownSave,
		periodicSave:  opts.PeriodicSave,
		saveTimeout:   opts.SaveTimeout,
		submitTimeout: opts.SubmitTimeout,
		events:        newBroadcaster(),
		log: opts.Logger.With().
			Str("component", "session").
			Str("quiz_id", opts.QuizID).
			Str("course_id", opts.CourseID).
			Str("mode", string(opts.Mode)).
			Logger(),
	}
	if s.mode == model.SessionModeTimed {
		s.remaining = int(s.budget / time.Second)
	}
	if s.mode == model.SessionModeReview {
		s.status = StatusReadOnly
	}
	return s, nil
}

func (s *Session) QuizID() string          { return s.quizID }
func (s *Session) CourseID() string        { return s.courseID }
func (s *Session) Mode() model.SessionMode { return s.mode }

// SelectOption toggles optionIndex on questionIndex: picking the current
// choice clears it, anything else replaces it. The change is written
// without verification.
func (s *Session) SelectOption(questionIndex, optionIndex int) (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.mutableLocked(); err != nil {
		return s.viewLocked(), err
	}
	if s.mode == model.SessionModeTimed && s.remainingLocked() <= 0 {
		return s.viewLocked(), ErrTimeUp
	}
	if questionIndex < 0 || questionIndex >= len(s.questions) {
		return s.viewLocked(), fmt.Errorf("%w: question %d", ErrInvalidIndex, questionIndex)
	}
	if optionIndex < 0 || optionIndex >= len(s.questions[questionIndex].Options) {
		return s.viewLocked(), fmt.Errorf("%w: option %d", ErrInvalidIndex, optionIndex)
	}

	if prev, ok := s.selected[questionIndex]; ok && prev == optionIndex {
		delete(s.selected, questionIndex)
	} else {
		s.selected[questionIndex] = optionIndex
	}

	// Staged under the lock so revisions follow mutation order.
	s.persist.SaveImmediate(s.stageLocked())
	return s.viewLocked(), nil
}

// GoTo moves to questionIndex, clamped into range, and starts a verified
// save. Save failures are logged only.
func (s *Session) GoTo(questionIndex int) (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.goToLocked(questionIndex)
}

// Next moves forward one question, stopping at the last.
func (s *Session) Next() (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.goToLocked(s.current + 1)
}

// Prev moves back one question, stopping at the first.
func (s *Session) Prev() (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.goToLocked(s.current - 1)
}

func (s *Session) goToLocked(questionIndex int) (View, error) {
	if s.closed {
		return s.viewLocked(), ErrClosed
	}
	if s.status == StatusSubmitted {
		return s.viewLocked(), ErrSubmitted
	}
	if s.status != StatusReadOnly && !s.restored {
		return s.viewLocked(), ErrNotReady
	}

	s.current = clamp(questionIndex, 0, len(s.questions)-1)

	if s.status != StatusReadOnly {
		staged := s.stageLocked()
		s.goSave(staged, "navigation")
	}
	return s.viewLocked(), nil
}

// Snapshot returns the in-memory state in its persisted shape.
func (s *Session) Snapshot() model.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Answers returns the submission payload for the current selections.
func (s *Session) Answers() []model.Answer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.answersLocked()
}

// Subscribe streams session events until release is called or the session closes.
func (s *Session) Subscribe() (<-chan Event, func()) {
	return s.events.subscribe()
}

// WaitIdle blocks until background saves and submissions started so far finish.
func (s *Session) WaitIdle() {
	s.pending.Wait()
}

func (s *Session) mutableLocked() error {
	if s.closed {
		return ErrClosed
	}
	switch s.status {
	case StatusSubmitted:
		return ErrSubmitted
	case StatusReadOnly:
		return ErrReadOnly
	case StatusSubmitting, StatusAutoSubmitting:
		return ErrSubmitInFlight
	}
	if !s.restored {
		return ErrNotReady
	}
	return nil
}

func (s *Session) snapshotLocked() model.Snapshot {
	selected := make(map[int]int, len(s.selected))
	for k, v := range s.selected {
		selected[k] = v
	}
	return model.Snapshot{
		SelectedOptions: selected,
		CurrentQuestion: s.current,
		TimeRemaining:   s.remainingLocked(),
		QuizStartTime:   s.startedAt.UnixMilli(),
		Version:         model.SnapshotVersion,
	}
}

func (s *Session) stageLocked() Staged {
	return s.persist.Stage(s.snapshotLocked())
}

// remainingLocked is recomputed from the start time while the clock runs.
func (s *Session) remainingLocked() int {
	if s.mode != model.SessionModeTimed {
		return 0
	}
	if s.status == StatusRunning {
		return RemainingSeconds(s.startedAt, s.clock.Now(), s.budget)
	}
	return s.remaining
}

func (s *Session) answersLocked() []model.Answer {
	answers := make([]model.Answer, 0, len(s.questions))
	for i, q := range s.questions {
		a := model.Answer{QuestionID: q.ID}
		if oi, ok := s.selected[i]; ok && oi >= 0 && oi < len(q.Options) {
			id := q.Options[oi].ID
			a.SelectedOptionID = &id
		}
		answers = append(answers, a)
	}
	return answers
}

// goSave runs a verified save in the background.
func (s *Session) goSave(staged Staged, reason string) {
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		s.saveVerified(staged, reason)
	}()
}

func (s *Session) saveVerified(staged Staged, reason string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), s.saveTimeout)
	defer cancel()

	err := s.persist.SaveVerified(ctx, staged)
	switch {
	case err == nil:
		s.events.publish(Event{Type: EventSaved, TimeRemaining: staged.Snapshot.TimeRemaining, Message: reason})
		return true
	case errors.Is(err, ErrSaveInProgress), errors.Is(err, ErrSaveSuperseded):
		s.log.Debug().Err(err).Str("reason", reason).Msg("Verified save skipped")
	default:
		s.log.Error().Err(err).Str("reason", reason).Msg("Verified save failed")
	}
	return false
}

// SelectionsFromQuestions derives selections from each question's
// selected_option_id, as returned for submitted quizzes.
func SelectionsFromQuestions(questions []model.Question) map[int]int {
	out := make(map[int]int)
	for i, q := range questions {
		if q.SelectedOptionID == nil {
			continue
		}
		if oi := q.OptionIndex(*q.SelectedOptionID); oi >= 0 {
			out[i] = oi
		}
	}
	return out
}

// SelectionsFromAnswers maps an answer list back onto option indexes.
func SelectionsFromAnswers(questions []model.Question, answers []model.Answer) map[int]int {
	byQuestion := make(map[model.ID]model.ID, len(answers))
	for _, a := range answers {
		if a.SelectedOptionID != nil {
			byQuestion[a.QuestionID] = *a.SelectedOptionID
		}
	}
	out := make(map[int]int)
	for i, q := range questions {
		if id, ok := byQuestion[q.ID]; ok {
			if oi := q.OptionIndex(id); oi >= 0 {
				out[i] = oi
			}
		}
	}
	return out
}

// sanitizeSelections drops entries outside the question and option ranges.
func sanitizeSelections(in map[int]int, questions []model.Question) map[int]int {
	out := make(map[int]int, len(in))
	for qi, oi := range in {
		if qi < 0 || qi >= len(questions) {
			continue
		}
		if oi < 0 || oi >= len(questions[qi].Options) {
			continue
		}
		out[qi] = oi
	}
	return out
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
