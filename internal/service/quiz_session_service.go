package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/quizdesk/internal/backend"
	"github.com/stemsi/quizdesk/internal/config"
	"github.com/stemsi/quizdesk/internal/logger"
	"github.com/stemsi/quizdesk/internal/model"
	"github.com/stemsi/quizdesk/internal/repository"
	"github.com/stemsi/quizdesk/internal/session"
)

// Quiz session errors.
var (
	ErrSessionNotFound      = errors.New("quiz session is not open")
	ErrAuthoringNeedsAdmin  = errors.New("only admins can edit an answer key")
	ErrUnknownAppState      = errors.New("unknown app state")
	ErrNoQuestionsAvailable = errors.New("quiz has no questions")
)

// App lifecycle states reported by the shell.
const (
	AppStateActive     = "active"
	AppStateBackground = "background"
	AppStateInactive   = "inactive"
)

// QuizBackend is the part of the LMS API the sessions use.
type QuizBackend interface {
	ListCourseQuizzes(ctx context.Context, courseID string) ([]model.Quiz, error)
	FindQuiz(ctx context.Context, courseID, quizID string) (*model.Quiz, error)
	SubmitQuiz(ctx context.Context, sub model.QuizSubmission) (*model.SubmitResult, error)
	SubmitAnswerKey(ctx context.Context, courseID, quizID string, sub model.AnswerKeySubmission) (*model.SubmitResult, error)
	GetAnswerKey(ctx context.Context, courseID, quizID string) ([]model.Answer, error)
}

// QuizSummary is one quiz of the course list, with resume details for an
// unfinished attempt.
type QuizSummary struct {
	ID            model.ID        `json:"id"`
	Title         string          `json:"title"`
	IsSubmitted   bool            `json:"is_submitted"`
	QuestionCount int             `json:"question_count"`
	ExistingState *model.Snapshot `json:"existing_state,omitempty"`
	Resume        *ResumeInfo     `json:"resume,omitempty"`
}

// ResumeInfo summarises a saved attempt for the list screen.
type ResumeInfo struct {
	AnsweredCount      int    `json:"answered_count"`
	TimeRemaining      int    `json:"time_remaining"`
	TimeRemainingLabel string `json:"time_remaining_label"`
}

type sessionKey struct {
	quizID   string
	courseID string
}

// QuizSessionService keeps one Session per open quiz screen.
type QuizSessionService struct {
	cfg     *config.Config
	store   repository.KeyValueStore
	writer  session.AsyncWriter
	backend QuizBackend
	auth    *AuthService
	clock   session.Clock
	log     zerolog.Logger

	mu       sync.Mutex
	sessions map[sessionKey]*session.Session
}

// NewQuizSessionService creates a new QuizSessionService.
func NewQuizSessionService(
	cfg *config.Config,
	store repository.KeyValueStore,
	writer session.AsyncWriter,
	api QuizBackend,
	auth *AuthService,
	clock session.Clock,
	log zerolog.Logger,
) *QuizSessionService {
	if clock == nil {
		clock = session.RealClock()
	}
	return &QuizSessionService{
		cfg:      cfg,
		store:    store,
		writer:   writer,
		backend:  api,
		auth:     auth,
		clock:    clock,
		log:      logger.Component(log, "quiz_session_service"),
		sessions: make(map[sessionKey]*session.Session),
	}
}

// ListQuizzes returns the course quizzes. Each unsubmitted quiz with a live
// saved attempt carries that attempt, time-checked and written back, so the
// quiz screen can open without reading storage again. Expired or malformed
// attempts are deleted on the way.
func (s *QuizSessionService) ListQuizzes(ctx context.Context, courseID string) ([]QuizSummary, error) {
	quizzes, err := s.backend.ListCourseQuizzes(ctx, courseID)
	if err != nil {
		return nil, s.checkAuth(ctx, err)
	}
	role, err := s.auth.Role(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]QuizSummary, 0, len(quizzes))
	for _, q := range quizzes {
		summary := QuizSummary{
			ID:            q.ID,
			Title:         q.Title,
			IsSubmitted:   q.IsSubmitted,
			QuestionCount: len(q.Questions),
		}
		if !q.IsSubmitted && role == RoleStudent {
			snap := s.resumeState(ctx, q.ID.String(), courseID)
			if snap != nil {
				summary.ExistingState = snap
				summary.Resume = &ResumeInfo{
					AnsweredCount:      snap.AnsweredCount(),
					TimeRemaining:      snap.TimeRemaining,
					TimeRemainingLabel: session.FormatResumeLabel(snap.TimeRemaining),
				}
			}
		}
		out = append(out, summary)
	}
	return out, nil
}

func (s *QuizSessionService) resumeState(ctx context.Context, quizID, courseID string) *model.Snapshot {
	if sess, ok := s.lookup(quizID, courseID); ok {
		if v := sess.View(); v.Status == session.StatusRunning && v.Mode == model.SessionModeTimed {
			snap := sess.Snapshot()
			return &snap
		}
		return nil
	}

	p := s.newPersister(config.StorageKey.QuizStateKey(quizID, courseID), s.cfg.TimeBudget)
	snap, err := p.Load(ctx)
	if err != nil {
		s.log.Warn().Err(err).Str("quiz_id", quizID).Msg("Could not read saved attempt")
		return nil
	}
	if snap == nil {
		return nil
	}
	if err := p.Store(ctx, *snap); err != nil {
		s.log.Warn().Err(err).Str("quiz_id", quizID).Msg("Could not refresh saved attempt")
	}
	return snap
}

// Open starts or returns the session of one quiz screen. Questions come from
// the request or, failing that, from the backend listing. The mode follows
// the request, the quiz state and the stored role: admins and submitted
// quizzes get review, authoring is admin-only.
func (s *QuizSessionService) Open(ctx context.Context, req model.OpenSessionRequest) (session.View, error) {
	if sess, ok := s.lookup(req.QuizID, req.CourseID); ok {
		return sess.Restore(ctx, req.ExistingState)
	}

	role, err := s.auth.Role(ctx)
	if err != nil {
		return session.View{}, err
	}

	questions := model.NormalizeQuestions(req.Questions)
	submitted := req.IsSubmitted
	if len(questions) == 0 {
		quiz, err := s.backend.FindQuiz(ctx, req.CourseID, req.QuizID)
		if err != nil {
			return session.View{}, s.checkAuth(ctx, err)
		}
		questions = model.NormalizeQuestions(quiz.Questions)
		submitted = submitted || quiz.IsSubmitted
	}
	if len(questions) == 0 {
		return session.View{}, ErrNoQuestionsAvailable
	}

	opts := session.Options{
		QuizID:        req.QuizID,
		CourseID:      req.CourseID,
		Questions:     questions,
		Clock:         s.clock,
		Budget:        s.cfg.TimeBudget,
		CountdownSave: s.cfg.CountdownSave,
		PeriodicSave:  s.cfg.PeriodicSave,
		SubmitTimeout: s.cfg.BackendTimeout,
		Logger:        s.log,
	}
	existing := req.ExistingState

	switch {
	case req.Mode == model.SessionModeAuthoring:
		if role != RoleAdmin {
			return session.View{}, ErrAuthoringNeedsAdmin
		}
		opts.Mode = model.SessionModeAuthoring
		opts.Persister = s.newPersister(config.StorageKey.QuizAnswersKey(req.QuizID, req.CourseID), 0)
		opts.Submitter = session.SubmitFunc(s.submitAnswerKey)
		opts.Selections = session.SelectionsFromQuestions(questions)
		if submitted {
			opts.Selections = s.loadAnswerKey(ctx, req, questions, opts.Selections)
		}
		existing = nil
	case req.Mode == model.SessionModeReview || submitted || role == RoleAdmin:
		opts.Mode = model.SessionModeReview
		opts.Selections = session.SelectionsFromQuestions(questions)
		existing = nil
	default:
		opts.Mode = model.SessionModeTimed
		opts.Persister = s.newPersister(config.StorageKey.QuizStateKey(req.QuizID, req.CourseID), s.cfg.TimeBudget)
		opts.Submitter = session.SubmitFunc(s.submitStudent)
	}

	sess, err := session.New(opts)
	if err != nil {
		return session.View{}, err
	}

	s.mu.Lock()
	key := sessionKey{req.QuizID, req.CourseID}
	if open, ok := s.sessions[key]; ok {
		// Lost a race with a concurrent open; the new session never started.
		s.mu.Unlock()
		return open.Restore(ctx, req.ExistingState)
	}
	s.sessions[key] = sess
	s.mu.Unlock()

	s.log.Info().
		Str("quiz_id", req.QuizID).
		Str("course_id", req.CourseID).
		Str("mode", string(opts.Mode)).
		Int("questions", len(questions)).
		Msg("Quiz session opened")

	return sess.Restore(ctx, existing)
}

func (s *QuizSessionService) loadAnswerKey(ctx context.Context, req model.OpenSessionRequest, questions []model.Question, fallback map[int]int) map[int]int {
	answers, err := s.backend.GetAnswerKey(ctx, req.CourseID, req.QuizID)
	if err != nil {
		s.log.Warn().Err(s.checkAuth(ctx, err)).Str("quiz_id", req.QuizID).Msg("Could not load answer key")
		return fallback
	}
	if len(answers) == 0 {
		return fallback
	}
	return session.SelectionsFromAnswers(questions, answers)
}

// Session returns an open session.
func (s *QuizSessionService) Session(quizID, courseID string) (*session.Session, error) {
	sess, ok := s.lookup(quizID, courseID)
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// Submit submits an open session. The session stays registered so the
// screen can render the final state until it closes.
func (s *QuizSessionService) Submit(ctx context.Context, quizID, courseID string) (*model.SubmitResult, session.View, error) {
	sess, err := s.Session(quizID, courseID)
	if err != nil {
		return nil, session.View{}, err
	}
	res, err := sess.Submit(ctx)
	return res, sess.View(), err
}

// Close saves and removes a session.
func (s *QuizSessionService) Close(ctx context.Context, quizID, courseID string) error {
	s.mu.Lock()
	key := sessionKey{quizID, courseID}
	sess, ok := s.sessions[key]
	delete(s.sessions, key)
	s.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	return sess.Close(ctx)
}

// AppState forwards an app lifecycle change to every open session.
func (s *QuizSessionService) AppState(ctx context.Context, state string) error {
	if state != AppStateActive && state != AppStateBackground && state != AppStateInactive {
		return fmt.Errorf("%w: %q", ErrUnknownAppState, state)
	}

	for _, sess := range s.openSessions() {
		if state == AppStateActive {
			sess.Foreground()
			continue
		}
		if err := sess.Background(ctx); err != nil {
			s.log.Warn().Err(err).Str("quiz_id", sess.QuizID()).Msg("Background save failed")
		}
	}
	s.log.Debug().Str("state", state).Msg("App state changed")
	return nil
}

// Shutdown saves and closes every session.
func (s *QuizSessionService) Shutdown(ctx context.Context) {
	s.mu.Lock()
	open := s.sessions
	s.sessions = make(map[sessionKey]*session.Session)
	s.mu.Unlock()

	for _, sess := range open {
		if err := sess.Close(ctx); err != nil {
			s.log.Error().Err(err).Str("quiz_id", sess.QuizID()).Msg("Final save failed")
		}
	}
	s.log.Info().Int("sessions", len(open)).Msg("Quiz sessions closed")
}

// OpenCount reports the number of open sessions.
func (s *QuizSessionService) OpenCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *QuizSessionService) submitStudent(ctx context.Context, quizID, courseID string, answers []model.Answer) (*model.SubmitResult, error) {
	res, err := s.backend.SubmitQuiz(ctx, model.QuizSubmission{
		QuizID:   model.ID(quizID),
		CourseID: model.ID(courseID),
		Answers:  answers,
	})
	if err != nil {
		return nil, s.checkAuth(ctx, err)
	}
	return res, nil
}

func (s *QuizSessionService) submitAnswerKey(ctx context.Context, quizID, courseID string, answers []model.Answer) (*model.SubmitResult, error) {
	res, err := s.backend.SubmitAnswerKey(ctx, courseID, quizID, model.AnswerKeySubmission{Answers: answers})
	if err != nil {
		return nil, s.checkAuth(ctx, err)
	}
	return res, nil
}

// checkAuth clears stored credentials when the backend rejected them. Quiz
// snapshots are kept so progress survives signing in again.
func (s *QuizSessionService) checkAuth(ctx context.Context, err error) error {
	if !errors.Is(err, backend.ErrUnauthorized) {
		return err
	}
	if lerr := s.auth.Logout(context.WithoutCancel(ctx)); lerr != nil {
		s.log.Error().Err(lerr).Msg("Failed to clear credentials")
	} else {
		s.log.Warn().Msg("Backend session expired, credentials cleared")
	}
	return err
}

// newPersister builds a persister for key. A zero budget never expires.
func (s *QuizSessionService) newPersister(key string, budget time.Duration) *session.Persister {
	return session.NewPersister(s.store, s.writer, s.clock, key, session.PersisterConfig{
		Budget:      budget,
		VerifyDelay: s.cfg.SaveVerifyDelay,
	}, s.log)
}

func (s *QuizSessionService) lookup(quizID, courseID string) (*session.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionKey{quizID, courseID}]
	return sess, ok
}

func (s *QuizSessionService) openSessions() []*session.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*session.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	return out
}
