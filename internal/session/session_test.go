package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/quizdesk/internal/model"
	"github.com/stemsi/quizdesk/internal/repository"
	"github.com/stemsi/quizdesk/internal/session/sessiontest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsEmptyQuiz(t *testing.T) {
	_, err := New(Options{Mode: model.SessionModeTimed, Budget: budget})
	assert.ErrorIs(t, err, ErrNoQuestions)
}

func TestNewTimedNeedsBudget(t *testing.T) {
	_, err := New(Options{Mode: model.SessionModeTimed, Questions: testQuestions(1)})
	assert.ErrorIs(t, err, ErrMissingBudget)
}

func TestSelectOptionToggles(t *testing.T) {
	f := newFixture(t, nil, nil, 3)
	_, err := f.session.Restore(context.Background(), nil)
	require.NoError(t, err)

	v, err := f.session.SelectOption(0, 2)
	require.NoError(t, err)
	assert.Equal(t, map[int]int{0: 2}, v.SelectedOptions)

	v, err = f.session.SelectOption(0, 1)
	require.NoError(t, err)
	assert.Equal(t, map[int]int{0: 1}, v.SelectedOptions, "a different option replaces the selection")

	v, err = f.session.SelectOption(0, 1)
	require.NoError(t, err)
	assert.Empty(t, v.SelectedOptions, "selecting the same option twice clears it")
}

func TestSelectOptionValidatesIndexes(t *testing.T) {
	f := newFixture(t, nil, nil, 2)
	_, err := f.session.Restore(context.Background(), nil)
	require.NoError(t, err)
	_, err = f.session.SelectOption(2, 0)
	assert.ErrorIs(t, err, ErrInvalidIndex)
	_, err = f.session.SelectOption(0, 3)
	assert.ErrorIs(t, err, ErrInvalidIndex)
	_, err = f.session.SelectOption(-1, 0)
	assert.ErrorIs(t, err, ErrInvalidIndex)
}

func TestSelectOptionWritesImmediately(t *testing.T) {
	f := newFixture(t, nil, nil, 3)
	_, err := f.session.Restore(context.Background(), nil)
	require.NoError(t, err)

	_, err = f.session.SelectOption(1, 2)
	require.NoError(t, err)

	snap := f.stored(t)
	require.NotNil(t, snap)
	assert.Equal(t, map[int]int{1: 2}, snap.SelectedOptions)
	assert.Empty(t, snap.SaveID, "immediate saves are unverified")
	assert.Equal(t, model.SnapshotVersion, snap.Version)
}

func TestGoToClampsAndSaves(t *testing.T) {
	f := newFixture(t, nil, nil, 4)
	_, err := f.session.Restore(context.Background(), nil)
	require.NoError(t, err)

	v, err := f.session.GoTo(10)
	require.NoError(t, err)
	assert.Equal(t, 3, v.CurrentQuestion)

	v, err = f.session.GoTo(-5)
	require.NoError(t, err)
	assert.Equal(t, 0, v.CurrentQuestion)

	v, err = f.session.GoTo(2)
	require.NoError(t, err)
	assert.Equal(t, 2, v.CurrentQuestion)
	f.session.WaitIdle()

	snap := f.stored(t)
	require.NotNil(t, snap)
	assert.Equal(t, 2, snap.CurrentQuestion)
	assert.NotEmpty(t, snap.SaveID, "navigation uses a verified save")
}

func TestNextPrevStopAtEnds(t *testing.T) {
	f := newFixture(t, nil, nil, 2)
	_, err := f.session.Restore(context.Background(), nil)
	require.NoError(t, err)

	v, _ := f.session.Prev()
	assert.Equal(t, 0, v.CurrentQuestion)
	v, _ = f.session.Next()
	assert.Equal(t, 1, v.CurrentQuestion)
	v, _ = f.session.Next()
	assert.Equal(t, 1, v.CurrentQuestion)
	f.session.WaitIdle()
}

func TestGoToSaveFailureIsNotSurfaced(t *testing.T) {
	f := newFixture(t, failingStore{KeyValueStore: repository.NewMemoryKVRepository()}, nil, 2)
	_, err := f.session.Restore(context.Background(), nil)
	require.NoError(t, err)

	v, err := f.session.GoTo(1)
	require.NoError(t, err)
	assert.Equal(t, 1, v.CurrentQuestion)
	f.session.WaitIdle()
}

func TestRemainingFollowsWallClock(t *testing.T) {
	f := newFixture(t, nil, nil, 2)
	_, err := f.session.Restore(context.Background(), nil)
	require.NoError(t, err)

	// Suspended: no timer runs while time passes.
	f.clock.Jump(200 * time.Second)
	assert.Equal(t, 400, f.session.View().TimeRemaining)

	f.clock.Jump(1500 * time.Millisecond)
	assert.Equal(t, 399, f.session.View().TimeRemaining)

	v := f.session.Foreground()
	assert.Equal(t, 399, v.TimeRemaining)
	assert.Equal(t, "06:39", v.TimeLabel)
	assert.Equal(t, TimerBandNormal, v.TimerBand)
}

func TestSubmitSendsOneAnswerPerQuestion(t *testing.T) {
	f := newFixture(t, nil, nil, 4)
	_, err := f.session.Restore(context.Background(), nil)
	require.NoError(t, err)
	_, err = f.session.SelectOption(1, 2)
	require.NoError(t, err)
	_, err = f.session.SelectOption(3, 0)
	require.NoError(t, err)

	res, err := f.session.Submit(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Success)

	calls := f.submitter.Calls()
	require.Len(t, calls, 1)
	answers := calls[0]
	require.Len(t, answers, 4)

	assert.Equal(t, model.ID("100"), answers[0].QuestionID)
	assert.Nil(t, answers[0].SelectedOptionID)
	require.NotNil(t, answers[1].SelectedOptionID)
	assert.Equal(t, model.ID("22"), *answers[1].SelectedOptionID)
	assert.Nil(t, answers[2].SelectedOptionID)
	require.NotNil(t, answers[3].SelectedOptionID)
	assert.Equal(t, model.ID("40"), *answers[3].SelectedOptionID)
}

func TestSubmittedSessionIsFrozen(t *testing.T) {
	f := newFixture(t, nil, nil, 3)
	_, err := f.session.Restore(context.Background(), nil)
	require.NoError(t, err)
	_, err = f.session.SelectOption(0, 1)
	require.NoError(t, err)
	require.NotNil(t, f.stored(t))

	_, err = f.session.Submit(context.Background())
	require.NoError(t, err)
	assert.Nil(t, f.stored(t), "persisted record is removed after submit")

	v, err := f.session.SelectOption(1, 1)
	assert.ErrorIs(t, err, ErrSubmitted)
	assert.Equal(t, map[int]int{0: 1}, v.SelectedOptions)

	v, err = f.session.GoTo(2)
	assert.ErrorIs(t, err, ErrSubmitted)
	assert.Equal(t, 0, v.CurrentQuestion)
	assert.True(t, v.IsSubmitted)

	_, err = f.session.Submit(context.Background())
	assert.ErrorIs(t, err, ErrSubmitted)
	assert.Len(t, f.submitter.Calls(), 1)

	f.session.WaitIdle()
	assert.Nil(t, f.stored(t))
	assert.Zero(t, f.clock.Pending(), "submission cancels every timer")
}

func TestSubmitIsNotReentrant(t *testing.T) {
	f := newFixture(t, nil, nil, 2)
	f.submitter.entered = make(chan struct{}, 1)
	f.submitter.release = make(chan struct{})
	_, err := f.session.Restore(context.Background(), nil)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := f.session.Submit(context.Background())
		done <- err
	}()
	<-f.submitter.entered

	_, err = f.session.Submit(context.Background())
	assert.ErrorIs(t, err, ErrSubmitInFlight)

	_, err = f.session.SelectOption(0, 0)
	assert.ErrorIs(t, err, ErrSubmitInFlight)

	close(f.submitter.release)
	require.NoError(t, <-done)
	assert.Len(t, f.submitter.Calls(), 1)
}

func TestSubmitFailureKeepsState(t *testing.T) {
	f := newFixture(t, nil, nil, 2)
	_, err := f.session.Restore(context.Background(), nil)
	require.NoError(t, err)
	_, err = f.session.SelectOption(0, 2)
	require.NoError(t, err)

	f.submitter.Fail(errors.New("connection refused"))
	_, err = f.session.Submit(context.Background())
	require.Error(t, err)

	v := f.session.View()
	assert.Equal(t, StatusRunning, v.Status)
	assert.False(t, v.IsSubmitted)
	snap := f.stored(t)
	require.NotNil(t, snap)
	assert.Equal(t, map[int]int{0: 2}, snap.SelectedOptions)

	// Retry goes through once the backend recovers.
	f.submitter.Fail(nil)
	_, err = f.session.Submit(context.Background())
	require.NoError(t, err)
	assert.Nil(t, f.stored(t))
}

func TestSubmitRejectedByBackend(t *testing.T) {
	f := newFixture(t, nil, nil, 1)
	f.submitter.result = &model.SubmitResult{Success: false, Message: "Quiz closed"}
	_, err := f.session.Restore(context.Background(), nil)
	require.NoError(t, err)

	_, err = f.session.Submit(context.Background())
	var rejected *RejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, "Quiz closed", rejected.Message)
	assert.NotNil(t, f.stored(t))
}

func TestSubmitFailureRearmsExpiry(t *testing.T) {
	f := newFixture(t, nil, nil, 2)
	_, err := f.session.Restore(context.Background(), nil)
	require.NoError(t, err)

	f.submitter.Fail(errors.New("timeout"))
	_, err = f.session.Submit(context.Background())
	require.Error(t, err)
	f.submitter.Fail(nil)

	f.clock.Advance(budget)
	f.session.WaitIdle()

	assert.Len(t, f.submitter.Calls(), 2)
	assert.Equal(t, StatusSubmitted, f.session.View().Status)
}

func TestCountdownCheckpointSaves(t *testing.T) {
	f := newFixture(t, nil, nil, 2, func(o *Options) { o.PeriodicSave = 0 })
	_, err := f.session.Restore(context.Background(), nil)
	require.NoError(t, err)

	f.clock.Advance(29 * time.Second)
	assert.Empty(t, f.stored(t).SaveID)

	f.clock.Advance(time.Second)
	snap := f.stored(t)
	assert.NotEmpty(t, snap.SaveID)
	assert.Equal(t, 570, snap.TimeRemaining)
}

func TestPeriodicSave(t *testing.T) {
	f := newFixture(t, nil, nil, 2, func(o *Options) { o.CountdownSave = 0 })
	_, err := f.session.Restore(context.Background(), nil)
	require.NoError(t, err)

	f.clock.Advance(59 * time.Second)
	assert.Empty(t, f.stored(t).SaveID)

	f.clock.Advance(time.Second)
	assert.NotEmpty(t, f.stored(t).SaveID)
}

func TestTicksPublishRemainingTime(t *testing.T) {
	f := newFixture(t, nil, nil, 1)
	events, release := f.session.Subscribe()
	defer release()
	_, err := f.session.Restore(context.Background(), nil)
	require.NoError(t, err)

	ev := <-events
	assert.Equal(t, EventState, ev.Type)

	f.clock.Advance(time.Second)
	ev = <-events
	assert.Equal(t, EventTick, ev.Type)
	assert.Equal(t, 599, ev.TimeRemaining)
}

func TestBurstConvergesOnVerifiedSave(t *testing.T) {
	store := repository.NewMemoryKVRepository()
	clock := sessiontest.NewManualClock(t0)
	q := &queueWriter{}
	p := NewPersister(store, q, clock, "quiz_7_3_state", PersisterConfig{Budget: budget}, zerolog.Nop())
	f := newFixture(t, store, clock, 5, func(o *Options) { o.Persister = p })

	_, err := f.session.Restore(context.Background(), nil)
	require.NoError(t, err)

	for i, sel := range [][2]int{{0, 0}, {1, 1}, {0, 2}, {2, 1}, {1, 1}, {4, 0}, {0, 2}} {
		_, err := f.session.SelectOption(sel[0], sel[1])
		require.NoError(t, err, "select %d", i)
	}
	want := f.session.Snapshot()

	require.NoError(t, f.session.Blur(context.Background()))
	// Older fire-and-forget writes land late and out of order.
	q.RunReversed(t)

	snap := f.stored(t)
	require.NotNil(t, snap)
	assert.Equal(t, want.SelectedOptions, snap.SelectedOptions)
	assert.Equal(t, map[int]int{2: 1, 4: 0}, snap.SelectedOptions)
}

func TestBurstReorderedWritesKeepLatest(t *testing.T) {
	store := repository.NewMemoryKVRepository()
	clock := sessiontest.NewManualClock(t0)
	q := &queueWriter{}
	p := NewPersister(store, q, clock, "quiz_7_3_state", PersisterConfig{Budget: budget}, zerolog.Nop())
	f := newFixture(t, store, clock, 3, func(o *Options) { o.Persister = p })

	_, err := f.session.Restore(context.Background(), nil)
	require.NoError(t, err)
	_, _ = f.session.SelectOption(0, 0)
	_, _ = f.session.SelectOption(0, 1)
	_, _ = f.session.SelectOption(1, 2)

	q.RunReversed(t)
	assert.Equal(t, map[int]int{0: 1, 1: 2}, f.stored(t).SelectedOptions)
}

func TestScenarioResumeAfterRestart(t *testing.T) {
	store := repository.NewMemoryKVRepository()
	first := newFixture(t, store, sessiontest.NewManualClock(t0), 3)
	ctx := context.Background()

	_, err := first.session.Restore(ctx, nil)
	require.NoError(t, err)
	_, err = first.session.SelectOption(0, 0)
	require.NoError(t, err)
	_, err = first.session.GoTo(1)
	require.NoError(t, err)
	first.session.WaitIdle()

	snap := first.stored(t)
	require.NotNil(t, snap)
	assert.Equal(t, map[int]int{0: 0}, snap.SelectedOptions)
	assert.Equal(t, 1, snap.CurrentQuestion)

	// Process killed; relaunched 125s later on a fresh clock.
	second := newFixture(t, store, sessiontest.NewManualClock(t0.Add(125*time.Second)), 3)
	v, err := second.session.Restore(ctx, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, v.CurrentQuestion)
	assert.Equal(t, map[int]int{0: 0}, v.SelectedOptions)
	assert.Equal(t, 475, v.TimeRemaining)
	assert.Equal(t, t0.UnixMilli(), v.SessionStartTime)
}

func TestScenarioExpiryAutoSubmits(t *testing.T) {
	f := newFixture(t, nil, nil, 3)
	_, err := f.session.Restore(context.Background(), nil)
	require.NoError(t, err)

	f.clock.Advance(budget - time.Second)
	assert.Empty(t, f.submitter.Calls())

	f.clock.Advance(time.Second)
	f.session.WaitIdle()

	calls := f.submitter.Calls()
	require.Len(t, calls, 1)
	require.Len(t, calls[0], 3)
	for i, a := range calls[0] {
		assert.Equal(t, testQuestions(3)[i].ID, a.QuestionID)
		assert.Nil(t, a.SelectedOptionID)
	}

	v := f.session.View()
	assert.Equal(t, StatusSubmitted, v.Status)
	assert.Equal(t, 0, v.TimeRemaining)
	assert.Nil(t, f.stored(t))
	assert.Zero(t, f.clock.Pending())
}

func TestScenarioDeselectIsPersisted(t *testing.T) {
	f := newFixture(t, nil, nil, 3)
	_, err := f.session.Restore(context.Background(), nil)
	require.NoError(t, err)

	_, err = f.session.SelectOption(0, 1)
	require.NoError(t, err)
	_, err = f.session.SelectOption(1, 2)
	require.NoError(t, err)

	v, err := f.session.SelectOption(1, 2)
	require.NoError(t, err)
	assert.NotContains(t, v.SelectedOptions, 1)

	require.NoError(t, f.session.Blur(context.Background()))
	snap := f.stored(t)
	assert.NotContains(t, snap.SelectedOptions, 1)
	assert.Equal(t, map[int]int{0: 1}, snap.SelectedOptions)
}

func TestForegroundAfterBudgetSubmits(t *testing.T) {
	f := newFixture(t, nil, nil, 2)
	_, err := f.session.Restore(context.Background(), nil)
	require.NoError(t, err)
	require.NoError(t, f.session.Background(context.Background()))

	f.clock.Jump(budget + time.Minute)
	_, err = f.session.SelectOption(0, 0)
	assert.ErrorIs(t, err, ErrTimeUp)

	f.session.Foreground()
	f.session.WaitIdle()

	assert.Len(t, f.submitter.Calls(), 1)
	assert.Equal(t, StatusSubmitted, f.session.View().Status)
}

func TestRestartedTimersFireOnce(t *testing.T) {
	f := newFixture(t, nil, nil, 2)
	_, err := f.session.Restore(context.Background(), nil)
	require.NoError(t, err)

	f.clock.Advance(100 * time.Second)
	f.session.Foreground()
	f.session.Foreground()

	f.clock.Advance(budget)
	f.session.WaitIdle()
	assert.Len(t, f.submitter.Calls(), 1)
}

func TestAutoSubmitFailureWaitsForRetry(t *testing.T) {
	f := newFixture(t, nil, nil, 2)
	f.submitter.Fail(errors.New("backend down"))
	_, err := f.session.Restore(context.Background(), nil)
	require.NoError(t, err)

	f.clock.Advance(budget - time.Second)
	events, release := f.session.Subscribe()
	defer release()
	f.clock.Advance(time.Second)
	f.session.WaitIdle()
	require.Len(t, f.submitter.Calls(), 1)
	assert.Zero(t, f.clock.Pending())
	assert.NotNil(t, f.stored(t), "answers survive a failed auto-submit")

	var sawFailure bool
	for len(events) > 0 {
		if ev := <-events; ev.Type == EventSubmitFailed {
			sawFailure = true
		}
	}
	assert.True(t, sawFailure)

	f.submitter.Fail(nil)
	_, err = f.session.Submit(context.Background())
	require.NoError(t, err)
}

func TestCloseSavesAndStopsTimers(t *testing.T) {
	f := newFixture(t, nil, nil, 2)
	events, _ := f.session.Subscribe()
	_, err := f.session.Restore(context.Background(), nil)
	require.NoError(t, err)
	_, err = f.session.SelectOption(1, 1)
	require.NoError(t, err)

	require.NoError(t, f.session.Close(context.Background()))
	assert.Zero(t, f.clock.Pending())
	assert.NotEmpty(t, f.stored(t).SaveID)

	for range events {
	}
	_, err = f.session.SelectOption(0, 0)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestReviewModeIsReadOnly(t *testing.T) {
	qs := testQuestions(2)
	chosen := qs[1].Options[2].ID
	qs[1].SelectedOptionID = &chosen

	s, err := New(Options{
		QuizID:     testQuiz,
		CourseID:   testCourse,
		Mode:       model.SessionModeReview,
		Questions:  qs,
		Selections: SelectionsFromQuestions(qs),
		Clock:      sessiontest.NewManualClock(t0),
		Logger:     zerolog.Nop(),
	})
	require.NoError(t, err)

	v, err := s.Restore(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, StatusReadOnly, v.Status)
	assert.Equal(t, map[int]int{1: 2}, v.SelectedOptions)

	_, err = s.SelectOption(0, 0)
	assert.ErrorIs(t, err, ErrReadOnly)
	_, err = s.Submit(context.Background())
	assert.ErrorIs(t, err, ErrReadOnly)

	v, err = s.GoTo(1)
	require.NoError(t, err)
	assert.Equal(t, 1, v.CurrentQuestion)
	assert.NoError(t, s.Blur(context.Background()))
}

func TestAuthoringModeHasNoTimers(t *testing.T) {
	clock := sessiontest.NewManualClock(t0)
	store := repository.NewMemoryKVRepository()
	p := NewPersister(store, nil, clock, "quiz_answers_7_3", PersisterConfig{}, zerolog.Nop())
	sub := &fakeSubmitter{}

	s, err := New(Options{
		QuizID:    testQuiz,
		CourseID:  testCourse,
		Mode:      model.SessionModeAuthoring,
		Questions: testQuestions(2),
		Persister: p,
		Submitter: sub,
		Clock:     clock,
		Logger:    zerolog.Nop(),
	})
	require.NoError(t, err)

	v, err := s.Restore(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, clock.Pending())
	assert.Zero(t, v.TimeRemaining)
	assert.Empty(t, v.TimeLabel)

	_, err = s.SelectOption(0, 1)
	require.NoError(t, err)

	// Drafts never expire.
	clock.Jump(48 * time.Hour)
	loaded, err := p.Load(context.Background())
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, map[int]int{0: 1}, loaded.SelectedOptions)

	_, err = s.Submit(context.Background())
	require.NoError(t, err)
	require.Len(t, sub.Calls(), 1)
	assert.Equal(t, model.ID("11"), *sub.Calls()[0][0].SelectedOptionID)
}

func TestSelectionsFromAnswers(t *testing.T) {
	qs := testQuestions(3)
	opt := model.ID("31")
	got := SelectionsFromAnswers(qs, []model.Answer{
		{QuestionID: "102", SelectedOptionID: &opt},
		{QuestionID: "100"},
		{QuestionID: "999", SelectedOptionID: &opt},
	})
	assert.Equal(t, map[int]int{2: 1}, got)
}
