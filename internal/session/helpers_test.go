package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/quizdesk/internal/config"
	"github.com/stemsi/quizdesk/internal/model"
	"github.com/stemsi/quizdesk/internal/repository"
	"github.com/stemsi/quizdesk/internal/session/sessiontest"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)

const (
	testQuiz   = "7"
	testCourse = "3"
	budget     = 600 * time.Second
)

func testQuestions(n int) []model.Question {
	qs := make([]model.Question, n)
	for i := range qs {
		qs[i] = model.Question{
			ID:    model.ID(fmt.Sprint(100 + i)),
			Text:  fmt.Sprintf("Question %d", i+1),
			Marks: 1,
		}
		for j := 0; j < 3; j++ {
			qs[i].Options = append(qs[i].Options, model.Option{
				ID:   model.ID(fmt.Sprint((i+1)*10 + j)),
				Text: fmt.Sprintf("Option %d", j+1),
			})
		}
	}
	return qs
}

type fakeSubmitter struct {
	mu      sync.Mutex
	calls   [][]model.Answer
	err     error
	result  *model.SubmitResult
	entered chan struct{}
	release chan struct{}
}

func (f *fakeSubmitter) Submit(ctx context.Context, quizID, courseID string, answers []model.Answer) (*model.SubmitResult, error) {
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, answers)
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &model.SubmitResult{Success: true, Message: "Quiz submitted successfully"}, nil
}

func (f *fakeSubmitter) Calls() [][]model.Answer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]model.Answer(nil), f.calls...)
}

func (f *fakeSubmitter) Fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// queueWriter holds immediate writes until the test runs them.
type queueWriter struct {
	mu   sync.Mutex
	jobs []func(ctx context.Context) error
}

func (q *queueWriter) Enqueue(_ string, write func(ctx context.Context) error) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, write)
	return true
}

func (q *queueWriter) RunReversed(t *testing.T) {
	t.Helper()
	q.mu.Lock()
	jobs := q.jobs
	q.jobs = nil
	q.mu.Unlock()
	for i := len(jobs) - 1; i >= 0; i-- {
		require.NoError(t, jobs[i](context.Background()))
	}
}

// gatedStore blocks SetItem while gated.
type gatedStore struct {
	repository.KeyValueStore
	mu      sync.Mutex
	gate    chan struct{}
	entered chan struct{}
	drop    bool
}

func (g *gatedStore) SetItem(ctx context.Context, key, value string) error {
	g.mu.Lock()
	gate, entered, drop := g.gate, g.entered, g.drop
	g.mu.Unlock()

	if gate != nil {
		entered <- struct{}{}
		<-gate
	}
	if drop {
		return nil
	}
	return g.KeyValueStore.SetItem(ctx, key, value)
}

// readGate blocks GetItem while armed and can fail the next reads.
type readGate struct {
	repository.KeyValueStore
	mu       sync.Mutex
	gate     chan struct{}
	entered  chan struct{}
	failures int
	afterGet func()
}

func (r *readGate) GetItem(ctx context.Context, key string) (string, error) {
	r.mu.Lock()
	gate, entered := r.gate, r.entered
	r.gate = nil
	fail := r.failures > 0
	if fail {
		r.failures--
	}
	after := r.afterGet
	r.afterGet = nil
	r.mu.Unlock()

	if gate != nil {
		entered <- struct{}{}
		<-gate
	}
	if fail {
		return "", errors.New("i/o timeout")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	v, err := r.KeyValueStore.GetItem(ctx, key)
	if after != nil {
		after()
	}
	return v, err
}

type failingStore struct {
	repository.KeyValueStore
}

func (failingStore) SetItem(context.Context, string, string) error {
	return errors.New("disk full")
}

type fixture struct {
	store     repository.KeyValueStore
	clock     *sessiontest.ManualClock
	submitter *fakeSubmitter
	persister *Persister
	session   *Session
}

type fixtureOption func(*Options)

func newFixture(t *testing.T, store repository.KeyValueStore, clock *sessiontest.ManualClock, n int, opts ...fixtureOption) *fixture {
	t.Helper()
	if store == nil {
		store = repository.NewMemoryKVRepository()
	}
	if clock == nil {
		clock = sessiontest.NewManualClock(t0)
	}
	sub := &fakeSubmitter{}
	p := NewPersister(store, nil, clock, config.StorageKey.QuizStateKey(testQuiz, testCourse),
		PersisterConfig{Budget: budget}, zerolog.Nop())

	o := Options{
		QuizID:        testQuiz,
		CourseID:      testCourse,
		Mode:          model.SessionModeTimed,
		Questions:     testQuestions(n),
		Persister:     p,
		Submitter:     sub,
		Clock:         clock,
		Budget:        budget,
		CountdownSave: 30 * time.Second,
		PeriodicSave:  60 * time.Second,
		Logger:        zerolog.Nop(),
	}
	for _, fn := range opts {
		fn(&o)
	}
	s, err := New(o)
	require.NoError(t, err)

	return &fixture{store: store, clock: clock, submitter: sub, persister: o.Persister, session: s}
}

// seed writes a saved attempt directly into the store.
func (f *fixture) seed(t *testing.T, snap model.Snapshot) {
	t.Helper()
	require.NoError(t, f.persister.Store(context.Background(), snap))
}

func (f *fixture) stored(t *testing.T) *model.Snapshot {
	t.Helper()
	raw, err := f.store.GetItem(context.Background(), f.persister.Key())
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	require.NoError(t, err)
	snap, err := DecodeSnapshot([]byte(raw))
	require.NoError(t, err)
	return snap
}
