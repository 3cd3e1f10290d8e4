package worker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/quizdesk/internal/config"
	"github.com/stemsi/quizdesk/internal/logger"
)

// WriteTimeout bounds a single queued store write.
const WriteTimeout = 5 * time.Second

type snapshotJob struct {
	key   string
	write func(ctx context.Context) error
}

// SnapshotWorker drains fire-and-forget snapshot writes into the store so a
// selection never waits on storage latency.
type SnapshotWorker struct {
	queue chan snapshotJob
	log   zerolog.Logger

	mu      sync.RWMutex
	stopped bool
}

// NewSnapshotWorker creates a new SnapshotWorker with a queue of size.
func NewSnapshotWorker(size int, log zerolog.Logger) *SnapshotWorker {
	if size <= 0 {
		size = 1
	}
	return &SnapshotWorker{
		queue: make(chan snapshotJob, size),
		log:   logger.Component(log, config.WorkerKey.SnapshotWriter),
	}
}

// Enqueue queues a write. It never blocks; false means the queue was full
// or the worker has stopped.
func (w *SnapshotWorker) Enqueue(key string, write func(ctx context.Context) error) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.stopped {
		return false
	}
	select {
	case w.queue <- snapshotJob{key: key, write: write}:
		return true
	default:
		return false
	}
}

// Start begins the worker loop. Call in a goroutine.
func (w *SnapshotWorker) Start(ctx context.Context) {
	w.log.Info().Msg("Worker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopping...")
			w.mu.Lock()
			w.stopped = true
			w.mu.Unlock()
			// Drain remaining items before exit.
			w.drain(context.Background())
			w.log.Info().Msg("Worker stopped")
			return
		case job := <-w.queue:
			w.process(ctx, job)
		}
	}
}

func (w *SnapshotWorker) process(ctx context.Context, job snapshotJob) {
	ctx, cancel := context.WithTimeout(ctx, WriteTimeout)
	defer cancel()

	if err := job.write(ctx); err != nil {
		// The next save of the session carries the same state.
		w.log.Error().Err(err).Str("key", job.key).Msg("Snapshot write failed")
	}
}

// drain processes all remaining items in the queue before shutdown.
func (w *SnapshotWorker) drain(ctx context.Context) {
	drained := 0
	for {
		select {
		case job := <-w.queue:
			w.process(ctx, job)
			drained++
		default:
			if drained > 0 {
				w.log.Info().Int("count", drained).Msg("Drained remaining items")
			}
			return
		}
	}
}

// Pending reports queued writes.
func (w *SnapshotWorker) Pending() int {
	return len(w.queue)
}
