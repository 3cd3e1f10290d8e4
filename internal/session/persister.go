package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/quizdesk/internal/model"
	"github.com/stemsi/quizdesk/internal/repository"
)

var (
	// ErrSaveInProgress is returned when a verified save is already in flight.
	// The request is dropped, not queued.
	ErrSaveInProgress = errors.New("verified save already in progress")
	// ErrSaveUnverified is returned when the read-back does not carry the saveId just written.
	ErrSaveUnverified = errors.New("save could not be verified")
	// ErrSaveSuperseded is returned when a newer snapshot was already written.
	ErrSaveSuperseded = errors.New("snapshot superseded by a newer write")
	// ErrMalformedSnapshot marks a stored record that cannot be hydrated.
	ErrMalformedSnapshot = errors.New("malformed snapshot")
)

// Staged is a snapshot stamped with its position in the session's mutation
// order. Writes of an older Staged never overwrite a newer one.
type Staged struct {
	Snapshot model.Snapshot
	rev      uint64
}

// AsyncWriter runs store writes off the caller's path. Enqueue must not block;
// it returns false when the write was dropped.
type AsyncWriter interface {
	Enqueue(key string, write func(ctx context.Context) error) bool
}

// PersisterConfig tunes a Persister.
type PersisterConfig struct {
	// Budget is the time budget used to expire records on load. Zero means untimed.
	Budget      time.Duration
	VerifyDelay time.Duration
	// WriteTimeout bounds inline writes made when no AsyncWriter is configured.
	WriteTimeout time.Duration
}

// Persister snapshots one session under one storage key.
type Persister struct {
	store  repository.KeyValueStore
	writer AsyncWriter
	clock  Clock
	key    string
	cfg    PersisterConfig
	log    zerolog.Logger

	saving atomic.Bool
	rev    atomic.Uint64

	// writeMu orders writes against each other and against Clear so a
	// queued write cannot resurrect a record deleted after submission.
	writeMu sync.Mutex
	written uint64
	cleared bool
}

// NewPersister creates a Persister for key.
func NewPersister(store repository.KeyValueStore, writer AsyncWriter, clock Clock, key string, cfg PersisterConfig, log zerolog.Logger) *Persister {
	if clock == nil {
		clock = RealClock()
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	return &Persister{
		store:  store,
		writer: writer,
		clock:  clock,
		key:    key,
		cfg:    cfg,
		log:    log.With().Str("storage_key", key).Logger(),
	}
}

// Key returns the storage key.
func (p *Persister) Key() string {
	return p.key
}

// Stage stamps snap with the next revision. Callers must stage in the same
// order they mutate state.
func (p *Persister) Stage(snap model.Snapshot) Staged {
	return Staged{Snapshot: snap, rev: p.rev.Add(1)}
}

// SaveImmediate writes staged without read-back verification and without
// waiting for the write. A lost write is repaired by the next save.
func (p *Persister) SaveImmediate(staged Staged) {
	snap := staged.Snapshot
	snap.LastSaved = p.clock.Now().UnixMilli()
	snap.Version = model.SnapshotVersion
	snap.SaveID = ""

	data, err := json.Marshal(snap)
	if err != nil {
		p.log.Error().Err(err).Msg("Encode immediate snapshot failed")
		return
	}

	write := func(ctx context.Context) error {
		_, err := p.write(ctx, string(data), staged.rev)
		return err
	}

	if p.writer == nil {
		ctx, cancel := context.WithTimeout(context.Background(), p.cfg.WriteTimeout)
		defer cancel()
		if err := write(ctx); err != nil {
			p.log.Error().Err(err).Msg("Immediate save failed")
		}
		return
	}

	if !p.writer.Enqueue(p.key, write) {
		p.log.Warn().Msg("Immediate save dropped, queue full")
	}
}

// SaveVerified writes staged, then reads it back and compares the saveId to
// confirm the write committed. Overlapping calls get ErrSaveInProgress.
func (p *Persister) SaveVerified(ctx context.Context, staged Staged) error {
	if !p.saving.CompareAndSwap(false, true) {
		return ErrSaveInProgress
	}
	defer p.saving.Store(false)

	snap := staged.Snapshot
	now := p.clock.Now()
	snap.LastSaved = now.UnixMilli()
	snap.Version = model.SnapshotVersion
	snap.SaveID = newSaveID(now)

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	applied, err := p.write(ctx, string(data), staged.rev)
	if err != nil {
		return err
	}
	if !applied {
		return ErrSaveSuperseded
	}

	if p.cfg.VerifyDelay > 0 {
		select {
		case <-time.After(p.cfg.VerifyDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	stored, err := p.store.GetItem(ctx, p.key)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: record missing after write", ErrSaveUnverified)
		}
		return fmt.Errorf("read back snapshot: %w", err)
	}

	var readBack struct {
		SaveID string `json:"saveId"`
	}
	if err := json.Unmarshal([]byte(stored), &readBack); err != nil {
		return fmt.Errorf("%w: %v", ErrSaveUnverified, err)
	}
	if readBack.SaveID != snap.SaveID {
		return fmt.Errorf("%w: expected %s, found %q", ErrSaveUnverified, snap.SaveID, readBack.SaveID)
	}

	p.log.Debug().Str("save_id", snap.SaveID).Msg("Snapshot saved and verified")
	return nil
}

// Saving reports whether a verified save is in flight.
func (p *Persister) Saving() bool {
	return p.saving.Load()
}

// Load reads the record. Absent, malformed and expired records all yield
// (nil, nil); malformed and expired ones are deleted on the way. The returned
// snapshot's TimeRemaining is recomputed from QuizStartTime.
func (p *Persister) Load(ctx context.Context) (*model.Snapshot, error) {
	raw, err := p.store.GetItem(ctx, p.key)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	snap, err := DecodeSnapshot([]byte(raw))
	if err != nil {
		p.log.Warn().Err(err).Msg("Discarding malformed snapshot")
		p.removeIfUnchanged(ctx, raw)
		return nil, nil
	}

	if p.cfg.Budget > 0 {
		remaining := RemainingSeconds(time.UnixMilli(snap.QuizStartTime), p.clock.Now(), p.cfg.Budget)
		if remaining <= 0 {
			p.log.Info().Msg("Snapshot expired while away, clearing")
			p.removeIfUnchanged(ctx, raw)
			return nil, nil
		}
		snap.TimeRemaining = remaining
	}

	return snap, nil
}

// Store writes snap as-is, without stamping or verification. Used to write a
// refreshed snapshot back after a resume check.
func (p *Persister) Store(ctx context.Context, snap model.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	_, err = p.write(ctx, string(data), 0)
	return err
}

// Clear deletes the record and refuses every later write through this Persister.
func (p *Persister) Clear(ctx context.Context) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	p.cleared = true
	if err := p.store.RemoveItem(ctx, p.key); err != nil {
		return fmt.Errorf("clear snapshot: %w", err)
	}
	return nil
}

// write stores value unless the record was cleared or a newer revision has
// already landed. Revision 0 always writes.
func (p *Persister) write(ctx context.Context, value string, rev uint64) (bool, error) {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	if p.cleared {
		return false, nil
	}
	if rev != 0 && rev <= p.written {
		return false, nil
	}
	if err := p.store.SetItem(ctx, p.key, value); err != nil {
		return false, fmt.Errorf("write snapshot: %w", err)
	}
	if rev != 0 {
		p.written = rev
	}
	return true, nil
}

// Discard deletes the record but, unlike Clear, allows later writes.
func (p *Persister) Discard(ctx context.Context) {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	p.remove(ctx)
}

// removeIfUnchanged deletes the record only if it still holds seen, so a
// write that landed after the read survives.
func (p *Persister) removeIfUnchanged(ctx context.Context, seen string) {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	current, err := p.store.GetItem(ctx, p.key)
	if errors.Is(err, repository.ErrNotFound) {
		return
	}
	if err == nil && current != seen {
		p.log.Debug().Msg("Snapshot rewritten since load, keeping it")
		return
	}
	p.remove(ctx)
}

func (p *Persister) remove(ctx context.Context) {
	if err := p.store.RemoveItem(ctx, p.key); err != nil {
		p.log.Error().Err(err).Msg("Failed to remove snapshot")
	}
}

// DecodeSnapshot parses and shape-checks a stored record: selectedOptions
// must be an object of index -> index and quizStartTime a positive number.
func DecodeSnapshot(data []byte) (*model.Snapshot, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSnapshot, err)
	}

	sel := bytes.TrimSpace(fields["selectedOptions"])
	if len(sel) == 0 || sel[0] != '{' {
		return nil, fmt.Errorf("%w: selectedOptions is not a mapping", ErrMalformedSnapshot)
	}

	start := bytes.TrimSpace(fields["quizStartTime"])
	if len(start) == 0 || !(start[0] == '-' || (start[0] >= '0' && start[0] <= '9')) {
		return nil, fmt.Errorf("%w: quizStartTime is not a number", ErrMalformedSnapshot)
	}

	var snap model.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSnapshot, err)
	}
	if snap.QuizStartTime <= 0 {
		return nil, fmt.Errorf("%w: quizStartTime must be positive", ErrMalformedSnapshot)
	}
	if snap.SelectedOptions == nil {
		snap.SelectedOptions = map[int]int{}
	}
	return &snap, nil
}

// newSaveID combines the timestamp with a random token; timestamps alone
// collide under rapid saves.
func newSaveID(now time.Time) string {
	return fmt.Sprintf("%d_%s", now.UnixMilli(), uuid.NewString()[:8])
}
