package repository

import (
	"context"
	"sync"
)

// MemoryKVRepository keeps values in process memory. Used by STORE_DRIVER=memory
// and by tests; nothing survives a restart.
type MemoryKVRepository struct {
	mu    sync.RWMutex
	items map[string]string
}

func NewMemoryKVRepository() *MemoryKVRepository {
	return &MemoryKVRepository{items: make(map[string]string)}
}

func (r *MemoryKVRepository) GetItem(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.items[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (r *MemoryKVRepository) SetItem(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	r.items[key] = value
	r.mu.Unlock()
	return nil
}

func (r *MemoryKVRepository) RemoveItem(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	delete(r.items, key)
	r.mu.Unlock()
	return nil
}

// Len reports the number of stored keys.
func (r *MemoryKVRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}
