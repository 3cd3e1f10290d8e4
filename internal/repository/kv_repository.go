package repository

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned by GetItem when the key has no stored value.
var ErrNotFound = errors.New("key not found")

// KeyValueStore is the durable async key-value contract the session snapshots
// are written to. Values are opaque strings (JSON-encoded snapshots).
type KeyValueStore interface {
	GetItem(ctx context.Context, key string) (string, error)
	SetItem(ctx context.Context, key, value string) error
	RemoveItem(ctx context.Context, key string) error
}

// MultiRemove deletes every key, continuing past failures.
// It returns the first error encountered.
func MultiRemove(ctx context.Context, store KeyValueStore, keys ...string) error {
	var firstErr error
	for _, k := range keys {
		if err := store.RemoveItem(ctx, k); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("remove %s: %w", k, err)
		}
	}
	return firstErr
}
