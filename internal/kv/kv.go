// ABOUTME: Backend contract and record types for client-local durable storage
// ABOUTME: Every write bumps a per-key revision so other processes can detect changes

package kv

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key has never been written.
var ErrNotFound = errors.New("key not found")

// Record is one stored value together with its change metadata.
type Record struct {
	Key       string
	Value     []byte
	Revision  int64  // starts at 1, incremented by every Put
	Writer    string // instance ID of the Storage that performed the last Put
	UpdatedAt time.Time
}

// Backend persists whole values by key. Implementations must make Put
// atomic: readers observe either the previous value or the new one.
type Backend interface {
	Get(ctx context.Context, key string) (*Record, error)
	Put(ctx context.Context, key string, value []byte, writer string) (*Record, error)

	// Revisions returns the current revision metadata of every key. Values
	// may be omitted.
	Revisions(ctx context.Context) ([]Record, error)

	Close() error
}

// ChangeEvent is the storage-change notification delivered to views other
// than the one that wrote. It identifies what changed, never the new value:
// listeners re-read.
type ChangeEvent struct {
	Key      string
	Revision int64
	// Origin is the view that wrote, or empty when the write came from
	// another process sharing the backend.
	Origin string
}
