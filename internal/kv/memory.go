// ABOUTME: In-memory Backend for tests and the "memory" storage driver
// ABOUTME: Can be shared by several Storage instances to stand in for separate processes

package kv

import (
	"context"
	"errors"
	"sync"
	"time"
)

// MemoryBackend keeps records in a map. Values are copied on the way in and
// out so callers can't alias stored bytes.
type MemoryBackend struct {
	mu      sync.RWMutex
	records map[string]*Record
	closed  bool
	failing bool
}

// NewMemoryBackend creates an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		records: make(map[string]*Record),
	}
}

var errMemoryFull = errors.New("memory backend: write rejected")

// Get returns a copy of the record for key.
func (m *MemoryBackend) Get(ctx context.Context, key string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[key]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneRecord(rec), nil
}

// Put replaces the value for key and bumps its revision.
func (m *MemoryBackend) Put(ctx context.Context, key string, value []byte, writer string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failing || m.closed {
		return nil, errMemoryFull
	}

	rev := int64(1)
	if prev, ok := m.records[key]; ok {
		rev = prev.Revision + 1
	}
	rec := &Record{
		Key:       key,
		Value:     append([]byte(nil), value...),
		Revision:  rev,
		Writer:    writer,
		UpdatedAt: time.Now().UTC(),
	}
	m.records[key] = rec
	return cloneRecord(rec), nil
}

// Revisions lists revision metadata for every key.
func (m *MemoryBackend) Revisions(ctx context.Context) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Record, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, Record{
			Key:       rec.Key,
			Revision:  rec.Revision,
			Writer:    rec.Writer,
			UpdatedAt: rec.UpdatedAt,
		})
	}
	return out, nil
}

// SetRaw stores value without touching the writer, as if an older client
// version or a manual edit had produced it.
func (m *MemoryBackend) SetRaw(key string, value []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rev := int64(1)
	if prev, ok := m.records[key]; ok {
		rev = prev.Revision + 1
	}
	m.records[key] = &Record{Key: key, Value: append([]byte(nil), value...), Revision: rev, UpdatedAt: time.Now().UTC()}
}

// FailPuts makes every later Put return an error (or stops doing so). Used
// to simulate a full or read-only disk.
func (m *MemoryBackend) FailPuts(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failing = fail
}

// Close marks the backend closed; later Puts fail.
func (m *MemoryBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func cloneRecord(r *Record) *Record {
	c := *r
	c.Value = append([]byte(nil), r.Value...)
	return &c
}
