// ABOUTME: Contract tests run against every Backend implementation
// ABOUTME: Covers get/put round trip, revision increments, writer tracking, and persistence

package kv

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func backendFactories() map[string]func(t *testing.T) Backend {
	return map[string]func(t *testing.T) Backend{
		"memory": func(t *testing.T) Backend { return NewMemoryBackend() },
		"sqlite": func(t *testing.T) Backend {
			b, err := NewSQLiteBackend(filepath.Join(t.TempDir(), "client.db"))
			require.NoError(t, err)
			return b
		},
		"bolt": func(t *testing.T) Backend {
			b, err := NewBoltBackend(filepath.Join(t.TempDir(), "client.bolt"))
			require.NoError(t, err)
			return b
		},
	}
}

func TestBackend_Contract(t *testing.T) {
	for name, factory := range backendFactories() {
		t.Run(name, func(t *testing.T) {
			b := factory(t)
			defer b.Close()
			ctx := context.Background()

			_, err := b.Get(ctx, "conversations")
			assert.True(t, errors.Is(err, ErrNotFound), "missing key should be ErrNotFound, got %v", err)

			rec, err := b.Put(ctx, "conversations", []byte(`[]`), "writer-a")
			require.NoError(t, err)
			assert.Equal(t, int64(1), rec.Revision)

			rec, err = b.Put(ctx, "conversations", []byte(`[{"id":"1"}]`), "writer-b")
			require.NoError(t, err)
			assert.Equal(t, int64(2), rec.Revision)

			got, err := b.Get(ctx, "conversations")
			require.NoError(t, err)
			assert.Equal(t, `[{"id":"1"}]`, string(got.Value))
			assert.Equal(t, int64(2), got.Revision)
			assert.Equal(t, "writer-b", got.Writer)
			assert.False(t, got.UpdatedAt.IsZero())

			_, err = b.Put(ctx, "businessFields", []byte(`{}`), "writer-a")
			require.NoError(t, err)

			revs, err := b.Revisions(ctx)
			require.NoError(t, err)
			byKey := map[string]Record{}
			for _, r := range revs {
				byKey[r.Key] = r
			}
			assert.Len(t, byKey, 2)
			assert.Equal(t, int64(2), byKey["conversations"].Revision)
			assert.Equal(t, int64(1), byKey["businessFields"].Revision)
			assert.Equal(t, "writer-a", byKey["businessFields"].Writer)
		})
	}
}

func TestBackend_ValueIsCopied(t *testing.T) {
	b := NewMemoryBackend()
	ctx := context.Background()

	buf := []byte("original")
	_, err := b.Put(ctx, "k", buf, "w")
	require.NoError(t, err)
	buf[0] = 'X'

	got, err := b.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "original", string(got.Value))
}

func TestSQLiteBackend_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "client.db")
	ctx := context.Background()

	b, err := NewSQLiteBackend(path)
	require.NoError(t, err)
	_, err = b.Put(ctx, "businessFields", []byte(`{"product":"tea"}`), "w")
	require.NoError(t, err)
	require.NoError(t, b.Close())

	b, err = NewSQLiteBackend(path)
	require.NoError(t, err)
	defer b.Close()

	got, err := b.Get(ctx, "businessFields")
	require.NoError(t, err)
	assert.Equal(t, `{"product":"tea"}`, string(got.Value))
}

func TestSQLiteBackend_TwoConnectionsShareRevisions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shared.db")
	ctx := context.Background()

	a, err := NewSQLiteBackend(path)
	require.NoError(t, err)
	defer a.Close()
	b, err := NewSQLiteBackend(path)
	require.NoError(t, err)
	defer b.Close()

	_, err = a.Put(ctx, "conversations", []byte(`[]`), "proc-a")
	require.NoError(t, err)
	rec, err := b.Put(ctx, "conversations", []byte(`[]`), "proc-b")
	require.NoError(t, err)
	assert.Equal(t, int64(2), rec.Revision)
}

func TestBoltBackend_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.bolt")
	ctx := context.Background()

	b, err := NewBoltBackend(path)
	require.NoError(t, err)
	_, err = b.Put(ctx, "conversations", []byte(`[1]`), "w")
	require.NoError(t, err)
	require.NoError(t, b.Close())

	b, err = NewBoltBackend(path)
	require.NoError(t, err)
	defer b.Close()

	got, err := b.Get(ctx, "conversations")
	require.NoError(t, err)
	assert.Equal(t, `[1]`, string(got.Value))
	assert.Equal(t, int64(1), got.Revision)
}

func TestOpen(t *testing.T) {
	b, err := Open(DriverMemory, "")
	require.NoError(t, err)
	assert.IsType(t, &MemoryBackend{}, b)

	b, err = Open("", filepath.Join(t.TempDir(), "default.db"))
	require.NoError(t, err)
	assert.IsType(t, &SQLiteBackend{}, b)
	require.NoError(t, b.Close())

	_, err = Open("postgres", "")
	assert.Error(t, err)
}
