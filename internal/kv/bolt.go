// ABOUTME: bbolt implementation of Backend for single-process deployments
// ABOUTME: Values and revision metadata live in separate buckets of one file

package kv

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	valuesBucket = []byte("values")
	metaBucket   = []byte("meta")
)

// boltMeta is the JSON document kept per key in the meta bucket.
type boltMeta struct {
	Revision  int64     `json:"revision"`
	Writer    string    `json:"writer"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BoltBackend implements Backend on a bbolt file. bbolt holds an exclusive
// file lock, so unlike SQLite only one process can have the file open.
type BoltBackend struct {
	db     *bolt.DB
	logger *slog.Logger
}

// NewBoltBackend opens (creating if needed) the bbolt file at path.
func NewBoltBackend(path string) (*BoltBackend, error) {
	logger := slog.Default().With("component", "kv.bolt")

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening bolt file: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(valuesBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(metaBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	logger.Info("bolt storage initialized", "path", path)
	return &BoltBackend{db: db, logger: logger}, nil
}

// Get retrieves the record for key.
func (b *BoltBackend) Get(ctx context.Context, key string) (*Record, error) {
	var rec *Record
	err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(valuesBucket).Get([]byte(key))
		if v == nil {
			return ErrNotFound
		}
		meta, err := readMeta(tx, key)
		if err != nil {
			return err
		}
		rec = &Record{
			Key:       key,
			Value:     append([]byte(nil), v...), // bolt memory is only valid inside the tx
			Revision:  meta.Revision,
			Writer:    meta.Writer,
			UpdatedAt: meta.UpdatedAt,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Put stores value and its bumped revision in one transaction.
func (b *BoltBackend) Put(ctx context.Context, key string, value []byte, writer string) (*Record, error) {
	var rec *Record
	err := b.db.Update(func(tx *bolt.Tx) error {
		meta, err := readMeta(tx, key)
		if err != nil {
			return err
		}
		meta.Revision++
		meta.Writer = writer
		meta.UpdatedAt = time.Now().UTC()

		raw, err := json.Marshal(meta)
		if err != nil {
			return err
		}
		if err := tx.Bucket(valuesBucket).Put([]byte(key), value); err != nil {
			return err
		}
		if err := tx.Bucket(metaBucket).Put([]byte(key), raw); err != nil {
			return err
		}
		rec = &Record{
			Key:       key,
			Value:     append([]byte(nil), value...),
			Revision:  meta.Revision,
			Writer:    writer,
			UpdatedAt: meta.UpdatedAt,
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("writing record: %w", err)
	}

	b.logger.Debug("record written", "key", key, "revision", rec.Revision, "bytes", len(value))
	return rec, nil
}

// Revisions lists revision metadata for every key.
func (b *BoltBackend) Revisions(ctx context.Context) ([]Record, error) {
	var out []Record
	err := b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(metaBucket).ForEach(func(k, v []byte) error {
			var meta boltMeta
			if err := json.Unmarshal(v, &meta); err != nil {
				// Skip malformed entries instead of failing the whole listing
				b.logger.Warn("skipping malformed meta entry", "key", string(k), "error", err)
				return nil
			}
			out = append(out, Record{
				Key:       string(k),
				Revision:  meta.Revision,
				Writer:    meta.Writer,
				UpdatedAt: meta.UpdatedAt,
			})
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("listing revisions: %w", err)
	}
	return out, nil
}

// Close releases the file lock.
func (b *BoltBackend) Close() error {
	b.logger.Info("closing bolt storage")
	return b.db.Close()
}

// readMeta returns the stored meta for key, or a zero meta when absent.
func readMeta(tx *bolt.Tx, key string) (boltMeta, error) {
	var meta boltMeta
	raw := tx.Bucket(metaBucket).Get([]byte(key))
	if raw == nil {
		return meta, nil
	}
	if err := json.Unmarshal(raw, &meta); err != nil {
		return meta, fmt.Errorf("decoding meta for %q: %w", key, err)
	}
	return meta, nil
}
