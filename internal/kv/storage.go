// ABOUTME: Shared client storage handing out per-view handles over one Backend
// ABOUTME: Emits storage-change events to every view except the writer, and to all views for foreign-process writes

package kv

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/botdesk/internal/dedupe"
)

const (
	// seenTTL bounds how long an announced revision is remembered.
	seenTTL = 24 * time.Hour
	// seenMaxSize caps the remembered revisions; the store only has a handful of keys.
	seenMaxSize = 4096
)

// Listener receives storage-change events. It is invoked on its own
// goroutine, never inside the writer's Set call.
type Listener func(ChangeEvent)

// Storage is the durable store of one client process. Views obtain a
// Handle and write through it; every committed write is announced to the
// listeners of all other views, mirroring how a browser fires the storage
// event in every window except the one that wrote.
type Storage struct {
	backend    Backend
	instanceID string
	logger     *slog.Logger

	mu        sync.RWMutex
	listeners map[string]map[string]Listener // viewID -> listenerID -> fn

	// writeMu orders writes from every view of this process, so an Update's
	// read and write cannot straddle another view's commit.
	writeMu sync.Mutex

	seen *dedupe.Set // "key@revision" already announced
}

// New creates a Storage over backend. Pass nil logger for default.
func New(backend Backend, logger *slog.Logger) *Storage {
	if logger == nil {
		logger = slog.Default()
	}
	return &Storage{
		backend:    backend,
		instanceID: uuid.New().String(),
		logger:     logger.With("component", "storage"),
		listeners:  make(map[string]map[string]Listener),
		seen:       dedupe.New(seenTTL, seenMaxSize),
	}
}

// InstanceID identifies this Storage as a writer in backend records.
func (s *Storage) InstanceID() string {
	return s.instanceID
}

// View returns the handle a single view reads and writes through.
func (s *Storage) View(viewID string) *Handle {
	return &Handle{storage: s, viewID: viewID}
}

// Listen registers fn for changes made by any writer other than viewID.
// The returned function deregisters it and is safe to call more than once.
func (s *Storage) Listen(viewID string, fn Listener) (cancel func()) {
	listenerID := uuid.New().String()

	s.mu.Lock()
	if _, ok := s.listeners[viewID]; !ok {
		s.listeners[viewID] = make(map[string]Listener)
	}
	s.listeners[viewID][listenerID] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.listeners[viewID], listenerID)
			if len(s.listeners[viewID]) == 0 {
				delete(s.listeners, viewID)
			}
		})
	}
}

// Watch polls the backend every interval and announces writes made by other
// processes to all views. It blocks until ctx is cancelled. Revisions present
// when Watch starts are treated as already known.
func (s *Storage) Watch(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("watch interval must be positive, got %s", interval)
	}

	if err := s.poll(ctx, false); err != nil {
		s.logger.Warn("initial revision scan failed", "error", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.poll(ctx, true); err != nil {
				s.logger.Warn("revision poll failed", "error", err)
			}
		}
	}
}

// poll scans revisions once. With announce false it only primes the seen set.
func (s *Storage) poll(ctx context.Context, announce bool) error {
	records, err := s.backend.Revisions(ctx)
	if err != nil {
		return err
	}
	for _, rec := range records {
		if !s.seen.Observe(changeKey(rec.Key, rec.Revision)) {
			continue
		}
		if !announce || rec.Writer == s.instanceID {
			continue
		}
		s.logger.Debug("foreign write detected", "key", rec.Key, "revision", rec.Revision, "writer", rec.Writer)
		s.dispatch(ChangeEvent{Key: rec.Key, Revision: rec.Revision})
	}
	return nil
}

// Close closes the backend.
func (s *Storage) Close() error {
	return s.backend.Close()
}

// dispatch hands ev to every listener whose view did not originate it.
func (s *Storage) dispatch(ev ChangeEvent) {
	s.mu.RLock()
	var targets []Listener
	for viewID, fns := range s.listeners {
		if ev.Origin != "" && viewID == ev.Origin {
			continue
		}
		for _, fn := range fns {
			targets = append(targets, fn)
		}
	}
	s.mu.RUnlock()

	for _, fn := range targets {
		go fn(ev)
	}
}

func changeKey(key string, rev int64) string {
	return key + "@" + strconv.FormatInt(rev, 10)
}

// Handle is one view's access to Storage.
type Handle struct {
	storage *Storage
	viewID  string
}

// ViewID returns the view this handle writes on behalf of.
func (h *Handle) ViewID() string {
	return h.viewID
}

// Get returns the stored value for key, or ErrNotFound.
func (h *Handle) Get(ctx context.Context, key string) ([]byte, error) {
	rec, err := h.storage.backend.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	return rec.Value, nil
}

// Set replaces the value for key. Once the write is committed, every other
// view is notified; the writing view is not (it signals itself).
func (h *Handle) Set(ctx context.Context, key string, value []byte) error {
	h.storage.writeMu.Lock()
	defer h.storage.writeMu.Unlock()
	return h.put(ctx, key, value)
}

// Update reads key, passes the current value to fn and stores what fn
// returns, with no write from any other view of this Storage in between.
// current is nil when the key has never been written. A read error other
// than ErrNotFound is returned without calling fn, and an error from fn
// leaves the stored value untouched.
func (h *Handle) Update(ctx context.Context, key string, fn func(current []byte) ([]byte, error)) error {
	h.storage.writeMu.Lock()
	defer h.storage.writeMu.Unlock()

	var current []byte
	rec, err := h.storage.backend.Get(ctx, key)
	switch {
	case errors.Is(err, ErrNotFound):
	case err != nil:
		return err
	default:
		current = rec.Value
	}

	next, err := fn(current)
	if err != nil {
		return err
	}
	return h.put(ctx, key, next)
}

func (h *Handle) put(ctx context.Context, key string, value []byte) error {
	rec, err := h.storage.backend.Put(ctx, key, value, h.storage.instanceID)
	if err != nil {
		return err
	}
	h.storage.seen.Observe(changeKey(rec.Key, rec.Revision))
	h.storage.dispatch(ChangeEvent{Key: rec.Key, Revision: rec.Revision, Origin: h.viewID})
	return nil
}
