// ABOUTME: Bounded, expiring set of change identities already announced to views
// ABOUTME: Oldest entries are evicted first; expiry is applied lazily on access

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

// seenEntry is one remembered identity.
type seenEntry struct {
	key string
	at  time.Time
}

// Set remembers keys for ttl, holding at most maxSize of them. Entries are
// kept in a list ordered by last observation so both expiry and eviction
// only ever look at the front.
type Set struct {
	mu      sync.Mutex
	index   map[string]*list.Element
	order   *list.List // oldest at front
	ttl     time.Duration
	maxSize int
	now     func() time.Time
}

// New creates a Set. A non-positive maxSize means 1.
func New(ttl time.Duration, maxSize int) *Set {
	if maxSize < 1 {
		maxSize = 1
	}
	return &Set{
		index:   make(map[string]*list.Element),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
	}
}

// Seen reports whether key is currently remembered, without recording it.
func (s *Set) Seen(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.expireLocked()
	_, ok := s.index[key]
	return ok
}

// Observe records key and reports whether it was new. The check and the
// insert happen under one lock, so two goroutines observing the same key
// can't both see it as new.
func (s *Set) Observe(key string) (fresh bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.expireLocked()
	now := s.now()

	if el, ok := s.index[key]; ok {
		el.Value.(*seenEntry).at = now
		s.order.MoveToBack(el)
		return false
	}

	for s.order.Len() >= s.maxSize {
		s.removeLocked(s.order.Front())
	}
	s.index[key] = s.order.PushBack(&seenEntry{key: key, at: now})
	return true
}

// Len returns the number of remembered keys.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.expireLocked()
	return s.order.Len()
}

// expireLocked drops entries older than ttl. Must be called with mu held.
func (s *Set) expireLocked() {
	cutoff := s.now().Add(-s.ttl)
	for front := s.order.Front(); front != nil; front = s.order.Front() {
		if front.Value.(*seenEntry).at.After(cutoff) {
			return
		}
		s.removeLocked(front)
	}
}

func (s *Set) removeLocked(el *list.Element) {
	if el == nil {
		return
	}
	s.order.Remove(el)
	delete(s.index, el.Value.(*seenEntry).key)
}
