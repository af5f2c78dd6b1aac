package session

import (
	"container/list"
	"fmt"
	"sync"
	"time"
)

// Store is a bounded, LRU-evicting map from session id to Session.
// Both lookups and inserts count as a "use" and promote the entry to
// most-recently-used; eviction of the least-recently-used entry on
// overflow is silent (no error, no event) per the invariants this store
// implements.
type Store struct {
	mu       sync.Mutex
	capacity int
	entries  map[string]*list.Element
	order    *list.List // front = most recently used
}

type entry struct {
	id      string
	session Session
}

// NewStore creates a store bounded to the given capacity. A capacity of
// zero or less is treated as 1 to avoid an unusable store.
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = 1
	}
	return &Store{
		capacity: capacity,
		entries:  make(map[string]*list.Element, capacity),
		order:    list.New(),
	}
}

// InsertNewAgreement adds a brand-new session. It fails if a session
// with this id already exists; callers must generate fresh ids (spec
// recommends a UUID) rather than relying on this call to deduplicate
// meaningfully.
func (s *Store) InsertNewAgreement(id string, suite Suite, km KeyMaterial) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[id]; exists {
		return fmt.Errorf("session %s already exists", id)
	}

	sess := Session{ID: id, Suite: suite, KeyMaterial: km, CreatedAt: time.Now()}
	el := s.order.PushFront(&entry{id: id, session: sess})
	s.entries[id] = el

	if s.order.Len() > s.capacity {
		s.evictOldest()
	}
	return nil
}

// GetKeyMaterial returns a copy of the session's current key material
// and touches it as most-recently-used. Returns false if the id is not
// present.
func (s *Store) GetKeyMaterial(id string) (KeyMaterial, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.entries[id]
	if !ok {
		return KeyMaterial{}, false
	}
	s.order.MoveToFront(el)
	return el.Value.(*entry).session.KeyMaterial, true
}

// UpdateKeyMaterial replaces the key material for an existing session
// and touches it as most-recently-used. It fails if the id is not
// present; callers must not use it to create sessions.
func (s *Store) UpdateKeyMaterial(id string, km KeyMaterial) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.entries[id]
	if !ok {
		return fmt.Errorf("session %s not found", id)
	}
	e := el.Value.(*entry)
	e.session.KeyMaterial = km
	s.order.MoveToFront(el)
	return nil
}

// GetSharedSecret returns the usable AEAD key for a session, touching it
// as most-recently-used. It returns false both when the id is absent and
// when the session's key material has no usable secret yet (the
// HybridPending state).
func (s *Store) GetSharedSecret(id string) ([]byte, bool) {
	km, ok := s.GetKeyMaterial(id)
	if !ok {
		return nil, false
	}
	return km.SharedSecret()
}

// RemoveAgreement deletes a session if present. Removing an id that does
// not exist is a no-op, not an error: callers can call this
// unconditionally on every error path without checking existence first.
func (s *Store) RemoveAgreement(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.entries[id]
	if !ok {
		return
	}
	s.order.Remove(el)
	delete(s.entries, id)
}

// Len returns the current number of sessions held by the store.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.order.Len()
}

// evictOldest removes the least-recently-used entry. Callers must hold
// s.mu.
func (s *Store) evictOldest() {
	oldest := s.order.Back()
	if oldest == nil {
		return
	}
	s.order.Remove(oldest)
	delete(s.entries, oldest.Value.(*entry).id)
}
