package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	agerrors "github.com/sweetpotato0/agri-advisor/errors"
	"github.com/sweetpotato0/agri-advisor/session"
)

type entry struct {
	record  *session.Record
	expires time.Time
}

// InMemoryStore keeps sessions in process memory. With a TTL, sessions not
// saved within the TTL are treated as gone.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]entry
	ttl      time.Duration
	now      func() time.Time
}

// NewInMemoryStore creates a store without expiry.
func NewInMemoryStore() *InMemoryStore {
	return NewInMemoryStoreWithTTL(0)
}

// NewInMemoryStoreWithTTL creates a store whose sessions expire ttl after
// their last save. ttl <= 0 disables expiry.
func NewInMemoryStoreWithTTL(ttl time.Duration) *InMemoryStore {
	return &InMemoryStore{
		sessions: make(map[string]entry),
		ttl:      ttl,
		now:      time.Now,
	}
}

// Save stores a copy of record.
func (s *InMemoryStore) Save(_ context.Context, record *session.Record) error {
	if record == nil || record.ID == "" {
		return fmt.Errorf("session record cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e := entry{record: record.Clone()}
	if s.ttl > 0 {
		e.expires = s.now().Add(s.ttl)
	}
	s.sessions[record.ID] = e
	return nil
}

// Load returns a copy of the stored record.
func (s *InMemoryStore) Load(_ context.Context, id string) (*session.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.live(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", agerrors.ErrSessionNotFound, id)
	}
	return e.record.Clone(), nil
}

// Delete removes a session.
func (s *InMemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.live(id); !ok {
		return fmt.Errorf("%w: %s", agerrors.ErrSessionNotFound, id)
	}
	delete(s.sessions, id)
	return nil
}

// List returns live session IDs in sorted order.
func (s *InMemoryStore) List(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		if _, ok := s.live(id); ok {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Count returns the number of live sessions.
func (s *InMemoryStore) Count(ctx context.Context) (int, error) {
	ids, err := s.List(ctx)
	return len(ids), err
}

// Exists reports whether a live session exists.
func (s *InMemoryStore) Exists(_ context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.live(id)
	return ok, nil
}

// Prune drops expired sessions and returns how many were removed.
func (s *InMemoryStore) Prune() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id := range s.sessions {
		if _, ok := s.live(id); !ok {
			delete(s.sessions, id)
			n++
		}
	}
	return n
}

// live must be called with s.mu held.
func (s *InMemoryStore) live(id string) (entry, bool) {
	e, ok := s.sessions[id]
	if !ok {
		return entry{}, false
	}
	if !e.expires.IsZero() && !s.now().Before(e.expires) {
		return entry{}, false
	}
	return e, true
}
