package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is the in-process fallback used when Redis is not
// reachable at boot (and in tests). It emulates the networked store
// semantics exactly: versioned compare-and-update under a lock and
// TTL via cancellable timers re-armed on every mutation.
// Not suitable for multi-instance deployments.
type MemoryStore struct {
	mu     sync.Mutex
	data   map[string]*Session
	timers map[string]*time.Timer
	ttl    time.Duration
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		data:   make(map[string]*Session),
		timers: make(map[string]*time.Timer),
		ttl:    ttl,
	}
}

func (s *MemoryStore) Mode() string { return "memory" }

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Create(_ context.Context, sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[sess.Id]; ok {
		return ErrExists
	}
	sess.CreatedAt = now()
	sess.UpdatedAt = sess.CreatedAt
	cp := *sess
	s.data[sess.Id] = &cp
	s.rearm(sess.Id)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.data[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *sess
	return &cp, nil
}

func (s *MemoryStore) Update(_ context.Context, id string, expected int64, mutate func(*Session)) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.data[id]
	if !ok {
		return nil, ErrNotFound
	}
	if sess.Version != expected {
		return nil, ErrConflict
	}
	cp := *sess
	mutate(&cp)
	cp.Version++
	cp.UpdatedAt = now()
	s.data[id] = &cp
	s.rearm(id)
	out := cp
	return &out, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drop(id)
	return nil
}

func (s *MemoryStore) Refresh(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[id]; !ok {
		return ErrNotFound
	}
	s.rearm(id)
	return nil
}

// rearm resets the expiry timer of a key. Callers must hold the lock.
func (s *MemoryStore) rearm(id string) {
	if t, ok := s.timers[id]; ok {
		t.Stop()
	}
	// Stop doesn't cancel a callback that already fired and is blocked
	// on the lock, so the callback checks it is still the current timer:
	// a mutation racing the expiry instant wins, as it would against
	// a server-side EXPIRE.
	var t *time.Timer
	t = time.AfterFunc(s.ttl, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.timers[id] == t {
			s.drop(id)
		}
	})
	s.timers[id] = t
}

// drop removes a key and cancels its timer. Callers must hold the lock.
func (s *MemoryStore) drop(id string) {
	if t, ok := s.timers[id]; ok {
		t.Stop()
		delete(s.timers, id)
	}
	delete(s.data, id)
}
