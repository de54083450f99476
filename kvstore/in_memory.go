package kvstore

import (
	"context"
	"strings"
	"sync"
	"time"
)

// InMemoryStore is a volatile core.KVStore keeping values and sets in
// process-local maps. It is safe for concurrent access and mimics the
// expiry semantics of a remote store: an expired key is silently gone, with
// the check performed lazily on every access rather than by a sweeper
// goroutine. Best suited for tests and single-process prototypes.
type InMemoryStore struct {
	mu     sync.Mutex
	values map[string]entry
	sets   map[string]*setEntry
	now    func() time.Time
}

type entry struct {
	value   string
	expires time.Time
}

type setEntry struct {
	members map[string]struct{}
	expires time.Time // zero means no expiry
}

// NewInMemoryStore constructs an empty in-memory key-value store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		values: make(map[string]entry),
		sets:   make(map[string]*setEntry),
		now:    time.Now,
	}
}

// Get returns the value at key, treating expired entries as absent.
func (s *InMemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.values[key]
	if !ok || s.expired(e.expires) {
		delete(s.values, key)
		return "", false, nil
	}
	return e.value, true, nil
}

// Set overwrites key with value and resets its expiry. A TTL of zero or
// less stores the key already expired, which the next access removes.
func (s *InMemoryStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = entry{value: value, expires: s.now().Add(ttl)}
	return nil
}

// Delete removes key, reporting whether a live entry existed.
func (s *InMemoryStore) Delete(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.values[key]; ok {
		delete(s.values, key)
		return !s.expired(e.expires), nil
	}
	if set, ok := s.sets[key]; ok {
		delete(s.sets, key)
		return !s.expired(set.expires), nil
	}
	return false, nil
}

// Exists reports whether key holds a live value or a live non-empty set.
func (s *InMemoryStore) Exists(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.values[key]; ok {
		if s.expired(e.expires) {
			delete(s.values, key)
			return false, nil
		}
		return true, nil
	}
	if set, ok := s.liveSet(key); ok {
		return len(set.members) > 0, nil
	}
	return false, nil
}

// SetAdd adds member to the set at key, creating it when absent.
func (s *InMemoryStore) SetAdd(_ context.Context, key, member string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.liveSet(key)
	if !ok {
		set = &setEntry{members: make(map[string]struct{})}
		s.sets[key] = set
	}
	set.members[member] = struct{}{}
	return nil
}

// SetRemove removes member from the set at key.
func (s *InMemoryStore) SetRemove(_ context.Context, key, member string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if set, ok := s.liveSet(key); ok {
		delete(set.members, member)
	}
	return nil
}

// SetMembers returns a snapshot of the set at key, empty when absent.
func (s *InMemoryStore) SetMembers(_ context.Context, key string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.liveSet(key)
	if !ok {
		return []string{}, nil
	}
	members := make([]string, 0, len(set.members))
	for m := range set.members {
		members = append(members, m)
	}
	return members, nil
}

// SetLen returns the cardinality of the set at key.
func (s *InMemoryStore) SetLen(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if set, ok := s.liveSet(key); ok {
		return int64(len(set.members)), nil
	}
	return 0, nil
}

// Expire resets the TTL of a value or set key.
func (s *InMemoryStore) Expire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.values[key]; ok && !s.expired(e.expires) {
		e.expires = s.now().Add(ttl)
		s.values[key] = e
		return true, nil
	}
	if set, ok := s.liveSet(key); ok {
		set.expires = s.now().Add(ttl)
		return true, nil
	}
	return false, nil
}

// ScanPrefix returns every live key (value or set) starting with prefix.
func (s *InMemoryStore) ScanPrefix(_ context.Context, prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := []string{}
	for k, e := range s.values {
		if strings.HasPrefix(k, prefix) && !s.expired(e.expires) {
			keys = append(keys, k)
		}
	}
	for k := range s.sets {
		if set, ok := s.liveSet(k); ok && len(set.members) > 0 && strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

// liveSet returns the set at key after applying lazy expiry; caller must
// hold the lock.
func (s *InMemoryStore) liveSet(key string) (*setEntry, bool) {
	set, ok := s.sets[key]
	if !ok {
		return nil, false
	}
	if s.expired(set.expires) {
		delete(s.sets, key)
		return nil, false
	}
	return set, true
}

func (s *InMemoryStore) expired(at time.Time) bool {
	return !at.IsZero() && !at.After(s.now())
}
