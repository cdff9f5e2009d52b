package docstore

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore keeps documents in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[Collection]map[string]Entry
	users   map[string]User
	keys    map[string]APIKey // by hash
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: map[Collection]map[string]Entry{},
		users:   map[string]User{},
		keys:    map[string]APIKey{},
	}
}

func (s *MemoryStore) Get(_ context.Context, coll Collection, key string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[coll][key]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, coll, key)
	}
	return &e, nil
}

func (s *MemoryStore) Put(_ context.Context, coll Collection, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.entries[coll]
	if !ok {
		m = map[string]Entry{}
		s.entries[coll] = m
	}
	e.Moment = e.Moment.UTC()
	m[e.Key] = e
	return nil
}

func (s *MemoryStore) Clear(_ context.Context, coll Collection) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.entries[coll])
	delete(s.entries, coll)
	return n, nil
}

func (s *MemoryStore) CreateUser(_ context.Context, u User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.ID]; !ok {
		s.users[u.ID] = u
	}
	return nil
}

func (s *MemoryStore) GetUser(_ context.Context, id string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("%w: user %s", ErrNotFound, id)
	}
	return &u, nil
}

func (s *MemoryStore) CreateAPIKey(_ context.Context, k APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[k.Hash] = k
	return nil
}

func (s *MemoryStore) APIKeyByHash(_ context.Context, hash string) (*APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	k, ok := s.keys[hash]
	if !ok {
		return nil, ErrNotFound
	}
	return &k, nil
}

func (s *MemoryStore) Close(context.Context) error { return nil }
