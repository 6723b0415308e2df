package store

import (
	"context"
	"sync"

	"tiqr/internal/secret"
	"tiqr/pkg/platform/sentinel"
)

// InMemoryStore keeps encrypted secrets in a map. Intended for tests and
// ephemeral command runs.
type InMemoryStore struct {
	mu    sync.RWMutex
	blobs map[secret.ID][]byte
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{blobs: make(map[secret.ID][]byte)}
}

func (s *InMemoryStore) Put(_ context.Context, id secret.ID, blob []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[id] = append([]byte(nil), blob...)
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, id secret.ID) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	blob, ok := s.blobs[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return append([]byte(nil), blob...), nil
}

func (s *InMemoryStore) Delete(_ context.Context, id secret.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[id]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.blobs, id)
	return nil
}
