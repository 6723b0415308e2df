package store

import (
	"context"
	"sync"

	"tiqr/internal/notification/models"
)

// InMemorySlot keeps the entry in process memory.
type InMemorySlot struct {
	mu    sync.Mutex
	entry *models.Entry
}

func NewInMemory() *InMemorySlot {
	return &InMemorySlot{}
}

func (s *InMemorySlot) Put(_ context.Context, e models.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entry = &e
	return nil
}

func (s *InMemorySlot) Get(_ context.Context) (*models.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entry == nil {
		return nil, nil
	}
	e := *s.entry
	return &e, nil
}

func (s *InMemorySlot) Take(_ context.Context) (*models.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entry
	s.entry = nil
	return e, nil
}

func (s *InMemorySlot) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entry = nil
	return nil
}
