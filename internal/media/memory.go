package media

import (
	"context"
	"sync"
)

type MemoryStore struct {
	*index

	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemoryStore(prefix string) *MemoryStore {
	return &MemoryStore{
		index: newIndex(prefix),
		data:  map[string][]byte{},
	}
}

func (s *MemoryStore) Put(_ context.Context, obj Object) (Handle, error) {
	h := s.issue(obj)

	s.mu.Lock()
	s.data[h.ID] = obj.Data
	s.mu.Unlock()

	s.add(h)
	return h, nil
}

func (s *MemoryStore) Open(_ context.Context, id string) (Object, error) {
	h, ok := s.get(id)
	if !ok {
		return Object{}, ErrNotFound
	}

	s.mu.RLock()
	data := s.data[id]
	s.mu.RUnlock()

	return Object{Data: data, ContentType: h.ContentType, Filename: h.Filename}, nil
}

func (s *MemoryStore) Release(_ context.Context, id string) error {
	if _, ok := s.remove(id); !ok {
		return ErrNotFound
	}
	s.mu.Lock()
	delete(s.data, id)
	s.mu.Unlock()
	return nil
}

var _ Store = (*MemoryStore)(nil)
