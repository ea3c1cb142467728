package evidence

import (
	"context"
	"fmt"
	"sync"
)

type blob struct {
	data        []byte
	contentType string
}

// MemoryStore keeps blobs in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	objs map[string]blob
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objs: map[string]blob{}}
}

func (s *MemoryStore) Put(_ context.Context, key string, data []byte, contentType string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.objs[key]; exists {
		return "", fmt.Errorf("blob %s already exists", key)
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	s.objs[key] = blob{data: cp, contentType: contentType}
	return "memory://" + key, nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objs, key)
	return nil
}

// Len returns the number of stored blobs.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objs)
}
