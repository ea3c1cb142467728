package realtime

import (
	"context"
	"sort"
	"sync"
)

// Store is a client-side aggregate keyed by entity id. Snapshots replace the
// whole aggregate; push events upsert one entity at a time, so applying the
// same event twice leaves the same state.
type Store[T any] struct {
	key func(T) string

	mu    sync.RWMutex
	items map[string]T
	rev   map[string]uint64
	next  uint64
}

func NewStore[T any](key func(T) string) *Store[T] {
	return &Store[T]{key: key, items: map[string]T{}, rev: map[string]uint64{}}
}

// ReplaceAll overwrites every entity with the snapshot. Entities missing from
// the snapshot are dropped and pending optimistic reverts are voided.
func (s *Store[T]) ReplaceAll(items []T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = make(map[string]T, len(items))
	s.rev = make(map[string]uint64, len(items))
	for _, it := range items {
		s.setLocked(s.key(it), it)
	}
}

// Apply upserts one entity.
func (s *Store[T]) Apply(item T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setLocked(s.key(item), item)
}

func (s *Store[T]) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, id)
	delete(s.rev, id)
}

// ApplyOptimistic upserts item ahead of server confirmation. The returned
// revert restores the previous value unless the entity has been written
// again since, by a snapshot or a later event.
func (s *Store[T]) ApplyOptimistic(item T) (revert func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.key(item)
	prev, existed := s.items[id]
	s.setLocked(id, item)
	rev := s.rev[id]

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if cur, ok := s.rev[id]; !ok || cur != rev {
				return
			}
			if existed {
				s.setLocked(id, prev)
				return
			}
			delete(s.items, id)
			delete(s.rev, id)
		})
	}
}

func (s *Store[T]) setLocked(id string, item T) {
	s.next++
	s.items[id] = item
	s.rev[id] = s.next
}

func (s *Store[T]) Get(id string) (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	it, ok := s.items[id]
	return it, ok
}

// List returns the entities ordered by id.
func (s *Store[T]) List() []T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.items))
	for id := range s.items {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]T, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.items[id])
	}
	return out
}

func (s *Store[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Count derives a counter from the aggregate instead of keeping a separate
// running total.
func (s *Store[T]) Count(match func(T) bool) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, it := range s.items {
		if match(it) {
			n++
		}
	}
	return n
}

// SnapshotInto adapts a list fetch into a Snapshot that replaces store.
func SnapshotInto[T any](store *Store[T], fetch func(ctx context.Context) ([]T, error)) Snapshot {
	return func(ctx context.Context) (func(), error) {
		items, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		return func() { store.ReplaceAll(items) }, nil
	}
}
