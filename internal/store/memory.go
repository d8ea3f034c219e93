package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/vyrodovalexey/taskcache/internal/model"
)

// MemoryStore implements Store with in-memory storage. Tasks are kept in
// first-insertion order.
type MemoryStore struct {
	mu    sync.RWMutex
	order []string
	tasks map[string]model.Task
}

// NewMemoryStore creates a new MemoryStore instance, optionally pre-populated.
func NewMemoryStore(seed ...model.Task) *MemoryStore {
	s := &MemoryStore{
		tasks: make(map[string]model.Task, len(seed)),
	}
	for _, t := range seed {
		s.put(t)
	}
	return s
}

// List returns all tasks from the store.
func (s *MemoryStore) List(ctx context.Context) ([]model.Task, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("list tasks: %w", ctx.Err())
	default:
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	tasks := make([]model.Task, 0, len(s.order))
	for _, id := range s.order {
		tasks = append(tasks, s.tasks[id])
	}

	return tasks, nil
}

// Get retrieves a task by its ID.
func (s *MemoryStore) Get(ctx context.Context, id string) (model.Task, bool, error) {
	select {
	case <-ctx.Done():
		return model.Task{}, false, fmt.Errorf("get task: %w", ctx.Err())
	default:
	}

	if id == "" {
		return model.Task{}, false, ErrInvalidID
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	task, exists := s.tasks[id]
	return task, exists, nil
}

// Save upserts a task by its ID.
func (s *MemoryStore) Save(ctx context.Context, task model.Task) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("save task: %w", ctx.Err())
	default:
	}

	if task.ID == "" {
		return ErrInvalidID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.put(task)

	return nil
}

// Delete removes a task from the store by its ID.
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("delete task: %w", ctx.Err())
	default:
	}

	if id == "" {
		return ErrInvalidID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[id]; !exists {
		return nil
	}

	delete(s.tasks, id)
	s.order = removeID(s.order, id)

	return nil
}

// DeleteWhere removes all tasks matching the predicate.
func (s *MemoryStore) DeleteWhere(ctx context.Context, match func(model.Task) bool) (int, error) {
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("delete tasks: %w", ctx.Err())
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.order[:0]
	removed := 0
	for _, id := range s.order {
		if match(s.tasks[id]) {
			delete(s.tasks, id)
			removed++
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept

	return removed, nil
}

// DeleteAll removes every task.
func (s *MemoryStore) DeleteAll(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("delete all tasks: %w", ctx.Err())
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.order = nil
	s.tasks = make(map[string]model.Task)

	return nil
}

// put must be called with the write lock held (or before the store is shared).
func (s *MemoryStore) put(task model.Task) {
	if _, exists := s.tasks[task.ID]; !exists {
		s.order = append(s.order, task.ID)
	}
	s.tasks[task.ID] = task
}

func removeID(order []string, id string) []string {
	for i, v := range order {
		if v == id {
			return append(order[:i], order[i+1:]...)
		}
	}
	return order
}
