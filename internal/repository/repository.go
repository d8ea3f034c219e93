// Package repository serves tasks to presenters through a single-slot cache
// over a backing store.
//
// The cache holds the unfiltered result of the last successful full load.
// It is either Stale (absent) or Fresh (present). GetAll on a Fresh cache
// never touches the store; every mutation, successful or not, drops the
// snapshot before observers hear about it, so the next GetAll reloads.
// Single-task reads always go to the store.
package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/vyrodovalexey/taskcache/internal/model"
	"github.com/vyrodovalexey/taskcache/internal/store"
)

// Repository errors.
var (
	ErrDataUnavailable = errors.New("task data not available")
	ErrInvalidTask     = errors.New("invalid task")
	ErrTaskNotFound    = errors.New("task not found")
)

// CacheState describes whether the repository holds a usable snapshot.
type CacheState int

// Cache states.
const (
	StateStale CacheState = iota
	StateFresh
)

// String implements fmt.Stringer.
func (s CacheState) String() string {
	if s == StateFresh {
		return "fresh"
	}
	return "stale"
}

// Observer is notified after every successful change to the task collection.
type Observer interface {
	TaskChanged(event model.TaskEvent)
}

// Option configures a Repository.
type Option func(*Repository)

// WithLogger sets the repository logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Repository) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithObserver registers an observer for change events.
func WithObserver(observer Observer) Option {
	return func(r *Repository) {
		r.observer = observer
	}
}

// Repository is the single entry point for reading and writing tasks.
// It is safe for concurrent use; the store is never called with the cache
// lock held.
type Repository struct {
	source   store.Store
	logger   *zap.Logger
	observer Observer

	mu         sync.Mutex
	snapshot   []model.Task
	fresh      bool
	generation uint64 // bumped on every invalidation
}

// New creates a Repository over the given backing store. The cache starts Stale.
func New(source store.Store, opts ...Option) *Repository {
	r := &Repository{
		source: source,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	cacheFresh.Set(0)
	return r
}

// State reports the current cache state.
func (r *Repository) State() CacheState {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.fresh {
		return StateFresh
	}
	return StateStale
}

// GetAll returns every task. With forceUpdate the cache is dropped first.
// A Fresh cache is served without calling the store; otherwise the store is
// loaded and, on success, the result becomes the new snapshot. A load that
// started before a later invalidation is returned to the caller but not
// cached. Failures leave the cache untouched and wrap ErrDataUnavailable.
func (r *Repository) GetAll(ctx context.Context, forceUpdate bool) ([]model.Task, error) {
	if forceUpdate {
		r.invalidate("refresh")
	}

	r.mu.Lock()
	if r.fresh {
		tasks := cloneTasks(r.snapshot)
		r.mu.Unlock()
		cacheHits.Inc()
		return tasks, nil
	}
	generation := r.generation
	r.mu.Unlock()

	cacheMisses.Inc()
	tasks, err := r.source.List(ctx)
	if err != nil {
		sourceErrors.WithLabelValues("list").Inc()
		r.logger.Warn("failed to load tasks", zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrDataUnavailable, err)
	}

	r.mu.Lock()
	if r.generation == generation {
		r.snapshot = cloneTasks(tasks)
		r.fresh = true
		cacheFresh.Set(1)
	}
	r.mu.Unlock()

	r.logger.Debug("tasks loaded from source", zap.Int("count", len(tasks)))
	return tasks, nil
}

// Get looks a task up in the store, bypassing the cache. A missing task is
// reported with found == false and a nil error.
func (r *Repository) Get(ctx context.Context, id string) (model.Task, bool, error) {
	task, found, err := r.source.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrInvalidID) {
			return model.Task{}, false, fmt.Errorf("get task: %w", err)
		}
		sourceErrors.WithLabelValues("get").Inc()
		r.logger.Warn("failed to load task", zap.String("task_id", id), zap.Error(err))
		return model.Task{}, false, fmt.Errorf("%w: %w", ErrDataUnavailable, err)
	}
	return task, found, nil
}

// Save validates and stores a task, inserting or replacing by ID. Empty
// tasks are rejected with ErrInvalidTask before reaching the store.
func (r *Repository) Save(ctx context.Context, task model.Task) error {
	if err := task.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidTask, err)
	}

	err := r.source.Save(ctx, task)
	r.invalidate("save")
	if err != nil {
		return r.mutationFailed("save", err)
	}

	r.notify(model.EventSaved, task.ID)
	return nil
}

// SetCompleted reads the task from the store and writes back a copy with
// the completion flag set. A missing task yields ErrTaskNotFound.
func (r *Repository) SetCompleted(ctx context.Context, id string, completed bool) (model.Task, error) {
	task, found, err := r.Get(ctx, id)
	if err != nil {
		return model.Task{}, err
	}
	if !found {
		return model.Task{}, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}

	updated := task.WithCompleted(completed)

	err = r.source.Save(ctx, updated)
	r.invalidate("set_completed")
	if err != nil {
		return model.Task{}, r.mutationFailed("set_completed", err)
	}

	if completed {
		r.notify(model.EventCompleted, id)
	} else {
		r.notify(model.EventActivated, id)
	}
	return updated, nil
}

// Complete marks a task as completed.
func (r *Repository) Complete(ctx context.Context, id string) (model.Task, error) {
	return r.SetCompleted(ctx, id, true)
}

// Activate marks a task as active again.
func (r *Repository) Activate(ctx context.Context, id string) (model.Task, error) {
	return r.SetCompleted(ctx, id, false)
}

// Delete removes a task. Deleting a missing task succeeds.
func (r *Repository) Delete(ctx context.Context, id string) error {
	err := r.source.Delete(ctx, id)
	r.invalidate("delete")
	if err != nil {
		return r.mutationFailed("delete", err)
	}

	r.notify(model.EventDeleted, id)
	return nil
}

// ClearCompleted removes every completed task and reports how many went.
func (r *Repository) ClearCompleted(ctx context.Context) (int, error) {
	removed, err := r.source.DeleteWhere(ctx, store.IsCompleted)
	r.invalidate("clear_completed")
	if err != nil {
		return 0, r.mutationFailed("clear_completed", err)
	}

	r.notify(model.EventCleared, "")
	return removed, nil
}

// DeleteAll removes every task.
func (r *Repository) DeleteAll(ctx context.Context) error {
	err := r.source.DeleteAll(ctx)
	r.invalidate("delete_all")
	if err != nil {
		return r.mutationFailed("delete_all", err)
	}

	r.notify(model.EventDeletedAll, "")
	return nil
}

// Invalidate drops the snapshot without calling the store. Use it when the
// backing data may have changed behind the repository's back.
func (r *Repository) Invalidate() {
	r.invalidate("explicit")
	r.notify(model.EventInvalidated, "")
}

func (r *Repository) invalidate(reason string) {
	r.mu.Lock()
	r.snapshot = nil
	r.fresh = false
	r.generation++
	cacheFresh.Set(0)
	r.mu.Unlock()

	cacheInvalidations.WithLabelValues(reason).Inc()
}

func (r *Repository) mutationFailed(op string, err error) error {
	sourceErrors.WithLabelValues(op).Inc()
	r.logger.Warn("task mutation failed", zap.String("operation", op), zap.Error(err))
	return fmt.Errorf("%s: %w", op, err)
}

func (r *Repository) notify(eventType model.EventType, taskID string) {
	if r.observer == nil {
		return
	}
	r.observer.TaskChanged(model.NewTaskEvent(eventType, taskID))
}

func cloneTasks(tasks []model.Task) []model.Task {
	out := make([]model.Task, len(tasks))
	copy(out, tasks)
	return out
}
