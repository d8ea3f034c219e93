package repository

import (
	"context"

	"github.com/vyrodovalexey/taskcache/internal/model"
)

// Future is the result of an asynchronous repository call. It resolves
// exactly once.
type Future[T any] struct {
	done  chan struct{}
	value T
	err   error
}

// Go runs fn in a new goroutine and returns its Future. fn receives a
// context that keeps ctx's values but not its cancellation, so the work
// completes (and the cache is updated) even if the caller stops waiting.
func Go[T any](ctx context.Context, fn func(context.Context) (T, error)) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}
	detached := context.WithoutCancel(ctx)
	go func() {
		defer close(f.done)
		f.value, f.err = fn(detached)
	}()
	return f
}

// Done is closed once the result is available.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Await blocks until the result is available or ctx is done. Giving up on
// the wait does not cancel the underlying work.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Lookup is the result of an asynchronous single-task read.
type Lookup struct {
	Task  model.Task
	Found bool
}

// GetAllAsync is the asynchronous form of GetAll.
func (r *Repository) GetAllAsync(ctx context.Context, forceUpdate bool) *Future[[]model.Task] {
	return Go(ctx, func(ctx context.Context) ([]model.Task, error) {
		return r.GetAll(ctx, forceUpdate)
	})
}

// GetAsync is the asynchronous form of Get.
func (r *Repository) GetAsync(ctx context.Context, id string) *Future[Lookup] {
	return Go(ctx, func(ctx context.Context) (Lookup, error) {
		task, found, err := r.Get(ctx, id)
		return Lookup{Task: task, Found: found}, err
	})
}
