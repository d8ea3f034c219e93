package store

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/vyrodovalexey/taskcache/internal/model"
)

// FakeRemoteStore simulates a remote data source: every call is delayed by
// a fixed latency and fails with ErrUnavailable while the source is marked
// offline.
type FakeRemoteStore struct {
	backing *MemoryStore
	latency time.Duration
	offline atomic.Bool
}

// NewFakeRemoteStore creates a fake remote source over the given seed tasks.
func NewFakeRemoteStore(latency time.Duration, seed ...model.Task) *FakeRemoteStore {
	return &FakeRemoteStore{
		backing: NewMemoryStore(seed...),
		latency: latency,
	}
}

// SetAvailable toggles whether calls succeed.
func (f *FakeRemoteStore) SetAvailable(available bool) {
	f.offline.Store(!available)
}

// List returns all tasks after the simulated latency.
func (f *FakeRemoteStore) List(ctx context.Context) ([]model.Task, error) {
	if err := f.roundTrip(ctx, "list tasks"); err != nil {
		return nil, err
	}
	return f.backing.List(ctx)
}

// Get retrieves a task after the simulated latency.
func (f *FakeRemoteStore) Get(ctx context.Context, id string) (model.Task, bool, error) {
	if err := f.roundTrip(ctx, "get task"); err != nil {
		return model.Task{}, false, err
	}
	return f.backing.Get(ctx, id)
}

// Save upserts a task after the simulated latency.
func (f *FakeRemoteStore) Save(ctx context.Context, task model.Task) error {
	if err := f.roundTrip(ctx, "save task"); err != nil {
		return err
	}
	return f.backing.Save(ctx, task)
}

// Delete removes a task after the simulated latency.
func (f *FakeRemoteStore) Delete(ctx context.Context, id string) error {
	if err := f.roundTrip(ctx, "delete task"); err != nil {
		return err
	}
	return f.backing.Delete(ctx, id)
}

// DeleteWhere removes matching tasks after the simulated latency.
func (f *FakeRemoteStore) DeleteWhere(ctx context.Context, match func(model.Task) bool) (int, error) {
	if err := f.roundTrip(ctx, "delete tasks"); err != nil {
		return 0, err
	}
	return f.backing.DeleteWhere(ctx, match)
}

// DeleteAll removes every task after the simulated latency.
func (f *FakeRemoteStore) DeleteAll(ctx context.Context) error {
	if err := f.roundTrip(ctx, "delete all tasks"); err != nil {
		return err
	}
	return f.backing.DeleteAll(ctx)
}

func (f *FakeRemoteStore) roundTrip(ctx context.Context, op string) error {
	if f.latency > 0 {
		timer := time.NewTimer(f.latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s: %w", op, ctx.Err())
		case <-timer.C:
		}
	}
	if f.offline.Load() {
		return fmt.Errorf("%s: %w", op, ErrUnavailable)
	}
	return nil
}

// SampleTasks returns the demo tasks served by a freshly started fake source.
func SampleTasks() []model.Task {
	return []model.Task{
		{ID: "0", Title: "Build tower in Pisa", Description: "Ground looks good, no foundation work required."},
		{ID: "1", Title: "Finish bridge in Tacoma", Description: "Found awesome girders at half the cost!"},
		{ID: "2", Title: "Oh yes!", Description: "I demand trial by unit testing"},
		{ID: "3", Title: "Espresso", Description: "UI testing for Android", Completed: true},
	}
}
