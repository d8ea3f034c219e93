package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/vyrodovalexey/taskcache/internal/model"
)

func TestNewMemoryStore(t *testing.T) {
	// Act
	store := NewMemoryStore()

	// Assert
	if store == nil {
		t.Fatal("NewMemoryStore() returned nil")
	}
	if store.tasks == nil {
		t.Error("tasks map should be initialized")
	}
}

func TestNewMemoryStore_Seed(t *testing.T) {
	// Act
	store := NewMemoryStore(SampleTasks()...)

	// Assert
	tasks, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("List() unexpected error: %v", err)
	}
	if len(tasks) != len(SampleTasks()) {
		t.Errorf("List() returned %d tasks, want %d", len(tasks), len(SampleTasks()))
	}
}

func TestMemoryStore_List_Empty(t *testing.T) {
	// Arrange
	store := NewMemoryStore()

	// Act
	tasks, err := store.List(context.Background())

	// Assert
	if err != nil {
		t.Fatalf("List() unexpected error: %v", err)
	}
	if tasks == nil || len(tasks) != 0 {
		t.Errorf("List() = %v, want empty non-nil slice", tasks)
	}
}

func TestMemoryStore_Save_PreservesInsertionOrder(t *testing.T) {
	// Arrange
	store := NewMemoryStore()
	ctx := context.Background()

	for _, id := range []string{"c", "a", "b"} {
		if err := store.Save(ctx, model.Task{ID: id, Title: id}); err != nil {
			t.Fatalf("Save(%s) unexpected error: %v", id, err)
		}
	}

	// Act - replace "a" in place and append "d"
	if err := store.Save(ctx, model.Task{ID: "a", Title: "replaced"}); err != nil {
		t.Fatalf("Save() unexpected error: %v", err)
	}
	if err := store.Save(ctx, model.Task{ID: "d", Title: "d"}); err != nil {
		t.Fatalf("Save() unexpected error: %v", err)
	}

	// Assert
	tasks, _ := store.List(ctx)
	wantIDs := []string{"c", "a", "b", "d"}
	if len(tasks) != len(wantIDs) {
		t.Fatalf("List() returned %d tasks, want %d", len(tasks), len(wantIDs))
	}
	for i, id := range wantIDs {
		if tasks[i].ID != id {
			t.Errorf("tasks[%d].ID = %s, want %s", i, tasks[i].ID, id)
		}
	}
	if tasks[1].Title != "replaced" {
		t.Errorf("tasks[1].Title = %s, want replaced", tasks[1].Title)
	}
}

func TestMemoryStore_Save_InvalidID(t *testing.T) {
	// Arrange
	store := NewMemoryStore()

	// Act
	err := store.Save(context.Background(), model.Task{Title: "no id"})

	// Assert
	if !errors.Is(err, ErrInvalidID) {
		t.Errorf("Save() error = %v, want %v", err, ErrInvalidID)
	}
}

func TestMemoryStore_Get(t *testing.T) {
	// Arrange
	store := NewMemoryStore(model.Task{ID: "1", Title: "Test"})
	ctx := context.Background()

	tests := []struct {
		name      string
		id        string
		wantFound bool
		wantErr   error
	}{
		{name: "existing task", id: "1", wantFound: true},
		{name: "missing task", id: "2", wantFound: false},
		{name: "empty ID", id: "", wantErr: ErrInvalidID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Act
			task, found, err := store.Get(ctx, tt.id)

			// Assert
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Get() error = %v, want %v", err, tt.wantErr)
			}
			if found != tt.wantFound {
				t.Errorf("Get() found = %v, want %v", found, tt.wantFound)
			}
			if found && task.ID != tt.id {
				t.Errorf("Get() ID = %s, want %s", task.ID, tt.id)
			}
		})
	}
}

func TestMemoryStore_Delete_Idempotent(t *testing.T) {
	// Arrange
	store := NewMemoryStore(
		model.Task{ID: "1", Title: "one"},
		model.Task{ID: "2", Title: "two"},
	)
	ctx := context.Background()

	// Act
	errFirst := store.Delete(ctx, "1")
	afterFirst, _ := store.List(ctx)
	errSecond := store.Delete(ctx, "1")
	afterSecond, _ := store.List(ctx)

	// Assert
	if errFirst != nil || errSecond != nil {
		t.Fatalf("Delete() errors = %v, %v", errFirst, errSecond)
	}
	if len(afterFirst) != 1 || len(afterSecond) != 1 || afterFirst[0] != afterSecond[0] {
		t.Errorf("state after second delete = %v, want %v", afterSecond, afterFirst)
	}
}

func TestMemoryStore_Delete_InvalidID(t *testing.T) {
	store := NewMemoryStore()

	if err := store.Delete(context.Background(), ""); !errors.Is(err, ErrInvalidID) {
		t.Errorf("Delete() error = %v, want %v", err, ErrInvalidID)
	}
}

func TestMemoryStore_DeleteWhere(t *testing.T) {
	// Arrange
	store := NewMemoryStore(
		model.Task{ID: "1", Title: "one", Completed: true},
		model.Task{ID: "2", Title: "two"},
		model.Task{ID: "3", Title: "three", Completed: true},
		model.Task{ID: "4", Title: "four"},
	)
	ctx := context.Background()

	// Act
	removed, err := store.DeleteWhere(ctx, IsCompleted)

	// Assert
	if err != nil {
		t.Fatalf("DeleteWhere() unexpected error: %v", err)
	}
	if removed != 2 {
		t.Errorf("DeleteWhere() removed = %d, want 2", removed)
	}
	tasks, _ := store.List(ctx)
	if len(tasks) != 2 || tasks[0].ID != "2" || tasks[1].ID != "4" {
		t.Errorf("List() after DeleteWhere = %v", tasks)
	}
	if _, found, _ := store.Get(ctx, "1"); found {
		t.Error("completed task should be gone")
	}
}

func TestMemoryStore_DeleteAll(t *testing.T) {
	// Arrange
	store := NewMemoryStore(SampleTasks()...)
	ctx := context.Background()

	// Act
	err := store.DeleteAll(ctx)

	// Assert
	if err != nil {
		t.Fatalf("DeleteAll() unexpected error: %v", err)
	}
	tasks, _ := store.List(ctx)
	if len(tasks) != 0 {
		t.Errorf("List() after DeleteAll returned %d tasks", len(tasks))
	}
	if err := store.Save(ctx, model.Task{ID: "new", Title: "new"}); err != nil {
		t.Fatalf("Save() after DeleteAll failed: %v", err)
	}
}

func TestMemoryStore_ContextCancellation(t *testing.T) {
	// Arrange
	store := NewMemoryStore(model.Task{ID: "1", Title: "one"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ops := map[string]func() error{
		"List":        func() error { _, err := store.List(ctx); return err },
		"Get":         func() error { _, _, err := store.Get(ctx, "1"); return err },
		"Save":        func() error { return store.Save(ctx, model.Task{ID: "2", Title: "two"}) },
		"Delete":      func() error { return store.Delete(ctx, "1") },
		"DeleteWhere": func() error { _, err := store.DeleteWhere(ctx, IsCompleted); return err },
		"DeleteAll":   func() error { return store.DeleteAll(ctx) },
	}

	for name, op := range ops {
		t.Run(name, func(t *testing.T) {
			if err := op(); !errors.Is(err, context.Canceled) {
				t.Errorf("%s() error = %v, want context.Canceled", name, err)
			}
		})
	}

	// Assert - nothing changed
	tasks, _ := store.List(context.Background())
	if len(tasks) != 1 {
		t.Errorf("store changed under a cancelled context: %v", tasks)
	}
}

func TestMemoryStore_ConcurrentAccess(t *testing.T) {
	// Arrange
	store := NewMemoryStore()
	ctx := context.Background()
	numGoroutines := 100
	numOperations := 10

	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	// Act
	for i := 0; i < numGoroutines; i++ {
		go func(id int) {
			defer wg.Done()

			for j := 0; j < numOperations; j++ {
				taskID := fmt.Sprintf("%d-%d", id, j)
				_ = store.Save(ctx, model.Task{ID: taskID, Title: "task"})
				_, _, _ = store.Get(ctx, taskID)
				_, _ = store.List(ctx)
				_ = store.Save(ctx, model.Task{ID: taskID, Title: "task", Completed: true})
				_ = store.Delete(ctx, taskID)
			}
		}(i)
	}

	wg.Wait()

	// Assert
	tasks, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List() after concurrent access failed: %v", err)
	}
	if len(tasks) != 0 {
		t.Errorf("expected empty store after concurrent access, got %d tasks", len(tasks))
	}
}

func TestFakeRemoteStore_Unavailable(t *testing.T) {
	// Arrange
	fake := NewFakeRemoteStore(0, SampleTasks()...)
	ctx := context.Background()
	fake.SetAvailable(false)

	// Act
	_, listErr := fake.List(ctx)
	saveErr := fake.Save(ctx, model.Task{ID: "x", Title: "x"})

	// Assert
	if !errors.Is(listErr, ErrUnavailable) {
		t.Errorf("List() error = %v, want %v", listErr, ErrUnavailable)
	}
	if !errors.Is(saveErr, ErrUnavailable) {
		t.Errorf("Save() error = %v, want %v", saveErr, ErrUnavailable)
	}

	// Act - back online
	fake.SetAvailable(true)
	tasks, err := fake.List(ctx)

	// Assert
	if err != nil {
		t.Fatalf("List() unexpected error: %v", err)
	}
	if len(tasks) != len(SampleTasks()) {
		t.Errorf("List() returned %d tasks, want %d", len(tasks), len(SampleTasks()))
	}
}

func TestFakeRemoteStore_LatencyHonoursContext(t *testing.T) {
	// Arrange
	fake := NewFakeRemoteStore(time.Hour)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	// Act
	_, err := fake.List(ctx)

	// Assert
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("List() error = %v, want context.DeadlineExceeded", err)
	}
}

func TestParseKind(t *testing.T) {
	tests := []struct {
		input   string
		want    Kind
		wantErr bool
	}{
		{input: "memory", want: KindMemory},
		{input: "FAKE", want: KindFake},
		{input: "sqlite", want: KindSQLite},
		{input: "postgres", want: KindPostgres},
		{input: " remote ", want: KindRemote},
		{input: "redis", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseKind(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrUnknownKind) {
					t.Errorf("ParseKind(%q) error = %v, want ErrUnknownKind", tt.input, err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("ParseKind(%q) = %s, %v; want %s", tt.input, got, err, tt.want)
			}
		})
	}
}

func TestStore_ImplementsInterface(t *testing.T) {
	var _ Store = (*MemoryStore)(nil)
	var _ Store = (*FakeRemoteStore)(nil)
}
