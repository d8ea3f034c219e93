// Package store provides the backing data sources behind the task repository.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/vyrodovalexey/taskcache/internal/model"
)

// Store errors.
var (
	ErrInvalidID   = errors.New("invalid task ID")
	ErrUnavailable = errors.New("data source unavailable")
	ErrUnknownKind = errors.New("source kind must be one of: memory, fake, sqlite, postgres, remote")
)

// Store is a backing data source for tasks. Iteration order is the order in
// which task IDs were first saved.
type Store interface {
	// List returns all tasks from the source.
	List(ctx context.Context) ([]model.Task, error)

	// Get retrieves a task by its ID. A missing task is reported with
	// found == false and a nil error.
	Get(ctx context.Context, id string) (task model.Task, found bool, err error)

	// Save inserts the task or replaces the task with the same ID in place.
	Save(ctx context.Context, task model.Task) error

	// Delete removes a task by its ID. Deleting a missing task is a no-op.
	Delete(ctx context.Context, id string) error

	// DeleteWhere removes every task matching the predicate and reports how
	// many were removed.
	DeleteWhere(ctx context.Context, match func(model.Task) bool) (int, error)

	// DeleteAll removes every task.
	DeleteAll(ctx context.Context) error
}

// Kind identifies a concrete Store variant selected at composition time.
type Kind string

// Supported store kinds.
const (
	KindMemory   Kind = "memory"
	KindFake     Kind = "fake"
	KindSQLite   Kind = "sqlite"
	KindPostgres Kind = "postgres"
	KindRemote   Kind = "remote"
)

// ParseKind validates a store kind name.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindMemory, KindFake, KindSQLite, KindPostgres, KindRemote:
		return k, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
}

// IsCompleted is the DeleteWhere predicate used to clear completed tasks.
func IsCompleted(t model.Task) bool {
	return !t.IsActive()
}
