// Package handler provides the HTTP and WebSocket handlers of the tasks API.
package handler

import (
	"context"

	"github.com/vyrodovalexey/taskcache/internal/model"
	"github.com/vyrodovalexey/taskcache/internal/repository"
)

// Version is the application version.
const Version = "1.0.0"

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// ReadyResponse represents the readiness check response.
type ReadyResponse struct {
	Status string `json:"status"`
	Cache  string `json:"cache"`
	Source string `json:"source,omitempty"`
}

// Tasks is the repository surface the REST handler presents.
type Tasks interface {
	State() repository.CacheState
	GetAll(ctx context.Context, forceUpdate bool) ([]model.Task, error)
	GetAllAsync(ctx context.Context, forceUpdate bool) *repository.Future[[]model.Task]
	Get(ctx context.Context, id string) (model.Task, bool, error)
	GetAsync(ctx context.Context, id string) *repository.Future[repository.Lookup]
	Save(ctx context.Context, task model.Task) error
	Complete(ctx context.Context, id string) (model.Task, error)
	Activate(ctx context.Context, id string) (model.Task, error)
	Delete(ctx context.Context, id string) error
	ClearCompleted(ctx context.Context) (int, error)
	DeleteAll(ctx context.Context) error
	Invalidate()
}

var _ Tasks = (*repository.Repository)(nil)

// taskInput is the body accepted when creating a task.
type taskInput struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}
