// Package remote implements a task source backed by the REST API of another
// service instance.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/vyrodovalexey/taskcache/internal/auth"
	"github.com/vyrodovalexey/taskcache/internal/model"
	"github.com/vyrodovalexey/taskcache/internal/store"
)

// Compile-time contract assertion.
var _ store.Store = (*Store)(nil)

// DefaultTimeout bounds a single request when no timeout is configured.
const DefaultTimeout = 10 * time.Second

const tasksPath = "/api/v1/tasks"

// Config holds remote source parameters.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	APIKey     string       // optional; sent as X-API-Key
	HTTPClient *http.Client // optional
}

// Store talks to a remote task API. Transport failures and 5xx responses
// surface as store.ErrUnavailable.
type Store struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// New validates cfg and creates a remote store.
func New(cfg Config) (*Store, error) {
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("remote base URL %q must be an absolute URL", cfg.BaseURL)
	}

	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}

	return &Store{
		baseURL: strings.TrimSuffix(u.String(), "/"),
		apiKey:  cfg.APIKey,
		client:  client,
	}, nil
}

// List fetches all tasks, asking the remote side to bypass its own cache.
func (s *Store) List(ctx context.Context) ([]model.Task, error) {
	var tasks []model.Task
	status, err := s.do(ctx, http.MethodGet, tasksPath+"?refresh=true", nil, &tasks)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("list tasks: unexpected status %d", status)
	}
	if tasks == nil {
		tasks = []model.Task{}
	}
	return tasks, nil
}

// Get fetches a single task; 404 means not found.
func (s *Store) Get(ctx context.Context, id string) (model.Task, bool, error) {
	if id == "" {
		return model.Task{}, false, store.ErrInvalidID
	}

	var task model.Task
	status, err := s.do(ctx, http.MethodGet, taskPath(id), nil, &task)
	if err != nil {
		return model.Task{}, false, fmt.Errorf("get task: %w", err)
	}
	switch status {
	case http.StatusOK:
		return task, true, nil
	case http.StatusNotFound:
		return model.Task{}, false, nil
	default:
		return model.Task{}, false, fmt.Errorf("get task: unexpected status %d", status)
	}
}

// Save upserts a task with PUT.
func (s *Store) Save(ctx context.Context, task model.Task) error {
	if task.ID == "" {
		return store.ErrInvalidID
	}

	status, err := s.do(ctx, http.MethodPut, taskPath(task.ID), task, nil)
	if err != nil {
		return fmt.Errorf("save task: %w", err)
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return fmt.Errorf("save task: unexpected status %d", status)
	}
	return nil
}

// Delete removes a task; the remote API treats missing tasks as deleted.
func (s *Store) Delete(ctx context.Context, id string) error {
	if id == "" {
		return store.ErrInvalidID
	}

	status, err := s.do(ctx, http.MethodDelete, taskPath(id), nil, nil)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if status != http.StatusNoContent && status != http.StatusNotFound {
		return fmt.Errorf("delete task: unexpected status %d", status)
	}
	return nil
}

// DeleteWhere lists the remote tasks and deletes the matching ones one by
// one. It is not atomic: a failure part-way leaves earlier deletions applied.
func (s *Store) DeleteWhere(ctx context.Context, match func(model.Task) bool) (int, error) {
	tasks, err := s.List(ctx)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, t := range tasks {
		if !match(t) {
			continue
		}
		if err := s.Delete(ctx, t.ID); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// DeleteAll removes every remote task.
func (s *Store) DeleteAll(ctx context.Context) error {
	status, err := s.do(ctx, http.MethodDelete, tasksPath, nil, nil)
	if err != nil {
		return fmt.Errorf("delete all tasks: %w", err)
	}
	if status != http.StatusNoContent {
		return fmt.Errorf("delete all tasks: unexpected status %d", status)
	}
	return nil
}

// do performs a request and decodes the "data" field of a successful
// response envelope into out. Only transport errors and 5xx responses are
// returned as errors; other statuses are left to the caller.
func (s *Store) do(ctx context.Context, method, path string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set(auth.APIKeyHeader, s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return 0, err
		}
		return 0, fmt.Errorf("%w: %w", store.ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusInternalServerError {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, fmt.Errorf("%w: remote returned %d", store.ErrUnavailable, resp.StatusCode)
	}

	if out == nil || resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil
	}

	envelope := model.APIResponse[json.RawMessage]{}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return resp.StatusCode, fmt.Errorf("%w: decode response: %w", store.ErrUnavailable, err)
	}
	if len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return resp.StatusCode, fmt.Errorf("%w: decode data: %w", store.ErrUnavailable, err)
		}
	}
	return resp.StatusCode, nil
}

func taskPath(id string) string {
	return tasksPath + "/" + url.PathEscape(id)
}
