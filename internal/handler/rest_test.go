package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/vyrodovalexey/taskcache/internal/auth"
	"github.com/vyrodovalexey/taskcache/internal/imagestore"
	"github.com/vyrodovalexey/taskcache/internal/model"
	"github.com/vyrodovalexey/taskcache/internal/repository"
	"github.com/vyrodovalexey/taskcache/internal/store"
)

// mockStore wraps a MemoryStore with call counting and error injection.
type mockStore struct {
	*store.MemoryStore
	lists    atomic.Int32
	listErr  error
	getErr   error
	writeErr error
}

func newMockStore(seed ...model.Task) *mockStore {
	return &mockStore{MemoryStore: store.NewMemoryStore(seed...)}
}

func (m *mockStore) List(ctx context.Context) ([]model.Task, error) {
	m.lists.Add(1)
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.MemoryStore.List(ctx)
}

func (m *mockStore) Get(ctx context.Context, id string) (model.Task, bool, error) {
	if m.getErr != nil {
		return model.Task{}, false, m.getErr
	}
	return m.MemoryStore.Get(ctx, id)
}

func (m *mockStore) Save(ctx context.Context, task model.Task) error {
	if m.writeErr != nil {
		return m.writeErr
	}
	return m.MemoryStore.Save(ctx, task)
}

func newTestRouter(src store.Store, opts ...RESTOption) (*mux.Router, *repository.Repository) {
	repo := repository.New(src)
	router := mux.NewRouter()
	NewRESTHandler(repo, zap.NewNop(), opts...).RegisterRoutes(router)
	return router, repo
}

func serve(router http.Handler, method, path string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeData[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var resp model.APIResponse[T]
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Success {
		t.Fatalf("response success = false, error = %q", resp.Error)
	}
	return resp.Data
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) model.ErrorResponse {
	t.Helper()
	var resp model.ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	return resp
}

func TestHealthAndReady(t *testing.T) {
	// Arrange
	router, repo := newTestRouter(newMockStore(store.SampleTasks()...), WithSourceKind(store.KindFake))

	// Act
	health := serve(router, http.MethodGet, "/health", nil, nil)
	readyBefore := serve(router, http.MethodGet, "/ready", nil, nil)
	if _, err := repo.GetAll(context.Background(), false); err != nil {
		t.Fatalf("GetAll() error = %v", err)
	}
	readyAfter := serve(router, http.MethodGet, "/ready", nil, nil)

	// Assert
	if got := decodeData[HealthResponse](t, health); got.Status != "healthy" || got.Version != Version {
		t.Errorf("health = %+v", got)
	}
	if got := decodeData[ReadyResponse](t, readyBefore); got.Cache != "stale" || got.Source != "fake" {
		t.Errorf("ready before load = %+v", got)
	}
	if got := decodeData[ReadyResponse](t, readyAfter); got.Cache != "fresh" {
		t.Errorf("ready after load = %+v", got)
	}
}

func TestListTasks_Filters(t *testing.T) {
	tests := []struct {
		query   string
		wantIDs []string
	}{
		{query: "", wantIDs: []string{"0", "1", "2", "3"}},
		{query: "?filter=all", wantIDs: []string{"0", "1", "2", "3"}},
		{query: "?filter=active", wantIDs: []string{"0", "1", "2"}},
		{query: "?filter=COMPLETED", wantIDs: []string{"3"}},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			// Arrange
			router, _ := newTestRouter(newMockStore(store.SampleTasks()...))

			// Act
			rec := serve(router, http.MethodGet, "/api/v1/tasks"+tt.query, nil, nil)

			// Assert
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", rec.Code)
			}
			tasks := decodeData[[]model.Task](t, rec)
			ids := make([]string, 0, len(tasks))
			for _, task := range tasks {
				ids = append(ids, task.ID)
			}
			if strings.Join(ids, ",") != strings.Join(tt.wantIDs, ",") {
				t.Errorf("ids = %v, want %v", ids, tt.wantIDs)
			}
		})
	}
}

func TestListTasks_CachesAndRefreshes(t *testing.T) {
	// Arrange
	src := newMockStore(store.SampleTasks()...)
	router, _ := newTestRouter(src)

	// Act
	serve(router, http.MethodGet, "/api/v1/tasks?filter=active", nil, nil)
	serve(router, http.MethodGet, "/api/v1/tasks?filter=completed", nil, nil)
	afterCached := src.lists.Load()
	serve(router, http.MethodGet, "/api/v1/tasks?refresh=true", nil, nil)

	// Assert
	if afterCached != 1 {
		t.Errorf("source lists after two filtered reads = %d, want 1", afterCached)
	}
	if got := src.lists.Load(); got != 2 {
		t.Errorf("source lists after refresh = %d, want 2", got)
	}
}

func TestListTasks_BadQuery(t *testing.T) {
	router, _ := newTestRouter(newMockStore())

	for _, q := range []string{"?filter=done", "?refresh=sometimes"} {
		rec := serve(router, http.MethodGet, "/api/v1/tasks"+q, nil, nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", q, rec.Code)
		}
	}
}

func TestListTasks_SourceUnavailable(t *testing.T) {
	// Arrange
	src := newMockStore()
	src.listErr = store.ErrUnavailable
	router, _ := newTestRouter(src)

	// Act
	rec := serve(router, http.MethodGet, "/api/v1/tasks", nil, nil)

	// Assert
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
	if got := decodeError(t, rec); got.Message != "task data not available" {
		t.Errorf("message = %q", got.Message)
	}
}

func TestCreateTask(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{name: "title only", body: `{"title":"Buy milk"}`, wantStatus: http.StatusCreated},
		{name: "description only", body: `{"description":"remember the eggs"}`, wantStatus: http.StatusCreated},
		{name: "empty task", body: `{"title":"  ","description":""}`, wantStatus: http.StatusBadRequest},
		{name: "malformed body", body: `{"title":`, wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			src := newMockStore()
			router, _ := newTestRouter(src)

			// Act
			rec := serve(router, http.MethodPost, "/api/v1/tasks", []byte(tt.body), nil)

			// Assert
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus != http.StatusCreated {
				return
			}
			created := decodeData[model.Task](t, rec)
			if created.ID == "" || created.Completed {
				t.Errorf("created = %+v", created)
			}
			if _, found, _ := src.MemoryStore.Get(context.Background(), created.ID); !found {
				t.Error("created task not in store")
			}
		})
	}
}

func TestCreateTask_InvalidatesCache(t *testing.T) {
	// Arrange
	src := newMockStore(store.SampleTasks()...)
	router, repo := newTestRouter(src)
	serve(router, http.MethodGet, "/api/v1/tasks", nil, nil)

	// Act
	serve(router, http.MethodPost, "/api/v1/tasks", []byte(`{"title":"new"}`), nil)
	rec := serve(router, http.MethodGet, "/api/v1/tasks", nil, nil)

	// Assert
	if got := len(decodeData[[]model.Task](t, rec)); got != 5 {
		t.Errorf("tasks after create = %d, want 5", got)
	}
	if repo.State() != repository.StateFresh {
		t.Errorf("state = %v, want fresh", repo.State())
	}
	if got := src.lists.Load(); got != 2 {
		t.Errorf("source lists = %d, want 2", got)
	}
}

func TestGetTask(t *testing.T) {
	tests := []struct {
		name       string
		id         string
		getErr     error
		wantStatus int
	}{
		{name: "found", id: "1", wantStatus: http.StatusOK},
		{name: "missing", id: "42", wantStatus: http.StatusNotFound},
		{name: "unavailable", id: "1", getErr: store.ErrUnavailable, wantStatus: http.StatusServiceUnavailable},
		{name: "unexpected", id: "1", getErr: errors.New("disk on fire"), wantStatus: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := newMockStore(store.SampleTasks()...)
			src.getErr = tt.getErr
			router, _ := newTestRouter(src)

			rec := serve(router, http.MethodGet, "/api/v1/tasks/"+tt.id, nil, nil)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusOK {
				if got := decodeData[model.Task](t, rec); got.Title != "Finish bridge in Tacoma" {
					t.Errorf("task = %+v", got)
				}
			}
		})
	}
}

func TestPutTask(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		body       string
		wantStatus int
	}{
		{name: "replace existing", path: "/api/v1/tasks/0", body: `{"title":"Leaning tower","completed":true}`, wantStatus: http.StatusOK},
		{name: "insert new id", path: "/api/v1/tasks/fresh", body: `{"id":"fresh","title":"Fresh"}`, wantStatus: http.StatusOK},
		{name: "id mismatch", path: "/api/v1/tasks/0", body: `{"id":"1","title":"x"}`, wantStatus: http.StatusBadRequest},
		{name: "empty task", path: "/api/v1/tasks/0", body: `{}`, wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			src := newMockStore(store.SampleTasks()...)
			router, _ := newTestRouter(src)

			// Act
			rec := serve(router, http.MethodPut, tt.path, []byte(tt.body), nil)

			// Assert
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			saved := decodeData[model.Task](t, rec)
			stored, found, _ := src.MemoryStore.Get(context.Background(), saved.ID)
			if !found || stored != saved {
				t.Errorf("stored = %+v, %v; want %+v", stored, found, saved)
			}
		})
	}
}

func TestPutTask_WriteFailure(t *testing.T) {
	src := newMockStore(store.SampleTasks()...)
	src.writeErr = store.ErrUnavailable
	router, _ := newTestRouter(src)

	rec := serve(router, http.MethodPut, "/api/v1/tasks/0", []byte(`{"title":"x"}`), nil)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestDeleteTask_Idempotent(t *testing.T) {
	router, _ := newTestRouter(newMockStore(store.SampleTasks()...))

	for i := 0; i < 2; i++ {
		rec := serve(router, http.MethodDelete, "/api/v1/tasks/1", nil, nil)
		if rec.Code != http.StatusNoContent {
			t.Errorf("delete #%d status = %d, want 204", i+1, rec.Code)
		}
	}

	rec := serve(router, http.MethodGet, "/api/v1/tasks/1", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want 404", rec.Code)
	}
}

func TestDeleteTask_RemovesImage(t *testing.T) {
	// Arrange
	images := imagestore.NewMemoryStore()
	router, _ := newTestRouter(newMockStore(store.SampleTasks()...), WithImageStore(images))
	serve(router, http.MethodPut, "/api/v1/tasks/2/image", []byte("gif"), map[string]string{"Content-Type": "image/gif"})

	// Act
	rec := serve(router, http.MethodDelete, "/api/v1/tasks/2", nil, nil)

	// Assert
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if _, _, ok := images.Object(imagestore.KeyForTask("2")); ok {
		t.Error("image still stored after task deletion")
	}
}

func TestCompleteAndActivate(t *testing.T) {
	tests := []struct {
		name          string
		path          string
		wantStatus    int
		wantCompleted bool
	}{
		{name: "complete active", path: "/api/v1/tasks/0/complete", wantStatus: http.StatusOK, wantCompleted: true},
		{name: "activate completed", path: "/api/v1/tasks/3/activate", wantStatus: http.StatusOK, wantCompleted: false},
		{name: "complete missing", path: "/api/v1/tasks/99/complete", wantStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, _ := newTestRouter(newMockStore(store.SampleTasks()...))

			rec := serve(router, http.MethodPost, tt.path, nil, nil)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusOK {
				if got := decodeData[model.Task](t, rec); got.Completed != tt.wantCompleted {
					t.Errorf("completed = %v, want %v", got.Completed, tt.wantCompleted)
				}
			}
		})
	}
}

func TestClearCompletedAndStats(t *testing.T) {
	// Arrange
	router, _ := newTestRouter(newMockStore(store.SampleTasks()...))

	// Act
	before := serve(router, http.MethodGet, "/api/v1/stats", nil, nil)
	cleared := serve(router, http.MethodPost, "/api/v1/tasks/clear-completed", nil, nil)
	after := serve(router, http.MethodGet, "/api/v1/stats", nil, nil)

	// Assert
	if got := decodeData[model.Stats](t, before); got.Total != 4 || got.Completed != 1 || got.CompletedPercent != 25 {
		t.Errorf("stats before = %+v", got)
	}
	if got := decodeData[model.ClearCompletedResponse](t, cleared); got.Removed != 1 {
		t.Errorf("removed = %d, want 1", got.Removed)
	}
	if got := decodeData[model.Stats](t, after); got.Total != 3 || got.Completed != 0 || got.ActivePercent != 100 {
		t.Errorf("stats after = %+v", got)
	}
}

func TestDeleteAllTasks(t *testing.T) {
	src := newMockStore(store.SampleTasks()...)
	router, _ := newTestRouter(src)

	rec := serve(router, http.MethodDelete, "/api/v1/tasks", nil, nil)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	tasks, _ := src.MemoryStore.List(context.Background())
	if len(tasks) != 0 {
		t.Errorf("tasks left = %d", len(tasks))
	}
}

func TestInvalidateCache(t *testing.T) {
	// Arrange
	src := newMockStore(store.SampleTasks()...)
	router, repo := newTestRouter(src)
	serve(router, http.MethodGet, "/api/v1/tasks", nil, nil)

	// Act
	rec := serve(router, http.MethodPost, "/api/v1/cache/invalidate", nil, nil)

	// Assert
	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}
	if repo.State() != repository.StateStale {
		t.Errorf("state = %v, want stale", repo.State())
	}
}

func TestUploadImage(t *testing.T) {
	tests := []struct {
		name        string
		id          string
		contentType string
		body        []byte
		wantStatus  int
	}{
		{name: "stored", id: "2", contentType: "image/png", body: []byte("png-bytes"), wantStatus: http.StatusOK},
		{name: "not an image", id: "2", contentType: "text/plain", body: []byte("hi"), wantStatus: http.StatusUnsupportedMediaType},
		{name: "missing task", id: "404", contentType: "image/png", body: []byte("x"), wantStatus: http.StatusNotFound},
		{name: "too large", id: "2", contentType: "image/png", body: bytes.Repeat([]byte("x"), MaxImageSize+1), wantStatus: http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			src := newMockStore(store.SampleTasks()...)
			images := imagestore.NewMemoryStore()
			router, _ := newTestRouter(src, WithImageStore(images))

			// Act
			rec := serve(router, http.MethodPut, "/api/v1/tasks/"+tt.id+"/image", tt.body,
				map[string]string{"Content-Type": tt.contentType})

			// Assert
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			task := decodeData[model.Task](t, rec)
			if task.ImageURL != "memory://"+imagestore.KeyForTask("2") {
				t.Errorf("image url = %q", task.ImageURL)
			}
			stored, _, _ := src.MemoryStore.Get(context.Background(), "2")
			if stored.ImageURL != task.ImageURL {
				t.Errorf("stored image url = %q", stored.ImageURL)
			}
			data, contentType, ok := images.Object(imagestore.KeyForTask("2"))
			if !ok || string(data) != "png-bytes" || contentType != "image/png" {
				t.Errorf("stored object = %q, %q, %v", data, contentType, ok)
			}
		})
	}
}

// seekCheckingImages records whether Put received a seekable body.
type seekCheckingImages struct {
	*imagestore.MemoryStore
	seekable bool
}

func (s *seekCheckingImages) Put(ctx context.Context, key string, r io.Reader, contentType string) (string, error) {
	_, s.seekable = r.(io.Seeker)
	return s.MemoryStore.Put(ctx, key, r, contentType)
}

func TestUploadImage_PassesSeekableBody(t *testing.T) {
	// Arrange
	images := &seekCheckingImages{MemoryStore: imagestore.NewMemoryStore()}
	router, _ := newTestRouter(newMockStore(store.SampleTasks()...), WithImageStore(images))

	// Act
	rec := serve(router, http.MethodPut, "/api/v1/tasks/2/image", []byte("png-bytes"),
		map[string]string{"Content-Type": "image/png"})

	// Assert
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !images.seekable {
		t.Error("image store received a body it cannot seek")
	}
}

func TestUploadImage_NotRegisteredWithoutStore(t *testing.T) {
	router, _ := newTestRouter(newMockStore(store.SampleTasks()...))

	rec := serve(router, http.MethodPut, "/api/v1/tasks/2/image", []byte("x"), map[string]string{"Content-Type": "image/png"})

	if rec.Code != http.StatusMethodNotAllowed && rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 or 405", rec.Code)
	}
}

func TestListTasks_CanceledRequest(t *testing.T) {
	// Arrange
	router, _ := newTestRouter(store.NewFakeRemoteStore(time.Hour, store.SampleTasks()...))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	// Act
	router.ServeHTTP(rec, req)

	// Assert
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestDestructiveOperations_LogSubject(t *testing.T) {
	tests := []struct {
		name        string
		method      string
		path        string
		identity    *auth.Identity
		wantMessage string
		wantSubject string
	}{
		{
			name:        "delete all by key holder",
			method:      http.MethodDelete,
			path:        "/api/v1/tasks",
			identity:    &auth.Identity{Method: auth.MethodAPIKey, Subject: "ops", Scope: auth.ScopeWrite},
			wantMessage: "all tasks deleted",
			wantSubject: "ops",
		},
		{
			name:        "clear completed without auth",
			method:      http.MethodPost,
			path:        "/api/v1/tasks/clear-completed",
			wantMessage: "completed tasks cleared",
			wantSubject: "anonymous",
		},
		{
			name:        "invalidate by basic user",
			method:      http.MethodPost,
			path:        "/api/v1/cache/invalidate",
			identity:    &auth.Identity{Method: auth.MethodBasic, Subject: "alice", Scope: auth.ScopeWrite},
			wantMessage: "task cache invalidated",
			wantSubject: "alice",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			core, logs := observer.New(zapcore.InfoLevel)
			router := mux.NewRouter()
			NewRESTHandler(repository.New(store.NewMemoryStore(store.SampleTasks()...)), zap.New(core)).RegisterRoutes(router)
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.identity != nil {
				req = req.WithContext(auth.WithIdentity(req.Context(), tt.identity))
			}
			rec := httptest.NewRecorder()

			// Act
			router.ServeHTTP(rec, req)

			// Assert
			if rec.Code >= 300 {
				t.Fatalf("status = %d", rec.Code)
			}
			entries := logs.FilterMessage(tt.wantMessage).All()
			if len(entries) != 1 {
				t.Fatalf("log entries for %q = %d, want 1", tt.wantMessage, len(entries))
			}
			if got := entries[0].ContextMap()["subject"]; got != tt.wantSubject {
				t.Errorf("subject = %v, want %s", got, tt.wantSubject)
			}
		})
	}
}

func TestCreateTask_LogsListTitle(t *testing.T) {
	// Arrange
	core, logs := observer.New(zapcore.InfoLevel)
	router := mux.NewRouter()
	NewRESTHandler(repository.New(store.NewMemoryStore()), zap.New(core)).RegisterRoutes(router)

	// Act
	rec := serve(router, http.MethodPost, "/api/v1/tasks", []byte(`{"description":"untitled chore"}`), nil)

	// Assert
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}
	entries := logs.FilterMessage("task created").All()
	if len(entries) != 1 {
		t.Fatalf("log entries = %d, want 1", len(entries))
	}
	if got := entries[0].ContextMap()["title"]; got != "untitled chore" {
		t.Errorf("title = %v, want description fallback", got)
	}
}
