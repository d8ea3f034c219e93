package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/taskcache/internal/auth"
	"github.com/vyrodovalexey/taskcache/internal/imagestore"
	"github.com/vyrodovalexey/taskcache/internal/model"
	"github.com/vyrodovalexey/taskcache/internal/repository"
	"github.com/vyrodovalexey/taskcache/internal/store"
)

// MaxImageSize bounds an uploaded task image.
const MaxImageSize = 5 << 20

// RESTHandler presents the task repository over HTTP.
type RESTHandler struct {
	tasks  Tasks
	images imagestore.Store
	source store.Kind
	logger *zap.Logger
}

// RESTOption configures a RESTHandler.
type RESTOption func(*RESTHandler)

// WithImageStore enables the task image upload route.
func WithImageStore(images imagestore.Store) RESTOption {
	return func(h *RESTHandler) {
		h.images = images
	}
}

// WithSourceKind reports the backing source kind on /ready.
func WithSourceKind(kind store.Kind) RESTOption {
	return func(h *RESTHandler) {
		h.source = kind
	}
}

// NewRESTHandler creates a new RESTHandler instance.
func NewRESTHandler(tasks Tasks, logger *zap.Logger, opts ...RESTOption) *RESTHandler {
	h := &RESTHandler{
		tasks:  tasks,
		logger: logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes registers the REST API routes with the router. Literal
// paths are registered before {id} so they are not captured as task IDs.
func (h *RESTHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)
	router.HandleFunc("/ready", h.ReadyCheck).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/tasks", h.ListTasks).Methods(http.MethodGet)
	api.HandleFunc("/tasks", h.CreateTask).Methods(http.MethodPost)
	api.HandleFunc("/tasks", h.DeleteAllTasks).Methods(http.MethodDelete)
	api.HandleFunc("/tasks/clear-completed", h.ClearCompleted).Methods(http.MethodPost)
	api.HandleFunc("/tasks/{id}", h.GetTask).Methods(http.MethodGet)
	api.HandleFunc("/tasks/{id}", h.PutTask).Methods(http.MethodPut)
	api.HandleFunc("/tasks/{id}", h.DeleteTask).Methods(http.MethodDelete)
	api.HandleFunc("/tasks/{id}/complete", h.CompleteTask).Methods(http.MethodPost)
	api.HandleFunc("/tasks/{id}/activate", h.ActivateTask).Methods(http.MethodPost)
	if h.images != nil {
		api.HandleFunc("/tasks/{id}/image", h.UploadImage).Methods(http.MethodPut)
	}
	api.HandleFunc("/stats", h.Stats).Methods(http.MethodGet)
	api.HandleFunc("/cache/invalidate", h.InvalidateCache).Methods(http.MethodPost)
}

// HealthCheck handles GET /health requests.
func (h *RESTHandler) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, model.NewSuccessResponse(HealthResponse{
		Status:  "healthy",
		Version: Version,
	}))
}

// ReadyCheck handles GET /ready requests and reports the cache state.
func (h *RESTHandler) ReadyCheck(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, model.NewSuccessResponse(ReadyResponse{
		Status: "ready",
		Cache:  h.tasks.State().String(),
		Source: string(h.source),
	}))
}

// ListTasks handles GET /api/v1/tasks?filter=&refresh= requests. The filter
// is applied to a copy; the cached snapshot always holds the full set.
func (h *RESTHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()

	filter, err := model.ParseFilter(query.Get("filter"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	refresh := false
	if raw := query.Get("refresh"); raw != "" {
		refresh, err = strconv.ParseBool(raw)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "refresh must be a boolean")
			return
		}
	}

	tasks, err := h.tasks.GetAllAsync(ctx, refresh).Await(ctx)
	if err != nil {
		h.handleError(w, err, "list tasks")
		return
	}

	h.writeJSON(w, http.StatusOK, model.NewSuccessResponse(model.FilterTasks(tasks, filter)))
}

// GetTask handles GET /api/v1/tasks/{id} requests.
func (h *RESTHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	lookup, err := h.tasks.GetAsync(ctx, mux.Vars(r)["id"]).Await(ctx)
	if err != nil {
		h.handleError(w, err, "get task")
		return
	}
	if !lookup.Found {
		h.writeError(w, http.StatusNotFound, "task not found")
		return
	}

	h.writeJSON(w, http.StatusOK, model.NewSuccessResponse(lookup.Task))
}

// CreateTask handles POST /api/v1/tasks requests.
func (h *RESTHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	var input taskInput
	if !h.decodeBody(w, r, &input) {
		return
	}

	task := model.NewTask(input.Title, input.Description)
	if err := h.tasks.Save(r.Context(), task); err != nil {
		h.handleError(w, err, "create task")
		return
	}
	h.logger.Info("task created",
		zap.String("task_id", task.ID),
		zap.String("title", task.TitleForList()),
		zap.String("subject", subject(r)),
	)

	h.writeJSON(w, http.StatusCreated, model.NewSuccessResponse(task))
}

// PutTask handles PUT /api/v1/tasks/{id} requests, inserting or replacing
// the task stored under the path ID.
func (h *RESTHandler) PutTask(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var task model.Task
	if !h.decodeBody(w, r, &task) {
		return
	}
	if task.ID != "" && task.ID != id {
		h.writeError(w, http.StatusBadRequest, "task ID in body does not match path")
		return
	}
	task.ID = id

	if err := h.tasks.Save(r.Context(), task); err != nil {
		h.handleError(w, err, "save task")
		return
	}

	h.writeJSON(w, http.StatusOK, model.NewSuccessResponse(task))
}

// DeleteTask handles DELETE /api/v1/tasks/{id} requests. The task image,
// if any, is removed afterwards on a best-effort basis.
func (h *RESTHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := mux.Vars(r)["id"]

	if err := h.tasks.Delete(ctx, id); err != nil {
		h.handleError(w, err, "delete task")
		return
	}

	if h.images != nil {
		if err := h.images.Delete(ctx, imagestore.KeyForTask(id)); err != nil {
			h.logger.Warn("failed to delete task image", zap.String("task_id", id), zap.Error(err))
		}
	}

	h.writeJSON(w, http.StatusNoContent, nil)
}

// CompleteTask handles POST /api/v1/tasks/{id}/complete requests.
func (h *RESTHandler) CompleteTask(w http.ResponseWriter, r *http.Request) {
	task, err := h.tasks.Complete(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.handleError(w, err, "complete task")
		return
	}

	h.writeJSON(w, http.StatusOK, model.NewSuccessResponse(task))
}

// ActivateTask handles POST /api/v1/tasks/{id}/activate requests.
func (h *RESTHandler) ActivateTask(w http.ResponseWriter, r *http.Request) {
	task, err := h.tasks.Activate(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.handleError(w, err, "activate task")
		return
	}

	h.writeJSON(w, http.StatusOK, model.NewSuccessResponse(task))
}

// ClearCompleted handles POST /api/v1/tasks/clear-completed requests.
func (h *RESTHandler) ClearCompleted(w http.ResponseWriter, r *http.Request) {
	removed, err := h.tasks.ClearCompleted(r.Context())
	if err != nil {
		h.handleError(w, err, "clear completed tasks")
		return
	}
	h.logger.Info("completed tasks cleared", zap.Int("removed", removed), zap.String("subject", subject(r)))

	h.writeJSON(w, http.StatusOK, model.NewSuccessResponse(model.ClearCompletedResponse{Removed: removed}))
}

// DeleteAllTasks handles DELETE /api/v1/tasks requests.
func (h *RESTHandler) DeleteAllTasks(w http.ResponseWriter, r *http.Request) {
	if err := h.tasks.DeleteAll(r.Context()); err != nil {
		h.handleError(w, err, "delete all tasks")
		return
	}
	h.logger.Info("all tasks deleted", zap.String("subject", subject(r)))

	h.writeJSON(w, http.StatusNoContent, nil)
}

// Stats handles GET /api/v1/stats requests.
func (h *RESTHandler) Stats(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.tasks.GetAll(r.Context(), false)
	if err != nil {
		h.handleError(w, err, "compute stats")
		return
	}

	h.writeJSON(w, http.StatusOK, model.NewSuccessResponse(model.ComputeStats(tasks)))
}

// InvalidateCache handles POST /api/v1/cache/invalidate requests.
func (h *RESTHandler) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	h.tasks.Invalidate()
	h.logger.Info("task cache invalidated", zap.String("subject", subject(r)))
	h.writeJSON(w, http.StatusNoContent, nil)
}

// UploadImage handles PUT /api/v1/tasks/{id}/image requests. The image is
// stored first and the task is then saved with the returned URL.
func (h *RESTHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := mux.Vars(r)["id"]

	contentType := r.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		h.writeError(w, http.StatusUnsupportedMediaType, "content type must be an image type")
		return
	}

	task, found, err := h.tasks.Get(ctx, id)
	if err != nil {
		h.handleError(w, err, "upload image")
		return
	}
	if !found {
		h.writeError(w, http.StatusNotFound, "task not found")
		return
	}

	// Buffered so stores that sign or checksum the payload can seek over it.
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxImageSize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, http.StatusRequestEntityTooLarge, "image too large")
			return
		}
		h.logger.Warn("failed to read image body", zap.String("task_id", id), zap.Error(err))
		h.writeError(w, http.StatusBadRequest, "invalid image body")
		return
	}

	url, err := h.images.Put(ctx, imagestore.KeyForTask(id), bytes.NewReader(data), contentType)
	if err != nil {
		h.logger.Error("failed to store image", zap.String("task_id", id), zap.Error(err))
		h.writeError(w, http.StatusBadGateway, "failed to store image")
		return
	}

	task.ImageURL = url
	if err := h.tasks.Save(ctx, task); err != nil {
		h.handleError(w, err, "upload image")
		return
	}

	h.writeJSON(w, http.StatusOK, model.NewSuccessResponse(task))
}

// subject names the authenticated caller, or "anonymous".
func subject(r *http.Request) string {
	if id, ok := auth.FromContext(r.Context()); ok && id.Subject != "" {
		return id.Subject
	}
	return "anonymous"
}

func (h *RESTHandler) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.logger.Warn("invalid request body", zap.Error(err))
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// handleError maps repository and store errors to HTTP responses.
func (h *RESTHandler) handleError(w http.ResponseWriter, err error, operation string) {
	switch {
	case errors.Is(err, repository.ErrInvalidTask):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, repository.ErrTaskNotFound):
		h.writeError(w, http.StatusNotFound, "task not found")
	case errors.Is(err, store.ErrInvalidID):
		h.writeError(w, http.StatusBadRequest, "invalid task ID")
	case errors.Is(err, repository.ErrDataUnavailable), errors.Is(err, store.ErrUnavailable):
		h.logger.Warn("task source unavailable", zap.String("operation", operation), zap.Error(err))
		h.writeError(w, http.StatusServiceUnavailable, "task data not available")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		h.logger.Debug("request ended before completion", zap.String("operation", operation), zap.Error(err))
		h.writeError(w, http.StatusServiceUnavailable, "request canceled")
	default:
		h.logger.Error("task operation failed", zap.String("operation", operation), zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// writeJSON writes a JSON response with the given status code.
func (h *RESTHandler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
	}
}

// writeError writes an error response with the given status code and message.
func (h *RESTHandler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, model.ErrorResponse{Code: status, Message: message})
}
