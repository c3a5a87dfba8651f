package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"task-dashboard/backend/internal/models"
	"task-dashboard/backend/internal/query"
	"task-dashboard/backend/internal/stats"
	"task-dashboard/backend/internal/store"
)

// TaskService is the surface the HTTP layer and CLI consume.
type TaskService interface {
	GetAll(ctx context.Context) ([]models.Task, error)
	GetByID(ctx context.Context, id int64) (models.Task, error)
	Query(ctx context.Context, raw query.RawParams) ([]models.Task, error)
	Create(ctx context.Context, input models.CreateTaskInput) (models.Task, error)
	Update(ctx context.Context, id int64, patch models.TaskPatch) (models.Task, error)
	Delete(ctx context.Context, id int64) (models.Task, error)
	BulkUpdate(ctx context.Context, ids []int64, patch models.TaskPatch, strict bool) ([]models.Task, error)
	BulkDelete(ctx context.Context, ids []int64, strict bool) ([]models.Task, error)
	GetStats(ctx context.Context) (models.Stats, error)
	GetCategories(ctx context.Context) ([]models.Category, error)
}

type ServiceOption func(*TaskServiceImpl)

func WithClock(now func() time.Time) ServiceOption {
	return func(s *TaskServiceImpl) {
		s.now = now
	}
}

// TaskServiceImpl validates input and delegates to the store. Query and
// stats run over a single store snapshot.
type TaskServiceImpl struct {
	store *store.TaskStore
	now   func() time.Time
}

func NewTaskService(st *store.TaskStore, opts ...ServiceOption) *TaskServiceImpl {
	s := &TaskServiceImpl{store: st, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *TaskServiceImpl) GetAll(_ context.Context) ([]models.Task, error) {
	return s.store.GetAll(), nil
}

func (s *TaskServiceImpl) GetByID(_ context.Context, id int64) (models.Task, error) {
	task, ok := s.store.GetByID(id)
	if !ok {
		return models.Task{}, fmt.Errorf("get task %d: %w", id, models.ErrTaskNotFound)
	}
	return task, nil
}

func (s *TaskServiceImpl) Query(_ context.Context, raw query.RawParams) ([]models.Task, error) {
	params, err := query.ParseParams(raw)
	if err != nil {
		return nil, err
	}
	tasks, categories := s.store.Snapshot()
	return query.Apply(tasks, categories, params, s.now()), nil
}

func (s *TaskServiceImpl) Create(_ context.Context, input models.CreateTaskInput) (models.Task, error) {
	title, err := validateTitle(input.Title)
	if err != nil {
		return models.Task{}, err
	}
	input.Title = title

	if input.Priority != "" && !input.Priority.Valid() {
		return models.Task{}, fmt.Errorf("%w: unknown priority %q", models.ErrValidation, input.Priority)
	}

	return s.store.Create(input), nil
}

func (s *TaskServiceImpl) Update(_ context.Context, id int64, patch models.TaskPatch) (models.Task, error) {
	patch, err := validatePatch(patch)
	if err != nil {
		return models.Task{}, err
	}
	return s.store.Update(id, patch)
}

func (s *TaskServiceImpl) Delete(_ context.Context, id int64) (models.Task, error) {
	return s.store.Delete(id)
}

func (s *TaskServiceImpl) BulkUpdate(_ context.Context, ids []int64, patch models.TaskPatch, strict bool) ([]models.Task, error) {
	patch, err := validatePatch(patch)
	if err != nil {
		return nil, err
	}
	return s.store.BulkUpdate(ids, patch, bulkOptions(strict)...)
}

func (s *TaskServiceImpl) BulkDelete(_ context.Context, ids []int64, strict bool) ([]models.Task, error) {
	return s.store.BulkDelete(ids, bulkOptions(strict)...)
}

func (s *TaskServiceImpl) GetStats(_ context.Context) (models.Stats, error) {
	return stats.Compute(s.store.GetAll(), s.now()), nil
}

func (s *TaskServiceImpl) GetCategories(_ context.Context) ([]models.Category, error) {
	return s.store.GetCategories(), nil
}

// Now exposes the service clock so decorators key date-bound data consistently.
func (s *TaskServiceImpl) Now() time.Time {
	return s.now()
}

func bulkOptions(strict bool) []store.BulkOption {
	if strict {
		return []store.BulkOption{store.Strict()}
	}
	return nil
}

func validateTitle(title string) (string, error) {
	trimmed := strings.TrimSpace(title)
	if trimmed == "" {
		return "", fmt.Errorf("%w: title must not be blank", models.ErrValidation)
	}
	return trimmed, nil
}

func validatePatch(patch models.TaskPatch) (models.TaskPatch, error) {
	if patch.Title != nil {
		title, err := validateTitle(*patch.Title)
		if err != nil {
			return patch, err
		}
		patch.Title = &title
	}
	if patch.Priority != nil && !patch.Priority.Valid() {
		return patch, fmt.Errorf("%w: unknown priority %q", models.ErrValidation, *patch.Priority)
	}
	return patch, nil
}
