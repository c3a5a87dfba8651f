package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gofrs/uuid"

	"task-dashboard/backend/internal/cache"
	"task-dashboard/backend/internal/models"
	"task-dashboard/backend/internal/query"
	"task-dashboard/backend/internal/worker"
)

const (
	statsKeyPrefix      = "stats:"
	categoriesKeyPrefix = "categories:"

	DefaultStatsTTL      = 5 * time.Minute
	DefaultCategoriesTTL = 10 * time.Minute
)

type CachedOption func(*CachedTaskService)

func WithCacheClock(now func() time.Time) CachedOption {
	return func(s *CachedTaskService) {
		s.now = now
	}
}

func WithRefreshQueue(q *worker.JobQueue) CachedOption {
	return func(s *CachedTaskService) {
		s.queue = q
	}
}

func WithLogger(logger *slog.Logger) CachedOption {
	return func(s *CachedTaskService) {
		s.logger = logger
	}
}

// WithInstanceID fixes the token that scopes this process's cache keys.
func WithInstanceID(id string) CachedOption {
	return func(s *CachedTaskService) {
		if id != "" {
			s.instance = id
		}
	}
}

func WithTTLs(statsTTL, categoriesTTL time.Duration) CachedOption {
	return func(s *CachedTaskService) {
		if statsTTL > 0 {
			s.statsTTL = statsTTL
		}
		if categoriesTTL > 0 {
			s.categoriesTTL = categoriesTTL
		}
	}
}

// CachedTaskService caches the aggregate reads (stats and category counts)
// and moves to fresh keys on every successful mutation. Cache failures never
// fail a call; the value is computed from the store instead.
//
// Keys carry the instance id and the mutation generation, so an entry that
// could not be deleted during invalidation is never read again and simply
// expires with its TTL.
type CachedTaskService struct {
	taskService   TaskService
	cache         cache.Cache
	queue         *worker.JobQueue
	logger        *slog.Logger
	now           func() time.Time
	instance      string
	statsTTL      time.Duration
	categoriesTTL time.Duration

	generation atomic.Uint64
}

var _ TaskService = (*CachedTaskService)(nil)

func NewCachedTaskService(taskService TaskService, cacheInstance cache.Cache, opts ...CachedOption) *CachedTaskService {
	s := &CachedTaskService{
		taskService:   taskService,
		cache:         cacheInstance,
		logger:        slog.Default(),
		now:           time.Now,
		instance:      newInstanceID(),
		statsTTL:      DefaultStatsTTL,
		categoriesTTL: DefaultCategoriesTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "cached_task_service", "instance", s.instance)
	return s
}

func newInstanceID() string {
	id, err := uuid.NewV4()
	if err != nil {
		return strconv.FormatInt(time.Now().UnixNano(), 36)
	}
	return id.String()[:8]
}

func (s *CachedTaskService) GetAll(ctx context.Context) ([]models.Task, error) {
	return s.taskService.GetAll(ctx)
}

func (s *CachedTaskService) GetByID(ctx context.Context, id int64) (models.Task, error) {
	return s.taskService.GetByID(ctx, id)
}

func (s *CachedTaskService) Query(ctx context.Context, raw query.RawParams) ([]models.Task, error) {
	return s.taskService.Query(ctx, raw)
}

func (s *CachedTaskService) Create(ctx context.Context, input models.CreateTaskInput) (models.Task, error) {
	task, err := s.taskService.Create(ctx, input)
	if err != nil {
		return task, err
	}
	s.invalidate(ctx, "create")
	return task, nil
}

func (s *CachedTaskService) Update(ctx context.Context, id int64, patch models.TaskPatch) (models.Task, error) {
	task, err := s.taskService.Update(ctx, id, patch)
	if err != nil {
		return task, err
	}
	s.invalidate(ctx, "update")
	return task, nil
}

func (s *CachedTaskService) Delete(ctx context.Context, id int64) (models.Task, error) {
	task, err := s.taskService.Delete(ctx, id)
	if err != nil {
		return task, err
	}
	s.invalidate(ctx, "delete")
	return task, nil
}

func (s *CachedTaskService) BulkUpdate(ctx context.Context, ids []int64, patch models.TaskPatch, strict bool) ([]models.Task, error) {
	tasks, err := s.taskService.BulkUpdate(ctx, ids, patch, strict)
	if err != nil {
		return tasks, err
	}
	if len(tasks) > 0 {
		s.invalidate(ctx, "bulk_update")
	}
	return tasks, nil
}

func (s *CachedTaskService) BulkDelete(ctx context.Context, ids []int64, strict bool) ([]models.Task, error) {
	tasks, err := s.taskService.BulkDelete(ctx, ids, strict)
	if err != nil {
		return tasks, err
	}
	if len(tasks) > 0 {
		s.invalidate(ctx, "bulk_delete")
	}
	return tasks, nil
}

func (s *CachedTaskService) GetStats(ctx context.Context) (models.Stats, error) {
	gen := s.generation.Load()
	key := s.statsKey(gen)

	var cached models.Stats
	if s.lookup(ctx, key, &cached) {
		return cached, nil
	}

	result, err := s.taskService.GetStats(ctx)
	if err != nil {
		return result, err
	}
	s.fill(ctx, gen, key, result, s.statsTTL)
	return result, nil
}

func (s *CachedTaskService) GetCategories(ctx context.Context) ([]models.Category, error) {
	gen := s.generation.Load()
	key := s.categoriesKey(gen)

	var cached []models.Category
	if s.lookup(ctx, key, &cached) {
		return cached, nil
	}

	categories, err := s.taskService.GetCategories(ctx)
	if err != nil {
		return categories, err
	}
	s.fill(ctx, gen, key, categories, s.categoriesTTL)
	return categories, nil
}

// RefreshStats recomputes today's stats into the cache.
func (s *CachedTaskService) RefreshStats(ctx context.Context) error {
	gen := s.generation.Load()
	result, err := s.taskService.GetStats(ctx)
	if err != nil {
		return err
	}
	return s.fill(ctx, gen, s.statsKey(gen), result, s.statsTTL)
}

func (s *CachedTaskService) RefreshCategories(ctx context.Context) error {
	gen := s.generation.Load()
	categories, err := s.taskService.GetCategories(ctx)
	if err != nil {
		return err
	}
	return s.fill(ctx, gen, s.categoriesKey(gen), categories, s.categoriesTTL)
}

// WarmUp fills the cache at startup. Failures are logged, not returned.
func (s *CachedTaskService) WarmUp(ctx context.Context) {
	if err := s.RefreshStats(ctx); err != nil {
		s.logger.Warn("warm stats", "error", err)
	}
	if err := s.RefreshCategories(ctx); err != nil {
		s.logger.Warn("warm categories", "error", err)
	}
}

func (s *CachedTaskService) RegisterJobHandlers(w *worker.Worker) {
	w.RegisterHandler(worker.JobTypeStatsRefresh, func(ctx context.Context, _ *worker.Job) error {
		return s.RefreshStats(ctx)
	})
	w.RegisterHandler(worker.JobTypeCategoriesRefresh, func(ctx context.Context, _ *worker.Job) error {
		return s.RefreshCategories(ctx)
	})
}

func (s *CachedTaskService) GetCacheStats() map[string]interface{} {
	return s.cache.Stats()
}

// statsKey is scoped to the day because the stats depend on the current date.
func (s *CachedTaskService) statsKey(gen uint64) string {
	return fmt.Sprintf("%s%s:%d:%s", statsKeyPrefix, s.instance, gen, s.now().Format(time.DateOnly))
}

func (s *CachedTaskService) categoriesKey(gen uint64) string {
	return fmt.Sprintf("%s%s:%d", categoriesKeyPrefix, s.instance, gen)
}

func (s *CachedTaskService) lookup(ctx context.Context, key string, dest interface{}) bool {
	err := s.cache.Get(ctx, key, dest)
	if err == nil {
		return true
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		s.logger.Warn("cache read failed", "key", key, "error", err)
	}
	return false
}

// fill writes under the generation the value was computed in. A fill that
// races a mutation lands on a key nobody reads any more.
func (s *CachedTaskService) fill(ctx context.Context, gen uint64, key string, value interface{}, ttl time.Duration) error {
	if s.generation.Load() != gen {
		return nil
	}
	err := s.cache.Set(ctx, key, value, ttl)
	if err != nil {
		s.logger.Warn("cache write failed", "key", key, "error", err)
	}
	return err
}

func (s *CachedTaskService) invalidate(ctx context.Context, reason string) {
	old := s.generation.Add(1) - 1

	// Readers have already moved on to the new generation; these deletes
	// only reclaim space, so a failure leaves entries to expire by TTL.
	statsPattern := fmt.Sprintf("%s%s:%d:*", statsKeyPrefix, s.instance, old)
	if err := s.cache.DeletePattern(ctx, statsPattern); err != nil {
		s.logger.Warn("drop old stats", "generation", old, "error", err)
	}
	if err := s.cache.Delete(ctx, s.categoriesKey(old)); err != nil {
		s.logger.Warn("drop old categories", "generation", old, "error", err)
	}

	if s.queue == nil {
		return
	}
	payload := map[string]interface{}{"reason": reason}
	for _, jobType := range []worker.JobType{worker.JobTypeStatsRefresh, worker.JobTypeCategoriesRefresh} {
		if _, err := s.queue.Enqueue(ctx, jobType, payload); err != nil {
			s.logger.Warn("enqueue refresh", "job_type", jobType, "error", err)
		}
	}
}
