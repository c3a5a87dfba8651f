// Package store holds the canonical in-memory collection of tasks and
// categories. Every value crossing the package boundary is a copy.
package store

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"task-dashboard/backend/internal/models"
)

type Option func(*TaskStore)

func WithClock(now func() time.Time) Option {
	return func(s *TaskStore) {
		s.now = now
	}
}

type bulkOptions struct {
	strict bool
}

type BulkOption func(*bulkOptions)

// Strict makes a bulk call fail with ErrTaskNotFound, without modifying
// anything, when any of the requested ids is absent.
func Strict() BulkOption {
	return func(o *bulkOptions) {
		o.strict = true
	}
}

type TaskStore struct {
	mu         sync.RWMutex
	tasks      []models.Task
	categories []models.Category
	lastID     int64
	now        func() time.Time
}

func New(tasks []models.Task, categories []models.Category, opts ...Option) *TaskStore {
	s := &TaskStore{
		tasks:      models.CloneTasks(tasks),
		categories: append([]models.Category(nil), categories...),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	for _, t := range s.tasks {
		if t.ID > s.lastID {
			s.lastID = t.ID
		}
	}
	return s
}

func (s *TaskStore) GetAll() []models.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return models.CloneTasks(s.tasks)
}

func (s *TaskStore) GetByID(id int64) (models.Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx := s.indexOf(id)
	if idx == -1 {
		return models.Task{}, false
	}
	return s.tasks[idx].Clone(), true
}

func (s *TaskStore) Create(input models.CreateTaskInput) models.Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	priority := input.Priority
	if priority == "" {
		priority = models.PriorityMedium
	}

	s.lastID = max(s.lastID, s.maxID()) + 1
	task := models.Task{
		ID:         s.lastID,
		Title:      input.Title,
		Priority:   priority,
		CategoryID: input.CategoryID,
		DueDate:    input.DueDate,
		CreatedAt:  s.now(),
	}
	task = task.Clone()

	s.tasks = append(s.tasks, task)
	return task.Clone()
}

func (s *TaskStore) Update(id int64, patch models.TaskPatch) (models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(id)
	if idx == -1 {
		return models.Task{}, fmt.Errorf("update task %d: %w", id, models.ErrTaskNotFound)
	}

	s.tasks[idx] = applyPatch(s.tasks[idx], patch, s.now())
	return s.tasks[idx].Clone(), nil
}

func (s *TaskStore) Delete(id int64) (models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(id)
	if idx == -1 {
		return models.Task{}, fmt.Errorf("delete task %d: %w", id, models.ErrTaskNotFound)
	}
	return s.removeAt(idx), nil
}

// BulkUpdate applies patch to every listed task, in the order of ids.
// Unknown ids are skipped unless Strict is given.
func (s *TaskStore) BulkUpdate(ids []int64, patch models.TaskPatch, opts ...BulkOption) ([]models.Task, error) {
	o := buildBulkOptions(opts)

	s.mu.Lock()
	defer s.mu.Unlock()

	if o.strict {
		if err := s.requireAll(ids); err != nil {
			return nil, fmt.Errorf("bulk update: %w", err)
		}
	}

	now := s.now()
	updated := make([]models.Task, 0, len(ids))
	for _, id := range ids {
		idx := s.indexOf(id)
		if idx == -1 {
			continue
		}
		s.tasks[idx] = applyPatch(s.tasks[idx], patch, now)
		updated = append(updated, s.tasks[idx].Clone())
	}
	return updated, nil
}

// BulkDelete removes the listed tasks in descending id order and returns
// them in that order. Unknown ids are skipped unless Strict is given.
func (s *TaskStore) BulkDelete(ids []int64, opts ...BulkOption) ([]models.Task, error) {
	o := buildBulkOptions(opts)

	sorted := append([]int64(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] > sorted[j] })

	s.mu.Lock()
	defer s.mu.Unlock()

	if o.strict {
		if err := s.requireAll(sorted); err != nil {
			return nil, fmt.Errorf("bulk delete: %w", err)
		}
	}

	deleted := make([]models.Task, 0, len(sorted))
	for _, id := range sorted {
		idx := s.indexOf(id)
		if idx == -1 {
			continue
		}
		deleted = append(deleted, s.removeAt(idx))
	}
	return deleted, nil
}

func (s *TaskStore) GetCategories() []models.Category {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.countedCategories()
}

// Snapshot returns tasks and annotated categories read under a single lock.
func (s *TaskStore) Snapshot() ([]models.Task, []models.Category) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return models.CloneTasks(s.tasks), s.countedCategories()
}

func (s *TaskStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tasks)
}

func (s *TaskStore) countedCategories() []models.Category {
	out := make([]models.Category, len(s.categories))
	for i, c := range s.categories {
		c.TaskCount = 0
		c.CompletedCount = 0
		for _, t := range s.tasks {
			if !t.HasCategory(c.ID) {
				continue
			}
			c.TaskCount++
			if t.Completed {
				c.CompletedCount++
			}
		}
		out[i] = c
	}
	return out
}

func (s *TaskStore) indexOf(id int64) int {
	for i, t := range s.tasks {
		if t.ID == id {
			return i
		}
	}
	return -1
}

func (s *TaskStore) maxID() int64 {
	var m int64
	for _, t := range s.tasks {
		if t.ID > m {
			m = t.ID
		}
	}
	return m
}

func (s *TaskStore) removeAt(idx int) models.Task {
	removed := s.tasks[idx]
	s.tasks = append(s.tasks[:idx], s.tasks[idx+1:]...)
	return removed.Clone()
}

func (s *TaskStore) requireAll(ids []int64) error {
	for _, id := range ids {
		if s.indexOf(id) == -1 {
			return fmt.Errorf("task %d: %w", id, models.ErrTaskNotFound)
		}
	}
	return nil
}

func buildBulkOptions(opts []BulkOption) bulkOptions {
	var o bulkOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
