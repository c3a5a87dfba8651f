// Package seed provides the dataset the task store starts from.
package seed

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"

	"task-dashboard/backend/internal/models"
)

//go:embed data/tasks.json data/categories.json
var dataFS embed.FS

// Source yields the initial tasks and categories.
type Source interface {
	Load(ctx context.Context) ([]models.Task, []models.Category, error)
}

// Embedded serves the dataset compiled into the binary.
type Embedded struct{}

func (Embedded) Load(_ context.Context) ([]models.Task, []models.Category, error) {
	return Load()
}

func Load() ([]models.Task, []models.Category, error) {
	var tasks []models.Task
	if err := decode("data/tasks.json", &tasks); err != nil {
		return nil, nil, err
	}

	var categories []models.Category
	if err := decode("data/categories.json", &categories); err != nil {
		return nil, nil, err
	}

	if err := Validate(tasks); err != nil {
		return nil, nil, err
	}
	return tasks, categories, nil
}

// Validate rejects datasets with duplicate or non-positive ids.
func Validate(tasks []models.Task) error {
	seen := make(map[int64]struct{}, len(tasks))
	for _, t := range tasks {
		if t.ID <= 0 {
			return fmt.Errorf("seed task %q: id must be positive, got %d", t.Title, t.ID)
		}
		if _, dup := seen[t.ID]; dup {
			return fmt.Errorf("seed task %q: duplicate id %d", t.Title, t.ID)
		}
		seen[t.ID] = struct{}{}
	}
	return nil
}

func decode(name string, dest interface{}) error {
	data, err := dataFS.ReadFile(name)
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("decode %s: %w", name, err)
	}
	return nil
}
