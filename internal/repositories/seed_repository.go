package repositories

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"task-dashboard/backend/internal/models"
)

// SeedRepository reads the initial dataset from a SQL database. The dashboard
// never writes user changes back; Import exists to populate a fresh database.
type SeedRepository struct {
	db *gorm.DB
}

func NewSeedRepository(db *gorm.DB) *SeedRepository {
	return &SeedRepository{db: db}
}

func (r *SeedRepository) Migrate(ctx context.Context) error {
	if err := r.db.WithContext(ctx).AutoMigrate(&models.Category{}, &models.Task{}); err != nil {
		return fmt.Errorf("migrate seed tables: %w", err)
	}
	return nil
}

func (r *SeedRepository) Load(ctx context.Context) ([]models.Task, []models.Category, error) {
	var categories []models.Category
	if err := r.db.WithContext(ctx).Order("id").Find(&categories).Error; err != nil {
		return nil, nil, fmt.Errorf("load categories: %w", err)
	}

	var tasks []models.Task
	if err := r.db.WithContext(ctx).Order("id").Find(&tasks).Error; err != nil {
		return nil, nil, fmt.Errorf("load tasks: %w", err)
	}

	return tasks, categories, nil
}

// Import replaces the stored dataset in one transaction.
func (r *SeedRepository) Import(ctx context.Context, tasks []models.Task, categories []models.Category) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.Task{}).Error; err != nil {
			return fmt.Errorf("clear tasks: %w", err)
		}
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.Category{}).Error; err != nil {
			return fmt.Errorf("clear categories: %w", err)
		}
		if len(categories) > 0 {
			if err := tx.CreateInBatches(categories, 100).Error; err != nil {
				return fmt.Errorf("insert categories: %w", err)
			}
		}
		if len(tasks) > 0 {
			if err := tx.CreateInBatches(tasks, 100).Error; err != nil {
				return fmt.Errorf("insert tasks: %w", err)
			}
		}
		return nil
	})
}

func (r *SeedRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Task{}).Count(&count).Error
	return count, err
}
