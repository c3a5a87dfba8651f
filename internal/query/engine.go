// Package query turns a task snapshot into the list the dashboard shows:
// search, then filters, then a stable sort. Inputs are never modified.
package query

import (
	"sort"
	"strings"
	"time"

	"task-dashboard/backend/internal/models"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

func Apply(tasks []models.Task, categories []models.Category, p Params, now time.Time) []models.Task {
	filtered := Filter(tasks, categories, p.Search, p.Filters, now)
	return Sort(filtered, p.SortBy)
}

// Filter keeps the tasks matching search and every active filter, preserving input order.
func Filter(tasks []models.Task, categories []models.Category, search string, f Filters, now time.Time) []models.Task {
	q := strings.ToLower(strings.TrimSpace(search))

	result := make([]models.Task, 0, len(tasks))
	for _, t := range tasks {
		if q != "" && !matchesSearch(t, categories, q) {
			continue
		}
		if !f.Matches(t, now) {
			continue
		}
		result = append(result, t.Clone())
	}
	return result
}

// Matches reports whether t passes all active filters (AND between filters).
func (f Filters) Matches(t models.Task, now time.Time) bool {
	switch f.Status {
	case StatusCompleted:
		if !t.Completed {
			return false
		}
	case StatusPending:
		if t.Completed {
			return false
		}
	}

	if f.Priority != "" && t.Priority != f.Priority {
		return false
	}

	if f.Category != nil && !t.HasCategory(*f.Category) {
		return false
	}

	switch f.Date {
	case DateToday:
		return t.DueDate != nil && sameDay(*t.DueDate, now)
	case DateOverdue:
		return t.DueDate != nil && t.DueDate.Before(now) && !t.Completed
	case DateUpcoming:
		return t.DueDate == nil || t.DueDate.After(now)
	}

	return true
}

func matchesSearch(t models.Task, categories []models.Category, q string) bool {
	if strings.Contains(strings.ToLower(strings.TrimSpace(t.Title)), q) {
		return true
	}
	if t.CategoryID == nil {
		return false
	}
	c, ok := models.FindCategory(categories, *t.CategoryID)
	return ok && strings.Contains(strings.ToLower(c.Name), q)
}

// Sort returns a sorted copy. Equal keys keep their input order.
func Sort(tasks []models.Task, field SortField) []models.Task {
	result := models.CloneTasks(tasks)
	if len(result) < 2 {
		return result
	}

	switch field {
	case SortByDueDate:
		sort.SliceStable(result, func(i, j int) bool {
			a, b := result[i].DueDate, result[j].DueDate
			switch {
			case a == nil:
				return false
			case b == nil:
				return true
			default:
				return a.Before(*b)
			}
		})

	case SortByPriority:
		sort.SliceStable(result, func(i, j int) bool {
			return result[i].Priority.Rank() > result[j].Priority.Rank()
		})

	case SortByTitle:
		// Collators keep internal buffers and are not safe for concurrent use.
		c := collate.New(language.Und)
		sort.SliceStable(result, func(i, j int) bool {
			return c.CompareString(result[i].Title, result[j].Title) < 0
		})

	default:
		sort.SliceStable(result, func(i, j int) bool {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		})
	}

	return result
}

func sameDay(t, ref time.Time) bool {
	y1, m1, d1 := t.In(ref.Location()).Date()
	y2, m2, d2 := ref.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}
