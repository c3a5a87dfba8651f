package store

import (
	"time"

	"task-dashboard/backend/internal/models"
)

// applyPatch merges patch onto task. completedAt is stamped only on the
// false->true transition and cleared whenever completed is set to false.
func applyPatch(task models.Task, patch models.TaskPatch, now time.Time) models.Task {
	wasCompleted := task.Completed
	out := task.Clone()

	if patch.Title != nil {
		out.Title = *patch.Title
	}
	if patch.Priority != nil {
		out.Priority = *patch.Priority
	}

	switch {
	case patch.ClearCategory:
		out.CategoryID = nil
	case patch.CategoryID != nil:
		id := *patch.CategoryID
		out.CategoryID = &id
	}

	switch {
	case patch.ClearDueDate:
		out.DueDate = nil
	case patch.DueDate != nil:
		due := *patch.DueDate
		out.DueDate = &due
	}

	if patch.Completed != nil {
		out.Completed = *patch.Completed
		switch {
		case *patch.Completed && !wasCompleted:
			stamp := now
			out.CompletedAt = &stamp
		case !*patch.Completed:
			out.CompletedAt = nil
		}
	}

	return out
}
