package models

import (
	"strings"
	"time"
)

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Rank orders priorities for sorting: high=3, medium=2, low=1. Unknown values rank 0.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

func (p Priority) Valid() bool {
	return p.Rank() > 0
}

func ParsePriority(s string) (Priority, bool) {
	p := Priority(strings.ToLower(strings.TrimSpace(s)))
	return p, p.Valid()
}

type Task struct {
	ID          int64      `json:"id" gorm:"primaryKey"`
	Title       string     `json:"title" gorm:"not null"`
	Completed   bool       `json:"completed" gorm:"not null;default:false"`
	Priority    Priority   `json:"priority" gorm:"not null;default:'medium'"`
	CategoryID  *int64     `json:"categoryId"`
	DueDate     *time.Time `json:"dueDate"`
	CreatedAt   time.Time  `json:"createdAt"`
	CompletedAt *time.Time `json:"completedAt"`
}

// Clone returns a deep copy; pointer fields never alias the receiver.
func (t Task) Clone() Task {
	out := t
	if t.CategoryID != nil {
		id := *t.CategoryID
		out.CategoryID = &id
	}
	if t.DueDate != nil {
		d := *t.DueDate
		out.DueDate = &d
	}
	if t.CompletedAt != nil {
		c := *t.CompletedAt
		out.CompletedAt = &c
	}
	return out
}

// HasCategory reports whether the task belongs to the category with the given id.
func (t Task) HasCategory(id int64) bool {
	return t.CategoryID != nil && *t.CategoryID == id
}

type CreateTaskInput struct {
	Title      string
	Priority   Priority
	CategoryID *int64
	DueDate    *time.Time
}

// TaskPatch carries the fields of a partial update. Nil fields are left
// untouched; ClearCategory and ClearDueDate null the respective field.
type TaskPatch struct {
	Title         *string
	Completed     *bool
	Priority      *Priority
	CategoryID    *int64
	ClearCategory bool
	DueDate       *time.Time
	ClearDueDate  bool
}

func (p TaskPatch) IsEmpty() bool {
	return p.Title == nil && p.Completed == nil && p.Priority == nil &&
		p.CategoryID == nil && !p.ClearCategory &&
		p.DueDate == nil && !p.ClearDueDate
}

func CloneTasks(tasks []Task) []Task {
	out := make([]Task, len(tasks))
	for i, t := range tasks {
		out[i] = t.Clone()
	}
	return out
}
