package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"task-dashboard/backend/internal/models"
)

type createTaskIn struct {
	Title      string  `json:"title" binding:"required"`
	Priority   string  `json:"priority"`
	CategoryID *TaskID `json:"categoryId"`
	DueDate    *string `json:"dueDate"`
}

// patchTaskIn keeps raw values so an explicit null can be told apart from an
// absent field: null clears categoryId/dueDate, absence leaves them alone.
type patchTaskIn map[string]json.RawMessage

type bulkUpdateIn struct {
	IDs    []TaskID    `json:"ids" binding:"required"`
	Patch  patchTaskIn `json:"patch" binding:"required"`
	Strict bool        `json:"strict"`
}

type bulkDeleteIn struct {
	IDs    []TaskID `json:"ids" binding:"required"`
	Strict bool     `json:"strict"`
}

type bulkOut struct {
	Tasks []models.Task `json:"tasks"`
	Count int           `json:"count"`
}

// TaskID accepts an id as a JSON number or a numeric string.
type TaskID int64

func (id *TaskID) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: invalid id %s", models.ErrValidation, data)
	}
	*id = TaskID(v)
	return nil
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid id %q", models.ErrValidation, s)
	}
	return id, nil
}

func toInt64s(ids []TaskID) []int64 {
	out := make([]int64, len(ids))
	for i, id := range ids {
		out[i] = int64(id)
	}
	return out
}

// parseDueDate accepts RFC 3339 timestamps and bare dates. A bare date is
// midnight in loc.
func parseDueDate(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation(time.DateOnly, s, loc); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("%w: invalid dueDate %q", models.ErrValidation, s)
}

func (in createTaskIn) toInput(loc *time.Location) (models.CreateTaskInput, error) {
	input := models.CreateTaskInput{Title: in.Title}

	if in.Priority != "" {
		p, ok := models.ParsePriority(in.Priority)
		if !ok {
			return input, fmt.Errorf("%w: unknown priority %q", models.ErrValidation, in.Priority)
		}
		input.Priority = p
	}
	if in.CategoryID != nil {
		id := int64(*in.CategoryID)
		input.CategoryID = &id
	}
	if in.DueDate != nil && *in.DueDate != "" {
		due, err := parseDueDate(*in.DueDate, loc)
		if err != nil {
			return input, err
		}
		input.DueDate = &due
	}
	return input, nil
}

var jsonNull = []byte("null")

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), jsonNull)
}

func (in patchTaskIn) toPatch(loc *time.Location) (models.TaskPatch, error) {
	var patch models.TaskPatch

	for field, raw := range in {
		switch field {
		case "title":
			var title string
			if err := json.Unmarshal(raw, &title); err != nil {
				return patch, fmt.Errorf("%w: title must be a string", models.ErrValidation)
			}
			patch.Title = &title

		case "completed":
			var completed bool
			if err := json.Unmarshal(raw, &completed); err != nil {
				return patch, fmt.Errorf("%w: completed must be a boolean", models.ErrValidation)
			}
			patch.Completed = &completed

		case "priority":
			var s string
			if err := json.Unmarshal(raw, &s); err != nil {
				return patch, fmt.Errorf("%w: priority must be a string", models.ErrValidation)
			}
			p, ok := models.ParsePriority(s)
			if !ok {
				return patch, fmt.Errorf("%w: unknown priority %q", models.ErrValidation, s)
			}
			patch.Priority = &p

		case "categoryId":
			if isNull(raw) {
				patch.ClearCategory = true
				continue
			}
			var id TaskID
			if err := json.Unmarshal(raw, &id); err != nil {
				return patch, err
			}
			v := int64(id)
			patch.CategoryID = &v

		case "dueDate":
			if isNull(raw) {
				patch.ClearDueDate = true
				continue
			}
			var s string
			if err := json.Unmarshal(raw, &s); err != nil {
				return patch, fmt.Errorf("%w: dueDate must be a string", models.ErrValidation)
			}
			if strings.TrimSpace(s) == "" {
				patch.ClearDueDate = true
				continue
			}
			due, err := parseDueDate(s, loc)
			if err != nil {
				return patch, err
			}
			patch.DueDate = &due
		}
	}

	return patch, nil
}
