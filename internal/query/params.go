package query

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"task-dashboard/backend/internal/models"
)

// ErrInvalidParams wraps models.ErrValidation so boundary code can classify it.
var ErrInvalidParams = fmt.Errorf("invalid query parameters: %w", models.ErrValidation)

const All = "all"

type StatusFilter string

const (
	StatusAll       StatusFilter = All
	StatusCompleted StatusFilter = "completed"
	StatusPending   StatusFilter = "pending"
)

type DateFilter string

const (
	DateAll      DateFilter = All
	DateToday    DateFilter = "today"
	DateOverdue  DateFilter = "overdue"
	DateUpcoming DateFilter = "upcoming"
)

type SortField string

const (
	SortByCreated  SortField = "created"
	SortByDueDate  SortField = "dueDate"
	SortByPriority SortField = "priority"
	SortByTitle    SortField = "title"
)

// Filters mirror the dashboard's filter toolbar. The zero value matches everything.
type Filters struct {
	Status   StatusFilter
	Priority models.Priority
	Category *int64
	Date     DateFilter
}

func (f Filters) IsActive() bool {
	return (f.Status != "" && f.Status != StatusAll) ||
		f.Priority != "" ||
		f.Category != nil ||
		(f.Date != "" && f.Date != DateAll)
}

type Params struct {
	Search  string
	Filters Filters
	SortBy  SortField
}

// RawParams holds the string form of a query as it arrives from a client.
type RawParams struct {
	Search   string
	Status   string
	Priority string
	Category string
	Date     string
	SortBy   string
}

// ParseParams validates raw values. Empty values and "all" disable a filter;
// an empty sort defaults to created.
func ParseParams(raw RawParams) (Params, error) {
	p := Params{Search: raw.Search}
	var errs []error

	switch v := StatusFilter(normalize(raw.Status)); v {
	case "", StatusAll:
		p.Filters.Status = StatusAll
	case StatusCompleted, StatusPending:
		p.Filters.Status = v
	default:
		errs = append(errs, fmt.Errorf("unknown status %q", raw.Status))
	}

	if v := normalize(raw.Priority); v != "" && v != All {
		priority, ok := models.ParsePriority(v)
		if !ok {
			errs = append(errs, fmt.Errorf("unknown priority %q", raw.Priority))
		}
		p.Filters.Priority = priority
	}

	if v := normalize(raw.Category); v != "" && v != All {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid category %q", raw.Category))
		} else {
			p.Filters.Category = &id
		}
	}

	switch v := DateFilter(normalize(raw.Date)); v {
	case "", DateAll:
		p.Filters.Date = DateAll
	case DateToday, DateOverdue, DateUpcoming:
		p.Filters.Date = v
	default:
		errs = append(errs, fmt.Errorf("unknown date filter %q", raw.Date))
	}

	switch v := SortField(strings.TrimSpace(raw.SortBy)); v {
	case "":
		p.SortBy = SortByCreated
	case SortByCreated, SortByDueDate, SortByPriority, SortByTitle:
		p.SortBy = v
	default:
		errs = append(errs, fmt.Errorf("unknown sort %q", raw.SortBy))
	}

	if len(errs) > 0 {
		return Params{}, fmt.Errorf("%w: %w", ErrInvalidParams, errors.Join(errs...))
	}
	return p, nil
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
