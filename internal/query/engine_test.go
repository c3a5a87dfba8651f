package query

import (
	"errors"
	"testing"
	"time"

	"task-dashboard/backend/internal/models"
)

var now = time.Date(2024, 6, 15, 12, 0, 0, 0, time.Local)

func ptr[T any](v T) *T { return &v }

func at(days int, hour int) *time.Time {
	t := time.Date(2024, 6, 15+days, hour, 0, 0, 0, time.Local)
	return &t
}

func ids(tasks []models.Task) []int64 {
	out := make([]int64, len(tasks))
	for i, t := range tasks {
		out[i] = t.ID
	}
	return out
}

func equalIDs(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

var categories = []models.Category{
	{ID: 1, Name: "Work"},
	{ID: 2, Name: "Personal"},
}

func fixture() []models.Task {
	base := time.Date(2024, 6, 1, 8, 0, 0, 0, time.Local)
	return []models.Task{
		{ID: 1, Title: "Write quarterly report", Priority: models.PriorityHigh, CategoryID: ptr(int64(1)), DueDate: at(0, 18), CreatedAt: base},
		{ID: 2, Title: "buy groceries", Priority: models.PriorityLow, CategoryID: ptr(int64(2)), DueDate: at(-2, 9), CreatedAt: base.Add(time.Hour)},
		{ID: 3, Title: "Call dentist", Priority: models.PriorityMedium, CategoryID: ptr(int64(2)), DueDate: at(-1, 9), Completed: true, CreatedAt: base.Add(2 * time.Hour)},
		{ID: 4, Title: "Read book", Priority: models.PriorityLow, CreatedAt: base.Add(3 * time.Hour)},
		{ID: 5, Title: "Prepare slides", Priority: models.PriorityHigh, CategoryID: ptr(int64(1)), DueDate: at(3, 10), CreatedAt: base.Add(4 * time.Hour)},
	}
}

func TestFilter_AllFiltersOffReturnsEverythingInOrder(t *testing.T) {
	tasks := fixture()
	got := Filter(tasks, categories, "", Filters{Status: StatusAll, Date: DateAll}, now)

	if !equalIDs(ids(got), []int64{1, 2, 3, 4, 5}) {
		t.Errorf("Expected original order, got %v", ids(got))
	}
}

func TestFilter_Search(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		expected []int64
	}{
		{"title case-insensitive", "REPORT", []int64{1}},
		{"category name", "personal", []int64{2, 3}},
		{"blank matches all", "   ", []int64{1, 2, 3, 4, 5}},
		{"trimmed query", "  book ", []int64{4}},
		{"no match", "zebra", []int64{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Filter(fixture(), categories, tt.query, Filters{}, now)
			if !equalIDs(ids(got), tt.expected) {
				t.Errorf("Filter(%q) = %v, want %v", tt.query, ids(got), tt.expected)
			}
		})
	}
}

func TestFilters_Matches(t *testing.T) {
	tests := []struct {
		name     string
		filters  Filters
		expected []int64
	}{
		{"completed", Filters{Status: StatusCompleted}, []int64{3}},
		{"pending", Filters{Status: StatusPending}, []int64{1, 2, 4, 5}},
		{"priority high", Filters{Priority: models.PriorityHigh}, []int64{1, 5}},
		{"category work", Filters{Category: ptr(int64(1))}, []int64{1, 5}},
		{"unknown category", Filters{Category: ptr(int64(9))}, []int64{}},
		{"due today", Filters{Date: DateToday}, []int64{1}},
		{"overdue excludes completed", Filters{Date: DateOverdue}, []int64{2}},
		{"upcoming includes no due date", Filters{Date: DateUpcoming}, []int64{1, 4, 5}},
		{"conjunctive", Filters{Priority: models.PriorityLow, Date: DateUpcoming}, []int64{4}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Filter(fixture(), categories, "", tt.filters, now)
			if !equalIDs(ids(got), tt.expected) {
				t.Errorf("Filter(%+v) = %v, want %v", tt.filters, ids(got), tt.expected)
			}
		})
	}
}

func TestFilters_OverdueExcludesCompletedPastTask(t *testing.T) {
	task := models.Task{ID: 1, Completed: true, DueDate: at(-5, 0)}
	if (Filters{Date: DateOverdue}).Matches(task, now) {
		t.Error("Expected completed past-due task to be excluded from overdue")
	}
}

func TestFilters_DueTodayEarlierThanNowIsTodayAndOverdue(t *testing.T) {
	task := models.Task{ID: 1, DueDate: at(0, 8)}

	if !(Filters{Date: DateToday}).Matches(task, now) {
		t.Error("Expected task due this morning to match today")
	}
	if !(Filters{Date: DateOverdue}).Matches(task, now) {
		t.Error("Expected task due this morning to match overdue")
	}
	if (Filters{Date: DateUpcoming}).Matches(task, now) {
		t.Error("Expected task due this morning not to match upcoming")
	}
}

func TestSort(t *testing.T) {
	tests := []struct {
		name     string
		field    SortField
		expected []int64
	}{
		{"created newest first", SortByCreated, []int64{5, 4, 3, 2, 1}},
		{"due date ascending nil last", SortByDueDate, []int64{2, 3, 1, 5, 4}},
		{"priority stable", SortByPriority, []int64{1, 5, 3, 2, 4}},
		{"title collated", SortByTitle, []int64{2, 3, 5, 4, 1}},
		{"unknown falls back to created", SortField("bogus"), []int64{5, 4, 3, 2, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Sort(fixture(), tt.field)
			if !equalIDs(ids(got), tt.expected) {
				t.Errorf("Sort(%s) = %v, want %v", tt.field, ids(got), tt.expected)
			}
		})
	}
}

func TestSort_DueDateNilAfterDated(t *testing.T) {
	jan1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.Local)
	tasks := []models.Task{
		{ID: 1, Title: "no due"},
		{ID: 2, Title: "also no due"},
		{ID: 3, Title: "dated", DueDate: &jan1},
	}

	got := Sort(tasks, SortByDueDate)
	if !equalIDs(ids(got), []int64{3, 1, 2}) {
		t.Errorf("Expected dated task first and nil order preserved, got %v", ids(got))
	}
}

func TestSort_DoesNotModifyInput(t *testing.T) {
	tasks := fixture()
	_ = Sort(tasks, SortByTitle)

	if !equalIDs(ids(tasks), []int64{1, 2, 3, 4, 5}) {
		t.Errorf("Expected input untouched, got %v", ids(tasks))
	}
}

func TestApply_SortsAfterFiltering(t *testing.T) {
	p := Params{
		Filters: Filters{Status: StatusPending, Priority: models.PriorityHigh},
		SortBy:  SortByDueDate,
	}

	got := Apply(fixture(), categories, p, now)
	if !equalIDs(ids(got), []int64{1, 5}) {
		t.Errorf("Apply() = %v, want [1 5]", ids(got))
	}
}

func TestParseParams(t *testing.T) {
	p, err := ParseParams(RawParams{})
	if err != nil {
		t.Fatalf("Expected defaults to parse, got %v", err)
	}
	if p.SortBy != SortByCreated || p.Filters.Status != StatusAll || p.Filters.Date != DateAll {
		t.Errorf("Unexpected defaults: %+v", p)
	}
	if p.Filters.IsActive() {
		t.Error("Expected default filters to be inactive")
	}

	p, err = ParseParams(RawParams{
		Search:   "milk",
		Status:   "Completed",
		Priority: "high",
		Category: "2",
		Date:     "overdue",
		SortBy:   "dueDate",
	})
	if err != nil {
		t.Fatalf("Expected params to parse, got %v", err)
	}
	if p.Filters.Category == nil || *p.Filters.Category != 2 {
		t.Errorf("Expected category 2, got %v", p.Filters.Category)
	}
	if p.Filters.Status != StatusCompleted || p.Filters.Priority != models.PriorityHigh ||
		p.Filters.Date != DateOverdue || p.SortBy != SortByDueDate || p.Search != "milk" {
		t.Errorf("Unexpected params: %+v", p)
	}
	if !p.Filters.IsActive() {
		t.Error("Expected filters to be active")
	}
}

func TestParseParams_Invalid(t *testing.T) {
	tests := []RawParams{
		{Status: "done"},
		{Priority: "urgent"},
		{Category: "work"},
		{Date: "yesterday"},
		{SortBy: "name"},
	}

	for _, raw := range tests {
		_, err := ParseParams(raw)
		if !errors.Is(err, ErrInvalidParams) {
			t.Errorf("ParseParams(%+v) expected ErrInvalidParams, got %v", raw, err)
		}
		if !errors.Is(err, models.ErrValidation) {
			t.Errorf("ParseParams(%+v) expected ErrValidation, got %v", raw, err)
		}
	}
}
