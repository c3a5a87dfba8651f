// Package stats summarises a task snapshot for the dashboard widgets.
package stats

import (
	"math"
	"time"

	"task-dashboard/backend/internal/models"
)

// MaxStreakDays bounds the streak lookback.
const MaxStreakDays = 365

type day struct {
	year  int
	month time.Month
	day   int
}

func dayOf(t time.Time, loc *time.Location) day {
	y, m, d := t.In(loc).Date()
	return day{y, m, d}
}

// Compute derives dashboard stats. Calendar days are evaluated in now's location.
func Compute(tasks []models.Task, now time.Time) models.Stats {
	loc := now.Location()
	today := dayOf(now, loc)

	completionDays := make(map[day]struct{})
	var completed, completedToday int
	for _, t := range tasks {
		if t.Completed {
			completed++
		}
		if t.CompletedAt == nil {
			continue
		}
		d := dayOf(*t.CompletedAt, loc)
		completionDays[d] = struct{}{}
		if d == today {
			completedToday++
		}
	}

	return models.Stats{
		TotalTasks:     len(tasks),
		CompletedToday: completedToday,
		Streak:         streak(completionDays, now),
		CompletionRate: CompletionRate(completed, len(tasks)),
	}
}

// CompletionRate is round(100*completed/total), or 0 for an empty collection.
func CompletionRate(completed, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(completed) / float64(total) * 100))
}

// Streak counts consecutive days with at least one completion, walking back
// from today. It stops at the first empty day or after MaxStreakDays.
func Streak(tasks []models.Task, now time.Time) int {
	loc := now.Location()
	days := make(map[day]struct{})
	for _, t := range tasks {
		if t.CompletedAt != nil {
			days[dayOf(*t.CompletedAt, loc)] = struct{}{}
		}
	}
	return streak(days, now)
}

func streak(days map[day]struct{}, now time.Time) int {
	y, m, d := now.Date()
	n := 0
	for n < MaxStreakDays {
		// time.Date normalises d-n across month ends; noon sidesteps DST gaps.
		cursor := time.Date(y, m, d-n, 12, 0, 0, 0, now.Location())
		if _, ok := days[dayOf(cursor, now.Location())]; !ok {
			break
		}
		n++
	}
	return n
}
