package models

type Stats struct {
	TotalTasks     int `json:"totalTasks"`
	CompletedToday int `json:"completedToday"`
	Streak         int `json:"streak"`
	CompletionRate int `json:"completionRate"`
}
