package model

// PlannerAnalytics is computed over the non-archived entries of the
// planner store; it is never persisted.
type PlannerAnalytics struct {
	TotalTasks           int              `json:"totalTasks"`
	CompletedTasks       int              `json:"completedTasks"`
	PendingTasks         int              `json:"pendingTasks"`
	HighPriorityPending  int              `json:"highPriorityPending"`
	CompletionRate       float64          `json:"completionRate"`
	CategoryDistribution map[Category]int `json:"categoryDistribution"`
	// WeeklyTaskCounts holds one count per weekday of the current
	// calendar week, Monday first.
	WeeklyTaskCounts [7]int `json:"weeklyTaskCounts"`
}
