// Package report derives per-member weekly performance metrics from task and
// time-log data. Nothing here is persisted: every request recomputes the
// report from the underlying sources for the requested window.
package report

import (
	"context"
	"time"
)

// Task is the slice of the task record the engine reads. Status semantics are
// carried by CompletedAt: a task with no completion timestamp is open.
type Task struct {
	ID              string
	WorkspaceID     string
	Name            string
	Assignee        string
	Priority        string
	Status          string
	Blocked         bool
	DueDate         *time.Time
	CreatedAt       time.Time
	CompletedAt     *time.Time
	CompletedOnTime *bool
	ManagerScore    *int // 1..5 when a manager scored the completed task
}

// Open reports whether the task has not been completed.
func (t Task) Open() bool {
	return t.CompletedAt == nil
}

// TaskSource reads task records scoped to a workspace. An empty workspaceID
// means all workspaces.
type TaskSource interface {
	ListMembers(ctx context.Context, workspaceID string) ([]string, error)
	TasksByAssignee(ctx context.Context, workspaceID, assignee string) ([]Task, error)
}

// TimeLogSource sums logged hours for one member inside a half-open window.
type TimeLogSource interface {
	HoursLogged(ctx context.Context, workspaceID, member string, from, to time.Time) (float64, error)
}

// UpcomingTask is one entry of a member's prioritised open-work list.
type UpcomingTask struct {
	TaskID   string     `json:"task_id"`
	Name     string     `json:"name"`
	Priority string     `json:"priority"`
	DueDate  *time.Time `json:"due_date,omitempty"`
}

// MemberReport is the computed-on-read aggregate for one member and one week.
// OnTimeRate and QualityScore are lifetime metrics; the rest are scoped to the
// window (or to "now" for the overdue/blocked counts).
type MemberReport struct {
	Member            string         `json:"member"`
	CompletedThisWeek int            `json:"completed_this_week"`
	AssignedAsOfWeek  int            `json:"assigned_as_of_week"`
	OnTimeRate        int            `json:"on_time_rate"`
	HoursLogged       float64        `json:"hours_logged"`
	UtilisationPct    int            `json:"utilisation_pct"`
	QualityScore      *float64       `json:"quality_score"`
	OverdueTasks      int            `json:"overdue_tasks"`
	BlockedTasks      int            `json:"blocked_tasks"`
	UpcomingTasks     []UpcomingTask `json:"upcoming_tasks"`
}

// WeeklyReport is the full response for one workspace scope and week window.
type WeeklyReport struct {
	WeekStart time.Time      `json:"week_start"`
	WeekEnd   time.Time      `json:"week_end"`
	Members   []MemberReport `json:"members"`
}
