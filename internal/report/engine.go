package report

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aivisualpro/planzo-audit/internal/observability"
)

const (
	// nominalWeekHours is the fixed utilisation denominator. There is no
	// per-member capacity configuration; values above 100% signal overtime
	// and are preserved, not clamped.
	nominalWeekHours = 40.0

	// maxUpcomingTasks bounds each member's prioritised open-work list.
	maxUpcomingTasks = 10
)

// priorityRank orders upcoming work; unknown priorities sort last.
var priorityRank = map[string]int{
	"Urgent": 0,
	"High":   1,
	"Medium": 2,
	"Low":    3,
}

// Engine builds weekly member reports. Members are discovered from task
// assignees, so nobody needs a pre-existing roster entry to appear.
type Engine struct {
	tasks       TaskSource
	timeLogs    TimeLogSource
	now         func() time.Time
	concurrency int
}

// EngineOption customises an Engine.
type EngineOption func(*Engine)

// WithNow overrides the engine's clock. Intended for tests.
func WithNow(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// WithConcurrency bounds the per-member fan-out.
func WithConcurrency(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// NewEngine constructs an Engine.
func NewEngine(tasks TaskSource, timeLogs TimeLogSource, opts ...EngineOption) *Engine {
	e := &Engine{
		tasks:       tasks,
		timeLogs:    timeLogs,
		now:         func() time.Time { return time.Now().UTC() },
		concurrency: 8,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// BuildWeeklyReport computes the report for the given workspace scope (empty
// means all workspaces) and week offset. Member computations fan out
// concurrently and are gathered before the report is returned; any source
// failure fails the whole build, since a partially zeroed report would be
// indistinguishable from "no activity".
func (e *Engine) BuildWeeklyReport(ctx context.Context, workspaceID string, weekOffset int) (*WeeklyReport, error) {
	start := time.Now()
	defer func() {
		observability.ObserveReportDuration(time.Since(start).Seconds())
	}()

	now := e.now()
	weekStart, weekEnd := WeekWindow(now, weekOffset)

	members, err := e.tasks.ListMembers(ctx, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}

	reports := make([]MemberReport, len(members))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, member := range members {
		i, member := i, member
		g.Go(func() error {
			rep, err := e.buildMember(gctx, workspaceID, member, weekStart, weekEnd, now)
			if err != nil {
				return fmt.Errorf("member %s: %w", member, err)
			}
			reports[i] = rep
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Most overdue-risk first; ties broken by member id for deterministic
	// snapshot/export output.
	sort.SliceStable(reports, func(a, b int) bool {
		if reports[a].OverdueTasks != reports[b].OverdueTasks {
			return reports[a].OverdueTasks > reports[b].OverdueTasks
		}
		return reports[a].Member < reports[b].Member
	})

	return &WeeklyReport{
		WeekStart: weekStart,
		WeekEnd:   weekEnd,
		Members:   reports,
	}, nil
}

func (e *Engine) buildMember(ctx context.Context, workspaceID, member string, weekStart, weekEnd, now time.Time) (MemberReport, error) {
	var (
		tasks []Task
		hours float64
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		tasks, err = e.tasks.TasksByAssignee(gctx, workspaceID, member)
		return err
	})
	g.Go(func() error {
		var err error
		hours, err = e.timeLogs.HoursLogged(gctx, workspaceID, member, weekStart, weekEnd)
		return err
	})
	if err := g.Wait(); err != nil {
		return MemberReport{}, err
	}

	rep := MemberReport{
		Member:      member,
		HoursLogged: hours,
	}
	rep.UtilisationPct = int(math.Round(hours / nominalWeekHours * 100))

	var (
		completedAllTime int
		completedOnTime  int
		scoreSum         int
		scoreCount       int
		upcoming         []Task
	)

	for _, task := range tasks {
		if task.CompletedAt != nil {
			completedAllTime++
			if task.CompletedOnTime != nil && *task.CompletedOnTime {
				completedOnTime++
			}
			if task.ManagerScore != nil {
				scoreSum += *task.ManagerScore
				scoreCount++
			}
			if inWindow(*task.CompletedAt, weekStart, weekEnd) {
				rep.CompletedThisWeek++
			}
		}

		if liveDuringWeek(task, weekStart, weekEnd) {
			rep.AssignedAsOfWeek++
		}

		if task.Open() {
			if task.DueDate != nil && task.DueDate.Before(now) {
				rep.OverdueTasks++
			}
			if task.Blocked {
				rep.BlockedTasks++
			}
			upcoming = append(upcoming, task)
		}
	}

	if completedAllTime > 0 {
		rep.OnTimeRate = int(math.Round(float64(completedOnTime) / float64(completedAllTime) * 100))
	}
	if scoreCount > 0 {
		mean := float64(scoreSum) / float64(scoreCount)
		rep.QualityScore = &mean
	}
	rep.UpcomingTasks = selectUpcoming(upcoming)

	return rep, nil
}

// liveDuringWeek reports whether the task was created by the end of the week
// and either still open or completed on/after the week's start.
func liveDuringWeek(task Task, weekStart, weekEnd time.Time) bool {
	if task.CreatedAt.After(weekEnd) {
		return false
	}
	if task.CompletedAt == nil {
		return true
	}
	return !task.CompletedAt.Before(weekStart)
}

func inWindow(t, from, to time.Time) bool {
	return !t.Before(from) && t.Before(to)
}

// selectUpcoming orders open tasks by priority then due date ascending, tasks
// without a due date last within their priority, and keeps the first ten.
func selectUpcoming(open []Task) []UpcomingTask {
	sort.SliceStable(open, func(a, b int) bool {
		ra, rb := rankPriority(open[a].Priority), rankPriority(open[b].Priority)
		if ra != rb {
			return ra < rb
		}
		da, db := open[a].DueDate, open[b].DueDate
		switch {
		case da == nil && db == nil:
			return false
		case da == nil:
			return false
		case db == nil:
			return true
		default:
			return da.Before(*db)
		}
	})

	limit := len(open)
	if limit > maxUpcomingTasks {
		limit = maxUpcomingTasks
	}
	out := make([]UpcomingTask, 0, limit)
	for _, task := range open[:limit] {
		out = append(out, UpcomingTask{
			TaskID:   task.ID,
			Name:     task.Name,
			Priority: task.Priority,
			DueDate:  task.DueDate,
		})
	}
	return out
}

func rankPriority(priority string) int {
	if rank, ok := priorityRank[priority]; ok {
		return rank
	}
	return len(priorityRank)
}
