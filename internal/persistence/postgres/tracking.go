package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aivisualpro/planzo-audit/internal/report"
	"github.com/aivisualpro/planzo-audit/internal/timer"
)

// TrackingStore reads task and time-log records for the weekly report engine
// and owns the per-actor active timer rows.
type TrackingStore struct {
	pool *pgxpool.Pool
}

// NewTrackingStore constructs a TrackingStore.
func NewTrackingStore(pool *pgxpool.Pool) *TrackingStore {
	return &TrackingStore{pool: pool}
}

// ListMembers returns the distinct non-empty assignees across tasks in scope.
func (s *TrackingStore) ListMembers(ctx context.Context, workspaceID string) ([]string, error) {
	query := `SELECT DISTINCT assignee FROM tasks WHERE assignee IS NOT NULL AND assignee <> ''`
	args := []interface{}{}
	if workspaceID != "" {
		query += ` AND workspace_id = $1`
		args = append(args, workspaceID)
	}
	query += ` ORDER BY assignee`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	members := make([]string, 0)
	for rows.Next() {
		var member string
		if err := rows.Scan(&member); err != nil {
			return nil, err
		}
		members = append(members, member)
	}
	return members, rows.Err()
}

// TasksByAssignee returns the member's tasks in scope.
func (s *TrackingStore) TasksByAssignee(ctx context.Context, workspaceID, assignee string) ([]report.Task, error) {
	query := `SELECT task_id, workspace_id, name, assignee, priority, status, blocked,
        due_date, created_at, completed_at, completed_on_time, manager_score
        FROM tasks WHERE assignee = $1`
	args := []interface{}{assignee}
	if workspaceID != "" {
		query += ` AND workspace_id = $2`
		args = append(args, workspaceID)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tasks := make([]report.Task, 0)
	for rows.Next() {
		var task report.Task
		if err := rows.Scan(
			&task.ID,
			&task.WorkspaceID,
			&task.Name,
			&task.Assignee,
			&task.Priority,
			&task.Status,
			&task.Blocked,
			&task.DueDate,
			&task.CreatedAt,
			&task.CompletedAt,
			&task.CompletedOnTime,
			&task.ManagerScore,
		); err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// HoursLogged sums the member's time-log hours dated within [from, to).
func (s *TrackingStore) HoursLogged(ctx context.Context, workspaceID, member string, from, to time.Time) (float64, error) {
	query := `SELECT COALESCE(SUM(hours), 0) FROM time_logs
        WHERE member = $1 AND logged_on >= $2 AND logged_on < $3`
	args := []interface{}{member, from, to}
	if workspaceID != "" {
		query += ` AND workspace_id = $4`
		args = append(args, workspaceID)
	}

	var hours float64
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&hours); err != nil {
		return 0, err
	}
	return hours, nil
}

// AppendTimeLog records a finalized time log.
func (s *TrackingStore) AppendTimeLog(ctx context.Context, entry timer.TimeLogEntry) error {
	const stmt = `INSERT INTO time_logs (member, workspace_id, task_id, hours, logged_on)
        VALUES ($1,$2,$3,$4,$5)`
	_, err := s.pool.Exec(ctx, stmt,
		entry.Member,
		nullIfEmpty(entry.WorkspaceID),
		nullIfEmpty(entry.TaskID),
		entry.Hours,
		entry.Date,
	)
	return err
}

// Active returns the actor's running timer, or nil.
func (s *TrackingStore) Active(ctx context.Context, actor string) (*timer.ActiveTimer, error) {
	const query = `SELECT actor, workspace_id, project_id, task_id, task_name, started_at
        FROM active_timers WHERE actor = $1`

	var (
		t        timer.ActiveTimer
		optional [4]*string
	)
	err := s.pool.QueryRow(ctx, query, actor).Scan(
		&t.Actor, &optional[0], &optional[1], &optional[2], &optional[3], &t.StartedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	t.WorkspaceID = deref(optional[0])
	t.ProjectID = deref(optional[1])
	t.TaskID = deref(optional[2])
	t.TaskName = deref(optional[3])
	return &t, nil
}

// Put upserts the actor's running timer. The actor primary key keeps the "at
// most one timer per actor" invariant inside a single atomic statement.
func (s *TrackingStore) Put(ctx context.Context, t timer.ActiveTimer) error {
	const stmt = `INSERT INTO active_timers (actor, workspace_id, project_id, task_id, task_name, started_at)
        VALUES ($1,$2,$3,$4,$5,$6)
        ON CONFLICT (actor) DO UPDATE SET
            workspace_id = EXCLUDED.workspace_id,
            project_id = EXCLUDED.project_id,
            task_id = EXCLUDED.task_id,
            task_name = EXCLUDED.task_name,
            started_at = EXCLUDED.started_at`
	_, err := s.pool.Exec(ctx, stmt,
		t.Actor,
		nullIfEmpty(t.WorkspaceID),
		nullIfEmpty(t.ProjectID),
		nullIfEmpty(t.TaskID),
		nullIfEmpty(t.TaskName),
		t.StartedAt,
	)
	return err
}

// Clear removes the actor's running timer.
func (s *TrackingStore) Clear(ctx context.Context, actor string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM active_timers WHERE actor = $1`, actor)
	return err
}
