// Package postgres provides pgx-backed persistence for the audit service.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aivisualpro/planzo-audit/internal/audit"
)

const eventColumns = `event_id, event_type, description, performed_by, performed_by_name,
        workspace_id, project_id, project_name, task_id, task_name, milestone_id, milestone_name,
        field, old_value, new_value, created_at`

// EventStore persists audit events. The audit_events table is append-only;
// this store exposes no update or delete.
type EventStore struct {
	pool *pgxpool.Pool
}

// NewEventStore constructs an EventStore.
func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool}
}

// Insert writes the event row and its outbox row in a single transaction, so
// every persisted event is eventually relayed to the audit topic.
func (s *EventStore) Insert(ctx context.Context, record audit.EventRecord) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	const insertEvent = `INSERT INTO audit_events (` + eventColumns + `)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`

	_, err = tx.Exec(ctx, insertEvent,
		record.EventID,
		string(record.EventType),
		record.Description,
		record.PerformedBy,
		nullIfEmpty(record.PerformedByName),
		nullIfEmpty(record.WorkspaceID),
		nullIfEmpty(record.ProjectID),
		nullIfEmpty(record.ProjectName),
		nullIfEmpty(record.TaskID),
		nullIfEmpty(record.TaskName),
		nullIfEmpty(record.MilestoneID),
		nullIfEmpty(record.MilestoneName),
		nullIfEmpty(record.Field),
		nullIfEmpty(record.OldValue),
		nullIfEmpty(record.NewValue),
		record.CreatedAt,
	)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(outboxPayload(record))
	if err != nil {
		return err
	}

	partitionKey := record.WorkspaceID
	if partitionKey == "" {
		partitionKey = record.PerformedBy
	}

	const insertOutbox = `INSERT INTO audit_outbox (event_id, event_type, partition_key, payload)
        VALUES ($1,$2,$3,$4)`
	if _, err = tx.Exec(ctx, insertOutbox, record.EventID, string(record.EventType), partitionKey, payload); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func outboxPayload(record audit.EventRecord) map[string]interface{} {
	payload := map[string]interface{}{
		"event_id":     record.EventID,
		"event_type":   string(record.EventType),
		"description":  record.Description,
		"performed_by": record.PerformedBy,
		"created_at":   record.CreatedAt.Format(time.RFC3339Nano),
	}
	optional := map[string]string{
		"performed_by_name": record.PerformedByName,
		"workspace_id":      record.WorkspaceID,
		"project_id":        record.ProjectID,
		"task_id":           record.TaskID,
		"field":             record.Field,
		"old_value":         record.OldValue,
		"new_value":         record.NewValue,
	}
	for key, value := range optional {
		if value != "" {
			payload[key] = value
		}
	}
	return payload
}

// Search runs the AND-combined filter, newest first, and returns the page plus
// the total match count.
func (s *EventStore) Search(ctx context.Context, filter audit.Filter, limit, offset int) ([]audit.EventRecord, int, error) {
	where, args := buildWhere(filter)

	countQuery := "SELECT COUNT(*) FROM audit_events" + where
	var total int
	if err := s.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	pageQuery := fmt.Sprintf(
		"SELECT "+eventColumns+" FROM audit_events%s ORDER BY created_at DESC, event_id DESC LIMIT $%d OFFSET $%d",
		where, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := s.pool.Query(ctx, pageQuery, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	records := make([]audit.EventRecord, 0, limit)
	for rows.Next() {
		var (
			record    audit.EventRecord
			eventType string
			optional  [11]*string
		)
		if err := rows.Scan(
			&record.EventID,
			&eventType,
			&record.Description,
			&record.PerformedBy,
			&optional[0], &optional[1], &optional[2], &optional[3], &optional[4],
			&optional[5], &optional[6], &optional[7], &optional[8], &optional[9], &optional[10],
			&record.CreatedAt,
		); err != nil {
			return nil, 0, err
		}
		record.EventType = audit.EventType(eventType)
		record.PerformedByName = deref(optional[0])
		record.WorkspaceID = deref(optional[1])
		record.ProjectID = deref(optional[2])
		record.ProjectName = deref(optional[3])
		record.TaskID = deref(optional[4])
		record.TaskName = deref(optional[5])
		record.MilestoneID = deref(optional[6])
		record.MilestoneName = deref(optional[7])
		record.Field = deref(optional[8])
		record.OldValue = deref(optional[9])
		record.NewValue = deref(optional[10])
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return records, total, nil
}

func buildWhere(filter audit.Filter) (string, []interface{}) {
	clauses := make([]string, 0, 8)
	args := make([]interface{}, 0, 8)

	add := func(clause string, value interface{}) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}

	if filter.WorkspaceID != "" {
		add("workspace_id = $%d", filter.WorkspaceID)
	}
	if filter.ProjectID != "" {
		add("project_id = $%d", filter.ProjectID)
	}
	if filter.TaskID != "" {
		add("task_id = $%d", filter.TaskID)
	}
	if filter.EventType != "" {
		add("event_type = $%d", string(filter.EventType))
	}
	if filter.PerformedBy != "" {
		add("performed_by = $%d", filter.PerformedBy)
	}
	if filter.StartDate != nil {
		add("created_at >= $%d", *filter.StartDate)
	}
	if filter.EndDate != nil {
		add("created_at <= $%d", *filter.EndDate)
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		n := len(args)
		clauses = append(clauses, fmt.Sprintf(
			"(description ILIKE $%d OR performed_by_name ILIKE $%d OR task_name ILIKE $%d OR project_name ILIKE $%d)",
			n, n, n, n))
	}

	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func nullIfEmpty(value string) interface{} {
	if value == "" {
		return nil
	}
	return value
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
