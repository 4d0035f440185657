package api

import (
	"errors"
	"time"

	"github.com/aivisualpro/planzo-audit/internal/audit"
	"github.com/aivisualpro/planzo-audit/internal/auth"
	"github.com/aivisualpro/planzo-audit/internal/timer"
)

// RecordEventRequest is the payload for POST /v1/audit/events.
type RecordEventRequest struct {
	EventType       string `json:"event_type"`
	Description     string `json:"description"`
	PerformedBy     string `json:"performed_by,omitempty"`
	PerformedByName string `json:"performed_by_name,omitempty"`
	WorkspaceID     string `json:"workspace_id,omitempty"`
	ProjectID       string `json:"project_id,omitempty"`
	ProjectName     string `json:"project_name,omitempty"`
	TaskID          string `json:"task_id,omitempty"`
	TaskName        string `json:"task_name,omitempty"`
	MilestoneID     string `json:"milestone_id,omitempty"`
	MilestoneName   string `json:"milestone_name,omitempty"`
	Field           string `json:"field,omitempty"`
	OldValue        string `json:"old_value,omitempty"`
	NewValue        string `json:"new_value,omitempty"`
}

// toParams maps the request onto recorder params, defaulting the actor
// identity from the session claims when the caller omitted it.
func (r RecordEventRequest) toParams(claims *auth.Claims) audit.EventParams {
	params := audit.EventParams{
		EventType:       audit.EventType(r.EventType),
		Description:     r.Description,
		PerformedBy:     r.PerformedBy,
		PerformedByName: r.PerformedByName,
		WorkspaceID:     r.WorkspaceID,
		ProjectID:       r.ProjectID,
		ProjectName:     r.ProjectName,
		TaskID:          r.TaskID,
		TaskName:        r.TaskName,
		MilestoneID:     r.MilestoneID,
		MilestoneName:   r.MilestoneName,
		Field:           r.Field,
		OldValue:        r.OldValue,
		NewValue:        r.NewValue,
	}
	if params.PerformedBy == "" {
		params.PerformedBy = claims.ActorID()
	}
	if params.PerformedByName == "" {
		params.PerformedByName = claims.Name
	}
	return params
}

// RecordUpdateRequest is the payload for POST /v1/audit/updates: pre- and
// post-update snapshots plus the tracked-field allow-list. The service diffs
// the snapshots and records one event per changed field.
type RecordUpdateRequest struct {
	Description     string                 `json:"description"`
	PerformedBy     string                 `json:"performed_by,omitempty"`
	PerformedByName string                 `json:"performed_by_name,omitempty"`
	WorkspaceID     string                 `json:"workspace_id,omitempty"`
	ProjectID       string                 `json:"project_id,omitempty"`
	ProjectName     string                 `json:"project_name,omitempty"`
	TaskID          string                 `json:"task_id,omitempty"`
	TaskName        string                 `json:"task_name,omitempty"`
	Before          map[string]interface{} `json:"before"`
	After           map[string]interface{} `json:"after"`
	TrackedFields   []string               `json:"tracked_fields"`
}

// Validate ensures request correctness.
func (r RecordUpdateRequest) Validate() error {
	if r.Description == "" {
		return errors.New("description is required")
	}
	if r.After == nil {
		return errors.New("after snapshot is required")
	}
	if len(r.TrackedFields) == 0 {
		return errors.New("tracked_fields is required")
	}
	return nil
}

func (r RecordUpdateRequest) toBaseParams(claims *auth.Claims) audit.EventParams {
	params := audit.EventParams{
		Description:     r.Description,
		PerformedBy:     r.PerformedBy,
		PerformedByName: r.PerformedByName,
		WorkspaceID:     r.WorkspaceID,
		ProjectID:       r.ProjectID,
		ProjectName:     r.ProjectName,
		TaskID:          r.TaskID,
		TaskName:        r.TaskName,
	}
	if params.PerformedBy == "" {
		params.PerformedBy = claims.ActorID()
	}
	if params.PerformedByName == "" {
		params.PerformedByName = claims.Name
	}
	return params
}

// EventView exposes one audit-trail entry.
type EventView struct {
	EventID         string    `json:"event_id"`
	EventType       string    `json:"event_type"`
	Description     string    `json:"description"`
	PerformedBy     string    `json:"performed_by"`
	PerformedByName string    `json:"performed_by_name,omitempty"`
	WorkspaceID     string    `json:"workspace_id,omitempty"`
	ProjectID       string    `json:"project_id,omitempty"`
	ProjectName     string    `json:"project_name,omitempty"`
	TaskID          string    `json:"task_id,omitempty"`
	TaskName        string    `json:"task_name,omitempty"`
	MilestoneID     string    `json:"milestone_id,omitempty"`
	MilestoneName   string    `json:"milestone_name,omitempty"`
	Field           string    `json:"field,omitempty"`
	OldValue        string    `json:"old_value,omitempty"`
	NewValue        string    `json:"new_value,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// QueryTrailResponse packages one page of the trail.
type QueryTrailResponse struct {
	Entries    []EventView `json:"entries"`
	Total      int         `json:"total"`
	Page       int         `json:"page"`
	TotalPages int         `json:"total_pages"`
}

// StartTimerRequest is the payload for POST /v1/timers/start.
type StartTimerRequest struct {
	WorkspaceID string `json:"workspace_id,omitempty"`
	ProjectID   string `json:"project_id,omitempty"`
	TaskID      string `json:"task_id"`
	TaskName    string `json:"task_name,omitempty"`
}

// TimerView exposes the running timer.
type TimerView struct {
	Actor       string    `json:"actor"`
	WorkspaceID string    `json:"workspace_id,omitempty"`
	ProjectID   string    `json:"project_id,omitempty"`
	TaskID      string    `json:"task_id"`
	TaskName    string    `json:"task_name,omitempty"`
	StartedAt   time.Time `json:"started_at"`
}

// StopTimerResponse reports the banked time log.
type StopTimerResponse struct {
	TaskID string    `json:"task_id"`
	Hours  float64   `json:"hours"`
	Date   time.Time `json:"date"`
}

// ActiveTimerResponse reports whether a timer is running.
type ActiveTimerResponse struct {
	Running bool       `json:"running"`
	Timer   *TimerView `json:"timer,omitempty"`
}

func toEventView(record audit.EventRecord) EventView {
	return EventView{
		EventID:         record.EventID,
		EventType:       string(record.EventType),
		Description:     record.Description,
		PerformedBy:     record.PerformedBy,
		PerformedByName: record.PerformedByName,
		WorkspaceID:     record.WorkspaceID,
		ProjectID:       record.ProjectID,
		ProjectName:     record.ProjectName,
		TaskID:          record.TaskID,
		TaskName:        record.TaskName,
		MilestoneID:     record.MilestoneID,
		MilestoneName:   record.MilestoneName,
		Field:           record.Field,
		OldValue:        record.OldValue,
		NewValue:        record.NewValue,
		CreatedAt:       record.CreatedAt,
	}
}

func toTimerView(t timer.ActiveTimer) TimerView {
	return TimerView{
		Actor:       t.Actor,
		WorkspaceID: t.WorkspaceID,
		ProjectID:   t.ProjectID,
		TaskID:      t.TaskID,
		TaskName:    t.TaskName,
		StartedAt:   t.StartedAt,
	}
}
