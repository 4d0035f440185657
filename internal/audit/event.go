// Package audit defines the immutable event record, the fire-and-forget
// recorder that persists it, and the filtered read path over the trail.
package audit

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// EventType enumerates every auditable action. The set is closed: records with
// an unknown type are rejected at the recorder boundary.
type EventType string

const (
	EventTaskCreated       EventType = "task_created"
	EventTaskUpdated       EventType = "task_updated"
	EventTaskDeleted       EventType = "task_deleted"
	EventStatusChanged     EventType = "status_changed"
	EventAssignmentChanged EventType = "assignment_changed"
	EventApprovalRequested EventType = "approval_requested"
	EventApprovalCompleted EventType = "approval_completed"
	EventProjectCreated    EventType = "project_created"
	EventProjectUpdated    EventType = "project_updated"
	EventProjectDeleted    EventType = "project_deleted"
	EventMilestoneCreated  EventType = "milestone_created"
	EventMilestoneUpdated  EventType = "milestone_updated"
	EventCommentAdded      EventType = "comment_added"
	EventTimeLogged        EventType = "time_logged"
	EventBlockerFlagged    EventType = "blocker_flagged"
	EventBlockerResolved   EventType = "blocker_resolved"
	EventDependencyAdded   EventType = "dependency_added"
	EventDependencyRemoved EventType = "dependency_removed"
	EventScoreGiven        EventType = "score_given"
	EventAttachmentAdded   EventType = "attachment_added"
	EventMemberAdded       EventType = "member_added"
	EventMemberRemoved     EventType = "member_removed"
)

var knownEventTypes = map[EventType]struct{}{
	EventTaskCreated:       {},
	EventTaskUpdated:       {},
	EventTaskDeleted:       {},
	EventStatusChanged:     {},
	EventAssignmentChanged: {},
	EventApprovalRequested: {},
	EventApprovalCompleted: {},
	EventProjectCreated:    {},
	EventProjectUpdated:    {},
	EventProjectDeleted:    {},
	EventMilestoneCreated:  {},
	EventMilestoneUpdated:  {},
	EventCommentAdded:      {},
	EventTimeLogged:        {},
	EventBlockerFlagged:    {},
	EventBlockerResolved:   {},
	EventDependencyAdded:   {},
	EventDependencyRemoved: {},
	EventScoreGiven:        {},
	EventAttachmentAdded:   {},
	EventMemberAdded:       {},
	EventMemberRemoved:     {},
}

// ValidEventType reports whether t belongs to the closed enumeration.
func ValidEventType(t EventType) bool {
	_, ok := knownEventTypes[t]
	return ok
}

// EventRecord is one append-only audit-trail entry: actor X did Y to entity Z
// at time T. Once written a record is never mutated or deleted.
type EventRecord struct {
	EventID         string
	EventType       EventType
	Description     string
	PerformedBy     string
	PerformedByName string

	// Scoping, all optional. Names are snapshots taken at write time so
	// later renames never rewrite history.
	WorkspaceID   string
	ProjectID     string
	ProjectName   string
	TaskID        string
	TaskName      string
	MilestoneID   string
	MilestoneName string

	// Change detail for field-level events.
	Field    string
	OldValue string
	NewValue string

	CreatedAt time.Time
}

// EventParams carries the caller-supplied fields of a record. EventID and
// CreatedAt are assigned by the recorder at write time.
type EventParams struct {
	EventType       EventType
	Description     string
	PerformedBy     string
	PerformedByName string
	WorkspaceID     string
	ProjectID       string
	ProjectName     string
	TaskID          string
	TaskName        string
	MilestoneID     string
	MilestoneName   string
	Field           string
	OldValue        string
	NewValue        string
}

// Validate ensures the required fields are present and the type is known.
func (p EventParams) Validate() error {
	if !ValidEventType(p.EventType) {
		return fmt.Errorf("unknown event type %q", p.EventType)
	}
	if strings.TrimSpace(p.Description) == "" {
		return fmt.Errorf("description is required")
	}
	if strings.TrimSpace(p.PerformedBy) == "" {
		return fmt.Errorf("performed_by is required")
	}
	return nil
}

// NewEventID derives a unique identifier from the write-time clock plus a
// random suffix. Collisions under concurrent writes are treated as negligible.
func NewEventID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return fmt.Sprintf("evt_%d_%s", now.UnixMilli(), suffix)
}

// newRecord stamps params into an immutable record.
func newRecord(p EventParams, now time.Time) EventRecord {
	return EventRecord{
		EventID:         NewEventID(now),
		EventType:       p.EventType,
		Description:     p.Description,
		PerformedBy:     p.PerformedBy,
		PerformedByName: p.PerformedByName,
		WorkspaceID:     p.WorkspaceID,
		ProjectID:       p.ProjectID,
		ProjectName:     p.ProjectName,
		TaskID:          p.TaskID,
		TaskName:        p.TaskName,
		MilestoneID:     p.MilestoneID,
		MilestoneName:   p.MilestoneName,
		Field:           p.Field,
		OldValue:        p.OldValue,
		NewValue:        p.NewValue,
		CreatedAt:       now,
	}
}
