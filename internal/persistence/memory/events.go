// Package memory provides in-memory stores for local development and tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/aivisualpro/planzo-audit/internal/audit"
)

// EventStore keeps the audit trail in memory. Semantics mirror the Postgres
// store: append-only, newest-first reads, AND-combined filters.
type EventStore struct {
	mu      sync.RWMutex
	records []audit.EventRecord
}

// NewEventStore constructs an empty EventStore.
func NewEventStore() *EventStore {
	return &EventStore{}
}

// Insert appends one record. Records are never updated or removed.
func (s *EventStore) Insert(ctx context.Context, record audit.EventRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
	return nil
}

// Search returns the filtered page ordered by created_at descending along with
// the total match count.
func (s *EventStore) Search(ctx context.Context, filter audit.Filter, limit, offset int) ([]audit.EventRecord, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]audit.EventRecord, 0, len(s.records))
	for _, record := range s.records {
		if matches(record, filter) {
			matched = append(matched, record)
		}
	}

	sort.SliceStable(matched, func(a, b int) bool {
		return matched[a].CreatedAt.After(matched[b].CreatedAt)
	})

	total := len(matched)
	if offset >= total {
		return []audit.EventRecord{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}

	page := make([]audit.EventRecord, end-offset)
	copy(page, matched[offset:end])
	return page, total, nil
}

func matches(record audit.EventRecord, filter audit.Filter) bool {
	if filter.WorkspaceID != "" && record.WorkspaceID != filter.WorkspaceID {
		return false
	}
	if filter.ProjectID != "" && record.ProjectID != filter.ProjectID {
		return false
	}
	if filter.TaskID != "" && record.TaskID != filter.TaskID {
		return false
	}
	if filter.EventType != "" && record.EventType != filter.EventType {
		return false
	}
	if filter.PerformedBy != "" && record.PerformedBy != filter.PerformedBy {
		return false
	}
	if filter.StartDate != nil && record.CreatedAt.Before(*filter.StartDate) {
		return false
	}
	if filter.EndDate != nil && record.CreatedAt.After(*filter.EndDate) {
		return false
	}
	if filter.Search != "" && !matchesSearch(record, filter.Search) {
		return false
	}
	return true
}

// matchesSearch is an OR across description, performer name, task name, and
// project name, case-insensitive substring.
func matchesSearch(record audit.EventRecord, term string) bool {
	term = strings.ToLower(term)
	for _, field := range []string{
		record.Description,
		record.PerformedByName,
		record.TaskName,
		record.ProjectName,
	} {
		if strings.Contains(strings.ToLower(field), term) {
			return true
		}
	}
	return false
}
