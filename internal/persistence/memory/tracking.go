package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/aivisualpro/planzo-audit/internal/report"
	"github.com/aivisualpro/planzo-audit/internal/timer"
)

// TrackingStore keeps tasks, time logs, and active timers in memory. It backs
// the report engine and timer service in tests and local development.
type TrackingStore struct {
	mu       sync.RWMutex
	tasks    []report.Task
	timeLogs []timer.TimeLogEntry
	timers   map[string]timer.ActiveTimer
}

// NewTrackingStore constructs an empty TrackingStore.
func NewTrackingStore() *TrackingStore {
	return &TrackingStore{timers: make(map[string]timer.ActiveTimer)}
}

// AddTask stores a task record.
func (s *TrackingStore) AddTask(task report.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, task)
}

// ListMembers returns the distinct non-empty assignees across tasks in scope,
// sorted for deterministic output.
func (s *TrackingStore) ListMembers(ctx context.Context, workspaceID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, task := range s.tasks {
		if task.Assignee == "" {
			continue
		}
		if workspaceID != "" && task.WorkspaceID != workspaceID {
			continue
		}
		seen[task.Assignee] = struct{}{}
	}

	members := make([]string, 0, len(seen))
	for member := range seen {
		members = append(members, member)
	}
	sort.Strings(members)
	return members, nil
}

// TasksByAssignee returns the member's tasks in scope.
func (s *TrackingStore) TasksByAssignee(ctx context.Context, workspaceID, assignee string) ([]report.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]report.Task, 0)
	for _, task := range s.tasks {
		if task.Assignee != assignee {
			continue
		}
		if workspaceID != "" && task.WorkspaceID != workspaceID {
			continue
		}
		out = append(out, task)
	}
	return out, nil
}

// HoursLogged sums the member's time-log hours dated within [from, to).
func (s *TrackingStore) HoursLogged(ctx context.Context, workspaceID, member string, from, to time.Time) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var hours float64
	for _, entry := range s.timeLogs {
		if entry.Member != member {
			continue
		}
		if workspaceID != "" && entry.WorkspaceID != workspaceID {
			continue
		}
		if entry.Date.Before(from) || !entry.Date.Before(to) {
			continue
		}
		hours += entry.Hours
	}
	return hours, nil
}

// AppendTimeLog records a finalized time log.
func (s *TrackingStore) AppendTimeLog(ctx context.Context, entry timer.TimeLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timeLogs = append(s.timeLogs, entry)
	return nil
}

// TimeLogs returns a copy of all recorded time logs.
func (s *TrackingStore) TimeLogs() []timer.TimeLogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]timer.TimeLogEntry, len(s.timeLogs))
	copy(out, s.timeLogs)
	return out
}

// Active returns the actor's running timer, or nil.
func (s *TrackingStore) Active(ctx context.Context, actor string) (*timer.ActiveTimer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if t, ok := s.timers[actor]; ok {
		out := t
		return &out, nil
	}
	return nil, nil
}

// Put stores the actor's running timer, replacing any previous state.
func (s *TrackingStore) Put(ctx context.Context, t timer.ActiveTimer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timers[t.Actor] = t
	return nil
}

// Clear removes the actor's running timer.
func (s *TrackingStore) Clear(ctx context.Context, actor string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.timers, actor)
	return nil
}
