// Package timer tracks the single active work timer each employee may run.
// Stopping or restarting a timer converts the elapsed time into a time log,
// which is the same data the weekly report reads for logged hours.
package timer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/aivisualpro/planzo-audit/internal/audit"
)

// ErrNoActiveTimer is returned when stopping an actor with nothing running.
var ErrNoActiveTimer = errors.New("no active timer")

// ActiveTimer is the per-actor exclusive timer state. At most one exists per
// actor at any time.
type ActiveTimer struct {
	Actor       string
	WorkspaceID string
	ProjectID   string
	TaskID      string
	TaskName    string
	StartedAt   time.Time
}

// TimeLogEntry is one finalized block of tracked time.
type TimeLogEntry struct {
	Member      string
	WorkspaceID string
	TaskID      string
	Hours       float64
	Date        time.Time
}

// Store persists active timer state keyed by actor.
type Store interface {
	Active(ctx context.Context, actor string) (*ActiveTimer, error)
	Put(ctx context.Context, timer ActiveTimer) error
	Clear(ctx context.Context, actor string) error
}

// TimeLogSink accepts finalized time logs.
type TimeLogSink interface {
	AppendTimeLog(ctx context.Context, entry TimeLogEntry) error
}

// Service owns timer transitions. Transitions are serialised so a concurrent
// start and stop for the same actor cannot interleave and lose elapsed time.
type Service struct {
	mu       sync.Mutex
	store    Store
	sink     TimeLogSink
	recorder *audit.Recorder
	now      func() time.Time
}

// ServiceOption customises a Service.
type ServiceOption func(*Service)

// WithNow overrides the clock. Intended for tests.
func WithNow(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// NewService constructs a Service. recorder may be nil when audit events are
// not wanted (tests).
func NewService(store Store, sink TimeLogSink, recorder *audit.Recorder, opts ...ServiceOption) *Service {
	s := &Service{
		store:    store,
		sink:     sink,
		recorder: recorder,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins a timer for the actor on the given task. A timer already
// running for the actor is finalized first so its elapsed time is banked as a
// time log, never silently discarded.
func (s *Service) Start(ctx context.Context, timer ActiveTimer) (*ActiveTimer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()

	existing, err := s.store.Active(ctx, timer.Actor)
	if err != nil {
		return nil, fmt.Errorf("load active timer: %w", err)
	}
	if existing != nil {
		if _, err := s.finalize(ctx, *existing, now); err != nil {
			return nil, err
		}
	}

	timer.StartedAt = now
	if err := s.store.Put(ctx, timer); err != nil {
		return nil, fmt.Errorf("store timer: %w", err)
	}
	return &timer, nil
}

// Stop finalizes the actor's running timer and clears it.
func (s *Service) Stop(ctx context.Context, actor string) (*TimeLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.store.Active(ctx, actor)
	if err != nil {
		return nil, fmt.Errorf("load active timer: %w", err)
	}
	if existing == nil {
		return nil, ErrNoActiveTimer
	}

	entry, err := s.finalize(ctx, *existing, s.now())
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// Active returns the actor's running timer, or nil.
func (s *Service) Active(ctx context.Context, actor string) (*ActiveTimer, error) {
	return s.store.Active(ctx, actor)
}

func (s *Service) finalize(ctx context.Context, timer ActiveTimer, now time.Time) (*TimeLogEntry, error) {
	hours := roundHours(now.Sub(timer.StartedAt))
	entry := TimeLogEntry{
		Member:      timer.Actor,
		WorkspaceID: timer.WorkspaceID,
		TaskID:      timer.TaskID,
		Hours:       hours,
		Date:        now,
	}

	if err := s.sink.AppendTimeLog(ctx, entry); err != nil {
		return nil, fmt.Errorf("append time log: %w", err)
	}
	if err := s.store.Clear(ctx, timer.Actor); err != nil {
		return nil, fmt.Errorf("clear timer: %w", err)
	}

	if s.recorder != nil {
		s.recorder.Record(audit.EventParams{
			EventType:   audit.EventTimeLogged,
			Description: fmt.Sprintf("Logged %.2f hours on %s", hours, timer.TaskName),
			PerformedBy: timer.Actor,
			WorkspaceID: timer.WorkspaceID,
			ProjectID:   timer.ProjectID,
			TaskID:      timer.TaskID,
			TaskName:    timer.TaskName,
		})
	}

	return &entry, nil
}

func roundHours(elapsed time.Duration) float64 {
	return math.Round(elapsed.Hours()*100) / 100
}
