package timer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type stubStore struct {
	timers map[string]ActiveTimer
}

func newStubStore() *stubStore {
	return &stubStore{timers: make(map[string]ActiveTimer)}
}

func (s *stubStore) Active(ctx context.Context, actor string) (*ActiveTimer, error) {
	if t, ok := s.timers[actor]; ok {
		out := t
		return &out, nil
	}
	return nil, nil
}

func (s *stubStore) Put(ctx context.Context, t ActiveTimer) error {
	s.timers[t.Actor] = t
	return nil
}

func (s *stubStore) Clear(ctx context.Context, actor string) error {
	delete(s.timers, actor)
	return nil
}

type stubSink struct {
	entries []TimeLogEntry
}

func (s *stubSink) AppendTimeLog(ctx context.Context, entry TimeLogEntry) error {
	s.entries = append(s.entries, entry)
	return nil
}

func newTestService(store Store, sink TimeLogSink, clock *time.Time) *Service {
	return NewService(store, sink, nil, WithNow(func() time.Time { return *clock }))
}

func TestStartThenStopBanksElapsedHours(t *testing.T) {
	ctx := context.Background()
	store := newStubStore()
	sink := &stubSink{}
	now := time.Date(2026, time.February, 11, 9, 0, 0, 0, time.UTC)
	svc := newTestService(store, sink, &now)

	started, err := svc.Start(ctx, ActiveTimer{Actor: "a@x.com", TaskID: "task-1", WorkspaceID: "ws-1"})
	require.NoError(t, err)
	require.Equal(t, now, started.StartedAt)

	now = now.Add(90 * time.Minute)
	entry, err := svc.Stop(ctx, "a@x.com")
	require.NoError(t, err)
	require.Equal(t, 1.5, entry.Hours)
	require.Equal(t, "task-1", entry.TaskID)

	active, err := svc.Active(ctx, "a@x.com")
	require.NoError(t, err)
	require.Nil(t, active)
}

func TestStartWhileActiveFinalizesPriorTimer(t *testing.T) {
	ctx := context.Background()
	store := newStubStore()
	sink := &stubSink{}
	now := time.Date(2026, time.February, 11, 9, 0, 0, 0, time.UTC)
	svc := newTestService(store, sink, &now)

	_, err := svc.Start(ctx, ActiveTimer{Actor: "a@x.com", TaskID: "task-1"})
	require.NoError(t, err)

	now = now.Add(2 * time.Hour)
	started, err := svc.Start(ctx, ActiveTimer{Actor: "a@x.com", TaskID: "task-2"})
	require.NoError(t, err)
	require.Equal(t, "task-2", started.TaskID)

	// The first timer's elapsed time was banked, not discarded.
	require.Len(t, sink.entries, 1)
	require.Equal(t, "task-1", sink.entries[0].TaskID)
	require.Equal(t, 2.0, sink.entries[0].Hours)

	active, err := svc.Active(ctx, "a@x.com")
	require.NoError(t, err)
	require.NotNil(t, active)
	require.Equal(t, "task-2", active.TaskID)
}

func TestStopWithoutActiveTimer(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, time.February, 11, 9, 0, 0, 0, time.UTC)
	svc := newTestService(newStubStore(), &stubSink{}, &now)

	_, err := svc.Stop(ctx, "a@x.com")
	require.ErrorIs(t, err, ErrNoActiveTimer)
}

func TestTimersAreIndependentPerActor(t *testing.T) {
	ctx := context.Background()
	store := newStubStore()
	sink := &stubSink{}
	now := time.Date(2026, time.February, 11, 9, 0, 0, 0, time.UTC)
	svc := newTestService(store, sink, &now)

	_, err := svc.Start(ctx, ActiveTimer{Actor: "a@x.com", TaskID: "task-1"})
	require.NoError(t, err)
	_, err = svc.Start(ctx, ActiveTimer{Actor: "b@x.com", TaskID: "task-2"})
	require.NoError(t, err)

	// Starting b's timer must not finalize a's.
	require.Empty(t, sink.entries)

	now = now.Add(time.Hour)
	entry, err := svc.Stop(ctx, "a@x.com")
	require.NoError(t, err)
	require.Equal(t, "task-1", entry.TaskID)

	active, err := svc.Active(ctx, "b@x.com")
	require.NoError(t, err)
	require.NotNil(t, active)
}
