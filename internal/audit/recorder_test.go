package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aivisualpro/planzo-audit/internal/platform/logger"
)

type stubStore struct {
	mu      sync.Mutex
	records []EventRecord
	fail    error
}

func (s *stubStore) Insert(ctx context.Context, record EventRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.records = append(s.records, record)
	return nil
}

func (s *stubStore) Search(ctx context.Context, filter Filter, limit, offset int) ([]EventRecord, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]EventRecord, len(s.records))
	copy(out, s.records)
	return out, len(out), nil
}

func (s *stubStore) snapshot() []EventRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]EventRecord, len(s.records))
	copy(out, s.records)
	return out
}

func validParams() EventParams {
	return EventParams{
		EventType:   EventTaskCreated,
		Description: "Created task Launch checklist",
		PerformedBy: "a@x.com",
	}
}

func runRecorder(t *testing.T, r *Recorder) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	go r.Start(ctx)
	return cancel
}

func TestRecordPersistsEvent(t *testing.T) {
	store := &stubStore{}
	rec := NewRecorder(store, logger.NewNop(), 8)
	cancel := runRecorder(t, rec)

	rec.Record(validParams())

	require.Eventually(t, func() bool {
		return len(store.snapshot()) == 1
	}, time.Second, 5*time.Millisecond)

	got := store.snapshot()[0]
	require.Equal(t, EventTaskCreated, got.EventType)
	require.NotEmpty(t, got.EventID)
	require.False(t, got.CreatedAt.IsZero())

	cancel()
	rec.Wait()
}

func TestRecordSwallowsStoreFailure(t *testing.T) {
	store := &stubStore{fail: errors.New("store unreachable")}
	rec := NewRecorder(store, logger.NewNop(), 8)
	cancel := runRecorder(t, rec)

	// Must not panic or surface the failure in any way.
	rec.Record(validParams())

	time.Sleep(20 * time.Millisecond)
	require.Empty(t, store.snapshot())

	cancel()
	rec.Wait()
}

func TestRecordRejectsUnknownEventType(t *testing.T) {
	store := &stubStore{}
	rec := NewRecorder(store, logger.NewNop(), 8)
	cancel := runRecorder(t, rec)

	params := validParams()
	params.EventType = "task_renamed"
	rec.Record(params)

	time.Sleep(20 * time.Millisecond)
	require.Empty(t, store.snapshot())

	cancel()
	rec.Wait()
}

func TestRecordUpdateEmitsOneEventPerChange(t *testing.T) {
	store := &stubStore{}
	rec := NewRecorder(store, logger.NewNop(), 8)
	cancel := runRecorder(t, rec)

	base := EventParams{
		Description: "Updated task Launch checklist",
		PerformedBy: "a@x.com",
		TaskID:      "task-1",
	}
	before := map[string]interface{}{"status": "Open", "assignee": "a@x.com", "priority": "Low"}
	after := map[string]interface{}{"status": "Closed", "assignee": "b@x.com", "priority": "Low"}

	rec.RecordUpdate(base, before, after, []string{"status", "assignee", "priority"})

	require.Eventually(t, func() bool {
		return len(store.snapshot()) == 2
	}, time.Second, 5*time.Millisecond)

	records := store.snapshot()
	require.Equal(t, EventStatusChanged, records[0].EventType)
	require.Equal(t, "status", records[0].Field)
	require.Equal(t, "Open", records[0].OldValue)
	require.Equal(t, "Closed", records[0].NewValue)
	require.Equal(t, EventAssignmentChanged, records[1].EventType)
	require.Equal(t, "assignee", records[1].Field)

	cancel()
	rec.Wait()
}

func TestRecordUpdateNoChangesStillLogged(t *testing.T) {
	store := &stubStore{}
	rec := NewRecorder(store, logger.NewNop(), 8)
	cancel := runRecorder(t, rec)

	base := EventParams{
		Description: "Updated task Launch checklist",
		PerformedBy: "a@x.com",
		TaskID:      "task-1",
	}
	snapshot := map[string]interface{}{"status": "Open"}

	rec.RecordUpdate(base, snapshot, snapshot, []string{"status"})

	require.Eventually(t, func() bool {
		return len(store.snapshot()) == 1
	}, time.Second, 5*time.Millisecond)

	got := store.snapshot()[0]
	require.Equal(t, EventTaskUpdated, got.EventType)
	require.Empty(t, got.Field)
	require.Empty(t, got.OldValue)
	require.Empty(t, got.NewValue)

	cancel()
	rec.Wait()
}

func TestEnqueueDropsOldestOnOverflow(t *testing.T) {
	store := &stubStore{}
	// Writer not started: events pile up in the queue.
	rec := NewRecorder(store, logger.NewNop(), 2)

	first := validParams()
	first.Description = "first"
	second := validParams()
	second.Description = "second"
	third := validParams()
	third.Description = "third"

	rec.Record(first)
	rec.Record(second)
	rec.Record(third) // overflow: "first" is dropped

	cancel := runRecorder(t, rec)
	require.Eventually(t, func() bool {
		return len(store.snapshot()) == 2
	}, time.Second, 5*time.Millisecond)

	records := store.snapshot()
	require.Equal(t, "second", records[0].Description)
	require.Equal(t, "third", records[1].Description)

	cancel()
	rec.Wait()
}

func TestShutdownDrainsQueue(t *testing.T) {
	store := &stubStore{}
	rec := NewRecorder(store, logger.NewNop(), 8)

	for i := 0; i < 5; i++ {
		rec.Record(validParams())
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // already cancelled: Start must still drain the queue
	go rec.Start(ctx)
	rec.Wait()

	require.Len(t, store.snapshot(), 5)
}
