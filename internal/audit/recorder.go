package audit

import (
	"context"
	"time"

	"github.com/aivisualpro/planzo-audit/internal/observability"
	"github.com/aivisualpro/planzo-audit/internal/platform/logger"
)

// EventStore captures persistence operations for the append-only trail.
type EventStore interface {
	Insert(ctx context.Context, record EventRecord) error
	Search(ctx context.Context, filter Filter, limit, offset int) ([]EventRecord, int, error)
}

// Recorder is the fire-and-forget write path. Record never blocks and never
// returns an error: events flow through a bounded queue drained by a single
// writer goroutine, so a slow or failing store cannot degrade the business
// operation that triggered the event. On overflow the oldest queued event is
// dropped, counted, and logged.
type Recorder struct {
	store            EventStore
	logger           *logger.Logger
	queue            chan EventRecord
	now              func() time.Time
	writeTimeout     time.Duration
	shutdownComplete chan struct{}
}

// RecorderOption customises a Recorder.
type RecorderOption func(*Recorder)

// WithClock overrides the write-time clock. Intended for tests.
func WithClock(now func() time.Time) RecorderOption {
	return func(r *Recorder) { r.now = now }
}

// WithWriteTimeout bounds each store insert.
func WithWriteTimeout(d time.Duration) RecorderOption {
	return func(r *Recorder) { r.writeTimeout = d }
}

// NewRecorder constructs a Recorder with the given queue capacity.
func NewRecorder(store EventStore, log *logger.Logger, queueSize int, opts ...RecorderOption) *Recorder {
	if queueSize <= 0 {
		queueSize = 1024
	}
	r := &Recorder{
		store:            store,
		logger:           log,
		queue:            make(chan EventRecord, queueSize),
		now:              func() time.Time { return time.Now().UTC() },
		writeTimeout:     5 * time.Second,
		shutdownComplete: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record validates and enqueues one event. Invalid params are logged and
// discarded; callers must not depend on the outcome.
func (r *Recorder) Record(params EventParams) {
	if err := params.Validate(); err != nil {
		r.logger.Warn("audit event rejected", "error", err)
		observability.RecordEventRejected()
		return
	}
	record := newRecord(params, r.now())
	r.enqueue(record)
}

// RecordUpdate runs the caller-side update pipeline: diff the snapshots over
// the tracked allow-list and emit one event per changed field, classified by
// ClassifyChange. An update that changes no tracked field still emits a single
// bare task_updated event so the trail records every action, including updates
// that only touched untracked fields.
func (r *Recorder) RecordUpdate(base EventParams, before, after map[string]interface{}, tracked []string) {
	changes := Diff(before, after, tracked)
	if len(changes) == 0 {
		base.EventType = EventTaskUpdated
		base.Field = ""
		base.OldValue = ""
		base.NewValue = ""
		r.Record(base)
		return
	}
	for _, change := range changes {
		params := base
		params.EventType = ClassifyChange(change.Field)
		params.Field = change.Field
		params.OldValue = change.OldValue
		params.NewValue = change.NewValue
		r.Record(params)
	}
}

func (r *Recorder) enqueue(record EventRecord) {
	select {
	case r.queue <- record:
		return
	default:
	}

	// Queue is full: drop the oldest entry to make room, then retry once.
	select {
	case dropped := <-r.queue:
		observability.RecordEventDropped()
		r.logger.Warn("audit queue full, dropped oldest event",
			"dropped_event_id", dropped.EventID,
			"dropped_event_type", string(dropped.EventType))
	default:
	}

	select {
	case r.queue <- record:
	default:
		observability.RecordEventDropped()
		r.logger.Warn("audit queue full, dropped incoming event",
			"event_id", record.EventID,
			"event_type", string(record.EventType))
	}
}

// Start launches the writer loop. It should be called in a goroutine. When ctx
// is cancelled the loop drains whatever is still queued before returning.
func (r *Recorder) Start(ctx context.Context) {
	defer close(r.shutdownComplete)

	for {
		select {
		case record := <-r.queue:
			r.persist(ctx, record)
		case <-ctx.Done():
			r.drain()
			return
		}
	}
}

// Wait blocks until the writer loop has stopped.
func (r *Recorder) Wait() {
	<-r.shutdownComplete
}

func (r *Recorder) drain() {
	for {
		select {
		case record := <-r.queue:
			r.persist(context.Background(), record)
		default:
			return
		}
	}
}

func (r *Recorder) persist(ctx context.Context, record EventRecord) {
	writeCtx, cancel := context.WithTimeout(ctx, r.writeTimeout)
	defer cancel()

	if err := r.store.Insert(writeCtx, record); err != nil {
		// Callers never see persistence failures; they only surface here
		// and in the failure counter.
		observability.RecordEventWriteFailure()
		r.logger.Error("audit event write failed",
			"event_id", record.EventID,
			"event_type", string(record.EventType),
			"error", err)
		return
	}
	observability.RecordEventPersisted(string(record.EventType))
}
