package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aivisualpro/planzo-audit/internal/audit"
	"github.com/aivisualpro/planzo-audit/internal/auth"
	"github.com/aivisualpro/planzo-audit/internal/persistence/memory"
	"github.com/aivisualpro/planzo-audit/internal/platform/logger"
	"github.com/aivisualpro/planzo-audit/internal/report"
	"github.com/aivisualpro/planzo-audit/internal/timer"
)

var handlerNow = time.Date(2026, time.February, 11, 12, 0, 0, 0, time.UTC)

type fixture struct {
	handler  *Handler
	events   *memory.EventStore
	tracking *memory.TrackingStore
	cancel   context.CancelFunc
	recorder *audit.Recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	events := memory.NewEventStore()
	tracking := memory.NewTrackingStore()

	// Monotonic clock so every recorded event gets a distinct timestamp.
	var mu sync.Mutex
	tick := handlerNow
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		tick = tick.Add(time.Second)
		return tick
	}

	recorder := audit.NewRecorder(events, logger.NewNop(), 64, audit.WithClock(clock))
	ctx, cancel := context.WithCancel(context.Background())
	go recorder.Start(ctx)

	engine := report.NewEngine(tracking, tracking, report.WithNow(func() time.Time { return handlerNow }))
	timers := timer.NewService(tracking, tracking, recorder, timer.WithNow(func() time.Time { return handlerNow }))

	f := &fixture{
		handler:  NewHandler(recorder, audit.NewQueryService(events), engine, timers),
		events:   events,
		tracking: tracking,
		cancel:   cancel,
		recorder: recorder,
	}
	t.Cleanup(func() {
		cancel()
		recorder.Wait()
	})
	return f
}

func testClaims(scopes ...string) *auth.Claims {
	scopeSet := make(map[string]struct{}, len(scopes))
	for _, scope := range scopes {
		scopeSet[scope] = struct{}{}
	}
	return &auth.Claims{
		Subject:   "user-1",
		Email:     "tester@planzo.app",
		Name:      "Test Er",
		Scopes:    scopeSet,
		ExpiresAt: time.Now().Add(time.Hour),
	}
}

func doRequest(h *Handler, method, target, body string, claims *auth.Claims) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	if claims != nil {
		req = req.WithContext(auth.WithClaims(req.Context(), claims))
	}

	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	return rr
}

func countEvents(t *testing.T, f *fixture, filter audit.Filter) int {
	t.Helper()
	_, total, err := f.events.Search(context.Background(), filter, 1, 0)
	require.NoError(t, err)
	return total
}

func TestRecordThenQueryScenario(t *testing.T) {
	f := newFixture(t)
	claims := testClaims(auth.ScopeAuditWrite, auth.ScopeAuditRead)

	created := `{"event_type":"task_created","description":"Created task Launch checklist","task_id":"task-1","task_name":"Launch checklist"}`
	rr := doRequest(f.handler, http.MethodPost, "/v1/audit/events", created, claims)
	require.Equal(t, http.StatusAccepted, rr.Code)

	statusChanged := `{"event_type":"status_changed","description":"Status changed","task_id":"task-1","field":"status","old_value":"Not Started","new_value":"In Progress"}`
	rr = doRequest(f.handler, http.MethodPost, "/v1/audit/events", statusChanged, claims)
	require.Equal(t, http.StatusAccepted, rr.Code)

	require.Eventually(t, func() bool {
		return countEvents(t, f, audit.Filter{TaskID: "task-1"}) == 2
	}, time.Second, 5*time.Millisecond)

	rr = doRequest(f.handler, http.MethodGet, "/v1/audit/events?task_id=task-1", "", claims)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp QueryTrailResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, 2, resp.Total)
	require.Len(t, resp.Entries, 2)
	require.Equal(t, "status_changed", resp.Entries[0].EventType)
	require.Equal(t, "task_created", resp.Entries[1].EventType)
	// Actor identity defaults from the session claims.
	require.Equal(t, "tester@planzo.app", resp.Entries[0].PerformedBy)
	require.Equal(t, "Test Er", resp.Entries[0].PerformedByName)
}

func TestRecordEventRequiresWriteScope(t *testing.T) {
	f := newFixture(t)

	body := `{"event_type":"task_created","description":"Created"}`
	rr := doRequest(f.handler, http.MethodPost, "/v1/audit/events", body, testClaims(auth.ScopeAuditRead))
	require.Equal(t, http.StatusForbidden, rr.Code)

	rr = doRequest(f.handler, http.MethodPost, "/v1/audit/events", body, nil)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestRecordEventRejectsUnknownType(t *testing.T) {
	f := newFixture(t)

	body := `{"event_type":"task_renamed","description":"Renamed"}`
	rr := doRequest(f.handler, http.MethodPost, "/v1/audit/events", body, testClaims(auth.ScopeAuditWrite))
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRecordUpdateRoutesEventTypes(t *testing.T) {
	f := newFixture(t)
	claims := testClaims(auth.ScopeAuditWrite)

	body := `{
        "description": "Updated task",
        "task_id": "task-9",
        "before": {"status": "Open", "assignee": "a@x.com", "priority": "Low"},
        "after": {"status": "Closed", "assignee": "a@x.com", "priority": "High"},
        "tracked_fields": ["status", "assignee", "priority"]
    }`
	rr := doRequest(f.handler, http.MethodPost, "/v1/audit/updates", body, claims)
	require.Equal(t, http.StatusAccepted, rr.Code)

	require.Eventually(t, func() bool {
		return countEvents(t, f, audit.Filter{TaskID: "task-9"}) == 2
	}, time.Second, 5*time.Millisecond)

	require.Equal(t, 1, countEvents(t, f, audit.Filter{TaskID: "task-9", EventType: audit.EventStatusChanged}))
	require.Equal(t, 1, countEvents(t, f, audit.Filter{TaskID: "task-9", EventType: audit.EventTaskUpdated}))
}

func TestQueryNormalizesBadPaging(t *testing.T) {
	f := newFixture(t)
	claims := testClaims(auth.ScopeAuditRead)

	rr := doRequest(f.handler, http.MethodGet, "/v1/audit/events?page=0&limit=-10", "", claims)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp QueryTrailResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Page)
	require.Zero(t, resp.Total)
	require.NotNil(t, resp.Entries)
}

func TestQueryRejectsMalformedDate(t *testing.T) {
	f := newFixture(t)

	rr := doRequest(f.handler, http.MethodGet, "/v1/audit/events?start_date=yesterday", "", testClaims(auth.ScopeAuditRead))
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestWeeklyReportRejectsFutureOffset(t *testing.T) {
	f := newFixture(t)

	rr := doRequest(f.handler, http.MethodGet, "/v1/reports/weekly?week_offset=1", "", testClaims(auth.ScopeReportsRead))
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestWeeklyReportBuilds(t *testing.T) {
	f := newFixture(t)

	completed := handlerNow.Add(-time.Hour)
	f.tracking.AddTask(report.Task{
		ID:          "task-1",
		WorkspaceID: "ws-1",
		Name:        "Launch checklist",
		Assignee:    "a@x.com",
		Priority:    "High",
		CreatedAt:   handlerNow.AddDate(0, 0, -20),
		CompletedAt: &completed,
	})

	rr := doRequest(f.handler, http.MethodGet, "/v1/reports/weekly?workspace_id=ws-1", "", testClaims(auth.ScopeReportsRead))
	require.Equal(t, http.StatusOK, rr.Code)

	var resp report.WeeklyReport
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, time.Date(2026, time.February, 8, 0, 0, 0, 0, time.UTC), resp.WeekStart)
	require.Equal(t, time.Date(2026, time.February, 15, 0, 0, 0, 0, time.UTC), resp.WeekEnd)
	require.Len(t, resp.Members, 1)
	require.Equal(t, "a@x.com", resp.Members[0].Member)
	require.Equal(t, 1, resp.Members[0].CompletedThisWeek)
}

func TestWeeklyReportAllWorkspaces(t *testing.T) {
	f := newFixture(t)

	f.tracking.AddTask(report.Task{ID: "t1", WorkspaceID: "ws-1", Assignee: "a@x.com", CreatedAt: handlerNow})
	f.tracking.AddTask(report.Task{ID: "t2", WorkspaceID: "ws-2", Assignee: "b@x.com", CreatedAt: handlerNow})

	rr := doRequest(f.handler, http.MethodGet, "/v1/reports/weekly?workspace_id=all", "", testClaims(auth.ScopeReportsRead))
	require.Equal(t, http.StatusOK, rr.Code)

	var resp report.WeeklyReport
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Len(t, resp.Members, 2)
}

func TestTimerStartStopFlow(t *testing.T) {
	f := newFixture(t)
	claims := testClaims(auth.ScopeTimersWrite)

	rr := doRequest(f.handler, http.MethodPost, "/v1/timers/start", `{"task_id":"task-1","task_name":"Launch checklist","workspace_id":"ws-1"}`, claims)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = doRequest(f.handler, http.MethodGet, "/v1/timers/active", "", claims)
	require.Equal(t, http.StatusOK, rr.Code)
	var active ActiveTimerResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &active))
	require.True(t, active.Running)
	require.Equal(t, "task-1", active.Timer.TaskID)

	rr = doRequest(f.handler, http.MethodPost, "/v1/timers/stop", "", claims)
	require.Equal(t, http.StatusOK, rr.Code)
	var stopped StopTimerResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &stopped))
	require.Equal(t, "task-1", stopped.TaskID)

	// Stopping again reports no active timer.
	rr = doRequest(f.handler, http.MethodPost, "/v1/timers/stop", "", claims)
	require.Equal(t, http.StatusConflict, rr.Code)

	// The banked time log feeds the weekly report sources.
	require.Len(t, f.tracking.TimeLogs(), 1)
}

func TestTimerStartRequiresTaskID(t *testing.T) {
	f := newFixture(t)

	rr := doRequest(f.handler, http.MethodPost, "/v1/timers/start", `{}`, testClaims(auth.ScopeTimersWrite))
	require.Equal(t, http.StatusBadRequest, rr.Code)
}
