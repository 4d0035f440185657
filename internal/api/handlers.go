// Package api exposes HTTP handlers for the audit service.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aivisualpro/planzo-audit/internal/audit"
	"github.com/aivisualpro/planzo-audit/internal/auth"
	"github.com/aivisualpro/planzo-audit/internal/observability"
	"github.com/aivisualpro/planzo-audit/internal/report"
	"github.com/aivisualpro/planzo-audit/internal/timer"
)

// Handler coordinates HTTP requests with the audit, report, and timer services.
type Handler struct {
	recorder *audit.Recorder
	query    *audit.QueryService
	engine   *report.Engine
	timers   *timer.Service
}

// NewHandler builds a Handler.
func NewHandler(recorder *audit.Recorder, query *audit.QueryService, engine *report.Engine, timers *timer.Service) *Handler {
	return &Handler{recorder: recorder, query: query, engine: engine, timers: timers}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/audit/events", h.auditEvents)
	mux.HandleFunc("/v1/audit/updates", h.recordUpdate)
	mux.HandleFunc("/v1/reports/weekly", h.weeklyReport)
	mux.HandleFunc("/v1/timers/start", h.startTimer)
	mux.HandleFunc("/v1/timers/stop", h.stopTimer)
	mux.HandleFunc("/v1/timers/active", h.activeTimer)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) auditEvents(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.recordEvent(w, r)
	case http.MethodGet:
		h.queryTrail(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) recordEvent(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeAuditWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope audit:write required")
		return
	}

	var req RecordEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	params := req.toParams(claims)
	if err := params.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	// Fire and forget: the recorder's outcome never reaches the caller.
	h.recorder.Record(params)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (h *Handler) recordUpdate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeAuditWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope audit:write required")
		return
	}

	var req RecordUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	base := req.toBaseParams(claims)
	h.recorder.RecordUpdate(base, req.Before, req.After, req.TrackedFields)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (h *Handler) queryTrail(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeAuditRead) && !claims.HasScope(auth.ScopeAuditWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope audit:read required")
		return
	}

	start := time.Now()

	params := r.URL.Query()
	filter := audit.Filter{
		WorkspaceID: params.Get("workspace_id"),
		ProjectID:   params.Get("project_id"),
		TaskID:      params.Get("task_id"),
		EventType:   audit.EventType(params.Get("event_type")),
		PerformedBy: params.Get("performed_by"),
		Search:      params.Get("search"),
	}

	if raw := params.Get("start_date"); raw != "" {
		parsed, err := parseDate(raw, false)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_failed", "invalid start_date")
			return
		}
		filter.StartDate = &parsed
	}
	if raw := params.Get("end_date"); raw != "" {
		parsed, err := parseDate(raw, true)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_failed", "invalid end_date")
			return
		}
		filter.EndDate = &parsed
	}

	page := 1
	if raw := params.Get("page"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			page = parsed
		}
	}
	limit := 0
	if raw := params.Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			limit = parsed
		}
	}

	result, err := h.query.Query(r.Context(), filter, page, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	observability.ObserveQueryDuration(time.Since(start).Seconds())

	entries := make([]EventView, 0, len(result.Entries))
	for _, record := range result.Entries {
		entries = append(entries, toEventView(record))
	}

	writeJSON(w, http.StatusOK, QueryTrailResponse{
		Entries:    entries,
		Total:      result.Total,
		Page:       result.Page,
		TotalPages: result.TotalPages,
	})
}

func (h *Handler) weeklyReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeReportsRead) {
		writeError(w, http.StatusForbidden, "forbidden", "scope reports:read required")
		return
	}

	workspaceID := r.URL.Query().Get("workspace_id")
	if workspaceID == "all" {
		workspaceID = ""
	}

	weekOffset := 0
	if raw := r.URL.Query().Get("week_offset"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_failed", "invalid week_offset")
			return
		}
		weekOffset = parsed
	}
	if weekOffset > 0 {
		writeError(w, http.StatusBadRequest, "validation_failed", "week_offset cannot navigate past the current week")
		return
	}

	result, err := h.engine.BuildWeeklyReport(r.Context(), workspaceID, weekOffset)
	if err != nil {
		// A partial report would be indistinguishable from no activity, so
		// source failures surface as an explicit error.
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) startTimer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeTimersWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope timers:write required")
		return
	}

	var req StartTimerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if strings.TrimSpace(req.TaskID) == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "task_id is required")
		return
	}

	started, err := h.timers.Start(r.Context(), timer.ActiveTimer{
		Actor:       claims.ActorID(),
		WorkspaceID: req.WorkspaceID,
		ProjectID:   req.ProjectID,
		TaskID:      req.TaskID,
		TaskName:    req.TaskName,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, toTimerView(*started))
}

func (h *Handler) stopTimer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeTimersWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope timers:write required")
		return
	}

	entry, err := h.timers.Stop(r.Context(), claims.ActorID())
	if err != nil {
		if errors.Is(err, timer.ErrNoActiveTimer) {
			writeError(w, http.StatusConflict, "no_active_timer", "no timer is running")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, StopTimerResponse{
		TaskID: entry.TaskID,
		Hours:  entry.Hours,
		Date:   entry.Date,
	})
}

func (h *Handler) activeTimer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeTimersWrite) && !claims.HasScope(auth.ScopeReportsRead) {
		writeError(w, http.StatusForbidden, "forbidden", "scope timers:write required")
		return
	}

	active, err := h.timers.Active(r.Context(), claims.ActorID())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	if active == nil {
		writeJSON(w, http.StatusOK, ActiveTimerResponse{Running: false})
		return
	}

	view := toTimerView(*active)
	writeJSON(w, http.StatusOK, ActiveTimerResponse{Running: true, Timer: &view})
}

// parseDate accepts RFC3339 timestamps or bare YYYY-MM-DD dates. A bare end
// date is widened to the end of that day so the range stays inclusive.
func parseDate(value string, endOfDay bool) (time.Time, error) {
	if parsed, err := time.Parse(time.RFC3339, value); err == nil {
		return parsed.UTC(), nil
	}
	parsed, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		return parsed.AddDate(0, 0, 1).Add(-time.Nanosecond), nil
	}
	return parsed, nil
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
