package audit

import (
	"context"
	"fmt"
	"time"
)

const (
	// DefaultPageSize applies when the caller does not supply a limit.
	DefaultPageSize = 50
	// MaxPageSize caps caller-supplied limits.
	MaxPageSize = 200
)

// Filter narrows an audit-trail query. All populated fields are AND-combined.
// Search is an ASCII case-insensitive substring match that hits when ANY of
// description, performed_by_name, task_name, or project_name contains the term.
type Filter struct {
	WorkspaceID string
	ProjectID   string
	TaskID      string
	EventType   EventType
	PerformedBy string
	StartDate   *time.Time // inclusive lower bound on created_at
	EndDate     *time.Time // inclusive upper bound on created_at
	Search      string
}

// Page is one page of the trail, newest first.
type Page struct {
	Entries    []EventRecord
	Total      int
	Page       int
	TotalPages int
}

// QueryService is the filtered, paginated read path over the trail. Results
// are always ordered by created_at descending; audit trails read newest-first.
type QueryService struct {
	store EventStore
}

// NewQueryService constructs a QueryService.
func NewQueryService(store EventStore) *QueryService {
	return &QueryService{store: store}
}

// Query runs the filter and returns the requested page. Out-of-range paging
// inputs are normalized rather than rejected: page < 1 becomes 1, limit <= 0
// becomes DefaultPageSize, and limits above MaxPageSize are capped.
func (s *QueryService) Query(ctx context.Context, filter Filter, page, limit int) (Page, error) {
	if filter.EventType != "" && !ValidEventType(filter.EventType) {
		// An unknown type can never match a stored record; short-circuit
		// instead of failing the read path over a client bug.
		return Page{Entries: []EventRecord{}, Total: 0, Page: normalizePage(page), TotalPages: 0}, nil
	}

	page = normalizePage(page)
	limit = normalizeLimit(limit)

	entries, total, err := s.store.Search(ctx, filter, limit, (page-1)*limit)
	if err != nil {
		return Page{}, fmt.Errorf("search audit trail: %w", err)
	}
	if entries == nil {
		entries = []EventRecord{}
	}

	return Page{
		Entries:    entries,
		Total:      total,
		Page:       page,
		TotalPages: totalPages(total, limit),
	}, nil
}

func normalizePage(page int) int {
	if page < 1 {
		return 1
	}
	return page
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultPageSize
	}
	if limit > MaxPageSize {
		return MaxPageSize
	}
	return limit
}

func totalPages(total, limit int) int {
	if total <= 0 {
		return 0
	}
	return (total + limit - 1) / limit
}
