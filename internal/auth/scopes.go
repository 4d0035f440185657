package auth

// Known OAuth scopes used by the audit service.
const (
	ScopeAuditWrite  = "audit:write"
	ScopeAuditRead   = "audit:read"
	ScopeReportsRead = "reports:read"
	ScopeTimersWrite = "timers:write"
)
