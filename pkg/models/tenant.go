package models

// BypassTenantID is the single identity permitted to read across tenants.
// Queries issued under it drop the tenant predicate and every affected log
// record carries crossTenantAccess=true. No other bypass exists.
const BypassTenantID = "platform-audit"

// Default gateway identity header names. Deployments may rename them via
// config; internal service-to-service calls always send the defaults.
const (
	HeaderTenantID  = "X-Tenant-ID"
	HeaderRequestID = "X-Request-ID"
	HeaderTraceID   = "X-Trace-ID"
	HeaderUserID    = "X-User-ID"
)

// TenantContext carries the per-request identity extracted from gateway
// headers. It is immutable and propagated to all downstream calls and logs.
type TenantContext struct {
	TenantID  string `json:"tenantId"`
	RequestID string `json:"requestId"`
	TraceID   string `json:"traceId,omitempty"`
	UserID    string `json:"userId,omitempty"`
}

// CrossTenant reports whether this context is the documented bypass identity.
func (tc TenantContext) CrossTenant() bool {
	return tc.TenantID == BypassTenantID
}

// LogFields returns the standard log fields for this context.
func (tc TenantContext) LogFields() map[string]interface{} {
	fields := map[string]interface{}{
		"tenant_id":         tc.TenantID,
		"request_id":        tc.RequestID,
		"crossTenantAccess": tc.CrossTenant(),
	}
	if tc.TraceID != "" {
		fields["trace_id"] = tc.TraceID
	}
	if tc.UserID != "" {
		fields["user_id"] = tc.UserID
	}
	return fields
}
