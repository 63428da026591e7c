package internaldefs

import (
	"github.com/wareflow/authkit"
)

// CounterDef names one engine counter for exporters.
type CounterDef struct {
	ID   authkit.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram for exporters.
type HistogramDef struct {
	ID   authkit.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: authkit.MetricLoginSuccess, Name: "wareflow_login_success_total", Help: "Successful sign-ins."},
	{ID: authkit.MetricLoginFailure, Name: "wareflow_login_failure_total", Help: "Rejected sign-ins."},
	{ID: authkit.MetricRefreshSuccess, Name: "wareflow_refresh_success_total", Help: "Successful credential refreshes."},
	{ID: authkit.MetricRefreshFailure, Name: "wareflow_refresh_failure_total", Help: "Failed credential refreshes."},
	{ID: authkit.MetricRefreshSuperseded, Name: "wareflow_refresh_superseded_total", Help: "Refresh results discarded after sign-in or sign-out."},
	{ID: authkit.MetricInitAuthenticated, Name: "wareflow_init_authenticated_total", Help: "Session resolutions ending authenticated."},
	{ID: authkit.MetricInitAnonymous, Name: "wareflow_init_anonymous_total", Help: "Session resolutions ending anonymous."},
	{ID: authkit.MetricUnauthorized, Name: "wareflow_unauthorized_total", Help: "401 responses entering credential recovery."},
	{ID: authkit.MetricRetrySuccess, Name: "wareflow_retry_success_total", Help: "Requests that succeeded after recovery."},
	{ID: authkit.MetricRetryFailure, Name: "wareflow_retry_failure_total", Help: "Requests that failed after or during recovery."},
	{ID: authkit.MetricPermissionFetch, Name: "wareflow_permission_fetch_total", Help: "Warehouse permission fetches."},
	{ID: authkit.MetricPermissionCacheHit, Name: "wareflow_permission_cache_hit_total", Help: "Warehouse permission reads served from cache."},
	{ID: authkit.MetricPermissionFailure, Name: "wareflow_permission_failure_total", Help: "Failed warehouse permission fetches."},
	{ID: authkit.MetricSystemPermissionFetch, Name: "wareflow_system_permission_fetch_total", Help: "System permission fetches."},
	{ID: authkit.MetricLogout, Name: "wareflow_logout_total", Help: "Sign-outs."},
	{ID: authkit.MetricLogoutNotifyFailure, Name: "wareflow_logout_notify_failure_total", Help: "Sign-outs whose backend notification failed."},
	{ID: authkit.MetricRegistration, Name: "wareflow_registration_total", Help: "Accounts registered."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: authkit.MetricAPILatency, Name: "wareflow_api_latency_seconds", Help: "Backend request latency."},
}

// HistogramUpperBounds are the finite bucket bounds in seconds, matching
// [authkit.HistogramBounds].
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBucketLabels are the "le" values of each bucket, +Inf last.
var HistogramBucketLabels = []string{"0.005", "0.01", "0.025", "0.05", "0.1", "0.25", "0.5", "+Inf"}

// NormalizeBuckets copies raw into a fixed array, padding with zeros.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
