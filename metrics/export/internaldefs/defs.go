package internaldefs

import (
	"github.com/MrEthical07/catfeed"
)

// CounterDef binds an engine counter to its exported name.
type CounterDef struct {
	ID   catfeed.MetricID
	Name string
	Help string
}

// HistogramDef binds an engine histogram to its exported name.
type HistogramDef struct {
	ID   catfeed.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: catfeed.MetricSessionStarted, Name: "catfeed_session_started_total", Help: "Sessions started."},
	{ID: catfeed.MetricSessionExpired, Name: "catfeed_session_expired_total", Help: "Requests that arrived with an expired or unknown session."},
	{ID: catfeed.MetricSessionCollision, Name: "catfeed_session_id_collision_total", Help: "Session identifiers regenerated after a collision."},
	{ID: catfeed.MetricSessionConflict, Name: "catfeed_session_conflict_total", Help: "Session writes that lost every retry to a concurrent writer."},
	{ID: catfeed.MetricLoginSuccess, Name: "catfeed_login_success_total", Help: "Successful logins."},
	{ID: catfeed.MetricLoginFailure, Name: "catfeed_login_failure_total", Help: "Logins rejected for credentials."},
	{ID: catfeed.MetricLogout, Name: "catfeed_logout_total", Help: "Logouts."},
	{ID: catfeed.MetricCSRFIssued, Name: "catfeed_csrf_issued_total", Help: "CSRF tokens minted."},
	{ID: catfeed.MetricCSRFRejected, Name: "catfeed_csrf_rejected_total", Help: "Form submissions rejected for a CSRF mismatch."},
	{ID: catfeed.MetricFlashSet, Name: "catfeed_flash_set_total", Help: "Flash notices stored."},
	{ID: catfeed.MetricFlashDelivered, Name: "catfeed_flash_delivered_total", Help: "Flash notices read and cleared."},
	{ID: catfeed.MetricAccountRegistered, Name: "catfeed_account_registered_total", Help: "Accounts created."},
	{ID: catfeed.MetricAccountRegistrationRejected, Name: "catfeed_account_registration_rejected_total", Help: "Registrations rejected by validation or uniqueness."},
	{ID: catfeed.MetricProfileUpdated, Name: "catfeed_profile_updated_total", Help: "Profile changes saved."},
	{ID: catfeed.MetricPasswordResetRequest, Name: "catfeed_password_reset_request_total", Help: "Password reset links issued."},
	{ID: catfeed.MetricPasswordResetConfirmSuccess, Name: "catfeed_password_reset_confirm_success_total", Help: "Password resets completed."},
	{ID: catfeed.MetricPasswordResetConfirmFailure, Name: "catfeed_password_reset_confirm_failure_total", Help: "Password reset confirmations rejected."},
	{ID: catfeed.MetricPostCreated, Name: "catfeed_post_created_total", Help: "Location posts written."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: catfeed.MetricSessionStoreLatency, Name: "catfeed_session_store_latency_seconds", Help: "Session store round-trip latency."},
}

// AuditDroppedName is the counter for audit events lost to backpressure.
const AuditDroppedName = "catfeed_audit_dropped_total"

// AuditDroppedHelp describes AuditDroppedName.
const AuditDroppedHelp = "Dropped audit events due to dispatcher backpressure."

// HistogramUpperBounds are the finite bucket bounds in seconds. The engine
// keeps one more bucket for +Inf.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundSuffix names each bucket, +Inf last, for exporters that flatten
// buckets into separate instruments.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed array, zero-filling missing buckets.
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
