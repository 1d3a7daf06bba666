package internaldefs

import (
	"github.com/MrEthical07/authgate"
)

// CounterDef names one Engine counter.
type CounterDef struct {
	ID   authgate.MetricID
	Name string
	Help string
}

// HistogramDef names one Engine latency histogram.
type HistogramDef struct {
	ID   authgate.MetricID
	Name string
	Help string
}

// AuditDroppedName is the counter of audit events lost to a full buffer.
const AuditDroppedName = "authgate_audit_dropped_total"

// CounterDefs lists every exported counter in render order.
var CounterDefs = []CounterDef{
	{ID: authgate.MetricTokensIssued, Name: "authgate_tokens_issued_total", Help: "Token pairs issued for new sessions."},
	{ID: authgate.MetricLoginSuccess, Name: "authgate_login_success_total", Help: "Successful logins."},
	{ID: authgate.MetricLoginFailure, Name: "authgate_login_failure_total", Help: "Failed logins."},
	{ID: authgate.MetricLoginRateLimited, Name: "authgate_login_rate_limited_total", Help: "Logins rejected by the attempt budget."},
	{ID: authgate.MetricPasswordRehashed, Name: "authgate_password_rehashed_total", Help: "Password hashes upgraded on login."},
	{ID: authgate.MetricRegisterSuccess, Name: "authgate_register_success_total", Help: "Accounts created."},
	{ID: authgate.MetricRegisterDuplicate, Name: "authgate_register_duplicate_total", Help: "Registrations rejected for a taken email."},
	{ID: authgate.MetricRegisterRateLimited, Name: "authgate_register_rate_limited_total", Help: "Registrations rejected by the attempt budget."},
	{ID: authgate.MetricRefreshSuccess, Name: "authgate_refresh_success_total", Help: "Refresh token rotations."},
	{ID: authgate.MetricRefreshFailure, Name: "authgate_refresh_failure_total", Help: "Rejected refresh attempts."},
	{ID: authgate.MetricRefreshReuseDetected, Name: "authgate_refresh_reuse_detected_total", Help: "Rotated-away refresh tokens presented again."},
	{ID: authgate.MetricRefreshTimeout, Name: "authgate_refresh_timeout_total", Help: "Refreshes that exceeded the operation timeout."},
	{ID: authgate.MetricVerifySuccess, Name: "authgate_verify_success_total", Help: "Tokens verified."},
	{ID: authgate.MetricVerifyFailure, Name: "authgate_verify_failure_total", Help: "Tokens rejected by verification."},
	{ID: authgate.MetricGateAdmitted, Name: "authgate_gate_admitted_total", Help: "Requests admitted by the gate."},
	{ID: authgate.MetricGateRateLimited, Name: "authgate_gate_rate_limited_total", Help: "Requests denied by a rate limit."},
	{ID: authgate.MetricGateUnauthenticated, Name: "authgate_gate_unauthenticated_total", Help: "Requests counted but carrying no valid token."},
	{ID: authgate.MetricGateFailed, Name: "authgate_gate_failed_total", Help: "Requests failed by an unreachable rate limit backend."},
	{ID: authgate.MetricLogout, Name: "authgate_logout_total", Help: "Single-session logouts."},
	{ID: authgate.MetricLogoutAll, Name: "authgate_logout_all_total", Help: "Logout-all operations."},
	{ID: authgate.MetricAPIKeyRotated, Name: "authgate_api_key_rotated_total", Help: "API key rotations."},
}

// HistogramDefs lists every exported latency histogram.
var HistogramDefs = []HistogramDef{
	{ID: authgate.MetricVerifyLatency, Name: "authgate_verify_latency_seconds", Help: "VerifyToken latency."},
	{ID: authgate.MetricRefreshLatency, Name: "authgate_refresh_latency_seconds", Help: "RefreshTokens latency."},
}

// HistogramBounds are the upper bounds of the Engine's eight latency buckets.
var HistogramBounds = [8]string{"0.005", "0.01", "0.025", "0.05", "0.1", "0.25", "0.5", "+Inf"}

// HistogramBoundSuffix spells HistogramBounds for instrument names.
var HistogramBoundSuffix = [8]string{"0_005", "0_01", "0_025", "0_05", "0_1", "0_25", "0_5", "inf"}

// NormalizeBuckets pads or truncates raw to eight buckets.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	copy(out[:], raw)
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var (
		out     [8]uint64
		running uint64
	)
	for i, v := range raw {
		running += v
		out[i] = running
	}
	return out
}
