package internaldefs

import (
	"strconv"

	goSession "github.com/MrEthical07/goSession"
)

// CounterDef names one exported counter.
type CounterDef struct {
	ID   goSession.MetricID
	Name string
	Help string
}

// HistogramDef names one exported histogram.
type HistogramDef struct {
	ID   goSession.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: goSession.MetricSessionCreated, Name: "gosession_session_created_total", Help: "Created sessions."},
	{ID: goSession.MetricSessionCreateFailed, Name: "gosession_session_create_failed_total", Help: "Failed session creations."},
	{ID: goSession.MetricSessionEvicted, Name: "gosession_session_evicted_total", Help: "Sessions evicted by the per-user concurrency cap."},
	{ID: goSession.MetricEvictionFailure, Name: "gosession_eviction_failure_total", Help: "Evictions that could not delete the oldest session."},
	{ID: goSession.MetricSessionValidated, Name: "gosession_session_validated_total", Help: "Successful session validations."},
	{ID: goSession.MetricSessionRejected, Name: "gosession_session_rejected_total", Help: "Rejected session validations."},
	{ID: goSession.MetricSessionRefreshed, Name: "gosession_session_refreshed_total", Help: "Access tokens reissued by refresh."},
	{ID: goSession.MetricSessionDestroyed, Name: "gosession_session_destroyed_total", Help: "Sessions removed by destroy or rejection."},
	{ID: goSession.MetricSessionsSwept, Name: "gosession_sessions_swept_total", Help: "Expired sessions removed by cleanup."},
	{ID: goSession.MetricSecurityCheckFailed, Name: "gosession_security_check_failed_total", Help: "Sessions rejected by the security validator."},
	{ID: goSession.MetricTokenRejected, Name: "gosession_token_rejected_total", Help: "Bearer tokens that failed verification or binding."},
	{ID: goSession.MetricStorageFailure, Name: "gosession_storage_failure_total", Help: "Repository errors, timeouts included."},
}

var HistogramDefs = []HistogramDef{
	{ID: goSession.MetricValidateLatency, Name: "gosession_validate_latency_seconds", Help: "ValidateSession latency histogram."},
}

// AuditDroppedName is the counter of audit events lost to backpressure.
const (
	AuditDroppedName = "gosession_audit_dropped_total"
	AuditDroppedHelp = "Dropped audit events due to dispatcher backpressure."
)

// BucketCount includes the unbounded last bucket.
const BucketCount = len(goSession.HistogramBucketBounds) + 1

// HistogramBoundsSeconds are the finite upper bounds in seconds.
func HistogramBoundsSeconds() []float64 {
	out := make([]float64, 0, len(goSession.HistogramBucketBounds))
	for _, d := range goSession.HistogramBucketBounds {
		out = append(out, d.Seconds())
	}
	return out
}

// HistogramBoundLabels are the `le` label values of each bucket, "+Inf" last.
func HistogramBoundLabels() [BucketCount]string {
	var out [BucketCount]string
	for i, b := range HistogramBoundsSeconds() {
		out[i] = strconv.FormatFloat(b, 'g', -1, 64)
	}
	out[BucketCount-1] = "+Inf"
	return out
}

// NormalizeBuckets pads or truncates raw to BucketCount entries.
func NormalizeBuckets(raw []uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

func CumulativeBuckets(raw [BucketCount]uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
