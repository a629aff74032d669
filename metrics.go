package goSession

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one counter or histogram in [Metrics].
type MetricID uint16

const (
	// MetricSessionCreated counts successful CreateSession calls.
	MetricSessionCreated MetricID = iota
	// MetricSessionCreateFailed counts CreateSession calls that returned an error.
	MetricSessionCreateFailed
	// MetricSessionEvicted counts cap-driven evictions.
	MetricSessionEvicted
	// MetricEvictionFailure counts evictions that could not delete the oldest session.
	MetricEvictionFailure
	// MetricSessionValidated counts successful ValidateSession calls.
	MetricSessionValidated
	// MetricSessionRejected counts ValidateSession calls that returned absent.
	MetricSessionRejected
	// MetricSessionRefreshed counts access-token reissues, transparent or explicit.
	MetricSessionRefreshed
	// MetricSessionDestroyed counts records removed by DestroySession and DestroyAllUserSessions.
	MetricSessionDestroyed
	// MetricSessionsSwept counts records removed by expiry cleanup.
	MetricSessionsSwept
	// MetricSecurityCheckFailed counts validator rejections.
	MetricSecurityCheckFailed
	// MetricTokenRejected counts bearer tokens that failed verification or binding.
	MetricTokenRejected
	// MetricStorageFailure counts repository errors, timeouts included.
	MetricStorageFailure
	// MetricValidateLatency is the ValidateSession latency histogram.
	MetricValidateLatency
	metricIDCount
)

var metricNames = [metricIDCount]string{
	MetricSessionCreated:      "session_created",
	MetricSessionCreateFailed: "session_create_failed",
	MetricSessionEvicted:      "session_evicted",
	MetricEvictionFailure:     "eviction_failure",
	MetricSessionValidated:    "session_validated",
	MetricSessionRejected:     "session_rejected",
	MetricSessionRefreshed:    "session_refreshed",
	MetricSessionDestroyed:    "session_destroyed",
	MetricSessionsSwept:       "sessions_swept",
	MetricSecurityCheckFailed: "security_check_failed",
	MetricTokenRejected:       "token_rejected",
	MetricStorageFailure:      "storage_failure",
	MetricValidateLatency:     "validate_latency",
}

// String returns the snake_case metric name used by exporters.
func (id MetricID) String() string {
	if id >= metricIDCount {
		return "unknown"
	}
	return metricNames[id]
}

// MetricIDCount is the number of defined metric ids.
const MetricIDCount = int(metricIDCount)

// HistogramBucketBounds are the inclusive upper bounds of the latency buckets;
// the last bucket is unbounded.
var HistogramBucketBounds = [histBucketCount - 1]time.Duration{
	5 * time.Millisecond,
	10 * time.Millisecond,
	25 * time.Millisecond,
	50 * time.Millisecond,
	100 * time.Millisecond,
	250 * time.Millisecond,
	500 * time.Millisecond,
}

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics is a fixed set of lock-free counters and one latency histogram.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of every counter.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics allocates the counter set.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc adds one to id. Safe for concurrent use.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Add adds n to id.
func (m *Metrics) Add(id MetricID, n uint64) {
	if m == nil || !m.enabled || id >= metricIDCount || n == 0 {
		return
	}
	atomic.AddUint64(&m.counters[id].value, n)
}

// Observe records d in the histogram of id. Only MetricValidateLatency has one.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id >= metricIDCount {
		return
	}
	if id != MetricValidateLatency {
		return
	}

	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies all counters. Each value is read atomically, the set as a whole is not.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricValidateLatency].buckets[i])
		}
		s.Histograms[MetricValidateLatency] = buckets
	}

	return s
}

func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 5:
		return 0
	case ms <= 10:
		return 1
	case ms <= 25:
		return 2
	case ms <= 50:
		return 3
	case ms <= 100:
		return 4
	case ms <= 250:
		return 5
	case ms <= 500:
		return 6
	default:
		return 7
	}
}
