package authkit

import (
	"sync/atomic"
	"time"
)

// MetricID identifies an engine counter.
//
// MetricID values are stable for the lifetime of a build; exporters map them
// to names through [metrics/export/internaldefs].
type MetricID uint16

const (
	// MetricLoginSuccess counts sign-ins that installed a session.
	MetricLoginSuccess MetricID = iota
	// MetricLoginFailure counts sign-ins rejected or answered unusably.
	MetricLoginFailure
	// MetricRefreshSuccess counts refresh attempts that produced a credential.
	MetricRefreshSuccess
	// MetricRefreshFailure counts refresh attempts that failed.
	MetricRefreshFailure
	// MetricRefreshSuperseded counts refresh results discarded by a newer
	// sign-in or sign-out.
	MetricRefreshSuperseded
	// MetricInitAuthenticated counts resolutions ending authenticated.
	MetricInitAuthenticated
	// MetricInitAnonymous counts resolutions ending anonymous.
	MetricInitAnonymous
	// MetricUnauthorized counts 401 responses on non-auth calls.
	MetricUnauthorized
	// MetricRetrySuccess counts requests recovered after a refresh.
	MetricRetrySuccess
	// MetricRetryFailure counts 401s the refresh path could not recover.
	MetricRetryFailure
	// MetricPermissionFetch counts warehouse capability fetches.
	MetricPermissionFetch
	// MetricPermissionCacheHit counts capability reads served from memory.
	MetricPermissionCacheHit
	// MetricPermissionFailure counts failed capability fetches.
	MetricPermissionFailure
	// MetricSystemPermissionFetch counts system descriptor reads.
	MetricSystemPermissionFetch
	// MetricLogout counts completed sign-outs.
	MetricLogout
	// MetricLogoutNotifyFailure counts sign-outs whose backend notification
	// failed.
	MetricLogoutNotifyFailure
	// MetricRegistration counts successful sign-ups.
	MetricRegistration
	// MetricAPILatency is the request latency histogram.
	MetricAPILatency
	metricIDCount
)

// MetricIDCount is the number of defined metric IDs.
const MetricIDCount = int(metricIDCount)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

// HistogramBounds are the inclusive upper bounds, in milliseconds, of every
// bucket except the last.
var HistogramBounds = [histBucketCount - 1]int64{5, 10, 25, 50, 100, 250, 500}

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics holds lock-free engine counters.
//
// Metrics instances are created by the builder and shared by every engine
// component; all methods are safe for concurrent use and on a nil receiver.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of all counters.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics describes the newmetrics operation and its observable behavior.
//
// NewMetrics returns a collector honoring cfg. Latency histograms are only
// recorded when counters are enabled as well.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

// Enabled reports whether counters are recorded.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// LatencyEnabled reports whether latency histograms are recorded.
func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc describes the inc operation and its observable behavior.
//
// Inc adds one to the counter for id. Unknown IDs and disabled collectors
// are ignored.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records d into the histogram for id. Only [MetricAPILatency]
// carries a histogram.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id >= metricIDCount {
		return
	}
	if id != MetricAPILatency {
		return
	}

	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

// Value returns the current counter for id.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot describes the snapshot operation and its observable behavior.
//
// Snapshot copies every counter and, when enabled, the latency buckets. A
// disabled collector yields empty maps.
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
		if id == MetricAPILatency {
			continue
		}
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricAPILatency].buckets[i])
		}
		s.Histograms[MetricAPILatency] = buckets
	}

	return s
}

func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()
	for i, bound := range HistogramBounds {
		if ms <= bound {
			return i
		}
	}
	return histBucketCount - 1
}
