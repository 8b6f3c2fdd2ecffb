package exuberant

import (
	"sync/atomic"
	"time"
)

// MetricID names one engine counter or histogram.
type MetricID uint16

const (
	// MetricRegisterCodeSent counts verification codes dispatched.
	MetricRegisterCodeSent MetricID = iota
	// MetricRegisterCodeFailed counts failed code dispatch attempts.
	MetricRegisterCodeFailed
	// MetricRegisterVerified counts successful code verifications.
	MetricRegisterVerified
	// MetricRegisterVerifyFailed counts wrong or expired codes.
	MetricRegisterVerifyFailed
	// MetricRegisterFinalized counts accounts created.
	MetricRegisterFinalized
	// MetricRegisterDuplicate counts finalize attempts against existing accounts.
	MetricRegisterDuplicate
	// MetricLoginSuccess counts successful password logins.
	MetricLoginSuccess
	// MetricLoginFailure counts rejected credentials.
	MetricLoginFailure
	// MetricLoginBanned counts logins rejected for banned accounts.
	MetricLoginBanned
	// MetricTwoFactorRequired counts logins deferred to a second factor.
	MetricTwoFactorRequired
	// MetricTwoFactorSuccess counts completed second-factor challenges.
	MetricTwoFactorSuccess
	// MetricTwoFactorFailure counts failed second-factor challenges.
	MetricTwoFactorFailure
	// MetricLogout counts explicit session terminations.
	MetricLogout
	// MetricSessionCreated counts sessions issued.
	MetricSessionCreated
	// MetricResolveSuccess counts token resolutions that found a live session.
	MetricResolveSuccess
	// MetricResolveFailure counts resolutions of unknown or expired tokens.
	MetricResolveFailure
	// MetricRateLimitHit counts requests rejected by any bucket.
	MetricRateLimitHit
	// MetricCredentialUpgraded counts password records rehashed on login.
	MetricCredentialUpgraded
	// MetricAccountBanned counts administrative bans applied.
	MetricAccountBanned
	// MetricProfileUpdated counts profile mutations applied.
	MetricProfileUpdated
	// MetricThreadOpened counts conversations opened or reopened.
	MetricThreadOpened
	// MetricMessageSent counts messages appended to threads.
	MetricMessageSent
	// MetricMessageEdited counts in-place message edits.
	MetricMessageEdited
	// MetricMessageDeleted counts message tombstones written.
	MetricMessageDeleted
	// MetricResolveLatency is the session resolution latency histogram.
	MetricResolveLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

// paddedCounter keeps hot counters on separate cache lines.
type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics holds the engine's in-process counters. All methods are safe for
// concurrent use; a nil *Metrics is a valid no-op sink.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of every counter and histogram,
// suitable for handing to an exporter.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics builds a metrics sink from its configuration section.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

// Enabled reports whether counters are being recorded.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// LatencyEnabled reports whether latency histograms are being recorded.
func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc adds one to the counter behind id.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records one latency sample. Only [MetricResolveLatency] carries a
// histogram; other ids are ignored.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id >= metricIDCount {
		return
	}
	if id != MetricResolveLatency {
		return
	}

	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

// Value reads one counter.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies every counter and histogram. A disabled sink returns
// empty maps, never nil ones.
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
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricResolveLatency].buckets[i])
		}
		s.Histograms[MetricResolveLatency] = buckets
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
