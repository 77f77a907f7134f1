// Package metrics provides Prometheus metrics for the collector service.
//
// A Manager is constructed once at startup and handed to each component;
// no package-level counters exist. Every Prometheus series is mirrored in
// an atomic counter so GET /stats can return a plain JSON snapshot without
// scraping the registry.
package metrics

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Manager owns all Prometheus metrics for the collector.
type Manager struct {
	namespace string
	subsystem string
	registry  *prometheus.Registry

	ingestReceived  prometheus.Counter
	ingestOK        prometheus.Counter
	ingestInvalid   prometheus.Counter
	privacyRedacted prometheus.Counter
	privacyDenied   prometheus.Counter
	priorityTotal   *prometheus.CounterVec
	storeInsertOK   prometheus.Counter
	storeInsertFail prometheus.Counter
	pipelineDropped *prometheus.CounterVec
	queueDepth      prometheus.Gauge
	dbSizeBytes     prometheus.Gauge
	flushLatency    prometheus.Histogram

	// atomic mirrors backing Snapshot
	cIngestReceived  atomic.Int64
	cIngestOK        atomic.Int64
	cIngestInvalid   atomic.Int64
	cPrivacyRedacted atomic.Int64
	cPrivacyDenied   atomic.Int64
	cStoreInsertOK   atomic.Int64
	cStoreInsertFail atomic.Int64
	cDropped         atomic.Int64
	cQueueDepth      atomic.Int64

	mu          sync.Mutex
	cPriority   map[string]int64
	cDropReason map[string]int64
	lastEventTS string
}

// NewManager creates a metrics manager with its own registry.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:   "collector",
		subsystem:   "pipeline",
		registry:    prometheus.NewRegistry(),
		cPriority:   make(map[string]int64),
		cDropReason: make(map[string]int64),
	}

	for _, opt := range opts {
		opt(m)
	}

	auto := promauto.With(m.registry)

	m.ingestReceived = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "ingest_received_total",
		Help: "Total events received on the ingest endpoint",
	})
	m.ingestOK = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "ingest_ok_total",
		Help: "Total events accepted into the queue",
	})
	m.ingestInvalid = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "ingest_invalid_total",
		Help: "Total events rejected for schema reasons",
	})
	m.privacyRedacted = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "privacy_redacted_total",
		Help: "Total envelopes with at least one redaction rule applied",
	})
	m.privacyDenied = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "privacy_denied_total",
		Help: "Total envelopes matched by the app deny list",
	})
	m.priorityTotal = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "priority_total",
		Help: "Stored events by priority tier",
	}, []string{"tier"})
	m.storeInsertOK = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "store_insert_ok_total",
		Help: "Total ledger rows durably inserted",
	})
	m.storeInsertFail = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "store_insert_fail_total",
		Help: "Total ledger rows that failed after retry",
	})
	m.pipelineDropped = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "dropped_total",
		Help: "Events dropped before persistence, by reason",
	}, []string{"reason"})
	m.queueDepth = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "queue_depth",
		Help: "Current ingest queue depth",
	})
	m.dbSizeBytes = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "db_size_bytes",
		Help: "Size of the event store database file",
	})
	m.flushLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name:    "store_flush_latency_milliseconds",
		Help:    "Histogram of batch flush latency in milliseconds",
		Buckets: prometheus.DefBuckets,
	})

	return m
}

// Handler exposes the manager's registry for Prometheus scraping.
func (m *Manager) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordIngestReceived counts events arriving on the transport.
func (m *Manager) RecordIngestReceived(n int) {
	m.ingestReceived.Add(float64(n))
	m.cIngestReceived.Add(int64(n))
}

// RecordIngestOK counts events accepted into the queue.
func (m *Manager) RecordIngestOK(n int) {
	m.ingestOK.Add(float64(n))
	m.cIngestOK.Add(int64(n))
}

// RecordIngestInvalid counts schema rejections. The event is also a drop.
func (m *Manager) RecordIngestInvalid() {
	m.ingestInvalid.Inc()
	m.cIngestInvalid.Add(1)
	m.RecordDrop("schema")
}

// RecordDrop counts one dropped event under the given reason.
func (m *Manager) RecordDrop(reason string) {
	m.pipelineDropped.WithLabelValues(reason).Inc()
	m.cDropped.Add(1)
	m.mu.Lock()
	m.cDropReason[reason]++
	m.mu.Unlock()
}

// RecordPriority counts one stored event for its tier.
func (m *Manager) RecordPriority(tier string) {
	if tier == "" {
		return
	}
	m.priorityTotal.WithLabelValues(tier).Inc()
	m.mu.Lock()
	m.cPriority[tier]++
	m.mu.Unlock()
}

// RecordPrivacyRedacted counts an envelope with redactions applied.
func (m *Manager) RecordPrivacyRedacted() {
	m.privacyRedacted.Inc()
	m.cPrivacyRedacted.Add(1)
}

// RecordPrivacyDenied counts a denylist hit. Whether the event is also
// dropped depends on the configured deny action, so the caller records
// the drop separately.
func (m *Manager) RecordPrivacyDenied() {
	m.privacyDenied.Inc()
	m.cPrivacyDenied.Add(1)
}

// RecordStoreInsertOK counts one durably inserted ledger row.
func (m *Manager) RecordStoreInsertOK() {
	m.storeInsertOK.Inc()
	m.cStoreInsertOK.Add(1)
}

// RecordStoreInsertFail counts one row lost to a persistent write failure.
func (m *Manager) RecordStoreInsertFail() {
	m.storeInsertFail.Inc()
	m.cStoreInsertFail.Add(1)
	m.RecordDrop("store_fail")
}

// RecordFlushLatency observes one batch flush duration.
func (m *Manager) RecordFlushLatency(d time.Duration) {
	m.flushLatency.Observe(float64(d.Milliseconds()))
}

// UpdateQueueDepth sets the current queue depth gauge.
func (m *Manager) UpdateQueueDepth(n int) {
	m.queueDepth.Set(float64(n))
	m.cQueueDepth.Store(int64(n))
}

// UpdateDBSize sets the database size gauge.
func (m *Manager) UpdateDBSize(bytes int64) {
	m.dbSizeBytes.Set(float64(bytes))
}

// SetLastEventTS records the timestamp of the most recent stored event.
func (m *Manager) SetLastEventTS(ts time.Time) {
	if ts.IsZero() {
		return
	}
	m.mu.Lock()
	m.lastEventTS = ts.UTC().Format(time.RFC3339Nano)
	m.mu.Unlock()
}

// Snapshot returns the counter state served by GET /stats.
func (m *Manager) Snapshot(dbSizeBytes int64) map[string]any {
	m.mu.Lock()
	priority := make(map[string]int64, len(m.cPriority))
	for k, v := range m.cPriority {
		priority[k] = v
	}
	dropReasons := make(map[string]int64, len(m.cDropReason))
	for k, v := range m.cDropReason {
		dropReasons[k] = v
	}
	lastTS := m.lastEventTS
	m.mu.Unlock()

	return map[string]any{
		"ingest.received_total":   m.cIngestReceived.Load(),
		"ingest.ok_total":         m.cIngestOK.Load(),
		"ingest.invalid_total":    m.cIngestInvalid.Load(),
		"privacy.redacted_total":  m.cPrivacyRedacted.Load(),
		"privacy.denied_total":    m.cPrivacyDenied.Load(),
		"priority":                priority,
		"store.insert_ok_total":   m.cStoreInsertOK.Load(),
		"store.insert_fail_total": m.cStoreInsertFail.Load(),
		"pipeline.dropped_total":  m.cDropped.Load(),
		"drop_reasons":            dropReasons,
		"queue.depth":             m.cQueueDepth.Load(),
		"db_size_bytes":           dbSizeBytes,
		"last_event_ts":           lastTS,
	}
}
