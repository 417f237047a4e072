package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RedisErrorRate counts Redis errors by operation type.
	RedisErrorRate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wavely_redis_error_rate_total",
		Help: "Total number of Redis errors by operation type",
	}, []string{"operation"})

	// CacheLookups counts read-through cache lookups by key family and result.
	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wavely_cache_lookups_total",
		Help: "Read-through cache lookups by key family and result",
	}, []string{"family", "result"})

	// DatabaseQueryLatency records store latency by operation and collection.
	DatabaseQueryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "wavely_database_query_latency_seconds",
		Help:    "Database query latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "table"})

	// WaveMutations counts document mutations by kind and outcome.
	WaveMutations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wavely_wave_mutations_total",
		Help: "Total wave document mutations by kind and outcome",
	}, []string{"kind", "outcome"})

	// VersionConflicts counts optimistic-concurrency retries.
	VersionConflicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wavely_wave_version_conflicts_total",
		Help: "Total version conflicts hit while writing wave documents",
	}, []string{"kind"})

	// WebSocketConnectionsTotal is the gauge of active feed connections.
	WebSocketConnectionsTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "wavely_websocket_connections_total",
		Help: "Total number of active WebSocket connections",
	})

	// WebSocketEventsTotal counts WebSocket events by type.
	WebSocketEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wavely_websocket_events_total",
		Help: "Total WebSocket events by type",
	}, []string{"event_type"})

	// WebSocketBackpressureDrops counts messages dropped due to backpressure by hub and reason.
	WebSocketBackpressureDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wavely_websocket_backpressure_drops_total",
		Help: "Total number of WebSocket messages dropped due to backpressure",
	}, []string{"hub", "reason"})

	// NotificationsSent counts delivered notifications by channel.
	NotificationsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wavely_notifications_sent_total",
		Help: "Total notifications delivered by channel",
	}, []string{"channel", "type"})

	// MediaUploadBytes records accepted upload sizes by purpose.
	MediaUploadBytes = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "wavely_media_upload_bytes",
		Help:    "Size of accepted media uploads in bytes",
		Buckets: prometheus.ExponentialBuckets(16*1024, 4, 6),
	}, []string{"purpose"})
)

// TrackQuery returns a function that records query latency when called (e.g. defer).
func TrackQuery(operation, table string) func() {
	start := time.Now()
	return func() {
		DatabaseQueryLatency.WithLabelValues(operation, table).Observe(time.Since(start).Seconds())
	}
}
