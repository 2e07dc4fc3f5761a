// Package metrics provides Prometheus metrics for the replay engine
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// SnapshotsRecorded 已写入环形缓冲的快照总数
	SnapshotsRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "book_snapshots_recorded_total",
		Help: "Snapshots recorded into the ring buffer",
	})
	// RingSize 环形缓冲当前占用
	RingSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "book_ring_size",
		Help: "Current ring buffer occupancy",
	})
	// PersistedRows 持久层当前行数
	PersistedRows = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "book_persisted_rows",
		Help: "Rows currently stored in the persistent tier",
	})
	// OffloadBatches 成功下沉的批次数
	OffloadBatches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "book_offload_batches_total",
		Help: "Batches successfully offloaded to the persistent tier",
	})
	// TierErrors 持久层读写失败次数（查询已退化为仅缓冲结果）
	TierErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "book_tier_errors_total",
		Help: "Persistent tier operation failures",
	})
	// TierDecodeErrors 持久层单行反序列化失败次数
	TierDecodeErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "book_tier_decode_errors_total",
		Help: "Rows in the persistent tier that failed to decode",
	})

	// EventsEmitted 按类型统计已入库的事件
	EventsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "book_events_emitted_total",
		Help: "Detected events accepted into the event store",
	}, []string{"type"})
	// EventsSuppressed 被冷却窗口拦下的事件
	EventsSuppressed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "book_events_suppressed_total",
		Help: "Events suppressed by the cooldown gate",
	})
	// DetectorDropped 检测队列满导致丢弃的快照数
	DetectorDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "book_detector_dropped_total",
		Help: "Snapshots dropped because the detector worker queue was full",
	})

	// FeedMessages 行情消息总数
	FeedMessages = promauto.NewCounter(prometheus.CounterOpts{
		Name: "book_feed_messages_total",
		Help: "Raw messages received from the live feed",
	})
	// FeedParseErrors 行情消息解析失败数（消息被丢弃）
	FeedParseErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "book_feed_parse_errors_total",
		Help: "Feed messages dropped because they failed to parse",
	})
	// FeedReconnects 行情重连次数
	FeedReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "book_feed_reconnects_total",
		Help: "Live feed reconnect attempts",
	})

	// PlaybackCursor 回放游标位置（毫秒时间戳）
	PlaybackCursor = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "book_playback_cursor_ms",
		Help: "Current playback cursor timestamp in milliseconds",
	})
)

// StartMetricsServer 启动Prometheus指标服务器
func StartMetricsServer(addr string) {
	http.Handle("/metrics", promhttp.Handler())
	go func() {
		_ = http.ListenAndServe(addr, nil)
	}()
}
