package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"book-replay-go/archive"
	"book-replay-go/detect"
	"book-replay-go/events"
	"book-replay-go/gateway"
	"book-replay-go/infrastructure/logger"
	"book-replay-go/market"
	"book-replay-go/metrics"
	"book-replay-go/monitor/logschema"
	"book-replay-go/playback"
)

// EngineState 引擎状态
type EngineState int

const (
	// StateIdle 空闲状态
	StateIdle EngineState = iota
	// StateRunning 运行状态
	StateRunning
	// StatePaused 暂停状态（停止采样，行情与回放继续）
	StatePaused
	// StateStopped 停止状态
	StateStopped
)

// String 返回状态名称
func (s EngineState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateRunning:
		return "RUNNING"
	case StatePaused:
		return "PAUSED"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// Config 引擎配置
type Config struct {
	Symbol               string        // 交易对
	SnapshotDepth        int           // 每侧快照保留档数，0 为全部
	RecordInterval       time.Duration // 采样周期
	RangeRefreshInterval time.Duration // 可用时间范围刷新周期
	LevelRefreshInterval time.Duration // 关键位重算周期
	LevelWindow          time.Duration // 关键位计算回看窗口
	FeedRedialBackoff    time.Duration // 行情断线重连间隔
}

// Components 引擎依赖组件
type Components struct {
	Feed      *gateway.FeedClient
	Book      *market.OrderBook
	Archive   *archive.Archive
	Playback  *playback.Controller
	Detector  *detect.Worker
	Events    *events.Store
	Publisher *events.Publisher
	Logger    *logger.Logger
}

// ReplayEngine 把行情流、订单簿、快照存档、回放控制和事件检测串成一条流水线。
//
// 采样循环按固定节奏对订单簿拍快照：一份进存档，一份交给检测 worker。
// 行情断线后由引擎负责重拨；回放游标由 playback.Controller 自行推进。
type ReplayEngine struct {
	config Config

	feed      *gateway.FeedClient
	book      *market.OrderBook
	archive   *archive.Archive
	playback  *playback.Controller
	detector  *detect.Worker
	events    *events.Store
	publisher *events.Publisher
	logger    *logger.Logger

	// 状态
	state EngineState
	mu    sync.RWMutex

	// 控制通道
	cancel   context.CancelFunc
	stopChan chan struct{}
	doneChan chan struct{}

	// 统计信息
	stats Statistics
}

// Statistics 引擎统计信息
type Statistics struct {
	StartTime        time.Time
	TotalSnapshots   int64
	TotalEvents      int64
	TotalErrors      int64
	FeedReconnects   int64
	LastSnapshotTime time.Time
	mu               sync.RWMutex
}

// New 创建回放引擎
func New(cfg Config, components Components) (*ReplayEngine, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if err := validateComponents(components); err != nil {
		return nil, fmt.Errorf("invalid components: %w", err)
	}

	// 设置默认值
	if cfg.RecordInterval <= 0 {
		cfg.RecordInterval = 100 * time.Millisecond
	}
	if cfg.RangeRefreshInterval <= 0 {
		cfg.RangeRefreshInterval = 1 * time.Second
	}
	if cfg.LevelRefreshInterval <= 0 {
		cfg.LevelRefreshInterval = 30 * time.Second
	}
	if cfg.LevelWindow <= 0 {
		cfg.LevelWindow = 10 * time.Second
	}
	if cfg.FeedRedialBackoff <= 0 {
		cfg.FeedRedialBackoff = 3 * time.Second
	}

	return &ReplayEngine{
		config:    cfg,
		feed:      components.Feed,
		book:      components.Book,
		archive:   components.Archive,
		playback:  components.Playback,
		detector:  components.Detector,
		events:    components.Events,
		publisher: components.Publisher,
		logger:    components.Logger,
		state:     StateIdle,
		stopChan:  make(chan struct{}),
		doneChan:  make(chan struct{}),
	}, nil
}

// Start 启动引擎
func (e *ReplayEngine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.state != StateIdle && e.state != StateStopped {
		e.mu.Unlock()
		return fmt.Errorf("engine already started (state: %s)", e.state)
	}
	// 如果从 StateStopped 复启，需要重建通道
	if e.state == StateStopped {
		e.stopChan = make(chan struct{})
		e.doneChan = make(chan struct{})
	}
	e.state = StateRunning
	e.stats.StartTime = time.Now()

	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.mu.Unlock()

	e.logger.Info("Replay engine starting",
		zap.String("symbol", e.config.Symbol),
		zap.Duration("record_interval", e.config.RecordInterval),
		zap.Duration("level_refresh", e.config.LevelRefreshInterval))

	// 检测 worker、回放游标、事件桥各占一个 goroutine
	e.detector.Start(runCtx)
	go e.playback.Run(runCtx)
	go e.bridgeEvents()

	// 行情流（可选：离线回放场景不接流）
	if e.feed != nil {
		go e.feedLoop(runCtx)
	}

	go e.run(runCtx)

	e.logger.Info("Replay engine started")

	return nil
}

// Stop 停止引擎
func (e *ReplayEngine) Stop() error {
	e.mu.Lock()
	if e.state == StateStopped {
		e.mu.Unlock()
		return nil // 幂等：已停止则直接返回
	}
	if e.state != StateRunning && e.state != StatePaused {
		e.mu.Unlock()
		return fmt.Errorf("engine not running (state: %s)", e.state)
	}
	cancel := e.cancel
	e.mu.Unlock()

	e.logger.Info("Replay engine stopping...")

	select {
	case <-e.stopChan:
		// 已关闭，跳过
	default:
		close(e.stopChan)
	}
	if cancel != nil {
		cancel()
	}

	// 等待主循环结束
	select {
	case <-e.doneChan:
	case <-time.After(10 * time.Second):
		e.logger.Warn("Timeout waiting for engine to stop")
	}

	e.mu.Lock()
	e.state = StateStopped
	e.mu.Unlock()

	e.logger.Info("Replay engine stopped")

	return nil
}

// Pause 暂停采样；行情流与回放游标不受影响
func (e *ReplayEngine) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateRunning {
		return fmt.Errorf("engine not running (state: %s)", e.state)
	}

	e.state = StatePaused
	e.logger.Info("Recording paused")

	return nil
}

// Resume 恢复采样
func (e *ReplayEngine) Resume() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StatePaused {
		return fmt.Errorf("engine not paused (state: %s)", e.state)
	}

	e.state = StateRunning
	e.logger.Info("Recording resumed")

	return nil
}

// ClearHistory 清空存档与事件，重置检测器基线
func (e *ReplayEngine) ClearHistory(ctx context.Context) {
	e.archive.ClearAll(ctx)
	e.events.Clear()
	e.detector.Reset()
	e.logger.Info("History cleared")
}

// run 主事件循环
func (e *ReplayEngine) run(ctx context.Context) {
	defer close(e.doneChan)

	recordTicker := time.NewTicker(e.config.RecordInterval)
	defer recordTicker.Stop()

	rangeTicker := time.NewTicker(e.config.RangeRefreshInterval)
	defer rangeTicker.Stop()

	levelTicker := time.NewTicker(e.config.LevelRefreshInterval)
	defer levelTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("Context done, stopping engine")
			return

		case <-e.stopChan:
			e.logger.Info("Stop signal received")
			return

		case <-recordTicker.C:
			e.onRecord()

		case <-rangeTicker.C:
			e.onRangeRefresh(ctx)

		case <-levelTicker.C:
			e.onLevelRefresh(ctx)
		}
	}
}

// onRecord 采样一次订单簿
func (e *ReplayEngine) onRecord() {
	e.mu.RLock()
	state := e.state
	e.mu.RUnlock()

	// 暂停时跳过采样
	if state == StatePaused {
		return
	}

	snap := e.book.Snapshot(time.Now().UnixMilli(), e.config.SnapshotDepth)
	if snap == nil {
		// 订单簿尚未就绪（单边或为空）
		return
	}

	e.archive.Record(snap)
	e.detector.Detect(snap)

	e.stats.mu.Lock()
	e.stats.TotalSnapshots++
	e.stats.LastSnapshotTime = time.Now()
	e.stats.mu.Unlock()

	metrics.PlaybackCursor.Set(float64(e.playback.State().CurrentTimestamp))
}

// onRangeRefresh 把存档的可用时间范围同步给回放控制器
func (e *ReplayEngine) onRangeRefresh(ctx context.Context) {
	start, end, ok := e.archive.TimeRange(ctx)
	if !ok {
		return
	}
	e.playback.RefreshAvailableRange(start, end)
}

// onLevelRefresh 用最近一段快照重算关键价位
func (e *ReplayEngine) onLevelRefresh(ctx context.Context) {
	_, end, ok := e.archive.TimeRange(ctx)
	if !ok {
		return
	}
	window := e.archive.GetSnapshotsInRange(ctx, end-e.config.LevelWindow.Milliseconds(), end)
	if len(window) == 0 {
		return
	}
	e.detector.RecomputeLevels(window)
}

// feedLoop 维持行情连接，断开后按固定间隔重拨
func (e *ReplayEngine) feedLoop(ctx context.Context) {
	for {
		err := e.feed.Run(ctx, e.onBookUpdate)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			e.logger.Warn("Feed disconnected, redialing",
				zap.Error(err),
				zap.Duration("backoff", e.config.FeedRedialBackoff))
			e.recordError()
		}

		metrics.FeedReconnects.Inc()
		e.stats.mu.Lock()
		e.stats.FeedReconnects++
		e.stats.mu.Unlock()

		select {
		case <-ctx.Done():
			return
		case <-time.After(e.config.FeedRedialBackoff):
		}
	}
}

// onBookUpdate 把归一化行情更新写入订单簿
func (e *ReplayEngine) onBookUpdate(u *gateway.BookUpdate) {
	if u.IsSnapshot {
		e.book.ApplySnapshot(u.Bids, u.Asks)
		return
	}
	e.book.ApplyDelta(u.Bids, u.Asks)
}

// bridgeEvents 把检测结果写入事件存储，被去重冷却吞掉的不再广播
func (e *ReplayEngine) bridgeEvents() {
	for batch := range e.detector.Events() {
		for _, ev := range batch {
			if err := logschema.Validate(string(ev.Type), ev.Details); err != nil {
				e.logger.Warn("event details incomplete", zap.Error(err))
			}
			if e.events.Add(ev) == 0 {
				continue
			}
			e.publisher.Publish(ev)

			e.stats.mu.Lock()
			e.stats.TotalEvents++
			e.stats.mu.Unlock()

			e.logger.LogEvent(string(ev.Type), map[string]interface{}{
				"severity": string(ev.Severity),
				"event_ts": ev.Timestamp,
				"id":       ev.ID,
			})
		}
	}
}

// GetSnapshotAt 查询最接近指定时刻的历史快照
func (e *ReplayEngine) GetSnapshotAt(ctx context.Context, ts int64) *market.Snapshot {
	return e.archive.GetSnapshotAt(ctx, ts)
}

// CurrentSnapshot 按回放状态取当前应展示的快照：直播看订单簿，回放查存档
func (e *ReplayEngine) CurrentSnapshot(ctx context.Context) *market.Snapshot {
	st := e.playback.State()
	if st.Mode == playback.ModeLive {
		return e.book.Snapshot(time.Now().UnixMilli(), e.config.SnapshotDepth)
	}
	return e.archive.GetSnapshotAt(ctx, st.CurrentTimestamp)
}

// recordError 记录错误
func (e *ReplayEngine) recordError() {
	e.stats.mu.Lock()
	e.stats.TotalErrors++
	e.stats.mu.Unlock()
}

// GetState 获取引擎状态
func (e *ReplayEngine) GetState() EngineState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// GetStatistics 获取统计信息
func (e *ReplayEngine) GetStatistics() Statistics {
	e.stats.mu.RLock()
	defer e.stats.mu.RUnlock()
	return Statistics{
		StartTime:        e.stats.StartTime,
		TotalSnapshots:   e.stats.TotalSnapshots,
		TotalEvents:      e.stats.TotalEvents,
		TotalErrors:      e.stats.TotalErrors,
		FeedReconnects:   e.stats.FeedReconnects,
		LastSnapshotTime: e.stats.LastSnapshotTime,
	}
}

// GetArchiveStats 获取存档统计
func (e *ReplayEngine) GetArchiveStats(ctx context.Context) archive.Stats {
	return e.archive.GetStats(ctx)
}

// validateConfig 验证配置
func validateConfig(cfg Config) error {
	if cfg.Symbol == "" {
		return errors.New("symbol is required")
	}
	if cfg.SnapshotDepth < 0 {
		return errors.New("snapshot_depth must be >= 0")
	}
	return nil
}

// validateComponents 验证组件
func validateComponents(comp Components) error {
	if comp.Book == nil {
		return errors.New("book is required")
	}
	if comp.Archive == nil {
		return errors.New("archive is required")
	}
	if comp.Playback == nil {
		return errors.New("playback is required")
	}
	if comp.Detector == nil {
		return errors.New("detector is required")
	}
	if comp.Events == nil {
		return errors.New("events store is required")
	}
	if comp.Publisher == nil {
		return errors.New("publisher is required")
	}
	if comp.Logger == nil {
		return errors.New("logger is required")
	}
	return nil
}
