package container

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"book-replay-go/archive"
	"book-replay-go/config"
	"book-replay-go/detect"
	"book-replay-go/events"
	"book-replay-go/gateway"
	"book-replay-go/infrastructure/logger"
	"book-replay-go/internal/engine"
	"book-replay-go/market"
	"book-replay-go/playback"
)

// Options 容器构建选项
type Options struct {
	DisableFeed bool // 不接行情流，仅回放已有存档
}

// Container 依赖注入容器，管理所有组件的生命周期
type Container struct {
	cfg  *config.AppConfig
	opts Options

	// 基础设施
	logger *logger.Logger

	// 核心组件
	tier       archive.Tier
	archive    *archive.Archive
	book       *market.OrderBook
	detector   *detect.Worker
	events     *events.Store
	publisher  *events.Publisher
	controller *playback.Controller
	feed       *gateway.FeedClient
	engine     *engine.ReplayEngine

	// HTTP服务器
	metricsServer *http.Server

	// 生命周期管理
	lifecycle *LifecycleManager
}

// New 创建新的Container实例
func New(configPath string, opts Options) (*Container, error) {
	cfg, err := config.LoadWithEnvOverrides(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}

	return &Container{
		cfg:       &cfg,
		opts:      opts,
		lifecycle: NewLifecycleManager(),
	}, nil
}

// Build 构建所有组件
func (c *Container) Build() error {
	if err := c.buildInfrastructure(); err != nil {
		return fmt.Errorf("build infrastructure failed: %w", err)
	}

	if err := c.buildStorage(); err != nil {
		return fmt.Errorf("build storage failed: %w", err)
	}

	if err := c.buildCorePipeline(); err != nil {
		return fmt.Errorf("build core pipeline failed: %w", err)
	}

	c.registerLifecycleComponents()
	c.logger.Info("container built successfully")
	return nil
}

func (c *Container) buildInfrastructure() error {
	var err error
	c.logger, err = logger.New(c.cfg.Logger)
	if err != nil {
		return fmt.Errorf("create logger failed: %w", err)
	}

	c.logger.Info("infrastructure built")
	return nil
}

// buildStorage 持久层：配了 Redis 就用 Redis，否则退化为内存实现
func (c *Container) buildStorage() error {
	klog := c.logger.KV()

	if c.cfg.Tier.RedisURL != "" {
		rt, err := archive.NewRedisTier(c.cfg.Tier.RedisURL, c.cfg.Tier.RedisPassword, c.cfg.Tier.Key, c.cfg.Tier.MaxRows, klog)
		if err != nil {
			return fmt.Errorf("connect redis failed: %w", err)
		}
		c.tier = rt
	} else {
		klog.Warn("redis not configured, snapshots beyond the ring will live in memory only")
		c.tier = archive.NewMemoryTier(c.cfg.Tier.MaxRows)
	}

	c.archive = archive.New(archive.Config{
		RingCapacity: c.cfg.Archive.RingCapacity,
		HighWater:    c.cfg.Archive.HighWater,
		OffloadBatch: c.cfg.Archive.OffloadBatch,
		QueryTimeout: time.Duration(c.cfg.Archive.QueryTimeoutMs) * time.Millisecond,
	}, c.tier, klog)

	c.logger.Info("storage built")
	return nil
}

func (c *Container) buildCorePipeline() error {
	klog := c.logger.KV()

	c.book = market.NewOrderBook()
	c.detector = detect.NewWorker(c.cfg.Detector, klog)
	c.events = events.NewStore(events.StoreConfig{
		MaxAge:      time.Duration(c.cfg.Events.MaxAgeMinutes) * time.Minute,
		MaxCount:    c.cfg.Events.MaxCount,
		Cooldown:    time.Duration(c.cfg.Events.CooldownMs) * time.Millisecond,
		BucketWidth: c.cfg.Events.PriceBucket,
	}, nil)
	c.publisher = events.NewPublisher()
	c.controller = playback.New(time.Duration(c.cfg.Playback.TickMs)*time.Millisecond, nil)

	if !c.opts.DisableFeed {
		c.feed = gateway.NewFeedClient(c.cfg.Feed.Endpoint, c.cfg.Symbol, klog)
	}

	eng, err := engine.New(engine.Config{
		Symbol:               c.cfg.Symbol,
		SnapshotDepth:        c.cfg.Feed.SnapshotDepth,
		RecordInterval:       time.Duration(c.cfg.Archive.CadenceMs) * time.Millisecond,
		RangeRefreshInterval: time.Duration(c.cfg.Playback.RangeRefreshMs) * time.Millisecond,
		LevelRefreshInterval: time.Duration(c.cfg.Playback.LevelRefreshMs) * time.Millisecond,
	}, engine.Components{
		Feed:      c.feed,
		Book:      c.book,
		Archive:   c.archive,
		Playback:  c.controller,
		Detector:  c.detector,
		Events:    c.events,
		Publisher: c.publisher,
		Logger:    c.logger,
	})
	if err != nil {
		return fmt.Errorf("create engine failed: %w", err)
	}
	c.engine = eng

	c.logger.Info("core pipeline built")
	return nil
}

func (c *Container) registerLifecycleComponents() {
	if c.cfg.MetricsAddr != "" {
		c.lifecycle.Register(&httpServerComponent{
			name:    "metrics_server",
			handler: promhttp.Handler(),
			addr:    c.cfg.MetricsAddr,
			logger:  c.logger,
			server:  &c.metricsServer,
		})
	}
	c.lifecycle.Register(&engineComponent{engine: c.engine})
}

// Start 启动容器内所有组件
func (c *Container) Start(ctx context.Context) error {
	c.logger.Info("starting container...")

	if err := c.lifecycle.StartAll(ctx); err != nil {
		return fmt.Errorf("start failed: %w", err)
	}

	c.logger.Info("container started")
	return nil
}

// Stop 逆序停止组件并释放持久层连接
func (c *Container) Stop() error {
	c.logger.Info("stopping container...")

	err := c.lifecycle.StopAll()
	if err != nil {
		c.logger.LogError(err, map[string]interface{}{"action": "stop"})
	}

	if rt, ok := c.tier.(*archive.RedisTier); ok {
		if cerr := rt.Close(); cerr != nil {
			c.logger.LogError(cerr, map[string]interface{}{"action": "close_tier"})
		}
	}

	if c.logger != nil {
		c.logger.Close()
	}

	return err
}

// HealthCheck 检查组件健康状态
func (c *Container) HealthCheck() error {
	return c.lifecycle.CheckHealth()
}

// Config 当前生效配置
func (c *Container) Config() config.AppConfig { return *c.cfg }

// Engine 回放引擎
func (c *Container) Engine() *engine.ReplayEngine { return c.engine }

// Detector 检测 worker（热更新参数用）
func (c *Container) Detector() *detect.Worker { return c.detector }

// Playback 回放控制器
func (c *Container) Playback() *playback.Controller { return c.controller }

// Events 事件存储
func (c *Container) Events() *events.Store { return c.events }

// Publisher 事件广播
func (c *Container) Publisher() *events.Publisher { return c.publisher }

// Logger 结构化日志器
func (c *Container) Logger() *logger.Logger { return c.logger }

// engineComponent 把引擎接入生命周期管理
type engineComponent struct {
	engine *engine.ReplayEngine
}

func (e *engineComponent) Start(ctx context.Context) error {
	return e.engine.Start(ctx)
}

func (e *engineComponent) Stop() error {
	return e.engine.Stop()
}

func (e *engineComponent) Health() error {
	state := e.engine.GetState()
	if state != engine.StateRunning && state != engine.StatePaused {
		return fmt.Errorf("engine not running (state: %s)", state)
	}
	return nil
}
