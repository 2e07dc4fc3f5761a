package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"book-replay-go/detect"
	"book-replay-go/infrastructure/logger"
)

// AppConfig holds the main runtime configuration.
type AppConfig struct {
	Env         string         `yaml:"env"`
	Symbol      string         `yaml:"symbol"`
	Feed        FeedConfig     `yaml:"feed"`
	Archive     ArchiveConfig  `yaml:"archive"`
	Tier        TierConfig     `yaml:"tier"`
	Playback    PlaybackConfig `yaml:"playback"`
	Detector    detect.Config  `yaml:"detector"`
	Events      EventsConfig   `yaml:"events"`
	Logger      logger.Config  `yaml:"logger"`
	MetricsAddr string         `yaml:"metricsAddr"`
}

// FeedConfig 实时行情流参数。
type FeedConfig struct {
	Endpoint      string `yaml:"endpoint"`      // WS 端点，留空用默认
	SnapshotDepth int    `yaml:"snapshotDepth"` // 每侧快照保留档数，0 为全部
}

// ArchiveConfig 快照存档参数。
type ArchiveConfig struct {
	RingCapacity   int `yaml:"ringCapacity"`   // 环形缓冲容量
	HighWater      int `yaml:"highWater"`      // 触发下沉的水位
	OffloadBatch   int `yaml:"offloadBatch"`   // 每批下沉条数
	CadenceMs      int `yaml:"cadenceMs"`      // 采样周期（毫秒）
	QueryTimeoutMs int `yaml:"queryTimeoutMs"` // 持久层查询超时
}

// TierConfig 持久层（Redis）参数；RedisURL 留空时退化为内存实现。
type TierConfig struct {
	RedisURL      string `yaml:"redisURL"`
	RedisPassword string `yaml:"redisPassword"`
	Key           string `yaml:"key"`
	MaxRows       int64  `yaml:"maxRows"`
}

// PlaybackConfig 回放参数。
type PlaybackConfig struct {
	TickMs         int `yaml:"tickMs"`         // 游标推进周期
	RangeRefreshMs int `yaml:"rangeRefreshMs"` // 可用范围刷新周期
	LevelRefreshMs int `yaml:"levelRefreshMs"` // 关键位重算周期
}

// EventsConfig 事件存储参数。
type EventsConfig struct {
	MaxAgeMinutes int     `yaml:"maxAgeMinutes"`
	MaxCount      int     `yaml:"maxCount"`
	CooldownMs    int     `yaml:"cooldownMs"`
	PriceBucket   float64 `yaml:"priceBucket"`
}

// Default 返回带全部默认值的配置。
func Default() AppConfig {
	return AppConfig{
		Env:    "dev",
		Symbol: "BTCUSDT",
		Feed:   FeedConfig{SnapshotDepth: 20},
		Archive: ArchiveConfig{
			RingCapacity:   6000,
			HighWater:      5500,
			OffloadBatch:   1000,
			CadenceMs:      100,
			QueryTimeoutMs: 3000,
		},
		Tier: TierConfig{Key: "book:snapshots", MaxRows: 100_000},
		Playback: PlaybackConfig{
			TickMs:         50,
			RangeRefreshMs: 1000,
			LevelRefreshMs: 30_000,
		},
		Detector: detect.DefaultConfig(),
		Events: EventsConfig{
			MaxAgeMinutes: 60,
			MaxCount:      1000,
			CooldownMs:    5000,
			PriceBucket:   1,
		},
		Logger:      logger.DefaultConfig(),
		MetricsAddr: ":9100",
	}
}

// Load reads YAML config from path over the defaults and applies validation.
func Load(path string) (AppConfig, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadWithEnvOverrides loads config then overrides sensitive fields from env vars if present.
func LoadWithEnvOverrides(path string) (AppConfig, error) {
	cfg, err := Load(path)
	if err != nil {
		return cfg, err
	}
	if v := os.Getenv("BR_REDIS_URL"); v != "" {
		cfg.Tier.RedisURL = v
	}
	if v := os.Getenv("BR_REDIS_PASSWORD"); v != "" {
		cfg.Tier.RedisPassword = v
	}
	if v := os.Getenv("BR_FEED_ENDPOINT"); v != "" {
		cfg.Feed.Endpoint = v
	}
	return cfg, Validate(cfg)
}

// Validate ensures required fields are present and consistent.
func Validate(cfg AppConfig) error {
	if cfg.Env == "" {
		return errors.New("env is required")
	}
	if cfg.Symbol == "" {
		return errors.New("symbol is required")
	}
	if cfg.Archive.RingCapacity <= 0 {
		return errors.New("archive.ringCapacity must be > 0")
	}
	if cfg.Archive.HighWater <= 0 || cfg.Archive.HighWater > cfg.Archive.RingCapacity {
		return errors.New("archive.highWater must be in (0, ringCapacity]")
	}
	if cfg.Archive.OffloadBatch <= 0 {
		return errors.New("archive.offloadBatch must be > 0")
	}
	if cfg.Archive.CadenceMs <= 0 {
		return errors.New("archive.cadenceMs must be > 0")
	}
	if cfg.Tier.MaxRows <= 0 {
		return errors.New("tier.maxRows must be > 0")
	}
	if cfg.Playback.TickMs <= 0 {
		return errors.New("playback.tickMs must be > 0")
	}
	if cfg.Playback.RangeRefreshMs <= 0 || cfg.Playback.LevelRefreshMs <= 0 {
		return errors.New("playback refresh intervals must be > 0")
	}
	if err := cfg.Detector.Validate(); err != nil {
		return fmt.Errorf("detector: %w", err)
	}
	if cfg.Events.MaxAgeMinutes <= 0 || cfg.Events.MaxCount <= 0 {
		return errors.New("events.maxAgeMinutes/maxCount must be > 0")
	}
	if cfg.Events.CooldownMs <= 0 {
		return errors.New("events.cooldownMs must be > 0")
	}
	if cfg.Events.PriceBucket <= 0 {
		return errors.New("events.priceBucket must be > 0")
	}
	if cfg.Feed.SnapshotDepth < 0 {
		return errors.New("feed.snapshotDepth must be >= 0")
	}
	return nil
}
