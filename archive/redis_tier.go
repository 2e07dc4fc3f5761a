package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"book-replay-go/logs"
	"book-replay-go/market"
	"book-replay-go/metrics"
)

const defaultMaxRows = 100_000

// RedisTier 基于 Redis 有序集合的持久层。
// score = 快照时间戳（毫秒），member = JSON 序列化的快照，
// ZRANGEBYSCORE 天然提供按时间范围扫描，ZREMRANGEBYRANK 提供最旧优先淘汰。
type RedisTier struct {
	client  *redis.Client
	key     string
	maxRows int64
	logger  logs.Logger
}

// NewRedisTier 建立连接并做一次 Ping 验证。
func NewRedisTier(url, password, key string, maxRows int64, logger logs.Logger) (*RedisTier, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	if password != "" {
		opt.Password = password
	}
	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	if key == "" {
		key = "book:snapshots"
	}
	if maxRows <= 0 {
		maxRows = defaultMaxRows
	}
	if logger == nil {
		logger = logs.DefaultLogger
	}
	return &RedisTier{client: client, key: key, maxRows: maxRows, logger: logger}, nil
}

func (t *RedisTier) Put(ctx context.Context, s *market.Snapshot) error {
	if s == nil {
		return nil
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	score := strconv.FormatInt(s.Timestamp, 10)
	pipe := t.client.TxPipeline()
	// 同一时间戳只保留最新一条
	pipe.ZRemRangeByScore(ctx, t.key, score, score)
	pipe.ZAdd(ctx, t.key, redis.Z{Score: float64(s.Timestamp), Member: raw})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis put: %w", err)
	}
	return t.trim(ctx)
}

func (t *RedisTier) PutMany(ctx context.Context, snaps []*market.Snapshot) error {
	if len(snaps) == 0 {
		return nil
	}
	members := make([]redis.Z, 0, len(snaps))
	for _, s := range snaps {
		if s == nil {
			continue
		}
		raw, err := json.Marshal(s)
		if err != nil {
			return fmt.Errorf("marshal snapshot: %w", err)
		}
		members = append(members, redis.Z{Score: float64(s.Timestamp), Member: raw})
	}
	if err := t.client.ZAdd(ctx, t.key, members...).Err(); err != nil {
		return fmt.Errorf("redis putmany: %w", err)
	}
	return t.trim(ctx)
}

// trim 超出行数上限时删掉最旧的超额部分。
func (t *RedisTier) trim(ctx context.Context) error {
	count, err := t.client.ZCard(ctx, t.key).Result()
	if err != nil {
		return fmt.Errorf("redis zcard: %w", err)
	}
	over := count - t.maxRows
	if over <= 0 {
		return nil
	}
	if err := t.client.ZRemRangeByRank(ctx, t.key, 0, over-1).Err(); err != nil {
		return fmt.Errorf("redis trim: %w", err)
	}
	t.logger.Info("tier trimmed", "removed", over, "max_rows", t.maxRows)
	return nil
}

func (t *RedisTier) GetRange(ctx context.Context, start, end int64) ([]*market.Snapshot, error) {
	raws, err := t.client.ZRangeByScore(ctx, t.key, &redis.ZRangeBy{
		Min: strconv.FormatInt(start, 10),
		Max: strconv.FormatInt(end, 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("redis range: %w", err)
	}
	out := make([]*market.Snapshot, 0, len(raws))
	for _, raw := range raws {
		var s market.Snapshot
		if err := json.Unmarshal([]byte(raw), &s); err != nil {
			// 单条损坏不影响整个范围查询
			metrics.TierDecodeErrors.Inc()
			t.logger.Warn("tier row decode failed", "error", err)
			continue
		}
		out = append(out, &s)
	}
	return out, nil
}

func (t *RedisTier) GetNearest(ctx context.Context, ts int64) (*market.Snapshot, error) {
	score := strconv.FormatInt(ts, 10)
	before, err := t.client.ZRevRangeByScore(ctx, t.key, &redis.ZRangeBy{
		Min: "-inf", Max: score, Count: 1,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("redis nearest below: %w", err)
	}
	after, err := t.client.ZRangeByScore(ctx, t.key, &redis.ZRangeBy{
		Min: score, Max: "+inf", Count: 1,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("redis nearest above: %w", err)
	}

	var b, a *market.Snapshot
	if len(before) > 0 {
		b = decodeRow(before[0], t.logger)
	}
	if len(after) > 0 {
		a = decodeRow(after[0], t.logger)
	}
	switch {
	case b == nil:
		return a, nil
	case a == nil:
		return b, nil
	}
	// 距离相等时取较早的一条
	if ts-b.Timestamp <= a.Timestamp-ts {
		return b, nil
	}
	return a, nil
}

func decodeRow(raw string, logger logs.Logger) *market.Snapshot {
	var s market.Snapshot
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		metrics.TierDecodeErrors.Inc()
		logger.Warn("tier row decode failed", "error", err)
		return nil
	}
	return &s
}

func (t *RedisTier) DeleteOldest(ctx context.Context, n int64) error {
	if n <= 0 {
		return nil
	}
	if err := t.client.ZRemRangeByRank(ctx, t.key, 0, n-1).Err(); err != nil {
		return fmt.Errorf("redis delete oldest: %w", err)
	}
	return nil
}

func (t *RedisTier) Clear(ctx context.Context) error {
	if err := t.client.Del(ctx, t.key).Err(); err != nil {
		return fmt.Errorf("redis clear: %w", err)
	}
	return nil
}

func (t *RedisTier) Count(ctx context.Context) (int64, error) {
	count, err := t.client.ZCard(ctx, t.key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis count: %w", err)
	}
	return count, nil
}

func (t *RedisTier) OldestTimestamp(ctx context.Context) (int64, bool, error) {
	rows, err := t.client.ZRangeWithScores(ctx, t.key, 0, 0).Result()
	if err != nil {
		return 0, false, fmt.Errorf("redis oldest: %w", err)
	}
	if len(rows) == 0 {
		return 0, false, nil
	}
	return int64(rows[0].Score), true, nil
}

func (t *RedisTier) NewestTimestamp(ctx context.Context) (int64, bool, error) {
	rows, err := t.client.ZRevRangeWithScores(ctx, t.key, 0, 0).Result()
	if err != nil {
		return 0, false, fmt.Errorf("redis newest: %w", err)
	}
	if len(rows) == 0 {
		return 0, false, nil
	}
	return int64(rows[0].Score), true, nil
}

// Close 释放连接。
func (t *RedisTier) Close() error {
	return t.client.Close()
}
