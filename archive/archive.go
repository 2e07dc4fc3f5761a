package archive

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"book-replay-go/logs"
	"book-replay-go/market"
	"book-replay-go/metrics"
)

// Config 存档参数。
type Config struct {
	RingCapacity int // 环形缓冲容量（默认 6000，约 100ms 采样 10 分钟）
	HighWater    int // 触发下沉的水位（默认 5500）
	OffloadBatch int // 每次下沉的批量（默认 1000）
	QueryTimeout time.Duration
}

// withDefaults 填充零值字段。
func (c Config) withDefaults() Config {
	if c.RingCapacity <= 0 {
		c.RingCapacity = 6000
	}
	if c.HighWater <= 0 || c.HighWater > c.RingCapacity {
		c.HighWater = c.RingCapacity * 11 / 12
	}
	if c.OffloadBatch <= 0 {
		c.OffloadBatch = 1000
	}
	if c.QueryTimeout <= 0 {
		c.QueryTimeout = 3 * time.Second
	}
	return c
}

// Archive 组合环形缓冲与持久层，维护"全部已知历史"的统一时间视图。
// 持久层故障时所有查询退化为仅环形缓冲的结果，记录日志但不向调用方抛错。
type Archive struct {
	mu   sync.RWMutex
	ring *RingBuffer

	tier   Tier
	cfg    Config
	logger logs.Logger

	// 同一时刻最多一个下沉任务在途
	offloading atomic.Bool
}

func New(cfg Config, tier Tier, logger logs.Logger) *Archive {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = logs.DefaultLogger
	}
	return &Archive{
		ring:   NewRingBuffer(cfg.RingCapacity),
		tier:   tier,
		cfg:    cfg,
		logger: logger,
	}
}

// Record 记录一条快照。到达水位时触发一次异步下沉；
// 下沉在途时直接跳过，不阻塞记录节奏。
func (a *Archive) Record(s *market.Snapshot) {
	if s == nil || len(s.Bids) == 0 || len(s.Asks) == 0 {
		return
	}
	a.mu.Lock()
	a.ring.Push(s)
	size := a.ring.Size()
	a.mu.Unlock()

	metrics.SnapshotsRecorded.Inc()
	metrics.RingSize.Set(float64(size))

	if size >= a.cfg.HighWater && a.tier != nil && a.offloading.CompareAndSwap(false, true) {
		go a.offload()
	}
}

// offload 把最旧的一批快照搬到持久层。
// 先拷贝、写成功后再从缓冲移除；写失败则留在缓冲里等待覆盖。
func (a *Archive) offload() {
	defer a.offloading.Store(false)

	a.mu.RLock()
	batch := a.ring.PeekOldest(a.cfg.OffloadBatch)
	a.mu.RUnlock()
	if len(batch) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.QueryTimeout)
	defer cancel()
	if err := a.tier.PutMany(ctx, batch); err != nil {
		metrics.TierErrors.Inc()
		a.logger.Error("offload failed, keeping snapshots in ring", "error", err, "batch", len(batch))
		return
	}

	a.mu.Lock()
	dropped := a.ring.DropOldest(len(batch))
	size := a.ring.Size()
	a.mu.Unlock()

	metrics.OffloadBatches.Inc()
	metrics.RingSize.Set(float64(size))
	a.logger.Info("offloaded snapshots to tier", "count", dropped, "ring_size", size)
}

// GetSnapshotAt 返回距目标时间戳最近的快照。
// 目标落在环形缓冲覆盖的区间内走快速路径；更早的时间戳查持久层，
// 持久层不可用时仍返回缓冲里的最近结果。
func (a *Archive) GetSnapshotAt(ctx context.Context, ts int64) *market.Snapshot {
	a.mu.RLock()
	oldest := a.ring.Oldest()
	fromRing := a.ring.GetAt(ts)
	a.mu.RUnlock()

	if fromRing != nil && (oldest == nil || ts >= oldest.Timestamp) {
		return fromRing
	}
	if a.tier != nil {
		qctx, cancel := context.WithTimeout(ctx, a.cfg.QueryTimeout)
		defer cancel()
		s, err := a.tier.GetNearest(qctx, ts)
		if err != nil {
			metrics.TierErrors.Inc()
			a.logger.Warn("tier nearest query failed, falling back to ring", "error", err)
		} else if s != nil {
			// 两层都有候选时取距离更近的；相等取较早
			if fromRing == nil || closer(ts, s.Timestamp, fromRing.Timestamp) {
				return s
			}
		}
	}
	return fromRing
}

// closer 判断 a 是否比 b 更接近 ts（相等时较早者胜出）。
func closer(ts, a, b int64) bool {
	da, db := a-ts, b-ts
	if da < 0 {
		da = -da
	}
	if db < 0 {
		db = -db
	}
	if da != db {
		return da < db
	}
	return a < b
}

// GetSnapshotsInRange 合并两层的范围查询结果，按时间戳去重（缓冲更新鲜，冲突时胜出），升序返回。
func (a *Archive) GetSnapshotsInRange(ctx context.Context, start, end int64) []*market.Snapshot {
	a.mu.RLock()
	ringRows := a.ring.GetRange(start, end)
	a.mu.RUnlock()

	var tierRows []*market.Snapshot
	if a.tier != nil {
		qctx, cancel := context.WithTimeout(ctx, a.cfg.QueryTimeout)
		defer cancel()
		rows, err := a.tier.GetRange(qctx, start, end)
		if err != nil {
			metrics.TierErrors.Inc()
			a.logger.Warn("tier range query failed, returning ring-only results", "error", err)
		} else {
			tierRows = rows
		}
	}
	if len(tierRows) == 0 {
		return ringRows
	}

	seen := make(map[int64]struct{}, len(ringRows))
	for _, s := range ringRows {
		seen[s.Timestamp] = struct{}{}
	}
	merged := make([]*market.Snapshot, 0, len(ringRows)+len(tierRows))
	for _, s := range tierRows {
		if _, dup := seen[s.Timestamp]; !dup {
			merged = append(merged, s)
		}
	}
	merged = append(merged, ringRows...)
	sortSnapshots(merged)
	return merged
}

// TimeRange 返回已知历史的最宽边界。
// 起点优先取持久层最旧行（环形缓冲只保留尾部），终点优先取缓冲最新条目。
func (a *Archive) TimeRange(ctx context.Context) (start, end int64, ok bool) {
	a.mu.RLock()
	oldest := a.ring.Oldest()
	newest := a.ring.Newest()
	a.mu.RUnlock()

	var tierOldest, tierNewest int64
	var tierHas bool
	if a.tier != nil {
		qctx, cancel := context.WithTimeout(ctx, a.cfg.QueryTimeout)
		defer cancel()
		ts, has, err := a.tier.OldestTimestamp(qctx)
		if err != nil {
			metrics.TierErrors.Inc()
			a.logger.Warn("tier oldest query failed", "error", err)
		} else if has {
			tierOldest, tierHas = ts, true
			if nts, nhas, nerr := a.tier.NewestTimestamp(qctx); nerr == nil && nhas {
				tierNewest = nts
			}
		}
	}

	switch {
	case tierHas && newest != nil:
		return tierOldest, newest.Timestamp, true
	case tierHas:
		return tierOldest, tierNewest, true
	case newest != nil:
		return oldest.Timestamp, newest.Timestamp, true
	}
	return 0, 0, false
}

// Stats 存储占用概览。
type Stats struct {
	RingSize      int
	RingCapacity  int
	PersistedRows int64
}

func (a *Archive) GetStats(ctx context.Context) Stats {
	a.mu.RLock()
	st := Stats{RingSize: a.ring.Size(), RingCapacity: a.ring.Capacity()}
	a.mu.RUnlock()

	if a.tier != nil {
		qctx, cancel := context.WithTimeout(ctx, a.cfg.QueryTimeout)
		defer cancel()
		if count, err := a.tier.Count(qctx); err != nil {
			metrics.TierErrors.Inc()
			a.logger.Warn("tier count query failed", "error", err)
		} else {
			st.PersistedRows = count
			metrics.PersistedRows.Set(float64(count))
		}
	}
	return st
}

// ClearAll 清空两层历史。持久层清空失败只记日志。
func (a *Archive) ClearAll(ctx context.Context) {
	a.mu.Lock()
	a.ring.Clear()
	a.mu.Unlock()
	metrics.RingSize.Set(0)

	if a.tier != nil {
		qctx, cancel := context.WithTimeout(ctx, a.cfg.QueryTimeout)
		defer cancel()
		if err := a.tier.Clear(qctx); err != nil {
			metrics.TierErrors.Inc()
			a.logger.Error("tier clear failed", "error", err)
		}
	}
}

func sortSnapshots(snaps []*market.Snapshot) {
	// 插入排序足够：两段各自有序且几乎不重叠
	for i := 1; i < len(snaps); i++ {
		for j := i; j > 0 && snaps[j].Timestamp < snaps[j-1].Timestamp; j-- {
			snaps[j], snaps[j-1] = snaps[j-1], snaps[j]
		}
	}
}
