package archive

import (
	"context"

	"book-replay-go/market"
)

// Tier 持久层抽象：按时间戳排序的快照存储。
// 所有操作都可能涉及 I/O，调用方需要容忍延迟和失败，
// 失败时退化为仅环形缓冲的查询结果。
type Tier interface {
	// Put 写入单条快照；同一时间戳重复写入以后写为准。
	Put(ctx context.Context, s *market.Snapshot) error
	// PutMany 批量写入并在超出行数上限时淘汰最旧数据。
	PutMany(ctx context.Context, snaps []*market.Snapshot) error
	// GetRange 返回 [start, end] 内的快照，按时间戳升序。
	GetRange(ctx context.Context, start, end int64) ([]*market.Snapshot, error)
	// GetNearest 返回距目标时间戳最近的快照；存储为空返回 nil, nil。
	GetNearest(ctx context.Context, ts int64) (*market.Snapshot, error)
	// DeleteOldest 删除最旧的 n 条。
	DeleteOldest(ctx context.Context, n int64) error
	// Clear 清空全部数据。
	Clear(ctx context.Context) error
	// Count 当前行数。
	Count(ctx context.Context) (int64, error)
	// OldestTimestamp / NewestTimestamp 返回时间边界；ok 为 false 表示存储为空。
	OldestTimestamp(ctx context.Context) (int64, bool, error)
	NewestTimestamp(ctx context.Context) (int64, bool, error)
}
