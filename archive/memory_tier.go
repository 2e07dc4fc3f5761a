package archive

import (
	"context"
	"sort"
	"sync"

	"book-replay-go/market"
)

// MemoryTier 纯内存的持久层实现，用于单测和未配置 Redis 时的退化运行。
// 语义与 RedisTier 对齐：按时间戳排序、行数上限、最旧优先淘汰。
type MemoryTier struct {
	mu      sync.RWMutex
	rows    []*market.Snapshot // 按 Timestamp 升序
	maxRows int64
}

func NewMemoryTier(maxRows int64) *MemoryTier {
	if maxRows <= 0 {
		maxRows = defaultMaxRows
	}
	return &MemoryTier{maxRows: maxRows}
}

func (m *MemoryTier) Put(ctx context.Context, s *market.Snapshot) error {
	return m.PutMany(ctx, []*market.Snapshot{s})
}

func (m *MemoryTier) PutMany(_ context.Context, snaps []*market.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range snaps {
		if s == nil {
			continue
		}
		m.insertLocked(s)
	}
	if over := int64(len(m.rows)) - m.maxRows; over > 0 {
		m.rows = m.rows[over:]
	}
	return nil
}

// insertLocked 按时间戳有序插入；同一时间戳覆盖旧值。
func (m *MemoryTier) insertLocked(s *market.Snapshot) {
	i := sort.Search(len(m.rows), func(i int) bool { return m.rows[i].Timestamp >= s.Timestamp })
	if i < len(m.rows) && m.rows[i].Timestamp == s.Timestamp {
		m.rows[i] = s
		return
	}
	m.rows = append(m.rows, nil)
	copy(m.rows[i+1:], m.rows[i:])
	m.rows[i] = s
}

func (m *MemoryTier) GetRange(_ context.Context, start, end int64) ([]*market.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	lo := sort.Search(len(m.rows), func(i int) bool { return m.rows[i].Timestamp >= start })
	hi := sort.Search(len(m.rows), func(i int) bool { return m.rows[i].Timestamp > end })
	out := make([]*market.Snapshot, hi-lo)
	copy(out, m.rows[lo:hi])
	return out, nil
}

func (m *MemoryTier) GetNearest(_ context.Context, ts int64) (*market.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.rows) == 0 {
		return nil, nil
	}
	i := sort.Search(len(m.rows), func(i int) bool { return m.rows[i].Timestamp >= ts })
	if i == 0 {
		return m.rows[0], nil
	}
	if i == len(m.rows) {
		return m.rows[len(m.rows)-1], nil
	}
	before, after := m.rows[i-1], m.rows[i]
	// 距离相等时取较早的一条
	if ts-before.Timestamp <= after.Timestamp-ts {
		return before, nil
	}
	return after, nil
}

func (m *MemoryTier) DeleteOldest(_ context.Context, n int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n >= int64(len(m.rows)) {
		m.rows = m.rows[:0]
		return nil
	}
	m.rows = m.rows[n:]
	return nil
}

func (m *MemoryTier) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = m.rows[:0]
	return nil
}

func (m *MemoryTier) Count(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.rows)), nil
}

func (m *MemoryTier) OldestTimestamp(_ context.Context) (int64, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.rows) == 0 {
		return 0, false, nil
	}
	return m.rows[0].Timestamp, true, nil
}

func (m *MemoryTier) NewestTimestamp(_ context.Context) (int64, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.rows) == 0 {
		return 0, false, nil
	}
	return m.rows[len(m.rows)-1].Timestamp, true, nil
}
