// Package archive 负责快照历史的分层存储：内存环形缓冲承接实时写入，
// 超出水位的旧数据下沉到持久层，对外提供跨两层的统一时间查询。
package archive

import (
	"sort"

	"book-replay-go/market"
)

// RingBuffer 定长环形缓冲，写满后覆盖最旧槽位。
// 单写者模式：由 Archive 在锁内调用，自身不加锁。
type RingBuffer struct {
	buf  []*market.Snapshot
	head int // 最旧元素下标
	size int
}

func NewRingBuffer(capacity int) *RingBuffer {
	if capacity <= 0 {
		capacity = 1
	}
	return &RingBuffer{buf: make([]*market.Snapshot, capacity)}
}

// Push 写入一条快照；缓冲已满时覆盖最旧的一条。永不失败。
func (r *RingBuffer) Push(s *market.Snapshot) {
	if s == nil {
		return
	}
	if r.size < len(r.buf) {
		r.buf[(r.head+r.size)%len(r.buf)] = s
		r.size++
		return
	}
	r.buf[r.head] = s
	r.head = (r.head + 1) % len(r.buf)
}

// GetAt 返回与目标时间戳绝对距离最小的快照；缓冲为空返回 nil。
// 距离相等时取较早的时间戳，保证结果确定。
func (r *RingBuffer) GetAt(ts int64) *market.Snapshot {
	var best *market.Snapshot
	var bestDist int64
	for i := 0; i < r.size; i++ {
		s := r.buf[(r.head+i)%len(r.buf)]
		dist := s.Timestamp - ts
		if dist < 0 {
			dist = -dist
		}
		switch {
		case best == nil, dist < bestDist:
			best, bestDist = s, dist
		case dist == bestDist && s.Timestamp < best.Timestamp:
			best = s
		}
	}
	return best
}

// GetRange 返回 [start, end] 内的全部快照，按时间戳升序。
func (r *RingBuffer) GetRange(start, end int64) []*market.Snapshot {
	out := make([]*market.Snapshot, 0)
	for i := 0; i < r.size; i++ {
		s := r.buf[(r.head+i)%len(r.buf)]
		if s.Timestamp >= start && s.Timestamp <= end {
			out = append(out, s)
		}
	}
	// 正常写入路径时间戳单调递增，这里排序只为容错乱序写入
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out
}

// Oldest 返回最旧快照；空缓冲返回 nil。
func (r *RingBuffer) Oldest() *market.Snapshot {
	if r.size == 0 {
		return nil
	}
	return r.buf[r.head]
}

// Newest 返回最新快照；空缓冲返回 nil。
func (r *RingBuffer) Newest() *market.Snapshot {
	if r.size == 0 {
		return nil
	}
	return r.buf[(r.head+r.size-1)%len(r.buf)]
}

// PeekOldest 拷贝最旧的 n 条（不移除），用于下沉前预取。
func (r *RingBuffer) PeekOldest(n int) []*market.Snapshot {
	if n > r.size {
		n = r.size
	}
	out := make([]*market.Snapshot, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, r.buf[(r.head+i)%len(r.buf)])
	}
	return out
}

// DropOldest 移除最旧的 n 条，返回实际移除数量。
func (r *RingBuffer) DropOldest(n int) int {
	if n > r.size {
		n = r.size
	}
	for i := 0; i < n; i++ {
		r.buf[r.head] = nil
		r.head = (r.head + 1) % len(r.buf)
	}
	r.size -= n
	return n
}

// Clear 清空缓冲，容量不变。
func (r *RingBuffer) Clear() {
	for i := range r.buf {
		r.buf[i] = nil
	}
	r.head = 0
	r.size = 0
}

func (r *RingBuffer) Size() int     { return r.size }
func (r *RingBuffer) Capacity() int { return len(r.buf) }
