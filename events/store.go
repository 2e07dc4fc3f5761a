package events

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"book-replay-go/metrics"
)

// Clock 抽象时间便于测试。
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// StoreConfig 事件存储参数。
type StoreConfig struct {
	MaxAge      time.Duration // 事件最大保留时长（默认 1 小时）
	MaxCount    int           // 数量上限（默认 1000），按年龄清理后仍超限则丢最旧
	Cooldown    time.Duration // 同一冷却键的抑制窗口（默认 5 秒）
	BucketWidth float64       // 冷却键中价格分桶宽度（默认 1.0）
}

func (c StoreConfig) withDefaults() StoreConfig {
	if c.MaxAge <= 0 {
		c.MaxAge = time.Hour
	}
	if c.MaxCount <= 0 {
		c.MaxCount = 1000
	}
	if c.Cooldown <= 0 {
		c.Cooldown = 5 * time.Second
	}
	if c.BucketWidth <= 0 {
		c.BucketWidth = 1
	}
	return c
}

// Store 有界、去重、可过滤的事件集合。
// 单写者（检测桥接循环）写入，UI 等多读者通过拷贝读取。
type Store struct {
	mu        sync.RWMutex
	events    []Event          // 按 Timestamp 升序
	cooldowns map[string]int64 // 冷却键 -> 过期时刻（毫秒）
	selected  string

	enabledTypes      map[Type]bool
	enabledSeverities map[Severity]bool
	query             string

	cfg   StoreConfig
	clock Clock
}

func NewStore(cfg StoreConfig, clock Clock) *Store {
	if clock == nil {
		clock = realClock{}
	}
	s := &Store{
		cooldowns:         make(map[string]int64),
		enabledTypes:      make(map[Type]bool, len(AllTypes)),
		enabledSeverities: make(map[Severity]bool, 3),
		cfg:               cfg.withDefaults(),
		clock:             clock,
	}
	for _, t := range AllTypes {
		s.enabledTypes[t] = true
	}
	for _, sev := range []Severity{SeverityLow, SeverityMedium, SeverityHigh} {
		s.enabledSeverities[sev] = true
	}
	return s
}

// Add 批量写入事件，返回实际接纳的数量。
// 共享未过期冷却键的事件被整条丢弃（不入库）；每次写入后做年龄+数量清理。
func (s *Store) Add(evts ...Event) int {
	now := s.clock.Now().UnixMilli()
	s.mu.Lock()
	defer s.mu.Unlock()

	accepted := 0
	for _, e := range evts {
		key := s.cooldownKey(e)
		if expiry, ok := s.cooldowns[key]; ok && now < expiry {
			metrics.EventsSuppressed.Inc()
			continue
		}
		s.cooldowns[key] = now + s.cfg.Cooldown.Milliseconds()
		s.insertLocked(e)
		metrics.EventsEmitted.WithLabelValues(string(e.Type)).Inc()
		accepted++
	}
	s.pruneLocked(now)
	s.sweepCooldownsLocked(now)
	return accepted
}

// insertLocked 保持时间戳升序插入。
func (s *Store) insertLocked(e Event) {
	i := sort.Search(len(s.events), func(i int) bool { return s.events[i].Timestamp > e.Timestamp })
	s.events = append(s.events, Event{})
	copy(s.events[i+1:], s.events[i:])
	s.events[i] = e
}

// pruneLocked 先按年龄丢弃过期事件，再按数量上限丢最旧的超额部分。
func (s *Store) pruneLocked(now int64) {
	cutoff := now - s.cfg.MaxAge.Milliseconds()
	idx := sort.Search(len(s.events), func(i int) bool { return s.events[i].Timestamp >= cutoff })
	if idx > 0 {
		s.events = s.events[idx:]
	}
	if over := len(s.events) - s.cfg.MaxCount; over > 0 {
		s.events = s.events[over:]
	}
}

// sweepCooldownsLocked 清掉已过期的冷却键，限制映射增长。
func (s *Store) sweepCooldownsLocked(now int64) {
	for k, expiry := range s.cooldowns {
		if now >= expiry {
			delete(s.cooldowns, k)
		}
	}
}

// cooldownKey 由事件类型加粗粒度细节推导的去重身份。
// 带价格的事件按分桶宽度取整；价差变化按方向；撤单风暴按盘口方向。
func (s *Store) cooldownKey(e Event) string {
	parts := []string{string(e.Type)}
	if side, ok := e.Details["side"].(string); ok {
		parts = append(parts, side)
	}
	if dir, ok := e.Details["direction"].(string); ok {
		parts = append(parts, dir)
	}
	if price, ok := e.Details["price"].(float64); ok {
		bucket := math.Floor(price/s.cfg.BucketWidth) * s.cfg.BucketWidth
		parts = append(parts, fmt.Sprintf("%.4f", bucket))
	}
	return strings.Join(parts, "|")
}

// SetTypeFilter 设置启用的事件类型集合；空切片表示全部启用。
func (s *Store) SetTypeFilter(types []Type) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabledTypes = make(map[Type]bool, len(AllTypes))
	if len(types) == 0 {
		for _, t := range AllTypes {
			s.enabledTypes[t] = true
		}
		return
	}
	for _, t := range types {
		s.enabledTypes[t] = true
	}
}

// SetSeverityFilter 设置启用的严重级别集合；空切片表示全部启用。
func (s *Store) SetSeverityFilter(sevs []Severity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabledSeverities = make(map[Severity]bool, 3)
	if len(sevs) == 0 {
		for _, sev := range []Severity{SeverityLow, SeverityMedium, SeverityHigh} {
			s.enabledSeverities[sev] = true
		}
		return
	}
	for _, sev := range sevs {
		s.enabledSeverities[sev] = true
	}
}

// SetQuery 设置大小写不敏感的子串过滤，匹配类型名或序列化后的细节。
func (s *Store) SetQuery(q string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.query = strings.ToLower(strings.TrimSpace(q))
}

// GetFiltered 返回通过当前过滤器的事件拷贝，按时间戳升序。
func (s *Store) GetFiltered() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Event, 0, len(s.events))
	for _, e := range s.events {
		if s.matchLocked(e) {
			out = append(out, e)
		}
	}
	return out
}

func (s *Store) matchLocked(e Event) bool {
	if !s.enabledTypes[e.Type] || !s.enabledSeverities[e.Severity] {
		return false
	}
	if s.query == "" {
		return true
	}
	if strings.Contains(strings.ToLower(string(e.Type)), s.query) {
		return true
	}
	raw, err := json.Marshal(e.Details)
	if err != nil {
		return false
	}
	return strings.Contains(strings.ToLower(string(raw)), s.query)
}

// GetByID 按 ID 查找；不存在返回 false。
func (s *Store) GetByID(id string) (Event, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.events {
		if e.ID == id {
			return e, true
		}
	}
	return Event{}, false
}

// GetInTimeRange 返回 [start, end] 内的事件拷贝（不应用过滤器）。
func (s *Store) GetInTimeRange(start, end int64) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lo := sort.Search(len(s.events), func(i int) bool { return s.events[i].Timestamp >= start })
	hi := sort.Search(len(s.events), func(i int) bool { return s.events[i].Timestamp > end })
	out := make([]Event, hi-lo)
	copy(out, s.events[lo:hi])
	return out
}

// Remove 删除指定事件；选中的事件被删除时清空选中。
func (s *Store) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range s.events {
		if e.ID == id {
			s.events = append(s.events[:i], s.events[i+1:]...)
			break
		}
	}
	if s.selected == id {
		s.selected = ""
	}
}

// Clear 清空事件与冷却状态。
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = s.events[:0]
	s.cooldowns = make(map[string]int64)
	s.selected = ""
}

// Select 设置选中事件。未知 ID 不是错误，选中即悬空，由调用方负责有效性。
func (s *Store) Select(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected = id
}

// Selected 返回当前选中的事件 ID（可能为空或悬空）。
func (s *Store) Selected() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selected
}

// Count 当前事件数量。
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}
