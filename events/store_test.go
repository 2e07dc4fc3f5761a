package events

import (
	"testing"
	"time"
)

type fakeClock struct{ now time.Time }

func (f *fakeClock) Now() time.Time { return f.now }

func newTestStore() (*Store, *fakeClock) {
	clock := &fakeClock{now: time.UnixMilli(1_000_000)}
	s := NewStore(StoreConfig{
		MaxAge:      time.Hour,
		MaxCount:    5,
		Cooldown:    5 * time.Second,
		BucketWidth: 1,
	}, clock)
	return s, clock
}

func largeOrder(ts int64, price float64) Event {
	return New(TypeLargeOrderAdded, ts, SeverityLow, map[string]any{
		"side":   "bid",
		"price":  price,
		"volume": 7.0,
	})
}

func TestCooldownSuppression(t *testing.T) {
	s, clock := newTestStore()
	now := clock.now.UnixMilli()

	if got := s.Add(largeOrder(now, 100.2)); got != 1 {
		t.Fatalf("first event should be accepted, got %d", got)
	}
	// 同侧同价格桶、冷却窗口内：丢弃
	if got := s.Add(largeOrder(now+1_000, 100.7)); got != 0 {
		t.Fatalf("same bucket within cooldown should be suppressed, got %d", got)
	}
	// 不同价格桶不受影响
	if got := s.Add(largeOrder(now+1_000, 105.0)); got != 1 {
		t.Fatalf("different bucket should pass, got %d", got)
	}
	// 冷却过期后同桶事件重新接纳
	clock.now = clock.now.Add(6 * time.Second)
	if got := s.Add(largeOrder(clock.now.UnixMilli(), 100.3)); got != 1 {
		t.Fatalf("event after cooldown expiry should be accepted, got %d", got)
	}
}

func TestPruneByAgeThenCount(t *testing.T) {
	s, clock := newTestStore()
	now := clock.now.UnixMilli()

	stale := New(TypeSpreadChange, now-2*time.Hour.Milliseconds(), SeverityHigh, map[string]any{"direction": "widened"})
	s.Add(stale)
	// 任意一次新写入触发年龄清理
	s.Add(largeOrder(now, 50))
	for _, e := range s.GetFiltered() {
		if e.ID == stale.ID {
			t.Fatalf("stale event should be pruned by age")
		}
	}

	// 超过数量上限（5）时丢最旧
	for i := 0; i < 7; i++ {
		s.Add(largeOrder(now+int64(i)*100, float64(200+i*10)))
	}
	if got := s.Count(); got != 5 {
		t.Fatalf("expected count capped at 5, got %d", got)
	}
	evts := s.GetFiltered()
	for i := 1; i < len(evts); i++ {
		if evts[i].Timestamp < evts[i-1].Timestamp {
			t.Fatalf("events not sorted ascending")
		}
	}
}

func TestFilters(t *testing.T) {
	s, clock := newTestStore()
	now := clock.now.UnixMilli()
	s.Add(largeOrder(now, 100))
	s.Add(New(TypeSpreadChange, now+1, SeverityHigh, map[string]any{"direction": "widened", "change": 3.2}))

	s.SetTypeFilter([]Type{TypeSpreadChange})
	if evts := s.GetFiltered(); len(evts) != 1 || evts[0].Type != TypeSpreadChange {
		t.Fatalf("type filter failed: %v", evts)
	}

	s.SetTypeFilter(nil)
	s.SetSeverityFilter([]Severity{SeverityHigh})
	if evts := s.GetFiltered(); len(evts) != 1 || evts[0].Severity != SeverityHigh {
		t.Fatalf("severity filter failed: %v", evts)
	}

	s.SetSeverityFilter(nil)
	s.SetQuery("WIDENED")
	if evts := s.GetFiltered(); len(evts) != 1 || evts[0].Type != TypeSpreadChange {
		t.Fatalf("query should match serialized details case-insensitively: %v", evts)
	}
	s.SetQuery("large_order")
	if evts := s.GetFiltered(); len(evts) != 1 || evts[0].Type != TypeLargeOrderAdded {
		t.Fatalf("query should match type name: %v", evts)
	}
}

func TestSelectionAndRemove(t *testing.T) {
	s, clock := newTestStore()
	e := largeOrder(clock.now.UnixMilli(), 100)
	s.Add(e)

	s.Select(e.ID)
	if s.Selected() != e.ID {
		t.Fatalf("selection not applied")
	}
	// 未知 ID 不是错误，成为悬空选中
	s.Select("no-such-id")
	if s.Selected() != "no-such-id" {
		t.Fatalf("dangling selection should be allowed")
	}

	s.Select(e.ID)
	s.Remove(e.ID)
	if s.Selected() != "" {
		t.Fatalf("removing selected event should clear selection")
	}
	if _, ok := s.GetByID(e.ID); ok {
		t.Fatalf("event not removed")
	}
}

func TestGetInTimeRange(t *testing.T) {
	s, clock := newTestStore()
	now := clock.now.UnixMilli()
	for i := int64(0); i < 4; i++ {
		s.Add(largeOrder(now+i*1_000, float64(100+i*10)))
	}
	got := s.GetInTimeRange(now+1_000, now+2_000)
	if len(got) != 2 {
		t.Fatalf("expected 2 events in range, got %d", len(got))
	}
}

func TestClearResetsCooldowns(t *testing.T) {
	s, clock := newTestStore()
	now := clock.now.UnixMilli()
	s.Add(largeOrder(now, 100))
	s.Clear()
	if s.Count() != 0 {
		t.Fatalf("expected empty store")
	}
	// 冷却状态也被清空，同桶事件立即可入
	if got := s.Add(largeOrder(now+1, 100)); got != 1 {
		t.Fatalf("cooldowns should reset on clear, got %d", got)
	}
}
