package archive

import (
	"testing"

	"book-replay-go/market"
)

func snap(ts int64) *market.Snapshot {
	return market.NewSnapshot(ts,
		[]market.PriceLevel{{Price: 100, Size: 1}},
		[]market.PriceLevel{{Price: 101, Size: 1}},
	)
}

func TestRingCapacityAndEviction(t *testing.T) {
	r := NewRingBuffer(5)
	for i := int64(1); i <= 8; i++ {
		r.Push(snap(i * 100))
	}
	if r.Size() != 5 {
		t.Fatalf("expected size 5, got %d", r.Size())
	}
	// 推入 capacity+3 条后，最旧的 3 条被覆盖
	if got := r.Oldest().Timestamp; got != 400 {
		t.Fatalf("expected oldest 400, got %d", got)
	}
	if got := r.Newest().Timestamp; got != 800 {
		t.Fatalf("expected newest 800, got %d", got)
	}
}

func TestRingGetAtNearest(t *testing.T) {
	r := NewRingBuffer(10)
	if r.GetAt(123) != nil {
		t.Fatalf("empty ring should return nil")
	}
	for _, ts := range []int64{100, 200, 300} {
		r.Push(snap(ts))
	}
	if got := r.GetAt(180).Timestamp; got != 200 {
		t.Fatalf("expected 200, got %d", got)
	}
	if got := r.GetAt(100).Timestamp; got != 100 {
		t.Fatalf("expected exact match 100, got %d", got)
	}
	// 等距：150 到 100 和 200 距离相同，取较早的
	if got := r.GetAt(150).Timestamp; got != 100 {
		t.Fatalf("tie should resolve to earlier timestamp, got %d", got)
	}
	if got := r.GetAt(9_999).Timestamp; got != 300 {
		t.Fatalf("expected clamp to newest, got %d", got)
	}
}

func TestRingGetRange(t *testing.T) {
	r := NewRingBuffer(4)
	for _, ts := range []int64{100, 200, 300, 400, 500} { // 100 被覆盖
		r.Push(snap(ts))
	}
	got := r.GetRange(150, 450)
	if len(got) != 3 {
		t.Fatalf("expected 3 snapshots, got %d", len(got))
	}
	for i, want := range []int64{200, 300, 400} {
		if got[i].Timestamp != want {
			t.Fatalf("expected %d at %d, got %d", want, i, got[i].Timestamp)
		}
	}
	if out := r.GetRange(600, 700); len(out) != 0 {
		t.Fatalf("expected empty range, got %d", len(out))
	}
}

func TestRingPeekAndDropOldest(t *testing.T) {
	r := NewRingBuffer(6)
	for _, ts := range []int64{10, 20, 30, 40} {
		r.Push(snap(ts))
	}
	peeked := r.PeekOldest(2)
	if len(peeked) != 2 || peeked[0].Timestamp != 10 || peeked[1].Timestamp != 20 {
		t.Fatalf("unexpected peek: %v", peeked)
	}
	if r.Size() != 4 {
		t.Fatalf("peek must not remove entries")
	}
	if n := r.DropOldest(2); n != 2 {
		t.Fatalf("expected 2 dropped, got %d", n)
	}
	if r.Oldest().Timestamp != 30 || r.Size() != 2 {
		t.Fatalf("unexpected state after drop: oldest=%d size=%d", r.Oldest().Timestamp, r.Size())
	}
	// 丢弃数量超过现有条目
	if n := r.DropOldest(10); n != 2 {
		t.Fatalf("expected 2 dropped, got %d", n)
	}
	if r.Size() != 0 || r.Oldest() != nil {
		t.Fatalf("ring should be empty")
	}
}

func TestRingClear(t *testing.T) {
	r := NewRingBuffer(3)
	r.Push(snap(1))
	r.Push(snap(2))
	r.Clear()
	if r.Size() != 0 || r.Capacity() != 3 || r.Newest() != nil {
		t.Fatalf("clear should empty the ring and keep capacity")
	}
}
