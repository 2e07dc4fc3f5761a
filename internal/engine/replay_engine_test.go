package engine

import (
	"context"
	"testing"
	"time"

	"book-replay-go/archive"
	"book-replay-go/detect"
	"book-replay-go/events"
	"book-replay-go/infrastructure/logger"
	"book-replay-go/market"
	"book-replay-go/playback"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	l, err := logger.New(logger.Config{Level: "error", Format: "json"})
	if err != nil {
		t.Fatalf("create logger: %v", err)
	}
	return l
}

func newTestEngine(t *testing.T) (*ReplayEngine, *market.OrderBook) {
	t.Helper()
	log := testLogger(t)
	book := market.NewOrderBook()
	arc := archive.New(archive.Config{RingCapacity: 100, HighWater: 90, OffloadBatch: 10}, archive.NewMemoryTier(1000), log.KV())
	worker := detect.NewWorker(detect.DefaultConfig(), log.KV())
	store := events.NewStore(events.StoreConfig{}, nil)

	eng, err := New(Config{
		Symbol:               "BTCUSDT",
		SnapshotDepth:        20,
		RecordInterval:       10 * time.Millisecond,
		RangeRefreshInterval: 20 * time.Millisecond,
		LevelRefreshInterval: time.Hour,
	}, Components{
		Book:      book,
		Archive:   arc,
		Playback:  playback.New(10*time.Millisecond, nil),
		Detector:  worker,
		Events:    store,
		Publisher: events.NewPublisher(),
		Logger:    log,
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return eng, book
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestNewValidatesComponents(t *testing.T) {
	log := testLogger(t)
	if _, err := New(Config{Symbol: "BTCUSDT"}, Components{Logger: log}); err == nil {
		t.Fatal("expected error for missing components")
	}
	if _, err := New(Config{}, Components{}); err == nil {
		t.Fatal("expected error for empty symbol")
	}
}

func TestEngineRecordsSnapshots(t *testing.T) {
	eng, book := newTestEngine(t)
	book.ApplySnapshot(
		[]market.PriceLevel{{Price: 99, Size: 1}},
		[]market.PriceLevel{{Price: 101, Size: 1}},
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := eng.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer eng.Stop()

	if eng.GetState() != StateRunning {
		t.Fatalf("unexpected state: %s", eng.GetState())
	}

	waitFor(t, func() bool {
		return eng.GetStatistics().TotalSnapshots >= 3
	}, "engine never recorded snapshots")

	waitFor(t, func() bool {
		_, _, ok := eng.archive.TimeRange(ctx)
		return ok
	}, "archive never exposed a time range")
}

func TestEngineSkipsEmptyBook(t *testing.T) {
	eng, _ := newTestEngine(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := eng.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer eng.Stop()

	time.Sleep(100 * time.Millisecond)
	if n := eng.GetStatistics().TotalSnapshots; n != 0 {
		t.Fatalf("empty book produced %d snapshots", n)
	}
}

func TestEnginePauseStopsRecording(t *testing.T) {
	eng, book := newTestEngine(t)
	book.ApplySnapshot(
		[]market.PriceLevel{{Price: 99, Size: 1}},
		[]market.PriceLevel{{Price: 101, Size: 1}},
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := eng.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer eng.Stop()

	waitFor(t, func() bool {
		return eng.GetStatistics().TotalSnapshots >= 1
	}, "engine never recorded")

	if err := eng.Pause(); err != nil {
		t.Fatalf("pause: %v", err)
	}
	before := eng.GetStatistics().TotalSnapshots
	time.Sleep(100 * time.Millisecond)
	if after := eng.GetStatistics().TotalSnapshots; after != before {
		t.Fatalf("recording continued while paused: %d -> %d", before, after)
	}

	if err := eng.Resume(); err != nil {
		t.Fatalf("resume: %v", err)
	}
	waitFor(t, func() bool {
		return eng.GetStatistics().TotalSnapshots > before
	}, "recording never resumed")
}

func TestEngineStopIsIdempotent(t *testing.T) {
	eng, _ := newTestEngine(t)

	ctx := context.Background()
	if err := eng.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := eng.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := eng.Stop(); err != nil {
		t.Fatalf("second stop: %v", err)
	}
	if eng.GetState() != StateStopped {
		t.Fatalf("unexpected state: %s", eng.GetState())
	}
}

func TestCurrentSnapshotFollowsPlaybackMode(t *testing.T) {
	eng, book := newTestEngine(t)
	book.ApplySnapshot(
		[]market.PriceLevel{{Price: 99, Size: 1}},
		[]market.PriceLevel{{Price: 101, Size: 1}},
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := eng.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer eng.Stop()

	// 直播模式：直接读订单簿
	snap := eng.CurrentSnapshot(ctx)
	if snap == nil || snap.MidPrice != 100 {
		t.Fatalf("live snapshot wrong: %+v", snap)
	}

	waitFor(t, func() bool {
		_, _, ok := eng.archive.TimeRange(ctx)
		return ok
	}, "no archived data")

	// 切入回放：从存档取最近快照
	start, _, _ := eng.archive.TimeRange(ctx)
	eng.playback.RefreshAvailableRange(start, time.Now().UnixMilli())
	eng.playback.SetCurrentTimestamp(start)

	snap = eng.CurrentSnapshot(ctx)
	if snap == nil {
		t.Fatal("replay snapshot missing")
	}
	if eng.playback.State().Mode != playback.ModeReplay {
		t.Fatal("controller did not enter replay")
	}
}

func TestClearHistoryResetsArchive(t *testing.T) {
	eng, book := newTestEngine(t)
	book.ApplySnapshot(
		[]market.PriceLevel{{Price: 99, Size: 1}},
		[]market.PriceLevel{{Price: 101, Size: 1}},
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := eng.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer eng.Stop()

	waitFor(t, func() bool {
		_, _, ok := eng.archive.TimeRange(ctx)
		return ok
	}, "no archived data")

	eng.ClearHistory(ctx)
	if _, _, ok := eng.archive.TimeRange(ctx); ok {
		t.Fatal("archive still has data after clear")
	}
	if eng.events.Count() != 0 {
		t.Fatal("events remain after clear")
	}
}
