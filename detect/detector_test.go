package detect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"book-replay-go/events"
	"book-replay-go/market"
)

func lvls(pairs ...float64) []market.PriceLevel {
	out := make([]market.PriceLevel, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, market.PriceLevel{Price: pairs[i], Size: pairs[i+1]})
	}
	return out
}

func TestClassify(t *testing.T) {
	th := Thresholds{Low: 6, Medium: 8, High: 10}
	testCases := []struct {
		magnitude float64
		severity  events.Severity
		emitted   bool
	}{
		{5.9, "", false},
		{6, events.SeverityLow, true},
		{7.9, events.SeverityLow, true},
		{8, events.SeverityMedium, true},
		{10, events.SeverityHigh, true},
		{99, events.SeverityHigh, true},
	}
	for _, tc := range testCases {
		sev, ok := th.Classify(tc.magnitude)
		assert.Equal(t, tc.emitted, ok, "magnitude %.1f", tc.magnitude)
		assert.Equal(t, tc.severity, sev, "magnitude %.1f", tc.magnitude)
	}
}

func TestDetectLargeOrderAdded(t *testing.T) {
	th := Thresholds{Low: 6, Medium: 8, High: 10}
	prev := market.NewSnapshot(100, lvls(99, 1), lvls(101, 1))
	cur := market.NewSnapshot(200, lvls(99, 1, 98.5, 7.0), lvls(101, 1))

	evts := DetectLargeOrders(cur, prev, th)
	require.Len(t, evts, 1)
	e := evts[0]
	assert.Equal(t, events.TypeLargeOrderAdded, e.Type)
	assert.Equal(t, events.SeverityLow, e.Severity)
	assert.Equal(t, "bid", e.Details["side"])
	assert.Equal(t, 7.0, e.Details["volume"])
	assert.Equal(t, int64(200), e.Timestamp)
}

func TestDetectLargeOrderRemovedAndGrown(t *testing.T) {
	th := Thresholds{Low: 6, Medium: 8, High: 10}
	prev := market.NewSnapshot(100, lvls(99, 1), lvls(101, 12, 102, 3))
	cur := market.NewSnapshot(200, lvls(99, 10), lvls(102, 3))

	evts := DetectLargeOrders(cur, prev, th)
	require.Len(t, evts, 2)

	var added, removed *events.Event
	for i := range evts {
		switch evts[i].Type {
		case events.TypeLargeOrderAdded:
			added = &evts[i]
		case events.TypeLargeOrderRemoved:
			removed = &evts[i]
		}
	}
	// 99 档从 1 涨到 10：增量 9 -> Medium
	require.NotNil(t, added)
	assert.Equal(t, events.SeverityMedium, added.Severity)
	assert.Equal(t, 9.0, added.Details["volume"])
	// 101 档整档消失：撤量 12 -> High
	require.NotNil(t, removed)
	assert.Equal(t, events.SeverityHigh, removed.Severity)
	assert.Equal(t, "ask", removed.Details["side"])
}

func TestDetectSpreadChange(t *testing.T) {
	th := Thresholds{Low: 1, Medium: 3, High: 5}
	base := func(spreadTo float64) (*market.Snapshot, *market.Snapshot) {
		prev := market.NewSnapshot(100, lvls(100, 1), lvls(102, 1))         // spread 2
		cur := market.NewSnapshot(200, lvls(100, 1), lvls(100+spreadTo, 1)) // spread spreadTo
		return cur, prev
	}

	cur, prev := base(5.5) // 2 -> 5.5，变化 3.5 -> Medium widened
	evts := DetectSpreadChange(cur, prev, th, 500)
	require.Len(t, evts, 1)
	assert.Equal(t, "widened", evts[0].Details["direction"])
	assert.Equal(t, events.SeverityMedium, evts[0].Severity)
	assert.InDelta(t, 3.5, evts[0].Details["change"].(float64), 1e-9)

	cur, prev = base(0.5) // 2 -> 0.5，变化 1.5 -> Low narrowed
	evts = DetectSpreadChange(cur, prev, th, 500)
	require.Len(t, evts, 1)
	assert.Equal(t, "narrowed", evts[0].Details["direction"])

	// 低于阈值不产生事件
	cur, prev = base(2.5)
	assert.Empty(t, DetectSpreadChange(cur, prev, th, 500))

	// 脏数据：价差超过合理上限时跳过
	cur, prev = base(900)
	assert.Empty(t, DetectSpreadChange(cur, prev, th, 500))

	// 前值为 0 时跳过
	prevZero := market.NewSnapshot(100, nil, nil)
	curOK := market.NewSnapshot(200, lvls(100, 1), lvls(105, 1))
	assert.Empty(t, DetectSpreadChange(curOK, prevZero, th, 500))
}

func TestDetectLiquidityGapsSingleReportPerSide(t *testing.T) {
	th := Thresholds{Low: 0.2, Medium: 0.5, High: 1.0}
	// ask 侧两个合格缺口：0.3% 和 ~0.70%，只报告更大的那个
	cur := market.NewSnapshot(100,
		lvls(99, 1, 98.99, 1),
		lvls(100, 1, 100.3, 1, 101.0, 1),
	)
	evts := DetectLiquidityGaps(cur, th, 15)
	require.Len(t, evts, 1)
	e := evts[0]
	assert.Equal(t, "ask", e.Details["side"])
	gap := e.Details["gapPct"].(float64)
	assert.Greater(t, gap, 0.6)
	assert.Equal(t, 100.3, e.Details["from"])
	assert.Equal(t, 101.0, e.Details["to"])
	assert.Equal(t, events.SeverityMedium, e.Severity)
}

func TestDetectLiquidityGapsDepthLimit(t *testing.T) {
	th := Thresholds{Low: 0.2, Medium: 0.5, High: 1.0}
	// 大缺口在第 3 档之后，depth=3 时不可见
	cur := market.NewSnapshot(100,
		lvls(100, 1),
		lvls(101, 1, 101.01, 1, 101.02, 1, 110, 1),
	)
	assert.Empty(t, DetectLiquidityGaps(cur, th, 3))
	assert.NotEmpty(t, DetectLiquidityGaps(cur, th, 4))
}

func TestDetectRapidCancellations(t *testing.T) {
	th := Thresholds{Low: 3, Medium: 5, High: 8}
	mk := func(bids, asks int, ts int64) []Removal {
		var out []Removal
		for i := 0; i < bids; i++ {
			out = append(out, Removal{Timestamp: ts, Side: "bid"})
		}
		for i := 0; i < asks; i++ {
			out = append(out, Removal{Timestamp: ts, Side: "ask"})
		}
		return out
	}

	// 窗口外的记录不计入
	old := mk(10, 0, 500)
	assert.Empty(t, DetectRapidCancellations(2_000, old, 1_000, th))

	evts := DetectRapidCancellations(2_000, mk(4, 1, 1_500), 1_000, th)
	require.Len(t, evts, 1)
	assert.Equal(t, "bid", evts[0].Details["side"])
	assert.Equal(t, 5, evts[0].Details["count"])
	assert.Equal(t, events.SeverityMedium, evts[0].Severity)

	// 两侧各自过阈值 -> both
	evts = DetectRapidCancellations(2_000, mk(4, 4, 1_500), 1_000, th)
	require.Len(t, evts, 1)
	assert.Equal(t, "both", evts[0].Details["side"])
	assert.Equal(t, events.SeverityHigh, evts[0].Severity)
}

func TestDetectBreakthroughs(t *testing.T) {
	th := Thresholds{Low: 50, Medium: 150, High: 400}
	levels := []SignificantLevel{
		{Price: 100, Volume: 200},
		{Price: 105, Volume: 60},
		{Price: 110, Volume: 500},
	}
	prev := market.NewSnapshot(100, lvls(98, 1), lvls(99, 1))      // mid 98.5
	cur := market.NewSnapshot(200, lvls(105.5, 1), lvls(106.5, 1)) // mid 106

	evts := DetectBreakthroughs(cur, prev, levels, th)
	require.Len(t, evts, 2) // 上穿 100 和 105，未及 110
	assert.Equal(t, "up", evts[0].Details["direction"])
	assert.Equal(t, 100.0, evts[0].Details["price"])
	assert.Equal(t, events.SeverityMedium, evts[0].Severity)
	assert.Equal(t, 105.0, evts[1].Details["price"])
	assert.Equal(t, events.SeverityLow, evts[1].Severity)

	// 反向：下穿
	evts = DetectBreakthroughs(prev, cur, levels, th)
	require.Len(t, evts, 2)
	assert.Equal(t, "down", evts[0].Details["direction"])

	// 未穿越不产生事件
	assert.Empty(t, DetectBreakthroughs(cur, cur, levels, th))
}
