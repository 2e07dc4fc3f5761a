package detect

import (
	"math"

	"book-replay-go/events"
	"book-replay-go/market"
)

// Removal 一次整档撤单记录，供撤单风暴检测使用。
type Removal struct {
	Timestamp int64
	Side      string // "bid" / "ask"
}

// Detect 对一次快照转换运行全部检测器。
// removals 为外部维护的滚动撤单日志，levels 为周期性计算出的关键位。
// 调用方保证 cur.Timestamp >= prev.Timestamp。
func Detect(cur, prev *market.Snapshot, removals []Removal, levels []SignificantLevel, cfg Config) []events.Event {
	if cur == nil || prev == nil {
		return nil
	}
	var out []events.Event
	out = append(out, DetectLargeOrders(cur, prev, cfg.LargeOrder)...)
	out = append(out, DetectSpreadChange(cur, prev, cfg.SpreadChange, cfg.SpreadSanityCeiling)...)
	out = append(out, DetectLiquidityGaps(cur, cfg.LiquidityGap, cfg.GapDepth)...)
	out = append(out, DetectRapidCancellations(cur.Timestamp, removals, cfg.CancelWindowMs, cfg.RapidCancel)...)
	out = append(out, DetectBreakthroughs(cur, prev, levels, cfg.Breakthrough)...)
	return out
}

// DetectLargeOrders 找出两个快照间单档挂单量的大幅增减。
// 每个满足阈值的价位每侧各产生一条事件；同类去重交给下游冷却门。
func DetectLargeOrders(cur, prev *market.Snapshot, th Thresholds) []events.Event {
	var out []events.Event
	out = append(out, largeOrderSide(cur.Timestamp, cur.Bids, prev.Bids, "bid", th)...)
	out = append(out, largeOrderSide(cur.Timestamp, cur.Asks, prev.Asks, "ask", th)...)
	return out
}

func largeOrderSide(ts int64, cur, prev []market.PriceLevel, side string, th Thresholds) []events.Event {
	prevBySize := make(map[float64]float64, len(prev))
	for _, l := range prev {
		prevBySize[l.Price] = l.Size
	}
	curBySize := make(map[float64]float64, len(cur))
	for _, l := range cur {
		curBySize[l.Price] = l.Size
	}

	var out []events.Event
	for _, l := range cur {
		delta := l.Size - prevBySize[l.Price]
		if sev, ok := th.Classify(delta); ok {
			out = append(out, events.New(events.TypeLargeOrderAdded, ts, sev, map[string]any{
				"side":   side,
				"price":  l.Price,
				"volume": delta,
			}))
		}
	}
	for _, l := range prev {
		delta := l.Size - curBySize[l.Price]
		if sev, ok := th.Classify(delta); ok {
			out = append(out, events.New(events.TypeLargeOrderRemoved, ts, sev, map[string]any{
				"side":   side,
				"price":  l.Price,
				"volume": delta,
			}))
		}
	}
	return out
}

// DiffRemovedLevels 列出 prev 中存在、cur 中已整档消失的价位。
func DiffRemovedLevels(cur, prev *market.Snapshot) []Removal {
	var out []Removal
	out = append(out, removedSide(cur.Timestamp, cur.Bids, prev.Bids, "bid")...)
	out = append(out, removedSide(cur.Timestamp, cur.Asks, prev.Asks, "ask")...)
	return out
}

func removedSide(ts int64, cur, prev []market.PriceLevel, side string) []Removal {
	present := make(map[float64]bool, len(cur))
	for _, l := range cur {
		present[l.Price] = true
	}
	var out []Removal
	for _, l := range prev {
		if !present[l.Price] {
			out = append(out, Removal{Timestamp: ts, Side: side})
		}
	}
	return out
}

// DetectSpreadChange 比较相邻快照的价差绝对变化。
// 任一价差超过合理上限（脏数据）或前值为 0 时跳过。
func DetectSpreadChange(cur, prev *market.Snapshot, th Thresholds, ceiling float64) []events.Event {
	curSpread := math.Abs(cur.Spread)
	prevSpread := math.Abs(prev.Spread)
	if curSpread > ceiling || prevSpread > ceiling || prevSpread == 0 {
		return nil
	}
	change := curSpread - prevSpread
	sev, ok := th.Classify(math.Abs(change))
	if !ok {
		return nil
	}
	direction := "widened"
	if change < 0 {
		direction = "narrowed"
	}
	return []events.Event{events.New(events.TypeSpreadChange, cur.Timestamp, sev, map[string]any{
		"direction": direction,
		"change":    math.Abs(change),
		"spread":    curSpread,
	})}
}

// DetectLiquidityGaps 扫描最优价附近前 K 档的相邻价格缺口。
// 每侧每快照只报告最大的一个合格缺口，避免事件洪泛。
func DetectLiquidityGaps(cur *market.Snapshot, th Thresholds, depth int) []events.Event {
	var out []events.Event
	if e := gapSide(cur.Timestamp, cur.Bids, "bid", th, depth); e != nil {
		out = append(out, *e)
	}
	if e := gapSide(cur.Timestamp, cur.Asks, "ask", th, depth); e != nil {
		out = append(out, *e)
	}
	return out
}

func gapSide(ts int64, ladder []market.PriceLevel, side string, th Thresholds, depth int) *events.Event {
	if len(ladder) > depth {
		ladder = ladder[:depth]
	}
	var bestPct, fromPrice, toPrice float64
	for i := 1; i < len(ladder); i++ {
		a, b := ladder[i-1].Price, ladder[i].Price
		pct := math.Abs(b-a) / a * 100
		if pct > bestPct {
			bestPct, fromPrice, toPrice = pct, a, b
		}
	}
	sev, ok := th.Classify(bestPct)
	if !ok {
		return nil
	}
	e := events.New(events.TypeLiquidityGap, ts, sev, map[string]any{
		"side":   side,
		"gapPct": bestPct,
		"from":   fromPrice,
		"to":     toPrice,
		"price":  fromPrice,
	})
	return &e
}

// DetectRapidCancellations 统计尾随时间窗内的整档撤单次数。
// 两侧各自过阈值时记为 "both"，否则归入占多数的一侧。
func DetectRapidCancellations(now int64, removals []Removal, windowMs int64, th Thresholds) []events.Event {
	cutoff := now - windowMs
	var bids, asks int
	for _, r := range removals {
		if r.Timestamp < cutoff {
			continue
		}
		if r.Side == "bid" {
			bids++
		} else {
			asks++
		}
	}
	total := bids + asks
	sev, ok := th.Classify(float64(total))
	if !ok {
		return nil
	}
	side := "ask"
	switch {
	case float64(bids) >= th.Low && float64(asks) >= th.Low:
		side = "both"
	case bids >= asks:
		side = "bid"
	}
	return []events.Event{events.New(events.TypeRapidCancellation, now, sev, map[string]any{
		"side":     side,
		"count":    total,
		"windowMs": windowMs,
	})}
}

// DetectBreakthroughs 检测中间价对关键位的上穿/下穿。
// 每个被穿越的关键位产生一条事件；严重级别按该位的累计挂单量分级。
func DetectBreakthroughs(cur, prev *market.Snapshot, levels []SignificantLevel, th Thresholds) []events.Event {
	if cur.MidPrice == 0 || prev.MidPrice == 0 {
		return nil
	}
	var out []events.Event
	for _, lv := range levels {
		var direction string
		switch {
		case prev.MidPrice < lv.Price && cur.MidPrice >= lv.Price:
			direction = "up"
		case prev.MidPrice > lv.Price && cur.MidPrice <= lv.Price:
			direction = "down"
		default:
			continue
		}
		sev, ok := th.Classify(lv.Volume)
		if !ok {
			sev = events.SeverityLow
		}
		out = append(out, events.New(events.TypeBreakthrough, cur.Timestamp, sev, map[string]any{
			"direction": direction,
			"price":     lv.Price,
			"volume":    lv.Volume,
			"mid":       cur.MidPrice,
		}))
	}
	return out
}
