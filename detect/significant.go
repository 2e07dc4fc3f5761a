package detect

import "book-replay-go/market"

// SignificantLevel 历史上挂单量高度集中的价位。
type SignificantLevel struct {
	Price  float64
	Volume float64 // 回看窗口内该价位的累计挂单量
}

// CalcSignificantLevels 在最近一段快照窗口上聚合每个价位的总挂单量，
// 取累计量最高的前 topN 个价位，按价格升序返回。
// 复杂度 O(快照数 × 档位数)，应按慢节奏周期性调用而非逐 tick 调用。
func CalcSignificantLevels(snaps []*market.Snapshot, topN int) []SignificantLevel {
	if len(snaps) == 0 || topN <= 0 {
		return nil
	}
	volumes := make(map[float64]float64)
	for _, s := range snaps {
		if s == nil {
			continue
		}
		for _, l := range s.Bids {
			volumes[l.Price] += l.Size
		}
		for _, l := range s.Asks {
			volumes[l.Price] += l.Size
		}
	}

	levels := make([]SignificantLevel, 0, len(volumes))
	for p, v := range volumes {
		levels = append(levels, SignificantLevel{Price: p, Volume: v})
	}
	// 按累计量降序选前 topN
	for i := 0; i < len(levels) && i < topN; i++ {
		max := i
		for j := i + 1; j < len(levels); j++ {
			if levels[j].Volume > levels[max].Volume {
				max = j
			}
		}
		levels[i], levels[max] = levels[max], levels[i]
	}
	if len(levels) > topN {
		levels = levels[:topN]
	}
	// 结果按价格升序，便于突破检测顺序扫描
	for i := 1; i < len(levels); i++ {
		for j := i; j > 0 && levels[j].Price < levels[j-1].Price; j-- {
			levels[j], levels[j-1] = levels[j-1], levels[j]
		}
	}
	return levels
}
