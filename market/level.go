package market

import "sort"

// PriceLevel 表示订单簿中的一档（价格 -> 挂单量）。
type PriceLevel struct {
	Price float64 `json:"p"`
	Size  float64 `json:"s"`
}

// sortBids 买盘按价格降序排列，最优买价在前。
func sortBids(levels []PriceLevel) {
	sort.Slice(levels, func(i, j int) bool { return levels[i].Price > levels[j].Price })
}

// sortAsks 卖盘按价格升序排列，最优卖价在前。
func sortAsks(levels []PriceLevel) {
	sort.Slice(levels, func(i, j int) bool { return levels[i].Price < levels[j].Price })
}

// ladderFromMap 把价格->数量映射转成档位切片；数量为 0 的档位不会出现在映射里。
func ladderFromMap(m map[float64]float64) []PriceLevel {
	levels := make([]PriceLevel, 0, len(m))
	for p, q := range m {
		levels = append(levels, PriceLevel{Price: p, Size: q})
	}
	return levels
}
