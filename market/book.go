package market

import "sync"

// OrderBook 维护单一标的的价格->数量映射，是实时行情的唯一可变状态。
// 写入方（行情适配器）与读取方（采样器）并发访问，由内部锁保护。
type OrderBook struct {
	mu   sync.RWMutex
	bids map[float64]float64 // price -> size
	asks map[float64]float64
}

func NewOrderBook() *OrderBook {
	return &OrderBook{
		bids: make(map[float64]float64),
		asks: make(map[float64]float64),
	}
}

// ApplySnapshot 用完整盘口替换现有状态（全量消息）。
func (ob *OrderBook) ApplySnapshot(bids, asks []PriceLevel) {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	ob.bids = make(map[float64]float64, len(bids))
	ob.asks = make(map[float64]float64, len(asks))
	for _, l := range bids {
		if l.Size > 0 {
			ob.bids[l.Price] = l.Size
		}
	}
	for _, l := range asks {
		if l.Size > 0 {
			ob.asks[l.Price] = l.Size
		}
	}
}

// ApplyDelta 应用增量更新，size 为 0 表示删除该档。
// 同一价格重复应用同一增量是幂等的。
func (ob *OrderBook) ApplyDelta(bidDelta, askDelta []PriceLevel) {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	for _, l := range bidDelta {
		if l.Size == 0 {
			delete(ob.bids, l.Price)
		} else {
			ob.bids[l.Price] = l.Size
		}
	}
	for _, l := range askDelta {
		if l.Size == 0 {
			delete(ob.asks, l.Price)
		} else {
			ob.asks[l.Price] = l.Size
		}
	}
}

// Best 返回最好买/卖价；若不存在则为 0。
func (ob *OrderBook) Best() (bestBid float64, bestAsk float64) {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	for p := range ob.bids {
		if p > bestBid {
			bestBid = p
		}
	}
	for p := range ob.asks {
		if bestAsk == 0 || p < bestAsk {
			bestAsk = p
		}
	}
	return bestBid, bestAsk
}

// Mid 返回中间价；若缺失任一侧返回 0。
func (ob *OrderBook) Mid() float64 {
	bid, ask := ob.Best()
	if bid == 0 || ask == 0 {
		return 0
	}
	return (bid + ask) / 2
}

// Empty 任一侧无档位时为 true；此时不产生快照。
func (ob *OrderBook) Empty() bool {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return len(ob.bids) == 0 || len(ob.asks) == 0
}

// Snapshot 以当前盘口构造不可变快照（深拷贝，之后盘口变化不影响快照）。
// depth > 0 时每侧最多保留 depth 档；depth <= 0 保留全部。
// 任一侧为空时返回 nil。
func (ob *OrderBook) Snapshot(ts int64, depth int) *Snapshot {
	ob.mu.RLock()
	bids := ladderFromMap(ob.bids)
	asks := ladderFromMap(ob.asks)
	ob.mu.RUnlock()

	if len(bids) == 0 || len(asks) == 0 {
		return nil
	}
	sortBids(bids)
	sortAsks(asks)
	if depth > 0 {
		if len(bids) > depth {
			bids = bids[:depth]
		}
		if len(asks) > depth {
			asks = asks[:depth]
		}
	}
	return NewSnapshot(ts, bids, asks)
}
