package market

// Snapshot 某一时刻订单簿的不可变快照。
// Bids 降序、Asks 升序；Spread/MidPrice 由各自第一档推导，任一侧为空时为 0。
// 创建后不得修改：快照会进入历史存档，事后改动会污染回放数据。
type Snapshot struct {
	Timestamp int64        `json:"ts"` // 毫秒时间戳
	Bids      []PriceLevel `json:"bids"`
	Asks      []PriceLevel `json:"asks"`
	Spread    float64      `json:"spread"`
	MidPrice  float64      `json:"mid"`
}

// NewSnapshot 由已排序的档位构造快照并推导 spread/mid。
// 调用方必须保证传入的切片不再被修改（或传入拷贝）。
func NewSnapshot(ts int64, bids, asks []PriceLevel) *Snapshot {
	s := &Snapshot{Timestamp: ts, Bids: bids, Asks: asks}
	if len(bids) > 0 && len(asks) > 0 {
		bestBid := bids[0].Price
		bestAsk := asks[0].Price
		s.Spread = bestAsk - bestBid
		if s.Spread < 0 {
			s.Spread = -s.Spread
		}
		s.MidPrice = (bestBid + bestAsk) / 2
	}
	return s
}

// BestBid 返回最优买档；不存在时 ok 为 false。
func (s *Snapshot) BestBid() (PriceLevel, bool) {
	if len(s.Bids) == 0 {
		return PriceLevel{}, false
	}
	return s.Bids[0], true
}

// BestAsk 返回最优卖档；不存在时 ok 为 false。
func (s *Snapshot) BestAsk() (PriceLevel, bool) {
	if len(s.Asks) == 0 {
		return PriceLevel{}, false
	}
	return s.Asks[0], true
}
