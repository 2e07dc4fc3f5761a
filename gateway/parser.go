// Package gateway 连接实时行情流并把消息归一化为盘口更新。
package gateway

import (
	"encoding/json"
	"fmt"

	"book-replay-go/market"
)

// CombinedMessage 对应 combined stream 包装。
type CombinedMessage struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// depthDelta 增量深度消息（e=depthUpdate），size 为 0 表示删除该档。
type depthDelta struct {
	EventType string           `json:"e"`
	EventTime int64            `json:"E"`
	Symbol    string           `json:"s"`
	Bids      [][2]json.Number `json:"b"`
	Asks      [][2]json.Number `json:"a"`
}

// depthSnapshot 部分快照消息（depth20@100ms），每次全量替换。
type depthSnapshot struct {
	LastUpdateID int64            `json:"lastUpdateId"`
	Bids         [][2]json.Number `json:"bids"`
	Asks         [][2]json.Number `json:"asks"`
}

// BookUpdate 归一化后的盘口更新。
// IsSnapshot 为 true 时表示全量替换，否则为增量（Size 为 0 表示删档）。
type BookUpdate struct {
	Symbol     string
	EventTime  int64
	IsSnapshot bool
	Bids       []market.PriceLevel
	Asks       []market.PriceLevel
}

// ParseBookUpdate 解析一条原始消息。
// 支持裸消息与 combined stream 包装；无法识别的消息返回错误，由调用方丢弃。
func ParseBookUpdate(raw []byte) (*BookUpdate, error) {
	payload := raw
	var wrapped CombinedMessage
	if err := json.Unmarshal(raw, &wrapped); err == nil && len(wrapped.Data) > 0 {
		payload = wrapped.Data
	}

	var delta depthDelta
	if err := json.Unmarshal(payload, &delta); err == nil && delta.EventType == "depthUpdate" {
		bids, err := parseLadder(delta.Bids)
		if err != nil {
			return nil, fmt.Errorf("parse bid delta: %w", err)
		}
		asks, err := parseLadder(delta.Asks)
		if err != nil {
			return nil, fmt.Errorf("parse ask delta: %w", err)
		}
		return &BookUpdate{
			Symbol:    delta.Symbol,
			EventTime: delta.EventTime,
			Bids:      bids,
			Asks:      asks,
		}, nil
	}

	var snap depthSnapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return nil, fmt.Errorf("unrecognized feed message: %w", err)
	}
	if snap.LastUpdateID == 0 && len(snap.Bids) == 0 && len(snap.Asks) == 0 {
		return nil, fmt.Errorf("unrecognized feed message")
	}
	bids, err := parseLadder(snap.Bids)
	if err != nil {
		return nil, fmt.Errorf("parse snapshot bids: %w", err)
	}
	asks, err := parseLadder(snap.Asks)
	if err != nil {
		return nil, fmt.Errorf("parse snapshot asks: %w", err)
	}
	return &BookUpdate{IsSnapshot: true, Bids: bids, Asks: asks}, nil
}

func parseLadder(rows [][2]json.Number) ([]market.PriceLevel, error) {
	out := make([]market.PriceLevel, 0, len(rows))
	for _, row := range rows {
		price, err := row[0].Float64()
		if err != nil {
			return nil, fmt.Errorf("bad price %q: %w", row[0], err)
		}
		size, err := row[1].Float64()
		if err != nil {
			return nil, fmt.Errorf("bad size %q: %w", row[1], err)
		}
		if price <= 0 {
			return nil, fmt.Errorf("non-positive price %f", price)
		}
		out = append(out, market.PriceLevel{Price: price, Size: size})
	}
	return out, nil
}
