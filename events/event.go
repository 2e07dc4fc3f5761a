// Package events 管理检测到的市场事件：有界存储、冷却去重、过滤与选中。
package events

import "github.com/google/uuid"

// Type 事件类型（封闭集合）。
type Type string

const (
	TypeLargeOrderAdded   Type = "large_order_added"
	TypeLargeOrderRemoved Type = "large_order_removed"
	TypeSpreadChange      Type = "spread_change"
	TypeLiquidityGap      Type = "liquidity_gap"
	TypeRapidCancellation Type = "rapid_cancellation"
	TypeBreakthrough      Type = "price_breakthrough"
)

// AllTypes 全部事件类型，供过滤器初始化使用。
var AllTypes = []Type{
	TypeLargeOrderAdded,
	TypeLargeOrderRemoved,
	TypeSpreadChange,
	TypeLiquidityGap,
	TypeRapidCancellation,
	TypeBreakthrough,
}

// Severity 事件严重级别。
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Event 一条已分类的市场事件。创建后除删除外不再修改。
type Event struct {
	ID        string         `json:"id"`
	Type      Type           `json:"type"`
	Timestamp int64          `json:"ts"`
	Severity  Severity       `json:"severity"`
	Details   map[string]any `json:"details"`
}

// New 构造事件并分配唯一 ID。
func New(t Type, ts int64, sev Severity, details map[string]any) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      t,
		Timestamp: ts,
		Severity:  sev,
		Details:   details,
	}
}
