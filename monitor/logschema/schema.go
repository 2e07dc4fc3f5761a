package logschema

import (
	"fmt"
	"sort"
	"strings"
)

// Schema 定义每类市场事件详情所需的关键字段，便于集中校验。
// 事件详情会被序列化进日志与广播流，缺字段说明检测器有回归。
type Schema struct {
	Event    string
	Required []string
}

var schemas = map[string]Schema{
	"large_order_added": {
		Event:    "large_order_added",
		Required: []string{"side", "price", "volume"},
	},
	"large_order_removed": {
		Event:    "large_order_removed",
		Required: []string{"side", "price", "volume"},
	},
	"spread_change": {
		Event:    "spread_change",
		Required: []string{"direction", "change", "spread"},
	},
	"liquidity_gap": {
		Event:    "liquidity_gap",
		Required: []string{"side", "gapPct", "from", "to", "price"},
	},
	"rapid_cancellation": {
		Event:    "rapid_cancellation",
		Required: []string{"side", "count", "windowMs"},
	},
	"price_breakthrough": {
		Event:    "price_breakthrough",
		Required: []string{"direction", "price", "volume", "mid"},
	},
}

// Known 返回所有事件名，便于外部生成文档。
func Known() []string {
	names := make([]string, 0, len(schemas))
	for k := range schemas {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Validate 检查事件详情是否包含 schema 中要求的 key。
// 未登记的事件名不报错，方便新增事件类型时渐进接入。
func Validate(event string, fields map[string]interface{}) error {
	s, ok := schemas[event]
	if !ok {
		return nil
	}
	var missing []string
	for _, key := range s.Required {
		if _, exists := fields[key]; !exists {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("event %s missing fields: %s", event, strings.Join(missing, ","))
	}
	return nil
}
